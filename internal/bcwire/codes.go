// Package bcwire defines the numeric identifiers of the generation-3.0
// bitcode container: block IDs, record codes, opcode tables, and the flag
// bit positions shared between the on-disk format and the reader.
//
// The values are stable wire identifiers. They must never be renumbered.
package bcwire

// Magic numbers of the container.
const (
	// Signature bytes 'B','C' followed by the 4-bit fields 0x0,0xC,0xE,0xD.
	MagicByte0 = 'B'
	MagicByte1 = 'C'
	MagicNib0  = 0x0
	MagicNib1  = 0xC
	MagicNib2  = 0xE
	MagicNib3  = 0xD

	// WrapperMagic is the little-endian magic of the optional wrapper header.
	WrapperMagic uint32 = 0x0B17C0DE

	// WrapperHeaderSize is the fixed byte size of the wrapper header:
	// magic, version, bitcode offset, bitcode size, cpu type.
	WrapperHeaderSize = 20
)

// Abbreviation control codes, valid in every block.
const (
	EndBlock        = 0
	EnterSubBlock   = 1
	DefineAbbrev    = 2
	UnabbrevRecord  = 3
	FirstApplAbbrev = 4
)

// Abbreviation operand encodings used by DEFINE_ABBREV.
const (
	EncFixed = 1
	EncVBR   = 2
	EncArray = 3
	EncChar6 = 4
	EncBlob  = 5
)

// Block IDs.
const (
	BlockInfoBlockID = 0

	ModuleBlockID             = 8
	ParamAttrBlockID          = 9
	ConstantsBlockID          = 11
	FunctionBlockID           = 12
	ValueSymtabBlockID        = 14
	MetadataBlockID           = 15
	MetadataAttachmentBlockID = 16
	TypeBlockIDNew            = 17

	// Legacy generation-3.0 block IDs. TypeBlockIDOld collides with the
	// modern PARAMATTR_GROUP ID and TypeSymtabBlockIDOld sits next to
	// VALUE_SYMTAB; a single stream only ever carries one generation.
	TypeBlockIDOld       = 10
	TypeSymtabBlockIDOld = 13
)

// BLOCKINFO record codes.
const (
	BlockInfoCodeSetBID = 1
)

// MODULE block record codes.
const (
	ModuleCodeVersion     = 1
	ModuleCodeTriple      = 2
	ModuleCodeDataLayout  = 3
	ModuleCodeASM         = 4
	ModuleCodeSectionName = 5
	ModuleCodeDepLib      = 6
	ModuleCodeGlobalVar   = 7
	ModuleCodeFunction    = 8
	ModuleCodeAlias       = 9
	ModuleCodePurgeVals   = 10
	ModuleCodeGCName      = 11
)

// PARAMATTR block record codes.
const (
	ParamAttrCodeEntryOld = 1
	ParamAttrCodeEntry    = 2
)

// TYPE block record codes (modern table).
const (
	TypeCodeNumEntry    = 1
	TypeCodeVoid        = 2
	TypeCodeFloat       = 3
	TypeCodeDouble      = 4
	TypeCodeLabel       = 5
	TypeCodeOpaque      = 6
	TypeCodeInteger     = 7
	TypeCodePointer     = 8
	TypeCodeFunctionOld = 9
	TypeCodeHalf        = 10
	TypeCodeArray       = 11
	TypeCodeVector      = 12
	TypeCodeX86FP80     = 13
	TypeCodeFP128       = 14
	TypeCodePPCFP128    = 15
	TypeCodeMetadata    = 16
	TypeCodeX86MMX      = 17
	TypeCodeStructAnon  = 18
	TypeCodeStructName  = 19
	TypeCodeStructNamed = 20
	TypeCodeFunction    = 21

	// TypeCodeStructOld is the legacy struct record. It shares the numeric
	// value of TypeCodeHalf, which is why the legacy table has no half type.
	TypeCodeStructOld = 10
)

// TYPE_SYMTAB and VALUE_SYMTAB record codes.
const (
	TypeSymtabCodeEntry = 1

	ValueSymtabCodeEntry   = 1
	ValueSymtabCodeBBEntry = 2
)

// CONSTANTS block record codes.
const (
	CstCodeSetType       = 1
	CstCodeNull          = 2
	CstCodeUndef         = 3
	CstCodeInteger       = 4
	CstCodeWideInteger   = 5
	CstCodeFloat         = 6
	CstCodeAggregate     = 7
	CstCodeString        = 8
	CstCodeCString       = 9
	CstCodeCEBinOp       = 10
	CstCodeCECast        = 11
	CstCodeCEGEP         = 12
	CstCodeCESelect      = 13
	CstCodeCEExtractElt  = 14
	CstCodeCEInsertElt   = 15
	CstCodeCEShuffleVec  = 16
	CstCodeCECmp         = 17
	CstCodeInlineAsm     = 18
	CstCodeCEShufVecEx   = 19
	CstCodeCEInboundsGEP = 20
	CstCodeBlockAddress  = 21
)

// METADATA block record codes, in the generation-3.0 writer numbering.
const (
	MetadataCodeString     = 1
	MetadataCodeName       = 4
	MetadataCodeKind       = 6
	MetadataCodeNode       = 8
	MetadataCodeFnNode     = 9
	MetadataCodeNamedNode  = 10
	MetadataCodeAttachment = 11
)

// FUNCTION block record codes.
const (
	FuncCodeDeclareBlocks = 1

	FuncCodeInstBinOp       = 2
	FuncCodeInstCast        = 3
	FuncCodeInstGEP         = 4
	FuncCodeInstSelect      = 5
	FuncCodeInstExtractElt  = 6
	FuncCodeInstInsertElt   = 7
	FuncCodeInstShuffleVec  = 8
	FuncCodeInstCmp         = 9
	FuncCodeInstRet         = 10
	FuncCodeInstBr          = 11
	FuncCodeInstSwitch      = 12
	FuncCodeInstInvoke      = 13
	FuncCodeInstUnwindOld   = 14 // removed terminator, upgraded on read
	FuncCodeInstUnreachable = 15
	FuncCodeInstPhi         = 16
	FuncCodeInstAlloca      = 19
	FuncCodeInstLoad        = 20
	FuncCodeInstVAArg       = 23
	FuncCodeInstStore       = 24
	FuncCodeInstExtractVal  = 26
	FuncCodeInstInsertVal   = 27
	FuncCodeInstCmp2        = 28
	FuncCodeInstVSelect     = 29
	FuncCodeInstInboundsGEP = 30
	FuncCodeInstIndirectBr  = 31
	FuncCodeDebugLocAgain   = 33
	FuncCodeInstCall        = 34
	FuncCodeDebugLoc        = 35
	FuncCodeInstFence       = 36
	FuncCodeInstCmpXchg     = 37
	FuncCodeInstAtomicRMW   = 38
	FuncCodeInstResume      = 39
	FuncCodeInstLandingPad  = 40
	FuncCodeInstLoadAtomic  = 41
	FuncCodeInstStoreAtomic = 42
)

// Binary opcode codes.
const (
	BinOpAdd  = 0
	BinOpSub  = 1
	BinOpMul  = 2
	BinOpUDiv = 3
	BinOpSDiv = 4
	BinOpURem = 5
	BinOpSRem = 6
	BinOpShl  = 7
	BinOpLShr = 8
	BinOpAShr = 9
	BinOpAnd  = 10
	BinOpOr   = 11
	BinOpXor  = 12
)

// Cast opcode codes.
const (
	CastTrunc    = 0
	CastZExt     = 1
	CastSExt     = 2
	CastFPToUI   = 3
	CastFPToSI   = 4
	CastUIToFP   = 5
	CastSIToFP   = 6
	CastFPTrunc  = 7
	CastFPExt    = 8
	CastPtrToInt = 9
	CastIntToPtr = 10
	CastBitCast  = 11
)

// Atomic read-modify-write operation codes.
const (
	RMWXchg = 0
	RMWAdd  = 1
	RMWSub  = 2
	RMWAnd  = 3
	RMWNand = 4
	RMWOr   = 5
	RMWXor  = 6
	RMWMax  = 7
	RMWMin  = 8
	RMWUMax = 9
	RMWUMin = 10
)

// Atomic ordering codes.
const (
	OrderingNotAtomic = 0
	OrderingUnordered = 1
	OrderingMonotonic = 2
	OrderingAcquire   = 3
	OrderingRelease   = 4
	OrderingAcqRel    = 5
	OrderingSeqCst    = 6
)

// Synchronization scope codes.
const (
	SynchScopeSingleThread = 0
	SynchScopeCrossThread  = 1
)

// Flag bit positions in the optional trailing operand of binary operator
// records.
const (
	OBONoUnsignedWrap = 0
	OBONoSignedWrap   = 1
	PEOExact          = 0
)
