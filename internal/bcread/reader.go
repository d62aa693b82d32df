package bcread

import (
	"fmt"
	"io"

	"bcread/internal/bcwire"
	"bcread/internal/bitstream"
	"bcread/internal/ir"
)

// blockAddrRef is a pending block-address fixup: a stand-in global to be
// rewritten once the block at blockIdx exists.
type blockAddrRef struct {
	blockIdx uint64
	fwd      *ir.GlobalVariable
}

type globalInitRef struct {
	gv *ir.GlobalVariable
	id int
}

type aliasInitRef struct {
	alias *ir.Alias
	id    int
}

type intrinsicPair struct {
	old, new *ir.Function
}

// Reader deserializes one bitcode stream into one module. A Reader is
// single-use and not safe for concurrent access; it stays attached to the
// module as its materializer until every function body is resident.
type Reader struct {
	ctx    *ir.Context
	cursor *bitstream.Cursor
	module *ir.Module

	typeList   []*ir.Type
	values     *valueTable
	mdValues   *mdValueTable
	attributes []ir.AttributeList

	sectionTable []string
	gcTable      []string

	globalInits []globalInitRef
	aliasInits  []aliasInitRef

	blockAddrFwdRefs     map[*ir.Function][]blockAddrRef
	deferredFunctionInfo map[*ir.Function]uint64
	functionsWithBodies  []*ir.Function
	upgradedIntrinsics   []intrinsicPair
	mdKindMap            map[uint64]uint32

	seenValueSymtab       bool
	seenFirstFunctionBody bool
	seenModule            bool
	didGlobalCleanup      bool

	streaming     bool
	nextUnreadBit uint64

	// Function-local state, valid only inside parseFunctionBody.
	functionBBs []*ir.BasicBlock
	instList    []*ir.Instruction
}

func newReader(ctx *ir.Context, src bitstream.Source, streaming bool) *Reader {
	return &Reader{
		ctx:                  ctx,
		cursor:               bitstream.NewCursor(src),
		values:               newValueTable(ctx),
		mdValues:             newMDValueTable(ctx),
		blockAddrFwdRefs:     make(map[*ir.Function][]blockAddrRef),
		deferredFunctionInfo: make(map[*ir.Function]uint64),
		mdKindMap:            make(map[uint64]uint32),
		streaming:            streaming,
	}
}

// Lazy opens a fully resident buffer, parsing everything except function
// bodies. The returned module has the reader attached as materializer.
func Lazy(ctx *ir.Context, buf []byte, name string) (*ir.Module, error) {
	src, err := bufferSource(buf)
	if err != nil {
		return nil, err
	}
	r := newReader(ctx, src, false)
	m := ir.NewModule(ctx, name)
	m.Materializer = r
	if err := r.parseBitcodeInto(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Parse opens a fully resident buffer and materializes every function body.
func Parse(ctx *ir.Context, buf []byte, name string) (*ir.Module, error) {
	m, err := Lazy(ctx, buf, name)
	if err != nil {
		return nil, err
	}
	if err := m.MaterializeAll(); err != nil {
		return nil, err
	}
	return m, nil
}

// ParseStream opens a streamed input. The stream must allow the header and
// value symbol table to be read before the first materialization; prior
// bytes stay re-readable through the stream source's buffer.
func ParseStream(ctx *ir.Context, in io.Reader, name string) (*ir.Module, error) {
	src := bitstream.NewStreamSource(in)
	if err := stripStreamWrapper(src); err != nil {
		return nil, err
	}
	r := newReader(ctx, src, true)
	m := ir.NewModule(ctx, name)
	m.Materializer = r
	if err := r.parseBitcodeInto(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Triple reads only the target triple of a buffer, without building a
// module.
func Triple(ctx *ir.Context, buf []byte) (string, error) {
	src, err := bufferSource(buf)
	if err != nil {
		return "", err
	}
	r := newReader(ctx, src, false)
	return r.parseTriple()
}

// bufferSource validates buffer framing and strips the optional wrapper.
func bufferSource(buf []byte) (bitstream.Source, error) {
	if len(buf)&3 != 0 {
		return nil, fmt.Errorf("buffer size %d is not a multiple of four: %w", len(buf), ErrInvalidBitcodeSignature)
	}
	if bitstream.IsWrapper(buf) {
		inner, err := bitstream.StripWrapper(buf)
		if err != nil {
			return nil, fmt.Errorf("%v: %w", err, ErrInvalidBitcodeWrapperHeader)
		}
		buf = inner
	}
	return bitstream.NewBufferSource(buf), nil
}

// stripStreamWrapper peeks the head of a streamed input and drops the
// wrapper header if one is present.
func stripStreamWrapper(src *bitstream.StreamSource) error {
	var head [4]byte
	for i := range head {
		b, err := src.Byte(uint64(i))
		if err != nil {
			return fmt.Errorf("stream shorter than signature: %w", ErrInvalidBitcodeSignature)
		}
		head[i] = b
	}
	if !bitstream.IsWrapper(head[:]) {
		return nil
	}
	// The embedded bitcode offset lives in header bytes 8..11.
	var off uint64
	for i := 0; i < 4; i++ {
		b, err := src.Byte(uint64(8 + i))
		if err != nil {
			return fmt.Errorf("truncated wrapper header: %w", ErrInvalidBitcodeWrapperHeader)
		}
		off |= uint64(b) << (8 * i)
	}
	if off < bcwire.WrapperHeaderSize {
		return fmt.Errorf("wrapper offset %d overlaps header: %w", off, ErrInvalidBitcodeWrapperHeader)
	}
	return src.DropLeadingBytes(off)
}

// readSignature consumes and checks the container signature.
func (r *Reader) readSignature() error {
	fields := []struct {
		bits uint
		want uint64
	}{
		{8, bcwire.MagicByte0},
		{8, bcwire.MagicByte1},
		{4, bcwire.MagicNib0},
		{4, bcwire.MagicNib1},
		{4, bcwire.MagicNib2},
		{4, bcwire.MagicNib3},
	}
	for _, f := range fields {
		v, err := r.cursor.Read(f.bits)
		if err != nil || v != f.want {
			return ErrInvalidBitcodeSignature
		}
	}
	return nil
}

// parseBitcodeInto drives the top-level block loop.
func (r *Reader) parseBitcodeInto(m *ir.Module) error {
	r.module = nil
	if err := r.readSignature(); err != nil {
		return err
	}

	for {
		if r.cursor.AtEnd() {
			return nil
		}
		code, err := r.cursor.ReadCode()
		if err != nil {
			return fmt.Errorf("top level: %w", ErrMalformedBlock)
		}
		switch code {
		case bcwire.EndBlock:
			return nil
		case bcwire.EnterSubBlock:
			id, err := r.cursor.ReadSubBlockID()
			if err != nil {
				return fmt.Errorf("top level: %w", ErrMalformedBlock)
			}
			switch id {
			case bcwire.BlockInfoBlockID:
				if err := r.cursor.ReadBlockInfoBlock(); err != nil {
					return fmt.Errorf("BLOCKINFO: %w", ErrMalformedBlock)
				}
			case bcwire.ModuleBlockID:
				if r.seenModule {
					return fmt.Errorf("second MODULE block: %w", ErrInvalidMultipleBlocks)
				}
				r.seenModule = true
				r.module = m
				if err := r.parseModule(false); err != nil {
					return err
				}
				if r.streaming {
					return nil
				}
			default:
				if err := r.cursor.SkipBlock(); err != nil {
					return fmt.Errorf("skipping block %d: %w", id, ErrInvalidRecord)
				}
			}
		default:
			// Some archivers pad members with newline bytes; a trailing
			// run of them decodes as this exact sequence. Accept it at
			// end of stream, reject anything else.
			if code == 2 {
				if v, err := r.cursor.Read(6); err == nil && v == 2 {
					if v, err := r.cursor.Read(24); err == nil && v == 0xa0a0a && r.cursor.AtEnd() {
						return nil
					}
				}
			}
			return fmt.Errorf("record at top level: %w", ErrInvalidRecord)
		}
	}
}

// parseTriple scans for the module block and returns its TRIPLE record.
func (r *Reader) parseTriple() (string, error) {
	if err := r.readSignature(); err != nil {
		return "", err
	}
	for {
		if r.cursor.AtEnd() {
			return "", nil
		}
		code, err := r.cursor.ReadCode()
		if err != nil {
			return "", fmt.Errorf("top level: %w", ErrMalformedBlock)
		}
		switch code {
		case bcwire.EndBlock:
			return "", nil
		case bcwire.EnterSubBlock:
			id, err := r.cursor.ReadSubBlockID()
			if err != nil {
				return "", fmt.Errorf("top level: %w", ErrMalformedBlock)
			}
			if id == bcwire.ModuleBlockID {
				return r.parseModuleTriple()
			}
			if id == bcwire.BlockInfoBlockID {
				if err := r.cursor.ReadBlockInfoBlock(); err != nil {
					return "", fmt.Errorf("BLOCKINFO: %w", ErrMalformedBlock)
				}
				continue
			}
			if err := r.cursor.SkipBlock(); err != nil {
				return "", fmt.Errorf("skipping block: %w", ErrMalformedBlock)
			}
		default:
			return "", fmt.Errorf("record at top level: %w", ErrInvalidRecord)
		}
	}
}

// parseModuleTriple reads module records until the TRIPLE record surfaces.
func (r *Reader) parseModuleTriple() (string, error) {
	if err := r.cursor.EnterSubBlock(bcwire.ModuleBlockID); err != nil {
		return "", fmt.Errorf("MODULE: %w", ErrInvalidRecord)
	}
	triple := ""
	var record []uint64
	for {
		entry, err := r.cursor.AdvanceSkippingSubblocks()
		if err != nil {
			return "", fmt.Errorf("MODULE: %w", ErrMalformedBlock)
		}
		switch entry.Kind {
		case bitstream.EntryEndBlock:
			return triple, nil
		case bitstream.EntryRecord:
			record = record[:0]
			code, rec, err := r.cursor.ReadRecord(entry.ID, record)
			if err != nil {
				return "", fmt.Errorf("MODULE record: %w", ErrMalformedBlock)
			}
			record = rec
			if code == bcwire.ModuleCodeTriple {
				s, ok := recordString(record, 0)
				if !ok {
					return "", fmt.Errorf("TRIPLE record: %w", ErrInvalidRecord)
				}
				triple = s
			}
		}
	}
}

// typeByID resolves a type slot, installing a named-struct placeholder for
// a forward reference. Returns nil when the ID is out of range.
func (r *Reader) typeByID(id uint64) *ir.Type {
	if id >= uint64(len(r.typeList)) {
		return nil
	}
	if t := r.typeList[id]; t != nil {
		return t
	}
	t := r.ctx.NamedStruct("")
	r.typeList[id] = t
	return t
}

// typeByIDOrNull is the legacy-table variant: the table grows on demand and
// unresolved slots stay nil.
func (r *Reader) typeByIDOrNull(id uint64) *ir.Type {
	if id >= uint64(len(r.typeList)) {
		grown := make([]*ir.Type, id+1)
		copy(grown, r.typeList)
		r.typeList = grown
	}
	return r.typeList[id]
}

// attributesAt returns the attribute list for a 1-based table reference;
// zero means no attributes.
func (r *Reader) attributesAt(id uint64) ir.AttributeList {
	if id == 0 || id > uint64(len(r.attributes)) {
		return ir.AttributeList{}
	}
	return r.attributes[id-1]
}
