package bcread

import (
	"fmt"

	"bcread/internal/bcwire"
	"bcread/internal/bitstream"
	"bcread/internal/ir"
)

// parseModule reads the MODULE block: top-level records, the nested tables,
// and the function subblocks whose bodies are deferred. With resume set the
// cursor continues from where a streaming parse paused.
func (r *Reader) parseModule(resume bool) error {
	if resume {
		r.cursor.JumpToBit(r.nextUnreadBit)
	} else if err := r.cursor.EnterSubBlock(bcwire.ModuleBlockID); err != nil {
		return fmt.Errorf("MODULE block: %w", ErrInvalidRecord)
	}

	var record []uint64
	for {
		entry, err := r.cursor.Advance()
		if err != nil {
			return fmt.Errorf("MODULE block: %w", ErrMalformedBlock)
		}

		switch entry.Kind {
		case bitstream.EntryEndBlock:
			return r.globalCleanup()

		case bitstream.EntrySubBlock:
			switch entry.ID {
			default:
				if err := r.cursor.SkipBlock(); err != nil {
					return fmt.Errorf("skipping block %d: %w", entry.ID, ErrInvalidRecord)
				}
			case bcwire.BlockInfoBlockID:
				if err := r.cursor.ReadBlockInfoBlock(); err != nil {
					return fmt.Errorf("BLOCKINFO: %w", ErrMalformedBlock)
				}
			case bcwire.ParamAttrBlockID:
				if err := r.parseAttributeBlock(); err != nil {
					return err
				}
			case bcwire.TypeBlockIDNew:
				if err := r.parseTypeTable(); err != nil {
					return err
				}
			case bcwire.TypeBlockIDOld:
				if err := r.parseOldTypeTable(); err != nil {
					return err
				}
			case bcwire.TypeSymtabBlockIDOld:
				if err := r.parseOldTypeSymbolTable(); err != nil {
					return err
				}
			case bcwire.ValueSymtabBlockID:
				if err := r.parseValueSymbolTable(); err != nil {
					return err
				}
				r.seenValueSymtab = true
			case bcwire.ConstantsBlockID:
				if err := r.parseConstants(); err != nil {
					return err
				}
				if err := r.resolveGlobalAndAliasInits(); err != nil {
					return err
				}
			case bcwire.MetadataBlockID:
				if err := r.parseMetadata(); err != nil {
					return err
				}
			case bcwire.FunctionBlockID:
				// The prototype list was built in source order; the first
				// body flips it so popping yields source order again.
				if !r.seenFirstFunctionBody {
					reverse(r.functionsWithBodies)
					if err := r.globalCleanup(); err != nil {
						return err
					}
					r.seenFirstFunctionBody = true
				}
				if err := r.rememberAndSkipFunctionBody(); err != nil {
					return err
				}
				// A streamed input pauses at the function bodies and
				// resumes per materialization, provided the symbol table
				// has already gone past. Older layouts put the symbol
				// table last; those finish the parse now.
				if r.streaming && r.seenValueSymtab {
					r.nextUnreadBit = r.cursor.BitPos()
					return nil
				}
			}

		case bitstream.EntryRecord:
			record = record[:0]
			code, rec, err := r.cursor.ReadRecord(entry.ID, record)
			if err != nil {
				return fmt.Errorf("MODULE record: %w", ErrMalformedBlock)
			}
			record = rec
			if err := r.parseModuleRecord(code, record); err != nil {
				return err
			}
		}
	}
}

func reverse(fns []*ir.Function) {
	for i, j := 0, len(fns)-1; i < j; i, j = i+1, j-1 {
		fns[i], fns[j] = fns[j], fns[i]
	}
}

// parseModuleRecord handles one top-level record of the MODULE block.
func (r *Reader) parseModuleRecord(code uint64, record []uint64) error {
	switch code {
	default:
		// Unknown records are ignored.
	case bcwire.ModuleCodeVersion:
		if len(record) < 1 {
			return fmt.Errorf("VERSION: %w", ErrInvalidRecord)
		}
		if record[0] != 0 {
			return fmt.Errorf("module version %d: %w", record[0], ErrInvalidValue)
		}
	case bcwire.ModuleCodeTriple:
		s, ok := recordString(record, 0)
		if !ok {
			return fmt.Errorf("TRIPLE: %w", ErrInvalidRecord)
		}
		r.module.Triple = s
	case bcwire.ModuleCodeDataLayout:
		s, ok := recordString(record, 0)
		if !ok {
			return fmt.Errorf("DATALAYOUT: %w", ErrInvalidRecord)
		}
		r.module.DataLayout = s
	case bcwire.ModuleCodeASM:
		s, ok := recordString(record, 0)
		if !ok {
			return fmt.Errorf("ASM: %w", ErrInvalidRecord)
		}
		r.module.InlineAsm = s
	case bcwire.ModuleCodeDepLib:
		// Dependent libraries are accepted and dropped.
		if _, ok := recordString(record, 0); !ok {
			return fmt.Errorf("DEPLIB: %w", ErrInvalidRecord)
		}
	case bcwire.ModuleCodeSectionName:
		s, ok := recordString(record, 0)
		if !ok {
			return fmt.Errorf("SECTIONNAME: %w", ErrInvalidRecord)
		}
		r.sectionTable = append(r.sectionTable, s)
	case bcwire.ModuleCodeGCName:
		s, ok := recordString(record, 0)
		if !ok {
			return fmt.Errorf("GCNAME: %w", ErrInvalidRecord)
		}
		r.gcTable = append(r.gcTable, s)
	case bcwire.ModuleCodeGlobalVar:
		return r.parseGlobalVarRecord(record)
	case bcwire.ModuleCodeFunction:
		return r.parseFunctionRecord(record)
	case bcwire.ModuleCodeAlias:
		return r.parseAliasRecord(record)
	case bcwire.ModuleCodePurgeVals:
		if len(record) < 1 || record[0] > uint64(r.values.size()) {
			return fmt.Errorf("PURGEVALS to %v: %w", record, ErrInvalidRecord)
		}
		r.values.shrinkTo(int(record[0]))
	}
	return nil
}

// parseGlobalVarRecord handles GLOBALVAR: [pointer type, isconst, initid,
// linkage, alignment, section, visibility, threadlocal, unnamed_addr].
func (r *Reader) parseGlobalVarRecord(record []uint64) error {
	if len(record) < 6 {
		return fmt.Errorf("GLOBALVAR: %w", ErrInvalidRecord)
	}
	ty := r.typeByID(record[0])
	if ty == nil {
		return fmt.Errorf("GLOBALVAR type %d: %w", record[0], ErrInvalidRecord)
	}
	if ty.Kind != ir.PointerKind {
		return fmt.Errorf("GLOBALVAR of non-pointer type %s: %w", ty, ErrInvalidTypeForValue)
	}
	addrSpace := ty.AddrSpace
	valueTy := ty.Elem

	isConst := record[1] != 0
	linkage := decodeLinkage(record[3])
	align := decodeAlignment(record[4])
	section := ""
	if record[5] != 0 {
		if record[5]-1 >= uint64(len(r.sectionTable)) {
			return fmt.Errorf("GLOBALVAR section %d: %w", record[5], ErrInvalidID)
		}
		section = r.sectionTable[record[5]-1]
	}
	visibility := ir.DefaultVisibility
	if len(record) > 6 {
		visibility = decodeVisibility(record[6])
	}
	tlm := ir.NotThreadLocal
	if len(record) > 7 {
		tlm = decodeThreadLocalMode(record[7])
	}
	unnamedAddr := len(record) > 8 && record[8] != 0

	gv := ir.NewGlobalVariable(r.module, valueTy, isConst, linkage, addrSpace, "")
	gv.Align = align
	gv.Section = section
	gv.Visibility = visibility
	gv.ThreadLocal = tlm
	gv.UnnamedAddr = unnamedAddr

	r.values.push(gv)

	// A non-zero init ID is a 1-based reference resolved after the
	// constants land.
	if initID := record[2]; initID != 0 {
		r.globalInits = append(r.globalInits, globalInitRef{gv: gv, id: int(initID - 1)})
	}
	return nil
}

// parseFunctionRecord handles FUNCTION: [type, callingconv, isproto,
// linkage, paramattr, alignment, section, visibility, gc, unnamed_addr].
func (r *Reader) parseFunctionRecord(record []uint64) error {
	if len(record) < 8 {
		return fmt.Errorf("FUNCTION: %w", ErrInvalidRecord)
	}
	ty := r.typeByID(record[0])
	if ty == nil {
		return fmt.Errorf("FUNCTION type %d: %w", record[0], ErrInvalidRecord)
	}
	if ty.Kind != ir.PointerKind || ty.Elem.Kind != ir.FunctionKind {
		return fmt.Errorf("FUNCTION of type %s: %w", ty, ErrInvalidTypeForValue)
	}
	sig := ty.Elem

	fn := ir.NewFunction(r.module, sig, ir.ExternalLinkage, "")
	fn.CallConv = record[1]
	isProto := record[2] != 0
	fn.Linkage = decodeLinkage(record[3])
	fn.Attrs = r.attributesAt(record[4])
	fn.Align = decodeAlignment(record[5])
	if record[6] != 0 {
		if record[6]-1 >= uint64(len(r.sectionTable)) {
			return fmt.Errorf("FUNCTION section %d: %w", record[6], ErrInvalidID)
		}
		fn.Section = r.sectionTable[record[6]-1]
	}
	fn.Visibility = decodeVisibility(record[7])
	if len(record) > 8 && record[8] != 0 {
		if record[8]-1 >= uint64(len(r.gcTable)) {
			return fmt.Errorf("FUNCTION gc %d: %w", record[8], ErrInvalidID)
		}
		fn.GC = r.gcTable[record[8]-1]
	}
	fn.UnnamedAddr = len(record) > 9 && record[9] != 0

	r.values.push(fn)

	// A definition's body arrives later; remember the prototype so the
	// body subblocks can be matched up in order.
	if !isProto {
		r.functionsWithBodies = append(r.functionsWithBodies, fn)
		if r.streaming {
			r.deferredFunctionInfo[fn] = 0
		}
	}
	return nil
}

// parseAliasRecord handles ALIAS: [alias type, aliasee val#, linkage,
// visibility?].
func (r *Reader) parseAliasRecord(record []uint64) error {
	if len(record) < 3 {
		return fmt.Errorf("ALIAS: %w", ErrInvalidRecord)
	}
	ty := r.typeByID(record[0])
	if ty == nil {
		return fmt.Errorf("ALIAS type %d: %w", record[0], ErrInvalidRecord)
	}
	if ty.Kind != ir.PointerKind {
		return fmt.Errorf("ALIAS of non-pointer type %s: %w", ty, ErrInvalidTypeForValue)
	}
	ga := ir.NewAlias(r.module, ty, decodeLinkage(record[2]), "")
	if len(record) > 3 {
		ga.Visibility = decodeVisibility(record[3])
	}
	r.values.push(ga)
	r.aliasInits = append(r.aliasInits, aliasInitRef{alias: ga, id: int(record[1])})
	return nil
}

// rememberAndSkipFunctionBody records the stream position of a FUNCTION
// subblock against the next pending prototype and skips the block.
func (r *Reader) rememberAndSkipFunctionBody() error {
	if len(r.functionsWithBodies) == 0 {
		return fmt.Errorf("function body without prototype: %w", ErrInsufficientFunctionProtos)
	}
	fn := r.functionsWithBodies[len(r.functionsWithBodies)-1]
	r.functionsWithBodies = r.functionsWithBodies[:len(r.functionsWithBodies)-1]

	r.deferredFunctionInfo[fn] = r.cursor.BitPos()

	if err := r.cursor.SkipBlock(); err != nil {
		return fmt.Errorf("skipping function body: %w", ErrInvalidRecord)
	}
	return nil
}

// resolveGlobalAndAliasInits binds every pending initializer whose value is
// already in the table; later references stay pending.
func (r *Reader) resolveGlobalAndAliasInits() error {
	globalWork := r.globalInits
	aliasWork := r.aliasInits
	r.globalInits = nil
	r.aliasInits = nil

	for _, ref := range globalWork {
		if ref.id >= r.values.size() {
			r.globalInits = append(r.globalInits, ref)
			continue
		}
		c, ok := r.values.at(ref.id).(ir.Constant)
		if !ok {
			return fmt.Errorf("global initializer slot %d: %w", ref.id, ErrExpectedConstant)
		}
		ref.gv.SetInitializer(c)
	}

	// Aliases may target other aliases; collect the expressions first and
	// chase the underlying objects afterwards.
	aliasTargets := make(map[*ir.Alias]ir.Constant)
	for _, ref := range aliasWork {
		if ref.id >= r.values.size() {
			r.aliasInits = append(r.aliasInits, ref)
			continue
		}
		c, ok := r.values.at(ref.id).(ir.Constant)
		if !ok {
			return fmt.Errorf("alias target slot %d: %w", ref.id, ErrExpectedConstant)
		}
		aliasTargets[ref.alias] = c
	}
	for alias, target := range aliasTargets {
		obj, err := globalObjectInExpr(aliasTargets, target)
		if err != nil {
			return err
		}
		alias.SetAliasee(obj)
	}
	return nil
}

// globalObjectInExpr walks through aliases and through bitcast and
// all-zero-index element-pointer expressions to the underlying global
// object. Any other expression, an address-space cast included, is
// rejected.
func globalObjectInExpr(aliases map[*ir.Alias]ir.Constant, c ir.Constant) (ir.Constant, error) {
	switch v := c.(type) {
	case *ir.GlobalVariable, *ir.Function:
		return c, nil
	case *ir.Alias:
		next, ok := aliases[v]
		if !ok {
			return nil, fmt.Errorf("alias target not recorded: %w", ErrMalformedGlobalInitializerSet)
		}
		return globalObjectInExpr(aliases, next)
	case *ir.ConstantExpr:
		switch v.Op {
		case ir.OpBitCast, ir.OpGetElementPtr:
			if v.Op == ir.OpGetElementPtr {
				for _, idx := range v.Operands()[1:] {
					ci, isInt := idx.(*ir.ConstantInt)
					_, isNull := idx.(*ir.ConstantZero)
					if !isNull && (!isInt || !ci.IsZero()) {
						return nil, fmt.Errorf("alias through non-zero element-pointer index: %w", ErrMalformedGlobalInitializerSet)
					}
				}
			}
			inner, ok := v.Operands()[0].(ir.Constant)
			if !ok {
				return nil, fmt.Errorf("alias expression operand: %w", ErrExpectedConstant)
			}
			return globalObjectInExpr(aliases, inner)
		}
	}
	return nil, fmt.Errorf("alias through unsupported expression: %w", ErrMalformedGlobalInitializerSet)
}

// globalCleanup runs once all module-level values exist: initializers are
// bound, legacy intrinsics discovered, and renamed globals fixed up.
func (r *Reader) globalCleanup() error {
	if err := r.resolveGlobalAndAliasInits(); err != nil {
		return err
	}
	if len(r.globalInits) > 0 || len(r.aliasInits) > 0 {
		return fmt.Errorf("%d initializers unresolved at module end: %w",
			len(r.globalInits)+len(r.aliasInits), ErrMalformedGlobalInitializerSet)
	}

	// The discovery half runs once: the block end revisits this path after
	// the first function body already triggered it.
	if r.didGlobalCleanup {
		return nil
	}
	r.didGlobalCleanup = true

	for _, fn := range r.module.Funcs {
		if newFn, upgraded := upgradeIntrinsicFunction(r.module, fn); upgraded {
			r.upgradedIntrinsics = append(r.upgradedIntrinsics, intrinsicPair{old: fn, new: newFn})
		}
	}
	for _, gv := range r.module.Globals {
		upgradeGlobalVariable(gv)
	}

	r.globalInits = nil
	r.aliasInits = nil
	return nil
}
