package bcread

import (
	"fmt"

	"fortio.org/safecast"

	"bcread/internal/bcwire"
	"bcread/internal/ir"
)

// basicBlock returns block id of the function being parsed, or nil.
func (r *Reader) basicBlock(id uint64) *ir.BasicBlock {
	if id >= uint64(len(r.functionBBs)) {
		return nil
	}
	return r.functionBBs[id]
}

// fnValueByID resolves a function-local value reference, creating a typed
// placeholder for forward references.
func (r *Reader) fnValueByID(id int, ty *ir.Type) (ir.Value, error) {
	return r.values.valueFwdRef(id, ty)
}

// valueTypePair reads a value reference at *idx. A reference at or past
// nextValueNo is a forward reference and carries its type ID in the
// following operand.
func (r *Reader) valueTypePair(record []uint64, idx *int, nextValueNo int) (ir.Value, error) {
	if *idx >= len(record) {
		return nil, fmt.Errorf("truncated value reference: %w", ErrInvalidRecord)
	}
	valNo, err := safecast.Conv[int](record[*idx])
	if err != nil {
		return nil, fmt.Errorf("value reference %d: %w", record[*idx], ErrInvalidRecord)
	}
	*idx++
	if valNo < nextValueNo {
		// Already-defined value; the type is implied.
		return r.fnValueByID(valNo, nil)
	}
	if *idx >= len(record) {
		return nil, fmt.Errorf("forward reference without type: %w", ErrInvalidRecord)
	}
	ty := r.typeByID(record[*idx])
	if ty == nil {
		return nil, fmt.Errorf("forward reference type %d: %w", record[*idx], ErrInvalidRecord)
	}
	*idx++
	return r.fnValueByID(valNo, ty)
}

// getValue reads a value reference at *idx whose type is known from
// context.
func (r *Reader) getValue(record []uint64, idx *int, ty *ir.Type) (ir.Value, error) {
	if *idx >= len(record) {
		return nil, fmt.Errorf("truncated value reference: %w", ErrInvalidRecord)
	}
	valNo, err := safecast.Conv[int](record[*idx])
	if err != nil {
		return nil, fmt.Errorf("value reference %d: %w", record[*idx], ErrInvalidRecord)
	}
	*idx++
	return r.fnValueByID(valNo, ty)
}

// lastInstruction returns the most recently emitted instruction, for the
// debug-location records.
func (r *Reader) lastInstruction(curBB *ir.BasicBlock, curBBNo int) *ir.Instruction {
	if curBB != nil && !curBB.Empty() {
		return curBB.Last()
	}
	if curBBNo > 0 && curBBNo-1 < len(r.functionBBs) {
		if prev := r.functionBBs[curBBNo-1]; prev != nil && !prev.Empty() {
			return prev.Last()
		}
	}
	return nil
}

// parseFunctionBody reads one FUNCTION block into fn. The value and
// metadata tables grow by the function-local values and shrink back on
// exit; basic blocks live only for the duration of the call.
func (r *Reader) parseFunctionBody(fn *ir.Function) error {
	if err := r.cursor.EnterSubBlock(bcwire.FunctionBlockID); err != nil {
		return fmt.Errorf("FUNCTION block: %w", ErrInvalidRecord)
	}

	r.instList = r.instList[:0]
	moduleValueListSize := r.values.size()
	moduleMDValueListSize := r.mdValues.size()

	for _, arg := range fn.Params {
		r.values.push(arg)
	}
	nextValueNo := r.values.size()

	var curBB *ir.BasicBlock
	curBBNo := 0
	var lastLoc *ir.DebugLoc

	var record []uint64
	for {
		code, err := r.cursor.ReadCode()
		if err != nil {
			return fmt.Errorf("FUNCTION block: %w", ErrMalformedBlock)
		}
		if code == bcwire.EndBlock {
			if err := r.cursor.ReadBlockEnd(); err != nil {
				return fmt.Errorf("FUNCTION block end: %w", ErrMalformedBlock)
			}
			break
		}
		if code == bcwire.EnterSubBlock {
			id, err := r.cursor.ReadSubBlockID()
			if err != nil {
				return fmt.Errorf("FUNCTION block: %w", ErrMalformedBlock)
			}
			switch id {
			default:
				if err := r.cursor.SkipBlock(); err != nil {
					return fmt.Errorf("skipping block %d: %w", id, ErrInvalidRecord)
				}
			case bcwire.ConstantsBlockID:
				if err := r.parseConstants(); err != nil {
					return err
				}
				nextValueNo = r.values.size()
			case bcwire.ValueSymtabBlockID:
				if err := r.parseValueSymbolTable(); err != nil {
					return err
				}
			case bcwire.MetadataAttachmentBlockID:
				if err := r.parseMetadataAttachment(); err != nil {
					return err
				}
			case bcwire.MetadataBlockID:
				if err := r.parseMetadata(); err != nil {
					return err
				}
			}
			continue
		}
		if code == bcwire.DefineAbbrev {
			if err := r.cursor.ReadAbbrevRecord(); err != nil {
				return fmt.Errorf("FUNCTION block: %w", ErrMalformedBlock)
			}
			continue
		}

		record = record[:0]
		bitCode, rec, err := r.cursor.ReadRecord(code, record)
		if err != nil {
			return fmt.Errorf("FUNCTION record: %w", ErrMalformedBlock)
		}
		record = rec

		var inst *ir.Instruction
		switch bitCode {
		default:
			return fmt.Errorf("function code %d: %w", bitCode, ErrInvalidValue)

		case bcwire.FuncCodeDeclareBlocks:
			if len(record) < 1 || record[0] == 0 {
				return fmt.Errorf("DECLAREBLOCKS: %w", ErrInvalidRecord)
			}
			n, err := safecast.Conv[int](record[0])
			if err != nil {
				return fmt.Errorf("DECLAREBLOCKS %d: %w", record[0], ErrInvalidRecord)
			}
			r.functionBBs = make([]*ir.BasicBlock, n)
			for i := range r.functionBBs {
				r.functionBBs[i] = ir.NewBasicBlock(r.ctx, fn)
			}
			curBB = r.functionBBs[0]
			continue

		case bcwire.FuncCodeDebugLocAgain:
			last := r.lastInstruction(curBB, curBBNo)
			if last == nil {
				return fmt.Errorf("DEBUG_LOC_AGAIN without instruction: %w", ErrInvalidRecord)
			}
			last.DebugLoc = lastLoc
			continue

		case bcwire.FuncCodeDebugLoc:
			last := r.lastInstruction(curBB, curBBNo)
			if last == nil || len(record) < 4 {
				return fmt.Errorf("DEBUG_LOC: %w", ErrInvalidRecord)
			}
			loc := &ir.DebugLoc{Line: uint32(record[0]), Col: uint32(record[1])}
			if scopeID := record[2]; scopeID != 0 {
				scope, ok := r.mdValues.valueFwdRef(int(scopeID - 1)).(*ir.MDNode)
				if !ok {
					return fmt.Errorf("DEBUG_LOC scope: %w", ErrInvalidRecord)
				}
				loc.Scope = scope
			}
			if iaID := record[3]; iaID != 0 {
				ia, ok := r.mdValues.valueFwdRef(int(iaID - 1)).(*ir.MDNode)
				if !ok {
					return fmt.Errorf("DEBUG_LOC inlined-at: %w", ErrInvalidRecord)
				}
				loc.InlinedAt = ia
			}
			lastLoc = loc
			last.DebugLoc = loc
			continue

		case bcwire.FuncCodeInstBinOp:
			idx := 0
			lhs, err := r.valueTypePair(record, &idx, nextValueNo)
			if err != nil {
				return err
			}
			rhs, err := r.getValue(record, &idx, lhs.Type())
			if err != nil {
				return err
			}
			if idx >= len(record) {
				return fmt.Errorf("BINOP missing opcode: %w", ErrInvalidRecord)
			}
			op, ok := decodeBinaryOpcode(record[idx], lhs.Type())
			if !ok {
				return fmt.Errorf("binop code %d: %w", record[idx], ErrInvalidRecord)
			}
			idx++
			inst = ir.NewInstruction(op, lhs.Type(), lhs, rhs)
			if idx < len(record) {
				switch op {
				case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpShl:
					inst.NSW = record[idx]&(1<<bcwire.OBONoSignedWrap) != 0
					inst.NUW = record[idx]&(1<<bcwire.OBONoUnsignedWrap) != 0
				case ir.OpSDiv, ir.OpUDiv, ir.OpLShr, ir.OpAShr:
					inst.Exact = record[idx]&(1<<bcwire.PEOExact) != 0
				}
			}

		case bcwire.FuncCodeInstCast:
			idx := 0
			op, err := r.valueTypePair(record, &idx, nextValueNo)
			if err != nil {
				return err
			}
			if idx+2 != len(record) {
				return fmt.Errorf("CAST shape: %w", ErrInvalidRecord)
			}
			resTy := r.typeByID(record[idx])
			opc, ok := decodeCastOpcode(record[idx+1])
			if resTy == nil || !ok {
				return fmt.Errorf("CAST operands: %w", ErrInvalidRecord)
			}
			inst = ir.NewInstruction(opc, resTy, op)

		case bcwire.FuncCodeInstGEP, bcwire.FuncCodeInstInboundsGEP:
			idx := 0
			base, err := r.valueTypePair(record, &idx, nextValueNo)
			if err != nil {
				return err
			}
			ops := []ir.Value{base}
			for idx != len(record) {
				op, err := r.valueTypePair(record, &idx, nextValueNo)
				if err != nil {
					return err
				}
				ops = append(ops, op)
			}
			if base.Type().Kind != ir.PointerKind {
				return fmt.Errorf("GEP of non-pointer %s: %w", base.Type(), ErrInvalidTypeForValue)
			}
			resTy := r.ctx.GEPResultType(base.Type(), ops[1:])
			inst = ir.NewInstruction(ir.OpGetElementPtr, resTy, ops...)
			inst.InBounds = bitCode == bcwire.FuncCodeInstInboundsGEP

		case bcwire.FuncCodeInstExtractVal:
			idx := 0
			agg, err := r.valueTypePair(record, &idx, nextValueNo)
			if err != nil {
				return err
			}
			indices, resTy, err := r.aggregateIndices(record, idx, agg.Type())
			if err != nil {
				return err
			}
			inst = ir.NewInstruction(ir.OpExtractValue, resTy, agg)
			inst.Indices = indices

		case bcwire.FuncCodeInstInsertVal:
			idx := 0
			agg, err := r.valueTypePair(record, &idx, nextValueNo)
			if err != nil {
				return err
			}
			val, err := r.valueTypePair(record, &idx, nextValueNo)
			if err != nil {
				return err
			}
			indices, _, err := r.aggregateIndices(record, idx, agg.Type())
			if err != nil {
				return err
			}
			inst = ir.NewInstruction(ir.OpInsertValue, agg.Type(), agg, val)
			inst.Indices = indices

		case bcwire.FuncCodeInstSelect:
			// The obsolete scalar-condition form.
			idx := 0
			tv, err := r.valueTypePair(record, &idx, nextValueNo)
			if err != nil {
				return err
			}
			fv, err := r.getValue(record, &idx, tv.Type())
			if err != nil {
				return err
			}
			cond, err := r.getValue(record, &idx, r.ctx.Int1())
			if err != nil {
				return err
			}
			inst = ir.NewInstruction(ir.OpSelect, tv.Type(), cond, tv, fv)

		case bcwire.FuncCodeInstVSelect:
			idx := 0
			tv, err := r.valueTypePair(record, &idx, nextValueNo)
			if err != nil {
				return err
			}
			fv, err := r.getValue(record, &idx, tv.Type())
			if err != nil {
				return err
			}
			cond, err := r.valueTypePair(record, &idx, nextValueNo)
			if err != nil {
				return err
			}
			condTy := cond.Type()
			if condTy.Kind == ir.VectorKind {
				if condTy.Elem != r.ctx.Int1() {
					return fmt.Errorf("vector select condition %s: %w", condTy, ErrInvalidTypeForValue)
				}
			} else if condTy != r.ctx.Int1() {
				return fmt.Errorf("select condition %s: %w", condTy, ErrInvalidTypeForValue)
			}
			inst = ir.NewInstruction(ir.OpSelect, tv.Type(), cond, tv, fv)

		case bcwire.FuncCodeInstExtractElt:
			idx := 0
			vec, err := r.valueTypePair(record, &idx, nextValueNo)
			if err != nil {
				return err
			}
			eltIdx, err := r.getValue(record, &idx, r.ctx.Int32())
			if err != nil {
				return err
			}
			if vec.Type().Kind != ir.VectorKind {
				return fmt.Errorf("EXTRACTELT of %s: %w", vec.Type(), ErrInvalidTypeForValue)
			}
			inst = ir.NewInstruction(ir.OpExtractElement, vec.Type().Elem, vec, eltIdx)

		case bcwire.FuncCodeInstInsertElt:
			idx := 0
			vec, err := r.valueTypePair(record, &idx, nextValueNo)
			if err != nil {
				return err
			}
			if vec.Type().Kind != ir.VectorKind {
				return fmt.Errorf("INSERTELT of %s: %w", vec.Type(), ErrInvalidTypeForValue)
			}
			elt, err := r.getValue(record, &idx, vec.Type().Elem)
			if err != nil {
				return err
			}
			eltIdx, err := r.getValue(record, &idx, r.ctx.Int32())
			if err != nil {
				return err
			}
			inst = ir.NewInstruction(ir.OpInsertElement, vec.Type(), vec, elt, eltIdx)

		case bcwire.FuncCodeInstShuffleVec:
			idx := 0
			v1, err := r.valueTypePair(record, &idx, nextValueNo)
			if err != nil {
				return err
			}
			v2, err := r.getValue(record, &idx, v1.Type())
			if err != nil {
				return err
			}
			mask, err := r.valueTypePair(record, &idx, nextValueNo)
			if err != nil {
				return err
			}
			if v1.Type().Kind != ir.VectorKind || mask.Type().Kind != ir.VectorKind {
				return fmt.Errorf("SHUFFLEVEC operands: %w", ErrInvalidTypeForValue)
			}
			resTy := r.ctx.Vector(v1.Type().Elem, mask.Type().Len)
			inst = ir.NewInstruction(ir.OpShuffleVector, resTy, v1, v2, mask)

		case bcwire.FuncCodeInstCmp, bcwire.FuncCodeInstCmp2:
			idx := 0
			lhs, err := r.valueTypePair(record, &idx, nextValueNo)
			if err != nil {
				return err
			}
			rhs, err := r.getValue(record, &idx, lhs.Type())
			if err != nil {
				return err
			}
			if idx+1 != len(record) {
				return fmt.Errorf("CMP shape: %w", ErrInvalidRecord)
			}
			op := ir.OpICmp
			if lhs.Type().IsFPOrFPVector() {
				op = ir.OpFCmp
			}
			resTy := r.ctx.Int1()
			if lhs.Type().Kind == ir.VectorKind {
				resTy = r.ctx.Vector(resTy, lhs.Type().Len)
			}
			inst = ir.NewInstruction(op, resTy, lhs, rhs)
			inst.Pred = ir.Predicate(record[idx])

		case bcwire.FuncCodeInstRet:
			if len(record) == 0 {
				inst = ir.NewInstruction(ir.OpRet, r.ctx.Void())
				break
			}
			idx := 0
			op, err := r.valueTypePair(record, &idx, nextValueNo)
			if err != nil {
				return err
			}
			if idx != len(record) {
				return fmt.Errorf("RET shape: %w", ErrInvalidRecord)
			}
			inst = ir.NewInstruction(ir.OpRet, r.ctx.Void(), op)

		case bcwire.FuncCodeInstBr:
			if len(record) != 1 && len(record) != 3 {
				return fmt.Errorf("BR shape: %w", ErrInvalidRecord)
			}
			trueDest := r.basicBlock(record[0])
			if trueDest == nil {
				return fmt.Errorf("BR target %d: %w", record[0], ErrInvalidRecord)
			}
			if len(record) == 1 {
				inst = ir.NewInstruction(ir.OpBr, r.ctx.Void())
				inst.Succs = []*ir.BasicBlock{trueDest}
			} else {
				falseDest := r.basicBlock(record[1])
				if falseDest == nil {
					return fmt.Errorf("BR target %d: %w", record[1], ErrInvalidRecord)
				}
				cond, err := r.fnValueByID(int(record[2]), r.ctx.Int1())
				if err != nil {
					return err
				}
				inst = ir.NewInstruction(ir.OpBr, r.ctx.Void(), cond)
				inst.Succs = []*ir.BasicBlock{trueDest, falseDest}
			}

		case bcwire.FuncCodeInstSwitch:
			if len(record) < 3 || len(record)%2 == 0 {
				return fmt.Errorf("SWITCH shape: %w", ErrInvalidRecord)
			}
			opTy := r.typeByID(record[0])
			if opTy == nil {
				return fmt.Errorf("SWITCH type %d: %w", record[0], ErrInvalidRecord)
			}
			cond, err := r.fnValueByID(int(record[1]), opTy)
			if err != nil {
				return err
			}
			defaultDest := r.basicBlock(record[2])
			if defaultDest == nil {
				return fmt.Errorf("SWITCH default %d: %w", record[2], ErrInvalidRecord)
			}
			numCases := (len(record) - 3) / 2
			ops := []ir.Value{cond}
			succs := []*ir.BasicBlock{defaultDest}
			for i := 0; i < numCases; i++ {
				caseVal, err := r.fnValueByID(int(record[3+i*2]), opTy)
				if err != nil {
					return err
				}
				if _, ok := caseVal.(*ir.ConstantInt); !ok {
					return fmt.Errorf("SWITCH case %d not an integer constant: %w", i, ErrInvalidRecord)
				}
				dest := r.basicBlock(record[4+i*2])
				if dest == nil {
					return fmt.Errorf("SWITCH case target %d: %w", record[4+i*2], ErrInvalidRecord)
				}
				ops = append(ops, caseVal)
				succs = append(succs, dest)
			}
			inst = ir.NewInstruction(ir.OpSwitch, r.ctx.Void(), ops...)
			inst.Succs = succs

		case bcwire.FuncCodeInstIndirectBr:
			if len(record) < 2 {
				return fmt.Errorf("INDIRECTBR shape: %w", ErrInvalidRecord)
			}
			opTy := r.typeByID(record[0])
			if opTy == nil {
				return fmt.Errorf("INDIRECTBR type %d: %w", record[0], ErrInvalidRecord)
			}
			addr, err := r.fnValueByID(int(record[1]), opTy)
			if err != nil {
				return err
			}
			var succs []*ir.BasicBlock
			for _, bbID := range record[2:] {
				dest := r.basicBlock(bbID)
				if dest == nil {
					return fmt.Errorf("INDIRECTBR target %d: %w", bbID, ErrInvalidRecord)
				}
				succs = append(succs, dest)
			}
			inst = ir.NewInstruction(ir.OpIndirectBr, r.ctx.Void(), addr)
			inst.Succs = succs

		case bcwire.FuncCodeInstInvoke:
			if len(record) < 4 {
				return fmt.Errorf("INVOKE shape: %w", ErrInvalidRecord)
			}
			attrs := r.attributesAt(record[0])
			ccInfo := record[1]
			normalBB := r.basicBlock(record[2])
			unwindBB := r.basicBlock(record[3])
			idx := 4
			callee, err := r.valueTypePair(record, &idx, nextValueNo)
			if err != nil {
				return err
			}
			calleeTy := callee.Type()
			if normalBB == nil || unwindBB == nil || calleeTy.Kind != ir.PointerKind ||
				calleeTy.Elem.Kind != ir.FunctionKind {
				return fmt.Errorf("INVOKE operands: %w", ErrInvalidRecord)
			}
			sig := calleeTy.Elem
			if len(record) < idx+len(sig.Params) {
				return fmt.Errorf("INVOKE arity: %w", ErrInvalidRecord)
			}
			ops := []ir.Value{callee}
			for _, paramTy := range sig.Params {
				arg, err := r.getValue(record, &idx, paramTy)
				if err != nil {
					return err
				}
				ops = append(ops, arg)
			}
			if !sig.VarArg {
				if idx != len(record) {
					return fmt.Errorf("INVOKE arity: %w", ErrInvalidRecord)
				}
			} else {
				for idx != len(record) {
					arg, err := r.valueTypePair(record, &idx, nextValueNo)
					if err != nil {
						return err
					}
					ops = append(ops, arg)
				}
			}
			inst = ir.NewInstruction(ir.OpInvoke, sig.Return, ops...)
			inst.Succs = []*ir.BasicBlock{normalBB, unwindBB}
			inst.CallConv = ccInfo
			inst.Attrs = attrs

		case bcwire.FuncCodeInstResume:
			idx := 0
			val, err := r.valueTypePair(record, &idx, nextValueNo)
			if err != nil {
				return err
			}
			inst = ir.NewInstruction(ir.OpResume, r.ctx.Void(), val)

		case bcwire.FuncCodeInstUnwindOld:
			// The removed stack-unwind terminator: rebuilt as a cleanup
			// landing pad that immediately resumes.
			if curBB == nil {
				return fmt.Errorf("unwind outside block: %w", ErrInvalidInstructionWithNoBB)
			}
			lp := r.upgradeUnwindTerminator(fn, curBB)
			inst = ir.NewInstruction(ir.OpResume, r.ctx.Void(), lp)

		case bcwire.FuncCodeInstUnreachable:
			inst = ir.NewInstruction(ir.OpUnreachable, r.ctx.Void())

		case bcwire.FuncCodeInstPhi:
			if len(record) < 1 || (len(record)-1)%2 != 0 {
				return fmt.Errorf("PHI shape: %w", ErrInvalidRecord)
			}
			ty := r.typeByID(record[0])
			if ty == nil {
				return fmt.Errorf("PHI type %d: %w", record[0], ErrInvalidRecord)
			}
			n := (len(record) - 1) / 2
			ops := make([]ir.Value, 0, n)
			incoming := make([]*ir.BasicBlock, 0, n)
			for i := 0; i < n; i++ {
				v, err := r.fnValueByID(int(record[1+i*2]), ty)
				if err != nil {
					return err
				}
				bb := r.basicBlock(record[2+i*2])
				if bb == nil {
					return fmt.Errorf("PHI incoming block %d: %w", record[2+i*2], ErrInvalidRecord)
				}
				ops = append(ops, v)
				incoming = append(incoming, bb)
			}
			inst = ir.NewInstruction(ir.OpPhi, ty, ops...)
			inst.Incoming = incoming

		case bcwire.FuncCodeInstLandingPad:
			if len(record) < 4 {
				return fmt.Errorf("LANDINGPAD shape: %w", ErrInvalidRecord)
			}
			idx := 0
			ty := r.typeByID(record[idx])
			if ty == nil {
				return fmt.Errorf("LANDINGPAD type %d: %w", record[idx], ErrInvalidRecord)
			}
			idx++
			persFn, err := r.valueTypePair(record, &idx, nextValueNo)
			if err != nil {
				return err
			}
			isCleanup := record[idx] != 0
			idx++
			numClauses, err := safecast.Conv[int](record[idx])
			if err != nil {
				return fmt.Errorf("LANDINGPAD clause count: %w", ErrInvalidRecord)
			}
			idx++
			clauses := make([]ir.Clause, 0, numClauses)
			for j := 0; j < numClauses; j++ {
				if idx >= len(record) {
					return fmt.Errorf("LANDINGPAD clause %d: %w", j, ErrInvalidRecord)
				}
				kind := ir.ClauseKind(record[idx])
				idx++
				val, err := r.valueTypePair(record, &idx, nextValueNo)
				if err != nil {
					return err
				}
				c, ok := val.(ir.Constant)
				if !ok {
					return fmt.Errorf("LANDINGPAD clause %d value: %w", j, ErrExpectedConstant)
				}
				clauses = append(clauses, ir.Clause{Kind: kind, Value: c})
			}
			inst = ir.NewInstruction(ir.OpLandingPad, ty, persFn)
			inst.PersonalityFn = persFn
			inst.Cleanup = isCleanup
			inst.Clauses = clauses

		case bcwire.FuncCodeInstAlloca:
			if len(record) != 4 {
				return fmt.Errorf("ALLOCA shape: %w", ErrInvalidRecord)
			}
			instTy := r.typeByID(record[0])
			opTy := r.typeByID(record[1])
			if instTy == nil || instTy.Kind != ir.PointerKind || opTy == nil {
				return fmt.Errorf("ALLOCA types: %w", ErrInvalidRecord)
			}
			size, err := r.fnValueByID(int(record[2]), opTy)
			if err != nil {
				return err
			}
			inst = ir.NewInstruction(ir.OpAlloca, r.ctx.Pointer(instTy.Elem, 0), size)
			inst.AllocatedType = instTy.Elem
			inst.Align = decodeAlignment(record[3])

		case bcwire.FuncCodeInstLoad:
			idx := 0
			ptr, err := r.valueTypePair(record, &idx, nextValueNo)
			if err != nil {
				return err
			}
			if idx+2 != len(record) || ptr.Type().Kind != ir.PointerKind {
				return fmt.Errorf("LOAD shape: %w", ErrInvalidRecord)
			}
			inst = ir.NewInstruction(ir.OpLoad, ptr.Type().Elem, ptr)
			inst.Align = decodeAlignment(record[idx])
			inst.Volatile = record[idx+1] != 0

		case bcwire.FuncCodeInstLoadAtomic:
			idx := 0
			ptr, err := r.valueTypePair(record, &idx, nextValueNo)
			if err != nil {
				return err
			}
			if idx+4 != len(record) || ptr.Type().Kind != ir.PointerKind {
				return fmt.Errorf("LOADATOMIC shape: %w", ErrInvalidRecord)
			}
			ordering := decodeOrdering(record[idx+2])
			if ordering == ir.NotAtomic || ordering == ir.Release || ordering == ir.AcquireRelease {
				return fmt.Errorf("atomic load ordering %d: %w", record[idx+2], ErrInvalidRecord)
			}
			if record[idx] == 0 {
				return fmt.Errorf("atomic load without alignment: %w", ErrInvalidRecord)
			}
			inst = ir.NewInstruction(ir.OpLoad, ptr.Type().Elem, ptr)
			inst.Align = decodeAlignment(record[idx])
			inst.Volatile = record[idx+1] != 0
			inst.Ordering = ordering
			inst.Scope = decodeSynchScope(record[idx+3])

		case bcwire.FuncCodeInstStore:
			idx := 0
			ptr, err := r.valueTypePair(record, &idx, nextValueNo)
			if err != nil {
				return err
			}
			if ptr.Type().Kind != ir.PointerKind {
				return fmt.Errorf("STORE to non-pointer: %w", ErrInvalidTypeForValue)
			}
			val, err := r.getValue(record, &idx, ptr.Type().Elem)
			if err != nil {
				return err
			}
			if idx+2 != len(record) {
				return fmt.Errorf("STORE shape: %w", ErrInvalidRecord)
			}
			inst = ir.NewInstruction(ir.OpStore, r.ctx.Void(), val, ptr)
			inst.Align = decodeAlignment(record[idx])
			inst.Volatile = record[idx+1] != 0

		case bcwire.FuncCodeInstStoreAtomic:
			idx := 0
			ptr, err := r.valueTypePair(record, &idx, nextValueNo)
			if err != nil {
				return err
			}
			if ptr.Type().Kind != ir.PointerKind {
				return fmt.Errorf("STOREATOMIC to non-pointer: %w", ErrInvalidTypeForValue)
			}
			val, err := r.getValue(record, &idx, ptr.Type().Elem)
			if err != nil {
				return err
			}
			if idx+4 != len(record) {
				return fmt.Errorf("STOREATOMIC shape: %w", ErrInvalidRecord)
			}
			ordering := decodeOrdering(record[idx+2])
			if ordering == ir.NotAtomic || ordering == ir.Acquire || ordering == ir.AcquireRelease {
				return fmt.Errorf("atomic store ordering %d: %w", record[idx+2], ErrInvalidRecord)
			}
			if record[idx] == 0 {
				return fmt.Errorf("atomic store without alignment: %w", ErrInvalidRecord)
			}
			inst = ir.NewInstruction(ir.OpStore, r.ctx.Void(), val, ptr)
			inst.Align = decodeAlignment(record[idx])
			inst.Volatile = record[idx+1] != 0
			inst.Ordering = ordering
			inst.Scope = decodeSynchScope(record[idx+3])

		case bcwire.FuncCodeInstCmpXchg:
			idx := 0
			ptr, err := r.valueTypePair(record, &idx, nextValueNo)
			if err != nil {
				return err
			}
			if ptr.Type().Kind != ir.PointerKind {
				return fmt.Errorf("CMPXCHG of non-pointer: %w", ErrInvalidTypeForValue)
			}
			cmp, err := r.getValue(record, &idx, ptr.Type().Elem)
			if err != nil {
				return err
			}
			newVal, err := r.getValue(record, &idx, ptr.Type().Elem)
			if err != nil {
				return err
			}
			if idx+3 != len(record) {
				return fmt.Errorf("CMPXCHG shape: %w", ErrInvalidRecord)
			}
			ordering := decodeOrdering(record[idx+1])
			if ordering == ir.NotAtomic || ordering == ir.Unordered {
				return fmt.Errorf("cmpxchg ordering %d: %w", record[idx+1], ErrInvalidRecord)
			}
			inst = ir.NewInstruction(ir.OpCmpXchg, ptr.Type().Elem, ptr, cmp, newVal)
			inst.Volatile = record[idx] != 0
			inst.Ordering = ordering
			inst.Scope = decodeSynchScope(record[idx+2])

		case bcwire.FuncCodeInstAtomicRMW:
			idx := 0
			ptr, err := r.valueTypePair(record, &idx, nextValueNo)
			if err != nil {
				return err
			}
			if ptr.Type().Kind != ir.PointerKind {
				return fmt.Errorf("ATOMICRMW of non-pointer: %w", ErrInvalidTypeForValue)
			}
			val, err := r.getValue(record, &idx, ptr.Type().Elem)
			if err != nil {
				return err
			}
			if idx+4 != len(record) {
				return fmt.Errorf("ATOMICRMW shape: %w", ErrInvalidRecord)
			}
			rmwOp, ok := decodeRMWOperation(record[idx])
			if !ok {
				return fmt.Errorf("atomicrmw operation %d: %w", record[idx], ErrInvalidRecord)
			}
			ordering := decodeOrdering(record[idx+2])
			if ordering == ir.NotAtomic || ordering == ir.Unordered {
				return fmt.Errorf("atomicrmw ordering %d: %w", record[idx+2], ErrInvalidRecord)
			}
			inst = ir.NewInstruction(ir.OpAtomicRMW, ptr.Type().Elem, ptr, val)
			inst.RMW = rmwOp
			inst.Volatile = record[idx+1] != 0
			inst.Ordering = ordering
			inst.Scope = decodeSynchScope(record[idx+3])

		case bcwire.FuncCodeInstFence:
			if len(record) != 2 {
				return fmt.Errorf("FENCE shape: %w", ErrInvalidRecord)
			}
			ordering := decodeOrdering(record[0])
			if ordering == ir.NotAtomic || ordering == ir.Unordered || ordering == ir.Monotonic {
				return fmt.Errorf("fence ordering %d: %w", record[0], ErrInvalidRecord)
			}
			inst = ir.NewInstruction(ir.OpFence, r.ctx.Void())
			inst.Ordering = ordering
			inst.Scope = decodeSynchScope(record[1])

		case bcwire.FuncCodeInstCall:
			if len(record) < 3 {
				return fmt.Errorf("CALL shape: %w", ErrInvalidRecord)
			}
			attrs := r.attributesAt(record[0])
			ccInfo := record[1]
			idx := 2
			callee, err := r.valueTypePair(record, &idx, nextValueNo)
			if err != nil {
				return err
			}
			calleeTy := callee.Type()
			if calleeTy.Kind != ir.PointerKind || calleeTy.Elem.Kind != ir.FunctionKind {
				return fmt.Errorf("CALL callee of type %s: %w", calleeTy, ErrInvalidRecord)
			}
			sig := calleeTy.Elem
			if len(record) < idx+len(sig.Params) {
				return fmt.Errorf("CALL arity: %w", ErrInvalidRecord)
			}
			ops := []ir.Value{callee}
			for _, paramTy := range sig.Params {
				// Label parameters reference basic blocks directly.
				if paramTy.Kind == ir.LabelKind {
					bb := r.basicBlock(record[idx])
					if bb == nil {
						return fmt.Errorf("CALL label argument %d: %w", record[idx], ErrInvalidRecord)
					}
					idx++
					ops = append(ops, bb)
					continue
				}
				arg, err := r.getValue(record, &idx, paramTy)
				if err != nil {
					return err
				}
				ops = append(ops, arg)
			}
			if !sig.VarArg {
				if idx != len(record) {
					return fmt.Errorf("CALL arity: %w", ErrInvalidRecord)
				}
			} else {
				for idx != len(record) {
					arg, err := r.valueTypePair(record, &idx, nextValueNo)
					if err != nil {
						return err
					}
					ops = append(ops, arg)
				}
			}
			inst = ir.NewInstruction(ir.OpCall, sig.Return, ops...)
			inst.CallConv = ccInfo >> 1
			inst.TailCall = ccInfo&1 != 0
			inst.Attrs = attrs

		case bcwire.FuncCodeInstVAArg:
			if len(record) < 3 {
				return fmt.Errorf("VAARG shape: %w", ErrInvalidRecord)
			}
			opTy := r.typeByID(record[0])
			resTy := r.typeByID(record[2])
			if opTy == nil || resTy == nil {
				return fmt.Errorf("VAARG types: %w", ErrInvalidRecord)
			}
			valist, err := r.fnValueByID(int(record[1]), opTy)
			if err != nil {
				return err
			}
			inst = ir.NewInstruction(ir.OpVAArg, resTy, valist)
		}

		// Every instruction lands in the current block; a record outside
		// any block is malformed.
		if curBB == nil {
			return fmt.Errorf("instruction code %d: %w", bitCode, ErrInvalidInstructionWithNoBB)
		}
		curBB.Append(inst)
		r.instList = append(r.instList, inst)

		if inst.IsTerminator() {
			curBBNo++
			if curBBNo < len(r.functionBBs) {
				curBB = r.functionBBs[curBBNo]
			} else {
				curBB = nil
			}
		}

		if inst.Type().Kind != ir.VoidKind {
			r.values.assign(inst, nextValueNo)
			nextValueNo++
		}
	}

	// An unresolved local forward reference shows up as a parentless
	// synthetic argument left in the table.
	if r.values.size() > moduleValueListSize {
		if a, ok := r.values.at(r.values.size() - 1).(*ir.Argument); ok && a.Parent == nil {
			for i := moduleValueListSize; i < r.values.size(); i++ {
				if a, ok := r.values.at(i).(*ir.Argument); ok && a.Parent == nil {
					ir.ReplaceAllUsesWith(a, r.ctx.Undef(a.Type()))
				}
			}
			return fmt.Errorf("function %q: %w", fn.Name(), ErrNeverResolvedValueFoundInFunction)
		}
	}

	// Rewrite any block addresses taken on this function.
	if refs, ok := r.blockAddrFwdRefs[fn]; ok {
		for _, ref := range refs {
			if ref.blockIdx >= uint64(len(r.functionBBs)) {
				return fmt.Errorf("block address of block %d: %w", ref.blockIdx, ErrInvalidID)
			}
			ba := r.ctx.NewBlockAddress(fn, r.functionBBs[ref.blockIdx])
			ir.ReplaceAllUsesWith(ref.fwd, ba)
			// Module-level table slots track the replacement; they are not
			// uses.
			for i := 0; i < r.values.size(); i++ {
				if r.values.at(i) == ir.Value(ref.fwd) {
					r.values.values[i] = ba
				}
			}
			ref.fwd.EraseFromParent()
		}
		delete(r.blockAddrFwdRefs, fn)
	}

	r.values.shrinkTo(moduleValueListSize)
	r.mdValues.shrinkTo(moduleMDValueListSize)
	r.functionBBs = nil
	return nil
}

// aggregateIndices decodes the index tail of an extract/insertvalue record
// and computes the indexed type.
func (r *Reader) aggregateIndices(record []uint64, idx int, aggTy *ir.Type) ([]uint32, *ir.Type, error) {
	indices := make([]uint32, 0, len(record)-idx)
	cur := aggTy
	for ; idx < len(record); idx++ {
		i, err := safecast.Conv[uint32](record[idx])
		if err != nil {
			return nil, nil, fmt.Errorf("aggregate index %d: %w", record[idx], ErrInvalidValue)
		}
		if cur != nil {
			cur = cur.FieldAt(int(i))
		}
		indices = append(indices, i)
	}
	if len(indices) == 0 || cur == nil {
		return nil, nil, fmt.Errorf("aggregate indices: %w", ErrInvalidRecord)
	}
	return indices, cur, nil
}
