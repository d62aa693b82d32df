package bcread

import (
	"fmt"

	"fortio.org/safecast"

	"bcread/internal/bcwire"
	"bcread/internal/bitstream"
	"bcread/internal/ir"
)

// parseConstants reads one CONSTANTS block. Constant records have no type
// operand of their own; they are decoded against the current-type register,
// which SETTYPE records update.
func (r *Reader) parseConstants() error {
	if err := r.cursor.EnterSubBlock(bcwire.ConstantsBlockID); err != nil {
		return fmt.Errorf("CONSTANTS block: %w", ErrInvalidRecord)
	}

	curTy := r.ctx.Int32()
	nextCstNo := r.values.size()

	var record []uint64
	for {
		entry, err := r.cursor.AdvanceSkippingSubblocks()
		if err != nil {
			return fmt.Errorf("CONSTANTS block: %w", ErrMalformedBlock)
		}
		switch entry.Kind {
		case bitstream.EntryEndBlock:
			if nextCstNo != r.values.size() {
				return fmt.Errorf("constants block left %d slots dangling: %w",
					r.values.size()-nextCstNo, ErrInvalidConstantReference)
			}
			r.values.resolveConstantForwardRefs()
			return nil
		case bitstream.EntryRecord:
		}

		record = record[:0]
		code, rec, err := r.cursor.ReadRecord(entry.ID, record)
		if err != nil {
			return fmt.Errorf("CONSTANTS record: %w", ErrMalformedBlock)
		}
		record = rec

		var v ir.Value
		switch code {
		default:
			// Unknown constant codes degrade to undef of the current type.
			v = r.ctx.Undef(curTy)
		case bcwire.CstCodeUndef:
			v = r.ctx.Undef(curTy)
		case bcwire.CstCodeSetType:
			if len(record) < 1 {
				return fmt.Errorf("SETTYPE: %w", ErrInvalidRecord)
			}
			if record[0] >= uint64(len(r.typeList)) || r.typeList[record[0]] == nil {
				return fmt.Errorf("SETTYPE to %d: %w", record[0], ErrInvalidRecord)
			}
			curTy = r.typeList[record[0]]
			continue // no value slot is consumed
		case bcwire.CstCodeNull:
			v = r.ctx.Zero(curTy)
		case bcwire.CstCodeInteger:
			if !curTy.IsInteger() || len(record) == 0 {
				return fmt.Errorf("INTEGER constant: %w", ErrInvalidRecord)
			}
			v = r.ctx.ConstInt(curTy, int64(decodeSignRotatedValue(record[0])))
		case bcwire.CstCodeWideInteger:
			if !curTy.IsInteger() || len(record) == 0 {
				return fmt.Errorf("WIDE_INTEGER constant: %w", ErrInvalidRecord)
			}
			words := make([]uint64, len(record))
			for i, w := range record {
				words[i] = decodeSignRotatedValue(w)
			}
			v = r.ctx.ConstIntWords(curTy, words)
		case bcwire.CstCodeFloat:
			if len(record) == 0 {
				return fmt.Errorf("FLOAT constant: %w", ErrInvalidRecord)
			}
			v = r.floatConstant(curTy, record)
		case bcwire.CstCodeAggregate:
			if len(record) == 0 {
				return fmt.Errorf("AGGREGATE constant: %w", ErrInvalidRecord)
			}
			v, err = r.aggregateConstant(curTy, record)
			if err != nil {
				return err
			}
		case bcwire.CstCodeString, bcwire.CstCodeCString:
			if len(record) == 0 {
				return fmt.Errorf("STRING constant: %w", ErrInvalidRecord)
			}
			if curTy.Kind != ir.ArrayKind {
				return fmt.Errorf("string constant of non-array type %s: %w", curTy, ErrInvalidRecord)
			}
			eltTy := curTy.Elem
			elems := make([]ir.Value, 0, len(record)+1)
			for _, ch := range record {
				elems = append(elems, r.ctx.ConstInt(eltTy, int64(ch)))
			}
			if code == bcwire.CstCodeCString {
				elems = append(elems, r.ctx.Zero(eltTy))
			}
			v = r.ctx.ConstAggregate(curTy, elems)
		case bcwire.CstCodeCEBinOp:
			if len(record) < 3 {
				return fmt.Errorf("CE_BINOP: %w", ErrInvalidRecord)
			}
			op, ok := decodeBinaryOpcode(record[0], curTy)
			if !ok {
				v = r.ctx.Undef(curTy) // unknown binop
				break
			}
			lhs, err := r.values.constantFwdRef(int(record[1]), curTy)
			if err != nil {
				return err
			}
			rhs, err := r.values.constantFwdRef(int(record[2]), curTy)
			if err != nil {
				return err
			}
			var nuw, nsw, exact bool
			if len(record) >= 4 {
				switch op {
				case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpShl:
					nsw = record[3]&(1<<bcwire.OBONoSignedWrap) != 0
					nuw = record[3]&(1<<bcwire.OBONoUnsignedWrap) != 0
				case ir.OpSDiv, ir.OpUDiv, ir.OpLShr, ir.OpAShr:
					exact = record[3]&(1<<bcwire.PEOExact) != 0
				}
			}
			v = r.ctx.ConstExprBinOp(op, lhs, rhs, nuw, nsw, exact)
		case bcwire.CstCodeCECast:
			if len(record) < 3 {
				return fmt.Errorf("CE_CAST: %w", ErrInvalidRecord)
			}
			op, ok := decodeCastOpcode(record[0])
			if !ok {
				v = r.ctx.Undef(curTy) // unknown cast
				break
			}
			opTy := r.typeByID(record[1])
			if opTy == nil {
				return fmt.Errorf("CE_CAST operand type %d: %w", record[1], ErrInvalidRecord)
			}
			operand, err := r.values.constantFwdRef(int(record[2]), opTy)
			if err != nil {
				return err
			}
			v = r.ctx.ConstExprCast(op, operand, curTy)
		case bcwire.CstCodeCEGEP, bcwire.CstCodeCEInboundsGEP:
			if len(record)%2 != 0 {
				return fmt.Errorf("CE_GEP: %w", ErrInvalidRecord)
			}
			ops := make([]ir.Value, 0, len(record)/2)
			for i := 0; i < len(record); i += 2 {
				elTy := r.typeByID(record[i])
				if elTy == nil {
					return fmt.Errorf("CE_GEP operand type %d: %w", record[i], ErrInvalidRecord)
				}
				op, err := r.values.constantFwdRef(int(record[i+1]), elTy)
				if err != nil {
					return err
				}
				ops = append(ops, op)
			}
			v = r.ctx.ConstExprGEP(ops, code == bcwire.CstCodeCEInboundsGEP)
		case bcwire.CstCodeCESelect:
			if len(record) < 3 {
				return fmt.Errorf("CE_SELECT: %w", ErrInvalidRecord)
			}
			cond, err := r.values.constantFwdRef(int(record[0]), r.ctx.Int1())
			if err != nil {
				return err
			}
			tv, err := r.values.constantFwdRef(int(record[1]), curTy)
			if err != nil {
				return err
			}
			fv, err := r.values.constantFwdRef(int(record[2]), curTy)
			if err != nil {
				return err
			}
			v = r.ctx.ConstExprSelect(cond, tv, fv)
		case bcwire.CstCodeCEExtractElt:
			if len(record) < 3 {
				return fmt.Errorf("CE_EXTRACTELT: %w", ErrInvalidRecord)
			}
			opTy := r.typeByID(record[0])
			if opTy == nil || opTy.Kind != ir.VectorKind {
				return fmt.Errorf("CE_EXTRACTELT type: %w", ErrInvalidRecord)
			}
			vec, err := r.values.constantFwdRef(int(record[1]), opTy)
			if err != nil {
				return err
			}
			idx, err := r.values.constantFwdRef(int(record[2]), r.ctx.Int32())
			if err != nil {
				return err
			}
			v = r.ctx.ConstExprExtractElement(vec, idx)
		case bcwire.CstCodeCEInsertElt:
			if len(record) < 3 || curTy.Kind != ir.VectorKind {
				return fmt.Errorf("CE_INSERTELT: %w", ErrInvalidRecord)
			}
			vec, err := r.values.constantFwdRef(int(record[0]), curTy)
			if err != nil {
				return err
			}
			elt, err := r.values.constantFwdRef(int(record[1]), curTy.Elem)
			if err != nil {
				return err
			}
			idx, err := r.values.constantFwdRef(int(record[2]), r.ctx.Int32())
			if err != nil {
				return err
			}
			v = r.ctx.ConstExprInsertElement(vec, elt, idx)
		case bcwire.CstCodeCEShuffleVec:
			if len(record) < 3 || curTy.Kind != ir.VectorKind {
				return fmt.Errorf("CE_SHUFFLEVEC: %w", ErrInvalidRecord)
			}
			v1, err := r.values.constantFwdRef(int(record[0]), curTy)
			if err != nil {
				return err
			}
			v2, err := r.values.constantFwdRef(int(record[1]), curTy)
			if err != nil {
				return err
			}
			maskTy := r.ctx.Vector(r.ctx.Int32(), curTy.Len)
			mask, err := r.values.constantFwdRef(int(record[2]), maskTy)
			if err != nil {
				return err
			}
			v = r.ctx.ConstExprShuffleVector(v1, v2, mask)
		case bcwire.CstCodeCEShufVecEx:
			if len(record) < 4 || curTy.Kind != ir.VectorKind {
				return fmt.Errorf("CE_SHUFVEC_EX: %w", ErrInvalidRecord)
			}
			opTy := r.typeByID(record[0])
			if opTy == nil || opTy.Kind != ir.VectorKind {
				return fmt.Errorf("CE_SHUFVEC_EX operand type: %w", ErrInvalidRecord)
			}
			v1, err := r.values.constantFwdRef(int(record[1]), opTy)
			if err != nil {
				return err
			}
			v2, err := r.values.constantFwdRef(int(record[2]), opTy)
			if err != nil {
				return err
			}
			maskTy := r.ctx.Vector(r.ctx.Int32(), curTy.Len)
			mask, err := r.values.constantFwdRef(int(record[3]), maskTy)
			if err != nil {
				return err
			}
			v = r.ctx.ConstExprShuffleVector(v1, v2, mask)
		case bcwire.CstCodeCECmp:
			if len(record) < 4 {
				return fmt.Errorf("CE_CMP: %w", ErrInvalidRecord)
			}
			opTy := r.typeByID(record[0])
			if opTy == nil {
				return fmt.Errorf("CE_CMP operand type %d: %w", record[0], ErrInvalidRecord)
			}
			lhs, err := r.values.constantFwdRef(int(record[1]), opTy)
			if err != nil {
				return err
			}
			rhs, err := r.values.constantFwdRef(int(record[2]), opTy)
			if err != nil {
				return err
			}
			v = r.ctx.ConstExprCmp(ir.Predicate(record[3]), lhs, rhs)
		case bcwire.CstCodeInlineAsm:
			if len(record) < 2 {
				return fmt.Errorf("INLINEASM: %w", ErrInvalidRecord)
			}
			sideEffects := record[0]&1 != 0
			alignStack := record[0]>>1 != 0
			asmLen, err := safecast.Conv[int](record[1])
			if err != nil || 2+asmLen >= len(record) {
				return fmt.Errorf("INLINEASM string length: %w", ErrInvalidRecord)
			}
			conLen, err := safecast.Conv[int](record[2+asmLen])
			if err != nil || 3+asmLen+conLen > len(record) {
				return fmt.Errorf("INLINEASM constraint length: %w", ErrInvalidRecord)
			}
			asmStr := recordBytes(record[2 : 2+asmLen])
			conStr := recordBytes(record[3+asmLen : 3+asmLen+conLen])
			if curTy.Kind != ir.PointerKind || curTy.Elem.Kind != ir.FunctionKind {
				return fmt.Errorf("INLINEASM of type %s: %w", curTy, ErrInvalidRecord)
			}
			v = r.ctx.NewInlineAsm(curTy, asmStr, conStr, sideEffects, alignStack)
		case bcwire.CstCodeBlockAddress:
			if len(record) < 3 {
				return fmt.Errorf("BLOCKADDRESS: %w", ErrInvalidRecord)
			}
			fnTy := r.typeByID(record[0])
			if fnTy == nil {
				return fmt.Errorf("BLOCKADDRESS function type %d: %w", record[0], ErrInvalidRecord)
			}
			fnC, err := r.values.constantFwdRef(int(record[1]), fnTy)
			if err != nil {
				return err
			}
			fn, ok := fnC.(*ir.Function)
			if !ok {
				return fmt.Errorf("BLOCKADDRESS of non-function: %w", ErrInvalidRecord)
			}
			// The block does not exist until the body is parsed; hand out a
			// stand-in global and queue the rewrite.
			fwd := ir.NewGlobalVariable(r.module, r.ctx.Int8(), false, ir.InternalLinkage, 0, "")
			r.blockAddrFwdRefs[fn] = append(r.blockAddrFwdRefs[fn], blockAddrRef{blockIdx: record[2], fwd: fwd})
			v = fwd
		}

		r.values.assign(v, nextCstNo)
		nextCstNo++
	}
}

// floatConstant builds the floating constant of ty from raw record words.
// The 80-bit extended format interleaves its words on disk and is
// recomposed here.
func (r *Reader) floatConstant(ty *ir.Type, record []uint64) ir.Value {
	switch ty.Kind {
	case ir.HalfKind:
		return r.ctx.ConstFP(ty, []uint64{record[0] & 0xffff})
	case ir.FloatKind:
		return r.ctx.ConstFP(ty, []uint64{record[0] & 0xffffffff})
	case ir.DoubleKind:
		return r.ctx.ConstFP(ty, []uint64{record[0]})
	case ir.X86FP80Kind:
		if len(record) < 2 {
			return r.ctx.Undef(ty)
		}
		lo := (record[1] & 0xffff) | (record[0] << 16)
		hi := record[0] >> 48
		return r.ctx.ConstFP(ty, []uint64{lo, hi})
	case ir.FP128Kind, ir.PPCFP128Kind:
		if len(record) < 2 {
			return r.ctx.Undef(ty)
		}
		return r.ctx.ConstFP(ty, []uint64{record[0], record[1]})
	default:
		return r.ctx.Undef(ty)
	}
}

// aggregateConstant builds a struct, array, or vector constant whose
// element IDs may be forward references.
func (r *Reader) aggregateConstant(ty *ir.Type, record []uint64) (ir.Value, error) {
	elems := make([]ir.Value, 0, len(record))
	switch ty.Kind {
	case ir.StructKind:
		for i, id := range record {
			fieldTy := ty.FieldAt(i)
			if fieldTy == nil {
				return nil, fmt.Errorf("aggregate field %d of %s: %w", i, ty, ErrInvalidRecord)
			}
			c, err := r.values.constantFwdRef(int(id), fieldTy)
			if err != nil {
				return nil, err
			}
			elems = append(elems, c)
		}
	case ir.ArrayKind, ir.VectorKind:
		for _, id := range record {
			c, err := r.values.constantFwdRef(int(id), ty.Elem)
			if err != nil {
				return nil, err
			}
			elems = append(elems, c)
		}
	default:
		return r.ctx.Undef(ty), nil
	}
	return r.ctx.ConstAggregate(ty, elems), nil
}

func recordBytes(rec []uint64) string {
	b := make([]byte, len(rec))
	for i, v := range rec {
		b[i] = byte(v)
	}
	return string(b)
}
