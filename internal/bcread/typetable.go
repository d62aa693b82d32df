package bcread

import (
	"fmt"

	"fortio.org/safecast"

	"bcread/internal/bcwire"
	"bcread/internal/bitstream"
	"bcread/internal/ir"
)

// parseTypeTable reads the modern type block: one forward pass, slots
// filled in record order, named structs resolved through placeholder
// structs installed by typeByID.
func (r *Reader) parseTypeTable() error {
	if err := r.cursor.EnterSubBlock(bcwire.TypeBlockIDNew); err != nil {
		return fmt.Errorf("TYPE block: %w", ErrInvalidRecord)
	}
	if len(r.typeList) != 0 {
		return fmt.Errorf("second TYPE block: %w", ErrInvalidMultipleBlocks)
	}

	var record []uint64
	numRecords := 0
	typeName := ""

	for {
		entry, err := r.cursor.AdvanceSkippingSubblocks()
		if err != nil {
			return fmt.Errorf("TYPE block: %w", ErrMalformedBlock)
		}
		switch entry.Kind {
		case bitstream.EntryEndBlock:
			if numRecords != len(r.typeList) {
				return fmt.Errorf("type table has %d of %d entries: %w", numRecords, len(r.typeList), ErrMalformedBlock)
			}
			return nil
		case bitstream.EntryRecord:
		}

		record = record[:0]
		code, rec, err := r.cursor.ReadRecord(entry.ID, record)
		if err != nil {
			return fmt.Errorf("TYPE record: %w", ErrMalformedBlock)
		}
		record = rec

		var result *ir.Type
		switch code {
		default:
			return fmt.Errorf("type code %d: %w", code, ErrInvalidValue)
		case bcwire.TypeCodeNumEntry:
			if len(record) < 1 {
				return fmt.Errorf("NUMENTRY: %w", ErrInvalidRecord)
			}
			n, err := safecast.Conv[int](record[0])
			if err != nil {
				return fmt.Errorf("NUMENTRY %d: %w", record[0], ErrInvalidRecord)
			}
			r.typeList = make([]*ir.Type, n)
			continue
		case bcwire.TypeCodeVoid:
			result = r.ctx.Void()
		case bcwire.TypeCodeHalf:
			result = r.ctx.Half()
		case bcwire.TypeCodeFloat:
			result = r.ctx.Float()
		case bcwire.TypeCodeDouble:
			result = r.ctx.Double()
		case bcwire.TypeCodeX86FP80:
			result = r.ctx.X86FP80()
		case bcwire.TypeCodeFP128:
			result = r.ctx.FP128()
		case bcwire.TypeCodePPCFP128:
			result = r.ctx.PPCFP128()
		case bcwire.TypeCodeLabel:
			result = r.ctx.Label()
		case bcwire.TypeCodeMetadata:
			result = r.ctx.Metadata()
		case bcwire.TypeCodeX86MMX:
			result = r.ctx.X86MMX()
		case bcwire.TypeCodeInteger:
			if len(record) < 1 {
				return fmt.Errorf("INTEGER type: %w", ErrInvalidRecord)
			}
			width, err := safecast.Conv[uint32](record[0])
			if err != nil {
				return fmt.Errorf("integer width %d: %w", record[0], ErrInvalidRecord)
			}
			result = r.ctx.Int(width)
		case bcwire.TypeCodePointer:
			if len(record) < 1 {
				return fmt.Errorf("POINTER type: %w", ErrInvalidRecord)
			}
			addrSpace := uint32(0)
			if len(record) == 2 {
				addrSpace, err = safecast.Conv[uint32](record[1])
				if err != nil {
					return fmt.Errorf("address space %d: %w", record[1], ErrInvalidRecord)
				}
			}
			pointee := r.typeByID(record[0])
			if pointee == nil {
				return fmt.Errorf("POINTER pointee %d: %w", record[0], ErrInvalidType)
			}
			result = r.ctx.Pointer(pointee, addrSpace)
		case bcwire.TypeCodeFunctionOld, bcwire.TypeCodeFunction:
			// The old form carries a dead attribute-ID operand after the
			// vararg flag.
			retIdx := 1
			if code == bcwire.TypeCodeFunctionOld {
				retIdx = 2
			}
			if len(record) < retIdx+1 {
				return fmt.Errorf("FUNCTION type: %w", ErrInvalidRecord)
			}
			var params []*ir.Type
			ok := true
			for _, id := range record[retIdx+1:] {
				t := r.typeByID(id)
				if t == nil {
					ok = false
					break
				}
				params = append(params, t)
			}
			ret := r.typeByID(record[retIdx])
			if ret == nil || !ok {
				return fmt.Errorf("FUNCTION type operands: %w", ErrInvalidType)
			}
			result = r.ctx.Function(ret, params, record[0] != 0)
		case bcwire.TypeCodeStructAnon:
			if len(record) < 1 {
				return fmt.Errorf("STRUCT_ANON: %w", ErrInvalidRecord)
			}
			fields, ok := r.typeListByID(record[1:])
			if !ok {
				return fmt.Errorf("STRUCT_ANON fields: %w", ErrInvalidType)
			}
			result = r.ctx.Struct(fields, record[0] != 0)
		case bcwire.TypeCodeStructName:
			s, ok := recordString(record, 0)
			if !ok {
				return fmt.Errorf("STRUCT_NAME: %w", ErrInvalidRecord)
			}
			typeName = s
			continue
		case bcwire.TypeCodeStructNamed:
			if len(record) < 1 {
				return fmt.Errorf("STRUCT_NAMED: %w", ErrInvalidRecord)
			}
			if numRecords >= len(r.typeList) {
				return fmt.Errorf("STRUCT_NAMED overflows table: %w", ErrInvalidTypeTable)
			}
			st := r.typeList[numRecords]
			if st != nil {
				// Forward-referenced: adopt the placeholder.
				st.SetStructName(typeName)
				r.typeList[numRecords] = nil
			} else {
				st = r.ctx.NamedStruct(typeName)
			}
			typeName = ""
			fields, ok := r.typeListByID(record[1:])
			if !ok {
				return fmt.Errorf("STRUCT_NAMED fields: %w", ErrInvalidRecord)
			}
			st.SetBody(fields, record[0] != 0)
			result = st
		case bcwire.TypeCodeOpaque:
			if len(record) != 1 {
				return fmt.Errorf("OPAQUE: %w", ErrInvalidRecord)
			}
			if numRecords >= len(r.typeList) {
				return fmt.Errorf("OPAQUE overflows table: %w", ErrInvalidTypeTable)
			}
			st := r.typeList[numRecords]
			if st != nil {
				st.SetStructName(typeName)
				r.typeList[numRecords] = nil
			} else {
				st = r.ctx.NamedStruct(typeName)
			}
			typeName = ""
			result = st
		case bcwire.TypeCodeArray:
			if len(record) < 2 {
				return fmt.Errorf("ARRAY type: %w", ErrInvalidRecord)
			}
			elem := r.typeByID(record[1])
			if elem == nil {
				return fmt.Errorf("ARRAY element %d: %w", record[1], ErrInvalidType)
			}
			result = r.ctx.Array(elem, record[0])
		case bcwire.TypeCodeVector:
			if len(record) < 2 {
				return fmt.Errorf("VECTOR type: %w", ErrInvalidRecord)
			}
			elem := r.typeByID(record[1])
			if elem == nil {
				return fmt.Errorf("VECTOR element %d: %w", record[1], ErrInvalidType)
			}
			result = r.ctx.Vector(elem, record[0])
		}

		if numRecords >= len(r.typeList) {
			return fmt.Errorf("type record %d overflows NUMENTRY %d: %w", numRecords, len(r.typeList), ErrInvalidTypeTable)
		}
		// A forward reference may only target a named-struct slot, which
		// the records above clear before landing here.
		if r.typeList[numRecords] != nil {
			return fmt.Errorf("type slot %d assigned twice: %w", numRecords, ErrInvalidTypeTable)
		}
		r.typeList[numRecords] = result
		numRecords++
	}
}

// typeListByID resolves a slice of type IDs through typeByID; false when
// any is unresolvable.
func (r *Reader) typeListByID(ids []uint64) ([]*ir.Type, bool) {
	types := make([]*ir.Type, 0, len(ids))
	for _, id := range ids {
		t := r.typeByID(id)
		if t == nil {
			return nil, false
		}
		types = append(types, t)
	}
	return types, true
}

// parseOldTypeTable reads the legacy type block. The on-disk order is
// unsound, so the block is scanned repeatedly from a snapshot: each pass
// fills every slot whose dependencies are resolved, and a pass that makes
// no progress on an incomplete table means the stream is malformed.
func (r *Reader) parseOldTypeTable() error {
	if err := r.cursor.EnterSubBlock(bcwire.TypeBlockIDOld); err != nil {
		return fmt.Errorf("legacy TYPE block: %w", ErrMalformedBlock)
	}
	if len(r.typeList) != 0 {
		return fmt.Errorf("second TYPE block: %w", ErrInvalidTypeTable)
	}

	start := r.cursor.Snapshot()
	numTypesRead := 0

	var record []uint64
restart:
	nextTypeID := 0
	readAnyTypes := false

	for {
		code, err := r.cursor.ReadCode()
		if err != nil {
			return fmt.Errorf("legacy TYPE block: %w", ErrMalformedBlock)
		}
		switch code {
		case bcwire.EndBlock:
			if nextTypeID != len(r.typeList) {
				return fmt.Errorf("legacy table scanned %d of %d slots: %w", nextTypeID, len(r.typeList), ErrInvalidTypeTable)
			}
			if numTypesRead != len(r.typeList) {
				if !readAnyTypes {
					return fmt.Errorf("no progress with %d slots unresolved: %w", len(r.typeList)-numTypesRead, ErrInvalidTypeTable)
				}
				r.cursor.Restore(start)
				goto restart
			}
			if err := r.cursor.ReadBlockEnd(); err != nil {
				return fmt.Errorf("legacy TYPE block end: %w", ErrInvalidTypeTable)
			}
			return nil
		case bcwire.EnterSubBlock:
			if _, err := r.cursor.ReadSubBlockID(); err != nil {
				return fmt.Errorf("legacy TYPE block: %w", ErrMalformedBlock)
			}
			if err := r.cursor.SkipBlock(); err != nil {
				return fmt.Errorf("legacy TYPE block: %w", ErrMalformedBlock)
			}
			continue
		case bcwire.DefineAbbrev:
			if err := r.cursor.ReadAbbrevRecord(); err != nil {
				return fmt.Errorf("legacy TYPE block: %w", ErrMalformedBlock)
			}
			continue
		}

		record = record[:0]
		rcode, rec, err := r.cursor.ReadRecord(code, record)
		if err != nil {
			return fmt.Errorf("legacy TYPE record: %w", ErrMalformedBlock)
		}
		record = rec

		var result *ir.Type
		switch rcode {
		default:
			return fmt.Errorf("legacy type code %d: %w", rcode, ErrInvalidTypeTable)
		case bcwire.TypeCodeNumEntry:
			if len(record) < 1 {
				return fmt.Errorf("NUMENTRY: %w", ErrInvalidTypeTable)
			}
			if len(r.typeList) == 0 {
				n, err := safecast.Conv[int](record[0])
				if err != nil {
					return fmt.Errorf("NUMENTRY %d: %w", record[0], ErrInvalidTypeTable)
				}
				r.typeList = make([]*ir.Type, n)
			}
			continue
		case bcwire.TypeCodeVoid:
			result = r.ctx.Void()
		case bcwire.TypeCodeFloat:
			result = r.ctx.Float()
		case bcwire.TypeCodeDouble:
			result = r.ctx.Double()
		case bcwire.TypeCodeX86FP80:
			result = r.ctx.X86FP80()
		case bcwire.TypeCodeFP128:
			result = r.ctx.FP128()
		case bcwire.TypeCodePPCFP128:
			result = r.ctx.PPCFP128()
		case bcwire.TypeCodeLabel:
			result = r.ctx.Label()
		case bcwire.TypeCodeMetadata:
			result = r.ctx.Metadata()
		case bcwire.TypeCodeX86MMX:
			result = r.ctx.X86MMX()
		case bcwire.TypeCodeInteger:
			if len(record) < 1 {
				return fmt.Errorf("INTEGER type: %w", ErrInvalidTypeTable)
			}
			width, err := safecast.Conv[uint32](record[0])
			if err != nil {
				return fmt.Errorf("integer width %d: %w", record[0], ErrInvalidTypeTable)
			}
			result = r.ctx.Int(width)
		case bcwire.TypeCodeOpaque:
			if nextTypeID < len(r.typeList) && r.typeList[nextTypeID] == nil {
				result = r.ctx.NamedStruct("")
				result.SetBody(nil, false)
			}
		case bcwire.TypeCodeStructOld:
			if nextTypeID >= len(r.typeList) {
				break
			}
			// Already fully read on an earlier pass.
			if st := r.typeList[nextTypeID]; st != nil && !st.Opaque {
				break
			}
			if r.typeList[nextTypeID] == nil {
				r.typeList[nextTypeID] = r.ctx.NamedStruct("")
			}
			var fields []*ir.Type
			complete := true
			for _, id := range record[1:] {
				t := r.typeByIDOrNull(id)
				if t == nil {
					complete = false
					break
				}
				fields = append(fields, t)
			}
			if !complete {
				break // not all elements ready yet
			}
			r.typeList[nextTypeID].SetBody(fields, record[0] != 0)
			result = r.typeList[nextTypeID]
			r.typeList[nextTypeID] = nil
		case bcwire.TypeCodePointer:
			if len(record) < 1 {
				return fmt.Errorf("POINTER type: %w", ErrInvalidTypeTable)
			}
			addrSpace := uint32(0)
			if len(record) == 2 {
				addrSpace, err = safecast.Conv[uint32](record[1])
				if err != nil {
					return fmt.Errorf("address space %d: %w", record[1], ErrInvalidTypeTable)
				}
			}
			if pointee := r.typeByIDOrNull(record[0]); pointee != nil {
				result = r.ctx.Pointer(pointee, addrSpace)
			}
		case bcwire.TypeCodeFunctionOld, bcwire.TypeCodeFunction:
			retIdx := 1
			if rcode == bcwire.TypeCodeFunctionOld {
				retIdx = 2
			}
			if len(record) < retIdx+1 {
				return fmt.Errorf("FUNCTION type: %w", ErrInvalidTypeTable)
			}
			var params []*ir.Type
			complete := true
			for _, id := range record[retIdx+1:] {
				t := r.typeByIDOrNull(id)
				if t == nil {
					complete = false
					break
				}
				params = append(params, t)
			}
			if !complete {
				break // something was unresolved
			}
			if ret := r.typeByIDOrNull(record[retIdx]); ret != nil {
				result = r.ctx.Function(ret, params, record[0] != 0)
			}
		case bcwire.TypeCodeArray:
			if len(record) < 2 {
				return fmt.Errorf("ARRAY type: %w", ErrInvalidTypeTable)
			}
			if elem := r.typeByIDOrNull(record[1]); elem != nil {
				result = r.ctx.Array(elem, record[0])
			}
		case bcwire.TypeCodeVector:
			if len(record) < 2 {
				return fmt.Errorf("VECTOR type: %w", ErrInvalidTypeTable)
			}
			if elem := r.typeByIDOrNull(record[1]); elem != nil {
				result = r.ctx.Vector(elem, record[0])
			}
		}

		if nextTypeID >= len(r.typeList) {
			return fmt.Errorf("type record %d overflows table: %w", nextTypeID, ErrInvalidTypeTable)
		}
		if result != nil && r.typeList[nextTypeID] == nil {
			numTypesRead++
			readAnyTypes = true
			r.typeList[nextTypeID] = result
		}
		nextTypeID++
	}
}

// parseOldTypeSymbolTable assigns names to struct types by table index.
func (r *Reader) parseOldTypeSymbolTable() error {
	if err := r.cursor.EnterSubBlock(bcwire.TypeSymtabBlockIDOld); err != nil {
		return fmt.Errorf("legacy TYPE_SYMTAB block: %w", ErrMalformedBlock)
	}
	var record []uint64
	for {
		code, err := r.cursor.ReadCode()
		if err != nil {
			return fmt.Errorf("legacy TYPE_SYMTAB block: %w", ErrMalformedBlock)
		}
		switch code {
		case bcwire.EndBlock:
			if err := r.cursor.ReadBlockEnd(); err != nil {
				return fmt.Errorf("legacy TYPE_SYMTAB block end: %w", ErrMalformedBlock)
			}
			return nil
		case bcwire.EnterSubBlock:
			if _, err := r.cursor.ReadSubBlockID(); err != nil {
				return fmt.Errorf("legacy TYPE_SYMTAB block: %w", ErrMalformedBlock)
			}
			if err := r.cursor.SkipBlock(); err != nil {
				return fmt.Errorf("legacy TYPE_SYMTAB block: %w", ErrMalformedBlock)
			}
			continue
		case bcwire.DefineAbbrev:
			if err := r.cursor.ReadAbbrevRecord(); err != nil {
				return fmt.Errorf("legacy TYPE_SYMTAB block: %w", ErrMalformedBlock)
			}
			continue
		}

		record = record[:0]
		rcode, rec, err := r.cursor.ReadRecord(code, record)
		if err != nil {
			return fmt.Errorf("legacy TYPE_SYMTAB record: %w", ErrMalformedBlock)
		}
		record = rec
		if rcode != bcwire.TypeSymtabCodeEntry {
			continue
		}
		if len(record) < 1 {
			return fmt.Errorf("TST_ENTRY: %w", ErrInvalidRecord)
		}
		name, ok := recordString(record, 1)
		if !ok {
			return fmt.Errorf("TST_ENTRY name: %w", ErrInvalidRecord)
		}
		typeID := record[0]
		if typeID >= uint64(len(r.typeList)) {
			return fmt.Errorf("TST_ENTRY type %d: %w", typeID, ErrInvalidRecord)
		}
		// Only name an unnamed identity struct.
		if t := r.typeList[typeID]; t != nil && t.IsNamedStruct() && t.StructName == "" {
			t.SetStructName(name)
		}
	}
}

// parseValueSymbolTable names module or function values and basic blocks.
func (r *Reader) parseValueSymbolTable() error {
	if err := r.cursor.EnterSubBlock(bcwire.ValueSymtabBlockID); err != nil {
		return fmt.Errorf("VALUE_SYMTAB block: %w", ErrInvalidRecord)
	}
	var record []uint64
	for {
		code, err := r.cursor.ReadCode()
		if err != nil {
			return fmt.Errorf("VALUE_SYMTAB block: %w", ErrMalformedBlock)
		}
		switch code {
		case bcwire.EndBlock:
			if err := r.cursor.ReadBlockEnd(); err != nil {
				return fmt.Errorf("VALUE_SYMTAB block end: %w", ErrMalformedBlock)
			}
			return nil
		case bcwire.EnterSubBlock:
			if _, err := r.cursor.ReadSubBlockID(); err != nil {
				return fmt.Errorf("VALUE_SYMTAB block: %w", ErrMalformedBlock)
			}
			if err := r.cursor.SkipBlock(); err != nil {
				return fmt.Errorf("VALUE_SYMTAB block: %w", ErrMalformedBlock)
			}
			continue
		case bcwire.DefineAbbrev:
			if err := r.cursor.ReadAbbrevRecord(); err != nil {
				return fmt.Errorf("VALUE_SYMTAB block: %w", ErrMalformedBlock)
			}
			continue
		}

		record = record[:0]
		rcode, rec, err := r.cursor.ReadRecord(code, record)
		if err != nil {
			return fmt.Errorf("VALUE_SYMTAB record: %w", ErrMalformedBlock)
		}
		record = rec
		switch rcode {
		case bcwire.ValueSymtabCodeEntry:
			if len(record) < 1 {
				return fmt.Errorf("VST_ENTRY: %w", ErrInvalidRecord)
			}
			name, ok := recordString(record, 1)
			if !ok {
				return fmt.Errorf("VST_ENTRY name: %w", ErrInvalidRecord)
			}
			id := record[0]
			if id >= uint64(r.values.size()) {
				return fmt.Errorf("VST_ENTRY value %d: %w", id, ErrInvalidRecord)
			}
			v := r.values.at(int(id))
			if v == nil {
				return fmt.Errorf("VST_ENTRY names empty slot %d: %w", id, ErrInvalidRecord)
			}
			v.SetName(name)
		case bcwire.ValueSymtabCodeBBEntry:
			if len(record) < 1 {
				return fmt.Errorf("VST_BBENTRY: %w", ErrInvalidRecord)
			}
			name, ok := recordString(record, 1)
			if !ok {
				return fmt.Errorf("VST_BBENTRY name: %w", ErrInvalidRecord)
			}
			bb := r.basicBlock(record[0])
			if bb == nil {
				return fmt.Errorf("VST_BBENTRY block %d: %w", record[0], ErrInvalidRecord)
			}
			bb.SetName(name)
		}
	}
}

// parseAttributeBlock reads the parameter-attribute table.
func (r *Reader) parseAttributeBlock() error {
	if err := r.cursor.EnterSubBlock(bcwire.ParamAttrBlockID); err != nil {
		return fmt.Errorf("PARAMATTR block: %w", ErrInvalidRecord)
	}
	if len(r.attributes) != 0 {
		return fmt.Errorf("second PARAMATTR block: %w", ErrInvalidMultipleBlocks)
	}

	var record []uint64
	for {
		entry, err := r.cursor.AdvanceSkippingSubblocks()
		if err != nil {
			return fmt.Errorf("PARAMATTR block: %w", ErrMalformedBlock)
		}
		switch entry.Kind {
		case bitstream.EntryEndBlock:
			return nil
		case bitstream.EntryRecord:
		}

		record = record[:0]
		code, rec, err := r.cursor.ReadRecord(entry.ID, record)
		if err != nil {
			return fmt.Errorf("PARAMATTR record: %w", ErrMalformedBlock)
		}
		record = rec
		switch code {
		default:
			// Unknown records are ignored.
		case bcwire.ParamAttrCodeEntryOld:
			if len(record)%2 != 0 {
				return fmt.Errorf("PARAMATTR entry has odd operand count: %w", ErrInvalidRecord)
			}
			var list ir.AttributeList
			for i := 0; i < len(record); i += 2 {
				idx, err := safecast.Conv[uint32](record[i])
				if err != nil {
					return fmt.Errorf("PARAMATTR index %d: %w", record[i], ErrInvalidRecord)
				}
				list.Slots = append(list.Slots, ir.AttrSlot{
					Index: idx,
					Attrs: decodeLegacyAttributes(record[i+1]),
				})
			}
			r.attributes = append(r.attributes, list)
		}
	}
}

// decodeLegacyAttributes unpacks the 64-bit encoded attribute word: the
// alignment exponent field occupies bits 16..31, the raw attribute mask is
// the low 16 bits joined with bits 32..51 shifted down by 11.
func decodeLegacyAttributes(encoded uint64) ir.Attributes {
	alignment := uint32((encoded & (0xffff << 16)) >> 16)
	raw := ((encoded & (0xfffff << 32)) >> 11) | (encoded & 0xffff)
	return ir.Attributes{Raw: raw, Alignment: alignment}
}
