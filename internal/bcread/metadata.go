package bcread

import (
	"fmt"

	"bcread/internal/bcwire"
	"bcread/internal/bitstream"
	"bcread/internal/ir"
)

// parseMetadata reads one METADATA block, at module or function level.
func (r *Reader) parseMetadata() error {
	nextMDValueNo := r.mdValues.size()

	if err := r.cursor.EnterSubBlock(bcwire.MetadataBlockID); err != nil {
		return fmt.Errorf("METADATA block: %w", ErrInvalidRecord)
	}

	var record []uint64
	for {
		code, err := r.cursor.ReadCode()
		if err != nil {
			return fmt.Errorf("METADATA block: %w", ErrMalformedBlock)
		}
		switch code {
		case bcwire.EndBlock:
			if err := r.cursor.ReadBlockEnd(); err != nil {
				return fmt.Errorf("METADATA block end: %w", ErrMalformedBlock)
			}
			return nil
		case bcwire.EnterSubBlock:
			if _, err := r.cursor.ReadSubBlockID(); err != nil {
				return fmt.Errorf("METADATA block: %w", ErrMalformedBlock)
			}
			if err := r.cursor.SkipBlock(); err != nil {
				return fmt.Errorf("METADATA block: %w", ErrMalformedBlock)
			}
			continue
		case bcwire.DefineAbbrev:
			if err := r.cursor.ReadAbbrevRecord(); err != nil {
				return fmt.Errorf("METADATA block: %w", ErrMalformedBlock)
			}
			continue
		}

		record = record[:0]
		rcode, rec, err := r.cursor.ReadRecord(code, record)
		if err != nil {
			return fmt.Errorf("METADATA record: %w", ErrMalformedBlock)
		}
		record = rec

		fnLocal := false
		switch rcode {
		default:
			// Unknown metadata records are ignored.
		case bcwire.MetadataCodeName:
			name := recordBytes(record)
			// A NAME record is immediately followed by the NAMED_NODE
			// record listing the elements.
			record = record[:0]
			nextCode, err := r.cursor.ReadCode()
			if err != nil {
				return fmt.Errorf("METADATA name: %w", ErrMalformedBlock)
			}
			nrcode, nrec, err := r.cursor.ReadRecord(nextCode, record)
			if err != nil || nrcode != bcwire.MetadataCodeNamedNode {
				return fmt.Errorf("METADATA_NAME without NAMED_NODE: %w", ErrInvalidRecord)
			}
			record = nrec
			named := r.module.OrInsertNamedMD(name)
			for _, id := range record {
				node, ok := r.mdValues.valueFwdRef(int(id)).(*ir.MDNode)
				if !ok {
					return fmt.Errorf("named metadata element %d: %w", id, ErrInvalidRecord)
				}
				named.AddOperand(node)
			}
		case bcwire.MetadataCodeFnNode, bcwire.MetadataCodeNode:
			if rcode == bcwire.MetadataCodeFnNode {
				fnLocal = true
			}
			if len(record)%2 == 1 {
				return fmt.Errorf("metadata node with odd operand count: %w", ErrInvalidRecord)
			}
			elems := make([]ir.Value, 0, len(record)/2)
			for i := 0; i < len(record); i += 2 {
				ty := r.typeByID(record[i])
				if ty == nil {
					return fmt.Errorf("metadata element type %d: %w", record[i], ErrInvalidRecord)
				}
				switch {
				case ty.Kind == ir.MetadataKind:
					elems = append(elems, r.mdValues.valueFwdRef(int(record[i+1])))
				case ty.Kind == ir.VoidKind:
					elems = append(elems, nil)
				default:
					v, err := r.values.valueFwdRef(int(record[i+1]), ty)
					if err != nil {
						return err
					}
					elems = append(elems, v)
				}
			}
			node := r.ctx.NewMDNode(elems, fnLocal)
			r.mdValues.assign(node, nextMDValueNo)
			nextMDValueNo++
		case bcwire.MetadataCodeString:
			s := recordBytes(record)
			r.mdValues.assign(r.ctx.NewMDString(s), nextMDValueNo)
			nextMDValueNo++
		case bcwire.MetadataCodeKind:
			if len(record) < 2 {
				return fmt.Errorf("METADATA_KIND: %w", ErrInvalidRecord)
			}
			kind := record[0]
			name := recordBytes(record[1:])
			if _, exists := r.mdKindMap[kind]; exists {
				return fmt.Errorf("kind %d registered twice: %w", kind, ErrConflictingMetadataKindRecords)
			}
			r.mdKindMap[kind] = r.module.MDKindID(name)
		}
	}
}

// parseMetadataAttachment reads a METADATA_ATTACHMENT block, binding nodes
// to the instructions of the function being parsed.
func (r *Reader) parseMetadataAttachment() error {
	if err := r.cursor.EnterSubBlock(bcwire.MetadataAttachmentBlockID); err != nil {
		return fmt.Errorf("METADATA_ATTACHMENT block: %w", ErrInvalidRecord)
	}

	var record []uint64
	for {
		entry, err := r.cursor.AdvanceSkippingSubblocks()
		if err != nil {
			return fmt.Errorf("METADATA_ATTACHMENT block: %w", ErrMalformedBlock)
		}
		if entry.Kind == bitstream.EntryEndBlock {
			return nil
		}
		record = record[:0]
		rcode, rec, err := r.cursor.ReadRecord(entry.ID, record)
		if err != nil {
			return fmt.Errorf("METADATA_ATTACHMENT record: %w", ErrMalformedBlock)
		}
		record = rec
		if rcode != bcwire.MetadataCodeAttachment {
			continue
		}
		if len(record) == 0 || (len(record)-1)%2 == 1 {
			return fmt.Errorf("attachment record shape: %w", ErrInvalidRecord)
		}
		if record[0] >= uint64(len(r.instList)) {
			return fmt.Errorf("attachment to instruction %d: %w", record[0], ErrInvalidRecord)
		}
		inst := r.instList[record[0]]
		for i := 1; i < len(record); i += 2 {
			kindID, ok := r.mdKindMap[record[i]]
			if !ok {
				return fmt.Errorf("attachment kind %d: %w", record[i], ErrInvalidID)
			}
			node, ok := r.mdValues.valueFwdRef(int(record[i+1])).(*ir.MDNode)
			if !ok {
				return fmt.Errorf("attachment node %d: %w", record[i+1], ErrInvalidRecord)
			}
			inst.SetMetadata(kindID, node)
		}
	}
}
