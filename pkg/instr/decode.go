package instr

import (
	"encoding/binary"
	"fmt"
)

// Switch holds a decoded tableswitch or lookupswitch payload.
type Switch struct {
	IsLookup bool
	Default  int // absolute target offset
	// tableswitch
	Low, High int
	// both forms resolve to absolute target offsets, keyed by match value
	// for lookupswitch, or implicitly by (Low+index) for tableswitch —
	// Targets is always populated, match value -> target, so callers
	// never need to know which wire form produced it.
	Targets map[int32]int
}

// Instruction is one decoded bytecode instruction, resolved against its
// absolute offset in the method's code array. Parsed once per method
// into a position-indexed table.
type Instruction struct {
	Offset int
	Spec   Spec
	Size   int // total bytes consumed, opcode included

	// Index is the instruction's resolved locals or constant-pool index
	// operand (widened to 16 bits if preceded by wide), valid when
	// Spec.HasIndexOperand is true. For Spec.FixedIndexWidth > 0 it holds
	// that fixed-width operand, unsigned (bipush/sipush immediates too).
	Index int
	// IncAmount is iinc's signed increment (widened under wide).
	IncAmount int
	// BranchTarget is the absolute target offset for branch/goto/jsr
	// instructions.
	BranchTarget int
	// SwitchPayload is populated for tableswitch/lookupswitch.
	SwitchPayload *Switch
	// Wide marks an index-carrying instruction that was preceded by the
	// wide prefix (its Index is 16-bit, not 8-bit).
	Wide bool
	// ExtraOperand holds multianewarray's dimensions byte; zero and
	// unused for every other opcode.
	ExtraOperand int
}

// Decode parses code into a position-indexed table of instructions,
// honoring the wide prefix and the tableswitch/lookupswitch 4-byte
// alignment. It fails on truncation, an unmodeled opcode, or a
// malformed switch payload.
func Decode(code []byte) (map[int]*Instruction, error) {
	result := make(map[int]*Instruction)
	pos := 0
	for pos < len(code) {
		start := pos
		opcode := code[pos]

		wide := false
		if opcode == 0xc4 { // wide prefix
			if pos+1 >= len(code) {
				return nil, fmt.Errorf("instr: truncated wide prefix at %d", pos)
			}
			wide = true
			pos++
			opcode = code[pos]
		}

		spec, ok := Lookup(opcode)
		if !ok {
			return nil, fmt.Errorf("instr: unknown opcode 0x%02x at offset %d", opcode, start)
		}

		inst := &Instruction{Offset: start, Spec: spec, Wide: wide}

		switch {
		case spec.IsSwitch:
			sw, size, err := decodeSwitch(code, pos, spec.Mnemonic == "lookupswitch")
			if err != nil {
				return nil, err
			}
			inst.SwitchPayload = sw
			inst.Size = (pos - start) + size
			pos += size

		case opcode == 0xc4: // bare "wide" with nothing following is malformed
			return nil, fmt.Errorf("instr: wide prefix with no following opcode at %d", start)

		case spec.HasIndexOperand && spec.Mnemonic == "iinc":
			idxSize := 1
			incSize := 1
			if wide {
				idxSize, incSize = 2, 2
			}
			need := 1 + idxSize + incSize
			if pos+need > len(code) {
				return nil, fmt.Errorf("instr: truncated iinc at %d", start)
			}
			if wide {
				inst.Index = int(binary.BigEndian.Uint16(code[pos+1:]))
				inst.IncAmount = int(int16(binary.BigEndian.Uint16(code[pos+1+idxSize:])))
			} else {
				inst.Index = int(code[pos+1])
				inst.IncAmount = int(int8(code[pos+1+idxSize]))
			}
			inst.Size = (pos - start) + need
			pos += need

		case spec.FixedIndexWidth > 0:
			need := 1 + spec.FixedIndexWidth + spec.TrailingBytes
			if pos+need > len(code) {
				return nil, fmt.Errorf("instr: truncated %s at %d", spec.Mnemonic, start)
			}
			if spec.FixedIndexWidth == 2 {
				inst.Index = int(binary.BigEndian.Uint16(code[pos+1:]))
			} else {
				inst.Index = int(code[pos+1])
			}
			if spec.Mnemonic == "multianewarray" {
				inst.ExtraOperand = int(code[pos+1+spec.FixedIndexWidth])
			}
			inst.Size = (pos - start) + need
			pos += need

		case spec.HasIndexOperand:
			idxSize := 1
			if wide {
				idxSize = 2
			}
			need := 1 + idxSize
			if pos+need > len(code) {
				return nil, fmt.Errorf("instr: truncated %s at %d", spec.Mnemonic, start)
			}
			if wide {
				inst.Index = int(binary.BigEndian.Uint16(code[pos+1:]))
			} else {
				inst.Index = int(code[pos+1])
			}
			inst.Size = (pos - start) + need
			pos += need

		case isBranch(spec.Mnemonic):
			size := spec.FixedSize
			if pos+size > len(code) {
				return nil, fmt.Errorf("instr: truncated %s at %d", spec.Mnemonic, start)
			}
			var off int32
			if size == 5 {
				off = int32(binary.BigEndian.Uint32(code[pos+1:]))
			} else {
				off = int32(int16(binary.BigEndian.Uint16(code[pos+1:])))
			}
			inst.BranchTarget = start + int(off)
			inst.Size = (pos - start) + size
			pos += size

		default:
			size := spec.FixedSize
			if size == 0 {
				return nil, fmt.Errorf("instr: opcode %s has no fixed size and isn't handled specially", spec.Mnemonic)
			}
			if pos+size > len(code) {
				return nil, fmt.Errorf("instr: truncated %s at %d", spec.Mnemonic, start)
			}
			inst.Size = (pos - start) + size
			pos += size
		}

		result[start] = inst
	}
	return result, nil
}

func isBranch(mnemonic string) bool {
	switch mnemonic {
	case "ifeq", "ifne", "iflt", "ifge", "ifgt", "ifle",
		"if_icmpeq", "if_icmpne", "if_icmplt", "if_icmpge", "if_icmpgt", "if_icmple",
		"if_acmpeq", "if_acmpne", "ifnull", "ifnonnull",
		"goto", "goto_w", "jsr", "jsr_w":
		return true
	}
	return false
}

// decodeSwitch parses a tableswitch or lookupswitch payload. opcodePos is
// the index in code of the opcode byte itself; padding is 0-3 bytes
// bringing the following 4-byte-aligned words to an offset that is a
// multiple of four relative to the start of the method's bytecode (spec
// §9). It returns the parsed Switch and the total size in bytes
// (including the opcode byte and padding).
func decodeSwitch(code []byte, opcodePos int, lookup bool) (*Switch, int, error) {
	pad := (4 - (opcodePos+1)%4) % 4
	p := opcodePos + 1 + pad
	if p+4 > len(code) {
		return nil, 0, fmt.Errorf("instr: truncated switch default at %d", opcodePos)
	}
	def := int32(binary.BigEndian.Uint32(code[p:]))
	p += 4

	sw := &Switch{IsLookup: lookup, Default: opcodePos + int(def), Targets: make(map[int32]int)}

	if lookup {
		if p+4 > len(code) {
			return nil, 0, fmt.Errorf("instr: truncated lookupswitch npairs at %d", opcodePos)
		}
		n := int32(binary.BigEndian.Uint32(code[p:]))
		p += 4
		for i := int32(0); i < n; i++ {
			if p+8 > len(code) {
				return nil, 0, fmt.Errorf("instr: truncated lookupswitch pair %d at %d", i, opcodePos)
			}
			match := int32(binary.BigEndian.Uint32(code[p:]))
			offset := int32(binary.BigEndian.Uint32(code[p+4:]))
			sw.Targets[match] = opcodePos + int(offset)
			p += 8
		}
	} else {
		if p+8 > len(code) {
			return nil, 0, fmt.Errorf("instr: truncated tableswitch bounds at %d", opcodePos)
		}
		low := int32(binary.BigEndian.Uint32(code[p:]))
		high := int32(binary.BigEndian.Uint32(code[p+4:]))
		p += 8
		sw.Low, sw.High = int(low), int(high)
		if high < low {
			return nil, 0, fmt.Errorf("instr: tableswitch high %d < low %d at %d", high, low, opcodePos)
		}
		for v := low; v <= high; v++ {
			if p+4 > len(code) {
				return nil, 0, fmt.Errorf("instr: truncated tableswitch entry %d at %d", v-low, opcodePos)
			}
			offset := int32(binary.BigEndian.Uint32(code[p:]))
			sw.Targets[v] = opcodePos + int(offset)
			p += 4
		}
	}

	return sw, p - opcodePos, nil
}
