package classfile

import (
	"encoding/binary"
	"fmt"
)

// VerificationKind is the tag of a StackMapTable verification_type_info
// entry, used by the verifier to seed its abstract operand-stack/locals
// state at a stack-map frame's offset.
type VerificationKind uint8

const (
	VerifyTop VerificationKind = iota
	VerifyInteger
	VerifyFloat
	VerifyDouble
	VerifyLong
	VerifyNull
	VerifyUninitializedThis
	VerifyObject
	VerifyUninitialized
)

// VerificationType is one verification_type_info entry: a tag plus,
// for Object, a constant-pool class index, or for Uninitialized, the
// bytecode offset of the `new` instruction that produced the reference.
type VerificationType struct {
	Kind        VerificationKind
	ClassIndex  uint16 // valid when Kind == VerifyObject
	NewOffset   uint16 // valid when Kind == VerifyUninitialized
}

// FrameKind distinguishes five StackMapTable frame kinds (JVM spec
// §4.7.4); the two _extended wire forms are folded into their short
// counterparts, and every frame is normalized into one struct rather
// than keeping the compact wire encoding, since the verifier only cares
// about the resulting locals/stack content at an offset.
type FrameKind uint8

const (
	FrameSame FrameKind = iota
	FrameSameLocals1StackItem
	FrameChop
	FrameAppend
	FrameFull
)

// StackMapFrame is one decoded entry of a Code attribute's StackMapTable,
// giving the verifier the declared locals/operand-stack shape at a
// specific bytecode offset: verification walks these declared frames
// rather than re-deriving merge points from control flow.
type StackMapFrame struct {
	Kind       FrameKind
	Offset     int // absolute bytecode offset, resolved from offset_delta
	ChopCount  int // valid when Kind == FrameChop: how many trailing locals drop
	Locals     []VerificationType
	Stack      []VerificationType
}

// parseStackMapTable decodes a StackMapTable attribute body into frames
// with absolute bytecode offsets (the wire format stores offset_delta,
// relative to the previous frame, with the first frame's delta read
// as-is rather than +1; see JVM spec §4.7.4).
func parseStackMapTable(data []byte) ([]StackMapFrame, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("StackMapTable too short")
	}
	count := binary.BigEndian.Uint16(data[0:2])
	off := 2
	frames := make([]StackMapFrame, 0, count)
	prevOffset := -1

	readVerificationType := func() (VerificationType, error) {
		if off >= len(data) {
			return VerificationType{}, fmt.Errorf("truncated verification_type_info")
		}
		tag := data[off]
		off++
		switch tag {
		case 0:
			return VerificationType{Kind: VerifyTop}, nil
		case 1:
			return VerificationType{Kind: VerifyInteger}, nil
		case 2:
			return VerificationType{Kind: VerifyFloat}, nil
		case 3:
			return VerificationType{Kind: VerifyDouble}, nil
		case 4:
			return VerificationType{Kind: VerifyLong}, nil
		case 5:
			return VerificationType{Kind: VerifyNull}, nil
		case 6:
			return VerificationType{Kind: VerifyUninitializedThis}, nil
		case 7:
			if off+2 > len(data) {
				return VerificationType{}, fmt.Errorf("truncated Object verification_type_info")
			}
			idx := binary.BigEndian.Uint16(data[off : off+2])
			off += 2
			return VerificationType{Kind: VerifyObject, ClassIndex: idx}, nil
		case 8:
			if off+2 > len(data) {
				return VerificationType{}, fmt.Errorf("truncated Uninitialized verification_type_info")
			}
			newOff := binary.BigEndian.Uint16(data[off : off+2])
			off += 2
			return VerificationType{Kind: VerifyUninitialized, NewOffset: newOff}, nil
		default:
			return VerificationType{}, fmt.Errorf("unknown verification_type_info tag %d", tag)
		}
	}

	for i := uint16(0); i < count; i++ {
		if off >= len(data) {
			return nil, fmt.Errorf("truncated stack map frame %d", i)
		}
		frameType := data[off]
		off++

		var delta int
		var frame StackMapFrame

		switch {
		case frameType <= 63:
			delta = int(frameType)
			frame.Kind = FrameSame

		case frameType <= 127:
			delta = int(frameType) - 64
			frame.Kind = FrameSameLocals1StackItem
			vt, err := readVerificationType()
			if err != nil {
				return nil, err
			}
			frame.Stack = []VerificationType{vt}

		case frameType == 247:
			if off+2 > len(data) {
				return nil, fmt.Errorf("truncated same_locals_1_stack_item_frame_extended")
			}
			delta = int(binary.BigEndian.Uint16(data[off : off+2]))
			off += 2
			frame.Kind = FrameSameLocals1StackItem
			vt, err := readVerificationType()
			if err != nil {
				return nil, err
			}
			frame.Stack = []VerificationType{vt}

		case frameType >= 248 && frameType <= 250:
			if off+2 > len(data) {
				return nil, fmt.Errorf("truncated chop_frame")
			}
			delta = int(binary.BigEndian.Uint16(data[off : off+2]))
			off += 2
			frame.Kind = FrameChop
			frame.ChopCount = 251 - int(frameType)

		case frameType == 251:
			if off+2 > len(data) {
				return nil, fmt.Errorf("truncated same_frame_extended")
			}
			delta = int(binary.BigEndian.Uint16(data[off : off+2]))
			off += 2
			frame.Kind = FrameSame

		case frameType >= 252 && frameType <= 254:
			if off+2 > len(data) {
				return nil, fmt.Errorf("truncated append_frame")
			}
			delta = int(binary.BigEndian.Uint16(data[off : off+2]))
			off += 2
			frame.Kind = FrameAppend
			numAppend := int(frameType) - 251
			frame.Locals = make([]VerificationType, numAppend)
			for j := 0; j < numAppend; j++ {
				vt, err := readVerificationType()
				if err != nil {
					return nil, err
				}
				frame.Locals[j] = vt
			}

		case frameType == 255:
			if off+2 > len(data) {
				return nil, fmt.Errorf("truncated full_frame")
			}
			delta = int(binary.BigEndian.Uint16(data[off : off+2]))
			off += 2
			frame.Kind = FrameFull
			if off+2 > len(data) {
				return nil, fmt.Errorf("truncated full_frame locals count")
			}
			numLocals := binary.BigEndian.Uint16(data[off : off+2])
			off += 2
			frame.Locals = make([]VerificationType, numLocals)
			for j := uint16(0); j < numLocals; j++ {
				vt, err := readVerificationType()
				if err != nil {
					return nil, err
				}
				frame.Locals[j] = vt
			}
			if off+2 > len(data) {
				return nil, fmt.Errorf("truncated full_frame stack count")
			}
			numStack := binary.BigEndian.Uint16(data[off : off+2])
			off += 2
			frame.Stack = make([]VerificationType, numStack)
			for j := uint16(0); j < numStack; j++ {
				vt, err := readVerificationType()
				if err != nil {
					return nil, err
				}
				frame.Stack[j] = vt
			}

		default:
			return nil, fmt.Errorf("unknown stack map frame_type %d", frameType)
		}

		if prevOffset < 0 {
			frame.Offset = delta
		} else {
			frame.Offset = prevOffset + delta + 1
		}
		prevOffset = frame.Offset
		frames = append(frames, frame)
	}

	return frames, nil
}
