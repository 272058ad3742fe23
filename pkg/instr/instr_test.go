package instr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeSimpleArithmetic(t *testing.T) {
	// iconst_1, iconst_2, iadd, ireturn
	code := []byte{0x04, 0x05, 0x60, 0xac}
	insts, err := Decode(code)
	require.NoError(t, err)
	require.Len(t, insts, 4)
	require.Equal(t, "iconst_1", insts[0].Spec.Mnemonic)
	require.Equal(t, "iadd", insts[2].Spec.Mnemonic)
	require.Equal(t, 1, insts[2].Size)
	require.Equal(t, "ireturn", insts[3].Spec.Mnemonic)
}

func TestDecodeIloadWithIndex(t *testing.T) {
	// iload 5, ireturn
	code := []byte{0x15, 0x05, 0xac}
	insts, err := Decode(code)
	require.NoError(t, err)
	require.Equal(t, 5, insts[0].Index)
	require.Equal(t, 2, insts[0].Size)
	require.False(t, insts[0].Wide)
}

func TestDecodeWideIload(t *testing.T) {
	// wide iload 300, ireturn
	code := []byte{0xc4, 0x15, 0x01, 0x2c, 0xac}
	insts, err := Decode(code)
	require.NoError(t, err)
	require.Equal(t, 300, insts[0].Index)
	require.True(t, insts[0].Wide)
	require.Equal(t, 4, insts[0].Size)
}

func TestDecodeIincWide(t *testing.T) {
	// wide iinc 10, -5
	code := []byte{0xc4, 0x84, 0x00, 0x0a, 0xff, 0xfb}
	insts, err := Decode(code)
	require.NoError(t, err)
	require.Equal(t, 10, insts[0].Index)
	require.Equal(t, -5, insts[0].IncAmount)
	require.Equal(t, 6, insts[0].Size)
}

func TestDecodeGotoBranchTarget(t *testing.T) {
	// at offset 0: goto +4 -> target offset 4
	code := []byte{0xa7, 0x00, 0x04, 0x00, 0xb1}
	insts, err := Decode(code)
	require.NoError(t, err)
	require.Equal(t, 4, insts[0].BranchTarget)
}

func TestDecodeTableswitchAlignment(t *testing.T) {
	// tableswitch at offset 1 (so padding brings default to offset 4..7)
	code := []byte{
		0x00,       // nop, offset 0
		0xaa,       // tableswitch, offset 1; pad = (4-(1+1)%4)%4 = 2
		0x00, 0x00, // 2 pad bytes
		0x00, 0x00, 0x00, 0x0a, // default = +10 -> target 1+10=11
		0x00, 0x00, 0x00, 0x01, // low = 1
		0x00, 0x00, 0x00, 0x02, // high = 2
		0x00, 0x00, 0x00, 0x14, // offset for 1 -> +20 -> target 21
		0x00, 0x00, 0x00, 0x15, // offset for 2 -> +21 -> target 22
	}
	insts, err := Decode(code)
	require.NoError(t, err)
	sw := insts[1].SwitchPayload
	require.NotNil(t, sw)
	require.Equal(t, 1, sw.Low)
	require.Equal(t, 2, sw.High)
	require.Equal(t, 11, sw.Default)
	require.Equal(t, 21, sw.Targets[1])
	require.Equal(t, 22, sw.Targets[2])
}

func TestDecodeUnknownOpcodeErrors(t *testing.T) {
	_, err := Decode([]byte{0xff})
	require.Error(t, err)
}

func TestDecodeTruncatedInstructionErrors(t *testing.T) {
	_, err := Decode([]byte{0x15}) // iload with no index byte
	require.Error(t, err)
}
