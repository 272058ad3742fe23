// Package instr is the declarative instruction model: each opcode
// exposes its size in the bytecode stream, the symbolic types it pops
// and pushes, and the locals it reads and writes, so the verifier
// (pkg/verify) and interpreter (pkg/interp) both ground their behavior
// in the same per-opcode table instead of duplicating a second ad hoc
// switch each. Parsing is table-driven: a byte-indexed data table plus
// one decode loop that also handles the wide prefix and the
// tableswitch/lookupswitch 4-byte-aligned payload forms a flat
// opcode-byte switch never needs to special-case.
package instr

import "fmt"

// TypeKind names a symbolic operand type; some types are symbolic
// rather than concrete JVM value kinds.
type TypeKind uint8

const (
	TInt TypeKind = iota
	TLong
	TFloat
	TDouble
	TReference
	TReturnAddress
	TCategory1  // any category-1 value, kind not further constrained
	TCategory2  // any category-2 value, kind not further constrained
	TSameAsPopK // "same as pop index k" — Index selects which popped slot
	TCPRefAt    // "reference class at constant-pool index i" — the instruction's own index operand names the class
	TArrayElem  // "array element type of pop index k" — element type of the array popped at Index
)

// Type is one symbolic pop/push type entry.
type Type struct {
	Kind TypeKind
	// Index is used by TSameAsPopK and TArrayElem to select which prior
	// pop the type derives from (0 = top of stack, pre-pop order as
	// listed in Pop).
	Index int
}

func cat1() Type             { return Type{Kind: TCategory1} }
func cat2() Type             { return Type{Kind: TCategory2} }
func ref() Type              { return Type{Kind: TReference} }
func i32() Type              { return Type{Kind: TInt} }
func i64() Type              { return Type{Kind: TLong} }
func f32() Type              { return Type{Kind: TFloat} }
func f64() Type              { return Type{Kind: TDouble} }
func sameAsPop(k int) Type   { return Type{Kind: TSameAsPopK, Index: k} }
func arrayElemOf(k int) Type { return Type{Kind: TArrayElem, Index: k} }
func cpRef() Type            { return Type{Kind: TCPRefAt} }

// LocalAccess is one (index, type) pair a locals-reading or
// locals-writing instruction touches.
type LocalAccess struct {
	Index int // -1 when the index is an instruction operand, resolved at decode time
	Type  Type
}

// Exception names one JVM exception kind an instruction may raise.
type Exception string

const (
	ExcNullPointer      Exception = "NullPointerException"
	ExcArithmetic       Exception = "ArithmeticException"
	ExcArrayIndex       Exception = "ArrayIndexOutOfBoundsException"
	ExcArrayStore       Exception = "ArrayStoreException"
	ExcClassCast        Exception = "ClassCastException"
	ExcNegativeArraySize Exception = "NegativeArraySizeException"
)

// Spec is the static, opcode-indexed metadata table entry.
type Spec struct {
	Opcode     byte
	Mnemonic   string
	// FixedSize is the instruction's total size_in_code (opcode byte
	// included) when it never varies; 0 for variable-size instructions
	// (tableswitch, lookupswitch, wide), whose size is computed during
	// decode from the payload.
	FixedSize int
	Pop       []Type
	Push      []Type
	// LocalsRead/LocalsWritten: a LocalAccess.Index of -1 means "the
	// instruction's own index operand", resolved against the decoded
	// Instruction.Index.
	LocalsRead    []LocalAccess
	LocalsWritten []LocalAccess
	Exceptions    []Exception
	// HasIndexOperand marks opcodes whose one- (or, under wide, two-)
	// byte operand is a locals or constant-pool index subject to the
	// wide prefix.
	HasIndexOperand bool
	// FixedIndexWidth marks opcodes whose index operand (a constant-pool
	// index, or newarray's atype byte) is always this many bytes wide,
	// never subject to the wide prefix (0 means not applicable; use
	// HasIndexOperand instead for locals indices).
	FixedIndexWidth int
	// TrailingBytes is the count of fixed bytes following the index
	// operand that this core does not interpret as part of Index itself
	// (invokeinterface's count+0, invokedynamic's 0+0) but still must
	// consume, except for multianewarray's dimensions byte, which decode.go
	// captures into Instruction.ExtraOperand instead of skipping.
	TrailingBytes int
	// IsSwitch marks tableswitch/lookupswitch, decoded specially.
	IsSwitch bool
}

// table is keyed by opcode byte. It is a representative, extensible
// subset of the full JVM opcode set: every category (constants,
// loads/stores of all categories, stack shuffles,
// arithmetic/conversion, comparison/branch, field/method access, object
// and array creation, type checks, switches, wide) has at least one
// opcode modeled; building out the remaining same-shaped opcodes (e.g.
// per-type dup/store variants already covered by dload/fstore/etc.) is
// adding table rows, not new machinery.
var table = map[byte]Spec{}

func register(s Spec) { table[s.Opcode] = s }

// Lookup returns the Spec for opcode, or (Spec{}, false) if unmodeled.
func Lookup(opcode byte) (Spec, bool) {
	s, ok := table[opcode]
	return s, ok
}

func init() {
	registerConstants()
	registerLoadsAndStores()
	registerStackOps()
	registerArithmetic()
	registerControl()
	registerFieldsAndMethods()
	registerObjectsAndArrays()
	registerMisc()
}

func registerConstants() {
	noOperand := func(op byte, mnem string, push ...Type) {
		register(Spec{Opcode: op, Mnemonic: mnem, FixedSize: 1, Push: push})
	}
	noOperand(0x00, "nop")
	noOperand(0x01, "aconst_null", ref())
	noOperand(0x02, "iconst_m1", i32())
	noOperand(0x03, "iconst_0", i32())
	noOperand(0x04, "iconst_1", i32())
	noOperand(0x05, "iconst_2", i32())
	noOperand(0x06, "iconst_3", i32())
	noOperand(0x07, "iconst_4", i32())
	noOperand(0x08, "iconst_5", i32())
	noOperand(0x09, "lconst_0", i64())
	noOperand(0x0a, "lconst_1", i64())
	noOperand(0x0b, "fconst_0", f32())
	noOperand(0x0c, "fconst_1", f32())
	noOperand(0x0d, "fconst_2", f32())
	noOperand(0x0e, "dconst_0", f64())
	noOperand(0x0f, "dconst_1", f64())
	register(Spec{Opcode: 0x10, Mnemonic: "bipush", FixedSize: 2, Push: []Type{i32()}, FixedIndexWidth: 1})
	register(Spec{Opcode: 0x11, Mnemonic: "sipush", FixedSize: 3, Push: []Type{i32()}, FixedIndexWidth: 2})
	register(Spec{Opcode: 0x12, Mnemonic: "ldc", FixedSize: 2, Push: []Type{cpRef()}, HasIndexOperand: true})
	register(Spec{Opcode: 0x13, Mnemonic: "ldc_w", FixedSize: 3, Push: []Type{cpRef()}, FixedIndexWidth: 2})
	register(Spec{Opcode: 0x14, Mnemonic: "ldc2_w", FixedSize: 3, Push: []Type{cat2()}, FixedIndexWidth: 2})
}

func registerLoadsAndStores() {
	load := func(op byte, mnem string, size int, t Type, idx int) {
		register(Spec{Opcode: op, Mnemonic: mnem, FixedSize: size, Push: []Type{t},
			LocalsRead: []LocalAccess{{Index: idx, Type: t}}, HasIndexOperand: size > 1})
	}
	store := func(op byte, mnem string, size int, t Type, idx int) {
		register(Spec{Opcode: op, Mnemonic: mnem, FixedSize: size, Pop: []Type{t},
			LocalsWritten: []LocalAccess{{Index: idx, Type: t}}, HasIndexOperand: size > 1})
	}
	load(0x15, "iload", 2, i32(), -1)
	load(0x16, "lload", 2, i64(), -1)
	load(0x17, "fload", 2, f32(), -1)
	load(0x18, "dload", 2, f64(), -1)
	load(0x19, "aload", 2, ref(), -1)
	for i := 0; i < 4; i++ {
		load(byte(0x1a+i), fmt.Sprintf("iload_%d", i), 1, i32(), i)
		load(byte(0x1e+i), fmt.Sprintf("lload_%d", i), 1, i64(), i)
		load(byte(0x22+i), fmt.Sprintf("fload_%d", i), 1, f32(), i)
		load(byte(0x26+i), fmt.Sprintf("dload_%d", i), 1, f64(), i)
		load(byte(0x2a+i), fmt.Sprintf("aload_%d", i), 1, ref(), i)
	}
	store(0x36, "istore", 2, i32(), -1)
	store(0x37, "lstore", 2, i64(), -1)
	store(0x38, "fstore", 2, f32(), -1)
	store(0x39, "dstore", 2, f64(), -1)
	store(0x3a, "astore", 2, ref(), -1)
	for i := 0; i < 4; i++ {
		store(byte(0x3b+i), fmt.Sprintf("istore_%d", i), 1, i32(), i)
		store(byte(0x3f+i), fmt.Sprintf("lstore_%d", i), 1, i64(), i)
		store(byte(0x43+i), fmt.Sprintf("fstore_%d", i), 1, f32(), i)
		store(byte(0x47+i), fmt.Sprintf("dstore_%d", i), 1, f64(), i)
		store(byte(0x4b+i), fmt.Sprintf("astore_%d", i), 1, ref(), i)
	}

	arrLoad := func(op byte, mnem string, t Type) {
		register(Spec{Opcode: op, Mnemonic: mnem, FixedSize: 1,
			Pop: []Type{i32(), ref()}, Push: []Type{t},
			Exceptions: []Exception{ExcNullPointer, ExcArrayIndex}})
	}
	arrStore := func(op byte, mnem string, t Type) {
		register(Spec{Opcode: op, Mnemonic: mnem, FixedSize: 1,
			Pop: []Type{t, i32(), ref()},
			Exceptions: []Exception{ExcNullPointer, ExcArrayIndex, ExcArrayStore}})
	}
	arrLoad(0x2e, "iaload", i32())
	arrLoad(0x2f, "laload", i64())
	arrLoad(0x30, "faload", f32())
	arrLoad(0x31, "daload", f64())
	arrLoad(0x32, "aaload", ref())
	arrLoad(0x33, "baload", i32())
	arrLoad(0x34, "caload", i32())
	arrLoad(0x35, "saload", i32())
	arrStore(0x4f, "iastore", i32())
	arrStore(0x50, "lastore", i64())
	arrStore(0x51, "fastore", f32())
	arrStore(0x52, "dastore", f64())
	arrStore(0x53, "aastore", ref())
	arrStore(0x54, "bastore", i32())
	arrStore(0x55, "castore", i32())
	arrStore(0x56, "sastore", i32())
}

func registerStackOps() {
	register(Spec{Opcode: 0x57, Mnemonic: "pop", FixedSize: 1, Pop: []Type{cat1()}})
	register(Spec{Opcode: 0x58, Mnemonic: "pop2", FixedSize: 1, Pop: []Type{cat2()}})
	register(Spec{Opcode: 0x59, Mnemonic: "dup", FixedSize: 1,
		Pop: []Type{cat1()}, Push: []Type{sameAsPop(0), sameAsPop(0)}})
	register(Spec{Opcode: 0x5a, Mnemonic: "dup_x1", FixedSize: 1,
		Pop:  []Type{cat1(), cat1()},
		Push: []Type{sameAsPop(0), sameAsPop(1), sameAsPop(0)}})
	register(Spec{Opcode: 0x5b, Mnemonic: "dup_x2", FixedSize: 1,
		Pop:  []Type{cat1(), cat1(), cat1()},
		Push: []Type{sameAsPop(0), sameAsPop(2), sameAsPop(1), sameAsPop(0)}})
	register(Spec{Opcode: 0x5c, Mnemonic: "dup2", FixedSize: 1,
		Pop: []Type{cat2()}, Push: []Type{sameAsPop(0), sameAsPop(0)}})
	register(Spec{Opcode: 0x5d, Mnemonic: "dup2_x1", FixedSize: 1,
		Pop:  []Type{cat2(), cat1()},
		Push: []Type{sameAsPop(0), sameAsPop(1), sameAsPop(0)}})
	register(Spec{Opcode: 0x5e, Mnemonic: "dup2_x2", FixedSize: 1,
		Pop:  []Type{cat2(), cat2()},
		Push: []Type{sameAsPop(0), sameAsPop(1), sameAsPop(0)}})
	register(Spec{Opcode: 0x5f, Mnemonic: "swap", FixedSize: 1,
		Pop: []Type{cat1(), cat1()}, Push: []Type{sameAsPop(0), sameAsPop(1)}})
}

func registerArithmetic() {
	binop := func(op byte, mnem string, t Type, excs ...Exception) {
		register(Spec{Opcode: op, Mnemonic: mnem, FixedSize: 1, Pop: []Type{t, t}, Push: []Type{t}, Exceptions: excs})
	}
	unop := func(op byte, mnem string, t Type) {
		register(Spec{Opcode: op, Mnemonic: mnem, FixedSize: 1, Pop: []Type{t}, Push: []Type{t}})
	}
	for i, t := range []Type{i32(), i64(), f32(), f64()} {
		base := byte(0x60 + i*4)
		binop(base, []string{"iadd", "ladd", "fadd", "dadd"}[i], t)
		binop(base+1, []string{"isub", "lsub", "fsub", "dsub"}[i], t)
		binop(base+2, []string{"imul", "lmul", "fmul", "dmul"}[i], t)
		if i < 2 {
			binop(base+3, []string{"idiv", "ldiv"}[i], t, ExcArithmetic)
		} else {
			binop(base+3, []string{"fdiv", "ddiv"}[i-2], t)
		}
	}
	binop(0x70, "irem", i32(), ExcArithmetic)
	binop(0x71, "lrem", i64(), ExcArithmetic)
	binop(0x72, "frem", f32())
	binop(0x73, "drem", f64())
	unop(0x74, "ineg", i32())
	unop(0x75, "lneg", i64())
	unop(0x76, "fneg", f32())
	unop(0x77, "dneg", f64())

	shift := func(op byte, mnem string, t Type) {
		register(Spec{Opcode: op, Mnemonic: mnem, FixedSize: 1, Pop: []Type{i32(), t}, Push: []Type{t}})
	}
	shift(0x78, "ishl", i32())
	shift(0x79, "lshl", i64())
	shift(0x7a, "ishr", i32())
	shift(0x7b, "lshr", i64())
	shift(0x7c, "iushr", i32())
	shift(0x7d, "lushr", i64())
	binop(0x7e, "iand", i32())
	binop(0x7f, "land", i64())
	binop(0x80, "ior", i32())
	binop(0x81, "lor", i64())
	binop(0x82, "ixor", i32())
	binop(0x83, "lxor", i64())

	register(Spec{Opcode: 0x84, Mnemonic: "iinc", FixedSize: 3,
		LocalsRead: []LocalAccess{{Index: -1, Type: i32()}}, LocalsWritten: []LocalAccess{{Index: -1, Type: i32()}},
		HasIndexOperand: true})

	conv := func(op byte, mnem string, from, to Type) {
		register(Spec{Opcode: op, Mnemonic: mnem, FixedSize: 1, Pop: []Type{from}, Push: []Type{to}})
	}
	conv(0x85, "i2l", i32(), i64())
	conv(0x86, "i2f", i32(), f32())
	conv(0x87, "i2d", i32(), f64())
	conv(0x88, "l2i", i64(), i32())
	conv(0x89, "l2f", i64(), f32())
	conv(0x8a, "l2d", i64(), f64())
	conv(0x8b, "f2i", f32(), i32())
	conv(0x8c, "f2l", f32(), i64())
	conv(0x8d, "f2d", f32(), f64())
	conv(0x8e, "d2i", f64(), i32())
	conv(0x8f, "d2l", f64(), i64())
	conv(0x90, "d2f", f64(), f32())
	conv(0x91, "i2b", i32(), i32())
	conv(0x92, "i2c", i32(), i32())
	conv(0x93, "i2s", i32(), i32())

	register(Spec{Opcode: 0x94, Mnemonic: "lcmp", FixedSize: 1, Pop: []Type{i64(), i64()}, Push: []Type{i32()}})
	register(Spec{Opcode: 0x95, Mnemonic: "fcmpl", FixedSize: 1, Pop: []Type{f32(), f32()}, Push: []Type{i32()}})
	register(Spec{Opcode: 0x96, Mnemonic: "fcmpg", FixedSize: 1, Pop: []Type{f32(), f32()}, Push: []Type{i32()}})
	register(Spec{Opcode: 0x97, Mnemonic: "dcmpl", FixedSize: 1, Pop: []Type{f64(), f64()}, Push: []Type{i32()}})
	register(Spec{Opcode: 0x98, Mnemonic: "dcmpg", FixedSize: 1, Pop: []Type{f64(), f64()}, Push: []Type{i32()}})
}

func registerControl() {
	unaryBranch := func(op byte, mnem string) {
		register(Spec{Opcode: op, Mnemonic: mnem, FixedSize: 3, Pop: []Type{i32()}})
	}
	binaryBranch := func(op byte, mnem string) {
		register(Spec{Opcode: op, Mnemonic: mnem, FixedSize: 3, Pop: []Type{i32(), i32()}})
	}
	for i, m := range []string{"ifeq", "ifne", "iflt", "ifge", "ifgt", "ifle"} {
		unaryBranch(byte(0x99+i), m)
	}
	for i, m := range []string{"if_icmpeq", "if_icmpne", "if_icmplt", "if_icmpge", "if_icmpgt", "if_icmple"} {
		binaryBranch(byte(0x9f+i), m)
	}
	register(Spec{Opcode: 0xa5, Mnemonic: "if_acmpeq", FixedSize: 3, Pop: []Type{ref(), ref()}})
	register(Spec{Opcode: 0xa6, Mnemonic: "if_acmpne", FixedSize: 3, Pop: []Type{ref(), ref()}})
	register(Spec{Opcode: 0xc6, Mnemonic: "ifnull", FixedSize: 3, Pop: []Type{ref()}})
	register(Spec{Opcode: 0xc7, Mnemonic: "ifnonnull", FixedSize: 3, Pop: []Type{ref()}})

	register(Spec{Opcode: 0xa7, Mnemonic: "goto", FixedSize: 3})
	register(Spec{Opcode: 0xc8, Mnemonic: "goto_w", FixedSize: 5})
	register(Spec{Opcode: 0xa8, Mnemonic: "jsr", FixedSize: 3, Push: []Type{Type{Kind: TReturnAddress}}})
	register(Spec{Opcode: 0xc9, Mnemonic: "jsr_w", FixedSize: 5, Push: []Type{Type{Kind: TReturnAddress}}})
	register(Spec{Opcode: 0xa9, Mnemonic: "ret", FixedSize: 2, HasIndexOperand: true})

	register(Spec{Opcode: 0xaa, Mnemonic: "tableswitch", IsSwitch: true, Pop: []Type{i32()}})
	register(Spec{Opcode: 0xab, Mnemonic: "lookupswitch", IsSwitch: true, Pop: []Type{i32()}})

	ret := func(op byte, mnem string, t ...Type) {
		register(Spec{Opcode: op, Mnemonic: mnem, FixedSize: 1, Pop: t})
	}
	ret(0xac, "ireturn", i32())
	ret(0xad, "lreturn", i64())
	ret(0xae, "freturn", f32())
	ret(0xaf, "dreturn", f64())
	ret(0xb0, "areturn", ref())
	register(Spec{Opcode: 0xb1, Mnemonic: "return", FixedSize: 1})
}

func registerFieldsAndMethods() {
	register(Spec{Opcode: 0xb2, Mnemonic: "getstatic", FixedSize: 3, Push: []Type{cpRef()}, FixedIndexWidth: 2})
	register(Spec{Opcode: 0xb3, Mnemonic: "putstatic", FixedSize: 3, Pop: []Type{cpRef()}, FixedIndexWidth: 2})
	register(Spec{Opcode: 0xb4, Mnemonic: "getfield", FixedSize: 3, Pop: []Type{ref()}, Push: []Type{cpRef()},
		FixedIndexWidth: 2, Exceptions: []Exception{ExcNullPointer}})
	register(Spec{Opcode: 0xb5, Mnemonic: "putfield", FixedSize: 3, Pop: []Type{cpRef(), ref()},
		FixedIndexWidth: 2, Exceptions: []Exception{ExcNullPointer}})
	register(Spec{Opcode: 0xb6, Mnemonic: "invokevirtual", FixedSize: 3, Pop: []Type{ref()},
		FixedIndexWidth: 2, Exceptions: []Exception{ExcNullPointer}})
	register(Spec{Opcode: 0xb7, Mnemonic: "invokespecial", FixedSize: 3, Pop: []Type{ref()},
		FixedIndexWidth: 2, Exceptions: []Exception{ExcNullPointer}})
	register(Spec{Opcode: 0xb8, Mnemonic: "invokestatic", FixedSize: 3, FixedIndexWidth: 2})
	register(Spec{Opcode: 0xb9, Mnemonic: "invokeinterface", FixedSize: 5, Pop: []Type{ref()},
		FixedIndexWidth: 2, TrailingBytes: 2, Exceptions: []Exception{ExcNullPointer}})
	register(Spec{Opcode: 0xba, Mnemonic: "invokedynamic", FixedSize: 5, FixedIndexWidth: 2, TrailingBytes: 2})
}

func registerObjectsAndArrays() {
	register(Spec{Opcode: 0xbb, Mnemonic: "new", FixedSize: 3, Push: []Type{cpRef()}, FixedIndexWidth: 2})
	register(Spec{Opcode: 0xbc, Mnemonic: "newarray", FixedSize: 2, Pop: []Type{i32()}, Push: []Type{ref()},
		FixedIndexWidth: 1, Exceptions: []Exception{ExcNegativeArraySize}})
	register(Spec{Opcode: 0xbd, Mnemonic: "anewarray", FixedSize: 3, Pop: []Type{i32()}, Push: []Type{ref()},
		FixedIndexWidth: 2, Exceptions: []Exception{ExcNegativeArraySize}})
	register(Spec{Opcode: 0xbe, Mnemonic: "arraylength", FixedSize: 1, Pop: []Type{ref()}, Push: []Type{i32()},
		Exceptions: []Exception{ExcNullPointer}})
	register(Spec{Opcode: 0xbf, Mnemonic: "athrow", FixedSize: 1, Pop: []Type{ref()}})
	register(Spec{Opcode: 0xc0, Mnemonic: "checkcast", FixedSize: 3, Pop: []Type{ref()}, Push: []Type{ref()},
		FixedIndexWidth: 2, Exceptions: []Exception{ExcClassCast}})
	register(Spec{Opcode: 0xc1, Mnemonic: "instanceof", FixedSize: 3, Pop: []Type{ref()}, Push: []Type{i32()}, FixedIndexWidth: 2})
	register(Spec{Opcode: 0xc2, Mnemonic: "monitorenter", FixedSize: 1, Pop: []Type{ref()},
		Exceptions: []Exception{ExcNullPointer}})
	register(Spec{Opcode: 0xc3, Mnemonic: "monitorexit", FixedSize: 1, Pop: []Type{ref()},
		Exceptions: []Exception{ExcNullPointer}})
	register(Spec{Opcode: 0xc5, Mnemonic: "multianewarray", FixedSize: 4,
		Push: []Type{ref()}, FixedIndexWidth: 2, TrailingBytes: 1, Exceptions: []Exception{ExcNegativeArraySize}})
}

func registerMisc() {
	register(Spec{Opcode: 0xc4, Mnemonic: "wide", FixedSize: 0})
}
