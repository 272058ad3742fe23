package interp

import (
	"fmt"
	"math"

	"github.com/corejvm/corejvm/pkg/classes"
	"github.com/corejvm/corejvm/pkg/classfile"
	"github.com/corejvm/corejvm/pkg/heap"
	"github.com/corejvm/corejvm/pkg/instr"
	"github.com/corejvm/corejvm/pkg/value"
)

// RunMethod builds a frame for method, seeds its locals from args, and
// interprets it to completion. Native methods are delegated to e.Native
// if set.
func (e *Env) RunMethod(c *classes.Class, m *classfile.MethodInfo, args []value.Value) (*RunOutcome, error) {
	if m.Code == nil {
		if e.Native != nil && m.AccessFlags&classfile.AccNative != 0 {
			return e.Native(c, m, args)
		}
		return nil, fmt.Errorf("interp: %s.%s%s has no Code and no native bridge", c.Name, m.Name, m.Descriptor)
	}
	f, err := NewFrame(c, m)
	if err != nil {
		return nil, err
	}
	idx := 0
	for _, a := range args {
		if err := f.SetLocal(idx, a); err != nil {
			return nil, err
		}
		idx++
		if a.Category() == 2 {
			idx++
		}
	}

	instrs, err := instr.Decode(f.Code.Code)
	if err != nil {
		return nil, fmt.Errorf("interp: decoding %s.%s%s: %w", c.Name, m.Name, m.Descriptor, err)
	}

	pc := 0
	for {
		ins, ok := instrs[pc]
		if !ok {
			return nil, fmt.Errorf("interp: %s.%s%s: no instruction at pc=%d", c.Name, m.Name, m.Descriptor, pc)
		}
		res, err := e.execOne(f, ins)
		if err != nil {
			return nil, fmt.Errorf("interp: %s.%s%s at pc=%d: %w", c.Name, m.Name, m.Descriptor, pc, err)
		}
		switch res.kind {
		case outcomeContinue:
			pc += ins.Size
		case outcomeBranch:
			pc = res.branchPC
		case outcomeReturnVoid:
			return &RunOutcome{}, nil
		case outcomeReturnValue:
			return &RunOutcome{Returned: true, Value: res.ret}, nil
		case outcomeThrow:
			excClass, cerr := e.dynamicClassOf(res.exception)
			if cerr != nil {
				return nil, cerr
			}
			if handlerPC, ok := e.findHandler(f, pc, excClass); ok {
				f.Stack = f.Stack[:0]
				if err := f.Push(res.exception); err != nil {
					return nil, err
				}
				pc = handlerPC
				continue
			}
			return &RunOutcome{Thrown: true, Exception: res.exception}, nil
		}
	}
}

// execOne executes a single decoded instruction against frame f.
func (e *Env) execOne(f *Frame, ins *instr.Instruction) (stepResult, error) {
	switch ins.Spec.Mnemonic {

	// --- constants ---
	case "nop":
		return contResult(), nil
	case "aconst_null":
		return contResult(), f.Push(value.Null())
	case "iconst_m1", "iconst_0", "iconst_1", "iconst_2", "iconst_3", "iconst_4", "iconst_5":
		return contResult(), f.Push(value.Int(int32(ins.Spec.Opcode) - 0x03))
	case "lconst_0", "lconst_1":
		return contResult(), f.Push(value.Long(int64(ins.Spec.Opcode) - 0x09))
	case "fconst_0", "fconst_1", "fconst_2":
		return contResult(), f.Push(value.Float(float32(ins.Spec.Opcode) - 0x0b))
	case "dconst_0", "dconst_1":
		return contResult(), f.Push(value.Double(float64(ins.Spec.Opcode) - 0x0e))
	case "bipush":
		return contResult(), f.Push(value.Int(int32(int8(ins.Index))))
	case "sipush":
		return contResult(), f.Push(value.Int(int32(int16(ins.Index))))
	case "ldc", "ldc_w":
		return e.execLdc(f, ins)
	case "ldc2_w":
		return e.execLdc2(f, ins)

	// --- loads/stores ---
	case "iload", "iload_0", "iload_1", "iload_2", "iload_3",
		"fload", "fload_0", "fload_1", "fload_2", "fload_3",
		"lload", "lload_0", "lload_1", "lload_2", "lload_3",
		"dload", "dload_0", "dload_1", "dload_2", "dload_3",
		"aload", "aload_0", "aload_1", "aload_2", "aload_3":
		v, err := f.GetLocal(ins.Index)
		if err != nil {
			return stepResult{}, err
		}
		return contResult(), f.Push(v)
	case "istore", "istore_0", "istore_1", "istore_2", "istore_3",
		"fstore", "fstore_0", "fstore_1", "fstore_2", "fstore_3",
		"lstore", "lstore_0", "lstore_1", "lstore_2", "lstore_3",
		"dstore", "dstore_0", "dstore_1", "dstore_2", "dstore_3",
		"astore", "astore_0", "astore_1", "astore_2", "astore_3":
		v, err := f.Pop()
		if err != nil {
			return stepResult{}, err
		}
		return contResult(), f.SetLocal(ins.Index, v)
	case "iinc":
		v, err := f.GetLocal(ins.Index)
		if err != nil {
			return stepResult{}, err
		}
		return contResult(), f.SetLocal(ins.Index, value.Int(v.I32+int32(ins.IncAmount)))

	// --- array loads/stores ---
	case "iaload", "laload", "faload", "daload", "aaload", "baload", "caload", "saload":
		return e.execArrayLoad(f)
	case "iastore", "lastore", "fastore", "dastore", "aastore", "bastore", "castore", "sastore":
		return e.execArrayStore(f)

	// --- stack ops ---
	case "pop":
		_, err := f.Pop()
		return contResult(), err
	case "pop2":
		v, err := f.Pop()
		if err != nil {
			return stepResult{}, err
		}
		if v.Category() == 2 {
			return contResult(), nil
		}
		_, err = f.Pop()
		return contResult(), err
	case "dup":
		v, err := f.Pop()
		if err != nil {
			return stepResult{}, err
		}
		f.Push(v)
		return contResult(), f.Push(v)
	case "dup_x1":
		v1, err := f.Pop()
		if err != nil {
			return stepResult{}, err
		}
		v2, err := f.Pop()
		if err != nil {
			return stepResult{}, err
		}
		f.Push(v1)
		f.Push(v2)
		return contResult(), f.Push(v1)
	case "dup_x2":
		v1, err := f.Pop()
		if err != nil {
			return stepResult{}, err
		}
		v2, err := f.Pop()
		if err != nil {
			return stepResult{}, err
		}
		if v2.Category() == 2 {
			// form 2: cat1, cat2 -> v1, v2, v1
			f.Push(v1)
			f.Push(v2)
			return contResult(), f.Push(v1)
		}
		v3, err := f.Pop()
		if err != nil {
			return stepResult{}, err
		}
		f.Push(v1)
		f.Push(v3)
		f.Push(v2)
		return contResult(), f.Push(v1)
	case "dup2":
		v1, err := f.Pop()
		if err != nil {
			return stepResult{}, err
		}
		if v1.Category() == 2 {
			f.Push(v1)
			return contResult(), f.Push(v1)
		}
		v2, err := f.Pop()
		if err != nil {
			return stepResult{}, err
		}
		f.Push(v2)
		f.Push(v1)
		f.Push(v2)
		return contResult(), f.Push(v1)
	case "dup2_x1":
		v1, err := f.Pop()
		if err != nil {
			return stepResult{}, err
		}
		if v1.Category() == 2 {
			// form 2: cat2, cat1 -> v1, v2, v1
			v2, err := f.Pop()
			if err != nil {
				return stepResult{}, err
			}
			f.Push(v1)
			f.Push(v2)
			return contResult(), f.Push(v1)
		}
		v2, err := f.Pop()
		if err != nil {
			return stepResult{}, err
		}
		v3, err := f.Pop()
		if err != nil {
			return stepResult{}, err
		}
		f.Push(v2)
		f.Push(v1)
		f.Push(v3)
		f.Push(v2)
		return contResult(), f.Push(v1)
	case "dup2_x2":
		v1, err := f.Pop()
		if err != nil {
			return stepResult{}, err
		}
		v2, err := f.Pop()
		if err != nil {
			return stepResult{}, err
		}
		if v1.Category() == 2 {
			if v2.Category() == 2 {
				// form 4: cat2, cat2 -> v1, v2, v1
				f.Push(v1)
				f.Push(v2)
				return contResult(), f.Push(v1)
			}
			// form 3: cat2, cat1, cat1 -> v1, v3, v2, v1
			v3, err := f.Pop()
			if err != nil {
				return stepResult{}, err
			}
			f.Push(v1)
			f.Push(v3)
			f.Push(v2)
			return contResult(), f.Push(v1)
		}
		v3, err := f.Pop()
		if err != nil {
			return stepResult{}, err
		}
		if v3.Category() == 2 {
			// form 2: cat1, cat1, cat2 -> v2, v1, v3, v2, v1
			f.Push(v2)
			f.Push(v1)
			f.Push(v3)
			f.Push(v2)
			return contResult(), f.Push(v1)
		}
		// form 1: cat1, cat1, cat1, cat1 -> v2, v1, v4, v3, v2, v1
		v4, err := f.Pop()
		if err != nil {
			return stepResult{}, err
		}
		f.Push(v2)
		f.Push(v1)
		f.Push(v4)
		f.Push(v3)
		f.Push(v2)
		return contResult(), f.Push(v1)
	case "swap":
		v1, err := f.Pop()
		if err != nil {
			return stepResult{}, err
		}
		v2, err := f.Pop()
		if err != nil {
			return stepResult{}, err
		}
		f.Push(v1)
		return contResult(), f.Push(v2)

	// --- arithmetic / conversions / comparisons ---
	case "iadd", "isub", "imul", "idiv", "irem", "iand", "ior", "ixor",
		"ladd", "lsub", "lmul", "ldiv", "lrem", "land", "lor", "lxor",
		"fadd", "fsub", "fmul", "fdiv", "frem",
		"dadd", "dsub", "dmul", "ddiv", "drem",
		"ishl", "ishr", "iushr", "lshl", "lshr", "lushr":
		return e.execBinary(f, ins.Spec.Mnemonic)
	case "ineg", "lneg", "fneg", "dneg":
		return e.execUnaryNeg(f, ins.Spec.Mnemonic)
	case "i2l", "i2f", "i2d", "l2i", "l2f", "l2d", "f2i", "f2l", "f2d", "d2i", "d2l", "d2f", "i2b", "i2c", "i2s":
		return e.execConvert(f, ins.Spec.Mnemonic)
	case "lcmp":
		return e.execLcmp(f)
	case "fcmpl", "fcmpg", "dcmpl", "dcmpg":
		return e.execFpCmp(f, ins.Spec.Mnemonic)

	// --- control flow ---
	case "ifeq", "ifne", "iflt", "ifge", "ifgt", "ifle":
		return e.execUnaryBranch(f, ins)
	case "if_icmpeq", "if_icmpne", "if_icmplt", "if_icmpge", "if_icmpgt", "if_icmple":
		return e.execIntBinaryBranch(f, ins)
	case "if_acmpeq", "if_acmpne":
		return e.execRefBinaryBranch(f, ins)
	case "ifnull", "ifnonnull":
		return e.execNullBranch(f, ins)
	case "goto", "goto_w":
		return branchResult(ins.BranchTarget), nil
	case "tableswitch", "lookupswitch":
		return e.execSwitch(f, ins)
	case "ireturn", "freturn", "lreturn", "dreturn", "areturn":
		v, err := f.Pop()
		if err != nil {
			return stepResult{}, err
		}
		return returnValueResult(v), nil
	case "return":
		return returnVoidResult(), nil

	// --- fields ---
	case "getstatic":
		return e.execGetStatic(f, ins)
	case "putstatic":
		return e.execPutStatic(f, ins)
	case "getfield":
		return e.execGetField(f, ins)
	case "putfield":
		return e.execPutField(f, ins)

	// --- invocation ---
	case "invokestatic", "invokevirtual", "invokespecial", "invokeinterface", "invokedynamic":
		return e.execInvoke(f, ins)

	// --- objects/arrays ---
	case "new":
		return e.execNew(f, ins)
	case "newarray":
		return e.execNewArray(f, ins)
	case "anewarray":
		return e.execANewArray(f, ins)
	case "multianewarray":
		return e.execMultiANewArray(f, ins)
	case "arraylength":
		return e.execArrayLength(f)
	case "athrow":
		v, err := f.Pop()
		if err != nil {
			return stepResult{}, err
		}
		if v.IsNull() {
			return e.Throw(ExcNullPointer, "")
		}
		classID, err := e.dynamicClassOf(v)
		if err != nil {
			return stepResult{}, err
		}
		if !e.isThrowable(classID) {
			return e.Throw(ExcVerifyError, "athrow operand does not extend java/lang/Throwable")
		}
		return throwResult(v), nil
	case "checkcast":
		return e.execCheckCast(f, ins)
	case "instanceof":
		return e.execInstanceOf(f, ins)
	case "monitorenter", "monitorexit":
		_, err := f.Pop()
		return contResult(), err

	default:
		return stepResult{}, fmt.Errorf("unimplemented opcode %s (0x%02x)", ins.Spec.Mnemonic, ins.Spec.Opcode)
	}
}

func (e *Env) execArrayLoad(f *Frame) (stepResult, error) {
	index, err := f.Pop()
	if err != nil {
		return stepResult{}, err
	}
	arr, err := f.Pop()
	if err != nil {
		return stepResult{}, err
	}
	if arr.IsNull() {
		return e.Throw(ExcNullPointer, "")
	}
	ref, ok := arr.Ref.(heap.Ref)
	if !ok {
		return stepResult{}, fmt.Errorf("array load on non-array reference")
	}
	kind, err := e.Heap.Kind(ref)
	if err != nil {
		return stepResult{}, err
	}
	i := int(index.I32)
	switch kind {
	case heap.KindPrimitiveArray:
		pa, err := e.Heap.PrimitiveArray(ref)
		if err != nil {
			return stepResult{}, err
		}
		if i < 0 || i >= len(pa.Values) {
			return e.Throw(ExcArrayIndexOutOfBounds, fmt.Sprintf("index %d out of bounds for length %d", i, len(pa.Values)))
		}
		return contResult(), f.Push(pa.Values[i])
	case heap.KindReferenceArray:
		ra, err := e.Heap.ReferenceArray(ref)
		if err != nil {
			return stepResult{}, err
		}
		if i < 0 || i >= len(ra.Values) {
			return e.Throw(ExcArrayIndexOutOfBounds, fmt.Sprintf("index %d out of bounds for length %d", i, len(ra.Values)))
		}
		elem := ra.Values[i]
		if elem == 0 {
			return contResult(), f.Push(value.Null())
		}
		elemName, _ := e.Names.Name(ra.ElemClass)
		return contResult(), f.Push(value.RefOf(elem, elemName))
	default:
		return stepResult{}, fmt.Errorf("array load on non-array heap kind %d", kind)
	}
}

func (e *Env) execArrayStore(f *Frame) (stepResult, error) {
	val, err := f.Pop()
	if err != nil {
		return stepResult{}, err
	}
	index, err := f.Pop()
	if err != nil {
		return stepResult{}, err
	}
	arr, err := f.Pop()
	if err != nil {
		return stepResult{}, err
	}
	if arr.IsNull() {
		return e.Throw(ExcNullPointer, "")
	}
	ref, ok := arr.Ref.(heap.Ref)
	if !ok {
		return stepResult{}, fmt.Errorf("array store on non-array reference")
	}
	kind, err := e.Heap.Kind(ref)
	if err != nil {
		return stepResult{}, err
	}
	i := int(index.I32)
	switch kind {
	case heap.KindPrimitiveArray:
		pa, err := e.Heap.PrimitiveArray(ref)
		if err != nil {
			return stepResult{}, err
		}
		if i < 0 || i >= len(pa.Values) {
			return e.Throw(ExcArrayIndexOutOfBounds, fmt.Sprintf("index %d out of bounds for length %d", i, len(pa.Values)))
		}
		pa.Values[i] = val
		return contResult(), nil
	case heap.KindReferenceArray:
		ra, err := e.Heap.ReferenceArray(ref)
		if err != nil {
			return stepResult{}, err
		}
		if i < 0 || i >= len(ra.Values) {
			return e.Throw(ExcArrayIndexOutOfBounds, fmt.Sprintf("index %d out of bounds for length %d", i, len(ra.Values)))
		}
		if !val.IsNull() {
			ok, err := e.instanceOf(val, ra.ElemClass)
			if err != nil {
				return stepResult{}, err
			}
			if !ok {
				return e.Throw(ExcArrayStore, "element type mismatch")
			}
		}
		var elemRef heap.Ref
		if !val.IsNull() {
			elemRef, _ = val.Ref.(heap.Ref)
		}
		ra.Values[i] = elemRef
		return contResult(), nil
	default:
		return stepResult{}, fmt.Errorf("array store on non-array heap kind %d", kind)
	}
}

func (e *Env) execBinary(f *Frame, mnem string) (stepResult, error) {
	b, err := f.Pop()
	if err != nil {
		return stepResult{}, err
	}
	a, err := f.Pop()
	if err != nil {
		return stepResult{}, err
	}
	switch mnem {
	case "iadd":
		return contResult(), f.Push(value.Int(a.I32 + b.I32))
	case "isub":
		return contResult(), f.Push(value.Int(a.I32 - b.I32))
	case "imul":
		return contResult(), f.Push(value.Int(a.I32 * b.I32))
	case "idiv":
		if b.I32 == 0 {
			return e.Throw(ExcArithmetic, "/ by zero")
		}
		return contResult(), f.Push(value.Int(a.I32 / b.I32))
	case "irem":
		if b.I32 == 0 {
			return e.Throw(ExcArithmetic, "/ by zero")
		}
		return contResult(), f.Push(value.Int(a.I32 % b.I32))
	case "iand":
		return contResult(), f.Push(value.Int(a.I32 & b.I32))
	case "ior":
		return contResult(), f.Push(value.Int(a.I32 | b.I32))
	case "ixor":
		return contResult(), f.Push(value.Int(a.I32 ^ b.I32))
	case "ishl":
		return contResult(), f.Push(value.Int(a.I32 << (uint32(b.I32) & 0x1f)))
	case "ishr":
		return contResult(), f.Push(value.Int(a.I32 >> (uint32(b.I32) & 0x1f)))
	case "iushr":
		return contResult(), f.Push(value.Int(int32(uint32(a.I32) >> (uint32(b.I32) & 0x1f))))

	case "ladd":
		return contResult(), f.Push(value.Long(a.I64 + b.I64))
	case "lsub":
		return contResult(), f.Push(value.Long(a.I64 - b.I64))
	case "lmul":
		return contResult(), f.Push(value.Long(a.I64 * b.I64))
	case "ldiv":
		if b.I64 == 0 {
			return e.Throw(ExcArithmetic, "/ by zero")
		}
		return contResult(), f.Push(value.Long(a.I64 / b.I64))
	case "lrem":
		if b.I64 == 0 {
			return e.Throw(ExcArithmetic, "/ by zero")
		}
		return contResult(), f.Push(value.Long(a.I64 % b.I64))
	case "land":
		return contResult(), f.Push(value.Long(a.I64 & b.I64))
	case "lor":
		return contResult(), f.Push(value.Long(a.I64 | b.I64))
	case "lxor":
		return contResult(), f.Push(value.Long(a.I64 ^ b.I64))
	case "lshl":
		return contResult(), f.Push(value.Long(a.I64 << (uint64(b.I32) & 0x3f)))
	case "lshr":
		return contResult(), f.Push(value.Long(a.I64 >> (uint64(b.I32) & 0x3f)))
	case "lushr":
		return contResult(), f.Push(value.Long(int64(uint64(a.I64) >> (uint64(b.I32) & 0x3f))))

	case "fadd":
		return contResult(), f.Push(value.Float(a.F32 + b.F32))
	case "fsub":
		return contResult(), f.Push(value.Float(a.F32 - b.F32))
	case "fmul":
		return contResult(), f.Push(value.Float(a.F32 * b.F32))
	case "fdiv":
		return contResult(), f.Push(value.Float(a.F32 / b.F32))
	case "frem":
		return contResult(), f.Push(value.Float(float32(math.Mod(float64(a.F32), float64(b.F32)))))

	case "dadd":
		return contResult(), f.Push(value.Double(a.F64 + b.F64))
	case "dsub":
		return contResult(), f.Push(value.Double(a.F64 - b.F64))
	case "dmul":
		return contResult(), f.Push(value.Double(a.F64 * b.F64))
	case "ddiv":
		return contResult(), f.Push(value.Double(a.F64 / b.F64))
	case "drem":
		return contResult(), f.Push(value.Double(math.Mod(a.F64, b.F64)))
	default:
		return stepResult{}, fmt.Errorf("unimplemented binary op %s", mnem)
	}
}

func (e *Env) execUnaryNeg(f *Frame, mnem string) (stepResult, error) {
	v, err := f.Pop()
	if err != nil {
		return stepResult{}, err
	}
	switch mnem {
	case "ineg":
		return contResult(), f.Push(value.Int(-v.I32))
	case "lneg":
		return contResult(), f.Push(value.Long(-v.I64))
	case "fneg":
		return contResult(), f.Push(value.Float(-v.F32))
	case "dneg":
		return contResult(), f.Push(value.Double(-v.F64))
	default:
		return stepResult{}, fmt.Errorf("unimplemented unary op %s", mnem)
	}
}

func (e *Env) execConvert(f *Frame, mnem string) (stepResult, error) {
	v, err := f.Pop()
	if err != nil {
		return stepResult{}, err
	}
	switch mnem {
	case "i2l":
		return contResult(), f.Push(value.Long(int64(v.I32)))
	case "i2f":
		return contResult(), f.Push(value.Float(float32(v.I32)))
	case "i2d":
		return contResult(), f.Push(value.Double(float64(v.I32)))
	case "l2i":
		return contResult(), f.Push(value.Int(int32(v.I64)))
	case "l2f":
		return contResult(), f.Push(value.Float(float32(v.I64)))
	case "l2d":
		return contResult(), f.Push(value.Double(float64(v.I64)))
	case "f2i":
		return contResult(), f.Push(value.Int(floatToInt32(v.F32)))
	case "f2l":
		return contResult(), f.Push(value.Long(floatToInt64(v.F32)))
	case "f2d":
		return contResult(), f.Push(value.Double(float64(v.F32)))
	case "d2i":
		return contResult(), f.Push(value.Int(doubleToInt32(v.F64)))
	case "d2l":
		return contResult(), f.Push(value.Long(doubleToInt64(v.F64)))
	case "d2f":
		return contResult(), f.Push(value.Float(float32(v.F64)))
	case "i2b":
		return contResult(), f.Push(value.Int(int32(int8(v.I32))))
	case "i2c":
		return contResult(), f.Push(value.Int(int32(uint16(v.I32))))
	case "i2s":
		return contResult(), f.Push(value.Int(int32(int16(v.I32))))
	default:
		return stepResult{}, fmt.Errorf("unimplemented conversion %s", mnem)
	}
}

// floatToInt32/floatToInt64/doubleToInt32/doubleToInt64 implement the
// JVM's NaN-to-zero, saturating narrowing conversions (JVM spec §2.8.3),
// which Go's own float-to-int conversion does not provide.
func floatToInt32(v float32) int32 {
	if math.IsNaN(float64(v)) {
		return 0
	}
	if v >= math.MaxInt32 {
		return math.MaxInt32
	}
	if v <= math.MinInt32 {
		return math.MinInt32
	}
	return int32(v)
}

func floatToInt64(v float32) int64 {
	if math.IsNaN(float64(v)) {
		return 0
	}
	if v >= math.MaxInt64 {
		return math.MaxInt64
	}
	if v <= math.MinInt64 {
		return math.MinInt64
	}
	return int64(v)
}

func doubleToInt32(v float64) int32 {
	if math.IsNaN(v) {
		return 0
	}
	if v >= math.MaxInt32 {
		return math.MaxInt32
	}
	if v <= math.MinInt32 {
		return math.MinInt32
	}
	return int32(v)
}

func doubleToInt64(v float64) int64 {
	if math.IsNaN(v) {
		return 0
	}
	if v >= math.MaxInt64 {
		return math.MaxInt64
	}
	if v <= math.MinInt64 {
		return math.MinInt64
	}
	return int64(v)
}

func (e *Env) execLcmp(f *Frame) (stepResult, error) {
	b, err := f.Pop()
	if err != nil {
		return stepResult{}, err
	}
	a, err := f.Pop()
	if err != nil {
		return stepResult{}, err
	}
	switch {
	case a.I64 > b.I64:
		return contResult(), f.Push(value.Int(1))
	case a.I64 < b.I64:
		return contResult(), f.Push(value.Int(-1))
	default:
		return contResult(), f.Push(value.Int(0))
	}
}

// execFpCmp implements fcmpl/fcmpg/dcmpl/dcmpg's NaN tie-breaking: the
// G-forms push 1 and the L-forms push -1 when either operand is NaN
// (JVM spec §6.5.fcmp<op>).
func (e *Env) execFpCmp(f *Frame, mnem string) (stepResult, error) {
	b, err := f.Pop()
	if err != nil {
		return stepResult{}, err
	}
	a, err := f.Pop()
	if err != nil {
		return stepResult{}, err
	}
	var x, y float64
	var isG bool
	switch mnem {
	case "fcmpl":
		x, y, isG = float64(a.F32), float64(b.F32), false
	case "fcmpg":
		x, y, isG = float64(a.F32), float64(b.F32), true
	case "dcmpl":
		x, y, isG = a.F64, b.F64, false
	case "dcmpg":
		x, y, isG = a.F64, b.F64, true
	}
	if math.IsNaN(x) || math.IsNaN(y) {
		if isG {
			return contResult(), f.Push(value.Int(1))
		}
		return contResult(), f.Push(value.Int(-1))
	}
	switch {
	case x > y:
		return contResult(), f.Push(value.Int(1))
	case x < y:
		return contResult(), f.Push(value.Int(-1))
	default:
		return contResult(), f.Push(value.Int(0))
	}
}

func (e *Env) execUnaryBranch(f *Frame, ins *instr.Instruction) (stepResult, error) {
	v, err := f.Pop()
	if err != nil {
		return stepResult{}, err
	}
	var take bool
	switch ins.Spec.Mnemonic {
	case "ifeq":
		take = v.I32 == 0
	case "ifne":
		take = v.I32 != 0
	case "iflt":
		take = v.I32 < 0
	case "ifge":
		take = v.I32 >= 0
	case "ifgt":
		take = v.I32 > 0
	case "ifle":
		take = v.I32 <= 0
	}
	if take {
		return branchResult(ins.BranchTarget), nil
	}
	return contResult(), nil
}

func (e *Env) execIntBinaryBranch(f *Frame, ins *instr.Instruction) (stepResult, error) {
	b, err := f.Pop()
	if err != nil {
		return stepResult{}, err
	}
	a, err := f.Pop()
	if err != nil {
		return stepResult{}, err
	}
	var take bool
	switch ins.Spec.Mnemonic {
	case "if_icmpeq":
		take = a.I32 == b.I32
	case "if_icmpne":
		take = a.I32 != b.I32
	case "if_icmplt":
		take = a.I32 < b.I32
	case "if_icmpge":
		take = a.I32 >= b.I32
	case "if_icmpgt":
		take = a.I32 > b.I32
	case "if_icmple":
		take = a.I32 <= b.I32
	}
	if take {
		return branchResult(ins.BranchTarget), nil
	}
	return contResult(), nil
}

func (e *Env) execRefBinaryBranch(f *Frame, ins *instr.Instruction) (stepResult, error) {
	b, err := f.Pop()
	if err != nil {
		return stepResult{}, err
	}
	a, err := f.Pop()
	if err != nil {
		return stepResult{}, err
	}
	same := heap.IsSameObject(refOrZero(a), refOrZero(b)) && a.IsNull() == b.IsNull()
	take := same
	if ins.Spec.Mnemonic == "if_acmpne" {
		take = !same
	}
	if take {
		return branchResult(ins.BranchTarget), nil
	}
	return contResult(), nil
}

func refOrZero(v value.Value) heap.Ref {
	if r, ok := v.Ref.(heap.Ref); ok {
		return r
	}
	return 0
}

func (e *Env) execNullBranch(f *Frame, ins *instr.Instruction) (stepResult, error) {
	v, err := f.Pop()
	if err != nil {
		return stepResult{}, err
	}
	take := v.IsNull()
	if ins.Spec.Mnemonic == "ifnonnull" {
		take = !take
	}
	if take {
		return branchResult(ins.BranchTarget), nil
	}
	return contResult(), nil
}

func (e *Env) execSwitch(f *Frame, ins *instr.Instruction) (stepResult, error) {
	v, err := f.Pop()
	if err != nil {
		return stepResult{}, err
	}
	if target, ok := ins.SwitchPayload.Targets[v.I32]; ok {
		return branchResult(target), nil
	}
	return branchResult(ins.SwitchPayload.Default), nil
}

func (e *Env) execArrayLength(f *Frame) (stepResult, error) {
	v, err := f.Pop()
	if err != nil {
		return stepResult{}, err
	}
	if v.IsNull() {
		return e.Throw(ExcNullPointer, "")
	}
	ref, ok := v.Ref.(heap.Ref)
	if !ok {
		return stepResult{}, fmt.Errorf("arraylength on non-array reference")
	}
	kind, err := e.Heap.Kind(ref)
	if err != nil {
		return stepResult{}, err
	}
	switch kind {
	case heap.KindPrimitiveArray:
		pa, err := e.Heap.PrimitiveArray(ref)
		if err != nil {
			return stepResult{}, err
		}
		return contResult(), f.Push(value.Int(int32(len(pa.Values))))
	case heap.KindReferenceArray:
		ra, err := e.Heap.ReferenceArray(ref)
		if err != nil {
			return stepResult{}, err
		}
		return contResult(), f.Push(value.Int(int32(len(ra.Values))))
	default:
		return stepResult{}, fmt.Errorf("arraylength on non-array heap kind %d", kind)
	}
}
