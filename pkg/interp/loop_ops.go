package interp

import (
	"fmt"

	"github.com/corejvm/corejvm/pkg/classfile"
	"github.com/corejvm/corejvm/pkg/instr"
	"github.com/corejvm/corejvm/pkg/methods"
	"github.com/corejvm/corejvm/pkg/names"
	"github.com/corejvm/corejvm/pkg/value"
)

// execLdc implements ldc/ldc_w: loads a single-slot constant (int,
// float, string literal, or Class mirror) onto the operand stack.
func (e *Env) execLdc(f *Frame, ins *instr.Instruction) (stepResult, error) {
	pool := f.Class.View.ConstantPool
	idx := uint16(ins.Index)
	if int(idx) >= len(pool) || pool[idx] == nil {
		return stepResult{}, fmt.Errorf("ldc: invalid constant pool index %d", idx)
	}
	switch c := pool[idx].(type) {
	case *classfile.ConstantInteger:
		return contResult(), f.Push(value.Int(c.Value))
	case *classfile.ConstantFloat:
		return contResult(), f.Push(value.Float(c.Value))
	case *classfile.ConstantString:
		s, err := classfile.GetUtf8(pool, c.StringIndex)
		if err != nil {
			return stepResult{}, err
		}
		v, err := e.newString(s)
		if err != nil {
			return stepResult{}, err
		}
		return contResult(), f.Push(v)
	case *classfile.ConstantClass:
		name, err := classfile.GetClassName(pool, idx)
		if err != nil {
			return stepResult{}, err
		}
		id := e.Names.Intern(name)
		v, err := e.classMirror(id)
		if err != nil {
			return stepResult{}, err
		}
		return contResult(), f.Push(v)
	default:
		return stepResult{}, fmt.Errorf("ldc: unsupported constant kind at index %d", idx)
	}
}

// execLdc2 implements ldc2_w: loads a category-2 constant (long or
// double).
func (e *Env) execLdc2(f *Frame, ins *instr.Instruction) (stepResult, error) {
	pool := f.Class.View.ConstantPool
	idx := uint16(ins.Index)
	if int(idx) >= len(pool) || pool[idx] == nil {
		return stepResult{}, fmt.Errorf("ldc2_w: invalid constant pool index %d", idx)
	}
	switch c := pool[idx].(type) {
	case *classfile.ConstantLong:
		return contResult(), f.Push(value.Long(c.Value))
	case *classfile.ConstantDouble:
		return contResult(), f.Push(value.Double(c.Value))
	default:
		return stepResult{}, fmt.Errorf("ldc2_w: unsupported constant kind at index %d", idx)
	}
}

func (e *Env) execGetStatic(f *Frame, ins *instr.Instruction) (stepResult, error) {
	fr, err := e.resolveFieldAt(f, ins)
	if err != nil {
		return stepResult{}, err
	}
	v, err := e.getStatic(fr)
	if err != nil {
		return stepResult{}, err
	}
	return contResult(), f.Push(v)
}

func (e *Env) execPutStatic(f *Frame, ins *instr.Instruction) (stepResult, error) {
	fr, err := e.resolveFieldAt(f, ins)
	if err != nil {
		return stepResult{}, err
	}
	v, err := f.Pop()
	if err != nil {
		return stepResult{}, err
	}
	return contResult(), e.putStatic(fr, v)
}

func (e *Env) execGetField(f *Frame, ins *instr.Instruction) (stepResult, error) {
	fr, err := e.resolveFieldAt(f, ins)
	if err != nil {
		return stepResult{}, err
	}
	receiver, err := f.Pop()
	if err != nil {
		return stepResult{}, err
	}
	res, v, err := e.getField(receiver, fr)
	if err != nil || res.kind == outcomeThrow {
		return res, err
	}
	return contResult(), f.Push(v)
}

func (e *Env) execPutField(f *Frame, ins *instr.Instruction) (stepResult, error) {
	fr, err := e.resolveFieldAt(f, ins)
	if err != nil {
		return stepResult{}, err
	}
	v, err := f.Pop()
	if err != nil {
		return stepResult{}, err
	}
	receiver, err := f.Pop()
	if err != nil {
		return stepResult{}, err
	}
	return e.putField(receiver, fr, v)
}

// resolveFieldAt resolves the fieldref the instruction's constant-pool
// index names, against the current frame's declaring class.
func (e *Env) resolveFieldAt(f *Frame, ins *instr.Instruction) (*resolvedField, error) {
	fref, err := classfile.ResolveFieldref(f.Class.View.ConstantPool, uint16(ins.Index))
	if err != nil {
		return nil, err
	}
	class := e.Names.Intern(fref.ClassName)
	if err := e.Classes.Derive(class); err != nil {
		return nil, err
	}
	return e.resolveField(class, fref.FieldName, fref.Descriptor)
}

// popArgs pops n operand-stack values and returns them in original
// left-to-right (push) order.
func popArgs(f *Frame, n int) ([]value.Value, error) {
	args := make([]value.Value, n)
	for i := n - 1; i >= 0; i-- {
		v, err := f.Pop()
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

func (e *Env) outcomeToStep(f *Frame, out *RunOutcome) (stepResult, error) {
	if out.Thrown {
		return throwResult(out.Exception), nil
	}
	if out.Returned {
		return contResult(), f.Push(out.Value)
	}
	return contResult(), nil
}

// execInvoke dispatches one of invokestatic/invokevirtual/
// invokespecial/invokeinterface/invokedynamic.
func (e *Env) execInvoke(f *Frame, ins *instr.Instruction) (stepResult, error) {
	pool := f.Class.View.ConstantPool
	switch ins.Spec.Mnemonic {
	case "invokestatic":
		mref, err := classfile.ResolveMethodref(pool, uint16(ins.Index))
		if err != nil {
			return stepResult{}, err
		}
		desc, err := methods.ParseDescriptor(mref.Descriptor)
		if err != nil {
			return stepResult{}, err
		}
		args, err := popArgs(f, len(desc.Params))
		if err != nil {
			return stepResult{}, err
		}
		out, err := e.InvokeStatic(e.Names.Intern(mref.ClassName), mref.MethodName, mref.Descriptor, args)
		if err != nil {
			return stepResult{}, err
		}
		return e.outcomeToStep(f, out)

	case "invokespecial":
		mref, err := classfile.ResolveMethodref(pool, uint16(ins.Index))
		if err != nil {
			return stepResult{}, err
		}
		desc, err := methods.ParseDescriptor(mref.Descriptor)
		if err != nil {
			return stepResult{}, err
		}
		args, err := popArgs(f, len(desc.Params)+1)
		if err != nil {
			return stepResult{}, err
		}
		out, err := e.InvokeSpecial(e.Names.Intern(mref.ClassName), mref.MethodName, mref.Descriptor, args)
		if err != nil {
			return stepResult{}, err
		}
		return e.outcomeToStep(f, out)

	case "invokevirtual":
		mref, err := classfile.ResolveMethodref(pool, uint16(ins.Index))
		if err != nil {
			return stepResult{}, err
		}
		desc, err := methods.ParseDescriptor(mref.Descriptor)
		if err != nil {
			return stepResult{}, err
		}
		args, err := popArgs(f, len(desc.Params)+1)
		if err != nil {
			return stepResult{}, err
		}
		out, err := e.InvokeVirtual(e.Names.Intern(mref.ClassName), mref.MethodName, mref.Descriptor, args)
		if err != nil {
			return stepResult{}, err
		}
		return e.outcomeToStep(f, out)

	case "invokeinterface":
		mref, err := classfile.ResolveInterfaceMethodref(pool, uint16(ins.Index))
		if err != nil {
			return stepResult{}, err
		}
		desc, err := methods.ParseDescriptor(mref.Descriptor)
		if err != nil {
			return stepResult{}, err
		}
		args, err := popArgs(f, len(desc.Params)+1)
		if err != nil {
			return stepResult{}, err
		}
		out, err := e.InvokeInterface(e.Names.Intern(mref.ClassName), mref.MethodName, mref.Descriptor, args)
		if err != nil {
			return stepResult{}, err
		}
		return e.outcomeToStep(f, out)

	case "invokedynamic":
		bsmIdx, nat, err := classfile.ResolveInvokeDynamic(pool, uint16(ins.Index))
		if err != nil {
			return stepResult{}, err
		}
		if int(bsmIdx) >= len(f.Class.View.BootstrapMethods) {
			return stepResult{}, fmt.Errorf("invokedynamic: bootstrap method index %d out of range", bsmIdx)
		}
		bsm := &f.Class.View.BootstrapMethods[bsmIdx]
		desc, err := methods.ParseDescriptor(nat.Descriptor)
		if err != nil {
			return stepResult{}, err
		}
		args, err := popArgs(f, len(desc.Params))
		if err != nil {
			return stepResult{}, err
		}
		out, err := e.InvokeDynamic(f.Class.ID, f.Method.Name, ins.Offset, pool, bsm, nat.Name, nat.Descriptor, args)
		if err != nil {
			return stepResult{}, err
		}
		return e.outcomeToStep(f, out)

	default:
		return stepResult{}, fmt.Errorf("execInvoke: unreachable mnemonic %s", ins.Spec.Mnemonic)
	}
}

func (e *Env) execNew(f *Frame, ins *instr.Instruction) (stepResult, error) {
	name, err := classfile.GetClassName(f.Class.View.ConstantPool, uint16(ins.Index))
	if err != nil {
		return stepResult{}, err
	}
	v, err := e.newInstance(e.Names.Intern(name))
	if err != nil {
		return stepResult{}, err
	}
	return contResult(), f.Push(v)
}

// primitiveForAtype maps newarray's atype operand (JVM spec table 6.5
// "newarray") to the corresponding names.Primitive.
func primitiveForAtype(atype int) (names.Primitive, error) {
	switch atype {
	case 4:
		return names.PrimBool, nil
	case 5:
		return names.PrimChar, nil
	case 6:
		return names.PrimFloat, nil
	case 7:
		return names.PrimDouble, nil
	case 8:
		return names.PrimByte, nil
	case 9:
		return names.PrimShort, nil
	case 10:
		return names.PrimInt, nil
	case 11:
		return names.PrimLong, nil
	default:
		return names.PrimNone, fmt.Errorf("newarray: unknown atype %d", atype)
	}
}

func (e *Env) execNewArray(f *Frame, ins *instr.Instruction) (stepResult, error) {
	n, err := f.Pop()
	if err != nil {
		return stepResult{}, err
	}
	if n.I32 < 0 {
		return e.Throw(ExcNegativeArraySize, "")
	}
	p, err := primitiveForAtype(ins.Index)
	if err != nil {
		return stepResult{}, err
	}
	v, err := e.newPrimitiveArray(p, n.I32)
	if err != nil {
		return stepResult{}, err
	}
	return contResult(), f.Push(v)
}

func (e *Env) execANewArray(f *Frame, ins *instr.Instruction) (stepResult, error) {
	n, err := f.Pop()
	if err != nil {
		return stepResult{}, err
	}
	if n.I32 < 0 {
		return e.Throw(ExcNegativeArraySize, "")
	}
	name, err := classfile.GetClassName(f.Class.View.ConstantPool, uint16(ins.Index))
	if err != nil {
		return stepResult{}, err
	}
	v, err := e.newReferenceArray(e.Names.Intern(name), n.I32)
	if err != nil {
		return stepResult{}, err
	}
	return contResult(), f.Push(v)
}

func (e *Env) execMultiANewArray(f *Frame, ins *instr.Instruction) (stepResult, error) {
	dimCount := ins.ExtraOperand
	dimVals, err := popArgs(f, dimCount)
	if err != nil {
		return stepResult{}, err
	}
	dims := make([]int32, dimCount)
	for i, v := range dimVals {
		if v.I32 < 0 {
			return e.Throw(ExcNegativeArraySize, "")
		}
		dims[i] = v.I32
	}
	name, err := classfile.GetClassName(f.Class.View.ConstantPool, uint16(ins.Index))
	if err != nil {
		return stepResult{}, err
	}
	v, err := e.newMultiArray(name, dims)
	if err != nil {
		return stepResult{}, err
	}
	return contResult(), f.Push(v)
}

func (e *Env) execCheckCast(f *Frame, ins *instr.Instruction) (stepResult, error) {
	v, err := f.Pop()
	if err != nil {
		return stepResult{}, err
	}
	name, err := classfile.GetClassName(f.Class.View.ConstantPool, uint16(ins.Index))
	if err != nil {
		return stepResult{}, err
	}
	res, err := e.checkCast(v, e.Names.Intern(name))
	if err != nil || res.kind == outcomeThrow {
		return res, err
	}
	return contResult(), f.Push(v)
}

func (e *Env) execInstanceOf(f *Frame, ins *instr.Instruction) (stepResult, error) {
	v, err := f.Pop()
	if err != nil {
		return stepResult{}, err
	}
	name, err := classfile.GetClassName(f.Class.View.ConstantPool, uint16(ins.Index))
	if err != nil {
		return stepResult{}, err
	}
	ok, err := e.instanceOf(v, e.Names.Intern(name))
	if err != nil {
		return stepResult{}, err
	}
	return contResult(), f.Push(value.Bool(ok))
}
