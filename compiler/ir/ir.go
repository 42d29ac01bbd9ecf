package ir

import (
	"github.com/Bondzio/TaskMiner/compiler/tp"
)

type (
	Expr int

	Package struct {
		Path string

		Funcs []*Func

		Exprs []any
	}

	Func struct {
		Name string

		Params []Expr
		Code   []Expr

		// Loads and stores found inside loops.
		Access []Expr
	}

	Value interface {
		In() []Expr
	}

	Load struct {
		Ptr Expr
	}

	Store struct {
		Ptr, Val Expr
	}

	// GEP is an address computation: Ptr plus an index list.
	GEP struct {
		Ptr Expr
		Idx []Expr
	}

	BitCast struct {
		X Expr

		From, To tp.Type
	}

	SExt struct {
		X Expr
	}

	ZExt struct {
		X Expr
	}

	PtrToInt struct {
		X Expr
	}

	IntToPtr struct {
		X Expr
	}

	Select struct {
		Cond, T, F Expr
	}

	Phi []Expr

	Call struct {
		Func string
		Args []Expr
	}

	Cmp struct {
		Pred string
		L, R Expr
	}

	BinOp struct {
		Op   string
		L, R Expr
	}

	Unknown struct {
		Op   string
		Args []Expr
	}

	Const      int64
	ConstFloat float64
	Null       struct{}

	ConstExpr struct {
		Op   string
		L, R Expr
	}

	SizeOf struct {
		T tp.Type
	}

	Alloca struct{}
	Global struct{}

	Param struct {
		Index int
	}
)

const (
	Nil Expr = -1
)

func (x Load) In() []Expr     { return []Expr{x.Ptr} }
func (x Store) In() []Expr    { return []Expr{x.Val, x.Ptr} }
func (x BitCast) In() []Expr  { return []Expr{x.X} }
func (x SExt) In() []Expr     { return []Expr{x.X} }
func (x ZExt) In() []Expr     { return []Expr{x.X} }
func (x PtrToInt) In() []Expr { return []Expr{x.X} }
func (x IntToPtr) In() []Expr { return []Expr{x.X} }
func (x Select) In() []Expr   { return []Expr{x.Cond, x.T, x.F} }
func (x Phi) In() []Expr      { return x }
func (x Call) In() []Expr     { return x.Args }
func (x Cmp) In() []Expr      { return []Expr{x.L, x.R} }
func (x BinOp) In() []Expr    { return []Expr{x.L, x.R} }
func (x Unknown) In() []Expr  { return x.Args }

func (x GEP) In() []Expr {
	l := make([]Expr, 0, 1+len(x.Idx))

	l = append(l, x.Ptr)
	l = append(l, x.Idx...)

	return l
}

func (x ConstExpr) In() []Expr { return []Expr{x.L, x.R} }

func (x Const) In() []Expr      { return nil }
func (x ConstFloat) In() []Expr { return nil }
func (x Null) In() []Expr       { return nil }
func (x SizeOf) In() []Expr     { return nil }
func (x Alloca) In() []Expr     { return nil }
func (x Global) In() []Expr     { return nil }
func (x Param) In() []Expr      { return nil }

// HasIndices reports whether the address computation has at least one index.
func (x GEP) HasIndices() bool { return len(x.Idx) != 0 }

func (p *Package) Alloc(x Value) Expr {
	id := Expr(len(p.Exprs))
	p.Exprs = append(p.Exprs, x)

	return id
}

// At returns the value with the given id or nil if id is out of range.
func (p *Package) At(id Expr) any {
	if id < 0 || int(id) >= len(p.Exprs) {
		return nil
	}

	return p.Exprs[id]
}

func (p *Package) Operands(id Expr) []Expr {
	x, ok := p.At(id).(Value)
	if !ok {
		return nil
	}

	return x.In()
}

func (p *Package) Func(name string) *Func {
	for _, f := range p.Funcs {
		if f.Name == name {
			return f
		}
	}

	return nil
}

// IsInstruction reports whether x is produced by an instruction
// as opposed to a constant, a parameter or a global.
func IsInstruction(x any) bool {
	switch x.(type) {
	case Load, Store, GEP, BitCast, SExt, ZExt, PtrToInt, IntToPtr,
		Select, Phi, Call, Cmp, BinOp, Unknown, Alloca:
		return true
	}

	return false
}

func IsConstant(x any) bool {
	switch x.(type) {
	case Const, ConstFloat, Null, ConstExpr, SizeOf:
		return true
	}

	return false
}

// PointerOperand returns the address operand of a load, store or address computation.
func PointerOperand(x any) (Expr, bool) {
	switch x := x.(type) {
	case Load:
		return x.Ptr, true
	case Store:
		return x.Ptr, true
	case GEP:
		return x.Ptr, true
	}

	return Nil, false
}

// BasePointer follows load and address computation chains
// starting from the pointer operand of id down to the value they are rooted at.
// Values other than load, store and address computation are their own base
// if they are not instructions and have no base otherwise.
func (p *Package) BasePointer(id Expr) Expr {
	x := p.At(id)

	if !IsInstruction(x) {
		return id
	}

	b, ok := PointerOperand(x)
	if !ok {
		return Nil
	}

	for {
		switch y := p.At(b).(type) {
		case Load:
			b = y.Ptr
		case GEP:
			b = y.Ptr
		default:
			return b
		}
	}
}

// Fold evaluates an integer binary operator.
func Fold(op string, a, b int64) (int64, bool) {
	switch op {
	case "+":
		return a + b, true
	case "-":
		return a - b, true
	case "*":
		return a * b, true
	case "/", "%":
		if b == 0 {
			return 0, false
		}

		if op == "/" {
			return a / b, true
		}

		return a % b, true
	case "<<":
		return a << uint64(b), b >= 0
	case ">>":
		return a >> uint64(b), b >= 0
	case "&":
		return a & b, true
	case "|":
		return a | b, true
	case "^":
		return a ^ b, true
	}

	return 0, false
}
