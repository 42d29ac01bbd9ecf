package access

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bondzio/TaskMiner/compiler/consts"
	"github.com/Bondzio/TaskMiner/compiler/emit"
	"github.com/Bondzio/TaskMiner/compiler/ir"
	"github.com/Bondzio/TaskMiner/compiler/names"
	"github.com/Bondzio/TaskMiner/compiler/tp"
)

type fixture struct {
	p *ir.Package
	n *names.Table
	f *ir.Func

	buf emit.Buffer
}

var (
	i32  = tp.Basic{Name: "int", Bytes: 4}
	i8   = tp.Basic{Name: "char", Bytes: 1}
	row  = &tp.Derived{Tag: tp.Array, Base: i32, Len: 16}
	mat  = &tp.Derived{Tag: tp.Pointer, Base: row}
	pptr = &tp.Derived{Tag: tp.Pointer, Base: &tp.Derived{Tag: tp.Pointer, Base: i32}}

	point = &tp.Composite{Name: "point", Fields: []tp.Field{{Name: "x", Type: i32}, {Name: "y", Type: i32}}}
)

func newFixture() *fixture {
	return &fixture{
		p: &ir.Package{Path: "test"},
		n: names.NewTable(),
		f: &ir.Func{Name: "f"},
	}
}

func (fx *fixture) session(ptr ir.Expr, opts Options) *Session {
	return New(fx.p, ptr, Collaborators{
		Names:  fx.n,
		Consts: consts.Evaluator{},
		Layout: tp.Sizes{},
		Calls:  names.DefaultAllocFuncs(),
		Emit:   &fx.buf,
	}, opts)
}

func (fx *fixture) decl(x ir.Value, name string, typ tp.Type) ir.Expr {
	id := fx.p.Alloc(x)
	fx.n.Declare(id, name, fx.f, typ)

	return id
}

func (fx *fixture) param(name string, typ tp.Type) ir.Expr {
	id := fx.decl(ir.Param{Index: len(fx.f.Params)}, name, typ)
	fx.f.Params = append(fx.f.Params, id)

	return id
}

func TestNestedIndexing(t *testing.T) {
	ctx := context.Background()
	fx := newFixture()

	a := fx.param("A", mat)
	i := fx.param("i", i32)
	j := fx.param("j", i32)

	g := fx.p.Alloc(ir.GEP{Ptr: a, Idx: []ir.Expr{i, j}})
	ld := fx.p.Alloc(ir.Load{Ptr: g})

	s := fx.session(ld, Options{})

	text, sl := s.Recover(ctx, ld, "")
	assert.Equal(t, "A[i][j]", text)
	assert.False(t, sl.IsSet())
	assert.True(t, s.Valid())
}

func TestNestedAddressComputations(t *testing.T) {
	ctx := context.Background()
	fx := newFixture()

	a := fx.param("A", mat)
	i := fx.param("i", i32)
	j := fx.param("j", i32)
	zero := fx.p.Alloc(ir.Const(0))

	inner := fx.p.Alloc(ir.GEP{Ptr: a, Idx: []ir.Expr{i}})
	outer := fx.p.Alloc(ir.GEP{Ptr: inner, Idx: []ir.Expr{zero, j}})

	s := fx.session(outer, Options{})

	text, _ := s.Recover(ctx, outer, "")
	assert.Equal(t, "A[i][j]", text)

	text, _ = s.Recover(ctx, inner, "")
	assert.Equal(t, "A[i]", text)
}

func TestIndexingThroughLoads(t *testing.T) {
	ctx := context.Background()
	fx := newFixture()

	a := fx.decl(ir.Alloca{}, "A", pptr)
	i := fx.param("i", i32)
	j := fx.param("j", i32)

	l1 := fx.p.Alloc(ir.Load{Ptr: a})
	g1 := fx.p.Alloc(ir.GEP{Ptr: l1, Idx: []ir.Expr{i}})
	l2 := fx.p.Alloc(ir.Load{Ptr: g1})
	g2 := fx.p.Alloc(ir.GEP{Ptr: l2, Idx: []ir.Expr{j}})
	st := fx.p.Alloc(ir.Store{Ptr: g2, Val: i})

	s := fx.session(st, Options{})

	text, sl := s.Recover(ctx, st, "")
	assert.Equal(t, "A[i][j]", text)
	assert.False(t, sl.IsSet())
	assert.True(t, s.Valid())
}

func TestZeroIndexPassThrough(t *testing.T) {
	ctx := context.Background()
	fx := newFixture()

	a := fx.param("A", mat)
	zero := fx.p.Alloc(ir.Const(0))
	null := fx.p.Alloc(ir.Null{})

	none := fx.p.Alloc(ir.GEP{Ptr: a})
	zeros := fx.p.Alloc(ir.GEP{Ptr: a, Idx: []ir.Expr{zero, null}})

	s := fx.session(a, Options{})

	text, _ := s.Recover(ctx, none, "")
	assert.Equal(t, "A", text)

	text, _ = s.Recover(ctx, zeros, "")
	assert.Equal(t, "A", text)
}

func TestStructFieldIsUnsupported(t *testing.T) {
	ctx := context.Background()
	fx := newFixture()

	pt := fx.param("p", point)
	zero := fx.p.Alloc(ir.Const(0))
	one := fx.p.Alloc(ir.Const(1))

	g := fx.p.Alloc(ir.GEP{Ptr: pt, Idx: []ir.Expr{zero, one}})

	s := fx.session(g, Options{})

	text, sl := s.Recover(ctx, g, "")
	assert.Equal(t, "", text)
	assert.False(t, sl.IsSet())
	assert.True(t, s.Valid())
}

func TestAddressComputationWithoutDeclaration(t *testing.T) {
	ctx := context.Background()
	fx := newFixture()

	a := fx.p.Alloc(ir.Param{})
	fx.n.Declared[a] = "A"
	i := fx.param("i", i32)

	g := fx.p.Alloc(ir.GEP{Ptr: a, Idx: []ir.Expr{i}})

	s := fx.session(g, Options{})

	text, _ := s.Recover(ctx, g, "")
	assert.Equal(t, "", text)
	assert.True(t, s.Valid())
}

func TestReinterpretationFactor(t *testing.T) {
	ctx := context.Background()

	t.Run("narrowing", func(t *testing.T) {
		fx := newFixture()
		x := fx.param("x", i32)
		bc := fx.p.Alloc(ir.BitCast{X: x, From: i32, To: i8})

		s := fx.session(bc, Options{})

		text, sl := s.Recover(ctx, bc, "")
		assert.Equal(t, "0.25 * x;\n", text)
		assert.Equal(t, SlotOf(0), sl)
		assert.Equal(t, []emit.Stmt{{Slot: 0, Text: "0.25 * x;\n"}}, fx.buf.Stmts())
		assert.Equal(t, "NAME[0]", s.Ref(text, sl))
	})

	t.Run("widening", func(t *testing.T) {
		fx := newFixture()
		x := fx.param("x", i8)
		bc := fx.p.Alloc(ir.BitCast{X: x, From: i8, To: i32})

		s := fx.session(bc, Options{TempArray: "T"})

		text, sl := s.Recover(ctx, bc, "")
		assert.Equal(t, "4 * x;\n", text)
		assert.Equal(t, "T[0]", s.Ref(text, sl))
	})

	t.Run("constant", func(t *testing.T) {
		fx := newFixture()
		ten := fx.p.Alloc(ir.Const(10))
		bc := fx.p.Alloc(ir.BitCast{X: ten, From: i8, To: i32})

		s := fx.session(bc, Options{})

		text, sl := s.Recover(ctx, bc, "")
		assert.Equal(t, "40", text)
		assert.False(t, sl.IsSet())
		assert.Equal(t, 0, fx.buf.Len())
	})

	t.Run("zero size", func(t *testing.T) {
		fx := newFixture()
		x := fx.param("x", i32)
		bc := fx.p.Alloc(ir.BitCast{X: x, From: tp.Basic{Name: "void"}, To: i32})

		s := fx.session(bc, Options{})

		text, _ := s.Recover(ctx, bc, "")
		assert.Equal(t, "", text)
		assert.False(t, s.Valid())
	})
}

func TestReinterpretedPointer(t *testing.T) {
	ctx := context.Background()

	pi32 := &tp.Derived{Tag: tp.Pointer, Base: i32}

	t.Run("store", func(t *testing.T) {
		fx := newFixture()
		x := fx.param("x", i8)
		i := fx.param("i", i32)
		bc := fx.decl(ir.BitCast{X: x, From: i8, To: i32}, "v", pi32)
		st := fx.p.Alloc(ir.Store{Ptr: bc, Val: i})

		s := fx.session(bc, Options{})

		text, sl := s.Recover(ctx, st, "")
		assert.Equal(t, "4 * x;\n", text)
		assert.Equal(t, SlotOf(0), sl)
		assert.Equal(t, "NAME[0]", s.Ref(text, sl))
		assert.True(t, s.Valid())
	})

	t.Run("indexed", func(t *testing.T) {
		fx := newFixture()
		x := fx.param("x", i8)
		i := fx.param("i", i32)
		bc := fx.decl(ir.BitCast{X: x, From: i8, To: i32}, "v", pi32)
		g := fx.p.Alloc(ir.GEP{Ptr: bc, Idx: []ir.Expr{i}})

		s := fx.session(g, Options{})

		text, sl := s.Recover(ctx, g, "")
		assert.Equal(t, "NAME[0][i]", text)
		assert.False(t, sl.IsSet())
		assert.True(t, s.Valid())
		assert.Equal(t, []emit.Stmt{{Slot: 0, Text: "4 * x;\n"}}, fx.buf.Stmts())
	})
}

func TestExtensionPassThrough(t *testing.T) {
	ctx := context.Background()
	fx := newFixture()

	i := fx.param("i", i32)
	se := fx.p.Alloc(ir.SExt{X: i})
	ze := fx.p.Alloc(ir.ZExt{X: se})

	s := fx.session(ze, Options{})

	text, sl := s.Recover(ctx, ze, "")
	assert.Equal(t, "i", text)
	assert.False(t, sl.IsSet())
}

func TestPointerIntegerCasts(t *testing.T) {
	ctx := context.Background()
	fx := newFixture()

	x := fx.param("x", i8)
	bc := fx.p.Alloc(ir.BitCast{X: x, From: i8, To: i32})
	p2i := fx.p.Alloc(ir.PtrToInt{X: bc})
	i2p := fx.p.Alloc(ir.IntToPtr{X: x})

	s := fx.session(p2i, Options{})

	text, sl := s.Recover(ctx, p2i, "")
	assert.Equal(t, "", text)
	assert.Equal(t, SlotOf(1), sl)
	assert.Equal(t, "NAME[1]", s.Ref(text, sl))

	require.Equal(t, 2, fx.buf.Len())
	assert.Equal(t, emit.Stmt{Slot: 1, Text: "(long long int) NAME[0];\n"}, fx.buf.Stmts()[1])

	text, sl = s.Recover(ctx, i2p, "")
	assert.Equal(t, "x", text)
	assert.False(t, sl.IsSet())
}

func TestSelectAndGeneric(t *testing.T) {
	ctx := context.Background()
	fx := newFixture()

	i := fx.param("i", i32)
	n := fx.param("n", i32)
	one := fx.p.Alloc(ir.Const(1))
	two := fx.p.Alloc(ir.Const(2))
	three := fx.p.Alloc(ir.Const(3))

	lt := fx.p.Alloc(ir.Cmp{Pred: "<", L: i, R: n})
	sel := fx.p.Alloc(ir.Select{Cond: lt, T: i, F: n})
	add := fx.p.Alloc(ir.BinOp{Op: "+", L: sel, R: one})
	mul := fx.p.Alloc(ir.BinOp{Op: "*", L: two, R: three})

	s := fx.session(add, Options{})

	text, _ := s.Recover(ctx, add, "")
	assert.Equal(t, "(((i < n) ? i : n) + 1)", text)

	text, _ = s.Recover(ctx, mul, "")
	assert.Equal(t, "6", text)

	text, _ = s.Recover(ctx, lt, "")
	assert.Equal(t, "", text)
	assert.True(t, s.Valid())
}

func TestMemoization(t *testing.T) {
	ctx := context.Background()
	fx := newFixture()

	a := fx.param("A", mat)
	i := fx.param("i", i32)
	j := fx.param("j", i32)

	shared := fx.p.Alloc(ir.BinOp{Op: "+", L: i, R: j})
	g := fx.p.Alloc(ir.GEP{Ptr: a, Idx: []ir.Expr{shared, shared}})

	s := fx.session(g, Options{})

	text, sl := s.Recover(ctx, g, "")
	assert.Equal(t, "A[(i + j)][(i + j)]", text)
	assert.Equal(t, 2, s.built)

	t2, sl2 := s.Recover(ctx, shared, "")
	assert.Equal(t, "(i + j)", t2)
	assert.False(t, sl2.IsSet())

	t3, sl3 := s.Recover(ctx, g, "")
	assert.Equal(t, text, t3)
	assert.Equal(t, sl, sl3)
	assert.Equal(t, 2, s.built)

	s.Reset(g)
	assert.Empty(t, s.memo)

	s.Recover(ctx, g, "")
	assert.Equal(t, 2, s.built)
}

func TestStickyInvalidation(t *testing.T) {
	ctx := context.Background()
	fx := newFixture()

	a := fx.param("A", mat)
	u := fx.p.Alloc(ir.Unknown{Op: "fneg", Args: []ir.Expr{a}})

	s := fx.session(a, Options{})

	text, _ := s.Recover(ctx, a, "")
	require.Equal(t, "A", text)

	text, _ = s.Recover(ctx, u, "")
	assert.Equal(t, "", text)
	assert.False(t, s.Valid())
	assert.NotZero(t, s.InvalidatedAt())

	text, sl := s.Recover(ctx, a, "")
	assert.Equal(t, "", text)
	assert.False(t, sl.IsSet())

	s.Reset(a)
	assert.True(t, s.Valid())

	text, _ = s.Recover(ctx, a, "")
	assert.Equal(t, "A", text)
}

func TestInvalidatingValues(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		v    func(fx *fixture) ir.Expr
		text string
	}{
		{"unnamed param", func(fx *fixture) ir.Expr { return fx.p.Alloc(ir.Param{}) }, ""},
		{"unnamed phi", func(fx *fixture) ir.Expr { return fx.p.Alloc(ir.Phi{}) }, ""},
		{"float constant", func(fx *fixture) ir.Expr { return fx.p.Alloc(ir.ConstFloat(1.5)) }, "0"},
		{"unnamed call", func(fx *fixture) ir.Expr { return fx.p.Alloc(ir.Call{Func: "rand"}) }, ""},
		{"unnamed allocation", func(fx *fixture) ir.Expr { return fx.p.Alloc(ir.Call{Func: "malloc"}) }, ""},
		{"missing value", func(fx *fixture) ir.Expr { return 1000 }, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fx := newFixture()
			v := tc.v(fx)

			s := fx.session(v, Options{})

			text, _ := s.Recover(ctx, v, "")
			assert.Equal(t, tc.text, text)
			assert.False(t, s.Valid())
		})
	}
}

func TestNamedCalls(t *testing.T) {
	ctx := context.Background()

	for _, fn := range []string{"rand", "malloc"} {
		t.Run(fn, func(t *testing.T) {
			fx := newFixture()
			r := fx.decl(ir.Call{Func: fn}, "r", nil)

			s := fx.session(r, Options{})

			text, sl := s.Recover(ctx, r, "")
			assert.Equal(t, "r", text)
			assert.False(t, sl.IsSet())
			assert.True(t, s.Valid())

			text, _ = s.Recover(ctx, r, "")
			assert.Equal(t, "r", text, "memoized")

			s.Reset(r)

			text, _ = s.Recover(ctx, r, "r")
			assert.Equal(t, Self, text)
			assert.True(t, s.Valid())
		})
	}
}

func TestExternalInvalidate(t *testing.T) {
	fx := newFixture()
	a := fx.param("A", mat)

	s := fx.session(a, Options{})
	s.Invalidate()
	s.Invalidate()

	assert.False(t, s.Valid())

	text, _ := s.Recover(context.Background(), a, "")
	assert.Equal(t, "", text)
}

func TestSelfReference(t *testing.T) {
	ctx := context.Background()
	fx := newFixture()

	i := fx.param("i", i32)
	zero := fx.p.Alloc(ir.Const(0))

	phi := fx.decl(ir.Phi{}, "k", i32)
	next := fx.p.Alloc(ir.BinOp{Op: "+", L: phi, R: i})
	fx.p.Exprs[phi] = ir.Phi{zero, next}

	s := fx.session(next, Options{})

	text, sl := s.Recover(ctx, next, "k")
	assert.Equal(t, "(0 + i)", text)
	assert.False(t, sl.IsSet())
	assert.True(t, s.Valid())

	_, memo := s.memo[phi]
	assert.False(t, memo)

	s.Reset(next)

	text, _ = s.Recover(ctx, next, "")
	assert.Equal(t, "(k + i)", text)

	_, memo = s.memo[phi]
	assert.True(t, memo)
}

func TestNamedValues(t *testing.T) {
	ctx := context.Background()
	fx := newFixture()

	buf := fx.decl(ir.Call{Func: "malloc"}, "buf", nil)
	g := fx.decl(ir.Global{}, "G", i32)
	cnt := fx.decl(ir.Alloca{}, "cnt", i32)
	ld := fx.decl(ir.Load{Ptr: cnt}, "i", nil)
	st := fx.p.Alloc(ir.Store{Ptr: g, Val: ld})

	s := fx.session(st, Options{})

	text, _ := s.Recover(ctx, buf, "")
	assert.Equal(t, "buf", text)

	text, _ = s.Recover(ctx, ld, "")
	assert.Equal(t, "i", text)

	text, _ = s.Recover(ctx, st, "")
	assert.Equal(t, "G", text)

	text, _ = s.Recover(ctx, cnt, "cnt")
	assert.Equal(t, Self, text)

	assert.True(t, s.Valid())
}

func TestOriginalNameOverride(t *testing.T) {
	ctx := context.Background()
	fx := newFixture()

	a := fx.param("A", mat)
	i := fx.param("i", i32)
	g := fx.p.Alloc(ir.GEP{Ptr: a, Idx: []ir.Expr{i}})
	ld := fx.p.Alloc(ir.Load{Ptr: g})

	fx.n.Original[g] = "B"

	s := fx.session(ld, Options{})

	text, _ := s.Recover(ctx, ld, "")
	assert.Equal(t, "B", text)

	_, memo := s.memo[g]
	assert.False(t, memo)

	text, _ = s.Recover(ctx, ld, "B")
	assert.Equal(t, "B", text, "memoized from the first call")

	s.Reset(ld)

	text, sl := s.Recover(ctx, ld, "B")
	assert.Equal(t, "", text)
	assert.False(t, sl.IsSet())
}

func TestGraphPredicates(t *testing.T) {
	fx := newFixture()

	a := fx.param("A", mat)
	i := fx.param("i", i32)
	zero := fx.p.Alloc(ir.Const(0))
	one := fx.p.Alloc(ir.Const(1))

	phi := fx.p.Alloc(ir.Phi{})
	next := fx.p.Alloc(ir.BinOp{Op: "+", L: phi, R: one})
	fx.p.Exprs[phi] = ir.Phi{zero, next}

	g := fx.p.Alloc(ir.GEP{Ptr: a, Idx: []ir.Expr{phi}})
	ld := fx.p.Alloc(ir.Load{Ptr: g})
	ext := fx.p.Alloc(ir.SExt{X: ld})
	g2 := fx.p.Alloc(ir.GEP{Ptr: a, Idx: []ir.Expr{i}})

	assert.False(t, ContainsAddressComputation(fx.p, next))
	assert.False(t, ContainsMemoryLoad(fx.p, phi))

	assert.True(t, ContainsAddressComputation(fx.p, g))
	assert.True(t, ContainsAddressComputation(fx.p, ext))
	assert.True(t, ContainsMemoryLoad(fx.p, ext))
	assert.False(t, ContainsMemoryLoad(fx.p, g2))

	assert.False(t, ContainsAddressComputation(fx.p, a))
	assert.False(t, ContainsMemoryLoad(fx.p, zero))
	assert.False(t, ContainsMemoryLoad(fx.p, ir.Nil))
}

func TestSlot(t *testing.T) {
	n, ok := NoSlot.Index()
	assert.False(t, ok)
	assert.Equal(t, 0, n)
	assert.Equal(t, "none", NoSlot.String())

	n, ok = SlotOf(0).Index()
	assert.True(t, ok)
	assert.Equal(t, 0, n)
	assert.Equal(t, "0", SlotOf(0).String())

	assert.NotEqual(t, NoSlot, SlotOf(0))
}
