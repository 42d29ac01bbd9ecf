package gossa

import (
	"context"
	"go/ast"
	"go/constant"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"reflect"
	"sort"
	"strings"

	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/Bondzio/TaskMiner/compiler/ir"
	"github.com/Bondzio/TaskMiner/compiler/names"
	"github.com/Bondzio/TaskMiner/compiler/set"
)

type (
	lowerer struct {
		p *ir.Package
		n *names.Table

		types *typeConv

		ids map[any]ir.Expr

		f *ir.Func
	}
)

// Load builds SSA for a single Go file and lowers it to a value graph.
// If src is nil the file is read from disk.
func Load(ctx context.Context, filename string, src any) (p *ir.Package, n *names.Table, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "gossa: load", "file", filename)
	defer tr.Finish("err", &err)

	fset := token.NewFileSet()

	f, err := parser.ParseFile(fset, filename, src, parser.ParseComments)
	if err != nil {
		return nil, nil, errors.Wrap(err, "parse")
	}

	conf := &types.Config{Importer: importer.Default()}
	pkg := types.NewPackage(f.Name.Name, f.Name.Name)

	sp, _, err := ssautil.BuildPackage(conf, fset, pkg, []*ast.File{f}, ssa.GlobalDebug)
	if err != nil {
		return nil, nil, errors.Wrap(err, "type check")
	}

	return Lower(ctx, sp)
}

// Lower converts the functions of an SSA package built with debug info.
// Names come from debug references, parameters and phi comments.
func Lower(ctx context.Context, sp *ssa.Package) (p *ir.Package, n *names.Table, err error) {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "gossa: lower", "package", sp.Pkg.Path())
	defer tr.Finish("err", &err)

	l := &lowerer{
		p:     &ir.Package{Path: sp.Pkg.Path()},
		n:     names.NewTable(),
		types: newTypeConv(),
		ids:   make(map[any]ir.Expr),
	}

	for _, fn := range funcs(sp) {
		l.lowerFunc(fn)

		tr.V("funcs").Printw("func", "name", l.f.Name, "code", len(l.f.Code), "access", len(l.f.Access))
	}

	return l.p, l.n, nil
}

// funcs lists package functions and methods in source order.
func funcs(sp *ssa.Package) []*ssa.Function {
	var l []*ssa.Function

	for _, m := range sp.Members {
		switch m := m.(type) {
		case *ssa.Function:
			l = append(l, m)
		case *ssa.Type:
			named, ok := m.Type().(*types.Named)
			if !ok {
				continue
			}

			for i := 0; i < named.NumMethods(); i++ {
				if fn := sp.Prog.FuncValue(named.Method(i)); fn != nil {
					l = append(l, fn)
				}
			}
		}
	}

	r := l[:0]

	for _, fn := range l {
		if fn.Synthetic != "" || len(fn.Blocks) == 0 || fn.TypeParams().Len() != 0 {
			continue
		}

		r = append(r, fn)
	}

	sort.Slice(r, func(i, j int) bool {
		return r[i].Pos() < r[j].Pos()
	})

	return r
}

func (l *lowerer) lowerFunc(fn *ssa.Function) {
	name := fn.Name()
	if recv := fn.Signature.Recv(); recv != nil {
		name = recvName(recv.Type()) + "." + name
	}

	l.f = &ir.Func{Name: name}
	l.p.Funcs = append(l.p.Funcs, l.f)

	for i, prm := range fn.Params {
		id := l.p.Alloc(ir.Param{Index: i})
		l.ids[prm] = id

		l.n.Declare(id, prm.Name(), l.f, l.types.conv(prm.Type()))
		l.f.Params = append(l.f.Params, id)
	}

	// ids are allocated first so that phis can refer forward
	for _, b := range fn.Blocks {
		for _, in := range b.Instrs {
			if !lowered(in) {
				continue
			}

			id := l.p.Alloc(nil)
			l.ids[in] = id
			l.f.Code = append(l.f.Code, id)
		}
	}

	loops := loopBlocks(fn)

	for _, b := range fn.Blocks {
		for _, in := range b.Instrs {
			if d, ok := in.(*ssa.DebugRef); ok {
				l.debugRef(d)
				continue
			}

			if !lowered(in) {
				continue
			}

			id := l.ids[in]
			l.p.Exprs[id] = l.instr(in)

			if phi, ok := in.(*ssa.Phi); ok && token.IsIdentifier(phi.Comment) && l.n.DeclaredName(id) == "" {
				l.n.Declare(id, phi.Comment, l.f, l.types.conv(phi.Type()))
			}

			if !loops.IsSet(b.Index) {
				continue
			}

			switch x := in.(type) {
			case *ssa.UnOp:
				if x.Op == token.MUL {
					l.f.Access = append(l.f.Access, id)
				}
			case *ssa.Store:
				l.f.Access = append(l.f.Access, id)
			}
		}
	}
}

func lowered(in ssa.Instruction) bool {
	switch in.(type) {
	case *ssa.Store:
		return true
	case *ssa.DebugRef:
		return false
	}

	_, ok := in.(ssa.Value)

	return ok
}

func (l *lowerer) debugRef(d *ssa.DebugRef) {
	obj, ok := d.Object().(*types.Var)
	if !ok {
		return
	}

	if _, ok := d.X.(*ssa.Const); ok {
		return
	}

	id, ok := l.ids[d.X]
	if !ok {
		return
	}

	l.n.Declare(id, obj.Name(), l.f, l.types.conv(obj.Type()))
}

func (l *lowerer) instr(in ssa.Instruction) ir.Value {
	switch x := in.(type) {
	case *ssa.Alloc:
		return ir.Alloca{}
	case *ssa.UnOp:
		if x.Op == token.MUL {
			return ir.Load{Ptr: l.value(x.X)}
		}

		return ir.Unknown{Op: x.Op.String(), Args: []ir.Expr{l.value(x.X)}}
	case *ssa.Store:
		return ir.Store{Ptr: l.value(x.Addr), Val: l.value(x.Val)}
	case *ssa.IndexAddr:
		idx := []ir.Expr{l.value(x.Index)}

		switch x.X.(type) {
		case *ssa.IndexAddr, *ssa.FieldAddr:
			// the element of an inner address computation is reached
			// through its address, as with C arrays of arrays
			idx = append([]ir.Expr{l.p.Alloc(ir.Const(0))}, idx...)
		}

		return ir.GEP{Ptr: l.value(x.X), Idx: idx}
	case *ssa.FieldAddr:
		return ir.GEP{Ptr: l.value(x.X), Idx: []ir.Expr{
			l.p.Alloc(ir.Const(0)),
			l.p.Alloc(ir.Const(x.Field)),
		}}
	case *ssa.BinOp:
		a, b := l.value(x.X), l.value(x.Y)

		switch x.Op {
		case token.EQL, token.NEQ, token.LSS, token.LEQ, token.GTR, token.GEQ:
			return ir.Cmp{Pred: x.Op.String(), L: a, R: b}
		}

		return ir.BinOp{Op: x.Op.String(), L: a, R: b}
	case *ssa.Convert:
		return l.convert(x)
	case *ssa.ChangeType:
		// identity conversion
		return ir.ZExt{X: l.value(x.X)}
	case *ssa.Phi:
		phi := make(ir.Phi, len(x.Edges))

		for i, e := range x.Edges {
			phi[i] = l.value(e)
		}

		return phi
	case *ssa.MakeSlice:
		return ir.Call{Func: "make", Args: []ir.Expr{l.value(x.Len), l.value(x.Cap)}}
	case *ssa.Call:
		return l.call(&x.Call)
	}

	return ir.Unknown{Op: opName(in), Args: l.operands(in)}
}

func (l *lowerer) convert(x *ssa.Convert) ir.Value {
	from, to := x.X.Type(), x.Type()
	arg := l.value(x.X)

	switch {
	case isUnsafePointer(from) && isInteger(to):
		return ir.PtrToInt{X: arg}
	case isInteger(from) && isUnsafePointer(to):
		return ir.IntToPtr{X: arg}
	case isPointer(from) && isPointer(to):
		return ir.BitCast{X: arg, From: l.types.elem(from), To: l.types.elem(to)}
	case isInteger(from) && isInteger(to):
		fs, ts := l.types.sizes.Sizeof(from), l.types.sizes.Sizeof(to)

		switch {
		case ts < fs:
			return ir.Unknown{Op: "trunc", Args: []ir.Expr{arg}}
		case isUnsigned(from):
			return ir.ZExt{X: arg}
		default:
			return ir.SExt{X: arg}
		}
	}

	return ir.Unknown{Op: "convert", Args: []ir.Expr{arg}}
}

func (l *lowerer) call(c *ssa.CallCommon) ir.Value {
	var name string

	switch {
	case c.IsInvoke():
		name = c.Method.Name()
	case c.StaticCallee() != nil:
		name = c.StaticCallee().Name()
	default:
		if b, ok := c.Value.(*ssa.Builtin); ok {
			name = b.Name()
		}
	}

	args := make([]ir.Expr, len(c.Args))

	for i, a := range c.Args {
		args[i] = l.value(a)
	}

	return ir.Call{Func: name, Args: args}
}

// value gives the id of an operand, allocating values defined
// outside of function bodies on first use.
func (l *lowerer) value(v ssa.Value) ir.Expr {
	if v == nil {
		return ir.Nil
	}

	if id, ok := l.ids[v]; ok {
		return id
	}

	var id ir.Expr

	switch v := v.(type) {
	case *ssa.Const:
		id = l.p.Alloc(constValue(v))
	case *ssa.Global:
		id = l.p.Alloc(ir.Global{})

		// globals are declared outside of any function
		l.n.Declare(id, v.Name(), nil, l.types.elem(v.Type()))
	default:
		id = l.p.Alloc(ir.Unknown{Op: opName(v)})
	}

	l.ids[v] = id

	return id
}

func (l *lowerer) operands(in ssa.Instruction) []ir.Expr {
	var r []ir.Expr

	for _, op := range in.Operands(nil) {
		if *op == nil {
			continue
		}

		r = append(r, l.value(*op))
	}

	return r
}

func constValue(c *ssa.Const) ir.Value {
	if c.Value == nil {
		return ir.Null{}
	}

	switch c.Value.Kind() {
	case constant.Int:
		if v, ok := constant.Int64Val(c.Value); ok {
			return ir.Const(v)
		}
	case constant.Float:
		v, _ := constant.Float64Val(c.Value)
		return ir.ConstFloat(v)
	case constant.Bool:
		if constant.BoolVal(c.Value) {
			return ir.Const(1)
		}

		return ir.Const(0)
	}

	return ir.Unknown{Op: "const"}
}

func opName(x any) string {
	return strings.ToLower(reflect.TypeOf(x).Elem().Name())
}

func recvName(t types.Type) string {
	if p, ok := t.(*types.Pointer); ok {
		t = p.Elem()
	}

	if n, ok := t.(*types.Named); ok {
		return n.Obj().Name()
	}

	return t.String()
}

// loopBlocks returns indexes of blocks belonging to natural loops of fn.
func loopBlocks(fn *ssa.Function) set.Bits[int] {
	r := set.MakeBits[int]()

	for _, b := range fn.Blocks {
		for _, h := range b.Succs {
			if !h.Dominates(b) {
				continue
			}

			body := set.MakeBits[int]()
			body.Set(h.Index)

			stack := []*ssa.BasicBlock{b}

			for len(stack) != 0 {
				x := stack[len(stack)-1]
				stack = stack[:len(stack)-1]

				if !body.Add(x.Index) {
					continue
				}

				stack = append(stack, x.Preds...)
			}

			body.Range(func(i int) bool {
				r.Set(i)
				return true
			})
		}
	}

	return r
}
