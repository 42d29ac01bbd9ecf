package analyze

import (
	"context"
	"fmt"
	"reflect"

	"tlog.app/go/errors"
	"tlog.app/go/loc"
	"tlog.app/go/tlog"

	"github.com/Bondzio/TaskMiner/compiler/access"
	"github.com/Bondzio/TaskMiner/compiler/consts"
	"github.com/Bondzio/TaskMiner/compiler/emit"
	"github.com/Bondzio/TaskMiner/compiler/ir"
	"github.com/Bondzio/TaskMiner/compiler/names"
	"github.com/Bondzio/TaskMiner/compiler/tp"
)

type (
	Options struct {
		access.Options

		// Func restricts the analysis to one function.
		Func string

		Layout access.Layout
		Calls  access.Calls
	}

	Report struct {
		Path string

		// Temp is the temporaries array side statements assign to.
		Temp string

		Funcs []Func
	}

	Func struct {
		Name string

		Accesses []Access
	}

	Access struct {
		ID   ir.Expr
		Kind string

		Base     string
		Strategy Strategy

		// Group is shared by accesses with the same base type.
		Group int

		Expr  string
		Slot  access.Slot
		Ref   string
		Valid bool

		InvalidAt loc.PC

		Stmts []emit.Stmt
	}

	Strategy string

	UnsupportedValueError struct {
		ID ir.Expr
		X  any
	}
)

const (
	// Direct accesses have no load feeding their address.
	Direct   Strategy = "direct"
	Indirect Strategy = "indirect"
)

// Analyze recovers the access expression of every load and store
// found in loops of p. Each access is recovered in its own session.
func Analyze(ctx context.Context, p *ir.Package, n access.Names, opts Options) (r *Report, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "analyze: package", "path", p.Path, "funcs", len(p.Funcs))
	defer tr.Finish("err", &err)

	if opts.Layout == nil {
		opts.Layout = tp.Sizes{}
	}

	if opts.Calls == nil {
		opts.Calls = names.DefaultAllocFuncs()
	}

	if opts.TempArray == "" {
		opts.TempArray = access.DefaultTempArray
	}

	r = &Report{Path: p.Path, Temp: opts.TempArray}

	for _, f := range p.Funcs {
		if opts.Func != "" && f.Name != opts.Func {
			continue
		}

		fr, err := analyzeFunc(ctx, p, n, f, opts)
		if err != nil {
			return nil, errors.Wrap(err, "func %v", f.Name)
		}

		r.Funcs = append(r.Funcs, fr)
	}

	if opts.Func != "" && len(r.Funcs) == 0 {
		return nil, errors.New("no such func: %v", opts.Func)
	}

	return r, nil
}

func analyzeFunc(ctx context.Context, p *ir.Package, n access.Names, f *ir.Func, opts Options) (fr Func, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "analyze: func", "name", f.Name, "candidates", len(f.Access))
	defer tr.Finish("err", &err)

	fr.Name = f.Name

	var types []tp.Type

	for _, id := range f.Access {
		x := p.At(id)

		var kind string

		switch x.(type) {
		case ir.Load:
			kind = "load"
		case ir.Store:
			kind = "store"
		default:
			return fr, NewUnsupportedValue(id, x)
		}

		ptr, _ := ir.PointerOperand(x)

		if !access.ContainsAddressComputation(p, ptr) {
			tr.V("skip").Printw("no address computation", "id", id, "ptr", ptr)
			continue
		}

		a := recoverAccess(ctx, p, n, id, ptr, opts)
		a.Kind = kind

		base := p.BasePointer(id)
		a.Base = n.DeclaredName(base)

		bt := n.DeclaredVariable(base, n.EnclosingRoutine(base))
		a.Group = group(&types, bt)

		tr.Printw("access", "id", id, "kind", kind, "base", a.Base, "expr", a.Ref, "valid", a.Valid, "strategy", a.Strategy)

		fr.Accesses = append(fr.Accesses, a)
	}

	return fr, nil
}

func recoverAccess(ctx context.Context, p *ir.Package, n access.Names, id, ptr ir.Expr, opts Options) Access {
	var buf emit.Buffer

	s := access.New(p, ptr, access.Collaborators{
		Names:  n,
		Consts: consts.Evaluator{},
		Layout: opts.Layout,
		Calls:  opts.Calls,
		Emit:   &buf,
	}, opts.Options)

	// the access itself may be named after the variable it is loaded into,
	// so the address is recovered, not the access value
	text, sl := s.Recover(ctx, ptr, "")

	a := Access{
		ID:       id,
		Strategy: Direct,
		Expr:     text,
		Slot:     sl,
		Ref:      s.Ref(text, sl),
		Valid:    s.Valid(),
		Stmts:    buf.Stmts(),
	}

	if access.ContainsMemoryLoad(p, ptr) {
		a.Strategy = Indirect
	}

	if !a.Valid {
		a.InvalidAt = s.InvalidatedAt()
	}

	return a
}

// group returns the index of the first type in types same as t, adding t if there is none.
// Unknown types get a group of their own.
func group(types *[]tp.Type, t tp.Type) int {
	if t != nil {
		for i, x := range *types {
			if tp.SameType(x, t) {
				return i
			}
		}
	}

	*types = append(*types, t)

	return len(*types) - 1
}

func NewUnsupportedValue(id ir.Expr, x any) UnsupportedValueError {
	return UnsupportedValueError{
		ID: id,
		X:  x,
	}
}

func (e UnsupportedValueError) Error() string {
	return fmt.Sprintf("unsupported access value %d: %v", e.ID, reflect.TypeOf(e.X))
}
