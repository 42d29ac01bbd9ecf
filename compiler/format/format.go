package format

import (
	"context"

	"github.com/nikandfor/hacked/hfmt"
	"tlog.app/go/errors"

	"github.com/Bondzio/TaskMiner/compiler/access"
	"github.com/Bondzio/TaskMiner/compiler/ir"
	"github.com/Bondzio/TaskMiner/compiler/tp"
)

// Format renders the value graph one value per line,
// with declared names as comments.
func Format(ctx context.Context, b []byte, p *ir.Package, n access.Names) (_ []byte, err error) {
	b = hfmt.Appendf(b, "package %s\n", p.Path)

	for _, f := range p.Funcs {
		b = append(b, '\n')

		b, err = formatFunc(ctx, b, p, n, f, 0)
		if err != nil {
			return nil, errors.Wrap(err, "func %v", f.Name)
		}
	}

	return b, nil
}

func formatFunc(ctx context.Context, b []byte, p *ir.Package, n access.Names, f *ir.Func, d int) (_ []byte, err error) {
	b = app(b, d, "func %v(", f.Name)

	for i, a := range f.Params {
		if i != 0 {
			b = append(b, ", "...)
		}

		b = app(b, 0, "%%%d %s", int(a), n.DeclaredName(a))
	}

	b = append(b, ") {\n"...)

	acc := make(map[ir.Expr]struct{}, len(f.Access))
	for _, id := range f.Access {
		acc[id] = struct{}{}
	}

	for _, id := range f.Code {
		b = app(b, d+1, "%d = ", int(id))

		b, err = formatValue(ctx, b, p, id)
		if err != nil {
			return nil, errors.Wrap(err, "value %d", id)
		}

		if name := n.DeclaredName(id); name != "" {
			b = app(b, 0, "  // %s", name)
		}

		if _, ok := acc[id]; ok {
			b = append(b, "  // access"...)
		}

		b = append(b, '\n')
	}

	b = app(b, d, "}\n")

	return b, nil
}

func formatValue(ctx context.Context, b []byte, p *ir.Package, id ir.Expr) ([]byte, error) {
	switch x := p.At(id).(type) {
	case ir.Load:
		b = app(b, 0, "load %s", arg(p, x.Ptr))
	case ir.Store:
		b = app(b, 0, "store %s, %s", arg(p, x.Val), arg(p, x.Ptr))
	case ir.GEP:
		b = app(b, 0, "gep %s", arg(p, x.Ptr))
		b = args(b, p, x.Idx)
	case ir.BitCast:
		b = app(b, 0, "bitcast %s from %d to %d bytes", arg(p, x.X), size(x.From), size(x.To))
	case ir.SExt:
		b = app(b, 0, "sext %s", arg(p, x.X))
	case ir.ZExt:
		b = app(b, 0, "zext %s", arg(p, x.X))
	case ir.PtrToInt:
		b = app(b, 0, "ptrtoint %s", arg(p, x.X))
	case ir.IntToPtr:
		b = app(b, 0, "inttoptr %s", arg(p, x.X))
	case ir.Select:
		b = app(b, 0, "select %s ? %s : %s", arg(p, x.Cond), arg(p, x.T), arg(p, x.F))
	case ir.Phi:
		b = append(b, "phi"...)
		b = args(b, p, x)
	case ir.Call:
		b = app(b, 0, "call %s", x.Func)
		b = args(b, p, x.Args)
	case ir.Cmp:
		b = app(b, 0, "cmp %s %s %s", arg(p, x.L), x.Pred, arg(p, x.R))
	case ir.BinOp:
		b = app(b, 0, "%s %s %s", arg(p, x.L), x.Op, arg(p, x.R))
	case ir.Unknown:
		b = app(b, 0, "unknown %s", x.Op)
		b = args(b, p, x.Args)
	case ir.Alloca:
		b = append(b, "alloca"...)
	default:
		if c, ok := constant(p, id); ok {
			b = append(b, c...)
			break
		}

		return nil, errors.New("unsupported value: %T", x)
	}

	return b, nil
}

func args(b []byte, p *ir.Package, l []ir.Expr) []byte {
	for i, a := range l {
		if i == 0 {
			b = append(b, " ["...)
		} else {
			b = append(b, ", "...)
		}

		b = append(b, arg(p, a)...)

		if i == len(l)-1 {
			b = append(b, ']')
		}
	}

	return b
}

// arg renders an operand: constants inline, other values by id.
func arg(p *ir.Package, id ir.Expr) string {
	if c, ok := constant(p, id); ok {
		return c
	}

	if id == ir.Nil {
		return "nil"
	}

	return sprintf("%%%d", int(id))
}

func constant(p *ir.Package, id ir.Expr) (string, bool) {
	switch x := p.At(id).(type) {
	case ir.Const:
		return sprintf("%d", int64(x)), true
	case ir.ConstFloat:
		return sprintf("%v", float64(x)), true
	case ir.Null:
		return "null", true
	case ir.SizeOf:
		return sprintf("sizeof(%d)", size(x.T)), true
	case ir.ConstExpr:
		return sprintf("(%s %s %s)", arg(p, x.L), x.Op, arg(p, x.R)), true
	case ir.Global:
		return sprintf("@%d", int(id)), true
	case ir.Param:
		return sprintf("%%%d", int(id)), true
	}

	return "", false
}

func size(t tp.Type) int {
	if t == nil {
		return 0
	}

	return t.Size()
}

func sprintf(f string, args ...any) string {
	return string(hfmt.Appendf(nil, f, args...))
}

func app(b []byte, d int, f string, args ...any) []byte {
	for i := 0; i < d; i++ {
		b = append(b, '\t')
	}

	b = hfmt.Appendf(b, f, args...)
	return b
}
