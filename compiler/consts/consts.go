package consts

import (
	"tlog.app/go/tlog"

	"github.com/Bondzio/TaskMiner/compiler/ir"
	"github.com/Bondzio/TaskMiner/compiler/tp"
)

// Evaluator folds integer constants and constant expressions.
type Evaluator struct{}

// UniqueInteger returns the integer value of constant c.
// ptr is the pointer under analysis; it is only used for tracing.
func (e Evaluator) UniqueInteger(p *ir.Package, c, ptr ir.Expr, l tp.Layout) (int64, bool) {
	v, ok := e.eval(p, c, l)

	tlog.V("consts").Printw("constant", "id", c, "ptr", ptr, "val", v, "ok", ok)

	return v, ok
}

func (e Evaluator) eval(p *ir.Package, c ir.Expr, l tp.Layout) (int64, bool) {
	switch x := p.At(c).(type) {
	case ir.Const:
		return int64(x), true
	case ir.Null:
		return 0, true
	case ir.SizeOf:
		if l == nil || x.T == nil {
			return 0, false
		}

		return int64(l.SizeOf(x.T)), true
	case ir.ConstExpr:
		a, ok := e.eval(p, x.L, l)
		if !ok {
			return 0, false
		}

		b, ok := e.eval(p, x.R, l)
		if !ok {
			return 0, false
		}

		return ir.Fold(x.Op, a, b)
	}

	return 0, false
}
