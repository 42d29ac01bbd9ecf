package access

import (
	"context"
	"fmt"
	"strconv"

	"tlog.app/go/loc"

	"github.com/Bondzio/TaskMiner/compiler/ir"
	"github.com/Bondzio/TaskMiner/compiler/tp"
)

func (s *Session) load(ctx context.Context, x ir.Load, name string) (string, Slot) {
	text, sl := s.Recover(ctx, x.Ptr, name)
	if text == name {
		return "", sl
	}

	return text, sl
}

// store gives the destination address only.
func (s *Session) store(ctx context.Context, x ir.Store, name string) (string, Slot) {
	return s.Recover(ctx, x.Ptr, name)
}

func (s *Session) gep(ctx context.Context, v ir.Expr, x ir.GEP, name string) (string, Slot) {
	if !x.HasIndices() || s.zeros(x.Idx) {
		return s.Recover(ctx, x.Ptr, name)
	}

	base := x.Ptr

	if s.Names.OriginalName(v) == "" {
		base = s.p.BasePointer(v)
	}

	f := s.Names.EnclosingRoutine(base)
	if f == nil {
		return "", NoSlot
	}

	dt := s.Names.DeclaredVariable(base, f)
	if dt == nil {
		return "", NoSlot
	}

	text, sl := s.Recover(ctx, x.Ptr, name)
	if !s.valid {
		return "", NoSlot
	}

	b := []byte(s.Ref(text, sl))

	idx := x.Idx

	if _, ok := s.p.At(x.Ptr).(ir.GEP); ok {
		idx = idx[1:]
		dt = tp.Descend(dt, 0)
	}

	for _, i := range idx {
		if tp.IsComposite(dt) {
			// struct fields are not supported
			return "", NoSlot
		}

		text, sl := s.Recover(ctx, i, name)
		if !s.valid {
			return "", NoSlot
		}

		b = append(b, '[')
		b = append(b, s.Ref(text, sl)...)
		b = append(b, ']')

		dt = tp.Descend(dt, 0)
	}

	return string(b), NoSlot
}

func (s *Session) zeros(idx []ir.Expr) bool {
	for _, i := range idx {
		switch x := s.p.At(i).(type) {
		case ir.Const:
			if x != 0 {
				return false
			}
		case ir.Null:
		default:
			return false
		}
	}

	return true
}

func (s *Session) bitcast(ctx context.Context, x ir.BitCast, name string) (string, Slot) {
	from := s.Layout.SizeOf(x.From)
	to := s.Layout.SizeOf(x.To)

	if from == 0 {
		s.invalidate(loc.Caller(0))
		return "", NoSlot
	}

	factor := float64(to) / float64(from)

	text, sl := s.Recover(ctx, x.X, name)
	if !s.valid {
		return "", NoSlot
	}

	if !sl.IsSet() {
		if n, err := strconv.ParseInt(text, 10, 64); err == nil {
			return number(factor * float64(n)), NoSlot
		}
	}

	src := s.Ref(text, sl)
	if src == "" {
		return "", NoSlot
	}

	stmt := number(factor) + " * " + src + ";\n"

	return stmt, s.emit(stmt)
}

func (s *Session) cast(ctx context.Context, x ir.Expr, name string) (string, Slot) {
	text, sl := s.Recover(ctx, x, name)

	n, ok := sl.Index()
	if !ok {
		return text, NoSlot
	}

	return "", s.emit(fmt.Sprintf("(long long int) %s[%d];\n", s.temp, n))
}

func (s *Session) emit(stmt string) Slot {
	n := s.Emit.NewSlot()
	s.Emit.Emit(n, stmt)

	return SlotOf(n)
}

func (s *Session) sel(ctx context.Context, x ir.Select, name string) (string, Slot) {
	c := s.cond(ctx, x.Cond, name)
	t := s.operand(ctx, x.T, name)
	f := s.operand(ctx, x.F, name)

	if !s.valid || c == "" || t == "" || f == "" {
		return "", NoSlot
	}

	return "(" + c + " ? " + t + " : " + f + ")", NoSlot
}

func (s *Session) cond(ctx context.Context, v ir.Expr, name string) string {
	c, ok := s.p.At(v).(ir.Cmp)
	if !ok || s.Names.OriginalName(v) != "" {
		return s.operand(ctx, v, name)
	}

	l := s.operand(ctx, c.L, name)
	r := s.operand(ctx, c.R, name)

	if l == "" || r == "" {
		return ""
	}

	return "(" + l + " " + c.Pred + " " + r + ")"
}

func (s *Session) operand(ctx context.Context, v ir.Expr, name string) string {
	text, sl := s.Recover(ctx, v, name)

	return s.Ref(text, sl)
}

func (s *Session) generic(ctx context.Context, x ir.BinOp, name string) (string, Slot) {
	l, lsl := s.Recover(ctx, x.L, name)
	r, rsl := s.Recover(ctx, x.R, name)

	if !s.valid {
		return "", NoSlot
	}

	if !lsl.IsSet() && !rsl.IsSet() {
		a, aerr := strconv.ParseInt(l, 10, 64)
		b, berr := strconv.ParseInt(r, 10, 64)

		if aerr == nil && berr == nil {
			if c, ok := ir.Fold(x.Op, a, b); ok {
				return strconv.FormatInt(c, 10), NoSlot
			}
		}
	}

	l, r = s.Ref(l, lsl), s.Ref(r, rsl)

	if l == "" || r == "" {
		return "", NoSlot
	}

	return "(" + l + " " + x.Op + " " + r + ")", NoSlot
}

func number(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
