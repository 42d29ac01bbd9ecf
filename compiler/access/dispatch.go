package access

import (
	"context"
	"strconv"

	"tlog.app/go/loc"
	"tlog.app/go/tlog"

	"github.com/Bondzio/TaskMiner/compiler/ir"
)

// Recover returns the source level expression of value v.
// name is the name of the expression being expanded by the caller.
//
// If the returned slot is set the value lives in a generated temporary
// and callers should refer to it with Ref.
// Empty text means there is nothing to contribute; check Valid
// to tell it from a failure.
func (s *Session) Recover(ctx context.Context, v ir.Expr, name string) (string, Slot) {
	if !s.valid {
		return "", NoSlot
	}

	if e, ok := s.memo[v]; ok {
		tlog.V("memo").Printw("memo hit", "id", v, "text", e.text, "slot", e.slot)

		return e.text, e.slot
	}

	if n := s.Names.OriginalName(v); n != "" {
		return n, NoSlot
	}

	x := s.p.At(v)

	tlog.V("recover").Printw("recover", "id", v, "typ", tlog.NextAsType, x, "name", name)

	if _, ok := x.(ir.Phi); ok {
		if n := s.Names.DeclaredName(v); n != "" && n != name {
			s.remember(v, n, NoSlot)

			return n, NoSlot
		}
	}

	if text, sl, ok := s.recoverName(v, x, name); ok {
		return text, sl
	}

	if ir.IsConstant(x) {
		c, ok := s.Consts.UniqueInteger(s.p, v, s.ptr, s.Layout)
		if !ok {
			s.invalidate(loc.Caller(0))
			return "0", NoSlot
		}

		text := strconv.FormatInt(c, 10)
		s.remember(v, text, NoSlot)

		return text, NoSlot
	}

	if _, ok := x.(ir.Cmp); ok {
		return "", NoSlot
	}

	if !ir.IsInstruction(x) {
		s.invalidate(loc.Caller(0))
		return "", NoSlot
	}

	s.built++

	text, sl := s.build(ctx, v, x, name)
	if !s.valid {
		return "", NoSlot
	}

	s.remember(v, text, sl)

	return text, sl
}

// recoverName handles values standing for a declared variable.
func (s *Session) recoverName(v ir.Expr, x any, name string) (text string, sl Slot, ok bool) {
	switch x.(type) {
	case ir.Load, ir.Store:
		n := s.Names.DeclaredName(v)
		if n == "" {
			return "", NoSlot, false
		}

		return s.declared(v, n, name), NoSlot, true
	case ir.Call, ir.Alloca, ir.Global, ir.Param, ir.Phi:
	default:
		return "", NoSlot, false
	}

	n := s.Names.DeclaredName(v)
	if n == "" {
		if c, ok := x.(ir.Call); ok {
			tlog.V("call").Printw("unnamed call", "id", v, "func", c.Func, "alloc", s.Calls != nil && s.Calls.IsAllocation(c))
		}

		s.invalidate(loc.Caller(0))
		return "", NoSlot, true
	}

	return s.declared(v, n, name), NoSlot, true
}

func (s *Session) declared(v ir.Expr, n, name string) string {
	if n == name {
		return Self
	}

	s.remember(v, n, NoSlot)

	return n
}

func (s *Session) build(ctx context.Context, v ir.Expr, x any, name string) (string, Slot) {
	switch x := x.(type) {
	case ir.Load:
		return s.load(ctx, x, name)
	case ir.Store:
		return s.store(ctx, x, name)
	case ir.GEP:
		return s.gep(ctx, v, x, name)
	case ir.BitCast:
		return s.bitcast(ctx, x, name)
	case ir.SExt:
		return s.Recover(ctx, x.X, name)
	case ir.ZExt:
		return s.Recover(ctx, x.X, name)
	case ir.PtrToInt:
		return s.cast(ctx, x.X, name)
	case ir.IntToPtr:
		return s.cast(ctx, x.X, name)
	case ir.Select:
		return s.sel(ctx, x, name)
	case ir.BinOp:
		return s.generic(ctx, x, name)
	case ir.Unknown, ir.Alloca, ir.Phi, ir.Call, ir.Cmp:
		// unsupported or already handled before building
	}

	s.invalidate(loc.Caller(0))

	return "", NoSlot
}
