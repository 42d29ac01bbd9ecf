package names

import (
	"github.com/Bondzio/TaskMiner/compiler/ir"
	"github.com/Bondzio/TaskMiner/compiler/tp"
)

type (
	// Table keeps names and declared types recovered from debug information.
	Table struct {
		Original map[ir.Expr]string
		Declared map[ir.Expr]string

		Funcs map[ir.Expr]*ir.Func
		Types map[ir.Expr]tp.Type
	}

	// AllocFuncs classifies calls to the named functions as allocations.
	AllocFuncs map[string]struct{}
)

func NewTable() *Table {
	return &Table{
		Original: make(map[ir.Expr]string),
		Declared: make(map[ir.Expr]string),
		Funcs:    make(map[ir.Expr]*ir.Func),
		Types:    make(map[ir.Expr]tp.Type),
	}
}

// Declare records v as the variable name of type typ declared in f.
// Empty name or nil f and typ are not recorded.
func (t *Table) Declare(v ir.Expr, name string, f *ir.Func, typ tp.Type) {
	if name != "" {
		t.Declared[v] = name
	}

	if f != nil {
		t.Funcs[v] = f
	}

	if typ != nil {
		t.Types[v] = typ
	}
}

func (t *Table) OriginalName(v ir.Expr) string {
	return t.Original[v]
}

func (t *Table) DeclaredName(v ir.Expr) string {
	return t.Declared[v]
}

func (t *Table) EnclosingRoutine(v ir.Expr) *ir.Func {
	return t.Funcs[v]
}

// DeclaredVariable returns the declared type of v if v is declared in f.
func (t *Table) DeclaredVariable(v ir.Expr, f *ir.Func) tp.Type {
	if f == nil || t.Funcs[v] != f {
		return nil
	}

	return t.Types[v]
}

func NewAllocFuncs(names ...string) AllocFuncs {
	a := make(AllocFuncs, len(names))

	for _, n := range names {
		a[n] = struct{}{}
	}

	return a
}

// DefaultAllocFuncs are the C allocators plus Go builtins making memory.
func DefaultAllocFuncs() AllocFuncs {
	return NewAllocFuncs("malloc", "calloc", "realloc", "aligned_alloc", "new", "make")
}

func (a AllocFuncs) IsAllocation(c ir.Call) bool {
	_, ok := a[c.Func]
	return ok
}
