package access

import (
	"github.com/Bondzio/TaskMiner/compiler/ir"
	"github.com/Bondzio/TaskMiner/compiler/set"
)

// ContainsAddressComputation reports whether an address computation
// is reachable from v through operands, v included.
func ContainsAddressComputation(p *ir.Package, v ir.Expr) bool {
	return contains(p, v, func(x any) bool {
		_, ok := x.(ir.GEP)
		return ok
	})
}

// ContainsMemoryLoad reports whether a load
// is reachable from v through operands, v included.
func ContainsMemoryLoad(p *ir.Package, v ir.Expr) bool {
	return contains(p, v, func(x any) bool {
		_, ok := x.(ir.Load)
		return ok
	})
}

func contains(p *ir.Package, v ir.Expr, match func(x any) bool) bool {
	if !ir.IsInstruction(p.At(v)) {
		return false
	}

	visited := set.MakeBits[ir.Expr]()
	visited.Set(v)

	stack := []ir.Expr{v}

	for len(stack) != 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		x := p.At(id)
		if !ir.IsInstruction(x) {
			continue
		}

		if match(x) {
			return true
		}

		for _, op := range p.Operands(id) {
			if op < 0 || !visited.Add(op) {
				continue
			}

			stack = append(stack, op)
		}
	}

	return false
}
