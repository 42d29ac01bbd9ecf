package gossa

import (
	"go/types"

	"github.com/Bondzio/TaskMiner/compiler/tp"
)

type typeConv struct {
	sizes types.Sizes
	cache map[types.Type]tp.Type
}

var byteType = tp.Basic{Name: "byte", Bytes: 1}

func newTypeConv() *typeConv {
	return &typeConv{
		sizes: types.SizesFor("gc", "amd64"),
		cache: make(map[types.Type]tp.Type),
	}
}

// conv gives the debug descriptor of a Go type.
func (c *typeConv) conv(t types.Type) tp.Type {
	if r, ok := c.cache[t]; ok {
		return r
	}

	switch t := t.(type) {
	case *types.Basic:
		if t.Kind() == types.UnsafePointer {
			return c.put(t, &tp.Derived{Tag: tp.Pointer, Base: byteType})
		}

		return c.put(t, tp.Basic{Name: t.Name(), Bytes: int(c.sizes.Sizeof(t))})
	case *types.Pointer:
		d := &tp.Derived{Tag: tp.Pointer}
		c.put(t, d)
		d.Base = c.conv(t.Elem())

		return d
	case *types.Array:
		d := &tp.Derived{Tag: tp.Array, Len: int(t.Len())}
		c.put(t, d)
		d.Base = c.conv(t.Elem())

		return d
	case *types.Slice:
		d := &tp.Derived{Tag: tp.Slice}
		c.put(t, d)
		d.Base = c.conv(t.Elem())

		return d
	case *types.Struct:
		return c.strct(t, "", t)
	case *types.Named:
		if s, ok := t.Underlying().(*types.Struct); ok {
			return c.strct(t, t.Obj().Name(), s)
		}

		d := &tp.Derived{Tag: tp.Typedef}
		c.put(t, d)
		d.Base = c.conv(t.Underlying())

		return d
	case *types.Alias:
		return c.put(t, c.conv(types.Unalias(t)))
	case *types.TypeParam:
		return c.put(t, tp.Basic{Name: t.String()})
	}

	return c.put(t, tp.Basic{Name: t.String(), Bytes: int(c.sizes.Sizeof(t))})
}

func (c *typeConv) strct(key types.Type, name string, s *types.Struct) tp.Type {
	x := &tp.Composite{Name: name}
	c.put(key, x)

	for i := 0; i < s.NumFields(); i++ {
		f := s.Field(i)

		x.Fields = append(x.Fields, tp.Field{Name: f.Name(), Type: c.conv(f.Type())})
	}

	return x
}

func (c *typeConv) put(t types.Type, r tp.Type) tp.Type {
	c.cache[t] = r

	return r
}

// elem gives the pointee of a pointer type.
func (c *typeConv) elem(t types.Type) tp.Type {
	switch t := t.Underlying().(type) {
	case *types.Pointer:
		return c.conv(t.Elem())
	}

	return byteType
}

func isUnsafePointer(t types.Type) bool {
	b, ok := t.Underlying().(*types.Basic)
	return ok && b.Kind() == types.UnsafePointer
}

func isPointer(t types.Type) bool {
	_, ok := t.Underlying().(*types.Pointer)
	return ok || isUnsafePointer(t)
}

func isInteger(t types.Type) bool {
	b, ok := t.Underlying().(*types.Basic)
	return ok && b.Info()&types.IsInteger != 0
}

func isUnsigned(t types.Type) bool {
	b, ok := t.Underlying().(*types.Basic)
	return ok && b.Info()&types.IsUnsigned != 0
}
