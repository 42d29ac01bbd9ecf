package tp

type (
	// Type is a debug type descriptor: the declared type of a variable
	// before lowering.
	Type interface {
		Size() int
	}

	Basic struct {
		Name  string
		Bytes int
	}

	Composite struct {
		Name   string
		Fields []Field

		Base Type
	}

	Field struct {
		Name string
		Type Type
	}

	Derived struct {
		Tag  Tag
		Base Type

		Len int
	}

	Tag string
)

const (
	Pointer Tag = "pointer"
	Array   Tag = "array"
	Slice   Tag = "slice"
	Const   Tag = "const"
	Typedef Tag = "typedef"
)

const PtrSize = 8

func (x Basic) Size() int {
	return x.Bytes
}

func (x *Composite) Size() (s int) {
	for _, f := range x.Fields {
		s += f.Type.Size()
	}

	return s
}

func (x *Derived) Size() int {
	switch x.Tag {
	case Pointer:
		return PtrSize
	case Slice:
		return 3 * PtrSize
	}

	if x.Base == nil {
		return 0
	}

	if x.Tag == Array {
		return x.Base.Size() * x.Len
	}

	return x.Base.Size()
}

// Descend returns the descriptor one level below t.
// Basic types have no children. Composite types give the field at index,
// or descend into their base type if there is no such field.
// Derived types give their base, whatever the index is.
func Descend(t Type, index int) Type {
	switch t := t.(type) {
	case Basic:
		return t
	case *Composite:
		if index >= 0 && index < len(t.Fields) {
			return t.Fields[index].Type
		}

		if t.Base != nil {
			return Descend(t.Base, index)
		}
	case *Derived:
		if t.Base != nil {
			return t.Base
		}
	}

	return t
}

func IsComposite(t Type) bool {
	_, ok := t.(*Composite)
	return ok
}

// SameType reports structural equality of two descriptors.
func SameType(a, b Type) bool {
	return same(a, b, map[[2]Type]struct{}{})
}

func same(a, b Type, seen map[[2]Type]struct{}) bool {
	if a == nil || b == nil {
		return a == b
	}

	k := [2]Type{a, b}
	if _, ok := seen[k]; ok {
		return true
	}

	seen[k] = struct{}{}

	switch a := a.(type) {
	case Basic:
		b, ok := b.(Basic)
		return ok && a == b
	case *Composite:
		b, ok := b.(*Composite)
		if !ok || a.Name != b.Name || len(a.Fields) != len(b.Fields) {
			return false
		}

		for i := range a.Fields {
			if a.Fields[i].Name != b.Fields[i].Name || !same(a.Fields[i].Type, b.Fields[i].Type, seen) {
				return false
			}
		}

		return same(a.Base, b.Base, seen)
	case *Derived:
		b, ok := b.(*Derived)
		if !ok || a.Tag != b.Tag || a.Len != b.Len {
			return false
		}

		return same(a.Base, b.Base, seen)
	}

	return false
}

type (
	// Layout gives type sizes for a target.
	Layout interface {
		SizeOf(t Type) int
	}

	// Sizes is the Layout of the descriptors themselves.
	Sizes struct{}
)

func (Sizes) SizeOf(t Type) int {
	if t == nil {
		return 0
	}

	return t.Size()
}
