package irfile

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/Bondzio/TaskMiner/compiler/ir"
	"github.com/Bondzio/TaskMiner/compiler/names"
	"github.com/Bondzio/TaskMiner/compiler/tp"
)

type (
	// File is the textual form of a value graph.
	File struct {
		Package string `yaml:"package"`

		// Temp is the name of the temporaries array.
		Temp string `yaml:"temp,omitempty"`

		Types   map[string]Type `yaml:"types,omitempty"`
		Globals []Value         `yaml:"globals,omitempty"`
		Funcs   []Func          `yaml:"funcs"`
	}

	// Type describes one debug type. Exactly one of Basic, Composite
	// and Derived is set.
	Type struct {
		Basic     string  `yaml:"basic,omitempty"`
		Composite string  `yaml:"composite,omitempty"`
		Derived   tp.Tag  `yaml:"derived,omitempty"`
		Size      int     `yaml:"size,omitempty"`
		Len       int     `yaml:"len,omitempty"`
		Base      string  `yaml:"base,omitempty"`
		Fields    []Field `yaml:"fields,omitempty"`
	}

	Field struct {
		Name string `yaml:"name"`
		Type string `yaml:"type"`
	}

	Func struct {
		Name   string  `yaml:"name"`
		Params []Value `yaml:"params,omitempty"`
		Code   []Value `yaml:"code"`
	}

	// Value is one node of the graph.
	// Args refer to other values by id. An argument which is not an id
	// and parses as a number is an inline constant.
	Value struct {
		ID   string   `yaml:"id"`
		Op   string   `yaml:"op"`
		Args []string `yaml:"args,omitempty"`

		// Name is the declared variable name, Original overrides
		// the whole expression text.
		Name     string `yaml:"name,omitempty"`
		Original string `yaml:"original,omitempty"`
		Type     string `yaml:"type,omitempty"`

		Value    string `yaml:"value,omitempty"`
		Operator string `yaml:"operator,omitempty"`
		Func     string `yaml:"func,omitempty"`
		From     string `yaml:"from,omitempty"`
		To       string `yaml:"to,omitempty"`

		// Access marks a load or store inside a loop.
		Access bool `yaml:"access,omitempty"`
	}

	UnknownValueError struct {
		Func string
		ID   string
	}

	UnknownTypeError struct {
		Name string
	}

	decoder struct {
		p *ir.Package
		n *names.Table

		types map[string]tp.Type
		ids   map[string]ir.Expr

		fn  *Func
		irf *ir.Func
	}
)

func Load(ctx context.Context, name string) (p *ir.Package, n *names.Table, temp string, err error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, nil, "", errors.Wrap(err, "read file")
	}

	p, n, temp, err = Decode(ctx, data)
	if err != nil {
		return nil, nil, "", errors.Wrap(err, "%v", name)
	}

	return p, n, temp, nil
}

// Decode parses a value graph and the names and types declared for it.
func Decode(ctx context.Context, data []byte) (p *ir.Package, n *names.Table, temp string, err error) {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "irfile: decode", "size", len(data))
	defer tr.Finish("err", &err)

	var f File

	err = yaml.Unmarshal(data, &f)
	if err != nil {
		return nil, nil, "", errors.Wrap(err, "unmarshal")
	}

	d := &decoder{
		p:   &ir.Package{Path: f.Package},
		n:   names.NewTable(),
		ids: make(map[string]ir.Expr),
	}

	err = d.decodeTypes(f.Types)
	if err != nil {
		return nil, nil, "", errors.Wrap(err, "types")
	}

	err = d.decode(&f)
	if err != nil {
		return nil, nil, "", err
	}

	tr.Printw("decoded", "package", f.Package, "funcs", len(d.p.Funcs), "values", len(d.p.Exprs))

	return d.p, d.n, f.Temp, nil
}

func (d *decoder) decodeTypes(types map[string]Type) (err error) {
	d.types = make(map[string]tp.Type, len(types))

	// shells first so that types may refer to each other in any order
	for name, t := range types {
		switch {
		case t.Basic != "":
			d.types[name] = tp.Basic{Name: t.Basic, Bytes: t.Size}
		case t.Composite != "":
			d.types[name] = &tp.Composite{Name: t.Composite}
		case t.Derived != "":
			d.types[name] = &tp.Derived{Tag: t.Derived, Len: t.Len}
		default:
			return errors.New("type %v: no kind", name)
		}
	}

	for name, t := range types {
		switch x := d.types[name].(type) {
		case *tp.Composite:
			for _, fl := range t.Fields {
				ft, err := d.typ(fl.Type)
				if err != nil {
					return errors.Wrap(err, "type %v: field %v", name, fl.Name)
				}

				x.Fields = append(x.Fields, tp.Field{Name: fl.Name, Type: ft})
			}

			x.Base, err = d.optType(t.Base)
		case *tp.Derived:
			x.Base, err = d.optType(t.Base)
		}

		if err != nil {
			return errors.Wrap(err, "type %v", name)
		}
	}

	return nil
}

func (d *decoder) typ(name string) (tp.Type, error) {
	t, ok := d.types[name]
	if !ok {
		return nil, NewUnknownType(name)
	}

	return t, nil
}

func (d *decoder) optType(name string) (tp.Type, error) {
	if name == "" {
		return nil, nil
	}

	return d.typ(name)
}

func (d *decoder) decode(f *File) (err error) {
	// ids are allocated before any value is built so that operands
	// may refer forward, as phis do.
	if err = d.reserve("", f.Globals); err != nil {
		return err
	}

	for i := range f.Funcs {
		fn := &f.Funcs[i]

		if err = d.reserve(fn.Name, fn.Params); err != nil {
			return err
		}

		if err = d.reserve(fn.Name, fn.Code); err != nil {
			return err
		}
	}

	for _, v := range f.Globals {
		if err = d.define(v, ir.Global{}); err != nil {
			return errors.Wrap(err, "global %v", v.ID)
		}
	}

	for i := range f.Funcs {
		fn := &f.Funcs[i]

		d.fn = fn
		d.irf = &ir.Func{Name: fn.Name}
		d.p.Funcs = append(d.p.Funcs, d.irf)

		for j, v := range fn.Params {
			if err = d.define(v, ir.Param{Index: j}); err != nil {
				return errors.Wrap(err, "func %v: param %v", fn.Name, v.ID)
			}

			d.irf.Params = append(d.irf.Params, d.ids[v.ID])
		}

		for _, v := range fn.Code {
			x, err := d.value(v)
			if err != nil {
				return errors.Wrap(err, "func %v: value %v", fn.Name, v.ID)
			}

			if err = d.define(v, x); err != nil {
				return errors.Wrap(err, "func %v: value %v", fn.Name, v.ID)
			}

			id := d.ids[v.ID]
			d.irf.Code = append(d.irf.Code, id)

			if v.Access {
				d.irf.Access = append(d.irf.Access, id)
			}
		}
	}

	d.fn, d.irf = nil, nil

	return nil
}

func (d *decoder) reserve(fn string, vals []Value) error {
	for _, v := range vals {
		if v.ID == "" {
			return errors.New("func %v: value without id", fn)
		}

		if _, ok := d.ids[v.ID]; ok {
			return errors.New("func %v: duplicate id %v", fn, v.ID)
		}

		d.ids[v.ID] = d.p.Alloc(nil)
	}

	return nil
}

func (d *decoder) define(v Value, x ir.Value) error {
	id := d.ids[v.ID]
	d.p.Exprs[id] = x

	if v.Original != "" {
		d.n.Original[id] = v.Original
	}

	typ, err := d.optType(v.Type)
	if err != nil {
		return err
	}

	// globals are declared outside of any function
	d.n.Declare(id, v.Name, d.irf, typ)

	return nil
}

func (d *decoder) value(v Value) (x ir.Value, err error) {
	args, err := d.args(v.Args)
	if err != nil {
		return nil, err
	}

	need := func(n int) error {
		if len(args) != n {
			return errors.New("%v: expected %d args, got %d", v.Op, n, len(args))
		}

		return nil
	}

	switch v.Op {
	case "load":
		err = need(1)
		if err == nil {
			x = ir.Load{Ptr: args[0]}
		}
	case "store":
		err = need(2)
		if err == nil {
			x = ir.Store{Val: args[0], Ptr: args[1]}
		}
	case "gep":
		if len(args) == 0 {
			return nil, errors.New("gep: no pointer")
		}

		x = ir.GEP{Ptr: args[0], Idx: args[1:]}
	case "bitcast":
		err = need(1)
		if err != nil {
			break
		}

		var from, to tp.Type

		if from, err = d.typ(v.From); err != nil {
			break
		}

		if to, err = d.typ(v.To); err != nil {
			break
		}

		x = ir.BitCast{X: args[0], From: from, To: to}
	case "sext", "zext", "ptrtoint", "inttoptr":
		err = need(1)
		if err == nil {
			x = unary(v.Op, args[0])
		}
	case "select":
		err = need(3)
		if err == nil {
			x = ir.Select{Cond: args[0], T: args[1], F: args[2]}
		}
	case "phi":
		x = ir.Phi(args)
	case "call":
		x = ir.Call{Func: v.Func, Args: args}
	case "cmp":
		err = need(2)
		if err == nil {
			x = ir.Cmp{Pred: v.Operator, L: args[0], R: args[1]}
		}
	case "binop":
		err = need(2)
		if err == nil {
			x = ir.BinOp{Op: v.Operator, L: args[0], R: args[1]}
		}
	case "constexpr":
		err = need(2)
		if err == nil {
			x = ir.ConstExpr{Op: v.Operator, L: args[0], R: args[1]}
		}
	case "const":
		x, err = constant(v.Value)
	case "null":
		x = ir.Null{}
	case "sizeof":
		var t tp.Type

		t, err = d.typ(v.Type)
		x = ir.SizeOf{T: t}
	case "alloca":
		x = ir.Alloca{}
	case "global":
		x = ir.Global{}
	default:
		x = ir.Unknown{Op: v.Op, Args: args}
	}

	if err != nil {
		return nil, err
	}

	return x, nil
}

func (d *decoder) args(l []string) ([]ir.Expr, error) {
	if len(l) == 0 {
		return nil, nil
	}

	r := make([]ir.Expr, len(l))

	for i, a := range l {
		if id, ok := d.ids[a]; ok {
			r[i] = id
			continue
		}

		if a == "null" {
			r[i] = d.p.Alloc(ir.Null{})
			continue
		}

		c, err := constant(a)
		if err != nil {
			return nil, NewUnknownValue(d.fn.Name, a)
		}

		r[i] = d.p.Alloc(c)
	}

	return r, nil
}

func unary(op string, x ir.Expr) ir.Value {
	switch op {
	case "sext":
		return ir.SExt{X: x}
	case "zext":
		return ir.ZExt{X: x}
	case "ptrtoint":
		return ir.PtrToInt{X: x}
	default:
		return ir.IntToPtr{X: x}
	}
}

func constant(s string) (ir.Value, error) {
	if c, err := strconv.ParseInt(s, 0, 64); err == nil {
		return ir.Const(c), nil
	}

	if !strings.ContainsAny(s, ".eE") {
		return nil, errors.New("bad constant: %q", s)
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, errors.Wrap(err, "bad constant")
	}

	return ir.ConstFloat(f), nil
}

func NewUnknownValue(fn, id string) UnknownValueError {
	return UnknownValueError{Func: fn, ID: id}
}

func (e UnknownValueError) Error() string {
	return fmt.Sprintf("unknown value %q in func %v", e.ID, e.Func)
}

func NewUnknownType(name string) UnknownTypeError {
	return UnknownTypeError{Name: name}
}

func (e UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown type %q", e.Name)
}
