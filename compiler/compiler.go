package compiler

import (
	"context"
	"path/filepath"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/Bondzio/TaskMiner/compiler/analyze"
	"github.com/Bondzio/TaskMiner/compiler/format"
	"github.com/Bondzio/TaskMiner/compiler/gossa"
	"github.com/Bondzio/TaskMiner/compiler/ir"
	"github.com/Bondzio/TaskMiner/compiler/irfile"
	"github.com/Bondzio/TaskMiner/compiler/names"
)

// AnalyzeFile loads a value graph from a .yaml or .go file
// and recovers its access expressions.
// Temporaries array name set in a value graph file is used
// unless opts has one.
func AnalyzeFile(ctx context.Context, name string, opts analyze.Options) (r *analyze.Report, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "analyze file", "name", name)
	defer tr.Finish("err", &err)

	p, n, temp, err := LoadFile(ctx, name)
	if err != nil {
		return nil, err
	}

	if opts.TempArray == "" {
		opts.TempArray = temp
	}

	r, err = analyze.Analyze(ctx, p, n, opts)
	if err != nil {
		return nil, errors.Wrap(err, "analyze")
	}

	return r, nil
}

// LoadFile loads a value graph choosing the frontend by file extension.
// temp is empty unless the file sets it.
func LoadFile(ctx context.Context, name string) (p *ir.Package, n *names.Table, temp string, err error) {
	switch ext := filepath.Ext(name); ext {
	case ".yaml", ".yml":
		p, n, temp, err = irfile.Load(ctx, name)
		if err != nil {
			return nil, nil, "", errors.Wrap(err, "load value graph")
		}
	case ".go":
		p, n, err = gossa.Load(ctx, name, nil)
		if err != nil {
			return nil, nil, "", errors.Wrap(err, "load go file")
		}
	default:
		return nil, nil, "", errors.New("unsupported file type: %q", ext)
	}

	return p, n, temp, nil
}

// DumpFile renders the value graph of a file as text.
func DumpFile(ctx context.Context, b []byte, name string) ([]byte, error) {
	p, n, _, err := LoadFile(ctx, name)
	if err != nil {
		return nil, err
	}

	b, err = format.Format(ctx, b, p, n)
	if err != nil {
		return nil, errors.Wrap(err, "format")
	}

	return b, nil
}
