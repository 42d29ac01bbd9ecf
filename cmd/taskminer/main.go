package main

import (
	"context"
	"os"
	"path/filepath"
	"slices"

	"nikand.dev/go/cli"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/Bondzio/TaskMiner/compiler"
	"github.com/Bondzio/TaskMiner/compiler/access"
	"github.com/Bondzio/TaskMiner/compiler/analyze"
)

func main() {
	flags := []*cli.Flag{
		cli.NewFlag("temp", "", "temporaries array name (default: from file or "+access.DefaultTempArray+")"),
		cli.NewFlag("func,f", "", "analyze only this function"),
		cli.NewFlag("stmts,s", false, "print side statements computing temporaries"),
		cli.HelpFlag,
	}

	recoverCmd := &cli.Command{
		Name:        "recover",
		Description: "recover access expressions from value graph files",
		Action:      analyzeAct(".yaml", ".yml"),
		Args:        cli.Args{},
		Flags:       flags,
	}

	goCmd := &cli.Command{
		Name:        "go",
		Description: "recover access expressions from go source files",
		Action:      analyzeAct(".go"),
		Args:        cli.Args{},
		Flags:       flags,
	}

	dumpCmd := &cli.Command{
		Name:        "dump",
		Description: "print value graph of value graph or go source files",
		Action:      dumpAct,
		Args:        cli.Args{},
	}

	app := &cli.Command{
		Name:        "taskminer",
		Description: "taskminer recovers source level array access expressions of loads and stores in loops",
		Commands: []*cli.Command{
			recoverCmd,
			goCmd,
			dumpCmd,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func analyzeAct(exts ...string) func(*cli.Command) error {
	return func(c *cli.Command) error {
		for _, a := range c.Args {
			if !slices.Contains(exts, filepath.Ext(a)) {
				return errors.New("%v: expected %v file", a, exts)
			}
		}

		return analyzeFiles(c)
	}
}

func analyzeFiles(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	opts := analyze.Options{
		Options: access.Options{TempArray: c.String("temp")},
		Func:    c.String("func"),
	}

	var b []byte

	for _, a := range c.Args {
		r, err := compiler.AnalyzeFile(ctx, a, opts)
		if err != nil {
			return errors.Wrap(err, "recover %v", a)
		}

		b = r.AppendText(b[:0], c.Bool("stmts"))

		_, err = os.Stdout.Write(b)
		if err != nil {
			return errors.Wrap(err, "write")
		}
	}

	return nil
}

func dumpAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	var b []byte

	for _, a := range c.Args {
		b, err = compiler.DumpFile(ctx, b[:0], a)
		if err != nil {
			return errors.Wrap(err, "dump %v", a)
		}

		_, err = os.Stdout.Write(b)
		if err != nil {
			return errors.Wrap(err, "write")
		}
	}

	return nil
}
