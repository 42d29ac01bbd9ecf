package analyze

import (
	"github.com/nikandfor/hacked/hfmt"

	"github.com/Bondzio/TaskMiner/compiler/emit"
)

// AppendText renders the report, one line per access.
// Side statements are listed under their access if stmts is set.
func (r *Report) AppendText(b []byte, stmts bool) []byte {
	b = hfmt.Appendf(b, "package %s\n", r.Path)

	for _, f := range r.Funcs {
		b = hfmt.Appendf(b, "\nfunc %s\n", f.Name)

		if len(f.Accesses) == 0 {
			b = append(b, "\t// no accesses\n"...)
		}

		for _, a := range f.Accesses {
			base := a.Base
			if base == "" {
				base = "?"
			}

			b = hfmt.Appendf(b, "\t%s %d base=%s %s group=%d: %s", a.Kind, int(a.ID), base, a.Strategy, a.Group, a.text())

			if !a.Valid && a.InvalidAt != 0 {
				b = hfmt.Appendf(b, " at %n", a.InvalidAt)
			}

			b = append(b, '\n')

			if stmts {
				b = emit.AppendStmts(b, a.Stmts, r.Temp, 2)
			}
		}
	}

	return b
}

func (a Access) text() string {
	switch {
	case !a.Valid:
		return "<invalid>"
	case a.Ref == "":
		return "<none>"
	}

	return a.Ref
}
