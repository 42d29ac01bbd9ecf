package emit

import (
	"github.com/nikandfor/hacked/hfmt"
)

type (
	// Buffer allocates temporaries and keeps the statements computing them
	// in emission order.
	Buffer struct {
		next  int
		stmts []Stmt
	}

	Stmt struct {
		Slot int
		Text string
	}
)

func (b *Buffer) NewSlot() int {
	n := b.next
	b.next++

	return n
}

func (b *Buffer) Emit(slot int, stmt string) {
	b.stmts = append(b.stmts, Stmt{Slot: slot, Text: stmt})
}

// Stmts returns a copy of the emitted statements.
func (b *Buffer) Stmts() []Stmt {
	return append([]Stmt(nil), b.stmts...)
}

func (b *Buffer) Len() int {
	return len(b.stmts)
}

func (b *Buffer) Reset() {
	b.next = 0
	b.stmts = b.stmts[:0]
}

// AppendText renders statements as assignments to the temporaries array.
func (b *Buffer) AppendText(dst []byte, temp string, indent int) []byte {
	return AppendStmts(dst, b.stmts, temp, indent)
}

func AppendStmts(dst []byte, stmts []Stmt, temp string, indent int) []byte {
	for _, s := range stmts {
		dst = app(dst, indent, "%s[%d] = %s", temp, s.Slot, s.Text)

		if l := len(s.Text); l == 0 || s.Text[l-1] != '\n' {
			dst = append(dst, '\n')
		}
	}

	return dst
}

func app(b []byte, d int, f string, args ...any) []byte {
	for i := 0; i < d; i++ {
		b = append(b, '\t')
	}

	b = hfmt.Appendf(b, f, args...)
	return b
}
