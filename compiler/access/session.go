package access

import (
	"strconv"

	"tlog.app/go/loc"
	"tlog.app/go/tlog"
	"tlog.app/go/tlog/tlwire"

	"github.com/Bondzio/TaskMiner/compiler/ir"
	"github.com/Bondzio/TaskMiner/compiler/tp"
)

type (
	// Names recovers source level names and declared types from debug metadata.
	// Empty string and nil results mean unknown.
	Names interface {
		OriginalName(v ir.Expr) string
		DeclaredName(v ir.Expr) string
		EnclosingRoutine(v ir.Expr) *ir.Func
		DeclaredVariable(v ir.Expr, f *ir.Func) tp.Type
	}

	Consts interface {
		UniqueInteger(p *ir.Package, c, ptr ir.Expr, l Layout) (int64, bool)
	}

	Layout = tp.Layout

	Calls interface {
		IsAllocation(c ir.Call) bool
	}

	// Emitter allocates temporaries and records the statements computing them.
	Emitter interface {
		NewSlot() int
		Emit(slot int, stmt string)
	}

	Collaborators struct {
		Names  Names
		Consts Consts
		Layout Layout
		Calls  Calls
		Emit   Emitter
	}

	Options struct {
		// TempArray is the name of the generated temporaries array.
		TempArray string
	}

	// Slot refers to a generated temporary, or to nothing.
	Slot struct {
		n  int
		ok bool
	}

	// Session is one recovery request for one pointer.
	// It owns the memo cache and the validity flag;
	// nothing is shared between sessions.
	Session struct {
		Collaborators

		p   *ir.Package
		ptr ir.Expr

		temp string

		memo  map[ir.Expr]entry
		built int

		valid bool
		at    loc.PC
	}

	entry struct {
		text string
		slot Slot
	}
)

const DefaultTempArray = "NAME"

// Self is returned for a value naming the expression being expanded.
const Self = "0"

var NoSlot Slot

func SlotOf(n int) Slot {
	return Slot{n: n, ok: true}
}

func (s Slot) Index() (int, bool) {
	return s.n, s.ok
}

func (s Slot) IsSet() bool { return s.ok }

func (s Slot) TlogAppend(b []byte) []byte {
	var e tlwire.LowEncoder

	if !s.ok {
		return e.AppendNil(b)
	}

	return e.AppendInt(b, s.n)
}

func (s Slot) String() string {
	if !s.ok {
		return "none"
	}

	return strconv.Itoa(s.n)
}

// New starts a session recovering expressions for the pointer ptr of package p.
func New(p *ir.Package, ptr ir.Expr, c Collaborators, opts Options) *Session {
	s := &Session{
		Collaborators: c,
		p:             p,
		temp:          opts.TempArray,
	}

	if s.temp == "" {
		s.temp = DefaultTempArray
	}

	s.Reset(ptr)

	return s
}

// Reset drops the memo cache and makes the session valid again.
func (s *Session) Reset(ptr ir.Expr) {
	s.ptr = ptr
	s.memo = make(map[ir.Expr]entry)
	s.built = 0
	s.valid = true
	s.at = 0
}

func (s *Session) Valid() bool { return s.valid }

// Invalidate marks the session failed. Every following Recover returns nothing.
func (s *Session) Invalidate() {
	s.invalidate(loc.Caller(1))
}

// InvalidatedAt returns where the session was first invalidated.
func (s *Session) InvalidatedAt() loc.PC { return s.at }

func (s *Session) TempArray() string { return s.temp }

// Ref returns the text referring to a recovered value:
// the temporary if it has a slot, the text itself otherwise.
func (s *Session) Ref(text string, sl Slot) string {
	n, ok := sl.Index()
	if !ok {
		return text
	}

	return s.temp + "[" + strconv.Itoa(n) + "]"
}

func (s *Session) invalidate(at loc.PC) {
	if !s.valid {
		return
	}

	s.valid = false
	s.at = at

	tlog.V("invalid").Printw("session invalidated", "ptr", s.ptr, "at", at)
}

func (s *Session) remember(v ir.Expr, text string, sl Slot) {
	s.memo[v] = entry{text: text, slot: sl}
}
