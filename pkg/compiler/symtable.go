package compiler

import "github.com/pkg/errors"

// FrameSize is the stack budget of one function in bytes. Every variable
// and spill slot takes a full 8-byte slot below the frame pointer.
const FrameSize = 512

// ErrFrameExhausted is returned when a function needs more named variables
// and expression spill slots than the frame can hold.
var ErrFrameExhausted = errors.New("stack frame exhausted")

// SymbolTable tracks the frame-pointer-relative slot of every variable in
// the function currently being compiled, plus the anonymous spill slots
// the expression lowerer parks intermediate values in. Slots grow downward
// from the frame pointer: the first allocation is at offset -8.
type SymbolTable struct {
	vars map[string]int16
	next int16 // next slot offset, always negative and 8-aligned
}

func NewSymbolTable() *SymbolTable {
	return &SymbolTable{vars: make(map[string]int16), next: -8}
}

// Reset clears all state for the next function. Slots are per-function;
// nothing outlives the frame.
func (st *SymbolTable) Reset() {
	st.vars = make(map[string]int16)
	st.next = -8
}

// Declare allocates a slot for name and returns its offset. Redeclaring a
// name is an error; shadowing is not supported.
func (st *SymbolTable) Declare(name string) (int16, error) {
	if _, ok := st.vars[name]; ok {
		return 0, errors.Errorf("variable %q already declared", name)
	}
	off, err := st.alloc()
	if err != nil {
		return 0, err
	}
	st.vars[name] = off
	return off, nil
}

// Lookup returns the slot offset of name.
func (st *SymbolTable) Lookup(name string) (int16, bool) {
	off, ok := st.vars[name]
	return off, ok
}

// AllocSpill reserves an anonymous slot for an expression intermediate.
// The caller must release it with FreeSpill once the value is consumed.
func (st *SymbolTable) AllocSpill() (int16, error) {
	return st.alloc()
}

// FreeSpill releases the most recently allocated spill slot. Spill slots
// are strictly stack-ordered, so releasing out of order is a bug in the
// lowerer, not a user error.
func (st *SymbolTable) FreeSpill() {
	st.next += 8
}

func (st *SymbolTable) alloc() (int16, error) {
	if st.next < -FrameSize {
		return 0, ErrFrameExhausted
	}
	off := st.next
	st.next -= 8
	return off, nil
}
