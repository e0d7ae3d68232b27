package appspec

import (
	"errors"

	"github.com/asplang/asp/internal/format"
)

// SymbolTable assigns dense integer symbols to interned names. Named symbols
// are assigned in first-seen order starting at the first value after the
// reserved system names; temporary symbols are assigned in descending order
// from -1. Iteration order is insertion order, which callers rely on when
// emitting names to the compiler spec.
type SymbolTable struct {
	symbolsByName map[string]int32
	names         []string
	nextNamed     int32
	nextUnnamed   int32
}

var (
	errNamedSymbolsExhausted     = errors.New("maximum number of name symbols exceeded")
	errTemporarySymbolsExhausted = errors.New("maximum number of temporary symbols exceeded")
)

// NewSymbolTable returns a table with the reserved system names pre-assigned
// to their well-known symbols.
func NewSymbolTable() *SymbolTable {
	t := &SymbolTable{
		symbolsByName: map[string]int32{},
		nextNamed:     0,
		nextUnnamed:   -1,
	}
	for _, name := range []string{
		format.SystemModuleName,
		format.SystemArgumentsName,
		format.SystemMainModuleName,
	} {
		t.Symbol(name)
	}
	return t
}

// Symbol returns the symbol for name, assigning the next named value if the
// name has not been seen before. Assignment fails only when the named counter
// has wrapped and the table is not empty.
func (t *SymbolTable) Symbol(name string) (int32, error) {
	if symbol, ok := t.symbolsByName[name]; ok {
		return symbol, nil
	}
	if t.nextNamed == 0 && len(t.symbolsByName) != 0 {
		return 0, errNamedSymbolsExhausted
	}
	symbol := t.nextNamed
	t.symbolsByName[name] = symbol
	t.names = append(t.names, name)
	if t.nextNamed == format.SignedWordMax {
		t.nextNamed = 0
	} else {
		t.nextNamed++
	}
	return symbol, nil
}

// TemporarySymbol returns a new negative symbol on every call.
func (t *SymbolTable) TemporarySymbol() (int32, error) {
	if t.nextUnnamed == 0 {
		return 0, errTemporarySymbolsExhausted
	}
	symbol := t.nextUnnamed
	if t.nextUnnamed == format.SignedWordMin {
		t.nextUnnamed = 0
	} else {
		t.nextUnnamed--
	}
	return symbol, nil
}

// Lookup returns the symbol for name without assigning one.
func (t *SymbolTable) Lookup(name string) (int32, bool) {
	symbol, ok := t.symbolsByName[name]
	return symbol, ok
}

// IsDefined reports whether name already has a symbol.
func (t *SymbolTable) IsDefined(name string) bool {
	_, ok := t.symbolsByName[name]
	return ok
}

// Names returns the interned names in the order their symbols were assigned.
func (t *SymbolTable) Names() []string {
	return t.names
}
