// Package asp is an embeddable script runtime for resource-constrained
// hosts. A host supplies a fixed code area, a fixed data arena, and an
// application specification produced by the aspg generator; the engine
// enforces that loaded executables were compiled against the same
// specification via a content-derived check value, keeps every script object
// inside the arena, and routes application function calls through the
// spec's dispatcher.
package asp

import "github.com/asplang/asp/internal/format"

// Reserved symbols, assigned before any application symbol.
const (
	systemModuleSymbol    = format.SystemModuleSymbol
	systemArgumentsSymbol = format.SystemArgumentsSymbol
	scriptSymbolBase      = format.ScriptSymbolBase
)

// DispatchFunc routes a (moduleSymbol, functionSymbol) pair to a host
// implementation. The local namespace carries the bound parameters; the
// returned value, when non-nil, transfers ownership to the engine.
type DispatchFunc func(
	e *Engine, moduleSymbol, functionSymbol int32, ns *DataEntry,
) (*DataEntry, RunResult)

// AppSpec is the engine-side view of an application specification: the
// engine-visible payload decoded at reset, the check value binding
// executables to the interface, and the dispatcher for application
// functions.
type AppSpec struct {
	Spec       []byte
	CheckValue uint32
	Dispatch   DispatchFunc
}
