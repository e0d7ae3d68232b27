// Package format holds the wire-format constants shared by the application
// specification generator and the engine-side loader.
package format

// File signatures.
const (
	SpecMagic       = "AspS" // binary application specification (.aspec)
	ExecutableMagic = "AspE" // compiled script executable (.aspe)
)

// Engine version embedded in executable headers. An executable loads only if
// its (major, minor) pair matches exactly.
const (
	EngineVersionMajor = 1
	EngineVersionMinor = 2
	EngineVersionPatch = 3
	EngineVersionTweak = 0
)

// EngineVersionHex is the packed version used by the compile-time check the
// generator emits into application code.
const EngineVersionHex = EngineVersionMajor<<24 | EngineVersionMinor<<16 |
	EngineVersionPatch<<8 | EngineVersionTweak

// Record prefixes in the engine-visible spec payload. Function records with
// up to MaxFunctionParameterCount parameters use the count itself as the
// prefix byte, which is why the named prefixes occupy the top of the range.
const (
	MaxFunctionParameterCount = 0xFA
	PrefixFunction            = 0xFB
	PrefixImport              = 0xFC
	PrefixModule              = 0xFD
	PrefixSymbol              = 0xFE
	PrefixVariable            = 0xFF
)

// Parameter type codes stored in the top four bits of a parameter word.
const (
	ParameterPlain           = 0x0
	ParameterDefaulted       = 0x1
	ParameterTupleGroup      = 0x2
	ParameterDictionaryGroup = 0x3
)

// Value type tags used for serialized literals.
const (
	ValueNone     = 0x00
	ValueEllipsis = 0x01
	ValueBoolean  = 0x02
	ValueInteger  = 0x03
	ValueFloat    = 0x04
	ValueString   = 0x05
)

// Word geometry. Arena entry fields and symbols are 28-bit words; symbols are
// signed, so the usable named range is [0, SignedWordMax] and the temporary
// range is [SignedWordMin, -1].
const (
	WordBitSize   = 28
	WordMax       = 1<<WordBitSize - 1
	SignedWordMin = -(1 << (WordBitSize - 1))
	SignedWordMax = 1<<(WordBitSize-1) - 1
)

// Reserved symbols. These are assigned before any application symbol, in this
// order, by both the generator and the engine.
const (
	SystemModuleSymbol     = 0
	SystemArgumentsSymbol  = 1
	SystemMainModuleSymbol = 2

	// ScriptSymbolBase is the first symbol available to application names.
	ScriptSymbolBase = 3
)

// Names behind the reserved symbols.
const (
	SystemModuleName     = "sys"
	SystemArgumentsName  = "args"
	SystemMainModuleName = "__main__"
)
