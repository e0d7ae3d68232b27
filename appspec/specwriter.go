package appspec

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/asplang/asp/internal/format"
)

// maxCountPrefixParameters is the largest parameter count that fits in the
// single-byte function record prefix.
const maxCountPrefixParameters = format.MaxFunctionParameterCount

// WriteCompilerSpec writes the binary application specification consumed by
// the script compiler and the engine: the AspS header, the symbol-assignment
// block, and the engine-visible payload.
func (g *Generator) WriteCompilerSpec(w io.Writer) error {
	if err := g.Finalize(); err != nil {
		return err
	}

	header := make([]byte, 0, 9)
	header = append(header, format.SpecMagic...)
	header = append(header, g.compilerSpecVersion)
	header = binary.BigEndian.AppendUint32(header, g.checkValue)
	if _, err := w.Write(header); err != nil {
		return err
	}

	// The symbol block lists names in the exact order the symbol table
	// assigned them: import names first, then definition names, then
	// parameter names. Format 1 separates names with newlines; format 2 with
	// spaces. An extra separator ends the import-name group when present.
	separator := byte('\n')
	if g.compilerSpecVersion >= 2 {
		separator = ' '
	}
	for i, name := range g.symbolBlock {
		if _, err := fmt.Fprintf(w, "%s%c", name, separator); err != nil {
			return err
		}
		if i == g.symbolBlockImportCount-1 {
			if _, err := w.Write([]byte{separator}); err != nil {
				return err
			}
		}
	}

	_, err := w.Write(g.EnginePayload())
	return err
}

// EnginePayload returns the engine-visible byte stream: the record stream the
// engine decodes at reset to materialize modules, variables, and function
// signatures. It is embedded both in the binary spec and, as an escaped
// string, in the generated C code.
func (g *Generator) EnginePayload() []byte {
	if !g.finalized {
		return nil
	}
	var p []byte
	if g.engineSpecVersion >= 1 {
		p = append(p, 0xFF, 0xFF, g.engineSpecVersion)
		p = binary.BigEndian.AppendUint32(p, uint32(len(g.modulesByKey)-1))
	}

	appModuleCount := 0
	for _, module := range g.modulesByKey {
		system := len(module.key) == 0

		// Import records precede the module record, binding the module into
		// the namespace current at that point. The module's temporary symbol
		// is its position in module-key order.
		if !system {
			appModuleCount++
			tempSymbol := int32(-appModuleCount)
			for _, importName := range module.key {
				p = append(p, format.PrefixImport)
				p = appendSymbol(p, g.symbol(importName))
				p = appendSymbol(p, tempSymbol)
			}
			p = append(p, format.PrefixModule)
		}

		for _, name := range module.definitionNames() {
			switch definition := module.definitions[name].(type) {
			case *Assignment:
				if definition.Value == nil {
					// A bare declaration only reserves a symbol. Format 0
					// needs the record to advance the implicit symbol
					// counter; with explicit symbols there is nothing to
					// write.
					if g.engineSpecVersion == 0 {
						p = append(p, format.PrefixSymbol)
					}
					continue
				}
				p = append(p, format.PrefixVariable)
				if g.engineSpecVersion >= 1 {
					p = appendSymbol(p, g.symbol(name))
				}
				p = definition.Value.appendSpec(p)

			case *Function:
				count := len(definition.Parameters)
				if count > maxCountPrefixParameters {
					p = append(p, format.PrefixFunction)
					if g.engineSpecVersion >= 1 {
						p = appendSymbol(p, g.symbol(name))
					}
					p = binary.BigEndian.AppendUint32(p, uint32(count))
				} else {
					p = append(p, byte(count))
					if g.engineSpecVersion >= 1 {
						p = appendSymbol(p, g.symbol(name))
					}
				}
				for i := range definition.Parameters {
					parameter := &definition.Parameters[i]
					word := uint32(g.symbol(parameter.Name)) & format.WordMax
					switch {
					case parameter.Default != nil:
						word |= format.ParameterDefaulted << format.WordBitSize
					case parameter.Kind == ParameterTupleGroup:
						word |= format.ParameterTupleGroup << format.WordBitSize
					case parameter.Kind == ParameterDictionaryGroup:
						word |= format.ParameterDictionaryGroup << format.WordBitSize
					}
					p = binary.BigEndian.AppendUint32(p, word)
					if parameter.Default != nil {
						p = parameter.Default.appendSpec(p)
					}
				}
			}
		}
	}
	return p
}

func appendSymbol(p []byte, symbol int32) []byte {
	return binary.BigEndian.AppendUint32(p, uint32(symbol))
}
