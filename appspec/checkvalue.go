package appspec

import "hash/crc32"

// Check-value contribution prefixes. The check value is a pure function of
// the interface contract: module keys, definition names, literal values, and
// parameter lists, independent of source ordering.
const (
	checkModulePrefix    = "."
	checkVariablePrefix  = "\v"
	checkFunctionPrefix  = "\f"
	checkParameterPrefix = "("
)

// CheckValue returns the CRC-32/ISO-HDLC check value of the finalized
// specification.
func (g *Generator) CheckValue() uint32 {
	return g.checkValue
}

// computeCheckValue serializes the canonical form of the definition graph and
// returns its CRC-32/ISO-HDLC value. The IEEE table used by hash/crc32 is
// exactly that algorithm: polynomial 0x04C11DB7, init 0xFFFFFFFF, reflected
// input and output, final xor 0xFFFFFFFF.
func (g *Generator) computeCheckValue() uint32 {
	h := crc32.NewIEEE()
	var scratch []byte

	add := func(s string) {
		h.Write([]byte(s))
	}
	addValue := func(value *Literal) {
		scratch = value.appendCheck(scratch[:0])
		h.Write(scratch)
	}

	for _, module := range g.modulesByKey {
		if len(module.key) != 0 {
			add(checkModulePrefix)
			for _, importName := range module.key {
				add(importName)
				h.Write([]byte{0})
			}
		}

		for _, name := range module.definitionNames() {
			switch definition := module.definitions[name].(type) {
			case *Assignment:
				add(checkVariablePrefix)
				add(name)
				if definition.Value != nil {
					addValue(definition.Value)
				}

			case *Function:
				add(checkFunctionPrefix)
				add(name)
				for i := range definition.Parameters {
					parameter := &definition.Parameters[i]
					add(checkParameterPrefix)
					add(parameter.Name)
					if parameter.Default != nil {
						addValue(parameter.Default)
					}
				}
			}
		}
	}
	return h.Sum32()
}
