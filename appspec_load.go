package asp

import (
	"encoding/binary"
	"math"

	"github.com/asplang/asp/internal/format"
)

// initializeAppDefinitions decodes the spec payload, materializing the
// application's modules, variables, and function signatures inside the
// arena. Application modules are created first under temporary negative
// symbols, then each record either creates a definition in the current
// namespace, switches the current module, or registers an import; the
// temporary module bindings are removed once all records are consumed.
func (e *Engine) initializeAppDefinitions() RunResult {
	if e.appSpec == nil {
		return RunResultOK
	}
	spec := e.appSpec.Spec
	specIndex := 0

	version := uint8(0)
	if len(spec) >= 3 && spec[0] == 0xFF && spec[1] == 0xFF {
		specIndex += 2
		version = spec[specIndex]
		specIndex++
	}
	if version > 1 {
		return RunResultInitializationError
	}

	appModuleCount := int32(0)
	if version >= 1 {
		var r RunResult
		appModuleCount, r = loadSignedInteger(spec, &specIndex)
		if r != RunResultOK {
			return r
		}
		if appModuleCount < 0 {
			return RunResultInitializationError
		}

		for appModuleSymbol := int32(-1); appModuleSymbol >= -appModuleCount; appModuleSymbol-- {
			appNamespace := e.allocEntry(DataTypeNamespace)
			if appNamespace == nil {
				return RunResultOutOfDataMemory
			}
			appModule := e.allocEntry(DataTypeModule)
			if appModule == nil {
				return RunResultOutOfDataMemory
			}
			appModule.setModuleIsApp(true)
			appModule.setModuleSymbol(appModuleSymbol)
			appModule.setModuleNamespaceIndex(e.entryIndex(appNamespace))
			appModule.setModuleIsLoaded(true)

			// The temporary binding is removed after all imports have been
			// processed.
			add := e.treeTryInsertBySymbol(e.modules, appModuleSymbol, appModule)
			if add.result != RunResultOK {
				return add.result
			}
			e.Unref(appModule)
		}
	}

	nextAppModuleSymbol := int32(0)
	currentModule := e.module
	currentNamespace := e.systemNamespace
	for version0Symbol := int32(scriptSymbolBase); version0Symbol <= format.SignedWordMax; version0Symbol++ {
		if specIndex >= len(spec) {
			break
		}
		prefix := spec[specIndex]
		specIndex++

		// Format 0 assigns symbols by record position; format 1 carries an
		// explicit symbol on every record except module switches.
		symbol := version0Symbol
		if version >= 1 {
			if prefix == format.PrefixSymbol {
				return RunResultInitializationError
			}
			if prefix != format.PrefixModule {
				var r RunResult
				symbol, r = loadSignedInteger(spec, &specIndex)
				if r != RunResultOK {
					return r
				}
			}
		}

		switch {
		case prefix == format.PrefixVariable:
			value, r := e.loadValue(spec, &specIndex)
			if r != RunResultOK {
				return r
			}
			insert := e.treeTryInsertBySymbol(currentNamespace, symbol, value)
			if insert.result != RunResultOK {
				return insert.result
			}
			if !insert.inserted {
				return RunResultInitializationError
			}
			e.Unref(value)

		case version >= 1 && prefix == format.PrefixModule:
			nextAppModuleSymbol--
			find := e.findSymbol(e.modules, nextAppModuleSymbol)
			if find.result != RunResultOK {
				return find.result
			}
			if find.node == nil {
				return RunResultInitializationError
			}
			currentModule = find.value
			if currentModule.Type() != DataTypeModule {
				return RunResultInitializationError
			}
			currentNamespace = e.valueEntry(currentModule.moduleNamespaceIndex())

		case version >= 1 && prefix == format.PrefixImport:
			appModuleSymbol, r := loadSignedInteger(spec, &specIndex)
			if r != RunResultOK {
				return r
			}
			find := e.findSymbol(e.modules, appModuleSymbol)
			if find.result != RunResultOK {
				return find.result
			}
			if find.node == nil {
				return RunResultInitializationError
			}
			appModule := find.value
			if appModule.Type() != DataTypeModule {
				return RunResultInitializationError
			}

			// Bind the module under its import symbol, both in the current
			// namespace and in the modules collection.
			insert := e.treeTryInsertBySymbol(currentNamespace, symbol, appModule)
			if insert.result != RunResultOK {
				return insert.result
			}
			if !insert.inserted {
				return RunResultInitializationError
			}
			moduleInsert := e.treeTryInsertBySymbol(e.modules, symbol, appModule)
			if moduleInsert.result != RunResultOK {
				return moduleInsert.result
			}
			if moduleInsert.value.Type() != DataTypeModule {
				return RunResultInitializationError
			}

		case (version >= 1 && prefix == format.PrefixFunction) || prefix != format.PrefixSymbol:
			var parameterCount uint32
			if version == 0 || prefix != format.PrefixFunction {
				parameterCount = uint32(prefix)
			} else {
				var r RunResult
				parameterCount, r = loadUnsignedInteger(spec, &specIndex)
				if r != RunResultOK {
					return r
				}
			}

			parameters := e.allocEntry(DataTypeParameterList)
			if parameters == nil {
				return RunResultOutOfDataMemory
			}
			for p := uint32(0); p < parameterCount; p++ {
				parameterSpec, r := loadUnsignedInteger(spec, &specIndex)
				if r != RunResultOK {
					return r
				}
				parameterSymbol := signExtendWord(parameterSpec & format.WordMax)
				parameterType := uint8(parameterSpec >> format.WordBitSize)
				hasDefault := parameterType == format.ParameterDefaulted

				parameter := e.allocEntry(DataTypeParameter)
				if parameter == nil {
					return RunResultOutOfDataMemory
				}
				parameter.setParameterSymbol(parameterSymbol)
				parameter.setParameterHasDefault(hasDefault)
				parameter.setParameterIsTupleGroup(
					parameterType == format.ParameterTupleGroup)
				parameter.setParameterIsDictionaryGroup(
					parameterType == format.ParameterDictionaryGroup)

				if hasDefault {
					defaultValue, r := e.loadValue(spec, &specIndex)
					if r != RunResultOK {
						return r
					}
					parameter.setParameterDefaultIndex(e.entryIndex(defaultValue))
				}

				if sr := e.sequenceAppend(parameters, parameter); sr.result != RunResultOK {
					return sr.result
				}
			}

			function := e.allocEntry(DataTypeFunction)
			if function == nil {
				return RunResultOutOfDataMemory
			}
			function.setFunctionSymbol(symbol)
			function.setFunctionIsApp(true)
			e.Ref(currentModule)
			function.setFunctionModuleIndex(e.entryIndex(currentModule))
			function.setFunctionParametersIndex(e.entryIndex(parameters))

			insert := e.treeTryInsertBySymbol(currentNamespace, symbol, function)
			if insert.result != RunResultOK {
				return insert.result
			}
			if !insert.inserted {
				return RunResultInitializationError
			}
			e.Unref(function)
		}
	}

	// Drop the temporary module bindings.
	for appModuleSymbol := int32(-1); appModuleSymbol >= -appModuleCount; appModuleSymbol-- {
		find := e.findSymbol(e.modules, appModuleSymbol)
		if find.result != RunResultOK {
			return find.result
		}
		if find.node == nil {
			return RunResultInitializationError
		}
		if r := e.treeEraseNode(e.modules, find.node, true, true); r != RunResultOK {
			return r
		}
	}

	if specIndex != len(spec) {
		return RunResultInitializationError
	}
	return RunResultOK
}

// loadValue decodes a serialized literal into a new arena object.
func (e *Engine) loadValue(spec []byte, specIndex *int) (*DataEntry, RunResult) {
	if *specIndex >= len(spec) {
		return nil, RunResultInitializationError
	}
	valueType := spec[*specIndex]
	*specIndex++

	var value *DataEntry
	switch valueType {
	default:
		return nil, RunResultInitializationError

	case format.ValueNone:
		value = e.NewNone()

	case format.ValueEllipsis:
		value = e.NewEllipsis()

	case format.ValueBoolean:
		if *specIndex+1 > len(spec) {
			return nil, RunResultInitializationError
		}
		b := spec[*specIndex]
		*specIndex++
		value = e.NewBoolean(b != 0)

	case format.ValueInteger:
		v, r := loadSignedInteger(spec, specIndex)
		if r != RunResultOK {
			return nil, r
		}
		value = e.NewInteger(v)

	case format.ValueFloat:
		if *specIndex+8 > len(spec) {
			return nil, RunResultInitializationError
		}
		bits := binary.BigEndian.Uint64(spec[*specIndex:])
		*specIndex += 8
		value = e.NewFloat(math.Float64frombits(bits))

	case format.ValueString:
		size, r := loadUnsignedInteger(spec, specIndex)
		if r != RunResultOK {
			return nil, r
		}
		if *specIndex+int(size) > len(spec) {
			return nil, RunResultInitializationError
		}
		value = e.NewString(spec[*specIndex : *specIndex+int(size)])
		*specIndex += int(size)
	}

	if value == nil {
		return nil, RunResultOutOfDataMemory
	}
	return value, RunResultOK
}

func loadUnsignedInteger(spec []byte, specIndex *int) (uint32, RunResult) {
	if *specIndex+4 > len(spec) {
		return 0, RunResultInitializationError
	}
	value := binary.BigEndian.Uint32(spec[*specIndex:])
	*specIndex += 4
	return value, RunResultOK
}

func loadSignedInteger(spec []byte, specIndex *int) (int32, RunResult) {
	value, r := loadUnsignedInteger(spec, specIndex)
	return int32(value), r
}
