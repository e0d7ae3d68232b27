package asp

// ParameterResult carries a group-parameter lookup: the bound group object
// and the result of retrieving it.
type ParameterResult struct {
	Result RunResult
	Value  *DataEntry
}

// ParameterValue returns the value bound to a parameter symbol in a call's
// local namespace, or nil when the binding is missing or the lookup fails.
// The generated dispatcher treats nil as out-of-data-memory, the only way a
// binding established during the call set-up can be unavailable.
func (e *Engine) ParameterValue(ns *DataEntry, symbol int32) *DataEntry {
	if ns == nil || ns.Type() != DataTypeNamespace {
		return nil
	}
	r := e.findSymbol(ns, symbol)
	if r.result != RunResultOK || r.node == nil {
		return nil
	}
	return r.value
}

// GroupParameterValue returns the tuple or dictionary bound to a group
// parameter, validating that the bound object has the expected shape.
func (e *Engine) GroupParameterValue(
	ns *DataEntry, symbol int32, isDictionary bool,
) ParameterResult {
	value := e.ParameterValue(ns, symbol)
	if value == nil {
		return ParameterResult{Result: RunResultOutOfDataMemory}
	}
	expected := DataTypeTuple
	if isDictionary {
		expected = DataTypeDictionary
	}
	if value.Type() != expected {
		return ParameterResult{Result: RunResultUnexpectedType}
	}
	return ParameterResult{Result: RunResultOK, Value: value}
}

// NewArgumentList returns a new, empty argument list for a host-initiated
// call.
func (e *Engine) NewArgumentList() *DataEntry {
	return e.allocEntry(DataTypeArgumentList)
}

// AddPositionalArgument appends a positional argument.
func (e *Engine) AddPositionalArgument(list, value *DataEntry) RunResult {
	return e.addArgument(list, 0, false, value)
}

// AddNamedArgument appends a named argument.
func (e *Engine) AddNamedArgument(list *DataEntry, symbol int32, value *DataEntry) RunResult {
	return e.addArgument(list, symbol, true, value)
}

func (e *Engine) addArgument(
	list *DataEntry, symbol int32, named bool, value *DataEntry,
) RunResult {
	if r := e.assert(list != nil && list.Type() == DataTypeArgumentList); r != RunResultOK {
		return r
	}
	argument := e.allocEntry(DataTypeArgument)
	if argument == nil {
		return RunResultOutOfDataMemory
	}
	argument.setArgumentHasName(named)
	if named {
		argument.setArgumentSymbol(symbol)
	}
	argument.setArgumentValueIndex(e.entryIndex(value))
	e.Ref(value)
	return e.sequenceAppend(list, argument).result
}

// loadArguments binds an argument list against a function's parameter list,
// producing the call's local namespace: positional arguments in order, then
// named arguments, then defaults, with tuple and dictionary groups
// collecting the surplus.
func (e *Engine) loadArguments(
	argumentList, parameterList *DataEntry,
) (*DataEntry, RunResult) {
	// Split the arguments into positionals and named bindings.
	var positional []*DataEntry
	type namedArgument struct {
		symbol int32
		value  *DataEntry
		used   bool
	}
	var named []*namedArgument
	if argumentList != nil {
		for r := e.sequenceNext(argumentList, nil); r.element != nil; r = e.sequenceNext(argumentList, r.element) {
			argument := r.value
			value := e.valueEntry(argument.argumentValueIndex())
			if argument.argumentHasName() {
				named = append(named, &namedArgument{
					symbol: argument.argumentSymbol(),
					value:  value,
				})
			} else {
				if len(named) != 0 {
					return nil, RunResultMalformedFunctionCall
				}
				positional = append(positional, value)
			}
		}
	}
	findNamed := func(symbol int32) *namedArgument {
		for _, argument := range named {
			if argument.symbol == symbol && !argument.used {
				return argument
			}
		}
		return nil
	}

	ns := e.allocEntry(DataTypeNamespace)
	if ns == nil {
		return nil, RunResultOutOfDataMemory
	}
	fail := func(r RunResult) (*DataEntry, RunResult) {
		e.Unref(ns)
		return nil, r
	}
	bind := func(symbol int32, value *DataEntry) RunResult {
		r := e.treeTryInsertBySymbol(ns, symbol, value)
		if r.result != RunResultOK {
			return r.result
		}
		if !r.inserted {
			return RunResultMalformedFunctionCall
		}
		return RunResultOK
	}

	for r := e.sequenceNext(parameterList, nil); r.element != nil; r = e.sequenceNext(parameterList, r.element) {
		parameter := r.value
		symbol := parameter.parameterSymbol()

		switch {
		case parameter.parameterIsTupleGroup():
			group := e.NewTuple()
			if group == nil {
				return fail(RunResultOutOfDataMemory)
			}
			for _, value := range positional {
				if sr := e.sequenceAppend(group, value); sr.result != RunResultOK {
					e.Unref(group)
					return fail(sr.result)
				}
			}
			positional = nil
			if br := bind(symbol, group); br != RunResultOK {
				e.Unref(group)
				return fail(br)
			}
			e.Unref(group)

		case parameter.parameterIsDictionaryGroup():
			group := e.allocEntry(DataTypeDictionary)
			if group == nil {
				return fail(RunResultOutOfDataMemory)
			}
			for _, argument := range named {
				if argument.used {
					continue
				}
				key := e.NewSymbol(argument.symbol)
				if key == nil {
					e.Unref(group)
					return fail(RunResultOutOfDataMemory)
				}
				tr := e.treeTryInsertByKey(group, key, argument.value)
				e.Unref(key)
				if tr.result != RunResultOK {
					e.Unref(group)
					return fail(tr.result)
				}
				argument.used = true
			}
			if br := bind(symbol, group); br != RunResultOK {
				e.Unref(group)
				return fail(br)
			}
			e.Unref(group)

		default:
			var value *DataEntry
			if len(positional) != 0 {
				value = positional[0]
				positional = positional[1:]
				if findNamed(symbol) != nil {
					return fail(RunResultMalformedFunctionCall)
				}
			} else if argument := findNamed(symbol); argument != nil {
				argument.used = true
				value = argument.value
			} else if parameter.parameterHasDefault() {
				value = e.valueEntry(parameter.parameterDefaultIndex())
			} else {
				return fail(RunResultMalformedFunctionCall)
			}
			if br := bind(symbol, value); br != RunResultOK {
				return fail(br)
			}
		}
	}

	// Surplus arguments with no group to collect them are an error.
	if len(positional) != 0 {
		return fail(RunResultMalformedFunctionCall)
	}
	for _, argument := range named {
		if !argument.used {
			return fail(RunResultMalformedFunctionCall)
		}
	}
	return ns, RunResultOK
}

// CallAppFunction invokes an application function object through the spec's
// dispatcher, binding the argument list to the function's parameters. The
// returned value, when non-nil, is owned by the caller.
func (e *Engine) CallAppFunction(
	function, argumentList *DataEntry,
) (*DataEntry, RunResult) {
	if function == nil || function.Type() != DataTypeFunction {
		return nil, RunResultUnexpectedType
	}
	if !function.functionIsApp() {
		return nil, RunResultUnexpectedType
	}
	if e.appSpec == nil || e.appSpec.Dispatch == nil {
		return nil, RunResultUndefinedAppFunction
	}

	module := e.valueEntry(function.functionModuleIndex())
	moduleSymbol := module.moduleSymbol()
	functionSymbol := function.functionSymbol()

	parameterList := e.valueEntry(function.functionParametersIndex())
	ns, result := e.loadArguments(argumentList, parameterList)
	if result != RunResultOK {
		return nil, result
	}

	e.inApp = true
	returnValue, result := e.appSpec.Dispatch(e, moduleSymbol, functionSymbol, ns)
	e.inApp = false

	e.Unref(ns)
	if result != RunResultOK {
		if returnValue != nil {
			e.Unref(returnValue)
		}
		return nil, result
	}
	if returnValue == nil {
		returnValue = e.NewNone()
	}
	return returnValue, RunResultOK
}
