package asp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDispatch_SingleModuleHello(t *testing.T) {
	var dispatched []int32
	spec, g := buildSpec(t, map[string]string{
		"app.asps": "def hello() = h_impl\n",
	}, nil)
	helloSymbol := symbolOf(t, g, "hello")

	// The dispatcher routes (moduleSymbol, functionSymbol) the way the
	// generated C switch does.
	spec.Dispatch = func(e *Engine, moduleSymbol, functionSymbol int32, ns *DataEntry) (*DataEntry, RunResult) {
		dispatched = append(dispatched, moduleSymbol, functionSymbol)
		if moduleSymbol == 0 && functionSymbol == helloSymbol {
			return nil, RunResultOK
		}
		return nil, RunResultUndefinedAppFunction
	}

	e := newTestEngine(t, 512, spec)
	hello := e.ParameterValue(e.systemNamespace, helloSymbol)
	require.NotNil(t, hello)

	returnValue, result := e.CallAppFunction(hello, nil)
	require.Equal(t, RunResultOK, result)
	require.Equal(t, DataTypeNone, returnValue.Type())
	require.Equal(t, []int32{0, helloSymbol}, dispatched)
	e.Unref(returnValue)
}

func TestDispatch_UndefinedAppFunction(t *testing.T) {
	spec, g := buildSpec(t, map[string]string{
		"app.asps": "def hello() = h_impl\n",
	}, func(e *Engine, moduleSymbol, functionSymbol int32, ns *DataEntry) (*DataEntry, RunResult) {
		// A dispatcher built from a different spec knows no functions.
		return nil, RunResultUndefinedAppFunction
	})
	e := newTestEngine(t, 512, spec)

	hello := e.ParameterValue(e.systemNamespace, symbolOf(t, g, "hello"))
	_, result := e.CallAppFunction(hello, nil)
	require.Equal(t, RunResultUndefinedAppFunction, result)
}

func TestDispatch_GroupParameters(t *testing.T) {
	type captured struct {
		a     int32
		tuple []int32
		dict  map[int32]int32
	}
	var got captured

	files := map[string]string{"app.asps": "def f(a, *t, **d) = f_impl\n"}
	var aSymbol, tSymbol, dSymbol int32
	spec, g := buildSpec(t, files,
		func(e *Engine, moduleSymbol, functionSymbol int32, ns *DataEntry) (*DataEntry, RunResult) {
			// Bind parameters out of the local namespace the way the
			// generated dispatcher does.
			a := e.ParameterValue(ns, aSymbol)
			if a == nil {
				return nil, RunResultOutOfDataMemory
			}
			tuple := e.GroupParameterValue(ns, tSymbol, false)
			if tuple.Result != RunResultOK {
				return nil, tuple.Result
			}
			dict := e.GroupParameterValue(ns, dSymbol, true)
			if dict.Result != RunResultOK {
				return nil, dict.Result
			}

			got.a = e.IntegerValue(a)
			for r := e.sequenceNext(tuple.Value, nil); r.element != nil; r = e.sequenceNext(tuple.Value, r.element) {
				got.tuple = append(got.tuple, e.IntegerValue(r.value))
			}
			got.dict = map[int32]int32{}
			collectDictionary(e, dict.Value, got.dict)
			return e.NewInteger(got.a + 1), RunResultOK
		})
	aSymbol = symbolOf(t, g, "a")
	tSymbol = symbolOf(t, g, "t")
	dSymbol = symbolOf(t, g, "d")

	e := newTestEngine(t, 1024, spec)
	f := e.ParameterValue(e.systemNamespace, symbolOf(t, g, "f"))
	require.NotNil(t, f)

	arguments := e.NewArgumentList()
	for _, v := range []int32{7, 8, 9} {
		value := e.NewInteger(v)
		require.Equal(t, RunResultOK, e.AddPositionalArgument(arguments, value))
		e.Unref(value)
	}
	extra := e.NewInteger(99)
	require.Equal(t, RunResultOK, e.AddNamedArgument(arguments, 1000, extra))
	e.Unref(extra)

	returnValue, result := e.CallAppFunction(f, arguments)
	require.Equal(t, RunResultOK, result)
	require.Equal(t, int32(7), got.a)
	require.Equal(t, []int32{8, 9}, got.tuple)
	require.Equal(t, map[int32]int32{1000: 99}, got.dict)
	require.Equal(t, int32(8), e.IntegerValue(returnValue))
	e.Unref(returnValue)
	e.Unref(arguments)
}

// collectDictionary walks a dictionary keyed by symbols into a Go map.
func collectDictionary(e *Engine, dictionary *DataEntry, into map[int32]int32) {
	var walk func(index uint32)
	walk = func(index uint32) {
		if index == 0 {
			return
		}
		node := &e.data[index]
		key := e.valueEntry(node.treeNodeKeyIndex())
		value := e.valueEntry(node.treeNodeValueIndex())
		into[key.symbolValue()] = e.IntegerValue(value)
		walk(e.nodeLeft(node))
		walk(e.nodeRight(node))
	}
	walk(dictionary.treeRootIndex())
}

func TestDispatch_ApplicationModule(t *testing.T) {
	var dispatchedModule, dispatchedFunction int32
	spec, g := buildSpec(t, map[string]string{
		"app.asps": "import net\n",
		"net.asps": "def send(x) = net_send\n",
	}, func(e *Engine, moduleSymbol, functionSymbol int32, ns *DataEntry) (*DataEntry, RunResult) {
		dispatchedModule = moduleSymbol
		dispatchedFunction = functionSymbol
		return nil, RunResultOK
	})
	e := newTestEngine(t, 1024, spec)

	module := e.ParameterValue(e.systemNamespace, symbolOf(t, g, "net"))
	moduleNamespace := e.valueEntry(module.moduleNamespaceIndex())
	send := e.ParameterValue(moduleNamespace, symbolOf(t, g, "send"))

	arguments := e.NewArgumentList()
	value := e.NewInteger(3)
	require.Equal(t, RunResultOK, e.AddPositionalArgument(arguments, value))
	e.Unref(value)

	returnValue, result := e.CallAppFunction(send, arguments)
	require.Equal(t, RunResultOK, result)
	require.Equal(t, int32(-1), dispatchedModule)
	require.Equal(t, symbolOf(t, g, "send"), dispatchedFunction)
	e.Unref(returnValue)
	e.Unref(arguments)
}

func TestLoadArguments_DefaultsAndErrors(t *testing.T) {
	spec, g := buildSpec(t, map[string]string{
		"app.asps": "def f(a, b=5) = f_impl\n",
	}, nil)
	e := newTestEngine(t, 1024, spec)
	f := e.ParameterValue(e.systemNamespace, symbolOf(t, g, "f"))
	parameters := e.valueEntry(f.functionParametersIndex())
	aSymbol := symbolOf(t, g, "a")
	bSymbol := symbolOf(t, g, "b")

	// One positional argument: b falls back to its default.
	arguments := e.NewArgumentList()
	value := e.NewInteger(1)
	require.Equal(t, RunResultOK, e.AddPositionalArgument(arguments, value))
	e.Unref(value)

	ns, result := e.loadArguments(arguments, parameters)
	require.Equal(t, RunResultOK, result)
	require.Equal(t, int32(1), e.IntegerValue(e.ParameterValue(ns, aSymbol)))
	require.Equal(t, int32(5), e.IntegerValue(e.ParameterValue(ns, bSymbol)))
	e.Unref(ns)

	// Named arguments bind by symbol.
	named := e.NewArgumentList()
	value = e.NewInteger(2)
	require.Equal(t, RunResultOK, e.AddNamedArgument(named, aSymbol, value))
	e.Unref(value)
	value = e.NewInteger(3)
	require.Equal(t, RunResultOK, e.AddNamedArgument(named, bSymbol, value))
	e.Unref(value)

	ns, result = e.loadArguments(named, parameters)
	require.Equal(t, RunResultOK, result)
	require.Equal(t, int32(2), e.IntegerValue(e.ParameterValue(ns, aSymbol)))
	require.Equal(t, int32(3), e.IntegerValue(e.ParameterValue(ns, bSymbol)))
	e.Unref(ns)

	// A missing required argument is an error.
	empty := e.NewArgumentList()
	_, result = e.loadArguments(empty, parameters)
	require.Equal(t, RunResultMalformedFunctionCall, result)

	// Surplus positional arguments with no tuple group are an error.
	surplus := e.NewArgumentList()
	for i := 0; i < 3; i++ {
		value = e.NewInteger(int32(i))
		require.Equal(t, RunResultOK, e.AddPositionalArgument(surplus, value))
		e.Unref(value)
	}
	_, result = e.loadArguments(surplus, parameters)
	require.Equal(t, RunResultMalformedFunctionCall, result)

	// An unknown named argument is an error.
	unknown := e.NewArgumentList()
	value = e.NewInteger(1)
	require.Equal(t, RunResultOK, e.AddPositionalArgument(unknown, value))
	e.Unref(value)
	value = e.NewInteger(4)
	require.Equal(t, RunResultOK, e.AddNamedArgument(unknown, 1234, value))
	e.Unref(value)
	_, result = e.loadArguments(unknown, parameters)
	require.Equal(t, RunResultMalformedFunctionCall, result)

	e.Unref(arguments)
	e.Unref(named)
	e.Unref(empty)
	e.Unref(surplus)
	e.Unref(unknown)
}

func TestCallAppFunction_InAppGuard(t *testing.T) {
	spec, g := buildSpec(t, map[string]string{
		"app.asps": "def f() = f_impl\n",
	}, nil)

	var sawInvalidState bool
	spec.Dispatch = func(e *Engine, moduleSymbol, functionSymbol int32, ns *DataEntry) (*DataEntry, RunResult) {
		// Lifecycle operations are rejected while inside an app call.
		sawInvalidState = e.Reset() == RunResultInvalidState &&
			e.Restart() == RunResultInvalidState &&
			e.SetCodePaging(0, 0, nil) == RunResultInvalidState
		return nil, RunResultOK
	}

	e := newTestEngine(t, 512, spec)
	f := e.ParameterValue(e.systemNamespace, symbolOf(t, g, "f"))
	returnValue, result := e.CallAppFunction(f, nil)
	require.Equal(t, RunResultOK, result)
	require.True(t, sawInvalidState)
	e.Unref(returnValue)
}

func TestGroupParameterValue_TypeCheck(t *testing.T) {
	e := newTestEngine(t, 256, nil)

	ns := e.allocEntry(DataTypeNamespace)
	value := e.NewInteger(1)
	require.True(t, e.treeTryInsertBySymbol(ns, 7, value).inserted)
	e.Unref(value)

	r := e.GroupParameterValue(ns, 7, false)
	require.Equal(t, RunResultUnexpectedType, r.Result)
	r = e.GroupParameterValue(ns, 99, false)
	require.Equal(t, RunResultOutOfDataMemory, r.Result)
	e.Unref(ns)
}
