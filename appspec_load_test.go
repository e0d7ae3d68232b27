package asp

import (
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/asplang/asp/appspec"
)

// buildSpec generates an application spec from in-memory sources and returns
// the engine-side view plus the generator for symbol lookups.
func buildSpec(t *testing.T, files map[string]string, dispatch DispatchFunc) (*AppSpec, *appspec.Generator) {
	t.Helper()
	g := appspec.NewGenerator(os.Stderr, "app")
	p := appspec.NewParser(g, func(fileName string) (io.ReadCloser, string, error) {
		content, ok := files[fileName]
		if !ok {
			return nil, fileName, os.ErrNotExist
		}
		return io.NopCloser(strings.NewReader(content)), fileName, nil
	})
	require.NoError(t, p.ParseFile("app.asps"))
	require.Zero(t, g.ErrorCount())
	require.NoError(t, g.Finalize())

	return &AppSpec{
		Spec:       g.EnginePayload(),
		CheckValue: g.CheckValue(),
		Dispatch:   dispatch,
	}, g
}

func symbolOf(t *testing.T, g *appspec.Generator, name string) int32 {
	t.Helper()
	symbol, ok := g.Symbol(name)
	require.True(t, ok, "symbol %q not assigned", name)
	return symbol
}

func TestBootstrap_VariableWithLiteral(t *testing.T) {
	spec, g := buildSpec(t, map[string]string{
		"app.asps": "answer = 42\n",
	}, nil)
	e := newTestEngine(t, 256, spec)

	value := e.ParameterValue(e.systemNamespace, symbolOf(t, g, "answer"))
	require.NotNil(t, value)
	require.Equal(t, DataTypeInteger, value.Type())
	require.Equal(t, int32(42), e.IntegerValue(value))
	require.Equal(t, uint32(1), e.UseCount(value))
}

func TestBootstrap_AllLiteralKinds(t *testing.T) {
	spec, g := buildSpec(t, map[string]string{
		"app.asps": "i = -7\n" +
			"f = 2.5\n" +
			"s = \"bytes\"\n" +
			"b = False\n" +
			"n = None\n" +
			"dots = ...\n",
	}, nil)
	e := newTestEngine(t, 512, spec)
	ns := e.systemNamespace

	require.Equal(t, int32(-7), e.IntegerValue(e.ParameterValue(ns, symbolOf(t, g, "i"))))
	require.Equal(t, 2.5, e.FloatValue(e.ParameterValue(ns, symbolOf(t, g, "f"))))
	require.Equal(t, []byte("bytes"), e.StringValue(e.ParameterValue(ns, symbolOf(t, g, "s"))))
	require.False(t, e.BooleanValue(e.ParameterValue(ns, symbolOf(t, g, "b"))))
	require.Equal(t, DataTypeNone, e.ParameterValue(ns, symbolOf(t, g, "n")).Type())
	require.Equal(t, DataTypeEllipsis, e.ParameterValue(ns, symbolOf(t, g, "dots")).Type())
}

func TestBootstrap_FunctionSignatureRoundTrip(t *testing.T) {
	spec, g := buildSpec(t, map[string]string{
		"app.asps": "def f(a, b=5, *t, **d) = f_impl\n",
	}, nil)
	e := newTestEngine(t, 512, spec)

	function := e.ParameterValue(e.systemNamespace, symbolOf(t, g, "f"))
	require.NotNil(t, function)
	require.Equal(t, DataTypeFunction, function.Type())
	require.True(t, function.functionIsApp())
	require.Equal(t, symbolOf(t, g, "f"), function.functionSymbol())

	// The function's module is the system module.
	module := e.valueEntry(function.functionModuleIndex())
	require.Same(t, e.systemModule, module)

	// Walk the parameter list: (name symbol, kind, default) survives the
	// round trip through the binary spec.
	parameters := e.valueEntry(function.functionParametersIndex())
	require.Equal(t, DataTypeParameterList, parameters.Type())
	require.Equal(t, int32(4), parameters.sequenceCount())

	type parameterShape struct {
		symbol     int32
		tupleGroup bool
		dictGroup  bool
		hasDefault bool
	}
	var shapes []parameterShape
	var defaultValue int32
	for r := e.sequenceNext(parameters, nil); r.element != nil; r = e.sequenceNext(parameters, r.element) {
		p := r.value
		shapes = append(shapes, parameterShape{
			symbol:     p.parameterSymbol(),
			tupleGroup: p.parameterIsTupleGroup(),
			dictGroup:  p.parameterIsDictionaryGroup(),
			hasDefault: p.parameterHasDefault(),
		})
		if p.parameterHasDefault() {
			defaultValue = e.IntegerValue(e.valueEntry(p.parameterDefaultIndex()))
		}
	}
	require.Equal(t, []parameterShape{
		{symbol: symbolOf(t, g, "a")},
		{symbol: symbolOf(t, g, "b"), hasDefault: true},
		{symbol: symbolOf(t, g, "t"), tupleGroup: true},
		{symbol: symbolOf(t, g, "d"), dictGroup: true},
	}, shapes)
	require.Equal(t, int32(5), defaultValue)
}

func TestBootstrap_ApplicationModule(t *testing.T) {
	spec, g := buildSpec(t, map[string]string{
		"app.asps": "import net\n",
		"net.asps": "def send(x) = net_send\n",
	}, nil)
	e := newTestEngine(t, 512, spec)

	netSymbol := symbolOf(t, g, "net")

	// The module is bound in the system namespace and in the modules
	// collection under its import symbol.
	module := e.ParameterValue(e.systemNamespace, netSymbol)
	require.NotNil(t, module)
	require.Equal(t, DataTypeModule, module.Type())
	require.True(t, module.moduleIsApp())
	require.True(t, module.moduleIsLoaded())

	fromModules := e.findSymbol(e.modules, netSymbol)
	require.NotNil(t, fromModules.node)
	require.Same(t, module, fromModules.value)

	// Its namespace holds the send function.
	moduleNamespace := e.valueEntry(module.moduleNamespaceIndex())
	send := e.ParameterValue(moduleNamespace, symbolOf(t, g, "send"))
	require.NotNil(t, send)
	require.Equal(t, DataTypeFunction, send.Type())

	// The function dispatches under the module's temporary symbol.
	require.Equal(t, int32(-1), module.moduleSymbol())

	// The temporary bindings were removed after bootstrap.
	temp := e.findSymbol(e.modules, -1)
	require.Nil(t, temp.node)
}

func TestBootstrap_SystemNamespaceSeeds(t *testing.T) {
	e := newTestEngine(t, 256, nil)

	// The arguments tuple is bound under the reserved symbol.
	arguments := e.ParameterValue(e.systemNamespace, systemArgumentsSymbol)
	require.NotNil(t, arguments)
	require.Equal(t, DataTypeTuple, arguments.Type())
	require.Zero(t, arguments.sequenceCount())

	// The system module is registered in the modules collection.
	system := e.findSymbol(e.modules, systemModuleSymbol)
	require.NotNil(t, system.node)
	require.Same(t, e.systemModule, system.value)
	require.True(t, e.systemModule.moduleIsLoaded())
}

func TestBootstrap_Argv(t *testing.T) {
	spec, _ := buildSpec(t, map[string]string{"app.asps": "x = 1\n"}, nil)
	e := newTestEngine(t, 512, spec)
	require.Equal(t, RunResultOK, e.SetArguments([]string{"one", "two"}))
	require.Equal(t, RunResultOK, e.Reset())

	arguments := e.ParameterValue(e.systemNamespace, systemArgumentsSymbol)
	require.Equal(t, int32(2), arguments.sequenceCount())
	first := e.sequenceNext(arguments, nil)
	require.Equal(t, []byte("one"), e.StringValue(first.value))
	second := e.sequenceNext(arguments, first.element)
	require.Equal(t, []byte("two"), e.StringValue(second.value))
}

func TestBootstrap_MalformedSpec(t *testing.T) {
	tests := []struct {
		name string
		spec []byte
	}{
		{"unsupported version", []byte{0xFF, 0xFF, 0x02, 0, 0, 0, 0}},
		{"negative module count", []byte{0xFF, 0xFF, 0x01, 0xFF, 0xFF, 0xFF, 0xFF}},
		{"truncated literal", []byte{0xFF, 0x03, 0x00}},
		{"symbol prefix in format 1", []byte{0xFF, 0xFF, 0x01, 0, 0, 0, 0, 0xFE, 0, 0, 0, 9}},
		{"bad value tag", []byte{0xFF, 0x63}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, result := NewEngine(nil,
				make([]byte, 256*DataEntrySize),
				&AppSpec{Spec: tc.spec}, nil)
			require.Equal(t, RunResultInitializationError, result)
		})
	}
}
