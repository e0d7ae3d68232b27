package appspec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteCompilerSpec_SystemModuleOnly(t *testing.T) {
	g, diagnostics := parseSource(t, map[string]string{
		"app.asps": "answer = 42\ndef hello() = h_impl\n",
	}, "app.asps")
	require.Zero(t, g.ErrorCount(), diagnostics.String())

	var out bytes.Buffer
	require.NoError(t, g.WriteCompilerSpec(&out))
	spec := out.Bytes()

	// Header: magic, compiler format 1, big-endian check value.
	require.Equal(t, []byte("AspS"), spec[:4])
	require.Equal(t, uint8(1), spec[4])
	require.Equal(t, g.CheckValue(), binary.BigEndian.Uint32(spec[5:9]))

	// Symbol block: newline-separated names in assignment order, no import
	// group.
	require.Equal(t, []byte("answer\nhello\n"), spec[9:22])

	// Engine payload, format 0: a variable record with its literal, then a
	// zero-parameter function record.
	require.Equal(t, []byte{
		0xFF, 0x03, 0x00, 0x00, 0x00, 0x2A,
		0x00,
	}, spec[22:])
	require.Equal(t, spec[22:], g.EnginePayload())
}

func TestWriteCompilerSpec_ApplicationModule(t *testing.T) {
	g, diagnostics := parseSource(t, map[string]string{
		"app.asps": "import net\n",
		"net.asps": "def send(x) = net_send\n",
	}, "app.asps")
	require.Zero(t, g.ErrorCount(), diagnostics.String())

	var out bytes.Buffer
	require.NoError(t, g.WriteCompilerSpec(&out))
	spec := out.Bytes()

	require.Equal(t, []byte("AspS"), spec[:4])
	require.Equal(t, uint8(2), spec[4])

	// Format 2 separates names with spaces; the import-name group ends with
	// an extra separator. Symbols: net=3, send=4, x=5.
	require.Equal(t, []byte("net  send x "), spec[9:21])

	require.Equal(t, []byte{
		0xFF, 0xFF, 0x01, // payload marker, engine format 1
		0x00, 0x00, 0x00, 0x01, // one application module
		0xFC, 0x00, 0x00, 0x00, 0x03, 0xFF, 0xFF, 0xFF, 0xFF, // import net -> module -1
		0xFD,                         // switch to module -1
		0x01, 0x00, 0x00, 0x00, 0x04, // function send, one parameter
		0x00, 0x00, 0x00, 0x05, // plain parameter x
	}, spec[21:])
}

func TestEnginePayload_BareDeclarations(t *testing.T) {
	// Format 0 needs a record to advance the implicit symbol counter.
	g, _ := parseSource(t, map[string]string{
		"app.asps": "bare\nz = 1\n",
	}, "app.asps")
	require.NoError(t, g.Finalize())
	require.Equal(t, []byte{
		0xFE,                               // bare
		0xFF, 0x03, 0x00, 0x00, 0x00, 0x01, // z = 1
	}, g.EnginePayload())

	// With explicit symbols there is nothing to record for a bare name.
	g, _ = parseSource(t, map[string]string{
		"app.asps": "import net\nbare\n",
		"net.asps": "",
	}, "app.asps")
	require.NoError(t, g.Finalize())
	payload := g.EnginePayload()
	require.NotContains(t, payload, byte(0xFE))
}

func TestEnginePayload_ManyParameters(t *testing.T) {
	// More parameters than the count-prefix byte can carry forces the
	// function prefix and engine format 1.
	source := "def big("
	for i := 0; i < 0xFB; i++ {
		if i != 0 {
			source += ", "
		}
		source += parameterName(i)
	}
	source += ") = big_impl\n"

	g, diagnostics := parseSource(t, map[string]string{"app.asps": source}, "app.asps")
	require.Zero(t, g.ErrorCount(), diagnostics.String())
	require.NoError(t, g.Finalize())
	require.Equal(t, uint8(1), g.engineSpecVersion)

	payload := g.EnginePayload()
	// FF FF version, module count, then the function record.
	require.Equal(t, uint8(0xFB), payload[7])
	require.Equal(t, uint32(3), binary.BigEndian.Uint32(payload[8:12]))     // symbol of big
	require.Equal(t, uint32(0xFB), binary.BigEndian.Uint32(payload[12:16])) // parameter count
}

func parameterName(i int) string {
	return fmt.Sprintf("p%d", i)
}

func TestEnginePayload_ParameterTypes(t *testing.T) {
	g, diagnostics := parseSource(t, map[string]string{
		"app.asps": "def f(a, b=True, *t, **d) = f_impl\n",
	}, "app.asps")
	require.Zero(t, g.ErrorCount(), diagnostics.String())
	require.NoError(t, g.Finalize())

	// Symbols: f=3, a=4, b=5, t=6, d=7.
	require.Equal(t, []byte{
		0x04,                   // four parameters
		0x00, 0x00, 0x00, 0x04, // a: plain
		0x10, 0x00, 0x00, 0x05, // b: defaulted
		0x02, 0x01, // default True
		0x20, 0x00, 0x00, 0x06, // t: tuple group
		0x30, 0x00, 0x00, 0x07, // d: dictionary group
	}, g.EnginePayload())
}
