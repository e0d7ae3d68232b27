// Command aspinfo inspects binary application specification (*.aspec) files
// and verifies executables (*.aspe) against them.
package main

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/edsrzf/mmap-go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/asplang/asp"
	"github.com/asplang/asp/internal/format"
	"github.com/asplang/asp/internal/pathsearch"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	exitCode := 0

	root := &cobra.Command{
		Use:           "aspinfo",
		Short:         "Inspect Asp application specifications and executables",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	specCmd := &cobra.Command{
		Use:   "spec FILE.aspec",
		Short: "Dump the contents of a binary application specification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMapped(args[0], func(data []byte) error {
				return dumpSpec(args[0], data)
			})
		},
	}

	var dataSize int
	verifyCmd := &cobra.Command{
		Use:   "verify FILE.aspe [FILE.aspec]",
		Short: "Verify an executable against an application specification",
		Long: "Verify an executable against an application specification. " +
			"When the spec argument is omitted, " + pathsearch.SpecFileVar +
			" names the spec file.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			specFileName := ""
			if len(args) == 2 {
				specFileName = args[1]
			} else {
				v := viper.New()
				if err := v.BindEnv("spec_file", pathsearch.SpecFileVar); err != nil {
					return err
				}
				specFileName = v.GetString("spec_file")
				if specFileName == "" {
					return fmt.Errorf("no spec given and %s is not set",
						pathsearch.SpecFileVar)
				}
			}
			return withMapped(args[0], func(executable []byte) error {
				return withMapped(specFileName, func(specData []byte) error {
					code, err := verify(executable, specData, dataSize)
					exitCode = code
					return err
				})
			})
		},
	}
	verifyCmd.Flags().IntVarP(&dataSize, "data-size", "d", 64*1024,
		"Size in bytes of the data arena used for the bootstrap.")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Asp engine version %d.%d.%d.%d\n",
				format.EngineVersionMajor, format.EngineVersionMinor,
				format.EngineVersionPatch, format.EngineVersionTweak)
		},
	}

	root.AddCommand(specCmd, verifyCmd, versionCmd)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return exitCode
}

// withMapped maps a file read-only and passes its contents to fn.
func withMapped(fileName string, fn func([]byte) error) error {
	f, err := os.Open(fileName)
	if err != nil {
		return err
	}
	defer f.Close()

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return fmt.Errorf("mapping %s: %w", fileName, err)
	}
	defer m.Unmap()

	return fn(m)
}

// parsedSpec is the decoded view of a .aspec file.
type parsedSpec struct {
	version    uint8
	checkValue uint32
	names      []string
	payload    []byte
}

func parseSpec(data []byte) (*parsedSpec, error) {
	if len(data) < 9 || string(data[:4]) != format.SpecMagic {
		return nil, fmt.Errorf("not an application specification")
	}
	spec := &parsedSpec{
		version:    data[4],
		checkValue: binary.BigEndian.Uint32(data[5:9]),
	}
	if spec.version == 0 || spec.version > 2 {
		return nil, fmt.Errorf("unsupported spec format %d", spec.version)
	}

	separator := byte('\n')
	if spec.version >= 2 {
		separator = ' '
	}

	// The symbol block is separator-terminated names; the payload follows.
	// Try each block boundary until the remainder decodes as a payload.
	rest := data[9:]
	offset := 0
	for {
		if payloadLength(rest[offset:]) == len(rest)-offset {
			break
		}
		if offset >= len(rest) {
			return nil, fmt.Errorf("malformed symbol block")
		}
		end := offset
		for end < len(rest) && rest[end] != separator && isNameByte(rest[end]) {
			end++
		}
		if end >= len(rest) || rest[end] != separator {
			return nil, fmt.Errorf("malformed symbol block")
		}
		if end > offset {
			spec.names = append(spec.names, string(rest[offset:end]))
		}
		offset = end + 1
	}
	spec.payload = rest[offset:]
	return spec, nil
}

func isNameByte(b byte) bool {
	return b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

// payloadLength decodes the engine payload at the start of data and returns
// the number of bytes it spans, or -1 if it is malformed.
func payloadLength(data []byte) int {
	d := &payloadDecoder{data: data}
	d.decode(nil)
	if d.bad {
		return -1
	}
	return d.offset
}

type payloadDecoder struct {
	data   []byte
	offset int
	bad    bool
}

func (d *payloadDecoder) u8() uint8 {
	if d.offset+1 > len(d.data) {
		d.bad = true
		return 0
	}
	v := d.data[d.offset]
	d.offset++
	return v
}

func (d *payloadDecoder) u32() uint32 {
	if d.offset+4 > len(d.data) {
		d.bad = true
		return 0
	}
	v := binary.BigEndian.Uint32(d.data[d.offset:])
	d.offset += 4
	return v
}

func (d *payloadDecoder) skip(n int) {
	if d.offset+n > len(d.data) {
		d.bad = true
		return
	}
	d.offset += n
}

// value decodes one serialized literal, reporting it to print when set.
func (d *payloadDecoder) value(print func(string)) {
	emit := func(s string) {
		if print != nil {
			print(s)
		}
	}
	switch d.u8() {
	case format.ValueNone:
		emit("None")
	case format.ValueEllipsis:
		emit("...")
	case format.ValueBoolean:
		if d.u8() != 0 {
			emit("True")
		} else {
			emit("False")
		}
	case format.ValueInteger:
		emit(fmt.Sprintf("%d", int32(d.u32())))
	case format.ValueFloat:
		if d.offset+8 > len(d.data) {
			d.bad = true
			return
		}
		bits := binary.BigEndian.Uint64(d.data[d.offset:])
		d.offset += 8
		emit(fmt.Sprintf("%g", math.Float64frombits(bits)))
	case format.ValueString:
		size := int(d.u32())
		if d.bad || d.offset+size > len(d.data) {
			d.bad = true
			return
		}
		emit(fmt.Sprintf("%q", d.data[d.offset:d.offset+size]))
		d.skip(size)
	default:
		d.bad = true
	}
}

// decode walks the whole payload. report, when non-nil, receives one line
// per record.
func (d *payloadDecoder) decode(report func(string)) {
	emit := func(s string) {
		if report != nil {
			report(s)
		}
	}

	version := uint8(0)
	if len(d.data) >= 3 && d.data[0] == 0xFF && d.data[1] == 0xFF {
		d.skip(2)
		version = d.u8()
		moduleCount := int32(d.u32())
		emit(fmt.Sprintf("engine spec format %d, %d application module(s)",
			version, moduleCount))
	}
	if version > 1 {
		d.bad = true
		return
	}

	moduleNumber := 0
	for !d.bad && d.offset < len(d.data) {
		prefix := d.u8()
		symbol := int32(0)
		if version >= 1 {
			if prefix == format.PrefixSymbol {
				d.bad = true
				return
			}
			if prefix != format.PrefixModule {
				symbol = int32(d.u32())
			}
		}

		switch {
		case prefix == format.PrefixVariable:
			var text string
			d.value(func(s string) { text = s })
			emit(fmt.Sprintf("  variable %d = %s", symbol, text))

		case version >= 1 && prefix == format.PrefixModule:
			moduleNumber++
			emit(fmt.Sprintf("module %d", -moduleNumber))

		case version >= 1 && prefix == format.PrefixImport:
			target := int32(d.u32())
			emit(fmt.Sprintf("  import %d -> module %d", symbol, target))

		case prefix == format.PrefixSymbol:
			emit(fmt.Sprintf("  symbol %d", symbol))

		default:
			parameterCount := uint32(prefix)
			if version >= 1 && prefix == format.PrefixFunction {
				parameterCount = d.u32()
			}
			var parameters []string
			for p := uint32(0); p < parameterCount && !d.bad; p++ {
				word := d.u32()
				parameterSymbol := int32(word & format.WordMax)
				text := fmt.Sprintf("%d", parameterSymbol)
				switch word >> format.WordBitSize {
				case format.ParameterDefaulted:
					var value string
					d.value(func(s string) { value = s })
					text += "=" + value
				case format.ParameterTupleGroup:
					text = "*" + text
				case format.ParameterDictionaryGroup:
					text = "**" + text
				}
				parameters = append(parameters, text)
			}
			emit(fmt.Sprintf("  function %d(%s)", symbol, strings.Join(parameters, ", ")))
		}
	}
}

func dumpSpec(fileName string, data []byte) error {
	spec, err := parseSpec(data)
	if err != nil {
		return fmt.Errorf("%s: %w", fileName, err)
	}

	fmt.Printf("%s:\n", fileName)
	fmt.Printf("  compiler spec format: %d\n", spec.version)
	fmt.Printf("  check value: 0x%08X\n", spec.checkValue)
	fmt.Printf("  symbols:\n")
	for i, name := range spec.names {
		fmt.Printf("    %d: %s\n", format.ScriptSymbolBase+i, name)
	}
	fmt.Printf("  definitions:\n")

	d := &payloadDecoder{data: spec.payload}
	d.decode(func(line string) { fmt.Printf("    %s\n", line) })
	if d.bad {
		return fmt.Errorf("%s: malformed engine payload", fileName)
	}
	return nil
}

// verify bootstraps an engine from the spec and loads the executable,
// reporting the header validation outcome. Returns the process exit code.
func verify(executable, specData []byte, dataSize int) (int, error) {
	spec, err := parseSpec(specData)
	if err != nil {
		return 1, err
	}

	appSpec := &asp.AppSpec{Spec: spec.payload, CheckValue: spec.checkValue}
	arena := make([]byte, dataSize)
	engine, result := asp.NewEngine(nil, arena, appSpec, nil)
	if result != asp.RunResultOK {
		return 1, fmt.Errorf("engine initialization failed: %v", result)
	}

	if result := engine.SealCode(executable); result != asp.RunResultOK {
		fmt.Printf("load failed: %v (state %v)\n", result, engine.State())
		return 1, nil
	}
	fmt.Printf("OK: executable matches spec (check value 0x%08X)\n", spec.checkValue)
	return 0, nil
}
