package appspec

import (
	"fmt"
	"io"
	"sort"
)

const generatedBanner = "/*** AUTO-GENERATED; DO NOT EDIT ***/\n\n"

const (
	minimumEngineVersion    = "1.2.3.0"
	minimumEngineVersionHex = "0x01020300"
)

// WriteApplicationHeader writes the C header exporting the application's
// spec object, one symbol macro per interned name, and a prototype for each
// distinct function internal name.
func (g *Generator) WriteApplicationHeader(w io.Writer) error {
	if err := g.Finalize(); err != nil {
		return err
	}

	fmt.Fprint(w, generatedBanner)
	fmt.Fprintf(w,
		"#ifndef ASP_APP_%s_DEF_H\n"+
			"#define ASP_APP_%s_DEF_H\n\n"+
			"#include <asp.h>\n\n"+
			"#ifdef __cplusplus\n"+
			"extern \"C\" {\n"+
			"#endif\n\n"+
			"extern AspAppSpec AspAppSpec_%s;\n\n",
		g.baseName, g.baseName, g.baseName)

	// Symbol macros, in name order.
	names := append([]string(nil), g.symbols.Names()...)
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "#define ASP_APP_%s_SYM_%s %d\n",
			g.baseName, name, g.symbol(name))
	}

	// Function prototypes, deduplicated by internal name.
	written := map[string]struct{}{}
	for _, module := range g.modulesByKey {
		for _, name := range module.definitionNames() {
			function, ok := module.definitions[name].(*Function)
			if !ok {
				continue
			}
			if _, ok := written[function.InternalName]; ok {
				continue
			}
			written[function.InternalName] = struct{}{}

			fmt.Fprint(w, "\n")
			if function.IsLibraryInterface {
				fmt.Fprint(w, "ASP_LIB_API ")
			}
			fmt.Fprintf(w, "AspRunResult %s\n    (AspEngine *,", function.InternalName)
			if len(function.Parameters) != 0 {
				fmt.Fprint(w, "\n")
			}
			for i := range function.Parameters {
				parameter := &function.Parameters[i]
				fmt.Fprintf(w, "     AspDataEntry *_%s,", parameter.Name)
				if parameter.IsGroup() {
					kind := "tuple"
					if parameter.Kind == ParameterDictionaryGroup {
						kind = "dictionary"
					}
					fmt.Fprintf(w, " /* %s group */", kind)
				}
				fmt.Fprint(w, "\n")
			}
			if len(function.Parameters) == 0 {
				fmt.Fprint(w, " ")
			} else {
				fmt.Fprint(w, "     ")
			}
			fmt.Fprint(w, "AspDataEntry **returnValue);\n")
		}
	}

	_, err := fmt.Fprint(w,
		"\n#ifdef __cplusplus\n}\n#endif\n\n#endif\n")
	return err
}

// WriteApplicationCode writes the C source defining the static dispatcher and
// the AspAppSpec object carrying the engine payload.
func (g *Generator) WriteApplicationCode(w io.Writer) error {
	if err := g.Finalize(); err != nil {
		return err
	}

	fmt.Fprint(w, generatedBanner)
	fmt.Fprintf(w, "#include \"%s.h\"\n#include <stdint.h>\n", g.fileBaseName)

	if g.engineSpecVersion >= 1 {
		fmt.Fprintf(w,
			"\n#if ASP_VERSION < %s\n"+
				"#error Asp engine must be version %s or greater\n"+
				"#endif\n",
			minimumEngineVersionHex, minimumEngineVersion)
	}

	// The dispatcher: an outer switch on the module symbol and an inner
	// switch on the function symbol, binding each parameter out of the local
	// namespace before tail-calling the host implementation.
	fmt.Fprintf(w,
		"\nstatic AspRunResult AspDispatch_%s\n"+
			"    (AspEngine *engine,\n"+
			"     int32_t moduleSymbol, int32_t functionSymbol,\n"+
			"     AspDataEntry *ns, AspDataEntry **returnValue)\n"+
			"{\n"+
			"    switch (moduleSymbol)\n"+
			"    {\n",
		g.baseName)

	appModuleCount := 0
	for _, module := range g.modulesByKey {
		moduleSymbol := int32(0)
		if len(module.key) != 0 {
			appModuleCount++
			moduleSymbol = int32(-appModuleCount)
		}

		fmt.Fprintf(w,
			"        case %d:\n"+
				"            switch (functionSymbol)\n"+
				"            {\n",
			moduleSymbol)

		for _, name := range module.definitionNames() {
			function, ok := module.definitions[name].(*Function)
			if !ok {
				continue
			}

			fmt.Fprintf(w,
				"                case %d:\n"+
					"                {\n",
				g.symbol(name))

			for i := range function.Parameters {
				parameter := &function.Parameters[i]
				parameterSymbol := g.symbol(parameter.Name)
				if parameter.IsGroup() {
					isDictionary := "false"
					if parameter.Kind == ParameterDictionaryGroup {
						isDictionary = "true"
					}
					fmt.Fprintf(w,
						"                    AspParameterResult _%s"+
							" = AspGroupParameterValue(engine, ns, %d, %s);\n"+
							"                    if (_%s.result != AspRunResult_OK)\n"+
							"                        return _%s.result;\n",
						parameter.Name, parameterSymbol, isDictionary,
						parameter.Name, parameter.Name)
				} else {
					fmt.Fprintf(w,
						"                    AspDataEntry *_%s"+
							" = AspParameterValue(engine, ns, %d);\n"+
							"                    if (_%s == 0)\n"+
							"                        return AspRunResult_OutOfDataMemory;\n",
						parameter.Name, parameterSymbol, parameter.Name)
				}
			}

			fmt.Fprintf(w, "                    return %s(engine, ", function.InternalName)
			for i := range function.Parameters {
				parameter := &function.Parameters[i]
				fmt.Fprintf(w, "_%s", parameter.Name)
				if parameter.IsGroup() {
					fmt.Fprint(w, ".value")
				}
				fmt.Fprint(w, ", ")
			}
			fmt.Fprint(w,
				"returnValue);\n"+
					"                }\n")
		}

		fmt.Fprint(w,
			"            }\n"+
				"            break;\n")
	}
	fmt.Fprint(w,
		"    }\n"+
			"    return AspRunResult_UndefinedAppFunction;\n"+
			"}\n")

	// The application specification object. The payload is written as an
	// escaped string literal, one line per record group.
	payload := g.EnginePayload()
	fmt.Fprintf(w, "\nAspAppSpec AspAppSpec_%s =\n{", g.baseName)
	for _, line := range g.payloadLines() {
		fmt.Fprint(w, "\n    \"")
		for _, b := range line {
			if b == 0 {
				fmt.Fprint(w, "\\0")
			} else {
				fmt.Fprintf(w, "\\x%02X", b)
			}
		}
		fmt.Fprint(w, "\"")
	}
	_, err := fmt.Fprintf(w, ",\n    %d, 0x%04X, AspDispatch_%s\n};\n",
		len(payload), g.checkValue&0xFFFF, g.baseName)
	return err
}

// payloadLines splits the engine payload into the line-sized chunks used for
// the generated string literal: the format header, then each module's import
// and module records, then each definition record.
func (g *Generator) payloadLines() [][]byte {
	payload := g.EnginePayload()
	var lines [][]byte
	offset := 0
	take := func(n int) {
		if n == 0 {
			return
		}
		lines = append(lines, payload[offset:offset+n])
		offset += n
	}

	symbolSize := 0
	if g.engineSpecVersion >= 1 {
		take(2 + 1 + 4)
		symbolSize = 4
	}
	appModuleCount := 0
	for _, module := range g.modulesByKey {
		if len(module.key) != 0 {
			appModuleCount++
			take(len(module.key) * (1 + symbolSize + 4))
			take(1)
		}
		for _, name := range module.definitionNames() {
			switch definition := module.definitions[name].(type) {
			case *Assignment:
				if definition.Value == nil {
					if g.engineSpecVersion == 0 {
						take(1)
					}
					continue
				}
				take(1 + symbolSize + len(definition.Value.appendSpec(nil)))
			case *Function:
				size := 1 + symbolSize
				if len(definition.Parameters) > maxCountPrefixParameters {
					size += 4
				}
				for i := range definition.Parameters {
					size += 4
					if d := definition.Parameters[i].Default; d != nil {
						size += len(d.appendSpec(nil))
					}
				}
				take(size)
			}
		}
	}
	return lines
}
