// Command aspg generates a binary application specification and matching C
// code from a spec source (*.asps) file.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/asplang/asp/appspec"
	"github.com/asplang/asp/internal/format"
	"github.com/asplang/asp/internal/pathsearch"
)

const sourceSuffix = ".asps"

var (
	outputCodeBase string
	outputSpecBase string
	quiet          bool
	showVersion    bool
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	exitCode := 0

	cmd := &cobra.Command{
		Use:   "aspg [flags] SOURCE" + sourceSuffix,
		Short: "Generate a binary application specification file and C code",
		Long: "Generate a binary application specification file and C code " +
			"from the source file (*" + sourceSuffix + ") given as SOURCE.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				return nil
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				fmt.Printf("Asp generator version %d.%d.%d.%d\n",
					format.EngineVersionMajor, format.EngineVersionMinor,
					format.EngineVersionPatch, format.EngineVersionTweak)
				return nil
			}
			exitCode = generate(args[0])
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputCodeBase, "code", "c", "",
		"Write generated C code files to CODE.h and CODE.c instead of basing "+
			"file names on the SOURCE file name. If CODE ends with a path "+
			"separator, the files are written into that directory.")
	cmd.Flags().StringVarP(&outputSpecBase, "spec", "s", "",
		"Write the binary spec file to SPEC.aspec instead of basing the file "+
			"name on the SOURCE file name. If SPEC ends with a path separator, "+
			"the file is written into that directory.")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false,
		"Don't output usual generator information.")
	cmd.Flags().BoolVarP(&showVersion, "version", "v", false,
		"Print version information and exit.")

	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return exitCode
}

func generate(sourceFileName string) int {
	if !strings.HasSuffix(sourceFileName, sourceSuffix) ||
		len(sourceFileName) == len(sourceSuffix) {
		fmt.Fprintf(os.Stderr, "File name must end with %s\n", sourceSuffix)
		return 1
	}

	baseName := filepath.Base(sourceFileName)
	baseName = baseName[:len(baseName)-len(sourceSuffix)]
	if baseName == "" {
		fmt.Fprintf(os.Stderr, "Invalid source file name: %s\n", sourceFileName)
		return 1
	}

	specFileName := outputFileName(outputSpecBase, baseName, ".aspec")
	codeBase := outputCodeBase
	if codeBase == "" {
		codeBase = baseName
	} else if endsWithSeparator(codeBase) {
		codeBase = filepath.Join(codeBase, baseName)
	}
	headerFileName := codeBase + ".h"
	codeFileName := codeBase + ".c"

	// Includes and module spec files are searched in the source file's
	// directory, then along ASP_SPEC_INCLUDE.
	v := viper.New()
	v.SetDefault("spec_include", "")
	if err := v.BindEnv("spec_include", pathsearch.SpecIncludeVar); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	directories := append(
		[]string{filepath.Dir(sourceFileName)},
		pathsearch.Split(v.GetString("spec_include"))...)

	generator := appspec.NewGenerator(os.Stderr, baseName)
	parser := appspec.NewParser(generator, pathsearch.Resolver(directories...))
	if err := parser.ParseFile(sourceFileName); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	if generator.ErrorCount() > 0 {
		fmt.Fprintln(os.Stderr, "Ended in ERROR")
		return 1
	}

	type output struct {
		fileName string
		write    func(*os.File) error
	}
	outputs := []output{
		{specFileName, func(f *os.File) error { return generator.WriteCompilerSpec(f) }},
		{headerFileName, func(f *os.File) error { return generator.WriteApplicationHeader(f) }},
		{codeFileName, func(f *os.File) error { return generator.WriteApplicationCode(f) }},
	}

	removeAll := func() {
		for _, o := range outputs {
			os.Remove(o.fileName)
		}
	}

	if !quiet {
		fmt.Printf("Writing spec to %s\n", specFileName)
		fmt.Printf("Writing code to %s and %s\n", headerFileName, codeFileName)
	}
	for _, o := range outputs {
		f, err := os.Create(o.fileName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating %s: %v\n", o.fileName, err)
			removeAll()
			return 1
		}
		writeErr := o.write(f)
		closeErr := f.Close()
		if writeErr == nil {
			writeErr = closeErr
		}
		if writeErr != nil {
			fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", o.fileName, writeErr)
			removeAll()
			return 2
		}
	}
	return 0
}

func outputFileName(override, baseName, suffix string) string {
	switch {
	case override == "":
		return baseName + suffix
	case endsWithSeparator(override):
		return filepath.Join(override, baseName) + suffix
	case strings.HasSuffix(override, suffix):
		return override
	}
	return override + suffix
}

func endsWithSeparator(path string) bool {
	return strings.HasSuffix(path, "/") || strings.HasSuffix(path, string(os.PathSeparator))
}
