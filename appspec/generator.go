package appspec

import (
	"fmt"
	"io"
	"sort"
)

// importInfo tracks the module a name imports and every source location that
// established the binding, for conflict reporting.
type importInfo struct {
	moduleName string
	sites      []SourceLocation
}

// moduleDefinitions holds the definitions parsed for one module, keyed by
// name.
type moduleDefinitions struct {
	name        string
	definitions map[string]Definition
}

// moduleSpec is one module of the finalized specification: its key (the
// sorted set of import names under which it is visible, empty for the system
// module) and its definitions.
type moduleSpec struct {
	key         []string
	name        string
	definitions map[string]Definition
}

// definitionNames returns the module's definition names in name order, which
// is the canonical order for symbol assignment, check-value contribution and
// binary-spec emission.
func (m *moduleSpec) definitionNames() []string {
	names := make([]string, 0, len(m.definitions))
	for name := range m.definitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Generator accumulates an application specification from parsed statements
// and writes the binary spec and the application C code.
type Generator struct {
	errorStream io.Writer
	errorCount  int

	fileBaseName string
	baseName     string

	compilerSpecVersion uint8
	engineSpecVersion   uint8

	symbols *SymbolTable

	newFile               bool
	isLibrary             bool
	currentSourceFileName string
	currentModuleName     string
	currentLocation       SourceLocation

	imports         map[string]*importInfo
	importedModules map[string]map[string][]SourceLocation
	moduleNames     map[string]struct{}
	modulesToImport []string

	definitionsByModuleName map[string]*moduleDefinitions
	currentModule           *moduleDefinitions

	// Populated by Finalize.
	finalized              bool
	modulesByKey           []*moduleSpec
	checkValue             uint32
	symbolBlock            []string
	symbolBlockImportCount int
}

// NewGenerator returns a generator reporting diagnostics to errorStream. The
// base name, derived from the source file name, seeds the names used in the
// generated C code; characters invalid in a C identifier become underscores.
func NewGenerator(errorStream io.Writer, fileBaseName string) *Generator {
	baseName := make([]byte, len(fileBaseName))
	for i := 0; i < len(fileBaseName); i++ {
		c := fileBaseName[i]
		if !isDigit(int(c)) && !isNameStart(int(c)) {
			c = '_'
		}
		baseName[i] = c
	}

	g := &Generator{
		errorStream:             errorStream,
		fileBaseName:            fileBaseName,
		baseName:                string(baseName),
		compilerSpecVersion:     1,
		symbols:                 NewSymbolTable(),
		newFile:                 true,
		imports:                 map[string]*importInfo{},
		importedModules:         map[string]map[string][]SourceLocation{},
		moduleNames:             map[string]struct{}{},
		definitionsByModuleName: map[string]*moduleDefinitions{},
	}

	// The system module is always present and receives top-level definitions.
	g.currentModule = &moduleDefinitions{definitions: map[string]Definition{}}
	g.definitionsByModuleName[""] = g.currentModule
	return g
}

// ErrorCount returns the number of errors reported so far.
func (g *Generator) ErrorCount() int {
	return g.errorCount
}

// BaseName returns the sanitized base name used in generated C identifiers.
func (g *Generator) BaseName() string {
	return g.baseName
}

// CurrentSource switches the source file used for diagnostics. newFile marks
// the start of a fresh file, re-enabling the lib statement.
func (g *Generator) CurrentSource(
	fileName string, newFile, isLibrary bool, location SourceLocation,
) {
	g.newFile = newFile
	g.isLibrary = isLibrary
	g.currentSourceFileName = fileName
	g.currentLocation = location
}

// IsLibrary reports whether the current source file declared itself a
// library.
func (g *Generator) IsLibrary() bool {
	return g.isLibrary
}

// CurrentSourceFileName returns the file currently being processed.
func (g *Generator) CurrentSourceFileName() string {
	return g.currentSourceFileName
}

// CurrentSourceLocation returns the location of the last processed element.
func (g *Generator) CurrentSourceLocation() SourceLocation {
	return g.currentLocation
}

// addModule queues a module for processing the first time it is referenced.
func (g *Generator) addModule(moduleName string) {
	if _, ok := g.moduleNames[moduleName]; ok {
		return
	}
	g.moduleNames[moduleName] = struct{}{}
	g.modulesToImport = append(g.modulesToImport, moduleName)
}

// NextModule pops the next module whose definitions should be parsed and
// makes it current. It returns false when no modules remain.
func (g *Generator) NextModule() (string, bool) {
	if len(g.modulesToImport) == 0 {
		g.currentModuleName = ""
		return "", false
	}
	moduleName := g.modulesToImport[0]
	g.modulesToImport = g.modulesToImport[1:]
	g.currentModuleName = moduleName

	module, ok := g.definitionsByModuleName[moduleName]
	if !ok {
		module = &moduleDefinitions{
			name:        moduleName,
			definitions: map[string]Definition{},
		}
		g.definitionsByModuleName[moduleName] = module
	}
	g.currentModule = module
	return moduleName, true
}

// ImportSites returns the source locations of every import of moduleName,
// used to report a module whose spec file cannot be found.
func (g *Generator) ImportSites(moduleName string) []SourceLocation {
	var sites []SourceLocation
	for _, importName := range sortedKeys(g.importedModules[moduleName]) {
		sites = append(sites, g.importedModules[moduleName][importName]...)
	}
	return sites
}

// DeclareAsLibrary handles the lib statement, which must be the first
// statement of its file.
func (g *Generator) DeclareAsLibrary(location SourceLocation) {
	if !g.newFile {
		g.reportError("lib must be the first statement", location)
		return
	}
	g.newFile = false
	g.isLibrary = true
}

// ImportModule handles an import statement, binding asName to moduleName.
// An import name may never be rebound to a different module.
func (g *Generator) ImportModule(
	moduleName string, moduleNameLocation SourceLocation,
	asName string, asNameLocation SourceLocation,
) {
	g.newFile = false

	if moduleName == "" {
		g.reportError("module name cannot be empty", moduleNameLocation)
		return
	}
	if g.checkReservedName(asName, asNameLocation) {
		return
	}

	if existing, ok := g.imports[asName]; ok && existing.moduleName != moduleName {
		g.reportError(fmt.Sprintf(
			"cannot import module '%s' as '%s'", moduleName, asName),
			asNameLocation)
		for _, site := range existing.sites {
			g.reportError(fmt.Sprintf(
				"... module '%s' was previously imported as '%s' here",
				existing.moduleName, asName), site)
		}
		return
	}

	info, ok := g.imports[asName]
	if !ok {
		info = &importInfo{moduleName: moduleName}
		g.imports[asName] = info
	}
	info.sites = append(info.sites, asNameLocation)

	byImportName, ok := g.importedModules[moduleName]
	if !ok {
		byImportName = map[string][]SourceLocation{}
		g.importedModules[moduleName] = byImportName
	}
	byImportName[asName] = append(byImportName[asName], asNameLocation)

	g.addModule(moduleName)
	g.currentLocation = asNameLocation
}

// MakeAssignment handles a variable assignment, or a symbol-only declaration
// when value is nil.
func (g *Generator) MakeAssignment(
	name string, location SourceLocation, value *Literal,
) {
	g.newFile = false

	if value != nil && g.checkReservedName(name, location) {
		return
	}

	g.clearDefinition(name, location, true)
	g.currentModule.definitions[name] = &Assignment{Value: value}
	g.currentLocation = location
}

// MakeFunction handles a function definition. Parameter-order violations are
// reported but do not drop the definition.
func (g *Generator) MakeFunction(
	name string, location SourceLocation,
	parameters []Parameter, internalName string,
) {
	g.newFile = false

	if g.checkReservedName(name, location) {
		return
	}

	var v functionValidator
	for i := range parameters {
		if err := v.addParameter(&parameters[i]); err != nil {
			g.reportError(err.Error(), location)
		}
	}

	g.clearDefinition(name, location, true)
	g.currentModule.definitions[name] = &Function{
		IsLibraryInterface: g.isLibrary,
		InternalName:       internalName,
		Parameters:         parameters,
	}
	g.currentLocation = location
}

// DeleteDefinition handles a del statement.
func (g *Generator) DeleteDefinition(names []string, location SourceLocation) {
	g.newFile = false

	for _, name := range names {
		if _, ok := g.currentModule.definitions[name]; !ok {
			g.reportError(fmt.Sprintf("cannot delete '%s'; not found", name), location)
			continue
		}
		g.clearDefinition(name, location, false)
	}
}

// clearDefinition drops any previous definition with the given name from the
// current module, warning about the redefinition when applicable.
func (g *Generator) clearDefinition(name string, location SourceLocation, warn bool) {
	if _, ok := g.currentModule.definitions[name]; !ok {
		return
	}
	if warn {
		g.reportWarning(fmt.Sprintf("name '%s' redefined", name), location)
	}
	delete(g.currentModule.definitions, name)
}

func (g *Generator) checkReservedName(name string, location SourceLocation) bool {
	if IsNameReserved(name) {
		g.reportError(fmt.Sprintf("cannot redefine reserved name '%s'", name), location)
		return true
	}
	return false
}

// ReportError reports an error at the given location and counts it.
func (g *Generator) ReportError(message string, location SourceLocation) {
	g.reportError(message, location)
}

func (g *Generator) reportError(message string, location SourceLocation) {
	g.reportMessage(message, location, true)
	g.errorCount++
}

func (g *Generator) reportWarning(message string, location SourceLocation) {
	g.reportMessage(message, location, false)
}

func (g *Generator) reportMessage(message string, location SourceLocation, isError bool) {
	if location.Defined() {
		fmt.Fprintf(g.errorStream, "%s:%d:%d: ",
			location.FileName, location.Line, location.Column)
	}
	kind := "Warning"
	if isError {
		kind = "Error"
	}
	fmt.Fprintf(g.errorStream, "%s: %s\n", kind, message)
}

// Finalize reorganizes modules into module-key order, settles the spec format
// versions, assigns all symbols, and computes the check value. It must be
// called once, after all source has been processed and before any output is
// written.
func (g *Generator) Finalize() error {
	if g.finalized {
		return nil
	}

	// Key each module by the set of import names that reference it, skipping
	// any application module that no import name refers to. The system
	// module keeps its empty key and sorts first.
	for _, moduleName := range sortedKeys(g.definitionsByModuleName) {
		module := g.definitionsByModuleName[moduleName]

		var key []string
		for importName := range g.importedModules[moduleName] {
			key = append(key, importName)
		}
		if len(key) == 0 && moduleName != "" {
			continue
		}
		sort.Strings(key)

		g.modulesByKey = append(g.modulesByKey, &moduleSpec{
			key:         key,
			name:        moduleName,
			definitions: module.definitions,
		})
	}
	sort.Slice(g.modulesByKey, func(i, j int) bool {
		return lessStringSlices(g.modulesByKey[i].key, g.modulesByKey[j].key)
	})

	// Application modules require the newer spec formats, as do functions
	// with more parameters than a count prefix byte can carry.
	if len(g.modulesByKey) > 1 {
		if g.compilerSpecVersion < 2 {
			g.compilerSpecVersion = 2
		}
		if g.engineSpecVersion < 1 {
			g.engineSpecVersion = 1
		}
	}
	if g.engineSpecVersion < 1 {
	scan:
		for _, module := range g.modulesByKey {
			for _, definition := range module.definitions {
				if function, ok := definition.(*Function); ok &&
					len(function.Parameters) > maxCountPrefixParameters {
					g.engineSpecVersion = 1
					break scan
				}
			}
		}
	}

	if err := g.assignSymbols(); err != nil {
		return err
	}

	g.checkValue = g.computeCheckValue()
	g.finalized = true
	return nil
}

// assignSymbols interns every import, definition, and parameter name in the
// canonical order, recording the names newly assigned for the compiler-spec
// symbol block.
func (g *Generator) assignSymbols() error {
	assign := func(name string) error {
		if g.symbols.IsDefined(name) {
			return nil
		}
		if _, err := g.symbols.Symbol(name); err != nil {
			return err
		}
		g.symbolBlock = append(g.symbolBlock, name)
		return nil
	}

	for _, importName := range sortedKeys(g.imports) {
		if err := assign(importName); err != nil {
			return err
		}
	}
	g.symbolBlockImportCount = len(g.symbolBlock)

	for _, module := range g.modulesByKey {
		for _, name := range module.definitionNames() {
			if err := assign(name); err != nil {
				return err
			}
		}
	}
	for _, module := range g.modulesByKey {
		for _, name := range module.definitionNames() {
			function, ok := module.definitions[name].(*Function)
			if !ok {
				continue
			}
			for i := range function.Parameters {
				if err := assign(function.Parameters[i].Name); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Symbol returns the symbol assigned to name, if any. Assignment happens in
// Finalize; hosts use this to address bindings the way generated C code uses
// the symbol macros.
func (g *Generator) Symbol(name string) (int32, bool) {
	return g.symbols.Lookup(name)
}

// symbol returns the symbol previously assigned to name. It is only valid
// after Finalize.
func (g *Generator) symbol(name string) int32 {
	symbol, _ := g.symbols.Symbol(name)
	return symbol
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func lessStringSlices(a, b []string) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}
