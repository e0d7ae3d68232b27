package asp

import "unsafe"

// Engine is one script execution engine. All of its objects live in the
// caller-supplied data arena; the engine performs no dynamic allocation from
// the operating system on its hot paths. A single engine must not be used
// concurrently; hosts wanting parallelism run one engine per goroutine, each
// with its own arena.
type Engine struct {
	context interface{}
	appSpec *AppSpec

	// Code.
	codeArea     []byte
	code         []byte
	header       [headerSize]byte
	headerIndex  int
	codeEndIndex int
	codeEndKnown bool
	version      [2]byte

	// Code paging.
	pageCount         int
	pageSize          int
	codeReader        CodeReader
	cachedPages       []codePage
	pagedCodeID       interface{}
	codePageReadCount int
	nextPageAge       int

	// Data arena.
	data               []DataEntry
	dataEndIndex       uint32
	freeListIndex      uint32
	freeCount          uint32
	lowFreeCount       uint32
	destructureScratch []uint32

	state      EngineState
	loadResult RunResult
	runResult  RunResult

	pc                  uint32
	instructionAddress  uint32
	cycleDetectionLimit uint32
	inApp               bool

	// Bootstrap products.
	noneSingleton     *DataEntry
	ellipsisSingleton *DataEntry
	trueSingleton     *DataEntry
	falseSingleton    *DataEntry
	stackTop          *DataEntry
	stackCount        uint32
	modules           *DataEntry
	systemNamespace   *DataEntry
	systemModule      *DataEntry
	module            *DataEntry
	localNamespace    *DataEntry
	globalNamespace   *DataEntry

	arguments []string
}

// NewEngine initializes an engine over a caller-supplied code area and data
// arena and resets it, bootstrapping the application's definitions from the
// spec. The code area may be empty when code will be supplied via SealCode.
func NewEngine(codeArea, dataArea []byte, spec *AppSpec, context interface{}) (*Engine, RunResult) {
	if (len(codeArea) != 0 && len(codeArea) < headerSize) ||
		len(codeArea) > maxCodeSize || len(dataArea) < DataEntrySize {
		return nil, RunResultInitializationError
	}

	entryCount := uintptr(len(dataArea)) / DataEntrySize
	data := unsafe.Slice((*DataEntry)(unsafe.Pointer(&dataArea[0])), entryCount)

	e := &Engine{
		context:             context,
		appSpec:             spec,
		codeArea:            codeArea,
		data:                data,
		dataEndIndex:        uint32(entryCount),
		cycleDetectionLimit: uint32(entryCount / 2),
	}
	if r := e.Reset(); r != RunResultOK {
		return nil, r
	}
	return e, RunResultOK
}

// Context returns the host context supplied at construction.
func (e *Engine) Context() interface{} {
	return e.context
}

// SetArguments records the host argv, materialized into the arguments tuple
// on the next Reset.
func (e *Engine) SetArguments(arguments []string) RunResult {
	if e.inApp {
		return RunResultInvalidState
	}
	e.arguments = arguments
	return RunResultOK
}

// Reset clears the arena and rebuilds the engine's initial state: the None
// singleton at entry zero, the modules collection, the system module with
// its namespace and arguments tuple, and the application's definitions
// decoded from the spec. Code loading state is also discarded.
func (e *Engine) Reset() RunResult {
	if e.inApp {
		return RunResultInvalidState
	}

	e.state = EngineStateReset
	e.headerIndex = 0
	e.loadResult = RunResultOK
	e.runResult = RunResultOK
	e.version = [2]byte{}
	for i := range e.codeArea {
		e.codeArea[i] = 0
	}
	e.code = nil
	e.codeEndIndex = 0
	e.pc = 0
	e.instructionAddress = 0
	e.codeEndKnown = false
	e.pagedCodeID = nil
	e.codePageReadCount = 0
	for i := range e.cachedPages {
		e.cachedPages[i] = codePage{age: -1}
	}

	return e.resetData()
}

// Restart returns a loaded engine to the ready state without reloading code.
func (e *Engine) Restart() RunResult {
	if e.inApp {
		return RunResultInvalidState
	}
	switch e.state {
	case EngineStateReady, EngineStateRunning, EngineStateRunError, EngineStateEnded:
	default:
		return RunResultInvalidState
	}

	e.state = EngineStateReady
	e.runResult = RunResultOK
	e.pc = 0
	e.instructionAddress = 0
	e.codePageReadCount = 0
	return e.resetData()
}

func (e *Engine) resetData() RunResult {
	e.clearData()

	// The None singleton must land at index zero so that a zero index can
	// double as "no entry" everywhere else. This is the only allocation for
	// which a zero return is valid.
	if e.freeCount == 0 {
		return RunResultOutOfDataMemory
	}
	noneIndex := e.alloc()
	if r := e.assert(noneIndex == 0); r != RunResultOK {
		return r
	}
	e.noneSingleton = &e.data[0]
	e.noneSingleton.setType(DataTypeNone)
	e.noneSingleton.setUseCount(1)

	e.ellipsisSingleton = nil
	e.falseSingleton = nil
	e.trueSingleton = nil

	e.stackTop = nil
	e.stackCount = 0

	// The modules collection and the system module, which receives top-level
	// application definitions.
	e.modules = e.allocEntry(DataTypeNamespace)
	if e.modules == nil {
		return RunResultOutOfDataMemory
	}
	e.systemNamespace = e.allocEntry(DataTypeNamespace)
	if e.systemNamespace == nil {
		return RunResultOutOfDataMemory
	}
	e.systemModule = e.allocEntry(DataTypeModule)
	if e.systemModule == nil {
		return RunResultOutOfDataMemory
	}
	e.systemModule.setModuleIsApp(true)
	e.systemModule.setModuleSymbol(systemModuleSymbol)
	e.systemModule.setModuleNamespaceIndex(e.entryIndex(e.systemNamespace))
	e.systemModule.setModuleIsLoaded(true)
	addModule := e.treeTryInsertBySymbol(e.modules, systemModuleSymbol, e.systemModule)
	if addModule.result != RunResultOK {
		return addModule.result
	}
	e.Unref(e.systemModule)
	e.module = e.systemModule

	// The arguments tuple, bound in the system namespace.
	arguments := e.allocEntry(DataTypeTuple)
	if arguments == nil {
		return RunResultOutOfDataMemory
	}
	addArguments := e.treeTryInsertBySymbol(
		e.systemNamespace, systemArgumentsSymbol, arguments)
	if addArguments.result != RunResultOK {
		return addArguments.result
	}
	e.Unref(arguments)
	if r := e.initializeArguments(arguments); r != RunResultOK {
		return r
	}

	e.localNamespace = e.systemNamespace
	e.globalNamespace = e.systemNamespace

	return e.initializeAppDefinitions()
}

// initializeArguments fills the arguments tuple from the recorded host argv.
func (e *Engine) initializeArguments(tuple *DataEntry) RunResult {
	for _, argument := range e.arguments {
		value := e.NewString([]byte(argument))
		if value == nil {
			return RunResultOutOfDataMemory
		}
		r := e.sequenceAppend(tuple, value)
		e.Unref(value)
		if r.result != RunResultOK {
			return r.result
		}
	}
	return RunResultOK
}

// assert records an assertion failure as an internal error. Assertion
// failures are programmer errors surfaced through the normal result channel
// rather than a panic.
func (e *Engine) assert(condition bool) RunResult {
	if condition {
		return RunResultOK
	}
	if e.runResult == RunResultOK {
		e.runResult = RunResultInternalError
	}
	return RunResultInternalError
}

// State returns the engine's lifecycle state.
func (e *Engine) State() EngineState {
	return e.state
}

// LastResult returns the retained result of the first failed operation.
func (e *Engine) LastResult() RunResult {
	return e.runResult
}

// IsReady reports whether the engine has loaded code and can start running.
func (e *Engine) IsReady() bool {
	return e.state == EngineStateReady
}

// IsRunning reports whether the engine is executing.
func (e *Engine) IsRunning() bool {
	return e.state == EngineStateRunning
}

// IsRunnable reports whether the engine is ready or running.
func (e *Engine) IsRunnable() bool {
	return e.state == EngineStateReady || e.state == EngineStateRunning
}

// ProgramCounter returns the current program counter.
func (e *Engine) ProgramCounter() uint32 {
	return e.pc
}

// CodeVersion returns the engine version read from the executable header.
func (e *Engine) CodeVersion() [2]byte {
	return e.version
}

// MaxCodeSize returns the capacity of the code area.
func (e *Engine) MaxCodeSize() int {
	return len(e.codeArea)
}

// MaxDataSize returns the number of usable arena entries.
func (e *Engine) MaxDataSize() uint32 {
	return e.dataEndIndex
}

// FreeCount returns the number of free arena entries.
func (e *Engine) FreeCount() uint32 {
	return e.freeCount
}

// LowFreeCount returns the minimum free count ever observed, for tests and
// host observability.
func (e *Engine) LowFreeCount() uint32 {
	return e.lowFreeCount
}

// SetCycleDetectionLimit bounds every iterative descent in the engine.
func (e *Engine) SetCycleDetectionLimit(limit uint32) RunResult {
	e.cycleDetectionLimit = limit
	return RunResultOK
}

// CycleDetectionLimit returns the configured bound.
func (e *Engine) CycleDetectionLimit() uint32 {
	return e.cycleDetectionLimit
}
