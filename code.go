package asp

import (
	"encoding/binary"

	"github.com/asplang/asp/internal/format"
)

// Executable header: magic, two version bytes, and the 4-byte big-endian
// check value.
const headerSize = 12

// maxCodeSize bounds code addresses to what a 28-bit word can hold.
const maxCodeSize = 1 << format.WordBitSize

// CodeReader supplies executable bytes for paged code loading. It fills
// buffer from the given offset of the executable identified by id, returning
// the number of bytes read.
type CodeReader func(id interface{}, offset uint32, buffer []byte) (int, error)

// codePage is one slot of the paged-code cache. The slot table is a Go
// slice; SetCodePaging charges its size against the tail of the data arena
// by lowering the arena's end. Page contents live in the code area.
type codePage struct {
	index uint32
	age   int
}

// SetCodePaging configures the paged code-loading mode: pageCount cache
// slots of pageSize bytes each, carved from the code area, with reader
// supplying pages on a miss. The page table overhead is taken from the tail
// of the data arena. A pageCount of zero disables paging. The engine is
// reset.
func (e *Engine) SetCodePaging(pageCount int, pageSize int, reader CodeReader) RunResult {
	if e.inApp || e.state != EngineStateReset {
		return RunResultInvalidState
	}
	if pageCount != 0 && (pageSize < headerSize || reader == nil) {
		return RunResultValueOutOfRange
	}
	if e.codeArea == nil {
		return RunResultInitializationError
	}

	if pageSize == 0 {
		pageCount = 0
	}
	if pageCount*pageSize > len(e.codeArea) {
		return RunResultInitializationError
	}
	pageEntries := (pageCount*pageEntrySize + DataEntrySize - 1) / DataEntrySize
	totalEntries := uint32(len(e.data))
	if uint32(pageEntries) >= totalEntries {
		return RunResultOutOfDataMemory
	}

	e.dataEndIndex = totalEntries - uint32(pageEntries)
	e.pageCount = pageCount
	e.pageSize = pageSize
	e.codeReader = reader
	e.cachedPages = make([]codePage, pageCount)

	return e.Reset()
}

// pageEntrySize is the per-slot bookkeeping cost charged against the arena.
const pageEntrySize = 8

// AddCode loads a chunk of executable into the code area. The first chunks
// feed the header, which is validated as soon as it is complete; the rest is
// buffered until Seal.
func (e *Engine) AddCode(code []byte) RunResult {
	switch e.state {
	case EngineStateLoadError:
		return e.loadResult
	case EngineStateReset:
		e.state = EngineStateLoadingHeader
		e.headerIndex = 0
	case EngineStateLoadingHeader, EngineStateLoadingCode:
	default:
		return RunResultInvalidState
	}
	if e.codeArea == nil {
		return RunResultInvalidState
	}

	if e.state == EngineStateLoadingHeader {
		n := copy(e.header[e.headerIndex:], code)
		e.headerIndex += n
		code = code[n:]
		if e.headerIndex < headerSize {
			return e.loadResult
		}
		e.processCodeHeader()
		if e.loadResult != RunResultOK {
			return e.loadResult
		}
		e.state = EngineStateLoadingCode
	}

	if e.codeEndIndex+len(code) > len(e.codeArea) {
		e.state = EngineStateLoadError
		e.loadResult = RunResultOutOfCodeMemory
		return e.loadResult
	}
	copy(e.codeArea[e.codeEndIndex:], code)
	e.codeEndIndex += len(code)
	return e.loadResult
}

// Seal completes incremental loading and makes the engine ready.
func (e *Engine) Seal() RunResult {
	if e.state != EngineStateLoadingCode {
		e.state = EngineStateLoadError
		e.loadResult = RunResultInvalidFormat
		return e.loadResult
	}

	e.code = e.codeArea[:e.codeEndIndex]
	e.codeEndKnown = true
	e.state = EngineStateReady
	e.runResult = RunResultOK
	return e.loadResult
}

// SealCode loads a complete executable in one shot, referencing the caller's
// buffer directly instead of copying into the code area.
func (e *Engine) SealCode(code []byte) RunResult {
	if e.state == EngineStateLoadError {
		return e.loadResult
	}
	if e.state != EngineStateReset {
		return RunResultInvalidState
	}

	if len(code) < headerSize {
		e.state = EngineStateLoadError
		e.loadResult = RunResultInvalidFormat
		return e.loadResult
	}
	copy(e.header[:], code[:headerSize])
	e.headerIndex = headerSize
	e.processCodeHeader()
	if e.loadResult != RunResultOK {
		return e.loadResult
	}

	e.code = code[headerSize:]
	e.codeEndIndex = len(code) - headerSize
	e.codeEndKnown = true
	e.state = EngineStateReady
	e.runResult = RunResultOK
	return e.loadResult
}

// PageCode starts paged execution of the executable identified by id. The
// first page, which contains the header, is loaded and validated.
func (e *Engine) PageCode(id interface{}) RunResult {
	if e.state != EngineStateReset || e.codeArea == nil || e.pageCount == 0 {
		return RunResultInvalidState
	}

	e.pagedCodeID = id
	e.headerIndex = headerSize
	if r := e.loadCodePage(0); r != RunResultOK {
		e.state = EngineStateLoadError
		e.loadResult = RunResultInvalidFormat
		return e.loadResult
	}
	copy(e.header[:], e.codeArea[:headerSize])
	e.processCodeHeader()
	if e.loadResult != RunResultOK {
		return e.loadResult
	}

	e.state = EngineStateReady
	e.runResult = RunResultOK
	return e.loadResult
}

// loadCodePage ensures the given executable page is cached, reading it
// through the host's reader on a miss and evicting the least recently used
// slot.
func (e *Engine) loadCodePage(pageIndex uint32) RunResult {
	e.nextPageAge++
	for i := range e.cachedPages {
		page := &e.cachedPages[i]
		if page.age >= 0 && page.index == pageIndex {
			page.age = e.nextPageAge
			return RunResultOK
		}
	}

	// Miss: evict the least recently used slot.
	slot := 0
	for i := range e.cachedPages {
		if e.cachedPages[i].age < 0 {
			slot = i
			break
		}
		if e.cachedPages[i].age < e.cachedPages[slot].age {
			slot = i
		}
	}

	buffer := e.codeArea[slot*e.pageSize : (slot+1)*e.pageSize]
	offset := pageIndex * uint32(e.pageSize)
	n, err := e.codeReader(e.pagedCodeID, offset, buffer)
	if err != nil || n <= 0 {
		return RunResultInvalidFormat
	}
	e.cachedPages[slot] = codePage{index: pageIndex, age: e.nextPageAge}
	e.codePageReadCount++
	return RunResultOK
}

// CodePageReadCount returns the number of page reads performed, optionally
// resetting the counter.
func (e *Engine) CodePageReadCount(reset bool) int {
	count := e.codePageReadCount
	if reset {
		e.codePageReadCount = 0
	}
	return count
}

// processCodeHeader validates the executable header against the loaded spec:
// the AspE signature, an exact engine version match, and the check value.
func (e *Engine) processCodeHeader() {
	if e.appSpec == nil {
		e.loadResult = RunResultInvalidState
		return
	}

	if string(e.header[:4]) != format.ExecutableMagic {
		e.state = EngineStateLoadError
		e.loadResult = RunResultInvalidFormat
		return
	}

	e.version[0] = e.header[4]
	e.version[1] = e.header[5]
	if e.version[0] != format.EngineVersionMajor ||
		e.version[1] != format.EngineVersionMinor {
		e.state = EngineStateLoadError
		e.loadResult = RunResultInvalidVersion
		return
	}

	checkValue := binary.BigEndian.Uint32(e.header[8:12])
	if checkValue != e.appSpec.CheckValue {
		e.state = EngineStateLoadError
		e.loadResult = RunResultInvalidCheckValue
		return
	}
}
