package asp

import (
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/asplang/asp/internal/format"
)

// DataType tags every arena entry. Values at or below dataTypeObjectMask are
// objects the script surfaces as values; the rest are support entries owned
// by the object they structurally compose.
type DataType = uint8

const (
	DataTypeNone            DataType = 0x00
	DataTypeEllipsis        DataType = 0x01
	DataTypeBoolean         DataType = 0x02
	DataTypeInteger         DataType = 0x03
	DataTypeFloat           DataType = 0x04
	DataTypeSymbol          DataType = 0x06
	DataTypeRange           DataType = 0x07
	DataTypeString          DataType = 0x08
	DataTypeTuple           DataType = 0x09
	DataTypeList            DataType = 0x0A
	DataTypeSet             DataType = 0x0B
	DataTypeDictionary      DataType = 0x0D
	DataTypeFunction        DataType = 0x0F
	DataTypeModule          DataType = 0x10
	DataTypeReverseIterator DataType = 0x15
	DataTypeForwardIterator DataType = 0x16
	DataTypeAppInteger      DataType = 0x1A
	DataTypeAppPointer      DataType = 0x1B
	DataTypeType            DataType = 0x1F

	dataTypeObjectMask DataType = 0x3F

	DataTypeCodeAddress    DataType = 0x40
	DataTypeStackEntry     DataType = 0x50
	DataTypeFrame          DataType = 0x52
	DataTypeAppFrame       DataType = 0x54
	DataTypeElement        DataType = 0x62
	DataTypeStringFragment DataType = 0x64
	DataTypeKeyValuePair   DataType = 0x66
	DataTypeNamespace      DataType = 0x70
	DataTypeSetNode        DataType = 0x74
	DataTypeDictionaryNode DataType = 0x78
	DataTypeNamespaceNode  DataType = 0x7C
	DataTypeTreeLinksNode  DataType = 0x7D
	DataTypeParameter      DataType = 0x80
	DataTypeParameterList  DataType = 0x81
	DataTypeArgument       DataType = 0x82
	DataTypeArgumentList   DataType = 0x83
	DataTypeAppObjectInfo  DataType = 0xAA
	DataTypeFree           DataType = 0xFF
)

// DataEntrySize is the uniform size of every arena entry.
const DataEntrySize = 16

// DataEntry is the arena's universal storage unit: a one-byte type tag plus
// packed payload fields. Three 28-bit words, four flag bits, and a fourth
// 28-bit word carved out of the remaining corners cover the linked
// structures; scalar entries overlay the same bytes with their values.
//
// Layout: bytes 0-3, 4-7 and 8-11 hold words A, B and C; bytes 12-13 a
// halfword; byte 14 spare nibbles; byte 15 the type tag. Words 0-2 are the
// low 28 bits of A, B and C; the flag bits are the top bits of B; word 3 is
// assembled from the halfword and the spare nibbles of A, C and byte 14.
type DataEntry [DataEntrySize]byte

const wordMask = uint32(format.WordMax)

func (e *DataEntry) fieldA() uint32     { return binary.LittleEndian.Uint32(e[0:4]) }
func (e *DataEntry) setFieldA(v uint32) { binary.LittleEndian.PutUint32(e[0:4], v) }
func (e *DataEntry) fieldB() uint32     { return binary.LittleEndian.Uint32(e[4:8]) }
func (e *DataEntry) setFieldB(v uint32) { binary.LittleEndian.PutUint32(e[4:8], v) }
func (e *DataEntry) fieldC() uint32     { return binary.LittleEndian.Uint32(e[8:12]) }
func (e *DataEntry) setFieldC(v uint32) { binary.LittleEndian.PutUint32(e[8:12], v) }

// Type returns the entry's type tag.
func (e *DataEntry) Type() DataType {
	return e[15]
}

func (e *DataEntry) setType(t DataType) {
	e[15] = t
}

func (e *DataEntry) word0() uint32 { return e.fieldA() & wordMask }
func (e *DataEntry) word1() uint32 { return e.fieldB() & wordMask }
func (e *DataEntry) word2() uint32 { return e.fieldC() & wordMask }

func (e *DataEntry) setWord0(v uint32) { e.setFieldA(e.fieldA()&^wordMask | v&wordMask) }
func (e *DataEntry) setWord1(v uint32) { e.setFieldB(e.fieldB()&^wordMask | v&wordMask) }
func (e *DataEntry) setWord2(v uint32) { e.setFieldC(e.fieldC()&^wordMask | v&wordMask) }

func (e *DataEntry) word3() uint32 {
	v := uint32(binary.LittleEndian.Uint16(e[12:14]))
	v |= (e.fieldA() >> 28) << 16
	v |= (e.fieldC() >> 28) << 20
	v |= uint32(e[14]&0x0F) << 24
	return v
}

func (e *DataEntry) setWord3(v uint32) {
	binary.LittleEndian.PutUint16(e[12:14], uint16(v))
	e.setFieldA(e.fieldA()&wordMask | (v>>16&0xF)<<28)
	e.setFieldC(e.fieldC()&wordMask | (v>>20&0xF)<<28)
	e[14] = e[14]&0xF0 | uint8(v>>24&0xF)
}

func signExtendWord(v uint32) int32 {
	if v&(1<<(format.WordBitSize-1)) != 0 {
		v |= ^wordMask
	}
	return int32(v)
}

func (e *DataEntry) signedWord0() int32 { return signExtendWord(e.word0()) }
func (e *DataEntry) signedWord1() int32 { return signExtendWord(e.word1()) }
func (e *DataEntry) signedWord3() int32 { return signExtendWord(e.word3()) }

func (e *DataEntry) setSignedWord0(v int32) { e.setWord0(uint32(v) & wordMask) }
func (e *DataEntry) setSignedWord1(v int32) { e.setWord1(uint32(v) & wordMask) }
func (e *DataEntry) setSignedWord3(v int32) { e.setWord3(uint32(v) & wordMask) }

func (e *DataEntry) bit(n uint) bool {
	return e.fieldB()&(1<<(format.WordBitSize+n)) != 0
}

func (e *DataEntry) setBit(n uint, v bool) {
	mask := uint32(1) << (format.WordBitSize + n)
	if v {
		e.setFieldB(e.fieldB() | mask)
	} else {
		e.setFieldB(e.fieldB() &^ mask)
	}
}

// Common fields.

func (e *DataEntry) useCount() uint32     { return e.word2() }
func (e *DataEntry) setUseCount(v uint32) { e.setWord2(v) }

// Scalar overlays.

func (e *DataEntry) booleanValue() bool { return e[0] != 0 }

func (e *DataEntry) setBooleanValue(v bool) {
	e[0] = 0
	if v {
		e[0] = 1
	}
}

func (e *DataEntry) integerValue() int32     { return int32(binary.LittleEndian.Uint32(e[0:4])) }
func (e *DataEntry) setIntegerValue(v int32) { binary.LittleEndian.PutUint32(e[0:4], uint32(v)) }

func (e *DataEntry) floatValue() float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(e[0:8]))
}

func (e *DataEntry) setFloatValue(v float64) {
	binary.LittleEndian.PutUint64(e[0:8], math.Float64bits(v))
}

func (e *DataEntry) symbolValue() int32     { return e.signedWord0() }
func (e *DataEntry) setSymbolValue(v int32) { e.setSignedWord0(v) }

// Sequence fields (String, Tuple, List, ParameterList, ArgumentList).

func (e *DataEntry) sequenceCount() int32          { return e.signedWord3() }
func (e *DataEntry) setSequenceCount(v int32)      { e.setSignedWord3(v) }
func (e *DataEntry) sequenceHeadIndex() uint32     { return e.word0() }
func (e *DataEntry) setSequenceHeadIndex(v uint32) { e.setWord0(v) }
func (e *DataEntry) sequenceTailIndex() uint32     { return e.word1() }
func (e *DataEntry) setSequenceTailIndex(v uint32) { e.setWord1(v) }

// Tree fields (Set, Dictionary, Namespace).

func (e *DataEntry) treeCount() int32          { return e.signedWord0() }
func (e *DataEntry) setTreeCount(v int32)      { e.setSignedWord0(v) }
func (e *DataEntry) treeRootIndex() uint32     { return e.word1() }
func (e *DataEntry) setTreeRootIndex(v uint32) { e.setWord1(v) }

// Iterator fields.

func (e *DataEntry) iteratorIterableIndex() uint32        { return e.word0() }
func (e *DataEntry) setIteratorIterableIndex(v uint32)    { e.setWord0(v) }
func (e *DataEntry) iteratorMemberIndex() uint32          { return e.word1() }
func (e *DataEntry) setIteratorMemberIndex(v uint32)      { e.setWord1(v) }
func (e *DataEntry) iteratorMemberNeedsCleanup() bool     { return e.bit(0) }
func (e *DataEntry) setIteratorMemberNeedsCleanup(v bool) { e.setBit(0, v) }
func (e *DataEntry) iteratorStringIndex() uint8           { return e[14] >> 4 }
func (e *DataEntry) setIteratorStringIndex(v uint8)       { e[14] = e[14]&0x0F | v<<4 }

// Function fields.

func (e *DataEntry) functionIsApp() bool                 { return e.bit(0) }
func (e *DataEntry) setFunctionIsApp(v bool)             { e.setBit(0, v) }
func (e *DataEntry) functionSymbol() int32               { return e.signedWord0() }
func (e *DataEntry) setFunctionSymbol(v int32)           { e.setSignedWord0(v) }
func (e *DataEntry) functionCodeAddress() uint32         { return e.word0() }
func (e *DataEntry) setFunctionCodeAddress(v uint32)     { e.setWord0(v) }
func (e *DataEntry) functionModuleIndex() uint32         { return e.word1() }
func (e *DataEntry) setFunctionModuleIndex(v uint32)     { e.setWord1(v) }
func (e *DataEntry) functionParametersIndex() uint32     { return e.word3() }
func (e *DataEntry) setFunctionParametersIndex(v uint32) { e.setWord3(v) }

// Module fields.

func (e *DataEntry) moduleIsApp() bool                { return e.bit(1) }
func (e *DataEntry) setModuleIsApp(v bool)            { e.setBit(1, v) }
func (e *DataEntry) moduleSymbol() int32              { return e.signedWord0() }
func (e *DataEntry) setModuleSymbol(v int32)          { e.setSignedWord0(v) }
func (e *DataEntry) moduleCodeAddress() uint32        { return e.word0() }
func (e *DataEntry) setModuleCodeAddress(v uint32)    { e.setWord0(v) }
func (e *DataEntry) moduleNamespaceIndex() uint32     { return e.word1() }
func (e *DataEntry) setModuleNamespaceIndex(v uint32) { e.setWord1(v) }
func (e *DataEntry) moduleIsLoaded() bool             { return e.bit(0) }
func (e *DataEntry) setModuleIsLoaded(v bool)         { e.setBit(0, v) }

// Range fields.

func (e *DataEntry) rangeHasStart() bool         { return e.bit(0) }
func (e *DataEntry) setRangeHasStart(v bool)     { e.setBit(0, v) }
func (e *DataEntry) rangeStartIndex() uint32     { return e.word0() }
func (e *DataEntry) setRangeStartIndex(v uint32) { e.setWord0(v) }
func (e *DataEntry) rangeHasEnd() bool           { return e.bit(1) }
func (e *DataEntry) setRangeHasEnd(v bool)       { e.setBit(1, v) }
func (e *DataEntry) rangeEndIndex() uint32       { return e.word1() }
func (e *DataEntry) setRangeEndIndex(v uint32)   { e.setWord1(v) }
func (e *DataEntry) rangeHasStep() bool          { return e.bit(2) }
func (e *DataEntry) setRangeHasStep(v bool)      { e.setBit(2, v) }
func (e *DataEntry) rangeStepIndex() uint32      { return e.word3() }
func (e *DataEntry) setRangeStepIndex(v uint32)  { e.setWord3(v) }

// CodeAddress fields.

func (e *DataEntry) codeAddress() uint32     { return e.word0() }
func (e *DataEntry) setCodeAddress(v uint32) { e.setWord0(v) }

// StackEntry fields.

func (e *DataEntry) stackEntryPreviousIndex() uint32     { return e.word0() }
func (e *DataEntry) setStackEntryPreviousIndex(v uint32) { e.setWord0(v) }
func (e *DataEntry) stackEntryValueIndex() uint32        { return e.word1() }
func (e *DataEntry) setStackEntryValueIndex(v uint32)    { e.setWord1(v) }
func (e *DataEntry) stackEntryHasValue2() bool           { return e.bit(0) }
func (e *DataEntry) setStackEntryHasValue2(v bool)       { e.setBit(0, v) }
func (e *DataEntry) stackEntryValue2Index() uint32       { return e.word2() }
func (e *DataEntry) setStackEntryValue2Index(v uint32)   { e.setWord2(v) }
func (e *DataEntry) stackEntryFlag() bool                { return e.bit(1) }
func (e *DataEntry) setStackEntryFlag(v bool)            { e.setBit(1, v) }

// Element fields (sequence members).

func (e *DataEntry) elementPreviousIndex() uint32     { return e.word0() }
func (e *DataEntry) setElementPreviousIndex(v uint32) { e.setWord0(v) }
func (e *DataEntry) elementNextIndex() uint32         { return e.word1() }
func (e *DataEntry) setElementNextIndex(v uint32)     { e.setWord1(v) }
func (e *DataEntry) elementValueIndex() uint32        { return e.word2() }
func (e *DataEntry) setElementValueIndex(v uint32)    { e.setWord2(v) }

// StringFragment fields. A fragment stores up to fragmentMaxSize bytes.

const fragmentMaxSize = 14

func (e *DataEntry) fragmentSize() int { return int(e[0]) }

func (e *DataEntry) fragmentData() []byte {
	return e[1 : 1+e.fragmentSize()]
}

func (e *DataEntry) setFragmentData(data []byte) {
	e[0] = uint8(len(data))
	copy(e[1:], data)
}

func (e *DataEntry) appendFragmentData(data []byte) int {
	n := copy(e[1+e.fragmentSize():1+fragmentMaxSize], data)
	e[0] += uint8(n)
	return n
}

// KeyValuePair fields.

func (e *DataEntry) keyValuePairKeyIndex() uint32       { return e.word0() }
func (e *DataEntry) setKeyValuePairKeyIndex(v uint32)   { e.setWord0(v) }
func (e *DataEntry) keyValuePairValueIndex() uint32     { return e.word1() }
func (e *DataEntry) setKeyValuePairValueIndex(v uint32) { e.setWord1(v) }

// Tree node fields, common to SetNode, DictionaryNode and NamespaceNode.

func (e *DataEntry) treeNodeKeyIndex() uint32        { return e.word0() }
func (e *DataEntry) setTreeNodeKeyIndex(v uint32)    { e.setWord0(v) }
func (e *DataEntry) treeNodeParentIndex() uint32     { return e.word1() }
func (e *DataEntry) setTreeNodeParentIndex(v uint32) { e.setWord1(v) }
func (e *DataEntry) treeNodeIsBlack() bool           { return e.bit(0) }
func (e *DataEntry) setTreeNodeIsBlack(v bool)       { e.setBit(0, v) }

// SetNode keeps its child links inline.

func (e *DataEntry) setNodeLeftIndex() uint32      { return e.word2() }
func (e *DataEntry) setSetNodeLeftIndex(v uint32)  { e.setWord2(v) }
func (e *DataEntry) setNodeRightIndex() uint32     { return e.word3() }
func (e *DataEntry) setSetNodeRightIndex(v uint32) { e.setWord3(v) }

// DictionaryNode and NamespaceNode keep their child links in a TreeLinksNode
// to preserve space for the key and value indices.

func (e *DataEntry) treeNodeLinksIndex() uint32     { return e.word2() }
func (e *DataEntry) setTreeNodeLinksIndex(v uint32) { e.setWord2(v) }
func (e *DataEntry) treeNodeValueIndex() uint32     { return e.word3() }
func (e *DataEntry) setTreeNodeValueIndex(v uint32) { e.setWord3(v) }

func (e *DataEntry) namespaceNodeSymbol() int32      { return e.signedWord0() }
func (e *DataEntry) setNamespaceNodeSymbol(v int32)  { e.setSignedWord0(v) }
func (e *DataEntry) namespaceNodeIsGlobal() bool     { return e.bit(1) }
func (e *DataEntry) setNamespaceNodeIsGlobal(v bool) { e.setBit(1, v) }

func (e *DataEntry) treeLinksLeftIndex() uint32      { return e.word1() }
func (e *DataEntry) setTreeLinksLeftIndex(v uint32)  { e.setWord1(v) }
func (e *DataEntry) treeLinksRightIndex() uint32     { return e.word2() }
func (e *DataEntry) setTreeLinksRightIndex(v uint32) { e.setWord2(v) }

// Parameter fields.

func (e *DataEntry) parameterSymbol() int32               { return e.signedWord0() }
func (e *DataEntry) setParameterSymbol(v int32)           { e.setSignedWord0(v) }
func (e *DataEntry) parameterHasDefault() bool            { return e.bit(0) }
func (e *DataEntry) setParameterHasDefault(v bool)        { e.setBit(0, v) }
func (e *DataEntry) parameterIsTupleGroup() bool          { return e.bit(1) }
func (e *DataEntry) setParameterIsTupleGroup(v bool)      { e.setBit(1, v) }
func (e *DataEntry) parameterIsDictionaryGroup() bool     { return e.bit(2) }
func (e *DataEntry) setParameterIsDictionaryGroup(v bool) { e.setBit(2, v) }
func (e *DataEntry) parameterDefaultIndex() uint32        { return e.word1() }
func (e *DataEntry) setParameterDefaultIndex(v uint32)    { e.setWord1(v) }

// Argument fields.

func (e *DataEntry) argumentSymbol() int32               { return e.signedWord0() }
func (e *DataEntry) setArgumentSymbol(v int32)           { e.setSignedWord0(v) }
func (e *DataEntry) argumentHasName() bool               { return e.bit(0) }
func (e *DataEntry) setArgumentHasName(v bool)           { e.setBit(0, v) }
func (e *DataEntry) argumentIsIterableGroup() bool       { return e.bit(1) }
func (e *DataEntry) setArgumentIsIterableGroup(v bool)   { e.setBit(1, v) }
func (e *DataEntry) argumentIsDictionaryGroup() bool     { return e.bit(2) }
func (e *DataEntry) setArgumentIsDictionaryGroup(v bool) { e.setBit(2, v) }
func (e *DataEntry) argumentValueIndex() uint32          { return e.word1() }
func (e *DataEntry) setArgumentValueIndex(v uint32)      { e.setWord1(v) }

// Free-list fields.

func (e *DataEntry) freeNext() uint32     { return e.word0() }
func (e *DataEntry) setFreeNext(v uint32) { e.setWord0(v) }

// clearData links every entry of the arena into the free list and marks it
// free.
func (e *Engine) clearData() {
	count := e.dataEndIndex
	for i := uint32(0); i < count; i++ {
		entry := &e.data[i]
		*entry = DataEntry{}
		entry.setType(DataTypeFree)
		if i+1 < count {
			entry.setFreeNext(i + 1)
		}
	}
	e.freeListIndex = 0
	e.freeCount = count
	e.lowFreeCount = count
}

// alloc unlinks the head of the free list and returns its index. Zero is
// returned on exhaustion; index zero itself is a valid return only for the
// very first allocation after a clear, which is reserved for None.
func (e *Engine) alloc() uint32 {
	if e.freeCount == 0 {
		return 0
	}
	index := e.freeListIndex
	entry := &e.data[index]
	e.freeListIndex = entry.freeNext()
	e.freeCount--
	if e.freeCount < e.lowFreeCount {
		e.lowFreeCount = e.freeCount
	}
	*entry = DataEntry{}
	return index
}

// free returns an entry to the head of the free list. Freeing entry zero or
// an already-free entry is an assertion failure.
func (e *Engine) free(index uint32) bool {
	if e.assert(index != 0) != RunResultOK {
		return false
	}
	entry := &e.data[index]
	if e.assert(entry.Type() != DataTypeFree) != RunResultOK {
		return false
	}
	*entry = DataEntry{}
	entry.setType(DataTypeFree)
	entry.setFreeNext(e.freeListIndex)
	e.freeListIndex = index
	e.freeCount++
	return true
}

// entry returns the entry at index, or nil for the reserved zero index.
func (e *Engine) entry(index uint32) *DataEntry {
	if index == 0 {
		return nil
	}
	return &e.data[index]
}

// valueEntry is like entry but maps index zero to the None singleton, which
// lives at arena index zero precisely so a zero index can double as "no
// entry" in every other context.
func (e *Engine) valueEntry(index uint32) *DataEntry {
	return &e.data[index]
}

// entryIndex recovers the arena index of an entry pointer.
func (e *Engine) entryIndex(entry *DataEntry) uint32 {
	if entry == nil {
		return 0
	}
	base := uintptr(unsafe.Pointer(&e.data[0]))
	return uint32((uintptr(unsafe.Pointer(entry)) - base) / DataEntrySize)
}

// isObject reports whether the entry is a user-visible object rather than a
// support entry.
func isObject(entry *DataEntry) bool {
	return entry != nil && entry.Type() <= dataTypeObjectMask
}
