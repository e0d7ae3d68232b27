package asp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// newTestEngine returns an engine over a fresh arena of the given entry
// count, with no code area and no spec.
func newTestEngine(t *testing.T, entries int, spec *AppSpec) *Engine {
	t.Helper()
	e, result := NewEngine(nil, make([]byte, entries*DataEntrySize), spec, nil)
	require.Equal(t, RunResultOK, result)
	return e
}

func TestDataEntry_WordPacking(t *testing.T) {
	var e DataEntry

	e.setWord0(0x0ABCDEF1)
	e.setWord1(0x01234567)
	e.setWord2(0x0FEDCBA9)
	e.setWord3(0x0F0F0F0F)
	e.setType(DataTypeElement)
	for i := uint(0); i < 4; i++ {
		e.setBit(i, i%2 == 0)
	}

	// Every field reads back independently.
	require.Equal(t, uint32(0x0ABCDEF1), e.word0())
	require.Equal(t, uint32(0x01234567), e.word1())
	require.Equal(t, uint32(0x0FEDCBA9), e.word2())
	require.Equal(t, uint32(0x0F0F0F0F), e.word3())
	require.Equal(t, DataTypeElement, e.Type())
	for i := uint(0); i < 4; i++ {
		require.Equal(t, i%2 == 0, e.bit(i))
	}

	// Overwriting one word leaves the others intact.
	e.setWord3(0x00000000)
	require.Equal(t, uint32(0x0ABCDEF1), e.word0())
	require.Equal(t, uint32(0x0FEDCBA9), e.word2())
	require.Zero(t, e.word3())

	e.setWord0(0)
	require.Equal(t, uint32(0x01234567), e.word1())
}

func TestDataEntry_SignedWords(t *testing.T) {
	var e DataEntry
	for _, v := range []int32{0, 1, -1, 12345, -12345, 1<<27 - 1, -(1 << 27)} {
		e.setSignedWord0(v)
		require.Equal(t, v, e.signedWord0())
		e.setSignedWord3(v)
		require.Equal(t, v, e.signedWord3())
	}
}

func TestDataEntry_ScalarOverlays(t *testing.T) {
	var e DataEntry
	e.setIntegerValue(-42)
	require.Equal(t, int32(-42), e.integerValue())

	e = DataEntry{}
	e.setFloatValue(3.14159)
	require.Equal(t, 3.14159, e.floatValue())

	e = DataEntry{}
	e.setFragmentData([]byte("hello"))
	require.Equal(t, 5, e.fragmentSize())
	require.Equal(t, []byte("hello"), e.fragmentData())
	n := e.appendFragmentData([]byte(" world and more"))
	require.Equal(t, fragmentMaxSize-5, n)
}

func TestArena_NoneAtIndexZero(t *testing.T) {
	e := newTestEngine(t, 64, nil)
	require.Equal(t, DataTypeNone, e.data[0].Type())
	require.GreaterOrEqual(t, e.data[0].useCount(), uint32(1))
}

func TestArena_AllocFree(t *testing.T) {
	e := newTestEngine(t, 64, nil)
	before := e.FreeCount()

	entry := e.NewInteger(7)
	require.NotNil(t, entry)
	require.Equal(t, before-1, e.FreeCount())
	require.Equal(t, int32(7), e.IntegerValue(entry))
	require.Equal(t, uint32(1), e.UseCount(entry))

	e.Unref(entry)
	require.Equal(t, before, e.FreeCount())
	require.Equal(t, RunResultOK, e.LastResult())
}

func TestArena_LowFreeCount(t *testing.T) {
	e := newTestEngine(t, 64, nil)
	start := e.FreeCount()

	var entries []*DataEntry
	for i := 0; i < 5; i++ {
		entries = append(entries, e.NewInteger(int32(i)))
	}
	for _, entry := range entries {
		e.Unref(entry)
	}

	require.Equal(t, start, e.FreeCount())
	require.Equal(t, start-5, e.LowFreeCount())
}

func TestArena_RefCountDiscipline(t *testing.T) {
	e := newTestEngine(t, 64, nil)

	entry := e.NewInteger(1)
	e.Ref(entry)
	e.Ref(entry)
	require.Equal(t, uint32(3), e.UseCount(entry))

	e.Unref(entry)
	e.Unref(entry)
	require.Equal(t, uint32(1), e.UseCount(entry))
	require.Equal(t, DataTypeInteger, entry.Type())

	e.Unref(entry)
	require.Equal(t, DataTypeFree, entry.Type())
}

func TestDestructure_String(t *testing.T) {
	e := newTestEngine(t, 256, nil)
	before := e.FreeCount()

	s := e.NewString([]byte("a string long enough to span several fragments"))
	require.NotNil(t, s)
	require.Equal(t, []byte("a string long enough to span several fragments"), e.StringValue(s))
	require.Less(t, e.FreeCount(), before)

	e.Unref(s)
	require.Equal(t, before, e.FreeCount())
}

func TestDestructure_NestedSequences(t *testing.T) {
	e := newTestEngine(t, 256, nil)
	before := e.FreeCount()

	inner := e.NewList()
	require.Equal(t, RunResultOK, appendValue(e, inner, e.NewInteger(1)))
	require.Equal(t, RunResultOK, appendValue(e, inner, e.NewString([]byte("abc"))))

	outer := e.NewTuple()
	require.Equal(t, RunResultOK, appendValue(e, outer, inner))
	e.Unref(inner) // now owned by outer
	require.Equal(t, RunResultOK, appendValue(e, outer, e.NewInteger(2)))

	e.Unref(outer)
	require.Equal(t, before, e.FreeCount())
	require.Equal(t, RunResultOK, e.LastResult())
}

// appendValue appends an owned value to a sequence and releases the local
// reference.
func appendValue(e *Engine, sequence, value *DataEntry) RunResult {
	r := e.sequenceAppend(sequence, value)
	if r.result == RunResultOK && value != nil {
		e.Unref(value)
	}
	return r.result
}

func TestDestructure_SharedValueSurvives(t *testing.T) {
	e := newTestEngine(t, 128, nil)

	shared := e.NewInteger(9)
	tuple := e.NewTuple()
	require.Equal(t, RunResultOK, e.sequenceAppend(tuple, shared).result)
	require.Equal(t, uint32(2), e.UseCount(shared))

	e.Unref(tuple)
	require.Equal(t, DataTypeInteger, shared.Type())
	require.Equal(t, uint32(1), e.UseCount(shared))
	e.Unref(shared)
}

func TestDestructure_Namespace(t *testing.T) {
	e := newTestEngine(t, 256, nil)
	before := e.FreeCount()

	ns := e.allocEntry(DataTypeNamespace)
	for symbol := int32(10); symbol < 20; symbol++ {
		value := e.NewInteger(symbol)
		require.True(t, e.treeTryInsertBySymbol(ns, symbol, value).inserted)
		e.Unref(value)
	}
	e.Unref(ns)
	require.Equal(t, before, e.FreeCount())
}

func TestSingletons_SharedAndCounted(t *testing.T) {
	e := newTestEngine(t, 64, nil)

	none1 := e.NewNone()
	none2 := e.NewNone()
	require.Same(t, none1, none2)
	require.Equal(t, uint32(3), e.UseCount(none1)) // engine + two externalizations

	e.Unref(none1)
	e.Unref(none2)
	require.Equal(t, uint32(1), e.UseCount(none1))

	truthy := e.NewBoolean(true)
	falsy := e.NewBoolean(false)
	require.NotSame(t, truthy, falsy)
	require.True(t, e.BooleanValue(truthy))
	require.False(t, e.BooleanValue(falsy))
	again := e.NewBoolean(true)
	require.Same(t, truthy, again)
}

func TestArena_Exhaustion(t *testing.T) {
	// Size the arena exactly for reset, so the first post-reset allocation
	// fails cleanly.
	probe := newTestEngine(t, 256, nil)
	used := int(256 - probe.FreeCount())

	e := newTestEngine(t, used, nil)
	require.Zero(t, e.FreeCount())

	noneCount := e.UseCount(e.noneSingleton)
	require.Nil(t, e.NewString([]byte("x")))
	require.Nil(t, e.NewInteger(1))

	// Singleton use counts are untouched by the failed allocations.
	require.Equal(t, noneCount, e.UseCount(e.noneSingleton))
}

func TestCycleDetectionLimit(t *testing.T) {
	e := newTestEngine(t, 4096, nil)
	require.Equal(t, uint32(4096/2), e.CycleDetectionLimit())
	require.Equal(t, RunResultOK, e.SetCycleDetectionLimit(8))
	require.Equal(t, uint32(8), e.CycleDetectionLimit())

	// A structure needing more destructure iterations than the limit is
	// reported as a cycle.
	list := e.NewList()
	for i := 0; i < 32; i++ {
		value := e.NewInteger(int32(i))
		require.Equal(t, RunResultOK, appendValue(e, list, value))
	}
	e.Unref(list)
	require.Equal(t, RunResultCycleDetected, e.LastResult())
}
