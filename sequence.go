package asp

// sequenceResult carries the outcome of a sequence operation: the affected
// element and, where applicable, the entry the element refers to.
type sequenceResult struct {
	result  RunResult
	element *DataEntry
	value   *DataEntry
}

// sequenceAppend links value at the tail of a sequence. Object values gain a
// reference; support values (parameters, arguments, fragments) are owned by
// the sequence outright.
func (e *Engine) sequenceAppend(sequence, value *DataEntry) sequenceResult {
	element := e.allocEntry(DataTypeElement)
	if element == nil {
		return sequenceResult{result: RunResultOutOfDataMemory}
	}
	elementIndex := e.entryIndex(element)
	element.setElementValueIndex(e.entryIndex(value))

	tailIndex := sequence.sequenceTailIndex()
	if tailIndex == 0 {
		sequence.setSequenceHeadIndex(elementIndex)
	} else {
		tail := e.entry(tailIndex)
		tail.setElementNextIndex(elementIndex)
		element.setElementPreviousIndex(tailIndex)
	}
	sequence.setSequenceTailIndex(elementIndex)

	if isObject(value) {
		e.Ref(value)
	}
	if sequence.Type() != DataTypeString {
		sequence.setSequenceCount(sequence.sequenceCount() + 1)
	}
	return sequenceResult{result: RunResultOK, element: element, value: value}
}

// sequenceNext steps forward through a sequence. A nil element starts at the
// head. The returned element is nil at the end.
func (e *Engine) sequenceNext(sequence, element *DataEntry) sequenceResult {
	var nextIndex uint32
	if element == nil {
		nextIndex = sequence.sequenceHeadIndex()
	} else {
		nextIndex = element.elementNextIndex()
	}
	if nextIndex == 0 {
		return sequenceResult{result: RunResultOK}
	}
	next := e.entry(nextIndex)
	return sequenceResult{
		result:  RunResultOK,
		element: next,
		value:   e.valueEntry(next.elementValueIndex()),
	}
}

// stringAppendBytes appends bytes to a String object, packing them into the
// tail fragment before allocating new ones. A String's sequence count is its
// byte length.
func (e *Engine) stringAppendBytes(str *DataEntry, value []byte) RunResult {
	if r := e.assert(str.Type() == DataTypeString); r != RunResultOK {
		return r
	}
	appended := 0
	if tailIndex := str.sequenceTailIndex(); tailIndex != 0 {
		tail := e.entry(tailIndex)
		fragment := e.valueEntry(tail.elementValueIndex())
		appended = fragment.appendFragmentData(value)
	}
	for appended < len(value) {
		fragment := e.allocEntry(DataTypeStringFragment)
		if fragment == nil {
			return RunResultOutOfDataMemory
		}
		n := len(value) - appended
		if n > fragmentMaxSize {
			n = fragmentMaxSize
		}
		fragment.setFragmentData(value[appended : appended+n])
		if r := e.sequenceAppend(str, fragment); r.result != RunResultOK {
			return r.result
		}
		appended += n
	}
	str.setSequenceCount(str.sequenceCount() + int32(len(value)))
	return RunResultOK
}
