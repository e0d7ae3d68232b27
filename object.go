package asp

// allocEntry allocates an arena entry of the given type. Objects start with
// a use count of one. Returns nil when the arena is exhausted; callers
// translate that to RunResultOutOfDataMemory.
func (e *Engine) allocEntry(t DataType) *DataEntry {
	index := e.alloc()
	if index == 0 {
		return nil
	}
	entry := &e.data[index]
	entry.setType(t)
	if isObject(entry) {
		entry.setUseCount(1)
	}
	return entry
}

// Ref increments the use count of an object entry.
func (e *Engine) Ref(entry *DataEntry) {
	if e.assert(isObject(entry)) != RunResultOK {
		return
	}
	entry.setUseCount(entry.useCount() + 1)
}

// Unref decrements the use count of an object entry. When the count reaches
// zero, the entry is destructured: child references are released, owned
// support entries are freed, and the entry itself is returned to the free
// list. The walk is iterative, over an explicit worklist, and bounded by the
// cycle-detection limit rather than the depth of the data structure.
func (e *Engine) Unref(entry *DataEntry) {
	if entry == nil {
		e.runResult = RunResultInternalError
		return
	}
	if isObject(entry) {
		count := entry.useCount()
		if e.assert(count != 0) != RunResultOK {
			return
		}
		if count > 1 {
			entry.setUseCount(count - 1)
			return
		}
	}
	index := e.entryIndex(entry)
	if e.assert(index != 0) != RunResultOK {
		return
	}
	e.destructure(index)
}

// dropReference releases one reference to the entry at index, scheduling a
// destructure on the worklist when the last reference dies. Index zero is
// the None singleton, whose engine-held reference keeps it alive.
func (e *Engine) dropReference(work *[]uint32, index uint32) {
	if index == 0 {
		none := e.valueEntry(0)
		count := none.useCount()
		if e.assert(count > 1) == RunResultOK {
			none.setUseCount(count - 1)
		}
		return
	}
	entry := e.valueEntry(index)
	if !isObject(entry) {
		*work = append(*work, index)
		return
	}
	count := entry.useCount()
	if e.assert(count != 0) != RunResultOK {
		return
	}
	if count > 1 {
		entry.setUseCount(count - 1)
		return
	}
	*work = append(*work, index)
}

// destructure frees the entry at index and everything it exclusively owns.
func (e *Engine) destructure(index uint32) {
	work := append(e.destructureScratch[:0], index)
	iterations := uint32(0)
	for len(work) != 0 {
		if iterations >= e.cycleDetectionLimit {
			e.runResult = RunResultCycleDetected
			break
		}
		iterations++

		index := work[len(work)-1]
		work = work[:len(work)-1]
		entry := e.valueEntry(index)

		switch entry.Type() {
		case DataTypeRange:
			if entry.rangeHasStart() {
				e.dropReference(&work, entry.rangeStartIndex())
			}
			if entry.rangeHasEnd() {
				e.dropReference(&work, entry.rangeEndIndex())
			}
			if entry.rangeHasStep() {
				e.dropReference(&work, entry.rangeStepIndex())
			}

		case DataTypeString, DataTypeTuple, DataTypeList,
			DataTypeParameterList, DataTypeArgumentList:
			if head := entry.sequenceHeadIndex(); head != 0 {
				work = append(work, head)
			}

		case DataTypeElement:
			if next := entry.elementNextIndex(); next != 0 {
				work = append(work, next)
			}
			if value := entry.elementValueIndex(); value != 0 {
				e.dropReference(&work, value)
			}

		case DataTypeParameter:
			if entry.parameterHasDefault() {
				e.dropReference(&work, entry.parameterDefaultIndex())
			}

		case DataTypeArgument:
			if value := entry.argumentValueIndex(); value != 0 {
				e.dropReference(&work, value)
			}

		case DataTypeSet, DataTypeDictionary, DataTypeNamespace:
			if root := entry.treeRootIndex(); root != 0 {
				work = append(work, root)
			}

		case DataTypeSetNode:
			if left := entry.setNodeLeftIndex(); left != 0 {
				work = append(work, left)
			}
			if right := entry.setNodeRightIndex(); right != 0 {
				work = append(work, right)
			}
			e.dropReference(&work, entry.treeNodeKeyIndex())

		case DataTypeDictionaryNode:
			if links := entry.treeNodeLinksIndex(); links != 0 {
				work = append(work, links)
			}
			e.dropReference(&work, entry.treeNodeKeyIndex())
			e.dropReference(&work, entry.treeNodeValueIndex())

		case DataTypeNamespaceNode:
			if links := entry.treeNodeLinksIndex(); links != 0 {
				work = append(work, links)
			}
			e.dropReference(&work, entry.treeNodeValueIndex())

		case DataTypeTreeLinksNode:
			if left := entry.treeLinksLeftIndex(); left != 0 {
				work = append(work, left)
			}
			if right := entry.treeLinksRightIndex(); right != 0 {
				work = append(work, right)
			}

		case DataTypeKeyValuePair:
			e.dropReference(&work, entry.keyValuePairKeyIndex())
			e.dropReference(&work, entry.keyValuePairValueIndex())

		case DataTypeFunction:
			if module := entry.functionModuleIndex(); module != 0 {
				e.dropReference(&work, module)
			}
			if parameters := entry.functionParametersIndex(); parameters != 0 {
				work = append(work, parameters)
			}

		case DataTypeModule:
			if namespace := entry.moduleNamespaceIndex(); namespace != 0 {
				work = append(work, namespace)
			}

		case DataTypeForwardIterator, DataTypeReverseIterator:
			if iterable := entry.iteratorIterableIndex(); iterable != 0 {
				e.dropReference(&work, iterable)
			}
		}

		e.free(index)
		if e.runResult != RunResultOK {
			break
		}
	}
	e.destructureScratch = work[:0]
}

// Singleton constructors. The singletons are shared; every externalization
// increments the use count so callers observe plain object semantics.

// NewNone returns the None singleton.
func (e *Engine) NewNone() *DataEntry {
	e.Ref(e.noneSingleton)
	return e.noneSingleton
}

// NewEllipsis returns the Ellipsis singleton, allocating it on first use.
func (e *Engine) NewEllipsis() *DataEntry {
	if e.ellipsisSingleton == nil {
		e.ellipsisSingleton = e.allocEntry(DataTypeEllipsis)
		if e.ellipsisSingleton == nil {
			return nil
		}
	}
	e.Ref(e.ellipsisSingleton)
	return e.ellipsisSingleton
}

// NewBoolean returns the True or False singleton, allocating on first use.
func (e *Engine) NewBoolean(value bool) *DataEntry {
	singleton := &e.falseSingleton
	if value {
		singleton = &e.trueSingleton
	}
	if *singleton == nil {
		entry := e.allocEntry(DataTypeBoolean)
		if entry == nil {
			return nil
		}
		entry.setBooleanValue(value)
		*singleton = entry
	}
	e.Ref(*singleton)
	return *singleton
}

// NewInteger returns a new Integer object.
func (e *Engine) NewInteger(value int32) *DataEntry {
	entry := e.allocEntry(DataTypeInteger)
	if entry != nil {
		entry.setIntegerValue(value)
	}
	return entry
}

// NewFloat returns a new Float object.
func (e *Engine) NewFloat(value float64) *DataEntry {
	entry := e.allocEntry(DataTypeFloat)
	if entry != nil {
		entry.setFloatValue(value)
	}
	return entry
}

// NewSymbol returns a new Symbol object.
func (e *Engine) NewSymbol(symbol int32) *DataEntry {
	entry := e.allocEntry(DataTypeSymbol)
	if entry != nil {
		entry.setSymbolValue(symbol)
	}
	return entry
}

// NewString returns a new String object holding the given bytes.
func (e *Engine) NewString(value []byte) *DataEntry {
	entry := e.allocEntry(DataTypeString)
	if entry == nil {
		return nil
	}
	if e.stringAppendBytes(entry, value) != RunResultOK {
		e.Unref(entry)
		return nil
	}
	return entry
}

// NewTuple returns a new, empty Tuple object.
func (e *Engine) NewTuple() *DataEntry {
	return e.allocEntry(DataTypeTuple)
}

// NewList returns a new, empty List object.
func (e *Engine) NewList() *DataEntry {
	return e.allocEntry(DataTypeList)
}

// Value readers.

// BooleanValue reads a Boolean object's value.
func (e *Engine) BooleanValue(entry *DataEntry) bool {
	if e.assert(entry != nil && entry.Type() == DataTypeBoolean) != RunResultOK {
		return false
	}
	return entry.booleanValue()
}

// IntegerValue reads an Integer object's value.
func (e *Engine) IntegerValue(entry *DataEntry) int32 {
	if e.assert(entry != nil && entry.Type() == DataTypeInteger) != RunResultOK {
		return 0
	}
	return entry.integerValue()
}

// FloatValue reads a Float object's value.
func (e *Engine) FloatValue(entry *DataEntry) float64 {
	if e.assert(entry != nil && entry.Type() == DataTypeFloat) != RunResultOK {
		return 0
	}
	return entry.floatValue()
}

// StringValue assembles a String object's bytes from its fragments.
func (e *Engine) StringValue(entry *DataEntry) []byte {
	if e.assert(entry != nil && entry.Type() == DataTypeString) != RunResultOK {
		return nil
	}
	value := make([]byte, 0, entry.sequenceCount())
	for r := e.sequenceNext(entry, nil); r.element != nil; r = e.sequenceNext(entry, r.element) {
		value = append(value, r.value.fragmentData()...)
	}
	return value
}

// UseCount returns an entry's use count, for tests and host observability.
func (e *Engine) UseCount(entry *DataEntry) uint32 {
	return entry.useCount()
}
