package asp

// assignSimple installs newValue at an assignment address: a sequence
// Element, a DictionaryNode, or a NamespaceNode. The old value is released
// before the new reference is installed.
func (e *Engine) assignSimple(address, newValue *DataEntry) RunResult {
	addressType := address.Type()
	if r := e.assert(
		addressType == DataTypeElement ||
			addressType == DataTypeDictionaryNode ||
			addressType == DataTypeNamespaceNode); r != RunResultOK {
		return r
	}

	e.Ref(newValue)
	newValueIndex := e.entryIndex(newValue)
	switch addressType {
	case DataTypeElement:
		oldValue := e.valueEntry(address.elementValueIndex())
		if isObject(oldValue) {
			e.Unref(oldValue)
			if e.runResult != RunResultOK {
				return e.runResult
			}
		}
		address.setElementValueIndex(newValueIndex)

	case DataTypeDictionaryNode, DataTypeNamespaceNode:
		oldValue := e.valueEntry(address.treeNodeValueIndex())
		if isObject(oldValue) {
			e.Unref(oldValue)
			if e.runResult != RunResultOK {
				return e.runResult
			}
		}
		address.setTreeNodeValueIndex(newValueIndex)
	}

	return RunResultOK
}

// assignSequence assigns newValue to a tuple or list destructuring address.
// Shape equality (same kind of match and same count) is validated at every
// level before values are installed. Nested addresses are processed through
// the engine stack, not host recursion, so the depth is capped by the
// cycle-detection limit.
func (e *Engine) assignSequence(address, newValue *DataEntry) RunResult {
	addressType := address.Type()
	if r := e.assert(
		addressType == DataTypeTuple || addressType == DataTypeList); r != RunResultOK {
		return r
	}

	if r := e.checkSequenceMatch(address, newValue); r != RunResultOK {
		return r
	}

	startStackTop := e.stackTop
	outerCount := uint32(0)
	for unrefNewValue := false; ; outerCount, unrefNewValue = outerCount+1, true {
		if outerCount >= e.cycleDetectionLimit {
			return RunResultCycleDetected
		}

		innerCount := uint32(0)
		newValueIter := sequenceResult{}
		for addressIter := e.sequenceNext(address, nil); addressIter.element != nil; addressIter = e.sequenceNext(address, addressIter.element) {
			if innerCount >= e.cycleDetectionLimit {
				return RunResultCycleDetected
			}
			innerCount++

			addressElement := addressIter.value
			newValueIter = e.sequenceNext(newValue, newValueIter.element)
			newValueElement := newValueIter.value

			addressElementType := addressElement.Type()
			if addressElementType == DataTypeTuple || addressElementType == DataTypeList {
				if r := e.checkSequenceMatch(addressElement, newValueElement); r != RunResultOK {
					return r
				}

				// Defer the nested level to the stack.
				stackEntry := e.push(newValueElement, true)
				if stackEntry == nil {
					return RunResultOutOfDataMemory
				}
				e.Ref(addressElement)
				stackEntry.setStackEntryHasValue2(true)
				stackEntry.setStackEntryValue2Index(e.entryIndex(addressElement))
			} else {
				if r := e.assignSimple(addressIter.element, newValueElement); r != RunResultOK {
					return r
				}
			}
		}

		// The top-level value is left alone; the caller decides how the
		// assigned value itself is consumed.
		e.Unref(address)
		if unrefNewValue {
			e.Unref(newValue)
		}

		if e.stackTop == startStackTop || e.runResult != RunResultOK {
			break
		}

		address = e.topValue2()
		if r := e.assert(address != nil); r != RunResultOK {
			return r
		}
		newValue = e.topValue()
		if newValue == nil {
			return RunResultStackUnderflow
		}
		e.Ref(newValue)
		e.pop(true)
	}

	return e.runResult
}

// checkSequenceMatch validates that value matches a destructuring address in
// kind and count.
func (e *Engine) checkSequenceMatch(address, value *DataEntry) RunResult {
	addressType := address.Type()
	if r := e.assert(
		addressType == DataTypeTuple || addressType == DataTypeList); r != RunResultOK {
		return r
	}

	valueType := value.Type()
	if valueType != DataTypeTuple && valueType != DataTypeList {
		return RunResultUnexpectedType
	}
	if address.sequenceCount() != value.sequenceCount() {
		return RunResultSequenceMismatch
	}
	return RunResultOK
}
