package asp

// The engine's value stack is a singly-linked chain of StackEntry support
// entries. Iterative assignment destructuring uses it instead of host
// recursion. The unref walk in object.go does not use it: that walk keeps
// its worklist in a Go slice, bounded by the cycle-detection limit.

// push adds value to the stack, taking a reference when use is set.
func (e *Engine) push(value *DataEntry, use bool) *DataEntry {
	if e.assert(value != nil && value.Type() != DataTypeFree) != RunResultOK {
		return nil
	}

	newTop := e.allocEntry(DataTypeStackEntry)
	if newTop == nil {
		return nil
	}
	if e.stackTop != nil {
		newTop.setStackEntryPreviousIndex(e.entryIndex(e.stackTop))
	}
	newTop.setStackEntryValueIndex(e.entryIndex(value))
	if use {
		e.Ref(value)
	}
	e.stackTop = newTop
	e.stackCount++
	return newTop
}

// topValue returns the value of the top stack entry.
func (e *Engine) topValue() *DataEntry {
	if e.stackTop == nil {
		return nil
	}
	if e.assert(e.stackTop.Type() == DataTypeStackEntry) != RunResultOK {
		return nil
	}
	value := e.valueEntry(e.stackTop.stackEntryValueIndex())
	if e.assert(value.Type() != DataTypeFree) != RunResultOK {
		return nil
	}
	return value
}

// topValue2 returns the secondary value of the top stack entry, if present.
func (e *Engine) topValue2() *DataEntry {
	if e.stackTop == nil || !e.stackTop.stackEntryHasValue2() {
		return nil
	}
	return e.valueEntry(e.stackTop.stackEntryValue2Index())
}

// pop removes the top stack entry, releasing the value reference when
// eraseValue is set.
func (e *Engine) pop(eraseValue bool) bool {
	if e.stackTop == nil {
		return false
	}
	if e.assert(e.stackTop.Type() == DataTypeStackEntry) != RunResultOK {
		return false
	}

	value := e.topValue()
	if value == nil {
		return false
	}
	if eraseValue && isObject(value) {
		e.Unref(value)
	}

	previousIndex := e.stackTop.stackEntryPreviousIndex()
	e.Unref(e.stackTop)
	if previousIndex == 0 {
		e.stackTop = nil
	} else {
		e.stackTop = e.entry(previousIndex)
	}
	e.stackCount--
	return true
}
