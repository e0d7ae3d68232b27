package asp

import "bytes"

// treeResult carries the outcome of a tree operation.
type treeResult struct {
	result   RunResult
	node     *DataEntry
	value    *DataEntry
	inserted bool
}

// nodeTypeForTree maps a tree head type to its node type.
func nodeTypeForTree(t DataType) DataType {
	switch t {
	case DataTypeSet:
		return DataTypeSetNode
	case DataTypeDictionary:
		return DataTypeDictionaryNode
	}
	return DataTypeNamespaceNode
}

// Child-link access dispatches on the node type: set nodes keep their links
// inline, dictionary and namespace nodes indirect through a TreeLinksNode.

func (e *Engine) nodeLeft(node *DataEntry) uint32 {
	if node.Type() == DataTypeSetNode {
		return node.setNodeLeftIndex()
	}
	return e.data[node.treeNodeLinksIndex()].treeLinksLeftIndex()
}

func (e *Engine) setNodeLeft(node *DataEntry, index uint32) {
	if node.Type() == DataTypeSetNode {
		node.setSetNodeLeftIndex(index)
		return
	}
	e.data[node.treeNodeLinksIndex()].setTreeLinksLeftIndex(index)
}

func (e *Engine) nodeRight(node *DataEntry) uint32 {
	if node.Type() == DataTypeSetNode {
		return node.setNodeRightIndex()
	}
	return e.data[node.treeNodeLinksIndex()].treeLinksRightIndex()
}

func (e *Engine) setNodeRight(node *DataEntry, index uint32) {
	if node.Type() == DataTypeSetNode {
		node.setSetNodeRightIndex(index)
		return
	}
	e.data[node.treeNodeLinksIndex()].setTreeLinksRightIndex(index)
}

func (e *Engine) nodeIsBlack(index uint32) bool {
	// Nil nodes are black.
	return index == 0 || e.data[index].treeNodeIsBlack()
}

func (e *Engine) setNodeColor(index uint32, black bool) {
	if index != 0 {
		e.data[index].setTreeNodeIsBlack(black)
	}
}

// allocTreeNode allocates a node for the given tree, including the links
// node where the node type requires one.
func (e *Engine) allocTreeNode(tree *DataEntry) *DataEntry {
	nodeType := nodeTypeForTree(tree.Type())
	node := e.allocEntry(nodeType)
	if node == nil {
		return nil
	}
	if nodeType != DataTypeSetNode {
		links := e.allocEntry(DataTypeTreeLinksNode)
		if links == nil {
			e.free(e.entryIndex(node))
			return nil
		}
		node.setTreeNodeLinksIndex(e.entryIndex(links))
	}
	return node
}

// rotate performs a left (or right) rotation about the node at index.
func (e *Engine) rotate(tree *DataEntry, index uint32, left bool) {
	node := &e.data[index]
	var pivotIndex uint32
	if left {
		pivotIndex = e.nodeRight(node)
	} else {
		pivotIndex = e.nodeLeft(node)
	}
	pivot := &e.data[pivotIndex]

	var inner uint32
	if left {
		inner = e.nodeLeft(pivot)
		e.setNodeRight(node, inner)
	} else {
		inner = e.nodeRight(pivot)
		e.setNodeLeft(node, inner)
	}
	if inner != 0 {
		e.data[inner].setTreeNodeParentIndex(index)
	}

	parentIndex := node.treeNodeParentIndex()
	pivot.setTreeNodeParentIndex(parentIndex)
	if parentIndex == 0 {
		tree.setTreeRootIndex(pivotIndex)
	} else {
		parent := &e.data[parentIndex]
		if e.nodeLeft(parent) == index {
			e.setNodeLeft(parent, pivotIndex)
		} else {
			e.setNodeRight(parent, pivotIndex)
		}
	}

	if left {
		e.setNodeLeft(pivot, index)
	} else {
		e.setNodeRight(pivot, index)
	}
	node.setTreeNodeParentIndex(pivotIndex)
}

// insertFixup restores the red-black invariants after linking a red node.
func (e *Engine) insertFixup(tree *DataEntry, index uint32) {
	for {
		parentIndex := e.data[index].treeNodeParentIndex()
		if parentIndex == 0 || e.nodeIsBlack(parentIndex) {
			break
		}
		grandIndex := e.data[parentIndex].treeNodeParentIndex()
		grand := &e.data[grandIndex]
		parentIsLeft := e.nodeLeft(grand) == parentIndex
		var uncleIndex uint32
		if parentIsLeft {
			uncleIndex = e.nodeRight(grand)
		} else {
			uncleIndex = e.nodeLeft(grand)
		}

		if !e.nodeIsBlack(uncleIndex) {
			e.setNodeColor(parentIndex, true)
			e.setNodeColor(uncleIndex, true)
			e.setNodeColor(grandIndex, false)
			index = grandIndex
			continue
		}

		if parentIsLeft && e.nodeRight(&e.data[parentIndex]) == index {
			e.rotate(tree, parentIndex, true)
			index, parentIndex = parentIndex, index
		} else if !parentIsLeft && e.nodeLeft(&e.data[parentIndex]) == index {
			e.rotate(tree, parentIndex, false)
			index, parentIndex = parentIndex, index
		}
		e.setNodeColor(parentIndex, true)
		e.setNodeColor(grandIndex, false)
		e.rotate(tree, grandIndex, !parentIsLeft)
	}
	e.setNodeColor(tree.treeRootIndex(), true)
}

// nodeKeyCompare orders the probe key against a node's key.
func (e *Engine) nodeKeyCompare(
	tree *DataEntry, node *DataEntry, symbol int32, key *DataEntry,
) (int, RunResult) {
	if tree.Type() == DataTypeNamespace {
		nodeSymbol := node.namespaceNodeSymbol()
		switch {
		case symbol < nodeSymbol:
			return -1, RunResultOK
		case symbol > nodeSymbol:
			return 1, RunResultOK
		}
		return 0, RunResultOK
	}
	return e.compareObjects(key, e.valueEntry(node.treeNodeKeyIndex()))
}

// treeInsert adds an entry to a tree: by symbol for namespaces, by key
// object for sets and dictionaries. An existing key is returned unchanged
// with inserted false.
func (e *Engine) treeInsert(
	tree *DataEntry, symbol int32, key, value *DataEntry,
) treeResult {
	var parentIndex uint32
	var fromLeft bool
	index := tree.treeRootIndex()
	for index != 0 {
		node := &e.data[index]
		order, result := e.nodeKeyCompare(tree, node, symbol, key)
		if result != RunResultOK {
			return treeResult{result: result}
		}
		if order == 0 {
			return treeResult{
				result: RunResultOK,
				node:   node,
				value:  e.valueEntry(node.treeNodeValueIndex()),
			}
		}
		parentIndex = index
		fromLeft = order < 0
		if fromLeft {
			index = e.nodeLeft(node)
		} else {
			index = e.nodeRight(node)
		}
	}

	node := e.allocTreeNode(tree)
	if node == nil {
		return treeResult{result: RunResultOutOfDataMemory}
	}
	nodeIndex := e.entryIndex(node)
	if tree.Type() == DataTypeNamespace {
		node.setNamespaceNodeSymbol(symbol)
	} else {
		node.setTreeNodeKeyIndex(e.entryIndex(key))
		e.Ref(key)
	}
	if tree.Type() != DataTypeSet {
		node.setTreeNodeValueIndex(e.entryIndex(value))
		e.Ref(value)
	}

	node.setTreeNodeParentIndex(parentIndex)
	if parentIndex == 0 {
		tree.setTreeRootIndex(nodeIndex)
	} else if fromLeft {
		e.setNodeLeft(&e.data[parentIndex], nodeIndex)
	} else {
		e.setNodeRight(&e.data[parentIndex], nodeIndex)
	}
	tree.setTreeCount(tree.treeCount() + 1)

	e.insertFixup(tree, nodeIndex)
	return treeResult{
		result:   RunResultOK,
		node:     node,
		value:    value,
		inserted: true,
	}
}

// treeTryInsertBySymbol inserts value into a namespace under symbol,
// returning the existing binding when the symbol is already present.
func (e *Engine) treeTryInsertBySymbol(
	tree *DataEntry, symbol int32, value *DataEntry,
) treeResult {
	if r := e.assert(tree.Type() == DataTypeNamespace); r != RunResultOK {
		return treeResult{result: r}
	}
	return e.treeInsert(tree, symbol, nil, value)
}

// treeTryInsertByKey inserts a key/value pair into a dictionary.
func (e *Engine) treeTryInsertByKey(
	tree *DataEntry, key, value *DataEntry,
) treeResult {
	if r := e.assert(tree.Type() == DataTypeDictionary); r != RunResultOK {
		return treeResult{result: r}
	}
	return e.treeInsert(tree, 0, key, value)
}

// findSymbol locates a namespace entry by symbol. A nil node in the result
// means the symbol is not present.
func (e *Engine) findSymbol(tree *DataEntry, symbol int32) treeResult {
	if r := e.assert(tree.Type() == DataTypeNamespace); r != RunResultOK {
		return treeResult{result: r}
	}
	index := tree.treeRootIndex()
	for index != 0 {
		node := &e.data[index]
		nodeSymbol := node.namespaceNodeSymbol()
		switch {
		case symbol < nodeSymbol:
			index = e.nodeLeft(node)
		case symbol > nodeSymbol:
			index = e.nodeRight(node)
		default:
			return treeResult{
				result: RunResultOK,
				node:   node,
				value:  e.valueEntry(node.treeNodeValueIndex()),
			}
		}
	}
	return treeResult{result: RunResultOK}
}

// treeEraseNode unlinks a node from its tree, optionally releasing the key
// and value references, and frees the node and its links entry.
func (e *Engine) treeEraseNode(
	tree *DataEntry, node *DataEntry, eraseKey, eraseValue bool,
) RunResult {
	nodeIndex := e.entryIndex(node)

	var oldKey, oldValue uint32
	if tree.Type() != DataTypeNamespace {
		oldKey = node.treeNodeKeyIndex()
	}
	if tree.Type() != DataTypeSet {
		oldValue = node.treeNodeValueIndex()
	}

	// A node with two children swaps payload with its in-order successor,
	// which then becomes the node to unlink.
	targetIndex := nodeIndex
	if e.nodeLeft(node) != 0 && e.nodeRight(node) != 0 {
		successorIndex := e.nodeRight(node)
		for left := e.nodeLeft(&e.data[successorIndex]); left != 0; left = e.nodeLeft(&e.data[successorIndex]) {
			successorIndex = left
		}
		successor := &e.data[successorIndex]
		if tree.Type() == DataTypeNamespace {
			node.setNamespaceNodeSymbol(successor.namespaceNodeSymbol())
		} else {
			node.setTreeNodeKeyIndex(successor.treeNodeKeyIndex())
		}
		if tree.Type() != DataTypeSet {
			node.setTreeNodeValueIndex(successor.treeNodeValueIndex())
		}
		targetIndex = successorIndex
	}

	target := &e.data[targetIndex]
	childIndex := e.nodeLeft(target)
	if childIndex == 0 {
		childIndex = e.nodeRight(target)
	}
	parentIndex := target.treeNodeParentIndex()

	if childIndex != 0 {
		e.data[childIndex].setTreeNodeParentIndex(parentIndex)
	}
	if parentIndex == 0 {
		tree.setTreeRootIndex(childIndex)
	} else if e.nodeLeft(&e.data[parentIndex]) == targetIndex {
		e.setNodeLeft(&e.data[parentIndex], childIndex)
	} else {
		e.setNodeRight(&e.data[parentIndex], childIndex)
	}

	if e.nodeIsBlack(targetIndex) {
		e.eraseFixup(tree, childIndex, parentIndex)
	}

	if target.Type() != DataTypeSetNode {
		e.free(target.treeNodeLinksIndex())
	}
	e.free(targetIndex)
	tree.setTreeCount(tree.treeCount() - 1)

	if eraseKey && tree.Type() != DataTypeNamespace {
		if old := e.valueEntry(oldKey); isObject(old) {
			e.Unref(old)
		}
	}
	if eraseValue && tree.Type() != DataTypeSet {
		if old := e.valueEntry(oldValue); isObject(old) {
			e.Unref(old)
		}
	}
	return e.runResult
}

// eraseFixup restores the red-black invariants after removing a black node.
// child may be nil (index zero); parent tracks its position.
func (e *Engine) eraseFixup(tree *DataEntry, childIndex, parentIndex uint32) {
	for parentIndex != 0 && e.nodeIsBlack(childIndex) {
		parent := &e.data[parentIndex]
		childIsLeft := e.nodeLeft(parent) == childIndex

		var siblingIndex uint32
		if childIsLeft {
			siblingIndex = e.nodeRight(parent)
		} else {
			siblingIndex = e.nodeLeft(parent)
		}
		if siblingIndex == 0 {
			childIndex = parentIndex
			parentIndex = e.data[parentIndex].treeNodeParentIndex()
			continue
		}

		if !e.nodeIsBlack(siblingIndex) {
			e.setNodeColor(siblingIndex, true)
			e.setNodeColor(parentIndex, false)
			e.rotate(tree, parentIndex, childIsLeft)
			if childIsLeft {
				siblingIndex = e.nodeRight(parent)
			} else {
				siblingIndex = e.nodeLeft(parent)
			}
			if siblingIndex == 0 {
				childIndex = parentIndex
				parentIndex = e.data[parentIndex].treeNodeParentIndex()
				continue
			}
		}

		sibling := &e.data[siblingIndex]
		siblingLeft := e.nodeLeft(sibling)
		siblingRight := e.nodeRight(sibling)
		if e.nodeIsBlack(siblingLeft) && e.nodeIsBlack(siblingRight) {
			e.setNodeColor(siblingIndex, false)
			childIndex = parentIndex
			parentIndex = e.data[parentIndex].treeNodeParentIndex()
			continue
		}

		if childIsLeft && e.nodeIsBlack(siblingRight) {
			e.setNodeColor(siblingLeft, true)
			e.setNodeColor(siblingIndex, false)
			e.rotate(tree, siblingIndex, false)
			siblingIndex = e.nodeRight(parent)
		} else if !childIsLeft && e.nodeIsBlack(siblingLeft) {
			e.setNodeColor(siblingRight, true)
			e.setNodeColor(siblingIndex, false)
			e.rotate(tree, siblingIndex, true)
			siblingIndex = e.nodeLeft(parent)
		}

		// The sibling takes the parent's color before the final rotation.
		sibling = &e.data[siblingIndex]
		e.setNodeColor(siblingIndex, e.nodeIsBlack(parentIndex))
		e.setNodeColor(parentIndex, true)
		if childIsLeft {
			e.setNodeColor(e.nodeRight(sibling), true)
		} else {
			e.setNodeColor(e.nodeLeft(sibling), true)
		}
		e.rotate(tree, parentIndex, childIsLeft)
		childIndex = tree.treeRootIndex()
		parentIndex = 0
	}
	e.setNodeColor(childIndex, true)
}

// compareObjects orders two objects for tree keying: by type tag first, then
// by value within a type. Unkeyable types are rejected.
func (e *Engine) compareObjects(a, b *DataEntry) (int, RunResult) {
	if a.Type() != b.Type() {
		if a.Type() < b.Type() {
			return -1, RunResultOK
		}
		return 1, RunResultOK
	}
	switch a.Type() {
	case DataTypeNone, DataTypeEllipsis:
		return 0, RunResultOK
	case DataTypeBoolean:
		return boolCompare(a.booleanValue(), b.booleanValue()), RunResultOK
	case DataTypeInteger:
		return int32Compare(a.integerValue(), b.integerValue()), RunResultOK
	case DataTypeSymbol:
		return int32Compare(a.symbolValue(), b.symbolValue()), RunResultOK
	case DataTypeFloat:
		switch {
		case a.floatValue() < b.floatValue():
			return -1, RunResultOK
		case a.floatValue() > b.floatValue():
			return 1, RunResultOK
		}
		return 0, RunResultOK
	case DataTypeString:
		return bytes.Compare(e.StringValue(a), e.StringValue(b)), RunResultOK
	}
	return 0, RunResultUnexpectedType
}

func boolCompare(a, b bool) int {
	switch {
	case !a && b:
		return -1
	case a && !b:
		return 1
	}
	return 0
}

func int32Compare(a, b int32) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
