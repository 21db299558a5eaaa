package index

import (
	"fmt"

	"github.com/SimonWaldherr/pagedb/internal/storage/record"
)

// DefaultOrder is the order used when a caller does not request a
// specific one: large enough to keep a node comfortably within one
// file.PageSize page once serialized (see serialization.go).
const DefaultOrder = 128

// Pair is one (key, RecordId) entry, as produced by RangeSearch and
// consumed by BulkLoad.
type Pair struct {
	Key   int64
	Value record.RecordId
}

// pathStep records one step of a root-to-leaf descent: the parent node
// visited and which of its children was followed.
type pathStep struct {
	parent     NodeID
	childIndex int
}

// BPlusTree is an in-memory, arena-addressed B+ tree of order m with
// duplicate keys permitted. Nodes are addressed by NodeID into a dense
// arena with a free-list of reclaimed ids; there are no pointers between
// nodes.
type BPlusTree struct {
	order     int
	nodes     []*Node
	freeList  []NodeID
	root      NodeID
	firstLeaf NodeID
	entries   int
}

// NewBPlusTree constructs an empty tree of the given order. Returns
// ErrInvalidOrder if order < 3.
func NewBPlusTree(order int) (*BPlusTree, error) {
	if order < 3 {
		return nil, fmt.Errorf("index: order %d: %w", order, ErrInvalidOrder)
	}
	return &BPlusTree{order: order, root: NoNode, firstLeaf: NoNode}, nil
}

// FromPersistentState rebuilds a tree from state read off disk: a sparse
// arena (nil holes for freed or not-yet-loaded ids are legal), the known
// root and first-leaf ids, and the entry count.
func FromPersistentState(order int, root, firstLeaf NodeID, entryCount int, nodes []*Node) *BPlusTree {
	t := &BPlusTree{order: order, root: root, firstLeaf: firstLeaf, entries: entryCount, nodes: nodes}
	for i, n := range nodes {
		if n == nil {
			t.freeList = append(t.freeList, NodeID(i))
		}
	}
	return t
}

// Order returns the tree's order.
func (t *BPlusTree) Order() int { return t.order }

// Len returns the number of entries in the tree.
func (t *BPlusTree) Len() int { return t.entries }

// IsEmpty reports whether the tree has no entries.
func (t *BPlusTree) IsEmpty() bool { return t.entries == 0 }

// RootNodeID returns the current root, or NoNode if the tree is empty.
func (t *BPlusTree) RootNodeID() NodeID { return t.root }

// FirstLeafID returns the leftmost leaf, or NoNode if the tree is empty.
func (t *BPlusTree) FirstLeafID() NodeID { return t.firstLeaf }

// NodeCount returns the size of the arena, including any freed holes.
func (t *BPlusTree) NodeCount() int { return len(t.nodes) }

// GetNode returns the node at id, or nil if id is a hole (freed or not
// loaded).
func (t *BPlusTree) GetNode(id NodeID) *Node {
	if id < 0 || int(id) >= len(t.nodes) {
		return nil
	}
	return t.nodes[id]
}

// Height returns the number of levels from root to leaf, inclusive. An
// empty tree has height 0.
func (t *BPlusTree) Height() int {
	if t.root == NoNode {
		return 0
	}
	h := 1
	cur := t.root
	for t.nodes[cur].IsInternal() {
		h++
		cur = t.nodes[cur].Internal.Children[0]
	}
	return h
}

// OptimalDepth estimates the height a perfectly bulk-loaded tree of this
// order would need to hold entryCount entries. Informational only; it is
// not consulted by any structural operation.
func OptimalDepth(entryCount, order int) int {
	if entryCount <= 0 {
		return 0
	}
	leafCapacity := order - 1
	levels := 1
	n := entryCount
	for n > leafCapacity {
		n = (n + order - 1) / order
		levels++
	}
	return levels
}

func (t *BPlusTree) allocNode(n *Node) NodeID {
	if len(t.freeList) > 0 {
		id := t.freeList[len(t.freeList)-1]
		t.freeList = t.freeList[:len(t.freeList)-1]
		t.nodes[id] = n
		return id
	}
	id := NodeID(len(t.nodes))
	t.nodes = append(t.nodes, n)
	return id
}

func (t *BPlusTree) freeNode(id NodeID) {
	t.nodes[id] = nil
	t.freeList = append(t.freeList, id)
}

// ───────────────────────────────────────────────────────────────────────────
// Search
// ───────────────────────────────────────────────────────────────────────────

func (t *BPlusTree) findLeaf(key int64) NodeID {
	cur := t.root
	for {
		node := t.nodes[cur]
		if node.IsLeaf() {
			return cur
		}
		idx := node.Internal.FindChildIndex(key)
		cur = node.Internal.Children[idx]
	}
}

func (t *BPlusTree) findLeafWithPath(key int64) (NodeID, []pathStep) {
	var path []pathStep
	cur := t.root
	for {
		node := t.nodes[cur]
		if node.IsLeaf() {
			return cur, path
		}
		idx := node.Internal.FindChildIndex(key)
		path = append(path, pathStep{parent: cur, childIndex: idx})
		cur = node.Internal.Children[idx]
	}
}

// Search returns the first value matching key, if any.
func (t *BPlusTree) Search(key int64) (record.RecordId, bool) {
	if t.root == NoNode {
		return record.RecordId{}, false
	}
	leaf := t.nodes[t.findLeaf(key)].Leaf
	return leaf.Search(key)
}

// SearchAll returns every value matching key, walking forward across leaf
// links as needed.
func (t *BPlusTree) SearchAll(key int64) []record.RecordId {
	if t.root == NoNode {
		return nil
	}
	leafID := t.findLeaf(key)
	var out []record.RecordId
	for leafID != NoNode {
		leaf := t.nodes[leafID].Leaf
		if len(leaf.Keys) == 0 || leaf.MinKey() > key {
			break
		}
		for i, k := range leaf.Keys {
			if k == key {
				out = append(out, leaf.Values[i])
			} else if k > key {
				return out
			}
		}
		leafID = leaf.Next
	}
	return out
}

// RangeSearch returns every (key, value) pair with lo <= key <= hi, in
// ascending key order. Returns nil if lo > hi.
func (t *BPlusTree) RangeSearch(lo, hi int64) []Pair {
	if lo > hi || t.root == NoNode {
		return nil
	}
	leafID := t.findLeaf(lo)
	var out []Pair
	for leafID != NoNode {
		leaf := t.nodes[leafID].Leaf
		for i, k := range leaf.Keys {
			if k < lo {
				continue
			}
			if k > hi {
				return out
			}
			out = append(out, Pair{Key: k, Value: leaf.Values[i]})
		}
		leafID = leaf.Next
	}
	return out
}

// ───────────────────────────────────────────────────────────────────────────
// Insert
// ───────────────────────────────────────────────────────────────────────────

// propagateKey walks path bottom-up, updating each ancestor's covering key
// for the subtree rooted at current to current's (possibly new) max key,
// stopping as soon as a key is already correct.
func (t *BPlusTree) propagateKey(path []pathStep, current NodeID) {
	for i := len(path) - 1; i >= 0; i-- {
		step := path[i]
		parent := t.nodes[step.parent].Internal
		newMax := t.nodes[current].MaxKey()
		if parent.Keys[step.childIndex] == newMax {
			return
		}
		parent.Keys[step.childIndex] = newMax
		current = step.parent
	}
}

// Insert adds (key, value) to the tree, splitting and propagating as
// needed.
func (t *BPlusTree) Insert(key int64, value record.RecordId) error {
	if t.root == NoNode {
		leaf := NewLeafNode()
		leaf.Leaf.Insert(key, value)
		id := t.allocNode(leaf)
		t.root = id
		t.firstLeaf = id
		t.entries++
		return nil
	}

	// Descend to the first child whose key exceeds key (or the last child),
	// so a duplicate lands after every equal key already in the tree.
	var path []pathStep
	leafID := t.root
	for !t.nodes[leafID].IsLeaf() {
		in := t.nodes[leafID].Internal
		idx := len(in.Keys) - 1
		for i, k := range in.Keys {
			if k > key {
				idx = i
				break
			}
		}
		path = append(path, pathStep{parent: leafID, childIndex: idx})
		leafID = in.Children[idx]
	}
	leaf := t.nodes[leafID].Leaf
	leaf.Insert(key, value)
	t.entries++

	if len(leaf.Keys) > t.order-1 {
		right := leaf.Split()
		rightID := t.allocNode(&Node{Kind: KindLeaf, Leaf: right})
		leaf.Next = rightID
		t.insertIntoParent(path, leaf.MaxKey(), leafID, right.MaxKey(), rightID)
	} else {
		t.propagateKey(path, leafID)
	}
	return nil
}

func splitInternal(body *InternalBody) *InternalBody {
	mid := len(body.Keys) / 2
	right := &InternalBody{
		Keys:     append([]int64(nil), body.Keys[mid:]...),
		Children: append([]NodeID(nil), body.Children[mid:]...),
	}
	body.Keys = body.Keys[:mid]
	body.Children = body.Children[:mid]
	return right
}

// insertIntoParent installs the (leftKey,leftID)/(rightKey,rightID) pair
// produced by a child split into its parent (creating a new root if path
// is empty), splitting the parent in turn if it overflows.
func (t *BPlusTree) insertIntoParent(path []pathStep, leftKey int64, leftID NodeID, rightKey int64, rightID NodeID) {
	if len(path) == 0 {
		root := NewInternalNode()
		root.Internal.Keys = []int64{leftKey, rightKey}
		root.Internal.Children = []NodeID{leftID, rightID}
		t.root = t.allocNode(root)
		return
	}

	step := path[len(path)-1]
	parentPath := path[:len(path)-1]
	parent := t.nodes[step.parent].Internal
	parent.Keys[step.childIndex] = leftKey
	parent.InsertChildAt(step.childIndex+1, rightKey, rightID)

	if len(parent.Children) > t.order {
		rightBody := splitInternal(parent)
		rightNodeID := t.allocNode(&Node{Kind: KindInternal, Internal: rightBody})
		leftMax := parent.Keys[len(parent.Keys)-1]
		rightMax := rightBody.Keys[len(rightBody.Keys)-1]
		t.insertIntoParent(parentPath, leftMax, step.parent, rightMax, rightNodeID)
	} else {
		t.propagateKey(parentPath, step.parent)
	}
}

// ───────────────────────────────────────────────────────────────────────────
// Delete
// ───────────────────────────────────────────────────────────────────────────

func (t *BPlusTree) minLeafEntries() int { return (t.order - 1 + 1) / 2 } // ceil((m-1)/2)
func (t *BPlusTree) minInternalChildren() int { return (t.order + 1) / 2 } // ceil(m/2)

// Delete removes the first entry matching key. Reports whether anything
// was removed.
func (t *BPlusTree) Delete(key int64) bool {
	if t.root == NoNode {
		return false
	}
	leafID, path := t.findLeafWithPath(key)
	leaf := t.nodes[leafID].Leaf
	if !leaf.Delete(key) {
		return false
	}
	t.entries--
	t.handleLeafUnderflow(leafID, path)
	return true
}

// DeleteEntry removes the specific (key, value) pair. Reports whether it
// was found.
func (t *BPlusTree) DeleteEntry(key int64, value record.RecordId) bool {
	if t.root == NoNode {
		return false
	}
	leafID, path := t.findLeafWithPath(key)
	// Equal keys can continue into later leaves: step right until the pair
	// is found or the leaf's keys run past key.
	for !t.nodes[leafID].Leaf.DeleteEntry(key, value) {
		i := len(path) - 1
		for i >= 0 && path[i].childIndex == len(t.nodes[path[i].parent].Internal.Children)-1 {
			i--
		}
		if i < 0 || t.nodes[leafID].Leaf.MaxKey() > key {
			return false
		}
		path = append(path[:i], pathStep{parent: path[i].parent, childIndex: path[i].childIndex + 1})
		leafID = t.nodes[path[i].parent].Internal.Children[path[i].childIndex]
		for !t.nodes[leafID].IsLeaf() {
			path = append(path, pathStep{parent: leafID, childIndex: 0})
			leafID = t.nodes[leafID].Internal.Children[0]
		}
	}
	t.entries--
	t.handleLeafUnderflow(leafID, path)
	return true
}

func (t *BPlusTree) handleLeafUnderflow(leafID NodeID, path []pathStep) {
	leaf := t.nodes[leafID].Leaf

	if leafID == t.root {
		if len(leaf.Keys) == 0 {
			t.freeNode(leafID)
			t.root = NoNode
			t.firstLeaf = NoNode
		}
		return
	}

	if len(leaf.Keys) >= t.minLeafEntries() {
		t.propagateKey(path, leafID)
		return
	}

	step := path[len(path)-1]
	parentPath := path[:len(path)-1]
	parent := t.nodes[step.parent].Internal
	childIndex := step.childIndex

	if childIndex > 0 {
		leftID := parent.Children[childIndex-1]
		left := t.nodes[leftID].Leaf
		if len(left.Keys) > t.minLeafEntries() {
			n := len(left.Keys) - 1
			k, v := left.Keys[n], left.Values[n]
			left.Keys = left.Keys[:n]
			left.Values = left.Values[:n]
			leaf.Keys = append([]int64{k}, leaf.Keys...)
			leaf.Values = append([]record.RecordId{v}, leaf.Values...)
			parent.Keys[childIndex-1] = left.MaxKey()
			parent.Keys[childIndex] = leaf.MaxKey()
			t.propagateKey(parentPath, step.parent)
			return
		}
		// merge leaf into its left sibling
		left.Keys = append(left.Keys, leaf.Keys...)
		left.Values = append(left.Values, leaf.Values...)
		left.Next = leaf.Next
		if t.firstLeaf == leafID {
			t.firstLeaf = leftID
		}
		t.freeNode(leafID)
		parent.RemoveChildAt(childIndex)
		parent.Keys[childIndex-1] = left.MaxKey()
		t.handleParentAfterMerge(step.parent, parentPath)
		return
	}

	rightID := parent.Children[childIndex+1]
	right := t.nodes[rightID].Leaf
	if len(right.Keys) > t.minLeafEntries() {
		k, v := right.Keys[0], right.Values[0]
		right.Keys = right.Keys[1:]
		right.Values = right.Values[1:]
		leaf.Keys = append(leaf.Keys, k)
		leaf.Values = append(leaf.Values, v)
		parent.Keys[childIndex] = leaf.MaxKey()
		t.propagateKey(parentPath, step.parent)
		return
	}
	// merge right sibling into leaf
	leaf.Keys = append(leaf.Keys, right.Keys...)
	leaf.Values = append(leaf.Values, right.Values...)
	leaf.Next = right.Next
	if t.firstLeaf == rightID {
		t.firstLeaf = leafID
	}
	t.freeNode(rightID)
	parent.RemoveChildAt(childIndex + 1)
	parent.Keys[childIndex] = leaf.MaxKey()
	t.handleParentAfterMerge(step.parent, parentPath)
}

func (t *BPlusTree) handleParentAfterMerge(nodeID NodeID, path []pathStep) {
	node := t.nodes[nodeID].Internal

	if nodeID == t.root {
		if len(node.Children) == 1 {
			only := node.Children[0]
			t.freeNode(nodeID)
			t.root = only
		}
		return
	}

	if len(node.Children) >= t.minInternalChildren() {
		t.propagateKey(path, nodeID)
		return
	}
	t.handleInternalUnderflow(nodeID, path)
}

func (t *BPlusTree) handleInternalUnderflow(nodeID NodeID, path []pathStep) {
	node := t.nodes[nodeID].Internal
	step := path[len(path)-1]
	parentPath := path[:len(path)-1]
	parent := t.nodes[step.parent].Internal
	childIndex := step.childIndex

	if childIndex > 0 {
		leftID := parent.Children[childIndex-1]
		left := t.nodes[leftID].Internal
		if len(left.Children) > t.minInternalChildren() {
			n := len(left.Keys) - 1
			k, c := left.Keys[n], left.Children[n]
			left.Keys = left.Keys[:n]
			left.Children = left.Children[:n]
			node.Keys = append([]int64{k}, node.Keys...)
			node.Children = append([]NodeID{c}, node.Children...)
			parent.Keys[childIndex-1] = left.Keys[len(left.Keys)-1]
			parent.Keys[childIndex] = node.Keys[len(node.Keys)-1]
			t.propagateKey(parentPath, step.parent)
			return
		}
		left.Keys = append(left.Keys, node.Keys...)
		left.Children = append(left.Children, node.Children...)
		t.freeNode(nodeID)
		parent.RemoveChildAt(childIndex)
		parent.Keys[childIndex-1] = left.Keys[len(left.Keys)-1]
		t.handleParentAfterMerge(step.parent, parentPath)
		return
	}

	rightID := parent.Children[childIndex+1]
	right := t.nodes[rightID].Internal
	if len(right.Children) > t.minInternalChildren() {
		k, c := right.Keys[0], right.Children[0]
		right.Keys = right.Keys[1:]
		right.Children = right.Children[1:]
		node.Keys = append(node.Keys, k)
		node.Children = append(node.Children, c)
		parent.Keys[childIndex] = node.Keys[len(node.Keys)-1]
		t.propagateKey(parentPath, step.parent)
		return
	}
	node.Keys = append(node.Keys, right.Keys...)
	node.Children = append(node.Children, right.Children...)
	t.freeNode(rightID)
	parent.RemoveChildAt(childIndex + 1)
	parent.Keys[childIndex] = node.Keys[len(node.Keys)-1]
	t.handleParentAfterMerge(step.parent, parentPath)
}

// ───────────────────────────────────────────────────────────────────────────
// Bulk load
// ───────────────────────────────────────────────────────────────────────────

// chunkSize returns how many of the remaining items the next node at this
// level should take, where limit is the node's maximum and minFill its
// non-root minimum. Greedy packing alone can strand a final node below
// minFill; when the would-be remainder falls short, the current node takes
// less so the tail node ends up with exactly minFill. remaining > limit
// guarantees remaining-minFill stays within [minFill, limit], so every
// non-final chunk leaves at least minFill behind. The only chunk that can
// come in under minFill is a level's sole node, which is the root (or the
// root leaf) and exempt.
func chunkSize(remaining, limit, minFill int) int {
	if remaining <= limit {
		return remaining
	}
	if rest := remaining - limit; rest < minFill {
		return remaining - minFill
	}
	return limit
}

// BulkLoad replaces the tree's entire contents with entries, which must
// already be sorted by non-decreasing key. It builds a dense, balanced
// tree bottom-up in linear time.
func (t *BPlusTree) BulkLoad(entries []Pair) error {
	for i := 1; i < len(entries); i++ {
		if entries[i].Key < entries[i-1].Key {
			return ErrUnsortedInput
		}
	}

	t.nodes = nil
	t.freeList = nil

	if len(entries) == 0 {
		t.root = NoNode
		t.firstLeaf = NoNode
		t.entries = 0
		return nil
	}

	var leafIDs []NodeID
	for i := 0; i < len(entries); {
		take := chunkSize(len(entries)-i, t.order-1, t.minLeafEntries())
		body := &LeafBody{Next: NoNode}
		for _, e := range entries[i : i+take] {
			body.Keys = append(body.Keys, e.Key)
			body.Values = append(body.Values, e.Value)
		}
		leafIDs = append(leafIDs, t.allocNode(&Node{Kind: KindLeaf, Leaf: body}))
		i += take
	}
	for i := 0; i < len(leafIDs)-1; i++ {
		t.nodes[leafIDs[i]].Leaf.Next = leafIDs[i+1]
	}
	t.firstLeaf = leafIDs[0]

	level := leafIDs
	for len(level) > 1 {
		var next []NodeID
		for i := 0; i < len(level); {
			take := chunkSize(len(level)-i, t.order, t.minInternalChildren())
			body := &InternalBody{}
			for _, childID := range level[i : i+take] {
				body.Keys = append(body.Keys, t.nodes[childID].MaxKey())
				body.Children = append(body.Children, childID)
			}
			next = append(next, t.allocNode(&Node{Kind: KindInternal, Internal: body}))
			i += take
		}
		level = next
	}

	t.root = level[0]
	t.entries = len(entries)
	return nil
}
