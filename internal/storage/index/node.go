package index

import "github.com/SimonWaldherr/pagedb/internal/storage/record"

// NodeID addresses a node within a tree's arena. NoNode is the sentinel
// meaning "no node" (an absent child, sibling, or root).
type NodeID int32

// NoNode is the sentinel NodeID meaning "none".
const NoNode NodeID = -1

// NodeKind tags which variant a Node currently holds. Go has no sum
// types; Node carries a tag plus exactly one non-nil body, and every
// call site switches on Kind rather than relying on inheritance or
// dynamic dispatch.
type NodeKind int

const (
	KindLeaf NodeKind = iota
	KindInternal
)

// InternalBody holds an internal node's keys and children. keys[i] is the
// maximum key anywhere in the subtree rooted at children[i]: a covering
// max, not a separator.
type InternalBody struct {
	Keys     []int64
	Children []NodeID
}

// LeafBody holds a leaf node's entries and its right sibling link.
type LeafBody struct {
	Keys   []int64
	Values []record.RecordId
	Next   NodeID
}

// Node is a tagged variant: exactly one of Internal or Leaf is non-nil,
// matching Kind.
type Node struct {
	Kind     NodeKind
	Internal *InternalBody
	Leaf     *LeafBody
}

// NewInternalNode builds an empty internal node.
func NewInternalNode() *Node {
	return &Node{Kind: KindInternal, Internal: &InternalBody{}}
}

// NewLeafNode builds an empty leaf node with no sibling.
func NewLeafNode() *Node {
	return &Node{Kind: KindLeaf, Leaf: &LeafBody{Next: NoNode}}
}

// IsLeaf reports whether n is a leaf node.
func (n *Node) IsLeaf() bool { return n.Kind == KindLeaf }

// IsInternal reports whether n is an internal node.
func (n *Node) IsInternal() bool { return n.Kind == KindInternal }

// MaxKey returns the largest key reachable from n: its own max key if a
// leaf, or the last (and largest) covering key if internal. Panics if n
// has no entries, which should never happen for a node reachable from the
// tree root.
func (n *Node) MaxKey() int64 {
	switch n.Kind {
	case KindLeaf:
		return n.Leaf.Keys[len(n.Leaf.Keys)-1]
	default:
		return n.Internal.Keys[len(n.Internal.Keys)-1]
	}
}

// ───────────────────────────────────────────────────────────────────────────
// InternalBody operations
// ───────────────────────────────────────────────────────────────────────────

// FindChildIndex returns the index of the first key >= search key, or the
// last index if every key is smaller.
func (b *InternalBody) FindChildIndex(key int64) int {
	for i, k := range b.Keys {
		if k >= key {
			return i
		}
	}
	return len(b.Keys) - 1
}

// InsertChildAt inserts (key, child) at position pos, shifting later
// entries right. Insertion is positional rather than key-ordered: after a
// child split both halves can share the same covering max (duplicate
// keys), and the right half must land directly after the left half's slot
// to keep parent order consistent with the leaf chain.
func (b *InternalBody) InsertChildAt(pos int, key int64, child NodeID) {
	b.Keys = append(b.Keys, 0)
	copy(b.Keys[pos+1:], b.Keys[pos:])
	b.Keys[pos] = key

	b.Children = append(b.Children, 0)
	copy(b.Children[pos+1:], b.Children[pos:])
	b.Children[pos] = child
}

// UpdateKey overwrites the covering key at index i.
func (b *InternalBody) UpdateKey(i int, newKey int64) {
	b.Keys[i] = newKey
}

// RemoveChildAt deletes the key/child pair at index i.
func (b *InternalBody) RemoveChildAt(i int) {
	b.Keys = append(b.Keys[:i], b.Keys[i+1:]...)
	b.Children = append(b.Children[:i], b.Children[i+1:]...)
}

// ───────────────────────────────────────────────────────────────────────────
// LeafBody operations
// ───────────────────────────────────────────────────────────────────────────

// Insert inserts (key, value) at the first position whose existing key is
// strictly greater than key, so duplicate keys land after every existing
// occurrence of the same key (stable tie-break).
func (b *LeafBody) Insert(key int64, value record.RecordId) {
	pos := len(b.Keys)
	for i, k := range b.Keys {
		if k > key {
			pos = i
			break
		}
	}
	b.Keys = append(b.Keys, 0)
	copy(b.Keys[pos+1:], b.Keys[pos:])
	b.Keys[pos] = key

	b.Values = append(b.Values, record.RecordId{})
	copy(b.Values[pos+1:], b.Values[pos:])
	b.Values[pos] = value
}

// Search returns the first matching value for key, by linear scan with an
// early break on the first strictly-greater key.
func (b *LeafBody) Search(key int64) (record.RecordId, bool) {
	for i, k := range b.Keys {
		if k == key {
			return b.Values[i], true
		}
		if k > key {
			break
		}
	}
	return record.RecordId{}, false
}

// SearchAll collects every value matching key, stopping at the first
// strictly-greater key.
func (b *LeafBody) SearchAll(key int64) []record.RecordId {
	var out []record.RecordId
	for i, k := range b.Keys {
		if k == key {
			out = append(out, b.Values[i])
		} else if k > key {
			break
		}
	}
	return out
}

// Delete removes the first entry matching key. Reports whether anything
// was removed.
func (b *LeafBody) Delete(key int64) bool {
	for i, k := range b.Keys {
		if k == key {
			b.removeAt(i)
			return true
		}
	}
	return false
}

// DeleteEntry removes the specific (key, value) pair. Reports whether it
// was found.
func (b *LeafBody) DeleteEntry(key int64, value record.RecordId) bool {
	for i, k := range b.Keys {
		if k == key && b.Values[i] == value {
			b.removeAt(i)
			return true
		}
	}
	return false
}

func (b *LeafBody) removeAt(i int) {
	b.Keys = append(b.Keys[:i], b.Keys[i+1:]...)
	b.Values = append(b.Values[:i], b.Values[i+1:]...)
}

// MaxKey returns the largest (last) key in the leaf.
func (b *LeafBody) MaxKey() int64 { return b.Keys[len(b.Keys)-1] }

// MinKey returns the smallest (first) key in the leaf.
func (b *LeafBody) MinKey() int64 { return b.Keys[0] }

// Split moves the second half of b's entries into a new leaf body, which
// inherits b's old Next link; the caller is responsible for relinking
// b.Next to the new leaf's id.
func (b *LeafBody) Split() *LeafBody {
	mid := len(b.Keys) / 2
	right := &LeafBody{
		Keys:   append([]int64(nil), b.Keys[mid:]...),
		Values: append([]record.RecordId(nil), b.Values[mid:]...),
		Next:   b.Next,
	}
	b.Keys = b.Keys[:mid]
	b.Values = b.Values[:mid]
	return right
}
