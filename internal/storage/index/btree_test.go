package index

import (
	"testing"

	"github.com/SimonWaldherr/pagedb/internal/storage/record"
)

func insertRange(t *testing.T, tree *BPlusTree, lo, hi int64) {
	t.Helper()
	for k := lo; k <= hi; k++ {
		if err := tree.Insert(k, rid(uint32(k), 0)); err != nil {
			t.Fatal(err)
		}
	}
}

func TestEmptyTreeSearchMisses(t *testing.T) {
	tree, err := NewBPlusTree(4)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := tree.Search(1); ok {
		t.Fatal("search on empty tree should miss")
	}
	if tree.Len() != 0 || !tree.IsEmpty() {
		t.Fatal("expected empty tree")
	}
}

func TestInvalidOrderRejected(t *testing.T) {
	if _, err := NewBPlusTree(2); err == nil {
		t.Fatal("expected order 2 to be rejected")
	}
}

func TestSingleInsertAndSearch(t *testing.T) {
	tree, _ := NewBPlusTree(4)
	tree.Insert(42, rid(1, 0))
	v, ok := tree.Search(42)
	if !ok || v != rid(1, 0) {
		t.Fatalf("Search(42) = (%v, %v)", v, ok)
	}
	if tree.Height() != 1 {
		t.Fatalf("height = %d, want 1", tree.Height())
	}
}

// TestInsertCausesSplit drives enough inserts through an order-4 tree to
// force at least one leaf split and verifies every key is still found
// afterward, along with the tree growing a second level.
func TestInsertCausesSplit(t *testing.T) {
	tree, _ := NewBPlusTree(4)
	insertRange(t, tree, 1, 10)

	if tree.Height() < 2 {
		t.Fatalf("expected tree to have grown past a single leaf, height=%d", tree.Height())
	}
	for k := int64(1); k <= 10; k++ {
		v, ok := tree.Search(k)
		if !ok || v != rid(uint32(k), 0) {
			t.Fatalf("Search(%d) = (%v, %v)", k, v, ok)
		}
	}
	if tree.Len() != 10 {
		t.Fatalf("Len() = %d, want 10", tree.Len())
	}
}

func TestRangeSearchAfterSplits(t *testing.T) {
	tree, _ := NewBPlusTree(4)
	insertRange(t, tree, 1, 30)

	pairs := tree.RangeSearch(10, 15)
	if len(pairs) != 6 {
		t.Fatalf("RangeSearch(10,15) returned %d pairs, want 6", len(pairs))
	}
	for i, p := range pairs {
		want := int64(10 + i)
		if p.Key != want {
			t.Fatalf("pairs out of order: got %v at %d, want key %d", p, i, want)
		}
	}

	if got := tree.RangeSearch(100, 1); got != nil {
		t.Fatalf("RangeSearch with lo>hi should be nil, got %v", got)
	}
}

func TestDuplicateKeysSearchAll(t *testing.T) {
	tree, _ := NewBPlusTree(4)
	for i := 0; i < 5; i++ {
		tree.Insert(7, rid(uint32(i), i))
	}
	tree.Insert(3, rid(99, 0))
	tree.Insert(10, rid(98, 0))

	all := tree.SearchAll(7)
	if len(all) != 5 {
		t.Fatalf("SearchAll(7) = %v, want 5 entries", all)
	}
	for i, v := range all {
		if v != rid(uint32(i), i) {
			t.Fatalf("duplicate order broken at %d: %v", i, v)
		}
	}
}

func TestDeleteShrinksTreeToEmpty(t *testing.T) {
	tree, _ := NewBPlusTree(4)
	insertRange(t, tree, 1, 20)

	for k := int64(1); k <= 20; k++ {
		if !tree.Delete(k) {
			t.Fatalf("Delete(%d) reported false", k)
		}
	}
	if !tree.IsEmpty() || tree.RootNodeID() != NoNode {
		t.Fatalf("expected empty tree after deleting everything, root=%v", tree.RootNodeID())
	}
	if tree.Delete(1) {
		t.Fatal("Delete on empty tree should report false")
	}
}

// TestDeleteTriggersMergeAndRebalance deletes most of a populated tree's
// entries and checks survivors remain reachable, exercising leaf/internal
// redistribution and merge.
func TestDeleteTriggersMergeAndRebalance(t *testing.T) {
	tree, _ := NewBPlusTree(4)
	insertRange(t, tree, 1, 50)

	for k := int64(1); k <= 40; k++ {
		if !tree.Delete(k) {
			t.Fatalf("Delete(%d) failed", k)
		}
	}
	for k := int64(41); k <= 50; k++ {
		if _, ok := tree.Search(k); !ok {
			t.Fatalf("surviving key %d not found after mass delete", k)
		}
	}
	if tree.Len() != 10 {
		t.Fatalf("Len() = %d, want 10", tree.Len())
	}
	for k := int64(1); k <= 40; k++ {
		if _, ok := tree.Search(k); ok {
			t.Fatalf("deleted key %d still found", k)
		}
	}
}

func TestDeleteEntryRemovesOnlyMatchingPair(t *testing.T) {
	tree, _ := NewBPlusTree(4)
	tree.Insert(1, rid(1, 1))
	tree.Insert(1, rid(1, 2))

	if !tree.DeleteEntry(1, rid(1, 1)) {
		t.Fatal("expected DeleteEntry to find the pair")
	}
	all := tree.SearchAll(1)
	if len(all) != 1 || all[0] != rid(1, 2) {
		t.Fatalf("expected only rid(1,2) to remain, got %v", all)
	}
	if tree.DeleteEntry(1, rid(1, 1)) {
		t.Fatal("second DeleteEntry of the same pair should fail")
	}
}

func TestBulkLoadRejectsUnsortedInput(t *testing.T) {
	tree, _ := NewBPlusTree(4)
	entries := []Pair{{Key: 2, Value: rid(0, 0)}, {Key: 1, Value: rid(0, 1)}}
	if err := tree.BulkLoad(entries); err != ErrUnsortedInput {
		t.Fatalf("BulkLoad on unsorted input: err = %v, want ErrUnsortedInput", err)
	}
	// input is validated before any node is built, so the tree is untouched
	checkTreeInvariants(t, tree)
}

func TestBulkLoadBuildsSearchableBalancedTree(t *testing.T) {
	tree, _ := NewBPlusTree(4)
	var entries []Pair
	for k := int64(0); k < 100; k++ {
		entries = append(entries, Pair{Key: k, Value: rid(uint32(k), 0)})
	}
	if err := tree.BulkLoad(entries); err != nil {
		t.Fatal(err)
	}
	if tree.Len() != 100 {
		t.Fatalf("Len() = %d, want 100", tree.Len())
	}
	for k := int64(0); k < 100; k++ {
		v, ok := tree.Search(k)
		if !ok || v != rid(uint32(k), 0) {
			t.Fatalf("Search(%d) = (%v, %v) after bulk load", k, v, ok)
		}
	}
	pairs := tree.RangeSearch(40, 60)
	if len(pairs) != 21 {
		t.Fatalf("RangeSearch(40,60) returned %d pairs, want 21", len(pairs))
	}

	// walking the leaf chain from firstLeaf should visit every key once,
	// in order.
	var walked []int64
	leafID := tree.FirstLeafID()
	for leafID != NoNode {
		leaf := tree.GetNode(leafID).Leaf
		walked = append(walked, leaf.Keys...)
		leafID = leaf.Next
	}
	if len(walked) != 100 {
		t.Fatalf("leaf chain walk visited %d keys, want 100", len(walked))
	}
	for i, k := range walked {
		if k != int64(i) {
			t.Fatalf("leaf chain out of order at %d: %d", i, k)
		}
	}
	checkTreeInvariants(t, tree)
}

func TestBulkLoadEmptyInput(t *testing.T) {
	tree, _ := NewBPlusTree(4)
	if err := tree.BulkLoad(nil); err != nil {
		t.Fatal(err)
	}
	if !tree.IsEmpty() || tree.RootNodeID() != NoNode {
		t.Fatal("expected empty tree after bulk loading zero entries")
	}
	checkTreeInvariants(t, tree)
}

// TestBulkLoadTailOccupancy pins down the tail-redistribution behavior:
// entry counts whose greedy remainder would leave a final leaf (100 =
// 33*3+1 at order 4) or a final non-root internal node (27 entries ->
// 9 leaves -> a trailing 1-child group at order 4) below minimum
// occupancy must still produce a tree satisfying every occupancy bound.
func TestBulkLoadTailOccupancy(t *testing.T) {
	for _, n := range []int{1, 2, 4, 7, 10, 27, 100} {
		tree, _ := NewBPlusTree(4)
		var entries []Pair
		for k := int64(0); k < int64(n); k++ {
			entries = append(entries, Pair{Key: k, Value: rid(uint32(k), 0)})
		}
		if err := tree.BulkLoad(entries); err != nil {
			t.Fatalf("n=%d: %v", n, err)
		}
		if tree.Len() != n {
			t.Fatalf("n=%d: Len() = %d", n, tree.Len())
		}
		checkTreeInvariants(t, tree)
		for k := int64(0); k < int64(n); k++ {
			if v, ok := tree.Search(k); !ok || v != rid(uint32(k), 0) {
				t.Fatalf("n=%d: Search(%d) = (%v, %v)", n, k, v, ok)
			}
		}
	}
}

// TestBulkLoadOccupancySweep bulk-loads every size up to a few leaf
// levels at the minimum and an odd order, checking the full invariant
// set each time; tail remainders hit every residue class this way.
func TestBulkLoadOccupancySweep(t *testing.T) {
	for _, order := range []int{3, 5} {
		for n := 0; n <= 60; n++ {
			tree, _ := NewBPlusTree(order)
			var entries []Pair
			for k := int64(0); k < int64(n); k++ {
				entries = append(entries, Pair{Key: k, Value: rid(uint32(k), 0)})
			}
			if err := tree.BulkLoad(entries); err != nil {
				t.Fatalf("order=%d n=%d: %v", order, n, err)
			}
			checkTreeInvariants(t, tree)
		}
	}
}

func TestOptimalDepth(t *testing.T) {
	if d := OptimalDepth(0, 128); d != 0 {
		t.Fatalf("OptimalDepth(0,128) = %d, want 0", d)
	}
	if d := OptimalDepth(10, 128); d != 1 {
		t.Fatalf("OptimalDepth(10,128) = %d, want 1", d)
	}
	if d := OptimalDepth(1_000_000, 128); d < 2 {
		t.Fatalf("OptimalDepth(1_000_000,128) = %d, want at least 2", d)
	}
}

func TestFromPersistentStateRebuildsFreeList(t *testing.T) {
	nodes := []*Node{
		{Kind: KindLeaf, Leaf: &LeafBody{Keys: []int64{1}, Values: []record.RecordId{rid(1, 0)}, Next: NoNode}},
		nil,
		{Kind: KindLeaf, Leaf: &LeafBody{Keys: []int64{2}, Values: []record.RecordId{rid(2, 0)}, Next: NoNode}},
	}
	tree := FromPersistentState(4, NodeID(0), NodeID(0), 2, nodes)
	if tree.NodeCount() != 3 {
		t.Fatalf("NodeCount() = %d, want 3", tree.NodeCount())
	}
	if len(tree.freeList) != 1 || tree.freeList[0] != NodeID(1) {
		t.Fatalf("freeList = %v, want [1]", tree.freeList)
	}
	if v, ok := tree.Search(1); !ok || v != rid(1, 0) {
		t.Fatalf("Search(1) after rebuild = (%v, %v)", v, ok)
	}
}

// checkTreeInvariants walks the whole tree and fails the test if any
// structural invariant is violated: key/child parity and occupancy bounds
// per node, covering-max keys on every internal node, a sorted leaf chain
// reachable from FirstLeafID, and an entry count that matches the chain.
func checkTreeInvariants(t *testing.T, tree *BPlusTree) {
	t.Helper()

	if tree.RootNodeID() == NoNode {
		if tree.Len() != 0 {
			t.Fatalf("empty tree with Len() = %d", tree.Len())
		}
		if tree.FirstLeafID() != NoNode {
			t.Fatalf("empty tree with firstLeaf = %d", tree.FirstLeafID())
		}
		return
	}

	minLeaf := tree.minLeafEntries()
	minChildren := tree.minInternalChildren()

	var walk func(id NodeID, isRoot bool) int64
	walk = func(id NodeID, isRoot bool) int64 {
		n := tree.GetNode(id)
		if n == nil {
			t.Fatalf("node %d referenced but missing from arena", id)
		}
		if n.IsLeaf() {
			entries := len(n.Leaf.Keys)
			if entries != len(n.Leaf.Values) {
				t.Fatalf("leaf %d: %d keys but %d values", id, entries, len(n.Leaf.Values))
			}
			if !isRoot && (entries < minLeaf || entries > tree.Order()-1) {
				t.Fatalf("leaf %d occupancy %d outside [%d, %d]", id, entries, minLeaf, tree.Order()-1)
			}
			return n.Leaf.MaxKey()
		}
		b := n.Internal
		if len(b.Keys) != len(b.Children) {
			t.Fatalf("internal %d: %d keys but %d children", id, len(b.Keys), len(b.Children))
		}
		if !isRoot && (len(b.Children) < minChildren || len(b.Children) > tree.Order()) {
			t.Fatalf("internal %d occupancy %d outside [%d, %d]", id, len(b.Children), minChildren, tree.Order())
		}
		if isRoot && len(b.Children) < 2 {
			t.Fatalf("internal root %d has %d children, want >= 2", id, len(b.Children))
		}
		for i, child := range b.Children {
			max := walk(child, false)
			if b.Keys[i] != max {
				t.Fatalf("internal %d key[%d] = %d, but subtree max is %d", id, i, b.Keys[i], max)
			}
		}
		return b.Keys[len(b.Keys)-1]
	}
	walk(tree.RootNodeID(), true)

	count := 0
	first := true
	var prev int64
	for id := tree.FirstLeafID(); id != NoNode; {
		leaf := tree.GetNode(id).Leaf
		for _, k := range leaf.Keys {
			if !first && k < prev {
				t.Fatalf("leaf chain out of order: %d after %d", k, prev)
			}
			prev, first = k, false
			count++
		}
		id = leaf.Next
	}
	if count != tree.Len() {
		t.Fatalf("leaf chain holds %d entries, Len() = %d", count, tree.Len())
	}
}

// TestLeafSplitCreatesRootWithCoveringMaxes pins down the exact shape of
// the first split in an order-4 tree: inserting 10,20,30,40 leaves the
// root a 3-entry leaf until the 4th insert, which splits it into {10,20}
// and {30,40} under a fresh internal root carrying covering maxes 20,40.
func TestLeafSplitCreatesRootWithCoveringMaxes(t *testing.T) {
	tree, _ := NewBPlusTree(4)
	for _, k := range []int64{10, 20, 30} {
		if err := tree.Insert(k, rid(uint32(k), 0)); err != nil {
			t.Fatal(err)
		}
	}
	if tree.Height() != 1 {
		t.Fatalf("height before overflow = %d, want 1", tree.Height())
	}
	if err := tree.Insert(40, rid(40, 0)); err != nil {
		t.Fatal(err)
	}
	if tree.Height() != 2 {
		t.Fatalf("height after split = %d, want 2", tree.Height())
	}

	root := tree.GetNode(tree.RootNodeID())
	if !root.IsInternal() || len(root.Internal.Keys) != 2 {
		t.Fatalf("unexpected root shape: %+v", root)
	}
	if root.Internal.Keys[0] != 20 || root.Internal.Keys[1] != 40 {
		t.Fatalf("root keys = %v, want [20 40]", root.Internal.Keys)
	}
	left := tree.GetNode(root.Internal.Children[0]).Leaf
	right := tree.GetNode(root.Internal.Children[1]).Leaf
	if len(left.Keys) != 2 || left.Keys[0] != 10 || left.Keys[1] != 20 {
		t.Fatalf("left leaf keys = %v, want [10 20]", left.Keys)
	}
	if len(right.Keys) != 2 || right.Keys[0] != 30 || right.Keys[1] != 40 {
		t.Fatalf("right leaf keys = %v, want [30 40]", right.Keys)
	}

	if v, ok := tree.Search(30); !ok || v != rid(30, 0) {
		t.Fatalf("Search(30) = (%v, %v)", v, ok)
	}
	pairs := tree.RangeSearch(15, 35)
	if len(pairs) != 2 || pairs[0].Key != 20 || pairs[1].Key != 30 {
		t.Fatalf("RangeSearch(15,35) = %v, want keys [20 30]", pairs)
	}
	checkTreeInvariants(t, tree)
}

// TestDeleteRebalanceHoldsInvariants deletes the lower two thirds of a
// two-level tree one key at a time, checking every structural invariant
// after each removal and that the survivors stay reachable.
func TestDeleteRebalanceHoldsInvariants(t *testing.T) {
	tree, _ := NewBPlusTree(4)
	for k := int64(0); k <= 90; k += 10 {
		if err := tree.Insert(k, rid(uint32(k), 0)); err != nil {
			t.Fatal(err)
		}
	}
	if tree.Height() < 2 {
		t.Fatalf("height = %d, want >= 2", tree.Height())
	}
	checkTreeInvariants(t, tree)

	for k := int64(0); k <= 60; k += 10 {
		if !tree.Delete(k) {
			t.Fatalf("Delete(%d) reported false", k)
		}
		checkTreeInvariants(t, tree)
	}
	for k := int64(70); k <= 90; k += 10 {
		if v, ok := tree.Search(k); !ok || v != rid(uint32(k), 0) {
			t.Fatalf("Search(%d) = (%v, %v) after rebalance", k, v, ok)
		}
	}
}

// TestInsertDeleteEntryRestoresState checks the insert/delete_entry
// round-trip law: adding then removing the same pair leaves Len() and
// every invariant exactly where they started.
func TestInsertDeleteEntryRestoresState(t *testing.T) {
	tree, _ := NewBPlusTree(4)
	insertRange(t, tree, 1, 12)
	before := tree.Len()
	checkTreeInvariants(t, tree)

	if err := tree.Insert(6, rid(600, 0)); err != nil {
		t.Fatal(err)
	}
	checkTreeInvariants(t, tree)
	if !tree.DeleteEntry(6, rid(600, 0)) {
		t.Fatal("DeleteEntry of the just-inserted pair failed")
	}
	if tree.Len() != before {
		t.Fatalf("Len() = %d after round trip, want %d", tree.Len(), before)
	}
	checkTreeInvariants(t, tree)
}

// TestDeleteToEmptyThenReinsert drives the tree to empty and back to a
// singleton root leaf.
func TestDeleteToEmptyThenReinsert(t *testing.T) {
	tree, _ := NewBPlusTree(3)
	tree.Insert(5, rid(5, 0))
	if !tree.Delete(5) {
		t.Fatal("Delete(5) failed")
	}
	if tree.RootNodeID() != NoNode || tree.FirstLeafID() != NoNode || tree.Len() != 0 {
		t.Fatal("tree should be fully empty after deleting its only entry")
	}

	tree.Insert(7, rid(7, 0))
	if tree.RootNodeID() == NoNode || tree.RootNodeID() != tree.FirstLeafID() {
		t.Fatal("reinsert should re-establish a singleton root leaf")
	}
	if v, ok := tree.Search(7); !ok || v != rid(7, 0) {
		t.Fatalf("Search(7) = (%v, %v)", v, ok)
	}
	checkTreeInvariants(t, tree)
}

// TestMinimumOrderSplit exercises the smallest legal order: a 3-entry
// overflow at m=3 must split into a 1-entry and a 2-entry leaf under a
// new root.
func TestMinimumOrderSplit(t *testing.T) {
	tree, _ := NewBPlusTree(3)
	insertRange(t, tree, 1, 3)
	if tree.Height() != 2 {
		t.Fatalf("height = %d after overflow at m=3, want 2", tree.Height())
	}
	root := tree.GetNode(tree.RootNodeID())
	left := tree.GetNode(root.Internal.Children[0]).Leaf
	right := tree.GetNode(root.Internal.Children[1]).Leaf
	if len(left.Keys)+len(right.Keys) != 3 {
		t.Fatalf("split lost entries: left=%v right=%v", left.Keys, right.Keys)
	}
	if len(left.Keys) != 1 || len(right.Keys) != 2 {
		t.Fatalf("split halves = %d+%d, want 1+2", len(left.Keys), len(right.Keys))
	}
	checkTreeInvariants(t, tree)
}

// TestMixedWorkloadHoldsInvariants interleaves inserts, duplicate
// inserts, deletes, and entry deletes, checking the full invariant set
// after every step.
func TestMixedWorkloadHoldsInvariants(t *testing.T) {
	tree, _ := NewBPlusTree(4)
	for k := int64(0); k < 40; k++ {
		if err := tree.Insert(k%10, rid(uint32(k), 0)); err != nil {
			t.Fatal(err)
		}
		checkTreeInvariants(t, tree)
	}
	for k := int64(0); k < 10; k++ {
		if !tree.Delete(k) {
			t.Fatalf("Delete(%d) failed", k)
		}
		checkTreeInvariants(t, tree)
	}
	if tree.Len() != 30 {
		t.Fatalf("Len() = %d, want 30", tree.Len())
	}
	for k := int64(0); k < 10; k++ {
		all := tree.SearchAll(k)
		if len(all) != 3 {
			t.Fatalf("SearchAll(%d) = %d entries, want 3", k, len(all))
		}
	}
}
