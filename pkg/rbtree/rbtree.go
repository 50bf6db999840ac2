// Package rbtree implements a red-black tree over byte-string keys with
// arena-backed node storage and LZ4 hibernation for idle trees.
package rbtree

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"
	"sync"
)

// Hibernated buffer layout: eight deinterleaved node field columns,
// then the gaps set, then the key pool.
const (
	fieldBufferCount   = 8
	gapsBufferIndex    = 8
	keyPoolBufferIndex = 9
	hibernationBuffers = 10
)

// Comparator is a three-way ordering over raw key bytes. It must be a pure
// function: negative when a sorts before b, zero on equality, positive
// otherwise. The ordering is fixed for the lifetime of a tree.
type Comparator func(a, b []byte) int

// Allocator is the arena for nodes of one or more RBTrees. Node links are
// uint32 indices into the arena, so rotations are index reassignments and
// never pointer surgery. Key bytes live in a shared append-only pool; freed
// node slots are recycled through the gaps set, while their key bytes stay in
// the pool until the allocator itself is released.
type Allocator struct {
	storage []node
	keys    []byte
	gaps    map[uint32]bool

	HibernationThreshold int

	hibernatedData                                             [hibernationBuffers][]byte
	hibernatedStorageLen, hibernatedGapsLen, hibernatedKeysLen int
}

// NewAllocator creates an empty arena ready for malloc.
func NewAllocator() *Allocator {
	return &Allocator{storage: []node{}, keys: []byte{}, gaps: map[uint32]bool{}}
}

// Size returns the number of node slots in the arena, occupied or not.
func (arena *Allocator) Size() int {
	return len(arena.storage)
}

// Used counts the occupied slots, freed gaps excluded.
func (arena *Allocator) Used() int {
	if arena.storage == nil {
		panic("rbtree: allocator is hibernated")
	}

	return len(arena.storage) - len(arena.gaps)
}

// KeyPoolSize returns the number of key bytes held by the arena.
func (arena *Allocator) KeyPoolSize() int {
	if arena.storage == nil {
		panic("rbtree: allocator is hibernated")
	}

	return len(arena.keys)
}

// Hibernated reports whether the allocator currently holds compressed state.
func (arena *Allocator) Hibernated() bool {
	return arena.hibernatedStorageLen > 0
}

// Clone duplicates the arena, gaps and key pool included.
func (arena *Allocator) Clone() *Allocator {
	if arena.storage == nil {
		panic("rbtree: cannot clone while hibernated")
	}

	dup := &Allocator{
		HibernationThreshold: arena.HibernationThreshold,
		storage:              make([]node, len(arena.storage), cap(arena.storage)),
		keys:                 make([]byte, len(arena.keys), cap(arena.keys)),
		gaps:                 make(map[uint32]bool, len(arena.gaps)),
	}
	copy(dup.storage, arena.storage)
	copy(dup.keys, arena.keys)
	maps.Copy(dup.gaps, arena.gaps)

	return dup
}

// Hibernate trades the live arena for LZ4-compressed buffers. Every accessor
// panics until Boot restores the memory. Arenas smaller than
// HibernationThreshold slots stay live and keep working.
func (arena *Allocator) Hibernate() {
	if arena.hibernatedStorageLen > 0 {
		panic("rbtree: allocator is already hibernated")
	}

	if len(arena.storage) < arena.HibernationThreshold {
		return
	}

	arena.hibernatedStorageLen = len(arena.storage)
	if arena.hibernatedStorageLen == 0 {
		arena.storage = nil
		arena.keys = nil

		return
	}

	columns := arena.deinterleave()
	arena.storage = nil

	var wg sync.WaitGroup

	wg.Add(hibernationBuffers)

	for slot := range columns {
		go func() {
			defer wg.Done()

			arena.hibernatedData[slot] = CompressUint32Slice(columns[slot])
			columns[slot] = nil
		}()
	}

	go func() {
		defer wg.Done()

		arena.compressGaps()
	}()

	go func() {
		defer wg.Done()

		arena.compressKeys()
	}()

	wg.Wait()
}

// deinterleave splits the node structs into one column per field. Columns
// compress far better than the interleaved structs would.
func (arena *Allocator) deinterleave() [fieldBufferCount][]uint32 {
	var columns [fieldBufferCount][]uint32

	for slot := range columns {
		columns[slot] = make([]uint32, len(arena.storage))
	}

	for idx, nd := range arena.storage {
		columns[0][idx] = nd.keyOff
		columns[1][idx] = nd.keyLen
		columns[2][idx] = uint32(uint64(nd.value))
		columns[3][idx] = uint32(uint64(nd.value) >> 32)
		columns[4][idx] = nd.left
		columns[5][idx] = nd.parent
		columns[6][idx] = nd.right

		if nd.black {
			columns[7][idx] = 1
		}
	}

	// Key offsets only grow, so their deltas stay small and repetitive.
	DeltaEncodeUint32Slice(columns[0])

	return columns
}

func (arena *Allocator) compressGaps() {
	if len(arena.gaps) > 0 {
		arena.hibernatedGapsLen = len(arena.gaps)
		holes := slices.Collect(maps.Keys(arena.gaps))
		arena.hibernatedData[gapsBufferIndex] = CompressUint32Slice(holes)
	}

	arena.gaps = nil
}

func (arena *Allocator) compressKeys() {
	arena.hibernatedKeysLen = len(arena.keys)

	if len(arena.keys) > 0 {
		arena.hibernatedData[keyPoolBufferIndex] = CompressByteSlice(arena.keys)
	}

	arena.keys = nil
}

// Boot rebuilds the arena from its hibernation buffers. Booting a live arena
// is a no-op.
func (arena *Allocator) Boot() {
	if arena.hibernatedStorageLen == 0 {
		if arena.storage == nil {
			// Hibernating an empty arena leaves nothing to decompress.
			arena.storage = []node{}
			arena.keys = []byte{}
			arena.gaps = map[uint32]bool{}
		}

		return
	}

	if arena.hibernatedData[0] == nil {
		panic("rbtree: hibernation buffers were discarded")
	}

	var columns [fieldBufferCount][]uint32

	var wg sync.WaitGroup

	wg.Add(hibernationBuffers)

	for slot := range columns {
		go func() {
			defer wg.Done()

			columns[slot] = make([]uint32, arena.hibernatedStorageLen)
			DecompressUint32Slice(arena.hibernatedData[slot], columns[slot])
			arena.hibernatedData[slot] = nil
		}()
	}

	go func() {
		defer wg.Done()

		arena.decompressGaps()
	}()

	go func() {
		defer wg.Done()

		arena.decompressKeys()
	}()

	wg.Wait()

	DeltaDecodeUint32Slice(columns[0])
	arena.reinterleave(columns)
	arena.hibernatedStorageLen = 0
}

func (arena *Allocator) decompressGaps() {
	arena.gaps = map[uint32]bool{}

	if arena.hibernatedGapsLen == 0 {
		return
	}

	holes := make([]uint32, arena.hibernatedGapsLen)
	DecompressUint32Slice(arena.hibernatedData[gapsBufferIndex], holes)

	for _, slot := range holes {
		arena.gaps[slot] = true
	}

	arena.hibernatedData[gapsBufferIndex] = nil
	arena.hibernatedGapsLen = 0
}

func (arena *Allocator) decompressKeys() {
	restored := make([]byte, arena.hibernatedKeysLen)

	if arena.hibernatedKeysLen > 0 {
		DecompressByteSlice(arena.hibernatedData[keyPoolBufferIndex], restored)
	}

	arena.keys = restored
	arena.hibernatedData[keyPoolBufferIndex] = nil
	arena.hibernatedKeysLen = 0
}

func (arena *Allocator) reinterleave(columns [fieldBufferCount][]uint32) {
	total := arena.hibernatedStorageLen

	// Rebuild with the same 3/2 headroom a growing arena would have.
	arena.storage = make([]node, total, total+total/2)

	for idx := range arena.storage {
		nd := &arena.storage[idx]
		nd.keyOff = columns[0][idx]
		nd.keyLen = columns[1][idx]
		nd.value = int64(uint64(columns[2][idx]) | uint64(columns[3][idx])<<32)
		nd.left = columns[4][idx]
		nd.parent = columns[5][idx]
		nd.right = columns[6][idx]
		nd.black = columns[7][idx] > 0
	}
}

// malloc claims a slot for key and returns its index. The key bytes are
// appended to the pool; a recycled slot abandons its previous bytes there.
func (arena *Allocator) malloc(key []byte) uint32 {
	if arena.storage == nil {
		panic("rbtree: allocator is hibernated")
	}

	if uint64(len(arena.keys))+uint64(len(key)) > math.MaxUint32 {
		panic("rbtree: key pool exceeds the uint32 offset space")
	}

	fresh := node{keyOff: uint32(len(arena.keys)), keyLen: uint32(len(key))}
	arena.keys = append(arena.keys, key...)

	for slot := range arena.gaps {
		delete(arena.gaps, slot)
		arena.storage[slot] = fresh

		return slot
	}

	if len(arena.storage) == 0 {
		// Slot 0 backs the nil links and is never handed out.
		arena.storage = append(arena.storage, node{})
	}

	slot := len(arena.storage)
	if slot >= beforeMinNode-1 {
		panic("rbtree: arena exceeds the uint32 index space")
	}

	arena.storage = append(arena.storage, fresh)

	return uint32(slot)
}

func (arena *Allocator) free(slot uint32) {
	if arena.storage == nil {
		panic("rbtree: allocator is hibernated")
	}

	if slot == 0 {
		panic("rbtree: slot 0 is the nil sentinel")
	}

	mustHold(!arena.gaps[slot])

	arena.storage[slot] = node{}
	arena.gaps[slot] = true
}

func (arena *Allocator) keySpan(off, length uint32) []byte {
	return arena.keys[off : off+length]
}

// RBTree is a red-black tree mapping byte-string keys to int64 values, with
// the key ordering chosen at construction time. Inserting a key that is
// already present changes nothing and reports a duplicate; single-key
// deletion is intentionally absent, the only removal path is Erase, the
// whole-tree teardown. All structural links are allocator indices.
type RBTree struct {
	// Node storage, possibly shared with sibling trees.
	arena *Allocator

	// Fixed key ordering.
	cmp Comparator

	root uint32

	// Cached extremes, kept current on insert.
	leftmost, rightmost uint32

	// Live node count.
	size int32

	// Rebalancing tallies since construction.
	rotations   uint64
	recolorings uint64
}

// Stats reports the rebalancing work performed by a tree since construction.
type Stats struct {
	// Rotations is the number of single rotations performed.
	Rotations uint64

	// Recolorings is the number of red-uncle recoloring passes.
	Recolorings uint64
}

// NewRBTree builds an empty tree that stores its nodes in allocator and
// orders keys by cmp.
func NewRBTree(allocator *Allocator, cmp Comparator) *RBTree {
	if cmp == nil {
		panic("rbtree: nil comparator")
	}

	return &RBTree{arena: allocator, cmp: cmp}
}

func (tree *RBTree) nodes() []node {
	return tree.arena.storage
}

func (tree *RBTree) keyOf(cur uint32) []byte {
	stored := &tree.arena.storage[cur]

	return tree.arena.keySpan(stored.keyOff, stored.keyLen)
}

// Allocator returns the bound nodes allocator.
func (tree *RBTree) Allocator() *Allocator {
	return tree.arena
}

// Len reports how many keys the tree holds.
func (tree *RBTree) Len() int {
	return int(tree.size)
}

// Stats returns the accumulated rebalancing counters.
func (tree *RBTree) Stats() Stats {
	return Stats{Rotations: tree.rotations, Recolorings: tree.recolorings}
}

// CloneShallow rebinds the tree to allocator without copying any nodes. The
// caller is responsible for the nodes actually existing there, which Clone
// on the arena guarantees.
func (tree *RBTree) CloneShallow(allocator *Allocator) *RBTree {
	dup := *tree
	dup.arena = allocator

	return &dup
}

// CloneDeep copies every element into allocator and rebuilds the links,
// yielding a tree fully detached from the receiver's arena.
func (tree *RBTree) CloneDeep(allocator *Allocator) *RBTree {
	dup := &RBTree{
		arena: allocator,
		cmp:   tree.cmp,
		size:  tree.size,
	}

	remap := map[uint32]uint32{}
	src := tree.nodes()

	for walk := tree.Min(); !walk.Limit(); walk = walk.Next() {
		fresh := allocator.malloc(tree.keyOf(walk.node))
		allocator.storage[fresh].value = src[walk.node].value
		allocator.storage[fresh].black = src[walk.node].black
		remap[walk.node] = fresh
	}

	// Index 0 is absent from remap, so nil links map to nil on their own.
	dst := allocator.storage

	for walk := tree.Min(); !walk.Limit(); walk = walk.Next() {
		mirror := &dst[remap[walk.node]]
		mirror.left = remap[src[walk.node].left]
		mirror.right = remap[src[walk.node].right]
		mirror.parent = remap[src[walk.node].parent]
	}

	dup.root = remap[tree.root]
	dup.leftmost = remap[tree.leftmost]
	dup.rightmost = remap[tree.rightmost]

	return dup
}

// Erase removes all the nodes from the tree and returns their slots to the
// allocator. The walk repeatedly descends to a childless node, unlinks it
// from its parent, frees it, and resumes from the parent, so the auxiliary
// state stays a couple of indices no matter how large the tree is. Safe to
// call on an empty tree.
func (tree *RBTree) Erase() {
	nodes := tree.nodes()
	cur := tree.root

	for cur != 0 {
		for {
			down := nodes[cur].left
			if down == 0 {
				down = nodes[cur].right
			}

			if down == 0 {
				break
			}

			cur = down
		}

		above := nodes[cur].parent
		tree.relinkChild(above, cur, 0)
		tree.arena.free(cur)

		cur = above
	}

	tree.root = 0
	tree.leftmost = 0
	tree.rightmost = 0
	tree.size = 0
}

// Get returns a pointer to the value stored under key, or nil when the key
// is absent. The pointer is only good until the next insert into the same
// arena.
func (tree *RBTree) Get(key []byte) *int64 {
	found := tree.find(key)
	if found == 0 {
		return nil
	}

	return &tree.nodes()[found].value
}

// Find locates the element with exactly the given key and returns an
// iterator pointing at it. If the key is absent, returns tree.Limit().
func (tree *RBTree) Find(key []byte) Iterator {
	return Iterator{tree: tree, node: tree.find(key)}
}

// Min returns an iterator at the smallest key, or Limit() on an empty tree.
func (tree *RBTree) Min() Iterator {
	return Iterator{tree: tree, node: tree.leftmost}
}

// Max returns an iterator at the largest key, or NegativeLimit() on an
// empty tree.
func (tree *RBTree) Max() Iterator {
	if tree.rightmost == 0 {
		return Iterator{tree: tree, node: beforeMinNode}
	}

	return Iterator{tree: tree, node: tree.rightmost}
}

// Limit returns the past-the-maximum sentinel iterator.
func (tree *RBTree) Limit() Iterator {
	return Iterator{tree: tree, node: 0}
}

// NegativeLimit returns the before-the-minimum sentinel iterator.
func (tree *RBTree) NegativeLimit() Iterator {
	return Iterator{tree: tree, node: beforeMinNode}
}

// Root creates an iterator at the root of the tree, for structural walks
// such as rendering. If the tree is empty, returns Limit().
func (tree *RBTree) Root() Iterator {
	return Iterator{tree: tree, node: tree.root}
}

// Insert adds a key with its value. If an equal key is already in the tree,
// nothing changes and the first result is false; that is the only expected
// failure of the engine. Else returns true and an iterator at the new
// element.
//
//nolint:gocognit // The five insertion cases read best as a single loop.
func (tree *RBTree) Insert(key []byte, value int64) (bool, Iterator) {
	// Attach first, so a duplicate key costs no rebalancing.
	cur := tree.attach(key, value)
	if cur == 0 {
		return false, Iterator{}
	}

	nodes := tree.nodes()
	placed := cur

	// Fresh nodes enter red, which keeps every path's black depth intact.
	nodes[cur].black = false

	for {
		parent := nodes[cur].parent

		// The root absorbs any leftover red.
		if parent == 0 {
			nodes[cur].black = true

			break
		}

		// A black parent already satisfies both color rules.
		if nodes[parent].black {
			break
		}

		grand := nodes[parent].parent

		uncle := nodes[grand].left
		if sitsLeft(nodes, parent) {
			uncle = nodes[grand].right
		}

		// A red uncle lets plain recoloring push the conflict two levels up.
		if uncle != 0 && !nodes[uncle].black {
			nodes[parent].black = true
			nodes[uncle].black = true
			nodes[grand].black = false
			tree.recolorings++
			cur = grand

			continue
		}

		// An inner red child must straighten into the outer position first.
		if sitsRight(nodes, cur) && sitsLeft(nodes, parent) {
			tree.rotate(parent, true)
			cur = nodes[cur].left

			continue
		}

		if sitsLeft(nodes, cur) && sitsRight(nodes, parent) {
			tree.rotate(parent, false)
			cur = nodes[cur].right

			continue
		}

		// An outer red child rotates the grandparent and trades colors.
		nodes[parent].black = true
		nodes[grand].black = false

		if sitsLeft(nodes, cur) {
			tree.rotate(grand, false)
		} else {
			tree.rotate(grand, true)
		}

		break
	}

	return true, Iterator{tree: tree, node: placed}
}

// An Iterator addresses one element of a tree and walks the elements in key
// order. Erase invalidates every iterator of the tree; Insert leaves
// existing iterators valid.
type Iterator struct {
	tree *RBTree
	node uint32
}

// Equal reports whether both iterators address the same element.
func (it Iterator) Equal(other Iterator) bool {
	return it.node == other.node
}

// Limit reports whether the iterator is past the maximum element.
func (it Iterator) Limit() bool {
	return it.node == 0
}

// Min reports whether the iterator addresses the minimum element.
func (it Iterator) Min() bool {
	return it.node == it.tree.leftmost
}

// Max reports whether the iterator addresses the maximum element.
func (it Iterator) Max() bool {
	return it.node == it.tree.rightmost
}

// NegativeLimit reports whether the iterator is before the minimum element.
func (it Iterator) NegativeLimit() bool {
	return it.node == beforeMinNode
}

// Key returns the key bytes of the current element. The returned slice
// aliases the arena's key pool and must not be modified.
//
// REQUIRES: !it.Limit() && !it.NegativeLimit().
func (it Iterator) Key() []byte {
	mustHold(!it.Limit() && !it.NegativeLimit())

	return it.tree.keyOf(it.node)
}

// Value returns the value of the current element.
//
// REQUIRES: !it.Limit() && !it.NegativeLimit().
func (it Iterator) Value() int64 {
	mustHold(!it.Limit() && !it.NegativeLimit())

	return it.tree.nodes()[it.node].value
}

// Next creates a new iterator at the successor of the current element.
//
// REQUIRES: !it.Limit().
func (it Iterator) Next() Iterator {
	mustHold(!it.Limit())

	if it.NegativeLimit() {
		return Iterator{tree: it.tree, node: it.tree.leftmost}
	}

	return Iterator{tree: it.tree, node: successorOf(it.node, it.tree.nodes())}
}

// Prev creates a new iterator at the predecessor of the current element.
//
// REQUIRES: !it.NegativeLimit().
func (it Iterator) Prev() Iterator {
	mustHold(!it.NegativeLimit())

	if !it.Limit() {
		return Iterator{tree: it.tree, node: predecessorOf(it.node, it.tree.nodes())}
	}

	if it.tree.rightmost == 0 {
		return Iterator{tree: it.tree, node: beforeMinNode}
	}

	return Iterator{tree: it.tree, node: it.tree.rightmost}
}

// Left creates an iterator at the left child of the current element, or
// Limit() if there is none.
//
// REQUIRES: !it.Limit() && !it.NegativeLimit().
func (it Iterator) Left() Iterator {
	mustHold(!it.Limit() && !it.NegativeLimit())

	return Iterator{tree: it.tree, node: it.tree.nodes()[it.node].left}
}

// Right creates an iterator at the right child of the current element, or
// Limit() if there is none.
//
// REQUIRES: !it.Limit() && !it.NegativeLimit().
func (it Iterator) Right() Iterator {
	mustHold(!it.Limit() && !it.NegativeLimit())

	return Iterator{tree: it.tree, node: it.tree.nodes()[it.node].right}
}

// Red reports whether the current element is colored red.
//
// REQUIRES: !it.Limit() && !it.NegativeLimit().
func (it Iterator) Red() bool {
	mustHold(!it.Limit() && !it.NegativeLimit())

	return !it.tree.nodes()[it.node].black
}

func mustHold(ok bool) {
	if !ok {
		panic("rbtree: invariant violated")
	}
}

// Slot 0 backs every nil link; the before-minimum sentinel sits at the far
// end of the index space.
const beforeMinNode = math.MaxUint32

// node is one tree slot. Links are arena indices, the key bytes live in the
// shared pool at keyOff.
type node struct {
	keyOff, keyLen uint32
	value          int64
	left, right    uint32
	parent         uint32
	black          bool
}

func sitsLeft(nodes []node, cur uint32) bool {
	return nodes[nodes[cur].parent].left == cur
}

func sitsRight(nodes []node, cur uint32) bool {
	return nodes[nodes[cur].parent].right == cur
}

// successorOf returns the next node in key order after cur, or 0 when cur is
// the maximum.
func successorOf(cur uint32, nodes []node) uint32 {
	if right := nodes[cur].right; right != 0 {
		walk := right
		for nodes[walk].left != 0 {
			walk = nodes[walk].left
		}

		return walk
	}

	// Climb until the walk arrives at a parent from its left side.
	for {
		up := nodes[cur].parent
		if up == 0 {
			return 0
		}

		if sitsLeft(nodes, cur) {
			return up
		}

		cur = up
	}
}

// predecessorOf returns the previous node in key order before cur, or the
// before-minimum sentinel when cur is the minimum.
func predecessorOf(cur uint32, nodes []node) uint32 {
	if nodes[cur].left != 0 {
		return rightmostUnder(nodes[cur].left, nodes)
	}

	for {
		up := nodes[cur].parent
		if up == 0 {
			return beforeMinNode
		}

		if sitsRight(nodes, cur) {
			return up
		}

		cur = up
	}
}

// rightmostUnder descends the right spine below start.
func rightmostUnder(start uint32, nodes []node) uint32 {
	for nodes[start].right != 0 {
		start = nodes[start].right
	}

	return start
}

func (tree *RBTree) noteMin(cur uint32) {
	switch {
	case tree.leftmost == 0:
		tree.leftmost, tree.rightmost = cur, cur
	case tree.cmp(tree.keyOf(cur), tree.keyOf(tree.leftmost)) < 0:
		tree.leftmost = cur
	}
}

func (tree *RBTree) noteMax(cur uint32) {
	switch {
	case tree.rightmost == 0:
		tree.leftmost, tree.rightmost = cur, cur
	case tree.cmp(tree.keyOf(cur), tree.keyOf(tree.rightmost)) > 0:
		tree.rightmost = cur
	}
}

// attach links a fresh leaf for the pair into its ordered position, without
// rebalancing. Returns 0 when the key is already present.
func (tree *RBTree) attach(key []byte, value int64) uint32 {
	if tree.root == 0 {
		cur := tree.arena.malloc(key)
		tree.nodes()[cur].value = value
		tree.root = cur
		tree.leftmost = cur
		tree.rightmost = cur
		tree.size++

		return cur
	}

	probe := tree.root
	nodes := tree.nodes()

	for {
		ord := tree.cmp(key, tree.keyOf(probe))

		switch {
		case ord == 0:
			return 0
		case ord < 0:
			if nodes[probe].left == 0 {
				cur := tree.arena.malloc(key)

				// The malloc may have moved the arena.
				nodes = tree.nodes()
				nodes[cur].value = value
				nodes[cur].parent = probe
				nodes[probe].left = cur
				tree.size++
				tree.noteMin(cur)

				return cur
			}

			probe = nodes[probe].left
		default:
			if nodes[probe].right == 0 {
				cur := tree.arena.malloc(key)

				nodes = tree.nodes()
				nodes[cur].value = value
				nodes[cur].parent = probe
				nodes[probe].right = cur
				tree.size++
				tree.noteMax(cur)

				return cur
			}

			probe = nodes[probe].right
		}
	}
}

// find walks from the root to the node with exactly the given key.
// Returns 0 when the key is absent.
func (tree *RBTree) find(key []byte) uint32 {
	nodes := tree.nodes()
	walk := tree.root

	for walk != 0 {
		switch ord := tree.cmp(key, tree.keyOf(walk)); {
		case ord == 0:
			return walk
		case ord < 0:
			walk = nodes[walk].left
		default:
			walk = nodes[walk].right
		}
	}

	return 0
}

// walkFrame is one pending subtree visit: a node, the parent it was reached
// from, and a per-walk depth counter.
type walkFrame struct {
	at    uint32
	above uint32
	depth int
}

// Validate re-checks every structural invariant of the tree: parent
// back-links, child relations and key order, root blackness, the absence of
// red-red edges, and the equal black depth of every exit node (a node missing
// one or both children). Any violation is a panic, a tree that fails these
// checks must never be used again. Returns the black depth of the exit nodes,
// or -1 for an empty tree.
//
//nolint:gocognit // A checklist over an explicit stack does not decompose well.
func (tree *RBTree) Validate() int {
	exitDepth := -1
	if tree.root == 0 {
		return exitDepth
	}

	nodes := tree.nodes()
	stack := []walkFrame{{at: tree.root, above: 0, depth: 0}}
	visited := 0

	for len(stack) > 0 {
		frame := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		visited++

		current := nodes[frame.at]

		if current.parent != frame.above {
			panic(fmt.Sprintf("rbtree: node %d parent link %d does not match its position under %d",
				frame.at, current.parent, frame.above))
		}

		if frame.above == 0 {
			if !current.black {
				panic("rbtree: the root is red")
			}
		} else {
			parent := nodes[frame.above]

			switch frame.at {
			case parent.left:
				if parent.right == frame.at {
					panic(fmt.Sprintf("rbtree: node %d is both children of %d", frame.at, frame.above))
				}

				if tree.cmp(tree.keyOf(frame.above), tree.keyOf(frame.at)) <= 0 {
					panic(fmt.Sprintf("rbtree: left child %d does not sort before its parent %d",
						frame.at, frame.above))
				}
			case parent.right:
				if tree.cmp(tree.keyOf(frame.above), tree.keyOf(frame.at)) >= 0 {
					panic(fmt.Sprintf("rbtree: right child %d does not sort after its parent %d",
						frame.at, frame.above))
				}
			default:
				panic(fmt.Sprintf("rbtree: node %d is not a child of its parent %d", frame.at, frame.above))
			}

			if !current.black && !parent.black {
				panic(fmt.Sprintf("rbtree: red node %d has a red parent %d", frame.at, frame.above))
			}
		}

		blackDepth := frame.depth
		if current.black {
			blackDepth++
		}

		if current.left == 0 || current.right == 0 {
			if exitDepth == -1 {
				exitDepth = blackDepth
			} else if exitDepth != blackDepth {
				panic(fmt.Sprintf("rbtree: exit node %d has black depth %d, want %d",
					frame.at, blackDepth, exitDepth))
			}
		}

		if current.left != 0 {
			stack = append(stack, walkFrame{at: current.left, above: frame.at, depth: blackDepth})
		}

		if current.right != 0 {
			stack = append(stack, walkFrame{at: current.right, above: frame.at, depth: blackDepth})
		}
	}

	if visited != int(tree.size) {
		panic(fmt.Sprintf("rbtree: reached %d nodes from the root, count says %d", visited, tree.size))
	}

	return exitDepth
}

// Dump renders the tree inorder, one node per line, indented by tree depth,
// with an "r:" or "b:" color prefix before the key bytes.
func (tree *RBTree) Dump() string {
	var sb strings.Builder

	nodes := tree.nodes()
	stack := make([]walkFrame, 0, 16)
	cursor := tree.root
	depth := 0

	for cursor != 0 || len(stack) > 0 {
		for cursor != 0 {
			stack = append(stack, walkFrame{at: cursor, depth: depth})
			cursor = nodes[cursor].left
			depth++
		}

		frame := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		current := nodes[frame.at]

		sb.WriteString(strings.Repeat(" ", frame.depth))

		if current.black {
			sb.WriteString("b:")
		} else {
			sb.WriteString("r:")
		}

		sb.Write(tree.keyOf(frame.at))
		sb.WriteByte('\n')

		cursor = current.right
		depth = frame.depth + 1
	}

	return sb.String()
}

// Height returns the number of nodes on the longest root-to-leaf path,
// zero for an empty tree. A balanced tree keeps this logarithmic in Len().
func (tree *RBTree) Height() int {
	if tree.root == 0 {
		return 0
	}

	nodes := tree.nodes()
	stack := []walkFrame{{at: tree.root, depth: 1}}
	height := 0

	for len(stack) > 0 {
		frame := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if frame.depth > height {
			height = frame.depth
		}

		current := nodes[frame.at]

		if current.left != 0 {
			stack = append(stack, walkFrame{at: current.left, depth: frame.depth + 1})
		}

		if current.right != 0 {
			stack = append(stack, walkFrame{at: current.right, depth: frame.depth + 1})
		}
	}

	return height
}

// relinkChild redirects whichever link of parent addresses from so that it
// addresses to instead. Parent 0 stands for the tree itself, so the root
// moves.
func (tree *RBTree) relinkChild(parent, from, to uint32) {
	nodes := tree.nodes()

	switch {
	case parent == 0:
		tree.root = to
	case nodes[parent].left == from:
		nodes[parent].left = to
	default:
		nodes[parent].right = to
	}
}

// rotate pivots the subtree at pivot one step leftward or rightward, lifting
// the child on the far side into pivot's place.
//
// Leftward:
//
//	  P                R
//	A   R     =>     P   C
//	   M C          A M
//
// Rightward is the mirror image.
func (tree *RBTree) rotate(pivot uint32, leftward bool) {
	nodes := tree.nodes()

	top := nodes[pivot].left
	if leftward {
		top = nodes[pivot].right
	}

	// Rotating without a child on the far side would detach the subtree.
	mustHold(top != 0)

	// The middle subtree crosses over to pivot.
	var mid uint32
	if leftward {
		mid = nodes[top].left
		nodes[pivot].right = mid
	} else {
		mid = nodes[top].right
		nodes[pivot].left = mid
	}

	if mid != 0 {
		nodes[mid].parent = pivot
	}

	upper := nodes[pivot].parent
	nodes[top].parent = upper
	tree.relinkChild(upper, pivot, top)

	if leftward {
		nodes[top].left = pivot
	} else {
		nodes[top].right = pivot
	}

	nodes[pivot].parent = top
	tree.rotations++
}
