package rbtree //nolint:testpackage // corruption and hibernation tests reach into the arena internals

import (
	"bytes"
	"fmt"
	"maps"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Create a tree keyed by raw bytes in lexicographic order.
func newByteTree() *RBTree {
	return NewRBTree(NewAllocator(), bytes.Compare)
}

func insertKey(tree *RBTree, key string) bool {
	ok, _ := tree.Insert([]byte(key), int64(len(key)))

	return ok
}

// keysForward walks from it up to Limit and joins the keys.
func keysForward(it Iterator) string {
	var sb strings.Builder

	for ; !it.Limit(); it = it.Next() {
		if sb.Len() > 0 {
			sb.WriteByte(',')
		}

		sb.Write(it.Key())
	}

	return sb.String()
}

// keysBackward walks from it down to NegativeLimit and joins the keys.
func keysBackward(it Iterator) string {
	var sb strings.Builder

	for ; !it.NegativeLimit(); it = it.Prev() {
		if sb.Len() > 0 {
			sb.WriteByte(',')
		}

		sb.Write(it.Key())
	}

	return sb.String()
}

func TestEmptyTree(t *testing.T) {
	t.Parallel()

	tree := newByteTree()

	assert.Equal(t, 0, tree.Len())
	assert.True(t, tree.Max().NegativeLimit())
	assert.True(t, tree.Min().Limit())
	assert.True(t, tree.Find([]byte("anything")).Limit())
	assert.Nil(t, tree.Get([]byte("anything")))
	assert.True(t, tree.Limit().Equal(tree.Min()))
	assert.Equal(t, -1, tree.Validate())
	assert.Equal(t, 0, tree.Height())
	assert.Empty(t, tree.Dump())
}

func TestNewRBTreeNilComparator(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { NewRBTree(NewAllocator(), nil) })
}

func TestInsertDuplicate(t *testing.T) {
	t.Parallel()

	tree := newByteTree()

	ok, it := tree.Insert([]byte("melon"), 17)
	require.True(t, ok)
	assert.Equal(t, "melon", string(it.Key()))
	assert.Equal(t, int64(17), it.Value())

	// The duplicate leaves the stored value alone.
	ok, _ = tree.Insert([]byte("melon"), 99)
	assert.False(t, ok)
	assert.Equal(t, 1, tree.Len())
	assert.Equal(t, int64(17), *tree.Get([]byte("melon")))
}

func TestGet(t *testing.T) {
	t.Parallel()

	tree := newByteTree()
	tree.Insert([]byte("pear"), -4)

	stored := tree.Get([]byte("pear"))
	require.NotNil(t, stored)
	assert.Equal(t, int64(-4), *stored)

	// The pointer writes through to the tree.
	*stored = 6
	assert.Equal(t, int64(6), *tree.Get([]byte("pear")))

	// Neither a prefix nor an extension of a stored key matches.
	assert.Nil(t, tree.Get([]byte("pea")))
	assert.Nil(t, tree.Get([]byte("pears")))
}

func TestFind(t *testing.T) {
	t.Parallel()

	tree := newByteTree()
	tree.Insert([]byte("fig"), 1)
	tree.Insert([]byte("figure"), 2)

	it := tree.Find([]byte("fig"))
	require.False(t, it.Limit())
	assert.Equal(t, "fig", string(it.Key()))

	// Lookups are exact, never by prefix.
	assert.True(t, tree.Find([]byte("fi")).Limit())
	assert.True(t, tree.Find([]byte("figs")).Limit())
}

func TestEmptyKey(t *testing.T) {
	t.Parallel()

	tree := newByteTree()

	ok, _ := tree.Insert(nil, 42)
	require.True(t, ok)
	assert.Equal(t, int64(42), *tree.Get([]byte{}))

	insertKey(tree, "a")
	assert.Empty(t, string(tree.Min().Key()))
	assert.Equal(t, "a", string(tree.Max().Key()))
}

func TestIterationOrder(t *testing.T) {
	t.Parallel()

	tree := newByteTree()

	for _, key := range []string{"d", "b", "h", "f"} {
		require.True(t, insertKey(tree, key))
	}

	assert.Equal(t, "b,d,f,h", keysForward(tree.Min()))
	assert.Equal(t, "h,f,d,b", keysBackward(tree.Max()))
	assert.Equal(t, "f,h", keysForward(tree.Find([]byte("f"))))
}

func TestIteratorSentinelPanics(t *testing.T) {
	t.Parallel()

	tree := newByteTree()
	insertKey(tree, "k")

	assert.Panics(t, func() { tree.Limit().Next() })
	assert.Panics(t, func() { tree.NegativeLimit().Prev() })
	assert.Panics(t, func() { tree.Limit().Key() })
	assert.Panics(t, func() { tree.NegativeLimit().Value() })
}

// model mirrors the tree with a plain map for randomized cross-checking.
type model struct {
	values map[string]int64
}

func (m *model) insert(key string, value int64) bool {
	if _, dup := m.values[key]; dup {
		return false
	}

	m.values[key] = value

	return true
}

func (m *model) sortedKeys() []string {
	return slices.Sorted(maps.Keys(m.values))
}

// treeSnapshot walks the whole tree forward and backward, requires that both
// walks agree, and returns the forward key list.
func treeSnapshot(tb testing.TB, tree *RBTree) []string {
	tb.Helper()

	forward := []string{}
	for it := tree.Min(); !it.Limit(); it = it.Next() {
		forward = append(forward, string(it.Key()))
	}

	backward := []string{}
	for it := tree.Max(); !it.NegativeLimit(); it = it.Prev() {
		backward = append(backward, string(it.Key()))
	}

	slices.Reverse(backward)
	require.Equal(tb, forward, backward, "forward and backward walks disagree")

	return forward
}

func TestRandomizedAgainstModel(t *testing.T) {
	t.Parallel()

	const keySpace = 1000

	ref := &model{values: map[string]int64{}}
	tree := newByteTree()
	rng := rand.New(rand.NewPCG(7, 11))

	for round := range 10000 {
		key := strconv.Itoa(int(rng.Int32N(keySpace)))

		switch draw := rng.Int32N(100); {
		case draw < 50:
			value := rng.Int64N(2_000_000) - 1_000_000
			want := ref.insert(key, value)

			ok, it := tree.Insert([]byte(key), value)
			require.Equal(t, want, ok, "insert %q", key)

			if ok {
				require.Equal(t, key, string(it.Key()))
				require.Equal(t, value, it.Value())
			}
		case draw < 75:
			want, present := ref.values[key]

			got := tree.Get([]byte(key))
			if present {
				require.NotNil(t, got, "get %q", key)
				require.Equal(t, want, *got)
			} else {
				require.Nil(t, got, "get %q", key)
			}
		default:
			it := tree.Find([]byte(key))

			if _, present := ref.values[key]; present {
				require.False(t, it.Limit(), "find %q", key)
				require.Equal(t, key, string(it.Key()))
			} else {
				require.True(t, it.Limit(), "find %q", key)
			}
		}

		if round%1000 == 999 {
			require.Equal(t, ref.sortedKeys(), treeSnapshot(t, tree))
			tree.Validate()
		}
	}

	assert.Equal(t, len(ref.values), tree.Len())
	assert.Positive(t, tree.Validate())
}

func TestAllocatorFreeSentinel(t *testing.T) {
	t.Parallel()

	arena := NewAllocator()
	arena.malloc([]byte("x"))
	assert.PanicsWithValue(t, "rbtree: slot 0 is the nil sentinel", func() { arena.free(0) })
}

func TestAllocatorDoubleFree(t *testing.T) {
	t.Parallel()

	arena := NewAllocator()
	slot := arena.malloc([]byte("x"))
	arena.free(slot)
	assert.Panics(t, func() { arena.free(slot) })
}

func TestCloneShallow(t *testing.T) {
	t.Parallel()

	arena := NewAllocator()
	tree := NewRBTree(arena, bytes.Compare)
	tree.Insert([]byte("g"), 7)
	tree.Insert([]byte("p"), 8)

	require.Equal(t, []node{
		{},
		{keyLen: 1, value: 7, right: 2, black: true},
		{keyOff: 1, keyLen: 1, value: 8, parent: 1},
	}, arena.storage)
	require.Equal(t, uint32(1), tree.leftmost)
	require.Equal(t, uint32(2), tree.rightmost)

	copied := arena.Clone()
	mirror := tree.CloneShallow(copied)

	assert.Equal(t, arena.storage, copied.storage)
	assert.Equal(t, uint32(1), mirror.leftmost)
	assert.Equal(t, uint32(2), mirror.rightmost)
	assert.Equal(t, 3, copied.Size())
	assert.Equal(t, 2, copied.KeyPoolSize())

	// The original keeps growing without disturbing the clone.
	tree.Insert([]byte("a"), 9)

	assert.Equal(t, 3, tree.Len())
	assert.Equal(t, 2, mirror.Len())
	assert.Equal(t, 3, copied.Size())
}

func TestCloneDeep(t *testing.T) {
	t.Parallel()

	tree := newByteTree()
	tree.Insert([]byte("g"), 7)

	detached := NewAllocator()
	mirror := tree.CloneDeep(detached)

	require.Equal(t, []node{{}, {keyLen: 1, value: 7, black: true}}, detached.storage)
	assert.Equal(t, uint32(1), mirror.leftmost)
	assert.Equal(t, uint32(1), mirror.rightmost)
	assert.Equal(t, 2, detached.Size())
	assert.Equal(t, "g", string(mirror.Min().Key()))

	tree.Insert([]byte("p"), 8)

	detached = NewAllocator()
	mirror = tree.CloneDeep(detached)

	require.Equal(t, []node{
		{},
		{keyLen: 1, value: 7, right: 2, black: true},
		{keyOff: 1, keyLen: 1, value: 8, parent: 1},
	}, detached.storage)
	assert.Equal(t, uint32(1), mirror.leftmost)
	assert.Equal(t, uint32(2), mirror.rightmost)
	assert.Equal(t, 3, detached.Size())
	assert.Equal(t, tree.Validate(), mirror.Validate())
}

func TestErase(t *testing.T) {
	t.Parallel()

	tree := newByteTree()
	arena := tree.Allocator()

	for idx := range 10 {
		insertKey(tree, strconv.Itoa(idx))
	}

	require.Equal(t, 11, arena.Used())
	tree.Erase()
	assert.Equal(t, 1, arena.Used())
	assert.Equal(t, 11, arena.Size())
	assert.Equal(t, 0, tree.Len())
	assert.Equal(t, -1, tree.Validate())
	assert.True(t, tree.Min().Limit())

	// Freed slots come back on the next inserts, stale key bytes do not.
	for idx := range 10 {
		insertKey(tree, strconv.Itoa(idx))
	}

	assert.Equal(t, 11, arena.Size())
	assert.Equal(t, 11, arena.Used())
	assert.Equal(t, 20, arena.KeyPoolSize())
	assert.Positive(t, tree.Validate())
	assert.Equal(t, "0", string(tree.Min().Key()))
	assert.Equal(t, "9", string(tree.Max().Key()))
}

func TestEraseEmpty(t *testing.T) {
	t.Parallel()

	tree := newByteTree()
	tree.Erase()
	assert.Equal(t, 0, tree.Len())
	assert.Equal(t, -1, tree.Validate())
}

func TestAllocatorHibernateBoot(t *testing.T) {
	t.Parallel()

	const slots = 10000

	arena := NewAllocator()
	keys := make([]string, 0, slots)
	poolLen := 0

	for idx := range slots {
		key := strconv.Itoa(idx)
		slot := arena.malloc([]byte(key))
		nd := &arena.storage[slot]
		nd.value = int64(3*idx) - 7777
		nd.left = uint32(idx)
		nd.right = uint32(idx + 1)
		nd.parent = uint32(idx / 2)
		nd.black = idx%3 == 0
		keys = append(keys, key)
		poolLen += len(key)
	}

	// A gap entry for every slot exercises the gaps buffer. The arena is
	// not a consistent tree here and does not need to be.
	for idx := range slots {
		arena.gaps[uint32(idx)] = true
	}

	arena.Hibernate()

	assert.PanicsWithValue(t, "rbtree: allocator is already hibernated", arena.Hibernate)
	assert.Nil(t, arena.storage)
	assert.Nil(t, arena.gaps)
	assert.Nil(t, arena.keys)
	assert.Equal(t, 0, arena.Size())
	assert.True(t, arena.Hibernated())
	assert.Equal(t, slots+1, arena.hibernatedStorageLen)
	assert.Equal(t, slots, arena.hibernatedGapsLen)
	assert.Equal(t, poolLen, arena.hibernatedKeysLen)

	blocked := map[string]func(){
		"Used":        func() { arena.Used() },
		"KeyPoolSize": func() { arena.KeyPoolSize() },
		"malloc":      func() { arena.malloc([]byte("k")) },
		"free":        func() { arena.free(1) },
	}
	for name, call := range blocked {
		assert.PanicsWithValue(t, "rbtree: allocator is hibernated", call, name)
	}

	assert.PanicsWithValue(t, "rbtree: cannot clone while hibernated", func() { arena.Clone() })

	arena.Boot()

	assert.Equal(t, 0, arena.hibernatedStorageLen)
	assert.Equal(t, 0, arena.hibernatedGapsLen)
	assert.Equal(t, 0, arena.hibernatedKeysLen)
	assert.False(t, arena.Hibernated())

	for _, buffer := range arena.hibernatedData {
		assert.Nil(t, buffer)
	}

	for idx := range slots {
		restored := arena.storage[idx+1]
		require.Equal(t, int64(3*idx)-7777, restored.value)
		require.Equal(t, uint32(idx), restored.left)
		require.Equal(t, uint32(idx+1), restored.right)
		require.Equal(t, uint32(idx/2), restored.parent)
		require.Equal(t, idx%3 == 0, restored.black)
		require.Equal(t, keys[idx], string(arena.keySpan(restored.keyOff, restored.keyLen)))
		require.True(t, arena.gaps[uint32(idx)])
	}
}

func TestAllocatorHibernateEmpty(t *testing.T) {
	t.Parallel()

	arena := NewAllocator()
	arena.Hibernate()
	arena.Boot()
	assert.NotNil(t, arena.gaps)
	assert.Equal(t, 0, arena.Size())
	assert.Equal(t, 0, arena.Used())
	assert.Equal(t, 0, arena.KeyPoolSize())
}

func TestAllocatorHibernateThreshold(t *testing.T) {
	t.Parallel()

	arena := NewAllocator()
	arena.malloc([]byte("a"))
	arena.HibernationThreshold = 3
	assert.Equal(t, 3, arena.Clone().HibernationThreshold)

	// Two slots, sentinel included, sit below the threshold of three.
	arena.Hibernate()
	assert.False(t, arena.Hibernated())

	arena.Boot()
	arena.malloc([]byte("b"))
	arena.Hibernate()
	assert.Equal(t, 0, arena.hibernatedGapsLen)
	assert.Equal(t, 3, arena.hibernatedStorageLen)

	arena.Boot()
	assert.Equal(t, 3, arena.Size())
	assert.Equal(t, 3, arena.Used())
	assert.Equal(t, 2, arena.KeyPoolSize())
	assert.NotNil(t, arena.gaps)
}

func TestAllocatorAccessor(t *testing.T) {
	t.Parallel()

	arena := NewAllocator()
	tree := NewRBTree(arena, bytes.Compare)

	assert.Same(t, arena, tree.Allocator())

	tree.Insert([]byte("e"), 5)
	tree.Insert([]byte("j"), 10)

	assert.Same(t, arena, tree.Allocator())
	// The sentinel slot counts as used.
	assert.Equal(t, 3, arena.Used())
}

func TestNegativeLimitRoundTrip(t *testing.T) {
	t.Parallel()

	tree := newByteTree()

	for _, key := range []string{"e", "j", "o"} {
		insertKey(tree, key)
	}

	before := tree.NegativeLimit()
	require.True(t, before.NegativeLimit())
	require.False(t, before.Limit())

	// One step forward lands on the minimum.
	first := before.Next()
	assert.False(t, first.NegativeLimit())
	assert.Equal(t, "e", string(first.Key()))

	assert.True(t, newByteTree().NegativeLimit().NegativeLimit())
}

func TestIteratorMinMaxFlags(t *testing.T) {
	t.Parallel()

	tree := newByteTree()

	for _, key := range []string{"e", "j", "o"} {
		insertKey(tree, key)
	}

	assert.True(t, tree.Min().Min())
	assert.False(t, tree.Min().Max())
	assert.Equal(t, "e", string(tree.Min().Key()))

	assert.True(t, tree.Max().Max())
	assert.False(t, tree.Max().Min())
	assert.Equal(t, "o", string(tree.Max().Key()))

	middle := tree.Find([]byte("j"))
	assert.False(t, middle.Min())
	assert.False(t, middle.Max())

	// A lone element is both extremes at once.
	lone := newByteTree()
	insertKey(lone, "z")
	assert.True(t, lone.Min().Min())
	assert.True(t, lone.Min().Max())
}

// Builds "a", "b", "c": after rebalancing "b" is the black root with
// red children "a" (node 1) and "c" (node 3).
func threeNodeTree() *RBTree {
	tree := newByteTree()
	tree.Insert([]byte("a"), 1)
	tree.Insert([]byte("b"), 2)
	tree.Insert([]byte("c"), 3)

	return tree
}

func TestValidateClean(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, threeNodeTree().Validate())
}

func TestValidateRedRoot(t *testing.T) {
	t.Parallel()

	tree := threeNodeTree()
	tree.nodes()[2].black = false
	assert.Panics(t, func() { tree.Validate() })
}

func TestValidateRedRedEdge(t *testing.T) {
	t.Parallel()

	tree := threeNodeTree()
	tree.Insert([]byte("d"), 4)
	require.Equal(t, 2, tree.Validate())

	// "c" turned black during the "d" fixup; repainting it red leaves
	// "d" as a red child of a red parent.
	tree.nodes()[3].black = false
	assert.Panics(t, func() { tree.Validate() })
}

func TestValidateBlackDepth(t *testing.T) {
	t.Parallel()

	tree := threeNodeTree()
	tree.nodes()[1].black = true
	assert.Panics(t, func() { tree.Validate() })
}

func TestValidateParentLink(t *testing.T) {
	t.Parallel()

	tree := threeNodeTree()
	tree.nodes()[3].parent = 1
	assert.Panics(t, func() { tree.Validate() })
}

func TestValidateKeyOrder(t *testing.T) {
	t.Parallel()

	tree := threeNodeTree()

	nodes := tree.nodes()
	nodes[1].keyOff, nodes[3].keyOff = nodes[3].keyOff, nodes[1].keyOff
	assert.Panics(t, func() { tree.Validate() })
}

func TestValidateCountMismatch(t *testing.T) {
	t.Parallel()

	tree := threeNodeTree()
	tree.size = 5
	assert.Panics(t, func() { tree.Validate() })
}

func TestDump(t *testing.T) {
	t.Parallel()

	tree := newByteTree()
	tree.Insert([]byte("b"), 2)
	assert.Equal(t, "b:b\n", tree.Dump())

	tree.Insert([]byte("a"), 1)
	tree.Insert([]byte("c"), 3)
	assert.Equal(t, " r:a\nb:b\n r:c\n", tree.Dump())
}

func TestHeight(t *testing.T) {
	t.Parallel()

	tree := newByteTree()
	assert.Equal(t, 0, tree.Height())

	tree.Insert([]byte("b"), 2)
	assert.Equal(t, 1, tree.Height())

	tree.Insert([]byte("a"), 1)
	tree.Insert([]byte("c"), 3)
	assert.Equal(t, 2, tree.Height())
}

func TestRootAndChildren(t *testing.T) {
	t.Parallel()

	tree := newByteTree()
	assert.True(t, tree.Root().Limit())

	tree.Insert([]byte("b"), 2)
	tree.Insert([]byte("a"), 1)
	tree.Insert([]byte("c"), 3)

	root := tree.Root()
	require.False(t, root.Limit())
	assert.Equal(t, "b", string(root.Key()))
	assert.False(t, root.Red())

	left := root.Left()
	require.False(t, left.Limit())
	assert.Equal(t, "a", string(left.Key()))
	assert.True(t, left.Red())

	right := root.Right()
	require.False(t, right.Limit())
	assert.Equal(t, "c", string(right.Key()))
	assert.True(t, right.Red())

	// Leaves have no children.
	assert.True(t, left.Left().Limit())
	assert.True(t, left.Right().Limit())
}

func TestInsertAscendingStaysBalanced(t *testing.T) {
	t.Parallel()

	tree := newByteTree()

	for idx := range 1000 {
		ok, _ := tree.Insert([]byte(fmt.Sprintf("%04d", idx)), int64(idx))
		require.True(t, ok)
	}

	assert.Equal(t, 1000, tree.Len())
	assert.Positive(t, tree.Validate())

	// 2*log2(1001)+1 rounds up to 21.
	assert.LessOrEqual(t, tree.Height(), 21)
	assert.Equal(t, "0000", string(tree.Min().Key()))
	assert.Equal(t, "0999", string(tree.Max().Key()))

	stats := tree.Stats()
	assert.Positive(t, stats.Rotations)
	assert.Positive(t, stats.Recolorings)
}
