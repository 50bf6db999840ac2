// Package dict implements an ordered dictionary mapping byte-string keys to
// signed 64-bit values on top of the arena red-black tree.
package dict

import (
	"fmt"

	"github.com/Sumatoshi-tech/symdict/pkg/ctable"
	"github.com/Sumatoshi-tech/symdict/pkg/rbtree"
)

// MaxKeyLen is the longest accepted key, in bytes. Offering a longer key to
// Insert is a caller contract breach and panics.
const MaxKeyLen = 16384

// Dict encapsulates a balanced binary tree storing byte-string keys in
// lexicographic order, either byte-exact or ASCII case-folded. Users are not
// supposed to create Dict-s directly; instead, they should call New() or
// NewWithAllocator().
//
// Insert() adds a key with its value and rejects duplicates.
//
// Get() resolves a key to its value without ever mutating the dictionary.
//
// Dump() writes the tree to a string and Validate() checks the tree integrity.
type Dict struct {
	tree      *rbtree.RBTree
	sensitive bool
	closed    bool
}

// New creates an empty dictionary with its own node arena. With
// sensitive=false keys are folded a-z onto A-Z when stored and compared.
func New(sensitive bool) *Dict {
	return NewWithAllocator(sensitive, rbtree.NewAllocator())
}

// NewWithAllocator creates an empty dictionary on a shared node arena.
// Sensitivity is fixed for the dictionary's lifetime.
func NewWithAllocator(sensitive bool, allocator *rbtree.Allocator) *Dict {
	cmp := func(a, b []byte) int {
		return Compare(a, b, sensitive)
	}

	return &Dict{tree: rbtree.NewRBTree(allocator, cmp), sensitive: sensitive}
}

func (dict *Dict) guard() {
	if dict == nil {
		panic("dict: use of a nil dictionary")
	}

	if dict.closed {
		panic("dict: use after Close")
	}
}

// Insert adds key with its value. Returns false and changes nothing when an
// equal key is already present; the first value stays. A case-insensitive
// dictionary stores the folded key, so iteration and Dump reveal the folded
// form. Keys may be empty; they may not be nil or longer than MaxKeyLen.
func (dict *Dict) Insert(key []byte, value int64) bool {
	dict.guard()

	if key == nil {
		panic("dict: nil key")
	}

	if len(key) > MaxKeyLen {
		panic(fmt.Sprintf("dict: key length %d exceeds the %d byte limit", len(key), MaxKeyLen))
	}

	stored := key
	if !dict.sensitive {
		stored = FoldKey(key)
	}

	inserted, _ := dict.tree.Insert(stored, value)

	return inserted
}

// InsertTranslated maps every key byte through the source character table
// before the normal Insert path. A key byte without a US-ASCII mapping is
// fatal.
func (dict *Dict) InsertTranslated(key []byte, value int64) bool {
	dict.guard()

	if key == nil {
		panic("dict: nil key")
	}

	return dict.Insert(ctable.Translate(key), value)
}

// Get returns the value stored under key, or def when the key is absent.
// The lookup never mutates the dictionary and never translates the key; a
// case-insensitive dictionary folds during comparison instead.
func (dict *Dict) Get(key []byte, def int64) int64 {
	dict.guard()

	if key == nil {
		panic("dict: nil key")
	}

	value := dict.tree.Get(key)
	if value == nil {
		return def
	}

	return *value
}

// Len returns the number of entries in the dictionary.
func (dict *Dict) Len() int {
	dict.guard()

	return dict.tree.Len()
}

// CaseSensitive reports whether keys are compared byte-exact.
func (dict *Dict) CaseSensitive() bool {
	dict.guard()

	return dict.sensitive
}

// ForEach visits every entry in ascending key order. The key slice aliases
// the arena's key pool and must not be modified or retained.
func (dict *Dict) ForEach(callback func(key []byte, value int64)) {
	dict.guard()

	for iter := dict.tree.Min(); !iter.Limit(); iter = iter.Next() {
		callback(iter.Key(), iter.Value())
	}
}

// Dump writes the tree to a string: inorder, one entry per line, indented by
// tree depth, with an "r:" or "b:" color prefix before the stored key.
func (dict *Dict) Dump() string {
	dict.guard()

	return dict.tree.Dump()
}

// Validate checks the underlying tree integrity and returns the black depth
// of the exit nodes, -1 when the dictionary is empty. Any violation panics.
func (dict *Dict) Validate() int {
	dict.guard()

	return dict.tree.Validate()
}

// Height returns the number of nodes on the longest root-to-leaf path.
func (dict *Dict) Height() int {
	dict.guard()

	return dict.tree.Height()
}

// Stats returns the tree's rebalancing counters.
func (dict *Dict) Stats() rbtree.Stats {
	dict.guard()

	return dict.tree.Stats()
}

// Root returns an iterator at the root of the underlying tree, for
// structural walks. The iterator is Limit() when the dictionary is empty.
func (dict *Dict) Root() rbtree.Iterator {
	dict.guard()

	return dict.tree.Root()
}

// Allocator exposes the dictionary's node arena, for pooled arenas and
// hibernation control.
func (dict *Dict) Allocator() *rbtree.Allocator {
	dict.guard()

	return dict.tree.Allocator()
}

// Close tears down the dictionary and returns every node slot to the arena.
// Safe to call on a nil dictionary and more than once; any other use after
// Close panics.
func (dict *Dict) Close() {
	if dict == nil || dict.closed {
		return
	}

	dict.tree.Erase()
	dict.closed = true
}
