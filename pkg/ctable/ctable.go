// Package ctable maps bytes of the source character set onto visible
// US-ASCII. The table is built from a character literal, so it holds whatever
// encoding this build of the program actually uses for source text, and only
// the 95 visible characters 0x20-0x7E have mappings at all.
package ctable

import (
	"fmt"
	"sync"
)

// charRef lists the visible US-ASCII characters 0x20-0x7E in source order.
const charRef = " !\"#$%&'()*+,-./" +
	"0123456789:;<=>?" +
	"@ABCDEFGHIJKLMNO" +
	"PQRSTUVWXYZ[\\]^_" +
	"`abcdefghijklmno" +
	"pqrstuvwxyz{|}~"

const (
	asciiVisibleFirst = 0x20
	asciiVisibleLast  = 0x7E
)

var (
	prepareOnce sync.Once

	// table maps a source byte to its US-ASCII code; zero means unmapped.
	table [256]byte
)

// Prepare builds the translation table. It runs at most once per process and
// concurrent first calls are safe. Every translating function prepares the
// table on its own, so calling Prepare up front is optional.
func Prepare() {
	prepareOnce.Do(func() {
		for ascii := asciiVisibleFirst; ascii <= asciiVisibleLast; ascii++ {
			source := charRef[ascii-asciiVisibleFirst]
			if table[source] != 0 {
				panic(fmt.Sprintf("ctable: source byte %#x maps twice", source))
			}

			table[source] = byte(ascii)
		}
	})
}

// Lookup translates one source byte to its visible US-ASCII equivalent.
// The second return is false when the byte has no mapping.
func Lookup(source byte) (byte, bool) {
	Prepare()

	ascii := table[source]

	return ascii, ascii != 0
}

// ASCII translates one source byte to its visible US-ASCII equivalent.
// Only bytes that map into 0x20-0x7E are supported; any other byte is a
// caller contract breach and panics.
func ASCII(source byte) byte {
	ascii, ok := Lookup(source)
	if !ok {
		panic(fmt.Sprintf("ctable: byte %#x has no US-ASCII mapping", source))
	}

	return ascii
}

// Translate maps every byte of key through the table, returning a new slice.
// The input is never modified.
func Translate(key []byte) []byte {
	translated := make([]byte, len(key))

	for idx, b := range key {
		translated[idx] = ASCII(b)
	}

	return translated
}
