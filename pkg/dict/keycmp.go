package dict

import "bytes"

// ASCII letter bounds for case folding.
const (
	asciiUpperA = 0x41
	asciiLowerA = 0x61
	asciiLowerZ = 0x7A

	asciiCaseGap = asciiLowerA - asciiUpperA
)

// foldByte maps a-z onto A-Z and leaves every other byte unchanged.
func foldByte(b byte) byte {
	if b >= asciiLowerA && b <= asciiLowerZ {
		return b - asciiCaseGap
	}

	return b
}

// FoldKey returns a copy of key with every lowercase ASCII letter replaced by
// its uppercase counterpart. The input is never modified.
func FoldKey(key []byte) []byte {
	folded := make([]byte, len(key))

	for idx, b := range key {
		folded[idx] = foldByte(b)
	}

	return folded
}

// Compare is a three-way byte-string comparison. With sensitive=true it is
// plain byte-wise lexicographic order. With sensitive=false both operands are
// folded a-z onto A-Z byte by byte, so "apple", "APPLE" and "aPpLe" name the
// same key. Either way a strict prefix sorts before its extensions and the
// empty key sorts before everything.
func Compare(a, b []byte, sensitive bool) int {
	if sensitive {
		return bytes.Compare(a, b)
	}

	limit := min(len(a), len(b))

	for idx := range limit {
		ca := foldByte(a[idx])
		cb := foldByte(b[idx])

		switch {
		case ca < cb:
			return -1
		case ca > cb:
			return 1
		}
	}

	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}

	return 0
}
