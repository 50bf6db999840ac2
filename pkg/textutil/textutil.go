// Package textutil provides byte-level input plumbing: visible-ASCII
// trimming, bounded line scanning, and binary detection.
package textutil

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
)

// Visible US-ASCII range kept by TrimVisible.
const (
	visibleFirst = 0x20
	visibleLast  = 0x7E
)

// MaxLineLen is the longest accepted content of one input line, in bytes,
// the line terminator excluded.
const MaxLineLen = 1022

// BinarySniffLen caps how many leading bytes IsBinary inspects for a null
// byte. Matches the heuristic used by Git and most editors.
const BinarySniffLen = 8000

var (
	// ErrLineTooLong is returned when an input line exceeds MaxLineLen bytes.
	ErrLineTooLong = errors.New("input line is too long")

	// ErrTooManyLines is returned when the physical line counter would overflow.
	ErrTooManyLines = errors.New("too many lines in input")
)

// IsBinary reports whether data holds a null byte within its first
// BinarySniffLen bytes. Empty input is not binary.
func IsBinary(data []byte) bool {
	sniff := data[:min(len(data), BinarySniffLen)]

	return bytes.ContainsRune(sniff, 0x00)
}

// TrimVisible strips leading and trailing bytes outside the visible US-ASCII
// range 0x20-0x7E. Interior bytes are untouched. The returned slice aliases
// data.
func TrimVisible(data []byte) []byte {
	start := 0
	for start < len(data) && (data[start] < visibleFirst || data[start] > visibleLast) {
		start++
	}

	end := len(data)
	for end > start && (data[end-1] < visibleFirst || data[end-1] > visibleLast) {
		end--
	}

	return data[start:end]
}

// LineScanner yields input lines one at a time together with their 1-based
// physical line numbers. Every physical line consumes a number, blank ones
// included; lines that are blank after trimming are skipped by Scan. A line
// longer than MaxLineLen fails the scan.
type LineScanner struct {
	scanner *bufio.Scanner
	line    int
	current []byte
	err     error
}

// NewLineScanner creates a scanner over reader.
func NewLineScanner(reader io.Reader) *LineScanner {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, MaxLineLen), MaxLineLen)

	return &LineScanner{scanner: scanner}
}

// Scan advances to the next non-blank line. It returns false at the end of
// input or on error; Err tells which.
func (ls *LineScanner) Scan() bool {
	if ls.err != nil {
		return false
	}

	for ls.scanner.Scan() {
		if ls.line >= math.MaxInt32 {
			ls.err = ErrTooManyLines

			return false
		}

		ls.line++

		trimmed := TrimVisible(ls.scanner.Bytes())
		if len(trimmed) == 0 {
			continue
		}

		ls.current = trimmed

		return true
	}

	if scanErr := ls.scanner.Err(); scanErr != nil {
		if errors.Is(scanErr, bufio.ErrTooLong) {
			ls.err = fmt.Errorf("%w: line %d", ErrLineTooLong, ls.line+1)
		} else {
			ls.err = scanErr
		}
	}

	return false
}

// Line returns the 1-based physical number of the current line.
func (ls *LineScanner) Line() int {
	return ls.line
}

// Bytes returns the trimmed content of the current line. The slice is only
// valid until the next Scan call.
func (ls *LineScanner) Bytes() []byte {
	return ls.current
}

// Err returns the first error encountered, nil at a clean end of input.
func (ls *LineScanner) Err() error {
	return ls.err
}
