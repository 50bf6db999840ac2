package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/symdict/pkg/dict"
	"github.com/Sumatoshi-tech/symdict/pkg/rbtree"
	"github.com/Sumatoshi-tech/symdict/pkg/safeconv"
	"github.com/Sumatoshi-tech/symdict/pkg/textutil"
)

var (
	// ErrBinaryInput is returned when the key input contains null bytes.
	ErrBinaryInput = errors.New("input looks binary")

	// ErrDuplicateKey is returned when the key input repeats a key.
	ErrDuplicateKey = errors.New("duplicate key")
)

// readKeys reads the key input from path, or stdin when path is empty, and
// refuses binary payloads.
func readKeys(cmd *cobra.Command, path string) ([]byte, error) {
	var (
		data []byte
		err  error
		name string
	)

	if path == "" {
		name = "stdin"

		data, err = io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
	} else {
		name = path

		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read input %s: %w", path, err)
		}
	}

	if textutil.IsBinary(data) {
		return nil, fmt.Errorf("%w: %s", ErrBinaryInput, name)
	}

	return data, nil
}

// buildDict loads one key per input line into a fresh dictionary. Values are
// the 1-based physical line numbers of the keys. Keys are translated to the
// dictionary character set on the way in, which is safe because the line
// scanner only yields visible-ASCII content.
func (app *App) buildDict(ctx context.Context, data []byte, sensitive bool) (*dict.Dict, error) {
	allocator := rbtree.NewAllocator()
	allocator.HibernationThreshold = app.hibernationThreshold()

	d := dict.NewWithAllocator(sensitive, allocator)

	startedAt := time.Now()
	scanner := textutil.NewLineScanner(bytes.NewReader(data))

	for scanner.Scan() {
		line := scanner.Line()

		if !d.InsertTranslated(scanner.Bytes(), int64(line)) {
			app.metrics.RecordInsert(ctx, false)
			d.Close()

			return nil, fmt.Errorf("%w %q at line %d", ErrDuplicateKey, scanner.Bytes(), line)
		}

		app.metrics.RecordInsert(ctx, true)
	}

	err := scanner.Err()
	if err != nil {
		d.Close()

		return nil, fmt.Errorf("scan input: %w", err)
	}

	stats := d.Stats()
	app.metrics.RecordRebalance(ctx, safeconv.SafeInt64(stats.Rotations), safeconv.SafeInt64(stats.Recolorings))
	app.metrics.RecordBatch(ctx, time.Since(startedAt))

	return d, nil
}
