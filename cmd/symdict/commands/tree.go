package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/symdict/pkg/dict"
	"github.com/Sumatoshi-tech/symdict/pkg/rbtree"
	"github.com/Sumatoshi-tech/symdict/pkg/safeconv"
	"github.com/Sumatoshi-tech/symdict/pkg/textutil"
)

// ErrTreeCorrupt is returned when structural validation of the tree fails.
var ErrTreeCorrupt = errors.New("tree validation failed")

// TreeCommand holds configuration for the tree command.
type TreeCommand struct {
	inputPath string
	noColor   bool

	app *App
}

// NewTreeCommand creates the tree command.
func NewTreeCommand(app *App) *cobra.Command {
	tc := &TreeCommand{app: app}

	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Verify tree shape and print a colored structure dump",
		Long: "Build a case-insensitive dictionary from key input, re-validating the\n" +
			"whole tree after every insertion, then print the inorder structure dump\n" +
			"with red nodes rendered in red.",
		Args: cobra.NoArgs,
		RunE: tc.run,
	}

	cmd.Flags().StringVarP(&tc.inputPath, "input", "i", "", "Key input file (default: stdin)")
	cmd.Flags().BoolVar(&tc.noColor, "no-color", false, "Disable colored dump output")

	return cmd
}

func (tc *TreeCommand) run(cmd *cobra.Command, _ []string) error {
	if tc.noColor {
		color.NoColor = true //nolint:reassign // intentional override of library global
	}

	return tc.app.runOp(cmd, "symdict.tree", func(ctx context.Context) error {
		data, err := readKeys(cmd, tc.inputPath)
		if err != nil {
			return err
		}

		d, duplicates, err := tc.buildChecked(ctx, cmd, data)
		if err != nil {
			return err
		}
		defer d.Close()

		if duplicates > 0 {
			tc.app.progressf(cmd, "skipped %d duplicate keys", duplicates)
		}

		depth, err := checkedValidate(d)
		if err != nil {
			fmt.Fprint(cmd.ErrOrStderr(), d.Dump())

			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "tree verified, black depth %d\n", depth)

		writeColoredDump(out, d.Dump())

		return nil
	})
}

// buildChecked inserts every input line into a case-insensitive dictionary,
// validating the whole tree after each insertion. Duplicate keys are counted
// and skipped. On a validation failure the dump goes to stderr.
func (tc *TreeCommand) buildChecked(ctx context.Context, cmd *cobra.Command, data []byte) (*dict.Dict, int, error) {
	allocator := rbtree.NewAllocator()
	allocator.HibernationThreshold = tc.app.hibernationThreshold()

	d := dict.NewWithAllocator(false, allocator)
	duplicates := 0

	scanner := textutil.NewLineScanner(bytes.NewReader(data))

	for scanner.Scan() {
		line := scanner.Line()
		inserted := d.Insert(scanner.Bytes(), int64(line))
		tc.app.metrics.RecordInsert(ctx, inserted)

		if !inserted {
			duplicates++

			continue
		}

		_, err := checkedValidate(d)
		if err != nil {
			fmt.Fprint(cmd.ErrOrStderr(), d.Dump())
			d.Close()

			return nil, 0, fmt.Errorf("after inserting line %d: %w", line, err)
		}
	}

	err := scanner.Err()
	if err != nil {
		d.Close()

		return nil, 0, fmt.Errorf("scan input: %w", err)
	}

	stats := d.Stats()
	tc.app.metrics.RecordRebalance(ctx, safeconv.SafeInt64(stats.Rotations), safeconv.SafeInt64(stats.Recolorings))

	return d, duplicates, nil
}

// checkedValidate converts validation panics into errors so a broken tree
// fails the command instead of crashing it.
func checkedValidate(d *dict.Dict) (depth int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTreeCorrupt, r)
		}
	}()

	return d.Validate(), nil
}

// writeColoredDump prints a structure dump with "r:" lines rendered red.
func writeColoredDump(out io.Writer, dump string) {
	if dump == "" {
		return
	}

	red := color.New(color.FgRed)

	for _, line := range strings.Split(strings.TrimSuffix(dump, "\n"), "\n") {
		if strings.HasPrefix(strings.TrimLeft(line, " "), "r:") {
			red.Fprintln(out, line)
		} else {
			fmt.Fprintln(out, line)
		}
	}
}
