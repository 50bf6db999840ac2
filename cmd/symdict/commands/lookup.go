package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/symdict/pkg/ctable"
	"github.com/Sumatoshi-tech/symdict/pkg/textutil"
)

// ErrUntranslatableQuery is returned when a query key holds a byte outside
// the dictionary character set.
var ErrUntranslatableQuery = errors.New("query key is not translatable")

// LookupCommand holds configuration for the lookup command.
type LookupCommand struct {
	inputPath string
	sensitive bool

	app *App
}

// NewLookupCommand creates the lookup command.
func NewLookupCommand(app *App) *cobra.Command {
	lc := &LookupCommand{app: app}

	cmd := &cobra.Command{
		Use:   "lookup [query key]...",
		Short: "Build a dictionary from key input and resolve query keys",
		Long: "Build a dictionary from key input, one key per line, then resolve\n" +
			"each query key to the line number it was defined on.",
		Args: cobra.MinimumNArgs(1),
		RunE: lc.run,
	}

	cmd.Flags().StringVarP(&lc.inputPath, "input", "i", "", "Key input file (default: stdin)")
	cmd.Flags().BoolVar(&lc.sensitive, "sensitive", false, "Compare keys byte for byte instead of case-folded")

	return cmd
}

func (lc *LookupCommand) run(cmd *cobra.Command, args []string) error {
	return lc.app.runOp(cmd, "symdict.lookup", func(ctx context.Context) error {
		data, err := readKeys(cmd, lc.inputPath)
		if err != nil {
			return err
		}

		d, err := lc.app.buildDict(ctx, data, lc.app.caseSensitive(cmd, lc.sensitive))
		if err != nil {
			return err
		}
		defer d.Close()

		lc.app.progressf(cmd, "dictionary built keys=%d height=%d", d.Len(), d.Height())

		out := cmd.OutOrStdout()

		for _, arg := range args {
			key, err := normalizeQuery(arg)
			if err != nil {
				return err
			}

			line := d.Get(key, 0)
			found := line != 0
			lc.app.metrics.RecordLookup(ctx, found)

			if found {
				fmt.Fprintf(out, "%s: line %d\n", key, line)
			} else {
				fmt.Fprintf(out, "%s: not found\n", key)
			}
		}

		return nil
	})
}

// normalizeQuery translates a query key to the dictionary character set and
// trims it the same way input lines are trimmed.
func normalizeQuery(arg string) ([]byte, error) {
	translated := make([]byte, len(arg))

	for idx := range len(arg) {
		b, ok := ctable.Lookup(arg[idx])
		if !ok {
			return nil, fmt.Errorf("%w: %q holds byte %#x", ErrUntranslatableQuery, arg, arg[idx])
		}

		translated[idx] = b
	}

	return textutil.TrimVisible(translated), nil
}
