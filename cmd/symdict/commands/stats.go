package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/symdict/pkg/dict"
	"github.com/Sumatoshi-tech/symdict/pkg/safeconv"
)

// Stats output formats.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// ErrInvalidFormat is returned for an unknown stats output format.
var ErrInvalidFormat = errors.New("format must be one of table, json, yaml")

// statsReport is the serializable summary of a built dictionary.
type statsReport struct {
	Keys          int    `json:"keys"           yaml:"keys"`
	Height        int    `json:"height"         yaml:"height"`
	BlackDepth    int    `json:"black_depth"    yaml:"black_depth"`
	ArenaSlots    int    `json:"arena_slots"    yaml:"arena_slots"`
	ArenaUsed     int    `json:"arena_used"     yaml:"arena_used"`
	KeyPoolBytes  int    `json:"key_pool_bytes" yaml:"key_pool_bytes"`
	Rotations     uint64 `json:"rotations"      yaml:"rotations"`
	Recolorings   uint64 `json:"recolorings"    yaml:"recolorings"`
	CaseSensitive bool   `json:"case_sensitive" yaml:"case_sensitive"`
	Hibernated    bool   `json:"hibernated"     yaml:"hibernated"`
}

// StatsCommand holds configuration for the stats command.
type StatsCommand struct {
	inputPath string
	format    string
	sensitive bool

	app *App
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(app *App) *cobra.Command {
	sc := &StatsCommand{app: app}

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Report dictionary statistics",
		Long:  "Build a dictionary from key input and report its shape and arena statistics.",
		Args:  cobra.NoArgs,
		RunE:  sc.run,
	}

	cmd.Flags().StringVarP(&sc.inputPath, "input", "i", "", "Key input file (default: stdin)")
	cmd.Flags().StringVar(&sc.format, "format", formatTable, "Output format: table, json, yaml")
	cmd.Flags().BoolVar(&sc.sensitive, "sensitive", false, "Compare keys byte for byte instead of case-folded")

	return cmd
}

func (sc *StatsCommand) run(cmd *cobra.Command, _ []string) error {
	switch sc.format {
	case formatTable, formatJSON, formatYAML:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidFormat, sc.format)
	}

	return sc.app.runOp(cmd, "symdict.stats", func(ctx context.Context) error {
		data, err := readKeys(cmd, sc.inputPath)
		if err != nil {
			return err
		}

		d, err := sc.app.buildDict(ctx, data, sc.app.caseSensitive(cmd, sc.sensitive))
		if err != nil {
			return err
		}
		defer d.Close()

		return writeStatsReport(cmd.OutOrStdout(), sc.format, buildStatsReport(d))
	})
}

func buildStatsReport(d *dict.Dict) statsReport {
	stats := d.Stats()
	allocator := d.Allocator()

	return statsReport{
		Keys:          d.Len(),
		Height:        d.Height(),
		BlackDepth:    d.Validate(),
		ArenaSlots:    allocator.Size(),
		ArenaUsed:     allocator.Used(),
		KeyPoolBytes:  allocator.KeyPoolSize(),
		Rotations:     stats.Rotations,
		Recolorings:   stats.Recolorings,
		CaseSensitive: d.CaseSensitive(),
		Hibernated:    allocator.Hibernated(),
	}
}

func writeStatsReport(out io.Writer, format string, report statsReport) error {
	switch format {
	case formatJSON:
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")

		err := encoder.Encode(report)
		if err != nil {
			return fmt.Errorf("encode stats: %w", err)
		}

		return nil
	case formatYAML:
		data, err := yaml.Marshal(report)
		if err != nil {
			return fmt.Errorf("encode stats: %w", err)
		}

		_, err = out.Write(data)

		return err
	default:
		fmt.Fprintln(out, renderStatsTable(report))

		return nil
	}
}

func renderStatsTable(report statsReport) string {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Property", "Value"})
	tbl.AppendRow(table.Row{"keys", humanize.Comma(int64(report.Keys))})
	tbl.AppendRow(table.Row{"tree height", report.Height})
	tbl.AppendRow(table.Row{"black depth", report.BlackDepth})
	tbl.AppendRow(table.Row{"arena slots", humanize.Comma(int64(report.ArenaSlots))})
	tbl.AppendRow(table.Row{"arena used", humanize.Comma(int64(report.ArenaUsed))})
	tbl.AppendRow(table.Row{"key pool", humanize.Bytes(uint64(report.KeyPoolBytes))})
	tbl.AppendRow(table.Row{"rotations", humanize.Comma(safeconv.SafeInt64(report.Rotations))})
	tbl.AppendRow(table.Row{"recolorings", humanize.Comma(safeconv.SafeInt64(report.Recolorings))})
	tbl.AppendRow(table.Row{"case sensitive", report.CaseSensitive})
	tbl.AppendRow(table.Row{"hibernated", report.Hibernated})

	return tbl.Render()
}
