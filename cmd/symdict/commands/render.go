package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/symdict/pkg/dict"
	"github.com/Sumatoshi-tech/symdict/pkg/rbtree"
	"github.com/Sumatoshi-tech/symdict/pkg/safeconv"
)

const (
	chartWidth  = "1400px"
	chartHeight = "900px"

	nodeColorRed   = "#c0392b"
	nodeColorBlack = "#2c3e50"
)

// ErrNoOutputFile is returned when render is called without --output.
var ErrNoOutputFile = errors.New("output file is required (use --output)")

// RenderCommand holds configuration for the render command.
type RenderCommand struct {
	inputPath  string
	outputPath string
	sensitive  bool

	app *App
}

// NewRenderCommand creates the render command.
func NewRenderCommand(app *App) *cobra.Command {
	rc := &RenderCommand{app: app}

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render the tree as a standalone HTML chart",
		Long: "Build a dictionary from key input and write its red-black tree as a\n" +
			"self-contained HTML page, node labels holding the keys.",
		Args: cobra.NoArgs,
		RunE: rc.run,
	}

	cmd.Flags().StringVarP(&rc.inputPath, "input", "i", "", "Key input file (default: stdin)")
	cmd.Flags().StringVarP(&rc.outputPath, "output", "o", "", "Output HTML file")
	cmd.Flags().BoolVar(&rc.sensitive, "sensitive", false, "Compare keys byte for byte instead of case-folded")

	return cmd
}

func (rc *RenderCommand) run(cmd *cobra.Command, _ []string) error {
	if rc.outputPath == "" {
		return ErrNoOutputFile
	}

	return rc.app.runOp(cmd, "symdict.render", func(ctx context.Context) error {
		data, err := readKeys(cmd, rc.inputPath)
		if err != nil {
			return err
		}

		d, err := rc.app.buildDict(ctx, data, rc.app.caseSensitive(cmd, rc.sensitive))
		if err != nil {
			return err
		}
		defer d.Close()

		file, err := os.Create(rc.outputPath)
		if err != nil {
			return fmt.Errorf("create output %s: %w", rc.outputPath, err)
		}

		page := components.NewPage()
		page.AddCharts(buildTreeChart(d))

		err = page.Render(file)
		if err != nil {
			_ = file.Close()

			return fmt.Errorf("render page: %w", err)
		}

		err = file.Close()
		if err != nil {
			return fmt.Errorf("close output: %w", err)
		}

		rc.app.progressf(cmd, "rendered keys=%d output=%s", d.Len(), rc.outputPath)

		return nil
	})
}

func buildTreeChart(d *dict.Dict) *charts.Tree {
	title := opts.Title{
		Title:    "symdict red-black tree",
		Subtitle: fmt.Sprintf("%d keys, height %d", d.Len(), d.Height()),
	}

	tree := charts.NewTree()
	tree.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight}),
		charts.WithTitleOpts(title),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "item"}),
	)

	seed := []opts.TreeData{{Name: "(empty)"}}
	if root := treeChartData(d.Root()); root != nil {
		seed = []opts.TreeData{*root}
	}

	tree.AddSeries("dictionary", seed,
		charts.WithTreeOpts(opts.TreeChart{
			Orient:           "TB",
			InitialTreeDepth: -1,
			Leaves:           &opts.TreeLeaves{Label: &opts.Label{Show: opts.Bool(true), Position: "bottom"}},
			Label:            &opts.Label{Show: opts.Bool(true), Position: "top"},
			Left:             "5%", Right: "5%", Top: "10%", Bottom: "10%",
		}),
	)

	return tree
}

// treeChartData mirrors the tree structure into chart nodes, red and black
// carried as item colors.
func treeChartData(iter rbtree.Iterator) *opts.TreeData {
	if iter.Limit() {
		return nil
	}

	style := &opts.ItemStyle{Color: nodeColorBlack}
	if iter.Red() {
		style = &opts.ItemStyle{Color: nodeColorRed}
	}

	data := &opts.TreeData{
		Name:      string(iter.Key()),
		Value:     safeconv.MustInt64ToInt(iter.Value()),
		ItemStyle: style,
	}

	if left := treeChartData(iter.Left()); left != nil {
		data.Children = append(data.Children, left)
	}

	if right := treeChartData(iter.Right()); right != nil {
		data.Children = append(data.Children, right)
	}

	return data
}
