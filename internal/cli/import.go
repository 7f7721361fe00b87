package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"costmanager/internal/core"
	"costmanager/internal/log"
)

// maxParallelParse bounds how many import files are read at once.
const maxParallelParse = 4

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	DryRun bool
}

// importRecord is one cost in an import file. Fields are kept as text so
// each row is checked with the same parsers as the add command.
type importRecord struct {
	Sum         string `yaml:"sum"`
	Category    string `yaml:"category"`
	Description string `yaml:"description"`
	Date        string `yaml:"date"`
}

// ImportSummary is the payload of the import command.
type ImportSummary struct {
	Files    int     `json:"files"`
	Imported int     `json:"imported"`
	IDs      []int64 `json:"ids,omitempty"`
	DryRun   bool    `json:"dry_run,omitempty"`
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <file>...",
		Short: "Import costs from YAML or JSON files",
		Long: `Import costs from YAML or JSON files. Each file holds a list of records:

  - sum: "12.50"
    category: Food
    description: lunch
    date: 2025-01-05

Every file is parsed and validated before anything is written, so a bad row
leaves the database untouched. Records are stored in file and row order.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRuntime(cmd, func(rt *Runtime, out *OutputFormatter) error {
				return importFiles(cmd.Context(), rt, out, args, opts.DryRun)
			})
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "validate the files without storing anything")

	return cmd
}

func importFiles(ctx context.Context, rt *Runtime, out *OutputFormatter, paths []string, dryRun bool) error {
	parsed := make([][]core.NewCost, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelParse)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			costs, err := ParseImportFile(path)
			if err != nil {
				return err
			}
			parsed[i] = costs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return usageError("import failed", err)
	}

	summary := ImportSummary{Files: len(paths), DryRun: dryRun}
	for i, costs := range parsed {
		if dryRun {
			summary.Imported += len(costs)
			continue
		}
		for _, c := range costs {
			saved, err := rt.Service.AddCost(ctx, c)
			if err != nil {
				return fmt.Errorf("import %s: %w", paths[i], err)
			}
			summary.IDs = append(summary.IDs, saved.ID)
			summary.Imported++
		}
		rt.Logger.WithComponent(log.ComponentImport).Info("Imported cost file",
			log.FieldOperation, log.OpImport,
			"file", paths[i],
			log.FieldCount, len(costs))
	}

	verb := "Imported"
	if dryRun {
		verb = "Validated"
	}
	return out.Success(fmt.Sprintf("%s %d cost(s) from %d file(s).", verb, summary.Imported, summary.Files), summary)
}

// ParseImportFile reads a YAML or JSON list of costs and validates every row.
// JSON is read by the YAML decoder, which accepts it as a subset.
func ParseImportFile(path string) ([]core.NewCost, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
	default:
		return nil, fmt.Errorf("%s: unsupported file type, want .yaml, .yml or .json", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var records []importRecord
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	costs := make([]core.NewCost, 0, len(records))
	for i, r := range records {
		c, err := r.toNewCost()
		if err != nil {
			return nil, fmt.Errorf("%s: record %d: %w", path, i+1, err)
		}
		costs = append(costs, c)
	}
	return costs, nil
}

func (r importRecord) toNewCost() (core.NewCost, error) {
	sum, err := core.ParseAmount(r.Sum)
	if err != nil {
		return core.NewCost{}, err
	}
	date, err := core.ParseDate(strings.TrimSpace(r.Date))
	if err != nil {
		return core.NewCost{}, err
	}

	c := core.NewCost{
		Sum:         sum,
		Category:    strings.TrimSpace(r.Category),
		Description: strings.TrimSpace(r.Description),
		Date:        date,
	}
	if err := c.Validate(); err != nil {
		return core.NewCost{}, err
	}
	return c, nil
}
