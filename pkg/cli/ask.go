package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/askdb/askdb-engine/pkg/llm"
	"github.com/askdb/askdb-engine/pkg/models"
	"github.com/askdb/askdb-engine/pkg/services"
)

const (
	outputJSON = "json"
	outputYAML = "yaml"
)

type askFlags struct {
	conn    string
	execute bool
	output  string
	verbose bool
}

func newAskCommand(opts *options) *cobra.Command {
	flags := &askFlags{}

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Generate SQL for a natural-language question",
		Long: `Generate display configurations for a question against the database at --conn.
With --execute the generated SQL also runs (read-only) and rows are included.

Examples:
  askdb ask "How many orders were placed last week?" --conn postgres://localhost/shop
  askdb ask "Top 5 customers by revenue" --conn "$DATABASE_URL" --execute --output yaml`,
		Args: cobra.ExactArgs(1),
		PreRunE: func(*cobra.Command, []string) error {
			return flags.validate()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			level := "warn"
			if flags.verbose {
				level = "debug"
			}
			cfg, logger, err := opts.load(level)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			eng, err := newEngine(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer eng.close()

			var queries services.QueryService
			if flags.execute {
				queries = services.NewQueryService(eng.executor, nil, queryServiceConfig(cfg), logger)
			}

			spin := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(cmd.ErrOrStderr()))
			obs := &spinnerObserver{spin: spin}
			spin.Start()
			out, err := ask(cmd.Context(), eng.generator, queries, strings.TrimSpace(args[0]), flags.conn, obs)
			spin.Stop()
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), out, flags.output)
		},
	}

	cmd.Flags().StringVar(&flags.conn, "conn", os.Getenv("DATABASE_URL"), "PostgreSQL connection string of the database to query (default $DATABASE_URL)")
	cmd.Flags().BoolVar(&flags.execute, "execute", false, "Run the generated SQL and include result rows")
	cmd.Flags().StringVarP(&flags.output, "output", "o", outputJSON, "Output format: json or yaml")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "Log generation detail to stderr")
	return cmd
}

func (f *askFlags) validate() error {
	if f.conn == "" {
		return errors.New("--conn is required (or set DATABASE_URL)")
	}
	switch f.output {
	case outputJSON, outputYAML:
		return nil
	default:
		return fmt.Errorf("invalid --output %q: must be json or yaml", f.output)
	}
}

// ask generates displays for question and, when queries is non-nil, executes
// them. The result is a GenerationResult or, after execution, a QueryContext.
func ask(ctx context.Context, gen services.SQLGenerationService, queries services.QueryService, question, conn string, obs llm.ProgressObserver) (any, error) {
	result, err := gen.GenerateSQL(ctx, question, conn, obs)
	if err != nil {
		return nil, err
	}
	if queries == nil {
		return result, nil
	}

	displays, err := queries.ExecuteDisplays(ctx, result.Display, conn, obs)
	if err != nil {
		return nil, err
	}
	return &models.QueryContext{
		Query:       question,
		Display:     displays,
		Explanation: result.Explanation,
	}, nil
}

// writeOutput renders v through its JSON encoding so display unions keep
// their wire shape in both formats.
func writeOutput(w io.Writer, v any, format string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	if format != outputYAML {
		_, err = fmt.Fprintf(w, "%s\n", data)
		return err
	}

	// JSON is valid YAML; decoding into a node keeps key order.
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return fmt.Errorf("failed to convert result to yaml: %w", err)
	}
	blockStyle(&node)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return fmt.Errorf("failed to encode yaml: %w", err)
	}
	return enc.Close()
}

// blockStyle clears the flow style inherited from JSON input.
func blockStyle(n *yaml.Node) {
	if n.Kind == yaml.MappingNode || n.Kind == yaml.SequenceNode {
		n.Style = 0
	}
	if n.Kind == yaml.ScalarNode && n.Style == yaml.DoubleQuotedStyle {
		n.Style = 0
	}
	for _, c := range n.Content {
		blockStyle(c)
	}
}

// spinnerObserver shows the latest progress message next to the spinner.
type spinnerObserver struct {
	spin *spinner.Spinner
}

func (o *spinnerObserver) OnProgress(_ context.Context, event llm.ProgressEvent) {
	o.spin.Lock()
	o.spin.Suffix = " " + event.Message
	o.spin.Unlock()
}
