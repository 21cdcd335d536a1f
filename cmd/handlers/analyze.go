package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"sentilytics/internal/analysis"
	"sentilytics/internal/config"
	"sentilytics/internal/logger"
	"sentilytics/internal/render"
	"sentilytics/internal/screen"

	"github.com/spf13/cobra"
)

type analyzeOptions struct {
	format string
	model  string
	output string
}

// NewAnalyzeCmd creates the analyze command and its url, file, review and compare subcommands
func NewAnalyzeCmd() *cobra.Command {
	opts := &analyzeOptions{}

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run a sentiment analysis from the command line",
		Long: `Run one analysis against Gemini and print the result.

Results are printed as JSON by default. With --format csv the same CSV the
web application exports is written to stdout, or saved under --output.

Examples:
  sentilytics analyze url https://www.amazon.com/dp/B0CHX1W1XY
  sentilytics analyze file reviews.csv --format csv --output ./exports
  sentilytics analyze review "Battery life is amazing"
  sentilytics analyze compare https://example.com/a https://example.com/b`,
	}

	cmd.PersistentFlags().StringVarP(&opts.format, "format", "f", "json", "Output format: json or csv")
	cmd.PersistentFlags().StringVarP(&opts.model, "model", "m", "", "Model to use (default from config)")
	cmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "", "Directory to save the CSV export into (csv format only)")

	cmd.AddCommand(&cobra.Command{
		Use:   "url <product-url>",
		Short: "Analyze the reviews of a product page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, opts, func(ctx context.Context, svc *analysis.Service) (any, render.Export, error) {
				if !screen.ValidProductURL(args[0]) {
					return nil, render.Export{}, &screen.ValidationError{Message: screen.MsgInvalidURL}
				}
				r, err := svc.AnalyzeProductURL(ctx, args[0], opts.model)
				if err != nil {
					return nil, render.Export{}, err
				}
				e, err := render.ProductCSV(*r)
				return r, e, err
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "file <path>",
		Short: "Analyze a file of reviews (.csv, .xlsx, .xls or .txt)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, opts, func(ctx context.Context, svc *analysis.Service) (any, render.Export, error) {
				if !screen.AllowedFile(filepath.Base(args[0])) {
					return nil, render.Export{}, &screen.ValidationError{Message: screen.MsgInvalidFileType}
				}
				content, err := os.ReadFile(args[0])
				if err != nil || strings.TrimSpace(string(content)) == "" {
					return nil, render.Export{}, &screen.ValidationError{Message: screen.MsgEmptyFile}
				}
				r, err := svc.AnalyzeReviewFile(ctx, string(content), opts.model)
				if err != nil {
					return nil, render.Export{}, err
				}
				e, err := render.FileCSV(*r)
				return r, e, err
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "review <text>",
		Short: "Analyze a single review",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			return runAnalyze(cmd, opts, func(ctx context.Context, svc *analysis.Service) (any, render.Export, error) {
				if strings.TrimSpace(text) == "" {
					return nil, render.Export{}, &screen.ValidationError{Message: screen.MsgEmptyReview}
				}
				r, err := svc.AnalyzeSingleReview(ctx, text, opts.model)
				if err != nil {
					return nil, render.Export{}, err
				}
				e, err := render.ReviewCSV(text, *r)
				return r, e, err
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "compare <product-url> <product-url>",
		Aliases: []string{"competitive"},
		Short:   "Compare the reviews of two products",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, opts, func(ctx context.Context, svc *analysis.Service) (any, render.Export, error) {
				if !screen.ValidProductURL(args[0]) || !screen.ValidProductURL(args[1]) {
					return nil, render.Export{}, &screen.ValidationError{Message: screen.MsgInvalidURLPair}
				}
				r, err := svc.CompareProducts(ctx, args[0], args[1], opts.model)
				if err != nil {
					return nil, render.Export{}, err
				}
				e, err := render.CompetitiveCSV(*r)
				return r, e, err
			})
		},
	})

	return cmd
}

type analyzeFunc func(ctx context.Context, svc *analysis.Service) (result any, export render.Export, err error)

func runAnalyze(cmd *cobra.Command, opts *analyzeOptions, run analyzeFunc) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.format != "json" && opts.format != "csv" {
		return fmt.Errorf("unsupported format %q: use json or csv", opts.format)
	}

	log := logger.Get()
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	events := newPostHog(cfg, log)
	defer events.Shutdown(context.Background())

	svc, closeClient, err := newAnalysisService(ctx, cfg, events, log)
	if err != nil {
		return err
	}
	defer closeClient()

	result, export, err := run(ctx, svc)
	if err != nil {
		var invalid *screen.ValidationError
		if errors.As(err, &invalid) {
			return invalid
		}
		log.Error("Analysis failed", "error", err)
		return errors.New(analysis.UserMessage(err))
	}
	return writeResult(cmd.OutOrStdout(), opts, result, export)
}

func writeResult(w io.Writer, opts *analyzeOptions, result any, export render.Export) error {
	if opts.format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	if opts.output == "" {
		_, err := w.Write(export.Data)
		return err
	}
	path, err := render.WriteExport(export, opts.output)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Saved %s\n", path)
	return nil
}
