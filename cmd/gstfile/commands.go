package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/castlemilk/gstfiling/internal/app"
	"github.com/castlemilk/gstfiling/internal/extraction"
	"github.com/spf13/cobra"
)

// periodFlags registers the shared filing period flags.
func periodFlags(cmd *cobra.Command, req *extraction.PeriodRequest) {
	cmd.Flags().StringVar(&req.Month, "month", "", "filing month name, e.g. March (requires --year)")
	cmd.Flags().StringVar(&req.Year, "year", "", "four-digit filing year")
	cmd.Flags().StringVar(&req.StartDate, "start", "", "range start, YYYY-MM-DD or DD/MM/YYYY (requires --end)")
	cmd.Flags().StringVar(&req.EndDate, "end", "", "range end, YYYY-MM-DD or DD/MM/YYYY")
}

func (c *cli) classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify FILE",
		Short: "Classify each chunk of a document as outward, inward or irrelevant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, chunks, done, err := c.prepare(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer done()

			return writeJSON(cmd.OutOrStdout(), p.Classifier().Classify(cmd.Context(), chunks))
		},
	}
}

func (c *cli) filterCmd() *cobra.Command {
	var period extraction.PeriodRequest
	cmd := &cobra.Command{
		Use:   "filter FILE",
		Short: "Keep the chunks of a document that fall inside a filing period",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, chunks, done, err := c.prepare(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer done()

			res, err := p.PeriodFilter().Filter(cmd.Context(), chunks, period)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	periodFlags(cmd, &period)
	return cmd
}

func (c *cli) runCmd() *cobra.Command {
	var (
		req        extraction.FilingRequest
		returnType string
	)
	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Run the full filing pipeline and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, chunks, done, err := c.prepare(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer done()

			req.Chunks = chunks
			req.ReturnType = extraction.ParseReturnType(returnType)
			if req.ReturnType != "" && !cmd.Flags().Changed("classify") {
				req.Classify = true
			}

			res, err := p.Run(cmd.Context(), req)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&returnType, "return-type", "", "GSTR-1 (outward) or GSTR-2 (inward); empty extracts every chunk")
	cmd.Flags().BoolVar(&req.Classify, "classify", false, "classify chunks first (implied by --return-type)")
	cmd.Flags().BoolVar(&req.FilterFirst, "filter-first", false, "apply the period filter before classification")
	cmd.Flags().StringVar(&req.FilerGSTIN, "gstin", "", "filer GSTIN")
	cmd.Flags().StringVar(&req.CompanyName, "company", "", "filer company name")
	periodFlags(cmd, &req.Period)
	return cmd
}

// prepare reads and chunks the file and builds a pipeline. The returned
// function releases the model client.
func (c *cli) prepare(ctx context.Context, path string) (*extraction.Pipeline, []extraction.Chunk, func(), error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	doc, err := extraction.ReadDocument(data, filepath.Base(path))
	if err != nil {
		return nil, nil, nil, err
	}
	if doc.Truncated {
		c.logger.Warn("document text truncated", "file", path)
	}

	model, closeModel := app.NewModelClient(ctx, c.cfg, c.logger)
	p, err := app.NewPipeline(c.cfg.Pipeline, model, c.logger)
	if err != nil {
		closeModel()
		return nil, nil, nil, err
	}

	chunks := p.Chunk(doc.Text)
	c.logger.Info("document loaded", "file", path, "format", doc.Format, "chunks", len(chunks))
	return p, chunks, closeModel, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
