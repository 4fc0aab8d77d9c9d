package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FilingStatus summarises a pipeline run.
type FilingStatus string

const (
	StatusCompleted FilingStatus = "completed"
	StatusNoData    FilingStatus = "no_data"
	StatusError     FilingStatus = "error"
)

// FilingRequest describes one pipeline run. Either Text or Chunks is used;
// Text is chunked with ChunkSize/ChunkOverlap when Chunks is empty.
type FilingRequest struct {
	Text         string        `json:"text,omitempty"`
	Chunks       []Chunk       `json:"chunks,omitempty"`
	ChunkSize    int           `json:"chunk_size,omitempty"`
	ChunkOverlap int           `json:"chunk_overlap,omitempty"`
	ReturnType   Category      `json:"return_type,omitempty"` // outward, inward or empty for all
	Classify     bool          `json:"classify"`
	Period       PeriodRequest `json:"period"`
	FilterFirst  bool          `json:"filter_first"` // apply the period filter before classification
	FilerGSTIN   string        `json:"gstin"`
	CompanyName  string        `json:"company_name"`
}

// FilingResult is the outcome of a pipeline run.
type FilingResult struct {
	ID             string                `json:"id"`
	Status         FilingStatus          `json:"status"`
	Message        string                `json:"message,omitempty"`
	Error          *ExtractionError      `json:"error,omitempty"`
	ChunkCount     int                   `json:"chunk_count"`
	Classification *ClassificationReport `json:"classification,omitempty"`
	PeriodFilter   *PeriodFilterResult   `json:"period_filter,omitempty"`
	Extraction     *ExtractionResult     `json:"extraction,omitempty"`
	Notes          []string              `json:"notes,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
}

// Pipeline wires the stages together. Classification and period filtering
// are optional and may run in either order.
type Pipeline struct {
	classifier   *Classifier
	periodFilter *PeriodFilter
	extractor    *Extractor
	chunkSize    int
	chunkOverlap int
	logger       *slog.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithChunking sets the default chunk size and overlap.
func WithChunking(size, overlap int) PipelineOption {
	return func(p *Pipeline) {
		p.chunkSize, p.chunkOverlap = size, overlap
	}
}

// WithRules replaces the classifier keyword rules.
func WithRules(rules *ClassifierRules) PipelineOption {
	return func(p *Pipeline) {
		p.classifier = NewClassifier(rules, p.classifier.model, p.logger)
	}
}

// WithLargeInvoiceThreshold sets the unregistered large-invoice threshold.
func WithLargeInvoiceThreshold(threshold float64) PipelineOption {
	return func(p *Pipeline) {
		p.extractor = NewExtractor(p.extractor.model, NewCategorizer(threshold), p.logger)
	}
}

// NewPipeline builds a pipeline around one model client, which may be nil.
func NewPipeline(model ModelClient, logger *slog.Logger, opts ...PipelineOption) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		classifier:   NewClassifier(nil, model, logger),
		periodFilter: NewPeriodFilter(model, logger),
		extractor:    NewExtractor(model, nil, logger),
		chunkSize:    DefaultChunkSize,
		chunkOverlap: DefaultChunkOverlap,
		logger:       logger.With("component", "pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Classifier exposes the pipeline's classifier for standalone use.
func (p *Pipeline) Classifier() *Classifier { return p.classifier }

// PeriodFilter exposes the pipeline's period filter for standalone use.
func (p *Pipeline) PeriodFilter() *PeriodFilter { return p.periodFilter }

// Chunk splits text with the pipeline's default chunking.
func (p *Pipeline) Chunk(text string) []Chunk {
	return ChunkText(text, p.chunkSize, p.chunkOverlap)
}

// Run executes the pipeline. Parameter errors produce a StatusError result
// together with the typed error; model failures never abort a run.
func (p *Pipeline) Run(ctx context.Context, req FilingRequest) (*FilingResult, error) {
	res := &FilingResult{
		ID:        uuid.New().String(),
		CreatedAt: time.Now().UTC(),
	}

	var period *FilingPeriod
	if !req.Period.IsZero() {
		fp, err := ParsePeriod(req.Period)
		if err != nil {
			return failed(res, err), err
		}
		period = &fp
	}

	switch req.ReturnType {
	case "", CategoryOutward, CategoryInward:
	default:
		err := &ExtractionError{Code: ErrInvalidRequest, Message: fmt.Sprintf("invalid return_type %q: expected outward or inward", req.ReturnType)}
		return failed(res, err), err
	}

	chunks := req.Chunks
	if len(chunks) == 0 {
		size, overlap := p.chunkSize, p.chunkOverlap
		if req.ChunkSize > 0 {
			size = req.ChunkSize
			if req.ChunkOverlap > 0 {
				overlap = req.ChunkOverlap
			}
		}
		chunks = ChunkText(req.Text, size, overlap)
	}
	res.ChunkCount = len(chunks)

	log := p.logger.With("run_id", res.ID)
	log.Info("pipeline started", "chunks", len(chunks), "classify", req.Classify, "period", period != nil)

	classify := func() {
		if !req.Classify {
			return
		}
		res.Classification = p.classifier.Classify(ctx, chunks)
		res.Notes = append(res.Notes, res.Classification.Notes...)
		if req.ReturnType != "" {
			chunks = res.Classification.ChunksFor(chunks, req.ReturnType)
		}
	}
	filter := func() {
		if period == nil {
			return
		}
		res.PeriodFilter = p.periodFilter.FilterPeriod(ctx, chunks, *period)
		res.Notes = append(res.Notes, res.PeriodFilter.Notes...)
		chunks = res.PeriodFilter.Chunks
	}

	if req.FilterFirst {
		filter()
		classify()
	} else {
		classify()
		filter()
	}

	if len(chunks) == 0 {
		res.Status = StatusNoData
		res.Message = noDataMessage(req, period)
		log.Info("pipeline finished without data", "message", res.Message)
		return res, nil
	}

	periodLabel := ""
	if period != nil {
		periodLabel = period.String()
	}
	res.Extraction = p.extractor.Extract(ctx, ExtractRequest{
		Chunks:       chunks,
		ReturnType:   req.ReturnType,
		FilerGSTIN:   req.FilerGSTIN,
		CompanyName:  req.CompanyName,
		FilingPeriod: periodLabel,
	})
	res.Notes = append(res.Notes, res.Extraction.Notes...)

	res.Status = StatusCompleted
	if res.Extraction.Outcome == OutcomeNoData {
		res.Status = StatusNoData
		res.Message = "No invoices found in the selected documents"
	}
	log.Info("pipeline finished",
		"status", res.Status,
		"invoices", res.Extraction.Summary.TotalInvoices,
		"method", res.Extraction.Method,
	)
	return res, nil
}

func failed(res *FilingResult, err error) *FilingResult {
	res.Status = StatusError
	res.Message = err.Error()
	var extErr *ExtractionError
	if errors.As(err, &extErr) {
		res.Error = extErr
	}
	return res
}

func noDataMessage(req FilingRequest, period *FilingPeriod) string {
	switch {
	case period != nil:
		return fmt.Sprintf("No transactions found for %s", period)
	case req.Classify && req.ReturnType != "":
		return fmt.Sprintf("No %s chunks found for %s", req.ReturnType, req.ReturnType.ReturnName())
	case strings.TrimSpace(req.Text) == "" && len(req.Chunks) == 0:
		return "No document text provided"
	}
	return "No data to extract"
}
