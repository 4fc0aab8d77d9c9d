package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
)

const (
	// provisionalPatternCount bounds how many period patterns are used for
	// the cheap provisional scan.
	provisionalPatternCount = 20
	periodPromptPrefixChars = 400
)

var dateKeywordRe = regexp.MustCompile(`(?i)\b(?:invoice date|transaction date|bill date|dated|date)\b`)

// PeriodMatch is one chunk kept by the filter.
type PeriodMatch struct {
	ChunkIndex int      `json:"chunk_index"`
	Dates      []string `json:"dates"`
	Confidence float64  `json:"confidence"`
	Reason     string   `json:"reason,omitempty"`
}

// PeriodFilterResult lists the chunks that fall inside a filing period.
type PeriodFilterResult struct {
	Period            FilingPeriod  `json:"period"`
	PeriodLabel       string        `json:"period_label"`
	Chunks            []Chunk       `json:"chunks"`
	Matches           []PeriodMatch `json:"matches"`
	ProvisionalChunks []int         `json:"provisional_chunks"`
	Method            Method        `json:"method"`
	ModelCalls        int           `json:"model_calls"`
	Outcome           Outcome       `json:"outcome"`
	Message           string        `json:"message,omitempty"`
	Notes             []string      `json:"notes,omitempty"`
}

// PeriodFilter keeps the chunks dated inside a filing period. Dates are
// resolved locally first; the model is consulted only for chunks whose
// dates could not be parsed.
type PeriodFilter struct {
	model  ModelClient
	logger *slog.Logger
}

// NewPeriodFilter creates a period filter. model may be nil.
func NewPeriodFilter(model ModelClient, logger *slog.Logger) *PeriodFilter {
	if logger == nil {
		logger = slog.Default()
	}
	return &PeriodFilter{model: model, logger: logger.With("component", "period_filter")}
}

// Filter validates req and filters chunks to the requested period. Invalid
// parameters are returned as an *ExtractionError with code INVALID_PERIOD.
func (f *PeriodFilter) Filter(ctx context.Context, chunks []Chunk, req PeriodRequest) (*PeriodFilterResult, error) {
	period, err := ParsePeriod(req)
	if err != nil {
		return nil, err
	}
	return f.FilterPeriod(ctx, chunks, period), nil
}

type provisionalChunk struct {
	chunk Chunk
	dates []time.Time
}

// FilterPeriod filters chunks to an already validated period.
func (f *PeriodFilter) FilterPeriod(ctx context.Context, chunks []Chunk, period FilingPeriod) *PeriodFilterResult {
	res := &PeriodFilterResult{
		Period:            period,
		PeriodLabel:       period.String(),
		Chunks:            []Chunk{},
		Matches:           []PeriodMatch{},
		ProvisionalChunks: []int{},
		Method:            MethodLocal,
		Outcome:           OutcomeOK,
	}
	if len(chunks) == 0 {
		return noPeriodData(res)
	}

	patterns := period.Patterns()
	head := patterns[:min(provisionalPatternCount, len(patterns))]

	var provisional []provisionalChunk
	unresolved := 0
	for _, chunk := range chunks {
		lower := strings.ToLower(chunk.Text)
		if !containsLiteral(lower, head) && !dateShapeRe.MatchString(chunk.Text) && !dateKeywordRe.MatchString(chunk.Text) {
			continue
		}

		pc := provisionalChunk{chunk: chunk, dates: extractDates(chunk.Text)}
		provisional = append(provisional, pc)
		res.ProvisionalChunks = append(res.ProvisionalChunks, chunk.Index)
		if len(pc.dates) == 0 {
			unresolved++
			continue
		}

		var inPeriod []string
		for _, d := range pc.dates {
			if period.Contains(d) {
				inPeriod = append(inPeriod, d.Format(isoDate))
			}
		}
		if len(inPeriod) > 0 {
			res.Chunks = append(res.Chunks, chunk)
			res.Matches = append(res.Matches, PeriodMatch{
				ChunkIndex: chunk.Index,
				Dates:      inPeriod,
				Confidence: 1.0,
				Reason:     "date parsed locally",
			})
		}
	}

	if len(res.Matches) > 0 {
		return res
	}
	// Every provisional chunk carried a parseable date and none were in
	// range, so the answer is already definitive.
	if len(provisional) == 0 || unresolved == 0 {
		return noPeriodData(res)
	}

	res.ModelCalls = 1
	matches, err := f.filterWithModel(ctx, provisional, period)
	if err != nil {
		f.logger.Warn("model period filter failed, returning provisional chunks", "chunks", len(provisional), "error", err)
		res.Method = MethodFallback
		res.Outcome = OutcomeFallback
		res.Notes = append(res.Notes, fmt.Sprintf("model date filtering unavailable (%v); returning all %d chunks that may contain dates", err, len(provisional)))
		for _, pc := range provisional {
			res.Chunks = append(res.Chunks, pc.chunk)
			res.Matches = append(res.Matches, PeriodMatch{ChunkIndex: pc.chunk.Index, Confidence: 0.5, Reason: "unfiltered fallback"})
		}
		return res
	}

	res.Method = MethodModel
	byIndex := make(map[int]PeriodMatch, len(matches))
	for _, m := range matches {
		byIndex[m.ChunkIndex] = m
	}
	for _, pc := range provisional {
		if m, ok := byIndex[pc.chunk.Index]; ok {
			res.Chunks = append(res.Chunks, pc.chunk)
			res.Matches = append(res.Matches, m)
		}
	}
	if len(res.Chunks) == 0 {
		return noPeriodData(res)
	}
	return res
}

func noPeriodData(res *PeriodFilterResult) *PeriodFilterResult {
	res.Outcome = OutcomeNoData
	res.Message = fmt.Sprintf("No transactions found for %s", res.PeriodLabel)
	return res
}

type modelPeriodResult struct {
	ChunkIndex                int      `json:"chunk_index"`
	InPeriod                  *bool    `json:"in_period"`
	ContainsFilingPeriodDates *bool    `json:"contains_filing_period_dates"`
	ContainsDateRangeDates    *bool    `json:"contains_date_range_dates"`
	ExtractedDates            []string `json:"extracted_dates"`
	Confidence                float64  `json:"confidence"`
	Reason                    string   `json:"reason"`
}

func (r modelPeriodResult) inPeriod() bool {
	for _, b := range []*bool{r.InPeriod, r.ContainsFilingPeriodDates, r.ContainsDateRangeDates} {
		if b != nil {
			return *b
		}
	}
	return false
}

// filterWithModel asks the model which provisional chunks fall inside the
// period, in a single call.
func (f *PeriodFilter) filterWithModel(ctx context.Context, provisional []provisionalChunk, period FilingPeriod) ([]PeriodMatch, error) {
	if f.model == nil {
		return nil, &ExtractionError{Code: ErrModelUnavailable, Message: "no model client configured", Method: "period_filter"}
	}

	text, err := f.model.Generate(ctx, buildPeriodPrompt(provisional, period))
	if err != nil {
		return nil, fmt.Errorf("filter by period: %w", err)
	}

	var resp struct {
		FilteredResults []modelPeriodResult `json:"filtered_results"`
	}
	if err := decodeModelJSON(text, &resp); err != nil {
		return nil, fmt.Errorf("filter by period: %w", err)
	}

	var matches []PeriodMatch
	for _, r := range resp.FilteredResults {
		if !r.inPeriod() {
			continue
		}
		dates := make([]string, 0, len(r.ExtractedDates))
		for _, d := range r.ExtractedDates {
			if iso, ok := normalizeDate(d); ok {
				dates = append(dates, iso)
			}
		}
		matches = append(matches, PeriodMatch{
			ChunkIndex: r.ChunkIndex,
			Dates:      dates,
			Confidence: clamp01(r.Confidence),
			Reason:     r.Reason,
		})
	}
	return matches, nil
}

func buildPeriodPrompt(provisional []provisionalChunk, period FilingPeriod) string {
	type chunkForPrompt struct {
		ChunkIndex int    `json:"chunk_index"`
		Text       string `json:"text"`
	}
	list := make([]chunkForPrompt, 0, len(provisional))
	for _, pc := range provisional {
		list = append(list, chunkForPrompt{ChunkIndex: pc.chunk.Index, Text: truncate(pc.chunk.Text, periodPromptPrefixChars)})
	}
	chunkJSON, _ := json.Marshal(list)

	return fmt.Sprintf(`You are reviewing invoice text for a GST return covering %s (from %s to %s inclusive).
For each chunk decide whether it contains an invoice, bill or transaction dated inside that period.
Dates in these documents are usually day-first (DD/MM/YYYY).

Return JSON only:
{"filtered_results": [{"chunk_index": 0, "in_period": true, "extracted_dates": ["YYYY-MM-DD"], "confidence": 0.0-1.0, "reason": "brief explanation"}]}

Chunks:
%s`, period, period.Start.Format(isoDate), period.End.Format(isoDate), string(chunkJSON))
}

func containsLiteral(lower string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
