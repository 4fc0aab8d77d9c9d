package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"unicode/utf8"
)

// ClassificationResult is the decision for one chunk.
type ClassificationResult struct {
	ChunkIndex     int      `json:"chunk_index"`
	Category       Category `json:"category"`
	Confidence     float64  `json:"confidence"`
	DetectedLabels []string `json:"detected_labels"`
	Method         Method   `json:"method"`
}

// ClassificationReport aggregates the decisions for a document.
type ClassificationReport struct {
	Results           []ClassificationResult `json:"results"`
	Counts            map[Category]int       `json:"counts"`
	OutwardChunks     []int                  `json:"outward_chunks"`
	InwardChunks      []int                  `json:"inward_chunks"`
	SuggestedReturns  []string               `json:"suggested_returns"`
	OverallConfidence float64                `json:"overall_confidence"`
	ModelCalls        int                    `json:"model_calls"`
	Outcome           Outcome                `json:"outcome"`
	Notes             []string               `json:"notes,omitempty"`
}

// ChunksFor returns the chunks classified into category, in index order.
func (r *ClassificationReport) ChunksFor(chunks []Chunk, category Category) []Chunk {
	keep := make(map[int]bool)
	for _, res := range r.Results {
		if res.Category == category {
			keep[res.ChunkIndex] = true
		}
	}
	var out []Chunk
	for _, c := range chunks {
		if keep[c.Index] {
			out = append(out, c)
		}
	}
	return out
}

// Classifier assigns chunks to GSTR-1, GSTR-2 or neither. Keyword rules
// decide what they can; the remaining ambiguous chunks share one model call.
type Classifier struct {
	rules  *ClassifierRules
	model  ModelClient
	logger *slog.Logger
}

// NewClassifier creates a classifier. rules may be nil for the built-in set
// and model may be nil, in which case ambiguous chunks take the fallback.
func NewClassifier(rules *ClassifierRules, model ModelClient, logger *slog.Logger) *Classifier {
	if rules == nil {
		rules = DefaultRules()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{rules: rules, model: model, logger: logger.With("component", "classifier")}
}

// ClassifyChunk applies the keyword tier to one chunk. The result may be
// CategoryAmbiguous, which Classify resolves before returning.
func (c *Classifier) ClassifyChunk(chunk Chunk) ClassificationResult {
	lower := strings.ToLower(chunk.Text)
	t := c.rules.Tuning
	res := ClassificationResult{
		ChunkIndex:     chunk.Index,
		DetectedLabels: c.rules.detectLabels(lower),
		Method:         MethodKeyword,
	}

	outStrong := c.rules.containsAny(lower, c.rules.Outward.Strong)
	inStrong := c.rules.containsAny(lower, c.rules.Inward.Strong)
	switch {
	case outStrong && !inStrong:
		res.Category, res.Confidence, res.Method = CategoryOutward, t.StrongConfidence, MethodKeywordStrong
		return res
	case inStrong && !outStrong:
		res.Category, res.Confidence, res.Method = CategoryInward, t.StrongConfidence, MethodKeywordStrong
		return res
	}

	outScore := c.rules.countKeywords(lower, c.rules.Outward.Keywords)
	inScore := c.rules.countKeywords(lower, c.rules.Inward.Keywords)

	switch {
	case outScore == 0 && inScore == 0 && !outStrong:
		res.Category, res.Confidence = CategoryIrrelevant, t.IrrelevantConfidence
	case outScore == inScore || max(outScore, inScore) < t.MinKeywordScore:
		res.Category = CategoryAmbiguous
	case outScore > inScore:
		res.Category, res.Confidence = CategoryOutward, keywordConfidence(t, outScore)
	default:
		res.Category, res.Confidence = CategoryInward, keywordConfidence(t, inScore)
	}
	return res
}

func keywordConfidence(t RuleTuning, score int) float64 {
	return math.Min(t.KeywordCap, t.BaseConfidence+t.KeywordStep*float64(score))
}

// Classify classifies every chunk. At most one model call is made, and only
// when the keyword tier leaves chunks ambiguous.
func (c *Classifier) Classify(ctx context.Context, chunks []Chunk) *ClassificationReport {
	report := &ClassificationReport{
		Results: make([]ClassificationResult, 0, len(chunks)),
		Outcome: OutcomeOK,
	}

	var ambiguous []Chunk
	pos := make(map[int]int) // chunk index -> position in Results
	for _, chunk := range chunks {
		res := c.ClassifyChunk(chunk)
		if res.Category == CategoryAmbiguous {
			ambiguous = append(ambiguous, chunk)
			pos[chunk.Index] = len(report.Results)
		}
		report.Results = append(report.Results, res)
	}

	if len(ambiguous) > 0 {
		resolved, err := c.classifyWithModel(ctx, ambiguous)
		if c.model != nil {
			report.ModelCalls = 1
		}
		if err != nil {
			c.logger.Warn("model classification failed, using fallback", "chunks", len(ambiguous), "error", err)
			report.Outcome = OutcomeFallback
			report.Notes = append(report.Notes, fmt.Sprintf("model classification unavailable (%v); %d ambiguous chunks marked irrelevant", err, len(ambiguous)))
		}

		missed := 0
		for _, chunk := range ambiguous {
			i := pos[chunk.Index]
			if r, ok := resolved[chunk.Index]; ok {
				r.DetectedLabels = mergeLabels(report.Results[i].DetectedLabels, r.DetectedLabels)
				report.Results[i] = r
				continue
			}
			if err == nil {
				missed++
			}
			report.Results[i].Category = CategoryIrrelevant
			report.Results[i].Confidence = c.rules.Tuning.FallbackConfidence
			report.Results[i].Method = MethodFallback
		}
		if missed > 0 {
			report.Notes = append(report.Notes, fmt.Sprintf("model omitted %d ambiguous chunks; marked irrelevant", missed))
		}
	}

	summarize(report)
	return report
}

type modelClassification struct {
	ChunkIndex     int      `json:"chunk_index"`
	Category       string   `json:"category"`
	Confidence     float64  `json:"confidence"`
	DetectedLabels []string `json:"detected_labels"`
}

// classifyWithModel sends all ambiguous chunks in one prompt. The returned
// map only holds chunks the model answered with a usable category.
func (c *Classifier) classifyWithModel(ctx context.Context, chunks []Chunk) (map[int]ClassificationResult, error) {
	if c.model == nil {
		return nil, &ExtractionError{Code: ErrModelUnavailable, Message: "no model client configured", Method: "classifier"}
	}

	text, err := c.model.Generate(ctx, c.buildPrompt(chunks))
	if err != nil {
		return nil, fmt.Errorf("classify chunks: %w", err)
	}

	var resp struct {
		Results []modelClassification `json:"results"`
	}
	if err := decodeModelJSON(text, &resp); err != nil {
		return nil, fmt.Errorf("classify chunks: %w", err)
	}

	wanted := make(map[int]bool, len(chunks))
	for _, ch := range chunks {
		wanted[ch.Index] = true
	}

	out := make(map[int]ClassificationResult)
	for _, r := range resp.Results {
		if !wanted[r.ChunkIndex] {
			continue
		}
		cat, ok := parseModelCategory(r.Category)
		if !ok {
			continue
		}
		out[r.ChunkIndex] = ClassificationResult{
			ChunkIndex:     r.ChunkIndex,
			Category:       cat,
			Confidence:     clamp01(r.Confidence),
			DetectedLabels: r.DetectedLabels,
			Method:         MethodModel,
		}
	}
	return out, nil
}

func (c *Classifier) buildPrompt(chunks []Chunk) string {
	type chunkForPrompt struct {
		ChunkIndex int    `json:"chunk_index"`
		Text       string `json:"text"`
	}
	list := make([]chunkForPrompt, 0, len(chunks))
	for _, ch := range chunks {
		list = append(list, chunkForPrompt{ChunkIndex: ch.Index, Text: truncate(ch.Text, c.rules.Tuning.ModelPrefixChars)})
	}
	chunkJSON, _ := json.Marshal(list)

	return fmt.Sprintf(`You are an Indian GST filing assistant. Classify each document chunk by the return it belongs to.

Categories:
- outward: sales / outward supplies reported in GSTR-1 (tax invoices issued to customers, exports, B2B and B2C sales)
- inward: purchases / inward supplies reported in GSTR-2 (supplier bills, imports, input tax credit, reverse charge)
- irrelevant: anything else (letters, terms and conditions, bank statements)

Return JSON only:
{"results": [{"chunk_index": 0, "category": "outward|inward|irrelevant", "confidence": 0.0-1.0, "detected_labels": ["invoice", "purchase", ...]}]}

Chunks:
%s`, string(chunkJSON))
}

func parseModelCategory(s string) (Category, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "outward", "gstr1", "gstr-1", "sales":
		return CategoryOutward, true
	case "inward", "gstr2", "gstr-2", "purchase", "purchases":
		return CategoryInward, true
	case "irrelevant", "none", "other":
		return CategoryIrrelevant, true
	}
	return "", false
}

func summarize(report *ClassificationReport) {
	report.Counts = map[Category]int{
		CategoryOutward:    0,
		CategoryInward:     0,
		CategoryIrrelevant: 0,
	}
	report.OutwardChunks = []int{}
	report.InwardChunks = []int{}

	var total float64
	for _, r := range report.Results {
		report.Counts[r.Category]++
		total += r.Confidence
		switch r.Category {
		case CategoryOutward:
			report.OutwardChunks = append(report.OutwardChunks, r.ChunkIndex)
		case CategoryInward:
			report.InwardChunks = append(report.InwardChunks, r.ChunkIndex)
		}
	}
	if len(report.Results) > 0 {
		report.OverallConfidence = total / float64(len(report.Results))
	}

	report.SuggestedReturns = []string{}
	if len(report.OutwardChunks) > 0 {
		report.SuggestedReturns = append(report.SuggestedReturns, CategoryOutward.ReturnName())
	}
	if len(report.InwardChunks) > 0 {
		report.SuggestedReturns = append(report.SuggestedReturns, CategoryInward.ReturnName())
	}
	if len(report.SuggestedReturns) == 0 {
		report.SuggestedReturns = append(report.SuggestedReturns, CategoryOutward.ReturnName())
	}
}

func mergeLabels(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, l := range append(append([]string{}, a...), b...) {
		l = strings.ToLower(strings.TrimSpace(l))
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return math.Min(v, 1)
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
