package extraction

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/mock/gomock"
)

const (
	outwardChunkText = "TAX INVOICE\nInvoice No: INV-1001\nSold to: Acme Retail\nPlace of supply: Karnataka"
	inwardChunkText  = "PURCHASE BILL\nPurchased from: ABC Traders\nSupplier GSTIN: 29ABCDE1234F1Z5\nInput tax credit eligible"
	noiseChunkText   = "Terms and conditions apply. Thank you for your business."
	tieChunkText     = "Statement for supply of goods from vendor"
)

func TestClassifyChunk_KeywordTier(t *testing.T) {
	c := NewClassifier(nil, nil, nil)

	tests := []struct {
		name       string
		text       string
		category   Category
		method     Method
		confidence float64
	}{
		{"strong outward", outwardChunkText, CategoryOutward, MethodKeywordStrong, 0.9},
		{"strong inward", "GSTR-2 reconciliation for March", CategoryInward, MethodKeywordStrong, 0.9},
		{"inward keywords", inwardChunkText, CategoryInward, MethodKeyword, 0.8},
		{"single outward keyword", "Goods dispatched to the consignee", CategoryOutward, MethodKeyword, 0.6},
		{"no keywords", noiseChunkText, CategoryIrrelevant, MethodKeyword, 0.9},
		{"tie", tieChunkText, CategoryAmbiguous, MethodKeyword, 0},
		{"substring is not a keyword", "This is important news", CategoryIrrelevant, MethodKeyword, 0.9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := c.ClassifyChunk(Chunk{Index: 3, Text: tt.text})
			if res.Category != tt.category {
				t.Errorf("expected category %s, got %s", tt.category, res.Category)
			}
			if res.Method != tt.method {
				t.Errorf("expected method %s, got %s", tt.method, res.Method)
			}
			if diff := res.Confidence - tt.confidence; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("expected confidence %.2f, got %.2f", tt.confidence, res.Confidence)
			}
			if res.ChunkIndex != 3 {
				t.Errorf("expected chunk index 3, got %d", res.ChunkIndex)
			}
		})
	}
}

func TestClassifyChunk_DetectsLabels(t *testing.T) {
	c := NewClassifier(nil, nil, nil)
	res := c.ClassifyChunk(Chunk{Text: inwardChunkText})

	want := map[string]bool{"purchase": true, "gstin": true}
	for _, l := range res.DetectedLabels {
		delete(want, l)
	}
	if len(want) != 0 {
		t.Errorf("missing labels %v in %v", want, res.DetectedLabels)
	}
}

func TestClassify_StrongKeywordSkipsModel(t *testing.T) {
	ctrl := gomock.NewController(t)
	model := NewMockModelClient(ctrl)
	// No EXPECT: any Generate call fails the test.

	report := NewClassifier(nil, model, nil).Classify(context.Background(), []Chunk{{Index: 0, Text: outwardChunkText}})

	if report.ModelCalls != 0 {
		t.Errorf("expected no model calls, got %d", report.ModelCalls)
	}
	if report.Results[0].Category != CategoryOutward {
		t.Errorf("expected outward, got %s", report.Results[0].Category)
	}
}

func TestClassify_AmbiguousChunksShareOneModelCall(t *testing.T) {
	ctrl := gomock.NewController(t)
	model := NewMockModelClient(ctrl)

	model.EXPECT().Generate(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, prompt string) (string, error) {
		if !strings.Contains(prompt, `"chunk_index":1`) || !strings.Contains(prompt, `"chunk_index":2`) {
			t.Errorf("prompt should tag both ambiguous chunks: %s", prompt)
		}
		if strings.Contains(prompt, "Sold to") {
			t.Error("keyword-resolved chunks must not be sent to the model")
		}
		return "```json\n{\"results\": [{\"chunk_index\": 1, \"category\": \"gstr2\", \"confidence\": 0.7, \"detected_labels\": [\"Purchase\"]}, {\"chunk_index\": 2, \"category\": \"outward\", \"confidence\": 1.4}]}\n```", nil
	}).Times(1)

	chunks := []Chunk{
		{Index: 0, Text: outwardChunkText},
		{Index: 1, Text: tieChunkText},
		{Index: 2, Text: "Freight charges: supply of packing material, vendor copy"},
	}
	report := NewClassifier(nil, model, nil).Classify(context.Background(), chunks)

	if report.ModelCalls != 1 {
		t.Fatalf("expected exactly one model call, got %d", report.ModelCalls)
	}
	if got := report.Results[1]; got.Category != CategoryInward || got.Method != MethodModel || got.Confidence != 0.7 {
		t.Errorf("unexpected result for chunk 1: %+v", got)
	}
	if got := report.Results[2]; got.Category != CategoryOutward || got.Confidence != 1.0 {
		t.Errorf("expected clamped outward result for chunk 2, got %+v", got)
	}
	if report.Outcome != OutcomeOK {
		t.Errorf("expected ok outcome, got %s", report.Outcome)
	}
	for _, r := range report.Results {
		if r.Category == CategoryAmbiguous {
			t.Errorf("ambiguous must not leave the classifier: %+v", r)
		}
	}
}

func TestClassify_ModelFailureFallsBack(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		err   error
	}{
		{"call error", "", errors.New("connection refused")},
		{"malformed", "I think it's a purchase", nil},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			model := NewMockModelClient(ctrl)
			model.EXPECT().Generate(gomock.Any(), gomock.Any()).Return(tt.reply, tt.err)

			report := NewClassifier(nil, model, nil).Classify(context.Background(), []Chunk{{Index: 0, Text: tieChunkText}})

			got := report.Results[0]
			if got.Category != CategoryIrrelevant || got.Confidence != 0.5 || got.Method != MethodFallback {
				t.Errorf("expected irrelevant/0.5/fallback, got %+v", got)
			}
			if report.Outcome != OutcomeFallback {
				t.Errorf("expected fallback outcome, got %s", report.Outcome)
			}
			if len(report.Notes) == 0 {
				t.Error("expected a note describing the fallback")
			}
		})
	}
}

func TestClassify_NoModelConfigured(t *testing.T) {
	report := NewClassifier(nil, nil, nil).Classify(context.Background(), []Chunk{{Index: 0, Text: tieChunkText}})

	if report.ModelCalls != 0 {
		t.Errorf("expected no model calls, got %d", report.ModelCalls)
	}
	if report.Results[0].Method != MethodFallback {
		t.Errorf("expected fallback, got %s", report.Results[0].Method)
	}
}

func TestClassify_OmittedChunkFallsBack(t *testing.T) {
	ctrl := gomock.NewController(t)
	model := NewMockModelClient(ctrl)
	model.EXPECT().Generate(gomock.Any(), gomock.Any()).Return(`{"results": [{"chunk_index": 99, "category": "outward", "confidence": 0.9}]}`, nil)

	report := NewClassifier(nil, model, nil).Classify(context.Background(), []Chunk{{Index: 0, Text: tieChunkText}})

	if report.Results[0].Method != MethodFallback {
		t.Errorf("expected fallback for omitted chunk, got %+v", report.Results[0])
	}
	if report.Outcome != OutcomeOK {
		t.Errorf("a successful call with omissions is still ok, got %s", report.Outcome)
	}
}

func TestClassify_Summary(t *testing.T) {
	c := NewClassifier(nil, nil, nil)

	report := c.Classify(context.Background(), []Chunk{
		{Index: 0, Text: outwardChunkText},
		{Index: 1, Text: inwardChunkText},
		{Index: 2, Text: noiseChunkText},
	})

	if report.Counts[CategoryOutward] != 1 || report.Counts[CategoryInward] != 1 || report.Counts[CategoryIrrelevant] != 1 {
		t.Errorf("unexpected counts %v", report.Counts)
	}
	if len(report.SuggestedReturns) != 2 || report.SuggestedReturns[0] != "GSTR-1" || report.SuggestedReturns[1] != "GSTR-2" {
		t.Errorf("unexpected suggested returns %v", report.SuggestedReturns)
	}
	want := (0.9 + 0.8 + 0.9) / 3
	if diff := report.OverallConfidence - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected mean confidence %.4f, got %.4f", want, report.OverallConfidence)
	}

	empty := c.Classify(context.Background(), []Chunk{{Index: 0, Text: noiseChunkText}})
	if len(empty.SuggestedReturns) != 1 || empty.SuggestedReturns[0] != "GSTR-1" {
		t.Errorf("expected GSTR-1 default, got %v", empty.SuggestedReturns)
	}
}

func TestParseRules_CustomThreshold(t *testing.T) {
	rules, err := ParseRules([]byte(`
outward:
  keywords: [consignee, sold to]
inward:
  keywords: [vendor]
tuning:
  min_keyword_score: 2
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rules.Tuning.StrongConfidence != 0.9 {
		t.Errorf("expected omitted tuning to keep defaults, got %.2f", rules.Tuning.StrongConfidence)
	}

	c := NewClassifier(rules, nil, nil)
	if res := c.ClassifyChunk(Chunk{Text: "to the consignee"}); res.Category != CategoryAmbiguous {
		t.Errorf("expected a single keyword below the threshold to be ambiguous, got %s", res.Category)
	}
	if res := c.ClassifyChunk(Chunk{Text: "sold to the consignee"}); res.Category != CategoryOutward {
		t.Errorf("expected outward at the threshold, got %s", res.Category)
	}
}

func TestParseRules_RejectsEmpty(t *testing.T) {
	if _, err := ParseRules([]byte("labels: {}")); err == nil {
		t.Fatal("expected error for a rule set without keywords")
	}
}

func TestChunksFor(t *testing.T) {
	report := &ClassificationReport{Results: []ClassificationResult{
		{ChunkIndex: 0, Category: CategoryOutward},
		{ChunkIndex: 1, Category: CategoryInward},
		{ChunkIndex: 2, Category: CategoryOutward},
	}}
	chunks := []Chunk{{Index: 0, Text: "a"}, {Index: 1, Text: "b"}, {Index: 2, Text: "c"}}

	got := report.ChunksFor(chunks, CategoryOutward)
	if len(got) != 2 || got[0].Text != "a" || got[1].Text != "c" {
		t.Errorf("unexpected chunks %+v", got)
	}
}
