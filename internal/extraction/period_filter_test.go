package extraction

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/mock/gomock"
)

func TestPeriodFilter_LocalRoundTrip(t *testing.T) {
	ctrl := gomock.NewController(t)
	model := NewMockModelClient(ctrl)
	// No EXPECT: local parsing must settle both periods without the model.
	f := NewPeriodFilter(model, nil)

	chunks := []Chunk{{Index: 0, Text: "TAX INVOICE No INV-7\nInvoice Date: 15/03/2024\nTotal: 1,180.00"}}

	march, err := f.Filter(context.Background(), chunks, PeriodRequest{Month: "March", Year: "2024"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(march.Chunks) != 1 || march.Outcome != OutcomeOK || march.Method != MethodLocal {
		t.Fatalf("expected the chunk to be kept locally, got %+v", march)
	}
	if march.Matches[0].Dates[0] != "2024-03-15" {
		t.Errorf("unexpected matched dates %v", march.Matches[0].Dates)
	}

	april, err := f.Filter(context.Background(), chunks, PeriodRequest{Month: "April", Year: "2024"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(april.Chunks) != 0 || april.Outcome != OutcomeNoData {
		t.Fatalf("expected no data for April, got %+v", april)
	}
	if april.Message != "No transactions found for April 2024" {
		t.Errorf("unexpected message %q", april.Message)
	}
	if april.ModelCalls != 0 {
		t.Errorf("expected no model calls, got %d", april.ModelCalls)
	}
}

func TestPeriodFilter_DotDatesAreDayFirst(t *testing.T) {
	f := NewPeriodFilter(nil, nil)
	chunks := []Chunk{{Index: 0, Text: "Invoice Date: 05.04.2024"}}

	april, err := f.Filter(context.Background(), chunks, PeriodRequest{Month: "April", Year: "2024"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(april.Chunks) != 1 || april.Outcome != OutcomeOK {
		t.Fatalf("expected 05.04.2024 to fall in April, got %+v", april)
	}

	may, err := f.Filter(context.Background(), chunks, PeriodRequest{Month: "May", Year: "2024"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(may.Chunks) != 0 || may.Outcome != OutcomeNoData {
		t.Fatalf("expected no data for May, got %+v", may)
	}
}

func TestPeriodFilter_DateRange(t *testing.T) {
	f := NewPeriodFilter(nil, nil)
	chunks := []Chunk{
		{Index: 0, Text: "Bill dated 15 Mar 2024 for services"},
		{Index: 1, Text: "Bill dated 25/03/2024 for freight"},
		{Index: 2, Text: "Our office will be closed on Friday"},
	}

	res, err := f.Filter(context.Background(), chunks, PeriodRequest{StartDate: "2024-03-10", EndDate: "20/03/2024"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Chunks) != 1 || res.Chunks[0].Index != 0 {
		t.Fatalf("expected only chunk 0, got %+v", res.Chunks)
	}
	if len(res.ProvisionalChunks) != 2 {
		t.Errorf("expected 2 provisional chunks, got %v", res.ProvisionalChunks)
	}
}

func TestPeriodFilter_NoDateSignals(t *testing.T) {
	res := NewPeriodFilter(nil, nil).FilterPeriod(context.Background(), []Chunk{{Index: 0, Text: "Thank you for your business"}}, mustPeriod(t, "March", "2024"))

	if res.Outcome != OutcomeNoData || res.ModelCalls != 0 {
		t.Errorf("expected no data without a model call, got %+v", res)
	}
}

func TestPeriodFilter_EmptyInput(t *testing.T) {
	res := NewPeriodFilter(nil, nil).FilterPeriod(context.Background(), nil, mustPeriod(t, "March", "2024"))

	if res.Outcome != OutcomeNoData {
		t.Errorf("expected no data, got %s", res.Outcome)
	}
	if !strings.Contains(res.Message, "March 2024") {
		t.Errorf("expected the period in the message, got %q", res.Message)
	}
}

func TestPeriodFilter_ModelResolvesUndatedChunks(t *testing.T) {
	ctrl := gomock.NewController(t)
	model := NewMockModelClient(ctrl)
	model.EXPECT().Generate(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, prompt string) (string, error) {
		if !strings.Contains(prompt, "March 2024") {
			t.Errorf("prompt should name the period: %s", prompt)
		}
		return `{"filtered_results": [
			{"chunk_index": 0, "in_period": true, "extracted_dates": ["15/03/2024"], "confidence": 0.8, "reason": "dated mid March"},
			{"chunk_index": 1, "in_period": false, "confidence": 0.9}
		]}`, nil
	}).Times(1)

	chunks := []Chunk{
		{Index: 0, Text: "Invoice dated the fifteenth of the month"},
		{Index: 1, Text: "Bill date 01/01/2023"},
	}
	res := NewPeriodFilter(model, nil).FilterPeriod(context.Background(), chunks, mustPeriod(t, "March", "2024"))

	if res.Method != MethodModel || res.ModelCalls != 1 {
		t.Fatalf("expected a single model call, got %+v", res)
	}
	if len(res.Chunks) != 1 || res.Chunks[0].Index != 0 {
		t.Fatalf("expected chunk 0 only, got %+v", res.Chunks)
	}
	if res.Matches[0].Dates[0] != "2024-03-15" || res.Matches[0].Confidence != 0.8 {
		t.Errorf("unexpected match %+v", res.Matches[0])
	}
}

func TestPeriodFilter_ModelFailureReturnsProvisional(t *testing.T) {
	ctrl := gomock.NewController(t)
	model := NewMockModelClient(ctrl)
	model.EXPECT().Generate(gomock.Any(), gomock.Any()).Return("", errors.New("timeout"))

	chunks := []Chunk{
		{Index: 0, Text: "Invoice dated the fifteenth of the month"},
		{Index: 1, Text: "Bill date 01/01/2023"},
		{Index: 2, Text: "Terms and conditions"},
	}
	res := NewPeriodFilter(model, nil).FilterPeriod(context.Background(), chunks, mustPeriod(t, "March", "2024"))

	if res.Outcome != OutcomeFallback || res.Method != MethodFallback {
		t.Fatalf("expected fallback, got %+v", res)
	}
	if len(res.Chunks) != 2 {
		t.Fatalf("expected both provisional chunks, got %+v", res.Chunks)
	}
	if len(res.Notes) == 0 {
		t.Error("expected a fallback note")
	}
}

func TestPeriodFilter_InvalidRequest(t *testing.T) {
	_, err := NewPeriodFilter(nil, nil).Filter(context.Background(), nil, PeriodRequest{Month: "Smarch", Year: "2024"})

	var extErr *ExtractionError
	if !errors.As(err, &extErr) || extErr.Code != ErrInvalidPeriod {
		t.Fatalf("expected INVALID_PERIOD, got %v", err)
	}
}

func mustPeriod(t *testing.T, month, year string) FilingPeriod {
	t.Helper()
	p, err := ParsePeriod(PeriodRequest{Month: month, Year: year})
	if err != nil {
		t.Fatalf("parse period: %v", err)
	}
	return p
}
