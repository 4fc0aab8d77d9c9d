package extraction

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/mock/gomock"
)

var endToEndChunks = []Chunk{
	{Index: 0, Text: "TAX INVOICE\nInvoice No: INV-2024-031\nInvoice Date: 15/03/2024\nSold to: Acme Retail Pvt Ltd\nGSTIN: 29ABCDE1234F1Z5\nPlace of supply: Karnataka\nGrand Total: 11,800.00"},
	{Index: 1, Text: "PURCHASE INVOICE\nPurchased from: ABC Traders\nSupplier GSTIN: 27PQRSX5678K1Z2\nBill date 02/03/2024\nInput tax credit eligible"},
	{Index: 2, Text: "Terms and conditions: goods once sold will not be taken back. Thank you."},
}

const endToEndReply = `{"header": {"gstin": "27AAAAA0000A1Z5", "company_name": "Filer Traders"},
 "invoices": [{"invoice_no": "INV-2024-031", "invoice_date": "2024-03-15", "recipient_gstin": "29ABCDE1234F1Z5", "recipient_name": "Acme Retail Pvt Ltd", "place_of_supply": "Karnataka", "invoice_value": 11800,
   "items": [{"product_name": "Steel rods", "hsn_code": "7214", "quantity": 10, "unit_price": 1000, "taxable_value": 10000, "cgst": 900, "sgst": 900}]}]}`

func TestPipeline_EndToEnd(t *testing.T) {
	ctrl := gomock.NewController(t)
	model := NewMockModelClient(ctrl)
	model.EXPECT().Generate(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, prompt string) (string, error) {
		if !strings.Contains(prompt, "INV-2024-031") || strings.Contains(prompt, "ABC Traders") {
			t.Errorf("only the outward March chunk should reach extraction: %s", prompt)
		}
		return endToEndReply, nil
	}).Times(1)

	res, err := NewPipeline(model, nil).Run(context.Background(), FilingRequest{
		Chunks:     endToEndChunks,
		Classify:   true,
		ReturnType: CategoryOutward,
		Period:     PeriodRequest{Month: "March", Year: "2024"},
		FilerGSTIN: "27AAAAA0000A1Z5",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusCompleted || res.ID == "" {
		t.Fatalf("unexpected result status %s (%s)", res.Status, res.Message)
	}

	cats := []Category{}
	for _, r := range res.Classification.Results {
		cats = append(cats, r.Category)
	}
	if len(cats) != 3 || cats[0] != CategoryOutward || cats[1] != CategoryInward || cats[2] != CategoryIrrelevant {
		t.Errorf("unexpected classification %v", cats)
	}

	if len(res.PeriodFilter.Chunks) != 1 || res.PeriodFilter.Chunks[0].Index != 0 {
		t.Errorf("expected the period filter to retain chunk 0, got %+v", res.PeriodFilter.Chunks)
	}

	ext := res.Extraction
	if ext.Summary.Registered != 1 || ext.Summary.TotalInvoices != 1 {
		t.Fatalf("expected one registered invoice, got %+v", ext.Summary)
	}
	if got := ext.Invoices.Registered[0]; got.Category != InvoiceRegistered || got.InvoiceNo != "INV-2024-031" {
		t.Errorf("unexpected invoice %+v", got)
	}
	if ext.Header.FilingPeriod != "March 2024" {
		t.Errorf("unexpected filing period %q", ext.Header.FilingPeriod)
	}
}

func TestPipeline_InwardReturn(t *testing.T) {
	ctrl := gomock.NewController(t)
	model := NewMockModelClient(ctrl)
	model.EXPECT().Generate(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, prompt string) (string, error) {
		if !strings.Contains(prompt, "ABC Traders") {
			t.Errorf("expected the inward chunk in the prompt: %s", prompt)
		}
		if !strings.Contains(prompt, "supplier_gstin") {
			t.Errorf("expected the purchase schema in the prompt: %s", prompt)
		}
		return `{"invoices": []}`, nil
	})

	res, err := NewPipeline(model, nil).Run(context.Background(), FilingRequest{
		Chunks:      endToEndChunks,
		Classify:    true,
		ReturnType:  CategoryInward,
		Period:      PeriodRequest{StartDate: "2024-03-01", EndDate: "2024-03-31"},
		FilterFirst: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusNoData {
		t.Errorf("expected no data when the model finds no invoices, got %s", res.Status)
	}
	if res.Extraction == nil || res.Extraction.ReturnType != "GSTR-2" || res.Extraction.ITC == nil {
		t.Errorf("expected a GSTR-2 extraction with an ITC summary, got %+v", res.Extraction)
	}
}

func TestPipeline_PeriodWithoutData(t *testing.T) {
	ctrl := gomock.NewController(t)
	model := NewMockModelClient(ctrl)

	res, err := NewPipeline(model, nil).Run(context.Background(), FilingRequest{
		Chunks: endToEndChunks,
		Period: PeriodRequest{Month: "April", Year: "2024"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusNoData || res.Message != "No transactions found for April 2024" {
		t.Errorf("unexpected result %s: %q", res.Status, res.Message)
	}
	if res.Extraction != nil {
		t.Error("extraction must not run without chunks")
	}
}

func TestPipeline_ParameterErrors(t *testing.T) {
	tests := []struct {
		name string
		req  FilingRequest
		code ExtractionErrorCode
	}{
		{"bad month", FilingRequest{Text: "x", Period: PeriodRequest{Month: "Smarch", Year: "2024"}}, ErrInvalidPeriod},
		{"both period modes", FilingRequest{Text: "x", Period: PeriodRequest{Month: "March", Year: "2024", StartDate: "2024-03-01", EndDate: "2024-03-31"}}, ErrInvalidPeriod},
		{"bad return type", FilingRequest{Text: "x", ReturnType: "sideways"}, ErrInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			model := NewMockModelClient(ctrl)

			res, err := NewPipeline(model, nil).Run(context.Background(), tt.req)

			var extErr *ExtractionError
			if !errors.As(err, &extErr) || extErr.Code != tt.code {
				t.Fatalf("expected %s, got %v", tt.code, err)
			}
			if res.Status != StatusError || res.Error == nil || res.Error.Code != tt.code {
				t.Errorf("expected an error result, got %+v", res)
			}
		})
	}
}

func TestPipeline_ChunksRawText(t *testing.T) {
	res, err := NewPipeline(nil, nil, WithChunking(200, 20)).Run(context.Background(), FilingRequest{
		Text: strings.Repeat("TAX INVOICE\nInvoice No: A-1\nTotal: 100\n", 30),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ChunkCount < 2 {
		t.Errorf("expected the text to be chunked, got %d chunks", res.ChunkCount)
	}
	if res.Extraction.Method != MethodManualFallback {
		t.Errorf("expected manual extraction without a model, got %s", res.Extraction.Method)
	}
	if res.Extraction.DuplicatesRemoved == 0 {
		t.Error("expected repeated invoices across overlapping chunks to be deduplicated")
	}
}

func TestPipeline_LargeThresholdOption(t *testing.T) {
	p := NewPipeline(nil, nil, WithLargeInvoiceThreshold(1000))
	if p.extractor.categorizer.LargeThreshold != 1000 {
		t.Errorf("expected threshold 1000, got %v", p.extractor.categorizer.LargeThreshold)
	}
}
