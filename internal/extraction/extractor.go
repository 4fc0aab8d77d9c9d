package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// ExtractRequest is the input to Extractor.Extract. ReturnType inward reads
// the chunks as purchase bills; anything else reads them as sales.
type ExtractRequest struct {
	Chunks       []Chunk
	ReturnType   Category
	FilerGSTIN   string
	CompanyName  string
	FilingPeriod string
}

// ExtractionHeader identifies the filer of a return.
type ExtractionHeader struct {
	GSTIN        string `json:"gstin"`
	CompanyName  string `json:"company_name"`
	FilingPeriod string `json:"filing_period"`
}

// ExtractionSummary holds the recomputed return totals.
type ExtractionSummary struct {
	TotalInvoices     int          `json:"total_invoices"`
	Registered        int          `json:"registered"`
	LargeUnregistered int          `json:"large_unregistered"`
	SmallUnregistered int          `json:"small_unregistered"`
	TotalTaxableValue float64      `json:"total_taxable_value"`
	TotalTax          float64      `json:"total_tax"`
	TotalInvoiceValue float64      `json:"total_invoice_value"`
	Tax               TaxBreakdown `json:"tax_breakdown"`
}

// ITCSummary totals the input tax credit available on purchases.
type ITCSummary struct {
	IGST            float64 `json:"igst"`
	CGST            float64 `json:"cgst"`
	SGST            float64 `json:"sgst"`
	Cess            float64 `json:"cess"`
	Total           float64 `json:"total"`
	UniqueSuppliers int     `json:"unique_suppliers"`
}

// ExtractionResult is the structured return data for a set of chunks.
type ExtractionResult struct {
	ReturnType        string               `json:"return_type"`
	Header            ExtractionHeader     `json:"header"`
	Invoices          *CategorizedInvoices `json:"invoices"`
	Summary           ExtractionSummary    `json:"summary"`
	ITC               *ITCSummary          `json:"itc,omitempty"`
	DuplicatesRemoved int                  `json:"duplicates_removed"`
	Method            Method               `json:"method"`
	ModelCalls        int                  `json:"model_calls"`
	Outcome           Outcome              `json:"outcome"`
	Notes             []string             `json:"notes,omitempty"`
}

// Extractor turns chunks into validated, deduplicated and categorized
// invoices. It makes one model call per request and falls back to regex
// extraction when the reply cannot be used.
type Extractor struct {
	model       ModelClient
	categorizer *Categorizer
	logger      *slog.Logger
}

// NewExtractor creates an extractor. model may be nil, in which case every
// request uses the manual fallback.
func NewExtractor(model ModelClient, categorizer *Categorizer, logger *slog.Logger) *Extractor {
	if categorizer == nil {
		categorizer = NewCategorizer(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{model: model, categorizer: categorizer, logger: logger.With("component", "extractor")}
}

// Extract runs extraction, validation, deduplication and categorization.
func (e *Extractor) Extract(ctx context.Context, req ExtractRequest) *ExtractionResult {
	inward := req.ReturnType == CategoryInward
	res := &ExtractionResult{
		Header: ExtractionHeader{
			GSTIN:        strings.ToUpper(strings.TrimSpace(req.FilerGSTIN)),
			CompanyName:  strings.TrimSpace(req.CompanyName),
			FilingPeriod: req.FilingPeriod,
		},
		Method:  MethodModel,
		Outcome: OutcomeOK,
	}
	res.ReturnType = CategoryOutward.ReturnName()
	if inward {
		res.ReturnType = CategoryInward.ReturnName()
	}

	text := JoinChunks(req.Chunks)
	if strings.TrimSpace(text) == "" {
		res.Outcome = OutcomeNoData
		res.Notes = append(res.Notes, "no text to extract from")
		return e.finish(res, nil, inward)
	}

	if e.model != nil {
		res.ModelCalls = 1
	}
	candidates, header, err := e.extractWithModel(ctx, text, res.Header, inward)
	if err != nil {
		e.logger.Warn("model extraction failed, using manual fallback", "return_type", res.ReturnType, "error", err)
		candidates = ManualExtract(text, res.Header.GSTIN)
		if inward {
			candidates = asPurchases(candidates)
		}
		res.Method = MethodManualFallback
		res.Outcome = OutcomeFallback
		res.Notes = append(res.Notes, fmt.Sprintf("model extraction unavailable (%v); %d invoices recovered from text", err, len(candidates)))
	} else if res.Header.CompanyName == "" {
		res.Header.CompanyName = header.CompanyName
	}

	validate := ValidateInvoice
	if inward {
		validate = ValidateInwardInvoice
	}
	invoices := make([]Invoice, 0, len(candidates))
	for _, c := range candidates {
		invoices = append(invoices, validate(c))
	}
	return e.finish(res, invoices, inward)
}

// asPurchases relabels manually recovered invoices as purchases: the GSTIN
// that is not the filer's belongs to the supplier.
func asPurchases(candidates []map[string]any) []map[string]any {
	for _, c := range candidates {
		c["supplier_gstin"] = c["recipient_gstin"]
		delete(c, "recipient_gstin")
		delete(c, "recipient_name")
	}
	return candidates
}

func (e *Extractor) finish(res *ExtractionResult, invoices []Invoice, inward bool) *ExtractionResult {
	deduped, removed := Deduplicate(invoices, res.Header.GSTIN)
	res.DuplicatesRemoved = removed
	if removed > 0 {
		res.Notes = append(res.Notes, fmt.Sprintf("removed %d duplicate invoices", removed))
	}

	res.Invoices = e.categorizer.Categorize(deduped)
	overall := res.Invoices.Overall
	res.Summary = ExtractionSummary{
		TotalInvoices:     overall.InvoiceCount,
		Registered:        res.Invoices.Counts[InvoiceRegistered],
		LargeUnregistered: res.Invoices.Counts[InvoiceLargeUnregistered],
		SmallUnregistered: res.Invoices.Counts[InvoiceSmallUnregistered],
		TotalTaxableValue: round2(overall.TotalTaxableValue),
		TotalTax:          round2(overall.TotalTax),
		TotalInvoiceValue: round2(overall.TotalInvoiceValue),
		Tax: TaxBreakdown{
			IGST: round2(overall.Tax.IGST),
			CGST: round2(overall.Tax.CGST),
			SGST: round2(overall.Tax.SGST),
			Cess: round2(overall.Tax.Cess),
		},
	}
	if inward {
		res.ITC = inputTaxCredit(res.Invoices)
	}
	if overall.InvoiceCount == 0 && res.Outcome == OutcomeOK {
		res.Outcome = OutcomeNoData
	}
	return res
}

// inputTaxCredit sums every tax component, cess included, across purchases
// and counts distinct supplier GSTINs.
func inputTaxCredit(invoices *CategorizedInvoices) *ITCSummary {
	tax := invoices.Overall.Tax
	suppliers := make(map[string]bool)
	for _, inv := range invoices.All() {
		if hasRegisteredCounterparty(inv.Invoice) {
			suppliers[strings.ToUpper(strings.TrimSpace(inv.SupplierGSTIN))] = true
		}
	}
	return &ITCSummary{
		IGST:            round2(tax.IGST),
		CGST:            round2(tax.CGST),
		SGST:            round2(tax.SGST),
		Cess:            round2(tax.Cess),
		Total:           round2(tax.Total() + tax.Cess),
		UniqueSuppliers: len(suppliers),
	}
}

// extractWithModel makes the single model call and returns the untrusted
// candidate records.
func (e *Extractor) extractWithModel(ctx context.Context, text string, header ExtractionHeader, inward bool) ([]map[string]any, ExtractionHeader, error) {
	if e.model == nil {
		return nil, header, &ExtractionError{Code: ErrModelUnavailable, Message: "no model client configured", Method: "extractor"}
	}

	prompt := buildExtractionPrompt(text, header)
	if inward {
		prompt = buildInwardExtractionPrompt(text, header)
	}
	reply, err := e.model.Generate(ctx, prompt)
	if err != nil {
		return nil, header, fmt.Errorf("extract invoices: %w", err)
	}

	var doc any
	if err := decodeModelJSON(reply, &doc); err != nil {
		return nil, header, fmt.Errorf("extract invoices: %w", err)
	}

	candidates, modelHeader, ok := candidatesFromDocument(doc)
	if !ok {
		return nil, header, &ExtractionError{
			Code:    ErrMalformedResponse,
			Message: "model reply has no invoice list",
			Method:  "extractor",
		}
	}
	return candidates, modelHeader, nil
}

// candidatesFromDocument accepts {"invoices": [...]}, {"inward_invoices":
// [...]}, the legacy {"gstr1_return": {...}} and {"gstr2_return": {...}}
// wrappers, a bare array, or a single invoice object.
func candidatesFromDocument(doc any) ([]map[string]any, ExtractionHeader, bool) {
	var header ExtractionHeader

	switch v := doc.(type) {
	case []any:
		return objectList(v), header, true
	case map[string]any:
		for _, key := range []string{"gstr1_return", "gstr2_return"} {
			if wrapped, ok := v[key].(map[string]any); ok {
				v = wrapped
				break
			}
		}
		if h, ok := v["header"].(map[string]any); ok {
			header.GSTIN = stringField(h, "gstin")
			header.CompanyName = stringField(h, "company_name", "legal_name")
			header.FilingPeriod = stringField(h, "filing_period")
		}
		for _, key := range []string{"invoices", "inward_invoices"} {
			if list, ok := v[key].([]any); ok {
				return objectList(list), header, true
			}
			if _, ok := v[key]; ok {
				// "invoices": null means the model found none.
				return nil, header, v[key] == nil
			}
		}
		if _, ok := v["invoice_no"]; ok {
			return []map[string]any{v}, header, true
		}
	}
	return nil, header, false
}

func objectList(list []any) []map[string]any {
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func buildExtractionPrompt(text string, header ExtractionHeader) string {
	return fmt.Sprintf(`You are an Indian GST return preparer. Extract every invoice from the document text below.

Filer GSTIN: %s
Company: %s
Filing period: %s

Rules:
- One entry per invoice; do not repeat an invoice that appears in overlapping text.
- invoice_date must be YYYY-MM-DD.
- recipient_gstin is the 15-character GSTIN of the buyer, or "" when the buyer is unregistered. Never use the filer's own GSTIN.
- All amounts are plain numbers in rupees without currency symbols or thousands separators.
- Report tax per line item as amounts (igst, cgst, sgst, cess), not rates.

Return JSON only:
{"header": {"gstin": "...", "company_name": "...", "filing_period": "..."},
 "invoices": [{"invoice_no": "...", "invoice_date": "YYYY-MM-DD", "recipient_gstin": "...", "recipient_name": "...", "place_of_supply": "...", "invoice_value": 0.0,
   "items": [{"product_name": "...", "hsn_code": "...", "quantity": 0, "unit_price": 0.0, "taxable_value": 0.0, "igst": 0.0, "cgst": 0.0, "sgst": 0.0, "cess": 0.0}]}]}

Document text:
%s`, header.GSTIN, header.CompanyName, header.FilingPeriod, text)
}

func buildInwardExtractionPrompt(text string, header ExtractionHeader) string {
	return fmt.Sprintf(`You are an Indian GST return preparer working on GSTR-2 (inward supplies). Extract every purchase invoice from the document text below. The filer is the buyer on these invoices.

Filer GSTIN: %s
Company: %s
Filing period: %s

Rules:
- One entry per invoice; do not repeat an invoice that appears in overlapping text.
- invoice_date must be YYYY-MM-DD.
- supplier_gstin is the 15-character GSTIN of the seller, or "" when the supplier is unregistered. Never use the filer's own GSTIN.
- All amounts are plain numbers in rupees without currency symbols or thousands separators.
- Report tax per line item as amounts (igst, cgst, sgst, cess), not rates.

Return JSON only:
{"header": {"gstin": "...", "company_name": "...", "filing_period": "..."},
 "inward_invoices": [{"invoice_no": "...", "invoice_date": "YYYY-MM-DD", "supplier_gstin": "...", "supplier_name": "...", "place_of_supply": "...", "invoice_value": 0.0,
   "items": [{"product_name": "...", "hsn_code": "...", "quantity": 0, "unit_price": 0.0, "taxable_value": 0.0, "igst": 0.0, "cgst": 0.0, "sgst": 0.0, "cess": 0.0}]}]}

Document text:
%s`, header.GSTIN, header.CompanyName, header.FilingPeriod, text)
}
