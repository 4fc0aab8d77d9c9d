package service

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/castlemilk/gstfiling/internal/extraction"
	"github.com/castlemilk/gstfiling/internal/store"
	"github.com/spf13/cast"
)

type classifyRequest struct {
	DocumentIDs []string `json:"document_ids"`
}

// submitRequest is the body of POST /api/filing/submit. Month and year are
// accepted as strings or numbers.
type submitRequest struct {
	DocumentIDs []string `json:"document_ids"`
	ReturnType  string   `json:"return_type"`
	Classify    *bool    `json:"classify"`
	FilterFirst bool     `json:"filter_first"`
	Month       any      `json:"month"`
	Year        any      `json:"year"`
	StartDate   string   `json:"start_date"`
	EndDate     string   `json:"end_date"`
	GSTIN       string   `json:"gstin"`
	CompanyName string   `json:"company_name"`
}

type filingResponse struct {
	*store.FilingRecord
	Result json.RawMessage `json:"result,omitempty"`
}

func (s *FilingService) handleClassify(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	var req classifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeFailure(w, r, invalidRequest("invalid request body"))
		return
	}

	chunks, err := s.loadChunks(r, req.DocumentIDs)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	report := s.pipeline.Classifier().Classify(r.Context(), chunks)
	writeJSON(w, http.StatusOK, report)
}

func (s *FilingService) handleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeFailure(w, r, invalidRequest("invalid request body"))
		return
	}

	chunks, err := s.loadChunks(r, req.DocumentIDs)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	returnType := extraction.ParseReturnType(req.ReturnType)
	classify := returnType != ""
	if req.Classify != nil {
		classify = *req.Classify
	}

	result, err := s.pipeline.Run(r.Context(), extraction.FilingRequest{
		Chunks:     chunks,
		ReturnType: returnType,
		Classify:   classify,
		Period: extraction.PeriodRequest{
			Month:     optionalString(req.Month),
			Year:      optionalString(req.Year),
			StartDate: req.StartDate,
			EndDate:   req.EndDate,
		},
		FilterFirst: req.FilterFirst,
		FilerGSTIN:  req.GSTIN,
		CompanyName: req.CompanyName,
	})
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	record, err := newFilingRecord(req.DocumentIDs, returnType, result)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if err := s.store.SaveFiling(r.Context(), record); err != nil {
		s.writeFailure(w, r, fmt.Errorf("save filing: %w", err))
		return
	}

	s.logger.Info("filing stored",
		"filing_id", record.ID,
		"status", record.Status,
		"invoices", record.InvoiceCount,
	)
	writeJSON(w, http.StatusOK, result)
}

func (s *FilingService) handleGetFiling(w http.ResponseWriter, r *http.Request) {
	record, err := s.store.GetFiling(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	resp := filingResponse{FilingRecord: record}
	if record.ResultJSON != "" {
		resp.Result = json.RawMessage(record.ResultJSON)
	}
	writeJSON(w, http.StatusOK, resp)
}

func optionalString(v any) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(cast.ToString(v))
}

func newFilingRecord(docIDs []string, returnType extraction.Category, res *extraction.FilingResult) (*store.FilingRecord, error) {
	raw, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encode filing result: %w", err)
	}

	name := returnType.ReturnName()
	if name == "" {
		name = extraction.CategoryOutward.ReturnName()
	}

	record := &store.FilingRecord{
		ID:          res.ID,
		DocumentIDs: docIDs,
		ReturnType:  name,
		Status:      string(res.Status),
		Message:     res.Message,
		ResultJSON:  string(raw),
		CreatedAt:   res.CreatedAt,
	}
	if res.PeriodFilter != nil {
		record.Period = res.PeriodFilter.PeriodLabel
	}
	if ext := res.Extraction; ext != nil {
		record.InvoiceCount = ext.Summary.TotalInvoices
		record.TotalTaxableValue = ext.Summary.TotalTaxableValue
		record.TotalTax = ext.Summary.TotalTax
		record.DuplicatesRemoved = ext.DuplicatesRemoved
	}
	return record, nil
}
