package extraction

import "strings"

// Category is the return a chunk belongs to.
type Category string

const (
	CategoryOutward    Category = "outward"
	CategoryInward     Category = "inward"
	CategoryAmbiguous  Category = "ambiguous"
	CategoryIrrelevant Category = "irrelevant"
)

// ReturnName is the GST return a category feeds.
func (c Category) ReturnName() string {
	switch c {
	case CategoryOutward:
		return "GSTR-1"
	case CategoryInward:
		return "GSTR-2"
	}
	return ""
}

// ParseReturnType maps a return selector such as "outward", "GSTR-1" or
// "purchases" onto a Category. Empty input selects every chunk. Unknown
// values come back unchanged so that Pipeline.Run rejects them.
func ParseReturnType(s string) Category {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	if c, ok := parseModelCategory(s); ok && c != CategoryIrrelevant {
		return c
	}
	return Category(s)
}

// Method records which tier produced a decision.
type Method string

const (
	MethodKeyword        Method = "keyword"
	MethodKeywordStrong  Method = "keyword_strong"
	MethodModel          Method = "model"
	MethodFallback       Method = "fallback"
	MethodLocal          Method = "local"
	MethodManualFallback Method = "manual_fallback"
)

// Outcome tells callers how a stage finished without inspecting messages.
type Outcome string

const (
	// OutcomeOK means the stage ran as intended.
	OutcomeOK Outcome = "ok"
	// OutcomeFallback means a model call failed and a degraded answer was used.
	OutcomeFallback Outcome = "fallback"
	// OutcomeNoData means the stage ran but found nothing to return.
	OutcomeNoData Outcome = "no_data"
)
