package extraction

import "testing"

func TestParseReturnType(t *testing.T) {
	tests := map[string]Category{
		"":          "",
		"  ":        "",
		"outward":   CategoryOutward,
		"GSTR-1":    CategoryOutward,
		"gstr1":     CategoryOutward,
		" Inward ":  CategoryInward,
		"GSTR-2":    CategoryInward,
		"purchases": CategoryInward,
		"GSTR-9":    Category("GSTR-9"),
		"other":     Category("other"),
	}
	for in, want := range tests {
		if got := ParseReturnType(in); got != want {
			t.Errorf("ParseReturnType(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestReturnName(t *testing.T) {
	if CategoryOutward.ReturnName() != "GSTR-1" || CategoryInward.ReturnName() != "GSTR-2" {
		t.Fatal("unexpected return names")
	}
	if CategoryIrrelevant.ReturnName() != "" {
		t.Fatal("irrelevant chunks feed no return")
	}
}
