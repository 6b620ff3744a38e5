package llmgw

import "testing"

func TestStrictJSONParseDirect(t *testing.T) {
	out, tier := strictJSONParse(`{"x": 1}`)
	if out == nil || tier != tierDirect {
		t.Fatalf("expected direct tier success, got %v tier=%d", out, tier)
	}
}

func TestStrictJSONParseChineseQuotesAndTrailingComma(t *testing.T) {
	out, tier := strictJSONParse(`{“x”: 1, "y": [1,2,],}`)
	if out == nil {
		t.Fatal("expected repaired parse to succeed")
	}
	if tier != tierRepaired {
		t.Errorf("expected tierRepaired, got %d", tier)
	}
}

func TestStrictJSONParseExtractsBlockFromProse(t *testing.T) {
	out, tier := strictJSONParse("Sure, here is the JSON: {\"x\": 1} — let me know if you need changes.")
	if out == nil {
		t.Fatal("expected block extraction to succeed")
	}
	if tier != tierHeuristic && tier != tierRepaired {
		t.Errorf("expected heuristic or repaired tier, got %d", tier)
	}
}

func TestStrictJSONParseTotalFailure(t *testing.T) {
	out, tier := strictJSONParse("this is not json in any form")
	if out != nil || tier != 0 {
		t.Fatalf("expected total failure, got %v tier=%d", out, tier)
	}
}

func TestStrictJSONParseEmptyInput(t *testing.T) {
	out, tier := strictJSONParse("   ")
	if out != nil || tier != 0 {
		t.Fatalf("expected nil for empty input, got %v tier=%d", out, tier)
	}
}
