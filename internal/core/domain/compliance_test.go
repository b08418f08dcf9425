package domain

import (
	"errors"
	"testing"
)

func TestNormalizeModelStatusSynonyms(t *testing.T) {
	cases := map[string]ComplianceStatus{
		"yes":            StatusCompliant,
		" Compliant ":    StatusCompliant,
		"PASS":           StatusCompliant,
		"non-compliant":  StatusNonCompliant,
		"FAIL":           StatusNonCompliant,
		"na":             StatusNotApplicable,
		"Not Applicable": StatusNotApplicable,
	}
	for raw, want := range cases {
		got, err := NormalizeModelStatus(raw)
		if err != nil {
			t.Fatalf("normalize %q: %v", raw, err)
		}
		if got != want {
			t.Fatalf("normalize %q: got %s want %s", raw, got, want)
		}
	}
}

func TestNormalizeModelStatusRejectsUnknown(t *testing.T) {
	for _, raw := range []string{"MAYBE", "", "PENDING", "ERROR"} {
		_, err := NormalizeModelStatus(raw)
		if !errors.Is(err, ErrUnknownStatus) {
			t.Fatalf("expected ErrUnknownStatus for %q, got %v", raw, err)
		}
	}
}

func TestNewResultUsesSectionAsStandard(t *testing.T) {
	q := Question{ID: "IAS1_001", Section: "IAS 1", Reference: "IAS 1.10", Question: "Is a statement of financial position presented?"}
	r := NewResult(q, 2)
	if r.Standard != "IAS 1" || r.Section != "IAS 1" {
		t.Fatalf("unexpected standard/section: %q/%q", r.Standard, r.Section)
	}
	if r.Status != StatusPending || r.Sequence != 2 {
		t.Fatalf("unexpected seed state: %+v", r)
	}
	if r.DecisionTreePath == nil || r.ContextUsed == nil {
		t.Fatalf("expected non-nil slices for stable json")
	}
}

func TestQuestionsHashIgnoresOrder(t *testing.T) {
	a := QuestionsHash([]string{"q2", "q1", "q3"})
	b := QuestionsHash([]string{"q1", "q3", "q2"})
	if a != b {
		t.Fatalf("expected order-independent hash, got %s vs %s", a, b)
	}
	if a == QuestionsHash([]string{"q1", "q2"}) {
		t.Fatalf("expected different hash for different selection")
	}
	if len(a) != 64 {
		t.Fatalf("expected sha256 hex, got %d chars", len(a))
	}
}

func TestRouteContext(t *testing.T) {
	if got := RouteContext("notes_only"); len(got) != 1 || got[0] != TaxonomyNotes {
		t.Fatalf("notes_only: got %v", got)
	}
	if got := RouteContext("financial_statements"); len(got) != 4 {
		t.Fatalf("financial_statements: got %v", got)
	}
	if got := RouteContext("cash_flow"); len(got) != 1 || got[0] != TaxonomyCashFlow {
		t.Fatalf("cash_flow: got %v", got)
	}
	for _, hint := range []string{"full", "", "whatever"} {
		if got := RouteContext(hint); got != nil {
			t.Fatalf("%q: expected no filter, got %v", hint, got)
		}
	}
}

func TestRenderMarkdownTablePadsRows(t *testing.T) {
	got := RenderMarkdownTable([][]string{{"Item", "2025", "2024"}, {"Cash", "10"}})
	want := "| Item | 2025 | 2024 |\n| --- | --- | --- |\n| Cash | 10 |  |"
	if got != want {
		t.Fatalf("unexpected table:\n%s\nwant:\n%s", got, want)
	}
}
