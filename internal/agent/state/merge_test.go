package state

import "testing"

func TestApplyAppendPreservesOrder(t *testing.T) {
	s := New("r1", "Target", "", nil, 3, false)
	if err := s.Apply(Patch{FieldExtractedFacts: []Fact{{Fact: "a"}, {Fact: "b"}}}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := s.Apply(Patch{FieldExtractedFacts: []Fact{{Fact: "b"}, {Fact: "c"}}}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	got := make([]string, 0, len(s.ExtractedFacts))
	for _, f := range s.ExtractedFacts {
		got = append(got, f.Fact)
	}
	want := []string{"a", "b", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestApplyUnionDeduplicatesURLs(t *testing.T) {
	s := New("r1", "Target", "", nil, 3, false)
	if err := s.Apply(Patch{FieldURLsVisited: []string{"https://a.example", "https://b.example"}}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := s.Apply(Patch{FieldURLsVisited: []string{"https://b.example", "https://c.example"}}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(s.URLsVisited) != 3 {
		t.Fatalf("url set size = %d, want 3", len(s.URLsVisited))
	}
	for _, u := range []string{"https://a.example", "https://b.example", "https://c.example"} {
		if !s.URLsVisited.Contains(u) {
			t.Fatalf("missing url %s", u)
		}
	}
}

func TestApplyOverwriteReplaces(t *testing.T) {
	s := New("r1", "Target", "", nil, 3, false)
	if err := s.Apply(Patch{FieldPendingQueries: []string{"q1", "q2"}}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := s.Apply(Patch{FieldPendingQueries: []string{"q3"}}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(s.PendingQueries) != 1 || s.PendingQueries[0] != "q3" {
		t.Fatalf("pending queries = %v, want [q3]", s.PendingQueries)
	}
}

func TestApplyExplicitEmptyClearsQueue(t *testing.T) {
	s := New("r1", "Target", "", nil, 3, false)
	if err := s.Apply(Patch{FieldPendingQueries: []string{"q1"}}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := s.Apply(Patch{FieldPendingQueries: []string{}}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(s.PendingQueries) != 0 {
		t.Fatalf("pending queries = %v, want empty", s.PendingQueries)
	}
}

func TestApplyOmittedFieldUntouched(t *testing.T) {
	s := New("r1", "Target", "", nil, 3, false)
	s.PendingQueries = []string{"q1"}
	s.PhaseSearched = true
	if err := s.Apply(Patch{FieldExtractedFacts: []Fact{{Fact: "a"}}}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(s.PendingQueries) != 1 || !s.PhaseSearched {
		t.Fatal("omitted fields were modified")
	}
}

func TestApplyUnknownFieldRejected(t *testing.T) {
	s := New("r1", "Target", "", nil, 3, false)
	if err := s.Apply(Patch{Field("target_name"): "Mallory"}); err == nil {
		t.Fatal("expected error for non-patchable field")
	}
	if s.TargetName != "Target" {
		t.Fatalf("target name mutated to %q", s.TargetName)
	}
}

func TestApplyTypeMismatchRejected(t *testing.T) {
	s := New("r1", "Target", "", nil, 3, false)
	if err := s.Apply(Patch{FieldCurrentPhase: "two"}); err == nil {
		t.Fatal("expected type error")
	}
}

func TestApplyRiskScorePointer(t *testing.T) {
	s := New("r1", "Target", "", nil, 3, false)
	if s.OverallRiskScore != nil {
		t.Fatal("risk score should start unset")
	}
	if err := s.Apply(Patch{FieldOverallRiskScore: 0.0}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if s.OverallRiskScore == nil || *s.OverallRiskScore != 0 {
		t.Fatal("explicit zero score should be distinguishable from unset")
	}
}
