package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestDecisionTreeFormatNested(t *testing.T) {
	tree := Checkpoint("Is the policy disclosed?",
		Terminal("COMPLIANT: YES"),
		Checkpoint("Is the omission immaterial?", Terminal("N/A"), Terminal("COMPLIANT: NO")),
	)

	want := strings.Join([]string{
		"CHECKPOINT 1: Is the policy disclosed?",
		"  → YES: COMPLIANT: YES",
		"  → NO: proceed to next checkpoint",
		"  CHECKPOINT 2: Is the omission immaterial?",
		"    → YES: N/A",
		"    → NO: COMPLIANT: NO",
	}, "\n")
	if got := tree.Format(); got != want {
		t.Fatalf("unexpected format:\n%s\nwant:\n%s", got, want)
	}
}

func TestDecisionTreeFormatTerminalAndEmpty(t *testing.T) {
	if got := Terminal("COMPLIANT: YES").Format(); got != "COMPLIANT: YES" {
		t.Fatalf("expected bare terminal, got %q", got)
	}
	var nilTree *DecisionTree
	if got := nilTree.Format(); got != "" {
		t.Fatalf("expected empty format for nil tree, got %q", got)
	}
}

func TestDecisionTreeUnmarshalJSONMixedBranches(t *testing.T) {
	raw := `{"question":"Is X disclosed?","yes_case":{"question":"Is X measured?","yes_case":"COMPLIANT: YES","no_case":"COMPLIANT: NO"},"no_case":"COMPLIANT: NO"}`

	var tree DecisionTree
	if err := json.Unmarshal([]byte(raw), &tree); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if tree.Question != "Is X disclosed?" {
		t.Fatalf("unexpected root question: %q", tree.Question)
	}
	if tree.Yes == nil || tree.Yes.Question != "Is X measured?" {
		t.Fatalf("expected nested yes branch, got %+v", tree.Yes)
	}
	if !tree.No.IsTerminal() || tree.No.Outcome != "COMPLIANT: NO" {
		t.Fatalf("expected terminal no branch, got %+v", tree.No)
	}

	encoded, err := json.Marshal(tree)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var again DecisionTree
	if err := json.Unmarshal(encoded, &again); err != nil {
		t.Fatalf("unmarshal again: %v", err)
	}
	if again.Format() != tree.Format() {
		t.Fatalf("tree changed after re-encoding:\n%s\nvs\n%s", again.Format(), tree.Format())
	}
}

func TestDecisionTreeUnmarshalYAML(t *testing.T) {
	raw := `
question: Does the entity present comparatives?
yes_case: "COMPLIANT: YES"
no_case:
  question: Is this the first reporting period?
  yes_case: "N/A"
  no_case: "COMPLIANT: NO"
`
	var tree DecisionTree
	if err := yaml.Unmarshal([]byte(raw), &tree); err != nil {
		t.Fatalf("unmarshal yaml: %v", err)
	}
	if tree.No == nil || tree.No.Question != "Is this the first reporting period?" {
		t.Fatalf("expected nested no branch, got %+v", tree.No)
	}
	if !strings.Contains(tree.Format(), "  CHECKPOINT 2: Is this the first reporting period?") {
		t.Fatalf("expected second checkpoint in format, got:\n%s", tree.Format())
	}
}

func TestDecisionTreeWithoutQuestionIsEmpty(t *testing.T) {
	var tree DecisionTree
	if err := json.Unmarshal([]byte(`{"yes_case":"COMPLIANT: YES"}`), &tree); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !tree.Empty() {
		t.Fatalf("expected empty tree, got %+v", tree)
	}
}
