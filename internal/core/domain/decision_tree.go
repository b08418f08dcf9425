package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// DecisionTree is either a terminal outcome (Outcome set) or a checkpoint with
// two child trees.
type DecisionTree struct {
	Outcome  string
	Question string
	Yes      *DecisionTree
	No       *DecisionTree
}

type decisionNode struct {
	Question string        `json:"question" yaml:"question"`
	YesCase  *DecisionTree `json:"yes_case,omitempty" yaml:"yes_case"`
	NoCase   *DecisionTree `json:"no_case,omitempty" yaml:"no_case"`
}

func Terminal(outcome string) *DecisionTree {
	return &DecisionTree{Outcome: outcome}
}

func Checkpoint(question string, yes, no *DecisionTree) *DecisionTree {
	return &DecisionTree{Question: question, Yes: yes, No: no}
}

func (t *DecisionTree) IsTerminal() bool {
	return t != nil && t.Question == ""
}

func (t *DecisionTree) Empty() bool {
	return t == nil || (t.Question == "" && strings.TrimSpace(t.Outcome) == "")
}

// Format renders the tree as the checkpoint script embedded in analysis prompts.
func (t *DecisionTree) Format() string {
	if t.Empty() {
		return ""
	}
	var b strings.Builder
	t.format(&b, 0)
	return strings.TrimRight(b.String(), "\n")
}

func (t *DecisionTree) format(b *strings.Builder, depth int) {
	if t.IsTerminal() {
		b.WriteString(t.Outcome)
		b.WriteByte('\n')
		return
	}

	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(b, "%sCHECKPOINT %d: %s\n", indent, depth+1, t.Question)
	formatBranch(b, indent, "YES", t.Yes, depth)
	formatBranch(b, indent, "NO", t.No, depth)
}

func formatBranch(b *strings.Builder, indent, label string, branch *DecisionTree, depth int) {
	switch {
	case branch == nil:
		return
	case branch.IsTerminal():
		fmt.Fprintf(b, "%s  → %s: %s\n", indent, label, branch.Outcome)
	default:
		fmt.Fprintf(b, "%s  → %s: proceed to next checkpoint\n", indent, label)
		branch.format(b, depth+1)
	}
}

func (t DecisionTree) MarshalJSON() ([]byte, error) {
	if t.IsTerminal() {
		return json.Marshal(t.Outcome)
	}
	return json.Marshal(decisionNode{Question: t.Question, YesCase: t.Yes, NoCase: t.No})
}

func (t *DecisionTree) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*t = DecisionTree{}
		return nil
	}
	if trimmed[0] == '"' {
		var outcome string
		if err := json.Unmarshal(trimmed, &outcome); err != nil {
			return fmt.Errorf("decode decision outcome: %w", err)
		}
		*t = DecisionTree{Outcome: outcome}
		return nil
	}

	var node decisionNode
	if err := json.Unmarshal(trimmed, &node); err != nil {
		return fmt.Errorf("decode decision node: %w", err)
	}
	return t.fromNode(node)
}

func (t *DecisionTree) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*t = DecisionTree{Outcome: value.Value}
		return nil
	case yaml.MappingNode:
		var node decisionNode
		if err := value.Decode(&node); err != nil {
			return fmt.Errorf("decode decision node: %w", err)
		}
		return t.fromNode(node)
	default:
		return fmt.Errorf("decision tree: unexpected yaml node kind %d", value.Kind)
	}
}

func (t *DecisionTree) fromNode(node decisionNode) error {
	// A mapping without a question carries no checkpoint to render.
	if strings.TrimSpace(node.Question) == "" {
		*t = DecisionTree{}
		return nil
	}
	*t = DecisionTree{Question: node.Question, Yes: dropEmpty(node.YesCase), No: dropEmpty(node.NoCase)}
	return nil
}

func dropEmpty(t *DecisionTree) *DecisionTree {
	if t.Empty() {
		return nil
	}
	return t
}
