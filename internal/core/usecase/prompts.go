package usecase

import (
	"fmt"
	"strings"

	"github.com/kirillkom/compliance-analyzer/internal/core/domain"
)

const analysisSystemPrompt = `You are an expert IFRS compliance analyst. Your task is to analyze financial documents against specific compliance requirements.

For each question, you MUST:
1. Walk through the decision tree checkpoints step by step
2. Reference specific evidence from the provided document context
3. Arrive at a final compliance status

IMPORTANT RULES:
- Base your analysis ONLY on the provided document context
- If insufficient evidence exists, mark as N/A with explanation
- Never guess or assume information not present in the documents
- Provide specific page/section references when citing evidence
- Be precise about what is disclosed vs what is missing

Output your analysis in the following format for EACH question:

===RESULT_START===
QUESTION_ID: {question_id}
STATUS: {YES|NO|N/A}
CONFIDENCE: {0.0-1.0}
EXPLANATION: {detailed explanation of compliance assessment}
EVIDENCE: {specific text/numbers from the document that support the assessment}
SUGGESTED_DISCLOSURE: {if non-compliant, what should be disclosed}
DECISION_TREE_PATH: {comma-separated list of checkpoint answers taken}
===RESULT_END===`

const metadataSystemPrompt = `You are a financial document metadata extractor. Analyze the provided document text and extract the following metadata. Return a JSON object with these fields:

{
  "company_name": "Full legal name of the company",
  "reporting_period": "The reporting period (e.g., 'Year ended 31 December 2024')",
  "reporting_year": "The fiscal year (e.g., '2024')",
  "currency": "Reporting currency (e.g., 'USD', 'EUR', 'GBP')",
  "industry": "Industry sector",
  "auditor": "Name of the auditing firm if mentioned",
  "reporting_framework": "IFRS, US GAAP, or other",
  "consolidated": true/false,
  "interim": true/false,
  "document_type": "Annual Report, Interim Report, etc.",
  "key_accounting_policies": ["list of key accounting policies mentioned"]
}

Only include fields you can confidently extract. Use null for fields you cannot determine.`

const suggestSystemPrompt = "You are an IFRS expert. Identify applicable standards based on document content."

const (
	noDecisionTree = "No decision tree available."
	noContextFound = "No relevant context found in the uploaded documents."
	contextJoiner  = "\n\n---\n\n"

	metadataExcerptChars = 8000
	suggestExcerptChars  = 10000
	standardDescChars    = 100
)

// promptQuestion is one question together with its retrieved context.
type promptQuestion struct {
	id       string
	question domain.Question
	context  []string
}

func renderQuestionBlock(index int, pq promptQuestion) string {
	tree := pq.question.DecisionTree.Format()
	if tree == "" {
		tree = noDecisionTree
	}
	contextText := noContextFound
	if len(pq.context) > 0 {
		contextText = strings.Join(pq.context, contextJoiner)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n--- QUESTION %d ---\n", index)
	fmt.Fprintf(&b, "ID: %s\n", pq.id)
	fmt.Fprintf(&b, "Standard: %s\n", pq.question.Section)
	fmt.Fprintf(&b, "Reference: %s\n", pq.question.Reference)
	fmt.Fprintf(&b, "Question: %s\n\n", pq.question.Question)
	fmt.Fprintf(&b, "Decision Tree:\n%s\n\n", tree)
	fmt.Fprintf(&b, "Relevant Document Context:\n%s\n---\n", contextText)
	return b.String()
}

func buildBatchPrompt(batch []promptQuestion) string {
	blocks := make([]string, 0, len(batch))
	for i, pq := range batch {
		blocks = append(blocks, renderQuestionBlock(i+1, pq))
	}
	header := fmt.Sprintf(
		"Analyze the following %d compliance questions. Provide a ===RESULT_START===...===RESULT_END=== block for each.\n\n",
		len(batch),
	)
	return header + strings.Join(blocks, "\n")
}

func buildSuggestPrompt(text string, standards []domain.StandardInfo) string {
	lines := make([]string, 0, len(standards))
	for _, s := range standards {
		lines = append(lines, fmt.Sprintf("- %s: %s - %s", s.Section, s.Title, truncateRunes(s.Description, standardDescChars)))
	}
	return "Based on the following financial document excerpt, identify which IFRS standards are applicable.\n" +
		"Return a JSON object with a \"standards\" array containing the section codes of applicable standards.\n\n" +
		"Available standards:\n" + strings.Join(lines, "\n") + "\n\n" +
		"Document excerpt:\n" + truncateRunes(text, suggestExcerptChars) + "\n\n" +
		`Return JSON: {"standards": ["IAS 1", "IFRS 9", ...]}`
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == limit {
			return s[:i]
		}
		count++
	}
	return s
}
