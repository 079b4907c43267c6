package rag

import (
	"fmt"
	"strings"

	"github.com/tjfontaine/tenantgate/internal/domain"
)

// blockedTerms gate generation: a question containing any of these is
// refused before a model call is made. Matching is case-insensitive
// substring.
var blockedTerms = []string{"self-harm", "suicide", "kill myself"}

// refusalAnswer is the fixed text returned for blocked questions.
const refusalAnswer = "I can't help with that topic. If you are in crisis, please reach out to a local support line."

// SafetyResult reports whether a question may proceed to generation.
type SafetyResult struct {
	Allowed bool
	Reason  string
}

// CheckSafety scans the raw question against the blocked-term list.
func CheckSafety(question string) SafetyResult {
	normalized := strings.ToLower(question)
	for _, term := range blockedTerms {
		if strings.Contains(normalized, term) {
			return SafetyResult{Allowed: false, Reason: "blocked_term:" + term}
		}
	}
	return SafetyResult{Allowed: true}
}

// PromptTemplate overrides the default system and instruction lines.
type PromptTemplate struct {
	System      string
	Instruction string
}

const (
	defaultSystem      = "You are a helpful assistant. Use the provided context to answer the question."
	defaultInstruction = "If the answer is not in the context, say you do not know. Cite sources using [source:docId#chunkId]."
)

// AssemblePrompt builds the structured generation prompt from retrieved
// sources. Each source is tagged inline so the model can cite it.
func AssemblePrompt(question string, sources []domain.Source, template PromptTemplate) string {
	system := template.System
	if system == "" {
		system = defaultSystem
	}
	instruction := template.Instruction
	if instruction == "" {
		instruction = defaultInstruction
	}

	context := formatContext(sources)
	if context == "" {
		context = "(no context)"
	}

	return strings.Join([]string{
		"System: " + system,
		"Instruction: " + instruction,
		"Context:",
		context,
		"Question: " + question,
	}, "\n")
}

func formatContext(sources []domain.Source) string {
	parts := make([]string, 0, len(sources))
	for _, src := range sources {
		parts = append(parts, fmt.Sprintf("[source:%s#%s] %s", src.DocID, src.ChunkID, src.Text))
	}
	return strings.Join(parts, "\n\n")
}
