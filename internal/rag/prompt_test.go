package rag

import (
	"strings"
	"testing"

	"github.com/tjfontaine/tenantgate/internal/domain"
)

func TestCheckSafety(t *testing.T) {
	tests := []struct {
		question string
		allowed  bool
	}{
		{"how do I configure retries?", true},
		{"tell me about suicide prevention", false},
		{"I want to KILL MYSELF", false},
		{"self-harm resources", false},
		{"killing a process on linux", true},
	}
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			result := CheckSafety(tt.question)
			if result.Allowed != tt.allowed {
				t.Errorf("CheckSafety(%q).Allowed = %v, want %v", tt.question, result.Allowed, tt.allowed)
			}
			if !tt.allowed && !strings.HasPrefix(result.Reason, "blocked_term:") {
				t.Errorf("Reason = %q, want blocked_term prefix", result.Reason)
			}
		})
	}
}

func TestAssemblePrompt(t *testing.T) {
	sources := []domain.Source{
		{DocID: "doc-1", ChunkID: "0", Text: "alpha content"},
		{DocID: "doc-2", ChunkID: "3", Text: "beta content"},
	}

	prompt := AssemblePrompt("what is alpha?", sources, PromptTemplate{})

	for _, want := range []string{
		"System: ",
		"Instruction: ",
		"Context:",
		"[source:doc-1#0] alpha content",
		"[source:doc-2#3] beta content",
		"Question: what is alpha?",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}

	lines := strings.Split(prompt, "\n")
	if !strings.HasPrefix(lines[0], "System: ") {
		t.Errorf("prompt does not start with the system line: %q", lines[0])
	}
	if !strings.HasPrefix(lines[len(lines)-1], "Question: ") {
		t.Errorf("prompt does not end with the question line: %q", lines[len(lines)-1])
	}
}

func TestAssemblePrompt_NoContext(t *testing.T) {
	prompt := AssemblePrompt("anything?", nil, PromptTemplate{})
	if !strings.Contains(prompt, "(no context)") {
		t.Errorf("prompt without sources missing placeholder:\n%s", prompt)
	}
}

func TestAssemblePrompt_TemplateOverrides(t *testing.T) {
	prompt := AssemblePrompt("q", nil, PromptTemplate{
		System:      "Custom system.",
		Instruction: "Custom instruction.",
	})
	if !strings.Contains(prompt, "System: Custom system.") ||
		!strings.Contains(prompt, "Instruction: Custom instruction.") {
		t.Errorf("template overrides not applied:\n%s", prompt)
	}
}
