package agent

import (
	"fmt"
	"strings"

	"github.com/RRFRRF/Repo2TutorialAgent/internal/ai"
)

// systemPrompt frames every document call.
const systemPrompt = `You are a senior software architect producing a requirements and design document for an existing code repository. Write clear, structured Markdown. Use Mermaid diagrams for architecture and data flow where they help. Ground every claim in the repository evidence you are given; do not invent components.`

// checkSystemPrompt frames the completeness evaluation call.
const checkSystemPrompt = `You are a requirements-document quality reviewer. You respond with a single JSON object and nothing else.`

func initialDocMessages(highLevelInfo string) []ai.Message {
	prompt := fmt.Sprintf(`Based on the following repository overview, write the first draft of a requirements and design document. Cover purpose, architecture, main components, data flow, and external interfaces. Mark sections where you lack evidence as open questions rather than guessing.

Repository overview:
%s`, highLevelInfo)

	return []ai.Message{
		{Role: ai.RoleSystem, Content: systemPrompt},
		{Role: ai.RoleUser, Content: prompt},
	}
}

func updateDocMessages(currentDocument, toolFindings string, missingParts []string) []ai.Message {
	missing := "none"
	if len(missingParts) > 0 {
		var b strings.Builder
		for _, part := range missingParts {
			fmt.Fprintf(&b, "- %s\n", part)
		}
		missing = b.String()
	}
	findings := toolFindings
	if strings.TrimSpace(findings) == "" {
		findings = "none"
	}

	prompt := fmt.Sprintf(`Revise the requirements document below using the new exploration findings. Resolve the listed gaps where the findings allow, keep everything that is still accurate, and return the complete updated document.

Current document:
%s

New exploration findings:
%s

Known gaps:
%s`, currentDocument, findings, missing)

	return []ai.Message{
		{Role: ai.RoleSystem, Content: systemPrompt},
		{Role: ai.RoleUser, Content: prompt},
	}
}

func checkCompletenessMessages(currentDocument, highLevelInfo string, iteration, maxIterations int) []ai.Message {
	prompt := fmt.Sprintf(`Assess whether this requirements document is complete relative to what the repository overview promises. This is iteration %d of at most %d.

Repository overview:
%s

Document under review:
%s

Respond with exactly one JSON object:
{
  "is_complete": <bool>,
  "confidence_score": <float 0.0-1.0>,
  "missing_parts": ["<named gap>", ...],
  "suggested_tools": [{"tool": "<name>", "args": {...}}, ...]
}

Available tools for suggested_tools:
- list_files, args: {"path": "<directory relative to repo root>"}
- read_file, args: {"path": "<file relative to repo root>"}
- search, args: {"query": "<text to find>"}

Suggest tools only when the document is incomplete, targeting the missing parts.`,
		iteration, maxIterations, highLevelInfo, currentDocument)

	return []ai.Message{
		{Role: ai.RoleSystem, Content: checkSystemPrompt},
		{Role: ai.RoleUser, Content: prompt},
	}
}
