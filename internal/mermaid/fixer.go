// Package mermaid repairs common syntax mistakes in model-generated
// Mermaid diagrams so the saved document renders.
package mermaid

import (
	"regexp"
	"strings"
)

var (
	fenceRegex = regexp.MustCompile("(?s)```mermaid\n(.*?)```")

	// Node definitions like A[Text], B(Text), C{{Text}}, D([Text]), E[(Text)].
	nodeRegex = regexp.MustCompile(`([A-Za-z0-9_]+)\s*(\[\(|\(\[|\{\{|\[|\()(.+?)(\)\]|\]\)|\}\}|\]|\))`)

	// Edge labels like -->|Text|.
	edgeLabelRegex = regexp.MustCompile(`\|([^"|]+?)\|`)
)

// Fix rewrites every ```mermaid fence in a Markdown document, quoting
// node and edge labels that would otherwise break the parser. Content
// outside the fences is untouched.
func Fix(markdown string) string {
	return fenceRegex.ReplaceAllStringFunc(markdown, func(block string) string {
		m := fenceRegex.FindStringSubmatch(block)
		if m == nil {
			return block
		}
		return "```mermaid\n" + fixBlock(m[1]) + "```"
	})
}

func fixBlock(content string) string {
	lines := strings.Split(content, "\n")
	fixed := make([]string, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			fixed = append(fixed, line)
			continue
		}

		// Skip lines that already carry quoted labels; requoting would
		// double up.
		if !strings.Contains(line, `["`) && !strings.Contains(line, `("`) {
			line = nodeRegex.ReplaceAllStringFunc(line, quoteNode)
		}

		if strings.Contains(line, "-->|") || strings.Contains(line, "-.->|") {
			line = edgeLabelRegex.ReplaceAllString(line, `|"$1"|`)
		}

		fixed = append(fixed, line)
	}
	return strings.Join(fixed, "\n")
}

// quoteNode wraps a node's label in double quotes, converting any inner
// double quotes to single quotes first.
func quoteNode(def string) string {
	m := nodeRegex.FindStringSubmatch(def)
	if m == nil {
		return def
	}
	id, open, text, closing := m[1], m[2], m[3], m[4]
	if strings.HasPrefix(text, `"`) && strings.HasSuffix(text, `"`) {
		return def
	}
	text = strings.ReplaceAll(text, `"`, `'`)
	return id + open + `"` + text + `"` + closing
}
