package mermaid

import (
	"strings"
	"testing"
)

func TestFixQuotesNodeLabels(t *testing.T) {
	in := "```mermaid\ngraph TD\n    A[Config Loader] --> B(HTTP Server)\n```"
	out := Fix(in)

	if !strings.Contains(out, `A["Config Loader"]`) {
		t.Errorf("square node not quoted: %q", out)
	}
	if !strings.Contains(out, `B("HTTP Server")`) {
		t.Errorf("round node not quoted: %q", out)
	}
}

func TestFixQuotesEdgeLabels(t *testing.T) {
	in := "```mermaid\ngraph LR\n    A -->|sends request| B\n```"
	out := Fix(in)

	if !strings.Contains(out, `-->|"sends request"|`) {
		t.Errorf("edge label not quoted: %q", out)
	}
}

func TestFixLeavesQuotedLinesAlone(t *testing.T) {
	in := "```mermaid\ngraph TD\n    A[\"Already Quoted\"] --> B\n```"
	out := Fix(in)

	if strings.Contains(out, `[""`) || strings.Contains(out, `""]`) {
		t.Errorf("double-quoted an already quoted label: %q", out)
	}
	if !strings.Contains(out, `A["Already Quoted"]`) {
		t.Errorf("quoted label was altered: %q", out)
	}
}

func TestFixConvertsInnerDoubleQuotes(t *testing.T) {
	in := "```mermaid\ngraph TD\n    A{{the \"main\" entry}} --> B\n```"
	out := Fix(in)

	if !strings.Contains(out, `A{{"the 'main' entry"}}`) {
		t.Errorf("inner quotes not converted: %q", out)
	}
}

func TestFixLeavesProseUntouched(t *testing.T) {
	in := "# Title\n\nSome prose with [brackets] and (parens).\n\n```mermaid\ngraph TD\n    A[Node] --> B\n```\n\nMore [prose].\n"
	out := Fix(in)

	if !strings.Contains(out, "Some prose with [brackets] and (parens).") {
		t.Errorf("prose before the fence was altered: %q", out)
	}
	if !strings.Contains(out, "More [prose].") {
		t.Errorf("prose after the fence was altered: %q", out)
	}
}

func TestFixHandlesMultipleFences(t *testing.T) {
	in := "```mermaid\ngraph TD\n    A[First Node] --> B\n```\n\ntext\n\n```mermaid\ngraph LR\n    C[Second Node] --> D\n```"
	out := Fix(in)

	if !strings.Contains(out, `A["First Node"]`) || !strings.Contains(out, `C["Second Node"]`) {
		t.Errorf("not every fence was fixed: %q", out)
	}
}

func TestFixNoFences(t *testing.T) {
	in := "just markdown, no diagrams"
	if out := Fix(in); out != in {
		t.Errorf("document without fences changed: %q", out)
	}
}
