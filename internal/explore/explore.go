// Package explore implements the repository-exploration boundary: it
// executes the tool requests suggested by the completeness evaluator and
// folds their output into findings for the next generation step.
package explore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ToolCall records the outcome of one executed tool.
type ToolCall struct {
	ToolName string `json:"tool_name"`
	Success  bool   `json:"success"`
	Detail   string `json:"detail,omitempty"`
}

// Result is the outcome of one exploration step.
type Result struct {
	Findings  string
	ToolCalls []ToolCall
}

// Explorer is the consumed tool-execution capability.
type Explorer interface {
	// Execute runs the serialized tool request and returns findings plus
	// per-tool outcomes. Individual tool failures are recorded in the
	// ToolCall list, not returned as errors; only environmental failures
	// (e.g. the repository disappearing) are fatal.
	Execute(ctx context.Context, request string) (*Result, error)

	// Overview returns a high-level summary of the repository, used to
	// seed the first generation step.
	Overview(ctx context.Context) (string, error)
}

// toolRequest mirrors the descriptor shape the evaluator suggests. Args
// values are left loose: model output mixes strings and numbers freely.
type toolRequest struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args,omitempty"`
}

// arg returns the named argument as a string, or "" when absent.
func (r toolRequest) arg(name string) string {
	v, ok := r.Args[name]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// RepoExplorer explores a repository directory with a fixed set of
// read-only tools.
type RepoExplorer struct {
	root         string
	maxFileBytes int
	maxEntries   int
	maxMatches   int
	logger       *slog.Logger
}

// NewRepoExplorer creates an explorer rooted at dir. The root must exist;
// callers validate it before a session starts.
func NewRepoExplorer(dir string, logger *slog.Logger) *RepoExplorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &RepoExplorer{
		root:         filepath.Clean(dir),
		maxFileBytes: 64 * 1024,
		maxEntries:   400,
		maxMatches:   50,
		logger:       logger,
	}
}

// Execute implements Explorer. An empty or unparseable request degrades
// to the default overview so the generation step always has something to
// work with.
func (e *RepoExplorer) Execute(ctx context.Context, request string) (*Result, error) {
	var requests []toolRequest
	if strings.TrimSpace(request) != "" {
		if err := json.Unmarshal([]byte(request), &requests); err != nil {
			e.logger.Warn("unparseable exploration request, falling back to overview", "error", err)
			requests = nil
		}
	}

	if len(requests) == 0 {
		overview, err := e.Overview(ctx)
		if err != nil {
			return nil, err
		}
		return &Result{
			Findings:  overview,
			ToolCalls: []ToolCall{{ToolName: "list_files", Success: true, Detail: "default overview"}},
		}, nil
	}

	var findings strings.Builder
	calls := make([]ToolCall, 0, len(requests))
	for _, req := range requests {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("exploration canceled: %w", err)
		}

		output, err := e.runTool(req)
		call := ToolCall{ToolName: req.Tool, Success: err == nil}
		if err != nil {
			call.Detail = err.Error()
			e.logger.Warn("exploration tool failed", "tool", req.Tool, "error", err)
		} else {
			fmt.Fprintf(&findings, "### %s %s\n%s\n\n", req.Tool, describeArgs(req), output)
		}
		calls = append(calls, call)
	}

	if findings.Len() == 0 {
		findings.WriteString("No tool produced output; all suggested tools failed.\n")
	}
	return &Result{Findings: findings.String(), ToolCalls: calls}, nil
}

// Overview implements Explorer: a capped directory tree plus the head of
// the README when one exists.
func (e *RepoExplorer) Overview(ctx context.Context) (string, error) {
	tree, err := e.listFiles(".")
	if err != nil {
		return "", fmt.Errorf("listing repository %s: %w", e.root, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Repository: %s\n\nFile tree:\n%s\n", filepath.Base(e.root), tree)

	for _, name := range []string{"README.md", "README.rst", "README.txt", "README"} {
		head, err := e.readFile(name)
		if err == nil {
			fmt.Fprintf(&b, "\n%s:\n%s\n", name, head)
			break
		}
	}
	return b.String(), nil
}

// runTool dispatches a single tool request. Unknown tools are errors so
// the outcome shows up in the tool-call record.
func (e *RepoExplorer) runTool(req toolRequest) (string, error) {
	switch req.Tool {
	case "list_files", "list_directory":
		dir := req.arg("path")
		if dir == "" {
			dir = "."
		}
		return e.listFiles(dir)
	case "read_file":
		path := req.arg("path")
		if path == "" {
			return "", fmt.Errorf("read_file: missing path argument")
		}
		return e.readFile(path)
	case "search", "search_text":
		query := req.arg("query")
		if query == "" {
			return "", fmt.Errorf("search: missing query argument")
		}
		return e.search(query)
	default:
		return "", fmt.Errorf("unknown tool %q", req.Tool)
	}
}

// resolve joins rel onto the root and rejects escapes.
func (e *RepoExplorer) resolve(rel string) (string, error) {
	full := filepath.Join(e.root, filepath.Clean("/"+rel))
	if full != e.root && !strings.HasPrefix(full, e.root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes repository root", rel)
	}
	return full, nil
}

func (e *RepoExplorer) listFiles(rel string) (string, error) {
	dir, err := e.resolve(rel)
	if err != nil {
		return "", err
	}

	var entries []string
	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		name := d.Name()
		if d.IsDir() && (name == ".git" || name == "node_modules" || name == "vendor" || strings.HasPrefix(name, ".")) && path != dir {
			return filepath.SkipDir
		}
		if d.IsDir() {
			return nil
		}
		relPath, relErr := filepath.Rel(e.root, path)
		if relErr != nil {
			return nil
		}
		entries = append(entries, relPath)
		if len(entries) >= e.maxEntries {
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("walking %s: %w", rel, err)
	}

	sort.Strings(entries)
	out := strings.Join(entries, "\n")
	if len(entries) >= e.maxEntries {
		out += fmt.Sprintf("\n... (truncated at %d entries)", e.maxEntries)
	}
	return out, nil
}

func (e *RepoExplorer) readFile(rel string) (string, error) {
	path, err := e.resolve(rel)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", rel, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", rel)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", rel, err)
	}
	if len(data) > e.maxFileBytes {
		return string(data[:e.maxFileBytes]) + fmt.Sprintf("\n... (truncated at %d bytes)", e.maxFileBytes), nil
	}
	return string(data), nil
}

func (e *RepoExplorer) search(query string) (string, error) {
	var matches []string
	err := filepath.WalkDir(e.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		name := d.Name()
		if d.IsDir() && (name == ".git" || name == "node_modules" || name == "vendor") {
			return filepath.SkipDir
		}
		if d.IsDir() || len(matches) >= e.maxMatches {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil || info.Size() > int64(e.maxFileBytes)*4 {
			return nil
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil || !strings.Contains(string(data), query) {
			return nil
		}
		relPath, relErr := filepath.Rel(e.root, path)
		if relErr != nil {
			return nil
		}
		for i, line := range strings.Split(string(data), "\n") {
			if strings.Contains(line, query) {
				matches = append(matches, fmt.Sprintf("%s:%d: %s", relPath, i+1, strings.TrimSpace(line)))
				if len(matches) >= e.maxMatches {
					break
				}
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("searching for %q: %w", query, err)
	}
	if len(matches) == 0 {
		return fmt.Sprintf("no matches for %q", query), nil
	}
	return strings.Join(matches, "\n"), nil
}

func describeArgs(req toolRequest) string {
	if len(req.Args) == 0 {
		return ""
	}
	keys := make([]string, 0, len(req.Args))
	for k := range req.Args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+req.arg(k))
	}
	return "(" + strings.Join(parts, " ") + ")"
}
