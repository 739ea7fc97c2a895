// Package schedule implements the topological file scheduler (C4): given a
// set of skeleton records, it determines a generation order where a file
// with no intra-project dependencies is produced before files that import
// it. Imports are recovered with a real parser (tree-sitter) rather than
// regexes, so the scheduler tolerates the same syntax a skeleton judge would
// accept.
package schedule

import (
	"context"
	"path"
	"sort"
	"strings"

	"genforge/internal/logging"
	"genforge/internal/model"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// SourceExtension is the configured source-file extension the scheduler
// operates over; files with any other extension pass through untouched,
// appended after the ordered source files in their original relative order.
const SourceExtension = ".py"

// Order produces a generation order for skeleton, touching only entries
// whose path ends in SourceExtension for graph construction. Files that fail
// to parse are excluded from the graph and appended at the end in input
// order; files outside the graph (non-source extensions) are appended last
// in input order as well. Every input record appears exactly once in the
// output.
func Order(skeleton []model.SkeletonRecord) []model.SkeletonRecord {
	var sourceRecords []model.SkeletonRecord
	var otherRecords []model.SkeletonRecord
	for _, r := range skeleton {
		if strings.HasSuffix(r.Path, SourceExtension) {
			sourceRecords = append(sourceRecords, r)
		} else {
			otherRecords = append(otherRecords, r)
		}
	}

	graph, failedPaths := buildGraph(sourceRecords)
	order := kahnOrder(graph, failedPaths, pathsOf(sourceRecords))

	byPath := make(map[string]model.SkeletonRecord, len(sourceRecords))
	for _, r := range sourceRecords {
		byPath[r.Path] = r
	}

	result := make([]model.SkeletonRecord, 0, len(skeleton))
	used := make(map[string]bool, len(order))
	for _, p := range order {
		if r, ok := byPath[p]; ok {
			result = append(result, r)
			used[p] = true
		}
	}
	for _, r := range sourceRecords {
		if !used[r.Path] {
			result = append(result, r)
		}
	}
	result = append(result, otherRecords...)
	return result
}

func pathsOf(records []model.SkeletonRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Path
	}
	return out
}

// buildGraph returns edges[dependency] = set of dependents: for every file A
// that imports module M resolving to file B, an edge B -> A is added,
// meaning "B must be generated before A". Files whose source fails to parse
// are reported separately and excluded from the graph entirely.
func buildGraph(records []model.SkeletonRecord) (edges map[string]map[string]bool, failed []string) {
	moduleOf := make(map[string]string, len(records))
	for _, r := range records {
		moduleOf[r.Path] = pathToModule(r.Path)
	}

	edges = make(map[string]map[string]bool)
	for _, r := range records {
		edges[r.Path] = edges[r.Path]
	}

	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	for _, r := range records {
		imports, err := extractImports(parser, r.Skeleton)
		if err != nil {
			logging.ScheduleDebug("skipping unparsable file %s: %v", r.Path, err)
			failed = append(failed, r.Path)
			delete(edges, r.Path)
			continue
		}
		for _, imported := range imports {
			for otherPath, otherModule := range moduleOf {
				if otherPath == r.Path || isFailed(otherPath, failed) {
					continue
				}
				if imported == otherModule || strings.HasPrefix(imported, otherModule+".") {
					if edges[otherPath] == nil {
						edges[otherPath] = make(map[string]bool)
					}
					edges[otherPath][r.Path] = true
				}
			}
		}
	}
	return edges, failed
}

// pathToModule mirrors stripping the source extension and replacing path
// separators with dots, e.g. "pkg/util.py" -> "pkg.util".
func pathToModule(p string) string {
	trimmed := strings.TrimSuffix(p, SourceExtension)
	return strings.ReplaceAll(path.Clean(trimmed), "/", ".")
}

// extractImports walks the parse tree for `import_statement` and
// `import_from_statement` nodes and returns the dotted module names they
// reference.
func extractImports(parser *sitter.Parser, source string) ([]string, error) {
	tree, err := parser.ParseCtx(context.Background(), nil, []byte(source))
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, errSyntax
	}

	var modules []string
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "import_statement":
			for i := 0; i < int(n.ChildCount()); i++ {
				c := n.Child(i)
				if c.Type() == "dotted_name" || c.Type() == "aliased_import" {
					modules = append(modules, dottedText(c, source))
				}
			}
		case "import_from_statement":
			if mod := n.ChildByFieldName("module_name"); mod != nil {
				modules = append(modules, dottedText(mod, source))
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)
	return modules, nil
}

func dottedText(n *sitter.Node, source string) string {
	text := n.Content([]byte(source))
	// aliased_import wraps "dotted_name as name"; keep only the module half.
	if idx := strings.Index(text, " as "); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}

var errSyntax = &syntaxError{}

type syntaxError struct{}

func (*syntaxError) Error() string { return "syntax error" }

// kahnOrder runs Kahn's algorithm over edges (dependency -> dependents),
// starting from nodes with no unresolved dependency (indegree 0), so that
// files with no intra-project dependencies come first. Nodes left over when
// the queue drains (a cycle) are appended in stable input order; files that
// failed to parse are appended last in input order as well.
func kahnOrder(edges map[string]map[string]bool, failedPaths []string, allPaths []string) []string {
	indegree := make(map[string]int)
	for node := range edges {
		if _, ok := indegree[node]; !ok {
			indegree[node] = 0
		}
	}
	for _, dependents := range edges {
		for dependent := range dependents {
			indegree[dependent]++
		}
	}

	var queue []string
	for _, p := range allPaths {
		if isFailed(p, failedPaths) {
			continue
		}
		if indegree[p] == 0 {
			queue = append(queue, p)
		}
	}
	sort.Strings(queue) // stable, deterministic starting order among ties

	var order []string
	visited := make(map[string]bool)
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if visited[node] {
			continue
		}
		visited[node] = true
		order = append(order, node)

		var next []string
		for dependent := range edges[node] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				next = append(next, dependent)
			}
		}
		sort.Strings(next)
		queue = append(queue, next...)
	}

	remaining := make(map[string]bool)
	for _, p := range allPaths {
		if !visited[p] && !isFailed(p, failedPaths) {
			remaining[p] = true
		}
	}
	if len(remaining) > 0 {
		logging.Schedule("circular dependencies detected among %d files, appending in input order", len(remaining))
		for _, p := range allPaths {
			if remaining[p] {
				order = append(order, p)
			}
		}
	}

	for _, p := range failedPaths {
		order = append(order, p)
	}

	return order
}

func isFailed(p string, failed []string) bool {
	for _, f := range failed {
		if f == p {
			return true
		}
	}
	return false
}
