// Package astextract implements the AST API extractor named in the engine's
// external interfaces (§6): given a file's text and path, it returns a
// string summarizing each top-level function and class — signatures with
// parameter annotations, an inferred return type, and class declarations
// with their methods' signatures. The code loop (C7) uses this to compress
// context: once more than five files have been emitted in a step, every
// file except the five most recent is replaced with its API extract rather
// than its full body.
package astextract

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// Extractor recovers a signature-only summary from source text. It is kept
// as an interface so the code loop can be tested against a stub that skips
// parsing entirely.
type Extractor interface {
	Extract(path, source string) (string, error)
}

// TreeSitterExtractor is the default Extractor, backed by the same
// tree-sitter Python grammar the topological scheduler (C4) uses to recover
// imports. Parsing twice (imports vs. signatures) keeps the two concerns —
// dependency-graph construction and context compression — independently
// testable.
type TreeSitterExtractor struct{}

// New returns the default tree-sitter-backed extractor.
func New() *TreeSitterExtractor { return &TreeSitterExtractor{} }

// Extract parses source and renders one line per top-level function and
// class. Unparsable source returns the error; the code loop then falls back
// to the file's raw body rather than failing the whole code-generation step.
func (TreeSitterExtractor) Extract(path, source string) (string, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(context.Background(), nil, []byte(source))
	if err != nil {
		return "", fmt.Errorf("astextract: parsing %s: %w", path, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	src := []byte(source)

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", path)

	for i := 0; i < int(root.ChildCount()); i++ {
		node := root.Child(i)
		switch node.Type() {
		case "function_definition":
			b.WriteString(functionSignature(node, src))
			b.WriteByte('\n')
		case "class_definition":
			b.WriteString(classSummary(node, src))
		case "decorated_definition":
			if def := node.ChildByFieldName("definition"); def != nil {
				switch def.Type() {
				case "function_definition":
					b.WriteString(functionSignature(def, src))
					b.WriteByte('\n')
				case "class_definition":
					b.WriteString(classSummary(def, src))
				}
			}
		}
	}
	return b.String(), nil
}

func classSummary(node *sitter.Node, src []byte) string {
	var b strings.Builder
	name := fieldText(node, "name", src)
	fmt.Fprintf(&b, "class %s:\n", name)

	body := node.ChildByFieldName("body")
	if body == nil {
		return b.String()
	}
	for i := 0; i < int(body.ChildCount()); i++ {
		child := body.Child(i)
		def := child
		if child.Type() == "decorated_definition" {
			if inner := child.ChildByFieldName("definition"); inner != nil {
				def = inner
			}
		}
		if def.Type() == "function_definition" {
			fmt.Fprintf(&b, "    %s\n", functionSignature(def, src))
		}
	}
	return b.String()
}

func functionSignature(node *sitter.Node, src []byte) string {
	name := fieldText(node, "name", src)
	params := "()"
	if p := node.ChildByFieldName("parameters"); p != nil {
		params = p.Content(src)
	}
	returnType := inferredReturnType(node, src)
	return fmt.Sprintf("def %s%s -> %s", name, params, returnType)
}

func fieldText(node *sitter.Node, field string, src []byte) string {
	n := node.ChildByFieldName(field)
	if n == nil {
		return ""
	}
	return n.Content(src)
}

// inferredReturnType reports the explicit Python return-type annotation if
// present; otherwise it scans the function body's `return` statements and
// reports "Any" if any of them carries a value, "None" if the function
// never returns a value, matching a best-effort dynamic-language
// inference rather than a true type checker.
func inferredReturnType(node *sitter.Node, src []byte) string {
	if rt := node.ChildByFieldName("return_type"); rt != nil {
		return rt.Content(src)
	}

	body := node.ChildByFieldName("body")
	if body == nil {
		return "None"
	}

	var hasValueReturn bool
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n.Type() == "return_statement" {
			if n.ChildCount() > 1 {
				hasValueReturn = true
			}
			return
		}
		// Don't descend into nested function/class definitions: their
		// returns belong to the inner scope, not this signature.
		if n.Type() == "function_definition" || n.Type() == "class_definition" {
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(body)

	if hasValueReturn {
		return "Any"
	}
	return "None"
}
