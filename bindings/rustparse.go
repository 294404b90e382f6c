package bindings

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/rust"
)

// parseRust returns the root node of a syntax tree without errors.
func parseRust(src []byte) *sitter.Node {
	if len(src) == 0 {
		return nil
	}
	parser := sitter.NewParser()
	parser.SetLanguage(rust.GetLanguage())
	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return nil
	}
	root := tree.RootNode()
	if root.HasError() {
		return nil
	}
	return root
}

// declaresModule reports whether src declares a top-level module called
// name, with any visibility and formatting.
func declaresModule(src []byte, name string) bool {
	root := parseRust(src)
	if root == nil {
		return false
	}
	for i := 0; i < int(root.NamedChildCount()); i++ {
		n := root.NamedChild(i)
		if n.Type() != "mod_item" {
			continue
		}
		if id := n.ChildByFieldName("name"); id != nil && id.Content(src) == name {
			return true
		}
	}
	return false
}

// headerEnd returns the byte offset just past the leading run of attribute,
// use, extern crate and mod items. Unparsable sources yield 0.
func headerEnd(src []byte) int {
	root := parseRust(src)
	if root == nil {
		return 0
	}
	end := 0
	for i := 0; i < int(root.NamedChildCount()); i++ {
		n := root.NamedChild(i)
		switch n.Type() {
		case "use_declaration", "extern_crate_declaration", "mod_item", "inner_attribute_item":
			end = int(n.EndByte())
		case "line_comment", "block_comment":
			continue
		default:
			return lineEnd(src, end)
		}
	}
	return lineEnd(src, end)
}

func lineEnd(src []byte, at int) int {
	if at == 0 {
		return 0
	}
	for at < len(src) && src[at] != '\n' {
		at++
	}
	if at < len(src) {
		at++
	}
	return at
}
