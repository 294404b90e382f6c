// Package idl models WIT packages as an arena graph and converts between the
// graph and WIT text.
//
// A Graph owns packages, interfaces, worlds and type definitions addressed by
// typed integer IDs. IDs are local to one graph; only qualified names such as
// "ns:pkg/iface@1.0.0" are comparable across graphs.
//
// Parse and Print are inverses on printed text:
//
//	g, root, err := idl.Parse(src)
//	out, err := idl.Print(g, root, idl.PrintOptions{})
//
// Print emits the root package first and other packages as nested blocks
// sorted by name, keeping only what the root package reaches.
package idl
