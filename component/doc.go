// Package component decodes WebAssembly Component Model binaries into an
// interface graph.
//
// Decode checks the preamble, compiles each embedded core module with
// wazero, and walks the component's sections maintaining the component
// index spaces (types, functions, instances, components) per scope. Named
// imports and exports of the outermost component become the entries of the
// RootWorld world in package RootPackage:
//
//	g, pkg, err := component.Decode(ctx, wasmBytes)
//	world, _ := g.SelectWorld(pkg, component.RootWorld)
//
// Exported instances are typed by their ascribed instance type when present,
// otherwise by the items the instance exports, following nested component
// instantiations with their arguments.
package component
