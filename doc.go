// Package witdeps composes WebAssembly component dependencies into the
// components of a Spin application.
//
// A dependency is another component, fetched from a local file, an HTTP
// URL or a registry. witdeps decodes its WIT interface, lets the user pick
// exported interfaces, merges them as imports into a per-component
// dependency world and records the dependency in spin.toml. Bindings for
// the importing component's language are generated from that world.
//
// # Architecture Overview
//
//	witdeps/
//	├── cmd/witdeps/     Command line entry point
//	├── internal/cli/    Cobra commands and the interactive selection prompt
//	├── pipeline/        The add and bindings flows end to end
//	├── fetch/           Local, HTTP and registry sources with a digest cache
//	├── component/       Component binary decoder producing a WIT graph
//	├── idl/             WIT graph, parser and printer
//	├── compose/         Export enumeration, importize and world merging
//	├── manifest/        Format-preserving spin.toml updates
//	├── bindings/        Rust, TypeScript and Go binding projection
//	├── config/          Environment and known-interface configuration
//	└── errors/          Structured error kinds
//
// # Quick Start
//
// Import every interface of a local component into the "api" component:
//
//	witdeps add local ./deps/http.wasm --component api --all
//
// Regenerate bindings after editing deps.wit by hand:
//
//	witdeps bindings --component api
//
// The same flow is available as a library:
//
//	res, err := pipeline.Add(ctx, pipeline.AddOptions{
//		Source:       fetch.Local{Path: "deps/http.wasm"},
//		Selector:     pipeline.Scripted{ComponentID: "api", All: true},
//		Projector:    bindings.NewProjector(),
//		ManifestPath: "spin.toml",
//	})
//
// # Composition Model
//
// The dependency world of a component lives at
// .wit/components/<id>/deps.wit in package root:deps, world deps. Adding
// the same selection twice leaves it unchanged, and the order of adds does
// not affect the set of imports. Two dependencies that define the same
// interface differently are rejected with a composition conflict before
// anything is written.
package witdeps
