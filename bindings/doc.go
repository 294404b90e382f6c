// Package bindings projects a component's dependency descriptor into
// binding sources for the component's own toolchain.
//
// The ecosystem is inferred from the build directory: Cargo.toml selects
// Rust, package.json TypeScript and go.mod Go.
//
// Rust projection writes one wit_bindgen module per dependency package to
// src/bindings/<ns>_<name>_<version>.rs and declares it in src/bindings/mod.rs and in
// the crate root. A declaration is skipped when the exact line is already
// present or the parsed file declares a module of that name. The version
// part is left out for unversioned packages.
//
// TypeScript projection writes deps/<ns>-<name>-<version>/ per dependency package,
// runs a Transpiler over its WIT copy and regenerates deps/index.ts, which
// re-exports every interface module under a unique camelCase name.
//
// Go projection generates packages under internal/witdeps rooted at the
// module path from go.mod.
package bindings
