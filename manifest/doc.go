// Package manifest reads an application manifest (spin.toml) and rewrites
// the dependency table of one component in place.
//
// Only the [component.<id>.dependencies] table is touched; every other byte
// of the document, comments and ordering included, is preserved:
//
//	m, err := manifest.Load("spin.toml")
//	err = m.SetDependencies("api", []string{"ns:http/handler@0.1.0"},
//		manifest.HTTP{URL: url, Digest: "sha256:..."})
//	err = m.Save()
package manifest
