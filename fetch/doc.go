// Package fetch acquires dependency components.
//
// A Source yields the component bytes together with the manifest entry that
// reproduces them. Local reads a file, HTTP downloads a URL pinned by a
// sha256 digest, and Registry resolves a version requirement against a
// registry package index:
//
//	GET {registry}/v1/packages/{ns}/{name}
//	{"releases": [{"version": "1.2.0", "digest": "sha256:...", "url": "...", "yanked": false}]}
//
// Downloads are verified against their digest and kept in a Cache keyed by
// digest. The cache layers an in-memory LRU over a disk directory and an
// optional S3 Store.
package fetch
