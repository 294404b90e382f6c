package fetch

import (
	_ "crypto/sha256" // registers the hash behind digest.SHA256
	"strings"

	"github.com/opencontainers/go-digest"
	"github.com/wippyai/witdeps/errors"
)

// Digest returns the "sha256:<hex>" digest of data.
func Digest(data []byte) string {
	return digest.SHA256.FromBytes(data).String()
}

// NormalizeDigest accepts a bare hex digest or the "sha256:" form and returns
// the prefixed lowercase form.
func NormalizeDigest(d string) (string, error) {
	parsed, err := parseDigest(d)
	if err != nil {
		return "", err
	}
	return parsed.String(), nil
}

func parseDigest(d string) (digest.Digest, error) {
	d = strings.ToLower(strings.TrimSpace(d))
	algo, _, ok := strings.Cut(d, ":")
	if !ok {
		d = digest.NewDigestFromEncoded(digest.SHA256, d).String()
	} else if digest.Algorithm(algo) != digest.SHA256 {
		return "", errors.New(errors.PhaseFetch, errors.KindUnsupported).
			Name(d).
			Detail("digest algorithm %q", algo).
			Build()
	}
	parsed, err := digest.Parse(d)
	if err != nil {
		return "", errors.New(errors.PhaseFetch, errors.KindInvalidInput).
			Name(d).
			Detail("parse digest").
			Cause(err).
			Build()
	}
	return parsed, nil
}

// Verify checks data against the expected digest.
func Verify(source, expected string, data []byte) error {
	want, err := parseDigest(expected)
	if err != nil {
		return err
	}
	v := want.Verifier()
	if _, err := v.Write(data); err != nil {
		return errors.Wrap(errors.PhaseFetch, errors.KindIOFailure, err, "hash "+source)
	}
	if !v.Verified() {
		return errors.DigestMismatch(source, want.String(), Digest(data))
	}
	return nil
}

// cacheKey is the filesystem and object-store safe form of a digest.
func cacheKey(d string) string {
	return strings.ReplaceAll(d, ":", "-")
}
