// Package fingerprint computes content identities for build instruction chains.
//
// A Fingerprint identifies a prefix of a stage: the base it extends plus every
// instruction appended to it so far. It is a pure function of content, so the
// same build description yields the same fingerprints on every machine.
package fingerprint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"

	digest "github.com/opencontainers/go-digest"
)

// Fingerprint is a sha256 digest in its canonical "sha256:<hex>" form.
type Fingerprint digest.Digest

// Empty is the zero Fingerprint. It never identifies a real prefix.
const Empty Fingerprint = ""

// Domain separators keep the encoding of an instruction, its sources and a
// base seed from ever overlapping.
const (
	tagInstruction = "instruction"
	tagSource      = "from"
	tagImage       = "image"
)

// Of appends one instruction to base and returns the new identity.
//
// Every field is length-prefixed (8-byte big-endian) before hashing, so
// ["ab", "c"] and ["a", "bc"] never collide. Sources are the final
// fingerprints of the stages (or images) the instruction copies from, in
// declaration order.
func Of(base Fingerprint, text string, sources ...Fingerprint) Fingerprint {
	h := sha256.New()

	writeField(h, string(base))
	writeField(h, tagInstruction)
	writeField(h, text)

	for _, src := range sources {
		writeField(h, tagSource)
		writeField(h, string(src))
	}

	return fromHash(h)
}

// Chain folds Of over texts starting from base and returns every
// intermediate fingerprint. The last element is the final identity.
func Chain(base Fingerprint, texts ...string) []Fingerprint {
	out := make([]Fingerprint, 0, len(texts))
	cur := base
	for _, text := range texts {
		cur = Of(cur, text)
		out = append(out, cur)
	}
	return out
}

// Seed returns the identity of an external base image reference.
//
// A reference pinned by digest ("name@sha256:...") is identified by that
// digest. Anything else is identified by a hash of the reference text as
// written; tags are case-sensitive, so only a registry host is lowercased.
// The seed never depends on what is present locally.
func Seed(imageRef string) Fingerprint {
	ref := strings.TrimSpace(imageRef)
	if i := strings.LastIndexByte(ref, '@'); i >= 0 {
		if d, err := digest.Parse(ref[i+1:]); err == nil {
			return Fingerprint(d)
		}
	}

	h := sha256.New()
	writeField(h, tagImage)
	writeField(h, foldHost(ref))
	return fromHash(h)
}

// foldHost lowercases the registry host of ref, if it names one. A first
// path component is a host when it has a dot, a port or is localhost.
func foldHost(ref string) string {
	i := strings.IndexByte(ref, '/')
	if i < 0 {
		return ref
	}
	host := ref[:i]
	if !strings.ContainsAny(host, ".:") && !strings.EqualFold(host, "localhost") {
		return ref
	}
	return strings.ToLower(host) + ref[i:]
}

// Parse validates s and returns it as a Fingerprint.
func Parse(s string) (Fingerprint, error) {
	d, err := digest.Parse(s)
	if err != nil {
		return Empty, fmt.Errorf("invalid fingerprint %q: %w", s, err)
	}
	return Fingerprint(d), nil
}

// String implements fmt.Stringer.
func (f Fingerprint) String() string {
	return string(f)
}

// Digest returns f as an OCI digest.
func (f Fingerprint) Digest() digest.Digest {
	return digest.Digest(f)
}

// Hex returns the encoded part of the fingerprint, without the algorithm.
func (f Fingerprint) Hex() string {
	return digest.Digest(f).Encoded()
}

// Short returns the first 12 hex characters, docker style.
func (f Fingerprint) Short() string {
	hx := f.Hex()
	if len(hx) > 12 {
		return hx[:12]
	}
	return hx
}

// Validate reports whether f is a well-formed digest.
func (f Fingerprint) Validate() error {
	return digest.Digest(f).Validate()
}

func writeField(h hash.Hash, s string) {
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(s)))
	h.Write(lenBuf[:])
	io.WriteString(h, s)
}

func fromHash(h hash.Hash) Fingerprint {
	return Fingerprint(digest.NewDigestFromEncoded(digest.SHA256, hex.EncodeToString(h.Sum(nil))))
}
