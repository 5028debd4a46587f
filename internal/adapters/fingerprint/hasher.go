// Package fingerprint derives cache keys for utility calls.
package fingerprint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"slices"

	"go.trai.ch/dval/internal/core/domain"
	"go.trai.ch/dval/internal/core/ports"
)

// schemaTag versions the encoding. Changing it invalidates every cached score.
const schemaTag = "dval.fp.v1"

var _ ports.Fingerprinter = (*Hasher)(nil)

// Hasher computes SHA-256 fingerprints over a length-delimited encoding of a utility call.
type Hasher struct{}

// NewHasher creates a new Hasher.
func NewHasher() *Hasher {
	return &Hasher{}
}

// Fingerprint returns the hex-encoded fingerprint of the call.
// Subsets are sorted by construction, so equal content always yields equal keys.
func (h *Hasher) Fingerprint(call domain.UtilityCall) domain.Fingerprint {
	d := sha256.New()

	writeString(d, schemaTag)
	writeString(d, call.UtilityID)
	h.hashConfig(d, call.Config)
	h.hashSubset(d, call.Subset)

	return domain.Fingerprint(hex.EncodeToString(d.Sum(nil)))
}

// hashConfig writes the config entries in key order, closed by a section separator.
func (h *Hasher) hashConfig(d hash.Hash, config map[string]string) {
	keys := make([]string, 0, len(config))
	for k := range config {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		writeString(d, k)
		writeString(d, config[k])
	}
	_, _ = d.Write([]byte{0}) // Section separator
}

func (h *Hasher) hashSubset(d hash.Hash, subset domain.Subset) {
	indices := subset.Indices()
	var buf [8]byte

	binary.BigEndian.PutUint64(buf[:], uint64(len(indices)))
	_, _ = d.Write(buf[:])

	for _, idx := range indices {
		binary.BigEndian.PutUint64(buf[:], uint64(idx)) //nolint:gosec // indices are non-negative
		_, _ = d.Write(buf[:])
	}
}

func writeString(d hash.Hash, s string) {
	_, _ = d.Write([]byte(s))
	_, _ = d.Write([]byte{0})
}
