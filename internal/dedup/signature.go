package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"golang-invoice-dedup-service/internal/models"
)

// signatureDomain prefixes every set hash. Bump the version if the encoding
// below changes.
const signatureDomain = "dupdetect/group-signature/v1"

// NewSignature derives the deduplication view of a group. The hash is taken
// over the sorted member keys, so it does not depend on member order.
func NewSignature(g models.DuplicateGroup) models.GroupSignature {
	keys := append([]string(nil), g.MemberKeys...)
	sort.Strings(keys)
	keys = compactSorted(keys)

	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}

	return models.GroupSignature{
		ScenarioID: g.ScenarioID,
		GroupID:    g.GroupID,
		InvoiceSet: set,
		SortedKeys: keys,
		Size:       len(keys),
		Hash:       HashKeys(keys),
	}
}

// HashKeys hashes an already sorted key sequence as
// SHA256(domain 0x00 key1 0x00 key2 0x00 ...).
func HashKeys(sorted []string) string {
	h := sha256.New()
	h.Write([]byte(signatureDomain))
	h.Write([]byte{0x00})
	for _, k := range sorted {
		h.Write([]byte(k))
		h.Write([]byte{0x00})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// sameSet reports whether two signatures hold exactly the same keys.
func sameSet(a, b models.GroupSignature) bool {
	if a.Size != b.Size {
		return false
	}
	for i := range a.SortedKeys {
		if a.SortedKeys[i] != b.SortedKeys[i] {
			return false
		}
	}
	return true
}

// isSubset reports whether every key of a is in b.
func isSubset(a, b models.GroupSignature) bool {
	if a.Size > b.Size {
		return false
	}
	for _, k := range a.SortedKeys {
		if _, ok := b.InvoiceSet[k]; !ok {
			return false
		}
	}
	return true
}

func compactSorted(keys []string) []string {
	if len(keys) < 2 {
		return keys
	}
	out := keys[:1]
	for _, k := range keys[1:] {
		if k != out[len(out)-1] {
			out = append(out, k)
		}
	}
	return out
}
