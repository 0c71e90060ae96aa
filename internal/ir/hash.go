package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainSnapshot = "envgraph/snapshot/v1"
	DomainTree     = "envgraph/tree/v1"
)

// EdgeID derives the identity of an edge from (kind, source, target).
// The same triple always yields the same id, so ensuring an edge twice is a
// no-op.
func EdgeID(kind EdgeKind, source, target string) string {
	switch kind {
	case EdgeAction:
		return source + "=>" + target
	default:
		return source + "->" + target
	}
}

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// SnapshotDigest computes a content hash of flattened records.
// Used to tag reconciliation passes in the pass log; identical snapshots
// produce identical digests regardless of wire key order.
func SnapshotDigest(records []Record) (string, error) {
	items := make([]any, len(records))
	for i, r := range records {
		items[i] = recordMap(r)
	}
	canonical, err := MarshalCanonical(map[string]any{"records": items})
	if err != nil {
		return "", fmt.Errorf("SnapshotDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainSnapshot, canonical), nil
}

// DigestCanonical hashes an already-canonical tree dump.
func DigestCanonical(dump []byte) string {
	return hashWithDomain(DomainTree, dump)
}

func recordMap(r Record) map[string]any {
	deps := make([]any, len(r.DependsOn))
	for i, d := range r.DependsOn {
		deps[i] = d
	}
	params := make(map[string]any, len(r.Params))
	for k, v := range r.Params {
		params[k] = v
	}
	return map[string]any{
		"id":         r.ID,
		"kind":       string(r.Kind),
		"delete":     r.Delete,
		"value":      r.Value,
		"expression": r.Expression,
		"type_tag":   r.TypeTag,
		"params":     params,
		"depends_on": deps,
	}
}
