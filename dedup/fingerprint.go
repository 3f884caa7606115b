package dedup

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/task"
)

// Fingerprint identifies a task delivery for duplicate detection.
// Two deliveries are duplicates only when both the source and the
// content identifiers match exactly; similar-but-different events are
// never coalesced.
type Fingerprint struct {
	SourceID  string
	ContentID string
}

// FingerprintOf extracts a task's fingerprint.
func FingerprintOf(t *task.Task) Fingerprint {
	return Fingerprint{SourceID: t.SourceID, ContentID: t.ContentID}
}

// Zero reports whether the fingerprint carries no identity. Tasks
// without source and content identifiers cannot be deduplicated.
func (f Fingerprint) Zero() bool {
	return f.SourceID == "" && f.ContentID == ""
}

// Key returns a fixed-length hash key for external indexes.
func (f Fingerprint) Key() string {
	h := sha256.New()
	h.Write([]byte(f.SourceID))
	h.Write([]byte{0})
	h.Write([]byte(f.ContentID))
	return "batch:dedup:" + hex.EncodeToString(h.Sum(nil))
}
