package content

import (
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var idSeq atomic.Uint32

// NewID returns an opaque content identifier. IDs sort lexicographically in
// creation order within a process: 16 hex digits of unix nanos, a 4-digit
// in-process sequence, then random entropy for cross-process uniqueness.
// The sort-key scheme depends on this ordering.
func NewID() string {
	u := uuid.New()
	return fmt.Sprintf("%016x%04x%s",
		uint64(time.Now().UnixNano()),
		uint16(idSeq.Add(1)),
		hex.EncodeToString(u[:3]))
}
