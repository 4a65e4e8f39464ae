// Package xid generates prefixed, time-ordered identifiers for domain
// entities (ord-, po-, shp-, pay-, aud-).
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// New returns a "<prefix>-<unix nanos>-<random hex>" identifier. The
// nanosecond component keeps ids roughly sortable by creation time.
func New(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf))
}
