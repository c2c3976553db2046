// Package uuid wraps github.com/google/uuid with time-ordered (v7) identifiers for the
// server's own records: subscriptions, watches, builder sessions and requests.
package uuid

import (
	"encoding/binary"
	"strings"
	"time"

	"github.com/google/uuid"
)

type UUID = uuid.UUID

var Nil = uuid.Nil

// New returns a UUIDv7. Panics if the random source fails.
func New() UUID {
	id, err := uuid.NewV7()
	if err != nil {
		panic(err)
	}
	return id
}

func Parse(s string) (UUID, error) {
	return uuid.Parse(s)
}

// NewID returns prefix, an underscore and a compact v7 UUID, e.g. "sub_01927c...".
// Ids sort by creation time within a prefix.
func NewID(prefix string) string {
	compact := strings.ReplaceAll(New().String(), "-", "")
	if prefix == "" {
		return compact
	}
	return prefix + "_" + compact
}

// Timestamp extracts the creation time of a UUIDv7 from its top 48 bits.
func Timestamp(u UUID) time.Time {
	ms := binary.BigEndian.Uint64(u[0:8]) >> 16
	return time.UnixMilli(int64(ms))
}

// IDTime returns the creation time of an id produced by NewID, and false when id does
// not carry one.
func IDTime(id string) (time.Time, bool) {
	if i := strings.LastIndexByte(id, '_'); i >= 0 {
		id = id[i+1:]
	}
	u, err := uuid.Parse(id)
	if err != nil || u.Version() != 7 {
		return time.Time{}, false
	}
	return Timestamp(u), true
}
