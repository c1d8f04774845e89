package id

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// At generates a ULID whose timestamp component is t, so ids sort with the
// creation time they were minted for.
func At(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}
