package cache

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// CachedAnswer is a remembered assistant answer for one question.
type CachedAnswer struct {
	Response   string
	Confidence *float64
	ModelUsed  string
	Timestamp  time.Time
}

// Key derives the cache key for a question in a given language. The same
// question in another language is a different entry.
func Key(question, language string) string {
	h := sha256.New()
	h.Write([]byte(language))
	h.Write([]byte{0})
	h.Write([]byte(question))
	return fmt.Sprintf("%x", h.Sum(nil))
}
