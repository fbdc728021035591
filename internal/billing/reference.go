package billing

import (
	"strings"

	"github.com/google/uuid"
)

const refPrefix = "PR-"

const refAlphabet = "ABCDEFGHJKMNPQRSTVWXYZ0123456789" // no I/L/O/U, avoids misreads

// NewReference generates an opaque checkout reference. Uniqueness is
// per tenant and enforced by the database; callers retry on collision.
func NewReference() string {
	u := uuid.New()
	var b strings.Builder
	b.WriteString(refPrefix)
	for i := 0; i < 10; i++ {
		b.WriteByte(refAlphabet[int(u[i])%len(refAlphabet)])
	}
	return b.String()
}

// NormalizeReference returns the lookup candidates for a raw reference
// as it may arrive from a payment link: trimmed, upper-cased, and with
// the fixed prefix both present and stripped. The canonical form comes
// first.
func NormalizeReference(raw string) []string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return nil
	}
	if strings.HasPrefix(s, refPrefix) {
		return []string{s, strings.TrimPrefix(s, refPrefix)}
	}
	return []string{refPrefix + s, s}
}
