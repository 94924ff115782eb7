package xid

import (
	"github.com/google/uuid"
)

// New returns a prefixed, time-ordered identifier such as "sale-0190f6...".
func New(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		return prefix + "-" + uuid.NewString()
	}
	return prefix + "-" + id.String()
}
