package cartclient

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Session identifies the cart a client works on. It is generated once and
// persisted in the mirror so restarts keep the same cart.
type Session struct {
	ID string
}

// NewSessionID returns an id of the form session_<unix-ms>_<8 hex chars>
func NewSessionID(now time.Time) string {
	return fmt.Sprintf("session_%d_%s", now.UnixMilli(), uuid.New().String()[:8])
}
