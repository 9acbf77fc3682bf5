package orders

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewID returns an order id of the form ORD-<unix millis>-<uuid>. The time
// prefix keeps ids roughly sortable; the random suffix keeps concurrent
// creates within the same millisecond apart.
func NewID(now time.Time) string {
	return fmt.Sprintf("ORD-%d-%s", now.UnixMilli(), uuid.NewString())
}
