package ledger

import (
	"fmt"
	"time"
)

// ReceiptNumber returns a human-readable receipt identifier for a payment
// taken at t: the date plus the last four digits of the millisecond clock.
// It is not unique and is never used as a key.
func ReceiptNumber(t time.Time) string {
	return fmt.Sprintf("REC-%s-%04d", t.Format("20060102"), t.UnixMilli()%10000)
}
