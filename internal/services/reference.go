package services

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewReference generates a transaction reference: "TXN", the creation time in
// milliseconds and six random uppercase hex characters.
func NewReference(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:6]
	return "TXN" + strconv.FormatInt(now.UnixMilli(), 10) + suffix
}
