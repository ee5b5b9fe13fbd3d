package gateway

import (
	"strings"

	"github.com/example/paybridge/internal/models"
)

// NormalizeStatus maps a gateway status word onto the internal enum.
// Anything unrecognised, including the empty string, is pending.
func NormalizeStatus(s string) models.TransactionStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "success", "completed", "paid":
		return models.StatusSuccess
	case "failed", "failure":
		return models.StatusFailed
	case "cancelled", "canceled":
		return models.StatusCancelled
	}
	return models.StatusPending
}

func normalizeToken(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("-", "", "_", "", " ", "").Replace(s)
}
