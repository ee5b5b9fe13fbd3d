package models

import (
	"slices"

	"github.com/lib/pq"
)

// User is the originating identity of a payment. Only the gateway
// preferences are read by the payment core.
type User struct {
	BaseModel
	Name            string         `json:"name"`
	Email           string         `gorm:"uniqueIndex" json:"email"`
	PasswordHash    string         `json:"-"`
	IsAdmin         bool           `json:"isAdmin"`
	PaymentGateway  string         `json:"paymentGateway"`
	AllowedGateways pq.StringArray `gorm:"type:text[]" json:"allowedGateways"`
}

// Allows reports whether the user may route payments through gateway.
// An empty allow-list permits every gateway.
func (u *User) Allows(gateway string) bool {
	if len(u.AllowedGateways) == 0 {
		return true
	}
	return slices.Contains(u.AllowedGateways, gateway)
}

// PaymentMethod records whether a gateway is switched on for new payments.
type PaymentMethod struct {
	BaseModel
	Name     string `json:"name"`
	Gateway  string `gorm:"index" json:"gateway"`
	IsActive bool   `gorm:"index" json:"isActive"`
}
