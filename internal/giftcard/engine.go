package giftcard

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/noah-isme/minicart-api/internal/pricing"
)

// StatusActive marks a card that can be redeemed. An empty status is treated the same way.
const StatusActive = "active"

// Card is a flat-value gift card applied once against the grand total.
type Card struct {
	ID     int64         `json:"id"`
	Code   string        `json:"code"`
	Value  pricing.Money `json:"value"`
	Status string        `json:"status,omitempty"`
}

type cardJSON struct {
	ID     int64  `json:"id"`
	Code   string `json:"code"`
	Value  int64  `json:"value"`
	Status string `json:"status,omitempty"`
}

// MarshalJSON keeps the card value numeric, unlike the other monetary fields of the cart.
func (c Card) MarshalJSON() ([]byte, error) {
	return json.Marshal(cardJSON{ID: c.ID, Code: c.Code, Value: int64(c.Value), Status: c.Status})
}

// Policy captures how card status is interpreted when totalling.
type Policy struct {
	// HonorStatus skips cards whose status is set to anything but active.
	HonorStatus bool
}

// Applies reports whether the card contributes to the discount under the policy.
func (p Policy) Applies(c Card) bool {
	if !p.HonorStatus {
		return true
	}
	status := strings.TrimSpace(c.Status)
	return status == "" || strings.EqualFold(status, StatusActive)
}

// Total sums the value of every applicable card.
func Total(cards []Card, p Policy) (pricing.Money, error) {
	var total pricing.Money
	for _, c := range cards {
		if c.Value < 0 {
			return 0, fmt.Errorf("%w: gift card %q has negative value", pricing.ErrMalformedNumeric, c.Code)
		}
		if !p.Applies(c) {
			continue
		}
		next := total + c.Value
		if next < total {
			return 0, fmt.Errorf("gift card total: %w", pricing.ErrAmountOutOfRange)
		}
		total = next
	}
	return total, nil
}
