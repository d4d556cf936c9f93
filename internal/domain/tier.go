// Package domain contains core domain types for DRAFT intake governance.
package domain

import (
	"fmt"
	"strings"
)

// Tier is the risk classification of a request.
type Tier string

const (
	TierCasual        Tier = "CASUAL"
	TierStandard      Tier = "STANDARD"
	TierConsequential Tier = "CONSEQUENTIAL"
	// TierRejected marks an unclassifiable message. It is never stored on a session.
	TierRejected Tier = "REJECTED"
)

// tierOrder is the escalation order. Index is the tier's rank.
var tierOrder = []Tier{TierCasual, TierStandard, TierConsequential}

// Valid reports whether t is one of the three storable tiers.
func (t Tier) Valid() bool {
	return t.Rank() >= 0
}

// Rank returns the position of t in the escalation order, or -1.
func (t Tier) Rank() int {
	for i, v := range tierOrder {
		if v == t {
			return i
		}
	}
	return -1
}

// Next returns the tier one step above t. ok is false at the top.
// Unknown tiers escalate as if they were CASUAL.
func (t Tier) Next() (Tier, bool) {
	r := t.Rank()
	if r < 0 {
		r = 0
	}
	if r >= len(tierOrder)-1 {
		return TierConsequential, false
	}
	return tierOrder[r+1], true
}

// Prev returns the tier one step below t. ok is false at the bottom.
// Unknown tiers de-escalate as if they were CONSEQUENTIAL.
func (t Tier) Prev() (Tier, bool) {
	r := t.Rank()
	if r < 0 {
		r = len(tierOrder) - 1
	}
	if r <= 0 {
		return TierCasual, false
	}
	return tierOrder[r-1], true
}

// ParseTier parses a storable tier case-insensitively.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("invalid tier %q: must be one of CASUAL, CONSEQUENTIAL, STANDARD", s)
	}
	return t, nil
}
