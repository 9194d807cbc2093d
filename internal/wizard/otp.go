package wizard

import (
	"math"
	"time"
)

const DefaultResendCooldown = 60 * time.Second

// OTPState belongs to the verification step only. Reset and leaving the flow discard it.
type OTPState struct {
	Code          string    `json:"code"`
	Loading       bool      `json:"loading"`
	CooldownUntil time.Time `json:"cooldownUntil,omitzero"`
	Info          string    `json:"info,omitempty"`
}

func (o OTPState) CoolingDown(now time.Time) bool {
	return now.Before(o.CooldownUntil)
}

// RemainingSeconds is the cooldown left, rounded up to whole seconds.
func (o OTPState) RemainingSeconds(now time.Time) int {
	if !o.CoolingDown(now) {
		return 0
	}
	return int(math.Ceil(o.CooldownUntil.Sub(now).Seconds()))
}
