// Package ratelimit implements Stroma's five-tier progressive cooldown
// (spec.md §4.10): each (actor_hash, action_kind) pair starts at the
// Immediate tier and, on repeated rapid use, climbs through 60s, 300s,
// 3600s, and 86400s cooldowns. Unlike the teacher's per-IP token bucket
// (an ungated, purely transport-layer throttle), this limiter is keyed by
// masked actor identity and its state lives inside
// models.TrustNetworkState.RateLimits so every replica enforces the same
// cooldown regardless of which one processed the action.
package ratelimit

import "github.com/roder/stroma/pkg/models"

// cooldownSeconds maps each tier to the minimum interval, in seconds,
// that must elapse since LastActionSec before the action is allowed
// again at that tier.
var cooldownSeconds = map[models.RateLimitTier]int64{
	models.TierImmediate: 0,
	models.Tier60s:       60,
	models.Tier300s:      300,
	models.Tier3600s:     3600,
	models.Tier86400s:    86400,
}

// escalateAfter is how many consecutive within-cooldown attempts at a
// tier are tolerated before the actor graduates to the next, stricter
// tier. Reaching the final tier simply stays there.
const escalateAfter = 3

// Decision is the outcome of Check: whether the action may proceed now,
// and the RateLimitState the caller should persist (via a delta) whether
// or not the action proceeds.
type Decision struct {
	Allowed bool
	Next    models.RateLimitState
}

// Check evaluates whether (actor, action) may fire at time nowSec, given
// the state's current RateLimits entry for that key (absent entries
// start at TierImmediate with no prior strikes).
func Check(s *models.TrustNetworkState, actor models.MemberHash, action string, nowSec int64) Decision {
	key := models.RateLimitKey{Actor: actor, Action: action}
	current, ok := s.RateLimits[key]
	if !ok {
		return Decision{Allowed: true, Next: models.RateLimitState{Tier: models.TierImmediate, LastActionSec: nowSec, StrikeCount: 0}}
	}

	cooldown := cooldownSeconds[current.Tier]
	elapsed := nowSec - current.LastActionSec
	if elapsed >= cooldown {
		// Cooldown satisfied: reset strikes but do not de-escalate the
		// tier — repeated bursts at any tier keep the actor at that tier
		// rather than resetting to Immediate on a single quiet interval.
		return Decision{Allowed: true, Next: models.RateLimitState{Tier: current.Tier, LastActionSec: nowSec, StrikeCount: 0}}
	}

	strikes := current.StrikeCount + 1
	tier := current.Tier
	if strikes >= escalateAfter && tier < models.Tier86400s {
		tier++
		strikes = 0
	}
	return Decision{Allowed: false, Next: models.RateLimitState{Tier: tier, LastActionSec: current.LastActionSec, StrikeCount: strikes}}
}

// Key builds the RateLimitKey for (actor, action), exported for callers
// that need to look up or clear a specific entry without duplicating the
// struct literal.
func Key(actor models.MemberHash, action string) models.RateLimitKey {
	return models.RateLimitKey{Actor: actor, Action: action}
}
