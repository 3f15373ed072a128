package trigger

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Match selects which history rows count as a prior delivery.
type Match string

const (
	// MatchType matches (user, event type).
	MatchType Match = "type"
	// MatchTypeResource also requires the same resource id.
	MatchTypeResource Match = "type+resource"
)

func ParseMatch(raw string) (Match, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "type":
		return MatchType, nil
	case "type+resource", "resource":
		return MatchTypeResource, nil
	default:
		return "", fmt.Errorf("unknown match key %q", raw)
	}
}

// Rule is the tunable part of one scanner.
type Rule struct {
	// Window is the compliance lookahead or the inactivity threshold.
	Window   time.Duration
	Cooldown time.Duration
	Match    Match
	// Batch caps candidates per run; 0 means no cap.
	Batch int
	// Threshold is the profile completeness score below which users are nudged.
	Threshold int
}

// Rules holds one Rule per scanner.
type Rules struct {
	Compliance Rule
	Inactivity Rule
	Profile    Rule
}

// DefaultRules returns the production windows: 30 day lookahead and
// cooldowns, 30 day inactivity, completeness below 80.
func DefaultRules() Rules {
	const month = 30 * 24 * time.Hour
	return Rules{
		Compliance: Rule{Window: month, Cooldown: month, Match: MatchTypeResource},
		Inactivity: Rule{Window: month, Cooldown: month, Match: MatchType, Batch: 100},
		Profile:    Rule{Cooldown: month, Match: MatchType, Batch: 50, Threshold: 80},
	}
}

// Validate rejects rules that would select everything or nothing by accident.
func (r Rules) Validate() error {
	if r.Compliance.Window <= 0 {
		return errors.New("compliance window must be > 0")
	}
	if r.Inactivity.Window <= 0 {
		return errors.New("inactivity window must be > 0")
	}
	if r.Profile.Threshold <= 0 || r.Profile.Threshold > 100 {
		return errors.New("profile threshold must be in 1..100")
	}
	for name, rule := range map[string]Rule{"compliance": r.Compliance, "inactivity": r.Inactivity, "profile": r.Profile} {
		if rule.Cooldown < 0 {
			return fmt.Errorf("%s cooldown must be >= 0", name)
		}
		if rule.Batch < 0 {
			return fmt.Errorf("%s batch must be >= 0", name)
		}
		if _, err := ParseMatch(string(rule.Match)); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
