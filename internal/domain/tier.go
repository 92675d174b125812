package domain

import (
	"strconv"
	"strings"
)

// Tier is the ordinal content-depth class.
type Tier int

const (
	TierUnknown Tier = 0
	Tier1       Tier = 1
	Tier2       Tier = 2
	Tier3       Tier = 3
)

var tierMinimums = map[Tier]int{
	Tier1: 1800,
	Tier2: 1400,
	Tier3: 1100,
}

// ParseTier accepts "Tier 1", "tier-2", "3" and similar spellings.
func ParseTier(raw string) Tier {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "tier")
	s = strings.Trim(s, " _-")
	n, err := strconv.Atoi(s)
	if err != nil {
		return TierUnknown
	}
	t := Tier(n)
	if _, ok := tierMinimums[t]; !ok {
		return TierUnknown
	}
	return t
}

// Known reports whether the tier has a word-count policy.
func (t Tier) Known() bool {
	_, ok := tierMinimums[t]
	return ok
}

// MinWords returns the minimum accepted word count; unknown tiers use Tier 2.
func (t Tier) MinWords() int {
	if m, ok := tierMinimums[t]; ok {
		return m
	}
	return tierMinimums[Tier2]
}

// String renders the tier the way prompts and the CMS expect it.
func (t Tier) String() string {
	if !t.Known() {
		return ""
	}
	return "Tier " + strconv.Itoa(int(t))
}
