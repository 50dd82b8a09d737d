// Package score detects disclosures of known-target information in
// caller speech. It compares a normalized utterance against the target
// employee's directory profile and reports one result per matched field.
// Results feed monitoring events and post-call evaluation only; they
// never influence call flow.
package score

import (
	"regexp"
	"strings"
)

// Tier is a discrete confidence bucket for a disclosure match.
type Tier int

const (
	// TierConfirmedMatch: the utterance contains the profile value (or a
	// name token of it).
	TierConfirmedMatch Tier = iota + 1
	// TierFormatMatch: the utterance contains something shaped like the
	// field (currently email only) without matching the profile value.
	TierFormatMatch
	// TierWillingUnverified, TierResistant, TierPassed are assigned by
	// post-call evaluation, not by this matcher. Declared here so the
	// whole rubric shares one type.
	TierWillingUnverified
	TierResistant
	TierPassed
)

func (t Tier) String() string {
	switch t {
	case TierConfirmedMatch:
		return "confirmed_match"
	case TierFormatMatch:
		return "format_match"
	case TierWillingUnverified:
		return "willing_unverified"
	case TierResistant:
		return "resistant"
	case TierPassed:
		return "passed"
	default:
		return "unknown"
	}
}

// EmployeeProfile is the read-only target snapshot loaded at call start.
type EmployeeProfile struct {
	FullName   string
	Email      string
	Department string
	JobTitle   string
	BossName   string
}

// Result is one disclosure match.
type Result struct {
	Tier       Tier
	Field      string
	Disclosed  string
	Expected   string
	Confidence float64
}

var (
	whitespaceRE = regexp.MustCompile(`\s+`)
	emailShapeRE = regexp.MustCompile(`\b[\w.+-]+@[\w-]+\.[\w.]+\b`)
)

func normalize(s string) string {
	return whitespaceRE.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), " ")
}

// minNameTokenLen guards against matching particles like "de" or "la"
// when checking individual name tokens.
const minNameTokenLen = 3

// Disclosures scans one utterance against the profile. Multiple results
// may be returned, one per field that matched.
func Disclosures(utterance string, profile EmployeeProfile) []Result {
	text := normalize(utterance)
	if text == "" {
		return nil
	}

	// Name tokens are never matched inside an email address: an address
	// containing the name is the email disclosure, not a second name
	// disclosure.
	nameText := emailShapeRE.ReplaceAllString(text, " ")

	checks := []struct {
		field    string
		expected string
		nameLike bool
	}{
		{"full_name", profile.FullName, true},
		{"email", profile.Email, false},
		{"department", profile.Department, false},
		{"job_title", profile.JobTitle, false},
		{"boss_name", profile.BossName, true},
	}

	var results []Result
	for _, c := range checks {
		expected := normalize(c.expected)
		if expected == "" {
			continue
		}

		if strings.Contains(text, expected) {
			results = append(results, Result{
				Tier:       TierConfirmedMatch,
				Field:      c.field,
				Disclosed:  c.expected,
				Expected:   c.expected,
				Confidence: 1.0,
			})
			continue
		}

		if c.nameLike {
			for _, token := range strings.Fields(expected) {
				if len(token) >= minNameTokenLen && strings.Contains(nameText, token) {
					results = append(results, Result{
						Tier:       TierConfirmedMatch,
						Field:      c.field,
						Disclosed:  token,
						Expected:   c.expected,
						Confidence: 0.85,
					})
					break
				}
			}
		}

		if c.field == "email" {
			if m := emailShapeRE.FindString(text); m != "" {
				// Any plausible email volunteered by the target is a
				// signal, even when it is not the profile's address.
				results = append(results, Result{
					Tier:       TierFormatMatch,
					Field:      "email",
					Disclosed:  m,
					Expected:   c.expected,
					Confidence: 0.6,
				})
			}
		}
	}
	return results
}
