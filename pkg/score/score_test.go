package score

import (
	"testing"

	"github.com/matryer/is"
)

var profile = EmployeeProfile{
	FullName:   "Maria Alvarez",
	Email:      "maria.alvarez@acme.com",
	Department: "Payroll",
	JobTitle:   "Payroll Specialist",
	BossName:   "Tom Okafor",
}

func TestDisclosures(t *testing.T) {
	tests := []struct {
		name      string
		utterance string
		wantField string
		wantTier  Tier
		wantConf  float64
		wantCount int
	}{
		{
			name:      "exact full name",
			utterance: "Yes, this is Maria Alvarez speaking",
			wantField: "full_name",
			wantTier:  TierConfirmedMatch,
			wantConf:  1.0,
			wantCount: 1,
		},
		{
			name:      "single name token",
			utterance: "people here just call me Maria",
			wantField: "full_name",
			wantTier:  TierConfirmedMatch,
			wantConf:  0.85,
			wantCount: 1,
		},
		{
			name:      "profile email exact",
			utterance: "sure, it's maria.alvarez@acme.com",
			wantField: "email",
			wantTier:  TierConfirmedMatch,
			wantConf:  1.0,
			wantCount: 1,
		},
		{
			name:      "name token outside the address still counts",
			utterance: "maria here, reach me at maria.alvarez@acme.com",
			wantField: "full_name",
			wantTier:  TierConfirmedMatch,
			wantConf:  0.85,
			wantCount: 2,
		},
		{
			name:      "foreign email is a format match",
			utterance: "you can write to someone@other.org instead",
			wantField: "email",
			wantTier:  TierFormatMatch,
			wantConf:  0.6,
			wantCount: 1,
		},
		{
			name:      "boss name token",
			utterance: "I report to Okafor",
			wantField: "boss_name",
			wantTier:  TierConfirmedMatch,
			wantConf:  0.85,
			wantCount: 1,
		},
		{
			name:      "case and whitespace normalized",
			utterance: "I work in   PAYROLL",
			wantField: "department",
			wantTier:  TierConfirmedMatch,
			wantConf:  1.0,
			wantCount: 1,
		},
		{
			name:      "no disclosure",
			utterance: "I'm not comfortable sharing that",
			wantCount: 0,
		},
		{
			name:      "empty utterance",
			utterance: "   ",
			wantCount: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			got := Disclosures(tt.utterance, profile)
			is.Equal(len(got), tt.wantCount) // result count
			if tt.wantCount == 0 {
				return
			}
			is.Equal(got[0].Field, tt.wantField)     // matched field
			is.Equal(got[0].Tier, tt.wantTier)       // tier
			is.Equal(got[0].Confidence, tt.wantConf) // confidence
		})
	}
}

func TestDisclosuresMultipleFields(t *testing.T) {
	is := is.New(t)

	got := Disclosures("this is Maria Alvarez from Payroll", profile)
	is.Equal(len(got), 2) // name and department both matched

	fields := map[string]bool{}
	for _, r := range got {
		fields[r.Field] = true
	}
	is.True(fields["full_name"])  // full name disclosed
	is.True(fields["department"]) // department disclosed
}

func TestDisclosuresEmptyProfileFieldsSkipped(t *testing.T) {
	is := is.New(t)

	got := Disclosures("this is Maria from somewhere", EmployeeProfile{})
	is.Equal(len(got), 0) // empty profile matches nothing
}

func TestTierString(t *testing.T) {
	is := is.New(t)

	is.Equal(TierConfirmedMatch.String(), "confirmed_match")
	is.Equal(TierFormatMatch.String(), "format_match")
	is.Equal(Tier(0).String(), "unknown")
}
