package redact

import (
	"strings"
	"testing"

	"github.com/matryer/is"
)

func TestRedact(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		want      string
		sensitive bool
		types     []string
	}{
		{
			name:      "ssn",
			in:        "My SSN is 123-45-6789",
			want:      "My SSN is [REDACTED_SSN]",
			sensitive: true,
			types:     []string{"ssn"},
		},
		{
			name: "empty input unchanged",
			in:   "",
			want: "",
		},
		{
			name: "clean text unchanged",
			in:   "no sensitive content here at all",
			want: "no sensitive content here at all",
		},
		{
			name:      "email",
			in:        "reach me at jane.doe@example.com please",
			want:      "reach me at [REDACTED_EMAIL] please",
			sensitive: true,
			types:     []string{"email"},
		},
		{
			name:      "phone",
			in:        "call 555-123-4567 now",
			want:      "call [REDACTED_PHONE] now",
			sensitive: true,
			types:     []string{"phone"},
		},
		{
			name:      "credit card beats bare code",
			in:        "card 4111 1111 1111 1111 ok",
			want:      "card [REDACTED_CC] ok",
			sensitive: true,
			types:     []string{"cc"},
		},
		{
			name:      "password phrase",
			in:        "my password is hunter2",
			want:      "[REDACTED_PASSWORD]",
			sensitive: true,
			types:     []string{"password"},
		},
		{
			name:      "bare code",
			in:        "the code is 482916",
			want:      "the code is [REDACTED_CODE]",
			sensitive: true,
			types:     []string{"code"},
		},
		{
			name: "long digit run is not a code",
			in:   "reference 123456789012 noted",
			want: "reference 123456789012 noted",
		},
		{
			name:      "multiple matches left to right",
			in:        "email a@b.co and pin 1234",
			want:      "email [REDACTED_EMAIL] and pin [REDACTED_CODE]",
			sensitive: true,
			types:     []string{"email", "code"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			got := Redact(tt.in)
			is.Equal(got.Redacted, tt.want)                 // redacted text should match
			is.Equal(got.Original, tt.in)                   // original text preserved
			is.Equal(got.HasSensitiveContent, tt.sensitive) // sensitivity flag
			is.Equal(len(got.Redactions), len(tt.types))    // one span per expected match
			for i, typ := range tt.types {
				is.Equal(got.Redactions[i].Type, typ) // span type in order
			}
		})
	}
}

func TestRedactNeverLeaksOriginalMatch(t *testing.T) {
	is := is.New(t)

	inputs := []string{
		"My SSN is 123-45-6789",
		"jane.doe@example.com called from 555-123-4567",
		"my password is s3cret! and the code is 4821",
		"card: 4111-1111-1111-1111",
	}
	for _, in := range inputs {
		got := Redact(in)
		for _, span := range got.Redactions {
			is.True(!strings.Contains(got.Redacted, span.Original)) // masked value must not survive
		}
	}
}

func TestRedactSpanOffsets(t *testing.T) {
	is := is.New(t)

	in := "pin 1234 then 5678"
	got := Redact(in)
	is.Equal(len(got.Redactions), 2)
	for _, span := range got.Redactions {
		is.Equal(in[span.Start:span.End], span.Original) // offsets index the original text
	}
}
