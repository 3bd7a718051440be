package domain

import (
	"strings"
	"testing"
	"unicode"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		expected bool
	}{
		{"Valid email", "jo@example.com", true},
		{"Valid email with subdomain", "user@mail.example.com.au", true},
		{"Valid email with plus", "user+tag@example.com", true},
		{"Valid email with dots", "first.last@example.co", true},
		{"Invalid email - no @", "nodomain", false},
		{"Invalid email - no local part", "@nodomain.com", false},
		{"Invalid email - spaces", "spaces in@email.com", false},
		{"Invalid email - no dot in domain", "jo@localhost", false},
		{"Invalid email - multiple @", "jo@@example.com", false},
		{"Invalid email - trailing dot only", "jo@example.", false},
		{"Invalid email - empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ValidateEmail(tt.email))
		})
	}
}

func TestLeadValidate(t *testing.T) {
	tests := []struct {
		name     string
		raw      map[string]string
		expected error
	}{
		{"valid", map[string]string{"name": "Jo", "email": "jo@example.com"}, nil},
		{"missing name", map[string]string{"email": "jo@example.com"}, ErrMissingRequired},
		{"missing email", map[string]string{"name": "Jo"}, ErrMissingRequired},
		{"name only whitespace and controls", map[string]string{"name": " \r\n\t\x00 ", "email": "jo@example.com"}, ErrMissingRequired},
		{"email only newlines", map[string]string{"name": "Jo", "email": "\n\n"}, ErrMissingRequired},
		{"bad email", map[string]string{"name": "Jo", "email": "nodomain"}, ErrInvalidEmail},
		{"email with space", map[string]string{"name": "Jo", "email": "spaces in@email.com"}, ErrInvalidEmail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := BuildLead(tt.raw).Validate()
			if tt.expected == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestSanitizeLine(t *testing.T) {
	inputs := []string{
		"Jo\r\nBloggs",
		"line1\nline2\rline3",
		"\x00\x01tab\there\x7f",
		"  padded  ",
		strings.Repeat("ab\n", 300),
		strings.Repeat("x", 199) + "          tail",
		"bad utf8 \xff\xfe end",
		"\u2028sep\u2029arated\u0085",
		"日本語\n" + strings.Repeat("字", 400),
	}

	for _, in := range inputs {
		out := SanitizeLine(in, MaxLineLength)

		assert.NotContains(t, out, "\r")
		assert.NotContains(t, out, "\n")
		for _, r := range out {
			assert.False(t, unicode.IsControl(r), "control rune %q in %q", r, out)
		}
		assert.LessOrEqual(t, utf8.RuneCountInString(out), MaxLineLength)
		assert.True(t, utf8.ValidString(out))
		assert.Equal(t, out, SanitizeLine(out, MaxLineLength), "sanitizing twice must be a no-op")
	}

	assert.Equal(t, "Jo Bloggs", SanitizeLine("Jo\r\nBloggs", MaxLineLength))
	assert.Equal(t, "a b c", SanitizeLine("a\nb\rc", MaxLineLength))
	assert.Equal(t, "abc", SanitizeLine("  abc\t", MaxLineLength))
}

func TestSanitizeText(t *testing.T) {
	in := "Hi there,\r\nWe want a pergola.\rThanks\x00\x1b!\t:)"
	out := SanitizeText(in, MaxMessageLength)

	assert.Equal(t, "Hi there,\nWe want a pergola.\nThanks  !\t:)", out)
	assert.Equal(t, out, SanitizeText(out, MaxMessageLength))

	long := strings.Repeat("pergola ", 1000)
	truncated := SanitizeText(long, MaxMessageLength)
	assert.LessOrEqual(t, utf8.RuneCountInString(truncated), MaxMessageLength)
	assert.False(t, strings.HasSuffix(truncated, " "))
}

func TestBuildLead(t *testing.T) {
	lead := BuildLead(map[string]string{
		"name":         "  Jo\nBloggs ",
		"email":        "jo@example.com",
		"enquiry_type": "Commercial",
		"width_m":      "6.0",
		"length_m":     "4.0",
		"event_id":     strings.Repeat("e", 150),
		"message":      "Line one\nLine two",
		"attachments":  "photos to follow",
		"website":      "",
	})

	assert.Equal(t, "Jo Bloggs", lead.Name)
	assert.Equal(t, "commercial", lead.EnquiryKey())
	assert.Equal(t, "Commercial", lead.EnquiryLabel())
	assert.Equal(t, "6.0m W × 4.0m L", lead.SizeSummary())
	assert.Len(t, lead.EventID, MaxEventIDLength)
	assert.Equal(t, "Line one\nLine two", lead.Message)
	assert.Equal(t, "photos to follow", lead.AttachmentsSummary)

	t.Run("服务端生成去重 ID", func(t *testing.T) {
		l := BuildLead(map[string]string{"name": "Jo", "email": "jo@example.com"})
		l.EnsureEventID()
		assert.Len(t, l.EventID, 36)

		existing := BuildLead(map[string]string{"event_id": "client-123"})
		existing.EnsureEventID()
		assert.Equal(t, "client-123", existing.EventID)
	})

	t.Run("附件摘要由服务端覆盖", func(t *testing.T) {
		l := BuildLead(map[string]string{"attachments": "client text"})
		l.AttachFiles([]Attachment{
			{Filename: "deck.jpg", Content: []byte{1, 2}},
			{Filename: "plan.pdf", Content: []byte{3}},
		})
		require.Len(t, l.Attachments, 2)
		assert.Equal(t, "2 files: deck.jpg, plan.pdf", l.AttachmentsSummary)
		assert.Equal(t, int64(3), l.AttachmentBytes())
	})
}

func TestEnquiryLabelDefault(t *testing.T) {
	assert.Equal(t, "Website", (&Lead{}).EnquiryLabel())
	assert.Equal(t, "", (&Lead{}).SizeSummary())
}

func TestIsHoneypotTripped(t *testing.T) {
	assert.False(t, IsHoneypotTripped(map[string]string{}))
	assert.False(t, IsHoneypotTripped(map[string]string{"website": "   "}))
	assert.True(t, IsHoneypotTripped(map[string]string{"website": "http://spam"}))
	assert.True(t, IsHoneypotTripped(map[string]string{"url": "x"}))
}
