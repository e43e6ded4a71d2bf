package logging

import "testing"

func TestRedactEmail(t *testing.T) {
	cases := map[string]string{
		"john.doe@example.com": "jo***@example.com",
		"ab@example.com":       "***@example.com",
		"a@example.com":        "***@example.com",
		"not-an-email":         "***@***",
	}
	for in, want := range cases {
		if got := RedactEmail(in); got != want {
			t.Errorf("RedactEmail(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRedactPIIValue(t *testing.T) {
	if got := redactPIIValue("sender_email", "foo.bar@example.com"); got != "fo***@example.com" {
		t.Errorf("got %q", got)
	}
	if got := redactPIIValue("message", "contact alice@example.com for help"); got != "contact al***@example.com for help" {
		t.Errorf("got %q", got)
	}
	if got := redactPIIValue("action_id", "act_123"); got != "act_123" {
		t.Errorf("non-PII field should be untouched, got %q", got)
	}
}
