package email

import (
	"testing"
	"time"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in   string
		want Category
	}{
		{"Academic", CategoryAcademic},
		{"academic", CategoryAcademic},
		{"  SPAM  ", CategorySpam},
		{"administrative", CategoryAdministrative},
		{"newsletter", CategoryOther},
		{"", CategoryOther},
		{"garbage value", CategoryOther},
	}

	for _, tt := range tests {
		if got := ParseCategory(tt.in); got != tt.want {
			t.Errorf("ParseCategory(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParsePriority(t *testing.T) {
	tests := []struct {
		in   string
		want Priority
	}{
		{"High", PriorityHigh},
		{"low", PriorityLow},
		{"MEDIUM", PriorityMedium},
		{"urgent", PriorityMedium},
		{"", PriorityMedium},
	}

	for _, tt := range tests {
		if got := ParsePriority(tt.in); got != tt.want {
			t.Errorf("ParsePriority(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFallbackIsSchemaValid(t *testing.T) {
	c := Fallback("Exam schedule")

	if !c.Category.IsValid() {
		t.Errorf("fallback category %q is out of schema", c.Category)
	}
	if !c.Priority.IsValid() {
		t.Errorf("fallback priority %q is out of schema", c.Priority)
	}
	if c.Category != CategoryOther || c.Priority != PriorityMedium {
		t.Errorf("fallback = %q/%q, want Other/Medium", c.Category, c.Priority)
	}
	if c.Summary != "Exam schedule" {
		t.Errorf("fallback summary = %q, want the subject line", c.Summary)
	}
	if len(c.ActionItems) != 0 {
		t.Errorf("fallback invented %d action items", len(c.ActionItems))
	}
}

func TestNewMessageDefaultsSubject(t *testing.T) {
	m := NewMessage("42", "a@b.c", "", time.Now(), "body")
	if m.Subject != "(No Subject)" {
		t.Errorf("subject = %q, want (No Subject)", m.Subject)
	}
}

func TestBodyPreview(t *testing.T) {
	long := make([]rune, 0, 600)
	for i := 0; i < 600; i++ {
		long = append(long, 'ж') // multibyte, preview must be rune-safe
	}
	m := NewMessage("1", "", "s", time.Time{}, string(long))

	if got := len([]rune(m.BodyPreview(0))); got != DefaultPreviewLength {
		t.Errorf("default preview length = %d runes, want %d", got, DefaultPreviewLength)
	}
	if got := m.BodyPreview(1000); got != m.Body {
		t.Errorf("preview longer than body should return body unchanged")
	}
}
