package email

import "strings"

type Category string

const (
	CategoryAcademic       Category = "Academic"
	CategoryAdministrative Category = "Administrative"
	CategorySocial         Category = "Social"
	CategorySpam           Category = "Spam"
	CategoryOther          Category = "Other"
)

func (c Category) IsValid() bool {
	switch c {
	case CategoryAcademic, CategoryAdministrative, CategorySocial, CategorySpam, CategoryOther:
		return true
	}
	return false
}

func (c Category) String() string {
	return string(c)
}

// ParseCategory maps a free-form value onto the category enum,
// coercing anything out of set to Other.
func ParseCategory(s string) Category {
	c := Category(capitalize(s))
	if c.IsValid() {
		return c
	}
	return CategoryOther
}

type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

func (p Priority) String() string {
	return string(p)
}

// ParsePriority maps a free-form value onto the priority enum,
// coercing anything out of set to Medium.
func ParsePriority(s string) Priority {
	p := Priority(capitalize(s))
	if p.IsValid() {
		return p
	}
	return PriorityMedium
}

func capitalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Classification is the structured verdict produced for one message.
// Immutable once produced; ownership passes to the sinks.
type Classification struct {
	Category    Category
	Priority    Priority
	Summary     string
	ActionItems []string
}

// Fallback is the degraded verdict used when analysis fails. It is always
// schema-valid: the summary carries only the subject line and no action
// items are invented.
func Fallback(subject string) Classification {
	return Classification{
		Category: CategoryOther,
		Priority: PriorityMedium,
		Summary:  subject,
	}
}
