package radar

import "strings"

// Class is the consequence class of an item.
type Class string

const (
	ClassCritical    Class = "critical"
	ClassOperational Class = "operational"
	ClassStability   Class = "stability"
	ClassMaintenance Class = "maintenance"
	ClassPersonal    Class = "personal"
)

// KeywordRule maps a consequence class to its trigger keywords.
type KeywordRule struct {
	Class    Class    `json:"class" yaml:"class"`
	Keywords []string `json:"keywords" yaml:"keywords"`
}

// DefaultRules is the tuned keyword table. Order is precedence: the
// first rule with any keyword hit wins.
func DefaultRules() []KeywordRule {
	return []KeywordRule{
		{Class: ClassCritical, Keywords: []string{"license", "credential", "compliance", "payroll", "insurance", "blocked"}},
		{Class: ClassOperational, Keywords: []string{"client", "referral", "call back", "intake", "schedule", "billing", "contact", "appointment", "new referral"}},
		{Class: ClassStability, Keywords: []string{"note", "documentation", "paperwork", "review", "acknowledged"}},
		{Class: ClassMaintenance, Keywords: []string{"cleanup", "organize", "update", "template"}},
		{Class: ClassPersonal, Keywords: []string{"home", "family", "personal", "mom", "kids"}},
	}
}

// DefaultWeights maps each class to its objective weight.
func DefaultWeights() map[Class]int {
	return map[Class]int{
		ClassCritical:    100,
		ClassOperational: 75,
		ClassStability:   50,
		ClassMaintenance: 30,
		ClassPersonal:    20,
	}
}

// Classify scans the item's text fields against the default keyword
// table and returns the first matching class, or stability when nothing
// matches. Matching is case-insensitive substring search over the
// concatenated fields.
func Classify(item Item) Class {
	return ClassifyWith(DefaultRules(), item)
}

// ClassifyWith classifies using a custom rule table.
func ClassifyWith(rules []KeywordRule, item Item) Class {
	parts := make([]string, 0, 6)
	for _, f := range []string{item.ClientName, item.Status, item.Title, item.Label, item.Type, item.Detail} {
		if f != "" {
			parts = append(parts, f)
		}
	}
	text := strings.ToLower(strings.Join(parts, " "))
	for _, rule := range rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(text, kw) {
				return rule.Class
			}
		}
	}
	return ClassStability
}
