package model

import "strings"

// Stance is the classified position of a comment toward the proposed rule.
type Stance string

const (
	StanceFor     Stance = "For"
	StanceAgainst Stance = "Against"
	StanceNeutral Stance = "Neutral/Unclear"
)

// AllStances lists the valid stance values in display order.
func AllStances() []Stance {
	return []Stance{StanceFor, StanceAgainst, StanceNeutral}
}

// ValidStance reports whether s is one of the known stance values.
func ValidStance(s string) bool {
	switch Stance(s) {
	case StanceFor, StanceAgainst, StanceNeutral:
		return true
	}
	return false
}

// DefaultThemes is the theme vocabulary offered to the classifier when the
// config does not override it.
var DefaultThemes = []string{
	"economic_impact",
	"environmental_impact",
	"public_health",
	"legal_authority",
	"implementation_burden",
	"small_business",
	"privacy",
	"safety",
	"procedural_concerns",
	"other",
}

// ClassificationResult is the wire shape returned by the classifier boundary.
// It is never stored independently; the scheduler flattens it onto the
// owning LookupEntry.
type ClassificationResult struct {
	Stance    Stance   `json:"stance"`
	Themes    []string `json:"themes"`
	KeyQuote  string   `json:"key_quote"`
	Rationale string   `json:"rationale"`
}

// JoinThemes converts the wire-shape theme list to the stored comma-joined
// form. The stored shape is the flattened string; the list form exists only
// at the classifier boundary.
func JoinThemes(themes []string) string {
	return strings.Join(themes, ", ")
}

// SplitThemes converts the stored comma-joined form back to a list.
func SplitThemes(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	themes := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			themes = append(themes, t)
		}
	}
	return themes
}
