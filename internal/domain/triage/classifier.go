package triage

import (
	"fmt"
	"strings"
)

// Category is the WHO-style rabies exposure category stamped on a case at intake.
type Category string

const (
	CategoryI   Category = "Category I"
	CategoryII  Category = "Category II"
	CategoryIII Category = "Category III"
)

// IsValid reports whether c is one of the three known categories.
func (c Category) IsValid() bool {
	switch c {
	case CategoryI, CategoryII, CategoryIII:
		return true
	}
	return false
}

// ParseCategory normalizes a stored category value.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	for _, c := range []Category{CategoryI, CategoryII, CategoryIII} {
		if strings.EqualFold(s, string(c)) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown risk category: %q", s)
}

// Exposure holds the pre-screening answers the classifier looks at.
//
// AnimalVaccination and PriorImmunization are collected by the intake form and
// passed through, but the current rule set does not use them.
type Exposure struct {
	TypeOfExposure    string
	AffectedArea      string
	WoundDescription  string
	BleedingType      string
	AnimalStatus      string
	AnimalVaccination string
	PriorImmunization string
}

var (
	severeExposures    = set("Bite", "Contamination of Mucous Membrane")
	severeAreas        = set("Head/Face", "Neck")
	severeBleeding     = set("Spontaneous", "Both spontaneous and induced")
	severeWounds       = set("Punctured", "Lacerated", "Avulsed")
	severeAnimalStatus = set("Sick", "Died", "Lost")
	moderateExposures  = set("Scratch", "Non-Bite")
	moderateWounds     = set("Abrasion")
	moderateBleeding   = "Induced"
)

// Classify maps intake answers to a category. Rules are an ordered cascade:
// the first category whose triggers match wins, and anything unrecognised
// falls through to Category I.
func Classify(e Exposure) Category {
	exposure := strings.TrimSpace(e.TypeOfExposure)
	area := strings.TrimSpace(e.AffectedArea)
	wound := strings.TrimSpace(e.WoundDescription)
	bleeding := strings.TrimSpace(e.BleedingType)
	animal := strings.TrimSpace(e.AnimalStatus)

	if severeExposures[exposure] ||
		severeAreas[area] ||
		severeBleeding[bleeding] ||
		severeWounds[wound] ||
		severeAnimalStatus[animal] {
		return CategoryIII
	}

	if moderateExposures[exposure] ||
		moderateWounds[wound] ||
		bleeding == moderateBleeding {
		return CategoryII
	}

	return CategoryI
}

// Bleeding values produced by BleedingTypeFrom.
const (
	BleedingNone        = "None"
	BleedingSpontaneous = "Spontaneous"
	BleedingInduced     = "Induced"
	BleedingBoth        = "Both spontaneous and induced"
)

// BleedingTypeFrom folds the two yes/no bleeding questions of the intake form
// into the single value the classifier expects.
func BleedingTypeFrom(spontaneous, induced string) string {
	s := strings.TrimSpace(spontaneous) == "Yes"
	i := strings.TrimSpace(induced) == "Yes"
	switch {
	case s && i:
		return BleedingBoth
	case s:
		return BleedingSpontaneous
	case i:
		return BleedingInduced
	default:
		return BleedingNone
	}
}

func set(values ...string) map[string]bool {
	m := make(map[string]bool, len(values))
	for _, v := range values {
		m[v] = true
	}
	return m
}
