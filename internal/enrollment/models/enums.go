package models

import "strings"

// Customer titles accepted on step 1.
var Titles = []string{"Mr.", "Ms.", "Mrs."}

// Customer types accepted on step 1.
const (
	CustomerTypeNew      = "NewCustomer"
	CustomerTypeExisting = "ExistingCustomer"
)

// Relationships accepted on step 1, stored lowercase.
var Relationships = []string{
	"myself", "father", "mother", "brother", "sister", "spouse", "son", "daughter",
}

// RelationshipSkipsChitCheck reports whether the duplicate-chit check is
// skipped for this relationship. Minors enrolled under a guardian are exempt
// from duplicate-chit blocking; the parent's own record governs.
func RelationshipSkipsChitCheck(relationship string) bool {
	switch strings.ToLower(relationship) {
	case "son", "daughter":
		return true
	}
	return false
}

// IsValidTitle reports whether the title is one of the accepted values.
func IsValidTitle(title string) bool {
	for _, t := range Titles {
		if t == title {
			return true
		}
	}
	return false
}

// IsValidRelationship reports whether the relationship is in the accepted set.
func IsValidRelationship(relationship string) bool {
	rel := strings.ToLower(relationship)
	for _, r := range Relationships {
		if r == rel {
			return true
		}
	}
	return false
}

// IsValidCustomerType reports whether the customer type is accepted.
func IsValidCustomerType(t string) bool {
	return t == CustomerTypeNew || t == CustomerTypeExisting
}

// NomineeRelationsFor returns the nominee relations selectable given the step-1
// relationship: enrolling for oneself allows the full family set, enrolling on
// a relative's behalf restricts the nominee to the enrolling customer.
func NomineeRelationsFor(relationship string) []string {
	if strings.ToLower(relationship) == "myself" {
		return []string{"Spouse", "Father", "Mother", "Brother", "Sister", "Son", "Daughter"}
	}
	return []string{"Myself"}
}

// IsValidNomineeRelation reports whether the nominee relation is selectable
// for the given step-1 relationship.
func IsValidNomineeRelation(relationship, nomineeRelation string) bool {
	for _, r := range NomineeRelationsFor(relationship) {
		if r == nomineeRelation {
			return true
		}
	}
	return false
}
