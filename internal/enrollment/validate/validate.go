// Package validate implements the step validation gate: a pure predicate per
// wizard step over the form record, plus the per-field validators that back
// field-scoped error reporting.
package validate

import (
	"strings"

	"github.com/asaskevich/govalidator"

	"github.com/Space2024/chitenv/internal/enrollment/models"
	dErrors "github.com/Space2024/chitenv/pkg/domain-errors"
)

const mobileDigits = 10

// IsStepValid reports whether the given step's data is complete and
// consistent. Step 4 is review-only and always valid. It is a pure function:
// remote cross-checks feed in through the CheckState flags, they are not
// triggered here.
func IsStepValid(step int, record *models.FormRecord, check models.CheckState) bool {
	switch step {
	case 1:
		return strings.TrimSpace(record.CustomerTitle) != "" &&
			strings.TrimSpace(record.CustomerName) != "" &&
			isMobile(record.MobileNo) &&
			strings.TrimSpace(record.CustomerType) != "" &&
			strings.TrimSpace(record.Relationship) != "" &&
			!check.Blocked()
	case 2:
		return strings.TrimSpace(record.DoorNo) != "" &&
			strings.TrimSpace(record.Street) != "" &&
			strings.TrimSpace(record.PinCode) != "" &&
			strings.TrimSpace(record.Area) != ""
	case 3:
		return strings.TrimSpace(record.NomineeName) != "" &&
			isMobile(record.NomineeMobile) &&
			record.NomineeMobile != record.MobileNo &&
			record.Photo1 != nil &&
			record.Photo2 != nil
	case 4:
		return true
	}
	return false
}

// Field validates a single scalar field value in the context of the current
// record. Errors are field-scoped and recoverable; they block navigation only.
func Field(field models.FieldName, value string, record *models.FormRecord) error {
	switch field {
	case models.FieldCustomerTitle:
		if value == "" {
			return dErrors.New(dErrors.CodeInvalidInput, "title is required")
		}
		if !models.IsValidTitle(value) {
			return dErrors.New(dErrors.CodeInvalidInput, "invalid title")
		}
	case models.FieldCustomerName:
		if strings.TrimSpace(value) == "" {
			return dErrors.New(dErrors.CodeInvalidInput, "customer name is required")
		}
		if len(strings.TrimSpace(value)) < 2 {
			return dErrors.New(dErrors.CodeInvalidInput, "name must be at least 2 characters")
		}
	case models.FieldMobileNo:
		if value == "" {
			return dErrors.New(dErrors.CodeInvalidInput, "mobile number is required")
		}
		if !isMobile(value) {
			return dErrors.New(dErrors.CodeInvalidInput, "mobile number must be 10 digits")
		}
	case models.FieldEmail:
		if value != "" && !govalidator.IsEmail(value) {
			return dErrors.New(dErrors.CodeInvalidInput, "invalid email format")
		}
	case models.FieldCustomerType:
		if value == "" {
			return dErrors.New(dErrors.CodeInvalidInput, "customer type is required")
		}
		if !models.IsValidCustomerType(value) {
			return dErrors.New(dErrors.CodeInvalidInput, "invalid customer type")
		}
	case models.FieldRelationship:
		if value == "" {
			return dErrors.New(dErrors.CodeInvalidInput, "relationship is required")
		}
		if !models.IsValidRelationship(value) {
			return dErrors.New(dErrors.CodeInvalidInput, "invalid relationship")
		}
	case models.FieldNomineeName:
		if strings.TrimSpace(value) == "" {
			return dErrors.New(dErrors.CodeInvalidInput, "nominee name is required")
		}
		if len(strings.TrimSpace(value)) < 2 {
			return dErrors.New(dErrors.CodeInvalidInput, "name must be at least 2 characters")
		}
	case models.FieldNomineeMobile:
		if value == "" {
			return dErrors.New(dErrors.CodeInvalidInput, "mobile number is required")
		}
		if !isMobile(value) {
			return dErrors.New(dErrors.CodeInvalidInput, "mobile number must be 10 digits")
		}
		// Guards against self-referential nomination.
		if value == record.MobileNo {
			return dErrors.New(dErrors.CodeInvalidInput, "nominee mobile number cannot be same as customer mobile number")
		}
	case models.FieldNomineeRelation:
		if value == "" {
			return dErrors.New(dErrors.CodeInvalidInput, "nominee relation is required")
		}
		if !models.IsValidNomineeRelation(record.Relationship, value) {
			return dErrors.New(dErrors.CodeInvalidInput, "please select a valid relation")
		}
	}
	return nil
}

func isMobile(v string) bool {
	return len(v) == mobileDigits && govalidator.IsNumeric(v)
}
