package models

import (
	"strings"

	dErrors "github.com/Space2024/chitenv/pkg/domain-errors"
)

// PhotoSlot names one of the two image slots on the KYC step.
type PhotoSlot string

const (
	SlotPhoto1 PhotoSlot = "photo1" // customer photograph
	SlotPhoto2 PhotoSlot = "photo2" // ID proof
)

// ParsePhotoSlot validates a slot name from the transport layer.
func ParsePhotoSlot(s string) (PhotoSlot, error) {
	slot := PhotoSlot(s)
	if slot != SlotPhoto1 && slot != SlotPhoto2 {
		return "", dErrors.Newf(dErrors.CodeBadRequest, "unknown photo slot %q", s)
	}
	return slot, nil
}

// ImageAsset is the metadata of a captured or uploaded photograph. The encoded
// bytes live in the asset store; the form record carries the value by metadata
// only, so deleting a slot clears the sizes along with the reference.
type ImageAsset struct {
	Slot               PhotoSlot `json:"slot"`
	ContentType        string    `json:"contentType"`
	OriginalByteSize   int       `json:"originalByteSize"`
	CompressedByteSize int       `json:"compressedByteSize"`
}

// FormRecord is the wizard's working copy of the enrollment form. It is owned
// exclusively by the wizard session for its lifetime and reset to Empty() on
// successful completion. Field names mirror the upstream submission contract.
type FormRecord struct {
	CustomerTitle string `json:"customerTitle"`
	CustomerName  string `json:"customerName"`
	MobileNo      string `json:"mobileNo"`
	Relationship  string `json:"relationship"`
	CustomerType  string `json:"CustomerType"`
	DateOfBirth   string `json:"dateOfBirth,omitempty"`
	Email         string `json:"email,omitempty"`
	Professional  string `json:"professional,omitempty"`

	DoorNo  string `json:"doorNo"`
	Street  string `json:"street"`
	PinCode string `json:"pinCode"`
	Area    string `json:"area"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Taluk   string `json:"taluk,omitempty"`

	PurchaseWithSKTM string `json:"purchase_with_sktm"`
	PurchaseWithTCS  string `json:"purchase_with_tcs"`
	SCMGarments      string `json:"scm_garments"`
	ChitWithSKTM     string `json:"chit_with_sktm"`

	NomineeName     string `json:"nomineeName"`
	NomineeRelation string `json:"nomineeRelation"`
	NomineeMobile   string `json:"nomineeMobile"`

	Photo1 *ImageAsset `json:"photo1,omitempty"`
	Photo2 *ImageAsset `json:"photo2,omitempty"`
}

// Empty returns the canonical empty record. The existing-customer flags
// default to "No" rather than blank so the upstream contract never sees an
// absent value.
func Empty() FormRecord {
	return FormRecord{
		PurchaseWithSKTM: "No",
		PurchaseWithTCS:  "No",
		SCMGarments:      "No",
		ChitWithSKTM:     "No",
	}
}

// Photo returns the asset in the given slot, or nil.
func (r *FormRecord) Photo(slot PhotoSlot) *ImageAsset {
	if slot == SlotPhoto1 {
		return r.Photo1
	}
	return r.Photo2
}

// SetPhoto stores or clears (asset == nil) the asset in the given slot.
func (r *FormRecord) SetPhoto(slot PhotoSlot, asset *ImageAsset) {
	if slot == SlotPhoto1 {
		r.Photo1 = asset
		return
	}
	r.Photo2 = asset
}

// Scalars returns the record's scalar fields keyed by their wire names, in the
// shape the multipart submission expects. Image assets are excluded.
func (r *FormRecord) Scalars() map[string]string {
	return map[string]string{
		"customerTitle":      r.CustomerTitle,
		"customerName":       r.CustomerName,
		"mobileNo":           r.MobileNo,
		"relationship":       r.Relationship,
		"CustomerType":       r.CustomerType,
		"dateOfBirth":        r.DateOfBirth,
		"email":              r.Email,
		"professional":       r.Professional,
		"doorNo":             r.DoorNo,
		"street":             r.Street,
		"pinCode":            r.PinCode,
		"area":               r.Area,
		"city":               r.City,
		"state":              r.State,
		"taluk":              r.Taluk,
		"purchase_with_sktm": r.PurchaseWithSKTM,
		"purchase_with_tcs":  r.PurchaseWithTCS,
		"scm_garments":       r.SCMGarments,
		"chit_with_sktm":     r.ChitWithSKTM,
		"nomineeName":        r.NomineeName,
		"nomineeRelation":    r.NomineeRelation,
		"nomineeMobile":      r.NomineeMobile,
	}
}

// FieldName is the closed set of scalar fields the transport layer may write.
// Photos go through the image pipeline, never through Set.
type FieldName string

const (
	FieldCustomerTitle    FieldName = "customerTitle"
	FieldCustomerName     FieldName = "customerName"
	FieldMobileNo         FieldName = "mobileNo"
	FieldRelationship     FieldName = "relationship"
	FieldCustomerType     FieldName = "CustomerType"
	FieldDateOfBirth      FieldName = "dateOfBirth"
	FieldEmail            FieldName = "email"
	FieldProfessional     FieldName = "professional"
	FieldDoorNo           FieldName = "doorNo"
	FieldStreet           FieldName = "street"
	FieldPinCode          FieldName = "pinCode"
	FieldArea             FieldName = "area"
	FieldCity             FieldName = "city"
	FieldState            FieldName = "state"
	FieldTaluk            FieldName = "taluk"
	FieldPurchaseWithSKTM FieldName = "purchase_with_sktm"
	FieldPurchaseWithTCS  FieldName = "purchase_with_tcs"
	FieldSCMGarments      FieldName = "scm_garments"
	FieldChitWithSKTM     FieldName = "chit_with_sktm"
	FieldNomineeName      FieldName = "nomineeName"
	FieldNomineeRelation  FieldName = "nomineeRelation"
	FieldNomineeMobile    FieldName = "nomineeMobile"
)

// Set writes one scalar field. Unknown field names are rejected; there is no
// dynamic escape hatch. Relationship values are normalized to lowercase.
func (r *FormRecord) Set(field FieldName, value string) error {
	switch field {
	case FieldCustomerTitle:
		r.CustomerTitle = value
	case FieldCustomerName:
		r.CustomerName = value
	case FieldMobileNo:
		r.MobileNo = value
	case FieldRelationship:
		r.Relationship = strings.ToLower(value)
	case FieldCustomerType:
		r.CustomerType = value
	case FieldDateOfBirth:
		r.DateOfBirth = value
	case FieldEmail:
		r.Email = value
	case FieldProfessional:
		r.Professional = value
	case FieldDoorNo:
		r.DoorNo = value
	case FieldStreet:
		r.Street = value
	case FieldPinCode:
		r.PinCode = value
	case FieldArea:
		r.Area = value
	case FieldCity:
		r.City = value
	case FieldState:
		r.State = value
	case FieldTaluk:
		r.Taluk = value
	case FieldPurchaseWithSKTM:
		r.PurchaseWithSKTM = value
	case FieldPurchaseWithTCS:
		r.PurchaseWithTCS = value
	case FieldSCMGarments:
		r.SCMGarments = value
	case FieldChitWithSKTM:
		r.ChitWithSKTM = value
	case FieldNomineeName:
		r.NomineeName = value
	case FieldNomineeRelation:
		r.NomineeRelation = value
	case FieldNomineeMobile:
		r.NomineeMobile = value
	default:
		return dErrors.Newf(dErrors.CodeBadRequest, "unknown form field %q", field)
	}
	return nil
}
