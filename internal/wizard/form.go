package wizard

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Form accumulates every field entered across the wizard. It is only ever fully cleared by
// Machine.Reset.
type Form struct {
	Name        string `json:"name"`
	Species     string `json:"species"`
	Breed       string `json:"breed"`
	Sex         string `json:"sex"`
	DateOfBirth string `json:"dateOfBirth"`
	Microchip   string `json:"microchip"`

	Weight      string `json:"weight"`
	SpayNeuter  string `json:"spayNeuter"`
	Color       string `json:"color"`
	Allergies   string `json:"allergies"`
	Medications string `json:"medications"`
	Conditions  string `json:"conditions"`

	Temperament         string `json:"temperament"`
	EmergencyContact    string `json:"emergencyContact"`
	VetClinic           string `json:"vetClinic"`
	SpecialInstructions string `json:"specialInstructions"`

	OwnerName string `json:"ownerName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`

	Password string `json:"password,omitempty"`
}

// Redacted returns a copy safe to hand to the UI or a cache.
func (f Form) Redacted() Form {
	f.Password = ""
	return f
}

// FormPatch carries a partial update. Nil fields are left untouched.
type FormPatch struct {
	Name        *string `json:"name"`
	Species     *string `json:"species"`
	Breed       *string `json:"breed"`
	Sex         *string `json:"sex"`
	DateOfBirth *string `json:"dateOfBirth"`
	Microchip   *string `json:"microchip"`

	Weight      *string `json:"weight"`
	SpayNeuter  *string `json:"spayNeuter"`
	Color       *string `json:"color"`
	Allergies   *string `json:"allergies"`
	Medications *string `json:"medications"`
	Conditions  *string `json:"conditions"`

	Temperament         *string `json:"temperament"`
	EmergencyContact    *string `json:"emergencyContact"`
	VetClinic           *string `json:"vetClinic"`
	SpecialInstructions *string `json:"specialInstructions"`

	OwnerName *string `json:"ownerName"`
	Email     *string `json:"email"`
	Phone     *string `json:"phone"`

	Password *string `json:"password"`
}

func (p FormPatch) Apply(form *Form) {
	fields := []struct {
		value *string
		dest  *string
	}{
		{p.Name, &form.Name},
		{p.Species, &form.Species},
		{p.Breed, &form.Breed},
		{p.Sex, &form.Sex},
		{p.DateOfBirth, &form.DateOfBirth},
		{p.Microchip, &form.Microchip},
		{p.Weight, &form.Weight},
		{p.SpayNeuter, &form.SpayNeuter},
		{p.Color, &form.Color},
		{p.Allergies, &form.Allergies},
		{p.Medications, &form.Medications},
		{p.Conditions, &form.Conditions},
		{p.Temperament, &form.Temperament},
		{p.EmergencyContact, &form.EmergencyContact},
		{p.VetClinic, &form.VetClinic},
		{p.SpecialInstructions, &form.SpecialInstructions},
		{p.OwnerName, &form.OwnerName},
		{p.Email, &form.Email},
		{p.Phone, &form.Phone},
		{p.Password, &form.Password},
	}

	for _, field := range fields {
		if field.value != nil {
			*field.dest = *field.value
		}
	}
}

// PetDraft is the creation payload derived from a validated form.
type PetDraft struct {
	Name                string           `json:"name"`
	Species             string           `json:"species"`
	Breed               string           `json:"breed,omitempty"`
	Sex                 string           `json:"sex"`
	DateOfBirth         string           `json:"dateOfBirth,omitempty"`
	Microchip           string           `json:"microchip,omitempty"`
	Weight              *decimal.Decimal `json:"weight,omitempty"`
	SpayNeuter          *bool            `json:"spayNeuter,omitempty"`
	Color               string           `json:"color,omitempty"`
	Allergies           string           `json:"allergies,omitempty"`
	Medications         string           `json:"medications,omitempty"`
	Conditions          string           `json:"conditions,omitempty"`
	Temperament         string           `json:"temperament,omitempty"`
	EmergencyContact    string           `json:"emergencyContact,omitempty"`
	VetClinic           string           `json:"vetClinic,omitempty"`
	SpecialInstructions string           `json:"specialInstructions,omitempty"`
}

func (f Form) Draft() PetDraft {
	draft := PetDraft{
		Name:                strings.TrimSpace(f.Name),
		Species:             normalizeChoice(f.Species),
		Breed:               strings.TrimSpace(f.Breed),
		Sex:                 normalizeChoice(f.Sex),
		Microchip:           strings.TrimSpace(f.Microchip),
		Color:               strings.TrimSpace(f.Color),
		Allergies:           strings.TrimSpace(f.Allergies),
		Medications:         strings.TrimSpace(f.Medications),
		Conditions:          strings.TrimSpace(f.Conditions),
		Temperament:         normalizeChoice(f.Temperament),
		EmergencyContact:    strings.TrimSpace(f.EmergencyContact),
		VetClinic:           strings.TrimSpace(f.VetClinic),
		SpecialInstructions: strings.TrimSpace(f.SpecialInstructions),
	}

	if result := dates.ValidateBirthDate(f.DateOfBirth); result.IsValid {
		draft.DateOfBirth = result.StandardFormat
	}
	if weight, err := decimal.NewFromString(strings.TrimSpace(f.Weight)); err == nil && weight.IsPositive() {
		draft.Weight = &weight
	}
	switch normalizeChoice(f.SpayNeuter) {
	case "true":
		value := true
		draft.SpayNeuter = &value
	case "false":
		value := false
		draft.SpayNeuter = &value
	}

	return draft
}

// Registration is the account payload sent when the full intake leaves the contact step.
type Registration struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

func (f Form) Registration() Registration {
	return Registration{
		Name:     strings.TrimSpace(f.OwnerName),
		Email:    strings.TrimSpace(f.Email),
		Phone:    strings.TrimSpace(f.Phone),
		Password: f.Password,
	}
}

func normalizeChoice(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
