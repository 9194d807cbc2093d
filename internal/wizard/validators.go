package wizard

import (
	"fmt"
	"net/mail"
	"regexp"
	"slices"
	"strings"

	"petintake/internal/utils"

	"github.com/shopspring/decimal"
)

var (
	dates        = utils.NewDateValidator()
	otpPattern   = regexp.MustCompile(`^\d{6}$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9 ()\-.]{7,20}$`)
)

const MinPasswordLength = 8

// FieldError is the inline message shown next to the field that blocked a step.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// Validator returns nil when the step may advance.
type Validator func(form Form, otp OTPState) *FieldError

type field struct {
	key   string
	label string
	get   func(Form) string
}

// all runs validators in order and returns the first error.
func all(validators ...Validator) Validator {
	return func(form Form, otp OTPState) *FieldError {
		for _, validate := range validators {
			if err := validate(form, otp); err != nil {
				return err
			}
		}
		return nil
	}
}

func requiredText(f field) Validator {
	return func(form Form, _ OTPState) *FieldError {
		if strings.TrimSpace(f.get(form)) == "" {
			return &FieldError{Field: f.key, Message: f.label + " is required."}
		}
		return nil
	}
}

// requiredChoice accepts any of choices, case-insensitively. With no choices any non-empty
// value is accepted.
func requiredChoice(f field, choices ...string) Validator {
	return func(form Form, _ OTPState) *FieldError {
		value := normalizeChoice(f.get(form))
		if value == "" {
			return &FieldError{Field: f.key, Message: "Please select " + strings.ToLower(f.label) + "."}
		}
		if len(choices) > 0 && !slices.Contains(choices, value) {
			return &FieldError{
				Field:   f.key,
				Message: fmt.Sprintf("%s must be one of: %s.", f.label, strings.Join(choices, ", ")),
			}
		}
		return nil
	}
}

func optionalChoice(f field, choices ...string) Validator {
	required := requiredChoice(f, choices...)
	return func(form Form, otp OTPState) *FieldError {
		if strings.TrimSpace(f.get(form)) == "" {
			return nil
		}
		return required(form, otp)
	}
}

func positiveNumber(f field) Validator {
	return func(form Form, _ OTPState) *FieldError {
		raw := strings.TrimSpace(f.get(form))
		if raw == "" {
			return &FieldError{Field: f.key, Message: f.label + " is required."}
		}
		value, err := decimal.NewFromString(raw)
		if err != nil || !value.IsPositive() {
			return &FieldError{Field: f.key, Message: f.label + " must be a positive number."}
		}
		return nil
	}
}

// optionalDate only checks the format, and only when a value is present.
func optionalDate(f field) Validator {
	return func(form Form, _ OTPState) *FieldError {
		raw := strings.TrimSpace(f.get(form))
		if raw == "" {
			return nil
		}
		if !dates.ValidateBirthDate(raw).IsValid {
			return &FieldError{Field: f.key, Message: f.label + " must be a valid date that is not in the future."}
		}
		return nil
	}
}

func emailAddress(f field) Validator {
	return func(form Form, _ OTPState) *FieldError {
		raw := strings.TrimSpace(f.get(form))
		if raw == "" {
			return &FieldError{Field: f.key, Message: f.label + " is required."}
		}
		address, err := mail.ParseAddress(raw)
		if err != nil || address.Address != raw {
			return &FieldError{Field: f.key, Message: "Please enter a valid email address."}
		}
		local, domain, _ := strings.Cut(address.Address, "@")
		if local == "" || !strings.Contains(domain, ".") {
			return &FieldError{Field: f.key, Message: "Please enter a valid email address."}
		}
		return nil
	}
}

func phoneNumber(f field) Validator {
	return func(form Form, _ OTPState) *FieldError {
		raw := strings.TrimSpace(f.get(form))
		if raw == "" {
			return &FieldError{Field: f.key, Message: f.label + " is required."}
		}
		if !phonePattern.MatchString(raw) {
			return &FieldError{Field: f.key, Message: "Please enter a valid phone number."}
		}
		return nil
	}
}

func password(f field) Validator {
	return func(form Form, _ OTPState) *FieldError {
		if len(f.get(form)) < MinPasswordLength {
			return &FieldError{
				Field:   f.key,
				Message: fmt.Sprintf("Password must be at least %d characters.", MinPasswordLength),
			}
		}
		return nil
	}
}

func VerificationCode() Validator {
	return func(_ Form, otp OTPState) *FieldError {
		if !otpPattern.MatchString(strings.TrimSpace(otp.Code)) {
			return &FieldError{Field: "code", Message: "Enter the 6-digit code we sent you."}
		}
		return nil
	}
}

var (
	fieldName        = field{"name", "Name", func(f Form) string { return f.Name }}
	fieldSpecies     = field{"species", "Species", func(f Form) string { return f.Species }}
	fieldSex         = field{"sex", "Sex", func(f Form) string { return f.Sex }}
	fieldDateOfBirth = field{"dateOfBirth", "Date of birth", func(f Form) string { return f.DateOfBirth }}
	fieldWeight      = field{"weight", "Weight", func(f Form) string { return f.Weight }}
	fieldSpayNeuter  = field{"spayNeuter", "Spay/neuter status", func(f Form) string { return f.SpayNeuter }}
	fieldColor       = field{"color", "Color", func(f Form) string { return f.Color }}
	fieldTemperament = field{"temperament", "Temperament", func(f Form) string { return f.Temperament }}
	fieldOwnerName   = field{"ownerName", "Your name", func(f Form) string { return f.OwnerName }}
	fieldEmail       = field{"email", "Email", func(f Form) string { return f.Email }}
	fieldPhone       = field{"phone", "Phone", func(f Form) string { return f.Phone }}
	fieldPassword    = field{"password", "Password", func(f Form) string { return f.Password }}
)

var (
	SpeciesChoices     = []string{"dog", "cat", "bird", "rabbit", "reptile", "other"}
	SexChoices         = []string{"male", "female", "unknown"}
	SpayNeuterChoices  = []string{"true", "false"}
	TemperamentChoices = []string{"friendly", "shy", "anxious", "aggressive", "unknown"}
)

// IdentityStep validates name, species, sex and the optional date of birth.
func IdentityStep() Validator {
	return all(
		requiredText(fieldName),
		requiredChoice(fieldSpecies, SpeciesChoices...),
		requiredChoice(fieldSex, SexChoices...),
		optionalDate(fieldDateOfBirth),
	)
}

// HealthStep validates weight, spay/neuter status and color.
func HealthStep() Validator {
	return all(
		positiveNumber(fieldWeight),
		requiredChoice(fieldSpayNeuter, SpayNeuterChoices...),
		requiredText(fieldColor),
		optionalDate(fieldDateOfBirth),
	)
}

// SafetyStep has no required fields; temperament is checked only when given.
func SafetyStep() Validator {
	return optionalChoice(fieldTemperament, TemperamentChoices...)
}

func ContactStep() Validator {
	return all(
		requiredText(fieldOwnerName),
		emailAddress(fieldEmail),
		phoneNumber(fieldPhone),
		password(fieldPassword),
	)
}
