package wizard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHealthStep_Weight(t *testing.T) {
	validate := HealthStep()
	base := Form{SpayNeuter: "true", Color: "brown"}

	for _, weight := range []string{"4.5", "12", "0.01", " 7 "} {
		form := base
		form.Weight = weight
		assert.Nil(t, validate(form, OTPState{}), weight)
	}

	for _, weight := range []string{"-1", "0", "0.00", "", "abc", "4.5kg", "-0.1"} {
		form := base
		form.Weight = weight
		err := validate(form, OTPState{})
		if assert.NotNil(t, err, weight) {
			assert.Equal(t, "weight", err.Field)
		}
	}
}

func TestHealthStep_RequiredFields(t *testing.T) {
	validate := HealthStep()

	err := validate(Form{Weight: "4.5", Color: "brown"}, OTPState{})
	if assert.NotNil(t, err) {
		assert.Equal(t, "spayNeuter", err.Field)
	}

	err = validate(Form{Weight: "4.5", SpayNeuter: "maybe", Color: "brown"}, OTPState{})
	if assert.NotNil(t, err) {
		assert.Equal(t, "spayNeuter", err.Field)
	}

	err = validate(Form{Weight: "4.5", SpayNeuter: "False", Color: "   "}, OTPState{})
	if assert.NotNil(t, err) {
		assert.Equal(t, "color", err.Field)
	}
}

func TestIdentityStep(t *testing.T) {
	validate := IdentityStep()
	valid := Form{Name: "Milo", Species: "cat", Sex: "female"}

	assert.Nil(t, validate(valid, OTPState{}))

	testCases := []struct {
		name  string
		edit  func(*Form)
		field string
	}{
		{"blank name", func(f *Form) { f.Name = " \t " }, "name"},
		{"missing species", func(f *Form) { f.Species = "" }, "species"},
		{"unknown species", func(f *Form) { f.Species = "dragon" }, "species"},
		{"missing sex", func(f *Form) { f.Sex = "" }, "sex"},
		{"bad date of birth", func(f *Form) { f.DateOfBirth = "last spring" }, "dateOfBirth"},
		{"future date of birth", func(f *Form) {
			f.DateOfBirth = time.Now().AddDate(1, 0, 0).Format("2006-01-02")
		}, "dateOfBirth"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			form := valid
			tc.edit(&form)
			err := validate(form, OTPState{})
			if assert.NotNil(t, err) {
				assert.Equal(t, tc.field, err.Field)
				assert.NotEmpty(t, err.Message)
			}
		})
	}
}

func TestDateOfBirthIsOptional(t *testing.T) {
	form := Form{Name: "Milo", Species: "dog", Sex: "male", Weight: "3", SpayNeuter: "false", Color: "black"}

	assert.Nil(t, IdentityStep()(form, OTPState{}))
	assert.Nil(t, HealthStep()(form, OTPState{}))

	form.DateOfBirth = "2020-01-01"
	assert.Nil(t, IdentityStep()(form, OTPState{}))
}

func TestSafetyStep(t *testing.T) {
	validate := SafetyStep()
	assert.Nil(t, validate(Form{}, OTPState{}))
	assert.Nil(t, validate(Form{Temperament: "Shy"}, OTPState{}))
	assert.NotNil(t, validate(Form{Temperament: "grumpy"}, OTPState{}))
}

func TestVerificationCode(t *testing.T) {
	validate := VerificationCode()
	assert.Nil(t, validate(Form{}, OTPState{Code: "004211"}))
	assert.NotNil(t, validate(Form{}, OTPState{Code: "4211"}))
	assert.NotNil(t, validate(Form{}, OTPState{Code: "abcdef"}))
	assert.NotNil(t, validate(Form{}, OTPState{}))
}

func TestFormPatchApplyLeavesUnsetFields(t *testing.T) {
	form := Form{Name: "Milo", Weight: "4.5"}
	FormPatch{Color: ptr("brown"), Name: ptr("")}.Apply(&form)

	assert.Equal(t, "", form.Name)
	assert.Equal(t, "4.5", form.Weight)
	assert.Equal(t, "brown", form.Color)
}

func TestOTPState_RemainingSeconds(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	otp := OTPState{CooldownUntil: now.Add(1500 * time.Millisecond)}

	assert.True(t, otp.CoolingDown(now))
	assert.Equal(t, 2, otp.RemainingSeconds(now))
	assert.Equal(t, 0, otp.RemainingSeconds(now.Add(2*time.Second)))
}
