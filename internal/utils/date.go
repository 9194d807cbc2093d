package utils

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

type DateFormat string

const (
	FormatISO8601Date DateFormat = "2006-01-02"
	FormatUSDate      DateFormat = "01/02/2006"
	FormatShortUSDate DateFormat = "1/2/2006"
	FormatRFC3339     DateFormat = "2006-01-02T15:04:05Z07:00"
	FormatMonthDay    DateFormat = "January 2, 2006"
	FormatShortMonth  DateFormat = "Jan 2, 2006"
)

var usDatePattern = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)

type DateValidator struct {
	supportedFormats []DateFormat
	now              func() time.Time
}

type ValidationResult struct {
	IsValid        bool
	DetectedFormat DateFormat
	ParsedTime     time.Time
	StandardFormat string
	OriginalValue  string
}

func NewDateValidator() *DateValidator {
	return &DateValidator{
		supportedFormats: []DateFormat{
			FormatISO8601Date,
			FormatUSDate,
			FormatShortUSDate,
			FormatRFC3339,
			FormatMonthDay,
			FormatShortMonth,
		},
		now: time.Now,
	}
}

func (dv *DateValidator) WithClock(now func() time.Time) *DateValidator {
	dv.now = now
	return dv
}

// ValidateAndConvert parses a calendar date and normalizes it to YYYY-MM-DD.
func (dv *DateValidator) ValidateAndConvert(input string) ValidationResult {
	result := ValidationResult{OriginalValue: input}

	input = strings.TrimSpace(input)
	if input == "" {
		return result
	}

	for _, format := range dv.supportedFormats {
		parsedTime, err := time.Parse(string(format), input)
		if err != nil {
			continue
		}
		if (format == FormatUSDate || format == FormatShortUSDate) && !validUSDate(input) {
			continue
		}

		result.IsValid = true
		result.DetectedFormat = format
		result.ParsedTime = parsedTime
		result.StandardFormat = parsedTime.Format(string(FormatISO8601Date))
		return result
	}

	return result
}

// ValidateBirthDate accepts a parseable date that is not in the future.
func (dv *DateValidator) ValidateBirthDate(input string) ValidationResult {
	result := dv.ValidateAndConvert(input)
	if result.IsValid && result.ParsedTime.After(dv.now()) {
		result.IsValid = false
	}
	return result
}

func validUSDate(input string) bool {
	matches := usDatePattern.FindStringSubmatch(input)
	if len(matches) < 4 {
		return false
	}

	month, _ := strconv.Atoi(matches[1])
	day, _ := strconv.Atoi(matches[2])

	return month >= 1 && month <= 12 && day >= 1 && day <= 31
}
