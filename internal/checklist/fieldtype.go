package checklist

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/yazid-hub/GMOA/internal/gmaoerr"
	"github.com/yazid-hub/GMOA/internal/models"
)

// Accepted layouts for calendar field types.
var (
	dateLayouts     = []string{"2006-01-02"}
	timeLayouts     = []string{"15:04", "15:04:05"}
	dateTimeLayouts = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02T15:04:05", "2006-01-02 15:04", "2006-01-02 15:04:05"}
)

// NormalizeValue checks value against the field type of p and returns the
// canonical form to store. Numbers are stored with a dot decimal separator.
func NormalizeValue(p *models.CheckPoint, value string) (string, error) {
	v := strings.TrimSpace(value)
	mismatch := func(reason string) error {
		return &gmaoerr.FieldTypeMismatchError{CheckPointID: p.ID, FieldType: p.FieldType, Value: value, Reason: reason}
	}
	if v == "" {
		return "", mismatch("empty value")
	}

	switch p.FieldType {
	case models.FieldText, models.FieldTextarea, "":
		return v, nil
	case models.FieldNumber:
		if _, err := ParseNumber(v); err != nil {
			return "", mismatch("not a number")
		}
		return strings.Replace(v, ",", ".", 1), nil
	case models.FieldBoolean:
		if v != models.BooleanYes && v != models.BooleanNo {
			return "", mismatch("expected " + models.BooleanYes + " or " + models.BooleanNo)
		}
		return v, nil
	case models.FieldSelect:
		if !slices.Contains([]string(p.Options), v) {
			return "", mismatch("not one of the declared options")
		}
		return v, nil
	case models.FieldDate:
		if !parsesAny(v, dateLayouts) {
			return "", mismatch("expected YYYY-MM-DD")
		}
		return v, nil
	case models.FieldTime:
		if !parsesAny(v, timeLayouts) {
			return "", mismatch("expected HH:MM")
		}
		return v, nil
	case models.FieldDateTime:
		if !parsesAny(v, dateTimeLayouts) {
			return "", mismatch("expected an ISO date and time")
		}
		return v, nil
	default:
		return "", mismatch("unknown field type")
	}
}

// ParseNumber parses a finite decimal number, accepting a comma as decimal
// separator. Hex notation, NaN and infinities are refused.
func ParseNumber(s string) (float64, error) {
	n := strings.Replace(strings.TrimSpace(s), ",", ".", 1)
	if strings.ContainsAny(n, "xX") {
		return 0, fmt.Errorf("%q is not a decimal number", s)
	}
	f, err := strconv.ParseFloat(n, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%q is not a finite number", s)
	}
	return f, nil
}

// ValidFieldType reports whether ft is a known field type.
func ValidFieldType(ft string) bool {
	switch ft {
	case models.FieldText, models.FieldNumber, models.FieldBoolean, models.FieldSelect,
		models.FieldTextarea, models.FieldDate, models.FieldTime, models.FieldDateTime:
		return true
	}
	return false
}

func parsesAny(v string, layouts []string) bool {
	for _, l := range layouts {
		if _, err := time.Parse(l, v); err == nil {
			return true
		}
	}
	return false
}
