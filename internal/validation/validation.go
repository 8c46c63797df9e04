// Package validation checks request DTOs with go-playground/validator and
// reports failures as ledger validation errors.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	apperrors "walletledger/internal/errors"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

const (
	MaxNarrationLength = 200
	MaxReasonLength    = 500
)

var (
	pinPattern     = regexp.MustCompile(`^\d{4}$`)
	accountPattern = regexp.MustCompile(`^\d{10}$`)
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// decimal.Decimal compares as a string so gt/lte tags can't be used;
	// the "money" tag covers amounts instead.
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("pin", func(fl validator.FieldLevel) bool {
		return pinPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("account", func(fl validator.FieldLevel) bool {
		return accountPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("money", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		return err == nil && d.IsPositive() && d.Equal(d.Round(2))
	})
	return v
}

// Struct validates s and returns an ErrValidation listing every failed
// field, or nil.
func Struct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	msgs := FormatErrors(err)
	if len(msgs) == 0 {
		return apperrors.Wrap(apperrors.ErrValidation, "%v", err)
	}
	return apperrors.Wrap(apperrors.ErrValidation, "%s", strings.Join(msgs, "; "))
}

func FormatErrors(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make([]string, 0, len(verrs))
	for _, e := range verrs {
		field := e.Field()
		switch e.Tag() {
		case "required":
			out = append(out, fmt.Sprintf("%s is required", field))
		case "email":
			out = append(out, fmt.Sprintf("%s must be a valid email", field))
		case "pin":
			out = append(out, fmt.Sprintf("%s must be exactly 4 digits", field))
		case "account":
			out = append(out, fmt.Sprintf("%s must be a 10 digit account number", field))
		case "money":
			out = append(out, fmt.Sprintf("%s must be a positive amount with at most two decimal places", field))
		case "max":
			out = append(out, fmt.Sprintf("%s must be at most %s characters", field, e.Param()))
		case "oneof":
			out = append(out, fmt.Sprintf("%s must be one of %s", field, e.Param()))
		default:
			out = append(out, fmt.Sprintf("%s is invalid (%s)", field, e.Tag()))
		}
	}
	return out
}
