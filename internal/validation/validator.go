package validation

import (
	"reflect"
	"strings"
	"unicode"

	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a configured validator with the custom "printable" tag registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// report json field names ("recipientName") instead of Go names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// printable rejects control characters in fields that end up in the
	// payment page line item.
	_ = v.RegisterValidation("printable", printable)

	return v
}

func printable(fl validatorv10.FieldLevel) bool {
	for _, r := range fl.Field().String() {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}
