package middleware

import (
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var setupOnce sync.Once

// SetupValidator registers JSON field names and the decimal rules on gin's
// validator:
//
//	dgt=0     strictly greater than the parameter
//	dgte=0    greater than or equal
//	dlte=100  less than or equal
//
// Decimals are validated through their string form.
func SetupValidator() {
	setupOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
			}
			return name
		})
		v.RegisterCustomTypeFunc(func(field reflect.Value) any {
			if d, ok := field.Interface().(decimal.Decimal); ok {
				return d.String()
			}
			return nil
		}, decimal.Decimal{})
		_ = v.RegisterValidation("dgt", compareDecimal(func(c int) bool { return c > 0 }))
		_ = v.RegisterValidation("dgte", compareDecimal(func(c int) bool { return c >= 0 }))
		_ = v.RegisterValidation("dlte", compareDecimal(func(c int) bool { return c <= 0 }))
	})
}

func compareDecimal(ok func(cmp int) bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		bound, err := decimal.NewFromString(fl.Param())
		if err != nil {
			return false
		}
		value, err := decimal.NewFromString(fl.Field().String())
		if err != nil {
			return false
		}
		return ok(value.Cmp(bound))
	}
}

// ValidationMessage turns a field error into a readable message
func ValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "min":
		if e.Kind() == reflect.String {
			return "Must be at least " + e.Param() + " characters"
		}
		return "Must be at least " + e.Param()
	case "max":
		if e.Kind() == reflect.String {
			return "Must be at most " + e.Param() + " characters"
		}
		return "Must be at most " + e.Param()
	case "oneof":
		return "Must be one of: " + e.Param()
	case "uuid":
		return "Invalid UUID format"
	case "dgt":
		return "Must be greater than " + e.Param()
	case "dgte":
		return "Must be greater than or equal to " + e.Param()
	case "dlte":
		return "Must be less than or equal to " + e.Param()
	default:
		return "Invalid value"
	}
}
