package usecase

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"license-activation-service/internal/domain"
)

var inputValidator = newInputValidator()

func newInputValidator() *validator.Validate {
	v := validator.New()
	// Report wire names so messages match what the client sent.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// checkInput enforces presence and size bounds. Any violation is invalid_format.
func checkInput(in any) error {
	err := inputValidator.Struct(in)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return domain.WrapServerError(err, "input validation failed")
	}
	fe := ve[0]
	switch fe.Tag() {
	case "required":
		return domain.NewError(domain.KindInvalidFormat, fmt.Sprintf("%s is required", fe.Field()))
	case "max":
		return domain.NewError(domain.KindInvalidFormat, fmt.Sprintf("%s exceeds %s characters", fe.Field(), fe.Param()))
	default:
		return domain.NewError(domain.KindInvalidFormat, fmt.Sprintf("%s is invalid", fe.Field()))
	}
}
