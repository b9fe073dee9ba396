package validate

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-2fa-confirm/internal/domain"
	"github.com/go-playground/validator/v10"
)

// v is the package-level singleton validator. Field errors are reported
// under their JSON names so clients see the same keys they sent.
var v = func() *validator.Validate {
	val := validator.New(validator.WithRequiredStructEnabled())
	val.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	// methodkind accepts any spelling domain.ParseMethodKind accepts.
	_ = val.RegisterValidation("methodkind", func(fl validator.FieldLevel) bool {
		_, err := domain.ParseMethodKind(fl.Field().String())
		return err == nil
	})
	return val
}()

// Struct validates the given struct using its validate tags.
// The returned error wraps domain.ErrBadRequest and never echoes field values.
func Struct(s interface{}) error {
	if err := v.Struct(s); err != nil {
		ve, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}
		var msgs []string
		for _, fe := range ve {
			msgs = append(msgs, fmt.Sprintf("field '%s' failed '%s'", fe.Field(), fe.Tag()))
		}
		return fmt.Errorf("%s: %w", strings.Join(msgs, "; "), domain.ErrBadRequest)
	}
	return nil
}
