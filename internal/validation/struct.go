package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/seokit/internal/model"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator は `validate` タグによる構造体検証器を返す。
// 標準タグに加えて domain と keyword を登録済み。
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
		_ = v.RegisterValidation("domain", func(fl validator.FieldLevel) bool {
			return IsValidDomain(fl.Field().String())
		})
		_ = v.RegisterValidation("keyword", func(fl validator.FieldLevel) bool {
			_, err := ValidateKeyword(fl.Field().String())
			return err == nil
		})
		validate = v
	})
	return validate
}

// Struct は構造体を検証し、最初の違反を*model.ValidationErrorとして返す。
func Struct(s any) error {
	err := Validator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("validate: %w", err)
	}

	fe := fieldErrs[0]
	return &model.ValidationError{Field: fe.Field(), Message: fieldMessage(fe)}
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return "Invalid email format"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "domain":
		return fmt.Sprintf("Invalid domain format: %v", fe.Value())
	case "keyword":
		return fmt.Sprintf("Invalid keyword: %v", fe.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "eqfield":
		return fmt.Sprintf("%s must match %s", field, fe.Param())
	case "nefield":
		return fmt.Sprintf("%s must differ from %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
