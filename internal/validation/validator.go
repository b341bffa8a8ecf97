// Package validation checks user-supplied engagement and chat input using
// go-playground/validator and reports failures as VALIDATION_ERROR AppErrors.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"vibefeed/internal/models"

	"github.com/go-playground/validator/v10"
)

// Text limits, counted in characters.
const (
	MaxCommentLength = 500
	MaxMessageLength = 2000
	MaxPostLength    = 5000
	MaxChatIDLength  = 128
)

var chatIDRegex = regexp.MustCompile(`^[A-Za-z0-9_.:-]+$`)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validator returns the shared validator instance.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "" || name == "-" {
				return f.Name
			}
			return name
		})
		_ = validate.RegisterValidation("chatid", func(fl validator.FieldLevel) bool {
			return chatIDRegex.MatchString(fl.Field().String())
		})
	})
	return validate
}

// Struct validates s and returns nil or a VALIDATION_ERROR AppError naming
// the first failing field.
func Struct(s interface{}) error {
	err := Validator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return models.NewValidationError(err.Error())
	}
	return models.NewValidationError(translate(fieldErrs[0]))
}

// ChatID trims id and checks it against the rules chat sends use, so joins
// and sends agree on the room name.
func ChatID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if err := Validator().Var(id, fmt.Sprintf("required,max=%d,chatid", MaxChatIDLength)); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return "", models.NewValidationError(describe("chatId", fieldErrs[0]))
		}
		return "", models.NewValidationError(err.Error())
	}
	return id, nil
}

// Reaction validates that kind may be used on target.
func Reaction(kind models.ReactionKind, target models.TargetKind) error {
	if kind.AllowedOn(target) {
		return nil
	}
	return models.NewValidationError(fmt.Sprintf("reaction %q is not allowed on a %s", kind, target))
}

func translate(fe validator.FieldError) string {
	return describe(fe.Field(), fe)
}

func describe(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "chatid":
		return fmt.Sprintf("%s may only contain letters, digits and . _ : -", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
