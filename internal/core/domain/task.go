package domain

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// TaskForm is the admin task editor payload.
type TaskForm struct {
	ID          string `json:"_id"`
	Title       string `json:"title" validate:"required"`
	Subtitle    string `json:"subtitle" validate:"required"`
	Description string `json:"description" validate:"required"`
	Points      *int   `json:"points" validate:"required,gte=0"`
	Slots       *int   `json:"slots" validate:"required,gte=0"`
}

// FieldErrors maps a form field to its user-facing message.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	parts := make([]string, 0, len(fe))
	for field, msg := range fe {
		parts = append(parts, field+": "+msg)
	}
	return strings.Join(parts, "; ")
}

func (fe FieldErrors) Unwrap() error {
	return ErrValidation
}

var taskLabels = map[string]string{
	"title":       "Title",
	"subtitle":    "Subtitle",
	"description": "Description",
	"points":      "Points",
	"slots":       "Slots",
}

var formValidator = newFormValidator()

func newFormValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidateTaskForm checks every field and returns nil when the form is valid.
func ValidateTaskForm(form TaskForm) FieldErrors {
	form.Title = strings.TrimSpace(form.Title)
	form.Subtitle = strings.TrimSpace(form.Subtitle)
	form.Description = strings.TrimSpace(form.Description)

	err := formValidator.Struct(form)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return FieldErrors{"form": err.Error()}
	}

	out := make(FieldErrors, len(verrs))
	for _, fe := range verrs {
		label := taskLabels[fe.Field()]
		switch fe.Tag() {
		case "required":
			out[fe.Field()] = label + " is required."
		case "gte":
			out[fe.Field()] = fmt.Sprintf("%s must be at least %s.", label, fe.Param())
		default:
			out[fe.Field()] = label + " is invalid."
		}
	}
	return out
}
