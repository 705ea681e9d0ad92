package service

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"storefleet.dev/storefleet/internal/domain"
	apperrors "storefleet.dev/storefleet/internal/pkg/errors"
)

var storeNamePattern = regexp.MustCompile(`^[A-Za-z0-9 -]+$`)

// CreateStoreInput is the request to create a store.
type CreateStoreInput struct {
	Name       string      `json:"name" validate:"required,min=2,max=50,storename"`
	AdminEmail string      `json:"admin_email" validate:"required,email"`
	Plan       domain.Plan `json:"plan"`

	// ClientIP is recorded in the audit log.
	ClientIP string `json:"-"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	err := v.RegisterValidation("storename", func(fl validator.FieldLevel) bool {
		return storeNamePattern.MatchString(fl.Field().String())
	})
	if err != nil {
		panic(fmt.Sprintf("register storename validation: %v", err))
	}
	return v
}

var fieldNames = map[string]string{
	"Name":       "name",
	"AdminEmail": "admin_email",
}

var fieldMessages = map[string]string{
	"required":  "is required",
	"min":       "must be at least 2 characters",
	"max":       "must be at most 50 characters",
	"storename": "can only contain letters, numbers, spaces, and hyphens",
	"email":     "must be a valid email address",
}

// validateCreate checks field rules and returns a VALIDATION_FAILED error
// listing every offending field.
func validateCreate(v *validator.Validate, in *CreateStoreInput) error {
	in.Name = strings.TrimSpace(in.Name)
	in.AdminEmail = strings.TrimSpace(in.AdminEmail)

	var fields []apperrors.FieldError
	if err := v.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return apperrors.Wrap(err, apperrors.CodeValidationFailed, "Request validation failed", http.StatusBadRequest)
		}
		for _, fe := range verrs {
			fields = append(fields, apperrors.FieldError{
				Field:   fieldNames[fe.Field()],
				Code:    fe.Tag(),
				Message: fieldNames[fe.Field()] + " " + fieldMessages[fe.Tag()],
			})
		}
	}
	if len(fields) == 0 && domain.GenerateSlug(in.Name) == "" {
		fields = append(fields, apperrors.FieldError{
			Field:   "name",
			Code:    "storename",
			Message: "name must contain at least one letter or digit",
		})
	}
	if len(fields) > 0 {
		return apperrors.ErrValidation(fields)
	}
	return nil
}
