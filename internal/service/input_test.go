package service

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefleet.dev/storefleet/internal/domain"
	apperrors "storefleet.dev/storefleet/internal/pkg/errors"
)

func TestNewValidator_StoreNameRule(t *testing.T) {
	v := newValidator()

	tests := []struct {
		name  string
		value string
		valid bool
	}{
		{"letters and spaces", "Acme Shop", true},
		{"digits and hyphens", "shop-42", true},
		{"punctuation", "Acme!", false},
		{"underscore", "acme_shop", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Var(tt.value, "storename")
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidateCreate_ReturnsBadRequest(t *testing.T) {
	in := &CreateStoreInput{Name: "  x ", AdminEmail: "nope", Plan: domain.PlanWooCommerce}

	err := validateCreate(newValidator(), in)
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)
	assert.Equal(t, "x", in.Name)
	assert.Len(t, appErr.FieldErrors, 2)
}
