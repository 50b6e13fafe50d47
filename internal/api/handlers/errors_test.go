package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/hugh/issueflow/internal/apperr"
	"github.com/hugh/issueflow/internal/auth"
	"github.com/hugh/issueflow/internal/integrations"
	"github.com/hugh/issueflow/internal/tenant"
	"github.com/stretchr/testify/assert"
)

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"org not found", tenant.ErrOrganizationNotFound, http.StatusNotFound},
		{"access denied", tenant.ErrAccessDenied, http.StatusForbidden},
		{"slug taken", tenant.ErrSlugTaken, http.StatusConflict},
		{"self modification", tenant.ErrSelfModification, http.StatusBadRequest},
		{"last admin", tenant.ErrLastAdmin, http.StatusBadRequest},
		{"already member", fmt.Errorf("adding: %w", tenant.ErrAlreadyMember), http.StatusConflict},
		{"unknown tenant error", errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, apperr.As(tenantError(tt.err)).Status())
		})
	}

	assert.Equal(t, http.StatusUnauthorized, apperr.As(authError(auth.ErrInvalidCredentials)).Status())
	assert.Equal(t, http.StatusConflict, apperr.As(authError(auth.ErrUserExists)).Status())
	assert.Equal(t, http.StatusForbidden, apperr.As(authError(auth.ErrInactiveUser)).Status())

	cfgErr := apperr.As(integrationError(&integrations.ConfigError{Fields: map[string]string{"url": "url is required"}}))
	assert.Equal(t, http.StatusBadRequest, cfgErr.Status())
	assert.Equal(t, map[string]string{"url": "url is required"}, cfgErr.Details)
}
