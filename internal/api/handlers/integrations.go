package handlers

import (
	"errors"
	"net/http"

	"github.com/hugh/issueflow/internal/api/dto"
	"github.com/hugh/issueflow/internal/api/response"
	"github.com/hugh/issueflow/internal/api/validation"
	"github.com/hugh/issueflow/internal/apperr"
	"github.com/hugh/issueflow/internal/database/models"
	"github.com/hugh/issueflow/internal/integrations"
)

// maxDeliveryErrorLength caps transport errors echoed back to admins.
const maxDeliveryErrorLength = 200

type IntegrationHandler struct {
	integrations *integrations.Service
}

func NewIntegrationHandler(svc *integrations.Service) *IntegrationHandler {
	return &IntegrationHandler{integrations: svc}
}

func integrationError(err error) error {
	var ce *integrations.ConfigError
	switch {
	case errors.As(err, &ce):
		return apperr.Validation("Invalid integration config").WithDetails(ce.Fields)
	case errors.Is(err, integrations.ErrIntegrationNotFound):
		return apperr.NotFound("Integration not found")
	case errors.Is(err, integrations.ErrInvalidType):
		return apperr.Validation("Unsupported integration type")
	case errors.Is(err, integrations.ErrNameRequired):
		return apperr.Validation("Integration name is required")
	case errors.Is(err, integrations.ErrTestUnsupported):
		return apperr.Validation("Test delivery is only available for webhook and Slack integrations")
	}
	return apperr.Internal(err)
}

func (h *IntegrationHandler) toDTO(in *models.Integration) (dto.IntegrationDTO, error) {
	keys, err := h.integrations.ConfigKeys(in)
	if err != nil {
		return dto.IntegrationDTO{}, err
	}
	return dto.IntegrationFromModel(in, keys), nil
}

func (h *IntegrationHandler) List(w http.ResponseWriter, r *http.Request) {
	tc, ok := currentTenant(w, r)
	if !ok {
		return
	}

	list, err := h.integrations.List(r.Context(), tc.Organization.ID)
	if err != nil {
		response.Error(w, r, integrationError(err))
		return
	}

	out := make([]dto.IntegrationDTO, 0, len(list))
	for i := range list {
		item, err := h.toDTO(&list[i])
		if err != nil {
			response.Error(w, r, apperr.Internal(err))
			return
		}
		out = append(out, item)
	}
	response.OK(w, out)
}

func (h *IntegrationHandler) Create(w http.ResponseWriter, r *http.Request) {
	tc, ok := currentTenant(w, r)
	if !ok {
		return
	}

	var req dto.CreateIntegrationRequest
	if !decode(w, r, &req) {
		return
	}

	in, err := h.integrations.Create(r.Context(), tc.Organization.ID, integrations.CreateInput{
		Type:   req.Type,
		Name:   validation.CleanName(req.Name),
		Config: req.Config,
	})
	if err != nil {
		response.Error(w, r, integrationError(err))
		return
	}

	out, err := h.toDTO(in)
	if err != nil {
		response.Error(w, r, apperr.Internal(err))
		return
	}
	response.Created(w, out, "Integration created")
}

func (h *IntegrationHandler) Update(w http.ResponseWriter, r *http.Request) {
	tc, ok := currentTenant(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req dto.UpdateIntegrationRequest
	if !decode(w, r, &req) {
		return
	}

	in, err := h.integrations.SetEnabled(r.Context(), tc.Organization.ID, id, *req.Enabled)
	if err != nil {
		response.Error(w, r, integrationError(err))
		return
	}

	out, err := h.toDTO(in)
	if err != nil {
		response.Error(w, r, apperr.Internal(err))
		return
	}
	response.OK(w, out)
}

// Test sends a test message through the integration. A failed delivery is
// still a 200; the result says what the endpoint answered.
func (h *IntegrationHandler) Test(w http.ResponseWriter, r *http.Request) {
	tc, ok := currentTenant(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	result, err := h.integrations.SendTest(r.Context(), tc.Organization.ID, id)
	if err != nil {
		response.Error(w, r, integrationError(err))
		return
	}
	result.Error = validation.Truncate(result.Error, maxDeliveryErrorLength)
	response.OK(w, result)
}

func (h *IntegrationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tc, ok := currentTenant(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.integrations.Delete(r.Context(), tc.Organization.ID, id); err != nil {
		response.Error(w, r, integrationError(err))
		return
	}
	response.Message(w, "Integration deleted")
}
