package handlers

import (
	"errors"
	"net/http"

	"github.com/hugh/issueflow/internal/api/dto"
	"github.com/hugh/issueflow/internal/api/response"
	"github.com/hugh/issueflow/internal/api/validation"
	"github.com/hugh/issueflow/internal/apperr"
	"github.com/hugh/issueflow/internal/projects"
)

type ProjectHandler struct {
	projects *projects.Service
}

func NewProjectHandler(svc *projects.Service) *ProjectHandler {
	return &ProjectHandler{projects: svc}
}

func projectError(err error) error {
	switch {
	case errors.Is(err, projects.ErrProjectNotFound):
		return apperr.NotFound("Project not found")
	case errors.Is(err, projects.ErrNameRequired):
		return apperr.Validation("Project name is required")
	}
	return apperr.Internal(err)
}

func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	tc, ok := currentTenant(w, r)
	if !ok {
		return
	}

	list, err := h.projects.List(r.Context(), tc.Organization.ID)
	if err != nil {
		response.Error(w, r, projectError(err))
		return
	}

	out := make([]dto.ProjectDTO, len(list))
	for i := range list {
		out[i] = dto.ProjectFromModel(&list[i])
	}
	response.OK(w, out)
}

func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	tc, ok := currentTenant(w, r)
	if !ok {
		return
	}

	var req dto.CreateProjectRequest
	if !decode(w, r, &req) {
		return
	}

	p, err := h.projects.Create(r.Context(), tc.Organization.ID, projects.CreateInput{
		Name:        validation.CleanName(req.Name),
		Description: req.Description,
	})
	if err != nil {
		response.Error(w, r, projectError(err))
		return
	}

	response.Created(w, dto.ProjectFromModel(p), "Project created")
}

func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	tc, ok := currentTenant(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	p, err := h.projects.Get(r.Context(), tc.Organization.ID, id)
	if err != nil {
		response.Error(w, r, projectError(err))
		return
	}
	response.OK(w, dto.ProjectFromModel(p))
}

func (h *ProjectHandler) RotateKey(w http.ResponseWriter, r *http.Request) {
	tc, ok := currentTenant(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	p, err := h.projects.RotateAPIKey(r.Context(), tc.Organization.ID, id)
	if err != nil {
		response.Error(w, r, projectError(err))
		return
	}
	response.OK(w, dto.ProjectFromModel(p))
}

func (h *ProjectHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tc, ok := currentTenant(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.projects.Delete(r.Context(), tc.Organization.ID, id); err != nil {
		response.Error(w, r, projectError(err))
		return
	}
	response.Message(w, "Project deleted")
}
