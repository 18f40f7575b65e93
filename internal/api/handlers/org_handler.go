package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	middleware "github.com/markdave123-py/Polibase/internal/api/middlewares"
	"github.com/markdave123-py/Polibase/internal/core"
	"github.com/markdave123-py/Polibase/internal/models"
)

type OrgHandler struct {
	store core.TenantStore
}

func NewOrgHandler(store core.TenantStore) *OrgHandler {
	return &OrgHandler{store: store}
}

type createOrgRequest struct {
	Name string `json:"name"`
}

// Create makes a new organization and gives the creator the admin role.
func (h *OrgHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req createOrgRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		http.Error(w, "name required", http.StatusBadRequest)
		return
	}

	org := &models.Organization{
		ID:        uuid.NewString(),
		Name:      req.Name,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.CreateOrganization(r.Context(), org); err != nil {
		http.Error(w, "could not create organization", http.StatusInternalServerError)
		return
	}

	m := &models.Membership{
		UserID:         userID,
		OrganizationID: org.ID,
		Role:           models.RoleAdmin,
		CreatedAt:      org.CreatedAt,
	}
	if err := h.store.UpsertMembership(r.Context(), m); err != nil {
		http.Error(w, "could not create membership", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, org)
}

func (h *OrgHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID, _ := middleware.OrgID(r.Context())
	org, err := h.store.GetOrganization(r.Context(), orgID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			http.Error(w, "organization not found", http.StatusNotFound)
			return
		}
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, org)
}

type addMemberRequest struct {
	Email string      `json:"email"`
	Role  models.Role `json:"role"`
}

// AddMember adds (or re-roles) a user in the scoped organization.
func (h *OrgHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	orgID, _ := middleware.OrgID(r.Context())

	var req addMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if !models.ValidRole(req.Role) {
		http.Error(w, "invalid role", http.StatusBadRequest)
		return
	}

	user, err := h.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}

	m := &models.Membership{
		UserID:         user.ID,
		OrganizationID: orgID,
		Role:           req.Role,
		CreatedAt:      time.Now().UTC(),
	}
	if err := h.store.UpsertMembership(r.Context(), m); err != nil {
		http.Error(w, "could not add member", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, m)
}
