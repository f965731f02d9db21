package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/studentfolio/studentfolio/internal/apperror"
	"github.com/studentfolio/studentfolio/internal/auth"
	"github.com/studentfolio/studentfolio/internal/catalog"
	"github.com/studentfolio/studentfolio/internal/directory"
	"github.com/studentfolio/studentfolio/internal/service"
)

// OrganizationHandler serves university and company pages and their
// management operations.
//
// Creation and edits run on the acting user's personal session: the
// catalog makes the creator the organization's admin and rejects edits
// from anyone else, so authorization lives with the data.
type OrganizationHandler struct {
	auth   *service.AuthService
	admin  catalog.Invoker
	logger *slog.Logger
}

func NewOrganizationHandler(authService *service.AuthService, admin catalog.Invoker, logger *slog.Logger) *OrganizationHandler {
	return &OrganizationHandler{auth: authService, admin: admin, logger: logger}
}

type organizationResponse struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ImageURL    string `json:"imageUrl,omitempty"`
	Category    string `json:"category,omitempty"`
}

// HandleGet returns one organization's public page.
//
// HTTP: GET /api/organizations/{name}
func (h *OrganizationHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	org, err := directory.LoadOrganization(r.Context(), h.admin, chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, buildOrganizationResponse(org))
}

type organizationCreateRequest struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// HandleCreate registers a new university or company. The acting user
// becomes its admin.
//
// HTTP: POST /api/organizations (RequireAuth)
func (h *OrganizationHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	user, err := h.sessionUser(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req organizationCreateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Name == "" {
		writeError(w, apperror.ValidationFailed("name", "name is required"))
		return
	}

	var org *directory.Organization
	switch req.Category {
	case "university":
		org, err = directory.CreateUniversity(r.Context(), user.Session(), req.Name, req.Title, req.Description)
	case "company":
		org, err = directory.CreateCompany(r.Context(), user.Session(), req.Name, req.Title, req.Description)
	default:
		writeError(w, apperror.ValidationFailed("category", `category must be "university" or "company"`))
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	h.logger.Info("organization created",
		slog.String("name", org.Name()),
		slog.String("category", req.Category),
		slog.String("by", user.Username()),
	)
	writeJSON(w, http.StatusCreated, buildOrganizationResponse(org))
}

type organizationUpdateRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

// HandleUpdate edits an organization's title or description. Runs on the
// acting user's session; the catalog rejects non-admins.
//
// HTTP: PUT /api/organizations/{name} (RequireAuth)
func (h *OrganizationHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	user, err := h.sessionUser(r)
	if err != nil {
		writeError(w, err)
		return
	}

	org, err := directory.LoadOrganization(r.Context(), user.Session(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}

	var req organizationUpdateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	ctx := r.Context()
	if req.Title != nil {
		if err := org.SetTitle(ctx, *req.Title); err != nil {
			writeError(w, err)
			return
		}
	}
	if req.Description != nil {
		if err := org.SetDescription(ctx, *req.Description); err != nil {
			writeError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, buildOrganizationResponse(org))
}

// HandleUploadLogo replaces an organization's logo. The multipart form
// carries the file under "file".
//
// HTTP: POST /api/organizations/{name}/logo (RequireAuth)
func (h *OrganizationHandler) HandleUploadLogo(w http.ResponseWriter, r *http.Request) {
	user, err := h.sessionUser(r)
	if err != nil {
		writeError(w, err)
		return
	}

	org, err := directory.LoadOrganization(r.Context(), user.Session(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, apperror.ValidationFailed("file", "invalid multipart body"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, apperror.ValidationFailed("file", "a file part named \"file\" is required"))
		return
	}
	defer file.Close()

	if err := org.UploadLogo(r.Context(), header.Filename, file); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, buildOrganizationResponse(org))
}

type memberRequest struct {
	Username string `json:"username"`
}

// HandleAddMember joins a user to the organization as an editor. Only the
// organization's admins may add members; the membership write itself needs
// the administrator session, so the admin check happens here first.
//
// HTTP: POST /api/organizations/{name}/members (RequireAuth)
func (h *OrganizationHandler) HandleAddMember(w http.ResponseWriter, r *http.Request) {
	actor, err := h.sessionUser(r)
	if err != nil {
		writeError(w, err)
		return
	}

	name := chi.URLParam(r, "name")
	if err := h.requireOrgAdmin(r, actor, name); err != nil {
		writeError(w, err)
		return
	}

	var req memberRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	target, err := directory.LoadUser(r.Context(), h.admin, req.Username)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := target.AddToOrganization(r.Context(), name); err != nil {
		writeError(w, err)
		return
	}

	h.logger.Info("organization member added",
		slog.String("organization", name),
		slog.String("member", target.Username()),
		slog.String("by", actor.Username()),
	)
	writeJSON(w, http.StatusCreated, map[string]string{
		"organization": name,
		"member":       target.Username(),
	})
}

func (h *OrganizationHandler) requireOrgAdmin(r *http.Request, actor *directory.User, name string) error {
	admins, err := actor.AdminOf(r.Context())
	if err != nil {
		return err
	}
	for _, org := range admins {
		if org.Name() == name {
			return nil
		}
	}
	return apperror.Forbidden("only organization admins may add members")
}

func (h *OrganizationHandler) sessionUser(r *http.Request) (*directory.User, error) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		return nil, apperror.Forbidden("authentication required")
	}
	account, err := h.auth.AccountByID(r.Context(), accountID)
	if err != nil {
		return nil, err
	}
	return h.auth.CatalogUser(r.Context(), account)
}

func buildOrganizationResponse(org *directory.Organization) organizationResponse {
	resp := organizationResponse{
		Name:        org.Name(),
		Title:       org.Title(),
		Description: org.Description(),
		ImageURL:    org.ImageURL(),
	}
	switch {
	case org.IsUniversity():
		resp.Category = "university"
	case org.IsCompany():
		resp.Category = "company"
	}
	return resp
}
