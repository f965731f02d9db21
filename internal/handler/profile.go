package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/studentfolio/studentfolio/internal/apperror"
	"github.com/studentfolio/studentfolio/internal/auth"
	"github.com/studentfolio/studentfolio/internal/catalog"
	"github.com/studentfolio/studentfolio/internal/directory"
	"github.com/studentfolio/studentfolio/internal/service"
)

// maxUploadBytes bounds item file uploads.
const maxUploadBytes = 32 << 20

// ProfileHandler serves public profile pages and the authenticated profile
// and portfolio mutations.
//
// Public reads run on the administrator session; every mutation resolves
// the logged-in account to its catalog user and runs on that user's
// personal session, so the catalog enforces ownership a second time.
type ProfileHandler struct {
	auth   *service.AuthService
	admin  catalog.Invoker
	logger *slog.Logger
}

func NewProfileHandler(authService *service.AuthService, admin catalog.Invoker, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{auth: authService, admin: admin, logger: logger}
}

type profileResponse struct {
	Username    string             `json:"username"`
	DisplayName string             `json:"displayName"`
	Fullname    string             `json:"fullname"`
	About       string             `json:"about"`
	Email       string             `json:"email,omitempty"`
	IsStudent   bool               `json:"isStudent"`
	Portfolio   *portfolioResponse `json:"portfolio,omitempty"`
}

type portfolioResponse struct {
	ID         string         `json:"id"`
	Title      string         `json:"title"`
	University string         `json:"university"`
	Tags       []string       `json:"tags"`
	Items      []itemResponse `json:"items"`
}

type itemResponse struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// HandleGet returns a user's public profile, including their portfolio and
// items when they are a student. The email is included only when the
// viewer is looking at their own profile.
//
// HTTP: GET /api/profile/{username} (OptionalAuth)
func (h *ProfileHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	user, err := directory.LoadUser(r.Context(), h.admin, username)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := profileResponse{
		Username:    user.Username(),
		DisplayName: user.DisplayName(),
		Fullname:    user.Fullname(),
		About:       user.About(),
	}
	if viewer, ok := h.viewer(r); ok && viewer.Username == username {
		resp.Email = user.Email()
	}

	portfolio, err := user.StudentPortfolio(r.Context())
	switch {
	case err == nil:
		resp.IsStudent = true
		items, err := portfolio.Items(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		resp.Portfolio = buildPortfolioResponse(portfolio, items)
	case errors.Is(err, apperror.ErrNotFound):
		// Not a student; plain profile.
	default:
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

type profileUpdateRequest struct {
	Fullname *string `json:"fullname"`
	About    *string `json:"about"`
	Email    *string `json:"email"`
}

// HandleUpdate updates fields on the logged-in user's own profile. Only
// the fields present in the body are touched.
//
// HTTP: PUT /api/profile (RequireAuth)
func (h *ProfileHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	user, err := h.sessionUser(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req profileUpdateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	ctx := r.Context()
	if req.Fullname != nil {
		if err := user.SetFullname(ctx, *req.Fullname); err != nil {
			writeError(w, err)
			return
		}
	}
	if req.About != nil {
		if err := user.SetAbout(ctx, *req.About); err != nil {
			writeError(w, err)
			return
		}
	}
	if req.Email != nil {
		if err := user.SetEmail(ctx, *req.Email); err != nil {
			writeError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, profileResponse{
		Username:    user.Username(),
		DisplayName: user.DisplayName(),
		Fullname:    user.Fullname(),
		About:       user.About(),
		Email:       user.Email(),
	})
}

type studentRequest struct {
	University string `json:"university"`
}

// HandleBecomeStudent creates the student portfolio for the logged-in
// user. Requires an existing university membership; with no university in
// the body the first membership is used. Idempotent.
//
// HTTP: POST /api/profile/student (RequireAuth)
func (h *ProfileHandler) HandleBecomeStudent(w http.ResponseWriter, r *http.Request) {
	user, err := h.sessionUser(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req studentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	portfolio, err := user.CreateStudentProfile(r.Context(), req.University)
	if err != nil {
		writeError(w, err)
		return
	}

	h.logger.Info("student profile created",
		slog.String("username", user.Username()),
		slog.String("portfolioID", portfolio.ID()),
	)
	writeJSON(w, http.StatusCreated, buildPortfolioResponse(portfolio, nil))
}

// HandleOrganizations lists the logged-in user's memberships.
//
// HTTP: GET /api/profile/organizations (RequireAuth)
func (h *ProfileHandler) HandleOrganizations(w http.ResponseWriter, r *http.Request) {
	user, err := h.sessionUser(r)
	if err != nil {
		writeError(w, err)
		return
	}

	member, err := user.MemberOf(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	admin, err := user.AdminOf(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"member": organizationNames(member),
		"admin":  organizationNames(admin),
	})
}

type itemCreateRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// HandleAddItem adds a work item to the logged-in student's portfolio.
//
// HTTP: POST /api/profile/items (RequireAuth)
func (h *ProfileHandler) HandleAddItem(w http.ResponseWriter, r *http.Request) {
	portfolio, err := h.sessionPortfolio(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req itemCreateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Title == "" {
		writeError(w, apperror.ValidationFailed("title", "title is required"))
		return
	}

	item, err := portfolio.AddItem(r.Context(), req.Title, req.Description, req.Tags)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, buildItemResponse(item))
}

type itemUpdateRequest struct {
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	Tags        []string `json:"tags"`
}

// HandleUpdateItem updates an item's title, description or tag set. A tags
// field in the body replaces the set; absent means untouched.
//
// HTTP: PUT /api/profile/items/{id} (RequireAuth)
func (h *ProfileHandler) HandleUpdateItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.sessionItem(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req itemUpdateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	ctx := r.Context()
	if req.Title != nil {
		if err := item.SetTitle(ctx, *req.Title); err != nil {
			writeError(w, err)
			return
		}
	}
	if req.Description != nil {
		if err := item.SetDescription(ctx, *req.Description); err != nil {
			writeError(w, err)
			return
		}
	}
	if req.Tags != nil {
		if err := item.SetTags(ctx, req.Tags); err != nil {
			writeError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, buildItemResponse(item))
}

type tagsRequest struct {
	Tags []string `json:"tags"`
}

// HandleAddItemTags adds tags to an item without replacing its set.
//
// HTTP: POST /api/profile/items/{id}/tags (RequireAuth)
func (h *ProfileHandler) HandleAddItemTags(w http.ResponseWriter, r *http.Request) {
	item, err := h.sessionItem(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req tagsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(req.Tags) == 0 {
		writeError(w, apperror.ValidationFailed("tags", "at least one tag is required"))
		return
	}

	if err := item.AddTags(r.Context(), req.Tags...); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, buildItemResponse(item))
}

// HandleUploadItemFile attaches a file to an item. The multipart form
// carries "title", "description" and the file under "file".
//
// HTTP: POST /api/profile/items/{id}/file (RequireAuth)
func (h *ProfileHandler) HandleUploadItemFile(w http.ResponseWriter, r *http.Request) {
	item, err := h.sessionItem(r)
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

	title := r.FormValue("title")
	if title == "" {
		title = header.Filename
	}

	err = item.UploadFile(r.Context(), title, r.FormValue("description"), header.Filename, file)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"item":     item.ID(),
		"filename": header.Filename,
	})
}

// viewer resolves the optional session to its local account.
func (h *ProfileHandler) viewer(r *http.Request) (*accountView, bool) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		return nil, false
	}
	account, err := h.auth.AccountByID(r.Context(), accountID)
	if err != nil {
		return nil, false
	}
	return &accountView{Username: account.Username}, true
}

type accountView struct {
	Username string
}

// sessionUser resolves the logged-in account to its catalog user.
func (h *ProfileHandler) sessionUser(r *http.Request) (*directory.User, error) {
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

func (h *ProfileHandler) sessionPortfolio(r *http.Request) (*directory.StudentPortfolio, error) {
	user, err := h.sessionUser(r)
	if err != nil {
		return nil, err
	}
	return user.StudentPortfolio(r.Context())
}

// sessionItem loads the item from the URL and checks it belongs to the
// logged-in student's portfolio.
func (h *ProfileHandler) sessionItem(r *http.Request) (*directory.PortfolioItem, error) {
	portfolio, err := h.sessionPortfolio(r)
	if err != nil {
		return nil, err
	}

	item, err := directory.LoadItem(r.Context(), portfolio, chi.URLParam(r, "id"))
	if err != nil {
		return nil, err
	}
	if item.Author() != portfolio.Username() {
		return nil, apperror.Forbidden("item belongs to another user")
	}
	return item, nil
}

func buildPortfolioResponse(p *directory.StudentPortfolio, items []*directory.PortfolioItem) *portfolioResponse {
	resp := &portfolioResponse{
		ID:         p.ID(),
		Title:      p.Title(),
		University: p.UniversityID(),
		Tags:       p.Tags(),
		Items:      []itemResponse{},
	}
	for _, item := range items {
		resp.Items = append(resp.Items, buildItemResponse(item))
	}
	return resp
}

func buildItemResponse(item *directory.PortfolioItem) itemResponse {
	return itemResponse{
		ID:          item.ID(),
		Name:        item.Name(),
		Title:       item.Title(),
		Description: item.Description(),
		Tags:        item.Tags(),
	}
}

func organizationNames(orgs []*directory.Organization) []map[string]string {
	out := make([]map[string]string, 0, len(orgs))
	for _, org := range orgs {
		out = append(out, map[string]string{
			"name":  org.Name(),
			"title": org.Title(),
		})
	}
	return out
}
