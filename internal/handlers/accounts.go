package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/serviqo/serviqo/internal/models"
	"github.com/serviqo/serviqo/internal/services"
	"github.com/serviqo/serviqo/internal/store"
	apperrors "github.com/serviqo/serviqo/pkg/errors"
	"github.com/serviqo/serviqo/pkg/response"
)

// AccountHandler exposes back-office account management endpoints.
type AccountHandler struct {
	accounts *store.AccountStore
	roles    *services.RoleService
}

// NewAccountHandler constructs an AccountHandler.
func NewAccountHandler(accounts *store.AccountStore, roles *services.RoleService) (*AccountHandler, error) {
	if accounts == nil {
		return nil, errors.New("account handler: account store is required")
	}
	if roles == nil {
		return nil, errors.New("account handler: role service is required")
	}
	return &AccountHandler{accounts: accounts, roles: roles}, nil
}

// List handles GET /api/accounts with role/is_active/q filters.
func (h *AccountHandler) List(c *gin.Context) {
	opts := store.ListAccountsOptions{
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "per_page", 50),
	}

	if role := c.Query("role"); role != "" {
		r := models.Role(role)
		if !r.Valid() {
			response.Error(c, apperrors.NewBadRequest("unknown role filter"))
			return
		}
		opts.Filters.Role = r
	}
	if active := c.Query("is_active"); active != "" {
		parsed, err := strconv.ParseBool(active)
		if err != nil {
			response.Error(c, apperrors.NewBadRequest("is_active must be a boolean"))
			return
		}
		opts.Filters.IsActive = &parsed
	}
	opts.Filters.Query = c.Query("q")

	accounts, total, err := h.accounts.List(c.Request.Context(), opts)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]accountResponse, 0, len(accounts))
	for i := range accounts {
		items = append(items, toAccountResponse(&accounts[i]))
	}

	response.SuccessWithMeta(c, http.StatusOK, items, pageMeta(opts.Page, opts.PageSize, total))
}

type promoteRequest struct {
	Role string `json:"role" validate:"required,oneof=admin super_admin"`
}

// Promote handles POST /api/accounts/:id/promote.
func (h *AccountHandler) Promote(c *gin.Context) {
	var req promoteRequest
	if !bindAndValidate(c, &req) {
		return
	}

	account, err := h.roles.Promote(
		c.Request.Context(),
		currentEmail(c),
		services.TargetRef{ID: c.Param("id")},
		models.Role(req.Role),
	)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, toAccountResponse(account))
}

// Demote handles POST /api/accounts/:id/demote.
func (h *AccountHandler) Demote(c *gin.Context) {
	account, err := h.roles.Demote(
		c.Request.Context(),
		currentEmail(c),
		services.TargetRef{ID: c.Param("id")},
	)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, toAccountResponse(account))
}

type roleChangeRequest struct {
	UserID string `json:"user_id" validate:"omitempty,uuid"`
	Email  string `json:"email" validate:"omitempty,email"`
	Role   string `json:"role" validate:"omitempty,oneof=admin super_admin"`
}

func (r roleChangeRequest) target() (services.TargetRef, bool) {
	if r.UserID == "" && r.Email == "" {
		return services.TargetRef{}, false
	}
	return services.TargetRef{ID: r.UserID, Email: r.Email}, true
}

// PromoteByRef handles POST /api/roles/promote for callers that address the
// target by user_id or email in the request body.
func (h *AccountHandler) PromoteByRef(c *gin.Context) {
	var req roleChangeRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if req.Role == "" {
		response.Error(c, apperrors.NewBadRequest("role is required"))
		return
	}
	target, ok := req.target()
	if !ok {
		response.Error(c, apperrors.NewBadRequest("either user_id or email is required"))
		return
	}

	account, err := h.roles.Promote(c.Request.Context(), currentEmail(c), target, models.Role(req.Role))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, toAccountResponse(account))
}

// DemoteByRef handles POST /api/roles/demote.
func (h *AccountHandler) DemoteByRef(c *gin.Context) {
	var req roleChangeRequest
	if !bindAndValidate(c, &req) {
		return
	}
	target, ok := req.target()
	if !ok {
		response.Error(c, apperrors.NewBadRequest("either user_id or email is required"))
		return
	}

	account, err := h.roles.Demote(c.Request.Context(), currentEmail(c), target)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, toAccountResponse(account))
}

type setActiveRequest struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

// SetActive handles PATCH /api/accounts/:id/active to soft-disable or
// re-enable an account.
func (h *AccountHandler) SetActive(c *gin.Context) {
	var req setActiveRequest
	if !bindAndValidate(c, &req) {
		return
	}

	id := c.Param("id")
	if id == currentUserID(c) && !*req.IsActive {
		response.Error(c, apperrors.NewBadRequest("you cannot disable your own account"))
		return
	}

	if err := h.accounts.SetActive(c.Request.Context(), id, *req.IsActive); err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			response.Error(c, services.ErrTargetNotFound)
			return
		}
		response.Error(c, err)
		return
	}

	account, err := h.accounts.FindByID(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, toAccountResponse(account))
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func pageMeta(page, perPage int, total int64) *response.Meta {
	totalPages := int(total) / perPage
	if int(total)%perPage > 0 {
		totalPages++
	}
	return &response.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      int(total),
		TotalPages: totalPages,
	}
}
