package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/serviqo/serviqo/internal/auth"
	"github.com/serviqo/serviqo/internal/models"
	"github.com/serviqo/serviqo/internal/store"
	apperrors "github.com/serviqo/serviqo/pkg/errors"
	"github.com/serviqo/serviqo/pkg/response"
)

// AuthHandler exposes the sign-in, sign-out, and identity endpoints.
type AuthHandler struct {
	signin   *auth.SignInService
	accounts *store.AccountStore
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(signin *auth.SignInService, accounts *store.AccountStore) (*AuthHandler, error) {
	if signin == nil {
		return nil, errors.New("auth handler: signin service is required")
	}
	if accounts == nil {
		return nil, errors.New("auth handler: account store is required")
	}
	return &AuthHandler{signin: signin, accounts: accounts}, nil
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type federatedCallbackRequest struct {
	Email             string `json:"email" validate:"required,email"`
	Name              string `json:"name"`
	Provider          string `json:"provider" validate:"required"`
	ProviderAccountID string `json:"provider_account_id" validate:"required"`
}

type accountResponse struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	Role        string     `json:"role"`
	Provider    string     `json:"provider"`
	IsActive    bool       `json:"is_active"`
	PromotedBy  string     `json:"promoted_by,omitempty"`
	PromotedAt  *time.Time `json:"promoted_at,omitempty"`
	DemotedBy   string     `json:"demoted_by,omitempty"`
	DemotedAt   *time.Time `json:"demoted_at,omitempty"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type signInResponse struct {
	Account     accountResponse `json:"account"`
	AccessToken string          `json:"access_token"`
	Created     bool            `json:"created"`
}

func toAccountResponse(account *models.Account) accountResponse {
	return accountResponse{
		ID:          account.ID,
		Email:       account.Email,
		Name:        account.Name,
		Role:        string(account.Role),
		Provider:    account.Provider,
		IsActive:    account.IsActive,
		PromotedBy:  account.PromotedBy,
		PromotedAt:  account.PromotedAt,
		DemotedBy:   account.DemotedBy,
		DemotedAt:   account.DemotedAt,
		LastLoginAt: account.LastLoginAt,
		CreatedAt:   account.CreatedAt,
	}
}

func signInMeta(c *gin.Context) auth.SignInMeta {
	return auth.SignInMeta{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}

// Login handles POST /api/auth/login for credentials accounts.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.signin.SignInCredentials(c.Request.Context(), req.Email, req.Password, signInMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, signInResponse{
		Account:     toAccountResponse(result.Account),
		AccessToken: result.AccessToken,
		Created:     result.Created,
	})
}

// FederatedCallback handles POST /api/auth/callback. The identity has already
// been confirmed by the external authentication collaborator; this endpoint
// only resolves role and linkage and issues the session.
func (h *AuthHandler) FederatedCallback(c *gin.Context) {
	var req federatedCallbackRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.signin.SignInFederated(c.Request.Context(), auth.Identity{
		Email:             req.Email,
		Name:              req.Name,
		Provider:          req.Provider,
		ProviderAccountID: req.ProviderAccountID,
	}, signInMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	response.Success(c, status, signInResponse{
		Account:     toAccountResponse(result.Account),
		AccessToken: result.AccessToken,
		Created:     result.Created,
	})
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	sessionID := currentSessionID(c)
	if sessionID == "" {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	if err := h.signin.SignOut(c.Request.Context(), sessionID, signInMeta(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "signed out"})
}

// Me handles GET /api/auth/me and returns the authenticated account.
func (h *AuthHandler) Me(c *gin.Context) {
	account, err := h.accounts.FindByID(c.Request.Context(), currentUserID(c))
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			response.Error(c, apperrors.ErrUnauthorized)
			return
		}
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, toAccountResponse(account))
}
