package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/serviqo/serviqo/internal/models"
	"github.com/serviqo/serviqo/internal/services"
	"github.com/serviqo/serviqo/pkg/response"
)

// InviteHandler exposes the invitation lifecycle endpoints.
type InviteHandler struct {
	invitations *services.InvitationService
}

// NewInviteHandler constructs an InviteHandler.
func NewInviteHandler(invitations *services.InvitationService) (*InviteHandler, error) {
	if invitations == nil {
		return nil, errors.New("invite handler: invitation service is required")
	}
	return &InviteHandler{invitations: invitations}, nil
}

type createInviteRequest struct {
	Email           string `json:"email" validate:"required,email"`
	Role            string `json:"role" validate:"required,oneof=admin super_admin"`
	ExpirationHours int    `json:"expiration_hours" validate:"omitempty,min=1,max=720"`
}

type invitationResponse struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Role      string     `json:"role"`
	InvitedBy string     `json:"invited_by"`
	ExpiresAt time.Time  `json:"expires_at"`
	IsUsed    bool       `json:"is_used"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	IsActive  bool       `json:"is_active"`
	RevokedBy string     `json:"revoked_by,omitempty"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
}

func toInvitationResponse(inv *models.Invitation, now time.Time) invitationResponse {
	return invitationResponse{
		ID:        inv.ID,
		Email:     inv.Email,
		Role:      string(inv.Role),
		InvitedBy: inv.InvitedBy,
		ExpiresAt: inv.ExpiresAt,
		IsUsed:    inv.IsUsed,
		UsedAt:    inv.UsedAt,
		IsActive:  inv.IsActive,
		RevokedBy: inv.RevokedBy,
		RevokedAt: inv.RevokedAt,
		Status:    inv.Status(now),
		CreatedAt: inv.CreatedAt,
	}
}

// Create handles POST /api/invites. The raw token is returned exactly once;
// only its hash is stored.
func (h *InviteHandler) Create(c *gin.Context) {
	var req createInviteRequest
	if !bindAndValidate(c, &req) {
		return
	}

	invitation, token, err := h.invitations.Create(
		c.Request.Context(),
		currentEmail(c),
		req.Email,
		models.Role(req.Role),
		req.ExpirationHours,
	)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"invitation": toInvitationResponse(invitation, time.Now()),
		"token":      token,
	})
}

// List handles GET /api/invites with an optional email filter.
func (h *InviteHandler) List(c *gin.Context) {
	invitations, err := h.invitations.List(c.Request.Context(), c.Query("email"))
	if err != nil {
		response.Error(c, err)
		return
	}

	now := time.Now()
	items := make([]invitationResponse, 0, len(invitations))
	for i := range invitations {
		items = append(items, toInvitationResponse(&invitations[i], now))
	}
	response.Success(c, http.StatusOK, items)
}

// Revoke handles DELETE /api/invites/:id.
func (h *InviteHandler) Revoke(c *gin.Context) {
	invitation, err := h.invitations.Revoke(c.Request.Context(), currentEmail(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, toInvitationResponse(invitation, time.Now()))
}
