package dto

import (
	"time"

	"github.com/noah-isme/gema-school-api/internal/models"
)

// SignInRequest carries credentials for a password sign-in.
type SignInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// CurrentUserResponse describes the signed-in account.
type CurrentUserResponse struct {
	ID       uint                   `json:"id"`
	Email    string                 `json:"email"`
	Role     string                 `json:"role"`
	Metadata map[string]interface{} `json:"metadata"`
}

// SessionResponse is returned after a successful sign-in.
type SessionResponse struct {
	Token     string              `json:"token"`
	ExpiresAt time.Time           `json:"expires_at"`
	User      CurrentUserResponse `json:"user"`
}

// NewCurrentUserResponse converts an account into its public shape.
func NewCurrentUserResponse(account models.Account) CurrentUserResponse {
	return CurrentUserResponse{
		ID:       account.ID,
		Email:    account.Email,
		Role:     account.Role,
		Metadata: metadataFromJSON(account.Metadata),
	}
}
