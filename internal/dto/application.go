package dto

import (
	"time"

	"github.com/noah-isme/scholarship-intake-api/internal/models"
)

// UpdateStatusRequest captures PUT /applications/:id payload.
type UpdateStatusRequest struct {
	Status models.ApplicationStatus `json:"status" binding:"required"`
}

// ApplicationListResponse is one page of applications.
type ApplicationListResponse struct {
	Applications []models.Application `json:"applications"`
	Pagination   models.Pagination    `json:"pagination"`
}

// SessionResponse describes the signed-in administrator without exposing the token.
type SessionResponse struct {
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// MessageResponse carries a short human readable acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}
