package dto

import (
	"time"

	"github.com/hugh/crewbase/internal/database/models"
)

type MeResponse struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	DisplayName string     `json:"displayName"`
	Role        string     `json:"role"`
	TenantID    string     `json:"tenantId"`
	TenantName  string     `json:"tenantName"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}

type BrandingResponse struct {
	PrimaryColor    string  `json:"primaryColor"`
	SecondaryColor  string  `json:"secondaryColor"`
	AccentColor     string  `json:"accentColor"`
	BackgroundColor string  `json:"backgroundColor"`
	TextColor       string  `json:"textColor"`
	LogoURL         *string `json:"logoUrl,omitempty"`
	FontFamily      string  `json:"fontFamily"`
	TagLine         *string `json:"tagLine,omitempty"`
}

func NewBrandingResponse(b *models.Branding) BrandingResponse {
	return BrandingResponse{
		PrimaryColor:    b.PrimaryColor,
		SecondaryColor:  b.SecondaryColor,
		AccentColor:     b.AccentColor,
		BackgroundColor: b.BackgroundColor,
		TextColor:       b.TextColor,
		LogoURL:         b.LogoURL,
		FontFamily:      b.FontFamily,
		TagLine:         b.TagLine,
	}
}

type RoleResponse struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

func NewRoleResponses(roles []models.Role) []RoleResponse {
	out := make([]RoleResponse, 0, len(roles))
	for _, r := range roles {
		out = append(out, RoleResponse{ID: r.ID.String(), Name: r.Name, Description: r.Description})
	}
	return out
}

type AuthEventResponse struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	Kind       string    `json:"kind"`
	OccurredAt time.Time `json:"occurredAt"`
}

func NewAuthEventResponses(events []models.AuthEvent) []AuthEventResponse {
	out := make([]AuthEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, AuthEventResponse{
			ID:         e.ID.String(),
			UserID:     e.UserID.String(),
			Kind:       string(e.Kind),
			OccurredAt: e.OccurredAt,
		})
	}
	return out
}
