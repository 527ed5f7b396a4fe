package models

import "github.com/google/uuid"

// Tenant is the isolation boundary. Every other row carries its tenant_id.
// Tenants are created only by registration, federated provisioning, or the
// demo seeder, always together with their Branding row and default roles.
type Tenant struct {
	Base
	CompanyName string  `gorm:"size:200;not null;index" json:"company_name"`
	Subdomain   *string `gorm:"size:100;uniqueIndex" json:"subdomain,omitempty"`
	Description *string `gorm:"size:500" json:"description,omitempty"`
	IsActive    bool    `gorm:"default:true;index" json:"is_active"`
}

func (Tenant) TableName() string {
	return "tenants"
}

// Default branding palette applied to new tenants.
const (
	DefaultPrimaryColor    = "#1976d2"
	DefaultSecondaryColor  = "#ff9800"
	DefaultAccentColor     = "#4caf50"
	DefaultBackgroundColor = "#fafafa"
	DefaultTextColor       = "#212121"
	DefaultFontFamily      = "Roboto"
)

type Branding struct {
	Base
	TenantID        uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"tenant_id"`
	PrimaryColor    string    `gorm:"size:7;not null" json:"primary_color"`
	SecondaryColor  string    `gorm:"size:7;not null" json:"secondary_color"`
	AccentColor     string    `gorm:"size:7;not null" json:"accent_color"`
	BackgroundColor string    `gorm:"size:7;not null" json:"background_color"`
	TextColor       string    `gorm:"size:7;not null" json:"text_color"`
	LogoURL         *string   `gorm:"size:500" json:"logo_url,omitempty"`
	FontFamily      string    `gorm:"size:100;not null" json:"font_family"`
	TagLine         *string   `gorm:"size:200" json:"tag_line,omitempty"`

	// Only declared so AutoMigrate emits the cascading foreign key.
	// Never preloaded.
	Tenant *Tenant `gorm:"foreignKey:TenantID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Branding) TableName() string {
	return "tenant_brandings"
}

// NewDefaultBranding returns the branding every freshly created tenant gets.
func NewDefaultBranding(tenantID uuid.UUID) *Branding {
	return &Branding{
		TenantID:        tenantID,
		PrimaryColor:    DefaultPrimaryColor,
		SecondaryColor:  DefaultSecondaryColor,
		AccentColor:     DefaultAccentColor,
		BackgroundColor: DefaultBackgroundColor,
		TextColor:       DefaultTextColor,
		FontFamily:      DefaultFontFamily,
	}
}
