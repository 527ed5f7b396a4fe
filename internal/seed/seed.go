// Package seed fills an empty database with demo tenants so the demo sign-in
// has somewhere to land.
package seed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hugh/crewbase/internal/database/models"
	"github.com/hugh/crewbase/internal/directory"
	"gorm.io/gorm"
)

// DemoPassword is shared by every seeded admin.
const DemoPassword = "demo123!"

// Hasher turns a password into a stored hash.
type Hasher func(password string) (string, error)

// DemoTenant describes one seeded workspace.
type DemoTenant struct {
	CompanyName string
	Subdomain   string
	TagLine     string
	Branding    models.Branding
	AdminEmail  string
	AdminName   string
}

var DemoTenants = []DemoTenant{
	{
		CompanyName: "Acme Corp",
		Subdomain:   "acme",
		TagLine:     "Building the future, one project at a time",
		Branding: models.Branding{
			PrimaryColor: "#1565c0", SecondaryColor: "#ff8f00", AccentColor: "#43a047",
			BackgroundColor: "#fafafa", TextColor: "#212121", FontFamily: "Roboto",
		},
		AdminEmail: "admin@acme.com",
		AdminName:  "Alice Johnson",
	},
	{
		CompanyName: "Pixel Studio",
		Subdomain:   "pixel",
		TagLine:     "Where creativity meets precision",
		Branding: models.Branding{
			PrimaryColor: "#7b1fa2", SecondaryColor: "#f57c00", AccentColor: "#00897b",
			BackgroundColor: "#f5f5f5", TextColor: "#1a1a1a", FontFamily: "Inter",
		},
		AdminEmail: "admin@pixelstudio.com",
		AdminName:  "Max Rivera",
	},
	{
		CompanyName: "GreenLeaf Solutions",
		Subdomain:   "greenleaf",
		TagLine:     "Sustainable solutions for a better tomorrow",
		Branding: models.Branding{
			PrimaryColor: "#2e7d32", SecondaryColor: "#ff6f00", AccentColor: "#0277bd",
			BackgroundColor: "#f1f8e9", TextColor: "#1b5e20", FontFamily: "Nunito",
		},
		AdminEmail: "admin@greenleaf.com",
		AdminName:  "Sam Chen",
	},
}

// Run seeds DemoTenants when the database has no tenant at all. It reports
// whether anything was written.
func Run(ctx context.Context, db *gorm.DB, hash Hasher, logger *slog.Logger) (bool, error) {
	n, err := directory.New(db).CountTenants(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		logger.Debug("skipping demo seed, tenants exist", "count", n)
		return false, nil
	}

	passwordHash, err := hash(DemoPassword)
	if err != nil {
		return false, fmt.Errorf("hashing demo password: %w", err)
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dir := directory.New(tx)
		for _, demo := range DemoTenants {
			if err := seedTenant(ctx, tx, dir, demo, passwordHash); err != nil {
				return fmt.Errorf("seeding %s: %w", demo.CompanyName, err)
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	logger.Info("seeded demo tenants", "count", len(DemoTenants))
	return true, nil
}

func seedTenant(ctx context.Context, tx *gorm.DB, dir *directory.Directory, demo DemoTenant, passwordHash string) error {
	created, err := dir.CreateTenant(ctx, demo.CompanyName)
	if err != nil {
		return err
	}

	subdomain, tagLine := demo.Subdomain, demo.TagLine
	err = tx.Model(created.Tenant).Updates(map[string]interface{}{
		"subdomain":   subdomain,
		"description": tagLine,
	}).Error
	if err != nil {
		return fmt.Errorf("updating tenant: %w", err)
	}

	err = tx.Model(created.Branding).Updates(map[string]interface{}{
		"primary_color":    demo.Branding.PrimaryColor,
		"secondary_color":  demo.Branding.SecondaryColor,
		"accent_color":     demo.Branding.AccentColor,
		"background_color": demo.Branding.BackgroundColor,
		"text_color":       demo.Branding.TextColor,
		"font_family":      demo.Branding.FontFamily,
		"tag_line":         tagLine,
	}).Error
	if err != nil {
		return fmt.Errorf("updating branding: %w", err)
	}

	if _, err := dir.CreateRole(ctx, created.Tenant.ID, "Lead", "Team management"); err != nil {
		return err
	}

	admin, err := dir.CreatePasswordUser(ctx, created.Tenant.ID, demo.AdminEmail, demo.AdminName, passwordHash)
	if err != nil {
		return err
	}
	return dir.AssignRole(ctx, admin, created.AdminRole)
}
