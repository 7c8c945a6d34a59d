package resource

import (
	"fmt"
	"os"

	"github.com/rebuild-dev/rebuild-server/pkg/dto"
	"gopkg.in/yaml.v3"
)

// Seed is the initial content of the stores.
type Seed struct {
	Roles []dto.Role `yaml:"roles"`
	Users []dto.User `yaml:"users"`
}

func describe(description string) *string {
	return &description
}

// DefaultSeed returns the built-in demo data.
func DefaultSeed() Seed {
	seed := Seed{
		Roles: []dto.Role{
			{Name: "admin", Description: describe("Administrator with full access")},
			{Name: "editor", Description: describe("Can edit content")},
			{Name: "viewer", Description: describe("Read-only access")},
		},
		Users: []dto.User{
			{Name: "Admin User", Email: "admin@example.com", Status: "active", Role: "admin"},
			{Name: "John Doe", Email: "john@example.com", Status: "active", Role: "editor"},
			{Name: "Jane Smith", Email: "jane@example.com", Status: "active", Role: "viewer"},
			{Name: "Bob Wilson", Email: "bob@example.com", Status: "inactive", Role: "viewer"},
			{Name: "Alice Brown", Email: "alice@example.com", Status: "active", Role: "editor"},
		},
	}
	seed.applyDefaults()
	return seed
}

// LoadSeed reads seed data from a YAML file with the top-level keys roles and users.
func LoadSeed(path string) (Seed, error) {
	var seed Seed
	content, err := os.ReadFile(path)
	if err != nil {
		return seed, fmt.Errorf("error reading seed file: %w", err)
	}
	if err := yaml.Unmarshal(content, &seed); err != nil {
		return seed, fmt.Errorf("error parsing seed file %s: %w", path, err)
	}
	seed.applyDefaults()
	return seed, nil
}

func (s *Seed) applyDefaults() {
	for i := range s.Roles {
		if s.Roles[i].Permissions == nil {
			s.Roles[i].Permissions = DefaultPermissions(s.Roles[i].Name)
		}
	}
	for i := range s.Users {
		if s.Users[i].Status == "" {
			s.Users[i].Status = dto.DefaultUserStatus
		}
		if s.Users[i].Role == "" {
			s.Users[i].Role = dto.DefaultUserRole
		}
	}
}

// SeedIfEmpty populates every store that is currently empty. Stores with content are left unchanged.
func (r *Registry) SeedIfEmpty(seed Seed) {
	if r.Roles.Count() == 0 {
		r.Roles.Seed(seed.Roles...)
		log.WithField("count", len(seed.Roles)).Debug("Seeded roles")
	}
	if r.Users.Count() == 0 {
		r.Users.Seed(seed.Users...)
		log.WithField("count", len(seed.Users)).Debug("Seeded users")
	}
}
