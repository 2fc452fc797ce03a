package users

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/schoolhouse/pkg/auth"
	"github.com/platinummonkey/schoolhouse/pkg/observability"
	"github.com/platinummonkey/schoolhouse/pkg/rbac"
	"github.com/platinummonkey/schoolhouse/pkg/storage"
)

// Well known ids of the default seed
const (
	DefaultDistrictID = "eeb4df90-9ef5-11ec-ba0f-7f73d49dcc8d"
	DefaultSAID       = "e8f374c0-9bc3-11ec-8cb4-d18c12dd465e"
	DefaultDAID       = "6d6af290-9efe-11ec-ae13-bd434ea3f9da"
)

// Seed is the initial data of an empty installation
type Seed struct {
	Districts []SeedDistrict `yaml:"districts"`
	Users     []SeedUser     `yaml:"users"`
}

type SeedDistrict struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type SeedUser struct {
	ID         string             `yaml:"id"`
	Email      string             `yaml:"email"`
	Name       Name               `yaml:"name"`
	Role       rbac.Role          `yaml:"role"`
	Status     auth.AccountStatus `yaml:"status"`
	DistrictID string             `yaml:"districtId"`
	SchoolID   string             `yaml:"schoolId"`
}

// DefaultSeed is one district with a system administrator and a district
// administrator, both active
func DefaultSeed() Seed {
	return Seed{
		Districts: []SeedDistrict{{ID: DefaultDistrictID, Name: "default"}},
		Users: []SeedUser{
			{
				ID:         DefaultSAID,
				Email:      "sa@schoolhouse.local",
				Name:       Name{First: "System", Last: "Administrator"},
				Role:       rbac.RoleSA,
				Status:     auth.StatusActive,
				DistrictID: DefaultDistrictID,
			},
			{
				ID:         DefaultDAID,
				Email:      "yurii.kniazyk@euristiq.com",
				Name:       Name{First: "Yurii", Last: "Kniazyk"},
				Role:       rbac.RoleDistrictAdministrator,
				Status:     auth.StatusActive,
				DistrictID: DefaultDistrictID,
			},
		},
	}
}

// ParseSeed decodes and validates a YAML seed
func ParseSeed(data []byte) (Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return Seed{}, fmt.Errorf("seed: %w", err)
	}
	if err := seed.Validate(); err != nil {
		return Seed{}, err
	}
	return seed, nil
}

// LoadSeed reads a YAML seed file
func LoadSeed(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("seed: %w", err)
	}
	return ParseSeed(data)
}

// Validate checks ids, roles and statuses and that every user belongs to a
// district of the seed
func (s Seed) Validate() error {
	districts := make(map[string]struct{}, len(s.Districts))
	for _, d := range s.Districts {
		if d.ID == "" || d.Name == "" {
			return fmt.Errorf("seed: district needs id and name")
		}
		districts[d.ID] = struct{}{}
	}
	for _, u := range s.Users {
		if u.ID == "" || u.Email == "" {
			return fmt.Errorf("seed: user needs id and email")
		}
		if !u.Role.Valid() {
			return fmt.Errorf("seed: user %s has unknown role %q", u.ID, u.Role)
		}
		if _, err := auth.ParseAccountStatus(string(u.Status)); err != nil {
			return fmt.Errorf("seed: user %s: %w", u.ID, err)
		}
		if _, ok := districts[u.DistrictID]; !ok {
			return fmt.Errorf("seed: user %s references unknown district %q", u.ID, u.DistrictID)
		}
	}
	return nil
}

// ApplySeed creates whatever part of the seed is missing, in one unit of
// work. Existing districts and users are left untouched.
func ApplySeed(ctx context.Context, uow storage.UnitOfWork, store Store, seed Seed) error {
	if err := seed.Validate(); err != nil {
		return err
	}
	logger := observability.FromContext(ctx)

	return uow.RunInTx(ctx, func(ctx context.Context) error {
		now := time.Now().UTC()
		for _, d := range seed.Districts {
			exists, err := store.DistrictExists(ctx, d.ID)
			if err != nil {
				return fmt.Errorf("seed district %s: %w", d.ID, err)
			}
			if exists {
				continue
			}
			if err := store.CreateDistrict(ctx, &District{ID: d.ID, Name: d.Name, CreatedAt: now}); err != nil {
				return fmt.Errorf("seed district %s: %w", d.ID, err)
			}
			logger.WithField("district_id", d.ID).Info("seeded district")
		}

		for _, u := range seed.Users {
			_, err := store.Get(ctx, u.ID)
			if err == nil {
				continue
			}
			if !errors.Is(err, ErrNotFound) {
				return fmt.Errorf("seed user %s: %w", u.ID, err)
			}
			user := &User{
				ID:         u.ID,
				Email:      u.Email,
				Name:       u.Name,
				Role:       u.Role,
				Status:     u.Status,
				DistrictID: u.DistrictID,
				SchoolID:   u.SchoolID,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			if err := store.Create(ctx, user); err != nil {
				return fmt.Errorf("seed user %s: %w", u.ID, err)
			}
			logger.WithField("seeded_user_id", u.ID).WithField("role", u.Role).Info("seeded user")
		}
		return nil
	})
}
