package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tbourn/go-feedback-bot/internal/domain"
)

// rolesFile is the YAML layout of ROLES_FILE:
//
//	roles:
//	  - code: MANAGER
//	    label: Manager
//	  - code: DRIVER
//	    label: Tow truck driver
type rolesFile struct {
	Roles []domain.RoleDef `yaml:"roles"`
}

// LoadRoles reads the role catalog at path. An empty path returns the
// built-in catalog.
func LoadRoles(path string) (domain.RoleCatalog, error) {
	if path == "" {
		return domain.DefaultRoleCatalog(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.RoleCatalog{}, fmt.Errorf("read roles file: %w", err)
	}
	return ParseRoles(raw)
}

// ParseRoles decodes a YAML role catalog. Duplicate codes are rejected.
func ParseRoles(raw []byte) (domain.RoleCatalog, error) {
	var f rolesFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return domain.RoleCatalog{}, fmt.Errorf("parse roles file: %w", err)
	}
	cat := domain.NewRoleCatalog(f.Roles)
	if cat.Len() == 0 {
		return domain.RoleCatalog{}, errors.New("roles file defines no roles")
	}
	seen := make(map[domain.Role]struct{}, cat.Len())
	for _, c := range cat.Codes() {
		r := domain.Role(c)
		if _, dup := seen[r]; dup {
			return domain.RoleCatalog{}, fmt.Errorf("duplicate role code %q", c)
		}
		seen[r] = struct{}{}
	}
	return cat, nil
}
