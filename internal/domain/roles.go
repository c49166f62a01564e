package domain

import (
	"strings"
)

// Role is the code of a role an identity selects during registration.
// The set is open; the active catalog decides which codes are accepted.
type Role string

const (
	RoleManager      Role = "MANAGER"
	RoleMechanic     Role = "MECHANIC"
	RoleReceptionist Role = "RECEPTIONIST"
	RoleOther        Role = "OTHER"
)

// RoleDef pairs a role code with the human readable label used in archive
// entries and escalation cards.
type RoleDef struct {
	Code  Role   `yaml:"code"  json:"code"`
	Label string `yaml:"label" json:"label"`
}

// RoleCatalog is the ordered list of selectable roles.
type RoleCatalog struct {
	defs []RoleDef
}

// NewRoleCatalog builds a catalog from defs, keeping their order. Codes are
// upper-cased and trimmed; a missing label falls back to the code.
func NewRoleCatalog(defs []RoleDef) RoleCatalog {
	out := make([]RoleDef, 0, len(defs))
	for _, d := range defs {
		code := Role(strings.ToUpper(strings.TrimSpace(string(d.Code))))
		if code == "" {
			continue
		}
		label := strings.TrimSpace(d.Label)
		if label == "" {
			label = string(code)
		}
		out = append(out, RoleDef{Code: code, Label: label})
	}
	return RoleCatalog{defs: out}
}

// DefaultRoleCatalog returns the built-in auto-service roles.
func DefaultRoleCatalog() RoleCatalog {
	return NewRoleCatalog([]RoleDef{
		{Code: RoleManager, Label: "Manager"},
		{Code: RoleMechanic, Label: "Mechanic"},
		{Code: RoleReceptionist, Label: "Receptionist"},
		{Code: RoleOther, Label: "Other"},
	})
}

// Len returns the number of roles.
func (c RoleCatalog) Len() int { return len(c.defs) }

// Defs returns a copy of the role definitions.
func (c RoleCatalog) Defs() []RoleDef {
	out := make([]RoleDef, len(c.defs))
	copy(out, c.defs)
	return out
}

// Codes returns the role codes in catalog order, as rendered in the
// role-selection prompt.
func (c RoleCatalog) Codes() []string {
	out := make([]string, 0, len(c.defs))
	for _, d := range c.defs {
		out = append(out, string(d.Code))
	}
	return out
}

// Match resolves free text to a role code. Matching ignores case and
// surrounding whitespace.
func (c RoleCatalog) Match(text string) (Role, bool) {
	t := strings.TrimSpace(text)
	if t == "" {
		return "", false
	}
	for _, d := range c.defs {
		if strings.EqualFold(t, string(d.Code)) {
			return d.Code, true
		}
	}
	return "", false
}

// Label returns the display label for code, or the code itself when the
// catalog does not know it.
func (c RoleCatalog) Label(code Role) string {
	for _, d := range c.defs {
		if d.Code == code {
			return d.Label
		}
	}
	return string(code)
}
