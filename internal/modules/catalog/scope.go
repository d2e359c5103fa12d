package catalog

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Scope selects which side of the draft/official pairing a query sees.
type Scope int

const (
	ScopeOfficial Scope = iota
	ScopeDraft
	ScopeEverything
)

func (s Scope) String() string {
	switch s {
	case ScopeOfficial:
		return "official"
	case ScopeDraft:
		return "draft"
	case ScopeEverything:
		return "everything"
	default:
		return fmt.Sprintf("scope(%d)", int(s))
	}
}

// Apply is a gorm scope; use it as db.Scopes(scope.Apply).
func (s Scope) Apply(db *gorm.DB) *gorm.DB {
	switch s {
	case ScopeOfficial:
		return db.Where(map[string]interface{}{"draft": false})
	case ScopeDraft:
		return db.Where(map[string]interface{}{"draft": true})
	default:
		return db
	}
}

// ParseScope maps a query parameter onto a Scope. Empty means official.
func ParseScope(v string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "official":
		return ScopeOfficial, nil
	case "draft":
		return ScopeDraft, nil
	case "everything", "all":
		return ScopeEverything, nil
	default:
		return ScopeOfficial, fmt.Errorf("unknown scope %q", v)
	}
}
