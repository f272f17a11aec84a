// Package drift defines the core data model for architectural drift tracking:
// patterns, contracts, constraints, their lifecycle statuses, and the
// transition tables that govern status changes.
package drift

import (
	"strings"

	"github.com/google/uuid"
)

// NewID generates a unique entity ID with the given prefix.
func NewID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:16]
}

// Category classifies what aspect of the codebase an entity describes.
type Category string

const (
	CategoryAPI           Category = "api"
	CategoryAuth          Category = "auth"
	CategorySecurity      Category = "security"
	CategoryErrors        Category = "errors"
	CategoryLogging       Category = "logging"
	CategoryDataAccess    Category = "data-access"
	CategoryConfig        Category = "config"
	CategoryTesting       Category = "testing"
	CategoryPerformance   Category = "performance"
	CategoryComponents    Category = "components"
	CategoryStyling       Category = "styling"
	CategoryStructural    Category = "structural"
	CategoryTypes         Category = "types"
	CategoryNaming        Category = "naming"
	CategoryDocumentation Category = "documentation"
)

// AllCategories returns every valid category.
func AllCategories() []Category {
	return []Category{
		CategoryAPI,
		CategoryAuth,
		CategorySecurity,
		CategoryErrors,
		CategoryLogging,
		CategoryDataAccess,
		CategoryConfig,
		CategoryTesting,
		CategoryPerformance,
		CategoryComponents,
		CategoryStyling,
		CategoryStructural,
		CategoryTypes,
		CategoryNaming,
		CategoryDocumentation,
	}
}

// ValidCategory reports whether c is a known category.
func ValidCategory(c Category) bool {
	for _, known := range AllCategories() {
		if c == known {
			return true
		}
	}
	return false
}

// Severity ranks how serious a drift finding is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)
