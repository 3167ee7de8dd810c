package costumes

import (
	"strings"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Filter is a conjunction of optional predicates. Zero fields are ignored.
type Filter struct {
	Name        string
	Gender      Gender
	AgeCategory AgeCategory
	Size        string
	Tags        []string
	MinPrice    *float64
	MaxPrice    *float64
	MinAmount   *int
	IsActive    *bool
}

// Public forces is_active = true whatever the caller asked for.
func (f Filter) Public() Filter {
	active := true
	f.IsActive = &active
	return f
}

func (f Filter) Scope() func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if f.Name != "" {
			db = db.Where("LOWER(name) LIKE ?", likePattern(f.Name))
		}
		if f.Gender != "" {
			db = db.Where("gender = ?", f.Gender)
		}
		if f.AgeCategory != "" {
			db = db.Where("age_category = ?", f.AgeCategory)
		}
		if f.Size != "" {
			db = db.Where("size = ?", f.Size)
		}
		if len(f.Tags) > 0 {
			// every listed tag must be present
			db = db.Where("tags @> ?", pq.StringArray(f.Tags))
		}
		if f.MinPrice != nil {
			db = db.Where("price >= ?", *f.MinPrice)
		}
		if f.MaxPrice != nil {
			db = db.Where("price <= ?", *f.MaxPrice)
		}
		if f.MinAmount != nil {
			db = db.Where("amount >= ?", *f.MinAmount)
		}
		if f.IsActive != nil {
			db = db.Where("is_active = ?", *f.IsActive)
		}
		return db
	}
}

// SearchScope matches name, description or items against one substring.
func SearchScope(query string, activeOnly bool) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		like := likePattern(query)
		db = db.Where("(LOWER(name) LIKE ? OR LOWER(COALESCE(description, '')) LIKE ? OR LOWER(COALESCE(items, '')) LIKE ?)", like, like, like)
		if activeOnly {
			db = db.Where("is_active = ?", true)
		}
		return db
	}
}

// Newest orders by creation time, newest first, and pages with offset/limit.
func Newest(skip, limit int) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Order("created_at DESC").Order("id DESC").Offset(skip).Limit(limit)
	}
}

func likePattern(s string) string {
	return "%" + strings.ToLower(s) + "%"
}
