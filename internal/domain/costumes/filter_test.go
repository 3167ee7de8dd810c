package costumes

import (
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// dryRunDB renders postgres SQL without a server.
func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=localhost user=test dbname=test sslmode=disable",
	}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
		Logger:               logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db
}

func render(t *testing.T, scopes ...func(*gorm.DB) *gorm.DB) *gorm.Statement {
	t.Helper()
	var out []Costume
	return dryRunDB(t).Scopes(scopes...).Find(&out).Statement
}

func TestTagsFilterRequiresEveryTag(t *testing.T) {
	stmt := render(t, Filter{Tags: []string{"A", "B"}}.Scope())

	sql := stmt.SQL.String()
	assert.Contains(t, sql, "tags @> $1")
	require.NotEmpty(t, stmt.Vars)
	assert.Equal(t, pq.StringArray{"A", "B"}, stmt.Vars[0])

	// a costume tagged only ["A"] is not a superset of {A,B}
	assert.NotContains(t, sql, " OR ")
}

func TestFilterCombinesPredicatesWithAnd(t *testing.T) {
	minPrice, maxPrice, minAmount := 10.0, 50.0, 1
	active := false
	f := Filter{
		Name:        "Wit",
		Gender:      GenderFemale,
		AgeCategory: AgeAdult,
		Size:        "M",
		MinPrice:    &minPrice,
		MaxPrice:    &maxPrice,
		MinAmount:   &minAmount,
		IsActive:    &active,
	}
	stmt := render(t, f.Scope(), Newest(20, 10))
	sql := stmt.SQL.String()

	for _, fragment := range []string{
		"LOWER(name) LIKE $1",
		"gender = $2",
		"age_category = $3",
		"size = $4",
		"price >= $5",
		"price <= $6",
		"amount >= $7",
		"is_active = $8",
		"ORDER BY created_at DESC,id DESC",
		"LIMIT $9",
		"OFFSET $10",
	} {
		assert.Contains(t, sql, fragment)
	}
	assert.NotContains(t, sql, " OR ")
	assert.Equal(t, []any{"%wit%", GenderFemale, AgeAdult, "M", 10.0, 50.0, 1, false, 10, 20}, stmt.Vars)
}

func TestEmptyFilterHasNoWhere(t *testing.T) {
	stmt := render(t, Filter{}.Scope())
	assert.NotContains(t, stmt.SQL.String(), "WHERE")
}

func TestPublicFilterForcesActive(t *testing.T) {
	inactive := false
	f := Filter{IsActive: &inactive}.Public()
	require.NotNil(t, f.IsActive)
	assert.True(t, *f.IsActive)

	stmt := render(t, f.Scope())
	assert.Contains(t, stmt.SQL.String(), "is_active = $1")
	assert.Equal(t, []any{true}, stmt.Vars)
}

func TestSearchScope(t *testing.T) {
	stmt := render(t, SearchScope("Hat", true))
	sql := stmt.SQL.String()

	assert.Contains(t, sql, "(LOWER(name) LIKE $1 OR LOWER(COALESCE(description, '')) LIKE $2 OR LOWER(COALESCE(items, '')) LIKE $3)")
	assert.Contains(t, sql, "is_active = $4")
	assert.Equal(t, []any{"%hat%", "%hat%", "%hat%", true}, stmt.Vars)

	admin := render(t, SearchScope("Hat", false))
	assert.NotContains(t, admin.SQL.String(), "is_active")
}
