package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanCatalogHolderReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
plans:
  - name: FREE
  - name: PRO
    inherits: [FREE]
    capabilities: [SMARTAI]
  - name: AGENCY
    inherits: [PRO]
`), 0o600))

	holder, err := NewPlanCatalogHolder(Config{PlansPath: path})
	require.NoError(t, err)

	catalog := holder.Get()
	require.Len(t, catalog.Plans, 3)
	assert.Equal(t, "AGENCY", catalog.Plans[2].Name)
	assert.Equal(t, []string{"PRO"}, catalog.Plans[2].Inherits)
}

func TestPlanCatalogHolderRejectsUnknownParent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
plans:
  - name: PRO
    inherits: [GOLD]
`), 0o600))

	_, err := NewPlanCatalogHolder(Config{PlansPath: path})
	assert.Error(t, err)
}

func TestPlanCatalogHolderMissingExplicitPath(t *testing.T) {
	_, err := NewPlanCatalogHolder(Config{PlansPath: filepath.Join(t.TempDir(), "absent.yml")})
	assert.Error(t, err)
}

func TestPlanCatalogHolderNotifiesSubscribers(t *testing.T) {
	holder := NewStaticPlanCatalogHolder(DefaultPlanCatalog())
	var seen []PlanCatalog
	holder.OnChange(func(c PlanCatalog) { seen = append(seen, c) })

	next := PlanCatalog{Plans: []PlanDefinition{{Name: "FREE"}}}
	holder.Set(next)

	require.Len(t, seen, 1)
	assert.Equal(t, next, holder.Get())
}

func TestValidatePlanCatalog(t *testing.T) {
	assert.NoError(t, ValidatePlanCatalog(DefaultPlanCatalog()))
	assert.Error(t, ValidatePlanCatalog(PlanCatalog{}))
	assert.Error(t, ValidatePlanCatalog(PlanCatalog{Plans: []PlanDefinition{{Name: "A"}, {Name: "a"}}}))
	assert.Error(t, ValidatePlanCatalog(PlanCatalog{Plans: []PlanDefinition{{Name: " "}}}))
}
