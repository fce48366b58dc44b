// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

package resolver_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelsmith-dev/modelsmith/internal/resolver"
	mserr "github.com/modelsmith-dev/modelsmith/pkg/errors"
	"github.com/modelsmith-dev/modelsmith/pkg/types"
)

var repoFiles = []string{
	"README.md",
	"dbt_project.yml",
	"models/marts/orders.sql",
	"models/marts/schema.yml",
	"models/staging/stg_orders.sql",
	"models/staging/stg_customers.sql",
	"models/staging/schema.yaml",
	"models/d_customers.sql",
	"analyses/orders.sql",
	"scripts/load.py",
}

func TestResolve_ExactBasename(t *testing.T) {
	r := resolver.New()

	got, err := r.Resolve("orders.sql", repoFiles)
	require.NoError(t, err)
	assert.Equal(t, "models/marts/orders.sql", got, "files outside the models root are not candidates")

	got, err = r.Resolve("STG_ORDERS.SQL", repoFiles)
	require.NoError(t, err)
	assert.Equal(t, "models/staging/stg_orders.sql", got)
}

func TestResolve_ExactWinsOverNearMatches(t *testing.T) {
	pool := []string{"models/orders.sql", "models/orders_v2.sql", "models/order.sql", "models/orderz.sql"}
	got, err := resolver.New().Resolve("orders.sql", pool)
	require.NoError(t, err)
	assert.Equal(t, "models/orders.sql", got)
}

func TestResolve_SuffixBreaksBasenameTie(t *testing.T) {
	pool := []string{"models/marts/orders.sql", "models/staging/orders.sql", "models/ordersx.sql"}

	got, err := resolver.New().Resolve("marts/orders.sql", pool)
	require.NoError(t, err)
	assert.Equal(t, "models/marts/orders.sql", got)

	got, err = resolver.New().Resolve("models/staging/orders.sql", pool)
	require.NoError(t, err)
	assert.Equal(t, "models/staging/orders.sql", got)
}

func TestResolve_SuffixBeatsFuzzy(t *testing.T) {
	pool := []string{"models/a/orders.sql", "models/b/orders.sql", "models/orders1.sql"}
	got, err := resolver.New().Resolve("b/orders.sql", pool)
	require.NoError(t, err)
	assert.Equal(t, "models/b/orders.sql", got)
}

func TestResolve_BasenameTieWithoutDirectoryIsAmbiguous(t *testing.T) {
	pool := []string{"models/marts/orders.sql", "models/staging/orders.sql"}
	_, err := resolver.New().Resolve("orders.sql", pool)
	require.Error(t, err)
	assert.True(t, mserr.IsNotFound(err))
	assert.Contains(t, err.Error(), "ambiguous")
	assert.Contains(t, err.Error(), "models/marts/orders.sql")
}

func TestResolve_FuzzyStem(t *testing.T) {
	got, err := resolver.New().Resolve("customers.sql", []string{"models/d_customers.sql", "models/orders.sql"})
	require.NoError(t, err)
	assert.Equal(t, "models/d_customers.sql", got)
}

func TestResolve_FuzzyTieIsNotFound(t *testing.T) {
	pool := []string{"models/cust1.sql", "models/cust2.sql"}
	_, err := resolver.New().Resolve("cust.sql", pool)
	require.Error(t, err)
	assert.True(t, mserr.IsNotFound(err))
	assert.Equal(t, "cust.sql", mserr.FieldsOf(err)["fragment"])
}

func TestResolve_BelowThreshold(t *testing.T) {
	_, err := resolver.New().Resolve("revenue.sql", []string{"models/orders.sql"})
	require.Error(t, err)
	assert.True(t, mserr.IsNotFound(err))
}

func TestResolve_PoolPartitionedByKind(t *testing.T) {
	r := resolver.New()

	got, err := r.Resolve("schema.yaml", repoFiles)
	require.NoError(t, err)
	assert.Equal(t, "models/staging/schema.yaml", got)

	// A YAML fragment never lands on a SQL file even when the stems match.
	_, err = r.Resolve("d_customers.yml", repoFiles)
	require.Error(t, err)
	assert.True(t, mserr.IsNotFound(err))
}

func TestResolve_OtherKindsSearchWholeRepo(t *testing.T) {
	got, err := resolver.New().Resolve("load.py", repoFiles)
	require.NoError(t, err)
	assert.Equal(t, "scripts/load.py", got)
}

func TestResolve_UnsupportedKind(t *testing.T) {
	_, err := resolver.New().Resolve("notes.txt", repoFiles)
	require.Error(t, err)
	assert.True(t, mserr.HasCode(err, mserr.CodeResolverKindUnsupported))
}

func TestResolve_EmptyModelsRoot(t *testing.T) {
	r := resolver.New(resolver.WithModelsRoot(""))
	_, err := r.Resolve("orders.sql", repoFiles)
	require.Error(t, err, "two orders.sql files exist once the root is lifted")

	got, err := r.Resolve("analyses/orders.sql", repoFiles)
	require.NoError(t, err)
	assert.Equal(t, "analyses/orders.sql", got)
}

func TestResolve_IsDeterministic(t *testing.T) {
	pool := []string{"models/cust2.sql", "models/customer.sql", "models/cust1.sql"}
	reversed := []string{"models/cust1.sql", "models/customer.sql", "models/cust2.sql"}
	r := resolver.New()

	a, errA := r.Resolve("customers.sql", pool)
	b, errB := r.Resolve("customers.sql", reversed)
	require.NoError(t, errA)
	require.NoError(t, errB)
	assert.Equal(t, a, b)
	assert.Equal(t, "models/customer.sql", a)
}

func TestPool(t *testing.T) {
	r := resolver.New()
	assert.Equal(t, []string{
		"models/d_customers.sql",
		"models/marts/orders.sql",
		"models/staging/stg_customers.sql",
		"models/staging/stg_orders.sql",
	}, r.Pool(types.KindSQL, repoFiles))
	assert.Equal(t, []string{"models/marts/schema.yml", "models/staging/schema.yaml"}, r.Pool(types.KindYAML, repoFiles))
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, resolver.Similarity("orders", "orders"), 1e-9)
	assert.InDelta(t, 0.9, resolver.Similarity("customers", "d_customers"), 1e-9)
	assert.InDelta(t, 0.0, resolver.Similarity("abc", "xyz"), 1e-9)
}
