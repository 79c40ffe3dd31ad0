package filters

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entityql/internal/diagnostics"
	"entityql/internal/expr"
	"entityql/internal/middleware"
	"entityql/internal/projection"
	"entityql/internal/queryable"
	"entityql/internal/testutil"
)

func TestAdd_Validation(t *testing.T) {
	t.Run("concrete navigation is accepted", func(t *testing.T) {
		r := NewRegistry(testutil.Shop())
		err := r.AddSync("Child", expr.Path("Parent.Property"), func(Context, any) bool { return true })
		require.NoError(t, err)
	})

	t.Run("abstract navigation is rejected at registration", func(t *testing.T) {
		r := NewRegistry(testutil.AbstractParent())
		err := r.AddSync("Child", expr.Path("Parent.Property"), func(Context, any) bool { return true })
		require.Error(t, err)

		var cfgErr *diagnostics.ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "Child", cfgErr.Type)
		assert.Equal(t, "Parent", cfgErr.Member)
		assert.Contains(t, err.Error(), "Parent")
		assert.Contains(t, err.Error(), "ParentBase")
		assert.False(t, r.HasFilters(testutil.MustType(r.model, "Child")))
	})

	t.Run("identity through abstract navigation type is fine", func(t *testing.T) {
		r := NewRegistry(testutil.AbstractParent())
		require.NoError(t, r.AddSync("Child", expr.Identity(), func(Context, any) bool { return true }))
		require.NoError(t, r.AddSync("Child", expr.Path("Parent"), func(Context, any) bool { return true }))
	})

	t.Run("unknown type", func(t *testing.T) {
		r := NewRegistry(testutil.Shop())
		err := r.AddSync("Nope", nil, func(Context, any) bool { return true })
		var cfgErr *diagnostics.ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "Nope", cfgErr.Type)
	})

	t.Run("unknown member", func(t *testing.T) {
		r := NewRegistry(testutil.Shop())
		err := r.AddSync("Child", expr.Path("Parent.Missing"), func(Context, any) bool { return true })
		var cfgErr *diagnostics.ConfigError
		require.ErrorAs(t, err, &cfgErr)
	})

	t.Run("nil predicate", func(t *testing.T) {
		r := NewRegistry(testutil.Shop())
		require.Error(t, r.Add("Child", nil, nil))
		require.Error(t, r.AddSync("Child", nil, nil))
	})
}

func TestRequiredPaths(t *testing.T) {
	m := testutil.Shop()
	r := NewRegistry(m)
	accept := func(Context, any) bool { return true }
	require.NoError(t, r.AddSync("Child", expr.Path("Parent.Property"), accept))
	require.NoError(t, r.AddSync("Child", expr.Identity(), accept))
	require.NoError(t, r.AddSync("Document", expr.Path("Title"), accept))
	require.NoError(t, r.AddSync("Attachment", expr.Path("Request.Title"), accept))

	assert.ElementsMatch(t, []string{"Parent.Property"}, r.RequiredPaths(testutil.MustType(m, "Child")).Sorted())
	assert.Empty(t, r.RequiredPaths(testutil.MustType(m, "Parent")).Sorted())

	// Base type filters reach every concrete type.
	assert.ElementsMatch(t, []string{"Title"}, r.RequiredPaths(testutil.MustType(m, "Request")).Sorted())
	assert.ElementsMatch(t, []string{"Title", "Request.Title"}, r.RequiredPaths(testutil.MustType(m, "Attachment")).Sorted())
	// Rows read through the base type may be attachments.
	assert.ElementsMatch(t, []string{"Title", "Request.Title"}, r.RequiredPaths(testutil.MustType(m, "Document")).Sorted())
}

func TestMergeRequirements(t *testing.T) {
	accept := func(Context, any) bool { return true }

	t.Run("filter adds a navigation the selection never asked for", func(t *testing.T) {
		m := testutil.Shop()
		r := NewRegistry(m)
		require.NoError(t, r.AddSync("Child", expr.Path("Parent.Property"), accept))

		info := projection.New(testutil.MustType(m, "Child"))
		info.AddScalar("Property")
		r.MergeRequirements(info)

		paths := info.Paths()
		assert.True(t, paths.Contains("Property"))
		assert.True(t, paths.Contains("ParentId"))
		assert.True(t, paths.Contains("Parent.Property"))
		assert.Equal(t, []string{"Parent"}, info.NavigationPaths())
	})

	t.Run("nested requirement is prefixed by the requested navigation", func(t *testing.T) {
		m := testutil.Shop()
		r := NewRegistry(m)
		require.NoError(t, r.AddSync("Parent", expr.Path("Status"), accept))

		child := testutil.MustType(m, "Child")
		info := projection.New(child)
		info.AddScalar("Property")
		parent := info.AddNavigation(child.FindNavigation("Parent"))
		parent.AddScalar("Property")
		r.MergeRequirements(info)

		paths := info.Paths()
		assert.True(t, paths.Contains("Parent.Status"))
		assert.False(t, paths.Contains("Status"))
	})

	t.Run("merge is commutative", func(t *testing.T) {
		m := testutil.Shop()
		r := NewRegistry(m)
		require.NoError(t, r.AddSync("Child", expr.Path("Parent.Status"), accept))
		child := testutil.MustType(m, "Child")

		requested := projection.New(child)
		requested.AddNavigation(child.FindNavigation("Parent")).AddScalar("Property")

		a := requested.Clone()
		r.MergeRequirements(a)

		b := projection.New(child)
		r.MergeRequirements(b)
		b.Merge(requested)

		assert.True(t, a.Paths().Equal(b.Paths()), "%v != %v", a.Paths().Sorted(), b.Paths().Sorted())
	})

	t.Run("mutually requiring hierarchy members stop at the revisited type", func(t *testing.T) {
		m := testutil.Shop()
		r := NewRegistry(m)
		require.NoError(t, r.AddSync("Attachment", expr.Path("Request.Title"), accept))
		require.NoError(t, r.AddSync("Request", expr.Path("Attachments.Title"), accept))

		info := projection.New(testutil.MustType(m, "Attachment"))
		info.AddScalar("FileName")
		r.MergeRequirements(info)

		assert.Equal(t, []string{"Request"}, info.NavigationPaths())
		assert.True(t, info.Paths().Contains("Request.Title"))
	})

	t.Run("self reference does not grow", func(t *testing.T) {
		m := testutil.Shop()
		r := NewRegistry(m)
		require.NoError(t, r.AddSync("Employee", expr.Path("Manager.Name"), accept))

		info := projection.New(testutil.MustType(m, "Employee"))
		info.AddScalar("Name")
		r.MergeRequirements(info)

		assert.Empty(t, info.NavigationPaths())
	})
}

func TestApplyFilter_MatchesDirectFiltering(t *testing.T) {
	m := testutil.Shop()
	child := testutil.MustType(m, "Child")
	parent := testutil.MustType(m, "Parent")
	rng := rand.New(rand.NewSource(7))

	statuses := []any{"active", "archived", nil}
	keep := func(v any) bool { return v == "active" }

	r := NewRegistry(m)
	calls := 0
	require.NoError(t, r.AddSync("Child", expr.Path("Parent.Status"), func(_ Context, v any) bool {
		calls++
		return keep(v)
	}))

	for round := 0; round < 20; round++ {
		calls = 0
		n := rng.Intn(30)
		items := make([]*queryable.Entity, 0, n)
		var want []*queryable.Entity
		for i := 0; i < n; i++ {
			c := queryable.NewEntity(child, map[string]any{"Id": int64(i)})
			status := statuses[rng.Intn(len(statuses))]
			var p *queryable.Entity
			if rng.Intn(5) > 0 {
				p = queryable.NewEntity(parent, map[string]any{"Id": int64(i), "Status": status})
			}
			c.SetReference(child.FindNavigation("Parent"), p)
			items = append(items, c)

			var projected any
			if p != nil {
				projected, _ = p.Get("Status")
			}
			if keep(projected) {
				want = append(want, c)
			}
		}

		got, err := r.ApplyFilter(context.Background(), items, Context{})
		require.NoError(t, err)
		assert.Equal(t, len(want), len(got), "round %d", round)
		assert.Equal(t, fmt.Sprint(want), fmt.Sprint(got), "round %d", round)
		assert.Equal(t, n, calls, "each row is evaluated once")
	}
}

func TestShouldInclude(t *testing.T) {
	m := testutil.Shop()
	doc := func(typeName string, id int64, title string) *queryable.Entity {
		return queryable.NewEntity(testutil.MustType(m, typeName), map[string]any{"Id": id, "Title": title})
	}

	t.Run("base type filter applies to derived rows", func(t *testing.T) {
		r := NewRegistry(m)
		require.NoError(t, r.AddSync("Document", expr.Path("Title"), func(_ Context, v any) bool {
			return v != "secret"
		}))

		got, err := r.ApplyFilter(context.Background(), []*queryable.Entity{
			doc("Request", 1, "open"),
			doc("Attachment", 2, "secret"),
			doc("Attachment", 3, "public"),
		}, Context{})
		require.NoError(t, err)
		assert.Equal(t, "[Request(Id=1) Attachment(Id=3)]", fmt.Sprint(got))
	})

	t.Run("derived filter leaves siblings alone", func(t *testing.T) {
		r := NewRegistry(m)
		require.NoError(t, r.AddSync("Attachment", nil, func(Context, any) bool { return false }))

		ok, err := r.ShouldInclude(context.Background(), doc("Request", 1, "x"), Context{})
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = r.ShouldInclude(context.Background(), doc("Attachment", 2, "x"), Context{})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("identity passes the entity and principal through", func(t *testing.T) {
		r := NewRegistry(m)
		var seen any
		var subject string
		require.NoError(t, r.AddSync("Request", expr.Identity(), func(fc Context, v any) bool {
			seen = v
			subject = fc.Principal.Subject
			return true
		}))

		item := doc("Request", 9, "x")
		ok, err := r.ShouldInclude(context.Background(), item, Context{Principal: &middleware.AuthContext{Subject: "alice"}})
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Same(t, item, seen)
		assert.Equal(t, "alice", subject)
	})

	t.Run("predicate errors are returned unchanged", func(t *testing.T) {
		r := NewRegistry(m)
		boom := errors.New("policy service unavailable")
		require.NoError(t, r.Add("Request", nil, func(context.Context, Context, any) (bool, error) {
			return false, boom
		}))

		_, err := r.ApplyFilter(context.Background(), []*queryable.Entity{doc("Request", 1, "x")}, Context{})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("cancellation is passed through", func(t *testing.T) {
		r := NewRegistry(m)
		require.NoError(t, r.AddSync("Request", nil, func(Context, any) bool { return true }))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := r.ApplyFilter(ctx, []*queryable.Entity{doc("Request", 1, "x")}, Context{})
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("types without filters keep every row", func(t *testing.T) {
		r := NewRegistry(m)
		items := []*queryable.Entity{doc("Request", 1, "x"), nil}
		got, err := r.ApplyFilter(context.Background(), items, Context{})
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})
}
