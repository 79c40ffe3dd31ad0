package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entityql/internal/model"
	"entityql/internal/testutil"
)

func TestBuildNavigationMap(t *testing.T) {
	m := testutil.Shop()
	navs := model.BuildNavigationMap(m)

	child := testutil.MustType(m, "Child")
	require.Len(t, navs[child], 1)
	assert.Equal(t, "Parent", navs[child][0].Name)
	assert.False(t, navs[child][0].IsCollection)
	assert.Equal(t, []string{"ParentId"}, navs[child][0].ForeignKeys)

	parent := testutil.MustType(m, "Parent")
	require.Len(t, navs[parent], 1)
	assert.True(t, navs[parent][0].IsCollection)
	assert.Same(t, navs[child][0], navs[parent][0].Inverse)

	attachment := testutil.MustType(m, "Attachment")
	require.Len(t, navs[attachment], 1, "direct navigations only")
	assert.Equal(t, "Request", navs[attachment][0].Name)

	// The map is computed once at build time.
	assert.Equal(t, navs[child], m.Navigations(child))
}

func TestEntityTypeLookup(t *testing.T) {
	m := testutil.Shop()

	attachment, ok := m.Type("attachment")
	require.True(t, ok)
	document := testutil.MustType(m, "Document")

	assert.Equal(t, "documents", attachment.Table)
	assert.Equal(t, "kind", attachment.DiscriminatorColumn())
	assert.Equal(t, []string{"Id"}, attachment.Keys())
	require.NotNil(t, attachment.FindProperty("title"), "inherited lookup is case-insensitive")
	assert.Equal(t, "Title", attachment.FindProperty("TITLE").Name)
	assert.Nil(t, document.FindProperty("FileName"))

	assert.True(t, document.IsAssignableFrom(attachment))
	assert.False(t, attachment.IsAssignableFrom(document))

	concrete := document.ConcreteTypes()
	require.Len(t, concrete, 2)
	assert.Equal(t, "Request", concrete[0].Name)
	assert.Equal(t, []string{"request", "attachment"}, document.DiscriminatorValues())

	got, ok := document.TypeForDiscriminator("attachment")
	require.True(t, ok)
	assert.Same(t, attachment, got)

	var columns []string
	for _, p := range document.HierarchyProperties() {
		columns = append(columns, p.Column)
	}
	assert.Equal(t, []string{"id", "title", "priority", "file_name", "request_id"}, columns)

	assert.Equal(t, map[string][]string{
		"Parent": {"Id"}, "Child": {"Id"}, "Person": {"Id"}, "Employee": {"Id"},
		"Document": {"Id"}, "Request": {"Id"}, "Attachment": {"Id"},
	}, m.KeyNames())
}

func TestBuilderErrors(t *testing.T) {
	tests := []struct {
		name    string
		declare func(b *model.Builder)
		want    string
	}{
		{
			name: "missing key",
			declare: func(b *model.Builder) {
				b.Entity("A", "a").Property("Id", model.KindInt)
			},
			want: "has no key",
		},
		{
			name: "unknown target",
			declare: func(b *model.Builder) {
				b.Entity("A", "a").Key("Id").Property("Id", model.KindInt).Property("BId", model.KindInt).
					Reference("B", "Missing", "BId")
			},
			want: "unknown type Missing",
		},
		{
			name: "foreign key is not a property",
			declare: func(b *model.Builder) {
				b.Entity("A", "a").Key("Id").Property("Id", model.KindInt).Reference("Self", "A", "Nope")
			},
			want: "foreign key Nope is not a property of A",
		},
		{
			name: "derived without discriminator",
			declare: func(b *model.Builder) {
				b.Entity("A", "a").Key("Id").Property("Id", model.KindInt)
				b.Entity("B", "").Derives("A", "b")
			},
			want: "has no discriminator column",
		},
		{
			name: "inherits from itself",
			declare: func(b *model.Builder) {
				b.Entity("A", "a").Discriminator("kind").Derives("B", "a")
				b.Entity("B", "").Derives("A", "b")
			},
			want: "entity type A inherits from itself",
		},
		{
			name: "derives into a cycle",
			declare: func(b *model.Builder) {
				b.Entity("C", "").Derives("A", "c")
				b.Entity("A", "a").Discriminator("kind").Derives("B", "a")
				b.Entity("B", "").Derives("A", "b")
			},
			want: "entity type C derives from A, which is part of an inheritance cycle",
		},
		{
			name: "navigation collides with property",
			declare: func(b *model.Builder) {
				b.Entity("A", "a").Key("Id").Property("Id", model.KindInt).Property("Owner", model.KindInt).
					Reference("Owner", "A", "Owner")
			},
			want: "collides with a property",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := model.NewBuilder()
			tt.declare(b)
			_, err := b.Build()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestKindForSQLType(t *testing.T) {
	assert.Equal(t, model.KindInt, model.KindForSQLType("bigint(20)"))
	assert.Equal(t, model.KindFloat, model.KindForSQLType("DECIMAL(10,2)"))
	assert.Equal(t, model.KindBool, model.KindForSQLType("boolean"))
	assert.Equal(t, model.KindTime, model.KindForSQLType("datetime"))
	assert.Equal(t, model.KindString, model.KindForSQLType("json"))

	v, err := model.KindInt.Parse(" 42 ")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)
	_, err = model.KindBool.Parse("maybe")
	assert.Error(t, err)
	tm, err := model.KindTime.Parse("2024-01-15")
	require.NoError(t, err)
	assert.Equal(t, 2024, tm.(interface{ Year() int }).Year())
}
