package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entityql/internal/introspection"
)

func introspectedShop() *introspection.Schema {
	return &introspection.Schema{Tables: []introspection.Table{
		{
			Name: "children",
			Columns: []introspection.Column{
				{Name: "id", DataType: "int", IsPrimaryKey: true},
				{Name: "property", DataType: "varchar", IsNullable: true},
				{Name: "parent_id", DataType: "int", IsNullable: true},
				{Name: "computed_in_db", DataType: "varchar", IsNullable: true, IsGenerated: true},
			},
			ForeignKeys: []introspection.ForeignKey{
				{ColumnName: "parent_id", ReferencedTable: "documents", ReferencedColumn: "id", ConstraintName: "fk_parent", OrdinalPosition: 1},
			},
		},
		{
			Name: "documents",
			Columns: []introspection.Column{
				{Name: "id", DataType: "bigint", IsPrimaryKey: true},
				{Name: "kind", DataType: "varchar"},
				{Name: "title", DataType: "varchar"},
				{Name: "file_name", DataType: "varchar", IsNullable: true},
			},
		},
		{
			Name:    "audit_log",
			Columns: []introspection.Column{{Name: "message", DataType: "text"}},
		},
	}}
}

func TestFromSchema(t *testing.T) {
	m, err := FromSchema(introspectedShop(), Config{
		Hierarchies: []HierarchyConfig{{
			Table:         "documents",
			Discriminator: "kind",
			Abstract:      true,
			Types: []DerivedTypeConfig{
				{Name: "Request", Value: "request"},
				{Name: "Attachment", Value: "attachment", Columns: []string{"file_name"}},
			},
		}},
		ShadowForeignKeys: true,
	})
	require.NoError(t, err)

	_, ok := m.Type("AuditLog")
	assert.False(t, ok, "tables without a primary key are skipped")

	child, ok := m.Type("Child")
	require.True(t, ok)
	assert.Equal(t, "children", child.Table)
	assert.True(t, child.FindProperty("ComputedInDb").ReadOnly)
	assert.True(t, child.FindProperty("ParentId").Shadow)
	assert.Equal(t, "parent_id", child.FindProperty("ParentId").Column)

	nav := child.FindNavigation("Parent")
	require.NotNil(t, nav)
	assert.Equal(t, "Document", nav.Target.Name)
	assert.True(t, nav.Target.Abstract)
	assert.Equal(t, []string{"ParentId"}, nav.ForeignKeys)
	assert.Equal(t, []string{"Id"}, nav.PrincipalKeys)

	document, _ := m.Type("Document")
	children := document.FindNavigation("Children")
	require.NotNil(t, children)
	assert.True(t, children.IsCollection)
	assert.Same(t, nav, children.Inverse)

	attachment, _ := m.Type("Attachment")
	assert.Nil(t, document.FindProperty("FileName"))
	assert.NotNil(t, attachment.FindProperty("FileName"))
	assert.Nil(t, document.FindProperty("Kind"), "discriminator is not a property")
	assert.Equal(t, KindInt, attachment.FindProperty("Id").Kind)
}

func TestFromSchema_NilSchema(t *testing.T) {
	_, err := FromSchema(nil, Config{})
	assert.Error(t, err)
}
