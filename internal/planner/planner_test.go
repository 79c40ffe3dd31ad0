package planner

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entityql/internal/dbexec"
	"entityql/internal/expr"
	"entityql/internal/filters"
	"entityql/internal/projection"
	"entityql/internal/queryable"
	"entityql/internal/testutil"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func expectQuery(t *testing.T, mock sqlmock.Sqlmock, sql string, args []interface{}, rows *sqlmock.Rows) {
	t.Helper()

	expectation := mock.ExpectQuery("^" + regexp.QuoteMeta(sql) + "$")
	if len(args) > 0 {
		expectation = expectation.WithArgs(toDriverValues(args)...)
	}
	expectation.WillReturnRows(rows)
}

func toDriverValues(args []interface{}) []driver.Value {
	values := make([]driver.Value, len(args))
	for i, arg := range args {
		values[i] = arg
	}
	return values
}

type recordedPlan struct {
	entityType string
	projected  bool
	reason     string
	includes   int
}

type fakeRecorder struct {
	plans []recordedPlan
}

func (r *fakeRecorder) RecordPlan(_ context.Context, entityType string, projected bool, reason string, includes int) {
	r.plans = append(r.plans, recordedPlan{entityType, projected, reason, includes})
}

func TestPlan_ProjectsNarrowedShape(t *testing.T) {
	db, mock := newMockDB(t)
	m := testutil.Shop()
	child := testutil.MustType(m, "Child")
	rec := &fakeRecorder{}

	info := projection.FromSelection(child, field("children", field("property"), field("parent", field("property"))), nil)
	result, err := New(m, WithRecorder(rec)).Plan(context.Background(), queryable.From(child), info)
	require.NoError(t, err)
	require.True(t, result.Projected)
	assert.Nil(t, result.Reason)
	assert.Empty(t, result.Includes)
	assert.Equal(t, "Child{Id, Property, ParentId, Parent: Parent{Id, Property}}", result.Query.Shape().String())
	assert.Equal(t, []recordedPlan{{"Child", true, "", 0}}, rec.plans)

	expectQuery(t, mock, "SELECT `children`.`id`, `children`.`property`, `children`.`parent_id` FROM `children`", nil,
		sqlmock.NewRows([]string{"id", "property", "parent_id"}).AddRow(int64(1), "c1", int64(10)))
	expectQuery(t, mock, "SELECT `parents`.`id`, `parents`.`property` FROM `parents` WHERE `parents`.`id` IN (?)",
		[]interface{}{int64(10)},
		sqlmock.NewRows([]string{"id", "property"}).AddRow(int64(10), "p10"))

	entities, err := queryable.NewExecutor(dbexec.NewPoolExecutor(db)).ToList(context.Background(), result.Query)
	require.NoError(t, err)
	require.Len(t, entities, 1)
	parent, ok := entities[0].Reference("Parent")
	require.True(t, ok)
	property, _ := parent.Get("Property")
	assert.Equal(t, "p10", property)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPlan_AbstractNavigationFallsBackToInclude(t *testing.T) {
	db, mock := newMockDB(t)
	m := testutil.AbstractParent()
	child := testutil.MustType(m, "Child")
	rec := &fakeRecorder{}

	info := projection.FromSelection(child, field("children", field("property"), field("parent", field("property"))), nil)
	result, err := New(m, WithRecorder(rec)).Plan(context.Background(), queryable.From(child), info)
	require.NoError(t, err)
	assert.False(t, result.Projected)
	assert.Nil(t, result.Reason)
	assert.Equal(t, []string{"Parent"}, result.Dropped)
	assert.Equal(t, []string{"Parent"}, result.Includes)
	assert.Equal(t, []recordedPlan{{"Child", false, "abstract_navigation", 1}}, rec.plans)

	expectQuery(t, mock, "SELECT `children`.`id`, `children`.`property`, `children`.`parent_id` FROM `children`", nil,
		sqlmock.NewRows([]string{"id", "property", "parent_id"}).AddRow(int64(1), "c1", int64(10)))
	expectQuery(t, mock,
		"SELECT `parents`.`kind`, `parents`.`id`, `parents`.`property`, `parents`.`extra` FROM `parents` WHERE `parents`.`kind` IN (?) AND `parents`.`id` IN (?)",
		[]interface{}{"concrete", int64(10)},
		sqlmock.NewRows([]string{"kind", "id", "property", "extra"}).AddRow("concrete", int64(10), "p10", "x"))

	entities, err := queryable.NewExecutor(dbexec.NewPoolExecutor(db)).ToList(context.Background(), result.Query)
	require.NoError(t, err)
	require.Len(t, entities, 1)
	parent, ok := entities[0].Reference("Parent")
	require.True(t, ok)
	require.NotNil(t, parent)
	assert.Equal(t, "ConcreteParent", parent.Type().Name)
	property, _ := parent.Get("Property")
	assert.Equal(t, "p10", property)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPlan_ReadOnlyColumnLoadsFullEntity(t *testing.T) {
	db, mock := newMockDB(t)
	m := testutil.Shop()
	person := testutil.MustType(m, "Person")

	info := projection.FromSelection(person, field("people", field("firstName"), field("computedInDb")), nil)
	result, err := New(m).Plan(context.Background(), queryable.From(person), info)
	require.NoError(t, err)
	assert.False(t, result.Projected)
	require.NotNil(t, result.Reason)
	assert.Equal(t, Reason{Kind: ReasonReadOnlyProperty, Type: "Person", Member: "ComputedInDb"}, *result.Reason)

	expectQuery(t, mock, "SELECT `people`.`id`, `people`.`first_name`, `people`.`last_name`, `people`.`computed_in_db` FROM `people`", nil,
		sqlmock.NewRows([]string{"id", "first_name", "last_name", "computed_in_db"}).AddRow(int64(1), "Ada", "Lovelace", "Ada L."))

	entities, err := queryable.NewExecutor(dbexec.NewPoolExecutor(db)).ToList(context.Background(), result.Query)
	require.NoError(t, err)
	require.Len(t, entities, 1)
	computed, _ := entities[0].Get("ComputedInDb")
	assert.Equal(t, "Ada L.", computed)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPlan_FilterRequirementsAreLoaded(t *testing.T) {
	db, mock := newMockDB(t)
	m := testutil.Shop()
	child := testutil.MustType(m, "Child")

	registry := filters.NewRegistry(m)
	require.NoError(t, registry.AddSync("Child", expr.Path("Parent.Property"), func(_ filters.Context, v any) bool {
		return v == "visible"
	}))

	// { property } only; the filter needs Parent.Property.
	info := projection.FromSelection(child, field("children", field("property")), nil)
	result, err := New(m, WithRequirements(registry)).Plan(context.Background(), queryable.From(child), info)
	require.NoError(t, err)
	require.True(t, result.Projected)
	assert.True(t, result.Info.Paths().Contains("Parent.Property"))
	assert.False(t, info.Paths().Contains("Parent.Property"), "the caller's tree is not modified")
	assert.Equal(t, "Child{Id, Property, ParentId, Parent: Parent{Id, Property}}", result.Query.Shape().String())

	expectQuery(t, mock, "SELECT `children`.`id`, `children`.`property`, `children`.`parent_id` FROM `children`", nil,
		sqlmock.NewRows([]string{"id", "property", "parent_id"}).
			AddRow(int64(1), "c1", int64(10)).
			AddRow(int64(2), "c2", int64(20)))
	expectQuery(t, mock, "SELECT `parents`.`id`, `parents`.`property` FROM `parents` WHERE `parents`.`id` IN (?,?)",
		[]interface{}{int64(10), int64(20)},
		sqlmock.NewRows([]string{"id", "property"}).
			AddRow(int64(10), "visible").
			AddRow(int64(20), "hidden"))

	entities, err := queryable.NewExecutor(dbexec.NewPoolExecutor(db)).ToList(context.Background(), result.Query)
	require.NoError(t, err)
	visible, err := registry.ApplyFilter(context.Background(), entities, filters.Context{})
	require.NoError(t, err)
	require.Len(t, visible, 1)
	id, _ := visible[0].Get("Id")
	assert.Equal(t, int64(1), id)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPlan_SelfReferencingHierarchyFilters(t *testing.T) {
	db, mock := newMockDB(t)
	m := testutil.Shop()
	attachment := testutil.MustType(m, "Attachment")

	registry := filters.NewRegistry(m)
	require.NoError(t, registry.AddSync("Attachment", expr.Path("Request.Title"), func(_ filters.Context, v any) bool {
		return v != nil
	}))
	require.NoError(t, registry.AddSync("Request", expr.Path("Attachments.Title"), func(filters.Context, any) bool {
		return true
	}))

	info := projection.FromSelection(attachment, field("attachments", field("fileName")), nil)
	result, err := New(m, WithRequirements(registry)).Plan(context.Background(), queryable.From(attachment), info)
	require.NoError(t, err)
	assert.Equal(t, []string{"Request"}, result.Info.NavigationPaths())
	require.True(t, result.Projected)
	assert.Equal(t, "Attachment{Id, FileName, RequestId, Request: Request{Id, Title}}", result.Query.Shape().String())

	expectQuery(t, mock,
		"SELECT `documents`.`id`, `documents`.`file_name`, `documents`.`request_id` FROM `documents` WHERE `documents`.`kind` IN (?)",
		[]interface{}{"attachment"},
		sqlmock.NewRows([]string{"id", "file_name", "request_id"}).
			AddRow(int64(2), "roof.jpg", int64(1)).
			AddRow(int64(3), "loose.txt", nil))
	expectQuery(t, mock,
		"SELECT `documents`.`id`, `documents`.`title` FROM `documents` WHERE `documents`.`kind` IN (?) AND `documents`.`id` IN (?)",
		[]interface{}{"request", int64(1)},
		sqlmock.NewRows([]string{"id", "title"}).AddRow(int64(1), "Fix roof"))

	entities, err := queryable.NewExecutor(dbexec.NewPoolExecutor(db)).ToList(context.Background(), result.Query)
	require.NoError(t, err)
	visible, err := registry.ApplyFilter(context.Background(), entities, filters.Context{})
	require.NoError(t, err)
	require.Len(t, visible, 1)
	name, _ := visible[0].Get("FileName")
	assert.Equal(t, "roof.jpg", name)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPlan_IncludeFallbackIsGuarded(t *testing.T) {
	m := testutil.Shop()
	document := testutil.MustType(m, "Document")

	info := projection.New(document)
	info.MergePaths(projection.NewPathSet("Title", "Attachments.Request.Title"))
	result, err := New(m).Plan(context.Background(), queryable.From(document), info)
	require.NoError(t, err)
	assert.False(t, result.Projected)
	require.NotNil(t, result.Reason)
	assert.Equal(t, ReasonAbstractType, result.Reason.Kind)
	assert.Equal(t, []string{"Attachments.Request"}, result.Includes)
}

func TestPlan_SharedNavigationRequirementsMergeIntoOneNode(t *testing.T) {
	m := testutil.Shop()
	child := testutil.MustType(m, "Child")
	accept := func(filters.Context, any) bool { return true }

	// Parent is reached once from the Child filter's path and once as the
	// nested level the Parent filter applies to.
	registry := filters.NewRegistry(m)
	require.NoError(t, registry.AddSync("Child", expr.Path("Parent.Property"), accept))
	require.NoError(t, registry.AddSync("Parent", expr.Path("Status"), accept))

	info := projection.FromSelection(child, field("children", field("parent", field("id"))), nil)
	result, err := New(m, WithRequirements(registry)).Plan(context.Background(), queryable.From(child), info)
	require.NoError(t, err)
	require.True(t, result.Projected)
	require.Len(t, result.Info.SortedNavigations(), 1)

	parent, ok := result.Query.Shape().Navigation("Parent")
	require.True(t, ok)
	require.NotNil(t, parent.Shape)
	assert.True(t, parent.Shape.Has("Property"))
	assert.True(t, parent.Shape.Has("Status"))
	assert.True(t, result.Info.Paths().Contains("Parent.Property"))
	assert.True(t, result.Info.Paths().Contains("Parent.Status"))
}

func TestPlan_MergeOrderDoesNotMatter(t *testing.T) {
	m := testutil.Shop()
	child := testutil.MustType(m, "Child")

	registry := filters.NewRegistry(m)
	require.NoError(t, registry.AddSync("Parent", expr.Path("Status"), func(filters.Context, any) bool { return true }))

	requested := projection.FromSelection(child, field("children", field("parent", field("property"))), nil)
	planner := New(m, WithRequirements(registry))

	first, err := planner.Plan(context.Background(), queryable.From(child), requested)
	require.NoError(t, err)
	again, err := planner.Plan(context.Background(), queryable.From(child), first.Info)
	require.NoError(t, err)

	assert.True(t, first.Info.Paths().Contains("Parent.Status"))
	assert.True(t, first.Info.Paths().Equal(again.Info.Paths()))
	assert.Equal(t, first.Query.Shape().String(), again.Query.Shape().String())
}

func TestPlan_AlreadyProjectedAndEmpty(t *testing.T) {
	m := testutil.Shop()
	child := testutil.MustType(m, "Child")

	projected := queryable.From(child).Select(queryable.FullShape(child))
	result, err := New(m).Plan(context.Background(), projected, projection.New(child))
	require.NoError(t, err)
	assert.Same(t, projected, result.Query)
	assert.True(t, result.Projected)

	result, err = New(m).Plan(context.Background(), queryable.From(child), nil)
	require.NoError(t, err)
	assert.False(t, result.Projected)
	require.NotNil(t, result.Reason)
	assert.Equal(t, ReasonNothingRequested, result.Reason.Kind)
}

func TestPlan_Limits(t *testing.T) {
	m := testutil.Shop()
	child := testutil.MustType(m, "Child")

	info := projection.FromSelection(child,
		field("children", field("parent", field("children", field("property")))), nil)
	assert.Equal(t, PlanCost{Depth: 2, Statements: 3}, EstimateCost(info))

	_, err := New(m, WithLimits(PlanLimits{MaxDepth: 1})).Plan(context.Background(), queryable.From(child), info)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maximum depth of 1")

	_, err = New(m, WithLimits(PlanLimits{MaxStatements: 2})).Plan(context.Background(), queryable.From(child), info)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maximum statement count of 2")

	_, err = New(m, WithLimits(PlanLimits{MaxDepth: 2, MaxStatements: 3})).Plan(context.Background(), queryable.From(child), info)
	require.NoError(t, err)
}
