// Package testutil holds entity models shared by package tests.
package testutil

import (
	"entityql/internal/model"
)

// Shop returns a model covering the planner's interesting shapes:
//
//	Parent 1-* Child               plain reference/collection pair
//	Person                         computed column ComputedInDb
//	Employee.Manager -> Employee   self reference
//	Document (abstract, TPH)       Request 1-* Attachment, both Documents
func Shop() *model.Model {
	b := model.NewBuilder()

	b.Entity("Parent", "parents").
		Key("Id").
		Property("Id", model.KindInt).
		Property("Property", model.KindString, model.Nullable()).
		Property("Status", model.KindString, model.Nullable()).
		Computed("DisplayName", model.KindString, model.Nullable()).
		Collection("Children", "Child", "ParentId")

	b.Entity("Child", "children").
		Key("Id").
		Property("Id", model.KindInt).
		Property("Property", model.KindString, model.Nullable()).
		Property("ParentId", model.KindInt, model.Nullable()).
		Reference("Parent", "Parent", "ParentId")

	b.Entity("Person", "people").
		Key("Id").
		Property("Id", model.KindInt).
		Property("FirstName", model.KindString).
		Property("LastName", model.KindString, model.Nullable()).
		Computed("ComputedInDb", model.KindString, model.Nullable())

	b.Entity("Employee", "employees").
		Key("Id").
		Property("Id", model.KindInt).
		Property("Name", model.KindString).
		Property("ManagerId", model.KindInt, model.Nullable()).
		Reference("Manager", "Employee", "ManagerId").
		Collection("Reports", "Employee", "ManagerId")

	b.Entity("Document", "documents").
		Abstract().
		Discriminator("kind").
		Key("Id").
		Property("Id", model.KindInt).
		Property("Title", model.KindString, model.Nullable())
	b.Entity("Request", "").
		Derives("Document", "request").
		Property("Priority", model.KindInt, model.Nullable()).
		Collection("Attachments", "Attachment", "RequestId")
	b.Entity("Attachment", "").
		Derives("Document", "attachment").
		Property("FileName", model.KindString, model.Nullable()).
		Property("RequestId", model.KindInt, model.Nullable(), model.Shadow()).
		Reference("Request", "Request", "RequestId")

	return mustBuild(b)
}

// AbstractParent returns a model where Child.Parent is declared against an
// abstract base type mapped with a discriminator.
func AbstractParent() *model.Model {
	b := model.NewBuilder()

	b.Entity("ParentBase", "parents").
		Abstract().
		Discriminator("kind").
		Key("Id").
		Property("Id", model.KindInt).
		Property("Property", model.KindString, model.Nullable())
	b.Entity("ConcreteParent", "").
		Derives("ParentBase", "concrete").
		Property("Extra", model.KindString, model.Nullable())

	b.Entity("Child", "children").
		Key("Id").
		Property("Id", model.KindInt).
		Property("Property", model.KindString, model.Nullable()).
		Property("ParentId", model.KindInt, model.Nullable()).
		Reference("Parent", "ParentBase", "ParentId")

	return mustBuild(b)
}

// MustType returns the named entity type or panics.
func MustType(m *model.Model, name string) *model.EntityType {
	t, ok := m.Type(name)
	if !ok {
		panic("unknown entity type " + name)
	}
	return t
}

func mustBuild(b *model.Builder) *model.Model {
	m, err := b.Build()
	if err != nil {
		panic(err)
	}
	return m
}
