package store_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nhle/mail-assistant/internal/apperr"
	"github.com/nhle/mail-assistant/internal/model"
	"github.com/nhle/mail-assistant/tests/testutil"
)

func strPtr(s string) *string { return &s }

func TestCreateTemplateRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	in := model.TemplateInput{
		Name:      "Follow up",
		Subject:   "Following up on {{topic}}",
		Body:      "Hi {{name}}, checking in about {{company}}.",
		Category:  strPtr("sales"),
		Variables: []string{"topic", "name", "company"},
	}

	created, err := s.CreateTemplate(ctx, in)
	if err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}
	if created.ID == "" {
		t.Fatal("CreateTemplate returned an empty ID")
	}
	if !created.CreatedAt.Equal(created.UpdatedAt) {
		t.Errorf("CreatedAt %v != UpdatedAt %v", created.CreatedAt, created.UpdatedAt)
	}

	got, err := s.GetTemplate(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetTemplate: %v", err)
	}
	if diff := cmp.Diff(created, got); diff != "" {
		t.Errorf("template mismatch (-created +read):\n%s", diff)
	}
	if diff := cmp.Diff(in.Variables, got.Variables); diff != "" {
		t.Errorf("variables mismatch (-want +got):\n%s", diff)
	}
}

func TestCreateTemplateAssignsUniqueIDs(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	a, err := s.CreateTemplate(ctx, model.TemplateInput{Name: "A"})
	if err != nil {
		t.Fatalf("CreateTemplate A: %v", err)
	}
	b, err := s.CreateTemplate(ctx, model.TemplateInput{Name: "B"})
	if err != nil {
		t.Fatalf("CreateTemplate B: %v", err)
	}
	if a.ID == b.ID {
		t.Fatalf("duplicate template id %s", a.ID)
	}

	list, err := s.ListTemplates(ctx)
	if err != nil {
		t.Fatalf("ListTemplates: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("ListTemplates returned %d templates, want 2", len(list))
	}
	if list[0].CreatedAt.Before(list[1].CreatedAt) {
		t.Errorf("ListTemplates not ordered newest first")
	}
}

func TestCreateTemplateRequiresName(t *testing.T) {
	s := testutil.NewTestStore(t)

	_, err := s.CreateTemplate(context.Background(), model.TemplateInput{Name: "  "})
	if !apperr.IsKind(err, apperr.ValidationFailed) {
		t.Fatalf("CreateTemplate error = %v, want ValidationFailed", err)
	}
}

func TestUpdateTemplatePartial(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	created, err := s.CreateTemplate(ctx, model.TemplateInput{
		Name:      "Original",
		Subject:   "Hello",
		Body:      "Body",
		Category:  strPtr("general"),
		Variables: []string{"name"},
	})
	if err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}

	updated, err := s.UpdateTemplate(ctx, created.ID, model.TemplatePatch{Name: strPtr("X")})
	if err != nil {
		t.Fatalf("UpdateTemplate: %v", err)
	}

	if updated.Name != "X" {
		t.Errorf("Name = %q, want X", updated.Name)
	}
	if !updated.UpdatedAt.After(created.UpdatedAt) {
		t.Errorf("UpdatedAt %v not after %v", updated.UpdatedAt, created.UpdatedAt)
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("CreatedAt changed from %v to %v", created.CreatedAt, updated.CreatedAt)
	}

	want := *created
	want.Name = "X"
	want.UpdatedAt = updated.UpdatedAt
	if diff := cmp.Diff(&want, updated); diff != "" {
		t.Errorf("untouched fields changed (-want +got):\n%s", diff)
	}
}

func TestUpdateTemplateTwiceAdvances(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	created, err := s.CreateTemplate(ctx, model.TemplateInput{Name: "T"})
	if err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}

	first, err := s.UpdateTemplate(ctx, created.ID, model.TemplatePatch{})
	if err != nil {
		t.Fatalf("first UpdateTemplate: %v", err)
	}
	second, err := s.UpdateTemplate(ctx, created.ID, model.TemplatePatch{Variables: &[]string{"a", "b"}})
	if err != nil {
		t.Fatalf("second UpdateTemplate: %v", err)
	}
	if !second.UpdatedAt.After(first.UpdatedAt) {
		t.Errorf("UpdatedAt %v not after %v", second.UpdatedAt, first.UpdatedAt)
	}
	if diff := cmp.Diff([]string{"a", "b"}, second.Variables); diff != "" {
		t.Errorf("variables mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateTemplateNotFound(t *testing.T) {
	s := testutil.NewTestStore(t)

	_, err := s.UpdateTemplate(context.Background(), "missing", model.TemplatePatch{Name: strPtr("X")})
	if !apperr.IsKind(err, apperr.NotFound) {
		t.Fatalf("UpdateTemplate error = %v, want NotFound", err)
	}
}

func TestDeleteTemplateIdempotent(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	if err := s.DeleteTemplate(ctx, "does-not-exist"); err != nil {
		t.Fatalf("DeleteTemplate on missing id: %v", err)
	}

	created, err := s.CreateTemplate(ctx, model.TemplateInput{Name: "Temp"})
	if err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := s.DeleteTemplate(ctx, created.ID); err != nil {
			t.Fatalf("DeleteTemplate #%d: %v", i+1, err)
		}
	}
	got, err := s.GetTemplate(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetTemplate: %v", err)
	}
	if got != nil {
		t.Errorf("template still present after delete")
	}
}

func TestCorruptTemplateIsStorageError(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	created, err := s.CreateTemplate(ctx, model.TemplateInput{Name: "Intro", Body: "Hi {{name}}"})
	if err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}
	if err := s.Exec(ctx, `UPDATE templates SET variables = 'not json' WHERE id = ?`, created.ID); err != nil {
		t.Fatalf("corrupting row: %v", err)
	}

	if _, err := s.ListTemplates(ctx); !apperr.IsKind(err, apperr.StorageUnavailable) {
		t.Errorf("ListTemplates error = %v, want kind %v", err, apperr.StorageUnavailable)
	}
}
