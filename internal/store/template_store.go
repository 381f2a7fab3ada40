package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/nhle/mail-assistant/internal/apperr"
	"github.com/nhle/mail-assistant/internal/model"
)

type templateRow struct {
	ID        string         `db:"id"`
	Name      string         `db:"name"`
	Subject   string         `db:"subject"`
	Body      string         `db:"body"`
	Category  sql.NullString `db:"category"`
	Variables string         `db:"variables"`
	CreatedAt string         `db:"created_at"`
	UpdatedAt string         `db:"updated_at"`
}

const templateColumns = `id, name, subject, body, category, variables, created_at, updated_at`

func (r templateRow) toTemplate() (model.Template, error) {
	tpl := model.Template{
		ID:      r.ID,
		Name:    r.Name,
		Subject: r.Subject,
		Body:    r.Body,
	}
	if r.Category.Valid {
		category := r.Category.String
		tpl.Category = &category
	}
	if err := json.Unmarshal([]byte(r.Variables), &tpl.Variables); err != nil {
		return tpl, storageErr(fmt.Sprintf("decoding variables of template %s", r.ID), err)
	}
	if tpl.Variables == nil {
		tpl.Variables = []string{}
	}

	var err error
	if tpl.CreatedAt, err = parseTime(r.CreatedAt); err != nil {
		return tpl, storageErr(fmt.Sprintf("parsing created_at of template %s", r.ID), err)
	}
	if tpl.UpdatedAt, err = parseTime(r.UpdatedAt); err != nil {
		return tpl, storageErr(fmt.Sprintf("parsing updated_at of template %s", r.ID), err)
	}
	return tpl, nil
}

func encodeVariables(vars []string) (string, error) {
	if vars == nil {
		vars = []string{}
	}
	b, err := json.Marshal(vars)
	if err != nil {
		return "", fmt.Errorf("encoding template variables: %w", err)
	}
	return string(b), nil
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// ListTemplates returns all templates, newest first.
func (s *SQLiteStore) ListTemplates(ctx context.Context) ([]model.Template, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	var rows []templateRow
	err = db.SelectContext(ctx, &rows,
		`SELECT `+templateColumns+` FROM templates ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, storageErr("listing templates", err)
	}

	tpls := make([]model.Template, 0, len(rows))
	for _, r := range rows {
		tpl, err := r.toTemplate()
		if err != nil {
			return nil, err
		}
		tpls = append(tpls, tpl)
	}
	return tpls, nil
}

// GetTemplate returns the template or nil when absent.
func (s *SQLiteStore) GetTemplate(ctx context.Context, id string) (*model.Template, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	return getTemplate(ctx, db, id)
}

type getter interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
}

func getTemplate(ctx context.Context, q getter, id string) (*model.Template, error) {
	var row templateRow
	err := q.GetContext(ctx, &row, `SELECT `+templateColumns+` FROM templates WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr(fmt.Sprintf("getting template %s", id), err)
	}

	tpl, err := row.toTemplate()
	if err != nil {
		return nil, err
	}
	return &tpl, nil
}

// CreateTemplate stores a new template with a fresh ID. CreatedAt and
// UpdatedAt are equal on the returned value.
func (s *SQLiteStore) CreateTemplate(ctx context.Context, in model.TemplateInput) (*model.Template, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, apperr.New(apperr.ValidationFailed, "template name must not be empty")
	}

	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	vars, err := encodeVariables(in.Variables)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	tpl := model.Template{
		ID:        uuid.New().String(),
		Name:      in.Name,
		Subject:   in.Subject,
		Body:      in.Body,
		Category:  in.Category,
		Variables: append([]string{}, in.Variables...),
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO templates (`+templateColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tpl.ID, tpl.Name, tpl.Subject, tpl.Body, nullableString(tpl.Category), vars,
		formatTime(now), formatTime(now),
	)
	if err != nil {
		return nil, storageErr("creating template", err)
	}

	// Round-trip through the stored precision so callers compare equal
	// against later reads.
	tpl.CreatedAt, _ = parseTime(formatTime(now))
	tpl.UpdatedAt = tpl.CreatedAt
	return &tpl, nil
}

// UpdateTemplate applies the non-nil fields of patch and advances
// updated_at past its previous value.
func (s *SQLiteStore) UpdateTemplate(
	ctx context.Context,
	id string,
	patch model.TemplatePatch,
) (*model.Template, error) {
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return nil, apperr.New(apperr.ValidationFailed, "template name must not be empty")
	}

	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, storageErr("beginning transaction", err)
	}
	defer tx.Rollback()

	current, err := getTemplate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, apperr.Newf(apperr.NotFound, "template %s not found", id)
	}

	updatedAt := time.Now().UTC()
	if !updatedAt.After(current.UpdatedAt) {
		updatedAt = current.UpdatedAt.Add(time.Nanosecond)
	}

	var (
		sets []string
		args []any
	)
	if patch.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *patch.Name)
	}
	if patch.Subject != nil {
		sets = append(sets, "subject = ?")
		args = append(args, *patch.Subject)
	}
	if patch.Body != nil {
		sets = append(sets, "body = ?")
		args = append(args, *patch.Body)
	}
	if patch.Category != nil {
		sets = append(sets, "category = ?")
		args = append(args, nullableString(patch.Category))
	}
	if patch.Variables != nil {
		vars, err := encodeVariables(*patch.Variables)
		if err != nil {
			return nil, err
		}
		sets = append(sets, "variables = ?")
		args = append(args, vars)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, formatTime(updatedAt), id)

	query := `UPDATE templates SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return nil, storageErr(fmt.Sprintf("updating template %s", id), err)
	}

	updated, err := getTemplate(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, storageErr("committing template update", err)
	}
	return updated, nil
}

// DeleteTemplate removes a template. Deleting an unknown ID succeeds.
func (s *SQLiteStore) DeleteTemplate(ctx context.Context, id string) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM templates WHERE id = ?", id); err != nil {
		return storageErr(fmt.Sprintf("deleting template %s", id), err)
	}
	return nil
}
