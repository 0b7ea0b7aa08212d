package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/sakif/recipe-api/internal/apperror"
	"github.com/sakif/recipe-api/internal/model"
	"github.com/sakif/recipe-api/internal/repository"
)

var _ repository.LabelRepository = (*DB)(nil)

// labelTable describes where one label kind lives: its own table and the
// join table linking it to recipes.
type labelTable struct {
	table   string // "tags"
	join    string // "recipe_tags"
	joinCol string // "tag_id"
}

func tablesFor(kind model.LabelKind) (labelTable, error) {
	switch kind {
	case model.KindTag:
		return labelTable{table: "tags", join: "recipe_tags", joinCol: "tag_id"}, nil
	case model.KindIngredient:
		return labelTable{table: "ingredients", join: "recipe_ingredients", joinCol: "ingredient_id"}, nil
	default:
		return labelTable{}, fmt.Errorf("sqldb: unknown label kind %q", kind)
	}
}

// ListLabels returns the owner's labels of one kind, ordered by name
// descending (ties by id descending).
//
// AssignedOnly keeps labels linked to at least one recipe. The check is a
// subquery over the join table rather than a JOIN, so a label used by ten
// recipes is still returned once.
func (db *DB) ListLabels(ctx context.Context, kind model.LabelKind, ownerID int64, filter repository.LabelFilter) ([]model.Label, error) {
	t, err := tablesFor(kind)
	if err != nil {
		return nil, err
	}

	b := db.sb.Select("id", "name", "user_id").
		From(t.table).
		Where(sq.Eq{"user_id": ownerID}).
		OrderBy("name DESC", "id DESC")

	if filter.AssignedOnly {
		b = b.Where("id IN (SELECT " + t.joinCol + " FROM " + t.join + ")")
	}
	b = paginate(b, filter.Limit, filter.Offset)

	labels := []model.Label{}
	if err := db.selectAll(ctx, &labels, b); err != nil {
		return nil, fmt.Errorf("sqldb: listing %s: %w", t.table, err)
	}
	return labels, nil
}

// GetLabel returns one of the owner's labels.
// Another owner's label is reported as apperror.ErrNotFound.
func (db *DB) GetLabel(ctx context.Context, kind model.LabelKind, ownerID, id int64) (*model.Label, error) {
	t, err := tablesFor(kind)
	if err != nil {
		return nil, err
	}

	var l model.Label
	err = db.get(ctx, &l, db.sb.Select("id", "name", "user_id").
		From(t.table).
		Where(sq.Eq{"id": id, "user_id": ownerID}),
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound(string(kind), id)
		}
		return nil, fmt.Errorf("sqldb: getting %s %d: %w", kind, id, err)
	}
	return &l, nil
}

// UpdateLabel renames one of the owner's labels. The owner column is never
// written; label.UserID is reset to ownerID.
func (db *DB) UpdateLabel(ctx context.Context, kind model.LabelKind, ownerID int64, label *model.Label) error {
	t, err := tablesFor(kind)
	if err != nil {
		return err
	}

	n, err := db.exec(ctx, db.sb.Update(t.table).
		Set("name", label.Name).
		Where(sq.Eq{"id": label.ID, "user_id": ownerID}),
	)
	if err != nil {
		return fmt.Errorf("sqldb: updating %s %d: %w", kind, label.ID, err)
	}
	if n == 0 {
		return apperror.NotFound(string(kind), label.ID)
	}

	label.UserID = ownerID
	return nil
}

// DeleteLabel removes one of the owner's labels. Its recipe links go with it
// (ON DELETE CASCADE); the recipes themselves stay.
func (db *DB) DeleteLabel(ctx context.Context, kind model.LabelKind, ownerID, id int64) error {
	t, err := tablesFor(kind)
	if err != nil {
		return err
	}

	n, err := db.exec(ctx, db.sb.Delete(t.table).Where(sq.Eq{"id": id, "user_id": ownerID}))
	if err != nil {
		return fmt.Errorf("sqldb: deleting %s %d: %w", kind, id, err)
	}
	if n == 0 {
		return apperror.NotFound(string(kind), id)
	}
	return nil
}

// getOrCreateLabel returns the owner's label called name, inserting it when
// missing. Names are not unique in the schema; when duplicates exist the
// oldest row wins.
func (db *DB) getOrCreateLabel(ctx context.Context, t labelTable, ownerID int64, name string) (model.Label, error) {
	var l model.Label
	err := db.get(ctx, &l, db.sb.Select("id", "name", "user_id").
		From(t.table).
		Where(sq.Eq{"user_id": ownerID, "name": name}).
		OrderBy("id ASC").
		Limit(1),
	)
	if err == nil {
		return l, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.Label{}, fmt.Errorf("looking up %s %q: %w", t.table, name, err)
	}

	id, err := db.insertReturningID(ctx, db.sb.Insert(t.table).
		Columns("name", "user_id").
		Values(name, ownerID),
	)
	if err != nil {
		return model.Label{}, fmt.Errorf("inserting %s %q: %w", t.table, name, err)
	}
	return model.Label{ID: id, Name: name, UserID: ownerID}, nil
}
