package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/sakif/recipe-api/internal/apperror"
	"github.com/sakif/recipe-api/internal/model"
	"github.com/sakif/recipe-api/internal/repository"
)

var _ repository.RecipeRepository = (*DB)(nil)

var recipeColumns = []string{
	"id", "user_id", "title", "description", "time_minutes", "price", "link", "image",
	"created_at", "updated_at",
}

// ListRecipes returns the owner's recipes, newest first, with tags and
// ingredients loaded.
//
// FILTERING:
// Each filter list is an "any of" match implemented as
//
//	id IN (SELECT recipe_id FROM recipe_tags WHERE tag_id IN (...))
//
// A recipe matching through two tags still yields one row, which a plain
// JOIN would not guarantee. Tag and ingredient filters combine with AND.
func (db *DB) ListRecipes(ctx context.Context, ownerID int64, filter repository.RecipeFilter) ([]model.Recipe, error) {
	b := db.sb.Select(recipeColumns...).
		From("recipes").
		Where(sq.Eq{"user_id": ownerID}).
		OrderBy("id DESC")

	if len(filter.TagIDs) > 0 {
		b = whereHasLabel(b, "recipe_tags", "tag_id", filter.TagIDs)
	}
	if len(filter.IngredientIDs) > 0 {
		b = whereHasLabel(b, "recipe_ingredients", "ingredient_id", filter.IngredientIDs)
	}
	b = paginate(b, filter.Limit, filter.Offset)

	recipes := []model.Recipe{}
	if err := db.selectAll(ctx, &recipes, b); err != nil {
		return nil, fmt.Errorf("sqldb: listing recipes: %w", err)
	}

	if err := db.loadLabels(ctx, recipes); err != nil {
		return nil, fmt.Errorf("sqldb: listing recipes: %w", err)
	}
	return recipes, nil
}

// whereHasLabel adds an IN-subquery filter. The subquery is rendered with "?"
// placeholders; the outer builder rewrites them for the dialect.
func whereHasLabel(b sq.SelectBuilder, join, col string, ids []int64) sq.SelectBuilder {
	sub, args, _ := sq.Select("recipe_id").From(join).Where(sq.Eq{col: ids}).ToSql()
	return b.Where("id IN ("+sub+")", args...)
}

// GetRecipe returns one of the owner's recipes with its labels.
func (db *DB) GetRecipe(ctx context.Context, ownerID, id int64) (*model.Recipe, error) {
	var r model.Recipe
	err := db.get(ctx, &r, db.sb.Select(recipeColumns...).
		From("recipes").
		Where(sq.Eq{"id": id, "user_id": ownerID}),
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("recipe", id)
		}
		return nil, fmt.Errorf("sqldb: getting recipe %d: %w", id, err)
	}

	one := []model.Recipe{r}
	if err := db.loadLabels(ctx, one); err != nil {
		return nil, fmt.Errorf("sqldb: getting recipe %d: %w", id, err)
	}
	return &one[0], nil
}

// CreateRecipe inserts recipe for ownerID and links the named labels,
// creating missing ones. Everything happens in one transaction: if a label
// cannot be resolved no recipe row is left behind.
func (db *DB) CreateRecipe(ctx context.Context, ownerID int64, recipe *model.Recipe, labels repository.RecipeLabels) error {
	now := time.Now().UTC()

	return db.WithTransaction(ctx, func(tx *DB) error {
		id, err := tx.insertReturningID(ctx, tx.sb.Insert("recipes").
			Columns("user_id", "title", "description", "time_minutes", "price", "link", "image", "created_at", "updated_at").
			Values(ownerID, recipe.Title, recipe.Description, recipe.TimeMinutes, recipe.Price, recipe.Link, recipe.Image, now, now),
		)
		if err != nil {
			return fmt.Errorf("sqldb: inserting recipe: %w", err)
		}

		recipe.ID = id
		recipe.UserID = ownerID
		recipe.CreatedAt = now
		recipe.UpdatedAt = now
		recipe.Tags = []model.Label{}
		recipe.Ingredients = []model.Label{}

		return tx.applyLabels(ctx, recipe, labels)
	})
}

// UpdateRecipe writes every scalar column of recipe and replaces the label
// sets present in labels. The owner column is never written, so a recipe
// cannot change hands through an update.
func (db *DB) UpdateRecipe(ctx context.Context, ownerID int64, recipe *model.Recipe, labels repository.RecipeLabels) error {
	now := time.Now().UTC()

	return db.WithTransaction(ctx, func(tx *DB) error {
		n, err := tx.exec(ctx, tx.sb.Update("recipes").
			Set("title", recipe.Title).
			Set("description", recipe.Description).
			Set("time_minutes", recipe.TimeMinutes).
			Set("price", recipe.Price).
			Set("link", recipe.Link).
			Set("updated_at", now).
			Where(sq.Eq{"id": recipe.ID, "user_id": ownerID}),
		)
		if err != nil {
			return fmt.Errorf("sqldb: updating recipe %d: %w", recipe.ID, err)
		}
		if n == 0 {
			return apperror.NotFound("recipe", recipe.ID)
		}

		recipe.UserID = ownerID
		recipe.UpdatedAt = now

		// Reload the current links first so untouched kinds are reported
		// accurately in the returned recipe.
		one := []model.Recipe{*recipe}
		if err := tx.loadLabels(ctx, one); err != nil {
			return fmt.Errorf("sqldb: updating recipe %d: %w", recipe.ID, err)
		}
		recipe.Tags, recipe.Ingredients = one[0].Tags, one[0].Ingredients

		return tx.applyLabels(ctx, recipe, labels)
	})
}

// SetRecipeImage records the stored image path ("" clears it).
func (db *DB) SetRecipeImage(ctx context.Context, ownerID, id int64, image string) error {
	n, err := db.exec(ctx, db.sb.Update("recipes").
		Set("image", image).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id, "user_id": ownerID}),
	)
	if err != nil {
		return fmt.Errorf("sqldb: setting image of recipe %d: %w", id, err)
	}
	if n == 0 {
		return apperror.NotFound("recipe", id)
	}
	return nil
}

// DeleteRecipe removes one of the owner's recipes and its label links.
// The tags and ingredients themselves are kept.
func (db *DB) DeleteRecipe(ctx context.Context, ownerID, id int64) error {
	n, err := db.exec(ctx, db.sb.Delete("recipes").Where(sq.Eq{"id": id, "user_id": ownerID}))
	if err != nil {
		return fmt.Errorf("sqldb: deleting recipe %d: %w", id, err)
	}
	if n == 0 {
		return apperror.NotFound("recipe", id)
	}
	return nil
}

// applyLabels replaces the recipe's links for every kind present in labels.
// Must run inside a transaction.
func (db *DB) applyLabels(ctx context.Context, recipe *model.Recipe, labels repository.RecipeLabels) error {
	if labels.Tags != nil {
		resolved, err := db.replaceLabels(ctx, model.KindTag, recipe.UserID, recipe.ID, *labels.Tags)
		if err != nil {
			return fmt.Errorf("sqldb: resolving tags: %w", err)
		}
		recipe.Tags = resolved
	}
	if labels.Ingredients != nil {
		resolved, err := db.replaceLabels(ctx, model.KindIngredient, recipe.UserID, recipe.ID, *labels.Ingredients)
		if err != nil {
			return fmt.Errorf("sqldb: resolving ingredients: %w", err)
		}
		recipe.Ingredients = resolved
	}
	return nil
}

// replaceLabels drops the recipe's current links of one kind and links the
// named labels instead, reusing the owner's existing rows by name. Repeated
// names in the input are linked once.
func (db *DB) replaceLabels(ctx context.Context, kind model.LabelKind, ownerID, recipeID int64, names []string) ([]model.Label, error) {
	t, err := tablesFor(kind)
	if err != nil {
		return nil, err
	}

	if _, err := db.exec(ctx, db.sb.Delete(t.join).Where(sq.Eq{"recipe_id": recipeID})); err != nil {
		return nil, fmt.Errorf("clearing %s: %w", t.join, err)
	}

	resolved := make([]model.Label, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true

		label, err := db.getOrCreateLabel(ctx, t, ownerID, name)
		if err != nil {
			return nil, err
		}

		if _, err := db.exec(ctx, db.sb.Insert(t.join).
			Columns("recipe_id", t.joinCol).
			Values(recipeID, label.ID),
		); err != nil {
			return nil, fmt.Errorf("linking %s %d: %w", kind, label.ID, err)
		}
		resolved = append(resolved, label)
	}

	return resolved, nil
}

// labelRow is one (recipe, label) pair read from a join table.
type labelRow struct {
	RecipeID int64 `db:"recipe_id"`
	model.Label
}

// loadLabels fills Tags and Ingredients for every recipe with one query per
// kind, instead of one per recipe.
func (db *DB) loadLabels(ctx context.Context, recipes []model.Recipe) error {
	if len(recipes) == 0 {
		return nil
	}

	ids := make([]int64, len(recipes))
	index := make(map[int64]int, len(recipes))
	for i := range recipes {
		ids[i] = recipes[i].ID
		index[recipes[i].ID] = i
		recipes[i].Tags = []model.Label{}
		recipes[i].Ingredients = []model.Label{}
	}

	for _, kind := range []model.LabelKind{model.KindTag, model.KindIngredient} {
		t, _ := tablesFor(kind)

		var rows []labelRow
		err := db.selectAll(ctx, &rows, db.sb.
			Select("j.recipe_id", "l.id", "l.name", "l.user_id").
			From(t.join+" j").
			Join(t.table+" l ON l.id = j."+t.joinCol).
			Where(sq.Eq{"j.recipe_id": ids}).
			OrderBy("l.id ASC"),
		)
		if err != nil {
			return fmt.Errorf("loading %s: %w", t.table, err)
		}

		for _, row := range rows {
			r := &recipes[index[row.RecipeID]]
			if kind == model.KindTag {
				r.Tags = append(r.Tags, row.Label)
			} else {
				r.Ingredients = append(r.Ingredients, row.Label)
			}
		}
	}

	return nil
}
