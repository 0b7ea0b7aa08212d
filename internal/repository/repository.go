// Package repository declares the data-access interfaces used by the
// service layer.
//
// OWNER SCOPING:
// Every recipe and label method takes the caller's ownerID as a required
// argument. There is no "unscoped" variant: a row that belongs to another
// user is indistinguishable from a row that does not exist, and methods
// return apperror.ErrNotFound for both.
package repository

import (
	"context"

	"github.com/sakif/recipe-api/internal/model"
)

// ListOptions is optional pagination. A zero Limit means "no limit".
type ListOptions struct {
	Limit  int
	Offset int
}

// RecipeFilter narrows a recipe listing. A recipe matches TagIDs when it
// carries at least one of the listed tags (same for IngredientIDs); when
// both are set a recipe must match both lists.
type RecipeFilter struct {
	TagIDs        []int64
	IngredientIDs []int64
	ListOptions
}

// LabelFilter narrows a tag or ingredient listing.
// AssignedOnly keeps only labels attached to at least one recipe.
type LabelFilter struct {
	AssignedOnly bool
	ListOptions
}

// RecipeLabels carries the label names of a recipe write.
//
// A nil pointer means the field was absent and the current associations stay
// as they are. A non-nil pointer to an empty slice clears them.
type RecipeLabels struct {
	Tags        *[]string
	Ingredients *[]string
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateUser(ctx context.Context, user *model.User) error
}

type RecipeRepository interface {
	ListRecipes(ctx context.Context, ownerID int64, filter RecipeFilter) ([]model.Recipe, error)
	GetRecipe(ctx context.Context, ownerID, id int64) (*model.Recipe, error)
	// CreateRecipe inserts the recipe and resolves its labels in one transaction.
	CreateRecipe(ctx context.Context, ownerID int64, recipe *model.Recipe, labels RecipeLabels) error
	// UpdateRecipe saves the scalar fields and replaces the label sets that
	// are present in labels, in one transaction.
	UpdateRecipe(ctx context.Context, ownerID int64, recipe *model.Recipe, labels RecipeLabels) error
	SetRecipeImage(ctx context.Context, ownerID, id int64, image string) error
	DeleteRecipe(ctx context.Context, ownerID, id int64) error
}

type LabelRepository interface {
	ListLabels(ctx context.Context, kind model.LabelKind, ownerID int64, filter LabelFilter) ([]model.Label, error)
	GetLabel(ctx context.Context, kind model.LabelKind, ownerID, id int64) (*model.Label, error)
	UpdateLabel(ctx context.Context, kind model.LabelKind, ownerID int64, label *model.Label) error
	DeleteLabel(ctx context.Context, kind model.LabelKind, ownerID, id int64) error
}
