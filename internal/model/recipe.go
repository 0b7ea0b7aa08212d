package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// LabelKind distinguishes the two owner-scoped label tables.
// Tags and ingredients have the same shape (id, name, owner) and the same
// many-to-many relationship with recipes, so they share one Go type.
type LabelKind string

const (
	KindTag        LabelKind = "tag"
	KindIngredient LabelKind = "ingredient"
)

// Label is a tag or an ingredient, owned by exactly one user.
type Label struct {
	ID     int64  `json:"id"   db:"id"`
	Name   string `json:"name" db:"name"`
	UserID int64  `json:"-"    db:"user_id"`
}

// Recipe is a user's recipe with its associated tags and ingredients.
//
// Price is a fixed-point decimal with two places.
//
// Image is the storage-relative path of the uploaded picture, or "" when no
// image has been uploaded yet.
type Recipe struct {
	ID          int64           `db:"id"`
	UserID      int64           `db:"user_id"`
	Title       string          `db:"title"`
	Description string          `db:"description"`
	TimeMinutes int             `db:"time_minutes"`
	Price       decimal.Decimal `db:"price"`
	Link        string          `db:"link"`
	Image       string          `db:"image"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`

	Tags        []Label `db:"-"`
	Ingredients []Label `db:"-"`
}
