package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"math/big"
	"path"
	"strings"

	// Decoders register themselves with the image package.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/shopspring/decimal"

	"github.com/sakif/recipe-api/internal/apperror"
	"github.com/sakif/recipe-api/internal/model"
	"github.com/sakif/recipe-api/internal/repository"
	"github.com/sakif/recipe-api/internal/storage"
)

const (
	MaxTitleLength     = 255
	MaxLinkLength      = 255
	MaxLabelNameLength = 255
	PriceMaxDigits     = 5
	PriceDecimalPlaces = 2
	MaxListLimit       = 100
)

// RecipeInput is a recipe write. Nil fields were absent from the request.
//
// For Tags and Ingredients the distinction matters: nil leaves the recipe's
// current links alone, a pointer to an empty slice removes them all.
type RecipeInput struct {
	Title       *string
	Description *string
	TimeMinutes *int
	Price       *decimal.Decimal
	Link        *string
	Tags        *[]string
	Ingredients *[]string
}

// RecipeService implements recipe CRUD and image upload for one owner at a
// time. Every method takes the caller's user ID; there is no way to reach
// another user's recipes through it.
type RecipeService struct {
	repo      repository.RecipeRepository
	store     storage.FileStore
	maxUpload int64
	logger    *slog.Logger
}

func NewRecipeService(repo repository.RecipeRepository, store storage.FileStore, maxUpload int64, logger *slog.Logger) *RecipeService {
	return &RecipeService{
		repo:      repo,
		store:     store,
		maxUpload: maxUpload,
		logger:    logger,
	}
}

// List returns the owner's recipes newest first. A limit above MaxListLimit
// is clamped; zero means no limit.
func (s *RecipeService) List(ctx context.Context, ownerID int64, filter repository.RecipeFilter) ([]model.Recipe, error) {
	filter.ListOptions = clampList(filter.ListOptions)

	recipes, err := s.repo.ListRecipes(ctx, ownerID, filter)
	if err != nil {
		return nil, fmt.Errorf("listing recipes: %w", err)
	}
	return recipes, nil
}

// Get returns one of the owner's recipes. Someone else's recipe is
// apperror.ErrNotFound, never forbidden.
func (s *RecipeService) Get(ctx context.Context, ownerID, id int64) (*model.Recipe, error) {
	return s.repo.GetRecipe(ctx, ownerID, id)
}

// Create validates in and stores a new recipe owned by ownerID.
func (s *RecipeService) Create(ctx context.Context, ownerID int64, in RecipeInput) (*model.Recipe, error) {
	recipe := &model.Recipe{}
	labels, err := applyInput(recipe, in, true)
	if err != nil {
		return nil, err
	}

	if err := s.repo.CreateRecipe(ctx, ownerID, recipe, labels); err != nil {
		s.logger.Error("failed to create recipe",
			slog.Int64("userID", ownerID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating recipe: %w", err)
	}

	s.logger.Info("recipe created",
		slog.Int64("id", recipe.ID),
		slog.Int64("userID", ownerID),
		slog.Int("tags", len(recipe.Tags)),
		slog.Int("ingredients", len(recipe.Ingredients)),
	)
	return recipe, nil
}

// Update applies in to one of the owner's recipes.
//
// With partial=false (PUT) title, time_minutes and price must be present.
// With partial=true (PATCH) any subset may be sent. In both cases absent
// fields keep their current value.
func (s *RecipeService) Update(ctx context.Context, ownerID, id int64, in RecipeInput, partial bool) (*model.Recipe, error) {
	recipe, err := s.repo.GetRecipe(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	labels, err := applyInput(recipe, in, !partial)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateRecipe(ctx, ownerID, recipe, labels); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		s.logger.Error("failed to update recipe",
			slog.Int64("id", id),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("updating recipe %d: %w", id, err)
	}

	s.logger.Info("recipe updated", slog.Int64("id", id), slog.Bool("partial", partial))
	return recipe, nil
}

// Delete removes one of the owner's recipes together with its image file.
func (s *RecipeService) Delete(ctx context.Context, ownerID, id int64) error {
	recipe, err := s.repo.GetRecipe(ctx, ownerID, id)
	if err != nil {
		return err
	}

	if err := s.repo.DeleteRecipe(ctx, ownerID, id); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return err
		}
		return fmt.Errorf("deleting recipe %d: %w", id, err)
	}

	if recipe.Image != "" {
		s.removeFile(ctx, recipe.Image)
	}

	s.logger.Info("recipe deleted", slog.Int64("id", id), slog.Int64("userID", ownerID))
	return nil
}

// UploadImage stores a new picture for one of the owner's recipes.
//
// The upload is read into memory (at most maxUpload bytes) and its header is
// decoded before anything is written, so a non-image never reaches storage
// and never changes the recipe. The file gets a random name that keeps the
// client's extension. If recording the name fails, the new file is removed.
func (s *RecipeService) UploadImage(ctx context.Context, ownerID, id int64, filename string, r io.Reader) (*model.Recipe, error) {
	recipe, err := s.repo.GetRecipe(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(r, s.maxUpload+1))
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	switch {
	case len(data) == 0:
		return nil, apperror.ValidationFailed("image", msgEmptyFile)
	case int64(len(data)) > s.maxUpload:
		return nil, apperror.ValidationFailed("image",
			fmt.Sprintf("Ensure this file is no larger than %d bytes.", s.maxUpload))
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		s.logger.Warn("rejected image upload",
			slog.Int64("recipeID", id),
			slog.String("filename", filename),
			slog.String("error", err.Error()),
		)
		return nil, apperror.ValidationFailed("image", msgInvalidImage)
	}

	if path.Ext(filename) == "" {
		filename += "." + extensionFor(format)
	}
	name := storage.RecipeImageName(filename)

	if err := s.store.Save(ctx, name, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("saving image for recipe %d: %w", id, err)
	}

	if err := s.repo.SetRecipeImage(ctx, ownerID, id, name); err != nil {
		s.removeFile(ctx, name)
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("recording image for recipe %d: %w", id, err)
	}

	if previous := recipe.Image; previous != "" && previous != name {
		s.removeFile(ctx, previous)
	}
	recipe.Image = name

	s.logger.Info("recipe image uploaded",
		slog.Int64("recipeID", id),
		slog.String("image", name),
		slog.String("format", format),
		slog.Int("bytes", len(data)),
	)
	return recipe, nil
}

// MaxUpload is the largest accepted image in bytes.
func (s *RecipeService) MaxUpload() int64 { return s.maxUpload }

// URL returns the public URL of a stored image name.
func (s *RecipeService) URL(name string) string {
	return s.store.URL(name)
}

func (s *RecipeService) removeFile(ctx context.Context, name string) {
	if err := s.store.Delete(ctx, name); err != nil {
		s.logger.Warn("failed to remove image file", slog.String("image", name), slog.String("error", err.Error()))
	}
}

func extensionFor(format string) string {
	if format == "jpeg" {
		return "jpg"
	}
	return format
}

// applyInput validates in and copies present fields onto recipe. With
// requireAll set, title, time_minutes and price must be present. It returns
// the label names to resolve.
func applyInput(recipe *model.Recipe, in RecipeInput, requireAll bool) (repository.RecipeLabels, error) {
	fields := fieldErrors{}

	if in.Title != nil {
		recipe.Title = fields.checkText("title", *in.Title, MaxTitleLength)
	} else if requireAll {
		fields.add("title", msgRequired)
	}

	if in.TimeMinutes != nil {
		if *in.TimeMinutes < 0 {
			fields.add("time_minutes", msgMinValue(0))
		}
		recipe.TimeMinutes = *in.TimeMinutes
	} else if requireAll {
		fields.add("time_minutes", msgRequired)
	}

	if in.Price != nil {
		for _, msg := range checkPrice(*in.Price) {
			fields.add("price", msg)
		}
		recipe.Price = *in.Price
	} else if requireAll {
		fields.add("price", msgRequired)
	}

	if in.Description != nil {
		recipe.Description = strings.TrimSpace(*in.Description)
	}

	if in.Link != nil {
		link := strings.TrimSpace(*in.Link)
		if len([]rune(link)) > MaxLinkLength {
			fields.add("link", msgMaxLength(MaxLinkLength))
		}
		recipe.Link = link
	}

	labels := repository.RecipeLabels{
		Tags:        checkLabelNames(fields, "tags", in.Tags),
		Ingredients: checkLabelNames(fields, "ingredients", in.Ingredients),
	}

	if err := fields.err(); err != nil {
		return repository.RecipeLabels{}, err
	}
	return labels, nil
}

// checkLabelNames trims every name. Errors are keyed by position, e.g.
// "tags[1].name".
func checkLabelNames(fields fieldErrors, field string, names *[]string) *[]string {
	if names == nil {
		return nil
	}
	out := make([]string, len(*names))
	for i, name := range *names {
		out[i] = fields.checkText(fmt.Sprintf("%s[%d].name", field, i), name, MaxLabelNameLength)
	}
	return &out
}

// checkPrice enforces the NUMERIC(5,2) column: at most 5 digits, at most 2
// of them after the decimal point. Trailing fractional zeros do not count,
// so "5.250" is accepted as 5.25.
func checkPrice(price decimal.Decimal) []string {
	var msgs []string
	if price.IsNegative() {
		msgs = append(msgs, msgMinValue(0))
	}

	coef := new(big.Int).Abs(price.Coefficient())
	exp := int(price.Exponent())
	ten := big.NewInt(10)
	zero := new(big.Int)
	for exp < 0 && coef.Sign() != 0 && new(big.Int).Mod(coef, ten).Cmp(zero) == 0 {
		coef.Quo(coef, ten)
		exp++
	}
	if coef.Sign() == 0 {
		exp = 0
	}

	digits := len(coef.String())
	var total, places int
	switch {
	case exp >= 0:
		total, places = digits+exp, 0
	case digits > -exp:
		total, places = digits, -exp
	default:
		total, places = -exp, -exp
	}
	whole := total - places

	switch {
	case total > PriceMaxDigits:
		msgs = append(msgs, fmt.Sprintf("Ensure that there are no more than %d digits in total.", PriceMaxDigits))
	case places > PriceDecimalPlaces:
		msgs = append(msgs, fmt.Sprintf("Ensure that there are no more than %d decimal places.", PriceDecimalPlaces))
	case whole > PriceMaxDigits-PriceDecimalPlaces:
		msgs = append(msgs, fmt.Sprintf("Ensure that there are no more than %d digits before the decimal point.", PriceMaxDigits-PriceDecimalPlaces))
	}
	return msgs
}

func clampList(opts repository.ListOptions) repository.ListOptions {
	if opts.Limit < 0 {
		opts.Limit = 0
	}
	if opts.Limit > MaxListLimit {
		opts.Limit = MaxListLimit
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	return opts
}
