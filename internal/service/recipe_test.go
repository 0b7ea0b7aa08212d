package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/sakif/recipe-api/internal/apperror"
	"github.com/sakif/recipe-api/internal/model"
	"github.com/sakif/recipe-api/internal/repository"
)

// =========================================================================
// FAKES
// =========================================================================

// fakeRecipeRepo keeps recipes in memory and records what the service asked
// it to do with labels.
type fakeRecipeRepo struct {
	recipes    map[int64]*model.Recipe
	nextID     int64
	lastLabels repository.RecipeLabels
	lastFilter repository.RecipeFilter

	createErr   error
	setImageErr error
}

func newFakeRecipeRepo() *fakeRecipeRepo {
	return &fakeRecipeRepo{recipes: make(map[int64]*model.Recipe)}
}

func (f *fakeRecipeRepo) ListRecipes(_ context.Context, ownerID int64, filter repository.RecipeFilter) ([]model.Recipe, error) {
	f.lastFilter = filter
	out := []model.Recipe{}
	for _, r := range f.recipes {
		if r.UserID == ownerID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeRecipeRepo) GetRecipe(_ context.Context, ownerID, id int64) (*model.Recipe, error) {
	r, ok := f.recipes[id]
	if !ok || r.UserID != ownerID {
		return nil, apperror.NotFound("recipe", id)
	}
	copied := *r
	return &copied, nil
}

func toLabels(names *[]string) []model.Label {
	out := []model.Label{}
	if names == nil {
		return out
	}
	for i, n := range *names {
		out = append(out, model.Label{ID: int64(i + 1), Name: n})
	}
	return out
}

func (f *fakeRecipeRepo) CreateRecipe(_ context.Context, ownerID int64, recipe *model.Recipe, labels repository.RecipeLabels) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.lastLabels = labels
	f.nextID++
	recipe.ID = f.nextID
	recipe.UserID = ownerID
	recipe.Tags = toLabels(labels.Tags)
	recipe.Ingredients = toLabels(labels.Ingredients)
	copied := *recipe
	f.recipes[recipe.ID] = &copied
	return nil
}

func (f *fakeRecipeRepo) UpdateRecipe(_ context.Context, ownerID int64, recipe *model.Recipe, labels repository.RecipeLabels) error {
	existing, ok := f.recipes[recipe.ID]
	if !ok || existing.UserID != ownerID {
		return apperror.NotFound("recipe", recipe.ID)
	}
	f.lastLabels = labels
	recipe.UserID = ownerID
	if labels.Tags != nil {
		recipe.Tags = toLabels(labels.Tags)
	}
	if labels.Ingredients != nil {
		recipe.Ingredients = toLabels(labels.Ingredients)
	}
	copied := *recipe
	f.recipes[recipe.ID] = &copied
	return nil
}

func (f *fakeRecipeRepo) SetRecipeImage(_ context.Context, ownerID, id int64, img string) error {
	if f.setImageErr != nil {
		return f.setImageErr
	}
	r, ok := f.recipes[id]
	if !ok || r.UserID != ownerID {
		return apperror.NotFound("recipe", id)
	}
	r.Image = img
	return nil
}

func (f *fakeRecipeRepo) DeleteRecipe(_ context.Context, ownerID, id int64) error {
	r, ok := f.recipes[id]
	if !ok || r.UserID != ownerID {
		return apperror.NotFound("recipe", id)
	}
	delete(f.recipes, id)
	return nil
}

// fakeStore is an in-memory storage.FileStore.
type fakeStore struct {
	files   map[string][]byte
	saveErr error
}

func newFakeStore() *fakeStore { return &fakeStore{files: make(map[string][]byte)} }

func (s *fakeStore) Save(_ context.Context, name string, r io.Reader) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.files[name] = data
	return nil
}

func (s *fakeStore) Delete(_ context.Context, name string) error {
	delete(s.files, name)
	return nil
}

func (s *fakeStore) URL(name string) string { return "/media/" + name }

func newTestRecipeService(repo *fakeRecipeRepo, store *fakeStore) *RecipeService {
	return NewRecipeService(repo, store, 1<<20, testLogger())
}

func ptr[T any](v T) *T { return &v }

func validInput() RecipeInput {
	return RecipeInput{
		Title:       ptr("Sample recipe"),
		TimeMinutes: ptr(22),
		Price:       ptr(decimal.RequireFromString("5.25")),
	}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

// =========================================================================
// CREATE TESTS
// =========================================================================

func TestRecipeCreate(t *testing.T) {
	repo := newFakeRecipeRepo()
	svc := newTestRecipeService(repo, newFakeStore())

	in := validInput()
	in.Title = ptr("  Thai curry  ")
	in.Link = ptr("https://example.com/curry")
	in.Tags = &[]string{" Thai ", "Dinner"}

	recipe, err := svc.Create(context.Background(), 7, in)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if recipe.UserID != 7 {
		t.Errorf("UserID = %d, want 7", recipe.UserID)
	}
	if recipe.Title != "Thai curry" {
		t.Errorf("Title = %q, want trimmed", recipe.Title)
	}
	if got := *repo.lastLabels.Tags; len(got) != 2 || got[0] != "Thai" {
		t.Errorf("tags passed to repo = %v", got)
	}
	if repo.lastLabels.Ingredients != nil {
		t.Error("absent ingredients should stay nil")
	}
}

func TestRecipeCreate_MissingRequiredFields(t *testing.T) {
	repo := newFakeRecipeRepo()
	svc := newTestRecipeService(repo, newFakeStore())

	_, err := svc.Create(context.Background(), 1, RecipeInput{})

	for _, field := range []string{"title", "time_minutes", "price"} {
		if msgs := fieldMessages(t, err, field); len(msgs) != 1 || msgs[0] != msgRequired {
			t.Errorf("%s errors = %v, want [%q]", field, msgs, msgRequired)
		}
	}
	if len(repo.recipes) != 0 {
		t.Error("recipe stored despite validation failure")
	}
}

func TestRecipeCreate_BlankTagName(t *testing.T) {
	svc := newTestRecipeService(newFakeRecipeRepo(), newFakeStore())

	in := validInput()
	in.Tags = &[]string{"ok", "  "}
	_, err := svc.Create(context.Background(), 1, in)
	if msgs := fieldMessages(t, err, "tags[1].name"); len(msgs) != 1 {
		t.Errorf("tags[1].name errors = %v, want one", msgs)
	}
}

func TestRecipeCreate_RepositoryError(t *testing.T) {
	repo := newFakeRecipeRepo()
	repo.createErr = errors.New("disk full")
	svc := newTestRecipeService(repo, newFakeStore())

	_, err := svc.Create(context.Background(), 1, validInput())
	if err == nil || errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("Create() error = %v, want an internal error", err)
	}
}

func TestCheckPrice(t *testing.T) {
	cases := []struct {
		price string
		ok    bool
	}{
		{"5.25", true},
		{"0", true},
		{"0.05", true},
		{"999.99", true},
		{"5.250", true}, // trailing zero ignored
		{"5.255", false},
		{"1000", false},
		{"1234.5", false},
		{"123456", false},
		{"-1", false},
	}
	for _, tc := range cases {
		t.Run(tc.price, func(t *testing.T) {
			msgs := checkPrice(decimal.RequireFromString(tc.price))
			if (len(msgs) == 0) != tc.ok {
				t.Errorf("checkPrice(%s) = %v, want ok=%v", tc.price, msgs, tc.ok)
			}
		})
	}
}

// =========================================================================
// UPDATE TESTS
// =========================================================================

func TestRecipeUpdate_Partial(t *testing.T) {
	repo := newFakeRecipeRepo()
	svc := newTestRecipeService(repo, newFakeStore())

	in := validInput()
	in.Link = ptr("https://example.com/original")
	in.Tags = &[]string{"Keep"}
	created, _ := svc.Create(context.Background(), 1, in)

	updated, err := svc.Update(context.Background(), 1, created.ID, RecipeInput{Title: ptr("New title")}, true)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Title != "New title" {
		t.Errorf("Title = %q", updated.Title)
	}
	if updated.Link != "https://example.com/original" || updated.TimeMinutes != 22 {
		t.Errorf("absent fields changed: %+v", updated)
	}
	if repo.lastLabels.Tags != nil {
		t.Error("absent tags should not be sent for replacement")
	}
	if len(updated.Tags) != 1 {
		t.Errorf("tags = %v, want untouched", updated.Tags)
	}
}

func TestRecipeUpdate_EmptyTagsClears(t *testing.T) {
	repo := newFakeRecipeRepo()
	svc := newTestRecipeService(repo, newFakeStore())

	in := validInput()
	in.Tags = &[]string{"Gone"}
	created, _ := svc.Create(context.Background(), 1, in)

	updated, err := svc.Update(context.Background(), 1, created.ID, RecipeInput{Tags: &[]string{}}, true)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if repo.lastLabels.Tags == nil || len(*repo.lastLabels.Tags) != 0 {
		t.Errorf("tags sent = %v, want empty non-nil", repo.lastLabels.Tags)
	}
	if len(updated.Tags) != 0 {
		t.Errorf("tags = %v, want cleared", updated.Tags)
	}
}

func TestRecipeUpdate_FullRequiresAllFields(t *testing.T) {
	svc := newTestRecipeService(newFakeRecipeRepo(), newFakeStore())
	created, _ := svc.Create(context.Background(), 1, validInput())

	_, err := svc.Update(context.Background(), 1, created.ID, RecipeInput{Title: ptr("Only title")}, false)
	if msgs := fieldMessages(t, err, "price"); len(msgs) != 1 {
		t.Errorf("price errors = %v, want required", msgs)
	}
}

func TestRecipeUpdate_OtherOwner(t *testing.T) {
	svc := newTestRecipeService(newFakeRecipeRepo(), newFakeStore())
	created, _ := svc.Create(context.Background(), 1, validInput())

	_, err := svc.Update(context.Background(), 2, created.ID, validInput(), false)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Update() error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// DELETE TESTS
// =========================================================================

func TestRecipeDelete_RemovesImageFile(t *testing.T) {
	repo := newFakeRecipeRepo()
	store := newFakeStore()
	svc := newTestRecipeService(repo, store)

	created, _ := svc.Create(context.Background(), 1, validInput())
	uploaded, err := svc.UploadImage(context.Background(), 1, created.ID, "pic.png", bytes.NewReader(pngBytes(t)))
	if err != nil {
		t.Fatalf("UploadImage() error = %v", err)
	}

	if err := svc.Delete(context.Background(), 2, created.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("Delete() by other owner error = %v, want ErrNotFound", err)
	}
	if err := svc.Delete(context.Background(), 1, created.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok := store.files[uploaded.Image]; ok {
		t.Error("image file left behind after delete")
	}
}

// =========================================================================
// IMAGE UPLOAD TESTS
// =========================================================================

func TestUploadImage(t *testing.T) {
	repo := newFakeRecipeRepo()
	store := newFakeStore()
	svc := newTestRecipeService(repo, store)
	created, _ := svc.Create(context.Background(), 1, validInput())

	recipe, err := svc.UploadImage(context.Background(), 1, created.ID, "photo.PNG", bytes.NewReader(pngBytes(t)))
	if err != nil {
		t.Fatalf("UploadImage() error = %v", err)
	}

	if !strings.HasPrefix(recipe.Image, "uploads/recipe/") || !strings.HasSuffix(recipe.Image, ".png") {
		t.Errorf("Image = %q, want uploads/recipe/<uuid>.png", recipe.Image)
	}
	if _, ok := store.files[recipe.Image]; !ok {
		t.Error("image not written to storage")
	}
	if repo.recipes[created.ID].Image != recipe.Image {
		t.Error("image path not recorded on the recipe")
	}

	// A second upload replaces the first file.
	second, err := svc.UploadImage(context.Background(), 1, created.ID, "again.png", bytes.NewReader(pngBytes(t)))
	if err != nil {
		t.Fatalf("second UploadImage() error = %v", err)
	}
	if _, ok := store.files[recipe.Image]; ok {
		t.Error("previous image file not removed")
	}
	if len(store.files) != 1 || store.files[second.Image] == nil {
		t.Errorf("files = %d, want only the new image", len(store.files))
	}
}

func TestUploadImage_NoExtensionUsesFormat(t *testing.T) {
	svc := newTestRecipeService(newFakeRecipeRepo(), newFakeStore())
	created, _ := svc.Create(context.Background(), 1, validInput())

	recipe, err := svc.UploadImage(context.Background(), 1, created.ID, "blob", bytes.NewReader(pngBytes(t)))
	if err != nil {
		t.Fatalf("UploadImage() error = %v", err)
	}
	if !strings.HasSuffix(recipe.Image, ".png") {
		t.Errorf("Image = %q, want .png suffix", recipe.Image)
	}
}

func TestUploadImage_RejectsNonImage(t *testing.T) {
	repo := newFakeRecipeRepo()
	store := newFakeStore()
	svc := newTestRecipeService(repo, store)
	created, _ := svc.Create(context.Background(), 1, validInput())

	_, err := svc.UploadImage(context.Background(), 1, created.ID, "notimage.png", strings.NewReader("this is not an image"))
	if msgs := fieldMessages(t, err, "image"); len(msgs) != 1 || msgs[0] != msgInvalidImage {
		t.Errorf("image errors = %v", msgs)
	}
	if len(store.files) != 0 {
		t.Error("non-image reached storage")
	}
	if repo.recipes[created.ID].Image != "" {
		t.Error("recipe image changed after a rejected upload")
	}
}

func TestUploadImage_EmptyAndTooLarge(t *testing.T) {
	repo := newFakeRecipeRepo()
	svc := NewRecipeService(repo, newFakeStore(), 16, testLogger())
	created, _ := svc.Create(context.Background(), 1, validInput())

	_, err := svc.UploadImage(context.Background(), 1, created.ID, "empty.png", strings.NewReader(""))
	if msgs := fieldMessages(t, err, "image"); len(msgs) != 1 || msgs[0] != msgEmptyFile {
		t.Errorf("empty upload errors = %v", msgs)
	}

	_, err = svc.UploadImage(context.Background(), 1, created.ID, "big.png", bytes.NewReader(pngBytes(t)))
	if msgs := fieldMessages(t, err, "image"); len(msgs) != 1 {
		t.Errorf("oversized upload errors = %v", msgs)
	}
}

func TestUploadImage_OtherOwner(t *testing.T) {
	store := newFakeStore()
	svc := newTestRecipeService(newFakeRecipeRepo(), store)
	created, _ := svc.Create(context.Background(), 1, validInput())

	_, err := svc.UploadImage(context.Background(), 2, created.ID, "x.png", bytes.NewReader(pngBytes(t)))
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("UploadImage() error = %v, want ErrNotFound", err)
	}
	if len(store.files) != 0 {
		t.Error("file written for another owner's recipe")
	}
}

func TestUploadImage_DBFailureRemovesFile(t *testing.T) {
	repo := newFakeRecipeRepo()
	store := newFakeStore()
	svc := newTestRecipeService(repo, store)
	created, _ := svc.Create(context.Background(), 1, validInput())
	repo.setImageErr = errors.New("database is locked")

	if _, err := svc.UploadImage(context.Background(), 1, created.ID, "x.png", bytes.NewReader(pngBytes(t))); err == nil {
		t.Fatal("UploadImage() should fail when the image cannot be recorded")
	}
	if len(store.files) != 0 {
		t.Errorf("orphaned files = %d, want 0", len(store.files))
	}
}

// =========================================================================
// LIST TESTS
// =========================================================================

func TestRecipeList_ClampsLimit(t *testing.T) {
	repo := newFakeRecipeRepo()
	svc := newTestRecipeService(repo, newFakeStore())

	_, err := svc.List(context.Background(), 1, repository.RecipeFilter{
		TagIDs:      []int64{1, 2},
		ListOptions: repository.ListOptions{Limit: 1000, Offset: -5},
	})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if repo.lastFilter.Limit != MaxListLimit || repo.lastFilter.Offset != 0 {
		t.Errorf("filter = %+v, want clamped", repo.lastFilter.ListOptions)
	}
	if len(repo.lastFilter.TagIDs) != 2 {
		t.Error("tag filter not passed through")
	}
}
