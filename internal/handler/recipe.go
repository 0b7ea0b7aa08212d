package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sakif/recipe-api/internal/apperror"
	"github.com/sakif/recipe-api/internal/model"
	"github.com/sakif/recipe-api/internal/repository"
	"github.com/sakif/recipe-api/internal/service"
)

// multipartMemory is how much of a multipart body is kept in memory before
// the rest spills to a temp file.
const multipartMemory = 8 << 20

// RecipeHandler serves the owner-scoped recipe endpoints. Every method reads
// the caller from the request context; there is no way to name another
// owner in a request.
type RecipeHandler struct {
	recipes *service.RecipeService
	logger  *slog.Logger
}

func NewRecipeHandler(recipes *service.RecipeService, logger *slog.Logger) *RecipeHandler {
	return &RecipeHandler{recipes: recipes, logger: logger}
}

type labelRequest struct {
	Name *string `json:"name" validate:"required"`
}

// recipeRequest is the write payload for POST, PUT and PATCH. Pointer fields
// tell "absent" from "zero": a PATCH without "tags" keeps the recipe's tags,
// a PATCH with "tags": [] removes them.
type recipeRequest struct {
	Title       *string          `json:"title"`
	Description *string          `json:"description"`
	TimeMinutes *int             `json:"time_minutes"`
	Price       *decimal.Decimal `json:"price"`
	Link        *string          `json:"link"`
	Tags        *[]labelRequest  `json:"tags"        validate:"omitempty,dive"`
	Ingredients *[]labelRequest  `json:"ingredients" validate:"omitempty,dive"`
}

func (req recipeRequest) input() service.RecipeInput {
	return service.RecipeInput{
		Title:       req.Title,
		Description: req.Description,
		TimeMinutes: req.TimeMinutes,
		Price:       req.Price,
		Link:        req.Link,
		Tags:        labelNames(req.Tags),
		Ingredients: labelNames(req.Ingredients),
	}
}

func labelNames(in *[]labelRequest) *[]string {
	if in == nil {
		return nil
	}
	names := make([]string, len(*in))
	for i, l := range *in {
		names[i] = *l.Name
	}
	return &names
}

type labelResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// recipeResponse is the list representation.
type recipeResponse struct {
	ID          int64           `json:"id"`
	Title       string          `json:"title"`
	TimeMinutes int             `json:"time_minutes"`
	Price       string          `json:"price"`
	Link        string          `json:"link"`
	Tags        []labelResponse `json:"tags"`
	Ingredients []labelResponse `json:"ingredients"`
}

// recipeDetailResponse adds the fields only shown for a single recipe.
type recipeDetailResponse struct {
	recipeResponse
	Description string  `json:"description"`
	Image       *string `json:"image"`
}

type recipeImageResponse struct {
	ID    int64   `json:"id"`
	Image *string `json:"image"`
}

func toLabelResponses(labels []model.Label) []labelResponse {
	out := make([]labelResponse, len(labels))
	for i, l := range labels {
		out[i] = labelResponse{ID: l.ID, Name: l.Name}
	}
	return out
}

func toRecipeResponse(rec *model.Recipe) recipeResponse {
	return recipeResponse{
		ID:          rec.ID,
		Title:       rec.Title,
		TimeMinutes: rec.TimeMinutes,
		Price:       rec.Price.StringFixed(service.PriceDecimalPlaces),
		Link:        rec.Link,
		Tags:        toLabelResponses(rec.Tags),
		Ingredients: toLabelResponses(rec.Ingredients),
	}
}

func (h *RecipeHandler) toDetail(r *http.Request, rec *model.Recipe) recipeDetailResponse {
	return recipeDetailResponse{
		recipeResponse: toRecipeResponse(rec),
		Description:    rec.Description,
		Image:          h.imageURL(r, rec.Image),
	}
}

// imageURL returns an absolute URL for a stored image, or nil when the
// recipe has none.
func (h *RecipeHandler) imageURL(r *http.Request, name string) *string {
	if name == "" {
		return nil
	}
	url := absoluteURL(r, h.recipes.URL(name))
	return &url
}

func absoluteURL(r *http.Request, path string) string {
	if strings.Contains(path, "://") {
		return path
	}
	scheme := "http"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + r.Host + path
}

// HandleList returns the caller's recipes, newest first.
//
// HTTP: GET /recipe/recipes?tags=1,2&ingredients=3&limit=20&offset=0
//
// A recipe matches ?tags when it has at least one of the listed tags; the
// same for ?ingredients. When both are given a recipe must match both.
func (h *RecipeHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	filter, err := recipeFilterFromQuery(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	recipes, err := h.recipes.List(r.Context(), userID, filter)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	out := make([]recipeResponse, len(recipes))
	for i := range recipes {
		out[i] = toRecipeResponse(&recipes[i])
	}
	writeJSON(w, http.StatusOK, out)
}

func recipeFilterFromQuery(r *http.Request) (repository.RecipeFilter, error) {
	q := r.URL.Query()
	var filter repository.RecipeFilter
	var err error

	if filter.TagIDs, err = parseIDList("tags", q.Get("tags")); err != nil {
		return filter, err
	}
	if filter.IngredientIDs, err = parseIDList("ingredients", q.Get("ingredients")); err != nil {
		return filter, err
	}
	filter.ListOptions, err = listOptionsFromQuery(r)
	return filter, err
}

func listOptionsFromQuery(r *http.Request) (repository.ListOptions, error) {
	q := r.URL.Query()
	limit, err := parseNonNegative("limit", q.Get("limit"))
	if err != nil {
		return repository.ListOptions{}, err
	}
	offset, err := parseNonNegative("offset", q.Get("offset"))
	if err != nil {
		return repository.ListOptions{}, err
	}
	return repository.ListOptions{Limit: limit, Offset: offset}, nil
}

// HandleGet returns one of the caller's recipes.
//
// HTTP: GET /recipe/recipes/{id}
func (h *RecipeHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	id, err := pathID(r, "recipe")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	recipe, err := h.recipes.Get(r.Context(), userID, id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, h.toDetail(r, recipe))
}

// HandleCreate creates a recipe owned by the caller. Tags and ingredients
// are given by name and created for the caller if they do not exist yet.
//
// HTTP: POST /recipe/recipes
// REQUEST BODY:
//
//	{"title": "Curry", "time_minutes": 30, "price": "5.50",
//	 "tags": [{"name": "Indian"}], "ingredients": [{"name": "Rice"}]}
func (h *RecipeHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req recipeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.Warn("invalid recipe payload", slog.String("error", err.Error()))
		writeError(w, h.logger, err)
		return
	}

	recipe, err := h.recipes.Create(r.Context(), userID, req.input())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, h.toDetail(r, recipe))
}

// HandleUpdate serves both PUT (full) and PATCH (partial).
//
// HTTP: PUT /recipe/recipes/{id}, PATCH /recipe/recipes/{id}
func (h *RecipeHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	id, err := pathID(r, "recipe")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req recipeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.Warn("invalid recipe payload", slog.Int64("id", id), slog.String("error", err.Error()))
		writeError(w, h.logger, err)
		return
	}

	partial := r.Method == http.MethodPatch
	recipe, err := h.recipes.Update(r.Context(), userID, id, req.input(), partial)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, h.toDetail(r, recipe))
}

// HandleDelete removes one of the caller's recipes.
//
// HTTP: DELETE /recipe/recipes/{id} → 204
func (h *RecipeHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	id, err := pathID(r, "recipe")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.recipes.Delete(r.Context(), userID, id); err != nil {
		writeError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleUploadImage stores a picture for one of the caller's recipes.
//
// HTTP: POST /recipe/recipes/{id}/upload-image
// REQUEST: multipart/form-data with the file in the "image" field.
// RESPONSE: 200 {"id": 1, "image": "http://host/media/uploads/recipe/<uuid>.png"}
func (h *RecipeHandler) HandleUploadImage(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	id, err := pathID(r, "recipe")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	// Ownership first, so another user's id is a 404 whatever the body.
	if _, err := h.recipes.Get(r.Context(), userID, id); err != nil {
		writeError(w, h.logger, err)
		return
	}

	// Room for the multipart framing on top of the file itself; the service
	// enforces the exact file limit.
	r.Body = http.MaxBytesReader(w, r.Body, h.recipes.MaxUpload()+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, h.logger, apperror.ValidationFailed("image", "The uploaded file is too large."))
			return
		}
		writeError(w, h.logger, apperror.ValidationFailed("image",
			"The submitted data was not a file. Check the encoding type on the form."))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, h.logger, apperror.ValidationFailed("image", "No file was submitted."))
		return
	}
	defer file.Close()

	recipe, err := h.recipes.UploadImage(r.Context(), userID, id, header.Filename, file)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, recipeImageResponse{
		ID:    recipe.ID,
		Image: h.imageURL(r, recipe.Image),
	})
}
