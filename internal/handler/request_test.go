package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/recipe-api/internal/apperror"
	"github.com/sakif/recipe-api/internal/model"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func fieldsOf(t *testing.T, err error) map[string][]string {
	t.Helper()
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	require.ErrorIs(t, err, apperror.ErrValidation)
	return appErr.Fields
}

func TestDecodeJSON(t *testing.T) {
	t.Run("present, absent and empty lists", func(t *testing.T) {
		body := `{"title":"Soup","price":"5.50","tags":[]}`
		r := httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(body))
		var req recipeRequest

		require.NoError(t, decodeJSON(httptest.NewRecorder(), r, &req))

		require.NotNil(t, req.Title)
		assert.Equal(t, "Soup", *req.Title)
		assert.True(t, req.Price.Equal(decimal.RequireFromString("5.5")))
		assert.Nil(t, req.TimeMinutes)
		require.NotNil(t, req.Tags)
		assert.Empty(t, *req.Tags)
		assert.Nil(t, req.Ingredients)
	})

	t.Run("numeric price", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"price":5.25}`))
		var req recipeRequest
		require.NoError(t, decodeJSON(httptest.NewRecorder(), r, &req))
		assert.Equal(t, "5.25", req.Price.String())
	})

	t.Run("empty body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
		var req createUserRequest

		fields := fieldsOf(t, decodeJSON(httptest.NewRecorder(), r, &req))
		assert.Equal(t, []string{"This field is required."}, fields["email"])
		assert.Contains(t, fields, "password")
		assert.Contains(t, fields, "name")
	})

	t.Run("blank value is present", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@example.com","password":"","name":"A"}`))
		var req tokenRequest
		require.NoError(t, decodeJSON(httptest.NewRecorder(), r, &req))
		assert.Equal(t, "", *req.Password)
	})

	t.Run("wrong type", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"time_minutes":"soon"}`))
		var req recipeRequest
		fields := fieldsOf(t, decodeJSON(httptest.NewRecorder(), r, &req))
		assert.Equal(t, []string{"A valid integer is required."}, fields["time_minutes"])
	})

	t.Run("malformed", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"title":`))
		var req recipeRequest
		fields := fieldsOf(t, decodeJSON(httptest.NewRecorder(), r, &req))
		assert.Contains(t, fields, "non_field_errors")
	})

	t.Run("nested label without name", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"tags":[{"name":"ok"},{}]}`))
		var req recipeRequest
		fields := fieldsOf(t, decodeJSON(httptest.NewRecorder(), r, &req))
		assert.Equal(t, []string{"This field is required."}, fields["tags[1].name"])
	})
}

func TestParseIDList(t *testing.T) {
	ids, err := parseIDList("tags", "1, 2,,3,")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)

	ids, err = parseIDList("tags", "")
	require.NoError(t, err)
	assert.Nil(t, ids)

	_, err = parseIDList("ingredients", "1,two")
	assert.Contains(t, fieldsOf(t, err), "ingredients")
}

func TestParseQueryScalars(t *testing.T) {
	n, err := parseNonNegative("limit", "20")
	require.NoError(t, err)
	assert.Equal(t, 20, n)

	_, err = parseNonNegative("limit", "-1")
	assert.Contains(t, fieldsOf(t, err), "limit")

	_, err = parseNonNegative("offset", "x")
	assert.Contains(t, fieldsOf(t, err), "offset")

	on, err := parseFlag("assigned_only", "1")
	require.NoError(t, err)
	assert.True(t, on)

	off, err := parseFlag("assigned_only", "")
	require.NoError(t, err)
	assert.False(t, off)

	_, err = parseFlag("assigned_only", "yes")
	assert.Contains(t, fieldsOf(t, err), "assigned_only")
}

func TestPathID(t *testing.T) {
	withID := func(id string) *http.Request {
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("id", id)
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
	}

	id, err := pathID(withID("42"), "recipe")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, raw := range []string{"abc", "0", "-3", ""} {
		_, err := pathID(withID(raw), "recipe")
		assert.ErrorIs(t, err, apperror.ErrNotFound, "id %q", raw)
	}
}

func TestWriteError(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"validation", apperror.ValidationFailed("title", "This field is required."), http.StatusBadRequest, "validation_error"},
		{"unauthorized", apperror.Unauthorized("no token"), http.StatusUnauthorized, "unauthorized"},
		{"not found", apperror.NotFound("recipe", 1), http.StatusNotFound, "not_found"},
		{"forbidden", apperror.Forbidden("nope"), http.StatusForbidden, "forbidden"},
		{"conflict", apperror.Conflict("user", "x"), http.StatusConflict, "conflict"},
		{"unknown", errors.New("sql: connection refused"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			writeError(rr, discard, tc.err)

			assert.Equal(t, tc.wantStatus, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

			var body ErrorResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
			assert.Equal(t, tc.wantType, body.Error)
			assert.NotContains(t, body.Message, "sql:")
		})
	}

	t.Run("validation fields in body", func(t *testing.T) {
		rr := httptest.NewRecorder()
		writeError(rr, discard, apperror.Validation(map[string][]string{"price": {"bad"}}))

		var body ErrorResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
		assert.Equal(t, []string{"bad"}, body.Fields["price"])
	})
}

func TestRecipeSerializers(t *testing.T) {
	rec := &model.Recipe{
		ID:          3,
		Title:       "Pie",
		TimeMinutes: 40,
		Price:       decimal.RequireFromString("5"),
		Tags:        []model.Label{{ID: 1, Name: "Dessert"}},
		Ingredients: []model.Label{},
	}

	out := toRecipeResponse(rec)
	assert.Equal(t, "5.00", out.Price)
	assert.Equal(t, []labelResponse{{ID: 1, Name: "Dessert"}}, out.Tags)
	assert.NotNil(t, out.Ingredients)

	data, err := json.Marshal(recipeDetailResponse{recipeResponse: out})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"image":null`)
	assert.Contains(t, string(data), `"ingredients":[]`)
	assert.Contains(t, string(data), `"time_minutes":40`)
}

func TestAbsoluteURL(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://api.example.com/recipe/recipes/1", nil)
	assert.Equal(t, "http://api.example.com/media/x.png", absoluteURL(r, "/media/x.png"))

	r.Header.Set("X-Forwarded-Proto", "https")
	assert.Equal(t, "https://api.example.com/media/x.png", absoluteURL(r, "/media/x.png"))

	assert.Equal(t, "https://cdn.example.com/x.png", absoluteURL(r, "https://cdn.example.com/x.png"))
}
