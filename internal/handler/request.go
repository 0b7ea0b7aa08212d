// Package handler contains the HTTP handlers of the recipe API.
//
// HANDLER RESPONSIBILITIES:
//  1. Parse the incoming HTTP request (path id, query params, JSON or multipart body)
//  2. Call the service layer with the authenticated caller's ID
//  3. Write the HTTP response (status code, JSON representation)
//
// Handlers hold no business rules. Validation of content, ownership and
// persistence all happen behind the service calls; handlers only shape
// requests into service inputs and models into response bodies.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sakif/recipe-api/internal/apperror"
	"github.com/sakif/recipe-api/internal/service"
)

// maxJSONBody caps request bodies on JSON endpoints.
const maxJSONBody = 1 << 20

// validate checks request DTO shape (presence, nesting) before the service
// sees the values. Content rules such as lengths and price precision live in
// the service so the CLI gets them too.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON name: "time_minutes", not "TimeMinutes".
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeJSON reads a JSON object from the body into dst and validates it.
// An empty body decodes as {} so missing fields are reported as required
// instead of as a parse error.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		var typeErr *json.UnmarshalTypeError
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &typeErr) && typeErr.Field != "":
			return apperror.ValidationFailed(typeErr.Field, typeMessage(typeErr.Type))
		case errors.As(err, &maxErr):
			return apperror.ValidationFailed(service.NonFieldErrors, "Request body too large.")
		default:
			return apperror.ValidationFailed(service.NonFieldErrors, "JSON parse error - "+err.Error())
		}
	}

	if err := validate.Struct(dst); err != nil {
		return translateValidation(err)
	}
	return nil
}

func typeMessage(t reflect.Type) string {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return "A valid integer is required."
	case reflect.String:
		return "Not a valid string."
	case reflect.Slice:
		return "Expected a list of items."
	case reflect.Struct, reflect.Map:
		return "Invalid data. Expected a dictionary."
	default:
		return "Incorrect type."
	}
}

// translateValidation turns validator errors into an apperror field map.
// Nested fields keep their path: "tags[1].name".
func translateValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("handler: validating request: %w", err)
	}

	fields := make(map[string][]string, len(verrs))
	for _, fe := range verrs {
		// Namespace is "recipeRequest.tags[1].name"; drop the struct name.
		_, field, ok := strings.Cut(fe.Namespace(), ".")
		if !ok {
			field = fe.Field()
		}
		fields[field] = append(fields[field], fieldMessage(fe))
	}
	return apperror.Validation(fields)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "email":
		return "Enter a valid email address."
	case "min", "gte":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("Ensure this field has at least %s characters.", fe.Param())
		}
		return fmt.Sprintf("Ensure this value is greater than or equal to %s.", fe.Param())
	case "max", "lte":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
		}
		return fmt.Sprintf("Ensure this value is less than or equal to %s.", fe.Param())
	default:
		return "Invalid value."
	}
}

// pathID reads the numeric {id} URL parameter. A non-numeric id cannot name
// any row, so it is a 404 like an unknown one.
func pathID(r *http.Request, resource string) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.NotFound(resource, raw)
	}
	return id, nil
}

// parseIDList parses a comma-separated list of ids, e.g. "?tags=1,2".
// Empty items are skipped so "1,,2" and a trailing comma are accepted.
func parseIDList(param, raw string) ([]int64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, apperror.ValidationFailed(param, fmt.Sprintf("%q is not a valid integer.", part))
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// parseNonNegative parses an optional non-negative integer query parameter.
func parseNonNegative(param, raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.ValidationFailed(param, "A valid integer is required.")
	}
	if n < 0 {
		return 0, apperror.ValidationFailed(param, "Ensure this value is greater than or equal to 0.")
	}
	return n, nil
}

// parseFlag parses a 0/1 query flag such as assigned_only.
func parseFlag(param, raw string) (bool, error) {
	switch raw {
	case "", "0":
		return false, nil
	case "1":
		return true, nil
	default:
		return false, apperror.ValidationFailed(param, "Must be 0 or 1.")
	}
}
