// Package httpx holds the small shared pieces of the JSON HTTP surface:
// response writers, request decoding, and the request-scoped identity values
// middleware hands down to handlers.
package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

type contextKey int

const (
	userIDKey contextKey = iota
	projectRoleKey
)

// WithUserID stores the authenticated user on the request context.
func WithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserID returns the authenticated user, or false when the request never
// passed the auth middleware.
func UserID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey).(uuid.UUID)
	return id, ok
}

// WithProjectRole stores the caller's resolved role for the routed project.
func WithProjectRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, projectRoleKey, role)
}

// ProjectRole returns the caller's role for the routed project.
func ProjectRole(ctx context.Context) (string, bool) {
	role, ok := ctx.Value(projectRoleKey).(string)
	return role, ok
}

// JSON writes v as a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// Error writes a JSON error body with the given status code.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// NotFound writes the uniform 404 response. Missing resources and resources
// the caller may not see look identical on the wire.
func NotFound(w http.ResponseWriter) {
	Error(w, http.StatusNotFound, "not found")
}

// Decode reads a JSON request body into dst, rejecting unknown fields.
func Decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// PathUUID parses a route variable as a UUID.
func PathUUID(vars map[string]string, name string) (uuid.UUID, error) {
	raw, ok := vars[name]
	if !ok {
		return uuid.Nil, errors.New("missing path parameter " + name)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	return id, nil
}
