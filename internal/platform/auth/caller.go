package auth

import (
	"context"

	"github.com/google/uuid"
)

// Roles recognized by the platform.
const (
	RolePatient      = "patient"
	RoleDoctor       = "doctor"
	RoleClinic       = "clinic"
	RoleReceptionist = "receptionist"
	RoleAdmin        = "admin"
)

// CallerContext is the authenticated caller of a request. It is built once
// by the auth middleware and never mutated afterwards; every operation that
// scopes or authorizes receives it by value.
type CallerContext struct {
	UserID    string
	Role      string
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	ClinicID  *uuid.UUID
}

// IsAdmin reports whether the caller has full visibility.
func (c CallerContext) IsAdmin() bool { return c.Role == RoleAdmin }

type contextKey string

const callerKey contextKey = "caller"

// WithCaller returns a context carrying the caller.
func WithCaller(ctx context.Context, caller CallerContext) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// CallerFromContext retrieves the caller set by the auth middleware. The
// second return is false when no middleware ran (e.g. unit tests hitting a
// service directly).
func CallerFromContext(ctx context.Context) (CallerContext, bool) {
	caller, ok := ctx.Value(callerKey).(CallerContext)
	return caller, ok
}
