// Package identity carries the caller tuple supplied by the upstream identity
// provider. The booking core trusts it and only enforces role rules.
package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type Role string

const (
	RolePatient  Role = "patient"
	RoleDoctor   Role = "doctor"
	RoleHospital Role = "hospital"
	RoleAdmin    Role = "admin"
	RoleSystem   Role = "system"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RolePatient, RoleDoctor, RoleHospital, RoleAdmin, RoleSystem:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

type Actor struct {
	UserID     uuid.UUID
	Role       Role
	HospitalID *uuid.UUID
	DoctorID   *uuid.UUID
}

// System is the actor used for payment callbacks and background workers.
func System() Actor {
	return Actor{UserID: uuid.Nil, Role: RoleSystem}
}

func (a Actor) IsPrivileged() bool {
	return a.Role == RoleAdmin || a.Role == RoleSystem
}

// WorksAt reports whether a hospital staff actor belongs to hospitalID.
func (a Actor) WorksAt(hospitalID uuid.UUID) bool {
	return a.Role == RoleHospital && a.HospitalID != nil && *a.HospitalID == hospitalID
}

// IsDoctor reports whether the actor is the doctor with doctorID.
func (a Actor) IsDoctor(doctorID uuid.UUID) bool {
	return a.Role == RoleDoctor && a.DoctorID != nil && *a.DoctorID == doctorID
}

type contextKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, a)
}

func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(contextKey{}).(Actor)
	return a, ok
}
