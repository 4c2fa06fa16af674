// Package scope resolves which appointment, patient and invoice rows a
// caller may see or mutate. It only produces filters; reads and writes
// stay in the domain repositories.
package scope

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/internal/platform/apperr"
	"github.com/clinicore/clinicore/internal/platform/auth"
)

// Filter restricts a query to the caller's visible rows. Exactly one of
// the fields is set: PatientID for patients, DoctorIDs for doctors and
// clinic staff, All for admins. An empty DoctorIDs slice (clinic with no
// mapped doctors) matches nothing.
type Filter struct {
	PatientID *uuid.UUID
	DoctorIDs []uuid.UUID
	All       bool
}

// AllowsDoctor reports whether the filter covers the given doctor.
func (f Filter) AllowsDoctor(doctorID uuid.UUID) bool {
	if f.All {
		return true
	}
	for _, id := range f.DoctorIDs {
		if id == doctorID {
			return true
		}
	}
	return false
}

// AllowsPatient reports whether the filter covers the given patient.
func (f Filter) AllowsPatient(patientID uuid.UUID) bool {
	if f.All {
		return true
	}
	return f.PatientID != nil && *f.PatientID == patientID
}

// DoctorDirectory supplies the clinic-to-doctor mapping. A clinic's roster
// is derived entirely from this mapping, never from a field on the doctor.
type DoctorDirectory interface {
	DoctorIDsForClinic(ctx context.Context, clinicID uuid.UUID) ([]uuid.UUID, error)
}

type Resolver struct {
	dir DoctorDirectory
}

func NewResolver(dir DoctorDirectory) *Resolver {
	return &Resolver{dir: dir}
}

// Resolve produces the filter for a caller. Callers whose role requires an
// identifier the token did not carry are rejected rather than granted an
// empty view.
func (r *Resolver) Resolve(ctx context.Context, caller auth.CallerContext) (Filter, error) {
	switch caller.Role {
	case auth.RoleAdmin:
		return Filter{All: true}, nil

	case auth.RolePatient:
		if caller.PatientID == nil {
			return Filter{}, apperr.Authorizationf("patient caller has no patient_id")
		}
		return Filter{PatientID: caller.PatientID}, nil

	case auth.RoleDoctor:
		if caller.DoctorID == nil {
			return Filter{}, apperr.Authorizationf("doctor caller has no doctor_id")
		}
		return Filter{DoctorIDs: []uuid.UUID{*caller.DoctorID}}, nil

	case auth.RoleClinic, auth.RoleReceptionist:
		if caller.ClinicID == nil {
			return Filter{}, apperr.Authorizationf("%s caller has no clinic_id", caller.Role)
		}
		ids, err := r.dir.DoctorIDsForClinic(ctx, *caller.ClinicID)
		if err != nil {
			return Filter{}, apperr.Wrap(apperr.Persistence, "resolve clinic doctors", err)
		}
		if ids == nil {
			ids = []uuid.UUID{}
		}
		return Filter{DoctorIDs: ids}, nil

	default:
		return Filter{}, apperr.Authorizationf("unknown role %q", caller.Role)
	}
}

// AuthorizeDoctor rejects a doctor caller whose target doctor differs from
// their own. The mismatch is an error, never a silent filter.
func AuthorizeDoctor(caller auth.CallerContext, targetDoctorID uuid.UUID) error {
	if caller.Role == auth.RoleAdmin {
		return nil
	}
	if caller.Role != auth.RoleDoctor {
		return nil
	}
	if caller.DoctorID == nil || *caller.DoctorID != targetDoctorID {
		return apperr.Authorizationf("caller is not doctor %s", targetDoctorID)
	}
	return nil
}

// String is used in audit logs.
func (f Filter) String() string {
	switch {
	case f.All:
		return "all"
	case f.PatientID != nil:
		return fmt.Sprintf("patient:%s", f.PatientID)
	default:
		return fmt.Sprintf("doctors:%d", len(f.DoctorIDs))
	}
}
