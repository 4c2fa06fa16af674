package scope

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/internal/platform/apperr"
	"github.com/clinicore/clinicore/internal/platform/auth"
)

type mockDirectory struct {
	mapping map[uuid.UUID][]uuid.UUID
}

func (m *mockDirectory) DoctorIDsForClinic(ctx context.Context, clinicID uuid.UUID) ([]uuid.UUID, error) {
	return m.mapping[clinicID], nil
}

func TestResolve_Admin(t *testing.T) {
	r := NewResolver(&mockDirectory{})
	f, err := r.Resolve(context.Background(), auth.CallerContext{Role: auth.RoleAdmin})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if !f.All {
		t.Errorf("admin filter should be unrestricted")
	}
	if !f.AllowsDoctor(uuid.New()) || !f.AllowsPatient(uuid.New()) {
		t.Errorf("admin filter should allow everything")
	}
}

func TestResolve_Patient(t *testing.T) {
	pid := uuid.New()
	r := NewResolver(&mockDirectory{})
	f, err := r.Resolve(context.Background(), auth.CallerContext{Role: auth.RolePatient, PatientID: &pid})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if !f.AllowsPatient(pid) {
		t.Errorf("patient should see own records")
	}
	if f.AllowsPatient(uuid.New()) {
		t.Errorf("patient should not see other patients")
	}
}

func TestResolve_PatientMissingID(t *testing.T) {
	r := NewResolver(&mockDirectory{})
	_, err := r.Resolve(context.Background(), auth.CallerContext{Role: auth.RolePatient})
	if !apperr.IsKind(err, apperr.Authorization) {
		t.Errorf("expected authorization error, got %v", err)
	}
}

func TestResolve_Doctor(t *testing.T) {
	did := uuid.New()
	r := NewResolver(&mockDirectory{})
	f, err := r.Resolve(context.Background(), auth.CallerContext{Role: auth.RoleDoctor, DoctorID: &did})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if !f.AllowsDoctor(did) {
		t.Errorf("doctor should see own records")
	}
	if f.AllowsDoctor(uuid.New()) {
		t.Errorf("doctor should not see other doctors")
	}
}

func TestResolve_Clinic(t *testing.T) {
	clinicID := uuid.New()
	d1, d2 := uuid.New(), uuid.New()
	dir := &mockDirectory{mapping: map[uuid.UUID][]uuid.UUID{
		clinicID: {d1, d2},
	}}
	r := NewResolver(dir)

	for _, role := range []string{auth.RoleClinic, auth.RoleReceptionist} {
		f, err := r.Resolve(context.Background(), auth.CallerContext{Role: role, ClinicID: &clinicID})
		if err != nil {
			t.Fatalf("Resolve(%s) error: %v", role, err)
		}
		if !f.AllowsDoctor(d1) || !f.AllowsDoctor(d2) {
			t.Errorf("%s should see mapped doctors", role)
		}
		if f.AllowsDoctor(uuid.New()) {
			t.Errorf("%s should not see unmapped doctors", role)
		}
	}
}

func TestResolve_ClinicWithNoDoctors(t *testing.T) {
	clinicID := uuid.New()
	r := NewResolver(&mockDirectory{})
	f, err := r.Resolve(context.Background(), auth.CallerContext{Role: auth.RoleClinic, ClinicID: &clinicID})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if f.All || f.AllowsDoctor(uuid.New()) {
		t.Errorf("empty roster must match nothing, not everything")
	}
}

func TestAuthorizeDoctor_Mismatch(t *testing.T) {
	own := uuid.New()
	other := uuid.New()
	caller := auth.CallerContext{Role: auth.RoleDoctor, DoctorID: &own}

	if err := AuthorizeDoctor(caller, own); err != nil {
		t.Errorf("own doctor should be authorized: %v", err)
	}
	err := AuthorizeDoctor(caller, other)
	if !apperr.IsKind(err, apperr.Authorization) {
		t.Errorf("mismatched doctor must be rejected, got %v", err)
	}
}

func TestAuthorizeDoctor_AdminAndStaff(t *testing.T) {
	target := uuid.New()
	if err := AuthorizeDoctor(auth.CallerContext{Role: auth.RoleAdmin}, target); err != nil {
		t.Errorf("admin should pass: %v", err)
	}
	clinicID := uuid.New()
	if err := AuthorizeDoctor(auth.CallerContext{Role: auth.RoleReceptionist, ClinicID: &clinicID}, target); err != nil {
		t.Errorf("non-doctor roles are checked by filter, not doctor identity: %v", err)
	}
}
