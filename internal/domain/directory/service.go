package directory

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/internal/platform/apperr"
	"github.com/clinicore/clinicore/internal/platform/auth"
	"github.com/clinicore/clinicore/internal/domain/scope"
)

type Service struct {
	patients PatientRepository
	doctors  DoctorRepository
	clinics  ClinicRepository
	mapping  MappingRepository
	resolver *scope.Resolver
}

func NewService(patients PatientRepository, doctors DoctorRepository, clinics ClinicRepository, mapping MappingRepository, resolver *scope.Resolver) *Service {
	return &Service{patients: patients, doctors: doctors, clinics: clinics, mapping: mapping, resolver: resolver}
}

// DoctorIDsForClinic satisfies scope.DoctorDirectory.
func (s *Service) DoctorIDsForClinic(ctx context.Context, clinicID uuid.UUID) ([]uuid.UUID, error) {
	return s.mapping.DoctorIDsForClinic(ctx, clinicID)
}

// -- Patient --

func (s *Service) CreatePatient(ctx context.Context, caller auth.CallerContext, p *Patient) error {
	if p.Name == "" {
		return apperr.Validationf("name is required")
	}
	// A doctor registering a patient links the record to themselves.
	if caller.Role == auth.RoleDoctor && p.DoctorID == nil {
		p.DoctorID = caller.DoctorID
	}
	if caller.Role == auth.RoleDoctor && p.DoctorID != nil {
		if err := scope.AuthorizeDoctor(caller, *p.DoctorID); err != nil {
			return err
		}
	}
	return s.patients.Create(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, caller auth.CallerContext, id uuid.UUID) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	filter, err := s.resolver.Resolve(ctx, caller)
	if err != nil {
		return nil, err
	}
	if filter.All || filter.AllowsPatient(p.ID) {
		return p, nil
	}
	if p.DoctorID != nil && filter.AllowsDoctor(*p.DoctorID) {
		return p, nil
	}
	return nil, apperr.Authorizationf("patient %s is outside caller scope", id)
}

func (s *Service) UpdatePatient(ctx context.Context, caller auth.CallerContext, p *Patient) error {
	if _, err := s.GetPatient(ctx, caller, p.ID); err != nil {
		return err
	}
	return s.patients.Update(ctx, p)
}

func (s *Service) DeletePatient(ctx context.Context, caller auth.CallerContext, id uuid.UUID) error {
	if !caller.IsAdmin() {
		return apperr.Authorizationf("only admin may delete patients")
	}
	return s.patients.Delete(ctx, id)
}

func (s *Service) ListPatients(ctx context.Context, caller auth.CallerContext, limit, offset int) ([]*Patient, int, error) {
	filter, err := s.resolver.Resolve(ctx, caller)
	if err != nil {
		return nil, 0, err
	}
	switch {
	case filter.All:
		return s.patients.List(ctx, limit, offset)
	case filter.PatientID != nil:
		p, err := s.patients.GetByID(ctx, *filter.PatientID)
		if err != nil {
			return nil, 0, err
		}
		return []*Patient{p}, 1, nil
	default:
		return s.patients.ListByDoctors(ctx, filter.DoctorIDs, limit, offset)
	}
}

// -- Doctor --

func (s *Service) CreateDoctor(ctx context.Context, d *Doctor) error {
	if d.Name == "" {
		return apperr.Validationf("name is required")
	}
	return s.doctors.Create(ctx, d)
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.doctors.GetByID(ctx, id)
}

func (s *Service) UpdateDoctor(ctx context.Context, caller auth.CallerContext, d *Doctor) error {
	if err := scope.AuthorizeDoctor(caller, d.ID); err != nil {
		return err
	}
	return s.doctors.Update(ctx, d)
}

func (s *Service) DeleteDoctor(ctx context.Context, caller auth.CallerContext, id uuid.UUID) error {
	if !caller.IsAdmin() {
		return apperr.Authorizationf("only admin may delete doctors")
	}
	return s.doctors.Delete(ctx, id)
}

func (s *Service) ListDoctors(ctx context.Context, limit, offset int) ([]*Doctor, int, error) {
	return s.doctors.List(ctx, limit, offset)
}

// -- Clinic --

func (s *Service) CreateClinic(ctx context.Context, c *Clinic) error {
	if c.Name == "" {
		return apperr.Validationf("name is required")
	}
	return s.clinics.Create(ctx, c)
}

func (s *Service) GetClinic(ctx context.Context, id uuid.UUID) (*Clinic, error) {
	return s.clinics.GetByID(ctx, id)
}

func (s *Service) UpdateClinic(ctx context.Context, caller auth.CallerContext, c *Clinic) error {
	if !caller.IsAdmin() {
		if caller.ClinicID == nil || *caller.ClinicID != c.ID {
			return apperr.Authorizationf("caller may not update clinic %s", c.ID)
		}
	}
	return s.clinics.Update(ctx, c)
}

func (s *Service) DeleteClinic(ctx context.Context, caller auth.CallerContext, id uuid.UUID) error {
	if !caller.IsAdmin() {
		return apperr.Authorizationf("only admin may delete clinics")
	}
	return s.clinics.Delete(ctx, id)
}

func (s *Service) ListClinics(ctx context.Context, limit, offset int) ([]*Clinic, int, error) {
	return s.clinics.List(ctx, limit, offset)
}

// -- Mapping --

func (s *Service) MapDoctor(ctx context.Context, caller auth.CallerContext, doctorID, clinicID uuid.UUID) error {
	if !caller.IsAdmin() {
		if caller.ClinicID == nil || *caller.ClinicID != clinicID {
			return apperr.Authorizationf("caller may not manage clinic %s roster", clinicID)
		}
	}
	// Both sides must exist before linking.
	if _, err := s.doctors.GetByID(ctx, doctorID); err != nil {
		return err
	}
	if _, err := s.clinics.GetByID(ctx, clinicID); err != nil {
		return err
	}
	return s.mapping.Map(ctx, doctorID, clinicID)
}

func (s *Service) UnmapDoctor(ctx context.Context, caller auth.CallerContext, doctorID, clinicID uuid.UUID) error {
	if !caller.IsAdmin() {
		if caller.ClinicID == nil || *caller.ClinicID != clinicID {
			return apperr.Authorizationf("caller may not manage clinic %s roster", clinicID)
		}
	}
	return s.mapping.Unmap(ctx, doctorID, clinicID)
}
