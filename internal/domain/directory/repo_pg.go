package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/clinicore/internal/platform/apperr"
	"github.com/clinicore/clinicore/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// =========== Patient Repository ===========

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository { return &patientRepoPG{pool: pool} }

func (r *patientRepoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const patientCols = `id, name, email, phone, gender, birth_date, address, doctor_id, account_id, created_at, updated_at`

func (r *patientRepoPG) scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.Phone, &p.Gender, &p.BirthDate,
		&p.Address, &p.DoctorID, &p.AccountID, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patients (id, name, email, phone, gender, birth_date, address, doctor_id, account_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		p.ID, p.Name, p.Email, p.Phone, p.Gender, p.BirthDate, p.Address, p.DoctorID, p.AccountID)
	if err != nil {
		return apperr.Wrap(apperr.Persistence, "insert patient", err)
	}
	return nil
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := r.scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("patient %s not found", id)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, "get patient", err)
	}
	return p, nil
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients SET name=$2, email=$3, phone=$4, gender=$5, birth_date=$6,
			address=$7, doctor_id=$8, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.Name, p.Email, p.Phone, p.Gender, p.BirthDate, p.Address, p.DoctorID)
	if err != nil {
		return apperr.Wrap(apperr.Persistence, "update patient", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("patient %s not found", p.ID)
	}
	return nil
}

func (r *patientRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return apperr.Wrap(apperr.Persistence, "delete patient", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("patient %s not found", id)
	}
	return nil
}

func (r *patientRepoPG) ListByDoctors(ctx context.Context, doctorIDs []uuid.UUID, limit, offset int) ([]*Patient, int, error) {
	if len(doctorIDs) == 0 {
		return nil, 0, nil
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients WHERE doctor_id = ANY($1)`, doctorIDs).Scan(&total); err != nil {
		return nil, 0, apperr.Wrap(apperr.Persistence, "count patients", err)
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientCols+` FROM patients WHERE doctor_id = ANY($1) ORDER BY created_at DESC LIMIT $2 OFFSET $3`, doctorIDs, limit, offset)
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.Persistence, "list patients", err)
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := r.scanPatient(rows)
		if err != nil {
			return nil, 0, apperr.Wrap(apperr.Persistence, "scan patient", err)
		}
		items = append(items, p)
	}
	return items, total, nil
}

func (r *patientRepoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients`).Scan(&total); err != nil {
		return nil, 0, apperr.Wrap(apperr.Persistence, "count patients", err)
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientCols+` FROM patients ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.Persistence, "list patients", err)
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := r.scanPatient(rows)
		if err != nil {
			return nil, 0, apperr.Wrap(apperr.Persistence, "scan patient", err)
		}
		items = append(items, p)
	}
	return items, total, nil
}

// =========== Doctor Repository ===========

type doctorRepoPG struct{ pool *pgxpool.Pool }

func NewDoctorRepoPG(pool *pgxpool.Pool) DoctorRepository { return &doctorRepoPG{pool: pool} }

func (r *doctorRepoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const doctorCols = `id, name, email, phone, specialty, qualifications, consult_fee, verified, created_at, updated_at`

func (r *doctorRepoPG) scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.Name, &d.Email, &d.Phone, &d.Specialty,
		&d.Qualifications, &d.ConsultFee, &d.Verified, &d.CreatedAt, &d.UpdatedAt)
	return &d, err
}

func (r *doctorRepoPG) Create(ctx context.Context, d *Doctor) error {
	d.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO doctors (id, name, email, phone, specialty, qualifications, consult_fee, verified)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		d.ID, d.Name, d.Email, d.Phone, d.Specialty, d.Qualifications, d.ConsultFee, d.Verified)
	if err != nil {
		return apperr.Wrap(apperr.Persistence, "insert doctor", err)
	}
	return nil
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, err := r.scanDoctor(r.conn(ctx).QueryRow(ctx, `SELECT `+doctorCols+` FROM doctors WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("doctor %s not found", id)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, "get doctor", err)
	}
	return d, nil
}

func (r *doctorRepoPG) Update(ctx context.Context, d *Doctor) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE doctors SET name=$2, email=$3, phone=$4, specialty=$5, qualifications=$6,
			consult_fee=$7, verified=$8, updated_at=NOW()
		WHERE id = $1`,
		d.ID, d.Name, d.Email, d.Phone, d.Specialty, d.Qualifications, d.ConsultFee, d.Verified)
	if err != nil {
		return apperr.Wrap(apperr.Persistence, "update doctor", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("doctor %s not found", d.ID)
	}
	return nil
}

func (r *doctorRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM doctors WHERE id = $1`, id)
	if err != nil {
		return apperr.Wrap(apperr.Persistence, "delete doctor", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("doctor %s not found", id)
	}
	return nil
}

func (r *doctorRepoPG) List(ctx context.Context, limit, offset int) ([]*Doctor, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM doctors`).Scan(&total); err != nil {
		return nil, 0, apperr.Wrap(apperr.Persistence, "count doctors", err)
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+doctorCols+` FROM doctors ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.Persistence, "list doctors", err)
	}
	defer rows.Close()
	var items []*Doctor
	for rows.Next() {
		d, err := r.scanDoctor(rows)
		if err != nil {
			return nil, 0, apperr.Wrap(apperr.Persistence, "scan doctor", err)
		}
		items = append(items, d)
	}
	return items, total, nil
}

// =========== Clinic Repository ===========

type clinicRepoPG struct{ pool *pgxpool.Pool }

func NewClinicRepoPG(pool *pgxpool.Pool) ClinicRepository { return &clinicRepoPG{pool: pool} }

func (r *clinicRepoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const clinicCols = `id, name, email, phone, address, verified, created_at, updated_at`

func (r *clinicRepoPG) scanClinic(row pgx.Row) (*Clinic, error) {
	var c Clinic
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.Verified, &c.CreatedAt, &c.UpdatedAt)
	return &c, err
}

func (r *clinicRepoPG) Create(ctx context.Context, c *Clinic) error {
	c.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO clinics (id, name, email, phone, address, verified)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		c.ID, c.Name, c.Email, c.Phone, c.Address, c.Verified)
	if err != nil {
		return apperr.Wrap(apperr.Persistence, "insert clinic", err)
	}
	return nil
}

func (r *clinicRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Clinic, error) {
	c, err := r.scanClinic(r.conn(ctx).QueryRow(ctx, `SELECT `+clinicCols+` FROM clinics WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("clinic %s not found", id)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, "get clinic", err)
	}
	return c, nil
}

func (r *clinicRepoPG) Update(ctx context.Context, c *Clinic) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE clinics SET name=$2, email=$3, phone=$4, address=$5, verified=$6, updated_at=NOW()
		WHERE id = $1`,
		c.ID, c.Name, c.Email, c.Phone, c.Address, c.Verified)
	if err != nil {
		return apperr.Wrap(apperr.Persistence, "update clinic", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("clinic %s not found", c.ID)
	}
	return nil
}

func (r *clinicRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM clinics WHERE id = $1`, id)
	if err != nil {
		return apperr.Wrap(apperr.Persistence, "delete clinic", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("clinic %s not found", id)
	}
	return nil
}

func (r *clinicRepoPG) List(ctx context.Context, limit, offset int) ([]*Clinic, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM clinics`).Scan(&total); err != nil {
		return nil, 0, apperr.Wrap(apperr.Persistence, "count clinics", err)
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+clinicCols+` FROM clinics ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.Persistence, "list clinics", err)
	}
	defer rows.Close()
	var items []*Clinic
	for rows.Next() {
		c, err := r.scanClinic(rows)
		if err != nil {
			return nil, 0, apperr.Wrap(apperr.Persistence, "scan clinic", err)
		}
		items = append(items, c)
	}
	return items, total, nil
}

// =========== Mapping Repository ===========

type mappingRepoPG struct{ pool *pgxpool.Pool }

func NewMappingRepoPG(pool *pgxpool.Pool) MappingRepository { return &mappingRepoPG{pool: pool} }

func (r *mappingRepoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *mappingRepoPG) Map(ctx context.Context, doctorID, clinicID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO doctor_clinic_mapping (id, doctor_id, clinic_id)
		VALUES ($1,$2,$3)
		ON CONFLICT (doctor_id, clinic_id) DO NOTHING`,
		uuid.New(), doctorID, clinicID)
	if err != nil {
		return apperr.Wrap(apperr.Persistence, "map doctor to clinic", err)
	}
	return nil
}

func (r *mappingRepoPG) Unmap(ctx context.Context, doctorID, clinicID uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM doctor_clinic_mapping WHERE doctor_id = $1 AND clinic_id = $2`,
		doctorID, clinicID)
	if err != nil {
		return apperr.Wrap(apperr.Persistence, "unmap doctor from clinic", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("doctor %s is not mapped to clinic %s", doctorID, clinicID)
	}
	return nil
}

func (r *mappingRepoPG) DoctorIDsForClinic(ctx context.Context, clinicID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT doctor_id FROM doctor_clinic_mapping WHERE clinic_id = $1`, clinicID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, "query clinic doctors", err)
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Wrap(apperr.Persistence, "scan doctor id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *mappingRepoPG) ClinicIDsForDoctor(ctx context.Context, doctorID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT clinic_id FROM doctor_clinic_mapping WHERE doctor_id = $1`, doctorID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, "query doctor clinics", err)
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Wrap(apperr.Persistence, "scan clinic id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
