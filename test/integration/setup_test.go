package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/clinicore/internal/domain/billing"
	"github.com/clinicore/clinicore/internal/domain/directory"
	"github.com/clinicore/clinicore/internal/domain/prescription"
	"github.com/clinicore/clinicore/internal/domain/scheduling"
	"github.com/clinicore/clinicore/internal/domain/scope"
	"github.com/clinicore/clinicore/internal/platform/auth"
	"github.com/clinicore/clinicore/internal/platform/db"
)

// testDB holds the shared database infrastructure for integration tests.
type testDB struct {
	Pool    *pgxpool.Pool
	ConnStr string
}

// globalDB is the package-level test database, initialized once in TestMain.
var globalDB *testDB

func TestMain(m *testing.M) {
	ctx := context.Background()

	connStr, cleanup, err := startPostgresContainer(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to setup postgres container: %v\n", err)
		os.Exit(1)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		cleanup()
		fmt.Fprintf(os.Stderr, "failed to create pool: %v\n", err)
		os.Exit(1)
	}

	migrator := db.NewMigrator(pool, findMigrationsDir())
	if _, err := migrator.Up(ctx); err != nil {
		pool.Close()
		cleanup()
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		os.Exit(1)
	}

	globalDB = &testDB{Pool: pool, ConnStr: connStr}
	code := m.Run()
	pool.Close()
	cleanup()
	os.Exit(code)
}

// findMigrationsDir locates the migrations directory relative to this test file.
func findMigrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	dir := filepath.Dir(filename)
	// test/integration -> repo root
	return filepath.Join(dir, "..", "..", "migrations")
}

// services bundles the wired domain services for one test.
type services struct {
	Directory    *directory.Service
	Scheduling   *scheduling.Service
	Billing      *billing.Service
	Prescription *prescription.Service
}

func newServices() services {
	pool := globalDB.Pool
	mappingRepo := directory.NewMappingRepoPG(pool)
	resolver := scope.NewResolver(mappingRepo)
	txRunner := db.NewTxRunner(pool)

	schedulingSvc := scheduling.NewService(scheduling.NewAppointmentRepoPG(pool), resolver)
	return services{
		Directory: directory.NewService(
			directory.NewPatientRepoPG(pool),
			directory.NewDoctorRepoPG(pool),
			directory.NewClinicRepoPG(pool),
			mappingRepo,
			resolver,
		),
		Scheduling:   schedulingSvc,
		Billing:      billing.NewService(billing.NewInvoiceRepoPG(pool), resolver, txRunner),
		Prescription: prescription.NewService(prescription.NewPrescriptionRepoPG(pool), schedulingSvc, resolver, txRunner),
	}
}

func admin() auth.CallerContext {
	return auth.CallerContext{UserID: "admin", Role: auth.RoleAdmin}
}

// seedPatientDoctor inserts one patient and one doctor for a test to book
// against.
func seedPatientDoctor(t *testing.T, ctx context.Context) (patientID, doctorID uuid.UUID) {
	t.Helper()
	pool := globalDB.Pool

	patientID = uuid.New()
	if _, err := pool.Exec(ctx, `INSERT INTO patients (id, name) VALUES ($1, $2)`,
		patientID, "Test Patient"); err != nil {
		t.Fatalf("seed patient: %v", err)
	}
	doctorID = uuid.New()
	if _, err := pool.Exec(ctx, `INSERT INTO doctors (id, name, verified) VALUES ($1, $2, TRUE)`,
		doctorID, "Dr Test"); err != nil {
		t.Fatalf("seed doctor: %v", err)
	}
	return patientID, doctorID
}
