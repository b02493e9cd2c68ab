package patient

import (
	"context"
)

// MaxListed caps the list queries (names, prescription years, export).
const MaxListed = 10000

// Repository persists patient case records. Each method runs a single
// statement.
type Repository interface {
	Insert(ctx context.Context, p *Patient) (int64, error)
	// Update overwrites every column of the row with p.ID. It returns
	// ErrNotFound when no row has that id.
	Update(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id int64) (*Patient, error)
	Names(ctx context.Context, limit int) ([]PatientName, error)
	PrescriptionYears(ctx context.Context, limit int) ([]int64, error)
	NamesByPrescriptionYear(ctx context.Context, year int64) ([]PatientName, error)
	// List returns full records, optionally restricted to one prescription
	// year, in id order.
	List(ctx context.Context, year *int64, limit int) ([]*Patient, error)
}
