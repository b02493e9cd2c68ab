package patient

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/datacollector/datacollector/internal/platform/telemetry"
)

// Service implements the patient operations on top of a Repository. Every
// error it returns is a *DbError.
type Service struct {
	repo    Repository
	metrics *telemetry.Metrics
	tracer  trace.Tracer
}

type Option func(*Service)

// WithMetrics records per-operation counters and latencies.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer(telemetry.TracerName) }
}

// NewService creates a new patient service.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo, tracer: otel.Tracer(telemetry.TracerName)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// start opens a span for op and returns a finisher that records the outcome
// and converts the error into a DbError.
func (s *Service) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error) error) {
	begin := time.Now()
	ctx, span := s.tracer.Start(ctx, "patient."+op, trace.WithAttributes(attrs...))

	return ctx, func(err error) error {
		defer span.End()

		err = wrapDB(err)
		if s.metrics != nil {
			s.metrics.ObserveOperation(op, begin, err)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			zerolog.Ctx(ctx).Error().Err(err).Str("operation", op).Msg("patient operation failed")
		}
		return err
	}
}

// setBMI derives p.BMI. Measurements giving a non-finite BMI are refused.
func setBMI(p *Patient) error {
	bmi := ComputeBMI(p.Weight, p.Height)
	if math.IsInf(bmi, 0) || math.IsNaN(bmi) {
		return fmt.Errorf("%w: weight %g, height %g", ErrBMIOutOfRange, p.Weight, p.Height)
	}
	p.BMI = bmi
	return nil
}

// Save inserts a new record. Any caller-supplied id and bmi are ignored.
func (s *Service) Save(ctx context.Context, p *Patient) error {
	ctx, finish := s.start(ctx, "save")

	if err := setBMI(p); err != nil {
		return finish(err)
	}
	id, err := s.repo.Insert(ctx, p)
	if err != nil {
		return finish(err)
	}
	p.ID = id
	zerolog.Ctx(ctx).Debug().Int64("patient_id", id).Msg("patient saved")
	return finish(nil)
}

// Update overwrites the record with p.ID, recomputing bmi. A missing id fails
// with ErrNotFound.
func (s *Service) Update(ctx context.Context, p *Patient) error {
	ctx, finish := s.start(ctx, "update", attribute.Int64("patient.id", p.ID))

	if err := setBMI(p); err != nil {
		return finish(err)
	}
	return finish(s.repo.Update(ctx, p))
}

func (s *Service) GetPatient(ctx context.Context, id int64) (*Patient, error) {
	ctx, finish := s.start(ctx, "get_patient", attribute.Int64("patient.id", id))

	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, finish(err)
	}
	return p, finish(nil)
}

// Names returns at most MaxListed {id, name} pairs.
func (s *Service) Names(ctx context.Context) ([]PatientName, error) {
	ctx, finish := s.start(ctx, "names")

	names, err := s.repo.Names(ctx, MaxListed)
	if err != nil {
		return nil, finish(err)
	}
	return names, finish(nil)
}

// PrescriptionYears returns at most MaxListed distinct prescription years.
func (s *Service) PrescriptionYears(ctx context.Context) ([]int64, error) {
	ctx, finish := s.start(ctx, "prescription_years")

	years, err := s.repo.PrescriptionYears(ctx, MaxListed)
	if err != nil {
		return nil, finish(err)
	}
	return years, finish(nil)
}

// GetByPrescriptionYear returns every {id, name} pair for year. No match
// yields an empty list.
func (s *Service) GetByPrescriptionYear(ctx context.Context, year int64) ([]PatientName, error) {
	ctx, finish := s.start(ctx, "get_by_prescription_year", attribute.Int64("patient.prescription_year", year))

	names, err := s.repo.NamesByPrescriptionYear(ctx, year)
	if err != nil {
		return nil, finish(err)
	}
	return names, finish(nil)
}
