package patient

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool queryable }

// NewRepoPG returns a Repository over a pgx pool (or transaction).
func NewRepoPG(pool queryable) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) Insert(ctx context.Context, p *Patient) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO patient (prescription_year, treatment_duration, prescription_service,
			prescription_count, treatment_type, diagnostic, name, age, sex, weight, height,
			cranial_perimeter, had_evaluation_nutri_state, weight_z_score, height_z_score,
			cranial_perimeter_z_score, bmi)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		RETURNING id`,
		p.PrescriptionYear, p.TreatmentDuration, string(p.PrescriptionService),
		p.PrescriptionCount, p.TreatmentType, p.Diagnostic, p.Name, p.Age, string(p.Sex), p.Weight, p.Height,
		p.CranialPerimeter, p.HadEvaluationNutriState, p.WeightZScore, p.HeightZScore,
		p.CranialPerimeterZScore, p.BMI).Scan(&id)
	return id, err
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE patient SET prescription_year=$2, treatment_duration=$3, prescription_service=$4,
			prescription_count=$5, treatment_type=$6, diagnostic=$7, name=$8, age=$9, sex=$10,
			weight=$11, height=$12, cranial_perimeter=$13, had_evaluation_nutri_state=$14,
			weight_z_score=$15, height_z_score=$16, cranial_perimeter_z_score=$17, bmi=$18
		WHERE id = $1`,
		p.ID, p.PrescriptionYear, p.TreatmentDuration, string(p.PrescriptionService),
		p.PrescriptionCount, p.TreatmentType, p.Diagnostic, p.Name, p.Age, string(p.Sex),
		p.Weight, p.Height, p.CranialPerimeter, p.HadEvaluationNutriState,
		p.WeightZScore, p.HeightZScore, p.CranialPerimeterZScore, p.BMI)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id int64) (*Patient, error) {
	return scanPatientPG(r.pool.QueryRow(ctx, `SELECT `+patientColsPG+` FROM patient WHERE id = $1`, id))
}

func (r *repoPG) Names(ctx context.Context, limit int) ([]PatientName, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name FROM patient LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return collectNamesPG(rows)
}

func (r *repoPG) PrescriptionYears(ctx context.Context, limit int) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT prescription_year FROM patient LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	years := []int64{}
	for rows.Next() {
		var y int64
		if err := rows.Scan(&y); err != nil {
			return nil, err
		}
		years = append(years, y)
	}
	return years, rows.Err()
}

func (r *repoPG) NamesByPrescriptionYear(ctx context.Context, year int64) ([]PatientName, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name FROM patient WHERE prescription_year = $1`, year)
	if err != nil {
		return nil, err
	}
	return collectNamesPG(rows)
}

func (r *repoPG) List(ctx context.Context, year *int64, limit int) ([]*Patient, error) {
	query := `SELECT ` + patientColsPG + ` FROM patient`
	args := []interface{}{}
	if year != nil {
		query += ` WHERE prescription_year = $1 ORDER BY id LIMIT $2`
		args = append(args, *year, limit)
	} else {
		query += ` ORDER BY id LIMIT $1`
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []*Patient{}
	for rows.Next() {
		p, err := scanPatientPG(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

// patientColsPG reads the JSONB columns as text so they scan through the
// same decoders as SQLite.
const patientColsPG = `id, prescription_year, treatment_duration, prescription_service,
	prescription_count, treatment_type::text, diagnostic::text, name, age, sex, weight, height,
	cranial_perimeter, had_evaluation_nutri_state, weight_z_score, height_z_score,
	cranial_perimeter_z_score, bmi`

func scanPatientPG(row pgx.Row) (*Patient, error) {
	var (
		p                  Patient
		service, sex       string
		treatment, diagTxt string
	)
	err := row.Scan(&p.ID, &p.PrescriptionYear, &p.TreatmentDuration, &service,
		&p.PrescriptionCount, &treatment, &diagTxt, &p.Name, &p.Age, &sex,
		&p.Weight, &p.Height, &p.CranialPerimeter, &p.HadEvaluationNutriState,
		&p.WeightZScore, &p.HeightZScore, &p.CranialPerimeterZScore, &p.BMI)
	if err != nil {
		return nil, err
	}
	p.PrescriptionService = PrescriptionService(service)
	p.Sex = Sex(sex)
	if err := p.TreatmentType.UnmarshalJSON([]byte(treatment)); err != nil {
		return nil, err
	}
	if err := p.Diagnostic.UnmarshalJSON([]byte(diagTxt)); err != nil {
		return nil, err
	}
	return &p, nil
}

func collectNamesPG(rows pgx.Rows) ([]PatientName, error) {
	defer rows.Close()

	names := []PatientName{}
	for rows.Next() {
		var n PatientName
		if err := rows.Scan(&n.ID, &n.Name); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}
