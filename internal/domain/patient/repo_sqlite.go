package patient

import (
	"context"
	"database/sql"
)

type sqlQueryable interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type repoSQLite struct{ db sqlQueryable }

// NewRepoSQLite returns a Repository over a database/sql handle to SQLite.
func NewRepoSQLite(db sqlQueryable) Repository {
	return &repoSQLite{db: db}
}

const patientCols = `id, prescription_year, treatment_duration, prescription_service,
	prescription_count, treatment_type, diagnostic, name, age, sex, weight, height,
	cranial_perimeter, had_evaluation_nutri_state, weight_z_score, height_z_score,
	cranial_perimeter_z_score, bmi`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPatient(row rowScanner) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.PrescriptionYear, &p.TreatmentDuration, &p.PrescriptionService,
		&p.PrescriptionCount, &p.TreatmentType, &p.Diagnostic, &p.Name, &p.Age, &p.Sex,
		&p.Weight, &p.Height, &p.CranialPerimeter, &p.HadEvaluationNutriState,
		&p.WeightZScore, &p.HeightZScore, &p.CranialPerimeterZScore, &p.BMI)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repoSQLite) Insert(ctx context.Context, p *Patient) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO patient (prescription_year, treatment_duration, prescription_service,
			prescription_count, treatment_type, diagnostic, name, age, sex, weight, height,
			cranial_perimeter, had_evaluation_nutri_state, weight_z_score, height_z_score,
			cranial_perimeter_z_score, bmi)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.PrescriptionYear, p.TreatmentDuration, string(p.PrescriptionService),
		p.PrescriptionCount, p.TreatmentType, p.Diagnostic, p.Name, p.Age, string(p.Sex), p.Weight, p.Height,
		p.CranialPerimeter, p.HadEvaluationNutriState, p.WeightZScore, p.HeightZScore,
		p.CranialPerimeterZScore, p.BMI)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *repoSQLite) Update(ctx context.Context, p *Patient) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE patient SET prescription_year = ?, treatment_duration = ?, prescription_service = ?,
			prescription_count = ?, treatment_type = ?, diagnostic = ?, name = ?, age = ?, sex = ?,
			weight = ?, height = ?, cranial_perimeter = ?, had_evaluation_nutri_state = ?,
			weight_z_score = ?, height_z_score = ?, cranial_perimeter_z_score = ?, bmi = ?
		WHERE id = ?`,
		p.PrescriptionYear, p.TreatmentDuration, string(p.PrescriptionService),
		p.PrescriptionCount, p.TreatmentType, p.Diagnostic, p.Name, p.Age, string(p.Sex),
		p.Weight, p.Height, p.CranialPerimeter, p.HadEvaluationNutriState,
		p.WeightZScore, p.HeightZScore, p.CranialPerimeterZScore, p.BMI,
		p.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoSQLite) GetByID(ctx context.Context, id int64) (*Patient, error) {
	return scanPatient(r.db.QueryRowContext(ctx, `SELECT `+patientCols+` FROM patient WHERE id = ?`, id))
}

func (r *repoSQLite) Names(ctx context.Context, limit int) ([]PatientName, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM patient LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return collectNames(rows)
}

func (r *repoSQLite) PrescriptionYears(ctx context.Context, limit int) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT prescription_year FROM patient LIMIT ?`, limit)
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

func (r *repoSQLite) NamesByPrescriptionYear(ctx context.Context, year int64) ([]PatientName, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM patient WHERE prescription_year = ?`, year)
	if err != nil {
		return nil, err
	}
	return collectNames(rows)
}

func (r *repoSQLite) List(ctx context.Context, year *int64, limit int) ([]*Patient, error) {
	query := `SELECT ` + patientCols + ` FROM patient`
	args := []interface{}{}
	if year != nil {
		query += ` WHERE prescription_year = ?`
		args = append(args, *year)
	}
	query += ` ORDER BY id LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []*Patient{}
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func collectNames(rows *sql.Rows) ([]PatientName, error) {
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
