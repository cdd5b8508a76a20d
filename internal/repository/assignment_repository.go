package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/clinic-service/internal/domain"
)

// AssignmentRepository links patients to doctors.
type AssignmentRepository interface {
	Assign(ctx context.Context, patientID, doctorID int64) (*domain.Assignment, error)
	ListPatients(ctx context.Context, doctorID int64) ([]domain.Account, error)
}

type assignmentRepository struct {
	pool *pgxpool.Pool
}

// NewAssignmentRepository returns a Postgres-backed implementation.
func NewAssignmentRepository(pool *pgxpool.Pool) AssignmentRepository {
	return &assignmentRepository{pool: pool}
}

// Assign returns ErrDuplicate when the patient already has a doctor.
func (r *assignmentRepository) Assign(ctx context.Context, patientID, doctorID int64) (*domain.Assignment, error) {
	const query = `
        INSERT INTO doctor_assignments (patient_id, doctor_id)
        VALUES ($1, $2)
        RETURNING patient_id, doctor_id, assigned_at`

	var a domain.Assignment
	if err := r.pool.QueryRow(ctx, query, patientID, doctorID).Scan(&a.PatientID, &a.DoctorID, &a.AssignedAt); err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

func (r *assignmentRepository) ListPatients(ctx context.Context, doctorID int64) ([]domain.Account, error) {
	const query = `
        SELECT p.id, p.name, p.email, p.created_at, p.updated_at
        FROM doctor_assignments a
        JOIN patients p ON p.id = a.patient_id
        WHERE a.doctor_id=$1
        ORDER BY a.assigned_at`

	rows, err := r.pool.Query(ctx, query, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	patients := make([]domain.Account, 0)
	for rows.Next() {
		p := domain.Account{Role: domain.RolePatient}
		if err := rows.Scan(&p.ID, &p.Name, &p.Email, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		patients = append(patients, p)
	}
	return patients, rows.Err()
}
