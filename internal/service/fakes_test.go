package service

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/clinic-service/internal/domain"
	"github.com/spec-kit/clinic-service/internal/repository"
)

type fakeAccounts struct {
	mu     sync.Mutex
	nextID map[domain.Role]int64
	rows   map[domain.Role]map[int64]*domain.Account
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{
		nextID: make(map[domain.Role]int64),
		rows:   make(map[domain.Role]map[int64]*domain.Account),
	}
}

func (f *fakeAccounts) Create(_ context.Context, a *domain.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rows := range f.rows {
		for _, existing := range rows {
			if existing.Email == a.Email {
				return repository.ErrDuplicate
			}
		}
	}
	if f.rows[a.Role] == nil {
		f.rows[a.Role] = make(map[int64]*domain.Account)
	}
	f.nextID[a.Role]++
	a.ID = f.nextID[a.Role]
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	stored := *a
	f.rows[a.Role][a.ID] = &stored
	return nil
}

func (f *fakeAccounts) GetByID(_ context.Context, role domain.Role, id int64) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.rows[role][id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := *a
	return &out, nil
}

func (f *fakeAccounts) GetByEmail(_ context.Context, role domain.Role, email string) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.rows[role] {
		if a.Email == email {
			out := *a
			return &out, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeAccounts) UpdatePassword(_ context.Context, role domain.Role, id int64, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.rows[role][id]
	if !ok {
		return pgx.ErrNoRows
	}
	a.PasswordHash = hash
	return nil
}

func (f *fakeAccounts) SubjectExists(_ context.Context, id domain.Identity) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.rows[id.Role][id.SubjectID]
	return ok, nil
}

type fakeAssignments struct {
	mu        sync.Mutex
	accounts  *fakeAccounts
	byPatient map[int64]int64
}

func newFakeAssignments(accounts *fakeAccounts) *fakeAssignments {
	return &fakeAssignments{accounts: accounts, byPatient: make(map[int64]int64)}
}

func (f *fakeAssignments) Assign(_ context.Context, patientID, doctorID int64) (*domain.Assignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byPatient[patientID]; ok {
		return nil, repository.ErrDuplicate
	}
	f.byPatient[patientID] = doctorID
	return &domain.Assignment{PatientID: patientID, DoctorID: doctorID, AssignedAt: time.Now()}, nil
}

func (f *fakeAssignments) ListPatients(ctx context.Context, doctorID int64) ([]domain.Account, error) {
	f.mu.Lock()
	ids := make([]int64, 0)
	for patient, doctor := range f.byPatient {
		if doctor == doctorID {
			ids = append(ids, patient)
		}
	}
	f.mu.Unlock()

	patients := make([]domain.Account, 0, len(ids))
	for _, id := range ids {
		p, err := f.accounts.GetByID(ctx, domain.RolePatient, id)
		if err != nil {
			return nil, err
		}
		patients = append(patients, *p)
	}
	return patients, nil
}

type sentMail struct {
	to, subject, body string
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *recordingMailer) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: body})
	return m.err
}

func (m *recordingMailer) messages() []sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMail(nil), m.sent...)
}
