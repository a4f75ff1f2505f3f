// Package storage exposes the application's records through typed services.
package storage

import (
	"cmp"
	"context"
	"errors"
	"fmt"

	"github.com/maruel/flatdb/internal/flatdb"
	"github.com/maruel/flatdb/internal/models"
)

// PersonService manages the contacts in the TEST table.
type PersonService struct {
	table *flatdb.Table[models.Person]
}

// NewPersonService binds the service to db, creating the table if needed.
func NewPersonService(ctx context.Context, db *flatdb.DB) (*PersonService, error) {
	table, err := flatdb.NewTable[models.Person](db)
	if err != nil {
		return nil, err
	}
	if err := table.Create(ctx); err != nil && !errors.Is(err, flatdb.ErrAlreadyExists) {
		return nil, err
	}
	return &PersonService{table: table}, nil
}

// GetPerson returns the person with the given ID. The error matches
// flatdb.ErrNotFound when there is none.
func (s *PersonService) GetPerson(ctx context.Context, id int) (*models.Person, error) {
	rows, err := s.table.Query(ctx, func(p *models.Person) bool { return p.ID == id }, nil)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("person %d: %w", id, flatdb.ErrNotFound)
	}
	return rows[0], nil
}

// ListPersons returns every person ordered by ID.
func (s *PersonService) ListPersons(ctx context.Context) ([]*models.Person, error) {
	return s.table.Query(ctx, nil, byID)
}

// ListActive returns the active persons ordered by name.
func (s *PersonService) ListActive(ctx context.Context) ([]*models.Person, error) {
	return s.table.Query(ctx, func(p *models.Person) bool { return p.Active }, func(a, b *models.Person) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
}

// CountPersons returns the number of stored persons.
func (s *PersonService) CountPersons(ctx context.Context) (int, error) {
	rows, err := s.table.All(ctx)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// CreatePerson validates and stores new persons. The error matches
// flatdb.ErrUniqueness if an ID is already taken.
func (s *PersonService) CreatePerson(ctx context.Context, persons ...*models.Person) error {
	for i, p := range persons {
		if p == nil {
			return fmt.Errorf("person %d is nil: %w", i, flatdb.ErrSchema)
		}
		if err := p.Validate(); err != nil {
			return fmt.Errorf("person %d: %w", p.ID, err)
		}
	}
	return s.table.Insert(ctx, persons...)
}

// SavePerson validates p and replaces the stored person with the same ID,
// creating it if absent.
func (s *PersonService) SavePerson(ctx context.Context, p *models.Person) error {
	if p == nil {
		return fmt.Errorf("person is nil: %w", flatdb.ErrSchema)
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("person %d: %w", p.ID, err)
	}
	return s.table.Update(ctx, p)
}

// SetActive flips the active flag of the person with the given ID.
func (s *PersonService) SetActive(ctx context.Context, id int, active bool) error {
	p, err := s.GetPerson(ctx, id)
	if err != nil {
		return err
	}
	p.Active = active
	return s.table.Update(ctx, p)
}

// DeletePerson removes the person with the given ID.
func (s *PersonService) DeletePerson(ctx context.Context, id int) error {
	n, err := s.table.Delete(ctx, func(p *models.Person) bool { return p.ID == id })
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("person %d: %w", id, flatdb.ErrNotFound)
	}
	return nil
}

func byID(a, b *models.Person) int {
	return cmp.Compare(a.ID, b.ID)
}
