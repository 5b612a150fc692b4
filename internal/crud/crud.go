package crud

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Repository is the persistence contract shared by every admin-managed entity
type Repository[T any] interface {
	Create(ctx context.Context, item *T) error
	List(ctx context.Context) ([]T, error)
	Get(ctx context.Context, id string) (*T, error)
	Update(ctx context.Context, item *T) error
	Delete(ctx context.Context, id string) error
}

// Validator checks, and may normalize, an entity before it is written
type Validator[T any] func(item *T) error

// Service runs the entity validator in front of a Repository
type Service[T any] struct {
	repo     Repository[T]
	validate Validator[T]
}

// NewService creates a CRUD service. A nil validator accepts everything.
func NewService[T any](repo Repository[T], validate Validator[T]) *Service[T] {
	if validate == nil {
		validate = func(*T) error { return nil }
	}
	return &Service[T]{repo: repo, validate: validate}
}

func (s *Service[T]) Create(ctx context.Context, item *T) error {
	if err := s.validate(item); err != nil {
		return err
	}
	if err := s.repo.Create(ctx, item); err != nil {
		return fmt.Errorf("failed to create: %w", err)
	}
	return nil
}

func (s *Service[T]) List(ctx context.Context) ([]T, error) {
	return s.repo.List(ctx)
}

func (s *Service[T]) Get(ctx context.Context, id string) (*T, error) {
	return s.repo.Get(ctx, id)
}

// Update loads the current entity, applies patch to it, validates and saves
func (s *Service[T]) Update(ctx context.Context, id string, patch func(item *T) error) (*T, error) {
	item, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := patch(item); err != nil {
		return nil, err
	}
	if err := s.validate(item); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to update: %w", err)
	}
	return item, nil
}

func (s *Service[T]) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// ValidationError maps form fields to messages
type ValidationError struct {
	Fields map[string]string `json:"fields"`
}

func NewValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string]string)}
}

// Add records the first message for a field
func (e *ValidationError) Add(field, message string) {
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = message
	}
}

// Err returns nil when no field failed
func (e *ValidationError) Err() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
