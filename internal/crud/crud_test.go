package crud

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	ID   string
	Name string
}

var errMissing = errors.New("missing")

type memoryRepo struct {
	items       map[string]widget
	createCalls int
	updateCalls int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{items: make(map[string]widget)}
}

func (r *memoryRepo) Create(_ context.Context, item *widget) error {
	r.createCalls++
	r.items[item.ID] = *item
	return nil
}

func (r *memoryRepo) List(_ context.Context) ([]widget, error) {
	out := make([]widget, 0, len(r.items))
	for _, w := range r.items {
		out = append(out, w)
	}
	return out, nil
}

func (r *memoryRepo) Get(_ context.Context, id string) (*widget, error) {
	w, ok := r.items[id]
	if !ok {
		return nil, errMissing
	}
	return &w, nil
}

func (r *memoryRepo) Update(_ context.Context, item *widget) error {
	r.updateCalls++
	r.items[item.ID] = *item
	return nil
}

func (r *memoryRepo) Delete(_ context.Context, id string) error {
	if _, ok := r.items[id]; !ok {
		return errMissing
	}
	delete(r.items, id)
	return nil
}

func validateWidget(w *widget) error {
	verr := NewValidationError()
	w.Name = strings.TrimSpace(w.Name)
	if w.Name == "" {
		verr.Add("name", "required")
	}
	return verr.Err()
}

// ============================================
// Service Tests
// ============================================

func TestService_Create_RunsValidator(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService[widget](repo, validateWidget)

	err := svc.Create(context.Background(), &widget{ID: "w1", Name: "  "})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "required", verr.Fields["name"])
	assert.Zero(t, repo.createCalls)
}

func TestService_Create_Normalizes(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService[widget](repo, validateWidget)

	require.NoError(t, svc.Create(context.Background(), &widget{ID: "w1", Name: " gear "}))

	assert.Equal(t, "gear", repo.items["w1"].Name)
}

func TestService_Update_PatchesAndValidates(t *testing.T) {
	repo := newMemoryRepo()
	repo.items["w1"] = widget{ID: "w1", Name: "gear"}
	svc := NewService[widget](repo, validateWidget)

	updated, err := svc.Update(context.Background(), "w1", func(w *widget) error {
		w.Name = "sprocket"
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, "sprocket", updated.Name)
	assert.Equal(t, "sprocket", repo.items["w1"].Name)
}

func TestService_Update_InvalidPatchNotSaved(t *testing.T) {
	repo := newMemoryRepo()
	repo.items["w1"] = widget{ID: "w1", Name: "gear"}
	svc := NewService[widget](repo, validateWidget)

	_, err := svc.Update(context.Background(), "w1", func(w *widget) error {
		w.Name = ""
		return nil
	})

	require.Error(t, err)
	assert.Zero(t, repo.updateCalls)
	assert.Equal(t, "gear", repo.items["w1"].Name)
}

func TestService_Update_NotFound(t *testing.T) {
	svc := NewService[widget](newMemoryRepo(), nil)

	_, err := svc.Update(context.Background(), "nope", func(*widget) error { return nil })

	assert.ErrorIs(t, err, errMissing)
}

func TestService_NilValidatorAcceptsAll(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService[widget](repo, nil)

	require.NoError(t, svc.Create(context.Background(), &widget{ID: "w1"}))
	items, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, 1)

	require.NoError(t, svc.Delete(context.Background(), "w1"))
	assert.Empty(t, repo.items)
}

// ============================================
// ValidationError Tests
// ============================================

func TestValidationError_KeepsFirstMessage(t *testing.T) {
	verr := NewValidationError()
	verr.Add("email", "required")
	verr.Add("email", "invalid")

	assert.Equal(t, "required", verr.Fields["email"])
}

func TestValidationError_ErrNilWhenEmpty(t *testing.T) {
	assert.NoError(t, NewValidationError().Err())
}

func TestValidationError_MessageSortedByField(t *testing.T) {
	verr := NewValidationError()
	verr.Add("phone", "required")
	verr.Add("city", "required")

	assert.Equal(t, "validation failed: city: required; phone: required", verr.Error())
}
