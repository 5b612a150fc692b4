package catalog

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/example/storefront/internal/crud"
	"github.com/example/storefront/internal/infrastructure/store"
	"github.com/example/storefront/internal/model"
)

var (
	ErrProductNotFound  = errors.New("product not found")
	ErrCategoryNotFound = errors.New("category not found")
)

// slugRegex validates slug format (lowercase letters, numbers, hyphens)
var slugRegex = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

var (
	slugInvalidChars = regexp.MustCompile(`[^a-z0-9-]`)
	slugDashes       = regexp.MustCompile(`-+`)
)

type Service struct {
	store store.Store

	// Products and Categories back the admin CRUD screens
	Products   *crud.Service[model.Product]
	Categories *crud.Service[model.Category]
}

func NewService(s store.Store) *Service {
	return &Service{
		store:      s,
		Products:   crud.NewService(s.Products(), ValidateProduct),
		Categories: crud.NewService(s.Categories(), ValidateCategory),
	}
}

// ListProducts returns active products, optionally narrowed to one category
func (s *Service) ListProducts(ctx context.Context, categorySlug string) ([]model.Product, error) {
	if categorySlug != "" {
		if _, err := s.store.GetCategoryBySlug(ctx, categorySlug); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, ErrCategoryNotFound
			}
			return nil, fmt.Errorf("failed to get category: %w", err)
		}
	}
	products, err := s.store.ListProducts(ctx, store.ProductFilter{CategorySlug: categorySlug, ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

// GetProduct returns an active product
func (s *Service) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	p, err := s.store.Products().Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	if !p.IsActive {
		return nil, ErrProductNotFound
	}
	return p, nil
}

func (s *Service) ListCategories(ctx context.Context) ([]model.Category, error) {
	return s.Categories.List(ctx)
}

// ToggleFavorite flips the favorite flag and reports the new state
func (s *Service) ToggleFavorite(ctx context.Context, accountID, productID string) (bool, error) {
	if _, err := s.GetProduct(ctx, productID); err != nil {
		return false, err
	}

	fav, err := s.store.IsFavorite(ctx, accountID, productID)
	if err != nil {
		return false, fmt.Errorf("failed to check favorite: %w", err)
	}
	if fav {
		if err := s.store.RemoveFavorite(ctx, accountID, productID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return false, fmt.Errorf("failed to remove favorite: %w", err)
		}
		return false, nil
	}
	if err := s.store.AddFavorite(ctx, accountID, productID); err != nil && !errors.Is(err, store.ErrConflict) {
		return false, fmt.Errorf("failed to add favorite: %w", err)
	}
	return true, nil
}

func (s *Service) ListFavorites(ctx context.Context, accountID string) ([]model.Product, error) {
	products, err := s.store.ListFavorites(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list favorites: %w", err)
	}
	return products, nil
}

// ValidateProduct normalizes and checks a product before it is saved
func ValidateProduct(p *model.Product) error {
	v := crud.NewValidationError()

	p.Name = strings.TrimSpace(p.Name)
	p.Description = strings.TrimSpace(p.Description)
	if p.Kind == "" {
		p.Kind = model.KindProduct
	}

	switch {
	case p.Name == "":
		v.Add("name", "name is required")
	case len(p.Name) > 200:
		v.Add("name", "name is too long")
	}
	if p.CategoryID == "" {
		v.Add("category_id", "category is required")
	}
	if !p.Price.IsPositive() {
		v.Add("price", "price must be positive")
	}
	if p.Kind != model.KindProduct && p.Kind != model.KindService {
		v.Add("kind", "kind must be product or service")
	}
	return v.Err()
}

// ValidateCategory derives a missing slug from the name and checks its format
func ValidateCategory(c *model.Category) error {
	v := crud.NewValidationError()

	c.Name = strings.TrimSpace(c.Name)
	c.Slug = strings.TrimSpace(c.Slug)
	if c.Name == "" {
		v.Add("name", "name is required")
	}
	if c.Slug == "" {
		c.Slug = generateSlug(c.Name)
	}
	if !slugRegex.MatchString(c.Slug) {
		v.Add("slug", "slug may contain lowercase letters, numbers and single hyphens")
	}
	return v.Err()
}

// generateSlug creates a URL-friendly slug from a name
func generateSlug(name string) string {
	slug := strings.ToLower(name)
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.ReplaceAll(slug, "_", "-")
	slug = slugInvalidChars.ReplaceAllString(slug, "")
	slug = slugDashes.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}
