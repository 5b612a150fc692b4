package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/example/storefront/internal/crud"
	"github.com/example/storefront/internal/model"
)

var (
	ErrNotFound   = errors.New("record not found")
	ErrConflict   = errors.New("record already exists")
	ErrReferenced = errors.New("record is referenced by other records")
)

// CartOwner identifies a cart by account or by anonymous session key
type CartOwner struct {
	AccountID  string
	SessionKey string
}

// CartStore persists carts and their lines
type CartStore interface {
	// EnsureCart returns the owner's cart, creating it when absent
	EnsureCart(ctx context.Context, owner CartOwner) (*model.Cart, error)
	FindCart(ctx context.Context, owner CartOwner) (*model.Cart, error)
	DeleteCart(ctx context.Context, cartID string) error

	// ListCartLines joins each line with its live product
	ListCartLines(ctx context.Context, cartID string) ([]model.CartLine, error)
	GetCartLine(ctx context.Context, cartID, lineID string) (*model.CartLine, error)
	// AddCartLine inserts a line or adds quantity to the existing (cart, product) line
	AddCartLine(ctx context.Context, cartID, productID string, quantity int) (*model.CartLine, error)
	// AdjustCartLine adds delta to the quantity; ErrNotFound when the line is gone
	// or the result would drop below one
	AdjustCartLine(ctx context.Context, cartID, lineID string, delta int) (*model.CartLine, error)
	DeleteCartLine(ctx context.Context, cartID, lineID string) error
	ClearCart(ctx context.Context, cartID string) error
}

// OrderFilter narrows ListOrders; zero values match everything
type OrderFilter struct {
	AccountID string
	Status    model.OrderStatus
	Limit     int
}

type OrderStore interface {
	CreateOrder(ctx context.Context, order *model.Order) error
	GetOrder(ctx context.Context, id string) (*model.Order, error)
	UpdateOrder(ctx context.Context, order *model.Order) error
	DeleteOrder(ctx context.Context, id string) error
	// ListOrders returns newest first
	ListOrders(ctx context.Context, filter OrderFilter) ([]model.Order, error)

	CreateOrderLine(ctx context.Context, line *model.OrderLine) error
	ListOrderLines(ctx context.Context, orderID string) ([]model.OrderLine, error)
}

// PaymentStore holds the payment ledger and open reconciliations
type PaymentStore interface {
	// CreateTransaction returns ErrConflict for a repeated external order id
	CreateTransaction(ctx context.Context, txn *model.Transaction) error
	GetTransactionByExternalID(ctx context.Context, externalOrderID string) (*model.Transaction, error)

	// CreateReconciliation returns ErrConflict for a repeated external order id
	CreateReconciliation(ctx context.Context, rec *model.Reconciliation) error
	ListReconciliations(ctx context.Context, status string) ([]model.Reconciliation, error)
	ResolveReconciliation(ctx context.Context, id string) (*model.Reconciliation, error)
}

// ProductFilter narrows ListProducts; zero values match everything
type ProductFilter struct {
	CategorySlug string
	ActiveOnly   bool
}

type CatalogStore interface {
	Products() crud.Repository[model.Product]
	Categories() crud.Repository[model.Category]

	ListProducts(ctx context.Context, filter ProductFilter) ([]model.Product, error)
	GetCategoryBySlug(ctx context.Context, slug string) (*model.Category, error)

	AddFavorite(ctx context.Context, accountID, productID string) error
	RemoveFavorite(ctx context.Context, accountID, productID string) error
	IsFavorite(ctx context.Context, accountID, productID string) (bool, error)
	ListFavorites(ctx context.Context, accountID string) ([]model.Product, error)
}

type AccountStore interface {
	Accounts() crud.Repository[model.Account]
	GetAccountByEmail(ctx context.Context, email string) (*model.Account, error)

	CreateProfile(ctx context.Context, profile *model.Profile) error
	GetProfile(ctx context.Context, accountID string) (*model.Profile, error)
	UpdateProfile(ctx context.Context, profile *model.Profile) error
}

// DashboardTotals are computed fresh on every call
type DashboardTotals struct {
	PaidRevenue         decimal.Decimal
	Orders              int
	Accounts            int
	Products            int
	OpenReconciliations int
}

type DashboardStore interface {
	DashboardTotals(ctx context.Context) (*DashboardTotals, error)
}

// Store is the full persistence surface of the storefront
type Store interface {
	CartStore
	OrderStore
	PaymentStore
	CatalogStore
	AccountStore
	DashboardStore

	// WithinTx runs fn against a transactional Store. Any error from fn
	// rolls back every write made through tx.
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}
