package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account roles
const (
	RoleCustomer = "customer"
	RoleStaff    = "staff"
	RoleAdmin    = "admin"
)

// Account is a registered storefront identity
type Account struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Role         string    `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// FullName joins first and last name
func (a *Account) FullName() string {
	switch {
	case a.FirstName == "":
		return a.LastName
	case a.LastName == "":
		return a.FirstName
	}
	return a.FirstName + " " + a.LastName
}

// Profile holds the shipping and contact details of an account
type Profile struct {
	AccountID          string     `json:"account_id"`
	Phone              string     `json:"phone"`
	DocumentType       string     `json:"document_type"`
	DocumentNumber     string     `json:"document_number"`
	BirthDate          *time.Time `json:"birth_date,omitempty"`
	Address            string     `json:"address"`
	City               string     `json:"city"`
	Region             string     `json:"region"`
	PostalCode         string     `json:"postal_code"`
	Country            string     `json:"country"`
	Newsletter         bool       `json:"newsletter"`
	EmailNotifications bool       `json:"email_notifications"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Category groups products; Slug is unique
type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

type ProductKind string

const (
	KindProduct ProductKind = "product"
	KindService ProductKind = "service"
)

// Product is a catalog entry. Price is the live price used by carts.
type Product struct {
	ID          string          `json:"id"`
	CategoryID  string          `json:"category_id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Kind        ProductKind     `json:"kind"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    string          `json:"image_url,omitempty"`
	IsActive    bool            `json:"is_active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type Favorite struct {
	AccountID string    `json:"account_id"`
	ProductID string    `json:"product_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Cart is owned by an account or by an anonymous session key, never both
type Cart struct {
	ID         string    `json:"id"`
	AccountID  string    `json:"account_id,omitempty"`
	SessionKey string    `json:"session_key,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CartLine is one product entry of a cart. Product is joined at read time.
type CartLine struct {
	ID        string    `json:"id"`
	CartID    string    `json:"cart_id"`
	ProductID string    `json:"product_id"`
	Quantity  int       `json:"quantity"`
	Product   Product   `json:"product"`
	CreatedAt time.Time `json:"created_at"`
}

// Total uses the live product price
func (l CartLine) Total() decimal.Decimal {
	return l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type OrderStatus string

const (
	OrderPending    OrderStatus = "PENDING"
	OrderProcessing OrderStatus = "PROCESSING"
	OrderShipped    OrderStatus = "SHIPPED"
	OrderDelivered  OrderStatus = "DELIVERED"
	OrderCancelled  OrderStatus = "CANCELLED"
	OrderRefunded   OrderStatus = "REFUNDED"
)

// OrderStatuses lists every known status in lifecycle order
var OrderStatuses = []OrderStatus{
	OrderPending, OrderProcessing, OrderShipped, OrderDelivered, OrderCancelled, OrderRefunded,
}

type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "CASH"
	PaymentCard     PaymentMethod = "CARD"
	PaymentTransfer PaymentMethod = "TRANSFER"
	PaymentPayPal   PaymentMethod = "PAYPAL"
	PaymentPSE      PaymentMethod = "PSE"
)

var PaymentMethods = []PaymentMethod{
	PaymentCash, PaymentCard, PaymentTransfer, PaymentPayPal, PaymentPSE,
}

// Shipping is the delivery and contact data copied onto an order
type Shipping struct {
	Name       string `json:"shipping_name"`
	Email      string `json:"shipping_email"`
	Phone      string `json:"shipping_phone"`
	Address    string `json:"shipping_address"`
	City       string `json:"shipping_city"`
	Region     string `json:"shipping_region"`
	PostalCode string `json:"shipping_postal_code"`
}

type Order struct {
	ID            string          `json:"id"`
	AccountID     string          `json:"account_id"`
	Shipping      Shipping        `json:"shipping"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	PaymentStatus bool            `json:"payment_status"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Status        OrderStatus     `json:"status"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Tax           decimal.Decimal `json:"tax"`
	ShippingCost  decimal.Decimal `json:"shipping_cost"`
	Discount      decimal.Decimal `json:"discount"`
	Total         decimal.Decimal `json:"total"`
	Notes         string          `json:"notes"`
	AdminNotes    string          `json:"admin_notes,omitempty"`
	Lines         []OrderLine     `json:"lines,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// OrderLine freezes the unit price at purchase time
type OrderLine struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"order_id"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
}

func (l OrderLine) Total() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type TransactionStatus string

const (
	TransactionCompleted TransactionStatus = "COMPLETED"
	TransactionPending   TransactionStatus = "PENDING"
	TransactionFailed    TransactionStatus = "FAILED"
)

// Transaction is a payment ledger row, unique per external order id
type Transaction struct {
	ID              string            `json:"id"`
	ExternalOrderID string            `json:"external_order_id"`
	OrderID         string            `json:"order_id"`
	Amount          decimal.Decimal   `json:"amount"`
	Currency        string            `json:"currency"`
	Status          TransactionStatus `json:"status"`
	CreatedAt       time.Time         `json:"created_at"`
}

const (
	ReconciliationOpen     = "open"
	ReconciliationResolved = "resolved"
)

// Reconciliation records a gateway capture that has no local order
type Reconciliation struct {
	ID              string          `json:"id"`
	ExternalOrderID string          `json:"external_order_id"`
	AccountID       string          `json:"account_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Reason          string          `json:"reason"`
	Status          string          `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	ResolvedAt      *time.Time      `json:"resolved_at,omitempty"`
}

// DashboardStats is the admin landing page aggregate
type DashboardStats struct {
	TotalRevenue        decimal.Decimal `json:"total_revenue"`
	TotalOrders         int             `json:"total_orders"`
	TotalUsers          int             `json:"total_users"`
	TotalProducts       int             `json:"total_products"`
	RecentOrders        []Order         `json:"recent_orders"`
	OpenReconciliations int             `json:"open_reconciliations"`
}
