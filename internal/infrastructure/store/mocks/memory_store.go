package mocks

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/example/storefront/internal/crud"
	"github.com/example/storefront/internal/infrastructure/store"
	"github.com/example/storefront/internal/model"
)

// state is the full in-memory dataset; it is cloned to emulate rollback
type state struct {
	accounts        map[string]model.Account
	profiles        map[string]model.Profile
	categories      map[string]model.Category
	products        map[string]model.Product
	favorites       map[string]model.Favorite
	carts           map[string]model.Cart
	cartLines       map[string]model.CartLine
	orders          map[string]model.Order
	orderLines      map[string]model.OrderLine
	transactions    map[string]model.Transaction
	reconciliations map[string]model.Reconciliation
	seq             map[string]int64
	next            int64
}

func newState() *state {
	return &state{
		accounts:        make(map[string]model.Account),
		profiles:        make(map[string]model.Profile),
		categories:      make(map[string]model.Category),
		products:        make(map[string]model.Product),
		favorites:       make(map[string]model.Favorite),
		carts:           make(map[string]model.Cart),
		cartLines:       make(map[string]model.CartLine),
		orders:          make(map[string]model.Order),
		orderLines:      make(map[string]model.OrderLine),
		transactions:    make(map[string]model.Transaction),
		reconciliations: make(map[string]model.Reconciliation),
		seq:             make(map[string]int64),
	}
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (s *state) clone() *state {
	return &state{
		accounts:        cloneMap(s.accounts),
		profiles:        cloneMap(s.profiles),
		categories:      cloneMap(s.categories),
		products:        cloneMap(s.products),
		favorites:       cloneMap(s.favorites),
		carts:           cloneMap(s.carts),
		cartLines:       cloneMap(s.cartLines),
		orders:          cloneMap(s.orders),
		orderLines:      cloneMap(s.orderLines),
		transactions:    cloneMap(s.transactions),
		reconciliations: cloneMap(s.reconciliations),
		seq:             cloneMap(s.seq),
		next:            s.next,
	}
}

// track assigns an insertion sequence used for stable ordering
func (s *state) track(id string) {
	s.next++
	s.seq[id] = s.next
}

type shared struct {
	mu       sync.Mutex
	txMu     sync.Mutex
	st       *state
	calls    []string
	failures map[string]error
}

// MemoryStore is an in-memory store.Store for testing. Writes made inside
// WithinTx are rolled back when the callback fails.
type MemoryStore struct {
	sh   *shared
	inTx bool
}

var _ store.Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sh: &shared{st: newState(), failures: make(map[string]error)}}
}

// FailOn makes the named method return err until cleared with a nil err.
// "Commit" fails a WithinTx after its callback succeeded.
func (m *MemoryStore) FailOn(method string, err error) {
	m.sh.mu.Lock()
	defer m.sh.mu.Unlock()
	if err == nil {
		delete(m.sh.failures, method)
		return
	}
	m.sh.failures[method] = err
}

// CallCount returns how many times the named method was invoked
func (m *MemoryStore) CallCount(method string) int {
	m.sh.mu.Lock()
	defer m.sh.mu.Unlock()
	n := 0
	for _, c := range m.sh.calls {
		if c == method {
			n++
		}
	}
	return n
}

// begin records the call, locks state and returns any injected failure
func (m *MemoryStore) begin(method string) (*state, func(), error) {
	m.sh.mu.Lock()
	m.sh.calls = append(m.sh.calls, method)
	if err := m.sh.failures[method]; err != nil {
		m.sh.mu.Unlock()
		return nil, func() {}, err
	}
	return m.sh.st, m.sh.mu.Unlock, nil
}

func (m *MemoryStore) WithinTx(ctx context.Context, fn func(tx store.Store) error) error {
	if m.inTx {
		return fn(m)
	}

	m.sh.txMu.Lock()
	defer m.sh.txMu.Unlock()

	m.sh.mu.Lock()
	m.sh.calls = append(m.sh.calls, "WithinTx")
	snapshot := m.sh.st.clone()
	m.sh.mu.Unlock()

	err := fn(&MemoryStore{sh: m.sh, inTx: true})
	if err == nil {
		m.sh.mu.Lock()
		if commitErr := m.sh.failures["Commit"]; commitErr != nil {
			err = fmt.Errorf("failed to commit transaction: %w", commitErr)
		}
		m.sh.mu.Unlock()
	}
	if err != nil {
		m.sh.mu.Lock()
		m.sh.st = snapshot
		m.sh.mu.Unlock()
		return err
	}
	return nil
}

// ============================================
// Seeding helpers
// ============================================

func (m *MemoryStore) SeedAccount(a model.Account) model.Account {
	m.sh.mu.Lock()
	defer m.sh.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Role == "" {
		a.Role = model.RoleCustomer
	}
	m.sh.st.accounts[a.ID] = a
	m.sh.st.track(a.ID)
	return a
}

func (m *MemoryStore) SeedCategory(c model.Category) model.Category {
	m.sh.mu.Lock()
	defer m.sh.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	m.sh.st.categories[c.ID] = c
	m.sh.st.track(c.ID)
	return c
}

func (m *MemoryStore) SeedProduct(p model.Product) model.Product {
	m.sh.mu.Lock()
	defer m.sh.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Kind == "" {
		p.Kind = model.KindProduct
	}
	m.sh.st.products[p.ID] = p
	m.sh.st.track(p.ID)
	return p
}

// SeedOrder stores an order and its lines without recalculating totals
func (m *MemoryStore) SeedOrder(o model.Order, lines ...model.OrderLine) model.Order {
	m.sh.mu.Lock()
	defer m.sh.mu.Unlock()
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	m.sh.st.orders[o.ID] = o
	m.sh.st.track(o.ID)
	for _, l := range lines {
		if l.ID == "" {
			l.ID = uuid.New().String()
		}
		l.OrderID = o.ID
		m.sh.st.orderLines[l.ID] = l
		m.sh.st.track(l.ID)
	}
	return o
}

// OrderCount returns the number of stored orders
func (m *MemoryStore) OrderCount() int {
	m.sh.mu.Lock()
	defer m.sh.mu.Unlock()
	return len(m.sh.st.orders)
}

// TransactionCount returns the number of ledger rows
func (m *MemoryStore) TransactionCount() int {
	m.sh.mu.Lock()
	defer m.sh.mu.Unlock()
	return len(m.sh.st.transactions)
}

// ============================================
// Carts
// ============================================

func findCart(st *state, owner store.CartOwner) (model.Cart, bool) {
	for _, c := range st.carts {
		if owner.AccountID != "" && c.AccountID == owner.AccountID {
			return c, true
		}
		if owner.SessionKey != "" && c.SessionKey == owner.SessionKey {
			return c, true
		}
	}
	return model.Cart{}, false
}

func checkOwner(owner store.CartOwner) error {
	if (owner.AccountID == "") == (owner.SessionKey == "") {
		return fmt.Errorf("cart owner must be exactly one of account or session: %+v", owner)
	}
	return nil
}

func (m *MemoryStore) EnsureCart(ctx context.Context, owner store.CartOwner) (*model.Cart, error) {
	st, unlock, err := m.begin("EnsureCart")
	defer unlock()
	if err != nil {
		return nil, err
	}
	if err := checkOwner(owner); err != nil {
		return nil, err
	}
	if c, ok := findCart(st, owner); ok {
		return &c, nil
	}
	now := time.Now().UTC()
	c := model.Cart{
		ID:         uuid.New().String(),
		AccountID:  owner.AccountID,
		SessionKey: owner.SessionKey,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	st.carts[c.ID] = c
	st.track(c.ID)
	return &c, nil
}

func (m *MemoryStore) FindCart(ctx context.Context, owner store.CartOwner) (*model.Cart, error) {
	st, unlock, err := m.begin("FindCart")
	defer unlock()
	if err != nil {
		return nil, err
	}
	if err := checkOwner(owner); err != nil {
		return nil, err
	}
	c, ok := findCart(st, owner)
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (m *MemoryStore) DeleteCart(ctx context.Context, cartID string) error {
	st, unlock, err := m.begin("DeleteCart")
	defer unlock()
	if err != nil {
		return err
	}
	if _, ok := st.carts[cartID]; !ok {
		return store.ErrNotFound
	}
	delete(st.carts, cartID)
	for id, l := range st.cartLines {
		if l.CartID == cartID {
			delete(st.cartLines, id)
		}
	}
	return nil
}

func joinLine(st *state, l model.CartLine) model.CartLine {
	l.Product = st.products[l.ProductID]
	return l
}

func (m *MemoryStore) ListCartLines(ctx context.Context, cartID string) ([]model.CartLine, error) {
	st, unlock, err := m.begin("ListCartLines")
	defer unlock()
	if err != nil {
		return nil, err
	}
	lines := make([]model.CartLine, 0)
	for _, l := range st.cartLines {
		if l.CartID == cartID {
			lines = append(lines, joinLine(st, l))
		}
	}
	sort.Slice(lines, func(i, j int) bool { return st.seq[lines[i].ID] < st.seq[lines[j].ID] })
	return lines, nil
}

func (m *MemoryStore) GetCartLine(ctx context.Context, cartID, lineID string) (*model.CartLine, error) {
	st, unlock, err := m.begin("GetCartLine")
	defer unlock()
	if err != nil {
		return nil, err
	}
	l, ok := st.cartLines[lineID]
	if !ok || l.CartID != cartID {
		return nil, store.ErrNotFound
	}
	l = joinLine(st, l)
	return &l, nil
}

func (m *MemoryStore) AddCartLine(ctx context.Context, cartID, productID string, quantity int) (*model.CartLine, error) {
	st, unlock, err := m.begin("AddCartLine")
	defer unlock()
	if err != nil {
		return nil, err
	}
	if _, ok := st.carts[cartID]; !ok {
		return nil, store.ErrReferenced
	}
	if _, ok := st.products[productID]; !ok {
		return nil, store.ErrReferenced
	}
	if quantity < 1 {
		return nil, fmt.Errorf("quantity must be at least 1: %d", quantity)
	}
	for id, l := range st.cartLines {
		if l.CartID == cartID && l.ProductID == productID {
			l.Quantity += quantity
			st.cartLines[id] = l
			l = joinLine(st, l)
			return &l, nil
		}
	}
	l := model.CartLine{
		ID:        uuid.New().String(),
		CartID:    cartID,
		ProductID: productID,
		Quantity:  quantity,
		CreatedAt: time.Now().UTC(),
	}
	st.cartLines[l.ID] = l
	st.track(l.ID)
	l = joinLine(st, l)
	return &l, nil
}

func (m *MemoryStore) AdjustCartLine(ctx context.Context, cartID, lineID string, delta int) (*model.CartLine, error) {
	st, unlock, err := m.begin("AdjustCartLine")
	defer unlock()
	if err != nil {
		return nil, err
	}
	l, ok := st.cartLines[lineID]
	if !ok || l.CartID != cartID || l.Quantity+delta < 1 {
		return nil, store.ErrNotFound
	}
	l.Quantity += delta
	st.cartLines[lineID] = l
	l = joinLine(st, l)
	return &l, nil
}

func (m *MemoryStore) DeleteCartLine(ctx context.Context, cartID, lineID string) error {
	st, unlock, err := m.begin("DeleteCartLine")
	defer unlock()
	if err != nil {
		return err
	}
	l, ok := st.cartLines[lineID]
	if !ok || l.CartID != cartID {
		return store.ErrNotFound
	}
	delete(st.cartLines, lineID)
	return nil
}

func (m *MemoryStore) ClearCart(ctx context.Context, cartID string) error {
	st, unlock, err := m.begin("ClearCart")
	defer unlock()
	if err != nil {
		return err
	}
	for id, l := range st.cartLines {
		if l.CartID == cartID {
			delete(st.cartLines, id)
		}
	}
	return nil
}

// ============================================
// Orders
// ============================================

func (m *MemoryStore) CreateOrder(ctx context.Context, o *model.Order) error {
	st, unlock, err := m.begin("CreateOrder")
	defer unlock()
	if err != nil {
		return err
	}
	if _, ok := st.accounts[o.AccountID]; !ok {
		return store.ErrReferenced
	}
	if o.TransactionID != "" {
		for _, existing := range st.orders {
			if existing.TransactionID == o.TransactionID {
				return store.ErrConflict
			}
		}
	}
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now
	stored := *o
	stored.Lines = nil
	st.orders[o.ID] = stored
	st.track(o.ID)
	return nil
}

func (m *MemoryStore) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	st, unlock, err := m.begin("GetOrder")
	defer unlock()
	if err != nil {
		return nil, err
	}
	o, ok := st.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &o, nil
}

func (m *MemoryStore) UpdateOrder(ctx context.Context, o *model.Order) error {
	st, unlock, err := m.begin("UpdateOrder")
	defer unlock()
	if err != nil {
		return err
	}
	existing, ok := st.orders[o.ID]
	if !ok {
		return store.ErrNotFound
	}
	if o.Total.IsNegative() || o.Subtotal.IsNegative() || o.Discount.IsNegative() || o.ShippingCost.IsNegative() {
		return fmt.Errorf("order amounts must be non-negative")
	}
	o.UpdatedAt = time.Now().UTC()
	stored := *o
	stored.Lines = nil
	stored.AccountID = existing.AccountID
	stored.CreatedAt = existing.CreatedAt
	st.orders[o.ID] = stored
	return nil
}

func (m *MemoryStore) DeleteOrder(ctx context.Context, id string) error {
	st, unlock, err := m.begin("DeleteOrder")
	defer unlock()
	if err != nil {
		return err
	}
	if _, ok := st.orders[id]; !ok {
		return store.ErrNotFound
	}
	delete(st.orders, id)
	for lid, l := range st.orderLines {
		if l.OrderID == id {
			delete(st.orderLines, lid)
		}
	}
	for tid, t := range st.transactions {
		if t.OrderID == id {
			t.OrderID = ""
			st.transactions[tid] = t
		}
	}
	return nil
}

func (m *MemoryStore) ListOrders(ctx context.Context, filter store.OrderFilter) ([]model.Order, error) {
	st, unlock, err := m.begin("ListOrders")
	defer unlock()
	if err != nil {
		return nil, err
	}
	orders := make([]model.Order, 0)
	for _, o := range st.orders {
		if filter.AccountID != "" && o.AccountID != filter.AccountID {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		orders = append(orders, o)
	}
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return st.seq[orders[i].ID] > st.seq[orders[j].ID]
	})
	if filter.Limit > 0 && len(orders) > filter.Limit {
		orders = orders[:filter.Limit]
	}
	return orders, nil
}

func (m *MemoryStore) CreateOrderLine(ctx context.Context, l *model.OrderLine) error {
	st, unlock, err := m.begin("CreateOrderLine")
	defer unlock()
	if err != nil {
		return err
	}
	if _, ok := st.orders[l.OrderID]; !ok {
		return store.ErrReferenced
	}
	if _, ok := st.products[l.ProductID]; !ok {
		return store.ErrReferenced
	}
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	st.orderLines[l.ID] = *l
	st.track(l.ID)
	return nil
}

func (m *MemoryStore) ListOrderLines(ctx context.Context, orderID string) ([]model.OrderLine, error) {
	st, unlock, err := m.begin("ListOrderLines")
	defer unlock()
	if err != nil {
		return nil, err
	}
	lines := make([]model.OrderLine, 0)
	for _, l := range st.orderLines {
		if l.OrderID == orderID {
			lines = append(lines, l)
		}
	}
	sort.Slice(lines, func(i, j int) bool { return st.seq[lines[i].ID] < st.seq[lines[j].ID] })
	return lines, nil
}

// ============================================
// Payments
// ============================================

func (m *MemoryStore) CreateTransaction(ctx context.Context, t *model.Transaction) error {
	st, unlock, err := m.begin("CreateTransaction")
	defer unlock()
	if err != nil {
		return err
	}
	for _, existing := range st.transactions {
		if existing.ExternalOrderID == t.ExternalOrderID {
			return store.ErrConflict
		}
	}
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	t.CreatedAt = time.Now().UTC()
	st.transactions[t.ID] = *t
	st.track(t.ID)
	return nil
}

func (m *MemoryStore) GetTransactionByExternalID(ctx context.Context, externalOrderID string) (*model.Transaction, error) {
	st, unlock, err := m.begin("GetTransactionByExternalID")
	defer unlock()
	if err != nil {
		return nil, err
	}
	for _, t := range st.transactions {
		if t.ExternalOrderID == externalOrderID {
			return &t, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *MemoryStore) CreateReconciliation(ctx context.Context, r *model.Reconciliation) error {
	st, unlock, err := m.begin("CreateReconciliation")
	defer unlock()
	if err != nil {
		return err
	}
	for _, existing := range st.reconciliations {
		if existing.ExternalOrderID == r.ExternalOrderID {
			return store.ErrConflict
		}
	}
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Status == "" {
		r.Status = model.ReconciliationOpen
	}
	r.CreatedAt = time.Now().UTC()
	st.reconciliations[r.ID] = *r
	st.track(r.ID)
	return nil
}

func (m *MemoryStore) ListReconciliations(ctx context.Context, status string) ([]model.Reconciliation, error) {
	st, unlock, err := m.begin("ListReconciliations")
	defer unlock()
	if err != nil {
		return nil, err
	}
	recs := make([]model.Reconciliation, 0)
	for _, r := range st.reconciliations {
		if status == "" || r.Status == status {
			recs = append(recs, r)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return st.seq[recs[i].ID] > st.seq[recs[j].ID] })
	return recs, nil
}

func (m *MemoryStore) ResolveReconciliation(ctx context.Context, id string) (*model.Reconciliation, error) {
	st, unlock, err := m.begin("ResolveReconciliation")
	defer unlock()
	if err != nil {
		return nil, err
	}
	r, ok := st.reconciliations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	now := time.Now().UTC()
	r.Status = model.ReconciliationResolved
	r.ResolvedAt = &now
	st.reconciliations[id] = r
	return &r, nil
}

func (m *MemoryStore) DashboardTotals(ctx context.Context) (*store.DashboardTotals, error) {
	st, unlock, err := m.begin("DashboardTotals")
	defer unlock()
	if err != nil {
		return nil, err
	}
	totals := &store.DashboardTotals{
		PaidRevenue: decimal.Zero,
		Orders:      len(st.orders),
		Accounts:    len(st.accounts),
		Products:    len(st.products),
	}
	for _, o := range st.orders {
		if o.PaymentStatus {
			totals.PaidRevenue = totals.PaidRevenue.Add(o.Total)
		}
	}
	for _, r := range st.reconciliations {
		if r.Status == model.ReconciliationOpen {
			totals.OpenReconciliations++
		}
	}
	return totals, nil
}

// ============================================
// Catalog
// ============================================

func (m *MemoryStore) ListProducts(ctx context.Context, filter store.ProductFilter) ([]model.Product, error) {
	st, unlock, err := m.begin("ListProducts")
	defer unlock()
	if err != nil {
		return nil, err
	}
	categoryID := ""
	if filter.CategorySlug != "" {
		for _, c := range st.categories {
			if c.Slug == filter.CategorySlug {
				categoryID = c.ID
			}
		}
		if categoryID == "" {
			return []model.Product{}, nil
		}
	}
	products := make([]model.Product, 0)
	for _, p := range st.products {
		if categoryID != "" && p.CategoryID != categoryID {
			continue
		}
		if filter.ActiveOnly && !p.IsActive {
			continue
		}
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return st.seq[products[i].ID] > st.seq[products[j].ID] })
	return products, nil
}

func (m *MemoryStore) GetCategoryBySlug(ctx context.Context, slug string) (*model.Category, error) {
	st, unlock, err := m.begin("GetCategoryBySlug")
	defer unlock()
	if err != nil {
		return nil, err
	}
	for _, c := range st.categories {
		if c.Slug == slug {
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

func favoriteKey(accountID, productID string) string {
	return accountID + "|" + productID
}

func (m *MemoryStore) AddFavorite(ctx context.Context, accountID, productID string) error {
	st, unlock, err := m.begin("AddFavorite")
	defer unlock()
	if err != nil {
		return err
	}
	if _, ok := st.products[productID]; !ok {
		return store.ErrReferenced
	}
	key := favoriteKey(accountID, productID)
	if _, ok := st.favorites[key]; ok {
		return nil
	}
	st.favorites[key] = model.Favorite{AccountID: accountID, ProductID: productID, CreatedAt: time.Now().UTC()}
	st.track(key)
	return nil
}

func (m *MemoryStore) RemoveFavorite(ctx context.Context, accountID, productID string) error {
	st, unlock, err := m.begin("RemoveFavorite")
	defer unlock()
	if err != nil {
		return err
	}
	key := favoriteKey(accountID, productID)
	if _, ok := st.favorites[key]; !ok {
		return store.ErrNotFound
	}
	delete(st.favorites, key)
	return nil
}

func (m *MemoryStore) IsFavorite(ctx context.Context, accountID, productID string) (bool, error) {
	st, unlock, err := m.begin("IsFavorite")
	defer unlock()
	if err != nil {
		return false, err
	}
	_, ok := st.favorites[favoriteKey(accountID, productID)]
	return ok, nil
}

func (m *MemoryStore) ListFavorites(ctx context.Context, accountID string) ([]model.Product, error) {
	st, unlock, err := m.begin("ListFavorites")
	defer unlock()
	if err != nil {
		return nil, err
	}
	var favs []model.Favorite
	for _, f := range st.favorites {
		if f.AccountID == accountID {
			favs = append(favs, f)
		}
	}
	sort.Slice(favs, func(i, j int) bool {
		return st.seq[favoriteKey(favs[i].AccountID, favs[i].ProductID)] > st.seq[favoriteKey(favs[j].AccountID, favs[j].ProductID)]
	})
	products := make([]model.Product, 0, len(favs))
	for _, f := range favs {
		products = append(products, st.products[f.ProductID])
	}
	return products, nil
}

// ============================================
// Accounts
// ============================================

func (m *MemoryStore) GetAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	st, unlock, err := m.begin("GetAccountByEmail")
	defer unlock()
	if err != nil {
		return nil, err
	}
	for _, a := range st.accounts {
		if strings.EqualFold(a.Email, email) {
			return &a, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *MemoryStore) CreateProfile(ctx context.Context, p *model.Profile) error {
	st, unlock, err := m.begin("CreateProfile")
	defer unlock()
	if err != nil {
		return err
	}
	if _, ok := st.accounts[p.AccountID]; !ok {
		return store.ErrReferenced
	}
	if _, ok := st.profiles[p.AccountID]; ok {
		return store.ErrConflict
	}
	p.UpdatedAt = time.Now().UTC()
	st.profiles[p.AccountID] = *p
	return nil
}

func (m *MemoryStore) GetProfile(ctx context.Context, accountID string) (*model.Profile, error) {
	st, unlock, err := m.begin("GetProfile")
	defer unlock()
	if err != nil {
		return nil, err
	}
	p, ok := st.profiles[accountID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (m *MemoryStore) UpdateProfile(ctx context.Context, p *model.Profile) error {
	st, unlock, err := m.begin("UpdateProfile")
	defer unlock()
	if err != nil {
		return err
	}
	if _, ok := st.profiles[p.AccountID]; !ok {
		return store.ErrNotFound
	}
	p.UpdatedAt = time.Now().UTC()
	st.profiles[p.AccountID] = *p
	return nil
}

// ============================================
// Generic repositories
// ============================================

type memTable[T any] struct {
	m        *MemoryStore
	name     string
	items    func(st *state) map[string]T
	id       func(item *T) *string
	check    func(st *state, item *T) error
	onDelete func(st *state, id string) error
	stamp    func(item *T, now time.Time, created bool)
}

func (t *memTable[T]) Create(ctx context.Context, item *T) error {
	st, unlock, err := t.m.begin(t.name + ".Create")
	defer unlock()
	if err != nil {
		return err
	}
	id := t.id(item)
	if *id == "" {
		*id = uuid.New().String()
	}
	if err := t.check(st, item); err != nil {
		return err
	}
	if t.stamp != nil {
		t.stamp(item, time.Now().UTC(), true)
	}
	t.items(st)[*id] = *item
	st.track(*id)
	return nil
}

func (t *memTable[T]) List(ctx context.Context) ([]T, error) {
	st, unlock, err := t.m.begin(t.name + ".List")
	defer unlock()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(t.items(st)))
	for id := range t.items(st) {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return st.seq[ids[i]] > st.seq[ids[j]] })
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.items(st)[id])
	}
	return out, nil
}

func (t *memTable[T]) Get(ctx context.Context, id string) (*T, error) {
	st, unlock, err := t.m.begin(t.name + ".Get")
	defer unlock()
	if err != nil {
		return nil, err
	}
	item, ok := t.items(st)[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &item, nil
}

func (t *memTable[T]) Update(ctx context.Context, item *T) error {
	st, unlock, err := t.m.begin(t.name + ".Update")
	defer unlock()
	if err != nil {
		return err
	}
	id := *t.id(item)
	if _, ok := t.items(st)[id]; !ok {
		return store.ErrNotFound
	}
	if err := t.check(st, item); err != nil {
		return err
	}
	if t.stamp != nil {
		t.stamp(item, time.Now().UTC(), false)
	}
	t.items(st)[id] = *item
	return nil
}

func (t *memTable[T]) Delete(ctx context.Context, id string) error {
	st, unlock, err := t.m.begin(t.name + ".Delete")
	defer unlock()
	if err != nil {
		return err
	}
	if _, ok := t.items(st)[id]; !ok {
		return store.ErrNotFound
	}
	if err := t.onDelete(st, id); err != nil {
		return err
	}
	delete(t.items(st), id)
	return nil
}

func (m *MemoryStore) Products() crud.Repository[model.Product] {
	return &memTable[model.Product]{
		m:     m,
		name:  "Products",
		items: func(st *state) map[string]model.Product { return st.products },
		id:    func(p *model.Product) *string { return &p.ID },
		check: func(st *state, p *model.Product) error {
			if _, ok := st.categories[p.CategoryID]; !ok {
				return store.ErrReferenced
			}
			return nil
		},
		onDelete: func(st *state, id string) error {
			for _, l := range st.orderLines {
				if l.ProductID == id {
					return store.ErrReferenced
				}
			}
			for lid, l := range st.cartLines {
				if l.ProductID == id {
					delete(st.cartLines, lid)
				}
			}
			for key, f := range st.favorites {
				if f.ProductID == id {
					delete(st.favorites, key)
				}
			}
			return nil
		},
		stamp: func(p *model.Product, now time.Time, created bool) {
			if created {
				p.CreatedAt = now
			}
			p.UpdatedAt = now
		},
	}
}

func (m *MemoryStore) Categories() crud.Repository[model.Category] {
	return &memTable[model.Category]{
		m:     m,
		name:  "Categories",
		items: func(st *state) map[string]model.Category { return st.categories },
		id:    func(c *model.Category) *string { return &c.ID },
		check: func(st *state, c *model.Category) error {
			for _, other := range st.categories {
				if other.ID != c.ID && other.Slug == c.Slug {
					return store.ErrConflict
				}
			}
			return nil
		},
		onDelete: func(st *state, id string) error {
			for _, p := range st.products {
				if p.CategoryID == id {
					return store.ErrReferenced
				}
			}
			return nil
		},
		stamp: func(c *model.Category, now time.Time, created bool) {
			if created {
				c.CreatedAt = now
			}
		},
	}
}

func (m *MemoryStore) Accounts() crud.Repository[model.Account] {
	return &memTable[model.Account]{
		m:     m,
		name:  "Accounts",
		items: func(st *state) map[string]model.Account { return st.accounts },
		id:    func(a *model.Account) *string { return &a.ID },
		check: func(st *state, a *model.Account) error {
			for _, other := range st.accounts {
				if other.ID != a.ID && strings.EqualFold(other.Email, a.Email) {
					return store.ErrConflict
				}
			}
			return nil
		},
		onDelete: func(st *state, id string) error {
			for _, o := range st.orders {
				if o.AccountID == id {
					return store.ErrReferenced
				}
			}
			delete(st.profiles, id)
			for cid, c := range st.carts {
				if c.AccountID == id {
					delete(st.carts, cid)
					for lid, l := range st.cartLines {
						if l.CartID == cid {
							delete(st.cartLines, lid)
						}
					}
				}
			}
			for key, f := range st.favorites {
				if f.AccountID == id {
					delete(st.favorites, key)
				}
			}
			return nil
		},
		stamp: func(a *model.Account, now time.Time, created bool) {
			if created {
				a.CreatedAt = now
			}
			a.UpdatedAt = now
		},
	}
}
