package db

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/restitch/restitch/internal/models"
)

// MemoryStore keeps everything in process. Transactions are serialized and
// applied copy-on-write, so a failed unit of work leaves no trace.
type MemoryStore struct {
	txMu    sync.Mutex
	stateMu sync.RWMutex
	state   *memoryState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemoryState()}
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.stateMu.RLock()
	working := s.state.clone()
	s.stateMu.RUnlock()

	if err := fn(ctx, &memoryTx{state: working}); err != nil {
		return err
	}

	s.stateMu.Lock()
	s.state = working
	s.stateMu.Unlock()
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) Close() {}

func (s *MemoryStore) read() *memoryState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

func (s *MemoryStore) GetUser(ctx context.Context, id int64) (*User, error) {
	return s.read().getUser(id)
}

func (s *MemoryStore) GetPickup(ctx context.Context, id int64) (*PickupRequest, error) {
	return s.read().getPickup(id)
}

func (s *MemoryStore) GetOrder(ctx context.Context, id int64) (*Order, error) {
	return s.read().getOrder(id)
}

func (s *MemoryStore) GetOrderByBarcode(ctx context.Context, barcode string) (*Order, error) {
	return s.read().getOrderByBarcode(barcode)
}

func (s *MemoryStore) GetProduct(ctx context.Context, id int64) (*Product, error) {
	return s.read().getProduct(id)
}

func (s *MemoryStore) ListOrders(ctx context.Context, filter OrderFilter) ([]*Order, int, error) {
	orders, total := s.read().listOrders(filter)
	return orders, total, nil
}

func (s *MemoryStore) ListPickups(ctx context.Context, filter PickupFilter) ([]*PickupRequest, int, error) {
	pickups, total := s.read().listPickups(filter)
	return pickups, total, nil
}

func (s *MemoryStore) ListActivity(ctx context.Context, subjectType models.SubjectType, subjectID int64) ([]*ActivityLog, error) {
	return s.read().listActivity(subjectType, subjectID), nil
}

// memoryState is never mutated once published; transactions work on a clone.
type memoryState struct {
	users    map[int64]*User
	pickups  map[int64]*PickupRequest
	orders   map[int64]*Order
	products map[int64]*Product
	apps     map[int64]*DesignerApplication
	activity []*ActivityLog

	lastUserID     int64
	lastPickupID   int64
	lastOrderID    int64
	lastProductID  int64
	lastActivityID int64
	lastAppID      int64
}

func newMemoryState() *memoryState {
	return &memoryState{
		users:    map[int64]*User{},
		pickups:  map[int64]*PickupRequest{},
		orders:   map[int64]*Order{},
		products: map[int64]*Product{},
		apps:     map[int64]*DesignerApplication{},
	}
}

func (m *memoryState) clone() *memoryState {
	c := *m
	c.users = maps.Clone(m.users)
	c.pickups = maps.Clone(m.pickups)
	c.orders = maps.Clone(m.orders)
	c.products = maps.Clone(m.products)
	c.apps = maps.Clone(m.apps)
	c.activity = slices.Clone(m.activity)
	return &c
}

func (m *memoryState) getUser(id int64) (*User, error) {
	user, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cloned := *user
	return &cloned, nil
}

func (m *memoryState) getPickup(id int64) (*PickupRequest, error) {
	pickup, ok := m.pickups[id]
	if !ok {
		return nil, ErrNotFound
	}
	return pickup.Clone(), nil
}

func (m *memoryState) getOrder(id int64) (*Order, error) {
	order, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return order.Clone(), nil
}

func (m *memoryState) getOrderByBarcode(barcode string) (*Order, error) {
	if barcode == "" {
		return nil, ErrNotFound
	}
	for _, order := range m.orders {
		if order.Barcode == barcode {
			return order.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (m *memoryState) getProduct(id int64) (*Product, error) {
	product, ok := m.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	return product.Clone(), nil
}

func newestFirst(aCreated, bCreated time.Time, aID, bID int64) int {
	if c := bCreated.Compare(aCreated); c != 0 {
		return c
	}
	return cmp.Compare(bID, aID)
}

func paginate[T any](items []T, page, limit int) []T {
	offset, size := pageBounds(page, limit)
	if offset >= len(items) {
		return nil
	}
	end := min(offset+size, len(items))
	return items[offset:end]
}

func (m *memoryState) listOrders(filter OrderFilter) ([]*Order, int) {
	var matched []*Order
	for _, order := range m.orders {
		if filter.UserID > 0 && order.UserID != filter.UserID {
			continue
		}
		if filter.DesignerID > 0 && !order.AssignedTo(filter.DesignerID) {
			continue
		}
		if filter.Status != "" && string(order.ReviewStage) != filter.Status && string(order.FulfillmentStage) != filter.Status {
			continue
		}
		matched = append(matched, order.Clone())
	}
	slices.SortFunc(matched, func(a, b *Order) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return paginate(matched, filter.Page, filter.Limit), len(matched)
}

func (m *memoryState) listPickups(filter PickupFilter) ([]*PickupRequest, int) {
	var matched []*PickupRequest
	for _, pickup := range m.pickups {
		if filter.UserID > 0 && pickup.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && pickup.Status != filter.Status {
			continue
		}
		matched = append(matched, pickup.Clone())
	}
	slices.SortFunc(matched, func(a, b *PickupRequest) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return paginate(matched, filter.Page, filter.Limit), len(matched)
}

func (m *memoryState) listActivity(subjectType models.SubjectType, subjectID int64) []*ActivityLog {
	var entries []*ActivityLog
	for _, entry := range m.activity {
		if entry.SubjectType == subjectType && entry.SubjectID == subjectID {
			entries = append(entries, entry.Clone())
		}
	}
	return entries
}

type memoryTx struct {
	state *memoryState
}

func (t *memoryTx) GetUser(ctx context.Context, id int64) (*User, error) {
	return t.state.getUser(id)
}

func (t *memoryTx) GetPickup(ctx context.Context, id int64) (*PickupRequest, error) {
	return t.state.getPickup(id)
}

func (t *memoryTx) GetOrder(ctx context.Context, id int64) (*Order, error) {
	return t.state.getOrder(id)
}

func (t *memoryTx) GetOrderByBarcode(ctx context.Context, barcode string) (*Order, error) {
	return t.state.getOrderByBarcode(barcode)
}

func (t *memoryTx) GetProduct(ctx context.Context, id int64) (*Product, error) {
	return t.state.getProduct(id)
}

func (t *memoryTx) ListOrders(ctx context.Context, filter OrderFilter) ([]*Order, int, error) {
	orders, total := t.state.listOrders(filter)
	return orders, total, nil
}

func (t *memoryTx) ListPickups(ctx context.Context, filter PickupFilter) ([]*PickupRequest, int, error) {
	pickups, total := t.state.listPickups(filter)
	return pickups, total, nil
}

func (t *memoryTx) ListActivity(ctx context.Context, subjectType models.SubjectType, subjectID int64) ([]*ActivityLog, error) {
	return t.state.listActivity(subjectType, subjectID), nil
}

// Transactions are already serialized, so locking is a plain read.
func (t *memoryTx) LockOrder(ctx context.Context, id int64) (*Order, error) {
	return t.state.getOrder(id)
}

func (t *memoryTx) LockPickup(ctx context.Context, id int64) (*PickupRequest, error) {
	return t.state.getPickup(id)
}

func (t *memoryTx) CreateUser(ctx context.Context, user *User) error {
	for _, existing := range t.state.users {
		if existing.Email == user.Email {
			return fmt.Errorf("%w: users_email_key", ErrDuplicate)
		}
	}
	t.state.lastUserID++
	user.ID = t.state.lastUserID
	user.CreatedAt = time.Now()
	stored := *user
	t.state.users[user.ID] = &stored
	return nil
}

func (t *memoryTx) CreatePickup(ctx context.Context, pickup *PickupRequest) error {
	if _, ok := t.state.users[pickup.UserID]; !ok {
		return fmt.Errorf("%w: user %d", ErrNotFound, pickup.UserID)
	}
	t.state.lastPickupID++
	now := time.Now()
	pickup.ID = t.state.lastPickupID
	pickup.CreatedAt = now
	pickup.UpdatedAt = now
	t.state.pickups[pickup.ID] = pickup.Clone()
	return nil
}

func (t *memoryTx) CreateOrder(ctx context.Context, order *Order) error {
	if _, ok := t.state.users[order.UserID]; !ok {
		return fmt.Errorf("%w: user %d", ErrNotFound, order.UserID)
	}
	if err := t.checkBarcode(0, order.Barcode); err != nil {
		return err
	}
	t.state.lastOrderID++
	now := time.Now()
	order.ID = t.state.lastOrderID
	order.Version = 1
	order.CreatedAt = now
	order.UpdatedAt = now
	t.state.orders[order.ID] = order.Clone()
	return nil
}

func (t *memoryTx) CreateProduct(ctx context.Context, product *Product) error {
	for _, existing := range t.state.products {
		if existing.Slug == product.Slug {
			return fmt.Errorf("%w: products_slug_key", ErrDuplicate)
		}
		if product.SourceOrderID != nil && existing.SourceOrderID != nil && *existing.SourceOrderID == *product.SourceOrderID {
			return fmt.Errorf("%w: products_source_order_id_key", ErrDuplicate)
		}
	}
	t.state.lastProductID++
	product.ID = t.state.lastProductID
	product.CreatedAt = time.Now()
	t.state.products[product.ID] = product.Clone()
	return nil
}

func (t *memoryTx) AppendActivity(ctx context.Context, entry *ActivityLog) error {
	t.state.lastActivityID++
	entry.ID = t.state.lastActivityID
	entry.Timestamp = time.Now()
	t.state.activity = append(t.state.activity, entry.Clone())
	return nil
}

func (t *memoryTx) UpdatePickup(ctx context.Context, pickup *PickupRequest, expected models.PickupStatus) error {
	stored, ok := t.state.pickups[pickup.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Status != expected {
		return fmt.Errorf("%w: expected %s", ErrInvalidStatusTransition, expected)
	}
	updated := stored.Clone()
	updated.Status = pickup.Status
	updated.Notes = pickup.Notes
	updated.UpdatedAt = time.Now()
	pickup.UpdatedAt = updated.UpdatedAt
	t.state.pickups[pickup.ID] = updated
	return nil
}

func (t *memoryTx) UpdateOrder(ctx context.Context, order *Order) error {
	stored, ok := t.state.orders[order.ID]
	if !ok || stored.Version != order.Version {
		return fmt.Errorf("%w: order %d expected version %d", ErrStaleWrite, order.ID, order.Version)
	}
	updated := order.Clone()
	if stored.Barcode != "" {
		updated.Barcode = stored.Barcode
	}
	if err := t.checkBarcode(order.ID, updated.Barcode); err != nil {
		return err
	}
	updated.UserID = stored.UserID
	updated.PickupID = stored.PickupID
	updated.ServiceType = stored.ServiceType
	updated.CreatedAt = stored.CreatedAt
	updated.Version = stored.Version + 1
	updated.UpdatedAt = time.Now()
	t.state.orders[order.ID] = updated

	order.Barcode = updated.Barcode
	order.Version = updated.Version
	order.UpdatedAt = updated.UpdatedAt
	return nil
}

func (t *memoryTx) checkBarcode(orderID int64, barcode string) error {
	if barcode == "" {
		return nil
	}
	for id, existing := range t.state.orders {
		if id != orderID && existing.Barcode == barcode {
			return fmt.Errorf("%w: orders_barcode_key", ErrDuplicate)
		}
	}
	return nil
}

func (t *memoryTx) CreditPoints(ctx context.Context, userID int64, amount int) error {
	if amount <= 0 {
		return fmt.Errorf("credit amount must be positive: %d", amount)
	}
	user, ok := t.state.users[userID]
	if !ok {
		return ErrNotFound
	}
	updated := *user
	updated.Points += amount
	t.state.users[userID] = &updated
	return nil
}

func (t *memoryTx) DebitPoints(ctx context.Context, userID int64, amount int) error {
	if amount <= 0 {
		return fmt.Errorf("debit amount must be positive: %d", amount)
	}
	user, ok := t.state.users[userID]
	if !ok {
		return ErrNotFound
	}
	if user.Points < amount {
		return fmt.Errorf("%w: need %d", ErrInsufficientPoints, amount)
	}
	updated := *user
	updated.Points -= amount
	t.state.users[userID] = &updated
	return nil
}
