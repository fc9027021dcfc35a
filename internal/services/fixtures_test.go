package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/restitch/restitch/internal/authz"
	"github.com/restitch/restitch/internal/db"
	"github.com/restitch/restitch/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type notification struct {
	kind    string
	userID  int64
	subject int64
	note    string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
	err  error
}

func (n *recordingNotifier) add(entry notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, entry)
	return n.err
}

func (n *recordingNotifier) PickupScheduled(_ context.Context, user *models.User, pickup *models.PickupRequest) error {
	return n.add(notification{kind: "pickup_scheduled", userID: user.ID, subject: pickup.ID})
}

func (n *recordingNotifier) PickupRejected(_ context.Context, user *models.User, pickup *models.PickupRequest, reason string) error {
	return n.add(notification{kind: "pickup_rejected", userID: user.ID, subject: pickup.ID, note: reason})
}

func (n *recordingNotifier) OrderStatusChanged(_ context.Context, user *models.User, order *models.Order, note string) error {
	return n.add(notification{kind: "order_status", userID: user.ID, subject: order.ID, note: note})
}

func (n *recordingNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	kinds := make([]string, 0, len(n.sent))
	for _, entry := range n.sent {
		kinds = append(kinds, entry.kind)
	}
	return kinds
}

func (n *recordingNotifier) last() notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		return notification{}
	}
	return n.sent[len(n.sent)-1]
}

var userSeq atomic.Int64

type fixture struct {
	store    *db.MemoryStore
	notifier *recordingNotifier
	pickups  *PickupService
	orders   *OrderService

	customer authz.Principal
	designer authz.Principal
	admin    authz.Principal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := db.NewMemoryStore()
	notifier := &recordingNotifier{}
	logger := discardLogger()

	f := &fixture{
		store:    store,
		notifier: notifier,
		pickups:  NewPickupService(store, notifier, logger, Config{}),
		orders:   NewOrderService(store, notifier, logger, Config{}),
	}
	f.customer = f.addUser(t, models.RoleCustomer, 0)
	f.designer = f.addUser(t, models.RoleDesigner, 0)
	f.admin = f.addUser(t, models.RoleAdmin, 0)
	return f
}

func (f *fixture) addUser(t *testing.T, role models.Role, points int) authz.Principal {
	t.Helper()

	user := &models.User{
		Email:  fmt.Sprintf("%s-%d@example.com", role, userSeq.Add(1)),
		Name:   "Asha " + string(role),
		Role:   role,
		Points: points,
	}
	require.NoError(t, f.store.InTx(t.Context(), func(ctx context.Context, tx db.Tx) error {
		return tx.CreateUser(ctx, user)
	}))
	return authz.Principal{UserID: user.ID, Role: role}
}

func (f *fixture) addOrder(t *testing.T, order *models.Order) *models.Order {
	t.Helper()

	if order.UserID == 0 {
		order.UserID = f.customer.UserID
	}
	require.NoError(t, f.store.InTx(t.Context(), func(ctx context.Context, tx db.Tx) error {
		return tx.CreateOrder(ctx, order)
	}))
	return order
}

func (f *fixture) addPickup(t *testing.T, serviceType models.ServiceType) *models.PickupRequest {
	t.Helper()

	pickup := &models.PickupRequest{
		UserID:        f.customer.UserID,
		AddressID:     1,
		PreferredSlot: time.Now().Add(24 * time.Hour),
		ServiceType:   serviceType,
		Status:        models.PickupPending,
		Items:         []string{"denim jacket"},
	}
	require.NoError(t, f.store.InTx(t.Context(), func(ctx context.Context, tx db.Tx) error {
		return tx.CreatePickup(ctx, pickup)
	}))
	return pickup
}

func (f *fixture) activity(t *testing.T, subject models.SubjectType, id int64) []*models.ActivityLog {
	t.Helper()

	entries, err := f.store.ListActivity(t.Context(), subject, id)
	require.NoError(t, err)
	return entries
}

func (f *fixture) points(t *testing.T, userID int64) int {
	t.Helper()

	user, err := f.store.GetUser(t.Context(), userID)
	require.NoError(t, err)
	return user.Points
}

func (f *fixture) wait() {
	f.pickups.Drain()
	f.orders.Drain()
}

var errConnectionReset = errors.New("connection reset by peer")

// flakyUserStore fails GetUser for one id inside transactions, the way a
// dropped connection would.
type flakyUserStore struct {
	*db.MemoryStore
	failUserID int64
}

func (s flakyUserStore) InTx(ctx context.Context, fn func(ctx context.Context, tx db.Tx) error) error {
	return s.MemoryStore.InTx(ctx, func(ctx context.Context, tx db.Tx) error {
		return fn(ctx, flakyUserTx{Tx: tx, failUserID: s.failUserID})
	})
}

type flakyUserTx struct {
	db.Tx
	failUserID int64
}

func (t flakyUserTx) GetUser(ctx context.Context, id int64) (*models.User, error) {
	if id == t.failUserID {
		return nil, errConnectionReset
	}
	return t.Tx.GetUser(ctx, id)
}
