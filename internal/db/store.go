package db

import (
	"context"
	"errors"
	"math"

	"github.com/restitch/restitch/internal/models"
)

var (
	ErrNotFound                = errors.New("record not found")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrStaleWrite              = errors.New("record was modified concurrently")
	ErrInsufficientPoints      = errors.New("insufficient points")
	ErrDuplicate               = errors.New("duplicate record")
)

const DefaultPageSize = 20

// OrderFilter narrows order listings. Zero values match everything.
type OrderFilter struct {
	UserID     int64
	DesignerID int64
	// Status matches either the review or the fulfillment stage.
	Status string
	Page   int
	Limit  int
}

type PickupFilter struct {
	UserID int64
	Status models.PickupStatus
	Page   int
	Limit  int
}

type ApplicationFilter struct {
	UserID int64
	Status models.ApplicationStatus
	Page   int
	Limit  int
}

// Reader exposes read queries. It is satisfied by both the store and a
// transaction.
type Reader interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetPickup(ctx context.Context, id int64) (*models.PickupRequest, error)
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	GetOrderByBarcode(ctx context.Context, barcode string) (*models.Order, error)
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]*models.Order, int, error)
	ListPickups(ctx context.Context, filter PickupFilter) ([]*models.PickupRequest, int, error)
	ListActivity(ctx context.Context, subjectType models.SubjectType, subjectID int64) ([]*models.ActivityLog, error)
	GetApplication(ctx context.Context, id int64) (*models.DesignerApplication, error)
	ListApplications(ctx context.Context, filter ApplicationFilter) ([]*models.DesignerApplication, int, error)
}

// Tx is a unit of work. Lock* methods hold the row until the transaction ends;
// Update* methods are guarded by the row version and the expected status and
// return ErrStaleWrite or ErrInvalidStatusTransition when the guard fails.
type Tx interface {
	Reader

	LockOrder(ctx context.Context, id int64) (*models.Order, error)
	LockPickup(ctx context.Context, id int64) (*models.PickupRequest, error)
	LockApplication(ctx context.Context, id int64) (*models.DesignerApplication, error)

	CreateUser(ctx context.Context, user *models.User) error
	CreatePickup(ctx context.Context, pickup *models.PickupRequest) error
	CreateOrder(ctx context.Context, order *models.Order) error
	CreateProduct(ctx context.Context, product *models.Product) error
	AppendActivity(ctx context.Context, entry *models.ActivityLog) error
	// CreateApplication returns ErrDuplicate when the user already has a
	// pending application.
	CreateApplication(ctx context.Context, app *models.DesignerApplication) error

	UpdatePickup(ctx context.Context, pickup *models.PickupRequest, expected models.PickupStatus) error
	UpdateOrder(ctx context.Context, order *models.Order) error
	UpdateApplication(ctx context.Context, app *models.DesignerApplication, expected models.ApplicationStatus) error
	SetUserRole(ctx context.Context, userID int64, role models.Role) error

	CreditPoints(ctx context.Context, userID int64, amount int) error
	DebitPoints(ctx context.Context, userID int64, amount int) error
}

// Store runs units of work. A non-nil error from fn rolls back everything fn did.
type Store interface {
	Reader
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Ping(ctx context.Context) error
	Close()
}

// maxOffset bounds list offsets so (page-1)*size cannot overflow. Pages past
// it are simply empty.
const maxOffset = math.MaxInt32

func pageBounds(page, limit int) (offset, size int) {
	size = limit
	if size <= 0 {
		size = DefaultPageSize
	}
	if page < 1 {
		page = 1
	}
	if page-1 > maxOffset/size {
		return maxOffset, size
	}
	return (page - 1) * size, size
}
