package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/restitch/restitch/internal/models"
)

const pickupColumns = `
	id, user_id, address_id, preferred_slot, service_type, status, items, photos, notes,
	designer_id, expected_price_cents, created_at, updated_at`

func scanPickup(row pgx.Row) (*PickupRequest, error) {
	var (
		pickup      PickupRequest
		serviceType string
		status      string
		items       []byte
		photos      []byte
	)
	err := row.Scan(
		&pickup.ID,
		&pickup.UserID,
		&pickup.AddressID,
		&pickup.PreferredSlot,
		&serviceType,
		&status,
		&items,
		&photos,
		&pickup.Notes,
		&pickup.DesignerID,
		&pickup.ExpectedPriceCents,
		&pickup.CreatedAt,
		&pickup.UpdatedAt,
	)
	if err != nil {
		return nil, translateError(err)
	}
	pickup.ServiceType = models.ServiceType(serviceType)
	pickup.Status = models.PickupStatus(status)
	if pickup.Items, err = unmarshalList(items); err != nil {
		return nil, err
	}
	if pickup.Photos, err = unmarshalList(photos); err != nil {
		return nil, err
	}
	return &pickup, nil
}

func (p pgQueries) GetPickup(ctx context.Context, id int64) (*PickupRequest, error) {
	return scanPickup(p.q.QueryRow(ctx, `SELECT `+pickupColumns+` FROM pickup_requests WHERE id = $1`, id))
}

func (p pgQueries) ListPickups(ctx context.Context, filter PickupFilter) ([]*PickupRequest, int, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.UserID > 0 {
		args = append(args, filter.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := p.q.QueryRow(ctx, `SELECT COUNT(*) FROM pickup_requests`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	offset, size := pageBounds(filter.Page, filter.Limit)
	args = append(args, size, offset)
	query := fmt.Sprintf(`SELECT %s FROM pickup_requests%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		pickupColumns, where, len(args)-1, len(args))

	rows, err := p.q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var pickups []*PickupRequest
	for rows.Next() {
		pickup, err := scanPickup(rows)
		if err != nil {
			return nil, 0, err
		}
		pickups = append(pickups, pickup)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return pickups, total, nil
}

func (t *postgresTx) LockPickup(ctx context.Context, id int64) (*PickupRequest, error) {
	return scanPickup(t.q.QueryRow(ctx, `SELECT `+pickupColumns+` FROM pickup_requests WHERE id = $1 FOR UPDATE`, id))
}

func (t *postgresTx) CreatePickup(ctx context.Context, pickup *PickupRequest) error {
	items, err := marshalList(pickup.Items)
	if err != nil {
		return err
	}
	photos, err := marshalList(pickup.Photos)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO pickup_requests (
			user_id, address_id, preferred_slot, service_type, status, items, photos, notes,
			designer_id, expected_price_cents
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`
	err = t.q.QueryRow(ctx, query,
		pickup.UserID,
		pickup.AddressID,
		pickup.PreferredSlot,
		string(pickup.ServiceType),
		string(pickup.Status),
		items,
		photos,
		pickup.Notes,
		pickup.DesignerID,
		pickup.ExpectedPriceCents,
	).Scan(&pickup.ID, &pickup.CreatedAt, &pickup.UpdatedAt)
	return translateError(err)
}

// UpdatePickup persists status and notes only while the stored status is still
// expected.
func (t *postgresTx) UpdatePickup(ctx context.Context, pickup *PickupRequest, expected models.PickupStatus) error {
	query := `
		UPDATE pickup_requests
		SET status = $1, notes = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4
		RETURNING updated_at
	`
	err := t.q.QueryRow(ctx, query, string(pickup.Status), pickup.Notes, pickup.ID, string(expected)).Scan(&pickup.UpdatedAt)
	if err != nil {
		err = translateError(err)
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: expected %s", ErrInvalidStatusTransition, expected)
		}
		return err
	}
	return nil
}
