package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/restitch/restitch/internal/models"
)

const orderColumns = `
	id, user_id, pickup_id, designer_id, service_type, review_stage, fulfillment_stage,
	fabric_type, notes, estimated_days, images_before, images_after, video_url,
	COALESCE(barcode, ''), points_awarded, expected_price_cents, version, created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		order        Order
		serviceType  string
		reviewStage  string
		fulfillment  string
		imagesBefore []byte
		imagesAfter  []byte
	)
	err := row.Scan(
		&order.ID,
		&order.UserID,
		&order.PickupID,
		&order.DesignerID,
		&serviceType,
		&reviewStage,
		&fulfillment,
		&order.FabricType,
		&order.Notes,
		&order.EstimatedDays,
		&imagesBefore,
		&imagesAfter,
		&order.VideoURL,
		&order.Barcode,
		&order.PointsAwarded,
		&order.ExpectedPriceCents,
		&order.Version,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, translateError(err)
	}
	order.ServiceType = models.ServiceType(serviceType)
	order.ReviewStage = models.ReviewStage(reviewStage)
	order.FulfillmentStage = models.FulfillmentStage(fulfillment)
	if order.ImagesBefore, err = unmarshalList(imagesBefore); err != nil {
		return nil, err
	}
	if order.ImagesAfter, err = unmarshalList(imagesAfter); err != nil {
		return nil, err
	}
	return &order, nil
}

func (p pgQueries) GetOrder(ctx context.Context, id int64) (*Order, error) {
	return scanOrder(p.q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
}

func (p pgQueries) GetOrderByBarcode(ctx context.Context, barcode string) (*Order, error) {
	return scanOrder(p.q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE barcode = $1`, barcode))
}

func (p pgQueries) ListOrders(ctx context.Context, filter OrderFilter) ([]*Order, int, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.UserID > 0 {
		args = append(args, filter.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.DesignerID > 0 {
		args = append(args, filter.DesignerID)
		conditions = append(conditions, fmt.Sprintf("designer_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("(review_stage = $%d OR fulfillment_stage = $%d)", len(args), len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := p.q.QueryRow(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	offset, size := pageBounds(filter.Page, filter.Limit)
	args = append(args, size, offset)
	query := fmt.Sprintf(`SELECT %s FROM orders%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		orderColumns, where, len(args)-1, len(args))

	rows, err := p.q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var orders []*Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (t *postgresTx) LockOrder(ctx context.Context, id int64) (*Order, error) {
	return scanOrder(t.q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
}

func (t *postgresTx) CreateOrder(ctx context.Context, order *Order) error {
	imagesBefore, err := marshalList(order.ImagesBefore)
	if err != nil {
		return err
	}
	imagesAfter, err := marshalList(order.ImagesAfter)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO orders (
			user_id, pickup_id, designer_id, service_type, review_stage, fulfillment_stage,
			fabric_type, notes, estimated_days, images_before, images_after, video_url,
			barcode, points_awarded, expected_price_cents
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NULLIF($13, ''), $14, $15)
		RETURNING id, version, created_at, updated_at
	`
	err = t.q.QueryRow(ctx, query,
		order.UserID,
		order.PickupID,
		order.DesignerID,
		string(order.ServiceType),
		string(order.ReviewStage),
		string(order.FulfillmentStage),
		order.FabricType,
		order.Notes,
		order.EstimatedDays,
		imagesBefore,
		imagesAfter,
		order.VideoURL,
		order.Barcode,
		order.PointsAwarded,
		order.ExpectedPriceCents,
	).Scan(&order.ID, &order.Version, &order.CreatedAt, &order.UpdatedAt)
	return translateError(err)
}

// UpdateOrder writes every mutable column when the stored version still
// matches order.Version, then bumps the version.
func (t *postgresTx) UpdateOrder(ctx context.Context, order *Order) error {
	imagesBefore, err := marshalList(order.ImagesBefore)
	if err != nil {
		return err
	}
	imagesAfter, err := marshalList(order.ImagesAfter)
	if err != nil {
		return err
	}

	query := `
		UPDATE orders
		SET designer_id = $1, review_stage = $2, fulfillment_stage = $3, fabric_type = $4,
			notes = $5, estimated_days = $6, images_before = $7, images_after = $8,
			video_url = $9, barcode = COALESCE(barcode, NULLIF($10, '')), points_awarded = $11,
			expected_price_cents = $12, version = version + 1, updated_at = NOW()
		WHERE id = $13 AND version = $14
		RETURNING version, updated_at
	`
	err = t.q.QueryRow(ctx, query,
		order.DesignerID,
		string(order.ReviewStage),
		string(order.FulfillmentStage),
		order.FabricType,
		order.Notes,
		order.EstimatedDays,
		imagesBefore,
		imagesAfter,
		order.VideoURL,
		order.Barcode,
		order.PointsAwarded,
		order.ExpectedPriceCents,
		order.ID,
		order.Version,
	).Scan(&order.Version, &order.UpdatedAt)
	if err != nil {
		err = translateError(err)
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: order %d expected version %d", ErrStaleWrite, order.ID, order.Version)
		}
		return err
	}
	return nil
}
