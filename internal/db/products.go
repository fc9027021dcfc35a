package db

import (
	"context"
)

func (p pgQueries) GetProduct(ctx context.Context, id int64) (*Product, error) {
	var (
		product Product
		images  []byte
		tags    []byte
	)
	err := p.q.QueryRow(ctx, `
		SELECT id, title, slug, description, images, price_cents, stock, designer_id, tags,
			is_featured, source_order_id, created_at
		FROM products WHERE id = $1
	`, id).Scan(
		&product.ID,
		&product.Title,
		&product.Slug,
		&product.Description,
		&images,
		&product.PriceCents,
		&product.Stock,
		&product.DesignerID,
		&tags,
		&product.IsFeatured,
		&product.SourceOrderID,
		&product.CreatedAt,
	)
	if err != nil {
		return nil, translateError(err)
	}
	if product.Images, err = unmarshalList(images); err != nil {
		return nil, err
	}
	if product.Tags, err = unmarshalList(tags); err != nil {
		return nil, err
	}
	return &product, nil
}

func (t *postgresTx) CreateProduct(ctx context.Context, product *Product) error {
	images, err := marshalList(product.Images)
	if err != nil {
		return err
	}
	tags, err := marshalList(product.Tags)
	if err != nil {
		return err
	}

	err = t.q.QueryRow(ctx, `
		INSERT INTO products (
			title, slug, description, images, price_cents, stock, designer_id, tags,
			is_featured, source_order_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at
	`,
		product.Title,
		product.Slug,
		product.Description,
		images,
		product.PriceCents,
		product.Stock,
		product.DesignerID,
		tags,
		product.IsFeatured,
		product.SourceOrderID,
	).Scan(&product.ID, &product.CreatedAt)
	return translateError(err)
}
