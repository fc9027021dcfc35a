package db

import (
	"context"
	"fmt"

	"github.com/restitch/restitch/internal/models"
)

func (p pgQueries) GetUser(ctx context.Context, id int64) (*User, error) {
	var (
		user User
		role string
	)
	err := p.q.QueryRow(ctx, `
		SELECT id, email, name, phone, role, points, created_at
		FROM users WHERE id = $1
	`, id).Scan(&user.ID, &user.Email, &user.Name, &user.Phone, &role, &user.Points, &user.CreatedAt)
	if err != nil {
		return nil, translateError(err)
	}
	user.Role = models.Role(role)
	return &user, nil
}

func (t *postgresTx) CreateUser(ctx context.Context, user *User) error {
	err := t.q.QueryRow(ctx, `
		INSERT INTO users (email, name, phone, role, points)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, user.Email, user.Name, user.Phone, string(user.Role), user.Points).Scan(&user.ID, &user.CreatedAt)
	return translateError(err)
}

func (t *postgresTx) CreditPoints(ctx context.Context, userID int64, amount int) error {
	if amount <= 0 {
		return fmt.Errorf("credit amount must be positive: %d", amount)
	}
	cmdTag, err := t.q.Exec(ctx, `UPDATE users SET points = points + $1 WHERE id = $2`, amount, userID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DebitPoints never lets a balance go negative.
func (t *postgresTx) DebitPoints(ctx context.Context, userID int64, amount int) error {
	if amount <= 0 {
		return fmt.Errorf("debit amount must be positive: %d", amount)
	}
	cmdTag, err := t.q.Exec(ctx, `UPDATE users SET points = points - $1 WHERE id = $2 AND points >= $1`, amount, userID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		if _, err := t.GetUser(ctx, userID); err != nil {
			return err
		}
		return fmt.Errorf("%w: need %d", ErrInsufficientPoints, amount)
	}
	return nil
}
