package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/restitch/restitch/internal/models"
)

const applicationColumns = `
	id, user_id, portfolio_url, experience_years, specialization, why_designer, status,
	admin_notes, reviewed_by, reviewed_at, created_at`

func scanApplication(row pgx.Row) (*DesignerApplication, error) {
	var (
		app    DesignerApplication
		status string
	)
	err := row.Scan(
		&app.ID,
		&app.UserID,
		&app.PortfolioURL,
		&app.ExperienceYears,
		&app.Specialization,
		&app.Motivation,
		&status,
		&app.AdminNotes,
		&app.ReviewedBy,
		&app.ReviewedAt,
		&app.CreatedAt,
	)
	if err != nil {
		return nil, translateError(err)
	}
	app.Status = models.ApplicationStatus(status)
	return &app, nil
}

func (p pgQueries) GetApplication(ctx context.Context, id int64) (*DesignerApplication, error) {
	return scanApplication(p.q.QueryRow(ctx, `SELECT `+applicationColumns+` FROM designer_applications WHERE id = $1`, id))
}

func (p pgQueries) ListApplications(ctx context.Context, filter ApplicationFilter) ([]*DesignerApplication, int, error) {
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
	if err := p.q.QueryRow(ctx, `SELECT COUNT(*) FROM designer_applications`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	offset, size := pageBounds(filter.Page, filter.Limit)
	args = append(args, size, offset)
	query := fmt.Sprintf(`SELECT %s FROM designer_applications%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		applicationColumns, where, len(args)-1, len(args))

	rows, err := p.q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var apps []*DesignerApplication
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, 0, err
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return apps, total, nil
}

func (t *postgresTx) LockApplication(ctx context.Context, id int64) (*DesignerApplication, error) {
	return scanApplication(t.q.QueryRow(ctx, `SELECT `+applicationColumns+` FROM designer_applications WHERE id = $1 FOR UPDATE`, id))
}

// CreateApplication relies on the partial unique index over pending rows to
// reject a second open application.
func (t *postgresTx) CreateApplication(ctx context.Context, app *DesignerApplication) error {
	query := `
		INSERT INTO designer_applications (
			user_id, portfolio_url, experience_years, specialization, why_designer, status
		)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	err := t.q.QueryRow(ctx, query,
		app.UserID,
		app.PortfolioURL,
		app.ExperienceYears,
		app.Specialization,
		app.Motivation,
		string(app.Status),
	).Scan(&app.ID, &app.CreatedAt)
	return translateError(err)
}

func (t *postgresTx) UpdateApplication(ctx context.Context, app *DesignerApplication, expected models.ApplicationStatus) error {
	query := `
		UPDATE designer_applications
		SET status = $1, admin_notes = $2, reviewed_by = $3, reviewed_at = NOW()
		WHERE id = $4 AND status = $5
		RETURNING reviewed_at
	`
	err := t.q.QueryRow(ctx, query, string(app.Status), app.AdminNotes, app.ReviewedBy, app.ID, string(expected)).Scan(&app.ReviewedAt)
	if err != nil {
		err = translateError(err)
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: expected %s", ErrInvalidStatusTransition, expected)
		}
		return err
	}
	return nil
}

func (t *postgresTx) SetUserRole(ctx context.Context, userID int64, role models.Role) error {
	cmdTag, err := t.q.Exec(ctx, `UPDATE users SET role = $1 WHERE id = $2`, string(role), userID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
