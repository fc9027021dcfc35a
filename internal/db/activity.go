package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/restitch/restitch/internal/models"
)

func (p pgQueries) ListActivity(ctx context.Context, subjectType models.SubjectType, subjectID int64) ([]*ActivityLog, error) {
	rows, err := p.q.Query(ctx, `
		SELECT id, subject_type, subject_id, action, metadata, user_id, created_at
		FROM activity_logs
		WHERE subject_type = $1 AND subject_id = $2
		ORDER BY id
	`, string(subjectType), subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*ActivityLog
	for rows.Next() {
		var (
			entry    ActivityLog
			subject  string
			metadata []byte
		)
		if err := rows.Scan(&entry.ID, &subject, &entry.SubjectID, &entry.Action, &metadata, &entry.UserID, &entry.Timestamp); err != nil {
			return nil, err
		}
		entry.SubjectType = models.SubjectType(subject)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode activity metadata: %w", err)
			}
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

func (t *postgresTx) AppendActivity(ctx context.Context, entry *ActivityLog) error {
	metadata := entry.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	payload, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to encode activity metadata: %w", err)
	}

	err = t.q.QueryRow(ctx, `
		INSERT INTO activity_logs (subject_type, subject_id, action, metadata, user_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, string(entry.SubjectType), entry.SubjectID, entry.Action, payload, entry.UserID).Scan(&entry.ID, &entry.Timestamp)
	return translateError(err)
}
