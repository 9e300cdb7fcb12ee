package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/Cellular-Imaging-Amsterdam-UMC/omero-adi/internal/model"
)

// eventColumns is the column list used for SELECT statements on the imports table.
const eventColumns = `id, group_name, group_id, username, destination_id,
	stage, uuid, created_at, files, file_names, preprocessing, error`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryAppendEvent(ctx context.Context, db executor, e *model.Event) error {
	prep, err := preprocessingJSON(e.Preprocessing)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return db.QueryRowContext(ctx, `
		INSERT INTO imports (
			group_name, group_id, username, destination_id,
			stage, uuid, files, file_names, preprocessing, error
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9, $10
		)
		RETURNING id, created_at`,
		e.Group,
		e.GroupID,
		e.Username,
		e.DestinationID,
		string(e.Stage),
		e.UUID,
		pq.Array(e.Files),
		pq.Array(e.FileNames),
		prep,
		nullString(e.Error),
	).Scan(&e.ID, &e.CreatedAt)
}

func queryListByStage(ctx context.Context, db executor, stage model.Stage, afterID int64) ([]*model.Event, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM imports
		WHERE stage = $1 AND id > $2
		ORDER BY id ASC`,
		string(stage), afterID,
	)
	if err != nil {
		return nil, fmt.Errorf("list by stage: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// queryUnresolved finds, per correlation UUID, the latest event at the given
// stage older than the cutoff for orders that never reached a terminal stage.
// Multiple terminal events per UUID are tolerated on read: any one resolves
// the order.
func queryUnresolved(ctx context.Context, db executor, stage model.Stage, cutoff time.Time) ([]*model.Event, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT DISTINCT ON (uuid) `+eventColumns+`
		FROM imports e
		WHERE e.stage = $1
		  AND e.created_at <= $2
		  AND NOT EXISTS (
			SELECT 1 FROM imports t
			WHERE t.uuid = e.uuid AND t.stage IN ('imported', 'failed')
		  )
		ORDER BY uuid, id DESC`,
		string(stage), cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("unresolved: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func queryMaxID(ctx context.Context, db executor) (int64, error) {
	var max int64
	err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM imports`).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("max id: %w", err)
	}
	return max, nil
}

func queryHistory(ctx context.Context, db executor, uuid string) ([]*model.Event, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM imports
		WHERE uuid = $1
		ORDER BY created_at ASC, id ASC`,
		uuid,
	)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func queryListByUser(ctx context.Context, db executor, username string) ([]*model.Event, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM imports
		WHERE username = $1
		ORDER BY created_at DESC, id DESC`,
		username,
	)
	if err != nil {
		return nil, fmt.Errorf("list by user: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func queryListAll(ctx context.Context, db executor, afterID int64) ([]*model.Event, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM imports
		WHERE id > $1
		ORDER BY id ASC`,
		afterID,
	)
	if err != nil {
		return nil, fmt.Errorf("list all: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// preprocessingJSON marshals the optional preprocessing sub-record for the
// JSONB column; nil stays NULL.
func preprocessingJSON(p *model.Preprocessing) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal preprocessing: %w", err)
	}
	return b, nil
}
