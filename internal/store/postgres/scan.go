package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/Cellular-Imaging-Amsterdam-UMC/omero-adi/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanEvent scans a single row into a model.Event.
// The row must contain columns in the order defined by eventColumns.
func scanEvent(row scannable) (*model.Event, error) {
	var e model.Event
	var (
		files         pq.StringArray
		fileNames     pq.StringArray
		preprocessing []byte
		errMsg        sql.NullString
	)

	err := row.Scan(
		&e.ID,
		&e.Group,
		&e.GroupID,
		&e.Username,
		&e.DestinationID,
		&e.Stage,
		&e.UUID,
		&e.CreatedAt,
		&files,
		&fileNames,
		&preprocessing,
		&errMsg,
	)
	if err != nil {
		return nil, err
	}

	e.Files = []string(files)
	e.FileNames = []string(fileNames)
	e.Error = errMsg.String

	if len(preprocessing) > 0 {
		var p model.Preprocessing
		if err := json.Unmarshal(preprocessing, &p); err != nil {
			return nil, fmt.Errorf("unmarshal preprocessing: %w", err)
		}
		e.Preprocessing = &p
	}

	return &e, nil
}

// scanEvents scans multiple rows into a slice of model.Event pointers.
func scanEvents(rows *sql.Rows) ([]*model.Event, error) {
	var events []*model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// nullString converts a string to sql.NullString; empty string is null.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
