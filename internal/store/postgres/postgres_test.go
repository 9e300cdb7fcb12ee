package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Cellular-Imaging-Amsterdam-UMC/omero-adi/internal/model"
)

// newMockDB creates a sqlmock database with automatic cleanup and expectation checking.
func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

// eventRowColumns is the column list for scanEvent results.
var eventRowColumns = []string{
	"id", "group_name", "group_id", "username", "destination_id",
	"stage", "uuid", "created_at", "files", "file_names", "preprocessing", "error",
}

// addEventRow adds a minimal event row to a sqlmock.Rows.
func addEventRow(rows *sqlmock.Rows, id int64, stage, uuid string, now time.Time) *sqlmock.Rows {
	return rows.AddRow(
		id, "lab-a", 7, "alice", "Dataset:5",
		stage, uuid, now, "{/data/a.tiff}", "{a.tiff}", nil, nil,
	)
}

func TestAppendEvent(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now()

	mock.ExpectQuery("INSERT INTO imports").
		WithArgs("lab-a", int64(7), "alice", "Dataset:5", "submitted", "imp-x1",
			sqlmock.AnyArg(), sqlmock.AnyArg(), []byte(nil), sql.NullString{}).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(42), now))

	ev := &model.Event{
		Group:         "lab-a",
		GroupID:       7,
		Username:      "alice",
		DestinationID: "Dataset:5",
		Stage:         model.StageSubmitted,
		UUID:          "imp-x1",
		Files:         []string{"/data/a.tiff"},
		FileNames:     []string{"a.tiff"},
	}
	if err := queryAppendEvent(context.Background(), db, ev); err != nil {
		t.Fatalf("queryAppendEvent: %v", err)
	}
	if ev.ID != 42 {
		t.Errorf("id = %d, want 42", ev.ID)
	}
	if !ev.CreatedAt.Equal(now) {
		t.Errorf("created_at = %v", ev.CreatedAt)
	}
}

func TestAppendEvent_WithPreprocessingAndError(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now()

	mock.ExpectQuery("INSERT INTO imports").
		WithArgs("lab-a", int64(7), "alice", "Dataset:5", "failed", "imp-x2",
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sql.NullString{String: "2 of 2 files failed", Valid: true}).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(43), now))

	ev := &model.Event{
		Group:         "lab-a",
		GroupID:       7,
		Username:      "alice",
		DestinationID: "Dataset:5",
		Stage:         model.StageFailed,
		UUID:          "imp-x2",
		Files:         []string{"/data/a.tiff", "/data/b.tiff"},
		Preprocessing: &model.Preprocessing{
			Container:    "convert:latest",
			InputFile:    "{file}",
			OutputFolder: "/tmp/out",
		},
		Error: "2 of 2 files failed",
	}
	if err := queryAppendEvent(context.Background(), db, ev); err != nil {
		t.Fatalf("queryAppendEvent: %v", err)
	}
}

func TestListByStage(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now()

	rows := sqlmock.NewRows(eventRowColumns)
	addEventRow(rows, 5, "submitted", "imp-a", now)
	addEventRow(rows, 8, "submitted", "imp-b", now)

	mock.ExpectQuery("SELECT (.+) FROM imports\\s+WHERE stage = \\$1 AND id > \\$2").
		WithArgs("submitted", int64(3)).
		WillReturnRows(rows)

	events, err := queryListByStage(context.Background(), db, model.StageSubmitted, 3)
	if err != nil {
		t.Fatalf("queryListByStage: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].ID != 5 || events[1].ID != 8 {
		t.Errorf("ids = %d, %d", events[0].ID, events[1].ID)
	}
	if events[0].Files[0] != "/data/a.tiff" {
		t.Errorf("files = %v", events[0].Files)
	}
}

func TestUnresolved(t *testing.T) {
	db, mock := newMockDB(t)
	cutoff := time.Now().Add(-24 * time.Hour)

	rows := sqlmock.NewRows(eventRowColumns)
	addEventRow(rows, 2, "submitted", "imp-old", cutoff.Add(-time.Hour))

	mock.ExpectQuery("SELECT DISTINCT ON \\(uuid\\) (.+) NOT EXISTS").
		WithArgs("submitted", sqlmock.AnyArg()).
		WillReturnRows(rows)

	events, err := queryUnresolved(context.Background(), db, model.StageSubmitted, cutoff)
	if err != nil {
		t.Fatalf("queryUnresolved: %v", err)
	}
	if len(events) != 1 || events[0].UUID != "imp-old" {
		t.Errorf("events = %+v", events)
	}
}

func TestMaxID(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("SELECT COALESCE\\(MAX\\(id\\), 0\\) FROM imports").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(int64(99)))

	max, err := queryMaxID(context.Background(), db)
	if err != nil {
		t.Fatalf("queryMaxID: %v", err)
	}
	if max != 99 {
		t.Errorf("max = %d, want 99", max)
	}
}

func TestMaxID_EmptyTable(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("SELECT COALESCE\\(MAX\\(id\\), 0\\) FROM imports").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(int64(0)))

	max, err := queryMaxID(context.Background(), db)
	if err != nil {
		t.Fatalf("queryMaxID: %v", err)
	}
	if max != 0 {
		t.Errorf("max = %d, want 0", max)
	}
}

func TestHistory(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now()

	rows := sqlmock.NewRows(eventRowColumns)
	addEventRow(rows, 1, "submitted", "imp-a", now)
	addEventRow(rows, 2, "started", "imp-a", now)
	addEventRow(rows, 3, "imported", "imp-a", now)

	mock.ExpectQuery("SELECT (.+) FROM imports\\s+WHERE uuid = \\$1").
		WithArgs("imp-a").
		WillReturnRows(rows)

	events, err := queryHistory(context.Background(), db, "imp-a")
	if err != nil {
		t.Fatalf("queryHistory: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if events[2].Stage != model.StageImported {
		t.Errorf("last stage = %s", events[2].Stage)
	}
}

func TestScanEvent_PreprocessingRoundTrip(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now()

	prep := []byte(`{"container":"convert:latest","inputfile":"{file}","outputfolder":"/tmp/out","kwargs":{"z":"max"}}`)
	rows := sqlmock.NewRows(eventRowColumns).AddRow(
		int64(7), "lab-a", int64(7), "alice", "Dataset:5",
		"preprocessing", "imp-p", now, "{/data/a.tiff}", "{a.tiff}", prep, "boom",
	)

	mock.ExpectQuery("SELECT (.+) FROM imports\\s+WHERE uuid = \\$1").
		WithArgs("imp-p").
		WillReturnRows(rows)

	events, err := queryHistory(context.Background(), db, "imp-p")
	if err != nil {
		t.Fatalf("queryHistory: %v", err)
	}
	ev := events[0]
	if ev.Preprocessing == nil || ev.Preprocessing.Container != "convert:latest" {
		t.Fatalf("preprocessing = %+v", ev.Preprocessing)
	}
	if ev.Preprocessing.Kwargs["z"] != "max" {
		t.Errorf("kwargs = %v", ev.Preprocessing.Kwargs)
	}
	if ev.Error != "boom" {
		t.Errorf("error = %q", ev.Error)
	}
}

func TestNullString(t *testing.T) {
	if nullString("").Valid {
		t.Error("nullString(\"\") should be invalid")
	}
	if ns := nullString("x"); !ns.Valid || ns.String != "x" {
		t.Errorf("nullString(\"x\") = %v", ns)
	}
}

func TestPreprocessingJSON_NilStaysNull(t *testing.T) {
	b, err := preprocessingJSON(nil)
	if err != nil {
		t.Fatalf("preprocessingJSON: %v", err)
	}
	if b != nil {
		t.Errorf("expected nil, got %q", b)
	}
}
