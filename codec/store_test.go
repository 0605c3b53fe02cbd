package codec

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestStore_SaveExportInsertsAndReturnsID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("unexpected sqlmock error: %v", err)
	}
	defer db.Close()

	store := NewStore(db)
	export := sampleExport()

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO crag_exports`)).
		WithArgs(export.CodecVersion, export.RegistryVersion, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	id, err := store.SaveExport(context.Background(), export)
	if err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}
	if id != 7 {
		t.Fatalf("expected id 7, got %d", id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStore_LoadExportRejectsIncompatibleVersion(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("unexpected sqlmock error: %v", err)
	}
	defer db.Close()

	store := NewStore(db)
	bad := sampleExport()
	bad.CodecVersion = CodecVersion + 1
	raw, _ := Serialize(bad)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT payload FROM crag_exports WHERE id = $1`)).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(raw))

	_, err = store.LoadExport(context.Background(), 1)
	if err == nil {
		t.Fatal("expected LoadExport to surface an IncompatibleVersion error")
	}
}
