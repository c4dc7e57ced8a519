package archive

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"thermochart/internal/reading"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(context.Background(), ":memory:", nil)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		if closeErr := Close(db); closeErr != nil {
			t.Fatalf("close db: %v", closeErr)
		}
	})
	return db
}

var base = time.Date(2023, 1, 1, 9, 0, 0, 0, time.Local)

func sampleReadings() []reading.Reading {
	return []reading.Reading{
		{Time: base, Desired: 21, Actual: 20, On: true},
		{Time: base.Add(time.Hour), Desired: 22, Actual: 21, On: false},
		{Time: base.Add(2 * time.Hour), Desired: 22, Actual: 21.5, On: true},
	}
}

func TestUpsert_InsertsAndIsIdempotent(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()

	n, err := repo.Upsert(ctx, sampleReadings())
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if n != 3 {
		t.Errorf("Upsert changed = %d, want 3", n)
	}

	n, err = repo.Upsert(ctx, sampleReadings())
	if err != nil {
		t.Fatalf("second Upsert: %v", err)
	}
	if n != 0 {
		t.Errorf("second Upsert changed = %d, want 0", n)
	}

	count, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 3 {
		t.Errorf("Count = %d, want 3", count)
	}
}

func TestUpsert_UpdatesChangedValues(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()

	if _, err := repo.Upsert(ctx, sampleReadings()); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	n, err := repo.Upsert(ctx, []reading.Reading{{Time: base, Desired: 23, Actual: 20, On: false}})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if n != 1 {
		t.Errorf("Upsert changed = %d, want 1", n)
	}

	got, err := repo.Readings(ctx, base, base, 10)
	if err != nil {
		t.Fatalf("Readings: %v", err)
	}
	if len(got) != 1 || got[0].Desired != 23 || got[0].On {
		t.Errorf("Readings = %+v, want updated reading", got)
	}
}

func TestReadings_RangeAndOrder(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()

	in := sampleReadings()
	// Insert out of order; results come back oldest first.
	if _, err := repo.Upsert(ctx, []reading.Reading{in[2], in[0], in[1]}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	t.Run("open range", func(t *testing.T) {
		got, err := repo.Readings(ctx, time.Time{}, time.Time{}, 100)
		if err != nil {
			t.Fatalf("Readings: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("Readings = %d rows, want 3", len(got))
		}
		for i := range got {
			if !got[i].Time.Equal(in[i].Time) {
				t.Errorf("row %d time = %v, want %v", i, got[i].Time, in[i].Time)
			}
			if got[i].Desired != in[i].Desired || got[i].Actual != in[i].Actual || got[i].On != in[i].On {
				t.Errorf("row %d = %+v, want %+v", i, got[i], in[i])
			}
		}
	})

	t.Run("bounded", func(t *testing.T) {
		got, err := repo.Readings(ctx, base.Add(30*time.Minute), base.Add(2*time.Hour), 100)
		if err != nil {
			t.Fatalf("Readings: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("Readings = %d rows, want 2", len(got))
		}
		if !got[0].Time.Equal(in[1].Time) {
			t.Errorf("first row time = %v, want %v", got[0].Time, in[1].Time)
		}
	})

	t.Run("limit", func(t *testing.T) {
		got, err := repo.Readings(ctx, time.Time{}, time.Time{}, 1)
		if err != nil {
			t.Fatalf("Readings: %v", err)
		}
		if len(got) != 1 || !got[0].Time.Equal(in[0].Time) {
			t.Errorf("Readings(limit 1) = %+v, want oldest reading", got)
		}
	})
}

func TestLatest(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()

	_, ok, err := repo.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest(empty): %v", err)
	}
	if ok {
		t.Fatal("Latest(empty) ok = true, want false")
	}

	if _, err := repo.Upsert(ctx, sampleReadings()); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	got, ok, err := repo.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if !ok || !got.Time.Equal(base.Add(2*time.Hour)) || got.Actual != 21.5 {
		t.Errorf("Latest = %+v (ok=%v), want newest reading", got, ok)
	}
}

func TestRecordRun(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)

	err := repo.RecordRun(context.Background(), Run{
		StartedAt: base,
		Duration:  1500 * time.Millisecond,
		Copied:    2,
		Rows:      3,
		ChartPath: "exports/home_temp.html",
	})
	if err != nil {
		t.Fatalf("RecordRun: %v", err)
	}

	var ms, copied, rows int
	if err := db.QueryRow(`SELECT duration_ms, copied, rows FROM runs`).Scan(&ms, &copied, &rows); err != nil {
		t.Fatalf("select run: %v", err)
	}
	if ms != 1500 || copied != 2 || rows != 3 {
		t.Errorf("run = (%d, %d, %d), want (1500, 2, 3)", ms, copied, rows)
	}
}

func TestBuildDSN(t *testing.T) {
	t.Run("plain path creates dir", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "archive.db")
		dsn, err := buildDSN(path)
		if err != nil {
			t.Fatalf("buildDSN: %v", err)
		}
		if !strings.HasPrefix(dsn, "file:"+path+"?") {
			t.Errorf("dsn = %q, want file: prefix with params", dsn)
		}
		if !strings.Contains(dsn, "_journal_mode=WAL") {
			t.Errorf("dsn = %q, want WAL param", dsn)
		}
	})

	t.Run("file dsn with params", func(t *testing.T) {
		dsn, err := buildDSN("file:x.db?cache=shared")
		if err != nil {
			t.Fatalf("buildDSN: %v", err)
		}
		if !strings.HasPrefix(dsn, "file:x.db?cache=shared&_foreign_keys=on") {
			t.Errorf("dsn = %q", dsn)
		}
	})

	t.Run("empty", func(t *testing.T) {
		if _, err := buildDSN(""); err == nil {
			t.Fatal("buildDSN(\"\") error = nil, want non-nil")
		}
	})
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")
	ctx := context.Background()

	db, err := Open(ctx, path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := NewRepository(db).Upsert(ctx, sampleReadings()); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := Close(db); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopening runs migrations again without touching data.
	db, err = Open(ctx, path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = Close(db) }()
	n, err := NewRepository(db).Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 3 {
		t.Errorf("Count after reopen = %d, want 3", n)
	}
}
