package history_test

import (
	"bytes"
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rudransh-shrivastava/peershare/internal/history"
	"github.com/sirupsen/logrus"
)

func setupTestDB(t *testing.T) *history.Store {
	t.Helper()
	store, err := history.Open(":memory:", nil)
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_RecordAndRecent(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		err := store.Record(ctx, history.Transfer{
			Role:      history.RoleServer,
			Direction: history.DirectionDownload,
			Peer:      "127.0.0.1:5001",
			Filename:  name,
			Bytes:     10,
			Status:    history.StatusOK,
		})
		if err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	recent, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recent))
	}
	if recent[0].Filename != "c.txt" || recent[1].Filename != "b.txt" {
		t.Errorf("expected newest first, got %q, %q", recent[0].Filename, recent[1].Filename)
	}
	if recent[0].CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
}

func TestStore_CountByStatus(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	_ = store.Record(ctx, history.Transfer{Filename: "ok.bin", Status: history.StatusOK})
	_ = store.Record(ctx, history.Transfer{Filename: "bad.bin", Status: history.StatusFailed, Error: "reset"})
	_ = store.Record(ctx, history.Transfer{Filename: "bad2.bin", Status: history.StatusFailed})

	n, err := store.CountByStatus(ctx, history.StatusFailed)
	if err != nil {
		t.Fatalf("CountByStatus failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 failed transfers, got %d", n)
	}
}

func TestStore_ConcurrentRecord(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.Record(ctx, history.Transfer{Status: history.StatusOK}); err != nil {
				t.Errorf("Record failed: %v", err)
			}
		}()
	}
	wg.Wait()

	n, err := store.CountByStatus(ctx, history.StatusOK)
	if err != nil {
		t.Fatalf("CountByStatus failed: %v", err)
	}
	if n != 20 {
		t.Errorf("expected 20 records, got %d", n)
	}
}

func TestStore_FileBackedWithLogger(t *testing.T) {
	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)

	path := filepath.Join(t.TempDir(), "history.sqlite3")
	store, err := history.Open(path, log)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := store.Record(context.Background(), history.Transfer{Filename: "x"}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := history.Open(path, log)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	recent, err := reopened.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != 1 || recent[0].Filename != "x" {
		t.Errorf("expected persisted record, got %+v", recent)
	}
}
