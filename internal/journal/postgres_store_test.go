package journal

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestPostgresStoreLifecycle(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store, err := NewPostgresStore(ctx, dsn)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer store.Close()

	entry := Entry{
		Action:    "deposit",
		Account:   "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		Status:    StatusSucceeded,
		Message:   "Deposit successful!",
		TxHash:    "0xabc",
		CreatedAt: time.Now().UTC(),
	}
	if err := store.Append(ctx, entry); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := store.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 1 || got[0].TxHash != entry.TxHash {
		t.Fatalf("unexpected entries: %#v", got)
	}
}
