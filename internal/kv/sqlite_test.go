package kv

import (
	"path/filepath"
	"testing"

	"github.com/dokzlo13/monitord/internal/db"
)

func TestSQLiteBucket(t *testing.T) {
	database, err := db.Open(filepath.Join(t.TempDir(), "kv.sqlite"))
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	defer database.Close()

	b := NewSQLiteBucket(database.DB, "service")
	other := NewSQLiteBucket(database.DB, "other")

	var running bool
	if ok, err := b.Load("running", &running); err != nil || ok {
		t.Fatalf("Load on empty bucket = %v, %v", ok, err)
	}

	if err := b.Store("running", true); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := b.Store("running", false); err != nil {
		t.Fatalf("Store overwrite: %v", err)
	}

	running = true
	ok, err := b.Load("running", &running)
	if err != nil || !ok {
		t.Fatalf("Load = %v, %v", ok, err)
	}
	if running {
		t.Errorf("running = %v, want false", running)
	}

	if ok, _ := other.Load("running", &running); ok {
		t.Error("buckets should not share keys")
	}
}
