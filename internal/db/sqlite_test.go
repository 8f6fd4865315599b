package db

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pysugar/aoai-nexus/internal/db/models"
)

func TestOpenCreatesDirectoryAndMigrates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "usage.db")

	database, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected database file at %s: %v", path, err)
	}
	if !database.Migrator().HasTable(&models.UsageRecord{}) {
		t.Fatalf("usage_records table was not migrated")
	}

	rec := models.UsageRecord{ID: "r1", Timestamp: 1, Model: "gpt-4o", Kind: models.KindUsage, TotalTokens: 9}
	if err := database.Create(&rec).Error; err != nil {
		t.Fatalf("create record: %v", err)
	}
	var got models.UsageRecord
	if err := database.First(&got, "id = ?", "r1").Error; err != nil {
		t.Fatalf("read record: %v", err)
	}
	if got.TotalTokens != 9 || got.Kind != models.KindUsage {
		t.Fatalf("unexpected record %+v", got)
	}
}

func TestOpenInMemory(t *testing.T) {
	database, err := Open("file::memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory db: %v", err)
	}
	if !database.Migrator().HasTable(&models.UsageRecord{}) {
		t.Fatalf("usage_records table was not migrated")
	}
}
