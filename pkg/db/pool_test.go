package db

import (
	"context"
	"testing"
)

const poolTestPrefix = "db:pool_test"

func TestNewPool_Rejects(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"empty", ""},
		{"foreign scheme", "invalid://not-a-valid-database-url"},
		{"garbage", "postgres://%zz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool, err := NewPool(context.Background(), tt.url)
			if err == nil {
				if pool != nil {
					pool.Close()
				}
				t.Fatalf("%s - expected error for %q", poolTestPrefix, tt.url)
			}
			if pool != nil {
				t.Errorf("%s - expected nil pool on error", poolTestPrefix)
			}
		})
	}
}

func TestRunMigrations_NothingToApply(t *testing.T) {
	if err := RunMigrations(context.Background(), nil, nil); err != nil {
		t.Errorf("%s - RunMigrations with no files returned %v", poolTestPrefix, err)
	}
}

// MigrationDown never touches the pool.
func TestMigrationDown_NoOp(t *testing.T) {
	if err := MigrationDown(context.Background(), nil, "migrations"); err != nil {
		t.Errorf("%s - MigrationDown returned %v, want nil", poolTestPrefix, err)
	}
}
