package sequence

import (
	"context"
	"sync"
	"testing"

	"github.com/yazid-hub/GMOA/internal/db"
	"gorm.io/gorm"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

func TestDBCounter_Increments(t *testing.T) {
	ctx := context.Background()
	c := NewDBCounter(testDB(t))

	for want := int64(1); want <= 3; want++ {
		got, err := c.Next(ctx, nil, "repair:2025")
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if got != want {
			t.Errorf("Next() = %d, want %d", got, want)
		}
	}
	got, _ := c.Next(ctx, nil, "repair:2026")
	if got != 1 {
		t.Errorf("new year counter = %d, want 1", got)
	}
}

func TestDBCounter_RollbackReleasesValue(t *testing.T) {
	ctx := context.Background()
	gdb := testDB(t)
	c := NewDBCounter(gdb)

	gdb.Transaction(func(tx *gorm.DB) error {
		if _, err := c.Next(ctx, tx, "k"); err != nil {
			t.Fatalf("Next in tx: %v", err)
		}
		return gorm.ErrInvalidTransaction
	})
	got, err := c.Next(ctx, nil, "k")
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if got != 1 {
		t.Errorf("after rollback Next() = %d, want 1", got)
	}
}

func TestDBCounter_AtLeast(t *testing.T) {
	ctx := context.Background()
	c := NewDBCounter(testDB(t))

	tests := []struct {
		name  string
		floor int64
		want  int64
	}{
		{"creates the counter", 4, 5},
		{"raises a lower counter", 9, 10},
		{"never lowers", 2, 11},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.AtLeast(ctx, "repair:2025", tt.floor); err != nil {
				t.Fatalf("AtLeast: %v", err)
			}
			got, err := c.Next(ctx, nil, "repair:2025")
			if err != nil {
				t.Fatalf("Next: %v", err)
			}
			if got != tt.want {
				t.Errorf("Next() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDBCounter_ConcurrentDistinct(t *testing.T) {
	ctx := context.Background()
	c := NewDBCounter(testDB(t))

	const n = 20
	var wg sync.WaitGroup
	values := make(chan int64, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.Next(ctx, nil, "repair:2025")
			if err != nil {
				errs <- err
				return
			}
			values <- v
		}()
	}
	wg.Wait()
	close(values)
	close(errs)
	for err := range errs {
		t.Fatalf("Next: %v", err)
	}
	seen := make(map[int64]bool)
	for v := range values {
		if seen[v] {
			t.Errorf("duplicate value %d", v)
		}
		seen[v] = true
	}
	for i := int64(1); i <= n; i++ {
		if !seen[i] {
			t.Errorf("missing value %d", i)
		}
	}
}

func TestYearKey(t *testing.T) {
	if got := YearKey("repair", 2025); got != "repair:2025" {
		t.Errorf("YearKey() = %q", got)
	}
}
