package database

import (
	"context"
	"errors"
	"testing"

	"github.com/nao1215/scanpipe/internal/config"
)

func TestOpenStore(t *testing.T) {
	t.Parallel()

	t.Run("sqlite", func(t *testing.T) {
		t.Parallel()

		store, err := OpenStore(context.Background(), config.DatabaseConfig{
			Driver: config.DriverSQLite,
			Dir:    t.TempDir(),
		})
		if err != nil {
			t.Fatalf("OpenStore() error = %v", err)
		}
		defer store.Close()

		if _, ok := store.(*StatusDB); !ok {
			t.Errorf("OpenStore() returned %T, want *StatusDB", store)
		}
	})

	t.Run("memory", func(t *testing.T) {
		t.Parallel()

		store, err := OpenStore(context.Background(), config.DatabaseConfig{Driver: config.DriverMemory})
		if err != nil {
			t.Fatalf("OpenStore() error = %v", err)
		}
		if _, ok := store.(*MemoryDB); !ok {
			t.Errorf("OpenStore() returned %T, want *MemoryDB", store)
		}
	})

	t.Run("unknown driver", func(t *testing.T) {
		t.Parallel()

		_, err := OpenStore(context.Background(), config.DatabaseConfig{Driver: "oracle"})
		if !errors.Is(err, config.ErrUnsupportedDriver) {
			t.Errorf("OpenStore() error = %v, want ErrUnsupportedDriver", err)
		}
	})
}
