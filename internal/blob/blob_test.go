package blob

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()

	fsStore, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	sqliteStore, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite(:memory:): %v", err)
	}
	t.Cleanup(func() { sqliteStore.Close() })

	mr := miniredis.RunT(t)
	redisStore, err := NewRedisStore(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	t.Cleanup(func() { redisStore.Close() })

	return map[string]Store{
		"fs":     fsStore,
		"sqlite": sqliteStore,
		"redis":  redisStore,
	}
}

func TestStore_ReadWrite(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Write(ctx, "projects/p1/manifest.json", []byte(`{"title":"T"}`)); err != nil {
				t.Fatalf("Write: %v", err)
			}
			got, err := s.Read(ctx, "projects/p1/manifest.json")
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if string(got) != `{"title":"T"}` {
				t.Errorf("Read = %q", got)
			}

			if err := s.Write(ctx, "projects/p1/manifest.json", []byte(`{"title":"U"}`)); err != nil {
				t.Fatalf("overwrite: %v", err)
			}
			got, _ = s.Read(ctx, "projects/p1/manifest.json")
			if string(got) != `{"title":"U"}` {
				t.Errorf("Read after overwrite = %q", got)
			}
		})
	}
}

func TestStore_ConcurrentWritesSameKey(t *testing.T) {
	ctx := context.Background()
	a := bytes.Repeat([]byte("a"), 1<<20)
	b := bytes.Repeat([]byte("b"), 1<<20)

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for round := 0; round < 10; round++ {
				var wg sync.WaitGroup
				errs := make([]error, 2)
				for i, v := range [][]byte{a, b} {
					wg.Add(1)
					go func() {
						defer wg.Done()
						errs[i] = s.Write(ctx, "projects/p1/chat.json", v)
					}()
				}
				wg.Wait()
				for i, err := range errs {
					if err != nil {
						t.Fatalf("round %d writer %d: %v", round, i, err)
					}
				}

				got, err := s.Read(ctx, "projects/p1/chat.json")
				if err != nil {
					t.Fatalf("round %d Read: %v", round, err)
				}
				if !bytes.Equal(got, a) && !bytes.Equal(got, b) {
					t.Fatalf("round %d: read a mix of both writes (%d bytes)", round, len(got))
				}
			}

			keys, err := s.List(ctx, "projects/p1/")
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if !reflect.DeepEqual(keys, []string{"projects/p1/chat.json"}) {
				t.Errorf("List = %v, want only the written key", keys)
			}
		})
	}
}

func TestStore_NotFound(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Read(ctx, "projects/missing/chat.json")
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("Read missing err = %v, want ErrNotFound", err)
			}
			ok, err := s.Exists(ctx, "projects/missing/chat.json")
			if err != nil {
				t.Fatalf("Exists: %v", err)
			}
			if ok {
				t.Error("Exists = true for missing key")
			}
			if err := s.Delete(ctx, "projects/missing/chat.json"); err != nil {
				t.Errorf("Delete missing: %v", err)
			}
		})
	}
}

func TestStore_ListAndDeletePrefix(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			keys := []string{
				"projects/a/manifest.json",
				"projects/a/chapters/2.json",
				"projects/a/chapters/1.json",
				"projects/b/manifest.json",
			}
			for _, k := range keys {
				if err := s.Write(ctx, k, []byte("{}")); err != nil {
					t.Fatalf("Write %s: %v", k, err)
				}
			}

			got, err := s.List(ctx, "projects/a/")
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			want := []string{
				"projects/a/chapters/1.json",
				"projects/a/chapters/2.json",
				"projects/a/manifest.json",
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("List = %v, want %v", got, want)
			}

			if err := s.DeletePrefix(ctx, "projects/a/"); err != nil {
				t.Fatalf("DeletePrefix: %v", err)
			}
			got, _ = s.List(ctx, "projects/")
			if !reflect.DeepEqual(got, []string{"projects/b/manifest.json"}) {
				t.Errorf("List after DeletePrefix = %v", got)
			}
		})
	}
}

func TestStore_RejectsEscapingKeys(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Write(ctx, "../etc/passwd", []byte("x")); err == nil {
				t.Error("Write with .. segment succeeded, want error")
			}
			if _, err := s.Read(ctx, "/abs"); err == nil {
				t.Error("Read absolute key succeeded, want error")
			}
		})
	}
}

func TestSQLiteMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := OpenSQLite(dir)
	if err != nil {
		t.Fatalf("first OpenSQLite: %v", err)
	}
	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := OpenSQLite(dir)
	if err != nil {
		t.Fatalf("second OpenSQLite: %v", err)
	}
	defer s2.Close()
	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(v1) != len(v2) || len(v1) == 0 {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	if _, err := Open(context.Background(), Options{Backend: "tape"}); err == nil {
		t.Error("Open(tape) succeeded, want error")
	}
}

func TestGlobEscape(t *testing.T) {
	if got := globEscape("a*b?[c]"); got != `a\*b\?\[c\]` {
		t.Errorf("globEscape = %q", got)
	}
}
