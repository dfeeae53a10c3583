package postgres

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/srctrace/srctrace"
	"github.com/srctrace/srctrace/internal/chksum"
)

// testStore connects to the database named by DATABASE_URL, running
// migrations as needed. Tests needing a database skip when the
// variable is unset.
func testStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("set DATABASE_URL to run database tests")
	}
	s, err := New(context.Background(), dsn, opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func randDigest(t *testing.T, algo string) srctrace.Digest {
	t.Helper()
	size := 32
	if algo != srctrace.SHA256 {
		size = 64
	}
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		t.Fatal(err)
	}
	return srctrace.NewDigest(algo, b)
}

func listing(paths ...string) []srctrace.FileEntry {
	out := make([]srctrace.FileEntry, 0, len(paths))
	for _, p := range paths {
		out = append(out, srctrace.FileEntry{Path: p})
	}
	return out
}

func mustPut(t *testing.T, s *Store, files []srctrace.FileEntry) srctrace.Digest {
	t.Helper()
	d := randDigest(t, srctrace.SHA256)
	if err := s.PutArtifact(context.Background(), d, files); err != nil {
		t.Fatal(err)
	}
	return d
}

func TestPutArtifactIdempotent(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	d := randDigest(t, srctrace.SHA256)
	orig := listing("zlib-1.3/Makefile", "zlib-1.3/inflate.c")
	if err := s.PutArtifact(ctx, d, orig); err != nil {
		t.Fatal(err)
	}
	// A re-put must not touch the stored listing, even a different one.
	if err := s.PutArtifact(ctx, d, listing("zlib-1.3/other.c")); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetArtifact(ctx, d)
	if err != nil {
		t.Fatal(err)
	}
	if !cmp.Equal(got.Files, orig) {
		t.Error(cmp.Diff(got.Files, orig))
	}

	var n int
	err = s.Pool().QueryRow(ctx, `SELECT count(*) FROM artifacts WHERE chksum = $1`, d.String()).Scan(&n)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("got %d rows, want 1", n)
	}
}

func TestMergeForest(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	shared := listing("pkg-1.0/configure", "pkg-1.0/main.c")
	canonical := mustPut(t, s, shared)
	recompressed := mustPut(t, s, shared)
	if err := s.Merge(ctx, recompressed, canonical, "recompression"); err != nil {
		t.Fatal(err)
	}

	t.Run("ResolveFollowsAlias", func(t *testing.T) {
		// The source has both its own artifact row and an outgoing
		// alias; the redirect must win.
		got, err := s.ResolveArtifact(ctx, recompressed)
		if err != nil {
			t.Fatal(err)
		}
		if !got.Chksum.Equal(canonical) {
			t.Errorf("resolved to %v, want %v", got.Chksum, canonical)
		}
		direct, err := s.GetArtifact(ctx, canonical)
		if err != nil {
			t.Fatal(err)
		}
		if !cmp.Equal(got.Files, direct.Files) {
			t.Error(cmp.Diff(got.Files, direct.Files))
		}
	})

	t.Run("ChainRejected", func(t *testing.T) {
		third := mustPut(t, s, shared)
		err := s.Merge(ctx, third, recompressed, "chain")
		if !errors.Is(err, srctrace.ErrConflict) {
			t.Fatalf("got %v, want conflict", err)
		}
		if _, err := s.GetAlias(ctx, third); !errors.Is(err, srctrace.ErrNotFound) {
			t.Errorf("rejected merge left an alias: %v", err)
		}
	})

	t.Run("SecondIncomingRejected", func(t *testing.T) {
		third := mustPut(t, s, shared)
		err := s.Merge(ctx, third, canonical, "second")
		if !errors.Is(err, srctrace.ErrConflict) {
			t.Fatalf("got %v, want conflict", err)
		}
		if _, err := s.GetAlias(ctx, third); !errors.Is(err, srctrace.ErrNotFound) {
			t.Errorf("rejected merge left an alias: %v", err)
		}
	})

	t.Run("DivergentListingRejected", func(t *testing.T) {
		a := mustPut(t, s, listing("a/one.c"))
		b := mustPut(t, s, listing("b/two.c"))
		err := s.Merge(ctx, a, b, "divergent")
		if !errors.Is(err, srctrace.ErrConflict) {
			t.Fatalf("got %v, want conflict", err)
		}
		if _, err := s.GetAlias(ctx, a); !errors.Is(err, srctrace.ErrNotFound) {
			t.Errorf("rejected merge left an alias: %v", err)
		}
	})

	t.Run("MissingTarget", func(t *testing.T) {
		from := randDigest(t, srctrace.SHA256)
		err := s.Merge(ctx, from, randDigest(t, srctrace.SHA256), "missing")
		if !errors.Is(err, srctrace.ErrNotFound) {
			t.Errorf("got %v, want not found", err)
		}
	})

	t.Run("SelfAliasRejected", func(t *testing.T) {
		err := s.Merge(ctx, canonical, canonical, "self")
		if !errors.Is(err, srctrace.ErrInvalid) {
			t.Errorf("got %v, want invalid", err)
		}
	})

	t.Run("SourceWithoutArtifact", func(t *testing.T) {
		target := mustPut(t, s, listing("c/three.c"))
		from := randDigest(t, srctrace.SHA256)
		if err := s.Merge(ctx, from, target, "rehash"); err != nil {
			t.Fatal(err)
		}
		got, err := s.ResolveArtifact(ctx, from)
		if err != nil {
			t.Fatal(err)
		}
		if !got.Chksum.Equal(target) {
			t.Errorf("resolved to %v, want %v", got.Chksum, target)
		}
	})
}

func TestRegisterChecksums(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	canonical := mustPut(t, s, listing("pkg-2.0/lib.rs"))
	cs := chksum.Checksums{
		SHA256:  randDigest(t, srctrace.SHA256),
		SHA512:  randDigest(t, srctrace.SHA512),
		BLAKE2b: randDigest(t, srctrace.BLAKE2b),
	}
	if err := s.RegisterChecksums(ctx, cs, canonical, "gz(tar)"); err != nil {
		t.Fatal(err)
	}
	// Registering again must be a no-op, not a conflict.
	if err := s.RegisterChecksums(ctx, cs, canonical, "gz(tar)"); err != nil {
		t.Fatal(err)
	}

	for _, d := range []srctrace.Digest{cs.SHA256, cs.SHA512, cs.BLAKE2b} {
		got, err := s.ResolveArtifact(ctx, d)
		if err != nil {
			t.Fatalf("resolve %v: %v", d, err)
		}
		if !got.Chksum.Equal(canonical) {
			t.Errorf("%v resolved to %v, want %v", d, got.Chksum, canonical)
		}
	}

	// A spelling cannot be retargeted to a different artifact.
	other := mustPut(t, s, listing("pkg-2.1/lib.rs"))
	err := s.RegisterChecksums(ctx, chksum.Checksums{SHA512: cs.SHA512}, other, "gz(tar)")
	if !errors.Is(err, srctrace.ErrConflict) {
		t.Errorf("got %v, want conflict", err)
	}
}

func TestTaskDeadLetter(t *testing.T) {
	const retryLimit = 2
	ctx := context.Background()
	s := testStore(t, WithRetryLimit(retryLimit))

	suffix := make([]byte, 8)
	if _, err := rand.Read(suffix); err != nil {
		t.Fatal(err)
	}
	task, err := srctrace.NewFetchTask("https://test.invalid/"+hex.EncodeToString(suffix)+".tar.gz", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Enqueue(ctx, task); err != nil {
		t.Fatal(err)
	}
	var id int64
	err = s.Pool().QueryRow(ctx, `SELECT id FROM tasks WHERE key = $1`, task.Key).Scan(&id)
	if err != nil {
		t.Fatal(err)
	}

	// claimOwn drains due tasks until ours comes up. Rows claimed on
	// the way stay leased; only our row is mutated.
	claimOwn := func() *srctrace.Task {
		t.Helper()
		for i := 0; i < 100; i++ {
			tk, err := s.Claim(ctx, time.Minute)
			switch {
			case errors.Is(err, srctrace.ErrNotFound):
				return nil
			case err != nil:
				t.Fatal(err)
			}
			if tk.ID == id {
				return tk
			}
		}
		return nil
	}

	due := time.Now().Add(-time.Second)
	for i := 1; i < retryLimit; i++ {
		tk := claimOwn()
		if tk == nil {
			t.Fatalf("task not claimable before failure %d", i)
		}
		if err := s.Fail(ctx, tk, errors.New("connection refused"), due); err != nil {
			t.Fatal(err)
		}
		if tk.Retries != i {
			t.Fatalf("retries after failure %d: got %d", i, tk.Retries)
		}
	}

	// One retry left: the task must surface exactly once more.
	tk := claimOwn()
	if tk == nil {
		t.Fatal("task dead-lettered before reaching the retry limit")
	}
	if err := s.Fail(ctx, tk, errors.New("connection refused"), due); err != nil {
		t.Fatal(err)
	}

	if got := claimOwn(); got != nil {
		t.Errorf("task claimable after %d failures", retryLimit)
	}
	letters, err := s.DeadLetters(ctx, 1000)
	if err != nil {
		t.Fatal(err)
	}
	var found *srctrace.Task
	for i := range letters {
		if letters[i].ID == id {
			found = &letters[i]
		}
	}
	if found == nil {
		t.Fatal("task missing from the dead letters")
	}
	if found.Retries != retryLimit {
		t.Errorf("dead letter retries: got %d, want %d", found.Retries, retryLimit)
	}
	if found.Error == "" {
		t.Error("dead letter should carry the last error")
	}
}
