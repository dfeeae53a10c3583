package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/srctrace/srctrace"
	"github.com/srctrace/srctrace/internal/chksum"
)

func TestIndexSBOM(t *testing.T) {
	ctx := context.Background()
	docsum := chksum.Sum256([]byte(cargoLockBody))

	seed := func() *fakeStore {
		store := newFakeStore()
		store.sboms = append(store.sboms, &srctrace.SBOM{
			Chksum: docsum,
			Strain: "cargo-lock",
			Data:   cargoLockBody,
		})
		return store
	}

	t.Run("EnqueuesCrateFetch", func(t *testing.T) {
		store := seed()
		task := &srctrace.IndexSBOMTask{Strain: "cargo-lock", Chksum: docsum}
		if err := IndexSBOM(ctx, store, task); err != nil {
			t.Fatal(err)
		}

		if len(store.refs) != 1 {
			t.Fatalf("refs: %+v", store.refs)
		}
		ref := store.refs[0]
		if ref.Vendor != "crates.io" || ref.Package != "serde" || ref.Version != "1.0.195" {
			t.Errorf("ref identity: %+v", ref)
		}
		if ref.Chksum.IsZero() {
			t.Error("registry checksum should resolve the ref")
		}

		const wantKey = "fetch:https://crates.io/api/v1/crates/serde/1.0.195/download"
		if len(store.tasks) != 1 || store.tasks[0].Key != wantKey {
			t.Errorf("tasks: %+v", store.tasks)
		}
	})

	t.Run("KnownComponentSkipsFetch", func(t *testing.T) {
		store := seed()
		d, err := srctrace.ParseDigest("sha256:63261df402c67811e9ac6def069e4786148c4563f4b50fd4bf30aa370d626b02")
		if err != nil {
			t.Fatal(err)
		}
		store.artifacts[d.String()] = nil

		task := &srctrace.IndexSBOMTask{Strain: "cargo-lock", Chksum: docsum}
		if err := IndexSBOM(ctx, store, task); err != nil {
			t.Fatal(err)
		}
		if len(store.refs) != 1 {
			t.Errorf("refs: %+v", store.refs)
		}
		if len(store.tasks) != 0 {
			t.Errorf("no fetch expected for a stored crate: %+v", store.tasks)
		}
	})

	t.Run("UnparseableDocumentIsPermanent", func(t *testing.T) {
		store := newFakeStore()
		badsum := chksum.Sum256([]byte("not toml ["))
		store.sboms = append(store.sboms, &srctrace.SBOM{
			Chksum: badsum,
			Strain: "cargo-lock",
			Data:   "not toml [",
		})
		task := &srctrace.IndexSBOMTask{Strain: "cargo-lock", Chksum: badsum}
		err := IndexSBOM(ctx, store, task)
		if !errors.Is(err, srctrace.ErrPermanent) {
			t.Errorf("got %v, want permanent", err)
		}
	})

	t.Run("MissingDocument", func(t *testing.T) {
		store := newFakeStore()
		task := &srctrace.IndexSBOMTask{Strain: "cargo-lock", Chksum: docsum}
		err := IndexSBOM(ctx, store, task)
		if !errors.Is(err, srctrace.ErrNotFound) {
			t.Errorf("got %v, want not found", err)
		}
	})
}
