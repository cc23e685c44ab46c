package export

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func withEnv(t *testing.T, key, value string) {
	t.Helper()
	prev, had := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("setenv %s: %v", key, err)
	}
	t.Cleanup(func() {
		if had {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	info, err := s.Put(ctx, "tables/t1/a.csv", strings.NewReader("x,y\n1,2\n"), PutOptions{
		ContentType: "text/csv",
		Metadata:    map[string]string{"rows": "1"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != int64(len("x,y\n1,2\n")) || info.ETag == "" {
		t.Fatalf("info = %+v", info)
	}

	// Create-only: a second put on the same key fails.
	if _, err := s.Put(ctx, "tables/t1/a.csv", strings.NewReader("other"), PutOptions{}); err == nil {
		t.Fatal("second put on the same key should fail")
	}

	got, rc, err := s.Get(ctx, "tables/t1/a.csv")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, err := io.ReadAll(rc)
	rc.Close()
	if err != nil || string(body) != "x,y\n1,2\n" {
		t.Fatalf("body = (%q, %v)", body, err)
	}
	if got.ContentType != "text/csv" || got.Metadata["rows"] != "1" {
		t.Fatalf("metadata = %+v", got)
	}

	head, err := s.Head(ctx, "tables/t1/a.csv")
	if err != nil || head.ETag != info.ETag {
		t.Fatalf("head = (%+v, %v)", head, err)
	}

	if _, err := s.Put(ctx, "tables/t2/b.json", strings.NewReader("[]"), PutOptions{}); err != nil {
		t.Fatalf("put second: %v", err)
	}
	infos, err := s.List(ctx, "tables/t1/")
	if err != nil || len(infos) != 1 {
		t.Fatalf("prefixed list = (%v, %v), want 1 entry", infos, err)
	}
	all, err := s.List(ctx, "")
	if err != nil || len(all) != 2 {
		t.Fatalf("full list = (%v, %v), want 2 entries", all, err)
	}
	if all[0].Key > all[1].Key {
		t.Fatalf("list not sorted: %v", all)
	}

	url, err := s.PresignURL(ctx, "tables/t1/a.csv", SignedURLOptions{Expiry: time.Minute})
	if err != nil || url == "" {
		t.Fatalf("presign = (%q, %v)", url, err)
	}
	if _, err := s.PresignURL(ctx, "tables/t1/a.csv", SignedURLOptions{Method: "PUT"}); err == nil {
		t.Fatal("non-GET presign should be unsupported")
	}

	existed, err := s.Delete(ctx, "tables/t1/a.csv")
	if err != nil || !existed {
		t.Fatalf("delete = (%v, %v)", existed, err)
	}
	existed, err = s.Delete(ctx, "tables/t1/a.csv")
	if err != nil || existed {
		t.Fatalf("repeat delete = (%v, %v), want (false, nil)", existed, err)
	}
	if _, err := s.Head(ctx, "tables/t1/a.csv"); err == nil {
		t.Fatal("deleted blob should not resolve")
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemory()
	if s.Driver() != DriverMemory {
		t.Fatalf("driver = %s", s.Driver())
	}
	exerciseStore(t, s)
}

func TestFilesystemStore(t *testing.T) {
	s, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if s.Driver() != DriverFilesystem {
		t.Fatalf("driver = %s", s.Driver())
	}
	exerciseStore(t, s)
}

func TestFilesystemStoreRejectsTraversal(t *testing.T) {
	s, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx := context.Background()
	for _, key := range []string{"", "/abs", "a/../../b"} {
		if _, err := s.Put(ctx, key, strings.NewReader("x"), PutOptions{}); err == nil {
			t.Fatalf("key %q should be rejected", key)
		}
	}
}

func TestFilesystemStorePersistsAcrossReopen(t *testing.T) {
	root := t.TempDir()
	s, err := NewFilesystem(root)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s.Put(context.Background(), "k", strings.NewReader("data"), PutOptions{ContentType: "text/plain"}); err != nil {
		t.Fatalf("put: %v", err)
	}

	reopened, err := NewFilesystem(root)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	info, err := reopened.Head(context.Background(), "k")
	if err != nil || info.ContentType != "text/plain" {
		t.Fatalf("head after reopen = (%+v, %v)", info, err)
	}
	if _, err := os.Stat(filepath.Join(root, "k.meta")); err != nil {
		t.Fatalf("sidecar missing: %v", err)
	}
}

func TestOpenStoreEnvSelection(t *testing.T) {
	ctx := context.Background()

	withEnv(t, "NOTEBOOKCORE_BLOB_DRIVER", "")
	s, err := OpenStore(ctx)
	if err != nil || s.Driver() != DriverMemory {
		t.Fatalf("default = (%v, %v), want memory", s, err)
	}

	withEnv(t, "NOTEBOOKCORE_BLOB_DRIVER", "fs")
	withEnv(t, "NOTEBOOKCORE_BLOB_FS_ROOT", t.TempDir())
	fsStore, err := OpenStore(ctx)
	if err != nil || fsStore.Driver() != DriverFilesystem {
		t.Fatalf("fs = (%v, %v)", fsStore, err)
	}

	withEnv(t, "NOTEBOOKCORE_BLOB_DRIVER", "s3")
	withEnv(t, "NOTEBOOKCORE_BLOB_S3_BUCKET", "")
	if _, err := OpenStore(ctx); err == nil {
		t.Fatal("s3 without a bucket should fail")
	}

	withEnv(t, "NOTEBOOKCORE_BLOB_DRIVER", "tape")
	if _, err := OpenStore(ctx); err == nil {
		t.Fatal("unknown driver should fail")
	}
}
