package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"textindex/internal/errs"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := OpenSQLite(filepath.Join(dir, "index.db"), nil)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenSQLite_CreatesSchema(t *testing.T) {
	s := newTestStore(t)
	count, err := s.DocumentCount(context.Background())
	if err != nil {
		t.Fatalf("DocumentCount() error = %v", err)
	}
	if count != 0 {
		t.Errorf("DocumentCount() = %d, want 0 on a fresh store", count)
	}
}

func TestUpsertDocument_InsertAndReplace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := Document{Path: "a.txt", Content: "hello world", LastModified: time.Now()}
	if err := s.UpsertDocument(ctx, doc); err != nil {
		t.Fatalf("UpsertDocument() error = %v", err)
	}
	if count, _ := s.DocumentCount(ctx); count != 1 {
		t.Fatalf("DocumentCount() = %d, want 1", count)
	}

	doc.Content = "hello again"
	if err := s.UpsertDocument(ctx, doc); err != nil {
		t.Fatalf("UpsertDocument() (replace) error = %v", err)
	}
	if count, _ := s.DocumentCount(ctx); count != 1 {
		t.Errorf("DocumentCount() after replace = %d, want 1 (no duplicate row)", count)
	}
}

func TestDeleteDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := Document{Path: "a.txt", Content: "hello", LastModified: time.Now()}
	if err := s.UpsertDocument(ctx, doc); err != nil {
		t.Fatalf("UpsertDocument() error = %v", err)
	}
	if err := s.DeleteDocument(ctx, "a.txt"); err != nil {
		t.Fatalf("DeleteDocument() error = %v", err)
	}
	if count, _ := s.DocumentCount(ctx); count != 0 {
		t.Errorf("DocumentCount() after delete = %d, want 0", count)
	}
}

func TestFileMetadata_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mtime := time.Unix(1700000000, 0)
	m := FileMetadata{
		Path:        "src/main.go",
		Size:        1024,
		ModTime:     mtime,
		LastIndexed: mtime.Add(time.Second),
		Encoding:    "utf-8",
	}
	if err := s.UpsertFileMetadata(ctx, m); err != nil {
		t.Fatalf("UpsertFileMetadata() error = %v", err)
	}

	got, ok, err := s.GetFileMetadata(ctx, "src/main.go")
	if err != nil {
		t.Fatalf("GetFileMetadata() error = %v", err)
	}
	if !ok {
		t.Fatal("GetFileMetadata() ok = false, want true")
	}
	if got.Size != m.Size || got.Encoding != m.Encoding {
		t.Errorf("GetFileMetadata() = %+v, want size/encoding to match %+v", got, m)
	}
	if got.ModTime.Unix() != mtime.Unix() {
		t.Errorf("GetFileMetadata().ModTime = %v, want %v", got.ModTime, mtime)
	}
}

func TestGetFileMetadata_Missing(t *testing.T) {
	s := newTestStore(t)
	_, ok, err := s.GetFileMetadata(context.Background(), "nope.txt")
	if err != nil {
		t.Fatalf("GetFileMetadata() error = %v", err)
	}
	if ok {
		t.Error("GetFileMetadata() ok = true for untracked path, want false")
	}
}

func TestListFileMetadataPaths(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, p := range []string{"a.txt", "b.txt", "c.txt"} {
		if err := s.UpsertFileMetadata(ctx, FileMetadata{Path: p, Size: 1, ModTime: time.Now()}); err != nil {
			t.Fatalf("UpsertFileMetadata(%q) error = %v", p, err)
		}
	}

	paths, err := s.ListFileMetadataPaths(ctx)
	if err != nil {
		t.Fatalf("ListFileMetadataPaths() error = %v", err)
	}
	if len(paths) != 3 {
		t.Errorf("ListFileMetadataPaths() len = %d, want 3", len(paths))
	}
}

func TestDeleteFileMetadata(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertFileMetadata(ctx, FileMetadata{Path: "a.txt", Size: 1, ModTime: time.Now()}); err != nil {
		t.Fatalf("UpsertFileMetadata() error = %v", err)
	}
	if err := s.DeleteFileMetadata(ctx, "a.txt"); err != nil {
		t.Fatalf("DeleteFileMetadata() error = %v", err)
	}
	if _, ok, _ := s.GetFileMetadata(ctx, "a.txt"); ok {
		t.Error("GetFileMetadata() ok = true after delete, want false")
	}
}

func TestCheckIntegrity_HealthyStore(t *testing.T) {
	s := newTestStore(t)
	if !s.CheckIntegrity(context.Background()) {
		t.Error("CheckIntegrity() = false for a freshly created store, want true")
	}
}

func TestOpenSQLite_RebuildsTruncatedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.db")

	if err := os.WriteFile(path, []byte("not a real database"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	s, err := OpenSQLite(path, nil)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v, want it to rebuild the corrupt file", err)
	}
	defer s.Close()

	count, err := s.DocumentCount(context.Background())
	if err != nil {
		t.Fatalf("DocumentCount() error = %v", err)
	}
	if count != 0 {
		t.Errorf("DocumentCount() = %d, want 0 on rebuilt store", count)
	}
}

func TestTranslateErr_RecognizesCorruption(t *testing.T) {
	err := translateErr(&testDriverErr{msg: "database disk image is malformed"})
	if !errs.Is(err, errs.IndexCorruption) {
		t.Errorf("translateErr() = %v, want an errs.IndexCorruption", err)
	}
}

func TestTranslateErr_PassesThroughOtherErrors(t *testing.T) {
	original := &testDriverErr{msg: "some other failure"}
	got := translateErr(original)
	if got != original {
		t.Errorf("translateErr() = %v, want it unchanged for non-corruption errors", got)
	}
}

type testDriverErr struct{ msg string }

func (e *testDriverErr) Error() string { return e.msg }
