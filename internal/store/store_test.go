package store

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
)

type record struct {
	ID    string `json:"id"`
	Owner string `json:"owner"`
	Value int    `json:"value"`
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGetRoundtrip(t *testing.T) {
	s := openTestStore(t)

	in := record{ID: "r1", Owner: "doc1", Value: 42}
	if err := s.Put("things", "r1", in); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	var out record
	if err := s.Get("things", "r1", &out); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if out != in {
		t.Errorf("Get() = %+v, want %+v", out, in)
	}
}

func TestGet_NotFound(t *testing.T) {
	s := openTestStore(t)

	var out record
	if err := s.Get("things", "missing", &out); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}

	// Same for a collection that was never written.
	if err := s.Get("nothing", "x", &out); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)

	idx := Index{Field: "owner", Value: "doc1"}
	if err := s.Put("things", "r1", record{ID: "r1", Owner: "doc1"}, idx); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := s.Delete("things", "r1", idx); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	var out record
	if err := s.Get("things", "r1", &out); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}

	found := 0
	err := s.QueryByIndex("things", "owner", "doc1", func([]byte) error {
		found++
		return nil
	})
	if err != nil {
		t.Fatalf("QueryByIndex() error = %v", err)
	}
	if found != 0 {
		t.Errorf("index still returns %d records after delete", found)
	}
}

func TestQueryByIndex(t *testing.T) {
	s := openTestStore(t)

	for _, r := range []record{
		{ID: "a", Owner: "doc1", Value: 1},
		{ID: "b", Owner: "doc2", Value: 2},
		{ID: "c", Owner: "doc1", Value: 3},
	} {
		err := s.Put("things", r.ID, r, Index{Field: "owner", Value: r.Owner})
		if err != nil {
			t.Fatalf("Put(%s) error = %v", r.ID, err)
		}
	}

	var got []record
	err := s.QueryByIndex("things", "owner", "doc1", func(raw []byte) error {
		var r record
		if err := json.Unmarshal(raw, &r); err != nil {
			return err
		}
		got = append(got, r)
		return nil
	})
	if err != nil {
		t.Fatalf("QueryByIndex() error = %v", err)
	}

	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
		t.Errorf("QueryByIndex() = %+v, want records a and c in ID order", got)
	}

	// A value that is a prefix of another must not leak.
	err = s.Put("things", "d", record{ID: "d", Owner: "doc11"}, Index{Field: "owner", Value: "doc11"})
	if err != nil {
		t.Fatalf("Put(d) error = %v", err)
	}
	count := 0
	_ = s.QueryByIndex("things", "owner", "doc1", func([]byte) error {
		count++
		return nil
	})
	if count != 2 {
		t.Errorf("prefix value leaked into index query: got %d records, want 2", count)
	}
}

func TestList(t *testing.T) {
	s := openTestStore(t)

	for _, id := range []string{"x", "y"} {
		if err := s.Put("things", id, record{ID: id}); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}

	count := 0
	if err := s.List("things", func([]byte) error { count++; return nil }); err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if count != 2 {
		t.Errorf("List() visited %d records, want 2", count)
	}

	// Listing an absent collection is a no-op.
	if err := s.List("absent", func([]byte) error { t.Fatal("callback on absent collection"); return nil }); err != nil {
		t.Errorf("List(absent) error = %v", err)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := s.Put("things", "r1", record{ID: "r1", Value: 7}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s2.Close()

	var out record
	if err := s2.Get("things", "r1", &out); err != nil {
		t.Fatalf("Get() after reopen error = %v", err)
	}
	if out.Value != 7 {
		t.Errorf("Value = %d after reopen, want 7", out.Value)
	}
}
