package poap

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "poap_state.db"))
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_GetReturnsZeroValueForUnknownNode(t *testing.T) {
	s := openTestStore(t)
	st, err := s.Get("lab1", "n9k1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if st.ScriptHits != 0 || !st.ScriptServedAt.IsZero() {
		t.Fatalf("Get() = %+v, want zero value", st)
	}
}

func TestStore_RecordScriptServeIncrementsCounter(t *testing.T) {
	s := openTestStore(t)
	st1, err := s.RecordScriptServe("lab1", "n9k1")
	if err != nil {
		t.Fatalf("RecordScriptServe() error = %v", err)
	}
	if st1.ScriptHits != 1 {
		t.Fatalf("ScriptHits = %d, want 1", st1.ScriptHits)
	}

	st2, err := s.RecordScriptServe("lab1", "n9k1")
	if err != nil {
		t.Fatalf("RecordScriptServe() error = %v", err)
	}
	if st2.ScriptHits != 2 {
		t.Fatalf("ScriptHits = %d, want 2 after second serve", st2.ScriptHits)
	}
}

func TestStore_RecordConfigServeIsIndependentPerNode(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.RecordConfigServe("lab1", "n9k1"); err != nil {
		t.Fatal(err)
	}

	other, err := s.Get("lab1", "n9k2")
	if err != nil {
		t.Fatal(err)
	}
	if other.ConfigHits != 0 {
		t.Fatalf("ConfigHits for unrelated node = %d, want 0", other.ConfigHits)
	}
}

func TestStore_StatePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "poap_state.db")
	s1, err := OpenStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s1.RecordScriptServe("lab1", "n9k1"); err != nil {
		t.Fatal(err)
	}
	s1.Close()

	s2, err := OpenStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()

	st, err := s2.Get("lab1", "n9k1")
	if err != nil {
		t.Fatal(err)
	}
	if st.ScriptHits != 1 {
		t.Fatalf("ScriptHits after reopen = %d, want 1", st.ScriptHits)
	}
}
