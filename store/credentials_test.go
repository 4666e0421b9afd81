package store_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/the-anweddol-project/anwdl-client-go/store"
)

func TestSessionCredentialsStoreAddGetDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session_credentials.db")
	s, err := store.OpenSessionCredentialsStore(path)
	if err != nil {
		t.Fatalf("OpenSessionCredentialsStore returned error: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	id, err := s.AddEntry("10.0.0.2", 6150, "00000000-0000-0000-0000-000000000001", "token", 1000)
	if err != nil {
		t.Fatalf("AddEntry returned error: %v", err)
	}

	entry, err := s.GetEntry(id)
	if err != nil {
		t.Fatalf("GetEntry returned error: %v", err)
	}
	if entry.ContainerUUID != "00000000-0000-0000-0000-000000000001" {
		t.Fatalf("unexpected entry: %+v", entry)
	}

	if err := s.DeleteEntry(id); err != nil {
		t.Fatalf("DeleteEntry returned error: %v", err)
	}
	if _, err := s.GetEntry(id); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSessionCredentialsStoreGetEntryByServerIP(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session_credentials.db")
	s, err := store.OpenSessionCredentialsStore(path)
	if err != nil {
		t.Fatalf("OpenSessionCredentialsStore returned error: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if _, err := s.AddEntry("10.0.0.2", 6150, "00000000-0000-0000-0000-000000000001", "token", 1000); err != nil {
		t.Fatalf("AddEntry returned error: %v", err)
	}

	entry, err := s.GetEntryByServerIP("10.0.0.2")
	if err != nil {
		t.Fatalf("GetEntryByServerIP returned error: %v", err)
	}
	if entry.ServerIP != "10.0.0.2" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestContainerCredentialsStoreAddGetDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "container_credentials.db")
	s, err := store.OpenContainerCredentialsStore(path)
	if err != nil {
		t.Fatalf("OpenContainerCredentialsStore returned error: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	id, err := s.AddEntry("10.0.0.2", 6150, "user_00001", "pw1", 22, 1000)
	if err != nil {
		t.Fatalf("AddEntry returned error: %v", err)
	}

	entry, err := s.GetEntry(id)
	if err != nil {
		t.Fatalf("GetEntry returned error: %v", err)
	}
	if entry.ContainerUsername != "user_00001" || entry.ContainerListenPort != 22 {
		t.Fatalf("unexpected entry: %+v", entry)
	}

	if err := s.DeleteEntry(id); err != nil {
		t.Fatalf("DeleteEntry returned error: %v", err)
	}
	if _, err := s.GetEntry(id); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestContainerCredentialsStoreDeleteAbsentEntryIsNoOp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "container_credentials.db")
	s, err := store.OpenContainerCredentialsStore(path)
	if err != nil {
		t.Fatalf("OpenContainerCredentialsStore returned error: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.DeleteEntry(999); err != nil {
		t.Fatalf("expected deleting an absent entry to be a no-op, got %v", err)
	}
}
