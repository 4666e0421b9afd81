package store

import (
	"database/sql"
	"errors"
	"fmt"
)

const sessionCredentialsSchema = `
CREATE TABLE IF NOT EXISTS AnweddolClientSessionCredentialsTable (
	EntryID           INTEGER PRIMARY KEY AUTOINCREMENT,
	CreationTimestamp INTEGER NOT NULL,
	ServerIP          TEXT    NOT NULL,
	ServerPort        INTEGER NOT NULL,
	ContainerUUID     TEXT    NOT NULL,
	ClientToken       TEXT    NOT NULL
);
`

// SessionCredentialsEntry is one row of AnweddolClientSessionCredentialsTable.
type SessionCredentialsEntry struct {
	EntryID       int64
	CreatedAt     int64
	ServerIP      string
	ServerPort    int
	ContainerUUID string
	ClientToken   string
}

// SessionCredentialsStore wraps a handle to the session-credentials table.
type SessionCredentialsStore struct {
	db *sql.DB
}

// OpenSessionCredentialsStore opens (creating if needed) the session
// credentials database at path.
func OpenSessionCredentialsStore(path string) (*SessionCredentialsStore, error) {
	db, err := openSQLite(path, sessionCredentialsSchema)
	if err != nil {
		return nil, err
	}
	return &SessionCredentialsStore{db: db}, nil
}

// Close is idempotent, including on a nil *SessionCredentialsStore.
func (s *SessionCredentialsStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// GetEntry returns the full row for entryID, or ErrNotFound if absent.
func (s *SessionCredentialsStore) GetEntry(entryID int64) (SessionCredentialsEntry, error) {
	var e SessionCredentialsEntry
	err := s.db.QueryRow(
		`SELECT EntryID, CreationTimestamp, ServerIP, ServerPort, ContainerUUID, ClientToken
		 FROM AnweddolClientSessionCredentialsTable WHERE EntryID = ?`,
		entryID,
	).Scan(&e.EntryID, &e.CreatedAt, &e.ServerIP, &e.ServerPort, &e.ContainerUUID, &e.ClientToken)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionCredentialsEntry{}, ErrNotFound
	}
	if err != nil {
		return SessionCredentialsEntry{}, fmt.Errorf("store: get session credentials entry: %w", err)
	}
	return e, nil
}

// GetEntryByServerIP returns the first row matching serverIP, or ErrNotFound.
func (s *SessionCredentialsStore) GetEntryByServerIP(serverIP string) (SessionCredentialsEntry, error) {
	var e SessionCredentialsEntry
	err := s.db.QueryRow(
		`SELECT EntryID, CreationTimestamp, ServerIP, ServerPort, ContainerUUID, ClientToken
		 FROM AnweddolClientSessionCredentialsTable WHERE ServerIP = ? ORDER BY EntryID LIMIT 1`,
		serverIP,
	).Scan(&e.EntryID, &e.CreatedAt, &e.ServerIP, &e.ServerPort, &e.ContainerUUID, &e.ClientToken)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionCredentialsEntry{}, ErrNotFound
	}
	if err != nil {
		return SessionCredentialsEntry{}, fmt.Errorf("store: get session credentials entry by ip: %w", err)
	}
	return e, nil
}

// AddEntry inserts a new row and returns its id.
func (s *SessionCredentialsStore) AddEntry(serverIP string, serverPort int, containerUUID, clientToken string, createdAt int64) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO AnweddolClientSessionCredentialsTable
		 (CreationTimestamp, ServerIP, ServerPort, ContainerUUID, ClientToken) VALUES (?, ?, ?, ?, ?)`,
		createdAt, serverIP, serverPort, containerUUID, clientToken,
	)
	if err != nil {
		return 0, fmt.Errorf("store: add session credentials entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: fetch inserted session credentials entry id: %w", err)
	}
	return id, nil
}

// ListEntries returns every row, in insertion order.
func (s *SessionCredentialsStore) ListEntries() ([]SessionCredentialsEntry, error) {
	rows, err := s.db.Query(
		`SELECT EntryID, CreationTimestamp, ServerIP, ServerPort, ContainerUUID, ClientToken
		 FROM AnweddolClientSessionCredentialsTable ORDER BY EntryID`,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list session credentials entries: %w", err)
	}
	defer rows.Close()

	var out []SessionCredentialsEntry
	for rows.Next() {
		var e SessionCredentialsEntry
		if err := rows.Scan(&e.EntryID, &e.CreatedAt, &e.ServerIP, &e.ServerPort, &e.ContainerUUID, &e.ClientToken); err != nil {
			return nil, fmt.Errorf("store: scan session credentials entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate session credentials entries: %w", err)
	}
	return out, nil
}

// DeleteEntry removes entryID. Deleting an absent id is a no-op.
func (s *SessionCredentialsStore) DeleteEntry(entryID int64) error {
	if _, err := s.db.Exec(`DELETE FROM AnweddolClientSessionCredentialsTable WHERE EntryID = ?`, entryID); err != nil {
		return fmt.Errorf("store: delete session credentials entry: %w", err)
	}
	return nil
}

const containerCredentialsSchema = `
CREATE TABLE IF NOT EXISTS AnweddolClientContainerCredentialsTable (
	EntryID              INTEGER PRIMARY KEY AUTOINCREMENT,
	CreationTimestamp    INTEGER NOT NULL,
	ServerIP             TEXT    NOT NULL,
	ServerPort           INTEGER NOT NULL,
	ContainerUsername    TEXT    NOT NULL,
	ContainerPassword    TEXT    NOT NULL,
	ContainerListenPort  INTEGER NOT NULL
);
`

// ContainerCredentialsEntry is one row of AnweddolClientContainerCredentialsTable.
type ContainerCredentialsEntry struct {
	EntryID             int64
	CreatedAt           int64
	ServerIP            string
	ServerPort          int
	ContainerUsername   string
	ContainerPassword   string
	ContainerListenPort int
}

// ContainerCredentialsStore wraps a handle to the container-credentials table.
type ContainerCredentialsStore struct {
	db *sql.DB
}

// OpenContainerCredentialsStore opens (creating if needed) the container
// credentials database at path.
func OpenContainerCredentialsStore(path string) (*ContainerCredentialsStore, error) {
	db, err := openSQLite(path, containerCredentialsSchema)
	if err != nil {
		return nil, err
	}
	return &ContainerCredentialsStore{db: db}, nil
}

// Close is idempotent, including on a nil *ContainerCredentialsStore.
func (s *ContainerCredentialsStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// GetEntry returns the full row for entryID, or ErrNotFound if absent.
func (s *ContainerCredentialsStore) GetEntry(entryID int64) (ContainerCredentialsEntry, error) {
	var e ContainerCredentialsEntry
	err := s.db.QueryRow(
		`SELECT EntryID, CreationTimestamp, ServerIP, ServerPort, ContainerUsername, ContainerPassword, ContainerListenPort
		 FROM AnweddolClientContainerCredentialsTable WHERE EntryID = ?`,
		entryID,
	).Scan(&e.EntryID, &e.CreatedAt, &e.ServerIP, &e.ServerPort, &e.ContainerUsername, &e.ContainerPassword, &e.ContainerListenPort)
	if errors.Is(err, sql.ErrNoRows) {
		return ContainerCredentialsEntry{}, ErrNotFound
	}
	if err != nil {
		return ContainerCredentialsEntry{}, fmt.Errorf("store: get container credentials entry: %w", err)
	}
	return e, nil
}

// GetEntryByServerIP returns the first row matching serverIP, or ErrNotFound.
func (s *ContainerCredentialsStore) GetEntryByServerIP(serverIP string) (ContainerCredentialsEntry, error) {
	var e ContainerCredentialsEntry
	err := s.db.QueryRow(
		`SELECT EntryID, CreationTimestamp, ServerIP, ServerPort, ContainerUsername, ContainerPassword, ContainerListenPort
		 FROM AnweddolClientContainerCredentialsTable WHERE ServerIP = ? ORDER BY EntryID LIMIT 1`,
		serverIP,
	).Scan(&e.EntryID, &e.CreatedAt, &e.ServerIP, &e.ServerPort, &e.ContainerUsername, &e.ContainerPassword, &e.ContainerListenPort)
	if errors.Is(err, sql.ErrNoRows) {
		return ContainerCredentialsEntry{}, ErrNotFound
	}
	if err != nil {
		return ContainerCredentialsEntry{}, fmt.Errorf("store: get container credentials entry by ip: %w", err)
	}
	return e, nil
}

// AddEntry inserts a new row and returns its id.
func (s *ContainerCredentialsStore) AddEntry(serverIP string, serverPort int, username, password string, listenPort int, createdAt int64) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO AnweddolClientContainerCredentialsTable
		 (CreationTimestamp, ServerIP, ServerPort, ContainerUsername, ContainerPassword, ContainerListenPort)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		createdAt, serverIP, serverPort, username, password, listenPort,
	)
	if err != nil {
		return 0, fmt.Errorf("store: add container credentials entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: fetch inserted container credentials entry id: %w", err)
	}
	return id, nil
}

// ListEntries returns every row, in insertion order.
func (s *ContainerCredentialsStore) ListEntries() ([]ContainerCredentialsEntry, error) {
	rows, err := s.db.Query(
		`SELECT EntryID, CreationTimestamp, ServerIP, ServerPort, ContainerUsername, ContainerPassword, ContainerListenPort
		 FROM AnweddolClientContainerCredentialsTable ORDER BY EntryID`,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list container credentials entries: %w", err)
	}
	defer rows.Close()

	var out []ContainerCredentialsEntry
	for rows.Next() {
		var e ContainerCredentialsEntry
		if err := rows.Scan(&e.EntryID, &e.CreatedAt, &e.ServerIP, &e.ServerPort, &e.ContainerUsername, &e.ContainerPassword, &e.ContainerListenPort); err != nil {
			return nil, fmt.Errorf("store: scan container credentials entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate container credentials entries: %w", err)
	}
	return out, nil
}

// DeleteEntry removes entryID. Deleting an absent id is a no-op.
func (s *ContainerCredentialsStore) DeleteEntry(entryID int64) error {
	if _, err := s.db.Exec(`DELETE FROM AnweddolClientContainerCredentialsTable WHERE EntryID = ?`, entryID); err != nil {
		return fmt.Errorf("store: delete container credentials entry: %w", err)
	}
	return nil
}
