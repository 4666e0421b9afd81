package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// ErrDuplicateIP is returned by AddEntryChecked when an access token already
// exists for the given server IP; AddEntry itself never returns it.
var ErrDuplicateIP = errors.New("store: an access token already exists for this server ip")

// ErrNotFound is returned by GetEntry when no row matches the given id.
var ErrNotFound = errors.New("store: no entry found")

const tokenSchema = `
CREATE TABLE IF NOT EXISTS AnweddolClientAccessTokenTable (
	EntryID           INTEGER PRIMARY KEY AUTOINCREMENT,
	CreationTimestamp INTEGER NOT NULL,
	ServerIP          TEXT    NOT NULL,
	ServerPort        INTEGER NOT NULL,
	AccessToken       TEXT    NOT NULL
);
`

// TokenEntry is one row of AnweddolClientAccessTokenTable.
type TokenEntry struct {
	EntryID      int64
	CreatedAt    int64
	ServerIP     string
	ServerPort   int
	AccessToken  string
}

// TokenStore wraps a handle to the access-token table. Open one per
// operation and Close it on every exit path.
type TokenStore struct {
	db *sql.DB
}

// OpenTokenStore opens (creating if needed) the access-token database at path.
func OpenTokenStore(path string) (*TokenStore, error) {
	db, err := openSQLite(path, tokenSchema)
	if err != nil {
		return nil, err
	}
	return &TokenStore{db: db}, nil
}

// Close releases the underlying database handle. Idempotent: calling Close
// more than once, or on a nil *TokenStore, is a no-op.
func (s *TokenStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// GetEntryID returns the id of the first row matching serverIP, or
// ErrNotFound if none exists.
func (s *TokenStore) GetEntryID(serverIP string) (int64, error) {
	var id int64
	err := s.db.QueryRow(
		`SELECT EntryID FROM AnweddolClientAccessTokenTable WHERE ServerIP = ? ORDER BY EntryID LIMIT 1`,
		serverIP,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("store: get token entry id: %w", err)
	}
	return id, nil
}

// GetEntry returns the full row for entryID, or ErrNotFound if absent.
func (s *TokenStore) GetEntry(entryID int64) (TokenEntry, error) {
	var e TokenEntry
	err := s.db.QueryRow(
		`SELECT EntryID, CreationTimestamp, ServerIP, ServerPort, AccessToken
		 FROM AnweddolClientAccessTokenTable WHERE EntryID = ?`,
		entryID,
	).Scan(&e.EntryID, &e.CreatedAt, &e.ServerIP, &e.ServerPort, &e.AccessToken)
	if errors.Is(err, sql.ErrNoRows) {
		return TokenEntry{}, ErrNotFound
	}
	if err != nil {
		return TokenEntry{}, fmt.Errorf("store: get token entry: %w", err)
	}
	return e, nil
}

// AddEntry inserts a new row stamped with the caller-supplied createdAt and
// returns the new row's id; the timestamp is not returned. AddEntry does not
// guard against a duplicate server IP (per the original spec's "caller is
// responsible" contract); AddEntryChecked does, returning ErrDuplicateIP.
func (s *TokenStore) AddEntry(serverIP string, serverPort int, token string, createdAt int64) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO AnweddolClientAccessTokenTable (CreationTimestamp, ServerIP, ServerPort, AccessToken)
		 VALUES (?, ?, ?, ?)`,
		createdAt, serverIP, serverPort, token,
	)
	if err != nil {
		return 0, fmt.Errorf("store: add token entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: fetch inserted token entry id: %w", err)
	}
	return id, nil
}

// AddEntryChecked is AddEntry preceded by a duplicate-IP check, returning
// ErrDuplicateIP rather than inserting a second row for the same server IP.
func (s *TokenStore) AddEntryChecked(serverIP string, serverPort int, token string, createdAt int64) (int64, error) {
	if _, err := s.GetEntryID(serverIP); err == nil {
		return 0, ErrDuplicateIP
	} else if !errors.Is(err, ErrNotFound) {
		return 0, err
	}
	return s.AddEntry(serverIP, serverPort, token, createdAt)
}

// TokenListEntry is the (id, created_at, server_ip) triple ListEntries returns.
type TokenListEntry struct {
	EntryID   int64
	CreatedAt int64
	ServerIP  string
}

// ListEntries returns every row's (id, created_at, server_ip), in insertion order.
func (s *TokenStore) ListEntries() ([]TokenListEntry, error) {
	rows, err := s.db.Query(
		`SELECT EntryID, CreationTimestamp, ServerIP FROM AnweddolClientAccessTokenTable ORDER BY EntryID`,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list token entries: %w", err)
	}
	defer rows.Close()

	var out []TokenListEntry
	for rows.Next() {
		var e TokenListEntry
		if err := rows.Scan(&e.EntryID, &e.CreatedAt, &e.ServerIP); err != nil {
			return nil, fmt.Errorf("store: scan token entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate token entries: %w", err)
	}
	return out, nil
}

// DeleteEntry removes entryID. Deleting an absent id is a no-op, not an error.
func (s *TokenStore) DeleteEntry(entryID int64) error {
	if _, err := s.db.Exec(`DELETE FROM AnweddolClientAccessTokenTable WHERE EntryID = ?`, entryID); err != nil {
		return fmt.Errorf("store: delete token entry: %w", err)
	}
	return nil
}
