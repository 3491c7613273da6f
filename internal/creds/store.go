package creds

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// ErrNotFound is returned by Load when no record exists for the account,
// including when the file on disk is unreadable garbage.
var ErrNotFound = errors.New("credentials not found")

// PersistenceError wraps failures of the backing location (permissions,
// disk full). The login that triggered the save is still valid; only the
// remember-me aspect is lost.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("credential store: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Record is one account's secret material. Phone, APIID and APIHash
// belong to the Telegram side; DiscordToken is the linked platform's
// bearer token, empty when that side was never logged in.
type Record struct {
	AccountID    string `toml:"account_id"`
	Phone        string `toml:"phone"`
	APIID        string `toml:"api_id"`
	APIHash      string `toml:"api_hash"`
	DiscordToken string `toml:"discord_token"`
}

// Store persists credential records as TOML documents, one file per
// account, under <base>/accounts. It never touches the network and never
// holds conversation content.
type Store struct {
	base string
}

// NewStore creates a store rooted at base (usually BaseDir()).
func NewStore(base string) *Store {
	return &Store{base: base}
}

// Save writes the record for its account id, overwriting any previous one.
func (s *Store) Save(rec *Record) error {
	path, err := RecordPath(s.base, rec.AccountID)
	if err != nil {
		return &PersistenceError{Op: "resolve path", Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return &PersistenceError{Op: "create accounts dir", Err: err}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return &PersistenceError{Op: "open record", Err: err}
	}
	encErr := toml.NewEncoder(f).Encode(rec)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		encErr = closeErr
	}
	if encErr != nil {
		return &PersistenceError{Op: "write record", Err: encErr}
	}
	return nil
}

// Load returns the record for accountID, or ErrNotFound if there is none.
// A corrupt file reads as ErrNotFound rather than aborting startup.
func (s *Store) Load(accountID string) (*Record, error) {
	path, err := RecordPath(s.base, accountID)
	if err != nil {
		return nil, ErrNotFound
	}
	return loadPath(path)
}

// Clear removes the account's secret material, including the Telegram
// wire session next to it. Already-absent records are not an error.
func (s *Store) Clear(accountID string) error {
	path, err := RecordPath(s.base, accountID)
	if err != nil {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return &PersistenceError{Op: "remove record", Err: err}
	}
	if wire, err := MTProtoSessionPath(s.base, accountID); err == nil {
		if err := os.Remove(wire); err != nil && !os.IsNotExist(err) {
			return &PersistenceError{Op: "remove wire session", Err: err}
		}
	}
	return nil
}

// ClearToken blanks only the linked-platform token, keeping the Telegram
// secrets so that side can resume.
func (s *Store) ClearToken(accountID string) error {
	rec, err := s.Load(accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	rec.DiscordToken = ""
	return s.Save(rec)
}

// First returns the first readable stored record in lexical order, for
// startup resume. Unreadable or corrupt records are skipped so one bad
// file never disables resume. ErrNotFound when no record loads.
func (s *Store) First() (*Record, error) {
	entries, err := os.ReadDir(AccountsDir(s.base))
	if err != nil {
		return nil, ErrNotFound
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), "_creds.toml") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		if rec, err := loadPath(filepath.Join(AccountsDir(s.base), name)); err == nil {
			return rec, nil
		}
	}
	return nil, ErrNotFound
}

// ResumeRecord picks the record startup should resume from: the
// preferred account when it is set and loads, else the first stored
// one.
func (s *Store) ResumeRecord(preferred string) (*Record, error) {
	if preferred != "" {
		if rec, err := s.Load(preferred); err == nil {
			return rec, nil
		}
	}
	return s.First()
}

func loadPath(path string) (*Record, error) {
	var rec Record
	if _, err := toml.DecodeFile(path, &rec); err != nil {
		return nil, ErrNotFound
	}
	if rec.AccountID == "" {
		return nil, ErrNotFound
	}
	return &rec, nil
}
