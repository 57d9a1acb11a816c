package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrTokenUsed = errors.New("token already used")
)

// Storage is the user ledger: a single JSON document on disk guarded by
// one mutex. The mutex is held across the whole load-mutate-save span of
// every operation, so two concurrent transactions can never interleave
// their read and write phases and lose an update.
type Storage struct {
	path string
	mu   sync.Mutex
	log  *slog.Logger
}

// New creates a Storage over the given file path. A missing file means an
// empty ledger; a malformed one is reported and treated as empty rather
// than crashing the process.
func New(path string, log *slog.Logger) *Storage {
	s := &Storage{path: path, log: log}

	// Load once so a corrupt file is diagnosed at startup, not on the
	// first user interaction.
	s.mu.Lock()
	s.load()
	s.mu.Unlock()

	return s
}

// load reads the document from disk. Caller must hold s.mu.
func (s *Storage) load() *document {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Error("cannot read ledger file, starting from an empty ledger",
				"path", s.path, "error", err)
		}
		return newDocument()
	}
	if len(raw) == 0 {
		return newDocument()
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		s.log.Error("ledger file is not valid JSON, starting from an empty ledger",
			"path", s.path, "error", err)
		return newDocument()
	}

	if doc.Users == nil {
		doc.Users = make(map[string]*UserRecord)
	}
	if doc.Tokens == nil {
		doc.Tokens = make(map[string]int64)
	}
	for key, u := range doc.Users {
		if id, err := strconv.ParseInt(key, 10, 64); err == nil {
			u.ID = id
		}
	}

	return &doc
}

// save writes the document atomically (temp file + rename). Caller must
// hold s.mu.
func (s *Storage) save(doc *document) error {
	raw, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace ledger: %w", err)
	}
	return nil
}

// GetOrCreate returns the record for id, creating a zeroed one on first
// contact. referredBy is honored only at creation; repeated calls never
// reset or duplicate an existing record. The second return reports
// whether the record was created by this call.
func (s *Storage) GetOrCreate(id int64, username string, referredBy *int64) (UserRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load()
	key := strconv.FormatInt(id, 10)

	if u, ok := doc.Users[key]; ok {
		return *u, false, nil
	}

	u := &UserRecord{
		ID:          id,
		Username:    username,
		TotalEarned: decimal.Zero,
		ReferredBy:  referredBy,
	}
	doc.Users[key] = u

	if err := s.save(doc); err != nil {
		return UserRecord{}, false, err
	}
	return *u, true, nil
}

// Transaction applies fn to the record for id and persists the result as
// one atomic unit, serialized against every other operation on the store.
// Returns ErrNotFound for an unknown id; an error from fn aborts without
// persisting anything.
func (s *Storage) Transaction(id int64, fn func(*UserRecord) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load()
	u, ok := doc.Users[strconv.FormatInt(id, 10)]
	if !ok {
		return ErrNotFound
	}

	if err := fn(u); err != nil {
		return err
	}
	return s.save(doc)
}

// Tx is the view of the ledger inside a Redeem call. Mutations made
// through it are persisted together with the token-consumption mark.
type Tx struct {
	doc *document
}

// User returns the record for id, or nil if the id is unknown.
func (t *Tx) User(id int64) *UserRecord {
	return t.doc.Users[strconv.FormatInt(id, 10)]
}

// FindByUsername resolves a display name inside the transaction.
func (t *Tx) FindByUsername(handle string) (int64, bool) {
	id, ok := findByUsername(t.doc, handle)
	return id, ok
}

// Redeem marks nonce as consumed and runs fn against the whole ledger as
// a single atomic unit. A nonce seen before yields ErrTokenUsed and the
// ledger stays untouched; an error from fn aborts everything, including
// the consumption mark.
func (s *Storage) Redeem(nonce string, fn func(*Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load()
	if _, used := doc.Tokens[nonce]; used {
		return ErrTokenUsed
	}
	doc.Tokens[nonce] = time.Now().Unix()

	if err := fn(&Tx{doc: doc}); err != nil {
		return err
	}
	return s.save(doc)
}

// FindByUsername resolves a display name (without the leading @) to a
// user id, case-insensitively. Display names are not unique; among
// duplicates the lowest id wins.
func (s *Storage) FindByUsername(handle string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := findByUsername(s.load(), handle); ok {
		return id, nil
	}
	return 0, ErrNotFound
}

func findByUsername(doc *document, handle string) (int64, bool) {
	var matches []int64
	for _, u := range doc.Users {
		if u.Username != "" && strings.EqualFold(u.Username, handle) {
			matches = append(matches, u.ID)
		}
	}
	if len(matches) == 0 {
		return 0, false
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i] < matches[j] })
	return matches[0], true
}

// Stats returns the referral counters for id, (0, 0) for an unknown id.
func (s *Storage) Stats(id int64) (int, decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.load().Users[strconv.FormatInt(id, 10)]
	if !ok {
		return 0, decimal.Zero
	}
	return u.Referrals, u.TotalEarned
}

// Path returns the ledger file location.
func (s *Storage) Path() string {
	return filepath.Clean(s.path)
}
