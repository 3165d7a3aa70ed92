package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kjstillabower/irrigation-advisor/internal/models"
)

// MemoryStore keeps everything in process memory. Used for development and tests.
type MemoryStore struct {
	mu         sync.RWMutex
	accounts   map[string]models.Account
	byUsername map[string]string
	records    map[string]storedRecord
	seq        uint64
	now        func() time.Time
}

// storedRecord carries the insertion sequence that orders records sharing a timestamp.
type storedRecord struct {
	models.HistoryRecord
	seq uint64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:   make(map[string]models.Account),
		byUsername: make(map[string]string),
		records:    make(map[string]storedRecord),
		now:        time.Now,
	}
}

func (s *MemoryStore) CreateAccount(ctx context.Context, acct models.Account) (models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byUsername[acct.Username]; taken {
		return models.Account{}, ErrDuplicateUsername
	}
	acct.ID = uuid.NewString()
	s.accounts[acct.ID] = acct
	s.byUsername[acct.Username] = acct.ID
	return acct, nil
}

func (s *MemoryStore) AccountByUsername(ctx context.Context, username string) (models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byUsername[username]
	if !ok {
		return models.Account{}, ErrNotFound
	}
	return s.accounts[id], nil
}

func (s *MemoryStore) AccountByID(ctx context.Context, id string) (models.Account, error) {
	if err := validateMemoryID(id); err != nil {
		return models.Account{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[id]
	if !ok {
		return models.Account{}, ErrNotFound
	}
	return acct, nil
}

func (s *MemoryStore) AddRecord(ctx context.Context, rec models.HistoryRecord) (models.HistoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = uuid.NewString()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}
	s.seq++
	s.records[rec.ID] = storedRecord{HistoryRecord: rec, seq: s.seq}
	return rec, nil
}

func (s *MemoryStore) RecentRecords(ctx context.Context, userID string, limit int) ([]models.HistoryRecord, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	s.mu.RLock()
	matched := make([]storedRecord, 0)
	for _, rec := range s.records {
		if rec.UserID == userID {
			matched = append(matched, rec)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].seq > matched[j].seq
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	out := make([]models.HistoryRecord, len(matched))
	for i, rec := range matched {
		out[i] = rec.HistoryRecord
	}
	return out, nil
}

func (s *MemoryStore) DeleteRecord(ctx context.Context, id string) error {
	if err := validateMemoryID(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close(ctx context.Context) error { return nil }

func validateMemoryID(id string) error {
	if _, err := uuid.Parse(strings.TrimSpace(id)); err != nil {
		return ErrInvalidID
	}
	return nil
}
