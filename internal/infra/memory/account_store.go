package memory

import (
	"context"
	"sort"
	"sync"

	"cbt-exam-service/internal/domain"
)

// AccountStore is an in-memory implementation of app.AccountRepository and app.SeedStore.
type AccountStore struct {
	mu        sync.RWMutex
	nextID    int64
	accounts  map[int64]*domain.Account
	questions []domain.Question
}

func NewAccountStore() *AccountStore {
	return &AccountStore{
		nextID:   1,
		accounts: make(map[int64]*domain.Account),
	}
}

// AddAccount inserts an account with the next free id and returns it.
func (s *AccountStore) AddAccount(username, passwordHash string) domain.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(username, passwordHash)
}

func (s *AccountStore) addLocked(username, passwordHash string) domain.Account {
	account := &domain.Account{
		ID:           s.nextID,
		Username:     username,
		PasswordHash: passwordHash,
	}
	s.accounts[account.ID] = account
	s.nextID++
	return *account
}

func (s *AccountStore) GetAccount(_ context.Context, id int64) (domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[id]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return copyAccount(account), nil
}

func (s *AccountStore) FindAccount(_ context.Context, username string) (domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, account := range s.accounts {
		if account.Username == username {
			return copyAccount(account), nil
		}
	}
	return domain.Account{}, domain.ErrAccountNotFound
}

// MarkAttempted is a compare-and-swap on the attempted flag.
func (s *AccountStore) MarkAttempted(_ context.Context, id int64, score int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	if account.Attempted {
		return domain.ErrAlreadyAttempted
	}
	account.Attempted = true
	account.Score = &score
	return nil
}

// Accounts returns a snapshot ordered by id.
func (s *AccountStore) Accounts() []domain.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Account, 0, len(s.accounts))
	for _, account := range s.accounts {
		out = append(out, copyAccount(account))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *AccountStore) CountAccounts(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts), nil
}

func (s *AccountStore) CountQuestions(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.questions), nil
}

func (s *AccountStore) InsertAccounts(_ context.Context, accounts []domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range accounts {
		s.addLocked(a.Username, a.PasswordHash)
	}
	return nil
}

func (s *AccountStore) InsertQuestions(_ context.Context, questions []domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var maxID int64
	for _, q := range s.questions {
		if q.ID > maxID {
			maxID = q.ID
		}
	}
	for _, q := range questions {
		if q.ID == 0 {
			q.ID = maxID + 1
		}
		if q.ID > maxID {
			maxID = q.ID
		}
		s.questions = append(s.questions, q)
	}
	return nil
}

// LoadQuestions makes the seeded questions usable as a catalog loader.
func (s *AccountStore) LoadQuestions(_ context.Context) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Question(nil), s.questions...), nil
}

func copyAccount(a *domain.Account) domain.Account {
	out := *a
	if a.Score != nil {
		score := *a.Score
		out.Score = &score
	}
	return out
}
