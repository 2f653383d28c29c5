package app

import (
	"context"
	"fmt"
	"log"
	"strings"

	"cbt-exam-service/internal/domain"
)

// SeedStore is implemented by stores that can be populated before serving traffic.
type SeedStore interface {
	CountAccounts(ctx context.Context) (int, error)
	CountQuestions(ctx context.Context) (int, error)
	InsertAccounts(ctx context.Context, accounts []domain.Account) error
	InsertQuestions(ctx context.Context, questions []domain.Question) error
}

// SeedAccount is a quiz taker listed in a seed file. An empty password means the
// username doubles as the password.
type SeedAccount struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Seeder hashes credentials and writes accounts and questions to a SeedStore.
type Seeder struct {
	store SeedStore
	cost  int
}

func NewSeeder(store SeedStore, bcryptCost int) *Seeder {
	return &Seeder{store: store, cost: bcryptCost}
}

// Run validates the seed data and inserts it into tables that are still empty.
func (s *Seeder) Run(ctx context.Context, accounts []SeedAccount, questions []domain.Question) error {
	for _, q := range questions {
		if err := q.Validate(); err != nil {
			return err
		}
	}

	n, err := s.store.CountAccounts(ctx)
	if err != nil {
		return fmt.Errorf("count accounts: %w", err)
	}
	if n == 0 {
		rows, err := s.hashAccounts(accounts)
		if err != nil {
			return err
		}
		if err := s.store.InsertAccounts(ctx, rows); err != nil {
			return fmt.Errorf("seed accounts: %w", err)
		}
		log.Printf("seeded %d accounts", len(rows))
	}

	n, err = s.store.CountQuestions(ctx)
	if err != nil {
		return fmt.Errorf("count questions: %w", err)
	}
	if n == 0 && len(questions) > 0 {
		if err := s.store.InsertQuestions(ctx, questions); err != nil {
			return fmt.Errorf("seed questions: %w", err)
		}
		log.Printf("seeded %d questions", len(questions))
	}
	return nil
}

func (s *Seeder) hashAccounts(accounts []SeedAccount) ([]domain.Account, error) {
	seen := make(map[string]struct{}, len(accounts))
	rows := make([]domain.Account, 0, len(accounts))
	for _, a := range accounts {
		username := strings.TrimSpace(a.Username)
		if username == "" {
			return nil, fmt.Errorf("seed account: empty username")
		}
		if _, dup := seen[username]; dup {
			continue
		}
		seen[username] = struct{}{}

		password := a.Password
		if password == "" {
			password = username
		}
		hash, err := HashPassword(password, s.cost)
		if err != nil {
			return nil, fmt.Errorf("hash password for %q: %w", username, err)
		}
		rows = append(rows, domain.Account{Username: username, PasswordHash: hash})
	}
	return rows, nil
}
