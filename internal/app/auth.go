package app

import (
	"context"
	"errors"

	"cbt-exam-service/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

// Authenticate looks up username and checks password against the stored bcrypt hash.
func (s *ExamService) Authenticate(ctx context.Context, username, password string) (domain.Account, error) {
	account, err := s.accounts.FindAccount(ctx, username)
	if err != nil {
		return domain.Account{}, storageErr("find account", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return domain.Account{}, domain.ErrInvalidCredentials
		}
		return domain.Account{}, err
	}
	return account, nil
}

// HashPassword hashes a password at the given bcrypt cost (bcrypt.DefaultCost if zero).
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
