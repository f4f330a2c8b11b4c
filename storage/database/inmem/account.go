package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/socportal/jumuiya/core"
	"github.com/socportal/jumuiya/core/account"
)

type accountRepository struct {
	db *DB
}

func NewAccountRepository(db *DB) account.Repository {
	return &accountRepository{db: db}
}

// conflict must be called with the lock held.
func (repo *accountRepository) conflict(email, matric string, excludedIDs ...string) error {
	for _, acc := range repo.db.accounts {
		if core.ContainsString(excludedIDs, acc.ID) {
			continue
		}
		if email != "" && strings.EqualFold(acc.Email, email) {
			return account.ErrEmailExists
		}
		if matric != "" && strings.EqualFold(acc.MatricNumber, matric) {
			return account.ErrMatricExists
		}
	}
	return nil
}

func (repo *accountRepository) CheckUniqueness(_ context.Context, email, matric string, excludedIDs ...string) error {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.conflict(email, matric, excludedIDs...)
}

func (repo *accountRepository) CreateAccount(_ context.Context, acc account.Account) (account.Account, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if err := repo.conflict(acc.Email, acc.MatricNumber); err != nil {
		return account.Account{}, err
	}
	repo.db.accounts[acc.ID] = &acc
	return acc, nil
}

func (repo *accountRepository) GetAccount(_ context.Context, filter account.GetFilter) (account.Account, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if filter.ID != "" {
		if acc, ok := repo.db.accounts[filter.ID]; ok {
			return *acc, nil
		}
		return account.Account{}, account.ErrNotFound
	}
	for _, acc := range repo.db.accounts {
		if (filter.Email != "" && strings.EqualFold(acc.Email, filter.Email)) ||
			(filter.MatricNumber != "" && strings.EqualFold(acc.MatricNumber, filter.MatricNumber)) {
			return *acc, nil
		}
	}
	return account.Account{}, account.ErrNotFound
}

func (repo *accountRepository) QueryAccounts(_ context.Context, filter account.QueryFilter, ordering ...core.DBOrdering) ([]account.Account, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	accs := make([]account.Account, 0, len(repo.db.accounts))
	for _, acc := range repo.db.accounts {
		if filter.Match(*acc) {
			accs = append(accs, *acc)
		}
	}
	// newest first unless asked otherwise; only created_at and email are honoured here
	asc, byEmail := false, false
	if len(ordering) > 0 {
		asc = ordering[0].Ascending
		byEmail = ordering[0].Field == "email"
	}
	sort.SliceStable(accs, func(i, j int) bool {
		if byEmail {
			if asc {
				return accs[i].Email < accs[j].Email
			}
			return accs[i].Email > accs[j].Email
		}
		if asc {
			return accs[i].CreatedAt.Before(accs[j].CreatedAt)
		}
		return accs[i].CreatedAt.After(accs[j].CreatedAt)
	})
	return accs, nil
}

// update applies fn to the stored account under the write lock.
func (repo *accountRepository) update(id string, fn func(acc *account.Account)) (account.Account, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	acc, ok := repo.db.accounts[id]
	if !ok {
		return account.Account{}, account.ErrNotFound
	}
	fn(acc)
	return *acc, nil
}

func (repo *accountRepository) UpdateProfile(_ context.Context, changes account.Account) (account.Account, error) {
	return repo.update(changes.ID, func(acc *account.Account) {
		acc.FirstName = changes.FirstName
		acc.LastName = changes.LastName
		acc.OtherName = changes.OtherName
		acc.Gender = changes.Gender
		acc.DateOfBirth = changes.DateOfBirth
		acc.Phone = changes.Phone
		acc.Level = changes.Level
		acc.Address = changes.Address
		acc.Bio = changes.Bio
		acc.AvatarURL = changes.AvatarURL
		if changes.PasswordHash != nil {
			acc.PasswordHash = changes.PasswordHash
		}
		acc.ProfileCompletion = changes.ProfileCompletion
		acc.UpdatedAt = changes.UpdatedAt
	})
}

func (repo *accountRepository) SetApprovalStatus(_ context.Context, id, status string, at time.Time) (account.Account, error) {
	return repo.update(id, func(acc *account.Account) {
		acc.ApprovalStatus = status
		acc.UpdatedAt = at
	})
}

func (repo *accountRepository) SetRole(_ context.Context, id, role string, at time.Time) (account.Account, error) {
	return repo.update(id, func(acc *account.Account) {
		acc.Role = role
		acc.UpdatedAt = at
	})
}

func (repo *accountRepository) SetPasswordHash(_ context.Context, id string, hash []byte, at time.Time) error {
	_, err := repo.update(id, func(acc *account.Account) {
		acc.PasswordHash = hash
		acc.UpdatedAt = at
	})
	return err
}

func (repo *accountRepository) SetLastLogin(_ context.Context, id string, at time.Time) error {
	_, err := repo.update(id, func(acc *account.Account) { acc.LastLogin = at })
	return err
}
