package fakeuserrepo

import (
	"sort"
	"sync"

	remyerrors "github.com/jrsteele09/remycare-client/internal/errors"
	"github.com/jrsteele09/remycare-client/users"
)

var _ users.Repo = (*FakeUserRepo)(nil)

type FakeUserRepo struct {
	accounts map[int64]*users.Account
	phoneIDs map[string]int64 // phone number to account id
	nextID   int64
	lock     sync.RWMutex
}

func NewFakeUserRepo() users.Repo {
	return &FakeUserRepo{
		accounts: make(map[int64]*users.Account),
		phoneIDs: make(map[string]int64),
	}
}

// Upsert stores the account, assigning the next free id when ID is zero.
func (ur *FakeUserRepo) Upsert(account *users.Account) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if account.ID == 0 {
		ur.nextID++
		account.ID = ur.nextID
	} else if account.ID > ur.nextID {
		ur.nextID = account.ID
	}
	ur.accounts[account.ID] = account
	ur.phoneIDs[account.PhoneNumber] = account.ID
	return nil
}

func (ur *FakeUserRepo) GetByID(id int64) (*users.Account, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	account, ok := ur.accounts[id]
	if !ok {
		return nil, remyerrors.ErrNotFound
	}
	return account, nil
}

func (ur *FakeUserRepo) GetByPhone(phoneNumber string) (*users.Account, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	id, ok := ur.phoneIDs[phoneNumber]
	if !ok {
		return nil, remyerrors.ErrNotFound
	}
	return ur.accounts[id], nil
}

func (ur *FakeUserRepo) List() ([]*users.Account, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	accounts := make([]*users.Account, 0, len(ur.accounts))
	for _, a := range ur.accounts {
		accounts = append(accounts, a)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].ID < accounts[j].ID
	})
	return accounts, nil
}
