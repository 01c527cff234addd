package users

type Repo interface {
	Upsert(account *Account) error
	GetByID(id int64) (*Account, error)
	GetByPhone(phoneNumber string) (*Account, error)
	List() ([]*Account, error)
}
