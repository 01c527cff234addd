package users_test

import (
	"testing"

	"github.com/jrsteele09/remycare-client/users"
	fakeuserrepo "github.com/jrsteele09/remycare-client/users/repofake"
	"github.com/stretchr/testify/require"
)

func TestPIN(t *testing.T) {
	t.Run("hash and check", func(t *testing.T) {
		hash, err := users.HashPIN("demo123")
		require.NoError(t, err)
		account := &users.Account{PINHash: hash}
		require.True(t, account.CheckPIN("demo123"))
		require.False(t, account.CheckPIN("demo124"))
	})

	t.Run("validate", func(t *testing.T) {
		require.NoError(t, users.ValidatePIN("4821"))
		require.Error(t, users.ValidatePIN("123"))
		require.Error(t, users.ValidatePIN("12 34"))
	})
}

func TestRole_Valid(t *testing.T) {
	require.True(t, users.RoleMother.Valid())
	require.True(t, users.RoleNurse.Valid())
	require.False(t, users.Role("admin").Valid())
}

func TestFakeUserRepo(t *testing.T) {
	repo := fakeuserrepo.NewFakeUserRepo()

	mother := &users.Account{UserSummary: users.UserSummary{PhoneNumber: "+254700000001", Name: "Amina", Role: users.RoleMother}}
	require.NoError(t, repo.Upsert(mother))
	require.Equal(t, int64(1), mother.ID)

	nurse := &users.Account{UserSummary: users.UserSummary{ID: 10, PhoneNumber: "+254700000003", Role: users.RoleNurse}}
	require.NoError(t, repo.Upsert(nurse))

	chw := &users.Account{UserSummary: users.UserSummary{PhoneNumber: "+254700000002", Role: users.RoleCHW}}
	require.NoError(t, repo.Upsert(chw))
	require.Equal(t, int64(11), chw.ID)

	got, err := repo.GetByPhone("+254700000001")
	require.NoError(t, err)
	require.Equal(t, "Amina", got.Name)

	_, err = repo.GetByID(99)
	require.Error(t, err)

	all, err := repo.List()
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, int64(1), all[0].ID)
}
