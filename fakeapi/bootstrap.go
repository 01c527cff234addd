package fakeapi

import (
	"fmt"

	"github.com/jrsteele09/remycare-client/users"
)

// DemoPIN is the PIN of every seeded account.
const DemoPIN = "demo123"

// Seeded demo phone numbers.
const (
	DemoMotherPhone = "+254700000001"
	DemoCHWPhone    = "+254700000002"
	DemoNursePhone  = "+254700000003"
)

type demoAccount struct {
	phone string
	name  string
	role  users.Role
}

var demoAccounts = []demoAccount{
	{phone: DemoMotherPhone, name: "Amina Otieno", role: users.RoleMother},
	{phone: DemoCHWPhone, name: "Grace Wanjiku", role: users.RoleCHW},
	{phone: DemoNursePhone, name: "Faith Njeri", role: users.RoleNurse},
}

// InitialiseDemoData creates one verified account per role, a mother profile
// assigned to the demo CHW, and nothing else.
func (s *Server) InitialiseDemoData() error {
	var chwProfileID int64
	for _, demo := range demoAccounts {
		if _, err := s.users.GetByPhone(demo.phone); err == nil {
			continue // already present
		}

		hash, err := users.HashPIN(DemoPIN)
		if err != nil {
			return fmt.Errorf("[InitialiseDemoData] hashing pin: %w", err)
		}
		account := &users.Account{
			UserSummary: users.UserSummary{PhoneNumber: demo.phone, Name: demo.name, Role: demo.role},
			PINHash:     hash,
			ProfileID:   s.data.newProfileID(string(demo.role)),
			Verified:    true,
			Active:      true,
		}
		if err := s.users.Upsert(account); err != nil {
			return fmt.Errorf("[InitialiseDemoData] creating %s: %w", demo.role, err)
		}
		if demo.role == users.RoleCHW {
			chwProfileID = account.ProfileID
		}
		s.logger.Info().Int64("user_id", account.ID).Str("role", string(demo.role)).Str("phone", demo.phone).Msg("Seeded demo account")
	}

	mother, err := s.users.GetByPhone(DemoMotherPhone)
	if err != nil {
		return fmt.Errorf("[InitialiseDemoData] loading demo mother: %w", err)
	}
	s.data.putMother(Mother{
		ID:       mother.ProfileID,
		UserID:   mother.ID,
		Name:     mother.Name,
		DOB:      "1996-04-12",
		DueDate:  "2026-12-01",
		Location: "Kisumu",
		CHWID:    chwProfileID,
	})
	return nil
}
