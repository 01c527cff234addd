package fakeapi

import (
	"sort"
	"sync"
	"time"

	remyerrors "github.com/jrsteele09/remycare-client/internal/errors"
)

type Mother struct {
	ID       int64  `json:"id"`
	UserID   int64  `json:"user_id"`
	Name     string `json:"mother_name"`
	DOB      string `json:"dob,omitempty"`
	DueDate  string `json:"due_date,omitempty"`
	Location string `json:"location,omitempty"`
	CHWID    int64  `json:"chw_id,omitempty"`
}

type Checkin struct {
	ID        int64     `json:"id"`
	MotherID  int64     `json:"mother_id"`
	Mood      string    `json:"mood"`
	Symptoms  []string  `json:"symptoms"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type EscalationStatus string

const (
	EscalationPending      EscalationStatus = "pending"
	EscalationAcknowledged EscalationStatus = "acknowledged"
	EscalationResolved     EscalationStatus = "resolved"
)

func (s EscalationStatus) Valid() bool {
	switch s {
	case EscalationPending, EscalationAcknowledged, EscalationResolved:
		return true
	}
	return false
}

type Escalation struct {
	ID        int64            `json:"id"`
	MotherID  int64            `json:"mother_id"`
	CHWID     int64            `json:"chw_id"`
	NurseID   int64            `json:"nurse_id"`
	Reason    string           `json:"reason"`
	Priority  string           `json:"priority"`
	Status    EscalationStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// store holds the clinical records behind the demo endpoints. Values are
// copied in and out so handlers never share a record.
type store struct {
	lock        sync.RWMutex
	mothers     map[int64]Mother
	checkins    map[int64][]Checkin // mother id -> check-ins, oldest first
	escalations map[int64]Escalation
	nurses      []int64 // nurse profile ids, in registration order
	nextID      map[string]int64
}

func newStore() *store {
	return &store{
		mothers:     make(map[int64]Mother),
		checkins:    make(map[int64][]Checkin),
		escalations: make(map[int64]Escalation),
		nextID:      make(map[string]int64),
	}
}

func (st *store) allocate(kind string) int64 {
	st.nextID[kind]++
	return st.nextID[kind]
}

// newProfileID allocates an id in the profile table of kind: mother, chw or
// nurse.
func (st *store) newProfileID(kind string) int64 {
	st.lock.Lock()
	defer st.lock.Unlock()
	id := st.allocate(kind)
	if kind == "nurse" {
		st.nurses = append(st.nurses, id)
	}
	return id
}

func (st *store) putMother(m Mother) {
	st.lock.Lock()
	defer st.lock.Unlock()
	if m.ID > st.nextID["mother"] {
		st.nextID["mother"] = m.ID
	}
	st.mothers[m.ID] = m
}

func (st *store) mother(id int64) (Mother, error) {
	st.lock.RLock()
	defer st.lock.RUnlock()
	m, ok := st.mothers[id]
	if !ok {
		return Mother{}, remyerrors.ErrNotFound
	}
	return m, nil
}

func (st *store) addCheckin(c Checkin) Checkin {
	st.lock.Lock()
	defer st.lock.Unlock()
	c.ID = st.allocate("checkin")
	st.checkins[c.MotherID] = append(st.checkins[c.MotherID], c)
	return c
}

// checkinsFor returns the check-ins of a mother, newest first.
func (st *store) checkinsFor(motherID int64) []Checkin {
	st.lock.RLock()
	defer st.lock.RUnlock()
	src := st.checkins[motherID]
	out := make([]Checkin, 0, len(src))
	for i := len(src) - 1; i >= 0; i-- {
		out = append(out, src[i])
	}
	return out
}

// firstNurse returns the nurse escalations are routed to.
func (st *store) firstNurse() (int64, bool) {
	st.lock.RLock()
	defer st.lock.RUnlock()
	if len(st.nurses) == 0 {
		return 0, false
	}
	return st.nurses[0], true
}

func (st *store) addEscalation(e Escalation) Escalation {
	st.lock.Lock()
	defer st.lock.Unlock()
	e.ID = st.allocate("escalation")
	st.escalations[e.ID] = e
	return e
}

func (st *store) escalation(id int64) (Escalation, error) {
	st.lock.RLock()
	defer st.lock.RUnlock()
	e, ok := st.escalations[id]
	if !ok {
		return Escalation{}, remyerrors.ErrNotFound
	}
	return e, nil
}

func (st *store) putEscalation(e Escalation) {
	st.lock.Lock()
	defer st.lock.Unlock()
	st.escalations[e.ID] = e
}

// escalationsWhere returns matching escalations, newest first.
func (st *store) escalationsWhere(match func(Escalation) bool) []Escalation {
	st.lock.RLock()
	defer st.lock.RUnlock()
	out := make([]Escalation, 0)
	for _, e := range st.escalations {
		if match(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID > out[j].ID
	})
	return out
}
