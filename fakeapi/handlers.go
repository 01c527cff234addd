package fakeapi

import (
	"net/http"
	"strings"

	remyerrors "github.com/jrsteele09/remycare-client/internal/errors"
	"github.com/jrsteele09/remycare-client/token"
	"github.com/jrsteele09/remycare-client/users"
)

// Pushed event names.
const (
	EventCheckinNew        = "checkin:new"
	EventEscalationCreated = "escalation:created"
	EventEscalationUpdated = "escalation:updated"
)

type checkinBody struct {
	Mood     string   `json:"mood"`
	Symptoms []string `json:"symptoms"`
	Notes    string   `json:"notes"`
}

type escalationBody struct {
	MotherID int64  `json:"mother_id"`
	Reason   string `json:"reason"`
	Priority string `json:"priority"`
}

type statusBody struct {
	Status EscalationStatus `json:"status"`
}

// checkinEvent is the checkin:new payload.
type checkinEvent struct {
	Checkin
	MotherName string `json:"mother_name"`
}

// canSeeMother reports whether account may read or write the records of m.
// Nurses see every mother.
func canSeeMother(account *users.Account, m Mother) bool {
	switch account.Role {
	case users.RoleMother:
		return account.ProfileID == m.ID
	case users.RoleCHW:
		return account.ProfileID == m.CHWID
	case users.RoleNurse:
		return true
	}
	return false
}

// motherFromPath loads the mother named by the {id} path value and checks
// the caller may see her, writing the error response when not.
func (s *Server) motherFromPath(w http.ResponseWriter, r *http.Request) (Mother, bool) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid mother id")
		return Mother{}, false
	}
	m, err := s.data.mother(id)
	if remyerrors.Is(err, remyerrors.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Mother not found")
		return Mother{}, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return Mother{}, false
	}
	if !canSeeMother(accountFromContext(r.Context()), m) {
		writeError(w, http.StatusForbidden, "Insufficient permissions")
		return Mother{}, false
	}
	return m, true
}

func (s *Server) GetMotherHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, ok := s.motherFromPath(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, m)
	}
}

func (s *Server) ListCheckinsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, ok := s.motherFromPath(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, s.data.checkinsFor(m.ID))
	}
}

// CreateCheckinHandler records a check-in and pushes it to the mother's CHW.
func (s *Server) CreateCheckinHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, ok := s.motherFromPath(w, r)
		if !ok {
			return
		}
		var body checkinBody
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if strings.TrimSpace(body.Mood) == "" {
			writeError(w, http.StatusUnprocessableEntity, "mood is required")
			return
		}
		if body.Symptoms == nil {
			body.Symptoms = []string{}
		}

		c := s.data.addCheckin(Checkin{
			MotherID:  m.ID,
			Mood:      body.Mood,
			Symptoms:  body.Symptoms,
			Notes:     body.Notes,
			CreatedAt: token.NowTimeFunc().UTC(),
		})
		if m.CHWID != 0 {
			s.push(EventCheckinNew, checkinEvent{Checkin: c, MotherName: m.Name}, RoomName(users.RoleCHW, m.CHWID))
		}
		writeJSON(w, http.StatusCreated, c)
	}
}

// ListEscalationsHandler returns the escalations visible to the caller:
// those raised by a CHW, assigned to a nurse, or about a mother.
func (s *Server) ListEscalationsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account := accountFromContext(r.Context())
		var match func(Escalation) bool
		switch account.Role {
		case users.RoleCHW:
			match = func(e Escalation) bool { return e.CHWID == account.ProfileID }
		case users.RoleNurse:
			match = func(e Escalation) bool { return e.NurseID == account.ProfileID }
		default:
			match = func(e Escalation) bool { return e.MotherID == account.ProfileID }
		}

		if status := EscalationStatus(r.URL.Query().Get("status")); status != "" {
			if !status.Valid() {
				writeError(w, http.StatusBadRequest, "Invalid status filter")
				return
			}
			byRole := match
			match = func(e Escalation) bool { return byRole(e) && e.Status == status }
		}
		writeJSON(w, http.StatusOK, s.data.escalationsWhere(match))
	}
}

// CreateEscalationHandler raises an escalation for one of the CHW's mothers
// and routes it to the on-duty nurse.
func (s *Server) CreateEscalationHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account := accountFromContext(r.Context())
		var body escalationBody
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if body.MotherID == 0 || strings.TrimSpace(body.Reason) == "" {
			writeError(w, http.StatusUnprocessableEntity, "mother_id and reason are required")
			return
		}
		if body.Priority == "" {
			body.Priority = "medium"
		}

		m, err := s.data.mother(body.MotherID)
		if err != nil {
			writeError(w, http.StatusNotFound, "Mother not found")
			return
		}
		if !canSeeMother(account, m) {
			writeError(w, http.StatusForbidden, "Insufficient permissions")
			return
		}
		nurseID, ok := s.data.firstNurse()
		if !ok {
			writeError(w, http.StatusServiceUnavailable, "No nurse available")
			return
		}

		now := token.NowTimeFunc().UTC()
		e := s.data.addEscalation(Escalation{
			MotherID:  m.ID,
			CHWID:     account.ProfileID,
			NurseID:   nurseID,
			Reason:    body.Reason,
			Priority:  body.Priority,
			Status:    EscalationPending,
			CreatedAt: now,
			UpdatedAt: now,
		})
		s.push(EventEscalationCreated, e, escalationRooms(e)...)
		writeJSON(w, http.StatusCreated, e)
	}
}

// UpdateEscalationStatusHandler moves an escalation assigned to the calling
// nurse to a new status. Resolved escalations are final.
func (s *Server) UpdateEscalationStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account := accountFromContext(r.Context())
		id, err := parseID(r.PathValue("id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid escalation id")
			return
		}
		var body statusBody
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if !body.Status.Valid() {
			writeError(w, http.StatusUnprocessableEntity, "status must be pending, acknowledged or resolved")
			return
		}

		e, err := s.data.escalation(id)
		if err != nil {
			writeError(w, http.StatusNotFound, "Escalation not found")
			return
		}
		if e.NurseID != account.ProfileID {
			writeError(w, http.StatusForbidden, "Insufficient permissions")
			return
		}
		if e.Status == EscalationResolved {
			writeError(w, http.StatusConflict, "Escalation is already resolved")
			return
		}

		e.Status = body.Status
		e.UpdatedAt = token.NowTimeFunc().UTC()
		s.data.putEscalation(e)
		s.push(EventEscalationUpdated, e, escalationRooms(e)...)
		writeJSON(w, http.StatusOK, e)
	}
}

func escalationRooms(e Escalation) []string {
	return []string{RoomName(users.RoleNurse, e.NurseID), RoomName(users.RoleCHW, e.CHWID)}
}

// push broadcasts and logs failures; the HTTP response does not depend on it.
func (s *Server) push(event string, payload any, rooms ...string) {
	if err := s.hub.Broadcast(event, payload, rooms...); err != nil {
		s.logger.Error().Err(err).Str("event", event).Msg("Push failed")
	}
}
