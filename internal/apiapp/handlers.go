package apiapp

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/phillip-england/timecard/internal/apperr"
	"github.com/phillip-england/timecard/internal/ledger"
	"github.com/phillip-england/timecard/internal/session"
)

const genericFailure = "Internal server error"

type failureResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type messageResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	SubmissionID string `json:"submission_id,omitempty"`
}

type listResponse struct {
	Success bool              `json:"success"`
	Data    []ledger.TimeCard `json:"data"`
}

type employeeName struct {
	Name string `json:"Name"`
}

type employeesResponse struct {
	Success   bool           `json:"success"`
	Employees []employeeName `json:"employees"`
}

type loginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
	Name    string `json:"name"`
	Role    string `json:"role"`
}

type loginRequest struct {
	Username     string `json:"username" validate:"required"`
	PasswordHash string `json:"passwordHash" validate:"required,hexadecimal"`
}

type reviewRequest struct {
	SubmissionID string `json:"submission_id" validate:"required"`
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	p, err := decodeRequest(w, r)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	action := ParseAction(r.Method, p.str("action"))

	var identity session.Identity
	if action.requiresSession() {
		identity, err = s.sessions.Resolve(r.Context(), p.token(r))
		if err != nil {
			s.fail(w, r, session.ErrUnauthorized, "")
			return
		}
		if action.managerOnly() && !s.isManager(identity.Role) {
			s.logger.Info("role gate rejected request",
				slog.String("username", identity.Username),
				slog.String("role", identity.Role),
				slog.String("action", action.String()))
			s.fail(w, r, apperr.Forbidden("Forbidden"), "")
			return
		}
	}

	switch action {
	case ActionGetAll:
		s.getAll(w, r)
	case ActionGetEmployeeNames:
		s.getEmployeeNames(w, r)
	case ActionLogin:
		s.login(w, r, p)
	case ActionApprove:
		s.approve(w, r, p, identity)
	case ActionUpdate:
		s.update(w, r, p, identity)
	default:
		s.submit(w, r, p, identity)
	}
}

func (s *Server) isManager(role string) bool {
	if len(s.managerRoles) == 0 {
		return true
	}
	_, ok := s.managerRoles[strings.ToLower(strings.TrimSpace(role))]
	return ok
}

func (s *Server) getAll(w http.ResponseWriter, r *http.Request) {
	cards, err := s.ledger.ListAll(r.Context())
	if err != nil {
		s.fail(w, r, err, "Error fetching time cards")
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Success: true, Data: cards})
}

func (s *Server) getEmployeeNames(w http.ResponseWriter, r *http.Request) {
	names, err := s.employees.Names(r.Context())
	if err != nil {
		s.fail(w, r, err, "Error fetching employees")
		return
	}
	employees := make([]employeeName, 0, len(names))
	for _, name := range names {
		employees = append(employees, employeeName{Name: name})
	}
	writeJSON(w, http.StatusOK, employeesResponse{Success: true, Employees: employees})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request, p params) {
	req := loginRequest{Username: p.str("username"), PasswordHash: p.str("passwordHash")}
	if err := s.check(req); err != nil {
		s.fail(w, r, err, "")
		return
	}
	result, err := s.auth.Login(r.Context(), req.Username, req.PasswordHash)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Success: true,
		Token:   result.Token,
		Name:    result.Name,
		Role:    result.Role,
	})
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request, p params, who session.Identity) {
	id, err := s.ledger.Append(r.Context(), p.fields())
	if err != nil {
		s.fail(w, r, err, "Error submitting time card")
		return
	}
	s.logger.Debug("submission accepted", slog.String("submission_id", id), slog.String("session_user", who.Username))
	writeJSON(w, http.StatusOK, messageResponse{
		Success:      true,
		Message:      "Time card submitted successfully",
		SubmissionID: id,
	})
}

func (s *Server) approve(w http.ResponseWriter, r *http.Request, p params, who session.Identity) {
	req := reviewRequest{SubmissionID: p.str("submission_id")}
	if err := s.check(req); err != nil {
		s.fail(w, r, err, "Error approving time card")
		return
	}
	if err := s.ledger.Approve(r.Context(), req.SubmissionID, p.fields()); err != nil {
		s.fail(w, r, err, "Error approving time card")
		return
	}
	s.logger.Info("approval recorded", slog.String("submission_id", req.SubmissionID), slog.String("approved_by", who.Username))
	writeJSON(w, http.StatusOK, messageResponse{
		Success: true,
		Message: "Time card approved and moved to employee sheet",
	})
}

func (s *Server) update(w http.ResponseWriter, r *http.Request, p params, who session.Identity) {
	req := reviewRequest{SubmissionID: p.str("submission_id")}
	if err := s.check(req); err != nil {
		s.fail(w, r, err, "Error updating time card")
		return
	}
	if err := s.ledger.Update(r.Context(), req.SubmissionID, p.fields()); err != nil {
		s.fail(w, r, err, "Error updating time card")
		return
	}
	s.logger.Info("update recorded", slog.String("submission_id", req.SubmissionID), slog.String("updated_by", who.Username))
	writeJSON(w, http.StatusOK, messageResponse{
		Success: true,
		Message: "Time card updated successfully",
	})
}

// check validates a request struct and reports the first failing field.
func (s *Server) check(req any) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.Validation("invalid request")
	}
	first := verrs[0]
	switch first.Tag() {
	case "required":
		return apperr.Validation("%s is required", first.Field())
	case "hexadecimal":
		return apperr.Validation("%s must be a hex digest", first.Field())
	default:
		return apperr.Validation("%s is invalid", first.Field())
	}
}

// fail writes the failure envelope for err. Internal causes are logged and
// replaced with a generic message. prefix names the operation for clients.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, prefix string) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	message := apperr.Message(err, genericFailure)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			slog.String("request_id", chimw.GetReqID(r.Context())),
			slog.String("kind", kind.String()),
			slog.Any("error", err))
		message = genericFailure
	}
	if prefix != "" && kind != apperr.KindAuth && kind != apperr.KindForbidden {
		message = prefix + ": " + message
	}
	writeFailure(w, status, message)
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindAuth:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, failureResponse{Success: false, Error: message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
