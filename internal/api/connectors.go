package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/termchat/termchat/internal/connectors"
	"github.com/termchat/termchat/internal/database"
)

type ConnectRequest struct {
	Handle string `json:"handle"`
}

type ServiceMessageRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

type ServiceMessageResponse struct {
	SentMessage connectors.OutboundMessage `json:"sentMessage"`
}

// connectService starts a pending connection and hands the client the
// token and URI to confirm with.
func (s *TermchatApp) connectService(svc *connectors.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ConnectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		if req.Handle == "" {
			errResp := NewValidationError("handle is required")
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		info, err := svc.Connect(r.Context(), req.Handle)
		if err != nil {
			errResp := NewInternalServerError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		s.writeJson(w, http.StatusOK, info)
	}
}

// serviceStatus polls the connection state and mirrors an established
// connection onto the account's connector flags.
func (s *TermchatApp) serviceStatus(svc *connectors.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			errResp := NewValidationError("token is required")
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		status, err := svc.Status(r.Context(), token)
		if err != nil {
			errResp := NewInternalServerError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		if status.Connected {
			s.mirrorConnection(r, svc, token, true)
		}

		s.writeJson(w, http.StatusOK, status)
	}
}

func (s *TermchatApp) disconnectService(svc *connectors.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			errResp := NewValidationError("token is required")
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		if err := svc.Disconnect(r.Context(), token); err != nil {
			var errResp *ApiError
			if errors.Is(err, connectors.ErrNotFound) {
				errResp = NewNotFoundError()
			} else {
				errResp = NewInternalServerError(err)
			}
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		s.mirrorConnection(r, svc, "", false)

		s.writeJson(w, http.StatusOK, map[string]string{"message": "disconnected"})
	}
}

// sendServiceMessage relays an outbound message through an established
// connection; the send is simulated and nothing leaves the process.
func (s *TermchatApp) sendServiceMessage(svc *connectors.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			errResp := NewValidationError("token is required")
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		var req ServiceMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		if req.To == "" {
			errResp := NewValidationError("recipient is required")
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
		if req.Message == "" {
			errResp := NewValidationError("message is required")
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		msg, err := svc.SendMessage(r.Context(), token, req.To, req.Message)
		if err != nil {
			var errResp *ApiError
			switch {
			case errors.Is(err, connectors.ErrNotFound):
				errResp = NewNotFoundError()
			case errors.Is(err, connectors.ErrNotConnected):
				errResp = NewValidationError(err.Error())
			default:
				errResp = NewInternalServerError(err)
			}
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		s.writeJson(w, http.StatusCreated, ServiceMessageResponse{SentMessage: msg})
	}
}

func (s *TermchatApp) serviceContacts(svc *connectors.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			errResp := NewValidationError("token is required")
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		contacts, err := svc.Contacts(r.Context(), token)
		if err != nil {
			var errResp *ApiError
			switch {
			case errors.Is(err, connectors.ErrNotFound):
				errResp = NewNotFoundError()
			case errors.Is(err, connectors.ErrNotConnected):
				errResp = NewValidationError(err.Error())
			default:
				errResp = NewInternalServerError(err)
			}
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		s.writeJson(w, http.StatusOK, map[string][]connectors.Contact{"contacts": contacts})
	}
}

// mirrorConnection copies the connection state onto the account row so
// the profile reflects it. Failures are logged, not surfaced; the token
// store remains the source of truth.
func (s *TermchatApp) mirrorConnection(r *http.Request, svc *connectors.Service, token string, connected bool) {
	userId, ok := UserId(r.Context())
	if !ok {
		return
	}

	var handle string
	if connected {
		conn, found, err := svc.TokenStore().Get(r.Context(), token)
		if err != nil || !found {
			return
		}
		handle = conn.Handle
	}

	if err := s.db.UpdateServiceConnection(database.UpdateServiceConnectionParams{
		UserId:    userId,
		Service:   svc.Name(),
		Connected: connected,
		Handle:    handle,
	}); err != nil {
		s.log.Printf("update %s connection: %v", svc.Name(), err)
	}
}
