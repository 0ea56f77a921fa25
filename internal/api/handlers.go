// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"golang.org/x/sys/unix"

	uerrors "grimm.is/uidpolicy/internal/errors"
	"grimm.is/uidpolicy/internal/netmaps"
	"grimm.is/uidpolicy/internal/policy"
)

// BlockedResponse answers a UID block query.
type BlockedResponse struct {
	UID     uint32        `json:"uid"`
	Metered bool          `json:"metered"`
	Blocked bool          `json:"blocked"`
	Reason  policy.Reason `json:"reason"`
}

// ChainResponse reports a chain's state, and a UID's rule when asked.
type ChainResponse struct {
	Chain     string  `json:"chain"`
	AllowList bool    `json:"allow_list"`
	Enabled   *bool   `json:"enabled,omitempty"`
	UID       *uint32 `json:"uid,omitempty"`
	Rule      string  `json:"rule,omitempty"`
}

// HealthResponse reports initialization progress.
type HealthResponse struct {
	Ready  bool            `json:"ready"`
	State  string          `json:"state"`
	Tier   string          `json:"tier"`
	Tables map[string]bool `json:"tables"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	Errno     string `json:"errno,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Ready:  s.q.Ready(),
		State:  s.q.State().String(),
		Tier:   s.q.Tier().String(),
		Tables: s.q.TableStatus(),
	}
	code := http.StatusOK
	if !resp.Ready {
		code = http.StatusServiceUnavailable
	}
	respondWithJSON(w, code, resp)
}

func (s *Server) handleUIDBlocked(w http.ResponseWriter, r *http.Request) {
	uid, err := parseUID(mux.Vars(r)["uid"])
	if err != nil {
		s.respondWithError(w, r, badRequest(err))
		return
	}
	metered := false
	if v := r.URL.Query().Get("metered"); v != "" {
		metered, err = strconv.ParseBool(v)
		if err != nil {
			s.respondWithError(w, r, badRequest(fmt.Errorf("invalid metered flag %q", v)))
			return
		}
	}

	d, err := s.q.Decide(uid, metered)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, BlockedResponse{UID: uid, Metered: metered, Blocked: d.Blocked, Reason: d.Reason})
}

func (s *Server) handleChain(w http.ResponseWriter, r *http.Request) {
	chain, err := netmaps.ParseChain(mux.Vars(r)["chain"])
	if err != nil {
		s.respondWithError(w, r, badRequest(err))
		return
	}
	enabled, err := s.q.ChainEnabled(chain)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, ChainResponse{Chain: chain.String(), AllowList: chain.IsAllowList(), Enabled: &enabled})
}

func (s *Server) handleUIDRule(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	chain, err := netmaps.ParseChain(vars["chain"])
	if err != nil {
		s.respondWithError(w, r, badRequest(err))
		return
	}
	uid, err := parseUID(vars["uid"])
	if err != nil {
		s.respondWithError(w, r, badRequest(err))
		return
	}
	rule, err := s.q.UIDRule(chain, uid)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, ChainResponse{Chain: chain.String(), AllowList: chain.IsAllowList(), UID: &uid, Rule: rule.String()})
}

func parseUID(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid uid %q", s)
	}
	return uint32(v), nil
}

func badRequest(err error) error {
	return uerrors.WithErrno(uerrors.Wrap(err, uerrors.KindValidation, "bad request"), unix.EINVAL)
}

// statusFor maps an error kind onto an HTTP status.
func statusFor(err error) int {
	switch uerrors.GetKind(err) {
	case uerrors.KindValidation:
		return http.StatusBadRequest
	case uerrors.KindNotInitialized:
		return http.StatusServiceUnavailable
	case uerrors.KindReadFailed:
		return http.StatusBadGateway
	case uerrors.KindUnsupported:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	resp := ErrorResponse{
		Error:     err.Error(),
		Kind:      uerrors.GetKind(err).String(),
		RequestID: RequestID(r.Context()),
	}
	if errno, ok := uerrors.Errno(err); ok {
		resp.Errno = unix.ErrnoName(errno)
	}
	if code >= http.StatusInternalServerError {
		s.logger.Warn("Request failed", "path", r.URL.Path, "status", code, "request_id", resp.RequestID, "error", err)
	}
	respondWithJSON(w, code, resp)
}

// respondWithJSON sends a JSON response
func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}
