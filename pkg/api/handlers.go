package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gaetancollaud/integrations-mqtt/pkg/controller"
	"github.com/gaetancollaud/integrations-mqtt/pkg/core"
	"github.com/go-chi/chi/v5"
)

// Entry data keys never returned by the API.
var secretKeys = []string{"password", "api_key", "local_key", "code"}

type entryView struct {
	EntryId  string                 `json:"entry_id"`
	Domain   string                 `json:"domain"`
	Title    string                 `json:"title"`
	UniqueId string                 `json:"unique_id,omitempty"`
	Source   core.Source            `json:"source"`
	Data     map[string]interface{} `json:"data"`
	Options  map[string]interface{} `json:"options"`
	State    controller.EntryState  `json:"state"`
	Reason   string                 `json:"reason,omitempty"`
}

func (s *Server) view(entry *core.ConfigEntry) entryView {
	status := s.backend.Status(entry.EntryId)
	return entryView{
		EntryId:  entry.EntryId,
		Domain:   entry.Domain,
		Title:    entry.Title,
		UniqueId: entry.UniqueId,
		Source:   entry.Source,
		Data:     redact(entry.Data),
		Options:  redact(entry.Options),
		State:    status.State,
		Reason:   status.Reason,
	}
}

func redact(data map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		out[k] = v
		for _, secret := range secretKeys {
			if strings.EqualFold(k, secret) {
				out[k] = "**REDACTED**"
			}
		}
	}
	return out
}

// decodeInput reads an optional JSON object. An empty body gives nil.
func decodeInput(r *http.Request) (map[string]interface{}, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, nil
	}
	input := map[string]interface{}{}
	if err := json.Unmarshal(body, &input); err != nil {
		return nil, err
	}
	return input, nil
}

func (s *Server) handleListIntegrations(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"domains": core.Domains()})
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	var (
		entries []*core.ConfigEntry
		err     error
	)
	if domain := r.URL.Query().Get("domain"); domain != "" {
		entries, err = s.backend.Store().ListByDomain(r.Context(), domain)
	} else {
		entries, err = s.backend.Store().List(r.Context())
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	views := make([]entryView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, s.view(entry))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := s.backend.Store().Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(entry))
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.RemoveEntry(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReloadEntry(w http.ResponseWriter, r *http.Request) {
	entryId := chi.URLParam(r, "id")
	err := s.backend.ReloadEntry(r.Context(), entryId)
	if err != nil && (errors.Is(err, core.ErrUnknownEntry) || errors.Is(err, core.ErrUnknownDomain)) {
		writeErr(w, err)
		return
	}
	// Setup failures are reported through the entry state.
	entry, getErr := s.backend.Store().Get(r.Context(), entryId)
	if getErr != nil {
		writeErr(w, getErr)
		return
	}
	writeJSON(w, http.StatusOK, s.view(entry))
}

func (s *Server) handleOptionsFlow(w http.ResponseWriter, r *http.Request) {
	input, err := decodeInput(r)
	if err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	result, err := s.backend.Flows().InitOptions(r.Context(), chi.URLParam(r, "id"), input)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type initFlowRequest struct {
	Domain  string                 `json:"domain"`
	Source  core.Source            `json:"source"`
	EntryId string                 `json:"entry_id"`
	Data    map[string]interface{} `json:"data"`
}

func (s *Server) handleListFlows(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"flows": s.backend.Flows().InProgress()})
}

func (s *Server) handleInitFlow(w http.ResponseWriter, r *http.Request) {
	var req initFlowRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Domain == "" {
		writeBadRequest(w, "domain is required")
		return
	}
	result, err := s.backend.Flows().Init(r.Context(), req.Domain, req.Source, req.EntryId, req.Data)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleConfigureFlow(w http.ResponseWriter, r *http.Request) {
	input, err := decodeInput(r)
	if err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	result, err := s.backend.Flows().Configure(r.Context(), chi.URLParam(r, "id"), input)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAbortFlow(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.Flows().Abort(chi.URLParam(r, "id")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListStates(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.backend.States())
}
