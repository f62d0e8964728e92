// Copyright 2025 The March Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package httpapi is the read-only HTTP inspector over a store: word
// introspection, the run-word ABI, and name-index lookups (§6
// [EXPANDED] "Run-word ABI surface"), modeled on the teacher's
// cmd/cie/serve.go mux-of-handlers shape but trimmed to read-only
// endpoints — this core never accepts writes over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kraklabs/march/internal/codec"
	"github.com/kraklabs/march/internal/errs"
	"github.com/kraklabs/march/internal/gstate"
	"github.com/kraklabs/march/internal/interp"
	"github.com/kraklabs/march/internal/objects"
	"github.com/kraklabs/march/internal/store"
	"github.com/kraklabs/march/internal/types"
)

// Metrics is the small set of counters cmd/march wires to a prometheus
// registry when --metrics is passed (§9 [EXPANDED] "Metrics"). A nil
// Metrics is valid and means "don't record."
type Metrics interface {
	WordServed()
	WordRun(ok bool)
}

// Server is the HTTP inspector. It holds no mutable state of its own;
// all state lives in the store and the global-state runtime it wraps.
type Server struct {
	st      *store.Store
	ip      *interp.Interp
	logger  *slog.Logger
	metrics Metrics
}

// New builds a Server. A nil logger defaults to slog.Default(); a nil
// gs starts the interpreter with a fresh, empty global-state runtime.
func New(st *store.Store, gs *gstate.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if gs == nil {
		gs = gstate.New()
	}
	return &Server{st: st, ip: interp.New(st, gs, logger), logger: logger}
}

// SetMetrics installs a Metrics sink, replacing any previous one.
func (s *Server) SetMetrics(m Metrics) { s.metrics = m }

// Mux builds the inspector's http.ServeMux. Handler registration is
// split out from New so a caller (cmd/march) can add /metrics itself.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/word/", s.handleWord)
	mux.HandleFunc("/run/", s.handleRun)
	mux.HandleFunc("/name/", s.handleName)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleWord serves GET /word/{cid}: the decoded Word or Guard record
// for cid, whichever kind it turns out to be.
func (s *Server) handleWord(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	cid, err := parseCIDPath(r.URL.Path, "/word/")
	if err != nil {
		httpError(w, http.StatusBadRequest, err)
		return
	}
	kind, data, err := s.st.Load(cid)
	if err != nil {
		writeStoreErr(w, err)
		return
	}

	var body any
	switch kind {
	case objects.KindWord:
		word, err := objects.DecodeWord(data)
		if err != nil {
			httpError(w, http.StatusInternalServerError, err)
			return
		}
		body = wordView(cid, word)
	case objects.KindGuard:
		guard, err := objects.DecodeGuard(data)
		if err != nil {
			httpError(w, http.StatusInternalServerError, err)
			return
		}
		body = guardView(cid, guard)
	default:
		httpError(w, http.StatusBadRequest, errors.New("cid does not name a word or guard"))
		return
	}
	if s.metrics != nil {
		s.metrics.WordServed()
	}
	writeJSON(w, http.StatusOK, body)
}

type wordResponse struct {
	CID        string   `json:"cid"`
	Root       string   `json:"root"`
	Params     []string `json:"params"`
	Results    []string `json:"results"`
	EffectMask uint32   `json:"effect_mask"`
	Guards     []string `json:"guards"`
}

func wordView(cid codec.CID, w objects.Word) wordResponse {
	guards := make([]string, len(w.Guards))
	for i, g := range w.Guards {
		guards[i] = g.Hex()
	}
	return wordResponse{
		CID:        cid.Hex(),
		Root:       w.Root.Hex(),
		Params:     tagStrings(w.Params),
		Results:    tagStrings(w.Results),
		EffectMask: uint32(w.EffectMask),
		Guards:     guards,
	}
}

type guardResponse struct {
	CID        string   `json:"cid"`
	Root       string   `json:"root"`
	Params     []string `json:"params"`
	Results    []string `json:"results"`
	EffectMask uint32   `json:"effect_mask"`
}

func guardView(cid codec.CID, g objects.Guard) guardResponse {
	return guardResponse{
		CID:        cid.Hex(),
		Root:       g.Root.Hex(),
		Params:     tagStrings(g.Params),
		Results:    tagStrings(g.Results),
		EffectMask: uint32(g.EffectMask),
	}
}

// handleRun serves POST /run/{cid} with a JSON array of argument
// values in the request body, running the word and returning its
// results the same way.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	cid, err := parseCIDPath(r.URL.Path, "/run/")
	if err != nil {
		httpError(w, http.StatusBadRequest, err)
		return
	}

	var wire []wireValue
	if err := json.NewDecoder(r.Body).Decode(&wire); err != nil {
		httpError(w, http.StatusBadRequest, err)
		return
	}
	args := make([]interp.Value, len(wire))
	for i, v := range wire {
		conv, err := v.toInterp()
		if err != nil {
			httpError(w, http.StatusBadRequest, err)
			return
		}
		args[i] = conv
	}

	results, err := s.ip.RunWord(cid, args)
	if s.metrics != nil {
		s.metrics.WordRun(err == nil)
	}
	if err != nil {
		writeRunErr(w, err)
		return
	}

	out := make([]wireValue, len(results))
	for i, v := range results {
		out[i] = fromInterp(v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": out})
}

// handleName serves GET /name/{scope}/{name}, resolving a registered
// name to its CID.
func (s *Server) handleName(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/name/")
	scope, name, ok := strings.Cut(rest, "/")
	if !ok || scope == "" || name == "" {
		httpError(w, http.StatusBadRequest, errors.New("expected /name/{scope}/{name}"))
		return
	}
	cid, ok, err := s.st.GetName(scope, name)
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	if !ok {
		httpError(w, http.StatusNotFound, errors.New("name not registered"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cid": cid.Hex()})
}

func parseCIDPath(path, prefix string) (codec.CID, error) {
	hex := strings.TrimPrefix(path, prefix)
	hex = strings.TrimSuffix(hex, "/")
	if hex == "" {
		return codec.CID{}, errors.New("missing cid")
	}
	return codec.ParseCID(hex)
}

func tagStrings(ts []types.Tag) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.String()
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func httpError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeStoreErr(w http.ResponseWriter, err error) {
	if errs.Is(err, errs.NotFound) {
		httpError(w, http.StatusNotFound, err)
		return
	}
	httpError(w, http.StatusInternalServerError, err)
}

func writeRunErr(w http.ResponseWriter, err error) {
	switch {
	case errs.Is(err, errs.NotFound):
		httpError(w, http.StatusNotFound, err)
	case errs.Is(err, errs.DeoptTriggered), errs.Is(err, errs.TypeMismatch),
		errs.Is(err, errs.ArityMismatch), errs.Is(err, errs.StackUnderflow):
		httpError(w, http.StatusUnprocessableEntity, err)
	default:
		httpError(w, http.StatusInternalServerError, err)
	}
}
