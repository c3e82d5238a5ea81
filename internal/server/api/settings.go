// Package api provides HTTP API handlers for vigil's local preview server.
package api

import (
	"errors"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"github.com/ayusman/vigil/internal/config"
	"github.com/ayusman/vigil/internal/log"
	"github.com/ayusman/vigil/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// SettingsHandler reads and persists classifier threshold overrides.
// Changes apply from the next monitoring session.
type SettingsHandler struct {
	store    *store.Store
	defaults config.Thresholds
}

// NewSettingsHandler creates a SettingsHandler. defaults are the thresholds
// in effect before persisted overrides, typically from the environment.
func NewSettingsHandler(s *store.Store, defaults config.Thresholds) *SettingsHandler {
	return &SettingsHandler{store: s, defaults: defaults}
}

type settingsResponse struct {
	Thresholds config.Thresholds `json:"thresholds"`
	Overrides  map[string]string `json:"overrides"`
	AppliesTo  string            `json:"applies_to"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// ServeHTTP implements the http.Handler interface.
func (h *SettingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.get(w, r)
	case http.MethodPut:
		h.update(w, r)
	case http.MethodDelete:
		h.reset(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// current returns the effective thresholds and the persisted threshold overrides.
func (h *SettingsHandler) current() (config.Thresholds, map[string]string, error) {
	all, err := h.store.Settings().Map()
	if err != nil {
		return config.Thresholds{}, nil, err
	}

	overrides := make(map[string]string)
	for _, key := range config.SettingKeys {
		if v, ok := all[key]; ok {
			overrides[key] = v
		}
	}

	t, err := h.defaults.WithSettings(overrides)
	if err != nil {
		return config.Thresholds{}, nil, err
	}
	return t, overrides, nil
}

func (h *SettingsHandler) respond(w http.ResponseWriter) {
	t, overrides, err := h.current()
	if err != nil {
		log.Error(log.Fields{"error": err.Error()}, "[api.SettingsHandler] failed to load settings")
		writeError(w, http.StatusInternalServerError, "Failed to load settings")
		return
	}
	writeJSON(w, http.StatusOK, settingsResponse{
		Thresholds: t,
		Overrides:  overrides,
		AppliesTo:  "next_session",
	})
}

// get handles GET /api/settings.
func (h *SettingsHandler) get(w http.ResponseWriter, r *http.Request) {
	h.respond(w)
}

// update handles PUT /api/settings with a partial thresholds object.
func (h *SettingsHandler) update(w http.ResponseWriter, r *http.Request) {
	var patch config.ThresholdPatch
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if patch.Empty() {
		writeError(w, http.StatusBadRequest, "No settings to update")
		return
	}

	current, _, err := h.current()
	if err != nil {
		log.Error(log.Fields{"error": err.Error()}, "[api.SettingsHandler] failed to load settings")
		writeError(w, http.StatusInternalServerError, "Failed to load settings")
		return
	}

	next := current.Apply(patch)
	if err := next.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Persist only the keys the patch touched.
	all := next.Settings()
	changed := make(map[string]string)
	for _, key := range patch.Keys() {
		changed[key] = all[key]
	}

	if err := h.store.Settings().SetMany(changed); err != nil {
		log.Error(log.Fields{"error": err.Error()}, "[api.SettingsHandler] failed to save settings")
		writeError(w, http.StatusInternalServerError, "Failed to save settings")
		return
	}

	log.Info(log.Fields{"settings": changed}, "[api.SettingsHandler] thresholds updated")
	h.respond(w)
}

// reset handles DELETE /api/settings, dropping every threshold override.
func (h *SettingsHandler) reset(w http.ResponseWriter, r *http.Request) {
	for _, key := range config.SettingKeys {
		if err := h.store.Settings().Delete(key); err != nil && !errors.Is(err, store.ErrNotFound) {
			log.Error(log.Fields{"error": err.Error()}, "[api.SettingsHandler] failed to reset settings")
			writeError(w, http.StatusInternalServerError, "Failed to reset settings")
			return
		}
	}
	h.respond(w)
}
