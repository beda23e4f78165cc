package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"metabattery/config"
)

type SettingsHandler struct {
	Manager *config.Manager
}

func NewSettingsHandler(m *config.Manager) *SettingsHandler {
	return &SettingsHandler{Manager: m}
}

// RegisterRoutes attaches the settings API to the router.
func (h *SettingsHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/settings", h.GetSettings).Methods(http.MethodGet)
	r.HandleFunc("/api/settings", h.PutSettings).Methods(http.MethodPut)
}

func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.Manager.Load()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// Never leak the upstream credentials through the read endpoint.
	s.Trakt.AccessToken = ""
	writeJSON(w, http.StatusOK, s)
}

func (h *SettingsHandler) PutSettings(w http.ResponseWriter, r *http.Request) {
	old, err := h.Manager.Load()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var s config.Settings
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.StalenessThresholdDays < 0 || s.UpdateFrequencyMinutes < 0 {
		writeError(w, http.StatusBadRequest, "intervals must not be negative")
		return
	}

	// An omitted token keeps the stored one, so a client can round-trip the
	// redacted GET response without wiping credentials.
	if s.Trakt.AccessToken == "" {
		s.Trakt.AccessToken = old.Trakt.AccessToken
	}

	if err := h.Manager.Save(s); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if s.StalenessThresholdDays != old.StalenessThresholdDays {
		log.Printf("[settings] staleness threshold changed days=%d (restart required to apply)", s.StalenessThresholdDays)
	}
	if s.UpdateFrequencyMinutes != old.UpdateFrequencyMinutes {
		log.Printf("[settings] update frequency changed minutes=%d (restart required to apply)", s.UpdateFrequencyMinutes)
	}

	s.Trakt.AccessToken = ""
	writeJSON(w, http.StatusOK, s)
}
