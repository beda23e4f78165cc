package handlers

import (
	"net/http"
	"runtime/debug"
	"sync"
)

// Version is overridable at build time via -ldflags "-X metabattery/handlers.Version=...".
var Version = ""

var (
	version     string
	versionOnce sync.Once
)

type VersionHandler struct{}

type VersionResponse struct {
	Version string `json:"version"`
}

func NewVersionHandler() *VersionHandler {
	return &VersionHandler{}
}

func resolveVersion() string {
	versionOnce.Do(func() {
		if Version != "" {
			version = Version
			return
		}
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
			version = info.Main.Version
			return
		}
		version = "dev"
	})
	return version
}

func (h *VersionHandler) GetVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{Version: resolveVersion()})
}
