package handlers

import (
	"net/http"

	"github.com/geckom/smartcharge-predictor/internal/version"
)

// CheckVersion reports the running version and whether a newer release is
// available.
func CheckVersion(checker *version.Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := checker.Check()
		if err != nil {
			// Degrade to just the current version when GitHub is
			// unreachable.
			JSONResponse(w, map[string]interface{}{
				"current_version": checker.CurrentVersion(),
				"error":           "update check unavailable",
			})
			return
		}
		JSONResponse(w, info)
	}
}
