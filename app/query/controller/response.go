package controller

import (
	"errors"
	"io/fs"
	"net/http"

	"github.com/canopy-network/socialx/pkg/db/models/social"
	"github.com/go-jose/go-jose/v4/json"
	"go.uber.org/zap"
)

const (
	msgUnknownPlatform = "unknown platform"
	msgInternal        = "internal error"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreError maps the error taxonomy to a status. Storage details are logged, never sent.
func (c *Controller) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *social.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, social.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, fs.ErrNotExist):
		writeError(w, http.StatusNotFound, "snapshot not available")
	default:
		c.App.Logger.Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, msgInternal)
	}
}
