package controller

import (
	"context"
	"net/http"
	"strings"

	"github.com/canopy-network/socialx/pkg/redis"
	"github.com/gorilla/mux"
)

// HandleHistory serves GET /{platform}/history/{username}.
func (c *Controller) HandleHistory(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	catalog, store, ok := c.App.LoadStore(vars["platform"])
	if !ok {
		writeError(w, http.StatusNotFound, msgUnknownPlatform)
		return
	}
	username := strings.TrimSpace(vars["username"])

	c.serveCached(w, r, "history", redis.HistoryKey(catalog.Platform, username), c.App.CacheTTL.History,
		func(ctx context.Context) (interface{}, error) {
			return store.GetHistory(ctx, username)
		})
}
