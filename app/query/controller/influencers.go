package controller

import (
	"context"
	"net/http"

	"github.com/canopy-network/socialx/pkg/redis"
	"github.com/canopy-network/socialx/pkg/snapshot"
	"github.com/gorilla/mux"
)

// HandleInfluencers serves the latest scraped snapshot of a platform as JSON rows keyed by the
// CSV header.
func (c *Controller) HandleInfluencers(w http.ResponseWriter, r *http.Request) {
	catalog, _, ok := c.App.LoadStore(mux.Vars(r)["platform"])
	if !ok {
		writeError(w, http.StatusNotFound, msgUnknownPlatform)
		return
	}
	path := c.App.Snapshots[catalog.Platform]
	if path == "" {
		writeError(w, http.StatusNotFound, "snapshot not available")
		return
	}

	c.serveCached(w, r, "influencers", redis.InfluencersKey(catalog.Platform), c.App.CacheTTL.Influencers,
		func(context.Context) (interface{}, error) {
			return snapshot.ReadRecordsFile(path)
		})
}
