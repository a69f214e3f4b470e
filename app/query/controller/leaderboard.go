package controller

import (
	"context"
	"net/http"
	"strconv"

	"github.com/canopy-network/socialx/pkg/db/models/social"
	"github.com/canopy-network/socialx/pkg/redis"
	"github.com/gorilla/mux"
)

// HandleLeaderboard serves GET /{platform}/leaderboard?page=&per_page=&sort=&order=.
func (c *Controller) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	catalog, store, ok := c.App.LoadStore(mux.Vars(r)["platform"])
	if !ok {
		writeError(w, http.StatusNotFound, msgUnknownPlatform)
		return
	}

	q, err := parseLeaderboardQuery(r, catalog)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	c.serveCached(w, r, "leaderboard", redis.LeaderboardKey(catalog.Platform, q), c.App.CacheTTL.Leaderboard,
		func(ctx context.Context) (interface{}, error) {
			return store.GetLeaderboard(ctx, q)
		})
}

// parseLeaderboardQuery validates paging and canonicalizes sort and order, so every spelling
// of the same request shares one cache entry.
func parseLeaderboardQuery(r *http.Request, catalog social.Catalog) (social.LeaderboardQuery, error) {
	qs := r.URL.Query()
	var q social.LeaderboardQuery

	for _, p := range []struct {
		name string
		dst  *int
	}{{"page", &q.Page}, {"per_page", &q.PerPage}} {
		v := qs.Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return q, &social.ValidationError{Row: -1, Field: p.name, Reason: "must be an integer"}
		}
		if n < 1 {
			return q, &social.ValidationError{Row: -1, Field: p.name, Reason: "must be >= 1"}
		}
		*p.dst = n
	}

	q, err := social.LeaderboardQuery{Page: q.Page, PerPage: q.PerPage}.Normalize()
	if err != nil {
		return q, err
	}
	key := catalog.ResolveSortKey(qs.Get("sort"))
	q.Sort = key.Key()
	q.Order = string(social.ResolveOrder(qs.Get("order"), key))
	return q, nil
}
