package http

import (
	"context"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/programme-lv/anytime/httpjson"
	"github.com/programme-lv/anytime/logger"
	"github.com/programme-lv/anytime/submsrvc"
)

const (
	countCacheTTL = time.Second
	countCacheKey = "count"
)

func (httpserver *HttpServer) countSubmissions(w http.ResponseWriter, r *http.Request) {
	count, err := httpserver.cachedCount(r)
	if err != nil {
		httpjson.HandleError(logger.FromContext(r.Context()), w, err)
		return
	}
	httpjson.WriteJson(w, http.StatusOK, countResponse{
		TotalSubmissions: count.Total,
		StorageMethod:    string(count.StorageMethod),
		Timestamp:        nowString(),
	})
}

// cachedCount serves the count from a short lived cache and collapses
// concurrent misses into one backend call. A count read while a
// submission was being stored is returned but not cached.
func (httpserver *HttpServer) cachedCount(r *http.Request) (*submsrvc.SubmCount, error) {
	if v, ok := httpserver.counts.Get(countCacheKey); ok {
		return v.(*submsrvc.SubmCount), nil
	}

	v, err, _ := httpserver.countGroup.Do(countCacheKey, func() (any, error) {
		gen := httpserver.countGen.Load()
		// shared by every waiter, so one client going away must not fail the rest
		count, err := httpserver.submSrvc.CountSubms(context.WithoutCancel(r.Context()))
		if err != nil {
			return nil, err
		}
		if httpserver.countGen.Load() == gen {
			httpserver.counts.Set(countCacheKey, count, cache.DefaultExpiration)
		}
		return count, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*submsrvc.SubmCount), nil
}

func (httpserver *HttpServer) invalidateCount() {
	httpserver.countGen.Add(1)
	httpserver.counts.Delete(countCacheKey)
	httpserver.countGroup.Forget(countCacheKey)
}
