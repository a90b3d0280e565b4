package handlers

import (
	"net/http"

	"github.com/jwinr/TechNexus-sub000/internal/adapters/storage/memory"
)

// CounterStoreInfo é o subconjunto do store exposto no snapshot.
type CounterStoreInfo interface {
	Len() int
	Capacity() int
	Shards() int
	Evictions() int64
}

type StatsSnapshot struct {
	Store    StoreSnapshot              `json:"store"`
	Total    *memory.Counters           `json:"total,omitempty"`
	ByRoute  map[string]memory.Counters `json:"by_route,omitempty"`
	Dropped  int64                      `json:"dropped_events"`
	WindowMS int64                      `json:"window_ms"`
}

type StoreSnapshot struct {
	Tracked   int   `json:"tracked"`
	Capacity  int   `json:"capacity"`
	Shards    int   `json:"shards"`
	Evictions int64 `json:"evictions"`
}

// StatsHandler expõe a ocupação do store e, quando disponíveis, os contadores
// de admissão em memória. stats e dropped podem ser nil.
func StatsHandler(store CounterStoreInfo, windowMS int64, stats *memory.StatsStorage, dropped func() int64) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		snap := StatsSnapshot{
			Store: StoreSnapshot{
				Tracked:   store.Len(),
				Capacity:  store.Capacity(),
				Shards:    store.Shards(),
				Evictions: store.Evictions(),
			},
			WindowMS: windowMS,
		}
		if stats != nil {
			total := stats.Total()
			snap.Total = &total
			snap.ByRoute = stats.ByRoute()
		}
		if dropped != nil {
			snap.Dropped = dropped()
		}
		writeJSON(w, http.StatusOK, snap)
	}
}
