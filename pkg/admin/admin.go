// Package admin exposes read-only debug and introspection endpoints
// over the snapshot cache, entirely separate from the xDS gRPC surface.
package admin

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	clog "github.com/xds-controlplane/control-plane/pkg/log"
	"github.com/xds-controlplane/control-plane/pkg/xds/cache"
	v3 "github.com/xds-controlplane/control-plane/pkg/xds/v3"
)

var resourceTypes = v3.Types

// Server serves the debug HTTP surface described in SPEC_FULL.md §4.12.
type Server struct {
	cache    cache.SnapshotCache
	upgrader websocket.Upgrader
}

// New builds an admin Server over c.
func New(c cache.SnapshotCache) *Server {
	return &Server{cache: c}
}

// Handler returns the mux.Router to mount (or serve standalone).
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/debug/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/debug/snapshot/{group}", s.handleSnapshot).Methods(http.MethodGet)
	r.HandleFunc("/debug/ws/status", s.handleStatusWS).Methods(http.MethodGet)
	return r
}

type groupStatus struct {
	Group                string    `json:"group"`
	LastWatchRequestTime time.Time `json:"last_watch_request_time"`
	ParkedWatches        int       `json:"parked_watches"`
}

func (s *Server) snapshotStatus() []groupStatus {
	keys := s.cache.GetStatusKeys()
	out := make([]groupStatus, 0, len(keys))
	for _, group := range keys {
		info := s.cache.GetStatusInfo(group)
		if info == nil {
			continue
		}
		out = append(out, groupStatus{
			Group:                group,
			LastWatchRequestTime: info.LastWatchRequestTime(),
			ParkedWatches:        info.NumWatches(),
		})
	}
	return out
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.snapshotStatus())
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	group := mux.Vars(r)["group"]
	snap, err := s.cache.GetSnapshot(group)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, err)
		return
	}

	versions := map[string]string{}
	for _, t := range resourceTypes {
		if v := snap.GetVersion(t); v != "" {
			versions[t] = v
		}
	}
	writeJSON(w, versions)
}

// handleStatusWS pushes a status snapshot to the client every 5 seconds
// until the request context ends or a write fails. This is a read-only
// observational surface: nothing written here ever flows back into the
// cache.
func (s *Server) handleStatusWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		clog.Config.Warnf("admin websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.WriteJSON(s.snapshotStatus()); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
