package endpoints

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/twitter/solo/common/stats"
)

// JSONSource produces the document served at a registered admin path.
type JSONSource func(r *http.Request) (interface{}, error)

func NewTwitterServer(addr string, stats stats.StatsReceiver) *TwitterServer {
	s := &TwitterServer{
		Addr:  addr,
		Stats: stats,
		mux:   http.NewServeMux(),
	}
	s.mux.HandleFunc("/", helpHandler)
	s.mux.HandleFunc("/health", healthHandler)
	s.mux.HandleFunc("/admin/metrics.json", s.statsHandler)
	return s
}

// TwitterServer serves health, metrics and any admin JSON documents added with AddJSON.
type TwitterServer struct {
	Addr  string
	Stats stats.StatsReceiver

	mux    *http.ServeMux
	mu     sync.Mutex
	server *http.Server
}

// AddJSON serves src as application/json at path.
func (s *TwitterServer) AddJSON(path string, src JSONSource) {
	s.mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		v, err := src(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var b []byte
		if r.URL.Query().Get("pretty") == "true" {
			b, err = json.MarshalIndent(v, "", "  ")
		} else {
			b, err = json.Marshal(v)
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, b)
	})
}

func (s *TwitterServer) Handler() http.Handler {
	return s.mux
}

// Serve listens on Addr and blocks until Shutdown or a listener error.
func (s *TwitterServer) Serve() error {
	l, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	return s.ServeListener(l)
}

func (s *TwitterServer) ServeListener(l net.Listener) error {
	s.mu.Lock()
	s.server = &http.Server{Handler: s.mux}
	srv := s.server
	s.mu.Unlock()

	log.Infof("Serving http & stats on %s", l.Addr())
	err := srv.Serve(l)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *TwitterServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func helpHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	http.Error(w, "Common paths: '/health', '/admin/metrics.json', '/admin/state.json', '/admin/history.json'", http.StatusNotImplemented)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "ok")
}

func (s *TwitterServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	pretty := r.URL.Query().Get("pretty") == "true"
	writeJSON(w, s.Stats.Render(pretty))
}

func writeJSON(w http.ResponseWriter, b []byte) {
	const contentTypeHdr = "Content-Type"
	const contentTypeVal = "application/json; charset=utf-8"
	w.Header().Set(contentTypeHdr, contentTypeVal)
	if _, err := io.Copy(w, bytes.NewBuffer(b)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

type StatScope string

func MakeStatsReceiver(scope StatScope) stats.StatsReceiver {
	return stats.DefaultStatsReceiver().Scope(string(scope))
}
