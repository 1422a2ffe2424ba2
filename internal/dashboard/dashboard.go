// Package dashboard serves a read-only HTTP view of the state documents.
// It never mutates state; the control loop owns all writes.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/wardenhq/warden/internal/model"
	"github.com/wardenhq/warden/internal/store"
)

// Server exposes the state documents as JSON endpoints.
type Server struct {
	stateDir string
	addr     string
	logger   *log.Logger
	httpSrv  *http.Server
}

func NewServer(stateDir, addr string, logger *log.Logger) *Server {
	return &Server{stateDir: stateDir, addr: addr, logger: logger}
}

// Run serves until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.docHandler(store.StatusDoc, func() any { return &model.LoopStatus{} }))
	mux.HandleFunc("/api/queue", s.docHandler(store.QueueDoc, func() any { return &model.QueueDocument{} }))
	mux.HandleFunc("/api/resources", s.docHandler(store.ResourcesDoc, func() any { return &model.ResourceSnapshot{} }))
	mux.HandleFunc("/api/confidence", s.docHandler(store.ConfidenceDoc, func() any { return &model.ConfidenceResult{} }))
	mux.HandleFunc("/api/debate", s.docHandler(store.DebateDoc, func() any { return &model.DebateLog{} }))
	mux.HandleFunc("/api/agents", s.docHandler(store.AgentsDoc, func() any { return &model.AgentRoster{} }))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	s.httpSrv = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("%s INFO dashboard: listening on %s", time.Now().Format(time.RFC3339), s.addr)
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("dashboard serve: %w", err)
	}
}

// docHandler loads one state document per request so readers always see the
// latest atomically written version.
func (s *Server) docHandler(doc string, newDoc func() any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		out := newDoc()
		err := store.Load(filepath.Join(s.stateDir, "state", doc), out)
		if err != nil {
			if os.IsNotExist(err) {
				http.Error(w, `{"error":"no data yet"}`, http.StatusNotFound)
				return
			}
			http.Error(w, `{"error":"unreadable document"}`, http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(out); err != nil {
			s.logger.Printf("%s WARN dashboard: encode %s: %v", time.Now().Format(time.RFC3339), doc, err)
		}
	}
}
