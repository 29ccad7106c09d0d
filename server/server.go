package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/tliron/commonlog"

	"github.com/ici-language/ici-sub000/vm"
)

var log = commonlog.GetLogger("ici.server")

// Procedure paths. Messages are CBOR encoded.
const (
	EvalServiceName    = "ici.v1.EvalService"
	SessionServiceName = "ici.v1.SessionService"

	EvaluateProcedure       = "/" + EvalServiceName + "/Evaluate"
	CheckSyntaxProcedure    = "/" + EvalServiceName + "/CheckSyntax"
	CreateSessionProcedure  = "/" + SessionServiceName + "/CreateSession"
	DestroySessionProcedure = "/" + SessionServiceName + "/DestroySession"
	ReleaseHandleProcedure  = "/" + SessionServiceName + "/ReleaseHandle"
	CompleteProcedure       = "/" + SessionServiceName + "/Complete"
)

// Server exposes a running VM over Connect.
type Server struct {
	worker   *VMWorker
	handles  *HandleStore
	sessions *SessionStore
	mux      *http.ServeMux
	idle     *vm.IdleCollector

	stopSweeper func()
}

// ServerOption configures a Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	sweepInterval time.Duration
	handleTTL     time.Duration
	idleInterval  time.Duration
}

// WithHandleTTL sets how long an unused handle survives and how often
// idle handles are swept.
func WithHandleTTL(interval, ttl time.Duration) ServerOption {
	return func(c *serverConfig) {
		c.sweepInterval = interval
		c.handleTTL = ttl
	}
}

// WithIdleCollection sets the period of collections run between
// requests. Zero disables them.
func WithIdleCollection(interval time.Duration) ServerOption {
	return func(c *serverConfig) {
		c.idleInterval = interval
	}
}

// New creates a Server wrapping v, which must have a compiler installed.
// The calling goroutine gives up the VM until Stop.
func New(v *vm.VM, opts ...ServerOption) *Server {
	cfg := &serverConfig{
		sweepInterval: 5 * time.Minute,
		handleTTL:     30 * time.Minute,
		idleInterval:  vm.DefaultIdleInterval,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	worker := NewVMWorker(v)
	handles := NewHandleStore()
	sessions := NewSessionStore(handles)

	s := &Server{
		worker:   worker,
		handles:  handles,
		sessions: sessions,
		mux:      http.NewServeMux(),
	}

	s.routes()
	s.stopSweeper = handles.StartSweeper(worker, cfg.sweepInterval, cfg.handleTTL)
	if cfg.idleInterval > 0 {
		s.idle = vm.NewIdleCollector(v, cfg.idleInterval)
		s.idle.Start()
	}

	return s
}

// routes mounts the services on the mux.
func (s *Server) routes() {
	evalSvc := NewEvalService(s.worker, s.handles, s.sessions)
	sessionSvc := NewSessionService(s.worker, s.sessions, s.handles)

	codec := connect.WithCodec(cborCodec{})
	s.mux.Handle(EvaluateProcedure, connect.NewUnaryHandler(EvaluateProcedure, evalSvc.Evaluate, codec))
	s.mux.Handle(CheckSyntaxProcedure, connect.NewUnaryHandler(CheckSyntaxProcedure, evalSvc.CheckSyntax, codec))
	s.mux.Handle(CreateSessionProcedure, connect.NewUnaryHandler(CreateSessionProcedure, sessionSvc.CreateSession, codec))
	s.mux.Handle(DestroySessionProcedure, connect.NewUnaryHandler(DestroySessionProcedure, sessionSvc.DestroySession, codec))
	s.mux.Handle(ReleaseHandleProcedure, connect.NewUnaryHandler(ReleaseHandleProcedure, sessionSvc.ReleaseHandle, codec))
	s.mux.Handle(CompleteProcedure, connect.NewUnaryHandler(CompleteProcedure, sessionSvc.Complete, codec))
}

// IdleCollections returns the number of collections run between
// requests.
func (s *Server) IdleCollections() uint64 {
	if s.idle == nil {
		return 0
	}
	return s.idle.SweepCount()
}

// Handler returns the HTTP handler serving every procedure.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.mux}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	log.Noticef("ICI server listening on %s", addr)
	log.Infof("  Connect (CBOR): http://%s%s", addr, EvaluateProcedure)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// Stop drops every session and handle and hands the VM back to the
// calling goroutine.
func (s *Server) Stop() {
	if s.stopSweeper != nil {
		s.stopSweeper()
	}
	if s.idle != nil {
		s.idle.Stop()
	}
	s.worker.Do(func(*vm.VM) interface{} {
		s.sessions.DestroyAll()
		s.handles.ReleaseAll()
		return nil
	})
	s.worker.Stop()
}
