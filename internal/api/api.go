// Package api provides the HTTP surface for the Foreman intake service.
//
// It exposes the widget's POST /message endpoint plus small admin endpoints
// for leads, conversations, and health. The chat endpoint never surfaces
// downstream failures: every reachable path answers 200 with usable text.
package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ironpaw/foreman/internal/flow"
	"github.com/ironpaw/foreman/internal/genai"
	"github.com/ironpaw/foreman/internal/notify"
	"github.com/ironpaw/foreman/internal/store"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":8080"

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the server listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// Server wires the flow engine and store behind HTTP handlers.
type Server struct {
	addr   string
	st     store.Store
	engine *flow.Engine
}

// NewServer creates an API server over the given store and flow engine.
func NewServer(st store.Store, engine *flow.Engine, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{addr: cfg.Addr, st: st, engine: engine}
}

// Handler returns the route table. Exposed for httptest-based tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/message", s.withChatRecovery(s.messageHandler))
	mux.HandleFunc("/leads", s.leadsHandler)
	mux.HandleFunc("/conversations", s.conversationsHandler)
	mux.HandleFunc("/health", s.healthHandler)
	return mux
}

// Run starts the HTTP server and blocks.
func (s *Server) Run() error {
	slog.Info("Foreman API running", "addr", s.addr)
	return http.ListenAndServe(s.addr, s.Handler())
}

// Run builds the configured modules and starts the service.
//
// The store defaults to in-memory when no DSN option is given. The closing
// model and the lead notifier are optional: when their credentials are absent
// the engine degrades to the fixed closing sentence and no notification.
func Run(storeOpts []store.Option, genaiOpts []genai.Option, notifyOpts []notify.Option, flowOpts []flow.Option, apiOpts []Option) error {
	st, err := store.NewStore(storeOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	if gaClient, gaErr := genai.NewClient(genaiOpts...); gaErr != nil {
		slog.Info("Closing replies disabled, fixed fallback sentence will be used", "reason", gaErr)
	} else {
		flowOpts = append(flowOpts, flow.WithClosingGenerator(gaClient))
	}

	if notifier, nErr := notify.NewClient(notifyOpts...); nErr != nil {
		slog.Info("Lead notifications disabled", "reason", nErr)
	} else {
		flowOpts = append(flowOpts, flow.WithLeadNotifier(notifier))
	}

	engine := flow.NewEngine(st, flowOpts...)
	return NewServer(st, engine, apiOpts...).Run()
}
