// Package streamserver exposes the decoder core over a websocket protocol:
// one client connection gets one live [decoder.Search], driven frame by
// frame by binary senone-score messages and controlled by small JSON
// control frames ("select_fsg", "finish"). It plays the same
// connection-per-goroutine role for this domain that the teacher's
// pkg/audio/webrtc.Connection and internal/discord.Bot play for theirs.
package streamserver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"

	"github.com/fsgdecoder/core/internal/store/postgres"
	"github.com/fsgdecoder/core/pkg/decoder"
	"github.com/fsgdecoder/core/pkg/decoder/dict"
	"github.com/fsgdecoder/core/pkg/decoder/dtype"
	"github.com/fsgdecoder/core/pkg/decoder/fsg"
)

// Option configures a Server at construction time.
type Option func(*Server)

// WithRecorder attaches a telemetry sink shared by every session's Search.
func WithRecorder(r decoder.Recorder) Option {
	return func(s *Server) { s.rec = r }
}

// WithLogger attaches a structured logger; a discarding logger is used if
// none is supplied.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithStore enables persistence of finished utterances.
func WithStore(store *postgres.Store) Option {
	return func(s *Server) { s.store = store }
}

// WithDefaultGrammar sets the grammar a session starts on if the client
// never sends a "select_fsg" control frame.
func WithDefaultGrammar(name string) Option {
	return func(s *Server) { s.defaultGrammar = name }
}

// Server accepts websocket connections and drives one [decoder.Search] per
// connection. It is safe for concurrent use; Server itself holds no
// per-utterance state, only the read-only collaborators every session's
// Search is built from.
type Server struct {
	cfg     decoder.Config
	dict    dict.Dictionary
	phone   decoder.PhoneResolver
	nSenone int

	bootstrap      *fsg.Manager
	defaultGrammar string
	silWID         dtype.WordID
	useFiller      bool
	useAlt         bool
	silProb        dtype.LogProb
	fillProb       dtype.LogProb

	rec   decoder.Recorder
	store *postgres.Store
	log   *slog.Logger

	nextID    atomic.Uint64
	activeMu  sync.Mutex
	active    map[string]context.CancelFunc
	closeOnce sync.Once
	closed    chan struct{}
}

// NewServer creates a Server. bootstrap must already have every grammar the
// server should offer registered via [fsg.Manager.Add] (which augments and
// compiles each one); nSenone is the acoustic model's senone count that
// every incoming binary frame must match.
func NewServer(cfg decoder.Config, d dict.Dictionary, phone decoder.PhoneResolver, bootstrap *fsg.Manager, nSenone int, silWID dtype.WordID, useFiller, useAlt bool, silProb, fillProb dtype.LogProb, opts ...Option) *Server {
	s := &Server{
		cfg:       cfg,
		dict:      d,
		phone:     phone,
		nSenone:   nSenone,
		bootstrap: bootstrap,
		silWID:    silWID,
		useFiller: useFiller,
		useAlt:    useAlt,
		silProb:   silProb,
		fillProb:  fillProb,
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		active:    make(map[string]context.CancelFunc),
		closed:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// models returns a snapshot of every grammar registered on the bootstrap
// manager, for a session to re-register into its own per-connection
// manager.
func (s *Server) models() map[string]*fsg.Model {
	out := make(map[string]*fsg.Model)
	s.bootstrap.All()(func(name string, model *fsg.Model) bool {
		out[name] = model
		return true
	})
	return out
}

// Handler returns an http.Handler that upgrades every request to a
// websocket connection and runs one decode session on it.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.serveWS)
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	select {
	case <-s.closed:
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("streamserver: accept", "err", err)
		return
	}

	id := fmt.Sprintf("sess-%d", s.nextID.Add(1))
	ctx, cancel := context.WithCancel(r.Context())

	s.activeMu.Lock()
	s.active[id] = cancel
	s.activeMu.Unlock()
	defer func() {
		s.activeMu.Lock()
		delete(s.active, id)
		s.activeMu.Unlock()
		cancel()
	}()

	sess := newSession(s, conn, id)
	sess.run(ctx)
}

// Close cancels every active session and marks the server as shut down. It
// is safe to call more than once.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.activeMu.Lock()
		for _, cancel := range s.active {
			cancel()
		}
		s.activeMu.Unlock()
	})
	return nil
}
