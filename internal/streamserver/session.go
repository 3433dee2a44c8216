package streamserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/coder/websocket"

	"github.com/fsgdecoder/core/pkg/decoder"
	"github.com/fsgdecoder/core/pkg/decoder/fsg"
	"github.com/fsgdecoder/core/pkg/decoder/hmm"
)

// session drives one websocket connection's decode: a single [decoder.Search]
// bound to a fresh evaluator and grammar manager, never shared with any
// other connection.
type session struct {
	srv    *Server
	id     string
	conn   *websocket.Conn
	log    *slog.Logger
	scorer *frameScorer
	search *decoder.Search
	fsgSet *fsg.Manager

	grammar    string
	frameCount int
}

func newSession(srv *Server, conn *websocket.Conn, id string) *session {
	log := srv.log.With("session", id)
	scorer := newFrameScorer(srv.nSenone)
	fsgSet := fsg.NewManager(srv.dict, srv.silWID, srv.useFiller, srv.useAlt, srv.silProb, srv.fillProb)

	for name, model := range srv.models() {
		// Add is idempotent on an already-augmented, already-compiled
		// model: the shared bootstrap manager augments and compiles each
		// grammar exactly once at startup, so re-adding the same *fsg.Model
		// pointer to a fresh per-connection manager here is a cheap no-op,
		// not a second augmentation pass.
		if err := fsgSet.Add(name, model); err != nil {
			log.Warn("streamserver: register grammar", "grammar", name, "err", err)
		}
	}

	search := decoder.New(srv.cfg, scorer, hmm.NewRefEvaluator(), srv.dict, srv.phone, fsgSet,
		decoder.WithRecorder(srv.rec), decoder.WithLogger(log))

	return &session{
		srv:    srv,
		id:     id,
		conn:   conn,
		log:    log,
		scorer: scorer,
		search: search,
		fsgSet: fsgSet,
	}
}

// run drives the connection until the client disconnects, sends a "finish"
// control frame and the utterance completes, or ctx is cancelled.
func (s *session) run(ctx context.Context) {
	defer s.conn.CloseNow()

	if err := s.selectGrammar(s.srv.defaultGrammar); err != nil {
		s.sendError(ctx, err)
		return
	}

	for {
		msgType, data, err := s.conn.Read(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || websocket.CloseStatus(err) != -1 {
				return
			}
			s.log.Warn("streamserver: read", "err", err)
			return
		}

		switch msgType {
		case websocket.MessageBinary:
			if err := s.handleScoreFrame(ctx, data); err != nil {
				s.sendError(ctx, err)
				return
			}
		case websocket.MessageText:
			done, err := s.handleControlFrame(ctx, data)
			if err != nil {
				s.sendError(ctx, err)
				return
			}
			if done {
				_ = s.conn.Close(websocket.StatusNormalClosure, "utterance finished")
				return
			}
		}
	}
}

func (s *session) selectGrammar(name string) error {
	if name == "" {
		return fmt.Errorf("streamserver: no grammar selected")
	}
	if !s.fsgSet.Select(name) {
		return fmt.Errorf("streamserver: %w: %q", decoder.ErrUnknownFSG, name)
	}
	if err := s.search.Reinit(); err != nil {
		return fmt.Errorf("streamserver: reinit: %w", err)
	}
	if err := s.search.Start(); err != nil {
		return fmt.Errorf("streamserver: start: %w", err)
	}
	s.grammar = name
	s.frameCount = 0
	return nil
}

func (s *session) handleControlFrame(ctx context.Context, data []byte) (finished bool, err error) {
	var cf controlFrame
	if err := json.Unmarshal(data, &cf); err != nil {
		return false, fmt.Errorf("streamserver: decode control frame: %w", err)
	}
	switch cf.Type {
	case controlSelectFSG:
		if err := s.selectGrammar(cf.Grammar); err != nil {
			return false, err
		}
		return false, nil
	case controlFinish:
		return true, s.finish(ctx)
	default:
		return false, fmt.Errorf("streamserver: unknown control frame type %q", cf.Type)
	}
}

func (s *session) handleScoreFrame(ctx context.Context, data []byte) error {
	scores, err := decodeScoreFrame(data)
	if err != nil {
		return err
	}
	if err := s.scorer.SetFrame(scores); err != nil {
		return err
	}
	if _, err := s.search.Step(); err != nil {
		return fmt.Errorf("streamserver: step: %w", err)
	}
	s.frameCount++

	hyp, score, err := s.search.Hyp()
	if err != nil && !errors.Is(err, decoder.ErrNoHypothesis) {
		return fmt.Errorf("streamserver: hyp: %w", err)
	}
	msg := hypothesisMessage{Type: messageTypeHypothesis, Frame: s.frameCount, Hyp: hyp, Score: score}
	return s.send(ctx, msg)
}

func (s *session) finish(ctx context.Context) error {
	s.search.Finish()
	hyp, score, err := s.search.Hyp()
	if err != nil && !errors.Is(err, decoder.ErrNoHypothesis) {
		return fmt.Errorf("streamserver: hyp: %w", err)
	}

	segIter, err := s.search.SegIter()
	if err != nil && !errors.Is(err, decoder.ErrNoHypothesis) {
		return fmt.Errorf("streamserver: segiter: %w", err)
	}

	var segments []segmentMessage
	if segIter != nil {
		segIter(func(seg decoder.Segment) bool {
			segments = append(segments, segmentMessage{
				Word: seg.Word, SF: seg.SF, EF: seg.EF, AScr: seg.AScr, LScr: seg.LScr,
			})
			return true
		})
	}

	if s.srv.store != nil && segIter != nil {
		if err := s.srv.store.SaveUtterance(ctx, s.id, s.grammar, hyp, score, s.frameCount, segIter); err != nil {
			s.log.Warn("streamserver: save utterance", "err", err)
		}
	}

	msg := resultMessage{Type: messageTypeResult, Hyp: hyp, Score: score, Frames: s.frameCount, Segments: segments}
	return s.send(ctx, msg)
}

func (s *session) send(ctx context.Context, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("streamserver: marshal message: %w", err)
	}
	return s.conn.Write(ctx, websocket.MessageText, b)
}

func (s *session) sendError(ctx context.Context, err error) {
	b, marshalErr := json.Marshal(errorMessage{Type: messageTypeError, Error: err.Error()})
	if marshalErr != nil {
		s.log.Error("streamserver: marshal error message", "err", marshalErr)
		return
	}
	_ = s.conn.Write(ctx, websocket.MessageText, b)
	s.log.Warn("streamserver: session error", "err", err)
}
