package session

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/voxcast/charchat/internal/chat"
	"github.com/voxcast/charchat/internal/metrics"
	"github.com/voxcast/charchat/internal/persona"
	"github.com/voxcast/charchat/internal/protocol"
	"github.com/voxcast/charchat/internal/trace"
	"github.com/voxcast/charchat/internal/tts"
)

// Peer delivers frames to the connected client. Implementations must be
// safe for concurrent use.
type Peer interface {
	SendControl(msg protocol.ServerMessage)
	SendAudio(chunk []byte)
}

// Completer drives one streaming completion exchange per turn.
// *chat.StreamClient is the production implementation.
type Completer interface {
	StreamTurn(ctx context.Context, msgs []chat.Message) <-chan chat.Event
}

// Config holds the shared collaborators and lifecycle thresholds for all
// sessions.
type Config struct {
	Completions Completer
	Synth       tts.Synthesizer

	// WrapUpThreshold is the user-message count at which wrap-up guidance
	// is injected; GoodbyeThreshold ends the conversation.
	WrapUpThreshold  int
	GoodbyeThreshold int

	// TraceStore enables turn tracing when non-nil.
	TraceStore *trace.Store
}

// turnHandle is the cancellation handle for one in-flight turn. At most one
// exists per session.
type turnHandle struct {
	ctx      context.Context
	cancel   context.CancelFunc
	queue    *tts.Queue
	userMsg  string
	greeting bool
	final    bool // goodbye-flagged turn: queue drain ends the chat

	traceID string
	started time.Time
	mark    time.Time // start of the current synthesis span; queue worker only
}

// Session is the per-connection state machine: active persona, conversation
// history, lifecycle counters, and the single in-flight turn handle.
type Session struct {
	id   string
	cfg  Config
	peer Peer

	tracer *trace.Tracer

	mu           sync.Mutex
	active       persona.Persona
	history      *chat.History
	messageCount int
	ending       bool
	chatStarted  bool
	turn         *turnHandle
}

func newSession(id string, cfg Config, peer Peer) *Session {
	p := persona.Default()
	return &Session{
		id:      id,
		cfg:     cfg,
		peer:    peer,
		tracer:  trace.NewTracer(cfg.TraceStore, id),
		active:  p,
		history: chat.NewHistory(p.SystemPrompt),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// HandleControl dispatches one inbound control frame. Raw frames that fail
// to decode get an error reply and mutate nothing.
func (s *Session) HandleControl(raw []byte) {
	msg, err := protocol.DecodeClient(raw)
	if err != nil {
		slog.Warn("bad control message", "session_id", s.id, "error", err)
		s.peer.SendControl(protocol.ErrorMsg(err.Error()))
		return
	}

	switch msg.Type {
	case protocol.TypeChat:
		s.UserMessage(msg.Message, msg.CharacterID)
	case protocol.TypeSwitchCharacter:
		s.SwitchPersona(msg.CharacterID)
	case protocol.TypeStartChat:
		s.StartChat(msg.CharacterID)
	}
}

// UserMessage runs one user turn: cancel-and-replace any in-flight turn,
// advance the lifecycle counter, inject guidance when a threshold is hit,
// and drive a fresh synthesis queue off the completion stream.
func (s *Session) UserMessage(text, characterID string) {
	s.mu.Lock()
	if s.ending {
		s.mu.Unlock()
		s.peer.SendControl(protocol.ErrorMsg("the conversation has ended"))
		return
	}
	if characterID != "" && characterID != s.active.ID && persona.Known(characterID) {
		s.switchPersonaLocked(characterID)
	}

	old := s.detachTurnLocked()

	s.messageCount++
	guidance := ""
	final := false
	switch {
	case s.messageCount >= s.cfg.GoodbyeThreshold:
		s.ending = true
		final = true
		guidance = persona.GoodbyeGuidance
	case s.messageCount >= s.cfg.WrapUpThreshold:
		guidance = persona.WrapUpGuidance
	}

	s.startTurnLocked(text, guidance, false, final, "chat")
	s.mu.Unlock()

	abortDetached(old)
}

// SwitchPersona replaces the active persona, reseeds the history with its
// system message, resets the lifecycle counters, and cancels any in-flight
// turn.
func (s *Session) SwitchPersona(characterID string) {
	s.mu.Lock()
	old := s.detachTurnLocked()
	s.switchPersonaLocked(characterID)
	s.mu.Unlock()

	abortDetached(old)
	slog.Info("persona switched", "session_id", s.id, "character_id", characterID)
}

func (s *Session) switchPersonaLocked(characterID string) {
	p := persona.Get(characterID)
	s.active = p
	s.history.Reset(p.SystemPrompt)
	s.messageCount = 0
	s.ending = false
	s.chatStarted = false
}

// StartChat seeds the scripted greeting turn: a server-chosen random topic
// handed to the model with a greet-then-pivot instruction. Valid once per
// conversation, only while idle.
func (s *Session) StartChat(characterID string) {
	s.mu.Lock()
	if s.chatStarted {
		s.mu.Unlock()
		s.peer.SendControl(protocol.ErrorMsg("chat already started"))
		return
	}
	if s.turn != nil {
		s.mu.Unlock()
		s.peer.SendControl(protocol.ErrorMsg("a turn is already in flight"))
		return
	}
	if characterID != "" && characterID != s.active.ID {
		s.switchPersonaLocked(characterID)
	}

	topic := persona.RandomTopic()
	greeting := persona.GreetingMessage(topic)
	slog.Info("chat starting", "session_id", s.id, "character_id", s.active.ID, "topic", topic)

	s.startTurnLocked(greeting, "", true, false, "greeting")
	s.mu.Unlock()
}

// Close cancels any in-flight work. Called when the connection closes.
func (s *Session) Close() {
	s.mu.Lock()
	old := s.detachTurnLocked()
	s.mu.Unlock()
	abortDetached(old)
	s.tracer.Close()
}

// detachTurnLocked invalidates the current turn handle. The context is
// cancelled under the session lock so every later delivery attempt from the
// superseded turn sees it; the queue abort itself must happen after the
// lock is released (see abortDetached).
func (s *Session) detachTurnLocked() *turnHandle {
	old := s.turn
	if old == nil {
		return nil
	}
	s.turn = nil
	old.cancel()
	metrics.TurnsCancelled.Inc()
	s.tracer.EndTurn(old.traceID, float64(time.Since(old.started).Milliseconds()), old.userMsg, "", "cancelled")
	return old
}

// abortDetached aborts a detached turn's queue outside the session lock,
// keeping the session→queue and queue→session lock orders from crossing.
func abortDetached(old *turnHandle) {
	if old != nil {
		old.queue.Abort()
	}
}

// startTurnLocked builds the request message list, binds a fresh synthesis
// queue to the turn, acknowledges with a thinking frame, and launches the
// turn worker.
func (s *Session) startTurnLocked(userMsg, guidance string, isGreeting, final bool, kind string) {
	msgs := s.history.Messages()
	msgs = append(msgs, chat.Message{Role: chat.RoleUser, Content: userMsg})
	if guidance != "" {
		// Transient policy context: never written to history.
		msgs = append(msgs, chat.Message{Role: chat.RoleSystem, Content: guidance})
	}

	msgCount := s.messageCount
	now := time.Now()
	ctx, cancel := context.WithCancel(context.Background())
	t := &turnHandle{
		ctx:      ctx,
		cancel:   cancel,
		userMsg:  userMsg,
		greeting: isGreeting,
		final:    final,
		traceID:  s.tracer.StartTurn(kind),
		started:  now,
		mark:     now,
	}
	t.queue = tts.NewQueue(ctx, s.cfg.Synth, tts.QueueCallbacks{
		OnAudioChunk: func(chunk []byte) {
			s.deliverAudio(t, chunk)
		},
		OnSentenceEnd: func(idx int) {
			s.tracer.RecordSpan(t.traceID, "synthesis", t.mark, float64(time.Since(t.mark).Milliseconds()),
				"sentence_index="+strconv.Itoa(idx), "ok", "")
			t.mark = time.Now()
			s.deliver(t, protocol.AudioEnd(idx))
		},
		OnDrained: func() {
			if t.final {
				slog.Info("chat ended", "session_id", s.id, "messages", msgCount)
				s.deliver(t, protocol.ChatEnded())
			}
		},
		OnError: func(idx int, err error) {
			slog.Error("synthesis failed", "session_id", s.id, "sentence_index", idx, "error", err)
			s.tracer.RecordSpan(t.traceID, "synthesis", t.mark, float64(time.Since(t.mark).Milliseconds()),
				"sentence_index="+strconv.Itoa(idx), "error", err.Error())
			t.mark = time.Now()
			s.deliver(t, protocol.ErrorMsg("speech synthesis failed for a sentence"))
		},
	})

	s.turn = t
	metrics.TurnsTotal.WithLabelValues(kind).Inc()
	s.peer.SendControl(protocol.Thinking())

	go s.runTurn(t, msgs)
}

// runTurn consumes the turn's event stream and feeds the synthesis queue.
func (s *Session) runTurn(t *turnHandle, msgs []chat.Message) {
	for ev := range s.cfg.Completions.StreamTurn(t.ctx, msgs) {
		if t.ctx.Err() != nil {
			continue // superseded: drain silently
		}
		switch ev.Kind {
		case chat.EventEmotion:
			s.deliver(t, protocol.EmotionMsg(string(ev.Emotion)))
		case chat.EventSentence:
			t.queue.Enqueue(ev.Sentence)
		case chat.EventComplete:
			s.tracer.RecordSpan(t.traceID, "completion", t.started, float64(time.Since(t.started).Milliseconds()),
				"text_len="+strconv.Itoa(len(ev.FullText)), "ok", "")
			s.tracer.EndTurn(t.traceID, float64(time.Since(t.started).Milliseconds()), t.userMsg, ev.FullText, "ok")
			s.completeTurn(t, ev.FullText)
			t.queue.Complete()
		case chat.EventError:
			slog.Error("turn failed", "session_id", s.id, "error", ev.Err)
			s.tracer.EndTurn(t.traceID, float64(time.Since(t.started).Milliseconds()), t.userMsg, "", "error")
			s.deliver(t, protocol.ErrorMsg(ev.Err.Error()))
			t.queue.Abort()
		}
	}

	s.mu.Lock()
	if s.turn == t {
		s.turn = nil
	}
	s.mu.Unlock()
}

// completeTurn appends the finished exchange to history and notifies the
// peer. History mutation happens under the session lock and only for a turn
// that has not been superseded, so a cancelled turn leaves history exactly
// as it was.
func (s *Session) completeTurn(t *turnHandle, fullText string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ctx.Err() != nil {
		return
	}
	s.history.AppendTurn(t.userMsg, fullText)
	if t.greeting && !s.chatStarted {
		s.chatStarted = true
		s.peer.SendControl(protocol.ChatStarted())
	}
	s.peer.SendControl(protocol.ResponseEnd(fullText))
	slog.Info("turn done", "session_id", s.id, "character_id", s.active.ID, "messages", s.messageCount, "text_len", len(fullText))
}

// deliver forwards a control frame unless the turn has been superseded.
func (s *Session) deliver(t *turnHandle, msg protocol.ServerMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ctx.Err() != nil {
		return
	}
	s.peer.SendControl(msg)
}

func (s *Session) deliverAudio(t *turnHandle, chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ctx.Err() != nil {
		return
	}
	s.peer.SendAudio(chunk)
}
