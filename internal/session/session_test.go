package session

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/voxcast/charchat/internal/chat"
	"github.com/voxcast/charchat/internal/persona"
	"github.com/voxcast/charchat/internal/protocol"
)

// fakePeer records delivered frames.
type fakePeer struct {
	mu      sync.Mutex
	control []protocol.ServerMessage
	audio   int
}

func (p *fakePeer) SendControl(msg protocol.ServerMessage) {
	p.mu.Lock()
	p.control = append(p.control, msg)
	p.mu.Unlock()
}

func (p *fakePeer) SendAudio(chunk []byte) {
	p.mu.Lock()
	p.audio++
	p.mu.Unlock()
}

func (p *fakePeer) messages() []protocol.ServerMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]protocol.ServerMessage(nil), p.control...)
}

func (p *fakePeer) count(msgType string) int {
	n := 0
	for _, m := range p.messages() {
		if m.Type == msgType {
			n++
		}
	}
	return n
}

// waitFor polls until at least n frames of the given type arrived.
func (p *fakePeer) waitFor(t *testing.T, msgType string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p.count(msgType) >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("never received %d %q frames; got %+v", n, msgType, p.messages())
}

// scriptedCompleter replays a fixed event sequence per turn and records the
// request messages of every call.
type scriptedCompleter struct {
	mu    sync.Mutex
	calls [][]chat.Message
	reply string
	// hold, when non-nil, delays event emission for the given call ordinal
	// until the channel is closed.
	hold map[int]chan struct{}
}

func newScriptedCompleter(reply string) *scriptedCompleter {
	return &scriptedCompleter{reply: reply}
}

func (c *scriptedCompleter) StreamTurn(ctx context.Context, msgs []chat.Message) <-chan chat.Event {
	c.mu.Lock()
	call := len(c.calls)
	c.calls = append(c.calls, append([]chat.Message(nil), msgs...))
	gate := c.hold[call]
	c.mu.Unlock()

	out := make(chan chat.Event, 8)
	go func() {
		defer close(out)
		if gate != nil {
			<-gate
		}
		out <- chat.Event{Kind: chat.EventEmotion, Emotion: "happy"}
		var idx int
		parts := strings.SplitAfter(c.reply, ". ")
		for i, p := range parts {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			out <- chat.Event{Kind: chat.EventSentence, Sentence: chat.Sentence{Index: idx, Text: p, Last: i == len(parts)-1}}
			idx++
		}
		out <- chat.Event{Kind: chat.EventComplete, FullText: c.reply}
	}()
	return out
}

func (c *scriptedCompleter) call(i int) []chat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i >= len(c.calls) {
		return nil
	}
	return c.calls[i]
}

func (c *scriptedCompleter) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// instantSynth emits one chunk per sentence immediately.
type instantSynth struct{}

func (instantSynth) Synthesize(ctx context.Context, text string, onChunk func([]byte)) error {
	onChunk([]byte(text))
	return nil
}

func newTestSession(reply string) (*Session, *fakePeer, *scriptedCompleter) {
	peer := &fakePeer{}
	completer := newScriptedCompleter(reply)
	cfg := Config{
		Completions:      completer,
		Synth:            instantSynth{},
		WrapUpThreshold:  4,
		GoodbyeThreshold: 5,
	}
	return NewRegistry(cfg).Open(peer), peer, completer
}

func encode(t *testing.T, msg protocol.ClientMessage) []byte {
	t.Helper()
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestSession_TurnDeliversFullSequence(t *testing.T) {
	sess, peer, _ := newTestSession("Nice to meet you. What brings you here")
	defer sess.Close()

	sess.UserMessage("hello", "")
	peer.waitFor(t, protocol.TypeResponseEnd, 1)

	if peer.count(protocol.TypeThinking) != 1 {
		t.Errorf("thinking frames = %d, want 1", peer.count(protocol.TypeThinking))
	}
	if peer.count(protocol.TypeEmotion) != 1 {
		t.Errorf("emotion frames = %d, want 1", peer.count(protocol.TypeEmotion))
	}

	peer.waitFor(t, protocol.TypeAudioEnd, 2)
	var indices []int
	for _, m := range peer.messages() {
		if m.Type == protocol.TypeAudioEnd {
			if m.SentenceIndex == nil {
				t.Fatal("audio-end frame missing sentenceIndex")
			}
			indices = append(indices, *m.SentenceIndex)
		}
	}
	for i, idx := range indices {
		if idx != i {
			t.Errorf("audio-end order: got %v", indices)
			break
		}
	}

	for _, m := range peer.messages() {
		if m.Type == protocol.TypeResponseEnd && m.FullText != "Nice to meet you. What brings you here" {
			t.Errorf("response-end fullText = %q", m.FullText)
		}
	}
}

func TestSession_HistoryGrowsAcrossTurns(t *testing.T) {
	sess, peer, completer := newTestSession("Reply one. Done")
	defer sess.Close()

	sess.UserMessage("first", "")
	peer.waitFor(t, protocol.TypeResponseEnd, 1)
	sess.UserMessage("second", "")
	peer.waitFor(t, protocol.TypeResponseEnd, 2)

	msgs := completer.call(1)
	// system + first + reply + second
	if len(msgs) != 4 {
		t.Fatalf("second call carried %d messages: %+v", len(msgs), msgs)
	}
	if msgs[1].Content != "first" || msgs[2].Role != chat.RoleAssistant {
		t.Errorf("history not carried: %+v", msgs)
	}
	if msgs[3].Content != "second" {
		t.Errorf("last message = %+v", msgs[3])
	}
}

func TestSession_WrapUpGuidanceInjectedTransiently(t *testing.T) {
	sess, peer, completer := newTestSession("Okay. Sure")
	defer sess.Close()

	for i := 1; i <= 4; i++ {
		sess.UserMessage("msg", "")
		peer.waitFor(t, protocol.TypeResponseEnd, i)
	}

	msgs := completer.call(3) // fourth call
	last := msgs[len(msgs)-1]
	if last.Role != chat.RoleSystem || last.Content != persona.WrapUpGuidance {
		t.Errorf("fourth turn missing wrap-up guidance: %+v", last)
	}

	// Guidance must not leak into the next turn's history.
	sess.UserMessage("msg", "")
	peer.waitFor(t, protocol.TypeChatEnded, 1)
	for _, m := range completer.call(4)[:len(completer.call(4))-1] {
		if m.Content == persona.WrapUpGuidance {
			t.Error("wrap-up guidance persisted into history")
		}
	}
}

func TestSession_GoodbyeEndsConversation(t *testing.T) {
	sess, peer, completer := newTestSession("Bye now. Take care")
	defer sess.Close()

	for i := 1; i <= 5; i++ {
		sess.UserMessage("msg", "")
		peer.waitFor(t, protocol.TypeResponseEnd, i)
	}

	msgs := completer.call(4)
	last := msgs[len(msgs)-1]
	if last.Role != chat.RoleSystem || last.Content != persona.GoodbyeGuidance {
		t.Errorf("fifth turn missing goodbye guidance: %+v", last)
	}

	peer.waitFor(t, protocol.TypeChatEnded, 1)

	// Further messages are rejected without reaching the model.
	before := completer.callCount()
	sess.UserMessage("one more", "")
	peer.waitFor(t, protocol.TypeError, 1)
	if completer.callCount() != before {
		t.Error("rejected message still reached the completion service")
	}
}

func TestSession_SwitchPersonaResetsState(t *testing.T) {
	sess, peer, completer := newTestSession("Hello. There")
	defer sess.Close()

	sess.UserMessage("before switch", "")
	peer.waitFor(t, protocol.TypeResponseEnd, 1)

	sess.HandleControl(encode(t, protocol.ClientMessage{Type: protocol.TypeSwitchCharacter, CharacterID: "sarcastic"}))

	sess.UserMessage("after switch", "")
	peer.waitFor(t, protocol.TypeResponseEnd, 2)

	msgs := completer.call(1)
	if len(msgs) != 2 {
		t.Fatalf("history survived persona switch: %+v", msgs)
	}
	if msgs[0].Role != chat.RoleSystem || msgs[0].Content != persona.Get("sarcastic").SystemPrompt {
		t.Errorf("system prompt not reseeded: %+v", msgs[0])
	}
}

func TestSession_ImplicitSwitchOnChatMessage(t *testing.T) {
	sess, peer, completer := newTestSession("Oh great. Another one")
	defer sess.Close()

	sess.HandleControl(encode(t, protocol.ClientMessage{Type: protocol.TypeChat, Message: "hi", CharacterID: "sarcastic"}))
	peer.waitFor(t, protocol.TypeResponseEnd, 1)

	msgs := completer.call(0)
	if msgs[0].Content != persona.Get("sarcastic").SystemPrompt {
		t.Errorf("characterId on chat message did not switch persona: %+v", msgs[0])
	}
}

func TestSession_StartChatGreeting(t *testing.T) {
	sess, peer, completer := newTestSession("Hi! Lovely day. So anyway")
	defer sess.Close()

	sess.StartChat("gentle")
	peer.waitFor(t, protocol.TypeChatStarted, 1)
	peer.waitFor(t, protocol.TypeResponseEnd, 1)

	msgs := completer.call(0)
	greeting := msgs[len(msgs)-1]
	if greeting.Role != chat.RoleUser || !strings.HasPrefix(greeting.Content, "TOPIC: ") {
		t.Errorf("greeting instruction malformed: %+v", greeting)
	}

	// chat-started precedes response-end.
	sawStarted := false
	for _, m := range peer.messages() {
		if m.Type == protocol.TypeChatStarted {
			sawStarted = true
		}
		if m.Type == protocol.TypeResponseEnd && !sawStarted {
			t.Error("response-end arrived before chat-started")
		}
	}

	// A second start-chat is rejected.
	sess.StartChat("gentle")
	peer.waitFor(t, protocol.TypeError, 1)
}

func TestSession_NewMessageCancelsInFlightTurn(t *testing.T) {
	peer := &fakePeer{}
	completer := newScriptedCompleter("Stale reply. Ignore me")
	gate := make(chan struct{})
	completer.hold = map[int]chan struct{}{0: gate}
	cfg := Config{
		Completions:      completer,
		Synth:            instantSynth{},
		WrapUpThreshold:  40,
		GoodbyeThreshold: 50,
	}
	sess := NewRegistry(cfg).Open(peer)
	defer sess.Close()

	sess.UserMessage("first", "")
	deadline := time.Now().Add(2 * time.Second)
	for completer.callCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	// Supersede while the first turn is still blocked upstream.
	sess.UserMessage("second", "")
	peer.waitFor(t, protocol.TypeResponseEnd, 1)

	// Release the stale turn; none of its output may reach the peer.
	close(gate)
	time.Sleep(50 * time.Millisecond)

	if n := peer.count(protocol.TypeResponseEnd); n != 1 {
		t.Errorf("response-end frames = %d, want 1", n)
	}

	// The superseded exchange must not be in history.
	sess.UserMessage("third", "")
	peer.waitFor(t, protocol.TypeResponseEnd, 2)
	msgs := completer.call(2)
	// system + second + reply + third
	if len(msgs) != 4 {
		t.Fatalf("third call carried %d messages: %+v", len(msgs), msgs)
	}
	for _, m := range msgs {
		if m.Content == "first" {
			t.Error("cancelled turn's user message leaked into history")
		}
	}
}

func TestSession_MalformedControlFrame(t *testing.T) {
	sess, peer, completer := newTestSession("unused")
	defer sess.Close()

	sess.HandleControl([]byte(`{"type": "chat"}`)) // missing message
	sess.HandleControl([]byte(`not json`))
	sess.HandleControl([]byte(`{"type": "teleport"}`))

	peer.waitFor(t, protocol.TypeError, 3)
	if completer.callCount() != 0 {
		t.Errorf("malformed frames reached the completion service %d times", completer.callCount())
	}
}
