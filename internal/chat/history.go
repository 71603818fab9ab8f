package chat

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one role-tagged entry of a conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// History is the conversation history for one session. history[0] is always
// the active persona's system message. It is owned and mutated only by the
// session's worker; the single-in-flight-turn invariant stands in for locks.
type History struct {
	messages []Message
}

// NewHistory seeds a history with the persona system message.
func NewHistory(systemPrompt string) *History {
	return &History{messages: []Message{{Role: RoleSystem, Content: systemPrompt}}}
}

// Reset clears the history and reseeds it with a new system message.
// Used on persona switch.
func (h *History) Reset(systemPrompt string) {
	h.messages = []Message{{Role: RoleSystem, Content: systemPrompt}}
}

// AppendTurn records one completed user→assistant exchange.
func (h *History) AppendTurn(user, assistant string) {
	h.messages = append(h.messages,
		Message{Role: RoleUser, Content: user},
		Message{Role: RoleAssistant, Content: assistant},
	)
}

// Messages returns a copy of the history.
func (h *History) Messages() []Message {
	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Len returns the number of messages, including the system message.
func (h *History) Len() int {
	return len(h.messages)
}
