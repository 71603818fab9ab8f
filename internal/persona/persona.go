package persona

// Persona is a named character configuration supplying the system-level
// instruction for a conversation.
type Persona struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Emoji        string `json:"emoji"`
	SystemPrompt string `json:"-"`
}

var personas = []Persona{
	{
		ID:    "cheerful",
		Name:  "Cheerful Buddy",
		Emoji: "😊",
		SystemPrompt: "You are a cheerful, upbeat friend who loves to spread positivity. " +
			"Keep your responses concise and conversational. Use emojis occasionally to express excitement. " +
			"Answer in the same language as the user's message. Prefer short answers. Do not include markdown formatting.",
	},
	{
		ID:    "sarcastic",
		Name:  "Sarcastic Wit",
		Emoji: "😏",
		SystemPrompt: "You are a witty, sarcastic friend who loves dry humor and clever comebacks. " +
			"Keep your responses concise and conversational. Feel free to be a little snarky but not mean. " +
			"Answer in the same language as the user's message. Prefer short answers. Do not include markdown formatting.",
	},
	{
		ID:    "gentle",
		Name:  "Gentle Listener",
		Emoji: "🥺",
		SystemPrompt: "You are a warm, empathetic friend who listens gently and responds with care. " +
			"Be supportive and understanding. Keep your responses concise and conversational. " +
			"Answer in the same language as the user's message. Prefer short answers. Do not include markdown formatting.",
	},
}

// All returns the persona catalog in display order.
func All() []Persona {
	out := make([]Persona, len(personas))
	copy(out, personas)
	return out
}

// Get returns the persona for id, falling back to the default persona
// when id is unknown.
func Get(id string) Persona {
	for _, p := range personas {
		if p.ID == id {
			return p
		}
	}
	return personas[0]
}

// Default returns the default persona.
func Default() Persona {
	return personas[0]
}

// Known reports whether id names a persona in the catalog.
func Known(id string) bool {
	for _, p := range personas {
		if p.ID == id {
			return true
		}
	}
	return false
}
