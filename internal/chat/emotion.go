package chat

// Emotion is one tag from the closed vocabulary a reply may carry.
type Emotion string

// Emotions is the closed vocabulary, in the order advertised to the model's
// structured-output schema.
var Emotions = []Emotion{
	"happy",
	"sad",
	"neutral",
	"horny",
	"angry",
	"excited",
	"lonely",
	"flirty",
	"confused",
	"worried",
	"surprised",
	"bored",
}

var emotionSet = func() map[Emotion]bool {
	m := make(map[Emotion]bool, len(Emotions))
	for _, e := range Emotions {
		m[e] = true
	}
	return m
}()

// ValidEmotion reports whether value is a member of the vocabulary.
func ValidEmotion(value string) bool {
	return emotionSet[Emotion(value)]
}
