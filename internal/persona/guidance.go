package persona

// Guidance text injected into a turn's request to steer the model toward
// ending the conversation.
const (
	WrapUpGuidance = "The conversation has been going for a while. Start wrapping things up naturally. " +
		"Don't abruptly end - just steer toward a conclusion over the next few exchanges."

	GoodbyeGuidance = "This is the final message of our conversation. Say a warm, natural goodbye to the user. " +
		"Make it feel like a real ending to a nice short chat. After this, we won't be talking anymore, so make it count!"
)
