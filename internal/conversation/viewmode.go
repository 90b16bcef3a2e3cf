package conversation

// ViewMode selects which layout the chat screen renders.
type ViewMode int

const (
	// ViewHero is the empty state with the centered composer.
	ViewHero ViewMode = iota
	// ViewConversation is the message list with the composer at the bottom.
	ViewConversation
)

func (v ViewMode) String() string {
	if v == ViewHero {
		return "hero"
	}
	return "conversation"
}

// SelectViewMode picks the layout. Loading keeps the hero from flashing while
// a chat is being restored, and once the user has submitted the hero never
// comes back for that conversation, even if the messages are cleared.
func SelectViewMode(messageCount int, isLoading, hasSubmitted bool) ViewMode {
	if messageCount > 0 || isLoading || hasSubmitted {
		return ViewConversation
	}
	return ViewHero
}
