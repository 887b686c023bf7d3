// Package chat parses the two free-text commands accepted by the chat
// endpoint.  It is a flat dispatcher over normalized input, not a
// conversation state machine.
package chat

import "strings"

// Kind tags the command variant produced by Parse.
type Kind int

const (
	// KindUnknown covers any input that is not one of the two known
	// commands; callers respond with a fixed help message.
	KindUnknown Kind = iota
	// KindViewCatalog lists the catalog titles and their counts.
	KindViewCatalog
	// KindRequestItem creates a book request for Title.  Title may be
	// empty when the user typed the command without a book name.
	KindRequestItem
)

const requestPrefix = "request book"

// Command is the parsed form of a chat message.
type Command struct {
	Kind  Kind
	Title string
}

// Parse maps a raw message to a Command.  Matching is
// case-insensitive: the literal phrase "view books" lists the catalog
// and anything beginning with "request book" submits the trailing text
// as a title.  Everything else is KindUnknown.
func Parse(message string) Command {
	m := strings.TrimSpace(message)
	lower := strings.ToLower(m)

	if lower == "view books" {
		return Command{Kind: KindViewCatalog}
	}
	if strings.HasPrefix(lower, requestPrefix) {
		title := strings.TrimSpace(m[len(requestPrefix):])
		return Command{Kind: KindRequestItem, Title: title}
	}
	return Command{Kind: KindUnknown}
}
