// Package remote describes the asynchronous channel actions are relayed
// through to the remote process holding the member set.
package remote

import (
	"context"

	"github.com/openkcm/member-manager/internal/identity"
)

// ProcessID addresses the remote process.
type ProcessID string

// Token correlates a submitted action with its result.
type Token string

// Tag is a single name/value pair of an action. Order is significant.
type Tag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type Message struct {
	Data string `json:"Data"`
}

// Result is the envelope the remote process produced for one action.
type Result struct {
	Messages []Message `json:"Messages"`
	Spawns   []any     `json:"Spawns,omitempty"`
	Output   any       `json:"Output,omitempty"`
	Error    string    `json:"Error,omitempty"`
}

// Channel relays actions to a remote process.
type Channel interface {
	// Submit sends the tagged action signed by signer. It fails with
	// serviceerr.ErrSubmission on transport failure.
	Submit(ctx context.Context, target ProcessID, tags []Tag, signer identity.Identity) (Token, error)
	// AwaitResult blocks until the result correlated to token is available
	// or ctx is done. It fails with serviceerr.ErrResolution on transport
	// failure or when the remote process reports an error.
	AwaitResult(ctx context.Context, token Token, target ProcessID) (Result, error)
}

// TagValue returns the value of the first tag named name.
func TagValue(tags []Tag, name string) (string, bool) {
	for _, tag := range tags {
		if tag.Name == name {
			return tag.Value, true
		}
	}
	return "", false
}
