package remotemock

import (
	"encoding/json"
	"slices"
	"sync"

	"github.com/openkcm/member-manager/internal/identity"
	"github.com/openkcm/member-manager/internal/remote"
)

// Process is a minimal stand-in for the remote member process. Members may
// add members; GetMembers is open to everyone.
type Process struct {
	mu      sync.Mutex
	members []string
}

func NewProcess(members ...string) *Process {
	return &Process{members: members}
}

// Options returns the channel options wiring the process handlers.
func (p *Process) Options() []ChannelOption {
	return []ChannelOption{
		WithHandler("GetMembers", p.getMembers),
		WithHandler("AddMember", p.addMember),
	}
}

func (p *Process) Members() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.members)
}

func (p *Process) getMembers(_ []remote.Tag, _ identity.Identity) (remote.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return JSONResult(map[string]any{"status": "success", "members": p.members}), nil
}

func (p *Process) addMember(tags []remote.Tag, signer identity.Identity) (remote.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !slices.Contains(p.members, signer.String()) {
		return TextResult("Only members can add new members"), nil
	}

	member, ok := remote.TagValue(tags, "Member_To_Add")
	if !ok || member == "" {
		return remote.Result{}, nil
	}
	if !slices.Contains(p.members, member) {
		p.members = append(p.members, member)
	}

	return TextResult("Member added"), nil
}

// JSONResult returns a single-message result carrying v encoded as JSON.
func JSONResult(v any) remote.Result {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return TextResult(string(data))
}

// TextResult returns a single-message result carrying data.
func TextResult(data string) remote.Result {
	return remote.Result{Messages: []remote.Message{{Data: data}}}
}

// StaticResult returns a handler that always yields result.
func StaticResult(result remote.Result) Handler {
	return func([]remote.Tag, identity.Identity) (remote.Result, error) {
		return result, nil
	}
}

// Sequence returns a handler that yields the given results in order and
// repeats the last one once exhausted.
func Sequence(results ...remote.Result) Handler {
	var mu sync.Mutex
	i := 0
	return func([]remote.Tag, identity.Identity) (remote.Result, error) {
		mu.Lock()
		defer mu.Unlock()

		r := results[min(i, len(results)-1)]
		i++
		return r, nil
	}
}
