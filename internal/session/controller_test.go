package session_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/member-manager/internal/action"
	"github.com/openkcm/member-manager/internal/identity"
	"github.com/openkcm/member-manager/internal/identity/identitymock"
	"github.com/openkcm/member-manager/internal/membership"
	"github.com/openkcm/member-manager/internal/remote"
	"github.com/openkcm/member-manager/internal/remote/remotemock"
	"github.com/openkcm/member-manager/internal/serviceerr"
	"github.com/openkcm/member-manager/internal/session"
)

const processID remote.ProcessID = "process-id"

type fixture struct {
	controller *session.Controller
	provider   *identitymock.Provider
	channel    *remotemock.Channel
	store      *membership.Store
}

func newFixture(t *testing.T, provider *identitymock.Provider, channel *remotemock.Channel) fixture {
	t.Helper()

	store := membership.NewStore()
	client, err := action.NewClient(channel, processID, store)
	require.NoError(t, err)

	return fixture{
		controller: session.NewController(provider, client, store, nil),
		provider:   provider,
		channel:    channel,
		store:      store,
	}
}

// assertAdminInvariant checks the admin flag against its operands.
func assertAdminInvariant(t *testing.T, c *session.Controller) {
	t.Helper()

	state := c.State()
	want := state.Status == session.Connected && !state.Identity.IsZero() && contains(state.Members, state.Identity)
	assert.Equal(t, want, state.IsAdmin, "admin flag for %+v", state)
	assert.Equal(t, want, c.IsAdmin())
}

func contains(ids []identity.Identity, id identity.Identity) bool {
	for _, m := range ids {
		if m == id {
			return true
		}
	}
	return false
}

func TestController_AdminAddsMember(t *testing.T) {
	process := remotemock.NewProcess("addr1", "addr2")
	f := newFixture(t,
		identitymock.NewProvider(identitymock.WithIdentity("addr1")),
		remotemock.NewChannel(process.Options()...),
	)

	require.NoError(t, f.controller.Connect(t.Context()))

	state := f.controller.State()
	assert.Equal(t, session.Connected, state.Status)
	assert.Equal(t, identity.Identity("addr1"), state.Identity)
	assert.True(t, state.IsAdmin)
	assert.Len(t, state.Members, 2)
	assert.Equal(t, identity.DefaultScopes, f.provider.Scopes())
	assertAdminInvariant(t, f.controller)

	out := f.controller.AddMember(t.Context(), "addr3")
	require.True(t, out.OK(), "unexpected failure: %v", out.Err)
	assert.Equal(t, "Member added", out.Text)

	state = f.controller.State()
	assert.Equal(t, []identity.Identity{"addr1", "addr2", "addr3"}, state.Members)
	assert.True(t, state.IsAdmin)
	assert.Empty(t, state.LastError)
	assertAdminInvariant(t, f.controller)

	// GetMembers on connect, AddMember, GetMembers refresh.
	subs := f.channel.Submissions()
	require.Len(t, subs, 3)
	assert.Equal(t, "GetMembers", subs[0].Tags[0].Value)
	assert.Equal(t, "AddMember", subs[1].Tags[0].Value)
	assert.Equal(t, "GetMembers", subs[2].Tags[0].Value)
}

func TestController_NonMemberCannotAdd(t *testing.T) {
	f := newFixture(t,
		identitymock.NewProvider(identitymock.WithIdentity("addr9")),
		remotemock.NewChannel(remotemock.NewProcess("addr1", "addr2").Options()...),
	)

	require.NoError(t, f.controller.Connect(t.Context()))
	assert.False(t, f.controller.IsAdmin())
	assertAdminInvariant(t, f.controller)

	submitted := f.channel.SubmissionCount()

	out := f.controller.AddMember(t.Context(), "addr3")
	require.False(t, out.OK())
	assert.Equal(t, "only admins may add members", out.Err.Reason)
	assert.ErrorIs(t, out.Err, serviceerr.ErrAuthorization)
	assert.Equal(t, submitted, f.channel.SubmissionCount(), "the remote channel is not invoked")
	assert.Equal(t, "only admins may add members", f.controller.State().LastError)
}

func TestController_AddMemberWithoutResponse(t *testing.T) {
	f := newFixture(t,
		identitymock.NewProvider(identitymock.WithIdentity("addr1")),
		remotemock.NewChannel(
			remotemock.WithHandler("GetMembers", remotemock.StaticResult(
				remotemock.JSONResult(map[string]any{"status": "success", "members": []string{"addr1", "addr2"}}),
			)),
			remotemock.WithHandler("AddMember", remotemock.StaticResult(remote.Result{})),
		),
	)

	require.NoError(t, f.controller.Connect(t.Context()))
	before := f.controller.Members()

	out := f.controller.AddMember(t.Context(), "addr3")
	require.False(t, out.OK())
	assert.Equal(t, "no response received", out.Err.Reason)
	assert.Equal(t, before, f.controller.Members())
	assert.Equal(t, 2, f.channel.SubmissionCount(), "no refresh after a failed add")
}

func TestController_RefreshFailureKeepsMembers(t *testing.T) {
	tests := []struct {
		name   string
		second remote.Result
	}{
		{
			name:   "Error status",
			second: remotemock.JSONResult(map[string]any{"status": "error", "message": "try later"}),
		},
		{
			name:   "Invalid JSON",
			second: remotemock.TextResult("<html>"),
		},
		{
			name:   "No messages",
			second: remote.Result{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t,
				identitymock.NewProvider(identitymock.WithIdentity("addr1")),
				remotemock.NewChannel(remotemock.WithHandler("GetMembers", remotemock.Sequence(
					remotemock.JSONResult(map[string]any{"status": "success", "members": []string{"addr1", "addr2"}}),
					tt.second,
				))),
			)

			require.NoError(t, f.controller.Connect(t.Context()))

			out := f.controller.Refresh(t.Context())
			require.False(t, out.OK())

			state := f.controller.State()
			assert.Equal(t, []identity.Identity{"addr1", "addr2"}, state.Members)
			assert.Equal(t, out.Err.Reason, state.LastError)
			assert.True(t, state.IsAdmin)
		})
	}
}

func TestController_RefreshIdempotent(t *testing.T) {
	f := newFixture(t,
		identitymock.NewProvider(identitymock.WithIdentity("addr1")),
		remotemock.NewChannel(remotemock.NewProcess("addr2", "addr1").Options()...),
	)

	require.NoError(t, f.controller.Connect(t.Context()))
	first := f.controller.State()

	out := f.controller.Refresh(t.Context())
	require.True(t, out.OK())

	assert.Equal(t, first, f.controller.State())
}

func TestController_ConnectFailures(t *testing.T) {
	tests := []struct {
		name     string
		provider *identitymock.Provider
		wantErr  error
	}{
		{
			name:     "User declined",
			provider: identitymock.NewProvider(identitymock.WithConnectError(errors.New("user rejected"))),
			wantErr:  serviceerr.ErrConnection,
		},
		{
			name:     "No identity",
			provider: identitymock.NewProvider(),
			wantErr:  serviceerr.ErrNoIdentity,
		},
		{
			name: "Identity error",
			provider: identitymock.NewProvider(
				identitymock.WithIdentity("addr1"),
				identitymock.WithIdentityError(errors.New("wallet locked")),
			),
			wantErr: serviceerr.ErrNoIdentity,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.provider, remotemock.NewChannel(remotemock.NewProcess("addr1").Options()...))

			err := f.controller.Connect(t.Context())
			assert.ErrorIs(t, err, tt.wantErr)

			state := f.controller.State()
			assert.Equal(t, session.Disconnected, state.Status)
			assert.True(t, state.Identity.IsZero())
			assert.False(t, state.IsAdmin)
			assert.NotEmpty(t, state.LastError)
			assert.Zero(t, f.channel.SubmissionCount(), "no members are fetched")
			assert.Equal(t, 1, tt.provider.ConnectCalls(), "no automatic retry")
		})
	}
}

func TestController_ConnectWithFailingRefresh(t *testing.T) {
	f := newFixture(t,
		identitymock.NewProvider(identitymock.WithIdentity("addr1")),
		remotemock.NewChannel(remotemock.WithHandler("GetMembers", remotemock.StaticResult(remote.Result{}))),
	)

	err := f.controller.Connect(t.Context())

	var failure *action.Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "no response received", failure.Reason)
	assert.Equal(t, session.Connected, f.controller.State().Status)
	assert.False(t, f.controller.IsAdmin())
}

func TestController_ConnectTwice(t *testing.T) {
	f := newFixture(t,
		identitymock.NewProvider(identitymock.WithIdentity("addr1")),
		remotemock.NewChannel(remotemock.NewProcess("addr1").Options()...),
	)

	require.NoError(t, f.controller.Connect(t.Context()))
	assert.ErrorIs(t, f.controller.Connect(t.Context()), serviceerr.ErrInvalidState)
	assert.Equal(t, 1, f.channel.SubmissionCount())
}

func TestController_Disconnect(t *testing.T) {
	process := remotemock.NewProcess("addr1", "addr2")
	f := newFixture(t,
		identitymock.NewProvider(identitymock.WithIdentity("addr1")),
		remotemock.NewChannel(process.Options()...),
	)

	require.NoError(t, f.controller.Disconnect(t.Context()), "disconnecting twice is a no-op")

	require.NoError(t, f.controller.Connect(t.Context()))
	require.True(t, f.controller.IsAdmin())

	require.NoError(t, f.controller.Disconnect(t.Context()))

	state := f.controller.State()
	assert.Equal(t, session.Disconnected, state.Status)
	assert.True(t, state.Identity.IsZero())
	assert.False(t, state.IsAdmin)
	assert.Len(t, state.Members, 2, "the member list is kept")
	assertAdminInvariant(t, f.controller)

	out := f.controller.AddMember(t.Context(), "addr3")
	assert.ErrorIs(t, out.Err, serviceerr.ErrAuthorization)

	out = f.controller.Refresh(t.Context())
	assert.ErrorIs(t, out.Err, serviceerr.ErrNoIdentity)

	require.NoError(t, f.controller.Connect(t.Context()), "reconnect after disconnect")
	assert.True(t, f.controller.IsAdmin())
}

func TestController_CheckIdentity(t *testing.T) {
	process := remotemock.NewProcess("addr1", "addr2")
	f := newFixture(t,
		identitymock.NewProvider(identitymock.WithIdentity("addr1")),
		remotemock.NewChannel(process.Options()...),
	)

	assert.ErrorIs(t, f.controller.CheckIdentity(t.Context()), serviceerr.ErrInvalidState)

	require.NoError(t, f.controller.Connect(t.Context()))
	require.True(t, f.controller.IsAdmin())

	// Unchanged identity: nothing is fetched.
	submitted := f.channel.SubmissionCount()
	require.NoError(t, f.controller.CheckIdentity(t.Context()))
	assert.Equal(t, submitted, f.channel.SubmissionCount())

	f.provider.SwitchIdentity("addr9")
	require.NoError(t, f.controller.CheckIdentity(t.Context()))

	state := f.controller.State()
	assert.Equal(t, identity.Identity("addr9"), state.Identity)
	assert.False(t, state.IsAdmin)
	assert.Equal(t, submitted+1, f.channel.SubmissionCount(), "members are reloaded for the new identity")
	assertAdminInvariant(t, f.controller)

	f.provider.SetIdentityError(errors.New("wallet locked"))
	err := f.controller.CheckIdentity(t.Context())
	assert.ErrorIs(t, err, serviceerr.ErrNoIdentity)
	assert.Equal(t, session.Disconnected, f.controller.State().Status)
	assertAdminInvariant(t, f.controller)
}

func TestController_Subscribe(t *testing.T) {
	f := newFixture(t,
		identitymock.NewProvider(identitymock.WithIdentity("addr1")),
		remotemock.NewChannel(remotemock.NewProcess("addr1").Options()...),
	)

	var (
		mu       sync.Mutex
		statuses []session.Status
	)
	unsubscribe := f.controller.Subscribe(func(s session.State) {
		mu.Lock()
		defer mu.Unlock()
		statuses = append(statuses, s.Status)
	})

	require.NoError(t, f.controller.Connect(t.Context()))
	unsubscribe()
	require.NoError(t, f.controller.Disconnect(t.Context()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []session.Status{session.Connecting, session.Connected, session.Connected}, statuses)
}
