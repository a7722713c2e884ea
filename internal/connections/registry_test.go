package connections_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KirkDiggler/session-api/internal/connections"
	"github.com/KirkDiggler/session-api/internal/errors"
)

type fakeSender struct {
	closed bool
}

func (f *fakeSender) Send(data []byte) error { return nil }
func (f *fakeSender) Close() error {
	f.closed = true
	return nil
}

func conn(id, sessionID, participantID string, role connections.Role) (*connections.Connection, *fakeSender) {
	sender := &fakeSender{}
	return &connections.Connection{
		ID:            id,
		SessionID:     sessionID,
		ParticipantID: participantID,
		Role:          role,
		Sender:        sender,
	}, sender
}

func TestJoinAndMembers(t *testing.T) {
	r := connections.NewRegistry()

	operator, _ := conn("conn_1", "sess_1", "", connections.RoleOperator)
	viewer1, _ := conn("conn_2", "sess_1", "part_1", connections.RoleViewer)
	viewer2, _ := conn("conn_3", "sess_1", "part_2", connections.RoleViewer)
	other, _ := conn("conn_4", "sess_2", "part_9", connections.RoleViewer)

	for _, c := range []*connections.Connection{operator, viewer1, viewer2, other} {
		require.NoError(t, r.Join(c))
	}

	assert.Len(t, r.All("sess_1"), 3)
	assert.Len(t, r.Operators("sess_1"), 1)
	assert.Len(t, r.Viewers("sess_1"), 2)
	assert.Len(t, r.All("sess_2"), 1)
	assert.Empty(t, r.All("sess_unknown"))
}

func TestJoinValidation(t *testing.T) {
	r := connections.NewRegistry()

	err := r.Join(nil)
	assert.True(t, errors.IsInvalidArgument(err))

	err = r.Join(&connections.Connection{SessionID: "sess_1", Role: connections.RoleViewer})
	assert.True(t, errors.IsInvalidArgument(err))

	err = r.Join(&connections.Connection{ID: "conn_1", Role: connections.RoleViewer})
	assert.True(t, errors.IsInvalidArgument(err))

	err = r.Join(&connections.Connection{ID: "conn_1", SessionID: "sess_1", Role: "moderator"})
	assert.True(t, errors.IsInvalidArgument(err))
}

func TestJoinReplacesExistingConnection(t *testing.T) {
	r := connections.NewRegistry()

	first, firstSender := conn("conn_1", "sess_1", "part_1", connections.RoleViewer)
	require.NoError(t, r.Join(first))

	second, _ := conn("conn_1", "sess_1", "part_1", connections.RoleViewer)
	require.NoError(t, r.Join(second))

	assert.True(t, firstSender.closed, "replaced connection's sender should be closed")
	assert.Len(t, r.All("sess_1"), 1)
}

func TestLeaveIsIdempotent(t *testing.T) {
	r := connections.NewRegistry()

	viewer, _ := conn("conn_1", "sess_1", "part_1", connections.RoleViewer)
	require.NoError(t, r.Join(viewer))

	removed := r.Leave("conn_1")
	require.NotNil(t, removed)
	assert.Equal(t, "conn_1", removed.ID)

	// Second leave (e.g. disconnect handler racing an explicit leave)
	assert.Nil(t, r.Leave("conn_1"))
	assert.Nil(t, r.Leave("conn_never_joined"))
	assert.Empty(t, r.All("sess_1"))
}

func TestListViewers(t *testing.T) {
	r := connections.NewRegistry()

	operator, _ := conn("conn_1", "sess_1", "gm", connections.RoleOperator)
	viewer, _ := conn("conn_2", "sess_1", "part_1", connections.RoleViewer)
	anon, _ := conn("conn_3", "sess_1", "", connections.RoleViewer)

	require.NoError(t, r.Join(operator))
	require.NoError(t, r.Join(viewer))
	require.NoError(t, r.Join(anon))

	viewers := r.ListViewers("sess_1")
	assert.Equal(t, []string{"part_1"}, viewers)
}

func TestIsOnline(t *testing.T) {
	r := connections.NewRegistry()

	viewer, _ := conn("conn_1", "sess_1", "part_1", connections.RoleViewer)
	require.NoError(t, r.Join(viewer))

	assert.True(t, r.IsOnline("sess_1", "part_1"))
	assert.False(t, r.IsOnline("sess_1", "part_2"))
	assert.False(t, r.IsOnline("sess_2", "part_1"))
	assert.False(t, r.IsOnline("sess_1", ""))

	r.Leave("conn_1")
	assert.False(t, r.IsOnline("sess_1", "part_1"))
}
