package compose

import (
	"testing"
	"time"

	"github.com/centrifugal/subclient/internal/entity"
	"github.com/centrifugal/subclient/internal/membership"
	"github.com/centrifugal/subclient/internal/timetoken"

	"github.com/stretchr/testify/require"
)

func TestBuildEmpty(t *testing.T) {
	c := New(Options{})
	_, err := c.Build(nil, timetoken.Cursor{}, 1, "id")
	require.ErrorIs(t, err, ErrNoEntities)
}

func TestBuild(t *testing.T) {
	c := New(Options{HeartbeatTimeout: 300 * time.Second, FilterExpression: "a == 'b'"})
	members := []membership.Member{
		{Entity: entity.Channel("room42"), State: membership.State{"mood": "ok", "age": 3}},
		{Entity: entity.Channel("room42").WithPresence()},
		{Entity: entity.Group("ns", "family")},
		{Entity: entity.Channel("lobby")},
	}
	req, err := c.Build(members, timetoken.Cursor{Token: "1500", Region: 2}, 7, "userA")
	require.NoError(t, err)
	require.Equal(t, []string{"room42", "room42-pnpres", "lobby"}, req.Channels)
	require.Equal(t, []string{"ns:family"}, req.Groups)
	require.Equal(t, "1500", req.Cursor.Token)
	require.Equal(t, uint64(7), req.Epoch)
	require.Equal(t, "userA", req.ClientID)
	require.Equal(t, 300, req.Heartbeat)
	require.Equal(t, "a == 'b'", req.FilterExpression)
	require.JSONEq(t, `{"room42":{"age":3,"mood":"ok"}}`, req.State)
	require.False(t, req.Handshake())
	require.Len(t, req.Entities(), 4)
}

func TestBuildHandshakeNoState(t *testing.T) {
	c := New(Options{})
	req, err := c.Build([]membership.Member{{Entity: entity.Channel("x")}}, timetoken.Cursor{}, 1, "id")
	require.NoError(t, err)
	require.True(t, req.Handshake())
	require.Empty(t, req.State)
	require.Zero(t, req.Heartbeat)
}
