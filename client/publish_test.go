package client

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishWithoutConfiguration(t *testing.T) {
	c := New(WithTransport(newFakeTransport()))
	defer c.Close()
	_, err := c.Publish("a", []byte(`{}`), PublishOptions{})
	require.ErrorIs(t, err, ErrNoConfiguration)
	require.Nil(t, c.PendingPublishes())
}

func TestPublishValidation(t *testing.T) {
	c, _, _ := newTestClient(t)
	_, err := c.Publish("a", []byte(`{not json`), PublishOptions{})
	require.Error(t, err)
	_, err = c.Publish("", []byte(`{}`), PublishOptions{})
	require.Error(t, err)
	_, err = c.Publish("a", []byte(`{}`), PublishOptions{Meta: []byte(`[`)})
	require.Error(t, err)
}

func TestPublishInOrder(t *testing.T) {
	c, ft, events := newTestClient(t)
	ft.publishErr = map[string]error{"b": errors.New("boom")}

	var handles []*PublishHandle
	for _, ch := range []string{"a", "b", "c"} {
		h, err := c.Publish(ch, []byte(`{"text":"hi"}`), PublishOptions{StoreInHistory: true})
		require.NoError(t, err)
		handles = append(handles, h)
	}

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	res, err := handles[0].Wait(ctx)
	require.NoError(t, err)
	require.NoError(t, res.Err)
	require.Equal(t, "pub-a", res.Token)

	res, err = handles[1].Wait(ctx)
	require.NoError(t, err)
	require.Error(t, res.Err)

	res, err = handles[2].Wait(ctx)
	require.NoError(t, err)
	require.NoError(t, res.Err, "failure doesn't stop the queue")

	var ids []string
	for range handles {
		ev := events.waitFor(t, func(ev Event) bool { _, ok := ev.(PublishEvent); return ok }).(PublishEvent)
		ids = append(ids, ev.ID)
	}
	require.Equal(t, []string{handles[0].ID(), handles[1].ID(), handles[2].ID()}, ids)

	ft.mu.Lock()
	defer ft.mu.Unlock()
	require.Len(t, ft.published, 3)
	require.Equal(t, "userA", ft.published[0].ClientID)
	require.True(t, ft.published[0].StoreInHistory)
	require.Equal(t, []string{"a", "b", "c"}, []string{ft.published[0].Channel, ft.published[1].Channel, ft.published[2].Channel})
}

func TestPublishIndependentOfConnection(t *testing.T) {
	c, _, _ := newTestClient(t)
	require.Equal(t, StateDisconnected, c.State())
	h, err := c.Publish("a", []byte(`1`), PublishOptions{})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	res, err := h.Wait(ctx)
	require.NoError(t, err)
	require.NoError(t, res.Err)
}
