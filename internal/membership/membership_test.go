package membership

import (
	"testing"

	"github.com/centrifugal/subclient/internal/entity"

	"github.com/stretchr/testify/require"
)

func TestValidateState(t *testing.T) {
	require.NoError(t, ValidateState(nil))
	require.NoError(t, ValidateState(State{"a": "x", "b": 1, "c": 1.5, "d": true}))
	require.ErrorIs(t, ValidateState(State{"a": map[string]any{"x": 1}}), ErrNestedState)
	require.ErrorIs(t, ValidateState(State{"a": []any{1}}), ErrNestedState)
	require.ErrorIs(t, ValidateState(State{"a": struct{}{}}), ErrNestedState)
}

func TestSetAddIdempotent(t *testing.T) {
	s := New()
	changed, err := s.Add(Member{Entity: entity.Channel("a"), State: State{"k": "v"}})
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = s.Add(Member{Entity: entity.Channel("a"), State: State{"k": "v"}})
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, 1, s.Len())

	changed, err = s.Add(Member{Entity: entity.Channel("a"), State: State{"k": "other"}})
	require.NoError(t, err)
	require.True(t, changed)
	st, ok := s.State(entity.Channel("a"))
	require.True(t, ok)
	require.Equal(t, State{"k": "other"}, st)
}

func TestSetAddRejectsInvalid(t *testing.T) {
	s := New()
	_, err := s.Add(
		Member{Entity: entity.Channel("ok")},
		Member{Entity: entity.Channel("bad"), State: State{"n": State{"x": 1}}},
	)
	require.ErrorIs(t, err, ErrNestedState)
	require.Equal(t, 0, s.Len(), "set must stay untouched on error")

	_, err = s.Add(Member{Entity: entity.Channel("")})
	require.Error(t, err)
}

func TestSetRemoveKeepsOrder(t *testing.T) {
	s := New()
	_, err := s.Add(
		Member{Entity: entity.Channel("a")},
		Member{Entity: entity.Channel("b"), State: State{"x": 1}},
		Member{Entity: entity.Group("", "g")},
	)
	require.NoError(t, err)

	removed := s.Remove(entity.Channel("b"), entity.Channel("missing"))
	require.Equal(t, []Member{{Entity: entity.Channel("b"), State: State{"x": 1}}}, removed)
	require.Equal(t, []entity.Entity{entity.Channel("a"), entity.Group("", "g")}, s.Entities())
	require.False(t, s.Contains(entity.Channel("b")))
	require.Nil(t, s.Remove(entity.Channel("missing")))

	all := s.Clear()
	require.Len(t, all, 2)
	require.Equal(t, 0, s.Len())
}

func TestSetSnapshotIsolation(t *testing.T) {
	s := New()
	_, err := s.Add(Member{Entity: entity.Channel("a"), State: State{"k": "v"}})
	require.NoError(t, err)
	members := s.Members()
	members[0].State["k"] = "changed"
	st, _ := s.State(entity.Channel("a"))
	require.Equal(t, "v", st["k"])
}

func TestSetState(t *testing.T) {
	s := New()
	ok, err := s.SetState(entity.Channel("a"), State{"k": 1})
	require.NoError(t, err)
	require.False(t, ok)

	_, _ = s.Add(Member{Entity: entity.Channel("a")})
	ok, err = s.SetState(entity.Channel("a"), State{"k": 1})
	require.NoError(t, err)
	require.True(t, ok)

	_, err = s.SetState(entity.Channel("a"), State{"k": []any{}})
	require.ErrorIs(t, err, ErrNestedState)
}
