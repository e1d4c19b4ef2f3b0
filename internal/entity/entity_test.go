package entity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEntityIdentity(t *testing.T) {
	require.Equal(t, Channel("a"), Channel("a"))
	require.NotEqual(t, Channel("a"), Group("", "a"))
	require.NotEqual(t, Group("ns1", "a"), Group("ns2", "a"))
	require.Equal(t, "channel/a", Channel("a").Key())
	require.Equal(t, "group/ns:a", Group("ns", "a").Key())
	require.Equal(t, "ns:a", Group("ns", "a").FullName())
}

func TestParseGroup(t *testing.T) {
	testCases := []struct {
		in      string
		want    Entity
		wantErr bool
	}{
		{in: "family", want: Group("", "family")},
		{in: "ns:family", want: Group("ns", "family")},
		{in: ":family", wantErr: true},
		{in: "ns:fa:mily", wantErr: true},
		{in: "", wantErr: true},
		{in: "a,b", wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			e, err := ParseGroup(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, e)
		})
	}
}

func TestPresenceCompanion(t *testing.T) {
	p := Channel("room").WithPresence()
	require.True(t, p.IsPresence())
	require.Equal(t, "room-pnpres", p.Name())
	require.Equal(t, p, p.WithPresence())
	require.Equal(t, Channel("room"), p.WithoutPresence())
}

func TestValidate(t *testing.T) {
	require.NoError(t, Channel("x").Validate())
	require.ErrorIs(t, Channel("").Validate(), ErrEmptyName)
	require.ErrorIs(t, Channel("a/b").Validate(), ErrInvalidName)
	require.Error(t, Entity{}.Validate())
	require.Error(t, Entity{kind: KindChannel, namespace: "ns", name: "x"}.Validate())
}

func TestUniqueSplit(t *testing.T) {
	in := []Entity{Channel("b"), Group("", "g"), Channel("a"), Channel("b")}
	u := Unique(in)
	require.Equal(t, []Entity{Channel("b"), Group("", "g"), Channel("a")}, u)

	channels, groups := Split(u)
	require.Equal(t, []string{"b", "a"}, channels)
	require.Equal(t, []string{"g"}, groups)

	require.Equal(t, []Entity{Channel("b"), Channel("a"), Group("ns", "g")}, FromNames([]string{"b", "a", ""}, []string{"ns:g", ":bad"}))
}
