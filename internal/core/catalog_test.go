package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Super Mario Bros.", "super-mario-bros"},
		{"  The Legend of Zelda: Ocarina of Time ", "the-legend-of-zelda-ocarina-of-time"},
		{"N64", "n64"},
		{"Pokémon Red", "pokémon-red"},
		{"--", ""},
		{"", ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Slugify(tc.in), "input %q", tc.in)
	}
}

func TestParseItemKind(t *testing.T) {
	kind, err := ParseItemKind("")
	require.NoError(t, err)
	require.Equal(t, KindGame, kind)

	kind, err = ParseItemKind(" Controllers ")
	require.NoError(t, err)
	require.Equal(t, KindController, kind)

	kind, err = ParseItemKind("Accessories")
	require.NoError(t, err)
	require.Equal(t, KindAccessory, kind)

	kind, err = ParseItemKind("accessory")
	require.NoError(t, err)
	require.Equal(t, KindAccessory, kind)

	_, err = ParseItemKind("toaster")
	require.Error(t, err)
}
