package dedupe

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/retrostock/retrostock/internal/core"
)

func TestGroupClassicPairShowsGameOnly(t *testing.T) {
	records := []core.InventoryRecord{
		{ID: 1, Name: "Super Mario Bros", ConsoleName: "NES", Price: 5},
		{ID: 2, Name: "super mario bros ", ConsoleName: "NES", Price: 8, GoodPrice: core.Float64(3)},
	}

	groups, err := Group(records)
	require.NoError(t, err)

	want := []DuplicateGroup{{
		Key: "super mario bros|name:nes",
		Members: []ClassifiedRecord{
			{InventoryRecord: records[0], ShowsGameOnly: true},
			{InventoryRecord: records[1], ShowsGameOnly: true},
		},
	}}
	if diff := cmp.Diff(want, groups); diff != "" {
		t.Fatalf("groups mismatch (-want +got):\n%s", diff)
	}
}

func TestGroupWhitespaceAndCaseInvariant(t *testing.T) {
	records := []core.InventoryRecord{
		{ID: 1, Name: "Mario  Kart ", ConsoleID: 7, ConsoleName: "Switch", Price: 40},
		{ID: 2, Name: "mario kart", ConsoleID: 7, ConsoleName: "Switch", Price: 35},
		{ID: 3, Name: "\tMARIO\nKART", ConsoleID: 7, ConsoleName: "Switch", Price: 30},
	}

	groups, err := Group(records)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Equal(t, "mario kart|id:7", groups[0].Key)

	var ids []int64
	for _, m := range groups[0].Members {
		ids = append(ids, m.ID)
	}
	require.Equal(t, []int64{1, 2, 3}, ids)
}

func TestGroupDifferentConsolesNeverGroup(t *testing.T) {
	records := []core.InventoryRecord{
		{ID: 1, Name: "Tetris", ConsoleID: 1, ConsoleName: "Game Boy", Price: 10},
		{ID: 2, Name: "Tetris", ConsoleID: 2, ConsoleName: "NES", Price: 12},
		{ID: 3, Name: "Tetris", ConsoleName: "Game Boy Color", Price: 11},
		{ID: 4, Name: "Tetris", ConsoleName: "game boy", Price: 9},
	}

	groups, err := Group(records)
	require.NoError(t, err)
	require.Empty(t, groups)
}

func TestGroupDropsSingletonsAndKeepsFirstSeenOrder(t *testing.T) {
	records := []core.InventoryRecord{
		{ID: 1, Name: "Zelda", ConsoleID: 3, ConsoleName: "N64", Price: 30},
		{ID: 2, Name: "Ape Escape", ConsoleID: 4, ConsoleName: "PS1", Price: 25},
		{ID: 3, Name: "Metroid", ConsoleID: 5, ConsoleName: "SNES", Price: 50},
		{ID: 4, Name: "Ape Escape", ConsoleID: 4, ConsoleName: "PS1", Price: 20},
		{ID: 5, Name: "Zelda", ConsoleID: 3, ConsoleName: "N64", Price: 28},
	}

	groups, err := Group(records)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	require.Equal(t, "zelda|id:3", groups[0].Key)
	require.Equal(t, "ape escape|id:4", groups[1].Key)
	for _, g := range groups {
		require.GreaterOrEqual(t, len(g.Members), 2)
	}

	SortGroups(groups)
	require.Equal(t, "ape escape|id:4", groups[0].Key)
	require.Equal(t, "zelda|id:3", groups[1].Key)
}

func TestClassify(t *testing.T) {
	g := NewGrouper(nil)

	cases := []struct {
		name         string
		rec          core.InventoryRecord
		completeInBx bool
		gameOnly     bool
	}{
		{
			name:         "modern console with price shows complete in box",
			rec:          core.InventoryRecord{Name: "Halo", ConsoleName: "Xbox", Price: 20},
			completeInBx: true,
		},
		{
			name: "modern console without price shows nothing",
			rec:  core.InventoryRecord{Name: "Halo", ConsoleName: "Xbox"},
		},
		{
			name:     "acceptable price means game only",
			rec:      core.InventoryRecord{Name: "Halo", ConsoleName: "Xbox", Price: 20, AcceptablePrice: core.Float64(8)},
			gameOnly: true,
		},
		{
			name:     "zero good price is ignored",
			rec:      core.InventoryRecord{Name: "Halo", ConsoleName: "Xbox", Price: 20, GoodPrice: core.Float64(0)},
			gameOnly: false, completeInBx: true,
		},
		{
			name:     "description phrase means game only",
			rec:      core.InventoryRecord{Name: "Halo", ConsoleName: "Xbox", Price: 20, Description: "Disc only. GAME ONLY, no manual"},
			gameOnly: true,
		},
		{
			name:     "classic console always game only",
			rec:      core.InventoryRecord{Name: "Contra", ConsoleName: " nes ", Price: 60},
			gameOnly: true,
		},
		{
			name:     "classic console with no prices still game only",
			rec:      core.InventoryRecord{Name: "Contra", ConsoleName: "SNES"},
			gameOnly: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := g.Classify(tc.rec)
			require.Equal(t, tc.completeInBx, got.ShowsCompleteInBox)
			require.Equal(t, tc.gameOnly, got.ShowsGameOnly)
		})
	}
}

func TestCustomClassicSet(t *testing.T) {
	g := NewGrouper([]string{"Atari 2600", " "})
	require.Equal(t, []string{"ATARI 2600"}, g.ClassicConsoles())
	require.True(t, g.IsClassic("atari 2600"))
	require.False(t, g.IsClassic("NES"))

	records := []core.InventoryRecord{
		{ID: 1, Name: "Pitfall", ConsoleName: "Atari 2600", Price: 15},
		{ID: 2, Name: "Pitfall!", ConsoleName: "Atari 2600", Price: 15},
		{ID: 3, Name: "pitfall", ConsoleName: "Atari 2600", Price: 12},
	}
	groups, err := g.Group(records)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Len(t, groups[0].Members, 2)
	for _, m := range groups[0].Members {
		require.True(t, m.ShowsGameOnly)
		require.False(t, m.ShowsCompleteInBox)
	}
}

func TestGroupValidation(t *testing.T) {
	valid := core.InventoryRecord{ID: 1, Name: "Doom", ConsoleName: "PC", Price: 5}

	cases := []struct {
		name  string
		rec   core.InventoryRecord
		field string
	}{
		{"missing name", core.InventoryRecord{Name: "   ", ConsoleName: "PC"}, "name"},
		{"missing console", core.InventoryRecord{Name: "Doom"}, "console"},
		{"negative price", core.InventoryRecord{Name: "Doom", ConsoleName: "PC", Price: -1}, "price"},
		{"nan price", core.InventoryRecord{Name: "Doom", ConsoleName: "PC", Price: math.NaN()}, "price"},
		{"infinite good price", core.InventoryRecord{Name: "Doom", ConsoleName: "PC", GoodPrice: core.Float64(math.Inf(1))}, "good_price"},
		{"negative acceptable price", core.InventoryRecord{Name: "Doom", ConsoleName: "PC", AcceptablePrice: core.Float64(-2)}, "acceptable_price"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			groups, err := Group([]core.InventoryRecord{valid, valid, tc.rec})
			require.Nil(t, groups)

			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr))
			require.Equal(t, tc.field, vErr.Field)
			require.Equal(t, 2, vErr.Index)
			require.Contains(t, vErr.Error(), "record 2")
		})
	}
}

func TestGroupEmptyInput(t *testing.T) {
	groups, err := Group(nil)
	require.NoError(t, err)
	require.Empty(t, groups)
}
