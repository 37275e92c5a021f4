package player

import (
	"slices"

	"github.com/samber/lo"
)

// Presets holds gains of the ten addressable equalizer bands.
var Presets = map[string][AddressableBands]float64{
	"none":                 {0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
	"classical":            {0.375, 0.375, 0.375, 0.375, 0.375, 0.375, -4.5, -4.5, -4.5, -6.0},
	"club":                 {0.375, 0.375, 2.25, 3.75, 3.75, 3.75, 2.25, 0.375, 0.375, 0.375},
	"dance":                {6, 4.5, 1.5, 0, 0, -3.75, -4.5, -4.5, 0, 0},
	"flat":                 {0.375, 0.375, 0.375, 0.375, 0.375, 0.375, 0.375, 0.375, 0.375, 0.375},
	"live":                 {-3, 0.375, 2.625, 3.375, 3.75, 3.75, 2.625, 1.875, 1.875, 1.5},
	"headphone":            {3, 6.75, 3.375, -2.25, -1.5, 1.125, 3, 6, 7.875, 9},
	"rock":                 {4.875, 3, -3.375, -4.875, -2.25, 2.625, 5.625, 6.75, 6.75, 6.75},
	"pop":                  {-1.125, 3, 4.5, 4.875, 3.375, -0.75, -1.5, -1.5, -1.125, -1.125},
	"full-bass-and-treble": {4.5, 3.75, 0.375, -4.5, -3, 1.125, 5.25, 6.75, 7.5, 7.5},
	"full-bass":            {6, 6, 6, 3.75, 1.125, -2.625, -5.25, -6.375, -6.75, -6.75},
	"full-treble":          {-6, -6, -6, -2.625, 1.875, 6.75, 9.75, 9.75, 9.75, 10.5},
	"soft":                 {3, 1.125, -0.75, -1.5, -0.75, 2.625, 5.25, 6, 6.75, 7.5},
	"party":                {4.5, 4.5, 0.375, 0.375, 0.375, 0.375, 0.375, 0.375, 4.5, 4.5},
	"ska":                  {-1.5, -3, -2.625, -0.375, 2.625, 3.75, 5.625, 6, 6.75, 6},
	"soft-rock":            {2.625, 2.625, 1.5, -0.375, -2.625, -3.375, -2.25, -0.375, 1.875, 5.625},
	"large-hall":           {6.375, 6.375, 3.75, 3.75, 0.375, -3, -3, -3, 0.375, 0.375},
	"reggae":               {0.375, 0.375, -0.375, -3.75, 0.375, 4.125, 4.125, 0.375, 0.375, 0.375},
	"techno":               {4.875, 3.75, 0.375, -3.375, -3, 0.375, 4.875, 6, 6, 5.625},
}

func PresetNames() []string {
	names := lo.Keys(Presets)
	slices.Sort(names)
	return names
}
