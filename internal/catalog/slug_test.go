package catalog

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Classic Tee":           "classic-tee",
		"  Café Crème  Hoodie ": "cafe-creme-hoodie",
		"Mug -- 11oz!!":         "mug-11oz",
		"ÄÖÜ tote":              "aou-tote",
		"***":                   "",
		"":                      "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Slugify(in), in)
	}
}

func TestPrintAreaContains(t *testing.T) {
	front, ok := FindPrintArea(KindTShirt, "front")
	assert.True(t, ok)

	assert.True(t, front.Contains(150, 120, 300, 400), "exact fit")
	assert.True(t, front.Contains(200, 200, 50, 50))
	assert.False(t, front.Contains(149, 120, 10, 10), "left of area")
	assert.False(t, front.Contains(150, 120, 301, 10), "too wide")
	assert.False(t, front.Contains(150, 500, 10, 21), "past bottom")
	assert.False(t, front.Contains(200, 200, 0, 10), "zero width")
	assert.False(t, front.Contains(200, 200, 10, -1), "negative height")
	assert.False(t, front.Contains(200, 200, math.MaxInt, math.MaxInt), "size wraps around")
	assert.False(t, front.Contains(math.MaxInt, math.MaxInt, 1, 1), "origin wraps around")
	assert.False(t, front.Contains(200, 200, 10, math.MaxInt-100), "height wraps around")

	_, ok = FindPrintArea(KindMug, "front")
	assert.False(t, ok, "mugs only have a wrap area")
}

func TestPrintAreasPerKind(t *testing.T) {
	for _, kind := range Kinds() {
		assert.NotEmpty(t, PrintAreas(kind), kind)
	}
	assert.Empty(t, PrintAreas(Kind("poster")))

	areas := PrintAreas(KindTShirt)
	areas[0].Width = 1
	again := PrintAreas(KindTShirt)
	assert.NotEqual(t, 1, again[0].Width, "callers get a copy")
}

func TestKindSizes(t *testing.T) {
	assert.True(t, KindTShirt.AcceptsSize("M"))
	assert.False(t, KindTShirt.AcceptsSize(""))
	assert.False(t, KindHoodie.AcceptsSize("m"))
	assert.True(t, KindMug.AcceptsSize(""))
	assert.False(t, KindTote.AcceptsSize("L"))
	assert.Nil(t, KindMug.Sizes())
	assert.Len(t, KindHoodie.Sizes(), 6)
}
