package catalog

import "sort"

// PrintArea is a named rectangle on a product template, in template pixels.
type PrintArea struct {
	Name   string `json:"name"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Contains reports whether the rectangle (x, y, w, h) lies inside the area.
func (a PrintArea) Contains(x, y, w, h int) bool {
	if w <= 0 || h <= 0 || w > a.Width || h > a.Height {
		return false
	}
	if x < a.X || y < a.Y || x > a.X+a.Width || y > a.Y+a.Height {
		return false
	}
	return w <= a.X+a.Width-x && h <= a.Y+a.Height-y
}

var printAreas = map[Kind][]PrintArea{
	KindTShirt: {
		{Name: "front", X: 150, Y: 120, Width: 300, Height: 400},
		{Name: "back", X: 150, Y: 100, Width: 300, Height: 450},
		{Name: "sleeve", X: 40, Y: 140, Width: 80, Height: 80},
	},
	KindHoodie: {
		{Name: "front", X: 160, Y: 180, Width: 280, Height: 250},
		{Name: "back", X: 150, Y: 120, Width: 300, Height: 420},
	},
	KindMug: {
		{Name: "wrap", X: 0, Y: 0, Width: 800, Height: 300},
	},
	KindTote: {
		{Name: "front", X: 100, Y: 150, Width: 300, Height: 300},
	},
}

// PrintAreas returns the print areas of kind ordered by name.
func PrintAreas(kind Kind) []PrintArea {
	areas := append([]PrintArea(nil), printAreas[kind]...)
	sort.Slice(areas, func(i, j int) bool { return areas[i].Name < areas[j].Name })
	return areas
}

// FindPrintArea looks up a named area for kind.
func FindPrintArea(kind Kind, name string) (PrintArea, bool) {
	for _, a := range printAreas[kind] {
		if a.Name == name {
			return a, true
		}
	}
	return PrintArea{}, false
}
