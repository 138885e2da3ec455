package designs

import (
	"fmt"

	"github.com/custshop/custshop/internal/catalog"
	"github.com/custshop/custshop/internal/platform/httpx"
)

// ValidatePlacement checks that p names a print area of kind and fits inside it.
func ValidatePlacement(kind catalog.Kind, p Placement) error {
	area, ok := catalog.FindPrintArea(kind, p.Area)
	if !ok {
		return fmt.Errorf("%w: %s has no print area %q", httpx.ErrValidation, kind, p.Area)
	}
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("%w: placement width and height must be positive", httpx.ErrValidation)
	}
	if !area.Contains(p.X, p.Y, p.Width, p.Height) {
		return fmt.Errorf("%w: placement exceeds the %s print area (%d,%d %dx%d)",
			httpx.ErrValidation, area.Name, area.X, area.Y, area.Width, area.Height)
	}
	return nil
}
