// Package mapper converts coordinates into coarse spatial cells.
package mapper

import "github.com/mohammed-shakir/library-locator/internal/core/model"

type Interface interface {
	CellForPoint(c model.Coordinate, res int) (string, error)
}
