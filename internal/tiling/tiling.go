// Package tiling partitions a tall screenshot into overlapping horizontal
// tiles and maps tile-local normalized coordinates back into the full image.
//
// Tiles overlap by a fixed number of rows so that UI elements straddling a
// tile boundary are fully visible in at least one tile.
package tiling

import "math"

const (
	// DefaultMaxTileHeight is the largest tile sent to the analysis backend.
	DefaultMaxTileHeight = 1536
	// DefaultOverlap is the fixed row overlap between consecutive tiles.
	DefaultOverlap = 150

	// BoxScale is the size of the normalized coordinate space the backend
	// reports boxes in: [0, 1000] on both axes.
	BoxScale = 1000
)

// Tile is one horizontal slice of the full image, in pixel rows.
type Tile struct {
	Index  int
	Offset int
	Height int
}

// Plan computes the tiles covering an image of the given pixel height.
// A non-positive maxTile or overlap falls back to the defaults; whatever
// the source, overlap is clamped strictly below maxTile so the tile
// stride stays positive.
func Plan(height, maxTile, overlap int) []Tile {
	if maxTile <= 0 {
		maxTile = DefaultMaxTileHeight
	}
	if overlap <= 0 {
		overlap = DefaultOverlap
	}
	if overlap >= maxTile {
		overlap = maxTile - 1
	}
	if height <= 0 {
		return nil
	}

	if height <= maxTile {
		return []Tile{{Index: 0, Offset: 0, Height: height}}
	}

	effective := maxTile - overlap
	count := int(math.Ceil(float64(height-overlap) / float64(effective)))

	tiles := make([]Tile, 0, count)
	for i := 0; i < count; i++ {
		offset := i * effective
		h := maxTile
		if offset+h > height {
			h = height - offset
		}
		tiles = append(tiles, Tile{Index: i, Offset: offset, Height: h})
	}
	return tiles
}

// RemapBox converts a tile-local [yMin, xMin, yMax, xMax] box in the
// normalized space into full-image normalized coordinates. X passes through
// unchanged since tiling is vertical-only. The result is clamped to
// [0, BoxScale].
func RemapBox(box [4]int, offset, tileHeight, fullHeight int) [4]int {
	if fullHeight <= 0 || tileHeight <= 0 {
		return box
	}
	return [4]int{
		remapY(box[0], offset, tileHeight, fullHeight),
		clampCoord(box[1]),
		remapY(box[2], offset, tileHeight, fullHeight),
		clampCoord(box[3]),
	}
}

func remapY(local, offset, tileHeight, fullHeight int) int {
	pixel := float64(local)/BoxScale*float64(tileHeight) + float64(offset)
	global := pixel / float64(fullHeight) * BoxScale
	return clampCoord(int(math.Round(global)))
}

func clampCoord(v int) int {
	if v < 0 {
		return 0
	}
	if v > BoxScale {
		return BoxScale
	}
	return v
}
