// Package imagehash computes perceptual difference hashes for near-duplicate capture detection.
package imagehash

import (
	"fmt"
	"image"
	"math/bits"
	"strconv"

	"golang.org/x/image/draw"
)

// DHash returns the 64-bit difference hash of img as 16 upper-case hex digits.
// The image is reduced to 9x8 grayscale; bit i is set when a pixel is brighter than its right neighbour.
func DHash(img image.Image) string {
	small := image.NewGray(image.Rect(0, 0, 9, 8))
	if !img.Bounds().Empty() {
		draw.BiLinear.Scale(small, small.Bounds(), img, img.Bounds(), draw.Src, nil)
	}
	var h uint64
	bit := 0
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			left := small.GrayAt(x, y).Y
			right := small.GrayAt(x+1, y).Y
			if left > right {
				h |= 1 << bit
			}
			bit++
		}
	}
	return fmt.Sprintf("%016X", h)
}

// Similarity returns 1 - hamming/64 for two hashes, or 0 when either does not parse.
func Similarity(a, b string) float64 {
	x, err := strconv.ParseUint(a, 16, 64)
	if err != nil {
		return 0
	}
	y, err := strconv.ParseUint(b, 16, 64)
	if err != nil {
		return 0
	}
	return 1 - float64(bits.OnesCount64(x^y))/64
}
