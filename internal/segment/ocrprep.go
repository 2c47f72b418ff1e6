package segment

import (
	"image"

	"golang.org/x/image/draw"
)

// PrepareForOCR turns a crop into a black-on-white binary image for a text recognizer.
// Crops shorter than minHeight are upscaled twice before thresholding. The threshold is
// adaptive (Gaussian block of 31 pixels, offset 5), followed by a 2x2 opening and dilation
// that drop speckles and thin the strokes.
func PrepareForOCR(img image.Image, minHeight int) *image.Gray {
	b := img.Bounds()
	if b.Empty() {
		return image.NewGray(image.Rectangle{})
	}
	if minHeight > 0 && b.Dy() < minHeight {
		up := image.NewRGBA(image.Rect(0, 0, b.Dx()*2, b.Dy()*2))
		draw.CatmullRom.Scale(up, up.Bounds(), img, b, draw.Src, nil)
		img = up
	}
	bin := adaptiveThreshold(toGray(img), 31, 5)
	bin = dilate(erode(bin, 2, 2), 2, 2)
	return dilate(bin, 2, 2)
}
