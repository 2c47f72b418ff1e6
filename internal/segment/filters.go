package segment

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
)

// toGray converts img to an 8-bit luma plane with origin (0,0).
func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	if src, ok := img.(*image.Gray); ok {
		for y := 0; y < b.Dy(); y++ {
			copy(g.Pix[y*g.Stride:y*g.Stride+b.Dx()], src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):])
		}
		return g
	}
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			g.Pix[y*g.Stride+x] = color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray).Y
		}
	}
	return g
}

// downscale resizes img to width w, keeping the aspect ratio.
func downscale(img image.Image, w int) image.Image {
	b := img.Bounds()
	h := int(float64(b.Dy()) * float64(w) / float64(b.Dx()))
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// reflect101 maps an out-of-range index back into [0, n) by mirroring without repeating the edge.
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*n - 2 - i
		}
	}
	return i
}

// gaussianKernel returns a normalized 1-D kernel of the given odd size.
// A non-positive sigma is derived from the size.
func gaussianKernel(size int, sigma float64) []float64 {
	if sigma <= 0 {
		sigma = 0.3*(float64(size-1)*0.5-1) + 0.8
	}
	k := make([]float64, size)
	c := size / 2
	var sum float64
	for i := range k {
		d := float64(i - c)
		k[i] = math.Exp(-d * d / (2 * sigma * sigma))
		sum += k[i]
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

// gaussianBlur applies a separable size x size Gaussian with mirrored borders.
func gaussianBlur(g *image.Gray, size int, sigma float64) *image.Gray {
	return gaussianBlurBorder(g, size, sigma, reflect101)
}

// replicate clamps an index into [0, n).
func replicate(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func gaussianBlurBorder(g *image.Gray, size int, sigma float64, border func(i, n int) int) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	k := gaussianKernel(size, sigma)
	c := size / 2
	tmp := make([]float64, w*h)
	for y := 0; y < h; y++ {
		row := g.Pix[y*g.Stride:]
		for x := 0; x < w; x++ {
			var s float64
			for i, kv := range k {
				s += kv * float64(row[border(x+i-c, w)])
			}
			tmp[y*w+x] = s
		}
	}
	out := image.NewGray(g.Rect)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var s float64
			for i, kv := range k {
				s += kv * tmp[border(y+i-c, h)*w+x]
			}
			out.Pix[y*out.Stride+x] = uint8(math.Min(255, math.Round(s)))
		}
	}
	return out
}

// dilate grows non-zero pixels of a binary plane with a kw x kh rectangle.
func dilate(bin *image.Gray, kw, kh int) *image.Gray {
	w, h := bin.Rect.Dx(), bin.Rect.Dy()
	rx, ry := kw/2, kh/2
	tmp := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		row := bin.Pix[y*bin.Stride:]
		for x := 0; x < w; x++ {
			for dx := -rx; dx <= kw-1-rx; dx++ {
				xx := x + dx
				if xx >= 0 && xx < w && row[xx] != 0 {
					tmp[y*w+x] = 255
					break
				}
			}
		}
	}
	out := image.NewGray(bin.Rect)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for dy := -ry; dy <= kh-1-ry; dy++ {
				yy := y + dy
				if yy >= 0 && yy < h && tmp[yy*w+x] != 0 {
					out.Pix[y*out.Stride+x] = 255
					break
				}
			}
		}
	}
	return out
}

// erode keeps a pixel non-zero only if every in-range pixel under a kw x kh rectangle is non-zero.
func erode(bin *image.Gray, kw, kh int) *image.Gray {
	w, h := bin.Rect.Dx(), bin.Rect.Dy()
	rx, ry := kw/2, kh/2
	tmp := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		row := bin.Pix[y*bin.Stride:]
		for x := 0; x < w; x++ {
			v := uint8(255)
			for dx := -rx; dx <= kw-1-rx; dx++ {
				xx := x + dx
				if xx >= 0 && xx < w && row[xx] == 0 {
					v = 0
					break
				}
			}
			tmp[y*w+x] = v
		}
	}
	out := image.NewGray(bin.Rect)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(255)
			for dy := -ry; dy <= kh-1-ry; dy++ {
				yy := y + dy
				if yy >= 0 && yy < h && tmp[yy*w+x] == 0 {
					v = 0
					break
				}
			}
			out.Pix[y*out.Stride+x] = v
		}
	}
	return out
}

// adaptiveThreshold sets a pixel to 255 when it is brighter than its Gaussian-weighted
// block neighbourhood minus c, and to 0 otherwise.
func adaptiveThreshold(g *image.Gray, block int, c float64) *image.Gray {
	mean := gaussianBlurBorder(g, block, 0, replicate)
	w, h := g.Rect.Dx(), g.Rect.Dy()
	out := image.NewGray(g.Rect)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if float64(g.Pix[y*g.Stride+x])-float64(mean.Pix[y*mean.Stride+x]) > -c {
				out.Pix[y*out.Stride+x] = 255
			}
		}
	}
	return out
}

// otsu returns the threshold that maximizes between-class variance of the luma histogram.
// Pixels <= threshold form the darker class.
func otsu(g *image.Gray) uint8 {
	var hist [256]int
	w, h := g.Rect.Dx(), g.Rect.Dy()
	for y := 0; y < h; y++ {
		for _, v := range g.Pix[y*g.Stride : y*g.Stride+w] {
			hist[v]++
		}
	}
	total := float64(w * h)
	var sumAll float64
	for i, n := range hist {
		sumAll += float64(i * n)
	}
	var sumB, wB float64
	best, bestVar := 0, -1.0
	for t := 0; t < 256; t++ {
		wB += float64(hist[t])
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(t * hist[t])
		mB := sumB / wB
		mF := (sumAll - sumB) / wF
		v := wB * wF * (mB - mF) * (mB - mF)
		if v > bestVar {
			bestVar = v
			best = t
		}
	}
	return uint8(best)
}

// binarizeInk marks ink pixels 255 using Otsu. Ink is the darker class unless the darker
// class covers most of the image, as in light-on-dark captures.
func binarizeInk(g *image.Gray) *image.Gray {
	t := otsu(g)
	w, h := g.Rect.Dx(), g.Rect.Dy()
	dark := 0
	for y := 0; y < h; y++ {
		for _, v := range g.Pix[y*g.Stride : y*g.Stride+w] {
			if v <= t {
				dark++
			}
		}
	}
	inkIsDark := dark*2 <= w*h
	out := image.NewGray(g.Rect)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (g.Pix[y*g.Stride+x] <= t) == inkIsDark {
				out.Pix[y*out.Stride+x] = 255
			}
		}
	}
	return out
}
