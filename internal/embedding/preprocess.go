package embedding

import (
	"image"

	"golang.org/x/image/draw"
)

// Per-channel normalization constants for CLIP image encoders.
var (
	ClipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	ClipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// ImageTensor resizes img to size x size (aspect ratio not preserved) and returns planar
// R, G, B float data normalized by mean and std.
func ImageTensor(img image.Image, size int, mean, std [3]float32) []float32 {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	plane := size * size
	data := make([]float32, 3*plane)
	for y := 0; y < size; y++ {
		row := dst.Pix[y*dst.Stride:]
		for x := 0; x < size; x++ {
			px := row[x*4:]
			i := y*size + x
			for c := 0; c < 3; c++ {
				data[c*plane+i] = (float32(px[c])/255 - mean[c]) / std[c]
			}
		}
	}
	return data
}
