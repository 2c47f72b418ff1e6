package docparse

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jpegBytes(t *testing.T, w, h int, c color.Color) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	return buf.String()
}

func photoPDF(t *testing.T, filter string) []byte {
	content := "q 200 0 0 100 50 600 cm /Photo Do Q"
	return buildPDF([]string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 /MediaBox [0 0 612 792] >>",
		"<< /Type /Page /Parent 2 0 R /Resources << /XObject << /Photo 5 0 R >> >> /Contents 4 0 R >>",
		stream("", content),
		stream("/Type /XObject /Subtype /Image /Width 16 /Height 8 /ColorSpace /DeviceRGB /BitsPerComponent 8 /Filter "+filter,
			jpegBytes(t, 16, 8, color.RGBA{R: 220, G: 20, B: 20, A: 255})),
	})
}

func TestParseBytes_jpegImage(t *testing.T) {
	for _, filter := range []string{"/DCTDecode", "[/DCTDecode]"} {
		t.Run(filter, func(t *testing.T) {
			pages, err := NewPDFParser().ParseBytes(context.Background(), photoPDF(t, filter))
			require.NoError(t, err)
			require.Len(t, pages, 1)
			require.Len(t, pages[0].Images, 1)

			img := pages[0].Images[0]
			assert.InDelta(t, 50, img.X, 1e-9)
			assert.InDelta(t, 600, img.Y, 1e-9)
			assert.Equal(t, 16, img.PixelWidth)
			assert.Equal(t, 8, img.PixelHeight)

			raster, err := img.Decode()
			require.NoError(t, err)
			assert.Equal(t, image.Rect(0, 0, 16, 8), raster.Bounds())
			r, g, b, _ := raster.At(8, 4).RGBA()
			assert.Greater(t, r>>8, uint32(190))
			assert.Less(t, g>>8, uint32(60))
			assert.Less(t, b>>8, uint32(60))
		})
	}
}

func TestFindJPEGStreams(t *testing.T) {
	photo := jpegBytes(t, 4, 4, color.White)
	doc := buildPDF([]string{
		"<< /Type /Catalog /Filters [/DCTDecode] >>",
		stream("/Subtype /Image /Width 4 /Height 4 /Filter /DCTDecode", photo),
		stream("/Subtype /Image /Width 9 0 R /Height 4 /Filter /DCTDecode", photo),
		stream("/Subtype /Image /Width 4 /Height 4 /Filter /DCTDecode", photo+"tail"),
	})

	streams := findJPEGStreams(doc)
	require.Len(t, streams, 2)
	for _, s := range streams {
		assert.Equal(t, 4, s.width)
		assert.Equal(t, 4, s.height)
	}
	assert.Equal(t, photo, string(streams[0].data))

	data, ok := streams.lookup(4, 4, int64(len(photo)+4))
	require.True(t, ok)
	assert.Equal(t, photo+"tail", string(data))

	_, ok = streams.lookup(5, 4, 0)
	assert.False(t, ok)
}
