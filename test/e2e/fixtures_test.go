package e2e

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/lens/internal/docparse"
)

func TestBuildPDF_parses(t *testing.T) {
	specs := []PageSpec{
		page(&Red, "first page heading", "second line"),
		page(nil, "closing remarks (draft)"),
	}
	pages, err := docparse.NewPDFParser().ParseBytes(context.Background(), BuildPDF(specs))
	require.NoError(t, err)
	require.Len(t, pages, 2)

	assert.Equal(t, "first page heading\nsecond line", pages[0].Text)
	assert.Equal(t, float64(pageWidth), pages[0].Width)
	require.Len(t, pages[0].Images, 1)
	assert.Equal(t, photoPixels, pages[0].Images[0].PixelWidth)
	img, err := pages[0].Images[0].Decode()
	require.NoError(t, err)
	r, g, b, _ := img.At(10, 10).RGBA()
	assert.Equal(t, [3]uint32{0xffff, 0, 0}, [3]uint32{r, g, b})

	assert.Equal(t, "closing remarks (draft)", pages[1].Text)
	assert.Empty(t, pages[1].Images)
}
