package docparse

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

// Default page size (US Letter) when no MediaBox is present.
const (
	defaultPageWidth  = 612
	defaultPageHeight = 792
)

// PDFParser extracts words and raster images from PDF files.
type PDFParser struct {
	logger *zap.Logger
}

// Option configures a PDFParser.
type Option func(*PDFParser)

// WithLogger sets the logger for the parser.
func WithLogger(l *zap.Logger) Option {
	return func(p *PDFParser) {
		p.logger = l
	}
}

// NewPDFParser returns a PDF parser.
func NewPDFParser(opts ...Option) *PDFParser {
	p := &PDFParser{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse reads every page of the PDF at path. Malformed files return an error instead of
// panicking.
func (p *PDFParser) Parse(ctx context.Context, path string) (pages []Page, err error) {
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(path))
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return p.ParseBytes(ctx, content)
}

// ParseBytes reads every page of an in-memory PDF.
func (p *PDFParser) ParseBytes(ctx context.Context, content []byte) (pages []Page, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("malformed PDF: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}
	var jpegs jpegStreams
	if bytes.Contains(content, dctMarker) {
		jpegs = findJPEGStreams(content)
	}
	fonts := make(map[string]*pdf.Font)
	n := r.NumPage()
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			p.logger.Debug("skipping null page", zap.Int("page", i))
			continue
		}
		for _, name := range page.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := page.Font(name)
				fonts[name] = &f
			}
		}
		w, h := mediaBox(page.V)
		words := assembleWords(page.Content().Text)
		pages = append(pages, Page{
			Number: i,
			Width:  w,
			Height: h,
			Text:   pageText(words),
			Words:  words,
			Images: p.pageImages(page, i, jpegs),
		})
	}
	return pages, nil
}

// mediaBox walks up the page tree for the inherited MediaBox.
func mediaBox(v pdf.Value) (float64, float64) {
	for depth := 0; depth < 32 && !v.IsNull(); depth++ {
		box := v.Key("MediaBox")
		if box.Kind() == pdf.Array && box.Len() == 4 {
			w := math.Abs(box.Index(2).Float64() - box.Index(0).Float64())
			h := math.Abs(box.Index(3).Float64() - box.Index(1).Float64())
			if w > 0 && h > 0 {
				return w, h
			}
		}
		v = v.Key("Parent")
	}
	return defaultPageWidth, defaultPageHeight
}

// assembleWords joins glyphs into words. Glyphs belong to the same word when they share a
// baseline and the horizontal gap is under a quarter of the font size.
func assembleWords(glyphs []pdf.Text) []Word {
	sorted := make([]pdf.Text, 0, len(glyphs))
	for _, g := range glyphs {
		if g.S != "" {
			sorted = append(sorted, g)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if math.Abs(sorted[i].Y-sorted[j].Y) > 0.5 {
			return sorted[i].Y > sorted[j].Y
		}
		return sorted[i].X < sorted[j].X
	})

	var words []Word
	var cur *Word
	var b strings.Builder
	flush := func() {
		if cur != nil {
			cur.Text = b.String()
			words = append(words, *cur)
			cur = nil
			b.Reset()
		}
	}
	for _, g := range sorted {
		size := g.FontSize
		if size <= 0 {
			size = 10
		}
		if strings.TrimFunc(g.S, unicode.IsSpace) == "" {
			flush()
			continue
		}
		if cur != nil {
			gap := g.X - (cur.X + cur.Width)
			if math.Abs(g.Y-cur.Y) > 0.5 || gap > size*0.25 || gap < -size {
				flush()
			}
		}
		if cur == nil {
			cur = &Word{X: g.X, Y: g.Y, Height: size}
		}
		b.WriteString(g.S)
		cur.Width = math.Max(cur.Width, g.X+g.W-cur.X)
		cur.Height = math.Max(cur.Height, size)
	}
	flush()
	return words
}

// pageText joins words with spaces, starting a new line whenever the baseline changes.
func pageText(words []Word) string {
	var b strings.Builder
	for i, w := range words {
		if i > 0 {
			if math.Abs(w.Y-words[i-1].Y) > 0.5 {
				b.WriteByte('\n')
			} else {
				b.WriteByte(' ')
			}
		}
		b.WriteString(w.Text)
	}
	return b.String()
}

type matrix [6]float64

var identity = matrix{1, 0, 0, 1, 0, 0}

// mul returns the transform that applies m, then n.
func (m matrix) mul(n matrix) matrix {
	return matrix{
		m[0]*n[0] + m[1]*n[2],
		m[0]*n[1] + m[1]*n[3],
		m[2]*n[0] + m[3]*n[2],
		m[2]*n[1] + m[3]*n[3],
		m[4]*n[0] + m[5]*n[2] + n[4],
		m[4]*n[1] + m[5]*n[3] + n[5],
	}
}

func (m matrix) apply(x, y float64) (float64, float64) {
	return x*m[0] + y*m[2] + m[4], x*m[1] + y*m[3] + m[5]
}

// pageImages runs the content stream and records every image XObject drawn, placed by the
// current transformation matrix.
func (p *PDFParser) pageImages(page pdf.Page, num int, jpegs jpegStreams) (images []Image) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("failed to read page images", zap.Int("page", num), zap.Any("panic", r))
			images = nil
		}
	}()
	xobjects := page.Resources().Key("XObject")
	if xobjects.IsNull() {
		return nil
	}
	ctm := identity
	var saved []matrix
	handle := func(stk *pdf.Stack, op string) {
		switch op {
		case "q":
			saved = append(saved, ctm)
		case "Q":
			if len(saved) > 0 {
				ctm = saved[len(saved)-1]
				saved = saved[:len(saved)-1]
			}
		case "cm":
			if stk.Len() < 6 {
				return
			}
			var m matrix
			for i := 5; i >= 0; i-- {
				m[i] = stk.Pop().Float64()
			}
			ctm = m.mul(ctm)
		case "Do":
			if stk.Len() < 1 {
				return
			}
			name := stk.Pop().Name()
			xobj := xobjects.Key(name)
			if xobj.Key("Subtype").Name() != "Image" {
				return
			}
			img, ok := placeImage(xobj, ctm, jpegs)
			if !ok {
				p.logger.Debug("skipping image", zap.Int("page", num), zap.String("name", name))
				return
			}
			images = append(images, img)
		}
	}

	contents := page.V.Key("Contents")
	if contents.Kind() == pdf.Array {
		for i := 0; i < contents.Len(); i++ {
			pdf.Interpret(contents.Index(i), handle)
		}
	} else if !contents.IsNull() {
		pdf.Interpret(contents, handle)
	}
	return images
}

func placeImage(xobj pdf.Value, ctm matrix, jpegs jpegStreams) (Image, bool) {
	pw, ph := int(xobj.Key("Width").Int64()), int(xobj.Key("Height").Int64())
	if pw <= 0 || ph <= 0 {
		return Image{}, false
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, c := range [][2]float64{{0, 0}, {1, 0}, {0, 1}, {1, 1}} {
		x, y := ctm.apply(c[0], c[1])
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}
	decode := func() (image.Image, error) { return decodeRaster(xobj, pw, ph) }
	if isDCT(xobj) {
		decode = func() (image.Image, error) { return decodeJPEG(jpegs, xobj, pw, ph) }
	}
	return NewImage(minX, minY, maxX-minX, maxY-minY, pw, ph, decode), true
}

// decodeRaster decodes uncompressed or Flate-compressed 8-bit gray, RGB and CMYK samples.
// Other encodings return ErrUnsupported; JPEG samples go through decodeJPEG.
func decodeRaster(xobj pdf.Value, w, h int) (img image.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			img = nil
			err = fmt.Errorf("%w: %v", ErrUnsupported, r)
		}
	}()

	filter := xobj.Key("Filter")
	switch filter.Kind() {
	case pdf.Null:
	case pdf.Name:
		if filter.Name() != "FlateDecode" {
			return nil, fmt.Errorf("%w: filter %s", ErrUnsupported, filter.Name())
		}
	case pdf.Array:
		for i := 0; i < filter.Len(); i++ {
			if filter.Index(i).Name() != "FlateDecode" {
				return nil, fmt.Errorf("%w: filter %s", ErrUnsupported, filter.Index(i).Name())
			}
		}
	default:
		return nil, fmt.Errorf("%w: filter", ErrUnsupported)
	}
	if bpc := xobj.Key("BitsPerComponent").Int64(); bpc != 8 {
		return nil, fmt.Errorf("%w: %d bits per component", ErrUnsupported, bpc)
	}
	channels := colorChannels(xobj.Key("ColorSpace"))
	if channels == 0 {
		return nil, fmt.Errorf("%w: color space", ErrUnsupported)
	}

	rc := xobj.Reader()
	defer rc.Close()
	data := make([]byte, w*h*channels)
	if _, err := io.ReadFull(rc, data); err != nil {
		return nil, fmt.Errorf("read image samples: %w", err)
	}

	out := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < w*h; i++ {
		var c color.RGBA
		switch channels {
		case 1:
			v := data[i]
			c = color.RGBA{v, v, v, 255}
		case 3:
			c = color.RGBA{data[i*3], data[i*3+1], data[i*3+2], 255}
		case 4:
			r, g, b := color.CMYKToRGB(data[i*4], data[i*4+1], data[i*4+2], data[i*4+3])
			c = color.RGBA{r, g, b, 255}
		}
		out.Pix[i*4], out.Pix[i*4+1], out.Pix[i*4+2], out.Pix[i*4+3] = c.R, c.G, c.B, c.A
	}
	return out, nil
}

func colorChannels(cs pdf.Value) int {
	switch cs.Kind() {
	case pdf.Name:
		switch cs.Name() {
		case "DeviceGray", "CalGray":
			return 1
		case "DeviceRGB", "CalRGB":
			return 3
		case "DeviceCMYK":
			return 4
		}
	case pdf.Array:
		if cs.Len() == 2 && cs.Index(0).Name() == "ICCBased" {
			switch n := cs.Index(1).Key("N").Int64(); n {
			case 1, 3, 4:
				return int(n)
			}
		}
		if cs.Len() > 0 {
			return colorChannels(cs.Index(0))
		}
	}
	return 0
}
