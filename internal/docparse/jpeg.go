package docparse

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"regexp"
	"strconv"

	"github.com/ledongthuc/pdf"
)

// The PDF reader only hands out streams it can unfilter and has no DCT filter, so JPEG
// image XObjects are located in the raw file bytes and matched back by size.

var (
	dctMarker = []byte("/DCTDecode")
	widthRe   = regexp.MustCompile(`/Width\s+(\d+)(\s+\d+\s+R)?`)
	heightRe  = regexp.MustCompile(`/Height\s+(\d+)(\s+\d+\s+R)?`)
)

type jpegStream struct {
	width, height int
	data          []byte
}

type jpegStreams []jpegStream

// findJPEGStreams scans an unencrypted PDF for image objects whose only filter is
// DCTDecode. Objects with indirect Width or Height are skipped.
func findJPEGStreams(content []byte) jpegStreams {
	var out jpegStreams
	for pos := 0; pos < len(content); {
		i := bytes.Index(content[pos:], dctMarker)
		if i < 0 {
			break
		}
		at := pos + i
		pos = at + len(dctMarker)

		objStart := bytes.LastIndex(content[:at], []byte(" obj"))
		kw := bytes.Index(content[at:], []byte("stream"))
		if objStart < 0 || kw < 0 {
			continue
		}
		head := content[objStart:at]
		dict := content[objStart : at+kw]
		if bytes.Contains(head, []byte("stream")) || bytes.Contains(dict, []byte("endobj")) ||
			!bytes.Contains(dict, []byte("/Subtype /Image")) {
			continue
		}
		w, okW := dictInt(widthRe, dict)
		h, okH := dictInt(heightRe, dict)
		if !okW || !okH {
			continue
		}

		start := at + kw + len("stream")
		if start < len(content) && content[start] == '\r' {
			start++
		}
		if start < len(content) && content[start] == '\n' {
			start++
		}
		end := bytes.Index(content[start:], []byte("endstream"))
		if end < 0 {
			break
		}
		out = append(out, jpegStream{
			width:  w,
			height: h,
			data:   bytes.TrimRight(content[start:start+end], "\r\n"),
		})
		pos = start + end
	}
	return out
}

func dictInt(re *regexp.Regexp, dict []byte) (int, bool) {
	m := re.FindSubmatch(dict)
	if m == nil || len(m[2]) > 0 {
		return 0, false
	}
	n, err := strconv.Atoi(string(m[1]))
	return n, err == nil
}

// lookup returns the stream of the given pixel size whose length is closest to n.
func (s jpegStreams) lookup(w, h int, n int64) ([]byte, bool) {
	best, bestDiff := -1, int64(0)
	for i, js := range s {
		if js.width != w || js.height != h {
			continue
		}
		d := int64(len(js.data)) - n
		if d < 0 {
			d = -d
		}
		if best < 0 || d < bestDiff {
			best, bestDiff = i, d
		}
	}
	if best < 0 {
		return nil, false
	}
	return s[best].data, true
}

func isDCT(xobj pdf.Value) bool {
	filter := xobj.Key("Filter")
	switch filter.Kind() {
	case pdf.Name:
		return filter.Name() == "DCTDecode"
	case pdf.Array:
		return filter.Len() == 1 && filter.Index(0).Name() == "DCTDecode"
	}
	return false
}

func decodeJPEG(streams jpegStreams, xobj pdf.Value, w, h int) (image.Image, error) {
	data, ok := streams.lookup(w, h, xobj.Key("Length").Int64())
	if !ok {
		return nil, fmt.Errorf("%w: DCTDecode stream not found", ErrUnsupported)
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode JPEG samples: %w", err)
	}
	return img, nil
}
