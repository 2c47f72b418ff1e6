// Package e2e runs ingestion, search and capture end to end over a generated PDF corpus.
package e2e

import (
	"bytes"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"
)

const (
	pageWidth   = 612
	pageHeight  = 792
	fontSize    = 12
	lineHeight  = 18
	photoPixels = 64
)

// PageSpec is the content of one generated page: text lines top to bottom and an optional
// solid-colour photo drawn below them.
type PageSpec struct {
	Lines []string
	Photo *color.RGBA
}

// BuildPDF returns a PDF with one page per spec, set in Courier so glyph positions are exact.
func BuildPDF(pages []PageSpec) []byte {
	// 1 catalog, 2 page tree, 3 font, then per page: page, contents and an optional image.
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Courier /FirstChar 32 /LastChar 126 /Widths [" +
			strings.TrimSpace(strings.Repeat("600 ", 95)) + "] >>",
	}
	var kids []string
	for _, p := range pages {
		pageNum := len(objects) + 1
		contentNum := pageNum + 1
		kids = append(kids, fmt.Sprintf("%d 0 R", pageNum))

		var content strings.Builder
		y := pageHeight - 72
		for _, line := range p.Lines {
			fmt.Fprintf(&content, "BT /F1 %d Tf 72 %d Td (%s) Tj ET\n", fontSize, y, escapePDF(line))
			y -= lineHeight
		}
		resources := "/Font << /F1 3 0 R >>"
		var imageObj string
		if p.Photo != nil {
			resources += fmt.Sprintf(" /XObject << /Im1 %d 0 R >>", contentNum+1)
			fmt.Fprintf(&content, "q 200 0 0 200 72 %d cm /Im1 Do Q\n", y-220)
			imageObj = stream(fmt.Sprintf("/Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace /DeviceRGB /BitsPerComponent 8",
				photoPixels, photoPixels), solidPixels(*p.Photo))
		}
		objects = append(objects,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /Resources << %s >> /Contents %d 0 R >>", resources, contentNum),
			stream("", content.String()),
		)
		if imageObj != "" {
			objects = append(objects, imageObj)
		}
	}
	objects[1] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d /MediaBox [0 0 %d %d] >>",
		strings.Join(kids, " "), len(kids), pageWidth, pageHeight)
	return writeObjects(objects)
}

// WritePDF writes BuildPDF(pages) to dir/name and returns the path.
func WritePDF(dir, name string, pages []PageSpec) (string, error) {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, BuildPDF(pages), 0644); err != nil {
		return "", err
	}
	return path, nil
}

func writeObjects(objects []string) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func stream(dict, data string) string {
	return fmt.Sprintf("<< %s /Length %d >>\nstream\n%s\nendstream", dict, len(data), data)
}

func solidPixels(c color.RGBA) string {
	px := make([]byte, 0, photoPixels*photoPixels*3)
	for i := 0; i < photoPixels*photoPixels; i++ {
		px = append(px, c.R, c.G, c.B)
	}
	return string(px)
}

func escapePDF(s string) string {
	return strings.NewReplacer(`\`, `\\`, "(", `\(`, ")", `\)`).Replace(s)
}
