package segment

import "image"

// blob is one 8-connected foreground component of a binary plane.
type blob struct {
	bounds image.Rectangle
	pixels int
	// rows holds the leftmost and rightmost column per row, indexed from bounds.Min.Y.
	rows [][2]int
	// inner is the bounding box of pixels also set in the optional mask passed to findBlobs.
	inner image.Rectangle
}

// findBlobs labels 8-connected components of non-zero pixels, in raster order of their
// first pixel. labels receives component ids starting at 1. When mask is non-nil, each
// blob's inner box covers the pixels that are also set in mask.
func findBlobs(bin, mask *image.Gray) (blobs []blob, labels []int32) {
	w, h := bin.Rect.Dx(), bin.Rect.Dy()
	labels = make([]int32, w*h)
	stack := make([]int, 0, 1024)
	for start := 0; start < w*h; start++ {
		if bin.Pix[(start/w)*bin.Stride+start%w] == 0 || labels[start] != 0 {
			continue
		}
		id := int32(len(blobs) + 1)
		b := blob{bounds: image.Rect(start%w, start/w, start%w+1, start/w+1)}
		labels[start] = id
		stack = append(stack[:0], start)
		var pts []int
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			pts = append(pts, i)
			x, y := i%w, i/w
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					xx, yy := x+dx, y+dy
					if xx < 0 || yy < 0 || xx >= w || yy >= h {
						continue
					}
					j := yy*w + xx
					if labels[j] == 0 && bin.Pix[yy*bin.Stride+xx] != 0 {
						labels[j] = id
						stack = append(stack, j)
					}
				}
			}
		}
		for _, i := range pts {
			b.bounds = b.bounds.Union(image.Rect(i%w, i/w, i%w+1, i/w+1))
		}
		b.pixels = len(pts)
		b.rows = make([][2]int, b.bounds.Dy())
		for r := range b.rows {
			b.rows[r] = [2]int{b.bounds.Max.X, b.bounds.Min.X - 1}
		}
		for _, i := range pts {
			x, y := i%w, i/w
			r := &b.rows[y-b.bounds.Min.Y]
			r[0], r[1] = min(r[0], x), max(r[1], x)
			if mask != nil && mask.Pix[y*mask.Stride+x] != 0 {
				b.inner = b.inner.Union(image.Rect(x, y, x+1, y+1))
			}
		}
		blobs = append(blobs, b)
	}
	return blobs, labels
}

// filledArea returns the blob's pixel area with enclosed holes filled, as covered by its
// outer contour. Background is 4-connected.
func (b *blob) filledArea(labels []int32, stride int, id int32) int {
	bw, bh := b.bounds.Dx(), b.bounds.Dy()
	outside := make([]bool, bw*bh)
	stack := make([]int, 0, 2*(bw+bh))
	inBlob := func(lx, ly int) bool {
		return labels[(ly+b.bounds.Min.Y)*stride+lx+b.bounds.Min.X] == id
	}
	push := func(lx, ly int) {
		i := ly*bw + lx
		if !outside[i] && !inBlob(lx, ly) {
			outside[i] = true
			stack = append(stack, i)
		}
	}
	for x := 0; x < bw; x++ {
		push(x, 0)
		push(x, bh-1)
	}
	for y := 0; y < bh; y++ {
		push(0, y)
		push(bw-1, y)
	}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%bw, i/bw
		if x > 0 {
			push(x-1, y)
		}
		if x < bw-1 {
			push(x+1, y)
		}
		if y > 0 {
			push(x, y-1)
		}
		if y < bh-1 {
			push(x, y+1)
		}
	}
	n := 0
	for _, o := range outside {
		if o {
			n++
		}
	}
	return bw*bh - n
}

// hull returns the convex hull of the blob's pixel squares.
func (b *blob) hull() []image.Point {
	pts := make([]image.Point, 0, 4*len(b.rows))
	for r, span := range b.rows {
		if span[1] < span[0] {
			continue
		}
		y := b.bounds.Min.Y + r
		pts = append(pts,
			image.Pt(span[0], y), image.Pt(span[1]+1, y),
			image.Pt(span[0], y+1), image.Pt(span[1]+1, y+1))
	}
	return convexHull(pts)
}
