package segment

import "image"

// canny returns a binary edge map (255 = edge) using 3x3 Sobel gradients with L1 magnitude,
// non-maximum suppression and hysteresis between low and high.
func canny(g *image.Gray, low, high float64) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	at := func(x, y int) int {
		return int(g.Pix[reflect101(y, h)*g.Stride+reflect101(x, w)])
	}
	gx := make([]int, w*h)
	gy := make([]int, w*h)
	mag := make([]int, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx := -at(x-1, y-1) - 2*at(x-1, y) - at(x-1, y+1) + at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1)
			dy := -at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1) + at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1)
			i := y*w + x
			gx[i], gy[i] = dx, dy
			mag[i] = abs(dx) + abs(dy)
		}
	}

	const (
		none   = 0
		weak   = 1
		strong = 2
	)
	state := make([]uint8, w*h)
	magAt := func(x, y int) int {
		if x < 0 || y < 0 || x >= w || y >= h {
			return 0
		}
		return mag[y*w+x]
	}
	// tan(22.5°) and tan(67.5°) in 1/1000 units.
	const tan22, tan67 = 414, 2414
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			m := mag[i]
			if float64(m) <= low {
				continue
			}
			ax, ay := abs(gx[i]), abs(gy[i])
			var n1, n2 int
			switch {
			case ay*1000 <= ax*tan22:
				n1, n2 = magAt(x-1, y), magAt(x+1, y)
			case ay*1000 >= ax*tan67:
				n1, n2 = magAt(x, y-1), magAt(x, y+1)
			case (gx[i] < 0) == (gy[i] < 0):
				n1, n2 = magAt(x-1, y-1), magAt(x+1, y+1)
			default:
				n1, n2 = magAt(x+1, y-1), magAt(x-1, y+1)
			}
			if m < n1 || m <= n2 {
				continue
			}
			if float64(m) > high {
				state[i] = strong
			} else {
				state[i] = weak
			}
		}
	}

	out := image.NewGray(g.Rect)
	stack := make([]int, 0, 1024)
	for i, s := range state {
		if s == strong {
			out.Pix[(i/w)*out.Stride+i%w] = 255
			stack = append(stack, i)
		}
	}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%w, i/w
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				xx, yy := x+dx, y+dy
				if xx < 0 || yy < 0 || xx >= w || yy >= h {
					continue
				}
				j := yy*w + xx
				if state[j] == weak {
					state[j] = strong
					out.Pix[yy*out.Stride+xx] = 255
					stack = append(stack, j)
				}
			}
		}
	}
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
