package embedding

import "fmt"

// OutputKind tells how a model lays out its output tensor.
type OutputKind int

const (
	// Pooled outputs are one vector per input, shape [1, hidden].
	Pooled OutputKind = iota
	// PerToken outputs are hidden states per position, shape [1, positions, hidden].
	PerToken
)

func (k OutputKind) String() string {
	switch k {
	case Pooled:
		return "pooled"
	case PerToken:
		return "per-token"
	}
	return fmt.Sprintf("OutputKind(%d)", int(k))
}

// KindForRank maps an output tensor rank to its kind.
func KindForRank(rank int) (OutputKind, error) {
	switch rank {
	case 2:
		return Pooled, nil
	case 3:
		return PerToken, nil
	}
	return 0, fmt.Errorf("unsupported output rank %d", rank)
}

// Output is the result of one encoder run.
// Data holds Hidden values for Pooled, or Positions*Hidden row-major values for PerToken.
type Output struct {
	Kind      OutputKind
	Data      []float32
	Positions int
	Hidden    int
}

// Pool reduces the output to one vector. PerToken outputs are averaged over positions whose
// mask entry is non-zero; a nil mask includes every position. The result is a fresh slice.
func (o Output) Pool(mask []int64) ([]float32, error) {
	switch o.Kind {
	case Pooled:
		if len(o.Data) < o.Hidden {
			return nil, fmt.Errorf("pooled output has %d values, want %d", len(o.Data), o.Hidden)
		}
		out := make([]float32, o.Hidden)
		copy(out, o.Data[:o.Hidden])
		return out, nil
	case PerToken:
		if len(o.Data) < o.Positions*o.Hidden {
			return nil, fmt.Errorf("per-token output has %d values, want %d", len(o.Data), o.Positions*o.Hidden)
		}
		out := make([]float32, o.Hidden)
		count := 0
		for p := 0; p < o.Positions; p++ {
			if mask != nil && p < len(mask) && mask[p] == 0 {
				continue
			}
			row := o.Data[p*o.Hidden : (p+1)*o.Hidden]
			for h, v := range row {
				out[h] += v
			}
			count++
		}
		if count > 0 {
			inv := 1 / float32(count)
			for h := range out {
				out[h] *= inv
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown output kind %v", o.Kind)
}
