package embedding

import (
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTokenizerJSON = `{
  "added_tokens": [{"id": 1, "content": "<|startoftext|>"}, {"id": 2, "content": "<|endoftext|>"}],
  "model": {
    "vocab": {"h": 3, "e": 4, "l": 5, "o": 6, "he": 7, "ll": 8, "hell": 9, "hello": 10,
              "Ġ": 11, "Ġhello": 12, "w": 13, "!": 14},
    "merges": ["h e", ["l", "l"], "he ll", "hell o", "Ġ hello"]
  }
}`

func newTestTokenizer(t *testing.T) *Tokenizer {
	t.Helper()
	tok, err := ReadTokenizer(strings.NewReader(testTokenizerJSON))
	require.NoError(t, err)
	return tok
}

func TestTokenizer_Encode(t *testing.T) {
	tok := newTestTokenizer(t)
	ids, mask := tok.Encode("hello hello!", 8)
	assert.Equal(t, []int64{1, 10, 12, 14, 2, 0, 0, 0}, ids)
	assert.Equal(t, []int64{1, 1, 1, 1, 1, 0, 0, 0}, mask)
}

func TestTokenizer_Encode_truncates(t *testing.T) {
	tok := newTestTokenizer(t)
	ids, mask := tok.Encode("hello hello hello", 3)
	assert.Equal(t, []int64{1, 10, 12}, ids, "end token dropped when no space remains")
	assert.Equal(t, []int64{1, 1, 1}, mask)
}

func TestTokenizer_Encode_blank(t *testing.T) {
	tok := newTestTokenizer(t)
	for _, in := range []string{"", "   ", "\n\t "} {
		ids, mask := tok.Encode(in, 77)
		require.Len(t, ids, 77)
		require.Len(t, mask, 77)
		for i := range ids {
			if ids[i] != 0 || mask[i] != 0 {
				t.Fatalf("Encode(%q) not all zero at %d", in, i)
			}
		}
	}
}

func TestTokenizer_Encode_skipsUnknown(t *testing.T) {
	tok := newTestTokenizer(t)
	ids, _ := tok.Encode("xyz", 4)
	assert.Equal(t, []int64{1, 2, 0, 0}, ids)
}

func TestTokenizer_Encode_maskPrefix(t *testing.T) {
	tok := newTestTokenizer(t)
	for _, in := range []string{"hello", "hello hello", "he he he he he he he he he he he"} {
		_, mask := tok.Encode(in, 10)
		seenZero := false
		for _, m := range mask {
			if m == 0 {
				seenZero = true
			} else if seenZero {
				t.Fatalf("mask for %q is not a prefix: %v", in, mask)
			}
		}
	}
}

func TestTokenizer_Tokens(t *testing.T) {
	tok := newTestTokenizer(t)
	assert.Equal(t, []string{"hello", "Ġhello", "!"}, tok.Tokens("hello hello!"))
	assert.Equal(t, []string{"w", "o", "r", "l", "d"}, tok.Tokens("world"), "unranked pairs stay split")
	assert.Empty(t, tok.Tokens(""))
}

func TestTokenizer_deterministicAndConcurrent(t *testing.T) {
	tok := newTestTokenizer(t)
	want, wantMask := tok.Encode("hello hello", 16)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids, mask := tok.Encode("hello hello", 16)
			if !reflect.DeepEqual(ids, want) || !reflect.DeepEqual(mask, wantMask) {
				t.Errorf("non-deterministic encode: %v", ids)
			}
		}()
	}
	wg.Wait()
}

func TestTokenizer_endOfWordSuffix(t *testing.T) {
	vocab := map[string]int64{StartOfText: 1, EndOfText: 2, "hello</w>": 5}
	merges := [][2]string{{"h", "e"}, {"he", "l"}, {"hel", "l"}, {"hell", "o</w>"}}
	tok, err := NewTokenizer(vocab, merges, WithEndOfWordSuffix("</w>"))
	require.NoError(t, err)
	ids, _ := tok.Encode(" Hello", 5)
	assert.Equal(t, []int64{1, 5, 2, 0, 0}, ids)
}

func TestNewTokenizer_emptyVocab(t *testing.T) {
	_, err := NewTokenizer(nil, nil)
	assert.Error(t, err)
}

func TestLoadTokenizer_missingFile(t *testing.T) {
	_, err := LoadTokenizer("/nonexistent/tokenizer.json")
	assert.Error(t, err)
}

func TestReadTokenizer_malformed(t *testing.T) {
	_, err := ReadTokenizer(strings.NewReader(`{"model": {"vocab": [1,2]}}`))
	assert.Error(t, err)
}

func TestPreTokenize(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"I'm here!  ok", []string{"I", "'m", " here", "!", " ", " ok"}},
		{"abc 123", []string{"abc", " 123"}},
		{"a\n\nb", []string{"a", "\n", "\n", "b"}},
		{"a  ", []string{"a", "  "}},
		{"they'll", []string{"they", "'ll"}},
		{"x--y", []string{"x", "--", "y"}},
		{"", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, PreTokenize(tt.in))
		})
	}
}

func TestByteEncoder_bijection(t *testing.T) {
	seen := map[rune]bool{}
	for b := 0; b < 256; b++ {
		r := byteEncoder[b]
		if seen[r] {
			t.Fatalf("rune %U mapped twice", r)
		}
		seen[r] = true
	}
	assert.Equal(t, 'A', byteEncoder['A'])
	assert.Equal(t, rune(288), byteEncoder[' '])
	assert.Equal(t, rune(256), byteEncoder[0])
	assert.Equal(t, rune(256+67), byteEncoder[173])
}
