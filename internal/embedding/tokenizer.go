package embedding

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"unicode"
)

// Special tokens wrapped around every encoded sequence when present in the vocabulary.
const (
	StartOfText = "<|startoftext|>"
	EndOfText   = "<|endoftext|>"
)

// byteEncoder maps every byte to a printable rune so merges can operate on runes.
// Printable ASCII and two Latin-1 ranges map to themselves; the other 68 bytes map to 256+n.
var byteEncoder = func() [256]rune {
	var enc [256]rune
	self := func(b int) bool {
		return (b >= 33 && b <= 126) || (b >= 161 && b <= 172) || (b >= 174 && b <= 255)
	}
	n := 0
	for b := 0; b < 256; b++ {
		if self(b) {
			enc[b] = rune(b)
		} else {
			enc[b] = rune(256 + n)
			n++
		}
	}
	return enc
}()

type mergePair struct{ a, b string }

// Tokenizer is a byte-level BPE tokenizer. It is safe for concurrent use.
type Tokenizer struct {
	vocab    map[string]int64
	ranks    map[mergePair]int
	suffix   string
	startID  int64
	endID    int64
	hasStart bool
	hasEnd   bool
	cacheMu  sync.RWMutex
	bpeCache map[string][]string
}

// TokenizerOption configures a Tokenizer.
type TokenizerOption func(*Tokenizer)

// WithEndOfWordSuffix appends suffix to the last symbol of each pre-token before merging.
// Vocabularies that mark word ends this way also expect lowercase input without leading spaces.
func WithEndOfWordSuffix(suffix string) TokenizerOption {
	return func(t *Tokenizer) {
		t.suffix = suffix
	}
}

// NewTokenizer builds a tokenizer from a vocabulary and merge rules ordered by priority.
func NewTokenizer(vocab map[string]int64, merges [][2]string, opts ...TokenizerOption) (*Tokenizer, error) {
	if len(vocab) == 0 {
		return nil, fmt.Errorf("tokenizer vocabulary is empty")
	}
	t := &Tokenizer{
		vocab:    vocab,
		ranks:    make(map[mergePair]int, len(merges)),
		bpeCache: make(map[string][]string),
	}
	for rank, m := range merges {
		p := mergePair{m[0], m[1]}
		if _, dup := t.ranks[p]; !dup {
			t.ranks[p] = rank
		}
	}
	t.startID, t.hasStart = vocab[StartOfText]
	t.endID, t.hasEnd = vocab[EndOfText]
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

type tokenizerFile struct {
	Model struct {
		Vocab           map[string]int64  `json:"vocab"`
		Merges          []json.RawMessage `json:"merges"`
		EndOfWordSuffix *string           `json:"end_of_word_suffix"`
	} `json:"model"`
	AddedTokens []struct {
		ID      int64  `json:"id"`
		Content string `json:"content"`
	} `json:"added_tokens"`
}

// LoadTokenizer reads a tokenizer.json file.
func LoadTokenizer(path string) (*Tokenizer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open tokenizer: %w", err)
	}
	defer f.Close()
	return ReadTokenizer(f)
}

// ReadTokenizer parses tokenizer.json content. Merges may be "a b" strings or ["a","b"] pairs.
func ReadTokenizer(r io.Reader) (*Tokenizer, error) {
	var tf tokenizerFile
	if err := json.NewDecoder(r).Decode(&tf); err != nil {
		return nil, fmt.Errorf("failed to parse tokenizer: %w", err)
	}
	vocab := tf.Model.Vocab
	if vocab == nil {
		vocab = make(map[string]int64)
	}
	for _, at := range tf.AddedTokens {
		if _, ok := vocab[at.Content]; !ok {
			vocab[at.Content] = at.ID
		}
	}
	merges := make([][2]string, 0, len(tf.Model.Merges))
	for i, raw := range tf.Model.Merges {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			parts := strings.Fields(s)
			if len(parts) != 2 {
				continue
			}
			merges = append(merges, [2]string{parts[0], parts[1]})
			continue
		}
		var pair []string
		if err := json.Unmarshal(raw, &pair); err != nil {
			return nil, fmt.Errorf("invalid merge rule %d: %w", i, err)
		}
		if len(pair) == 2 {
			merges = append(merges, [2]string{pair[0], pair[1]})
		}
	}
	var opts []TokenizerOption
	if tf.Model.EndOfWordSuffix != nil && *tf.Model.EndOfWordSuffix != "" {
		opts = append(opts, WithEndOfWordSuffix(*tf.Model.EndOfWordSuffix))
	}
	return NewTokenizer(vocab, merges, opts...)
}

// Encode returns maxTokens ids and attention mask entries for text.
// Unknown sub-words are skipped and overflow is truncated. Blank text yields all zeros.
func (t *Tokenizer) Encode(text string, maxTokens int) (ids, mask []int64) {
	ids = make([]int64, maxTokens)
	mask = make([]int64, maxTokens)
	if strings.TrimSpace(text) == "" || maxTokens <= 0 {
		return ids, mask
	}
	n := 0
	put := func(id int64) {
		if n < maxTokens {
			ids[n] = id
			mask[n] = 1
			n++
		}
	}
	if t.hasStart {
		put(t.startID)
	}
	for _, piece := range PreTokenize(text) {
		if n >= maxTokens {
			break
		}
		if t.suffix != "" {
			piece = strings.ToLower(strings.TrimSpace(piece))
			if piece == "" {
				continue
			}
		}
		for _, sub := range t.bpe(encodeBytes(piece)) {
			if id, ok := t.vocab[sub]; ok {
				put(id)
			}
		}
	}
	if t.hasEnd {
		put(t.endID)
	}
	return ids, mask
}

// Tokens returns the sub-word strings for text, without special tokens or padding.
func (t *Tokenizer) Tokens(text string) []string {
	var out []string
	for _, piece := range PreTokenize(text) {
		if t.suffix != "" {
			piece = strings.ToLower(strings.TrimSpace(piece))
			if piece == "" {
				continue
			}
		}
		out = append(out, t.bpe(encodeBytes(piece))...)
	}
	return out
}

func encodeBytes(s string) string {
	var b strings.Builder
	b.Grow(len(s) * 2)
	for i := 0; i < len(s); i++ {
		b.WriteRune(byteEncoder[s[i]])
	}
	return b.String()
}

// bpe applies merge rules to one byte-encoded pre-token.
func (t *Tokenizer) bpe(token string) []string {
	t.cacheMu.RLock()
	cached, ok := t.bpeCache[token]
	t.cacheMu.RUnlock()
	if ok {
		return cached
	}

	word := make([]string, 0, len(token))
	for _, r := range token {
		word = append(word, string(r))
	}
	if t.suffix != "" && len(word) > 0 {
		word[len(word)-1] += t.suffix
	}

	for len(word) > 1 {
		best := -1
		var bestPair mergePair
		for i := 0; i < len(word)-1; i++ {
			p := mergePair{word[i], word[i+1]}
			if rank, ok := t.ranks[p]; ok && (best < 0 || rank < best) {
				best = rank
				bestPair = p
			}
		}
		if best < 0 {
			break
		}
		merged := make([]string, 0, len(word))
		for i := 0; i < len(word); {
			if i < len(word)-1 && word[i] == bestPair.a && word[i+1] == bestPair.b {
				merged = append(merged, bestPair.a+bestPair.b)
				i += 2
				continue
			}
			merged = append(merged, word[i])
			i++
		}
		word = merged
	}

	t.cacheMu.Lock()
	t.bpeCache[token] = word
	t.cacheMu.Unlock()
	return word
}

// PreTokenize splits text into contractions, letter runs, number runs, punctuation runs and
// whitespace. Letter, number and punctuation runs absorb one leading space. A whitespace run
// followed by a non-space leaves its last character to the following run.
func PreTokenize(text string) []string {
	rs := []rune(text)
	var out []string
	for i := 0; i < len(rs); {
		j := matchAt(rs, i)
		out = append(out, string(rs[i:j]))
		i = j
	}
	return out
}

var contractions = []string{"s", "t", "re", "ve", "m", "ll", "d"}

func isOther(r rune) bool {
	return !unicode.IsSpace(r) && !unicode.IsLetter(r) && !unicode.IsNumber(r)
}

// matchAt returns the end of the match starting at i. It always advances.
func matchAt(rs []rune, i int) int {
	if rs[i] == '\'' {
		for _, c := range contractions {
			if hasRunesAt(rs, i+1, c) {
				return i + 1 + len(c)
			}
		}
	}
	start := i
	if rs[i] == ' ' && i+1 < len(rs) {
		start = i + 1
	}
	for _, class := range []func(rune) bool{unicode.IsLetter, unicode.IsNumber, isOther} {
		if class(rs[start]) {
			return runEnd(rs, start, class)
		}
	}
	end := runEnd(rs, i, unicode.IsSpace)
	if end < len(rs) && end-1 > i {
		return end - 1
	}
	return end
}

func runEnd(rs []rune, i int, class func(rune) bool) int {
	for i < len(rs) && class(rs[i]) {
		i++
	}
	return i
}

func hasRunesAt(rs []rune, i int, s string) bool {
	for _, r := range s {
		if i >= len(rs) || rs[i] != r {
			return false
		}
		i++
	}
	return true
}
