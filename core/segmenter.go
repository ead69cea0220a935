package voicechat

import (
	"regexp"
	"strings"
	"unicode"
)

// SegmenterConfig tunes when a candidate sentence is considered substantial
// enough to hand to speech synthesis on its own.
type SegmenterConfig struct {
	// MinTokens is the number of whitespace-separated non-punctuation
	// tokens a candidate without CJK text must exceed before it is
	// emitted. The default lets two-word sentences through.
	MinTokens int
	// MinCJKRunes is the number of CJK runes a candidate containing CJK
	// text must exceed before it is emitted.
	MinCJKRunes int
}

// DefaultSegmenterConfig returns the thresholds used when none are supplied.
func DefaultSegmenterConfig() SegmenterConfig {
	return SegmenterConfig{MinTokens: 1, MinCJKRunes: 3}
}

// SentenceUnit is a span of reply text ready for synthesis. Concatenating
// the Text of every unit emitted for a reply reproduces the streamed text
// exactly.
type SentenceUnit struct {
	Text        string
	ContainsCJK bool
	// Final marks the trailing remainder flushed at end of stream.
	Final bool
}

var sentenceBoundaryPattern = regexp.MustCompile(`[.!?。！？…]+[”’"'」』）)\]\s]*`)

type sentenceSegmenter struct {
	config  SegmenterConfig
	buffer  string
	flushed bool
}

func newSentenceSegmenter(config SegmenterConfig) *sentenceSegmenter {
	if config.MinTokens <= 0 {
		config.MinTokens = DefaultSegmenterConfig().MinTokens
	}
	if config.MinCJKRunes <= 0 {
		config.MinCJKRunes = DefaultSegmenterConfig().MinCJKRunes
	}
	return &sentenceSegmenter{config: config}
}

// Feed appends a streamed text delta to the internal buffer and returns
// zero or more sentence units that became ready. A boundary that fails the
// substance check stays buffered and is retried, together with everything
// after it, on later deltas.
func (s *sentenceSegmenter) Feed(delta string) []SentenceUnit {
	if s == nil || s.flushed {
		return nil
	}
	s.buffer += delta

	var units []SentenceUnit
	searchFrom := 0
	for {
		loc := sentenceBoundaryPattern.FindStringIndex(s.buffer[searchFrom:])
		if loc == nil {
			break
		}
		end := searchFrom + loc[1]
		candidate := s.buffer[:end]
		if !s.substantial(candidate) {
			searchFrom = end
			continue
		}
		units = append(units, SentenceUnit{
			Text:        candidate,
			ContainsCJK: containsCJK(candidate),
		})
		s.buffer = s.buffer[end:]
		searchFrom = 0
	}
	return units
}

// Flush emits whatever text is still buffered as a final unit, bypassing the
// substance check. It returns nil when nothing but whitespace remains.
// Subsequent Feed and Flush calls are no-ops.
func (s *sentenceSegmenter) Flush() []SentenceUnit {
	if s == nil || s.flushed {
		return nil
	}
	s.flushed = true
	remainder := s.buffer
	s.buffer = ""
	if strings.TrimSpace(remainder) == "" {
		return nil
	}
	return []SentenceUnit{{
		Text:        remainder,
		ContainsCJK: containsCJK(remainder),
		Final:       true,
	}}
}

func (s *sentenceSegmenter) substantial(candidate string) bool {
	if cjk := countCJK(candidate); cjk > 0 {
		return cjk > s.config.MinCJKRunes
	}
	tokens := 0
	for _, field := range strings.Fields(candidate) {
		if strings.TrimFunc(field, isSentencePunct) != "" {
			tokens++
		}
	}
	return tokens > s.config.MinTokens
}

func isSentencePunct(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSymbol(r)
}

func containsCJK(text string) bool {
	return countCJK(text) > 0
}

func countCJK(text string) int {
	count := 0
	for _, r := range text {
		if unicode.Is(unicode.Han, r) ||
			unicode.Is(unicode.Hiragana, r) ||
			unicode.Is(unicode.Katakana, r) ||
			unicode.Is(unicode.Hangul, r) {
			count++
		}
	}
	return count
}
