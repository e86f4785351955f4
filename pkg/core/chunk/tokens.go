package chunk

import (
	"fmt"
	"math"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

const (
	DefaultTokensPerWord = 1.33
	defaultEncoding      = "cl100k_base"
)

// TokenCounter estimates how many LLM tokens a piece of text costs.
type TokenCounter interface {
	CountTokens(text string) int
}

// WordEstimator approximates tokens as word count × TokensPerWord.
type WordEstimator struct {
	TokensPerWord float64
}

func (w WordEstimator) CountTokens(text string) int {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	tpw := w.TokensPerWord
	if tpw <= 0 {
		tpw = DefaultTokensPerWord
	}
	return int(math.Ceil(float64(words) * tpw))
}

// TiktokenCounter counts exact BPE tokens.
type TiktokenCounter struct {
	encoding string
	tke      *tiktoken.Tiktoken
}

func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	if encoding == "" {
		encoding = defaultEncoding
	}
	tke, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		tke, err = tiktoken.EncodingForModel(encoding)
		if err != nil {
			return nil, fmt.Errorf("unknown tiktoken encoding or model %q: %w", encoding, err)
		}
	}
	return &TiktokenCounter{encoding: encoding, tke: tke}, nil
}

func (c *TiktokenCounter) CountTokens(text string) int {
	return len(c.tke.Encode(text, nil, nil))
}

func (c *TiktokenCounter) Encoding() string { return c.encoding }

// NewCounter builds the counter named in config: "words" (default) or "tiktoken".
func NewCounter(kind string, tokensPerWord float64, encoding string) (TokenCounter, error) {
	switch strings.ToLower(kind) {
	case "", "words", "word":
		return WordEstimator{TokensPerWord: tokensPerWord}, nil
	case "tiktoken":
		return NewTiktokenCounter(encoding)
	default:
		return nil, fmt.Errorf("unknown token counter %q", kind)
	}
}
