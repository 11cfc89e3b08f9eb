package agent

import (
	"fmt"

	"mnemora/model"

	"github.com/pkoukk/tiktoken-go"
)

// TokenEncodingModel names the tiktoken encoding used to size prompts.
const TokenEncodingModel = "gpt-3.5-turbo"

type tokenEncoder interface {
	Encode(text string, allowedSpecial, disallowedSpecial []string) []int
}

// TokenCounter estimates prompt sizes in tokens.
type TokenCounter struct {
	enc tokenEncoder
}

// NewTokenCounter loads the encoding for modelName. Loading may download
// the BPE ranks once; any failure is returned here rather than at query time.
func NewTokenCounter(modelName string) (*TokenCounter, error) {
	enc, err := tiktoken.EncodingForModel(modelName)
	if err != nil {
		return nil, fmt.Errorf("load token encoding for %s: %w", modelName, err)
	}
	return &TokenCounter{enc: enc}, nil
}

func (c *TokenCounter) count(messages []model.Message) int {
	n := 0
	for _, m := range messages {
		n += len(c.enc.Encode(m.Content, nil, nil))
	}
	return n
}
