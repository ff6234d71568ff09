package ai

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"stellium-ask/internal/domain/ports/adapter"
)

// approxTokens counts tokens locally with tiktoken. Gateways that do not
// expose a counting endpoint share this path.
func approxTokens(model string, messages []adapter.Message) (int, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// unknown model names fall back to the common encoding
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return 0, err
		}
	}
	var b strings.Builder
	for _, m := range messages {
		b.WriteString(m.Role)
		b.WriteByte('\n')
		b.WriteString(m.Content)
		b.WriteByte('\n')
	}
	return len(enc.Encode(b.String(), nil, nil)), nil
}
