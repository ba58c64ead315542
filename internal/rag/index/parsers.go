package index

import (
	"sync"

	"github.com/oriane-labs/hearth/internal/rag/parser/markdown"
	"github.com/oriane-labs/hearth/internal/rag/parser/text"
)

var registerParsersOnce sync.Once

func ensureDefaultParsers() {
	registerParsersOnce.Do(func() {
		markdown.Register()
		text.Register()
	})
}
