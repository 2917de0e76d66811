package memory

import (
	"testing"

	"github.com/agenthands/moralgraph/internal/store"
	"github.com/agenthands/moralgraph/internal/store/storetest"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return New() })
}
