package idgen

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_Unique(t *testing.T) {
	const n = 2000
	var mu sync.Mutex
	seen := make(map[string]struct{}, n)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < n/4; j++ {
				no := GenerateEntryNo()
				mu.Lock()
				seen[no] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, n)
}

func TestGenerate_Prefix(t *testing.T) {
	assert.True(t, strings.HasPrefix(GenerateOrderNo(), PrefixOrder))
	assert.True(t, strings.HasPrefix(GenerateWithdrawalNo(), PrefixWithdrawal))
	assert.True(t, strings.HasPrefix(GenerateTaskNo(), PrefixTask))
}

func TestNextID_Monotonic(t *testing.T) {
	prev := NextID()
	for i := 0; i < 1000; i++ {
		id := NextID()
		assert.Greater(t, id, prev)
		prev = id
	}
}
