// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

package agentcard_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acp-project/acp-go/pkg/acp/agentcard"
)

type fakeFetcher struct {
	calls int32
	delay time.Duration
	body  []byte
}

func (f *fakeFetcher) FetchAgentCard(ctx context.Context, base string) ([]byte, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.body, nil
}

const fixtureBody = "---\ntype: assistant\nname: Alice\ndescription: a helpful agent\ntags: [support, billing]\n---\nfree-form markdown follows.\n"

func TestManager_Get_ParsesFrontmatterAndCaches(t *testing.T) {
	fetcher := &fakeFetcher{body: []byte(fixtureBody)}
	m := agentcard.New(fetcher)

	card, err := m.Get(context.Background(), "alice.ex.com")
	require.NoError(t, err)
	assert.Equal(t, "assistant", card.Type)
	assert.Equal(t, "Alice", card.Name)
	assert.Equal(t, []string{"support", "billing"}, card.Tags)
	assert.Equal(t, "alice.ex.com", card.AID)

	_, err = m.Get(context.Background(), "alice.ex.com")
	require.NoError(t, err)
	assert.EqualValues(t, 1, fetcher.calls, "second Get should be served from cache")
}

func TestManager_Get_RefetchesAfterTTLExpiry(t *testing.T) {
	fetcher := &fakeFetcher{body: []byte(fixtureBody)}
	m := agentcard.New(fetcher, agentcard.WithTTL(time.Millisecond))

	_, err := m.Get(context.Background(), "alice.ex.com")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = m.Get(context.Background(), "alice.ex.com")
	require.NoError(t, err)

	assert.EqualValues(t, 2, fetcher.calls)
}

func TestManager_Get_CollapsesConcurrentMisses(t *testing.T) {
	fetcher := &fakeFetcher{body: []byte(fixtureBody), delay: 20 * time.Millisecond}
	m := agentcard.New(fetcher)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Get(context.Background(), "alice.ex.com")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, fetcher.calls, "concurrent misses for the same aid should collapse into one fetch")
}
