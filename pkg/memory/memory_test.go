package memory_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chanakya-ai/chanakya/pkg/memory"
	"github.com/chanakya-ai/chanakya/pkg/model/modeltest"
)

func newTestStore(t *testing.T) *memory.Store {
	t.Helper()
	store, err := memory.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreAppendAndHydrate(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.EnsureSession(ctx, "s1", nil))
	for i := 1; i <= 4; i++ {
		require.NoError(t, store.AppendMessage(ctx, memory.Message{
			SessionID: "s1",
			Role:      memory.RoleUser,
			Content:   fmt.Sprintf("turn %d", i),
		}))
	}

	messages, err := store.RecentMessages(ctx, "s1", 3)
	require.NoError(t, err)
	require.Len(t, messages, 3)

	// Chronological order with contiguous sequence numbers.
	assert.Equal(t, "turn 2", messages[0].Content)
	assert.Equal(t, "turn 4", messages[2].Content)
	for i, msg := range messages {
		assert.Equal(t, int64(i+1), msg.Sequence)
	}

	count, err := store.MessageCount(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestStoreSweep(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.EnsureSession(ctx, "old", nil))
	require.NoError(t, store.AppendMessage(ctx, memory.Message{
		SessionID: "old", Role: memory.RoleUser, Content: "hello",
	}))

	// Everything is newer than a cutoff in the past.
	removed, err := store.Sweep(ctx, time.Now().UTC().AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Zero(t, removed)

	// A future cutoff removes the session and its messages.
	removed, err = store.Sweep(ctx, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = store.GetSession(ctx, "old")
	assert.ErrorIs(t, err, memory.ErrSessionNotFound)

	// Idempotent.
	removed, err = store.Sweep(ctx, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestServiceCacheBound(t *testing.T) {
	ctx := context.Background()
	svc := memory.NewService(nil, nil, memory.Config{SessionCacheMax: 3})

	for i := 0; i < 10; i++ {
		svc.GetOrCreate(ctx, fmt.Sprintf("s%d", i))
	}
	assert.Equal(t, 3, svc.CachedSessions())

	// Oldest sessions were evicted; recent ones survive.
	_, ok := svc.GetSnapshot("s0")
	assert.False(t, ok)
	_, ok = svc.GetSnapshot("s9")
	assert.True(t, ok)
}

func TestServiceConcurrentSessionChurn(t *testing.T) {
	ctx := context.Background()
	svc := memory.NewService(nil, nil, memory.Config{SessionCacheMax: 4})

	// Sessions that are cleared and recreated many times over must not
	// leak service state: the cache stays at its bound and per-session
	// sequence numbers stay contiguous.
	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			id := fmt.Sprintf("s%d", g%8)
			for i := 0; i < 25; i++ {
				svc.GetOrCreate(ctx, id)
				svc.Append(ctx, id, memory.RoleUser, "turn")
				if i%10 == 9 {
					svc.Clear(id)
				}
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, svc.CachedSessions(), 4)
	for i := 0; i < 8; i++ {
		snap, ok := svc.GetSnapshot(fmt.Sprintf("s%d", i))
		if !ok {
			continue
		}
		for j, msg := range snap.Messages {
			assert.Equal(t, int64(j+1), msg.Sequence)
		}
	}
}

func TestServiceClearLeavesStore(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	svc := memory.NewService(store, nil, memory.Config{})

	svc.GetOrCreate(ctx, "s1")
	svc.Append(ctx, "s1", memory.RoleUser, "hello")

	assert.True(t, svc.Clear("s1"))
	assert.False(t, svc.Clear("s1"))

	_, ok := svc.GetSnapshot("s1")
	assert.False(t, ok)

	count, err := store.MessageCount(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestServiceHydratesAcrossRestart(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	first := memory.NewService(store, nil, memory.Config{ContextWindow: 10})
	first.GetOrCreate(ctx, "s1")
	first.Append(ctx, "s1", memory.RoleUser, "need an activity for addition")
	first.Append(ctx, "s1", memory.RoleAssistant, "Generated activity: Counting Game")

	// A fresh service over the same store sees both turns.
	second := memory.NewService(store, nil, memory.Config{ContextWindow: 10})
	session := second.GetOrCreate(ctx, "s1")
	require.Len(t, session.Messages, 2)
	assert.Equal(t, memory.RoleUser, session.Messages[0].Role)
	assert.Equal(t, memory.RoleAssistant, session.Messages[1].Role)
}

func TestMaybeSummarize(t *testing.T) {
	ctx := context.Background()

	t.Run("below threshold is untouched", func(t *testing.T) {
		svc := memory.NewService(nil, nil, memory.Config{
			SummarizeThreshold: 20, SummarizeKeepRecent: 5,
		})
		svc.GetOrCreate(ctx, "s1")
		for i := 0; i < 20; i++ {
			svc.Append(ctx, "s1", memory.RoleUser, fmt.Sprintf("turn %d", i))
		}
		svc.MaybeSummarize(ctx, "s1")

		snap, ok := svc.GetSnapshot("s1")
		require.True(t, ok)
		assert.Equal(t, 20, snap.MessageCount)
	})

	t.Run("over threshold compresses to summary plus recent", func(t *testing.T) {
		stub := &modeltest.StubLLM{Responses: []string{"Teacher asked about addition games."}}
		svc := memory.NewService(nil, memory.NewLLMSummarizer(stub), memory.Config{
			SummarizeThreshold: 20, SummarizeKeepRecent: 5,
		})
		svc.GetOrCreate(ctx, "s1")
		for i := 0; i < 21; i++ {
			svc.Append(ctx, "s1", memory.RoleUser, fmt.Sprintf("turn %d", i))
		}
		svc.MaybeSummarize(ctx, "s1")

		snap, ok := svc.GetSnapshot("s1")
		require.True(t, ok)
		require.Equal(t, 6, snap.MessageCount)
		assert.True(t, snap.Messages[0].IsSummary())
		assert.Contains(t, snap.Messages[0].Content, "addition games")
		assert.Equal(t, "turn 20", snap.Messages[5].Content)

		// Compaction renumbers from one and the next append continues the
		// sequence instead of colliding with a retained number.
		for i, msg := range snap.Messages {
			assert.Equal(t, int64(i+1), msg.Sequence)
		}
		svc.Append(ctx, "s1", memory.RoleUser, "turn 21")
		snap, ok = svc.GetSnapshot("s1")
		require.True(t, ok)
		assert.Equal(t, int64(7), snap.Messages[6].Sequence)
	})

	t.Run("summarizer failure truncates to recent", func(t *testing.T) {
		stub := &modeltest.StubLLM{Err: assert.AnError}
		svc := memory.NewService(nil, memory.NewLLMSummarizer(stub), memory.Config{
			SummarizeThreshold: 20, SummarizeKeepRecent: 5,
		})
		svc.GetOrCreate(ctx, "s1")
		for i := 0; i < 25; i++ {
			svc.Append(ctx, "s1", memory.RoleUser, fmt.Sprintf("turn %d", i))
		}
		svc.MaybeSummarize(ctx, "s1")

		snap, ok := svc.GetSnapshot("s1")
		require.True(t, ok)
		require.Equal(t, 5, snap.MessageCount)
		assert.False(t, snap.Messages[0].IsSummary())
		assert.Equal(t, "turn 24", snap.Messages[4].Content)
		for i, msg := range snap.Messages {
			assert.Equal(t, int64(i+1), msg.Sequence)
		}
	})
}

func TestRecent(t *testing.T) {
	ctx := context.Background()
	svc := memory.NewService(nil, nil, memory.Config{})
	svc.GetOrCreate(ctx, "s1")
	for i := 0; i < 15; i++ {
		svc.Append(ctx, "s1", memory.RoleUser, fmt.Sprintf("turn %d", i))
	}

	recent := svc.Recent("s1", 10)
	require.Len(t, recent, 10)
	assert.Equal(t, "turn 5", recent[0].Content)
	assert.Equal(t, "turn 14", recent[9].Content)

	assert.Nil(t, svc.Recent("missing", 10))
}
