package store

import (
	"sync"
	"testing"
	"time"

	"github.com/jmylchreest/shellnotifyd/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStore(t *testing.T) {
	s := NewStore()
	assert.NotNil(t, s)
	assert.Equal(t, 0, s.Count())
}

func TestStore_PushTail(t *testing.T) {
	s := NewStore()
	defer s.Close()

	for i := 1; i <= 3; i++ {
		r := testRecord("Summary")
		id, err := s.PushTail(r)
		require.NoError(t, err)
		assert.Equal(t, uint32(i), id)
		assert.Equal(t, id, r.ID)
	}
	assert.Equal(t, 3, s.Count())
}

func TestStore_PushHead(t *testing.T) {
	s := NewStore()
	defer s.Close()

	_, err := s.PushTail(testRecord("second"))
	require.NoError(t, err)
	_, err = s.PushHead(testRecord("first"))
	require.NoError(t, err)

	r, ok := s.ItemAt(0)
	require.True(t, ok)
	assert.Equal(t, "first", r.Summary)
}

func TestStore_Replace(t *testing.T) {
	s := NewStore()
	defer s.Close()

	id, err := s.PushTail(testRecord("Hello"))
	require.NoError(t, err)
	_, err = s.PushTail(testRecord("Other"))
	require.NoError(t, err)

	old, ok, err := s.Replace(id, testRecord("Updated"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Hello", old.Summary)

	r, ok := s.Get(id)
	require.True(t, ok)
	assert.Equal(t, "Updated", r.Summary)
	assert.Equal(t, id, r.ID)

	pos, ok := s.Position(id)
	require.True(t, ok)
	assert.Equal(t, 0, pos)

	_, ok, err = s.Replace(99, testRecord("missing"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, s.Count())
}

func TestStore_Remove(t *testing.T) {
	s := NewStore()
	defer s.Close()

	for i := 0; i < 3; i++ {
		_, err := s.PushTail(testRecord("Summary"))
		require.NoError(t, err)
	}

	old, ok, err := s.Remove(2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(2), old.ID)

	_, ok, err = s.Remove(2)
	require.NoError(t, err)
	assert.False(t, ok)

	// retired ids are reused first
	id, err := s.PushTail(testRecord("Again"))
	require.NoError(t, err)
	assert.Equal(t, uint32(2), id)

	pos, ok := s.Position(2)
	require.True(t, ok)
	assert.Equal(t, 2, pos)
}

func TestStore_RemoveIf(t *testing.T) {
	s := NewStore()
	defer s.Close()

	first := testRecord("first")
	id, err := s.PushTail(first)
	require.NoError(t, err)

	_, ok, err := s.Remove(id)
	require.NoError(t, err)
	require.True(t, ok)

	// the freed id goes to an unrelated record
	second := testRecord("second")
	reused, err := s.PushTail(second)
	require.NoError(t, err)
	require.Equal(t, id, reused)

	_, ok, err = s.RemoveIf(id, first)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, s.Count())

	old, ok, err := s.RemoveIf(id, second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Same(t, second, old)
	assert.Equal(t, 0, s.Count())
}

func TestStore_RemoveIfReplaced(t *testing.T) {
	s := NewStore()
	defer s.Close()

	r := testRecord("old")
	id, err := s.PushTail(r)
	require.NoError(t, err)

	_, _, err = s.Replace(id, testRecord("new"))
	require.NoError(t, err)

	_, ok, err := s.RemoveIf(id, r)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, s.Count())
}

func TestStore_Holds(t *testing.T) {
	s := NewStore()
	defer s.Close()

	r := testRecord("a")
	_, err := s.PushTail(r)
	require.NoError(t, err)
	assert.True(t, s.Holds(r))
	assert.False(t, s.Holds(testRecord("never stored")))

	_, _, err = s.Remove(r.ID)
	require.NoError(t, err)
	assert.False(t, s.Holds(r))
}

func TestStore_ItemAt(t *testing.T) {
	s := NewStore()
	defer s.Close()

	summaries := []string{"a", "b", "c", "d", "e"}
	for _, sum := range summaries {
		_, err := s.PushTail(testRecord(sum))
		require.NoError(t, err)
	}

	for i, want := range summaries {
		r, ok := s.ItemAt(i)
		require.True(t, ok)
		assert.Equal(t, want, r.Summary)
	}

	_, ok := s.ItemAt(len(summaries))
	assert.False(t, ok)
}

func TestStore_Snapshot(t *testing.T) {
	s := NewStore()
	defer s.Close()

	_, _ = s.PushTail(testRecord("a"))
	_, _ = s.PushTail(testRecord("b"))

	snap := s.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "a", snap[0].Summary)
	assert.Equal(t, "b", snap[1].Summary)

	snap[0].Summary = "changed"
	r, _ := s.Get(1)
	assert.Equal(t, "a", r.Summary)
}

func TestStore_Changes(t *testing.T) {
	s := NewStore()
	defer s.Close()

	ch := s.Subscribe()

	_, _ = s.PushTail(testRecord("a"))
	_, _ = s.PushTail(testRecord("b"))
	_, _ = s.PushHead(testRecord("c"))
	_, _, _ = s.Replace(2, testRecord("B"))
	_, _, _ = s.Remove(1)

	want := []Change{
		{Position: 0, Added: 1},
		{Position: 1, Added: 1},
		{Position: 0, Added: 1},
		{Position: 2, Removed: 1, Added: 1},
		{Position: 1, Removed: 1},
	}
	for _, w := range want {
		select {
		case got := <-ch:
			assert.Equal(t, w, got)
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for change")
		}
	}
}

func TestStore_Unsubscribe(t *testing.T) {
	s := NewStore()

	ch := s.Subscribe()
	s.Unsubscribe(ch)

	// Channel should be closed
	_, ok := <-ch
	assert.False(t, ok)

	s.Close()
}

func TestStore_Close(t *testing.T) {
	s := NewStore()
	_, err := s.PushTail(testRecord("close1"))
	require.NoError(t, err)

	ch := s.Subscribe()
	require.NoError(t, s.Close())

	_, ok := <-ch
	assert.False(t, ok)

	// Mutations should fail on closed store
	_, err = s.PushTail(testRecord("close2"))
	assert.ErrorIs(t, err, ErrStoreClosed)
	_, _, err = s.Remove(1)
	assert.ErrorIs(t, err, ErrStoreClosed)

	// Reads still work
	assert.Equal(t, 1, s.Count())
	require.NoError(t, s.Close())
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := NewStore()
	defer s.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				id, err := s.PushTail(testRecord("x"))
				if err != nil {
					t.Error(err)
					return
				}
				_, _ = s.ItemAt(j % (s.Count() + 1))
				if j%2 == 0 {
					if _, _, err := s.Remove(id); err != nil {
						t.Error(err)
						return
					}
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 400, s.Count())

	seen := make(map[uint32]bool)
	for _, r := range s.Snapshot() {
		assert.False(t, seen[r.ID], "duplicate id %d", r.ID)
		seen[r.ID] = true
	}
}

// Helper functions

func testRecord(summary string) *model.Record {
	return model.NewRecord("test-app", summary, "Test Body")
}
