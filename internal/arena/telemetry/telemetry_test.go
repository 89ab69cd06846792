package telemetry

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingOverwritesOldest(t *testing.T) {
	r := NewRing[int](3)
	assert.Empty(t, r.Last(0))

	for i := 1; i <= 5; i++ {
		r.Push(i)
	}
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, 3, r.Cap())
	assert.Equal(t, []int{3, 4, 5}, r.Last(0))
	assert.Equal(t, []int{4, 5}, r.Last(2))
	assert.Equal(t, []int{3, 4, 5}, r.Last(10))

	r.Reset()
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Last(0))
}

func TestRingConcurrentPush(t *testing.T) {
	r := NewRing[int](64)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				r.Push(i)
				_ = r.Last(10)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 64, r.Len())
}

func TestRecorderCapsAndServesNewest(t *testing.T) {
	rec := NewRecorder(200, 100)
	for i := 0; i < 250; i++ {
		rec.Record("Alpha", uint64(i), KindMove, map[string]any{"i": i})
	}

	events := rec.Events("Alpha")
	require.Len(t, events, 100)
	assert.Equal(t, uint64(150), events[0].Tick)
	assert.Equal(t, uint64(249), events[99].Tick)

	assert.Empty(t, rec.Events("Nobody"))

	rec.Reset()
	assert.Empty(t, rec.Events("Alpha"))

	rec.Record("Alpha", 300, KindMove, nil)
	rec.Forget("Alpha")
	assert.Empty(t, rec.Events("Alpha"))
}

func TestEventJSON(t *testing.T) {
	rec := NewRecorder(10, 10)
	rec.Record("Bravo", 7, KindSuccessfulHit, map[string]any{"target": "Alpha"})

	raw, err := json.Marshal(map[string][]Event{"Bravo": rec.Events("Bravo")})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"event":"successful_hit"`)
	assert.Contains(t, string(raw), `"target":"Alpha"`)

	var back map[string][]Event
	require.NoError(t, json.Unmarshal(raw, &back))
	require.Len(t, back["Bravo"], 1)
	assert.Equal(t, KindSuccessfulHit, back["Bravo"][0].Kind)
	assert.Equal(t, uint64(7), back["Bravo"][0].Tick)
}

func TestKindText(t *testing.T) {
	for k := KindMove; k <= KindInvalidAction; k++ {
		b, err := k.MarshalText()
		require.NoError(t, err)
		var back Kind
		require.NoError(t, back.UnmarshalText(b))
		assert.Equal(t, k, back)
	}
	var k Kind
	assert.Error(t, k.UnmarshalText([]byte("teleport")))
	_, err := Kind(99).MarshalText()
	assert.Error(t, err)
}

func TestJournalKeepsLast(t *testing.T) {
	j := NewJournal(200, 100)
	for i := 0; i < 250; i++ {
		j.Logf("Event %d", i)
	}
	entries := j.Entries()
	require.Len(t, entries, 100)
	assert.Equal(t, "Event 150", entries[0].Message)
	assert.Equal(t, fmt.Sprintf("Event %d", 249), entries[99].Message)
}
