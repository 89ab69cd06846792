package snapshot

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/arena/internal/arena/entity"
	"github.com/zeusync/arena/internal/arena/telemetry"
)

func sample() *Snapshot {
	return &Snapshot{
		Version:   Version,
		MatchID:   "m-1",
		Tick:      120,
		Phase:     entity.PhaseRunning,
		Round:     2,
		MaxRounds: 10,
		Tanks: []Tank{
			{Name: "Alpha", Color: "#f00", X: 10.5, Y: 20.25, Angle: 90, Health: 75, Alive: true, Score: 10},
			{Name: "Bravo", Color: "#0f0", X: 300, Y: 400, Angle: 3, Health: 0, Alive: false, Score: 60, Kills: 1},
		},
		Bullets: []Bullet{{ID: 4, X: 1, Y: 2, VelocityX: 5, Owner: "Alpha"}},
		Scores:  map[string]int{"Alpha": 10, "Bravo": 60},
		Rounds: []entity.RoundResult{
			{Round: 1, Reason: entity.RoundEndLastStanding, Scores: map[string]int{"Alpha": 60}, Survivors: []string{"Alpha"}},
		},
	}
}

func TestDigestTracksState(t *testing.T) {
	a, b := sample(), sample()
	assert.Equal(t, a.Digest(), b.Digest())

	b.Tanks[0].Health = 50
	assert.NotEqual(t, a.Digest(), b.Digest())
}

func TestTankLookup(t *testing.T) {
	s := sample()
	tank, ok := s.Tank("Bravo")
	require.True(t, ok)
	assert.Equal(t, 1, tank.Kills)

	_, ok = s.Tank("Zulu")
	assert.False(t, ok)
	assert.True(t, s.Running())
}

func TestBundleRoundTrip(t *testing.T) {
	in := Bundle{
		ExportedAt: time.Unix(1700000000, 0).UTC(),
		Snapshot:   sample(),
		Sources:    map[string]string{"Alpha": "function think(s) { return {shoot: true}; }"},
		Debug: map[string][]telemetry.Event{
			"Alpha": {{Time: time.Unix(1700000000, 0).UTC(), Tick: 3, Kind: telemetry.KindShoot}},
		},
		Logs: []telemetry.LogEntry{{Time: time.Unix(1700000000, 0).UTC(), Message: "Battle started!"}},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteBundle(&buf, in))

	out, err := ReadBundle(&buf)
	require.NoError(t, err)
	assert.Equal(t, in.Snapshot.Digest(), out.Snapshot.Digest())
	assert.Equal(t, in.Snapshot.Tanks, out.Snapshot.Tanks)
	assert.Equal(t, entity.PhaseRunning, out.Snapshot.Phase)
	require.Len(t, out.Debug["Alpha"], 1)
	assert.Equal(t, telemetry.KindShoot, out.Debug["Alpha"][0].Kind)
	assert.Equal(t, "Battle started!", out.Logs[0].Message)
	assert.Equal(t, in.Sources, out.Sources)
}

func TestBundleRejectsGarbageAndVersion(t *testing.T) {
	_, err := ReadBundle(bytes.NewReader([]byte("not zstd at all")))
	assert.Error(t, err)

	s := sample()
	s.Version = 99
	var buf bytes.Buffer
	require.NoError(t, WriteBundle(&buf, Bundle{Snapshot: s}))
	_, err = ReadBundle(&buf)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)

	assert.Error(t, WriteBundle(&bytes.Buffer{}, Bundle{}))
}
