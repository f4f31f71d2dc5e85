package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamassist/internal/models"
)

type fakeKV struct {
	data    map[string]string
	getErr  error
	setErr  error
	setKeys []string
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: map[string]string{}}
}

func (f *fakeKV) Get(_ context.Context, key string) (string, error) {
	if f.getErr != nil {
		return "", f.getErr
	}
	v, ok := f.data[key]
	if !ok {
		return "", ErrCacheMiss
	}
	return v, nil
}

func (f *fakeKV) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	f.setKeys = append(f.setKeys, key)
	if f.setErr != nil {
		return f.setErr
	}
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	}
	return nil
}

type countingRoster struct {
	members []models.Participant
	err     error
	calls   int
}

func (r *countingRoster) ListParticipants(context.Context, string) ([]models.Participant, error) {
	r.calls++
	return r.members, r.err
}

func TestRosterCacheMissThenHit(t *testing.T) {
	kv := newFakeKV()
	source := &countingRoster{members: []models.Participant{
		{Name: "Alice", ID: "u-1"},
		{Name: "Bob", ID: "u-2"},
	}}
	rc := NewRosterCache(kv, source, time.Minute, nil)

	got, err := rc.ListParticipants(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 1, source.calls)
	assert.Contains(t, kv.setKeys, "roster:conv-1")

	// Second lookup is served from the cache.
	got, err = rc.ListParticipants(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 1, source.calls)
}

func TestRosterCacheFallsThroughOnReadError(t *testing.T) {
	kv := newFakeKV()
	kv.getErr = errors.New("connection refused")
	source := &countingRoster{members: []models.Participant{{Name: "Alice", ID: "u-1"}}}
	rc := NewRosterCache(kv, source, time.Minute, nil)

	got, err := rc.ListParticipants(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 1, source.calls)
}

func TestRosterCacheCorruptEntryRefetches(t *testing.T) {
	kv := newFakeKV()
	kv.data["roster:conv-1"] = "{not json"
	source := &countingRoster{members: []models.Participant{{Name: "Alice", ID: "u-1"}}}
	rc := NewRosterCache(kv, source, time.Minute, nil)

	got, err := rc.ListParticipants(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 1, source.calls)

	var cached []models.Participant
	require.NoError(t, json.Unmarshal([]byte(kv.data["roster:conv-1"]), &cached))
	assert.Len(t, cached, 1)
}

func TestRosterCacheSourceErrorPropagates(t *testing.T) {
	kv := newFakeKV()
	source := &countingRoster{err: errors.New("membership api down")}
	rc := NewRosterCache(kv, source, time.Minute, nil)

	_, err := rc.ListParticipants(context.Background(), "conv-1")
	assert.Error(t, err)
	assert.Empty(t, kv.setKeys)
}

func TestRosterCacheWriteFailureIsNonFatal(t *testing.T) {
	kv := newFakeKV()
	kv.setErr = errors.New("write failed")
	source := &countingRoster{members: []models.Participant{{Name: "Alice", ID: "u-1"}}}
	rc := NewRosterCache(kv, source, time.Minute, nil)

	got, err := rc.ListParticipants(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
