package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewMetadataStartsAtIngestStage(t *testing.T) {
	now := time.Unix(100, 0)
	m := NewMetadata("evt-1", "receiver", "trace-1", now)

	assert.Equal(t, "evt-1", m.EventID)
	assert.Equal(t, StageIngest, m.Stage)
	assert.Equal(t, now, m.Timestamp)
	assert.Empty(t, m.Custom)
}

func TestWithStageDoesNotMutateOriginal(t *testing.T) {
	m := NewMetadata("evt-1", "receiver", "trace-1", time.Now())
	advanced := m.WithStage(StageFilter)

	assert.Equal(t, StageIngest, m.Stage)
	assert.Equal(t, StageFilter, advanced.Stage)
}

func TestWithCustomCopiesTheMapInsteadOfAliasingIt(t *testing.T) {
	m := NewMetadata("evt-1", "receiver", "trace-1", time.Now())
	withOne := m.WithCustom("a", "1")
	withTwo := withOne.WithCustom("b", "2")

	assert.Empty(t, m.Custom)
	assert.Equal(t, map[string]string{"a": "1"}, withOne.Custom)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, withTwo.Custom)
}
