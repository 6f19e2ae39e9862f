// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package feedback

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/Kodiak/services/ranker/datatypes"
	"github.com/AleutianAI/Kodiak/services/ranker/storage/badger"
	"github.com/AleutianAI/Kodiak/services/ranker/truth"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	db, err := badger.OpenInMemory()
	require.NoError(t, err)
	j, err := NewJournal(db, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func testEvent(polarity datatypes.Polarity) datatypes.FeedbackEvent {
	return datatypes.FeedbackEvent{
		ID:            uuid.New(),
		TargetElement: uuid.New(),
		Polarity:      polarity,
		QueryContext:  "primary button",
		CreatedAt:     time.Now().UTC(),
	}
}

func testOutcome(eventID uuid.UUID) datatypes.FeedbackOutcome {
	return datatypes.FeedbackOutcome{
		Propagation: datatypes.PropagationResult{
			EventID: eventID,
			Touched: []datatypes.TouchedElement{{
				ElementID: uuid.New(),
				OldTruth:  truth.New(0.9, 0.5),
				NewTruth:  truth.New(0.98, 0.8),
			}},
		},
		Reward: datatypes.RewardResult{Reward: 0.4},
	}
}

func TestJournal_AppendEventAssignsMonotonicSequences(t *testing.T) {
	ctx := context.Background()
	j := newTestJournal(t)

	first, err := j.AppendEvent(ctx, testEvent(datatypes.PolarityPositive))
	require.NoError(t, err)
	second, err := j.AppendEvent(ctx, testEvent(datatypes.PolarityNegative))
	require.NoError(t, err)

	assert.Equal(t, uint64(1), first)
	assert.Equal(t, uint64(2), second)
}

func TestJournal_AppendEventRejectsInvalidPolarity(t *testing.T) {
	j := newTestJournal(t)
	_, err := j.AppendEvent(context.Background(), testEvent(datatypes.Polarity("meh")))
	assert.Error(t, err)
}

func TestJournal_RecentReturnsNewestFirstWithOutcomes(t *testing.T) {
	ctx := context.Background()
	j := newTestJournal(t)

	events := make([]datatypes.FeedbackEvent, 3)
	for i := range events {
		events[i] = testEvent(datatypes.PolarityPositive)
		seq, err := j.AppendEvent(ctx, events[i])
		require.NoError(t, err)
		require.Equal(t, uint64(i+1), seq)
	}
	// Only the second event has its outcome recorded.
	require.NoError(t, j.AppendOutcome(ctx, 2, testOutcome(events[1].ID)))

	records, err := j.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, uint64(3), records[0].Sequence)
	assert.Equal(t, events[2].ID, records[0].Event.ID)
	assert.Nil(t, records[0].Outcome)

	assert.Equal(t, uint64(2), records[1].Sequence)
	require.NotNil(t, records[1].Outcome)
	assert.Equal(t, events[1].ID, records[1].Outcome.Propagation.EventID)
}

func TestJournal_RecentWithNonPositiveN(t *testing.T) {
	j := newTestJournal(t)
	records, err := j.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestJournal_AppendOutcomeValidatesSequence(t *testing.T) {
	ctx := context.Background()
	j := newTestJournal(t)

	_, err := j.AppendEvent(ctx, testEvent(datatypes.PolarityPositive))
	require.NoError(t, err)

	assert.Error(t, j.AppendOutcome(ctx, 0, testOutcome(uuid.New())))
	assert.Error(t, j.AppendOutcome(ctx, 99, testOutcome(uuid.New())))
}

func TestJournal_Stats(t *testing.T) {
	ctx := context.Background()
	j := newTestJournal(t)

	for i := 0; i < 3; i++ {
		_, err := j.AppendEvent(ctx, testEvent(datatypes.PolarityPositive))
		require.NoError(t, err)
	}
	seq, err := j.AppendEvent(ctx, testEvent(datatypes.PolarityNegative))
	require.NoError(t, err)
	require.NoError(t, j.AppendOutcome(ctx, seq, testOutcome(uuid.New())))

	stats := j.Stats()
	assert.Equal(t, uint64(4), stats.Events)
	assert.Equal(t, uint64(1), stats.Outcomes)
	assert.Equal(t, uint64(3), stats.PositiveCount)
	assert.Equal(t, uint64(1), stats.NegativeCount)
}

func TestJournal_ClosedJournalRejectsOperations(t *testing.T) {
	ctx := context.Background()
	j := newTestJournal(t)
	require.NoError(t, j.Close())

	_, err := j.AppendEvent(ctx, testEvent(datatypes.PolarityPositive))
	assert.ErrorIs(t, err, ErrJournalClosed)

	assert.ErrorIs(t, j.AppendOutcome(ctx, 1, testOutcome(uuid.New())), ErrJournalClosed)

	_, err = j.Recent(ctx, 5)
	assert.ErrorIs(t, err, ErrJournalClosed)

	// Close is idempotent.
	assert.NoError(t, j.Close())
}

func TestJournal_RecoversSequenceAndStats(t *testing.T) {
	ctx := context.Background()
	db, err := badger.OpenInMemory()
	require.NoError(t, err)

	j, err := NewJournal(db, nil)
	require.NoError(t, err)
	seq, err := j.AppendEvent(ctx, testEvent(datatypes.PolarityPositive))
	require.NoError(t, err)
	require.NoError(t, j.AppendOutcome(ctx, seq, testOutcome(uuid.New())))
	_, err = j.AppendEvent(ctx, testEvent(datatypes.PolarityNegative))
	require.NoError(t, err)

	// A second journal over the same database must pick up where the
	// first left off.
	recovered, err := NewJournal(db, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = recovered.Close() })

	stats := recovered.Stats()
	assert.Equal(t, uint64(2), stats.Events)
	assert.Equal(t, uint64(1), stats.Outcomes)
	assert.Equal(t, uint64(1), stats.PositiveCount)
	assert.Equal(t, uint64(1), stats.NegativeCount)

	next, err := recovered.AppendEvent(ctx, testEvent(datatypes.PolarityPositive))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), next)
}

func TestJournal_CancelledContext(t *testing.T) {
	j := newTestJournal(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := j.AppendEvent(ctx, testEvent(datatypes.PolarityPositive))
	assert.ErrorIs(t, err, context.Canceled)
}
