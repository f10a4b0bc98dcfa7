package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadDigests_Empty(t *testing.T) {
	s := createTestStore(t)

	digests, err := s.ReadDigests(context.Background(), "nope")
	require.NoError(t, err)
	assert.NotNil(t, digests, "empty slice, not nil")
	assert.Empty(t, digests)
}

func TestReadDigests_OrderedBySeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, seq := range []int64{3, 1, 2} {
		require.NoError(t, s.RecordDigest(ctx, testDigest("run", seq)))
	}

	digests, err := s.ReadDigests(ctx, "run")
	require.NoError(t, err)
	require.Len(t, digests, 3)
	for i, d := range digests {
		assert.Equal(t, int64(i+1), d.Seq)
	}
}

func TestReadDigest_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadDigest(context.Background(), "run", 7)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReadEvaluations_RecordedOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordEvaluation(ctx, testEvaluation("run", 2, 1, "late")))
	require.NoError(t, s.RecordEvaluation(ctx, testEvaluation("run", 1, 1, "early")))

	evals, err := s.ReadEvaluations(ctx, "run")
	require.NoError(t, err)
	require.Len(t, evals, 2)
	assert.Equal(t, "late", evals[0].Node, "recorded order, not seq order")
	assert.Equal(t, "early", evals[1].Node)
}

func TestReadPassEvaluations(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordEvaluation(ctx, testEvaluation("run", 1, 2, "second")))
	require.NoError(t, s.RecordEvaluation(ctx, testEvaluation("run", 1, 1, "first")))
	require.NoError(t, s.RecordEvaluation(ctx, testEvaluation("run", 2, 1, "other-pass")))
	done := testEvaluation("run", 1, 0, "first")
	done.Completion = true
	require.NoError(t, s.RecordEvaluation(ctx, done))

	evals, err := s.ReadPassEvaluations(ctx, "run", 1)
	require.NoError(t, err)
	require.Len(t, evals, 2)
	assert.Equal(t, "first", evals[0].Node)
	assert.Equal(t, "second", evals[1].Node)
}

func TestReadNodeEvaluations(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordEvaluation(ctx, testEvaluation("run", 1, 1, "f")))
	require.NoError(t, s.RecordEvaluation(ctx, testEvaluation("run", 1, 2, "g")))
	require.NoError(t, s.RecordEvaluation(ctx, testEvaluation("run", 2, 1, "f")))

	evals, err := s.ReadNodeEvaluations(ctx, "run", "f")
	require.NoError(t, err)
	require.Len(t, evals, 2)
	assert.Equal(t, int64(1), evals[0].DigestSeq)
	assert.Equal(t, int64(2), evals[1].DigestSeq)
}
