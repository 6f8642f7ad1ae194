package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/killallgit/sensitive-data-api/internal/services/training"
	apperrors "github.com/killallgit/sensitive-data-api/pkg/errors"
)

func TestCycleFromFlags(t *testing.T) {
	root := NewRootCmd()
	resetFlags(root)
	train, _, err := root.Find([]string{"train"})
	require.NoError(t, err)

	require.NoError(t, train.ParseFlags([]string{"--lineage", "pii", "--iterations", "4", "--dropout", "0", "--no-datasets"}))

	base := training.CycleConfig{
		Lineage: "default", Iterations: 10, BatchSize: 8, Dropout: 0.2, TestSplit: 0.2,
		MinSamples: 5, Seed: 42, IncludeFeedback: true, IncludeDatasets: true,
	}
	got := cycleFromFlags(train, base)

	assert.Equal(t, "pii", got.Lineage)
	assert.Equal(t, 4, got.Iterations)
	assert.Equal(t, 0.0, got.Dropout, "an explicit zero overrides")
	assert.Equal(t, 8, got.BatchSize)
	assert.EqualValues(t, 42, got.Seed)
	assert.True(t, got.IncludeFeedback)
	assert.False(t, got.IncludeDatasets)
	resetFlags(root)
}

func TestTrainCommand_InsufficientData(t *testing.T) {
	isolateConfig(t)

	_, err := executeCommand(t, "train", "--min-samples", "3")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInsufficientTrainingData, apperrors.GetCode(err))
}

func TestTrainCommand_InvalidFlags(t *testing.T) {
	isolateConfig(t)

	_, err := executeCommand(t, "train", "--no-feedback", "--no-datasets")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.GetCode(err))
}
