package pdferr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfcombine/ir/raw"
)

func TestMergeErrorUnwrapsKinds(t *testing.T) {
	inner := &DanglingReferenceError{Ref: raw.ObjectRef{Num: 12}}
	err := fmt.Errorf("copy page: %w", &MergeError{Input: 2, Op: "copy", Err: inner})

	var merr *MergeError
	require.True(t, errors.As(err, &merr))
	assert.Equal(t, 2, merr.Input)

	var dangling *DanglingReferenceError
	require.True(t, errors.As(err, &dangling))
	assert.Equal(t, 12, dangling.Ref.Num)
	assert.Contains(t, err.Error(), "input 2")
}

func TestUnsupportedFeatureMatchesSentinel(t *testing.T) {
	err := &MergeError{Input: 0, Op: "parse", Err: &UnsupportedFeatureError{Feature: "encryption", Err: ErrEncrypted}}
	assert.True(t, errors.Is(err, ErrEncrypted))
}

func TestMergeErrorWithoutInput(t *testing.T) {
	err := &MergeError{Input: -1, Op: "write", Err: &IoError{Err: errors.New("disk full")}}
	assert.Equal(t, "merge: write: write output: disk full", err.Error())
}
