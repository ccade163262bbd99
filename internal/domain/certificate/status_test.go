package certificate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		wantErr bool
	}{
		{name: "draft to in progress", from: StatusDraft, to: StatusInProgress},
		{name: "draft straight to issued", from: StatusDraft, to: StatusIssued},
		{name: "same status is a no-op", from: StatusComplete, to: StatusComplete},
		{name: "complete to issued", from: StatusComplete, to: StatusIssued},
		{name: "issued back to draft", from: StatusIssued, to: StatusDraft, wantErr: true},
		{name: "complete back to in progress", from: StatusComplete, to: StatusInProgress, wantErr: true},
		{name: "unknown target", from: StatusDraft, to: Status("archived"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.from.CanTransitionTo(tt.to)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidTransition))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestStatus_Editable(t *testing.T) {
	assert.True(t, StatusDraft.Editable())
	assert.True(t, StatusInProgress.Editable())
	assert.False(t, StatusComplete.Editable())
	assert.False(t, StatusIssued.Editable())
}

func TestParseType(t *testing.T) {
	typ, err := ParseType(" eicr ")
	assert.NoError(t, err)
	assert.Equal(t, TypeEICR, typ)

	_, err = ParseType("PAT")
	assert.ErrorIs(t, err, ErrInvalidType)
}

func TestType_DisplayName(t *testing.T) {
	for _, typ := range Types {
		assert.NotEqual(t, "Unknown certificate", typ.DisplayName(), typ)
	}
	assert.Equal(t, "Unknown certificate", Type("X").DisplayName())
}
