package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orphanscan/internal/orphans"
)

func TestSelectionValidate(t *testing.T) {
	id := int64(1)
	reason := orphans.ReasonForeignKey

	var tests = []struct {
		name string
		sel  Selection
		want error
	}{
		{"no table", Selection{OrphanID: &id}, ErrMissingTable},
		{"no id or reason", Selection{OrphanTable: "course", RefTable: "course_categories"}, ErrMissingSelection},
		{"by id", Selection{OrphanTable: "course", OrphanID: &id}, nil},
		{"by reason", Selection{OrphanTable: "course", Reason: &reason}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.sel.Validate())
		})
	}
}

func TestProcessorDryRun(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	reason := orphans.ReasonForeignKey
	sel := Selection{OrphanTable: "course", Reason: &reason}

	sum, err := NewProcessor(h.engine).Run(ctx, sel, orphans.ActionDelete, "cli", true)
	require.NoError(t, err)
	assert.Equal(t, int64(3), sum.Possible)
	assert.Equal(t, 3, sum.Processed)
	assert.Equal(t, "3 records out of a possible 3 will be actioned once --dryrun is disabled (see below for errors)", sum.String())

	assert.NotNil(t, h.course(t, 1))
	assert.Equal(t, orphans.StatusPending, h.record(t, 1).Status)
	assert.Empty(t, h.events.Events())
}

func TestProcessorDeleteThenRestore(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	reason := orphans.ReasonForeignKey
	sel := Selection{OrphanTable: "course", Reason: &reason, RefTable: "course_categories"}
	p := NewProcessor(h.engine)
	p.PageSize = 1

	_, err := h.engine.Apply(ctx, 2, orphans.ActionIgnore, "admin")
	require.NoError(t, err)

	sum, err := p.Run(ctx, sel, orphans.ActionDelete, "cli", false)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Processed)
	assert.Empty(t, sum.Errors)
	assert.Nil(t, h.course(t, 1))
	assert.Nil(t, h.course(t, 2))

	_, err = h.engine.Apply(ctx, 2, orphans.ActionPending, "admin")
	require.NoError(t, err)

	sum, err = p.Run(ctx, sel, orphans.ActionRestore, "cli", false)
	require.NoError(t, err)
	assert.Equal(t, int64(3), sum.Possible)
	assert.Equal(t, 1, sum.Processed)
	require.Len(t, sum.Errors, 2)
	assert.Equal(t, "Record 2 cannot be restored.", sum.Errors[0].Error())
	assert.Equal(t, int64(3), sum.Errors[1].RecordID)
	assert.True(t, errors.Is(sum.Errors[1].Err, orphans.ErrDataIntegrity))
	assert.NotNil(t, h.course(t, 1))
	assert.Equal(t, orphans.StatusRestored, h.record(t, 1).Status)
}

func TestProcessorNothingSelected(t *testing.T) {
	h := newHarness(t)
	id := int64(12345)
	_, err := NewProcessor(h.engine).Run(context.Background(),
		Selection{OrphanTable: "course", OrphanID: &id}, orphans.ActionIgnore, "cli", true)
	assert.Equal(t, ErrNothingSelected, err)
}
