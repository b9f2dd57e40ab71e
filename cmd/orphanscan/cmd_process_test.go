package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orphanscan/internal/orphans"
)

func TestConfirm(t *testing.T) {
	var tests = []struct {
		name   string
		input  string
		result bool
	}{
		{"Yes", "y\n", true},
		{"Yes Word", "YES\n", true},
		{"No", "n\n", false},
		{"Empty", "\n", false},
		{"No Newline", "y", true},
		{"Closed Input", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			assert.Equal(t, tt.result, confirm(strings.NewReader(tt.input), &out, "Are you sure"))
			assert.Equal(t, "Are you sure (y/n)? ", out.String())
		})
	}
}

func TestSelectionFromFlags(t *testing.T) {
	t.Cleanup(func() {
		procTable, procReason, procRefTable, procRefFields = "", "", "", ""
		processCmd.Flags().Lookup("orphanid").Changed = false
	})

	procTable = ""
	_, err := selection(processCmd)
	assert.Error(t, err)

	procTable = "enrol"
	procReason = "foreignkey"
	procRefTable = "course"
	procRefFields = "courseid"
	sel, err := selection(processCmd)
	require.NoError(t, err)
	require.NotNil(t, sel.Reason)
	assert.Equal(t, orphans.ReasonForeignKey, *sel.Reason)
	assert.Nil(t, sel.OrphanID)
	assert.Equal(t, "course", sel.RefTable)

	require.NoError(t, processCmd.Flags().Set("orphanid", "42"))
	procReason = ""
	sel, err = selection(processCmd)
	require.NoError(t, err)
	require.NotNil(t, sel.OrphanID)
	assert.Equal(t, int64(42), *sel.OrphanID)
	assert.Nil(t, sel.Reason)

	procReason = "sideways"
	_, err = selection(processCmd)
	assert.Error(t, err)
}

func TestExportFilter(t *testing.T) {
	f, err := exportFilter("course", "deleted")
	require.NoError(t, err)
	assert.Equal(t, "course", f.OrphanTable)
	require.NotNil(t, f.Status)
	assert.Equal(t, orphans.StatusDeleted, *f.Status)

	f, err = exportFilter("", "")
	require.NoError(t, err)
	assert.Nil(t, f.Status)

	_, err = exportFilter("", "gone")
	assert.Error(t, err)
}
