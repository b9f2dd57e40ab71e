package orphans

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseStatus(t *testing.T) {

	var tests = []struct {
		in       string
		want     Status
		errIsNil bool
	}{
		{"pending", StatusPending, true},
		{"Deleted", StatusDeleted, true},
		{"3", StatusRestored, true},
		{"1", StatusIgnored, true},
		{"purged", 0, false},
		{"9", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStatus(tt.in)
			assert.Equal(t, tt.errIsNil, err == nil, "error: %v", err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseReason(t *testing.T) {
	r, err := ParseReason("missingcourse")
	assert.NoError(t, err)
	assert.Equal(t, ReasonMissingCourse, r)

	r, err = ParseReason("0")
	assert.NoError(t, err)
	assert.Equal(t, ReasonForeignKey, r)

	_, err = ParseReason("MissingGrade")
	assert.Error(t, err)
}

func TestReasonText(t *testing.T) {
	assert.Equal(t,
		`Potential foreign key violation against table "course" with field(s) "originalcourseid"`,
		ReasonText(ReasonForeignKey, "originalcourseid", "course"))
	assert.Equal(t, "Missing course section record", ReasonText(ReasonMissingSection, "", ""))
	assert.Equal(t, "Missing activity instance record", ReasonText(ReasonMissingInstance, "", ""))
}

func TestParseAction(t *testing.T) {

	var tests = []struct {
		in     string
		want   Action
		target Status
	}{
		{"ignore", ActionIgnore, StatusIgnored},
		{" DELETE ", ActionDelete, StatusDeleted},
		{"restore", ActionRestore, StatusRestored},
		{"pending", ActionPending, StatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAction(tt.in)
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.target, got.Target())
		})
	}

	_, err := ParseAction("purge")
	assert.True(t, errors.Is(err, ErrInvalidAction))
}

func TestJoinFields(t *testing.T) {
	assert.Equal(t, "x|y", JoinFields([]string{"x", "y"}))
	assert.Equal(t, "courseid", JoinFields([]string{"courseid"}))
}
