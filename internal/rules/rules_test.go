package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orphanscan/internal/db"
	_ "orphanscan/internal/db/extractors"
	"orphanscan/internal/introspect"
	"orphanscan/internal/orphans"
)

var testStructure = introspect.Structure{
	Modules:    "modules",
	ModuleLink: "course_modules",
	Sections:   "course_sections",
	Course:     "course",
	GradeItems: "grade_items",
}

type fakeFacts struct {
	live    map[string]bool
	modules []introspect.Module
}

func (f fakeFacts) Exists(t string) bool            { return f.live[t] }
func (f fakeFacts) Modules() []introspect.Module    { return f.modules }
func (f fakeFacts) Structure() introspect.Structure { return testStructure }

func (f fakeFacts) Classify(t string) introspect.Classification {
	for _, m := range f.modules {
		if m.Name == t {
			return introspect.Classification{Kind: introspect.KindActivity, Module: m}
		}
	}
	switch t {
	case testStructure.ModuleLink:
		return introspect.Classification{Kind: introspect.KindModuleLink}
	case testStructure.Sections:
		return introspect.Classification{Kind: introspect.KindSection}
	case testStructure.GradeItems:
		return introspect.Classification{Kind: introspect.KindGradeItem}
	}
	return introspect.Classification{Kind: introspect.KindPlain}
}

func newFacts(live ...string) fakeFacts {
	f := fakeFacts{live: map[string]bool{}, modules: []introspect.Module{{ID: 1, Name: "assign"}, {ID: 2, Name: "quiz"}}}
	for _, t := range live {
		f.live[t] = true
	}
	return f
}

type checkID struct {
	Reason    orphans.Reason
	RefFields string
	Parent    string
}

func ids(checks []Check) []checkID {
	out := make([]checkID, len(checks))
	for i, c := range checks {
		out[i] = checkID{Reason: c.Reason, RefFields: c.RefFields, Parent: c.Joins[0].Table}
	}
	return out
}

func TestGenerate(t *testing.T) {
	all := newFacts("course", "course_modules", "course_sections", "modules", "assign", "grade_items", "user")

	var tests = []struct {
		name  string
		table introspect.Table
		facts fakeFacts
		want  []checkID
	}{
		{
			name: "plain table with a relationship to a missing table",
			table: introspect.Table{Name: "enrol", Relationships: []introspect.Relationship{
				{Fields: []string{"courseid"}, RefTable: "course", RefFields: []string{"id"}},
				{Fields: []string{"roleid"}, RefTable: "role", RefFields: []string{"id"}},
			}},
			facts: all,
			want:  []checkID{{orphans.ReasonForeignKey, "courseid", "course"}},
		},
		{
			name:  "activity table",
			table: introspect.Table{Name: "assign"},
			facts: all,
			want:  []checkID{{orphans.ReasonMissingModule, "", "course_modules"}},
		},
		{
			name: "module link table skips modules without a live table",
			table: introspect.Table{Name: "course_modules", Relationships: []introspect.Relationship{
				{Fields: []string{"course"}, RefTable: "course", RefFields: []string{"id"}},
			}},
			facts: all,
			want: []checkID{
				{orphans.ReasonForeignKey, "course", "course"},
				{orphans.ReasonMissingInstance, "", "assign"},
				{orphans.ReasonMissingCourse, "", "course"},
				{orphans.ReasonMissingSection, "", "course_sections"},
			},
		},
		{
			name:  "section table",
			table: introspect.Table{Name: "course_sections"},
			facts: all,
			want:  []checkID{{orphans.ReasonMissingCourse, "", "course"}},
		},
		{
			name:  "grade items",
			table: introspect.Table{Name: "grade_items"},
			facts: all,
			want:  []checkID{{orphans.ReasonMissingModule, "", "modules"}},
		},
		{
			name:  "section table without a live course table",
			table: introspect.Table{Name: "course_sections"},
			facts: newFacts("course_sections"),
			want:  []checkID{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(Generate(tt.table, tt.facts)))
		})
	}
}

func TestGenerateCompositeKey(t *testing.T) {
	table := introspect.Table{Name: "enrol", Relationships: []introspect.Relationship{
		{Fields: []string{"x", "y"}, RefTable: "pair", RefFields: []string{"a", "b"}},
	}}
	checks := Generate(table, newFacts("pair"))
	require.Len(t, checks, 1)

	c := checks[0]
	assert.Equal(t, "x|y", c.RefFields)
	assert.Equal(t, "b.a", c.Missing)
	assert.Equal(t, []string{"target.x", "target.y"}, c.NotBlank)
	assert.Equal(t, []Cond{{Left: "target.x", Right: "b.a"}, {Left: "target.y", Right: "b.b"}}, c.Joins[0].On)
}

func testConn(t *testing.T, driver, prefix string) *db.Conn {
	t.Helper()
	d, err := db.Lookup(driver)
	require.NoError(t, err)
	return &db.Conn{Dialect: d, Driver: driver, Prefix: prefix}
}

func TestRenderForeignKey(t *testing.T) {
	table := introspect.Table{Name: "course", Relationships: []introspect.Relationship{
		{Fields: []string{"originalcourseid"}, RefTable: "course", RefFields: []string{"id"}},
	}}
	checks := Generate(table, newFacts("course"))
	require.Len(t, checks, 1)

	query, args := Render(checks[0], testConn(t, "sqlite", "mdl_"), "orphaned_records")

	assert.Equal(t, "SELECT target.id FROM mdl_course target"+
		" LEFT JOIN mdl_course b ON target.originalcourseid = b.id"+
		" LEFT JOIN mdl_orphaned_records tor ON tor.orphan_id = target.id AND tor.orphan_table = ? AND tor.reason = ?"+
		" AND tor.reffields = ? AND tor.reftable = ?"+
		" WHERE b.id IS NULL AND tor.id IS NULL"+
		" AND CAST(target.originalcourseid AS TEXT) <> '' AND CAST(target.originalcourseid AS TEXT) <> '0'"+
		" ORDER BY target.id", query)
	assert.Equal(t, []any{"course", int64(0), "originalcourseid", "course"}, args)
}

func TestRenderNumbersArgumentsInOrder(t *testing.T) {
	checks := Generate(introspect.Table{Name: "course_modules"}, newFacts("assign"))
	require.Len(t, checks, 1)

	query, args := Render(checks[0], testConn(t, "postgres", ""), "orphaned_records")

	assert.Equal(t, "SELECT target.id FROM course_modules target"+
		" LEFT JOIN assign b ON target.instance = b.id"+
		" LEFT JOIN orphaned_records tor ON tor.orphan_id = target.id AND tor.orphan_table = $1 AND tor.reason = $2"+
		" WHERE b.id IS NULL AND tor.id IS NULL AND target.module = $3"+
		" ORDER BY target.id", query)
	assert.Equal(t, []any{"course_modules", int64(orphans.ReasonMissingInstance), int64(1)}, args)
}

func TestRenderGradeItems(t *testing.T) {
	checks := Generate(introspect.Table{Name: "grade_items"}, newFacts("modules", "course_modules"))
	require.Len(t, checks, 1)

	query, args := Render(checks[0], testConn(t, "sqlserver", ""), "orphaned_records")

	assert.Contains(t, query, "LEFT JOIN modules m ON target.itemmodule = m.name"+
		" LEFT JOIN course_modules cm ON cm.instance = target.iteminstance AND cm.module = m.id")
	assert.Contains(t, query, "WHERE cm.id IS NULL AND tor.id IS NULL AND target.itemtype = @p3")
	assert.Equal(t, []any{"grade_items", int64(orphans.ReasonMissingModule), "mod"}, args)
}

func TestCheckString(t *testing.T) {
	c := Check{Table: "enrol", Reason: orphans.ReasonForeignKey, RefFields: "courseid", RefTable: "course"}
	assert.Equal(t, "enrol ForeignKey(courseid) -> course", c.String())
}
