package introspect

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	tables  []string
	modules []Module
	err     error
}

func (f fakeSource) TableNames(context.Context) ([]string, error) { return f.tables, f.err }

func (f fakeSource) Modules(context.Context, string) ([]Module, error) { return f.modules, nil }

var testStructure = Structure{
	Modules:    "modules",
	ModuleLink: "course_modules",
	Sections:   "course_sections",
	Course:     "course",
	GradeItems: "grade_items",
}

func TestLoadSchemaFile(t *testing.T) {
	s, err := LoadSchemaFile("./testdata/schema.yaml")
	require.NoError(t, err)
	require.Len(t, s.Tables, 3)
	assert.Equal(t, "enrol", s.Tables[2].Name)
	assert.Equal(t, []Relationship{
		{Fields: []string{"courseid"}, RefTable: "course", RefFields: []string{"id"}},
		{Fields: []string{"roleid"}, RefTable: "role", RefFields: []string{"id"}},
	}, s.Tables[2].Relationships)

	_, err = LoadSchemaFile("./testdata/bad_schema.yaml")
	assert.Error(t, err)

	_, err = LoadSchemaFile("./testdata/missing.yaml")
	assert.Error(t, err)
}

func TestWithRelationships(t *testing.T) {
	s := Schema{
		Tables: []Table{{Name: "mdl_course"}, {Name: "mdl_enrol"}},
		ForeignKeys: []ForeignKey{
			{FromTable: "mdl_enrol", FromColumn: "courseid", ToTable: "mdl_course", ToColumn: "id"},
			{FromTable: "mdl_enrol", FromColumn: "a, b", ToTable: "mdl_pair", ToColumn: "x, y"},
			{FromTable: "other_table", FromColumn: "z", ToTable: "mdl_course", ToColumn: "id"},
		},
	}
	out := s.WithRelationships("mdl_")
	require.Len(t, out.Tables, 2)
	assert.Equal(t, "course", out.Tables[0].Name)
	assert.Empty(t, out.Tables[0].Relationships)
	assert.Equal(t, []Relationship{
		{Fields: []string{"courseid"}, RefTable: "course", RefFields: []string{"id"}},
		{Fields: []string{"a", "b"}, RefTable: "pair", RefFields: []string{"x", "y"}},
	}, out.Tables[1].Relationships)
	// input untouched
	assert.Empty(t, s.Tables[1].Relationships)
}

func TestIntrospector(t *testing.T) {
	declared, err := LoadSchemaFile("./testdata/schema.yaml")
	require.NoError(t, err)

	src := fakeSource{
		tables: []string{"course", "course_sections", "course_modules", "enrol", "modules", "scorm", "grade_items"},
		modules: []Module{
			{ID: 7, Name: "quiz"},
			{ID: 3, Name: "scorm"},
		},
	}
	i, err := New(context.Background(), declared, src, testStructure)
	require.NoError(t, err)

	assert.True(t, i.Exists("enrol"))
	assert.False(t, i.Exists("role"))
	assert.Len(t, i.Tables(), 3)
	assert.Len(t, i.Relationships("enrol"), 2)
	assert.Nil(t, i.Relationships("nope"))
	assert.Equal(t, []Module{{ID: 3, Name: "scorm"}, {ID: 7, Name: "quiz"}}, i.Modules())

	var tests = []struct {
		table string
		want  Classification
	}{
		{"scorm", Classification{Kind: KindActivity, Module: Module{ID: 3, Name: "scorm"}}},
		{"quiz", Classification{Kind: KindActivity, Module: Module{ID: 7, Name: "quiz"}}},
		{"course_modules", Classification{Kind: KindModuleLink}},
		{"course_sections", Classification{Kind: KindSection}},
		{"grade_items", Classification{Kind: KindGradeItem}},
		{"course", Classification{Kind: KindPlain}},
	}
	for _, tt := range tests {
		t.Run(tt.table, func(t *testing.T) {
			assert.Equal(t, tt.want, i.Classify(tt.table))
		})
	}
}

func TestIntrospectorWithoutModuleRegistry(t *testing.T) {
	i, err := New(context.Background(), Schema{}, fakeSource{tables: []string{"course"}, modules: []Module{{ID: 1, Name: "course"}}}, testStructure)
	require.NoError(t, err)
	assert.Empty(t, i.Modules())
	assert.Equal(t, KindPlain, i.Classify("course").Kind)
}

func TestIntrospectorSourceError(t *testing.T) {
	_, err := New(context.Background(), Schema{}, fakeSource{err: errors.New("down")}, testStructure)
	assert.Error(t, err)
}
