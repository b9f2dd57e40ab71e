package introspect

import (
	"context"
	"fmt"
	"sort"
)

// Kind classifies a table by which heuristic checks apply to it.
type Kind int

const (
	KindPlain Kind = iota
	KindActivity
	KindModuleLink
	KindSection
	KindGradeItem
)

func (k Kind) String() string {
	switch k {
	case KindActivity:
		return "activity"
	case KindModuleLink:
		return "module-link"
	case KindSection:
		return "section"
	case KindGradeItem:
		return "grade-item"
	default:
		return "plain"
	}
}

// Module is a registered activity module. Its instances live in a table named after it.
type Module struct {
	ID   int64
	Name string
}

// Structure names the tables the heuristic checks are built around.
type Structure struct {
	Modules    string
	ModuleLink string
	Sections   string
	Course     string
	GradeItems string
}

// Classification is computed once per table.
// Module is only set for KindActivity.
type Classification struct {
	Kind   Kind
	Module Module
}

// Source supplies live facts about the database.
type Source interface {
	// TableNames lists live tables without the configured prefix.
	TableNames(ctx context.Context) ([]string, error)
	// Modules lists the rows of the activity module registry table.
	Modules(ctx context.Context, table string) ([]Module, error)
}

// Introspector answers schema questions from the declared schema plus a
// snapshot of live facts taken when it was built.
type Introspector struct {
	declared  Schema
	byName    map[string]int
	live      map[string]bool
	modules   []Module
	byModule  map[string]Module
	structure Structure
}

// New loads live facts from src and returns an Introspector over declared.
func New(ctx context.Context, declared Schema, src Source, st Structure) (*Introspector, error) {
	names, err := src.TableNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("list live tables: %w", err)
	}
	i := &Introspector{
		declared:  declared,
		byName:    make(map[string]int, len(declared.Tables)),
		live:      make(map[string]bool, len(names)),
		byModule:  map[string]Module{},
		structure: st,
	}
	for idx, t := range declared.Tables {
		i.byName[t.Name] = idx
	}
	for _, n := range names {
		i.live[n] = true
	}
	if i.live[st.Modules] {
		mods, err := src.Modules(ctx, st.Modules)
		if err != nil {
			return nil, fmt.Errorf("list modules: %w", err)
		}
		sort.Slice(mods, func(a, b int) bool { return mods[a].ID < mods[b].ID })
		i.modules = mods
		for _, m := range mods {
			i.byModule[m.Name] = m
		}
	}
	return i, nil
}

// Tables returns every declared table in declaration order.
func (i *Introspector) Tables() []Table {
	return i.declared.Tables
}

// Table returns the declared table called name.
func (i *Introspector) Table(name string) (Table, bool) {
	idx, ok := i.byName[name]
	if !ok {
		return Table{}, false
	}
	return i.declared.Tables[idx], true
}

// Relationships returns the declared relationships of name in schema order.
func (i *Introspector) Relationships(name string) []Relationship {
	t, _ := i.Table(name)
	return t.Relationships
}

// Exists reports whether name is present in the live database.
func (i *Introspector) Exists(name string) bool {
	return i.live[name]
}

// Modules returns the registered activity modules ordered by id.
func (i *Introspector) Modules() []Module {
	return i.modules
}

// Structure returns the structural table names in use.
func (i *Introspector) Structure() Structure {
	return i.structure
}

// Classify decides which heuristic family name belongs to.
// A table named after a registered module is an activity table even if it
// also matches a structural name.
func (i *Introspector) Classify(name string) Classification {
	if m, ok := i.byModule[name]; ok {
		return Classification{Kind: KindActivity, Module: m}
	}
	switch name {
	case i.structure.ModuleLink:
		return Classification{Kind: KindModuleLink}
	case i.structure.Sections:
		return Classification{Kind: KindSection}
	case i.structure.GradeItems:
		return Classification{Kind: KindGradeItem}
	}
	return Classification{Kind: KindPlain}
}
