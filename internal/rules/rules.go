// Package rules turns a table's declared relationships and its classification
// into integrity checks, and renders each check as one anti-join query.
package rules

import (
	"fmt"
	"strings"

	"orphanscan/internal/db"
	"orphanscan/internal/introspect"
	"orphanscan/internal/orphans"
)

// Aliases used in rendered queries.
const (
	TargetAlias  = "target"
	TrackedAlias = "tor"
)

// Column names of the structural tables.
const (
	colInstance     = "instance"
	colModule       = "module"
	colCourse       = "course"
	colSection      = "section"
	colItemType     = "itemtype"
	colItemModule   = "itemmodule"
	colItemInstance = "iteminstance"
	colName         = "name"
	itemTypeModule  = "mod"
)

// Cond is Left = Right, or Left = Value bound as an argument when Right is empty.
type Cond struct {
	Left  string
	Right string
	Value any
}

// Join is a LEFT JOIN against a parent table.
type Join struct {
	Table string
	Alias string
	On    []Cond
}

// Check finds rows of Table that have no parent.
// A row is a violation when Missing is NULL after the joins, every NotBlank
// column is set and every Where condition holds.
type Check struct {
	Table     string
	Reason    orphans.Reason
	RefFields string
	RefTable  string
	Joins     []Join
	Missing   string
	NotBlank  []string
	Where     []Cond
}

func (c Check) String() string {
	if c.Reason == orphans.ReasonForeignKey {
		return fmt.Sprintf("%s %s(%s) -> %s", c.Table, c.Reason, c.RefFields, c.RefTable)
	}
	if len(c.Joins) > 0 {
		return fmt.Sprintf("%s %s via %s", c.Table, c.Reason, c.Joins[0].Table)
	}
	return fmt.Sprintf("%s %s", c.Table, c.Reason)
}

// Facts is what the generator needs to know about the live database.
type Facts interface {
	Exists(table string) bool
	Classify(table string) introspect.Classification
	Modules() []introspect.Module
	Structure() introspect.Structure
}

type builder func(t introspect.Table, cl introspect.Classification, f Facts) []Check

var builders = map[introspect.Kind]builder{
	introspect.KindActivity:   activityChecks,
	introspect.KindModuleLink: moduleLinkChecks,
	introspect.KindSection:    sectionChecks,
	introspect.KindGradeItem:  gradeItemChecks,
}

// Generate returns the checks for t: one ForeignKey check per declared
// relationship whose target exists live, in schema order, followed by the
// checks implied by the table's classification.
func Generate(t introspect.Table, f Facts) []Check {
	var checks []Check
	for _, rel := range t.Relationships {
		if !f.Exists(rel.RefTable) {
			continue
		}
		checks = append(checks, foreignKeyCheck(t.Name, rel))
	}
	cl := f.Classify(t.Name)
	if build, ok := builders[cl.Kind]; ok {
		checks = append(checks, build(t, cl, f)...)
	}
	return checks
}

func col(alias, name string) string {
	return alias + "." + name
}

func foreignKeyCheck(table string, rel introspect.Relationship) Check {
	const parent = "b"
	on := make([]Cond, len(rel.Fields))
	notBlank := make([]string, len(rel.Fields))
	for i, f := range rel.Fields {
		on[i] = Cond{Left: col(TargetAlias, f), Right: col(parent, rel.RefFields[i])}
		notBlank[i] = col(TargetAlias, f)
	}
	return Check{
		Table:     table,
		Reason:    orphans.ReasonForeignKey,
		RefFields: orphans.JoinFields(rel.Fields),
		RefTable:  rel.RefTable,
		Joins:     []Join{{Table: rel.RefTable, Alias: parent, On: on}},
		Missing:   col(parent, rel.RefFields[0]),
		NotBlank:  notBlank,
	}
}

// missingParent is a check whose only join is target.local = alias.id.
func missingParent(table string, reason orphans.Reason, parent, alias, local string, where ...Cond) Check {
	return Check{
		Table:  table,
		Reason: reason,
		Joins: []Join{{Table: parent, Alias: alias, On: []Cond{
			{Left: col(TargetAlias, local), Right: col(alias, introspect.IDColumn)},
		}}},
		Missing: col(alias, introspect.IDColumn),
		Where:   where,
	}
}

func activityChecks(t introspect.Table, cl introspect.Classification, f Facts) []Check {
	link := f.Structure().ModuleLink
	if !f.Exists(link) {
		return nil
	}
	const alias = "b"
	return []Check{{
		Table:  t.Name,
		Reason: orphans.ReasonMissingModule,
		Joins: []Join{{Table: link, Alias: alias, On: []Cond{
			{Left: col(TargetAlias, introspect.IDColumn), Right: col(alias, colInstance)},
			{Left: col(alias, colModule), Value: cl.Module.ID},
		}}},
		Missing: col(alias, introspect.IDColumn),
	}}
}

func moduleLinkChecks(t introspect.Table, _ introspect.Classification, f Facts) []Check {
	st := f.Structure()
	var checks []Check
	for _, m := range f.Modules() {
		if !f.Exists(m.Name) {
			continue
		}
		checks = append(checks, missingParent(t.Name, orphans.ReasonMissingInstance, m.Name, "b", colInstance,
			Cond{Left: col(TargetAlias, colModule), Value: m.ID}))
	}
	if f.Exists(st.Course) {
		checks = append(checks, missingParent(t.Name, orphans.ReasonMissingCourse, st.Course, "c", colCourse))
	}
	if f.Exists(st.Sections) {
		checks = append(checks, missingParent(t.Name, orphans.ReasonMissingSection, st.Sections, "cs", colSection))
	}
	return checks
}

func sectionChecks(t introspect.Table, _ introspect.Classification, f Facts) []Check {
	course := f.Structure().Course
	if !f.Exists(course) {
		return nil
	}
	return []Check{missingParent(t.Name, orphans.ReasonMissingCourse, course, "c", colCourse)}
}

func gradeItemChecks(t introspect.Table, _ introspect.Classification, f Facts) []Check {
	st := f.Structure()
	if !f.Exists(st.Modules) || !f.Exists(st.ModuleLink) {
		return nil
	}
	return []Check{{
		Table:  t.Name,
		Reason: orphans.ReasonMissingModule,
		Joins: []Join{
			{Table: st.Modules, Alias: "m", On: []Cond{
				{Left: col(TargetAlias, colItemModule), Right: col("m", colName)},
			}},
			{Table: st.ModuleLink, Alias: "cm", On: []Cond{
				{Left: col("cm", colInstance), Right: col(TargetAlias, colItemInstance)},
				{Left: col("cm", colModule), Right: col("m", introspect.IDColumn)},
			}},
		},
		Missing: col("cm", introspect.IDColumn),
		Where:   []Cond{{Left: col(TargetAlias, colItemType), Value: itemTypeModule}},
	}}
}

// Render builds the SELECT returning the ids of violating rows that are not
// yet tracked in recordsTable. Arguments are numbered in textual order.
func Render(c Check, conn *db.Conn, recordsTable string) (string, []any) {
	args := db.NewArgs(conn.Dialect)
	var b strings.Builder

	fmt.Fprintf(&b, "SELECT %s FROM %s %s",
		col(TargetAlias, introspect.IDColumn), conn.Table(c.Table), TargetAlias)
	for _, j := range c.Joins {
		fmt.Fprintf(&b, " LEFT JOIN %s %s ON %s", conn.Table(j.Table), j.Alias, renderConds(j.On, args))
	}

	tracked := []Cond{
		{Left: col(TrackedAlias, "orphan_id"), Right: col(TargetAlias, introspect.IDColumn)},
		{Left: col(TrackedAlias, "orphan_table"), Value: c.Table},
		{Left: col(TrackedAlias, "reason"), Value: int64(c.Reason)},
	}
	// Only ForeignKey checks carry reffields/reftable. Other reasons store ''
	// which some databases read back as NULL, so they are not compared.
	if c.Reason == orphans.ReasonForeignKey {
		tracked = append(tracked,
			Cond{Left: col(TrackedAlias, "reffields"), Value: c.RefFields},
			Cond{Left: col(TrackedAlias, "reftable"), Value: c.RefTable},
		)
	}
	fmt.Fprintf(&b, " LEFT JOIN %s %s ON %s", conn.Table(recordsTable), TrackedAlias, renderConds(tracked, args))

	where := []string{c.Missing + " IS NULL", col(TrackedAlias, introspect.IDColumn) + " IS NULL"}
	for _, nb := range c.NotBlank {
		where = append(where, conn.Dialect.NotBlank(nb))
	}
	if len(c.Where) > 0 {
		where = append(where, renderConds(c.Where, args))
	}
	fmt.Fprintf(&b, " WHERE %s ORDER BY %s", strings.Join(where, " AND "), col(TargetAlias, introspect.IDColumn))

	return b.String(), args.Values()
}

func renderConds(conds []Cond, args *db.Args) string {
	parts := make([]string, len(conds))
	for i, c := range conds {
		right := c.Right
		if right == "" {
			right = args.Add(c.Value)
		}
		parts[i] = c.Left + " = " + right
	}
	return strings.Join(parts, " AND ")
}
