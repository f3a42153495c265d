package synchro_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/synchro"
	"github.com/syssam/synchro/metamodel"
)

const familiesMM = `
name: Families
classes:
  - name: Family
    features:
      - {name: lastName, type: string}
      - {name: father, type: Member, containment: true, opposite: familyFather}
      - {name: mother, type: Member, containment: true, opposite: familyMother}
      - {name: sons, type: Member, many: true, containment: true, opposite: familySon}
      - {name: daughters, type: Member, many: true, containment: true, opposite: familyDaughter}
  - name: Member
    features:
      - {name: firstName, type: string}
      - {name: familyFather, type: Family, opposite: father}
      - {name: familyMother, type: Family, opposite: mother}
      - {name: familySon, type: Family, opposite: sons}
      - {name: familyDaughter, type: Family, opposite: daughters}
`

const personsMM = `
name: Persons
classes:
  - name: Person
    abstract: true
    features:
      - {name: fullName, type: string}
  - name: Male
    supertypes: [Person]
  - name: Female
    supertypes: [Person]
`

const marchFamily = `
metamodel: Families
elements:
  - id: f1
    class: Family
    values: {lastName: March, father: jim, mother: cindy, sons: [brandon], daughters: [brenda]}
  - {id: jim, class: Member, values: {firstName: Jim}}
  - {id: cindy, class: Member, values: {firstName: Cindy}}
  - {id: brandon, class: Member, values: {firstName: Brandon}}
  - {id: brenda, class: Member, values: {firstName: Brenda}}
`

var (
	member2Male = &synchro.RuleSpec{
		Name:    "Member2Male",
		Sources: []string{"s"},
		Targets: []synchro.TargetSpec{{Var: "t", Role: "OUT", Class: "Male", Feeds: []string{"s"}}},
	}
	member2Female = &synchro.RuleSpec{
		Name:    "Member2Female",
		Sources: []string{"s"},
		Targets: []synchro.TargetSpec{{Var: "t", Role: "OUT", Class: "Female", Feeds: []string{"s"}}},
	}
)

// families2Persons is written the way the generator emits programs.
type families2Persons struct {
	families, persons *metamodel.Metamodel
	fail              bool
}

func newFamilies2Persons(t *testing.T) *families2Persons {
	t.Helper()
	fam, err := metamodel.Parse([]byte(familiesMM))
	require.NoError(t, err)
	per, err := metamodel.Parse([]byte(personsMM))
	require.NoError(t, err)
	return &families2Persons{families: fam, persons: per}
}

func (t *families2Persons) Name() string { return "Families2Persons" }

func (t *families2Persons) InModels() []synchro.ModelDecl {
	return []synchro.ModelDecl{{Role: "IN", Metamodel: t.families}}
}

func (t *families2Persons) OutModels() []synchro.ModelDecl {
	return []synchro.ModelDecl{{Role: "OUT", Metamodel: t.persons, Rules: []string{"Member2Male", "Member2Female"}}}
}

func isFemale(c *synchro.Context, self any) any {
	return c.Truthy(c.Defined(c.Get(self, "familyMother"))) || c.Truthy(c.Defined(c.Get(self, "familyDaughter")))
}

func familyName(c *synchro.Context, self *synchro.Element) any {
	return c.Memo("familyName", self, func() any {
		if c.Truthy(c.Defined(c.Get(self, "familyFather"))) {
			return c.Get(c.Get(self, "familyFather"), "lastName")
		}
		if c.Truthy(c.Defined(c.Get(self, "familyMother"))) {
			return c.Get(c.Get(self, "familyMother"), "lastName")
		}
		if c.Truthy(c.Defined(c.Get(self, "familySon"))) {
			return c.Get(c.Get(self, "familySon"), "lastName")
		}
		return c.Get(c.Get(self, "familyDaughter"), "lastName")
	})
}

func (t *families2Persons) Transform(c *synchro.Context) error {
	for _, s := range c.AllOf("IN", "Member") {
		if !c.Truthy(c.Not(isFemale(c, s))) {
			continue
		}
		if _, _, err := c.Instantiate(member2Male, s); err != nil {
			return err
		}
	}
	for _, s := range c.AllOf("IN", "Member") {
		if !c.Truthy(isFemale(c, s)) {
			continue
		}
		if _, _, err := c.Instantiate(member2Female, s); err != nil {
			return err
		}
	}
	for _, rule := range []*synchro.RuleSpec{member2Male, member2Female} {
		for _, l := range c.Trace().LinksOf(rule.Name) {
			s := l.Source("s")
			c.Bind(rule.Name, l.Target("t"), "fullName", c.Add(c.Add(c.Get(s, "firstName"), " "), familyName(c, s)))
		}
	}
	if t.fail {
		c.Fail("Member2Male", errors.New("forced failure"))
	}
	return c.Err()
}

func quiet() synchro.Option {
	l := log.New(os.Stderr)
	l.SetLevel(log.ErrorLevel)
	return synchro.WithLogger(l)
}

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
}

func TestExecute(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "families.yaml")
	out := filepath.Join(dir, "persons.yaml")
	writeFile(t, in, marchFamily)
	tr := newFamilies2Persons(t)

	c, err := synchro.Execute(context.Background(), tr, []string{in}, []string{out}, quiet())
	require.NoError(t, err)
	assert.Equal(t, 4, c.Trace().Len())

	got, err := synchro.LoadModel(out, "OUT", tr.persons)
	require.NoError(t, err)
	require.Equal(t, 4, got.Len())

	type person struct{ class, name string }
	var persons []person
	for _, e := range got.Elements() {
		name, err := e.Get("fullName")
		require.NoError(t, err)
		persons = append(persons, person{e.Class().Name, name.(string)})
	}
	assert.Equal(t, []person{
		{"Male", "Jim March"},
		{"Male", "Brandon March"},
		{"Female", "Cindy March"},
		{"Female", "Brenda March"},
	}, persons)

	// A second run produces identical output.
	first, err := os.ReadFile(out)
	require.NoError(t, err)
	_, err = synchro.Execute(context.Background(), tr, []string{in}, []string{out}, quiet())
	require.NoError(t, err)
	second, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestExecuteFailureKeepsOutputs(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "families.yaml")
	out := filepath.Join(dir, "persons.yaml")
	writeFile(t, in, marchFamily)
	writeFile(t, out, "previous")
	tr := newFamilies2Persons(t)
	tr.fail = true

	_, err := synchro.Execute(context.Background(), tr, []string{in}, []string{out}, quiet())
	require.Error(t, err)
	assert.True(t, synchro.IsRuleError(err))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "previous", string(data))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestExecuteErrors(t *testing.T) {
	dir := t.TempDir()
	tr := newFamilies2Persons(t)

	t.Run("Usage", func(t *testing.T) {
		_, err := synchro.Execute(context.Background(), tr, []string{"a"}, nil, quiet())
		var usage *synchro.UsageError
		require.ErrorAs(t, err, &usage)
		assert.Equal(t, []string{"IN", "OUT"}, usage.Want)
	})

	t.Run("MissingInput", func(t *testing.T) {
		out := filepath.Join(dir, "out.yaml")
		_, err := synchro.Execute(context.Background(), tr, []string{filepath.Join(dir, "none.yaml")}, []string{out}, quiet())
		require.Error(t, err)
		assert.True(t, synchro.IsModelError(err))
		assert.True(t, errors.Is(err, os.ErrNotExist))
		assert.NoFileExists(t, out)
	})
}

func TestMainExitCodes(t *testing.T) {
	tr := newFamilies2Persons(t)
	assert.Equal(t, 2, synchro.Main(context.Background(), tr, []string{"only-one"}))
	assert.Equal(t, 1, synchro.Main(context.Background(), tr, []string{"missing.yaml", filepath.Join(t.TempDir(), "out.yaml")}))
}
