package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func leaf(name string) TestTree {
	return TestTree{Name: name, Assertion: func(*StageRecorder) {}}
}

func suite(name string, children ...TestTree) TestTree {
	return TestTree{Name: name, Children: children}
}

func planNames(plan []Task) []string {
	var names []string
	for i := range plan {
		names = append(names, plan[i].Name())
	}
	return names
}

func TestMakePlan_DepthFirstOrder(t *testing.T) {
	tree := suite("all",
		suite("arith", leaf("add"), leaf("mul")),
		leaf("solo"),
	)
	plan := MakePlan(&Config{}, tree)
	require.Equal(t,
		[]string{"all::arith::add", "all::arith::mul", "all::solo"},
		planNames(plan))
}

func TestMakePlan_Filter(t *testing.T) {
	tree := suite("all", leaf("foo"), leaf("bar"), leaf("foobar"))

	plan := MakePlan(&Config{Filter: "foo"}, tree)
	require.Equal(t, []string{"all::foo", "all::foobar"}, planNames(plan))
}

func TestMakePlan_FilterMatchingForkAdmitsSubtree(t *testing.T) {
	tree := suite("outer",
		suite("match", leaf("a"), leaf("b")),
		leaf("c"),
	)
	plan := MakePlan(&Config{Filter: "match"}, tree)
	require.Equal(t, []string{"outer::match::a", "outer::match::b"}, planNames(plan))
}

func TestMakePlan_SkipFilters(t *testing.T) {
	tree := suite("all", leaf("foo"), leaf("bar"), leaf("foobar"))

	plan := MakePlan(&Config{SkipFilters: []string{"bar"}}, tree)
	require.Equal(t, []string{"all::foo"}, planNames(plan))
}

func TestMakePlan_SkipFilterPrunesFork(t *testing.T) {
	tree := suite("all",
		suite("heavy", leaf("a"), leaf("b")),
		leaf("c"),
	)
	plan := MakePlan(&Config{SkipFilters: []string{"heavy"}}, tree)
	require.Equal(t, []string{"all::c"}, planNames(plan))
}

func TestMakePlan_OptionInheritance(t *testing.T) {
	inner := leaf("x")
	inner.Opts.SkipReason = "own reason"

	tree := suite("all", leaf("plain"), inner)
	tree.Opts.SkipReason = "suite reason"

	plan := MakePlan(&Config{}, tree)
	require.Len(t, plan, 2)
	require.Equal(t, "suite reason", plan[0].Opts.SkipReason)
	require.Equal(t, "own reason", plan[1].Opts.SkipReason)
}

func TestMakePlan_Empty(t *testing.T) {
	plan := MakePlan(&Config{Filter: "nothing-matches"}, suite("all", leaf("a")))
	require.Empty(t, plan)
}

func TestMakePlan_NoDuplicates(t *testing.T) {
	tree := suite("all",
		suite("a", leaf("x"), leaf("y")),
		suite("b", leaf("x"), leaf("y")),
	)
	plan := MakePlan(&Config{}, tree)
	seen := map[string]bool{}
	for i := range plan {
		name := plan[i].Name()
		require.False(t, seen[name], "duplicate task %s", name)
		seen[name] = true
	}
	require.Len(t, plan, 4)
}
