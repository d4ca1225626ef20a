package core

// Options carries per-node settings that are inherited down the test tree.
type Options struct {
	// SkipReason, if non-empty, marks the node (and everything below it)
	// as skipped with the given reason.
	SkipReason string
}

// Inherit resolves o against its parent: every unset field takes the
// parent's value. Resolution happens once, at plan time.
func (o Options) Inherit(parent Options) Options {
	if o.SkipReason == "" {
		o.SkipReason = parent.SkipReason
	}
	return o
}

// Assertion is a one-shot test body. It runs in a dedicated child process
// and may stream intermediate sub-step outcomes through the recorder.
// Plain (no-stage) tests simply ignore the recorder.
type Assertion func(*StageRecorder)

// TestTree is a rose tree of named tests. A node is either a leaf carrying
// an assertion or a fork grouping child trees: a node with an Assertion
// is a leaf, every other node is a fork (possibly with no children).
type TestTree struct {
	Name      string
	Assertion Assertion  // set iff this node is a leaf
	Children  []TestTree // used only when this node is a fork
	Opts      Options
}

// IsLeaf reports whether t is a test case (as opposed to a suite).
func (t *TestTree) IsLeaf() bool {
	return t.Assertion != nil
}
