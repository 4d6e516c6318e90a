package ldtest

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

type Results struct {
	Tests    []TestResult
	Failures []TestResult
}

type TestResult struct {
	TestID  TestID
	Errors  []error
	Skipped bool
}

func (r Results) OK() bool {
	return len(r.Failures) == 0
}

// Counts returns the number of tests that passed and that were skipped. Only leaf tests
// (those with no subtests) are counted.
func (r Results) Counts() (passed, skipped int) {
	for _, t := range r.Tests {
		if r.hasDescendants(t.TestID) {
			continue
		}
		if t.Skipped {
			skipped++
		} else if !r.failed(t.TestID) {
			passed++
		}
	}
	return
}

func (r Results) hasDescendants(id TestID) bool {
	for _, t := range r.Tests {
		if t.TestID.IsDescendantOf(id) {
			return true
		}
	}
	return false
}

func (r Results) failed(id TestID) bool {
	for _, f := range r.Failures {
		if f.TestID.String() == id.String() {
			return true
		}
	}
	return false
}

type TestID struct {
	Path []string
}

// Plus returns a new TestID with the specified name appended to the path.
func (t TestID) Plus(name string) TestID {
	return TestID{Path: append(append([]string(nil), t.Path...), name)}
}

// IsDescendantOf returns true if this ID is a strict subpath of the other one.
func (t TestID) IsDescendantOf(other TestID) bool {
	if len(t.Path) <= len(other.Path) {
		return false
	}
	for i, name := range other.Path {
		if t.Path[i] != name {
			return false
		}
	}
	return true
}

func (t TestID) String() string {
	return strings.Join(t.Path, "/")
}

type TestFailure struct {
	ID  TestID
	Err error
}

func (f TestFailure) Error() string {
	return fmt.Sprintf("[%s]: %s", f.ID, f.Err)
}

// PrintResults writes a summary of the test run to standard output.
func PrintResults(results Results) {
	passed, skipped := results.Counts()
	if results.OK() {
		color.New(color.FgGreen).Printf("All tests passed")
		fmt.Printf(" (%d passed, %d skipped)\n", passed, skipped)
		return
	}
	color.New(color.FgRed).Printf("FAILED TESTS (%d):\n", len(results.Failures))
	for _, f := range results.Failures {
		fmt.Printf("  * %s\n", f.TestID)
		for _, e := range f.Errors {
			for _, line := range strings.Split(e.Error(), "\n") {
				fmt.Printf("      %s\n", line)
			}
		}
	}
	fmt.Printf("(%d passed, %d skipped)\n", passed, skipped)
}
