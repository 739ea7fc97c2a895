package pipeline

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSSAT_DuplicatePaths(t *testing.T) {
	ssat := SSAT{
		{Name: "core", Files: []File{{Path: "a.py"}, {Path: "b.py"}}},
		{Name: "util", Files: []File{{Path: "a.py"}}},
	}
	got := ssat.DuplicatePaths()
	want := []string{"a.py"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DuplicatePaths() mismatch (-want +got):\n%s", diff)
	}
}

func TestStateClone_PreservesStructuralEquality(t *testing.T) {
	s := State{
		RepoName: "widget",
		LatestArch: SSAT{
			{Name: "core", Files: []File{{Path: "a.py", Classes: []Class{{Name: "Widget"}}}}},
		},
		TestStatus: map[string]string{"step_1": "passed 1 out of 1"},
	}
	clone := s.Clone()
	if diff := cmp.Diff(s, clone); diff != "" {
		t.Errorf("Clone() mismatch (-orig +clone):\n%s", diff)
	}
}
