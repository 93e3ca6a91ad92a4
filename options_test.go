package cppl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateAcceptsDefaultsWithOutput(t *testing.T) {
	opts := DefaultOptions()
	opts.Output = "a.out"
	require.NoError(t, opts.Validate())
}

func TestValidateRejectsEmptyProjectRoot(t *testing.T) {
	opts := DefaultOptions()
	opts.Output = "a.out"
	opts.ProjectRoot = ""
	err := opts.Validate()
	require.Error(t, err)
	require.IsType(t, ArgumentError{}, err)
}

func TestValidateRejectsEmptyBuildRoot(t *testing.T) {
	opts := DefaultOptions()
	opts.Output = "a.out"
	opts.BuildRoot = ""
	require.Error(t, opts.Validate())
}

func TestValidateRejectsZeroJobs(t *testing.T) {
	opts := DefaultOptions()
	opts.Output = "a.out"
	opts.Jobs = 0
	require.Error(t, opts.Validate())
}

func TestValidateRequiresOutputWhenLinkEnabled(t *testing.T) {
	opts := DefaultOptions()
	err := opts.Validate()
	require.Error(t, err)
}

func TestValidateAllowsEmptyOutputWhenLinkDisabled(t *testing.T) {
	opts := DefaultOptions()
	opts.LinkDisabled = true
	require.NoError(t, opts.Validate())
}

func TestValidateRequiresFrontEndAndLinker(t *testing.T) {
	opts := DefaultOptions()
	opts.Output = "a.out"
	opts.FrontEnd = ""
	require.Error(t, opts.Validate())

	opts = DefaultOptions()
	opts.Output = "a.out"
	opts.Linker = ""
	require.Error(t, opts.Validate())
}

func TestArgumentErrorMessageIncludesDetail(t *testing.T) {
	err := ArgumentError{Message: "jobs must be at least 1"}
	require.Contains(t, err.Error(), "jobs must be at least 1")
}
