package common

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTerminateProcessesByNameNoMatch(t *testing.T) {
	t.Parallel()

	err := TerminateProcessesByName("definitely-not-a-running-executable")
	require.NoError(t, err)
}
