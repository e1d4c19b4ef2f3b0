package logutils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConsoleFormatLevel(t *testing.T) {
	f := ConsoleFormatLevel()
	require.Equal(t, "\x1b[32mINF\x1b[0m", f("info"))
	require.Contains(t, f("trace"), "TRC")
	require.Contains(t, f("fatal"), "FTL")
	require.Contains(t, f("unknown"), "???")
	require.Contains(t, f(42), "???")
}

func TestConsoleFormatErrField(t *testing.T) {
	require.Equal(t, "error=", ConsoleFormatErrFieldName()("error"))
	require.Contains(t, ConsoleFormatErrFieldValue()("boom"), "boom")
}
