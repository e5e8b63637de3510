package cmd

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/pagegenie/pkg/version"
)

func runVersion(t *testing.T, args ...string) string {
	t.Helper()
	cmd := newVersionCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return buf.String()
}

func TestVersionCmd_DefaultOutput(t *testing.T) {
	// When: executing without flags
	output := runVersion(t)

	// Then: the build line and the upstream user agent are printed
	lines := strings.Split(strings.TrimSpace(output), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, version.GetInfo().String(), lines[0])
	assert.Equal(t, "user-agent: "+version.UserAgent(), lines[1])
}

func TestVersionCmd_ShortOutput(t *testing.T) {
	assert.Equal(t, version.Version, strings.TrimSpace(runVersion(t, "--short")))
}

func TestVersionCmd_JSONOutput(t *testing.T) {
	// When: executing with --json
	output := runVersion(t, "--json")

	// Then: the build info decodes back
	var info version.Info
	require.NoError(t, json.Unmarshal([]byte(output), &info))
	assert.Equal(t, version.GetInfo(), info)
}
