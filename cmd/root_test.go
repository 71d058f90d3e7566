package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRootCmdRegistersSubcommands(t *testing.T) {
	root := newRootCmd()

	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	require.True(t, names["serve"])
	require.True(t, names["crawl"])
	require.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestCrawlCmdRequiresURL(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"crawl"})

	require.Error(t, root.Execute())
}

func TestCrawlCmdRejectsMissingConfigFile(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"crawl", "--config", t.TempDir() + "/missing.yaml", "https://media.example.org/"})

	err := root.Execute()
	require.ErrorContains(t, err, "load config")
}
