package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"


	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, path := range [][]string{{"serve"}, {"migrate", "up"}, {"migrate", "down"}, {"check"}, {"cache", "flush"}} {
		sub, _, err := cmd.Find(path)
		require.NoError(t, err, "command %v should exist", path)
		assert.Equal(t, path[len(path)-1], sub.Name())
	}

	debug := cmd.PersistentFlags().Lookup("debug")
	require.NotNil(t, debug)
	assert.Equal(t, "d", debug.Shorthand)
}

func writeModel(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".yml"), []byte(body), 0o644))
}

func runCheck(t *testing.T, dir string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"check", dir})
	err := cmd.Execute()
	return buf.String(), err
}

func TestCheckValidModels(t *testing.T) {
	dir := t.TempDir()
	writeModel(t, dir, "Person", `
fields:
  name: {type: string, required: true}
discriminators:
  Employee:
    fields:
      company: {type: id, ref: Company}
`)
	writeModel(t, dir, "Company", `
collection: orgs
fields:
  title: {type: string}
`)

	out, err := runCheck(t, dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Company -> orgs (model)")
	assert.Contains(t, out, "Employee -> persons (discriminator of Person)")
	assert.Contains(t, out, "✓ 3 models valid")
}

func TestCheckRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	writeModel(t, dir, "Person", `
table: people
fields:
  name: {type: string}
`)

	_, err := runCheck(t, dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "table")
}

func TestCheckRejectsDanglingRef(t *testing.T) {
	dir := t.TempDir()
	writeModel(t, dir, "Post", `
fields:
  author: {type: id, ref: User}
`)

	_, err := runCheck(t, dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid ref")
}
