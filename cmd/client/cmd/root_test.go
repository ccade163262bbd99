package cmd

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certkeeper/internal/domain/certificate"
)

func setupEnv(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("CONFIG_DIR", dir)
	t.Setenv("STORAGE_DRIVER", "sqlite")
	t.Setenv("DATA_PATH", filepath.Join(dir, "certs.db"))
	t.Setenv("QUEUE_JOURNAL_PATH", "")
	t.Setenv("OFFLINE", "")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root, opts := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)

	err := root.Execute()
	require.NoError(t, opts.teardown(root, nil))
	return out.String(), err
}

func TestCLI_CertificateLifecycle(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "cert", "new", "--type", "eicr", "--set", "clientName=Acme Ltd", "--json")
	require.NoError(t, err)
	var rec certificate.Record
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	require.NotEmpty(t, rec.ID)
	assert.Equal(t, certificate.TypeEICR, rec.CertificateType)
	assert.Equal(t, "Acme Ltd", rec.ClientName)

	out, err = execute(t, "cert", "edit", rec.ID, "--set", "installationAddress=1 Mill Lane", "--set", "supply.ze=0.35")
	require.NoError(t, err)
	assert.Contains(t, out, "saved")

	out, err = execute(t, "cert", "sign", rec.ID, "--role", "inspector", "--name", "J Smith")
	require.NoError(t, err)
	assert.Contains(t, out, "saved")

	out, err = execute(t, "cert", "status", rec.ID, "issued")
	require.NoError(t, err)
	assert.Contains(t, out, "issued")

	out, err = execute(t, "cert", "edit", rec.ID, "--set", "clientName=Someone Else")
	require.NoError(t, err)
	assert.Contains(t, out, "finalized")

	out, err = execute(t, "cert", "list", "--json")
	require.NoError(t, err)
	var recs []*certificate.Record
	require.NoError(t, json.Unmarshal([]byte(out), &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, "Acme Ltd", recs[0].ClientName)
	assert.Equal(t, "1 Mill Lane", recs[0].InstallationAddress)
	assert.True(t, recs[0].Data.Signatures()[certificate.RoleInspector].Signed())

	out, err = execute(t, "cert", "get", rec.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Electrical Installation Condition Report")
	assert.Contains(t, out, "Signature inspector: signed")

	_, err = execute(t, "cert", "status", rec.ID, "draft")
	assert.ErrorIs(t, err, certificate.ErrInvalidTransition)

	out, err = execute(t, "cert", "delete", rec.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted")

	_, err = execute(t, "cert", "get", rec.ID)
	assert.ErrorIs(t, err, certificate.ErrNotFound)
}

func TestCLI_ListFilters(t *testing.T) {
	setupEnv(t)

	_, err := execute(t, "cert", "new", "--type", "MWC")
	require.NoError(t, err)
	_, err = execute(t, "cert", "new", "--type", "FIRE")
	require.NoError(t, err)

	out, err := execute(t, "cert", "list", "--type", "fire")
	require.NoError(t, err)
	assert.Contains(t, out, "FIRE")
	assert.NotContains(t, out, "MWC")
	assert.Contains(t, out, "Total: 1")

	_, err = execute(t, "cert", "list", "--status", "archived")
	assert.Error(t, err)
}

func TestCLI_Queue(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "queue", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Queue is empty")

	out, err = execute(t, "queue", "flush")
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing to flush")
}

func TestCLI_BadInput(t *testing.T) {
	setupEnv(t)

	_, err := execute(t, "cert", "new", "--type", "PAT")
	assert.ErrorIs(t, err, certificate.ErrInvalidType)

	_, err = execute(t, "cert", "new", "--type", "EIC", "--set", "novalue")
	assert.Error(t, err)

	_, err = execute(t, "--storage", "mongo", "cert", "list")
	assert.Error(t, err)
}
