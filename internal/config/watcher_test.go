package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatcherSignalsOnConfigChange(t *testing.T) {
	dir := t.TempDir()

	w, err := StartWatcher(dir, testLogger())
	require.NoError(t, err)
	defer w.Stop()

	writeFile(t, dir, "office.account.yaml", officeAccount)

	select {
	case <-w.ReloadChan():
	case <-time.After(5 * time.Second):
		t.Fatal("no reload signal after configuration change")
	}
}

func TestWatcherIgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()

	w, err := StartWatcher(dir, testLogger())
	require.NoError(t, err)
	defer w.Stop()

	writeFile(t, dir, "notes.txt", "not configuration")
	writeFile(t, dir, ".office.account.yaml", officeAccount)

	select {
	case <-w.ReloadChan():
		t.Fatal("unexpected reload signal for unrelated files")
	case <-time.After(300 * time.Millisecond):
	}
}
