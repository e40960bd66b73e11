package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/appops/pkg/registry"
)

const (
	testUID = 10123
	testPkg = "com.example.app"
)

func mustOp(t testing.TB, name string) registry.Op {
	t.Helper()
	op, err := registry.Default().ByName(name)
	require.NoError(t, err)
	return op
}

func TestModeTable_DefaultResolution(t *testing.T) {
	table := NewModeTable(registry.Default())

	assert.Equal(t, registry.ModeAllowed, table.GetMode(mustOp(t, registry.OpWriteCalendar), testUID, testPkg))
	assert.Equal(t, registry.ModeIgnored, table.GetMode(mustOp(t, registry.OpPhoneCallMicrophone), testUID, testPkg))
	assert.Equal(t, registry.ModeDefault, table.GetMode(mustOp(t, registry.OpWriteSettings), testUID, testPkg))
}

func TestModeTable_SetModeReportsChange(t *testing.T) {
	table := NewModeTable(registry.Default())
	op := mustOp(t, registry.OpWriteCalendar)

	assert.True(t, table.SetMode(op, testUID, testPkg, registry.ModeErrored))
	assert.False(t, table.SetMode(op, testUID, testPkg, registry.ModeErrored), "same value is not a change")
	assert.Equal(t, registry.ModeErrored, table.GetMode(op, testUID, testPkg))

	// Writing the default clears the entry.
	assert.True(t, table.SetMode(op, testUID, testPkg, registry.ModeAllowed))
	_, ok := table.PackageMode(op, testUID, testPkg)
	assert.False(t, ok)
	assert.False(t, table.SetMode(op, testUID, testPkg, registry.ModeAllowed))
	assert.Equal(t, 0, table.Len())
}

func TestModeTable_StoredDefaultModeIsReturned(t *testing.T) {
	table := NewModeTable(registry.Default())
	op := mustOp(t, registry.OpWriteCalendar)

	require.True(t, table.SetMode(op, testUID, testPkg, registry.ModeDefault))
	assert.Equal(t, registry.ModeDefault, table.GetMode(op, testUID, testPkg))
}

func TestModeTable_UIDModeMasksPackageMode(t *testing.T) {
	table := NewModeTable(registry.Default())
	op := mustOp(t, registry.OpWriteCalendar)

	table.SetMode(op, testUID, testPkg, registry.ModeIgnored)
	table.SetUIDMode(op, testUID, registry.ModeErrored)
	assert.Equal(t, registry.ModeErrored, table.GetMode(op, testUID, testPkg))

	// Clearing the uid entry unmasks the package entry.
	assert.True(t, table.SetUIDMode(op, testUID, op.DefaultMode))
	assert.Equal(t, registry.ModeIgnored, table.GetMode(op, testUID, testPkg))

	// Other packages of the uid see only the uid level.
	table.SetUIDMode(op, testUID, registry.ModeErrored)
	assert.Equal(t, registry.ModeErrored, table.GetMode(op, testUID, "com.example.other"))
}

func TestModeTable_ResetPackage(t *testing.T) {
	table := NewModeTable(registry.Default())
	calendar := mustOp(t, registry.OpWriteCalendar)
	camera := mustOp(t, registry.OpCamera)

	table.SetMode(camera, testUID, testPkg, registry.ModeIgnored)
	table.SetMode(calendar, testUID, testPkg, registry.ModeErrored)
	table.SetMode(calendar, testUID, "com.example.other", registry.ModeErrored)
	table.SetUIDMode(camera, testUID, registry.ModeErrored)

	removed := table.ResetPackage(testUID, testPkg)
	require.Len(t, removed, 2)
	assert.Equal(t, calendar.Name, removed[0].Name, "ordered by code")
	assert.Equal(t, camera.Name, removed[1].Name)

	assert.Equal(t, registry.ModeAllowed, table.GetMode(calendar, testUID, testPkg))
	assert.Equal(t, registry.ModeErrored, table.GetMode(calendar, testUID, "com.example.other"))
	assert.Equal(t, registry.ModeErrored, table.GetMode(camera, testUID, testPkg), "uid entries survive")
	assert.Empty(t, table.ResetPackage(testUID, testPkg))
}

func TestModeTable_SnapshotRestore(t *testing.T) {
	table := NewModeTable(registry.Default())
	calendar := mustOp(t, registry.OpWriteCalendar)
	table.SetMode(calendar, testUID, testPkg, registry.ModeIgnored)
	table.SetUIDMode(calendar, testUID, registry.ModeErrored)

	snap := table.Snapshot()
	assert.Equal(t, SnapshotVersion, snap.Version)
	assert.Equal(t, []UIDEntry{{Op: calendar.Name, UID: testUID, Mode: registry.ModeErrored}}, snap.UIDModes)
	assert.Equal(t, []PackageEntry{{Op: calendar.Name, UID: testUID, Package: testPkg, Mode: registry.ModeIgnored}}, snap.PackageModes)

	other := NewModeTable(registry.Default())
	require.NoError(t, other.Restore(snap))
	assert.Equal(t, snap, other.Snapshot())
}

func TestModeTable_RestoreValidation(t *testing.T) {
	table := NewModeTable(registry.Default())
	calendar := mustOp(t, registry.OpWriteCalendar)
	table.SetMode(calendar, testUID, testPkg, registry.ModeIgnored)
	before := table.Snapshot()

	bad := NewSnapshot()
	bad.PackageModes = []PackageEntry{{Op: calendar.Name, UID: testUID, Package: "", Mode: registry.ModeErrored}}
	assert.ErrorIs(t, table.Restore(bad), ErrCorruptSnapshot)

	bad = NewSnapshot()
	bad.UIDModes = []UIDEntry{{Op: calendar.Name, UID: testUID, Mode: registry.Mode(42)}}
	assert.ErrorIs(t, table.Restore(bad), ErrCorruptSnapshot)

	assert.Equal(t, before, table.Snapshot(), "failed restore leaves the table unchanged")
}

func TestModeTable_RestoreDropsUnknownOps(t *testing.T) {
	table := NewModeTable(registry.Default())

	snap := NewSnapshot()
	snap.UIDModes = []UIDEntry{
		{Op: "android:retired_op", UID: testUID, Mode: registry.ModeErrored},
		{Op: registry.OpCamera, UID: testUID, Mode: registry.ModeIgnored},
		// Default-valued entries are not materialized.
		{Op: registry.OpWifiScan, UID: testUID, Mode: registry.ModeAllowed},
	}
	require.NoError(t, table.Restore(snap))
	assert.Equal(t, 1, table.Len())
}
