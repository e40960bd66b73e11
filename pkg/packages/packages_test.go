package packages

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryDirectory_Ownership(t *testing.T) {
	d := NewInMemoryDirectory(Platform...)
	require.NoError(t, d.Install(Package{Name: "com.example.app", UID: 10123}))
	require.NoError(t, d.Install(Package{Name: "com.example.app", UID: 1010123}))
	require.NoError(t, d.Install(Package{Name: "com.example.shared", UID: 10123}))

	assert.True(t, d.Owns(10123, "com.example.app"))
	assert.True(t, d.Owns(1010123, "com.example.app"))
	assert.False(t, d.Owns(10124, "com.example.app"))
	assert.False(t, d.Owns(10123, "com.other"))
	assert.False(t, d.Owns(10123, ""))
	assert.True(t, d.Owns(2000, "com.android.shell"))

	assert.Equal(t, []string{"com.example.app", "com.example.shared"}, d.ForUID(10123))
	assert.Empty(t, d.ForUID(99999))
}

func TestInMemoryDirectory_Uninstall(t *testing.T) {
	d := NewInMemoryDirectory(Package{Name: "com.example.app", UID: 10123})

	require.NoError(t, d.Uninstall(10123, "com.example.app"))
	assert.False(t, d.Owns(10123, "com.example.app"))
	assert.ErrorIs(t, d.Uninstall(10123, "com.example.app"), ErrPackageNotFound)
	assert.Empty(t, d.List())
}

func TestInMemoryDirectory_InvalidInstall(t *testing.T) {
	d := NewInMemoryDirectory()
	assert.ErrorIs(t, d.Install(Package{UID: 1}), ErrInvalidPackage)
	assert.ErrorIs(t, d.Install(Package{Name: "x", UID: -1}), ErrInvalidPackage)
}

func TestInMemoryDirectory_ListOrder(t *testing.T) {
	d := NewInMemoryDirectory(
		Package{Name: "b", UID: 2},
		Package{Name: "a", UID: 2},
		Package{Name: "z", UID: 1},
	)
	assert.Equal(t, []Package{{"z", 1}, {"a", 2}, {"b", 2}}, d.List())
}
