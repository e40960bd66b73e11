package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/appops/pkg/config"
)

const sampleProfile = `
packages:
  - name: com.example.camera
    uid: 10050
  - name: com.example.maps
    uid: 10051
restrictions:
  - name: no-camera-for-maps
    expr: pkg == "com.example.maps" && op == "android:camera"
modes:
  - op: android:camera
    uid: 10050
    package: com.example.camera
    mode: allow
  - op: android:fine_location
    uid: 10051
    mode: ignore
`

func writeProfile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "device.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDeviceProfile(t *testing.T) {
	p, err := config.LoadDeviceProfile(writeProfile(t, sampleProfile))
	require.NoError(t, err)

	require.Len(t, p.Packages, 2)
	assert.Equal(t, config.PackageSpec{Name: "com.example.camera", UID: 10050}, p.Packages[0])

	require.Len(t, p.Restrictions, 1)
	assert.Equal(t, "no-camera-for-maps", p.Restrictions[0].Name)

	require.Len(t, p.Modes, 2)
	assert.Equal(t, "com.example.camera", p.Modes[0].Package)
	assert.Equal(t, "allow", p.Modes[0].Mode)
	assert.Empty(t, p.Modes[1].Package)
}

func TestLoadDeviceProfile_Missing(t *testing.T) {
	_, err := config.LoadDeviceProfile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestParseDeviceProfile_Empty(t *testing.T) {
	p, err := config.ParseDeviceProfile([]byte(""))
	require.NoError(t, err)
	assert.Empty(t, p.Packages)
}

func TestParseDeviceProfile_SchemaViolations(t *testing.T) {
	cases := map[string]string{
		"unknown mode":      "modes:\n  - {op: 'android:camera', uid: 1, mode: sometimes}\n",
		"negative uid":      "packages:\n  - {name: a, uid: -4}\n",
		"missing expr":      "restrictions:\n  - {name: r}\n",
		"unknown top level": "wallpaper: blue\n",
		"uid as string":     "packages:\n  - {name: a, uid: ten}\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.ParseDeviceProfile([]byte(body))
			assert.Error(t, err)
		})
	}
}

func TestParseDeviceProfile_BadYAML(t *testing.T) {
	_, err := config.ParseDeviceProfile([]byte("packages: [\n"))
	assert.Error(t, err)
}
