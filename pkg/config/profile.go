package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/Mindburn-Labs/appops/pkg/authz"
)

const deviceProfileSchemaURL = "https://appops.mindburn.org/schemas/device_profile.schema.json"

//go:embed device_profile.schema.json
var deviceProfileSchema string

// DeviceProfile seeds a fresh engine: the installed packages, restriction
// rules and initial modes.
type DeviceProfile struct {
	Packages     []PackageSpec  `yaml:"packages" json:"packages"`
	Restrictions []authz.Rule   `yaml:"restrictions" json:"restrictions"`
	Modes        []ModeOverride `yaml:"modes" json:"modes"`
}

// PackageSpec is one installed package.
type PackageSpec struct {
	Name string `yaml:"name" json:"name"`
	UID  int    `yaml:"uid" json:"uid"`
}

// ModeOverride sets the mode of Op. An empty Package means a uid-level mode.
type ModeOverride struct {
	Op      string `yaml:"op" json:"op"`
	UID     int    `yaml:"uid" json:"uid"`
	Package string `yaml:"package,omitempty" json:"package,omitempty"`
	Mode    string `yaml:"mode" json:"mode"`
}

// LoadDeviceProfile reads and validates the YAML device profile at path.
func LoadDeviceProfile(path string) (*DeviceProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read device profile: %w", err)
	}
	p, err := ParseDeviceProfile(data)
	if err != nil {
		return nil, fmt.Errorf("device profile %s: %w", path, err)
	}
	return p, nil
}

// ParseDeviceProfile decodes a YAML device profile and validates it against
// the embedded schema.
func ParseDeviceProfile(data []byte) (*DeviceProfile, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if doc == nil {
		return &DeviceProfile{}, nil
	}

	// The validator works on JSON values, so round-trip through encoding/json.
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}

	schema, err := compileDeviceProfileSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(instance); err != nil {
		return nil, fmt.Errorf("invalid device profile: %w", err)
	}

	var p DeviceProfile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &p, nil
}

func compileDeviceProfileSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(deviceProfileSchemaURL, strings.NewReader(deviceProfileSchema)); err != nil {
		return nil, fmt.Errorf("invalid device profile schema: %w", err)
	}
	s, err := c.Compile(deviceProfileSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile device profile schema: %w", err)
	}
	return s, nil
}
