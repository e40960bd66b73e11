package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/Masterminds/semver/v3"
	"github.com/fxamacker/cbor/v2"
	"github.com/gowebpki/jcs"

	"github.com/Mindburn-Labs/appops/pkg/registry"
)

var (
	// ErrCorruptSnapshot means persisted state could not be decoded or
	// failed its integrity check.
	ErrCorruptSnapshot = errors.New("corrupt mode snapshot")
	// ErrIncompatibleSnapshot means persisted state was written by an
	// incompatible schema version.
	ErrIncompatibleSnapshot = errors.New("incompatible mode snapshot")
)

const (
	// SnapshotVersion is the schema version written by this build.
	SnapshotVersion = "1.0.0"
	snapshotFormat  = "appops.modes"
	// Any 1.x snapshot can be read.
	snapshotConstraint = "^1"
)

// UIDEntry is a persisted uid-level mode.
type UIDEntry struct {
	Op   string        `json:"op" cbor:"op"`
	UID  int           `json:"uid" cbor:"uid"`
	Mode registry.Mode `json:"mode" cbor:"mode"`
}

// PackageEntry is a persisted package-level mode.
type PackageEntry struct {
	Op      string        `json:"op" cbor:"op"`
	UID     int           `json:"uid" cbor:"uid"`
	Package string        `json:"package" cbor:"package"`
	Mode    registry.Mode `json:"mode" cbor:"mode"`
}

// Snapshot is the persistent form of a ModeTable. Modes are keyed by op name
// so a snapshot survives catalog code reassignment.
type Snapshot struct {
	Version      string         `json:"version" cbor:"version"`
	UIDModes     []UIDEntry     `json:"uid_modes" cbor:"uid_modes"`
	PackageModes []PackageEntry `json:"package_modes" cbor:"package_modes"`
}

// NewSnapshot returns an empty snapshot at the current schema version.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Version:      SnapshotVersion,
		UIDModes:     []UIDEntry{},
		PackageModes: []PackageEntry{},
	}
}

func (s *Snapshot) sort() {
	sort.Slice(s.UIDModes, func(i, j int) bool {
		a, b := s.UIDModes[i], s.UIDModes[j]
		if a.Op != b.Op {
			return a.Op < b.Op
		}
		return a.UID < b.UID
	})
	sort.Slice(s.PackageModes, func(i, j int) bool {
		a, b := s.PackageModes[i], s.PackageModes[j]
		if a.Op != b.Op {
			return a.Op < b.Op
		}
		if a.UID != b.UID {
			return a.UID < b.UID
		}
		return a.Package < b.Package
	})
}

// Digest returns the sha256 of the snapshot's RFC 8785 canonical JSON.
func (s *Snapshot) Digest() (string, error) {
	norm := *s
	if norm.UIDModes == nil {
		norm.UIDModes = []UIDEntry{}
	}
	if norm.PackageModes == nil {
		norm.PackageModes = []PackageEntry{}
	}
	raw, err := json.Marshal(norm)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize snapshot: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

// envelope is the on-disk framing around a snapshot.
type envelope struct {
	Format   string    `cbor:"format"`
	Digest   string    `cbor:"digest"`
	Snapshot *Snapshot `cbor:"snapshot"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("store: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("store: CBOR decoder initialization failed: " + err.Error())
	}
}

// EncodeSnapshot frames snap with its digest and encodes it as
// deterministic CBOR.
func EncodeSnapshot(snap *Snapshot) ([]byte, error) {
	digest, err := snap.Digest()
	if err != nil {
		return nil, err
	}
	data, err := encMode.Marshal(envelope{Format: snapshotFormat, Digest: digest, Snapshot: snap})
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot decodes and verifies an encoded snapshot.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var env envelope
	if err := decMode.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if env.Format != snapshotFormat || env.Snapshot == nil {
		return nil, fmt.Errorf("%w: unexpected format %q", ErrCorruptSnapshot, env.Format)
	}
	if err := checkVersion(env.Snapshot.Version); err != nil {
		return nil, err
	}

	digest, err := env.Snapshot.Digest()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if digest != env.Digest {
		return nil, fmt.Errorf("%w: digest mismatch", ErrCorruptSnapshot)
	}
	if env.Snapshot.UIDModes == nil {
		env.Snapshot.UIDModes = []UIDEntry{}
	}
	if env.Snapshot.PackageModes == nil {
		env.Snapshot.PackageModes = []PackageEntry{}
	}
	return env.Snapshot, nil
}

func checkVersion(version string) error {
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("%w: version %q: %v", ErrIncompatibleSnapshot, version, err)
	}
	c, err := semver.NewConstraint(snapshotConstraint)
	if err != nil {
		return fmt.Errorf("snapshot constraint: %w", err)
	}
	if !c.Check(v) {
		return fmt.Errorf("%w: version %s does not satisfy %s", ErrIncompatibleSnapshot, version, snapshotConstraint)
	}
	return nil
}
