// Package kbs reads and writes composite knowledge-base containers: an
// ordered set of per-scene ABox stores plus a manifest recording scene
// order, timestamps and the cross-scene identity map.
//
// A container file is a single JSON header line followed by a gzip
// compressed tar archive holding manifest.json and one N-Triples file per
// scene. The header carries the format version and a sha256 checksum of
// the compressed payload, so the version is known before anything else is
// read.
package kbs

import (
	"fmt"
	"time"

	"github.com/autoscene/autoscene/internal/store"
)

// FormatName identifies autoscene containers in the header line.
const FormatName = "autoscene-kbs"

// CurrentVersion is the container version written by this package and the
// only one it reads.
const CurrentVersion = 1

// MaxDecompressedSize is the maximum allowed size of a decompressed payload (512MB).
const MaxDecompressedSize = 512 * 1024 * 1024

// MaxCompressedSize is the default limit on the compressed payload read
// after the header line (128MB).
const MaxCompressedSize = 128 * 1024 * 1024

const manifestFile = "manifest.json"

// Header is the plain-text first line of a container file.
type Header struct {
	Format        string    `json:"format"`
	Version       int       `json:"version"`
	CreatedAt     time.Time `json:"created_at"`
	Checksum      string    `json:"checksum"`
	SceneCount    int       `json:"scene_count"`
	IdentityCount int       `json:"identity_count"`
	Compressed    bool      `json:"compressed"`
	Name          string    `json:"name,omitempty"`
}

// Manifest describes the archive contents.
type Manifest struct {
	Name       string       `json:"name,omitempty"`
	Scenes     []SceneEntry `json:"scenes"`
	Identities []Identity   `json:"identities"`
}

// SceneEntry records one scene of the archive.
type SceneEntry struct {
	Index       int     `json:"index"`
	Timestamp   float64 `json:"timestamp"`
	Label       string  `json:"label,omitempty"`
	File        string  `json:"file"`
	Individuals int     `json:"individuals"`
	Relations   int     `json:"relations"`
	SHA256      string  `json:"sha256"`
}

// Identity is one logical identity and its per-scene bindings, in scene
// order.
type Identity struct {
	LogicalID string    `json:"logical_id"`
	Bindings  []Binding `json:"bindings"`
}

// Binding ties a logical identity to an entity of one scene.
type Binding struct {
	Scene  int    `json:"scene"`
	Entity string `json:"entity"`
}

// Container is the decoded content of a container file.
type Container struct {
	Name       string
	Scenes     []SceneRecord
	Identities []Identity
}

// SceneRecord is one scene: its timestamp and store contents.
type SceneRecord struct {
	Timestamp float64
	Label     string
	Snapshot  *store.Snapshot
}

func sceneFile(index int) string {
	return fmt.Sprintf("scenes/scene_%04d.nt", index)
}

// UnsupportedFormatError is returned when a file is not a container of a
// version this package reads.
type UnsupportedFormatError struct {
	Format  string
	Version int
}

func (e *UnsupportedFormatError) Error() string {
	if e.Format != FormatName {
		return fmt.Sprintf("unsupported container format %q", e.Format)
	}
	return fmt.Sprintf("unsupported container version %d (supported: %d)", e.Version, CurrentVersion)
}

// DanglingIdentityError is returned when a logical identity is bound to an
// entity that does not exist in the referenced scene.
type DanglingIdentityError struct {
	LogicalID string
	Scene     int
	Entity    string
}

func (e *DanglingIdentityError) Error() string {
	return fmt.Sprintf("identity %q refers to missing entity %q in scene %d", e.LogicalID, e.Entity, e.Scene)
}

// CorruptContainerError is returned when container content is truncated,
// fails its checksum or is internally inconsistent.
type CorruptContainerError struct {
	Reason string
	Err    error
}

func (e *CorruptContainerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("corrupt container: %s: %v", e.Reason, e.Err)
	}
	return "corrupt container: " + e.Reason
}

func (e *CorruptContainerError) Unwrap() error { return e.Err }

func corrupt(err error, format string, args ...any) error {
	return &CorruptContainerError{Reason: fmt.Sprintf(format, args...), Err: err}
}

// validateIdentities checks that every binding refers to an entity of an
// existing scene and that no logical identity is bound twice in a scene.
func validateIdentities(scenes []SceneRecord, identities []Identity) error {
	seen := make(map[string]bool, len(identities))
	for _, id := range identities {
		if id.LogicalID == "" {
			return corrupt(nil, "identity with empty logical id")
		}
		if seen[id.LogicalID] {
			return corrupt(nil, "identity %q listed twice", id.LogicalID)
		}
		seen[id.LogicalID] = true

		bound := make(map[int]bool, len(id.Bindings))
		for _, b := range id.Bindings {
			if bound[b.Scene] {
				return corrupt(nil, "identity %q bound twice in scene %d", id.LogicalID, b.Scene)
			}
			bound[b.Scene] = true
			if b.Scene < 0 || b.Scene >= len(scenes) || scenes[b.Scene].Snapshot == nil {
				return &DanglingIdentityError{LogicalID: id.LogicalID, Scene: b.Scene, Entity: b.Entity}
			}
			if _, ok := scenes[b.Scene].Snapshot.Individual(b.Entity); !ok {
				return &DanglingIdentityError{LogicalID: id.LogicalID, Scene: b.Scene, Entity: b.Entity}
			}
		}
	}
	return nil
}
