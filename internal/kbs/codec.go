package kbs

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/autoscene/autoscene/internal/abox"
	"github.com/autoscene/autoscene/internal/observability"
	"github.com/autoscene/autoscene/internal/ontology"
	"github.com/autoscene/autoscene/internal/store"
)

// Codec encodes and decodes containers. The zero value is ready to use.
type Codec struct {
	// CompressionLevel is a compress/gzip level. Zero means
	// gzip.DefaultCompression.
	CompressionLevel int
	Metrics          *observability.Collector
	Logger           *slog.Logger
	// Now stamps new headers. Nil uses time.Now.
	Now func() time.Time
	// MaxPayloadSize caps the compressed payload Decode reads. Zero means
	// MaxCompressedSize.
	MaxPayloadSize int64
}

func (c *Codec) logger() *slog.Logger {
	if c == nil || c.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.Logger
}

func (c *Codec) maxPayload() int64 {
	if c == nil || c.MaxPayloadSize <= 0 {
		return MaxCompressedSize
	}
	return c.MaxPayloadSize
}

func (c *Codec) now() time.Time {
	if c == nil || c.Now == nil {
		return time.Now().UTC()
	}
	return c.Now().UTC()
}

// Encode writes ct to w. Identity bindings must refer to entities present
// in the corresponding scene snapshot.
func (c *Codec) Encode(ctx context.Context, w io.Writer, ct *Container) (err error) {
	ctx, span := observability.StartSpan(ctx, "kbs.Encode",
		attribute.String("container.name", ct.Name), attribute.Int("container.scenes", len(ct.Scenes)))
	start := time.Now()
	var n int64
	defer func() {
		span.SetAttributes(attribute.Int64("container.bytes", n))
		observability.EndSpan(span, err)
		c.metrics().ObserveContainer("encode", start, n, err)
	}()

	if err := validateIdentities(ct.Scenes, ct.Identities); err != nil {
		return err
	}
	n, err = c.encode(ctx, w, ct)
	return err
}

func (c *Codec) metrics() *observability.Collector {
	if c == nil {
		return nil
	}
	return c.Metrics
}

// encode writes ct without validating identities.
func (c *Codec) encode(ctx context.Context, w io.Writer, ct *Container) (int64, error) {
	createdAt := c.now()
	manifest := Manifest{
		Name:       ct.Name,
		Scenes:     make([]SceneEntry, 0, len(ct.Scenes)),
		Identities: ct.Identities,
	}
	if manifest.Identities == nil {
		manifest.Identities = []Identity{}
	}

	files := make([][]byte, len(ct.Scenes))
	for i, rec := range ct.Scenes {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		snap := &store.Snapshot{}
		if rec.Snapshot != nil {
			snap = &store.Snapshot{Individuals: rec.Snapshot.Individuals, Relations: rec.Snapshot.Relations}
		}
		name := sceneFile(i)
		var buf bytes.Buffer
		doc := &abox.Document{
			OntologyIRI: abox.OntologyIRIFor(name),
			Imports:     []string{ontology.ImportIRI},
			Snapshot:    snap,
		}
		if err := abox.Encode(&buf, doc); err != nil {
			return 0, fmt.Errorf("failed to encode scene %d: %w", i, err)
		}
		sum := sha256.Sum256(buf.Bytes())
		files[i] = buf.Bytes()
		manifest.Scenes = append(manifest.Scenes, SceneEntry{
			Index:       i,
			Timestamp:   rec.Timestamp,
			Label:       rec.Label,
			File:        name,
			Individuals: len(snap.Individuals),
			Relations:   len(snap.Relations),
			SHA256:      hex.EncodeToString(sum[:]),
		})
	}

	manifestBytes, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("marshaling manifest: %w", err)
	}

	level := 0
	if c != nil {
		level = c.CompressionLevel
	}
	if level == 0 {
		level = gzip.DefaultCompression
	}
	var compressed bytes.Buffer
	gzw, err := gzip.NewWriterLevel(&compressed, level)
	if err != nil {
		return 0, fmt.Errorf("creating gzip writer: %w", err)
	}
	tw := tar.NewWriter(gzw)
	add := func(name string, data []byte) error {
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(data)), ModTime: createdAt}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("writing %s header: %w", name, err)
		}
		if _, err := tw.Write(data); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
		return nil
	}
	if err := add(manifestFile, manifestBytes); err != nil {
		return 0, err
	}
	for i, data := range files {
		if err := add(sceneFile(i), data); err != nil {
			return 0, err
		}
	}
	if err := tw.Close(); err != nil {
		return 0, fmt.Errorf("closing archive: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return 0, fmt.Errorf("closing gzip writer: %w", err)
	}

	hash := sha256.Sum256(compressed.Bytes())
	header := Header{
		Format:        FormatName,
		Version:       CurrentVersion,
		CreatedAt:     createdAt,
		Checksum:      "sha256:" + hex.EncodeToString(hash[:]),
		SceneCount:    len(ct.Scenes),
		IdentityCount: len(manifest.Identities),
		Compressed:    true,
		Name:          ct.Name,
	}
	headerBytes, err := json.Marshal(header)
	if err != nil {
		return 0, fmt.Errorf("marshaling header: %w", err)
	}

	bw := bufio.NewWriter(w)
	bw.Write(headerBytes)
	bw.WriteByte('\n')
	bw.Write(compressed.Bytes())
	if err := bw.Flush(); err != nil {
		return 0, fmt.Errorf("writing container: %w", err)
	}

	c.logger().Debug("container encoded",
		"scenes", header.SceneCount, "identities", header.IdentityCount, "bytes", compressed.Len())
	return int64(len(headerBytes) + 1 + compressed.Len()), nil
}

// Decode reads a container from r. It either returns a fully populated
// container or an error; the version is checked before the payload is
// touched.
func (c *Codec) Decode(ctx context.Context, r io.Reader) (ct *Container, err error) {
	ctx, span := observability.StartSpan(ctx, "kbs.Decode")
	start := time.Now()
	var n int64
	defer func() {
		span.SetAttributes(attribute.Int64("container.bytes", n))
		if ct != nil {
			span.SetAttributes(attribute.Int("container.scenes", len(ct.Scenes)))
		}
		observability.EndSpan(span, err)
		c.metrics().ObserveContainer("decode", start, n, err)
	}()

	reader := bufio.NewReader(r)
	header, err := readHeader(reader)
	if err != nil {
		return nil, err
	}

	limit := c.maxPayload()
	payload, err := io.ReadAll(io.LimitReader(reader, limit+1))
	if err != nil {
		return nil, corrupt(err, "reading payload")
	}
	n = int64(len(payload))
	if n > limit {
		return nil, corrupt(nil, "compressed payload exceeds maximum size of %d bytes", limit)
	}
	hash := sha256.Sum256(payload)
	if actual := "sha256:" + hex.EncodeToString(hash[:]); actual != header.Checksum {
		return nil, corrupt(nil, "checksum mismatch: expected %s, got %s", header.Checksum, actual)
	}

	files, err := unpack(payload)
	if err != nil {
		return nil, err
	}

	raw, ok := files[manifestFile]
	if !ok {
		return nil, corrupt(nil, "missing %s", manifestFile)
	}
	var manifest Manifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return nil, corrupt(err, "parsing manifest")
	}
	if len(manifest.Scenes) != header.SceneCount {
		return nil, corrupt(nil, "header lists %d scenes, manifest %d", header.SceneCount, len(manifest.Scenes))
	}

	out := &Container{
		Name:       manifest.Name,
		Scenes:     make([]SceneRecord, 0, len(manifest.Scenes)),
		Identities: manifest.Identities,
	}
	for i, entry := range manifest.Scenes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := decodeScene(i, entry, files)
		if err != nil {
			return nil, err
		}
		if i > 0 && rec.Timestamp < out.Scenes[i-1].Timestamp {
			return nil, corrupt(nil, "scene %d timestamp %g precedes scene %d", i, rec.Timestamp, i-1)
		}
		out.Scenes = append(out.Scenes, rec)
	}
	if err := validateIdentities(out.Scenes, out.Identities); err != nil {
		return nil, err
	}

	c.logger().Debug("container decoded",
		"name", out.Name, "scenes", len(out.Scenes), "identities", len(out.Identities))
	return out, nil
}

func decodeScene(i int, entry SceneEntry, files map[string][]byte) (SceneRecord, error) {
	if entry.Index != i {
		return SceneRecord{}, corrupt(nil, "manifest entry %d has index %d", i, entry.Index)
	}
	data, ok := files[entry.File]
	if !ok {
		return SceneRecord{}, corrupt(nil, "missing scene file %s", entry.File)
	}
	sum := sha256.Sum256(data)
	if hex.EncodeToString(sum[:]) != entry.SHA256 {
		return SceneRecord{}, corrupt(nil, "scene file %s checksum mismatch", entry.File)
	}
	doc, err := abox.Decode(bytes.NewReader(data))
	if err != nil {
		return SceneRecord{}, corrupt(err, "decoding %s", entry.File)
	}
	snap := doc.Snapshot
	if len(snap.Individuals) != entry.Individuals || len(snap.Relations) != entry.Relations {
		return SceneRecord{}, corrupt(nil, "scene %d has %d individuals and %d relations, manifest says %d and %d",
			i, len(snap.Individuals), len(snap.Relations), entry.Individuals, entry.Relations)
	}
	return SceneRecord{Timestamp: entry.Timestamp, Label: entry.Label, Snapshot: snap}, nil
}

// unpack decompresses the payload and returns the archive members by name.
func unpack(payload []byte) (map[string][]byte, error) {
	gzr, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, corrupt(err, "creating gzip reader")
	}
	defer gzr.Close()

	limited := &io.LimitedReader{R: gzr, N: MaxDecompressedSize + 1}
	tr := tar.NewReader(limited)
	files := make(map[string][]byte)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, corrupt(err, "reading archive")
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if _, dup := files[hdr.Name]; dup {
			return nil, corrupt(nil, "duplicate archive member %s", hdr.Name)
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, corrupt(err, "reading %s", hdr.Name)
		}
		if limited.N <= 0 {
			return nil, corrupt(nil, "decompressed payload exceeds maximum size of %d bytes", MaxDecompressedSize)
		}
		files[hdr.Name] = data
	}
	return files, nil
}

// readHeader parses the header line and checks format and version.
func readHeader(r *bufio.Reader) (*Header, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(bytes.TrimSpace(line)) == 0 {
			return nil, corrupt(nil, "file is empty")
		}
		if !errors.Is(err, io.EOF) {
			return nil, corrupt(err, "reading header line")
		}
	}
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] != '{' {
		return nil, &UnsupportedFormatError{}
	}
	var header Header
	if err := json.Unmarshal(line, &header); err != nil {
		return nil, corrupt(err, "parsing header")
	}
	if header.Format != FormatName || header.Version != CurrentVersion {
		return nil, &UnsupportedFormatError{Format: header.Format, Version: header.Version}
	}
	return &header, nil
}
