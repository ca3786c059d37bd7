package trajectory

import (
	"fmt"
	"io"
	"os"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

// Schema is the column layout of exported trajectories. One row per
// sample; position and kinematics columns are null when absent.
var Schema = arrow.NewSchema([]arrow.Field{
	{Name: "logical_id", Type: arrow.BinaryTypes.String},
	{Name: "scene", Type: arrow.PrimitiveTypes.Int32},
	{Name: "timestamp", Type: arrow.PrimitiveTypes.Float64},
	{Name: "entity_id", Type: arrow.BinaryTypes.String},
	{Name: "x", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "y", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "vx", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "vy", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "speed", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "yaw", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
}, nil)

// Record builds a single Arrow record holding every sample of tracks.
// The caller releases it.
func Record(mem memory.Allocator, tracks []Track) arrow.Record {
	b := array.NewRecordBuilder(mem, Schema)
	defer b.Release()

	logical := b.Field(0).(*array.StringBuilder)
	scene := b.Field(1).(*array.Int32Builder)
	ts := b.Field(2).(*array.Float64Builder)
	entity := b.Field(3).(*array.StringBuilder)
	x := b.Field(4).(*array.Float64Builder)
	y := b.Field(5).(*array.Float64Builder)
	vx := b.Field(6).(*array.Float64Builder)
	vy := b.Field(7).(*array.Float64Builder)
	speed := b.Field(8).(*array.Float64Builder)
	yaw := b.Field(9).(*array.Float64Builder)

	for _, t := range tracks {
		for _, s := range t.Samples {
			logical.Append(t.LogicalID)
			scene.Append(int32(s.Scene))
			ts.Append(s.Timestamp)
			entity.Append(s.EntityID)
			if s.Placed {
				x.Append(s.Centroid[0])
				y.Append(s.Centroid[1])
			} else {
				x.AppendNull()
				y.AppendNull()
			}
			if s.HasVelocity {
				vx.Append(s.Velocity[0])
				vy.Append(s.Velocity[1])
				speed.Append(s.Speed)
				yaw.Append(s.Yaw)
			} else {
				vx.AppendNull()
				vy.AppendNull()
				speed.AppendNull()
				yaw.AppendNull()
			}
		}
	}
	return b.NewRecord()
}

// WriteArrow writes tracks to w in the Arrow IPC file format. The file
// footer is written by seeking back, so w must be seekable.
func WriteArrow(w io.WriteSeeker, tracks []Track) error {
	mem := memory.NewGoAllocator()
	rec := Record(mem, tracks)
	defer rec.Release()

	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(Schema), ipc.WithAllocator(mem))
	if err != nil {
		return fmt.Errorf("failed to create arrow writer: %w", err)
	}
	if err := fw.Write(rec); err != nil {
		fw.Close()
		return fmt.Errorf("failed to write trajectories: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("failed to finish arrow file: %w", err)
	}
	return nil
}

// WriteFile writes tracks to path.
func WriteFile(path string, tracks []Track) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := WriteArrow(f, tracks); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadFile reads the rows written by WriteFile back into tracks, grouped
// by logical id in first-seen order.
func ReadFile(path string) ([]Track, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := ipc.NewFileReader(f, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, fmt.Errorf("failed to open arrow file %s: %w", path, err)
	}
	defer r.Close()
	if !r.Schema().Equal(Schema) {
		return nil, fmt.Errorf("%s: unexpected schema %s", path, r.Schema())
	}

	var tracks []Track
	index := make(map[string]int)
	for i := 0; i < r.NumRecords(); i++ {
		rec, err := r.Record(i)
		if err != nil {
			return nil, fmt.Errorf("failed to read record %d of %s: %w", i, path, err)
		}
		cols := rec.Columns()
		logical := cols[0].(*array.String)
		scene := cols[1].(*array.Int32)
		ts := cols[2].(*array.Float64)
		entity := cols[3].(*array.String)
		x, y := cols[4].(*array.Float64), cols[5].(*array.Float64)
		vx, vy := cols[6].(*array.Float64), cols[7].(*array.Float64)
		speed, yaw := cols[8].(*array.Float64), cols[9].(*array.Float64)

		for row := 0; row < int(rec.NumRows()); row++ {
			s := Sample{
				Scene:     int(scene.Value(row)),
				Timestamp: ts.Value(row),
				EntityID:  entity.Value(row),
			}
			if !x.IsNull(row) {
				s.Placed = true
				s.Centroid = [2]float64{x.Value(row), y.Value(row)}
			}
			if !vx.IsNull(row) {
				s.HasVelocity = true
				s.Velocity = [2]float64{vx.Value(row), vy.Value(row)}
				s.Speed, s.Yaw = speed.Value(row), yaw.Value(row)
			}
			id := logical.Value(row)
			k, ok := index[id]
			if !ok {
				k = len(tracks)
				index[id] = k
				tracks = append(tracks, Track{LogicalID: id})
			}
			tracks[k].Samples = append(tracks[k].Samples, s)
		}
	}
	return tracks, nil
}
