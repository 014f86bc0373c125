package export

import (
	"fmt"
	"io"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/prospectsim/prospect/internal/survey"
)

// RecordSchema is the Arrow schema of the run log table.
var RecordSchema = arrow.NewSchema([]arrow.Field{
	{Name: "run_id", Type: arrow.PrimitiveTypes.Int64},
	{Name: "feature_id", Type: arrow.PrimitiveTypes.Int64},
	{Name: "feature", Type: arrow.BinaryTypes.String},
	{Name: "layer", Type: arrow.BinaryTypes.String},
	{Name: "discovered", Type: arrow.FixedWidthTypes.Boolean},
	{Name: "unit_id", Type: arrow.PrimitiveTypes.Int64},
	{Name: "unit", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "surveyor", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "probability", Type: arrow.PrimitiveTypes.Float64},
	{Name: "available", Type: arrow.FixedWidthTypes.Boolean},
}, nil)

// UnitTimeSchema is the Arrow schema of the per-unit time table.
var UnitTimeSchema = arrow.NewSchema([]arrow.Field{
	{Name: "run_id", Type: arrow.PrimitiveTypes.Int64},
	{Name: "unit_id", Type: arrow.PrimitiveTypes.Int64},
	{Name: "unit", Type: arrow.BinaryTypes.String},
	{Name: "surveyor", Type: arrow.BinaryTypes.String},
	{Name: "base_time", Type: arrow.PrimitiveTypes.Float64},
	{Name: "penalty_time", Type: arrow.PrimitiveTypes.Float64},
	{Name: "total_time", Type: arrow.PrimitiveTypes.Float64},
}, nil)

// WriteRecordsArrow writes the run log as a single-batch Arrow IPC file.
// The file footer is written last, so w must be seekable.
func WriteRecordsArrow(w io.WriteSeeker, records []survey.Record) error {
	mem := memory.NewGoAllocator()
	b := array.NewRecordBuilder(mem, RecordSchema)
	defer b.Release()

	runID := b.Field(0).(*array.Int64Builder)
	featureID := b.Field(1).(*array.Int64Builder)
	name := b.Field(2).(*array.StringBuilder)
	layer := b.Field(3).(*array.StringBuilder)
	discovered := b.Field(4).(*array.BooleanBuilder)
	unitID := b.Field(5).(*array.Int64Builder)
	unit := b.Field(6).(*array.StringBuilder)
	surveyor := b.Field(7).(*array.StringBuilder)
	prob := b.Field(8).(*array.Float64Builder)
	available := b.Field(9).(*array.BooleanBuilder)

	for _, r := range records {
		runID.Append(int64(r.RunID))
		featureID.Append(int64(r.FeatureID))
		name.Append(r.Feature)
		layer.Append(r.Layer)
		discovered.Append(r.Discovered)
		unitID.Append(int64(r.UnitID))
		appendOptional(unit, r.Unit)
		appendOptional(surveyor, r.Surveyor)
		prob.Append(r.Probability)
		available.Append(r.Available)
	}
	return writeIPC(w, mem, RecordSchema, b)
}

// WriteUnitTimesArrow writes per-unit search times as a single-batch Arrow IPC file.
func WriteUnitTimesArrow(w io.WriteSeeker, times []survey.UnitTime) error {
	mem := memory.NewGoAllocator()
	b := array.NewRecordBuilder(mem, UnitTimeSchema)
	defer b.Release()

	runID := b.Field(0).(*array.Int64Builder)
	unitID := b.Field(1).(*array.Int64Builder)
	unit := b.Field(2).(*array.StringBuilder)
	surveyor := b.Field(3).(*array.StringBuilder)
	base := b.Field(4).(*array.Float64Builder)
	penalty := b.Field(5).(*array.Float64Builder)
	total := b.Field(6).(*array.Float64Builder)

	for _, t := range times {
		runID.Append(int64(t.RunID))
		unitID.Append(int64(t.UnitID))
		unit.Append(t.Unit)
		surveyor.Append(t.Surveyor)
		base.Append(t.BaseTime)
		penalty.Append(t.PenaltyTime)
		total.Append(t.TotalTime)
	}
	return writeIPC(w, mem, UnitTimeSchema, b)
}

func appendOptional(b *array.StringBuilder, v string) {
	if v == "" {
		b.AppendNull()
		return
	}
	b.Append(v)
}

func writeIPC(w io.WriteSeeker, mem memory.Allocator, schema *arrow.Schema, b *array.RecordBuilder) error {
	rec := b.NewRecord()
	defer rec.Release()

	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	if err != nil {
		return fmt.Errorf("creating arrow writer: %w", err)
	}
	if err := fw.Write(rec); err != nil {
		fw.Close()
		return fmt.Errorf("writing arrow record: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("closing arrow writer: %w", err)
	}
	return nil
}
