package core

import "fmt"

// Field identifies one per-point attribute column of a point cloud.
// Every field a node produces has exactly as many elements as the node's
// current point count.
type Field int

const (
	FieldXYZ        Field = iota // hit position, 3x float32, sensor frame
	FieldIsHit                   // int32, 1 = hit, 0 = miss
	FieldDistance                // float32, meters
	FieldAzimuth                 // float32, radians
	FieldElevation               // float32, radians
	FieldIntensity               // float32, [0, 1]
	FieldRayIdx                  // uint32, index of the originating ray
	FieldRingID                  // uint16, laser ring of the originating ray
	FieldTimeOffset              // float32, seconds relative to scene time
	FieldPadding8                // layout-only, never written
	FieldPadding16
	FieldPadding32
)

var fieldSizes = map[Field]int{
	FieldXYZ:        12,
	FieldIsHit:      4,
	FieldDistance:   4,
	FieldAzimuth:    4,
	FieldElevation:  4,
	FieldIntensity:  4,
	FieldRayIdx:     4,
	FieldRingID:     2,
	FieldTimeOffset: 4,
	FieldPadding8:   1,
	FieldPadding16:  2,
	FieldPadding32:  4,
}

var fieldNames = map[Field]string{
	FieldXYZ:        "XYZ",
	FieldIsHit:      "IS_HIT",
	FieldDistance:   "DISTANCE",
	FieldAzimuth:    "AZIMUTH",
	FieldElevation:  "ELEVATION",
	FieldIntensity:  "INTENSITY",
	FieldRayIdx:     "RAY_IDX",
	FieldRingID:     "RING_ID",
	FieldTimeOffset: "TIME_OFFSET",
	FieldPadding8:   "PADDING_8",
	FieldPadding16:  "PADDING_16",
	FieldPadding32:  "PADDING_32",
}

// Size returns the per-element byte size of the field.
func (f Field) Size() int {
	if s, ok := fieldSizes[f]; ok {
		return s
	}
	return 0
}

// IsPadding reports whether the field only contributes offset in a packed
// layout and carries no data.
func (f Field) IsPadding() bool {
	return f == FieldPadding8 || f == FieldPadding16 || f == FieldPadding32
}

func (f Field) String() string {
	if n, ok := fieldNames[f]; ok {
		return n
	}
	return fmt.Sprintf("Field(%d)", int(f))
}
