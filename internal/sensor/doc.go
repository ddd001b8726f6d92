// Package sensor decodes device sensor streams into typed samples.
//
// Fixed-point axes arrive as little-endian int16 values multiplied by a
// per-type scalar. Timestamps arrive as a wrapping 16-bit millisecond counter
// and are rebuilt against the local clock. Pressure frames keep running
// ranges per cell, for the frame sum and for the center of pressure, and
// PairFusion combines left and right frames into one shared plane.
package sensor
