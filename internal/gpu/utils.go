package gpu

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"
)

// Float64ToFloat32 converts a slice of float64 to float32
func Float64ToFloat32(input []float64) []float32 {
	output := make([]float32, len(input))
	for i, v := range input {
		output[i] = float32(v)
	}
	return output
}

// Float32ToFloat64 converts a slice of float32 to float64
func Float32ToFloat64(input []float32) []float64 {
	output := make([]float64, len(input))
	for i, v := range input {
		output[i] = float64(v)
	}
	return output
}

// Float32Bytes packs values as little-endian IEEE 754 single precision, the layout kernels read.
func Float32Bytes(values []float32) []byte {
	out := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v))
	}
	return out
}

// BytesToFloat32 unpacks little-endian single precision values.
func BytesToFloat32(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("buffer size %d is not a multiple of 4", len(data))
	}
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return out, nil
}

// Float64Bytes packs values as little-endian double precision.
func Float64Bytes(values []float64) []byte {
	out := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(out[8*i:], math.Float64bits(v))
	}
	return out
}

// BytesToFloat64 unpacks little-endian double precision values.
func BytesToFloat64(data []byte) ([]float64, error) {
	if len(data)%8 != 0 {
		return nil, fmt.Errorf("buffer size %d is not a multiple of 8", len(data))
	}
	out := make([]float64, len(data)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[8*i:]))
	}
	return out, nil
}

// HalfBytes packs values as little-endian IEEE 754 half precision (cl half).
func HalfBytes(values []float32) []byte {
	out := make([]byte, 2*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint16(out[2*i:], float16.Fromfloat32(v).Bits())
	}
	return out
}

// BytesToHalf unpacks little-endian half precision values into float32.
func BytesToHalf(data []byte) ([]float32, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("buffer size %d is not a multiple of 2", len(data))
	}
	out := make([]float32, len(data)/2)
	for i := range out {
		out[i] = float16.Frombits(binary.LittleEndian.Uint16(data[2*i:])).Float32()
	}
	return out, nil
}

// RealSize is the byte width of a kernel real, double when the kernels are
// built with -DGGEMS_DOUBLE_PRECISION and float otherwise.
func RealSize(doublePrecision bool) uint64 {
	if doublePrecision {
		return 8
	}
	return 4
}

// RealBytes packs values with the precision the kernels were built for.
func RealBytes(values []float64, doublePrecision bool) []byte {
	if doublePrecision {
		return Float64Bytes(values)
	}
	return Float32Bytes(Float64ToFloat32(values))
}

// RealValues unpacks data written with RealBytes.
func RealValues(data []byte, doublePrecision bool) ([]float64, error) {
	if doublePrecision {
		return BytesToFloat64(data)
	}
	values, err := BytesToFloat32(data)
	if err != nil {
		return nil, err
	}
	return Float32ToFloat64(values), nil
}
