package gpu

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Byte-level converters for the little-endian device layouts.

func Float32sToBytes(v []float32) []byte {
	out := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}

func BytesToFloat32s(p []byte) []float32 {
	out := make([]float32, len(p)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(p[i*4:]))
	}
	return out
}

func Uint32sToBytes(v []uint32) []byte {
	out := make([]byte, 4*len(v))
	for i, u := range v {
		binary.LittleEndian.PutUint32(out[i*4:], u)
	}
	return out
}

func BytesToUint32s(p []byte) []uint32 {
	out := make([]uint32, len(p)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(p[i*4:])
	}
	return out
}

func Int32sToBytes(v []int32) []byte {
	out := make([]byte, 4*len(v))
	for i, n := range v {
		binary.LittleEndian.PutUint32(out[i*4:], uint32(n))
	}
	return out
}

func Vec3sToBytes(v []mgl32.Vec3) []byte {
	out := make([]byte, 12*len(v))
	for i, p := range v {
		binary.LittleEndian.PutUint32(out[i*12:], math.Float32bits(p.X()))
		binary.LittleEndian.PutUint32(out[i*12+4:], math.Float32bits(p.Y()))
		binary.LittleEndian.PutUint32(out[i*12+8:], math.Float32bits(p.Z()))
	}
	return out
}

func BytesToVec3s(p []byte) []mgl32.Vec3 {
	out := make([]mgl32.Vec3, len(p)/12)
	for i := range out {
		out[i] = mgl32.Vec3{
			math.Float32frombits(binary.LittleEndian.Uint32(p[i*12:])),
			math.Float32frombits(binary.LittleEndian.Uint32(p[i*12+4:])),
			math.Float32frombits(binary.LittleEndian.Uint32(p[i*12+8:])),
		}
	}
	return out
}
