package graph

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/rangesim/accel"
	"github.com/gekko3d/rangesim/core"
	"github.com/gekko3d/rangesim/gpu"
	"github.com/gekko3d/rangesim/scene"
)

var nonHit = float32(math.Inf(1))

// raytraceFields is the set of raw per-point fields the trace produces.
var raytraceFields = []core.Field{
	core.FieldXYZ,
	core.FieldIsHit,
	core.FieldDistance,
	core.FieldAzimuth,
	core.FieldElevation,
	core.FieldIntensity,
	core.FieldRayIdx,
}

// RaytraceNode traces one ray batch through the scene and produces the raw
// point-cloud fields. Acceleration structures are built or refitted up
// front; the trace itself is issued on the queue and runs asynchronously.
type RaytraceNode struct {
	baseNode
	input        RaysProvider
	defaultRange [2]float32
	fields       map[core.Field]*gpu.BufferPair
	width        int
}

func NewRaytraceNode() *RaytraceNode {
	return &RaytraceNode{
		baseNode:     baseNode{name: "raytrace"},
		defaultRange: [2]float32{0, float32(math.MaxFloat32)},
		fields:       make(map[core.Field]*gpu.BufferPair),
	}
}

// SetRange sets the fallback distance range, used when the ray source does
// not carry one.
func (n *RaytraceNode) SetRange(minRange, maxRange float32) {
	n.defaultRange = [2]float32{minRange, maxRange}
}

func (n *RaytraceNode) Validate() error {
	in, err := findInput[RaysProvider](&n.baseNode, "rays")
	if err != nil {
		return err
	}
	n.input = in
	return nil
}

type tracedInstance struct {
	inst scene.Instance
	tr   accel.Traversable
}

func (n *RaytraceNode) Schedule(ctx *ExecContext) error {
	if ctx.Scene == nil {
		return core.MissingInputf("%s: no scene attached to the execution context", n.name)
	}
	rays := n.input.Rays()
	minR, maxR := n.input.RayRange()
	if maxR <= minR {
		minR, maxR = n.defaultRange[0], n.defaultRange[1]
	}
	n.width = len(rays)

	for _, f := range raytraceFields {
		if n.fields[f] == nil {
			n.fields[f] = gpu.NewBufferPair(ctx.Device, n.name+"-"+f.String(), f.Size())
		}
		if err := n.fields[f].Resize(ctx.Queue, n.width, false, false); err != nil {
			return err
		}
	}
	if n.width == 0 {
		return nil
	}

	// Builds and refits happen now, synchronously; the backend declares
	// its own scratch needs per structure.
	instances := ctx.Scene.Instances()
	traced := make([]tracedInstance, 0, len(instances))
	for _, inst := range instances {
		tr, err := inst.Mesh.Accel().GAS(ctx.Queue)
		if err != nil {
			return err
		}
		traced = append(traced, tracedInstance{inst: inst, tr: tr})
	}

	backend := ctx.Scene.Backend()
	out := n.fields
	width := n.width
	ctx.Queue.Enqueue(func() error {
		return traceRays(backend, traced, rays, minR, maxR, width, out)
	})
	return nil
}

func traceRays(backend accel.Backend, traced []tracedInstance, rays []mgl32.Mat4,
	minR, maxR float32, width int, out map[core.Field]*gpu.BufferPair) error {

	xyz := make([]mgl32.Vec3, width)
	isHit := make([]int32, width)
	distance := make([]float32, width)
	azimuth := make([]float32, width)
	elevation := make([]float32, width)
	intensity := make([]float32, width)
	rayIdx := make([]uint32, width)

	for i, ray := range rays {
		origin := ray.Col(3).Vec3()
		dir := ray.Mul4x1(mgl32.Vec4{0, 0, 1, 0}).Vec3().Normalize()

		bestT := maxR
		var bestInst *tracedInstance
		var bestHit accel.Hit
		for t := range traced {
			ti := &traced[t]
			localOrigin := ti.inst.InvPose.Mul4x1(origin.Vec4(1)).Vec3()
			localDir := ti.inst.InvPose.Mul4x1(dir.Vec4(0)).Vec3()
			hit, ok := backend.Intersect(ti.tr, localOrigin, localDir, minR, bestT)
			if ok && hit.T < bestT {
				bestT = hit.T
				bestInst = ti
				bestHit = hit
			}
		}

		rayIdx[i] = uint32(i)
		if bestInst == nil {
			xyz[i] = mgl32.Vec3{nonHit, nonHit, nonHit}
			distance[i] = nonHit
			continue
		}
		p := origin.Add(dir.Mul(bestT))
		xyz[i] = p
		isHit[i] = 1
		distance[i] = bestT
		azimuth[i] = atan2f(p.X(), p.Z())
		elevation[i] = atan2f(p.Y(), hypotf(p.X(), p.Z()))
		intensity[i] = hitIntensity(bestInst.inst, bestHit)
	}

	if err := out[core.FieldXYZ].View().Buf.Write(0, gpu.Vec3sToBytes(xyz)); err != nil {
		return err
	}
	if err := out[core.FieldIsHit].View().Buf.Write(0, gpu.Int32sToBytes(isHit)); err != nil {
		return err
	}
	if err := out[core.FieldDistance].View().Buf.Write(0, gpu.Float32sToBytes(distance)); err != nil {
		return err
	}
	if err := out[core.FieldAzimuth].View().Buf.Write(0, gpu.Float32sToBytes(azimuth)); err != nil {
		return err
	}
	if err := out[core.FieldElevation].View().Buf.Write(0, gpu.Float32sToBytes(elevation)); err != nil {
		return err
	}
	if err := out[core.FieldIntensity].View().Buf.Write(0, gpu.Float32sToBytes(intensity)); err != nil {
		return err
	}
	return out[core.FieldRayIdx].View().Buf.Write(0, gpu.Uint32sToBytes(rayIdx))
}

// hitIntensity samples the entity's intensity texture at the hit, falling
// back to full intensity without one.
func hitIntensity(inst scene.Instance, hit accel.Hit) float32 {
	if inst.Texture == nil {
		return 1
	}
	uvs := inst.Mesh.TexCoords()
	if uvs == nil {
		return 1
	}
	tri, ok := inst.Mesh.Accel().Triangle(hit.Prim)
	if !ok {
		return 1
	}
	w := 1 - hit.U - hit.V
	uv := uvs[tri[0]].Mul(w).Add(uvs[tri[1]].Mul(hit.U)).Add(uvs[tri[2]].Mul(hit.V))
	return inst.Texture.Sample(uv.X(), uv.Y())
}

func (n *RaytraceNode) PointCount() int { return n.width }

func (n *RaytraceNode) Provides(f core.Field) bool {
	for _, have := range raytraceFields {
		if have == f {
			return true
		}
	}
	return false
}

func (n *RaytraceNode) FieldData(f core.Field) (gpu.FieldView, error) {
	buf, ok := n.fields[f]
	if !ok || !n.Provides(f) {
		return gpu.FieldView{}, core.MissingInputf("%s does not produce %s", n.name, f)
	}
	return buf.View(), nil
}

func atan2f(y, x float32) float32 { return float32(math.Atan2(float64(y), float64(x))) }
func hypotf(x, z float32) float32 { return float32(math.Hypot(float64(x), float64(z))) }
