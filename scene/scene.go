// Package scene tracks the geometry the ray tracing backend traces
// against: meshes owning acceleration resources, and posed entities
// referencing them through generation-tagged handles.
package scene

import (
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"github.com/gekko3d/rangesim/accel"
	"github.com/gekko3d/rangesim/core"
	"github.com/gekko3d/rangesim/gpu"
)

// Mesh couples geometry with its acceleration resource. Vertex-only
// updates flow through the resource's refit path.
type Mesh struct {
	accel       *accel.GeometryAccel
	texCoords   []mgl32.Vec2
	vertexCount int
}

// Accel exposes the mesh's acceleration resource.
func (m *Mesh) Accel() *accel.GeometryAccel { return m.accel }

// TexCoords returns the per-vertex texture coordinates, nil if unset.
func (m *Mesh) TexCoords() []mgl32.Vec2 { return m.texCoords }

// Entity is one posed mesh instance.
type Entity struct {
	UUID    uuid.UUID
	Mesh    core.Handle
	Pose    mgl32.Mat4
	invPose mgl32.Mat4
	ID      int32
	Texture *Texture
}

// Instance is a borrowed snapshot of one entity, handed to the raytrace
// stage.
type Instance struct {
	Mesh    *Mesh
	Pose    mgl32.Mat4
	InvPose mgl32.Mat4
	ID      int32
	Texture *Texture
}

type Scene struct {
	dev     gpu.Device
	backend accel.Backend
	log     core.Logger

	meshes   core.Arena[*Mesh]
	entities core.Arena[*Entity]
	time     time.Duration
}

func NewScene(dev gpu.Device, backend accel.Backend, log core.Logger) *Scene {
	return &Scene{dev: dev, backend: backend, log: core.OrNop(log)}
}

// Backend exposes the ray tracing backend the scene's meshes build
// against.
func (s *Scene) Backend() accel.Backend { return s.backend }

// CreateMesh builds a mesh from vertices and triangle indices and submits
// its geometry to a fresh acceleration resource.
func (s *Scene) CreateMesh(q *gpu.Queue, vertices []mgl32.Vec3, indices []uint32) (core.Handle, error) {
	if len(vertices) == 0 || len(indices) == 0 {
		return core.Handle{}, core.MissingInputf("mesh: empty geometry")
	}
	ga := accel.NewGeometryAccel(s.dev, s.backend, s.log)
	if err := ga.SetIndices(q, indices); err != nil {
		ga.Release()
		return core.Handle{}, err
	}
	if err := ga.SetVertices(q, vertices); err != nil {
		ga.Release()
		return core.Handle{}, err
	}
	m := &Mesh{accel: ga, vertexCount: len(vertices)}
	s.log.Debugf("scene: mesh created, %d vertices, %d triangles", len(vertices), len(indices)/3)
	return s.meshes.Insert(m), nil
}

// UpdateMeshVertices replaces the vertex data of an existing mesh. With an
// unchanged vertex count this marks the structure for an in-place update
// rather than a rebuild.
func (s *Scene) UpdateMeshVertices(q *gpu.Queue, h core.Handle, vertices []mgl32.Vec3) error {
	m, ok := s.meshes.Get(h)
	if !ok {
		return core.InvalidPipelinef("stale mesh handle")
	}
	if err := m.accel.SetVertices(q, vertices); err != nil {
		return err
	}
	m.vertexCount = len(vertices)
	return nil
}

// SetMeshTexCoords attaches per-vertex texture coordinates used for
// intensity lookup.
func (s *Scene) SetMeshTexCoords(h core.Handle, uv []mgl32.Vec2) error {
	m, ok := s.meshes.Get(h)
	if !ok {
		return core.InvalidPipelinef("stale mesh handle")
	}
	if len(uv) != m.vertexCount {
		return core.InvalidPipelinef("mesh has %d vertices, got %d texture coordinates", m.vertexCount, len(uv))
	}
	m.texCoords = uv
	return nil
}

func (s *Scene) DestroyMesh(h core.Handle) bool {
	if m, ok := s.meshes.Get(h); ok {
		m.accel.Release()
	}
	return s.meshes.Remove(h)
}

// CreateEntity instantiates a mesh with an identity pose.
func (s *Scene) CreateEntity(mesh core.Handle) (core.Handle, error) {
	if _, ok := s.meshes.Get(mesh); !ok {
		return core.Handle{}, core.InvalidPipelinef("stale mesh handle")
	}
	e := &Entity{
		UUID:    uuid.New(),
		Mesh:    mesh,
		Pose:    mgl32.Ident4(),
		invPose: mgl32.Ident4(),
	}
	return s.entities.Insert(e), nil
}

func (s *Scene) SetEntityPose(h core.Handle, pose mgl32.Mat4) error {
	e, ok := s.entities.Get(h)
	if !ok {
		return core.InvalidPipelinef("stale entity handle")
	}
	e.Pose = pose
	e.invPose = pose.Inv()
	return nil
}

func (s *Scene) SetEntityID(h core.Handle, id int32) error {
	e, ok := s.entities.Get(h)
	if !ok {
		return core.InvalidPipelinef("stale entity handle")
	}
	e.ID = id
	return nil
}

// SetEntityTexture attaches an intensity texture sampled at hit points.
func (s *Scene) SetEntityTexture(h core.Handle, t *Texture) error {
	e, ok := s.entities.Get(h)
	if !ok {
		return core.InvalidPipelinef("stale entity handle")
	}
	e.Texture = t
	return nil
}

func (s *Scene) DestroyEntity(h core.Handle) bool {
	return s.entities.Remove(h)
}

// SetTime stamps the scene; per-point time offsets are relative to it.
func (s *Scene) SetTime(t time.Duration) { s.time = t }

func (s *Scene) Time() time.Duration { return s.time }

// Instances snapshots all live entities for one trace.
func (s *Scene) Instances() []Instance {
	out := make([]Instance, 0, s.entities.Len())
	s.entities.Each(func(_ core.Handle, e *Entity) bool {
		m, ok := s.meshes.Get(e.Mesh)
		if !ok {
			return true // mesh destroyed from under the entity; skip
		}
		out = append(out, Instance{
			Mesh:    m,
			Pose:    e.Pose,
			InvPose: e.invPose,
			ID:      e.ID,
			Texture: e.Texture,
		})
		return true
	})
	return out
}

// Release frees all device resources the scene owns.
func (s *Scene) Release() {
	s.meshes.Each(func(_ core.Handle, m *Mesh) bool {
		m.accel.Release()
		return true
	})
}
