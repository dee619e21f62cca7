// Package graph is the execution engine: a fixed directed graph of
// processing nodes that produce and transform per-point fields. Topology
// is configured once; each Run executes every node in topological order on
// one ordered compute queue.
package graph

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/rangesim/core"
	"github.com/gekko3d/rangesim/gpu"
	"github.com/gekko3d/rangesim/scene"
)

// ExecContext carries everything a node needs to issue work: the device,
// one ordered compute queue, the scene, and a logger.
type ExecContext struct {
	Device gpu.Device
	Queue  *gpu.Queue
	Scene  *scene.Scene
	Log    core.Logger
}

// Node is one vertex of the processing graph. Validate resolves upstream
// inputs by capability and must be idempotent; it is re-invoked whenever
// the graph shape changes. Schedule issues the node's compute operations
// for the current tick and must not block the caller except where a stage
// documents a host-side step.
type Node interface {
	Name() string
	Validate() error
	Schedule(ctx *ExecContext) error
}

// PointsProvider is the capability of nodes producing point-cloud fields.
// FieldData never returns stale data: it recomputes first if needed. A
// request for a field the node does not produce fails with MissingInput.
type PointsProvider interface {
	Node
	PointCount() int
	Provides(f core.Field) bool
	FieldData(f core.Field) (gpu.FieldView, error)
}

// RaysProvider is the capability of nodes producing ray batches. RayRange
// returns (0, 0) when the source leaves the range to the consumer.
type RaysProvider interface {
	Node
	Rays() []mgl32.Mat4
	RayRange() (min, max float32)
}

// baseNode carries the wiring shared by every node variant. Nodes are a
// closed set behind the Node interface; graph edges only connect types
// embedding baseNode.
type baseNode struct {
	name   string
	inputs []Node
}

func (b *baseNode) Name() string    { return b.name }
func (b *baseNode) base() *baseNode { return b }

type wiredNode interface {
	Node
	base() *baseNode
}

// findInput resolves the single required input of capability T.
func findInput[T any](b *baseNode, capability string) (T, error) {
	for _, in := range b.inputs {
		if t, ok := in.(T); ok {
			return t, nil
		}
	}
	var zero T
	return zero, core.MissingInputf("%s: no input provides %s", b.name, capability)
}

// Graph owns a set of nodes and their edges. Nodes are created at graph
// construction and destroyed with it; the graph computes its topological
// order once per shape change.
type Graph struct {
	log      core.Logger
	nodes    []Node
	children map[Node][]Node
	order    []Node
	valid    bool
}

func New(log core.Logger) *Graph {
	return &Graph{
		log:      core.OrNop(log),
		children: make(map[Node][]Node),
	}
}

func (g *Graph) register(n Node) {
	for _, have := range g.nodes {
		if have == n {
			return
		}
	}
	g.nodes = append(g.nodes, n)
}

// AddChild makes child consume parent's output. Invalidates the current
// validation; topology edits are meant for construction time, before the
// first Run.
func (g *Graph) AddChild(parent, child Node) error {
	wired, ok := child.(wiredNode)
	if !ok {
		return core.InvalidPipelinef("node %s is foreign to this engine", child.Name())
	}
	g.register(parent)
	g.register(child)
	wired.base().inputs = append(wired.base().inputs, parent)
	g.children[parent] = append(g.children[parent], child)
	g.valid = false
	return nil
}

// RemoveChild severs an edge added with AddChild.
func (g *Graph) RemoveChild(parent, child Node) error {
	wired, ok := child.(wiredNode)
	if !ok {
		return core.InvalidPipelinef("node %s is foreign to this engine", child.Name())
	}
	b := wired.base()
	for i, in := range b.inputs {
		if in == parent {
			b.inputs = append(b.inputs[:i], b.inputs[i+1:]...)
			break
		}
	}
	kids := g.children[parent]
	for i, c := range kids {
		if c == child {
			g.children[parent] = append(kids[:i], kids[i+1:]...)
			break
		}
	}
	g.valid = false
	return nil
}

// Validate computes the execution order and validates every node in it.
// Idempotent; required again after any shape or parameter change.
func (g *Graph) Validate() error {
	indeg := make(map[Node]int, len(g.nodes))
	for _, n := range g.nodes {
		indeg[n] = 0
	}
	for _, kids := range g.children {
		for _, c := range kids {
			indeg[c]++
		}
	}

	// Kahn's algorithm over insertion order, keeping runs deterministic.
	order := make([]Node, 0, len(g.nodes))
	ready := make([]Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		if indeg[n] == 0 {
			ready = append(ready, n)
		}
	}
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)
		for _, c := range g.children[n] {
			indeg[c]--
			if indeg[c] == 0 {
				ready = append(ready, c)
			}
		}
	}
	if len(order) != len(g.nodes) {
		return core.InvalidPipelinef("graph contains a cycle")
	}

	for _, n := range order {
		if err := n.Validate(); err != nil {
			return err
		}
	}
	g.order = order
	g.valid = true
	return nil
}

// Run executes one tick: every node scheduled once, in topological order,
// on the context's queue. Cross-node ordering comes purely from this order
// plus the queue's issue-order execution; no extra fences are inserted.
// Calls into Run must be serialized by the caller.
func (g *Graph) Run(ctx *ExecContext) error {
	if ctx.Log == nil {
		ctx.Log = g.log
	}
	if !g.valid {
		if err := g.Validate(); err != nil {
			return err
		}
	}
	for _, n := range g.order {
		ctx.Log.Debugf("graph: schedule %s", n.Name())
		if err := n.Schedule(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Synchronize blocks until all scheduled work has drained.
func (g *Graph) Synchronize(ctx *ExecContext) error {
	return ctx.Queue.Synchronize()
}

// Nodes returns the registered nodes in insertion order.
func (g *Graph) Nodes() []Node { return g.nodes }
