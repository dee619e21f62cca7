// Command rangesim runs a demo lidar trace against a built-in scene and
// writes the resulting point cloud to disk.
package main

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spf13/cobra"

	"github.com/gekko3d/rangesim/accel"
	"github.com/gekko3d/rangesim/core"
	"github.com/gekko3d/rangesim/gpu"
	"github.com/gekko3d/rangesim/graph"
	"github.com/gekko3d/rangesim/scene"
	"github.com/gekko3d/rangesim/tape"
)

func main() {
	root := &cobra.Command{
		Use:           "rangesim",
		Short:         "range sensor simulation toolkit",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(traceCmd(), replayCmd())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type traceParams struct {
	out      string
	hFov     float32
	vFov     float32
	hRes     int
	vRes     int
	distance float32
}

func traceCmd() *cobra.Command {
	var (
		p        traceParams
		hFov     float64
		vFov     float64
		distance float64
		tapeOut  string
		verbose  bool
	)
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "trace a ray grid against a demo cube scene",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := core.NewDefaultLogger("rangesim", verbose)
			p.hFov = float32(hFov)
			p.vFov = float32(vFov)
			p.distance = float32(distance)
			if tapeOut != "" {
				var rec tape.Recorder
				rec.Begin()
				rec.Record("scene_cube", distance)
				rec.Record("ray_grid", hFov, vFov, p.hRes, p.vRes)
				rec.Record("trace_to", p.out)
				if err := rec.End(tapeOut); err != nil {
					return err
				}
				log.Infof("session recorded to %s", tapeOut)
			}
			return runTrace(log, p)
		},
	}
	cmd.Flags().StringVarP(&p.out, "out", "o", "points.xyz", "output file")
	cmd.Flags().Float64Var(&hFov, "hfov", 120, "horizontal field of view, degrees")
	cmd.Flags().Float64Var(&vFov, "vfov", 45, "vertical field of view, degrees")
	cmd.Flags().IntVar(&p.hRes, "hres", 200, "horizontal ray count")
	cmd.Flags().IntVar(&p.vRes, "vres", 100, "vertical ray count")
	cmd.Flags().Float64Var(&distance, "distance", 5, "cube distance from the sensor")
	cmd.Flags().StringVar(&tapeOut, "tape", "", "record the session to this tape file")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	return cmd
}

func replayCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "replay <tape>",
		Short: "replay a recorded trace session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := core.NewDefaultLogger("rangesim", verbose)
			p := traceParams{out: "points.xyz", hFov: 120, vFov: 45, hRes: 200, vRes: 100, distance: 5}
			reg := tape.Registry{
				"scene_cube": func(args []any) error {
					d, err := tape.Float64(args[0])
					p.distance = float32(d)
					return err
				},
				"ray_grid": func(args []any) error {
					v, err := tape.Float64s(args)
					if err != nil {
						return err
					}
					p.hFov, p.vFov = float32(v[0]), float32(v[1])
					p.hRes, p.vRes = int(v[2]), int(v[3])
					return nil
				},
				"trace_to": func(args []any) error {
					s, ok := args[0].(string)
					if !ok {
						return fmt.Errorf("trace_to: %v is not a path", args[0])
					}
					p.out = s
					return nil
				},
			}
			if err := tape.Play(args[0], reg); err != nil {
				return err
			}
			return runTrace(log, p)
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	return cmd
}

func runTrace(log core.Logger, p traceParams) error {
	dev := gpu.NewCPUDevice()
	q := gpu.NewQueue(dev.Name())
	defer q.Release()

	sc := scene.NewScene(dev, accel.NewCPUBackend(), log)
	defer sc.Release()

	verts, indices := cubeMesh(1)
	mesh, err := sc.CreateMesh(q, verts, indices)
	if err != nil {
		return err
	}
	ent, err := sc.CreateEntity(mesh)
	if err != nil {
		return err
	}
	if err := sc.SetEntityPose(ent, mgl32.Translate3D(0, 0, p.distance)); err != nil {
		return err
	}

	rays := rayGrid(p.hFov, p.vFov, p.hRes, p.vRes)
	log.Infof("tracing %d rays", len(rays))

	raysNode := graph.NewRaysFromMat3x4Node(rays)
	trace := graph.NewRaytraceNode()
	format := graph.NewFormatNode([]core.Field{core.FieldXYZ, core.FieldIntensity})

	g := graph.New(log)
	if err := g.AddChild(raysNode, trace); err != nil {
		return err
	}
	if err := g.AddChild(trace, format); err != nil {
		return err
	}

	ctx := &graph.ExecContext{Device: dev, Queue: q, Scene: sc, Log: log}
	if err := g.Run(ctx); err != nil {
		return err
	}
	if err := g.Synchronize(ctx); err != nil {
		return err
	}

	packed, err := format.ReadOutput(q)
	if err != nil {
		return err
	}
	return writeXYZ(p.out, packed, format.PointSize(), log)
}

// cubeMesh returns an axis-aligned cube of the given half extent.
func cubeMesh(h float32) ([]mgl32.Vec3, []uint32) {
	verts := []mgl32.Vec3{
		{-h, -h, -h}, {h, -h, -h}, {h, h, -h}, {-h, h, -h},
		{-h, -h, h}, {h, -h, h}, {h, h, h}, {-h, h, h},
	}
	indices := []uint32{
		0, 1, 2, 0, 2, 3, // back
		4, 6, 5, 4, 7, 6, // front
		0, 3, 7, 0, 7, 4, // left
		1, 5, 6, 1, 6, 2, // right
		3, 2, 6, 3, 6, 7, // top
		0, 4, 5, 0, 5, 1, // bottom
	}
	return verts, indices
}

// rayGrid spans the field of view with evenly spaced rays around +Z.
func rayGrid(hFov, vFov float32, hRes, vRes int) []mgl32.Mat4 {
	rays := make([]mgl32.Mat4, 0, hRes*vRes)
	for v := 0; v < vRes; v++ {
		pitch := mgl32.DegToRad(-vFov/2 + vFov*float32(v)/float32(vRes-1))
		for u := 0; u < hRes; u++ {
			yaw := mgl32.DegToRad(-hFov/2 + hFov*float32(u)/float32(hRes-1))
			rays = append(rays, mgl32.HomogRotate3DY(yaw).Mul4(mgl32.HomogRotate3DX(pitch)))
		}
	}
	return rays
}

// writeXYZ emits hit points as "x y z intensity" lines, skipping misses.
func writeXYZ(path string, packed []byte, pointSize int, log core.Logger) error {
	var b strings.Builder
	hits := 0
	for off := 0; off+pointSize <= len(packed); off += pointSize {
		rec := gpu.BytesToFloat32s(packed[off : off+pointSize])
		if math.IsInf(float64(rec[0]), 0) {
			continue
		}
		fmt.Fprintf(&b, "%g %g %g %g\n", rec[0], rec[1], rec[2], rec[3])
		hits++
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return err
	}
	log.Infof("wrote %d hit points to %s", hits, path)
	return nil
}
