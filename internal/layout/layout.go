// Package layout assigns positions to the nodes of one Environment.
//
// Two policies exist. Layered ranks nodes by their longest path from a source
// and stacks each rank in node order, in the spirit of a directed graph
// layout. Radial places nodes on a spiral grouped by kind. Both are pure
// functions of the Environment's nodes and edges, so running them twice on
// an unchanged Environment gives the same positions.
package layout

import (
	"fmt"
	"math"
	"slices"

	"github.com/roach88/envgraph/internal/envtree"
	"github.com/roach88/envgraph/internal/ir"
)

// Policy selects a layout algorithm.
type Policy string

const (
	PolicyLayered Policy = "layered"
	PolicyRadial  Policy = "radial"
)

// Direction is the rank direction of the layered policy.
type Direction string

const (
	DirectionLR Direction = "LR"
	DirectionTB Direction = "TB"
)

// Options controls the layered policy. Zero values take the defaults.
type Options struct {
	Policy     Policy
	Direction  Direction
	RankSep    float64
	NodeSep    float64
	Margin     float64
	NodeWidth  float64
	NodeHeight float64
}

// DefaultOptions returns the default layered left-to-right layout.
func DefaultOptions() Options {
	return Options{
		Policy:     PolicyLayered,
		Direction:  DirectionLR,
		RankSep:    100,
		NodeSep:    100,
		Margin:     20,
		NodeWidth:  180,
		NodeHeight: 40,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Policy == "" {
		o.Policy = d.Policy
	}
	if o.Direction == "" {
		o.Direction = d.Direction
	}
	if o.RankSep == 0 {
		o.RankSep = d.RankSep
	}
	if o.NodeSep == 0 {
		o.NodeSep = d.NodeSep
	}
	if o.Margin == 0 {
		o.Margin = d.Margin
	}
	if o.NodeWidth == 0 {
		o.NodeWidth = d.NodeWidth
	}
	if o.NodeHeight == 0 {
		o.NodeHeight = d.NodeHeight
	}
	return o
}

// Validate checks policy and direction names.
func (o Options) Validate() error {
	switch o.Policy {
	case "", PolicyLayered, PolicyRadial:
	default:
		return fmt.Errorf("unknown layout policy %q", o.Policy)
	}
	switch o.Direction {
	case "", DirectionLR, DirectionTB:
	default:
		return fmt.Errorf("unknown layout direction %q", o.Direction)
	}
	return nil
}

// Apply lays out env with the configured policy.
func Apply(env *envtree.Environment, opts Options) {
	opts = opts.withDefaults()
	if opts.Policy == PolicyRadial {
		Radial(env)
		return
	}
	Layered(env, opts)
}

// Layered ranks every node by the longest path reaching it and positions
// ranks along the layout direction. Within a rank nodes follow Environment
// order. Cycles cannot make it loop: relaxation stops after one round per
// node.
func Layered(env *envtree.Environment, opts Options) {
	opts = opts.withDefaults()
	ranks := Ranks(env)

	slot := make(map[int]int)
	for _, n := range env.Nodes {
		r := ranks[n.ID]
		i := slot[r]
		slot[r]++

		along := opts.Margin + float64(r)*(opts.NodeWidth+opts.RankSep)
		across := opts.Margin + float64(i)*(opts.NodeHeight+opts.NodeSep)
		if opts.Direction == DirectionTB {
			along = opts.Margin + float64(r)*(opts.NodeHeight+opts.RankSep)
			across = opts.Margin + float64(i)*(opts.NodeWidth+opts.NodeSep)
			n.Position = ir.Position{X: across, Y: along}
			continue
		}
		n.Position = ir.Position{X: along, Y: across}
	}
}

// Ranks returns the longest-path rank of every node; sources have rank 0.
func Ranks(env *envtree.Environment) map[string]int {
	ranks := make(map[string]int, len(env.Nodes))
	for _, n := range env.Nodes {
		ranks[n.ID] = 0
	}
	for round := 0; round < len(env.Nodes); round++ {
		changed := false
		for _, e := range env.Edges {
			if e.Source == e.Target {
				continue
			}
			src, okSrc := ranks[e.Source]
			dst, okDst := ranks[e.Target]
			if okSrc && okDst && src+1 > dst {
				ranks[e.Target] = src + 1
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return ranks
}

// Radial parameters.
const (
	radialBaseRadius      = 150.0
	radialRadiusIncrement = 60.0
	radialAngleStep       = 0.3
	radialMinDistance     = 250.0
	radialMaxAttempts     = 1000
)

// Radial places nodes on a widening spiral around the origin, grouped by kind
// in ir.KindOrder and by Environment order within a kind. Each node starts
// at angle i*0.3 rad on the base radius and steps forward until it is at
// least the minimum distance from every placed node, moving to a wider
// ring each time the angle wraps.
func Radial(env *envtree.Environment) {
	nodes := slices.Clone(env.Nodes)
	slices.SortStableFunc(nodes, func(a, b *ir.Node) int {
		return a.Kind.Rank() - b.Kind.Rank()
	})

	placed := make([]ir.Position, 0, len(nodes))
	for i, n := range nodes {
		radius := radialBaseRadius
		angle := float64(i) * radialAngleStep
		var pos ir.Position
		for attempt := 0; attempt < radialMaxAttempts; attempt++ {
			pos = ir.Position{X: radius * math.Cos(angle), Y: radius * math.Sin(angle)}
			if !overlaps(pos, placed) {
				break
			}
			angle += radialAngleStep
			if angle >= 2*math.Pi {
				angle = 0
				radius += radialRadiusIncrement
			}
		}
		n.Position = pos
		placed = append(placed, pos)
	}
}

func overlaps(pos ir.Position, placed []ir.Position) bool {
	for _, p := range placed {
		if math.Hypot(p.X-pos.X, p.Y-pos.Y) < radialMinDistance {
			return true
		}
	}
	return false
}
