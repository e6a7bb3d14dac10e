// Package graph builds fixed signal-processing topologies from typed stages
// and a table of named connections, with atomic rewiring for effects that
// switch routing at runtime.
//
// Concurrency contract: exactly one control goroutine mutates topology
// (Connect/Rewire) and stage coefficients; Process is called by the audio
// goroutine and only ever observes fully compiled topologies through an
// atomic snapshot swap. Process never allocates after the first block.
package graph

import (
	"errors"
	"fmt"
	"sync/atomic"
)

const (
	// InputID is the reserved stage ID for the graph input.
	InputID = "_input"
	// OutputID is the reserved stage ID for the graph output.
	OutputID = "_output"
)

// maxFeedbackGain is the largest gain limit a feedback source stage may
// carry. Every cycle routes through such a stage, which bounds loop gain
// strictly below unity.
const maxFeedbackGain = 0.95

// ErrCycle is returned when the forward connection table contains a cycle.
// Cycles are only legal through feedback edges.
var ErrCycle = errors.New("graph: forward connections contain a cycle")

// Stage is one processing node. Process transforms a block in place.
type Stage interface {
	Process(block []float64)
	Reset()
}

// GainLimiter is implemented by stages whose output magnitude relative to
// input is bounded by a known factor. Feedback edges may only originate
// from such stages.
type GainLimiter interface {
	MaxGain() float64
}

// Edge is one named connection. A feedback edge delivers the source stage's
// previous-block output, closing a loop without creating a forward cycle.
type Edge struct {
	From     string
	To       string
	Feedback bool
}

// compiled is an immutable topology snapshot consumed by Process.
type compiled struct {
	order    []string
	incoming map[string][]Edge
	edges    []Edge
}

// Graph owns stages, their connection table, and per-stage block buffers.
type Graph struct {
	blockSize int
	stages    map[string]Stage

	cur  map[string][]float64
	prev map[string][]float64
	mix  []float64

	snapshot atomic.Pointer[compiled]
}

// New creates an empty graph processing blocks of the given size.
func New(blockSize int) (*Graph, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("graph block size must be positive: %d", blockSize)
	}

	g := &Graph{
		blockSize: blockSize,
		stages:    make(map[string]Stage),
		cur:       make(map[string][]float64),
		prev:      make(map[string][]float64),
		mix:       make([]float64, blockSize),
	}

	g.cur[InputID] = make([]float64, blockSize)
	g.prev[InputID] = make([]float64, blockSize)
	g.cur[OutputID] = make([]float64, blockSize)
	g.prev[OutputID] = make([]float64, blockSize)

	g.snapshot.Store(&compiled{incoming: map[string][]Edge{}})

	return g, nil
}

// BlockSize returns the fixed processing block size.
func (g *Graph) BlockSize() int { return g.blockSize }

// AddStage registers a stage under a unique name. Names starting with "_"
// are reserved.
func (g *Graph) AddStage(name string, stage Stage) error {
	if name == "" || name[0] == '_' {
		return fmt.Errorf("graph stage name is reserved or empty: %q", name)
	}
	if stage == nil {
		return errors.New("graph: nil stage")
	}
	if _, exists := g.stages[name]; exists {
		return fmt.Errorf("graph stage already exists: %q", name)
	}

	g.stages[name] = stage
	g.cur[name] = make([]float64, g.blockSize)
	g.prev[name] = make([]float64, g.blockSize)

	return nil
}

// Connect compiles the graph with the given full connection table and
// publishes it atomically. All stage and endpoint names must exist; the
// forward subgraph must be acyclic; feedback edges must originate from a
// gain-limited stage with MaxGain() <= 0.95.
func (g *Graph) Connect(edges []Edge) error {
	snap, err := g.compile(edges)
	if err != nil {
		return err
	}

	g.snapshot.Store(snap)

	return nil
}

// Rewire switches to a new connection table, applying only the difference:
// stages keep their internal state and unaffected connections are untouched.
// It returns the added and removed edges. The swap is atomic with respect
// to Process; the new topology takes effect at the next block boundary.
func (g *Graph) Rewire(edges []Edge) (added, removed []Edge, err error) {
	old := g.snapshot.Load()

	snap, err := g.compile(edges)
	if err != nil {
		return nil, nil, err
	}

	added, removed = diffEdges(old.edges, snap.edges)
	g.snapshot.Store(snap)

	return added, removed, nil
}

// Edges returns a copy of the current connection table.
func (g *Graph) Edges() []Edge {
	snap := g.snapshot.Load()

	return append([]Edge(nil), snap.edges...)
}

// Process runs one block: input is copied into the graph input, every stage
// executes in compiled order, and the summed graph output is written to
// output. Both slices must be BlockSize long.
func (g *Graph) Process(input, output []float64) error {
	if len(input) != g.blockSize || len(output) != g.blockSize {
		return fmt.Errorf("graph block length mismatch: in=%d out=%d want %d",
			len(input), len(output), g.blockSize)
	}

	snap := g.snapshot.Load()

	copy(g.cur[InputID], input)

	for _, name := range snap.order {
		if name == InputID {
			continue
		}

		g.sumIncoming(snap, name)

		buf := g.cur[name]
		copy(buf, g.mix)

		if stage, ok := g.stages[name]; ok {
			stage.Process(buf)
		}
	}

	copy(output, g.cur[OutputID])

	// Current outputs become the feedback reads for the next block.
	g.cur, g.prev = g.prev, g.cur

	return nil
}

// StageOutput returns the given stage's output from the most recent block.
// The returned slice is owned by the graph and valid until the next Process.
func (g *Graph) StageOutput(name string) []float64 {
	// prev holds the last completed block after the swap in Process.
	return g.prev[name]
}

// Reset clears all stage state and block buffers.
func (g *Graph) Reset() {
	for _, s := range g.stages {
		s.Reset()
	}
	for _, b := range g.cur {
		clear(b)
	}
	for _, b := range g.prev {
		clear(b)
	}
}

func (g *Graph) sumIncoming(snap *compiled, name string) {
	clear(g.mix)

	for _, e := range snap.incoming[name] {
		var src []float64
		if e.Feedback {
			src = g.prev[e.From]
		} else {
			src = g.cur[e.From]
		}

		for i, v := range src {
			g.mix[i] += v
		}
	}
}

// compile validates edges and produces a processing order via topological
// sort of the forward subgraph (Kahn's algorithm).
func (g *Graph) compile(edges []Edge) (*compiled, error) {
	known := func(name string) bool {
		if name == InputID || name == OutputID {
			return true
		}
		_, ok := g.stages[name]
		return ok
	}

	incoming := make(map[string][]Edge, len(g.stages)+2)
	indegree := make(map[string]int, len(g.stages)+2)
	outgoing := make(map[string][]string, len(g.stages)+2)

	names := make([]string, 0, len(g.stages)+2)
	names = append(names, InputID, OutputID)
	for name := range g.stages {
		names = append(names, name)
	}
	for _, name := range names {
		indegree[name] = 0
	}

	for _, e := range edges {
		if !known(e.From) || !known(e.To) {
			return nil, fmt.Errorf("graph edge references unknown stage: %s -> %s", e.From, e.To)
		}
		if e.From == e.To && !e.Feedback {
			return nil, fmt.Errorf("graph forward self-connection: %s", e.From)
		}
		if e.To == InputID || e.From == OutputID {
			return nil, fmt.Errorf("graph edge uses endpoint in wrong direction: %s -> %s", e.From, e.To)
		}

		if e.Feedback {
			if err := g.checkFeedbackSource(e.From); err != nil {
				return nil, err
			}
		}

		incoming[e.To] = append(incoming[e.To], e)

		if !e.Feedback {
			outgoing[e.From] = append(outgoing[e.From], e.To)
			indegree[e.To]++
		}
	}

	queue := make([]string, 0, len(names))
	for _, name := range names {
		if indegree[name] == 0 {
			queue = append(queue, name)
		}
	}

	order := make([]string, 0, len(names))
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		order = append(order, name)

		for _, to := range outgoing[name] {
			indegree[to]--
			if indegree[to] == 0 {
				queue = append(queue, to)
			}
		}
	}

	if len(order) != len(names) {
		return nil, ErrCycle
	}

	return &compiled{
		order:    order,
		incoming: incoming,
		edges:    append([]Edge(nil), edges...),
	}, nil
}

// checkFeedbackSource enforces the boundedness invariant: every loop routes
// through a stage whose gain is capped strictly below unity.
func (g *Graph) checkFeedbackSource(name string) error {
	stage, ok := g.stages[name]
	if !ok {
		return fmt.Errorf("graph feedback edge from endpoint %q", name)
	}

	limiter, ok := stage.(GainLimiter)
	if !ok {
		return fmt.Errorf("graph feedback source %q is not gain-limited", name)
	}
	if limiter.MaxGain() > maxFeedbackGain {
		return fmt.Errorf("graph feedback source %q gain limit %f exceeds %f",
			name, limiter.MaxGain(), maxFeedbackGain)
	}

	return nil
}

// diffEdges returns the edges present only in b (added) and only in a
// (removed).
func diffEdges(a, b []Edge) (added, removed []Edge) {
	inA := make(map[Edge]bool, len(a))
	for _, e := range a {
		inA[e] = true
	}
	inB := make(map[Edge]bool, len(b))
	for _, e := range b {
		inB[e] = true
	}

	for _, e := range b {
		if !inA[e] {
			added = append(added, e)
		}
	}
	for _, e := range a {
		if !inB[e] {
			removed = append(removed, e)
		}
	}

	return added, removed
}
