package models

import (
	"errors"
	"fmt"
)

// Graph validation errors, reported to the caller of save and never
// silently persisted.
var (
	ErrNoTriggerNode        = errors.New("flow has no trigger node")
	ErrMultipleTriggerNodes = errors.New("flow has more than one trigger node")
	ErrUnknownEdgeEndpoint  = errors.New("edge references unknown node")
	ErrTooManyBranches      = errors.New("condition node has more than two outgoing edges")
	ErrDuplicateBranch      = errors.New("condition node has duplicate branch handles")
)

// Graph is the adjacency form of a FlowDefinition, built once at run start
// so the walk never scans the edge list.
type Graph struct {
	nodes    map[string]*Node
	outgoing map[string][]*Edge
	trigger  *Node
}

// BuildGraph indexes a flow definition into an adjacency structure. It fails
// on structural defects that would make the walk undefined: missing or
// duplicate trigger nodes and edges pointing at unknown nodes.
func BuildGraph(flow FlowDefinition) (*Graph, error) {
	g := &Graph{
		nodes:    make(map[string]*Node, len(flow.Nodes)),
		outgoing: make(map[string][]*Edge),
	}

	for _, node := range flow.Nodes {
		if _, dup := g.nodes[node.ID]; dup {
			return nil, fmt.Errorf("duplicate node id %q", node.ID)
		}

		g.nodes[node.ID] = node

		if node.Type == NodeTypeTrigger {
			if g.trigger != nil {
				return nil, ErrMultipleTriggerNodes
			}

			g.trigger = node
		}
	}

	if g.trigger == nil {
		return nil, ErrNoTriggerNode
	}

	for _, edge := range flow.Edges {
		if _, ok := g.nodes[edge.Source]; !ok {
			return nil, fmt.Errorf("%w: source %q", ErrUnknownEdgeEndpoint, edge.Source)
		}

		if _, ok := g.nodes[edge.Target]; !ok {
			return nil, fmt.Errorf("%w: target %q", ErrUnknownEdgeEndpoint, edge.Target)
		}

		g.outgoing[edge.Source] = append(g.outgoing[edge.Source], edge)
	}

	return g, nil
}

// Trigger returns the unique entry point of the graph.
func (g *Graph) Trigger() *Node {
	return g.trigger
}

// Node returns a node by id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]

	return n, ok
}

// Successors returns the targets of every outgoing edge of a node, in edge
// order.
func (g *Graph) Successors(nodeID string) []*Node {
	edges := g.outgoing[nodeID]
	targets := make([]*Node, 0, len(edges))

	for _, edge := range edges {
		targets = append(targets, g.nodes[edge.Target])
	}

	return targets
}

// SuccessorsByHandle returns the targets of outgoing edges whose
// SourceHandle matches. Condition nodes use this to pick the true or false
// branch; a handle with no matching edge simply ends that path.
func (g *Graph) SuccessorsByHandle(nodeID, handle string) []*Node {
	var targets []*Node

	for _, edge := range g.outgoing[nodeID] {
		if edge.SourceHandle == handle {
			targets = append(targets, g.nodes[edge.Target])
		}
	}

	return targets
}

// Validate enforces the save-time structural rules on top of BuildGraph:
// every non-trigger node reachable from the trigger, and condition nodes
// limited to two outgoing edges with distinct handles.
func (g *Graph) Validate() error {
	seen := map[string]bool{g.trigger.ID: true}
	frontier := []string{g.trigger.ID}

	for len(frontier) > 0 {
		current := frontier[0]
		frontier = frontier[1:]

		for _, edge := range g.outgoing[current] {
			if !seen[edge.Target] {
				seen[edge.Target] = true
				frontier = append(frontier, edge.Target)
			}
		}
	}

	for id, node := range g.nodes {
		if !seen[id] {
			return fmt.Errorf("node %q is not reachable from the trigger node", id)
		}

		if node.Type != NodeTypeCondition {
			continue
		}

		edges := g.outgoing[id]
		if len(edges) > 2 {
			return fmt.Errorf("%w: node %q", ErrTooManyBranches, id)
		}

		handles := make(map[string]bool, len(edges))

		for _, edge := range edges {
			if handles[edge.SourceHandle] {
				return fmt.Errorf("%w: node %q handle %q", ErrDuplicateBranch, id, edge.SourceHandle)
			}

			handles[edge.SourceHandle] = true
		}
	}

	return nil
}
