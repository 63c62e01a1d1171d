package model

import (
	"sort"

	"pce/topology"
)

type EndTag int

const (
	EndNone EndTag = iota
	EndA
	EndZ
)

type LinkType string

const (
	LinkRoadmToRoadm  LinkType = topology.LinkRoadmToRoadm
	LinkExpress       LinkType = topology.LinkExpress
	LinkAdd           LinkType = topology.LinkAdd
	LinkDrop          LinkType = topology.LinkDrop
	LinkXponderInput  LinkType = topology.LinkXponderInput
	LinkXponderOutput LinkType = topology.LinkXponderOutput
)

// ParseLinkType maps an inventory link type; unknown types return false.
func ParseLinkType(s string) (LinkType, bool) {
	switch t := LinkType(s); t {
	case LinkRoadmToRoadm, LinkExpress, LinkAdd, LinkDrop, LinkXponderInput, LinkXponderOutput:
		return t, true
	}
	return "", false
}

// Node is one usable network element of a request's graph.
type Node struct {
	ID               string
	SupportingNodeID string
	SupportingClli   string
	Role             Role
	Wavelengths      WavelengthSet
	// OutgoingLinks are the ids of links sourced at this node, sorted.
	OutgoingLinks []string
	End           EndTag
}

func (n *Node) Valid() bool {
	return n.Role != nil && !n.Wavelengths.Empty() && n.Role.Usable()
}

func (n *Node) Kind() RoleKind {
	if n.Role == nil {
		return ""
	}
	return n.Role.Kind()
}

// Matches reports whether id names this node or its supporting device.
func (n *Node) Matches(id string) bool {
	return id != "" && (n.ID == id || n.SupportingNodeID == id)
}

func (n *Node) addOutgoing(linkID string) {
	i := sort.SearchStrings(n.OutgoingLinks, linkID)
	if i < len(n.OutgoingLinks) && n.OutgoingLinks[i] == linkID {
		return
	}
	n.OutgoingLinks = append(n.OutgoingLinks, "")
	copy(n.OutgoingLinks[i+1:], n.OutgoingLinks[i:])
	n.OutgoingLinks[i] = linkID
}

func (n *Node) removeOutgoing(linkID string) {
	i := sort.SearchStrings(n.OutgoingLinks, linkID)
	if i < len(n.OutgoingLinks) && n.OutgoingLinks[i] == linkID {
		n.OutgoingLinks = append(n.OutgoingLinks[:i], n.OutgoingLinks[i+1:]...)
	}
}

// Link is one unidirectional link of a request's graph.
type Link struct {
	ID        string
	Type      LinkType
	Source    string
	Dest      string
	SourceTP  string
	DestTP    string
	Latency   uint32
	Opposite  string
	Client    string
	SRLGs     []uint32
	OperState string
}

// Valid requires a type, an opposite reference and resolved endpoints.
func (l *Link) Valid() bool {
	return l.Type != "" && l.Opposite != "" &&
		l.Source != "" && l.Dest != "" && l.SourceTP != "" && l.DestTP != ""
}

// Graph is the per-request graph handed from the builder to the solver.
type Graph struct {
	Nodes *NodeMap
	Links *LinkMap
	AEnd  *Node
	ZEnd  *Node
}

func NewGraph() *Graph {
	return &Graph{Nodes: NewNodeMap(), Links: NewLinkMap()}
}

// AddLink stores the link and registers it on its source node.
func (g *Graph) AddLink(l *Link) {
	g.Links.Put(l.ID, l)
	if src, ok := g.Nodes.Get(l.Source); ok {
		src.addOutgoing(l.ID)
	}
}

// RemoveNode drops the node and every link touching it.
func (g *Graph) RemoveNode(id string) {
	for _, linkID := range g.Links.Keys() {
		l, _ := g.Links.Get(linkID)
		if l.Source != id && l.Dest != id {
			continue
		}
		g.Links.Delete(linkID)
		if src, ok := g.Nodes.Get(l.Source); ok {
			src.removeOutgoing(linkID)
		}
	}
	g.Nodes.Delete(id)
}

// LinkSource returns the source node of a link on the graph.
func (g *Graph) LinkSource(linkID string) (*Node, bool) {
	l, ok := g.Links.Get(linkID)
	if !ok {
		return nil, false
	}
	return g.Nodes.Get(l.Source)
}
