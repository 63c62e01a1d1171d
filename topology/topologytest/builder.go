// Package topologytest builds small ROADM topologies for tests.
//
// Nodes are named the way the inventory exports them: a transponder on device
// "XPDR-A" becomes node "XPDR-A-XPDR1", SRG "SRG1" on device "ROADM-A" becomes
// "ROADM-A-SRG1". Link builds both directions and infers the link types from
// the node types.
package topologytest

import (
	"fmt"

	"pce/topology"
)

const MaxWavelength = 96

type Builder struct {
	nodes   []topology.Node
	links   []topology.Link
	index   map[string]int
	nextTp  map[string]int
	devices map[string]string
}

func New() *Builder {
	return &Builder{
		index:   make(map[string]int),
		nextTp:  make(map[string]int),
		devices: make(map[string]string),
	}
}

// Wavelengths returns the inclusive range [from, to].
func Wavelengths(from, to int) []int {
	var out []int
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}

// AllWavelengths returns 1..96.
func AllWavelengths() []int {
	return Wavelengths(1, MaxWavelength)
}

// Except returns ws without the listed wavelengths.
func Except(ws []int, excluded ...int) []int {
	skip := make(map[int]bool, len(excluded))
	for _, e := range excluded {
		skip[e] = true
	}
	var out []int
	for _, w := range ws {
		if !skip[w] {
			out = append(out, w)
		}
	}
	return out
}

func XponderID(device string) string { return device + "-XPDR1" }

func (b *Builder) add(node topology.Node, device string) *Builder {
	b.index[node.ID] = len(b.nodes)
	b.devices[node.ID] = device
	b.nodes = append(b.nodes, node)
	return b
}

// Xponder adds a transponder with the given number of network/client port pairs.
func (b *Builder) Xponder(device string, ports int) *Builder {
	node := topology.Node{
		ID:               XponderID(device),
		Type:             topology.NodeTypeXponder,
		SupportingNodeID: device,
		SupportingClli:   "CLLI-" + device,
	}
	for i := 1; i <= ports; i++ {
		client := fmt.Sprintf("XPDR1-CLIENT%d", i)
		node.TerminationPoints = append(node.TerminationPoints,
			topology.TerminationPoint{ID: fmt.Sprintf("XPDR1-NETWORK%d", i), Type: topology.TpXponderNetwork, AssociatedClientTP: client},
			topology.TerminationPoint{ID: client, Type: topology.TpXponderClient},
		)
	}
	return b.add(node, device)
}

// Srg adds a bidirectional SRG (TXRX pass-through and cross-connect ports).
func (b *Builder) Srg(device, srg string, wavelengths []int) *Builder {
	node := topology.Node{
		ID:                   device + "-" + srg,
		Type:                 topology.NodeTypeSrg,
		SupportingNodeID:     device,
		AvailableWavelengths: wavelengths,
		TerminationPoints: []topology.TerminationPoint{
			{ID: srg + "-CP-TXRX", Type: topology.TpSrgTxRxCP},
		},
	}
	return b.add(node, device)
}

// UnidirectionalSrg adds an SRG exposing separate TX-only and RX-only ports.
func (b *Builder) UnidirectionalSrg(device, srg string, wavelengths []int) *Builder {
	node := topology.Node{
		ID:                   device + "-" + srg,
		Type:                 topology.NodeTypeSrg,
		SupportingNodeID:     device,
		AvailableWavelengths: wavelengths,
		TerminationPoints: []topology.TerminationPoint{
			{ID: srg + "-CP-TX", Type: topology.TpSrgTxCP},
			{ID: srg + "-CP-RX", Type: topology.TpSrgRxCP},
			{ID: srg + "-PP1-TX", Type: topology.TpSrgTxPP},
			{ID: srg + "-PP1-RX", Type: topology.TpSrgRxPP},
		},
	}
	return b.add(node, device)
}

func (b *Builder) Degree(device, degree string, wavelengths []int) *Builder {
	node := topology.Node{
		ID:                   device + "-" + degree,
		Type:                 topology.NodeTypeDegree,
		SupportingNodeID:     device,
		AvailableWavelengths: wavelengths,
		TerminationPoints: []topology.TerminationPoint{
			{ID: degree + "-TTP-TXRX", Type: topology.TpDegreeTTP},
			{ID: degree + "-CTP-TXRX", Type: topology.TpDegreeCTP},
		},
	}
	return b.add(node, device)
}

// Node gives tests direct access to tweak a node before Network is called.
func (b *Builder) Node(id string) *topology.Node {
	i, ok := b.index[id]
	if !ok {
		panic("topologytest: unknown node " + id)
	}
	return &b.nodes[i]
}

// Link adds the two unidirectional links between from and to, both carrying
// the same latency and SRLGs.
func (b *Builder) Link(from, to string, latency uint32, srlgs ...uint32) *Builder {
	src := b.Node(from)
	dst := b.Node(to)

	fwdType, revType := linkTypes(src.Type, dst.Type, b.devices[from] == b.devices[to])
	srcTx, srcRx := b.ports(src, dst)
	dstTx, dstRx := b.ports(dst, src)

	fwd := topology.Link{
		ID:        fmt.Sprintf("%s-%sto%s-%s", from, srcTx, to, dstRx),
		Type:      fwdType,
		Source:    from,
		SourceTP:  srcTx,
		Dest:      to,
		DestTP:    dstRx,
		SRLGs:     srlgs,
		OperState: "inService",
	}
	rev := topology.Link{
		ID:        fmt.Sprintf("%s-%sto%s-%s", to, dstTx, from, srcRx),
		Type:      revType,
		Source:    to,
		SourceTP:  dstTx,
		Dest:      from,
		DestTP:    srcRx,
		SRLGs:     srlgs,
		OperState: "inService",
	}
	l1, l2 := latency, latency
	fwd.Latency = &l1
	rev.Latency = &l2
	fwd.Opposite = rev.ID
	rev.Opposite = fwd.ID
	b.links = append(b.links, fwd, rev)
	return b
}

// Network returns a deep copy of what was built so far.
func (b *Builder) Network() *topology.Network {
	n := &topology.Network{Nodes: b.nodes, Links: b.links}
	return n.Copy()
}

func linkTypes(srcType, dstType string, sameDevice bool) (string, string) {
	switch {
	case srcType == topology.NodeTypeXponder && dstType == topology.NodeTypeSrg:
		return topology.LinkXponderOutput, topology.LinkXponderInput
	case srcType == topology.NodeTypeSrg && dstType == topology.NodeTypeXponder:
		return topology.LinkXponderInput, topology.LinkXponderOutput
	case srcType == topology.NodeTypeSrg && dstType == topology.NodeTypeDegree:
		return topology.LinkAdd, topology.LinkDrop
	case srcType == topology.NodeTypeDegree && dstType == topology.NodeTypeSrg:
		return topology.LinkDrop, topology.LinkAdd
	case srcType == topology.NodeTypeDegree && dstType == topology.NodeTypeDegree && sameDevice:
		return topology.LinkExpress, topology.LinkExpress
	case srcType == topology.NodeTypeDegree && dstType == topology.NodeTypeDegree:
		return topology.LinkRoadmToRoadm, topology.LinkRoadmToRoadm
	}
	panic(fmt.Sprintf("topologytest: unsupported link %s -> %s", srcType, dstType))
}

// ports picks the termination points node transmits and receives on when
// facing peer. They only differ on unidirectional SRGs.
func (b *Builder) ports(node, peer *topology.Node) (string, string) {
	prefix := node.ID[len(node.SupportingNodeID)+1:]
	switch node.Type {
	case topology.NodeTypeXponder:
		b.nextTp[node.ID]++
		tp := fmt.Sprintf("XPDR1-NETWORK%d", b.nextTp[node.ID])
		return tp, tp
	case topology.NodeTypeSrg:
		if unidirectional(node) {
			if peer.Type == topology.NodeTypeDegree {
				return prefix + "-CP-TX", prefix + "-CP-RX"
			}
			return prefix + "-PP1-TX", prefix + "-PP1-RX"
		}
		if peer.Type == topology.NodeTypeDegree {
			tp := prefix + "-CP-TXRX"
			return tp, tp
		}
		b.nextTp[node.ID]++
		tp := fmt.Sprintf("%s-PP%d-TXRX", prefix, b.nextTp[node.ID])
		node.TerminationPoints = append(node.TerminationPoints, topology.TerminationPoint{ID: tp, Type: topology.TpSrgTxRxPP})
		return tp, tp
	case topology.NodeTypeDegree:
		tp := prefix + "-CTP-TXRX"
		if peer.Type == topology.NodeTypeDegree && peer.SupportingNodeID != node.SupportingNodeID {
			tp = prefix + "-TTP-TXRX"
		}
		return tp, tp
	}
	panic("topologytest: unsupported node type " + node.Type)
}

func unidirectional(node *topology.Node) bool {
	for _, tp := range node.TerminationPoints {
		if tp.Type == topology.TpSrgTxPP {
			return true
		}
	}
	return false
}

// Chain builds XPDR-A - SRG1 - DEG1 ==== DEG2 - SRG2 - XPDR-Z with every
// ROADM element advertising wavelengths ws. All links carry latency.
func Chain(ws []int, latency uint32) *Builder {
	return New().
		Xponder("XPDR-A", 1).
		Srg("ROADM-A", "SRG1", ws).
		Degree("ROADM-A", "DEG1", ws).
		Degree("ROADM-Z", "DEG2", ws).
		Srg("ROADM-Z", "SRG1", ws).
		Xponder("XPDR-Z", 1).
		Link("XPDR-A-XPDR1", "ROADM-A-SRG1", latency).
		Link("ROADM-A-SRG1", "ROADM-A-DEG1", latency).
		Link("ROADM-A-DEG1", "ROADM-Z-DEG2", latency).
		Link("ROADM-Z-DEG2", "ROADM-Z-SRG1", latency).
		Link("ROADM-Z-SRG1", "XPDR-Z-XPDR1", latency)
}
