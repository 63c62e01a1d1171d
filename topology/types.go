package topology

import (
	"context"
	"errors"
)

var (
	ErrEmptyTopology = errors.New("topology: no nodes or links")
	ErrNotLoaded     = errors.New("topology: snapshot not loaded")
)

// Node types as published by the inventory.
const (
	NodeTypeDegree  = "DEGREE"
	NodeTypeSrg     = "SRG"
	NodeTypeXponder = "XPONDER"
)

// Termination point types.
const (
	TpXponderNetwork = "XPONDER-NETWORK"
	TpXponderClient  = "XPONDER-CLIENT"
	TpSrgTxRxPP      = "SRG-TXRX-PP"
	TpSrgTxPP        = "SRG-TX-PP"
	TpSrgRxPP        = "SRG-RX-PP"
	TpSrgTxRxCP      = "SRG-TXRX-CP"
	TpSrgTxCP        = "SRG-TX-CP"
	TpSrgRxCP        = "SRG-RX-CP"
	TpDegreeTTP      = "DEGREE-TXRX-TTP"
	TpDegreeCTP      = "DEGREE-TXRX-CTP"
)

// Link types.
const (
	LinkRoadmToRoadm  = "ROADM-TO-ROADM"
	LinkExpress       = "EXPRESS-LINK"
	LinkAdd           = "ADD-LINK"
	LinkDrop          = "DROP-LINK"
	LinkXponderInput  = "XPONDER-INPUT"
	LinkXponderOutput = "XPONDER-OUTPUT"
)

// Network is one read-only view of the optical topology.
type Network struct {
	Nodes []Node `json:"nodes" yaml:"nodes"`
	Links []Link `json:"links" yaml:"links"`
}

type Node struct {
	ID                   string             `json:"node_id" yaml:"node_id"`
	Type                 string             `json:"node_type" yaml:"node_type"`
	SupportingNodeID     string             `json:"supporting_node_id" yaml:"supporting_node_id"`
	SupportingClli       string             `json:"supporting_clli,omitempty" yaml:"supporting_clli,omitempty"`
	AvailableWavelengths []int              `json:"available_wavelengths,omitempty" yaml:"available_wavelengths,omitempty"`
	TerminationPoints    []TerminationPoint `json:"termination_points,omitempty" yaml:"termination_points,omitempty"`
}

type TerminationPoint struct {
	ID                 string `json:"tp_id" yaml:"tp_id"`
	Type               string `json:"tp_type" yaml:"tp_type"`
	AssociatedClientTP string `json:"associated_client_tp,omitempty" yaml:"associated_client_tp,omitempty"`
	Used               bool   `json:"used,omitempty" yaml:"used,omitempty"`
	// UsedTribSlots lists the ODU4 tributary slots already carrying
	// sub-lambda services on an XPONDER-NETWORK port.
	UsedTribSlots []int `json:"used_trib_slots,omitempty" yaml:"used_trib_slots,omitempty"`
}

type Link struct {
	ID        string   `json:"link_id" yaml:"link_id"`
	Type      string   `json:"link_type" yaml:"link_type"`
	Source    string   `json:"source" yaml:"source"`
	SourceTP  string   `json:"source_tp" yaml:"source_tp"`
	Dest      string   `json:"dest" yaml:"dest"`
	DestTP    string   `json:"dest_tp" yaml:"dest_tp"`
	Opposite  string   `json:"opposite_link,omitempty" yaml:"opposite_link,omitempty"`
	Latency   *uint32  `json:"latency,omitempty" yaml:"latency,omitempty"`
	SRLGs     []uint32 `json:"srlgs,omitempty" yaml:"srlgs,omitempty"`
	OperState string   `json:"oper_state,omitempty" yaml:"oper_state,omitempty"`
}

// Store is the read-only inventory the path computation reads per request.
type Store interface {
	Read(ctx context.Context) (*Network, error)
}

// Copy returns a deep copy so callers can never alias a shared snapshot.
func (n *Network) Copy() *Network {
	if n == nil {
		return nil
	}
	out := &Network{
		Nodes: make([]Node, len(n.Nodes)),
		Links: make([]Link, len(n.Links)),
	}
	for i, node := range n.Nodes {
		c := node
		c.AvailableWavelengths = append([]int(nil), node.AvailableWavelengths...)
		c.TerminationPoints = append([]TerminationPoint(nil), node.TerminationPoints...)
		for j, tp := range c.TerminationPoints {
			c.TerminationPoints[j].UsedTribSlots = append([]int(nil), tp.UsedTribSlots...)
		}
		out.Nodes[i] = c
	}
	for i, link := range n.Links {
		c := link
		if link.Latency != nil {
			v := *link.Latency
			c.Latency = &v
		}
		c.SRLGs = append([]uint32(nil), link.SRLGs...)
		out.Links[i] = c
	}
	return out
}

func (n *Network) Validate() error {
	if n == nil || len(n.Nodes) == 0 || len(n.Links) == 0 {
		return ErrEmptyTopology
	}
	return nil
}
