package model

import (
	"errors"
	"fmt"
	"sort"

	"pce/topology"
)

var (
	ErrUnknownRole     = errors.New("model: unknown node role")
	ErrUsedNetworkTp   = errors.New("model: network termination point already in use")
	ErrUnmappedNetwork = errors.New("model: network termination point has no client mapping")
	ErrNoClientPort    = errors.New("model: no client port available")
)

type RoleKind string

const (
	RoleDegree  RoleKind = "DEGREE"
	RoleSrg     RoleKind = "SRG"
	RoleXponder RoleKind = "XPONDER"
)

// Role carries the role specific data of a node. Each implementation owns the
// validity rule for its termination points.
type Role interface {
	Kind() RoleKind
	Usable() bool
}

// NewRole initializes the role payload from the inventory node.
func NewRole(node *topology.Node) (Role, error) {
	switch node.Type {
	case topology.NodeTypeDegree:
		return DegreeRole{}, nil
	case topology.NodeTypeSrg:
		return NewSrgRole(node.TerminationPoints), nil
	case topology.NodeTypeXponder:
		return NewXponderRole(node.TerminationPoints), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownRole, node.Type)
}

// DegreeRole has no termination point requirements of its own.
type DegreeRole struct{}

func (DegreeRole) Kind() RoleKind { return RoleDegree }
func (DegreeRole) Usable() bool   { return true }

// SrgRole indexes the add/drop ports of an SRG by termination point type.
type SrgRole struct {
	// PPs holds the client facing pass-through ports, CPs the bare
	// cross-connect ports. Ids are sorted.
	PPs map[string][]string
	CPs map[string][]string
	// Unidirectional is set when the SRG has no TXRX pass-through port but
	// separate TX-only and RX-only ones.
	Unidirectional bool
}

func NewSrgRole(tps []topology.TerminationPoint) *SrgRole {
	r := &SrgRole{PPs: make(map[string][]string), CPs: make(map[string][]string)}
	for _, tp := range tps {
		if tp.Used {
			continue
		}
		switch tp.Type {
		case topology.TpSrgTxRxPP, topology.TpSrgTxPP, topology.TpSrgRxPP:
			r.PPs[tp.Type] = append(r.PPs[tp.Type], tp.ID)
		case topology.TpSrgTxRxCP, topology.TpSrgTxCP, topology.TpSrgRxCP:
			r.CPs[tp.Type] = append(r.CPs[tp.Type], tp.ID)
		}
	}
	for _, ids := range r.PPs {
		sort.Strings(ids)
	}
	for _, ids := range r.CPs {
		sort.Strings(ids)
	}
	r.Unidirectional = len(r.PPs[topology.TpSrgTxRxPP]) == 0 &&
		len(r.PPs[topology.TpSrgTxPP]) > 0 && len(r.PPs[topology.TpSrgRxPP]) > 0
	return r
}

func (r *SrgRole) Kind() RoleKind { return RoleSrg }

func (r *SrgRole) Usable() bool {
	return len(r.PPs) > 0
}

// ClientPort picks the pass-through port serving an add or drop link. The
// add direction receives from the transponder, so it prefers a TXRX port and
// falls back to an RX-only one; the drop direction falls back to TX-only.
// Among candidates the lowest id wins.
func (r *SrgRole) ClientPort(linkType LinkType) (string, error) {
	var fallback string
	switch linkType {
	case LinkAdd:
		fallback = topology.TpSrgRxPP
	case LinkDrop:
		fallback = topology.TpSrgTxPP
	default:
		return "", fmt.Errorf("%w: link type %s", ErrNoClientPort, linkType)
	}
	for _, tpType := range []string{topology.TpSrgTxRxPP, fallback} {
		if ids := r.PPs[tpType]; len(ids) > 0 {
			return ids[0], nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNoClientPort, linkType)
}

// XponderRole maps the transponder network ports to their client ports.
type XponderRole struct {
	ClientPerNetworkTp map[string]string
	UsedNetworkTps     map[string]bool
	// UsedTribSlots holds the occupied ODU4 trib slots per network port.
	UsedTribSlots map[string]map[int]bool
	// NetworkTps lists every network port in id order.
	NetworkTps []string
}

func NewXponderRole(tps []topology.TerminationPoint) *XponderRole {
	r := &XponderRole{
		ClientPerNetworkTp: make(map[string]string),
		UsedNetworkTps:     make(map[string]bool),
		UsedTribSlots:      make(map[string]map[int]bool),
	}
	for _, tp := range tps {
		if tp.Type != topology.TpXponderNetwork {
			continue
		}
		r.NetworkTps = append(r.NetworkTps, tp.ID)
		if tp.AssociatedClientTP != "" {
			r.ClientPerNetworkTp[tp.ID] = tp.AssociatedClientTP
		}
		if tp.Used {
			r.UsedNetworkTps[tp.ID] = true
		}
		for _, slot := range tp.UsedTribSlots {
			if r.UsedTribSlots[tp.ID] == nil {
				r.UsedTribSlots[tp.ID] = make(map[int]bool)
			}
			r.UsedTribSlots[tp.ID][slot] = true
		}
	}
	sort.Strings(r.NetworkTps)
	return r
}

func (r *XponderRole) Kind() RoleKind { return RoleXponder }

// Usable reports whether at least one mapped network port is free.
func (r *XponderRole) Usable() bool {
	for tp := range r.ClientPerNetworkTp {
		if !r.UsedNetworkTps[tp] {
			return true
		}
	}
	return false
}

// Client resolves the client port bound to a free network port.
func (r *XponderRole) Client(networkTp string) (string, error) {
	if r.UsedNetworkTps[networkTp] {
		return "", fmt.Errorf("%w: %s", ErrUsedNetworkTp, networkTp)
	}
	client, ok := r.ClientPerNetworkTp[networkTp]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnmappedNetwork, networkTp)
	}
	return client, nil
}

// PortOrdinal returns the 1-based position of networkTp among the network
// ports, or 0 if it is not one.
func (r *XponderRole) PortOrdinal(networkTp string) int {
	i := sort.SearchStrings(r.NetworkTps, networkTp)
	if i < len(r.NetworkTps) && r.NetworkTps[i] == networkTp {
		return i + 1
	}
	return 0
}

// TribSlotsFree reports whether the n slots starting at first are inside the
// ODU4 and unused on networkTp.
func (r *XponderRole) TribSlotsFree(networkTp string, first, n int) bool {
	if first < 1 || n < 1 || first+n-1 > TribSlotsPerODU4 {
		return false
	}
	used := r.UsedTribSlots[networkTp]
	for slot := first; slot < first+n; slot++ {
		if used[slot] {
			return false
		}
	}
	return true
}
