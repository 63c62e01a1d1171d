package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pce/topology"
)

func TestWavelengthSet(t *testing.T) {
	s := NewWavelengthSet(9, 1, 96, 0, 97, 64, 65)
	assert.Equal(t, []int{1, 9, 64, 65, 96}, s.Slice())
	assert.Equal(t, 5, s.Len())
	assert.True(t, s.Contains(64))
	assert.False(t, s.Contains(0))
	assert.False(t, s.Contains(97))

	var empty WavelengthSet
	assert.True(t, empty.Empty())
	assert.Equal(t, MaxWavelength, FullWavelengthSet().Len())
}

func TestCenterFrequency(t *testing.T) {
	assert.InDelta(t, 196.10, CenterFrequency(1), 1e-9)
	assert.InDelta(t, 195.70, CenterFrequency(9), 1e-9)
	assert.InDelta(t, 191.35, CenterFrequency(96), 1e-9)
	assert.Zero(t, CenterFrequency(0))
}

func TestOrderedMap(t *testing.T) {
	m := NewNodeMap()
	for _, id := range []string{"c", "a", "b", "a"} {
		m.Put(id, &Node{ID: id})
	}
	assert.Equal(t, []string{"a", "b", "c"}, m.Keys())
	assert.Equal(t, 3, m.Len())

	m.Delete("b")
	m.Delete("missing")
	var visited []string
	m.Each(func(key string, n *Node) { visited = append(visited, n.ID) })
	assert.Equal(t, []string{"a", "c"}, visited)

	_, ok := m.Get("b")
	assert.False(t, ok)
}

func TestSrgRole(t *testing.T) {
	tests := []struct {
		name     string
		tps      []topology.TerminationPoint
		uni      bool
		addPort  string
		dropPort string
	}{
		{
			name: "bidirectional prefers lowest TXRX",
			tps: []topology.TerminationPoint{
				{ID: "SRG1-PP2-TXRX", Type: topology.TpSrgTxRxPP},
				{ID: "SRG1-PP1-TXRX", Type: topology.TpSrgTxRxPP},
				{ID: "SRG1-PP3-RX", Type: topology.TpSrgRxPP},
			},
			addPort:  "SRG1-PP1-TXRX",
			dropPort: "SRG1-PP1-TXRX",
		},
		{
			name: "unidirectional splits by direction",
			tps: []topology.TerminationPoint{
				{ID: "SRG1-PP1-TX", Type: topology.TpSrgTxPP},
				{ID: "SRG1-PP1-RX", Type: topology.TpSrgRxPP},
				{ID: "SRG1-CP-TX", Type: topology.TpSrgTxCP},
			},
			uni:      true,
			addPort:  "SRG1-PP1-RX",
			dropPort: "SRG1-PP1-TX",
		},
		{
			name: "used ports skipped",
			tps: []topology.TerminationPoint{
				{ID: "SRG1-PP1-TXRX", Type: topology.TpSrgTxRxPP, Used: true},
				{ID: "SRG1-PP2-TXRX", Type: topology.TpSrgTxRxPP},
			},
			addPort:  "SRG1-PP2-TXRX",
			dropPort: "SRG1-PP2-TXRX",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewSrgRole(tt.tps)
			assert.True(t, r.Usable())
			assert.Equal(t, tt.uni, r.Unidirectional)

			add, err := r.ClientPort(LinkAdd)
			require.NoError(t, err)
			assert.Equal(t, tt.addPort, add)

			drop, err := r.ClientPort(LinkDrop)
			require.NoError(t, err)
			assert.Equal(t, tt.dropPort, drop)
		})
	}

	onlyCP := NewSrgRole([]topology.TerminationPoint{{ID: "CP", Type: topology.TpSrgTxRxCP}})
	assert.False(t, onlyCP.Usable())
	_, err := onlyCP.ClientPort(LinkAdd)
	assert.ErrorIs(t, err, ErrNoClientPort)
	_, err = onlyCP.ClientPort(LinkExpress)
	assert.ErrorIs(t, err, ErrNoClientPort)
}

func TestXponderRole(t *testing.T) {
	r := NewXponderRole([]topology.TerminationPoint{
		{ID: "XPDR1-NETWORK2", Type: topology.TpXponderNetwork, AssociatedClientTP: "XPDR1-CLIENT2", Used: true},
		{ID: "XPDR1-NETWORK1", Type: topology.TpXponderNetwork, AssociatedClientTP: "XPDR1-CLIENT1"},
		{ID: "XPDR1-NETWORK3", Type: topology.TpXponderNetwork},
		{ID: "XPDR1-CLIENT1", Type: topology.TpXponderClient},
	})
	assert.True(t, r.Usable())
	assert.Equal(t, []string{"XPDR1-NETWORK1", "XPDR1-NETWORK2", "XPDR1-NETWORK3"}, r.NetworkTps)

	client, err := r.Client("XPDR1-NETWORK1")
	require.NoError(t, err)
	assert.Equal(t, "XPDR1-CLIENT1", client)

	_, err = r.Client("XPDR1-NETWORK2")
	assert.ErrorIs(t, err, ErrUsedNetworkTp)
	_, err = r.Client("XPDR1-NETWORK3")
	assert.ErrorIs(t, err, ErrUnmappedNetwork)

	assert.Equal(t, 2, r.PortOrdinal("XPDR1-NETWORK2"))
	assert.Equal(t, 0, r.PortOrdinal("XPDR1-CLIENT1"))

	allUsed := NewXponderRole([]topology.TerminationPoint{
		{ID: "N1", Type: topology.TpXponderNetwork, AssociatedClientTP: "C1", Used: true},
	})
	assert.False(t, allUsed.Usable())
}

func TestXponderRoleTribSlots(t *testing.T) {
	r := NewXponderRole([]topology.TerminationPoint{
		{ID: "XPDR1-NETWORK1", Type: topology.TpXponderNetwork, AssociatedClientTP: "XPDR1-CLIENT1", UsedTribSlots: []int{1, 2, 3, 4, 5, 6, 7, 8}},
		{ID: "XPDR1-NETWORK2", Type: topology.TpXponderNetwork, AssociatedClientTP: "XPDR1-CLIENT2"},
	})

	tests := []struct {
		name  string
		tp    string
		first int
		n     int
		want  bool
	}{
		{"used block", "XPDR1-NETWORK1", 1, 8, false},
		{"overlaps used", "XPDR1-NETWORK1", 8, 2, false},
		{"after used", "XPDR1-NETWORK1", 9, 8, true},
		{"free port", "XPDR1-NETWORK2", 1, 80, true},
		{"past odu4", "XPDR1-NETWORK2", 73, 9, false},
		{"slot zero", "XPDR1-NETWORK2", 0, 1, false},
		{"unknown port", "XPDR1-NETWORK9", 1, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.TribSlotsFree(tt.tp, tt.first, tt.n))
		})
	}
}

func TestNodeValidity(t *testing.T) {
	n := &Node{ID: "ROADM-A-DEG1", Role: DegreeRole{}}
	assert.False(t, n.Valid(), "no wavelengths")
	n.Wavelengths = NewWavelengthSet(3)
	assert.True(t, n.Valid())

	_, err := NewRole(&topology.Node{Type: "ILA"})
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestGraphRemoveNode(t *testing.T) {
	g := NewGraph()
	for _, id := range []string{"A", "B", "C"} {
		g.Nodes.Put(id, &Node{ID: id, Role: DegreeRole{}, Wavelengths: FullWavelengthSet()})
	}
	g.AddLink(&Link{ID: "A-B", Source: "A", Dest: "B"})
	g.AddLink(&Link{ID: "B-C", Source: "B", Dest: "C"})
	g.AddLink(&Link{ID: "A-C", Source: "A", Dest: "C"})

	a, _ := g.Nodes.Get("A")
	assert.Equal(t, []string{"A-B", "A-C"}, a.OutgoingLinks)

	g.RemoveNode("B")
	assert.Equal(t, []string{"A-C"}, g.Links.Keys())
	assert.Equal(t, []string{"A-C"}, a.OutgoingLinks)
	assert.Equal(t, []string{"A", "C"}, g.Nodes.Keys())
}

func TestServiceSubLambda(t *testing.T) {
	tests := []struct {
		svc   Service
		sub   bool
		slots int
	}{
		{Service{Format: FormatEthernet, Rate: 100}, false, 0},
		{Service{Format: FormatOTU, Rate: 10}, false, 8},
		{Service{Format: FormatODU, Rate: 10}, true, 8},
		{Service{Format: FormatEthernet, Rate: 1}, true, 1},
		{Service{Format: FormatODU, Rate: 40}, true, 32},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.sub, tt.svc.SubLambda(), "%+v", tt.svc)
		slots, _ := tt.svc.TribSlots()
		assert.Equal(t, tt.slots, slots, "%+v", tt.svc)
	}
}
