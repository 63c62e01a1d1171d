package topology

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nodeRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"node_id", "node_type", "supporting_node_id", "supporting_clli", "available_wavelengths"}).
		AddRow("ROADM-A-DEG1", NodeTypeDegree, "ROADM-A", nil, "1,2,3").
		AddRow("XPDR-A-XPDR1", NodeTypeXponder, "XPDR-A", "CLLI-A", nil)
}

func tpRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"node_id", "tp_id", "tp_type", "associated_client_tp", "used", "used_trib_slots"}).
		AddRow("ROADM-A-DEG1", "DEG1-TTP-TXRX", TpDegreeTTP, nil, false, nil).
		AddRow("XPDR-A-XPDR1", "XPDR1-NETWORK1", TpXponderNetwork, "XPDR1-CLIENT1", false, "1,2,3").
		AddRow("XPDR-A-XPDR1", "XPDR1-CLIENT1", TpXponderClient, nil, true, nil).
		AddRow("GHOST", "X", TpXponderClient, nil, false, nil)
}

func linkRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"link_id", "link_type", "source", "source_tp", "dest", "dest_tp", "opposite_link", "latency", "srlgs", "oper_state"}).
		AddRow("L1", LinkRoadmToRoadm, "ROADM-A-DEG1", "DEG1-TTP-TXRX", "ROADM-B-DEG1", "DEG1-TTP-TXRX", "L2", 12, "7, 9", "inService").
		AddRow("L2", LinkRoadmToRoadm, "ROADM-B-DEG1", "DEG1-TTP-TXRX", "ROADM-A-DEG1", "DEG1-TTP-TXRX", "L1", nil, nil, nil)
}

func TestSQLStoreRead(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM topology_nodes(.*)").WillReturnRows(nodeRows())
	mock.ExpectQuery("SELECT (.+) FROM topology_tps(.*)").WillReturnRows(tpRows())
	mock.ExpectQuery("SELECT (.+) FROM topology_links(.*)").WillReturnRows(linkRows())

	network, err := NewSQLStore(db).Read(context.Background())
	require.NoError(t, err)

	require.Len(t, network.Nodes, 2)
	assert.Equal(t, []int{1, 2, 3}, network.Nodes[0].AvailableWavelengths)
	assert.Empty(t, network.Nodes[0].SupportingClli)
	assert.Len(t, network.Nodes[0].TerminationPoints, 1)

	xpdr := network.Nodes[1]
	assert.Equal(t, "CLLI-A", xpdr.SupportingClli)
	require.Len(t, xpdr.TerminationPoints, 2)
	assert.Equal(t, "XPDR1-CLIENT1", xpdr.TerminationPoints[0].AssociatedClientTP)
	assert.Equal(t, []int{1, 2, 3}, xpdr.TerminationPoints[0].UsedTribSlots)
	assert.Empty(t, xpdr.TerminationPoints[1].UsedTribSlots)
	assert.True(t, xpdr.TerminationPoints[1].Used)

	require.Len(t, network.Links, 2)
	require.NotNil(t, network.Links[0].Latency)
	assert.Equal(t, uint32(12), *network.Links[0].Latency)
	assert.Equal(t, []uint32{7, 9}, network.Links[0].SRLGs)
	assert.Equal(t, "inService", network.Links[0].OperState)
	assert.Nil(t, network.Links[1].Latency, "NULL latency stays absent")
	assert.Equal(t, "L1", network.Links[1].Opposite)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreReadErrors(t *testing.T) {
	t.Run("node query fails", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery("SELECT (.+) FROM topology_nodes(.*)").WillReturnError(errors.New("connection reset"))

		_, err = NewSQLStore(db).Read(context.Background())
		assert.ErrorContains(t, err, "connection reset")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("bad wavelength list", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		rows := sqlmock.NewRows([]string{"node_id", "node_type", "supporting_node_id", "supporting_clli", "available_wavelengths"}).
			AddRow("ROADM-A-DEG1", NodeTypeDegree, "ROADM-A", nil, "1,x")
		mock.ExpectQuery("SELECT (.+) FROM topology_nodes(.*)").WillReturnRows(rows)

		_, err = NewSQLStore(db).Read(context.Background())
		assert.ErrorContains(t, err, "ROADM-A-DEG1")
	})

	t.Run("empty topology", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery("SELECT (.+) FROM topology_nodes(.*)").WillReturnRows(nodeRows())
		mock.ExpectQuery("SELECT (.+) FROM topology_tps(.*)").WillReturnRows(tpRows())
		mock.ExpectQuery("SELECT (.+) FROM topology_links(.*)").
			WillReturnRows(sqlmock.NewRows([]string{"link_id", "link_type", "source", "source_tp", "dest", "dest_tp", "opposite_link", "latency", "srlgs", "oper_state"}))

		_, err = NewSQLStore(db).Read(context.Background())
		assert.ErrorIs(t, err, ErrEmptyTopology)
	})
}

func TestParseIntList(t *testing.T) {
	tests := []struct {
		in      string
		want    []int
		wantErr bool
	}{
		{"", nil, false},
		{"  ", nil, false},
		{"5", []int{5}, false},
		{"1, 2 ,3", []int{1, 2, 3}, false},
		{"1,,2", nil, true},
	}
	for _, tt := range tests {
		got, err := parseIntList(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		assert.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
