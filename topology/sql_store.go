package topology

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	log "github.com/sirupsen/logrus"
)

const (
	queryNodes = `
		SELECT node_id, node_type, supporting_node_id, supporting_clli, available_wavelengths
		FROM topology_nodes
		ORDER BY node_id`
	queryTerminationPoints = `
		SELECT node_id, tp_id, tp_type, associated_client_tp, used, used_trib_slots
		FROM topology_tps
		ORDER BY node_id, tp_id`
	queryLinks = `
		SELECT link_id, link_type, source, source_tp, dest, dest_tp, opposite_link, latency, srlgs, oper_state
		FROM topology_links
		ORDER BY link_id`
)

// DatabaseConfig holds the inventory database connection parameters.
type DatabaseConfig struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
	Address  string `toml:"address"`
	DBName   string `toml:"dbname"`
}

// SQLStore reads the topology from the inventory MySQL schema.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// ConnectToDB opens a MySQL pool for the inventory database.
func ConnectToDB(cfg DatabaseConfig) (*sql.DB, error) {
	address := cfg.Address
	if address == "" {
		address = "127.0.0.1:3306"
	}
	// DSN: [username[:password]@][protocol[(address)]]/dbname[?param1=value1&...]
	dsn := fmt.Sprintf("%s:%s@tcp(%s)/%s?charset=utf8&parseTime=True&loc=Local",
		cfg.Username, cfg.Password, address, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open inventory database failed: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping inventory database failed: %w", err)
	}
	log.Infof("inventory database connection pool initialized, address: %s, db: %s", address, cfg.DBName)
	return db, nil
}

func (s *SQLStore) Read(ctx context.Context) (*Network, error) {
	nodes, index, err := s.queryNodes(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.queryTerminationPoints(ctx, nodes, index); err != nil {
		return nil, err
	}
	links, err := s.queryLinks(ctx)
	if err != nil {
		return nil, err
	}

	network := &Network{Nodes: nodes, Links: links}
	if err := network.Validate(); err != nil {
		return nil, err
	}
	return network, nil
}

func (s *SQLStore) queryNodes(ctx context.Context) ([]Node, map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, queryNodes)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query topology nodes: %w", err)
	}
	defer rows.Close()

	var nodes []Node
	index := make(map[string]int)
	for rows.Next() {
		var node Node
		var clli, wavelengths sql.NullString
		if err := rows.Scan(&node.ID, &node.Type, &node.SupportingNodeID, &clli, &wavelengths); err != nil {
			return nil, nil, fmt.Errorf("failed to scan topology node: %w", err)
		}
		node.SupportingClli = clli.String
		node.AvailableWavelengths, err = parseIntList(wavelengths.String)
		if err != nil {
			return nil, nil, fmt.Errorf("node %s: bad available_wavelengths: %w", node.ID, err)
		}
		index[node.ID] = len(nodes)
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return nodes, index, nil
}

func (s *SQLStore) queryTerminationPoints(ctx context.Context, nodes []Node, index map[string]int) error {
	rows, err := s.db.QueryContext(ctx, queryTerminationPoints)
	if err != nil {
		return fmt.Errorf("failed to query termination points: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var nodeID string
		var tp TerminationPoint
		var client, tribSlots sql.NullString
		if err := rows.Scan(&nodeID, &tp.ID, &tp.Type, &client, &tp.Used, &tribSlots); err != nil {
			return fmt.Errorf("failed to scan termination point: %w", err)
		}
		tp.AssociatedClientTP = client.String
		if tp.UsedTribSlots, err = parseIntList(tribSlots.String); err != nil {
			return fmt.Errorf("invalid used_trib_slots for tp %s of %s: %w", tp.ID, nodeID, err)
		}
		i, ok := index[nodeID]
		if !ok {
			log.Warnf("queryTerminationPoints: tp %s references unknown node %s", tp.ID, nodeID)
			continue
		}
		nodes[i].TerminationPoints = append(nodes[i].TerminationPoints, tp)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows iteration error: %w", err)
	}
	return nil
}

func (s *SQLStore) queryLinks(ctx context.Context) ([]Link, error) {
	rows, err := s.db.QueryContext(ctx, queryLinks)
	if err != nil {
		return nil, fmt.Errorf("failed to query topology links: %w", err)
	}
	defer rows.Close()

	var links []Link
	for rows.Next() {
		var link Link
		var opposite, srlgs, operState sql.NullString
		var latency sql.NullInt64
		if err := rows.Scan(&link.ID, &link.Type, &link.Source, &link.SourceTP, &link.Dest, &link.DestTP,
			&opposite, &latency, &srlgs, &operState); err != nil {
			return nil, fmt.Errorf("failed to scan topology link: %w", err)
		}
		link.Opposite = opposite.String
		link.OperState = operState.String
		if latency.Valid && latency.Int64 >= 0 {
			v := uint32(latency.Int64)
			link.Latency = &v
		}
		values, err := parseIntList(srlgs.String)
		if err != nil {
			return nil, fmt.Errorf("link %s: bad srlgs: %w", link.ID, err)
		}
		for _, v := range values {
			link.SRLGs = append(link.SRLGs, uint32(v))
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return links, nil
}

// parseIntList parses the comma separated integer columns of the schema.
func parseIntList(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
