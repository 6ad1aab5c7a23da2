package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/stacklok/toolhive-registry-bridge/internal/registry"
)

// DBTX is the subset of pgxpool.Pool and pgx.Conn used by PostgresSink
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// column maps a record field to its column in bridge_instances
type column struct {
	field registry.Field
	name  string
	json  bool
}

var columns = []column{
	{field: registry.FieldApp, name: "app"},
	{field: registry.FieldAppGroup, name: "app_group"},
	{field: registry.FieldASGName, name: "asg_name"},
	{field: registry.FieldStatus, name: "status"},
	{field: registry.FieldMetadata, name: "metadata", json: true},
	{field: registry.FieldHostName, name: "host_name"},
	{field: registry.FieldIPAddr, name: "ip_addr"},
	{field: registry.FieldPort, name: "port"},
	{field: registry.FieldSecurePort, name: "secure_port"},
	{field: registry.FieldVIPAddress, name: "vip_address"},
	{field: registry.FieldSecureVIPAddress, name: "secure_vip_address"},
	{field: registry.FieldDataCenter, name: "data_center", json: true},
	{field: registry.FieldURLs, name: "urls", json: true},
}

const selectColumns = `id, app, app_group, asg_name, status, metadata, host_name, ip_addr, port,
	secure_port, vip_address, secure_vip_address, data_center, urls`

// PostgresSink stores records as rows of the bridge_instances table
type PostgresSink struct {
	db DBTX
}

var _ ReadWriter = (*PostgresSink)(nil)

// NewPostgresSink creates a sink on top of a pgx pool or connection
func NewPostgresSink(db DBTX) *PostgresSink {
	return &PostgresSink{db: db}
}

// Register upserts every column
func (s *PostgresSink) Register(ctx context.Context, rec registry.InstanceRecord) error {
	if err := s.upsert(ctx, rec, registry.AllFields); err != nil {
		return fmt.Errorf("failed to register instance %s: %w", rec.ID, err)
	}
	return nil
}

// Update inserts the full row when absent and otherwise rewrites only the changed columns
func (s *PostgresSink) Update(ctx context.Context, rec registry.InstanceRecord, changes registry.ChangeSet) error {
	if err := s.upsert(ctx, rec, changes); err != nil {
		return fmt.Errorf("failed to update instance %s: %w", rec.ID, err)
	}
	return nil
}

func (s *PostgresSink) upsert(ctx context.Context, rec registry.InstanceRecord, changed []registry.Field) error {
	names := make([]string, 0, len(columns)+1)
	placeholders := make([]string, 0, len(columns)+1)
	args := make([]any, 0, len(columns)+1)

	names = append(names, "id")
	placeholders = append(placeholders, "$1")
	args = append(args, rec.ID)

	updates := make([]string, 0, len(changed)+1)
	for _, col := range columns {
		value, err := columnValue(&rec, col)
		if err != nil {
			return err
		}
		args = append(args, value)
		ph := fmt.Sprintf("$%d", len(args))
		if col.json {
			ph += "::jsonb"
		}
		names = append(names, col.name)
		placeholders = append(placeholders, ph)

		if registry.ChangeSet(changed).Has(col.field) {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", col.name, col.name))
		}
	}

	conflict := "DO NOTHING"
	if len(updates) > 0 {
		updates = append(updates, "updated_at = now()")
		conflict = "DO UPDATE SET " + strings.Join(updates, ", ")
	}

	query := fmt.Sprintf(
		"INSERT INTO bridge_instances (%s) VALUES (%s) ON CONFLICT (id) %s",
		strings.Join(names, ", "),
		strings.Join(placeholders, ", "),
		conflict,
	)
	_, err := s.db.Exec(ctx, query, args...)
	return err
}

// Unregister deletes the row
func (s *PostgresSink) Unregister(ctx context.Context, rec registry.InstanceRecord) error {
	if _, err := s.db.Exec(ctx, "DELETE FROM bridge_instances WHERE id = $1", rec.ID); err != nil {
		return fmt.Errorf("failed to unregister instance %s: %w", rec.ID, err)
	}
	return nil
}

// Get reads one row
func (s *PostgresSink) Get(ctx context.Context, id string) (registry.InstanceRecord, error) {
	row := s.db.QueryRow(ctx, "SELECT "+selectColumns+" FROM bridge_instances WHERE id = $1", id)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return registry.InstanceRecord{}, ErrNotFound
	}
	if err != nil {
		return registry.InstanceRecord{}, fmt.Errorf("failed to read instance %s: %w", id, err)
	}
	return rec, nil
}

// List reads every row ordered by id
func (s *PostgresSink) List(ctx context.Context) ([]registry.InstanceRecord, error) {
	rows, err := s.db.Query(ctx, "SELECT "+selectColumns+" FROM bridge_instances ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	defer rows.Close()

	var out []registry.InstanceRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	return out, nil
}

// Count returns the number of rows
func (s *PostgresSink) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, "SELECT count(*) FROM bridge_instances").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count instances: %w", err)
	}
	return n, nil
}

func columnValue(rec *registry.InstanceRecord, col column) (any, error) {
	if col.json {
		data, err := json.Marshal(fieldRef(rec, col.field))
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", col.name, err)
		}
		return string(data), nil
	}
	switch v := fieldRef(rec, col.field).(type) {
	case *string:
		return *v, nil
	case *int:
		return *v, nil
	case *registry.Status:
		return string(*v), nil
	default:
		return nil, fmt.Errorf("unsupported column %s", col.name)
	}
}

func scanRecord(row pgx.Row) (registry.InstanceRecord, error) {
	var (
		rec                         registry.InstanceRecord
		status                      string
		metadata, dataCenter, links []byte
	)
	err := row.Scan(
		&rec.ID,
		&rec.App,
		&rec.AppGroup,
		&rec.ASGName,
		&status,
		&metadata,
		&rec.Location.HostName,
		&rec.Location.IPAddr,
		&rec.Location.Port,
		&rec.Location.SecurePort,
		&rec.Location.VIPAddress,
		&rec.Location.SecureVIPAddress,
		&dataCenter,
		&links,
	)
	if err != nil {
		return registry.InstanceRecord{}, err
	}
	rec.Status = registry.Status(status)

	for _, part := range []struct {
		raw []byte
		dst any
	}{
		{metadata, &rec.Metadata},
		{dataCenter, &rec.DataCenter},
		{links, &rec.URLs},
	} {
		if len(part.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(part.raw, part.dst); err != nil {
			return registry.InstanceRecord{}, err
		}
	}
	return rec, nil
}
