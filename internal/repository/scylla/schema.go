package scylla

import (
	"fmt"
	"strings"
	"time"

	"github.com/gocql/gocql"

	"saferental-service/internal/config"
	"saferental-service/internal/util"
)

// Tables for the three collections the core persists: agreements (plus a
// number lookup table enforcing agreement_number uniqueness), otp
// verifications, and the per-year counter.
var tableDDL = []string{
	`CREATE TABLE IF NOT EXISTS agreements (
		id text PRIMARY KEY,
		agreement_number text,
		tenant_full_name text,
		tenant_email text,
		tenant_phone text,
		tenant_dob text,
		tenant_address text,
		tenant_id_proof_url text,
		landlord_full_name text,
		landlord_email text,
		landlord_phone text,
		landlord_address text,
		landlord_id_proof_url text,
		property_address text,
		monthly_rent text,
		security_deposit text,
		lease_duration text,
		lease_start_date text,
		lease_end_date text,
		tenant_verified boolean,
		landlord_verified boolean,
		is_active boolean,
		pdf_url text,
		delivery_status text,
		created_at timestamp,
		updated_at timestamp
	)`,
	`CREATE TABLE IF NOT EXISTS agreements_by_number (
		agreement_number text PRIMARY KEY,
		agreement_id text
	)`,
	`CREATE TABLE IF NOT EXISTS otp_verifications (
		id text PRIMARY KEY,
		agreement_id text,
		contact_info text,
		contact_type text,
		user_type text,
		code_hash text,
		verified boolean,
		expires_at timestamp,
		created_at timestamp
	)`,
	`CREATE TABLE IF NOT EXISTS agreement_counters (
		year text PRIMARY KEY,
		seq int
	)`,
}

// Migrate creates the keyspace and tables. Used by saferentalctl; the server
// assumes the schema exists.
func Migrate(cfg *config.Config) error {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = 20 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return fmt.Errorf("failed to connect for migration: %w", err)
	}
	defer session.Close()

	keyspaceDDL := fmt.Sprintf(`CREATE KEYSPACE IF NOT EXISTS %s
		WITH replication = {'class': 'NetworkTopologyStrategy', 'replication_factor': 3}`,
		scyllaConfig.Keyspace)
	if err := session.Query(keyspaceDDL).Exec(); err != nil {
		return fmt.Errorf("failed to create keyspace: %w", err)
	}

	for _, ddl := range tableDDL {
		if err := session.Query(qualifyKeyspace(scyllaConfig.Keyspace, ddl)).Exec(); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	util.Info("Schema migration completed", util.String("keyspace", scyllaConfig.Keyspace))
	return nil
}

// qualifyKeyspace prefixes the table name in a CREATE TABLE statement with
// the keyspace, so migration can run on a session without a default keyspace.
func qualifyKeyspace(keyspace, ddl string) string {
	const marker = "IF NOT EXISTS "
	idx := strings.Index(ddl, marker)
	if idx < 0 {
		return ddl
	}
	pos := idx + len(marker)
	return ddl[:pos] + keyspace + "." + ddl[pos:]
}
