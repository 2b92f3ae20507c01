package scylla

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"saferental-service/internal/config"
	"saferental-service/internal/util"
)

// PreparedStatements holds the hot-path statements used by the repositories.
type PreparedStatements struct {
	CreateAgreement  *gocql.Query
	GetAgreementByID *gocql.Query
	GetNumberLookup  *gocql.Query
	CreateOtp        *gocql.Query
	GetOtpByID       *gocql.Query
	MarkOtpVerified  *gocql.Query
}

type ScyllaClient struct {
	Session      *gocql.Session
	config       *config.ScyllaConfig
	Prepared     *PreparedStatements
	prepareMutex sync.Mutex
	isPrepared   bool
}

func NewScyllaClient(cfg *config.Config, logger *zap.Logger) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.SerialConsistency = gocql.Serial
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	client := &ScyllaClient{
		Session: session,
		config:  &scyllaConfig,
	}

	if err := client.prepareStatements(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	util.Info("ScyllaDB client initialized",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return client, nil
}

const agreementColumns = `id, agreement_number,
	tenant_full_name, tenant_email, tenant_phone, tenant_dob, tenant_address, tenant_id_proof_url,
	landlord_full_name, landlord_email, landlord_phone, landlord_address, landlord_id_proof_url,
	property_address, monthly_rent, security_deposit, lease_duration, lease_start_date, lease_end_date,
	tenant_verified, landlord_verified, is_active, pdf_url, delivery_status, created_at, updated_at`

func (s *ScyllaClient) prepareStatements() error {
	s.prepareMutex.Lock()
	defer s.prepareMutex.Unlock()

	if s.isPrepared {
		return nil
	}

	prepared := &PreparedStatements{}

	prepared.CreateAgreement = s.Session.Query(`
	INSERT INTO agreements (` + agreementColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.GetAgreementByID = s.Session.Query(`
	SELECT ` + agreementColumns + ` FROM agreements WHERE id = ?`)

	prepared.GetNumberLookup = s.Session.Query(`
	SELECT agreement_id FROM agreements_by_number WHERE agreement_number = ?`)

	prepared.CreateOtp = s.Session.Query(`
	INSERT INTO otp_verifications (id, agreement_id, contact_info, contact_type, user_type,
		code_hash, verified, expires_at, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.GetOtpByID = s.Session.Query(`
	SELECT id, agreement_id, contact_info, contact_type, user_type, code_hash,
		verified, expires_at, created_at
	FROM otp_verifications WHERE id = ?`)

	prepared.MarkOtpVerified = s.Session.Query(`
	UPDATE otp_verifications SET verified = true WHERE id = ?`)

	s.Prepared = prepared
	s.isPrepared = true

	return nil
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

func (s *ScyllaClient) Query(stmt string, values ...interface{}) *gocql.Query {
	return s.Session.Query(stmt, values...)
}

func (s *ScyllaClient) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}
	return nil
}

func (s *ScyllaClient) ExecuteWithRetry(query *gocql.Query, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if err := query.Exec(); err != nil {
			lastErr = err
			if i < maxRetries {
				time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
				continue
			}
		} else {
			return nil
		}
	}
	return lastErr
}
