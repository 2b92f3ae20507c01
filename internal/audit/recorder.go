package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"saferental-service/internal/client"
	"saferental-service/internal/util"
)

// Audit event kinds recorded to ClickHouse.
const (
	EventOtpSent        = "otp_sent"
	EventOtpVerified    = "otp_verified"
	EventOtpRejected    = "otp_rejected"
	EventDeliveryFailed = "delivery_failed"
	EventFileAccess     = "file_access"
)

const insertAuditEvent = `
INSERT INTO verification_audit (event_type, agreement_id, user_type, contact_type, detail, occurred_at)
VALUES (?, ?, ?, ?, ?, ?)`

// DDL kept next to the insert; applied by saferentalctl migrate when a
// ClickHouse URL is configured.
const SchemaDDL = `
CREATE TABLE IF NOT EXISTS verification_audit (
	event_type   String,
	agreement_id String,
	user_type    String,
	contact_type String,
	detail       String,
	occurred_at  DateTime64(3)
) ENGINE = MergeTree()
ORDER BY (occurred_at, agreement_id)`

// Recorder writes verification audit rows. A nil Recorder drops everything;
// the audit trail is operational telemetry, missing infrastructure must not
// block verification.
type Recorder struct {
	ch *client.ClickHouseClient
}

func NewRecorder(ch *client.ClickHouseClient) *Recorder {
	if ch == nil {
		return nil
	}
	return &Recorder{ch: ch}
}

func (r *Recorder) Record(ctx context.Context, eventType, agreementID, userType, contactType, detail string) {
	if r == nil {
		return
	}

	if err := r.ch.AsyncInsert(ctx, insertAuditEvent,
		eventType, agreementID, userType, contactType, detail, time.Now().UTC()); err != nil {
		util.Error("Failed to record audit event",
			zap.String("event_type", eventType),
			zap.String("agreement_id", agreementID),
			zap.Error(err))
	}
}

// EnsureSchema creates the audit table.
func (r *Recorder) EnsureSchema(ctx context.Context) error {
	if r == nil {
		return nil
	}
	return r.ch.Exec(ctx, SchemaDDL)
}
