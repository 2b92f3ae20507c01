package notify

import (
	"context"

	"go.uber.org/zap"

	"saferental-service/internal/util"
)

// SMSStub is the phone-channel transport. No SMS provider is integrated; the
// code is logged so the flow can be exercised end to end.
type SMSStub struct{}

func NewSMSStub() *SMSStub {
	return &SMSStub{}
}

func (s *SMSStub) Send(ctx context.Context, contactInfo, code string) error {
	util.Info("SMS stub delivery",
		zap.String("to", contactInfo),
		zap.String("code", code))
	return nil
}
