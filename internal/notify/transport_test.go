package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransportsFor(t *testing.T) {
	sms := NewSMSStub()
	transports := Transports{"phone": sms}

	got, ok := transports.For("phone")
	require.True(t, ok)
	assert.Equal(t, sms, got)

	_, ok = transports.For("email")
	assert.False(t, ok)

	_, ok = Transports(nil).For("phone")
	assert.False(t, ok)
}

func TestSMSStubSend(t *testing.T) {
	err := NewSMSStub().Send(context.Background(), "+919812345678", "123456")
	assert.NoError(t, err)
}
