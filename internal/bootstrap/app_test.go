package bootstrap

import (
	"context"
	"testing"

	domainErrors "github.com/roboyicecream/kioskpay/internal/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// New registers metrics on the default registry, so it runs once per
// test binary.
func TestNew_StartsWithoutMailServer(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("KIOSK_COIN_DRIVER", "simulated")
	t.Setenv("KIOSK_MAIL_HOST", "127.0.0.1")
	t.Setenv("KIOSK_MAIL_PORT", "1")
	t.Setenv("KIOSK_MAIL_USERNAME", "kiosk@example.com")
	t.Setenv("KIOSK_MAIL_PASSWORD", "secret")
	t.Setenv("KIOSK_MAIL_CONNECT_RETRIES", "1")
	t.Setenv("KIOSK_MAIL_DIAL_TIMEOUT", "500ms")
	t.Setenv("KIOSK_OBSERVABILITY_LOG_LEVEL", "error")

	ctx := context.Background()
	app, err := New(ctx, "kioskpay-test", "kioskpay_test")
	require.NoError(t, err)
	defer app.Close()

	require.NotNil(t, app.Engine)
	require.NotNil(t, app.Simulator)

	// readiness reports the mailbox down
	assert.ErrorIs(t, app.Oracle.Ping(ctx), domainErrors.ErrOracleUnavailable)

	// electronic sales fail per call
	_, err = app.Oracle.PendingCount(ctx)
	assert.ErrorIs(t, err, domainErrors.ErrOracleUnavailable)
}
