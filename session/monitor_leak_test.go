package session_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-session-keeper/exchange"
	exchangefakerepo "github.com/jrsteele09/go-session-keeper/exchange/repofake"
	"github.com/jrsteele09/go-session-keeper/idp"
	idpfakerepo "github.com/jrsteele09/go-session-keeper/idp/repofake"
	"github.com/jrsteele09/go-session-keeper/internal/testutil"
	notifyfakerepo "github.com/jrsteele09/go-session-keeper/notify/repofake"
	"github.com/jrsteele09/go-session-keeper/renewal"
	"github.com/jrsteele09/go-session-keeper/session"
	"github.com/jrsteele09/go-session-keeper/token"
	tokenfakerepo "github.com/jrsteele09/go-session-keeper/token/repofake"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMonitor_NoGoroutinesOutliveStop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	store := tokenfakerepo.NewFakeTokenStore()
	exchanger := exchangefakerepo.NewFakeExchanger(exchange.Result{AccessToken: testutil.MintTokenIn(time.Now(), time.Hour)})
	coordinator, err := renewal.New(renewal.Deps{
		Store:     store,
		Provider:  idpfakerepo.NewFakeProvider(idp.Tokens{}),
		Refresher: exchanger,
	}, renewal.WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	// Access inside the warning threshold keeps renewals running; refresh
	// inside it keeps a countdown running.
	now := time.Now()
	require.NoError(t, coordinator.Establish(testutil.MintTokenIn(now, time.Minute), testutil.MintTokenIn(now, 4*time.Minute)))

	gateway := notifyfakerepo.NewFakeGateway()
	monitor, err := session.NewMonitor(session.Deps{
		Calculator: token.NewCalculator(store),
		Renewer:    coordinator,
		Clearer:    coordinator,
		Gateway:    gateway,
	},
		session.WithLogger(zerolog.Nop()),
		session.WithSettings(session.Settings{
			CheckInterval:    10 * time.Millisecond,
			WarningThreshold: session.DefaultWarningThreshold,
			CountdownTick:    5 * time.Millisecond,
		}),
	)
	require.NoError(t, err)

	require.NoError(t, monitor.Start(session.RefreshMode))
	require.Eventually(t, func() bool {
		return monitor.State().Checks >= 3 && len(gateway.Warnings()) == 1
	}, 2*time.Second, time.Millisecond)

	monitor.Stop()
	require.False(t, monitor.State().Running)
	require.Zero(t, monitor.State().Countdowns)
}
