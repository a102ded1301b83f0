//go:build integration

package ledger

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onenesskingdom/oneness-ledger/internal/transactions"
	"github.com/onenesskingdom/oneness-ledger/pkg/config"
	dbpkg "github.com/onenesskingdom/oneness-ledger/pkg/db"
	"github.com/onenesskingdom/oneness-ledger/pkg/db/models"
	"github.com/onenesskingdom/oneness-ledger/pkg/enums"
	pkgerrors "github.com/onenesskingdom/oneness-ledger/pkg/errors"
	"github.com/onenesskingdom/oneness-ledger/pkg/logger"
	"github.com/onenesskingdom/oneness-ledger/pkg/migrate"
	"github.com/onenesskingdom/oneness-ledger/pkg/outbox"
)

// Run with: ONENESS_TEST_DB_DSN=postgres://... go test -tags integration ./internal/ledger/
func openPostgres(t *testing.T) *dbpkg.Client {
	t.Helper()
	dsn := os.Getenv("ONENESS_TEST_DB_DSN")
	if dsn == "" {
		t.Skip("ONENESS_TEST_DB_DSN not set")
	}
	ctx := context.Background()
	client, err := dbpkg.New(ctx, config.DBConfig{DSN: dsn, MaxOpenConns: 20, MaxIdleConns: 5}, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	sqlDB, err := client.DB().DB()
	require.NoError(t, err)
	require.NoError(t, migrate.Run(ctx, sqlDB, "../../pkg/migrate/migrations", "up"))
	return client
}

func TestPostgresConcurrentTipsCannotOverdraw(t *testing.T) {
	client := openPostgres(t)
	conn := client.DB()
	logg := logger.Nop()
	repo := NewRepository(conn)
	svc, err := NewService(ServiceParams{
		DB:           client,
		Repository:   repo,
		Transactions: transactions.NewRepository(conn),
		Outbox:       outbox.NewService(outbox.NewRepository(conn), logg),
		Logger:       logg,
	})
	require.NoError(t, err)

	ctx := context.Background()
	account := func(opening int64) uuid.UUID {
		id := uuid.New()
		now := time.Now().UTC()
		require.NoError(t, conn.Create(&models.Profile{
			ID:          id,
			Username:    "it-" + id.String()[:12],
			DisplayName: "integration",
			CreatedAt:   now,
			UpdatedAt:   now,
		}).Error)
		if opening > 0 {
			require.NoError(t, repo.Insert(ctx, models.LedgerEntry{
				UserID:        id,
				Amount:        opening,
				Type:          enums.LedgerEntryWelcomeBonus,
				CorrelationID: uuid.New(),
				CreatedAt:     now,
			}))
		}
		return id
	}
	sender, recipient := account(100), account(0)

	const attempts = 12
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Transfer(ctx, TransferInput{
				Kind:        enums.TransferTip,
				SenderID:    sender,
				RecipientID: recipient,
				Amount:      30,
			})
			mu.Lock()
			defer mu.Unlock()
			switch typed := pkgerrors.As(err); {
			case err == nil:
				succeeded++
			case typed != nil && typed.Code() == pkgerrors.CodeInsufficientBalance:
				rejected++
			default:
				t.Errorf("unexpected transfer error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
	assert.Equal(t, attempts-3, rejected)

	senderBalance, err := svc.Balance(ctx, sender)
	require.NoError(t, err)
	recipientBalance, err := svc.Balance(ctx, recipient)
	require.NoError(t, err)
	assert.Equal(t, int64(10), senderBalance)
	assert.Equal(t, int64(90), recipientBalance)
}
