package repo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"companion/internal/domain"
	"companion/internal/infra"
	"companion/internal/sqlinline"
)

type fakeRow struct {
	vals []any
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.vals) {
		return fmt.Errorf("scan: want %d columns, got %d", len(r.vals), len(dest))
	}
	for i, d := range dest {
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(r.vals[i]))
	}
	return nil
}

// scriptedSQL answers QueryRow by query constant.
type scriptedSQL struct {
	rows  map[string]fakeRow
	calls []string
}

func (s *scriptedSQL) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errors.New("unexpected exec")
}

func (s *scriptedSQL) QueryRow(_ context.Context, query string, _ ...any) pgx.Row {
	s.calls = append(s.calls, query)
	row, ok := s.rows[query]
	if !ok {
		return fakeRow{err: errors.New("unexpected query")}
	}
	return row
}

func (s *scriptedSQL) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("unexpected query")
}

func TestWalletDebitReturnsNewBalance(t *testing.T) {
	sql := &scriptedSQL{rows: map[string]fakeRow{
		sqlinline.QDebitWallet: {vals: []any{13}},
	}}
	repo := NewWalletRepository(sql)

	coins, err := repo.Debit(context.Background(), "u1", 7)
	require.NoError(t, err)
	require.Equal(t, 13, coins)
	require.Len(t, sql.calls, 1)
}

func TestWalletDebitDistinguishesMissingFromShort(t *testing.T) {
	short := &scriptedSQL{rows: map[string]fakeRow{
		sqlinline.QDebitWallet:  {err: pgx.ErrNoRows},
		sqlinline.QWalletExists: {vals: []any{true}},
	}}
	_, err := NewWalletRepository(short).Debit(context.Background(), "u1", 7)
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)

	missing := &scriptedSQL{rows: map[string]fakeRow{
		sqlinline.QDebitWallet:  {err: pgx.ErrNoRows},
		sqlinline.QWalletExists: {vals: []any{false}},
	}}
	_, err = NewWalletRepository(missing).Debit(context.Background(), "ghost", 7)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestWalletRejectsNonPositiveAmounts(t *testing.T) {
	repo := NewWalletRepository(&scriptedSQL{})
	_, err := repo.Debit(context.Background(), "u1", 0)
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = repo.Credit(context.Background(), "u1", -3)
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestWalletGetMapsNoRows(t *testing.T) {
	sql := &scriptedSQL{rows: map[string]fakeRow{
		sqlinline.QSelectWalletByUserID: {err: pgx.ErrNoRows},
	}}
	_, err := NewWalletRepository(sql).Get(context.Background(), "u1")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestWalletCreateOrGetScansRow(t *testing.T) {
	now := time.Now().UTC()
	sql := &scriptedSQL{rows: map[string]fakeRow{
		sqlinline.QCreateOrGetWallet: {vals: []any{"u1", "a@example.com", 20, now, now}},
	}}
	w, err := NewWalletRepository(sql).CreateOrGet(context.Background(), "u1", " a@example.com ", 20)
	require.NoError(t, err)
	require.Equal(t, &domain.Wallet{UserID: "u1", Email: "a@example.com", Coins: 20, CreatedAt: now, UpdatedAt: now}, w)
}

// startPostgres runs a throwaway postgres:16-alpine container with the
// wallet schema applied. Skipped unless GO_TEST_INTEGRATION is set.
func startPostgres(t *testing.T) *WalletRepositoryPG {
	t.Helper()
	if os.Getenv("GO_TEST_INTEGRATION") == "" {
		t.Skip("integration tests are disabled (set GO_TEST_INTEGRATION=1)")
	}

	ctx := context.Background()
	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		Env:          map[string]string{"POSTGRES_USER": "user", "POSTGRES_PASSWORD": "pass", "POSTGRES_DB": "db"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)
	dsn := fmt.Sprintf("postgres://user:pass@%s:%s/db?sslmode=disable", host, port.Port())

	var lastErr error
	for i := 0; i < 10; i++ {
		pool, err := infra.NewDBPoolFromURL(ctx, dsn)
		if err == nil {
			t.Cleanup(pool.Close)
			require.NoError(t, infra.EnsureWalletSchema(ctx, pool))
			return NewWalletRepository(infra.NewSQLRunner(pool, infra.NopLogger()))
		}
		lastErr = err
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("postgres did not accept connections: %v", lastErr)
	return nil
}

func TestIntegration_WalletLifecycle(t *testing.T) {
	repo := startPostgres(t)
	ctx := context.Background()

	w, err := repo.CreateOrGet(ctx, "google-1", "User@Example.com", 20)
	require.NoError(t, err)
	require.Equal(t, 20, w.Coins)

	again, err := repo.CreateOrGet(ctx, "google-1", "other@example.com", 99)
	require.NoError(t, err)
	require.Equal(t, 20, again.Coins, "create-or-get must not reset the balance")
	require.Equal(t, "User@Example.com", again.Email)

	byEmail, err := repo.GetByEmail(ctx, "user@example.com")
	require.NoError(t, err)
	require.Equal(t, "google-1", byEmail.UserID)

	coins, err := repo.Debit(ctx, "google-1", 7)
	require.NoError(t, err)
	require.Equal(t, 13, coins)

	_, err = repo.Debit(ctx, "google-1", 14)
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)

	coins, err = repo.Credit(ctx, "google-1", 5)
	require.NoError(t, err)
	require.Equal(t, 18, coins)

	_, err = repo.Debit(ctx, "nobody", 1)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIntegration_ConcurrentDebitsNeverOverspend(t *testing.T) {
	repo := startPostgres(t)
	ctx := context.Background()

	_, err := repo.CreateOrGet(ctx, "google-2", "", 20)
	require.NoError(t, err)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.Debit(ctx, "google-2", 7); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 2, ok)
	w, err := repo.Get(ctx, "google-2")
	require.NoError(t, err)
	require.Equal(t, 6, w.Coins)
}
