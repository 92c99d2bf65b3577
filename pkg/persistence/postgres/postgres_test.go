package postgres

import (
	"fmt"
	"os"
	"testing"

	"github.com/Layr-Labs/merkle-airdrop-go/pkg/logger"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/persistence"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/persistence/persistencetest"
	"github.com/Layr-Labs/merkle-airdrop-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// getTestPostgresDSN returns POSTGRES_TEST_DSN or skips the test
func getTestPostgresDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set, skipping Postgres tests")
	}
	return dsn
}

// requirePostgres connects to the test database and empties the airdrop tables
func requirePostgres(t *testing.T) *PostgresPersistence {
	t.Helper()

	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	pp, err := NewPostgresPersistence(&PostgresConfig{
		DSN:         getTestPostgresDSN(t),
		AutoMigrate: true,
	}, testLogger)
	require.NoError(t, err)

	require.NoError(t, pp.db.Exec("DELETE FROM airdrop_claims").Error)
	require.NoError(t, pp.db.Exec("DELETE FROM airdrop_state").Error)
	return pp
}

func TestPostgresPersistence_Suite(t *testing.T) {
	getTestPostgresDSN(t)

	persistencetest.RunSuite(t, func(t *testing.T) persistence.IAirdropPersistence {
		return requirePostgres(t)
	})
}

func TestPostgresPersistence_InvalidConfig(t *testing.T) {
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	_, err := NewPostgresPersistence(nil, testLogger)
	require.Error(t, err)

	_, err = NewPostgresPersistence(&PostgresConfig{}, testLogger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DSN cannot be empty")
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.True(t, isUniqueViolation(fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(fmt.Errorf("plain error")))
	assert.False(t, isUniqueViolation(nil))
}

func TestClaimModel_RoundTrip(t *testing.T) {
	record := &types.ClaimRecord{
		ClaimID:     "id-1",
		Recipient:   common.HexToAddress("0xABCDEFabcdef0123456789ABCDEFabcdef012345"),
		Amount:      "42",
		State:       types.ClaimStateClaimed,
		ReservedAt:  10,
		ClaimedAt:   11,
		TransferRef: "ref",
	}

	row := claimModelFromRecord(record)
	assert.Equal(t, "0xabcdefabcdef0123456789abcdefabcdef012345", row.Recipient)
	assert.Equal(t, record, row.toRecord())
}
