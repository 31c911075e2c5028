package service

import (
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// newRedisClientForTest starts a miniredis server that lives for the test.
func newRedisClientForTest(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return server, client
}

// newLedgerForTest returns an enforcing ledger over miniredis.
func newLedgerForTest(t *testing.T, opTimeout time.Duration) (*miniredis.Miniredis, *TokenLedger) {
	t.Helper()
	server, client := newRedisClientForTest(t)
	return server, NewTokenLedger(NewRedisKVStore(client, "ledgertest", opTimeout))
}
