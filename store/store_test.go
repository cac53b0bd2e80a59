package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTradeInsertAndRecent(t *testing.T) {
	s := openTestStore(t)

	trades := []*TradeRecord{
		{Symbol: "ETH-USDT", Side: "buy", GridLevel: 1, Price: 2950, Size: 0.00678, Notional: 20, OrderID: "ord-1"},
		{Symbol: "ETH-USDT", Side: "sell", GridLevel: 1, Price: 3050, Size: 0.00678, Notional: 20.68, Profit: 0.64, OrderID: "ord-2"},
		{Symbol: "BTC-USDT", Side: "buy", GridLevel: 0, Price: 60000, Size: 0.0003, Notional: 18, OrderID: "ord-3"},
	}
	for _, tr := range trades {
		require.NoError(t, s.Trades().Insert(tr))
	}

	recent, err := s.Trades().Recent("ETH-USDT", 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)

	// Newest first.
	require.Equal(t, "sell", recent[0].Side)
	require.Equal(t, "buy", recent[1].Side)
	require.Equal(t, "ord-2", recent[0].OrderID)
	require.InDelta(t, 0.64, recent[0].Profit, 1e-9)
}

func TestTradeRecentLimit(t *testing.T) {
	s := openTestStore(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Trades().Insert(&TradeRecord{
			Symbol: "ETH-USDT", Side: "buy", GridLevel: i, Price: 2950, Size: 0.001, Notional: 3,
		}))
	}

	recent, err := s.Trades().Recent("ETH-USDT", 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	require.Equal(t, 4, recent[0].GridLevel)
}

func TestTradeTotalProfit(t *testing.T) {
	s := openTestStore(t)

	total, err := s.Trades().TotalProfit("ETH-USDT")
	require.NoError(t, err)
	require.Zero(t, total)

	require.NoError(t, s.Trades().Insert(&TradeRecord{Symbol: "ETH-USDT", Side: "sell", Profit: 0.5}))
	require.NoError(t, s.Trades().Insert(&TradeRecord{Symbol: "ETH-USDT", Side: "sell", Profit: -0.2}))
	require.NoError(t, s.Trades().Insert(&TradeRecord{Symbol: "BTC-USDT", Side: "sell", Profit: 9.9}))

	total, err = s.Trades().TotalProfit("ETH-USDT")
	require.NoError(t, err)
	require.InDelta(t, 0.3, total, 1e-9)
}

func TestEventInsertAndRecent(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Events().Insert("halt", "3 consecutive stop losses"))
	require.NoError(t, s.Events().Insert("resume", "manual resume"))

	events, err := s.Events().Recent(10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "resume", events[0].Kind)
	require.Equal(t, "halt", events[1].Kind)
	require.NotEmpty(t, events[1].Message)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Trades().Insert(&TradeRecord{Symbol: "ETH-USDT", Side: "buy"}))
	require.NoError(t, s.Close())

	// Reopening applies the schema without clobbering existing rows.
	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	recent, err := s.Trades().Recent("ETH-USDT", 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
}
