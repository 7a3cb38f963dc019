package client

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danmuck/chathack/internal/testutil/testlog"
)

func TestTokensNeverReissuedWhileOutstanding(t *testing.T) {
	testlog.Start(t)

	rng := rand.New(rand.NewSource(1))
	table := NewTokenTable(func() uint32 { return uint32(rng.Intn(16)) }, 0)
	live := make(map[uint32]bool)
	var order []uint32

	for i := 0; i < 10000; i++ {
		if len(order) == 8 {
			oldest := order[0]
			order = order[1:]
			// alternate between tokens that were used and ones that never were
			if i%2 == 0 {
				require.True(t, table.Consume(oldest, "alice"))
			}
			table.Release(oldest)
			delete(live, oldest)
		}
		token, err := table.Mint("alice")
		require.NoError(t, err)
		require.False(t, live[token], "token %d reissued at mint %d", token, i)
		live[token] = true
		order = append(order, token)
	}
	assert.Equal(t, 8, table.Pending())
}

func TestTokenConsumeRequiresMatchingLogin(t *testing.T) {
	testlog.Start(t)

	next := uint32(41)
	table := NewTokenTable(func() uint32 { next++; return next }, 4)
	token, err := table.Mint("alice")
	require.NoError(t, err)

	assert.False(t, table.Consume(token, "mallory"))
	assert.False(t, table.Consume(token+1, "alice"))
	require.True(t, table.Consume(token, "alice"))
	assert.False(t, table.Consume(token, "alice"), "a bound token cannot be used twice")
	assert.Equal(t, 0, table.Pending())
	assert.Equal(t, 1, table.Bound())

	table.Release(token)
	assert.Equal(t, 0, table.Bound())
}

func TestTokenSpaceExhausted(t *testing.T) {
	testlog.Start(t)

	table := NewTokenTable(func() uint32 { return 7 }, 3)
	_, err := table.Mint("alice")
	require.NoError(t, err)
	_, err = table.Mint("bob")
	assert.ErrorIs(t, err, ErrTokenSpace)

	table.ReleaseLogin("alice")
	_, err = table.Mint("bob")
	assert.NoError(t, err)
}
