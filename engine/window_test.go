package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUndoExpiration(t *testing.T) {
	cashedAt := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, cashedAt.Add(5*time.Minute), UndoExpiration(cashedAt, 5*time.Minute))
	assert.Equal(t, cashedAt, UndoExpiration(cashedAt, 0))
}

func TestWithinUndoWindow(t *testing.T) {
	expiration := time.Date(2026, time.March, 10, 12, 5, 0, 0, time.UTC)
	voucher := &Voucher{UndoExpirationAt: &expiration}

	assert.True(t, withinUndoWindow(voucher, expiration.Add(-time.Second)))
	// The expiration instant itself is already outside the window.
	assert.False(t, withinUndoWindow(voucher, expiration))
	assert.False(t, withinUndoWindow(voucher, expiration.Add(time.Second)))

	// Never cashed in.
	assert.False(t, withinUndoWindow(&Voucher{}, expiration))
}
