package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanSendCooldown(t *testing.T) {
	n := NewStdout()

	assert.True(t, n.CanSend("close_fail:p1", 50*time.Millisecond))
	assert.False(t, n.CanSend("close_fail:p1", 50*time.Millisecond))

	// ключи независимы
	assert.True(t, n.CanSend("close_fail:p2", 50*time.Millisecond))

	time.Sleep(60 * time.Millisecond)
	assert.True(t, n.CanSend("close_fail:p1", 50*time.Millisecond))
}
