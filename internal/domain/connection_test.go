package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConnectionRecord_Expired(t *testing.T) {
	deadline := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	r := ConnectionRecord{ID: "c1", ExpiresAt: deadline}

	assert.False(t, r.Expired(deadline.Add(-time.Second)))
	assert.True(t, r.Expired(deadline))
	assert.True(t, r.Expired(deadline.Add(time.Second)))
}
