package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUpstreamTokenExpired(t *testing.T) {
	now := time.Unix(10_000, 0)
	token := UpstreamToken{Expire: 10_000}

	// Expired iff now > expire - 5.
	assert.True(t, token.Expired(now))
	assert.True(t, UpstreamToken{Expire: now.Unix() + 4}.Expired(now))
	assert.False(t, UpstreamToken{Expire: now.Unix() + 5}.Expired(now))
	assert.False(t, UpstreamToken{Expire: now.Unix() + 3600}.Expired(now))
}

func TestUpstreamTokenMatured(t *testing.T) {
	now := time.Unix(10_000, 0)

	// Matured iff now > start + 600.
	assert.True(t, UpstreamToken{Start: now.Unix() - 700}.Matured(now))
	assert.False(t, UpstreamToken{Start: now.Unix() - 600}.Matured(now))
	assert.False(t, UpstreamToken{Start: now.Unix() - 300}.Matured(now))
	assert.True(t, UpstreamToken{Start: now.Unix() - 601}.Matured(now))
}
