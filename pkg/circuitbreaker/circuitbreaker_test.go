package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestNew_TripsAfterConsecutiveFailures(t *testing.T) {
	cfg := DefaultConfig("test")
	cfg.ConsecutiveFailures = 2
	cfg.OpenTimeout = time.Hour
	cb := New[struct{}](cfg, zap.NewNop())

	boom := errors.New("boom")
	fail := func() (struct{}, error) { return struct{}{}, boom }

	_, err := cb.Execute(fail)
	assert.ErrorIs(t, err, boom)
	_, err = cb.Execute(fail)
	assert.ErrorIs(t, err, boom)

	_, err = cb.Execute(func() (struct{}, error) { return struct{}{}, nil })
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, gobreaker.StateOpen, cb.State())
}
