package surface

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (p *recordingPublisher) Publish(subj string, data []byte) error {
	if p.err != nil {
		return p.err
	}
	p.subjects = append(p.subjects, subj)
	p.payloads = append(p.payloads, data)
	return nil
}

func TestNATSReloaderPublishesEmptySignal(t *testing.T) {
	pub := &recordingPublisher{}
	r := NewNATSReloader(pub, "")

	require.NoError(t, r.Reload(context.Background()))
	assert.Equal(t, []string{DefaultSubject}, pub.subjects)
	assert.Empty(t, pub.payloads[0])
}

func TestNATSReloaderWrapsPublishError(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("no responders")}
	r := NewNATSReloader(pub, "widgets.reload")

	err := r.Reload(context.Background())
	assert.ErrorContains(t, err, "widgets.reload")
}

func TestNATSReloaderCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pub := &recordingPublisher{}
	assert.ErrorIs(t, NewNATSReloader(pub, "x").Reload(ctx), context.Canceled)
	assert.Empty(t, pub.subjects)
}

func TestMultiReturnsFirstErrorButCallsAll(t *testing.T) {
	var calls int
	ok := ReloaderFunc(func(context.Context) error { calls++; return nil })
	bad := ReloaderFunc(func(context.Context) error { calls++; return errors.New("bad") })

	err := Multi{ok, bad, ok, LogReloader{}}.Reload(context.Background())
	assert.EqualError(t, err, "bad")
	assert.Equal(t, 3, calls)
}
