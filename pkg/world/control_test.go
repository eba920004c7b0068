package world

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProcessControlStop(t *testing.T) {
	pc := NewProcessControl()

	ctx, done := pc.Begin(context.Background(), "w1", "c1")
	defer done()

	assert.True(t, pc.Active("w1", "c1"))
	assert.False(t, pc.Active("w1", "other"))

	assert.True(t, pc.Stop("w1", "c1"))
	<-ctx.Done()
	assert.False(t, pc.Active("w1", "c1"))

	// A second stop finds nothing.
	assert.False(t, pc.Stop("w1", "c1"))
}

func TestProcessControlBeginSupersedes(t *testing.T) {
	pc := NewProcessControl()

	first, done1 := pc.Begin(context.Background(), "w1", "c1")
	second, done2 := pc.Begin(context.Background(), "w1", "c1")
	defer done2()

	// Starting a new run on the same chat cancels the old one.
	<-first.Done()
	assert.NoError(t, second.Err())

	// The superseded run's done func must not deregister the new run.
	done1()
	assert.True(t, pc.Active("w1", "c1"))
}

func TestProcessControlDoneDeregisters(t *testing.T) {
	pc := NewProcessControl()

	ctx, done := pc.Begin(context.Background(), "w1", "c1")
	done()
	<-ctx.Done()
	assert.False(t, pc.Active("w1", "c1"))
}
