package actorutil

import (
	"errors"
	"testing"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
)

type taskRunner struct {
	fn      func() (*int, error)
	results chan int
}

func (r *taskRunner) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		NewBackgroundTask(ctx, r.fn).
			WithTimeout(100 * time.Millisecond).
			Recover(func(err error) int { return -1 }).
			PipeToAsync(ctx.Self())
	case int:
		r.results <- msg
	}
}

func runTask(t *testing.T, fn func() (*int, error)) int {
	as := actor.NewActorSystem()
	defer as.Shutdown()

	results := make(chan int, 1)
	pid := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return &taskRunner{fn: fn, results: results}
	}))
	defer as.Root.Stop(pid)

	select {
	case v := <-results:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("task result not delivered")
	}
	return 0
}

func TestBackgroundTask(t *testing.T) {

	assert := assert.New(t)

	assert.Equal(7, runTask(t, func() (*int, error) {
		v := 7
		return &v, nil
	}))
	assert.Equal(-1, runTask(t, func() (*int, error) {
		return nil, errors.New("boom")
	}), "errors are recovered")
	assert.Equal(-1, runTask(t, func() (*int, error) {
		time.Sleep(time.Second)
		v := 1
		return &v, nil
	}), "timeouts are recovered")
}
