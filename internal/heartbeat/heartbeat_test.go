package heartbeat

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingReader struct {
	reads int64
}

func (r *countingReader) ReadRegister(address uint32) (uint32, error) {
	atomic.AddInt64(&r.reads, 1)
	return 2, nil
}

func TestTaskReadsPeriodically(t *testing.T) {
	r := &countingReader{}
	task := Start(r, 0x0a00, 10*time.Millisecond)
	time.Sleep(55 * time.Millisecond)
	task.Cancel()

	assert.GreaterOrEqual(t, atomic.LoadInt64(&r.reads), int64(3), "expected at least 3 reads in 55ms at 10ms period")
}

func TestTaskCancelStopsLoop(t *testing.T) {
	r := &countingReader{}
	task := Start(r, 0x0a00, 5*time.Millisecond)
	task.Cancel()

	before := atomic.LoadInt64(&r.reads)
	time.Sleep(30 * time.Millisecond)
	after := atomic.LoadInt64(&r.reads)
	assert.Equal(t, before, after, "expected no further reads after cancel")
}

type erroringReader struct{}

func (erroringReader) ReadRegister(address uint32) (uint32, error) {
	return 0, errTimeout{}
}

type errTimeout struct{}

func (errTimeout) Error() string { return "simulated timeout" }

func TestTaskToleratesReadErrors(t *testing.T) {
	task := Start(erroringReader{}, 0x0a00, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	task.Cancel() // must not hang despite every read failing
}
