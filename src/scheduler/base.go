package scheduler

import (
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"
)

// ScheduledTask runs a function on a cron spec. Ticks that fire while a
// previous run is still in flight are skipped, so long passes never
// overlap.
type ScheduledTask struct {
	cronID  cron.EntryID
	cron    *cron.Cron
	cancel  chan struct{}
	running int32
	wg      sync.WaitGroup
}

func NewScheduledTask(cronSpec string, taskFunc func()) (*ScheduledTask, error) {
	c := cron.New()
	task := &ScheduledTask{
		cron:   c,
		cancel: make(chan struct{}),
	}

	id, err := c.AddFunc(cronSpec, func() {
		select {
		case <-task.cancel:
			return
		default:
		}
		if !atomic.CompareAndSwapInt32(&task.running, 0, 1) {
			return
		}
		task.wg.Add(1)
		defer func() {
			atomic.StoreInt32(&task.running, 0)
			task.wg.Done()
		}()
		taskFunc()
	})
	if err != nil {
		return nil, err
	}

	task.cronID = id
	c.Start()
	return task, nil
}

// Cancel stops future ticks and waits for an in-flight run to finish.
func (s *ScheduledTask) Cancel() {
	s.cron.Remove(s.cronID)
	close(s.cancel)
	s.cron.Stop()
	s.wg.Wait()
}
