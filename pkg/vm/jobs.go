package vm

import (
	"errors"
)

// Job is one entry of the job queue. Roots are kept alive while the job
// is queued or running.
type Job struct {
	Run   func(vm *VM) error
	Roots []Value

	reaction *promiseReaction
}

func (j *Job) trace(m *marker) {
	m.values(j.Roots)
	if j.reaction != nil {
		j.reaction.trace(m)
	}
}

// EnqueueJob appends j to the job queue.
func (vm *VM) EnqueueJob(j Job) {
	vm.jobs = append(vm.jobs, j)
}

// EnqueueCallJob queues a call of fn with no this value, as
// queueMicrotask does.
func (vm *VM) EnqueueCallJob(fn Value, args ...Value) {
	roots := append([]Value{fn}, args...)
	vm.EnqueueJob(Job{
		Roots: roots,
		Run: func(vm *VM) error {
			_, err := vm.Call(fn, Undefined, args...)
			return err
		},
	})
}

// PendingJobs returns the number of queued jobs.
func (vm *VM) PendingJobs() int { return len(vm.jobs) }

// DrainJobQueue runs queued jobs, including those they enqueue, until the
// queue is empty or the VM's context is done. Errors thrown by jobs do
// not stop the drain; they are returned joined.
func (vm *VM) DrainJobQueue() error {
	var errs []error
	ran := 0
	defer func() {
		if ran > 0 {
			vm.logger.Debug("jobs.drain", "count", ran)
		}
	}()
	for len(vm.jobs) > 0 {
		if err := vm.ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		j := vm.jobs[0]
		vm.jobs[0] = Job{}
		vm.jobs = vm.jobs[1:]
		vm.currentJob = &j
		ran++
		err := j.Run(vm)
		vm.currentJob = nil
		vm.keptAlive = vm.keptAlive[:0]
		if err != nil {
			errs = append(errs, err)
		}
		if vm.heap.pending && vm.runDepth == 0 {
			vm.heap.collect()
		}
	}
	return errors.Join(errs...)
}

// ClearKeptObjects implements the host hook of the same name for hosts
// that run script outside DrainJobQueue.
func (vm *VM) ClearKeptObjects() { vm.keptAlive = vm.keptAlive[:0] }

// KeepDuringJob implements AddToKeptObjects.
func (vm *VM) KeepDuringJob(o *Object) { vm.keptAlive = append(vm.keptAlive, o) }

// UnhandledRejections returns the promises that were rejected without a
// handler and are still unhandled, and forgets them.
func (vm *VM) UnhandledRejections() []*Object {
	ps := vm.pendingRejections
	vm.pendingRejections = nil
	return ps
}
