package partuploader

import "sync"

// ExecutionModel selects how part-upload tasks are driven. Both models
// admit at most Config.Concurrency tasks at any instant and produce the
// same part numbering and progress semantics; they only differ in how
// goroutines are allocated to tasks.
type ExecutionModel int

const (
	// AdmissionGate starts one goroutine per part, admitted through a
	// counting gate.
	AdmissionGate ExecutionModel = iota

	// WorkerPool runs a fixed pool of workers consuming parts from a queue.
	WorkerPool
)

// executor runs tasks with a bounded number in flight. submit blocks until
// the task is admitted, which paces the chunk-producing loop so no more
// than the bound is ever buffered or running.
type executor interface {
	submit(task func())
	wait()
}

func newExecutor(model ExecutionModel, concurrency int) executor {
	if model == WorkerPool {
		return newPoolExecutor(concurrency)
	}
	return newGateExecutor(concurrency)
}

type gateExecutor struct {
	gate chan struct{}
	wg   sync.WaitGroup
}

func newGateExecutor(concurrency int) *gateExecutor {
	return &gateExecutor{gate: make(chan struct{}, concurrency)}
}

func (e *gateExecutor) submit(task func()) {
	e.gate <- struct{}{}
	e.wg.Add(1)
	go func() {
		defer func() {
			<-e.gate
			e.wg.Done()
		}()
		task()
	}()
}

func (e *gateExecutor) wait() {
	e.wg.Wait()
}

type poolExecutor struct {
	tasks chan func()
	wg    sync.WaitGroup
}

func newPoolExecutor(concurrency int) *poolExecutor {
	e := &poolExecutor{tasks: make(chan func())}
	e.wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer e.wg.Done()
			for task := range e.tasks {
				task()
			}
		}()
	}
	return e
}

func (e *poolExecutor) submit(task func()) {
	e.tasks <- task
}

func (e *poolExecutor) wait() {
	close(e.tasks)
	e.wg.Wait()
}
