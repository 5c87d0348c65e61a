package agent

import (
	"context"
	"log"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/LalitKJ/Aanya-Voice-Bot/internal/errs"
)

// relayCapacity bounds the text hand-off between generator and synthesizer.
// The generator blocks when synthesis falls this far behind.
const relayCapacity = 16

// RunState tracks one pipeline run through its lifecycle.
type RunState int32

const (
	RunRunning RunState = iota + 1
	RunCompleted
	RunFailed
	RunCancelled
)

func (s RunState) String() string {
	switch s {
	case RunRunning:
		return "running"
	case RunCompleted:
		return "completed"
	case RunFailed:
		return "failed"
	case RunCancelled:
		return "cancelled"
	}
	return "idle"
}

// Run is one generation+synthesis execution for a finalized turn. It is owned
// by the pipeline that started it; callers may only observe state and wait.
type Run struct {
	state atomic.Int32
	done  chan struct{}
}

func (r *Run) State() RunState { return RunState(r.state.Load()) }

// Done is closed once the run reaches a terminal state and, on completion,
// the history append has been made.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the run reaches a terminal state.
func (r *Run) Wait() { <-r.done }

// Pipeline joins a streaming generator and a streaming synthesizer through a
// bounded relay and supervises one run per finalized turn.
type Pipeline struct {
	Generator   Generator
	Synthesizer Synthesizer
	Egress      Egress

	// Fallback returns the pre-rendered "having trouble connecting" clip
	// substituted when a provider fails mid-run.
	Fallback func(ctx context.Context) ([]byte, error)
}

// Start launches the generator and synthesizer tasks for one finalized turn.
// It waits for any prior run on the session to finish first, preserving the
// at-most-one-active-run invariant and history append order.
func (p *Pipeline) Start(ctx context.Context, sess *Session, utterance, prompt string) *Run {
	if prev := sess.ActiveRun(); prev != nil {
		prev.Wait()
	}

	run := &Run{done: make(chan struct{})}
	run.state.Store(int32(RunRunning))
	sess.setRun(run)

	relay := make(chan string, relayCapacity)

	var (
		wg     sync.WaitGroup
		full   strings.Builder
		genErr error
	)

	// Generator: stream text increments into the relay and the accumulating
	// reply buffer, echoing each increment to the client as it arrives.
	wg.Add(1)
	go func() {
		defer wg.Done()
		// The close is the relay's terminal sentinel. It must happen on
		// every exit path or the synthesizer blocks forever.
		defer close(relay)

		chunks, errc := p.Generator.Stream(ctx, prompt)
		for chunks != nil || errc != nil {
			select {
			case <-ctx.Done():
				genErr = errs.Wrap(errs.KindConnection, "generation interrupted", ctx.Err())
				return
			case chunk, ok := <-chunks:
				if !ok {
					chunks = nil
					continue
				}
				if chunk == "" {
					continue
				}
				full.WriteString(chunk)
				p.Egress.ResponseText(chunk)
				select {
				case relay <- chunk:
				case <-ctx.Done():
					genErr = errs.Wrap(errs.KindConnection, "generation interrupted", ctx.Err())
					return
				}
			case err, ok := <-errc:
				if !ok {
					errc = nil
					continue
				}
				if err != nil {
					genErr = err
					return
				}
			}
		}
	}()

	// Synthesizer: drain the relay until the sentinel, synthesizing each
	// increment in order. A failed increment is replaced with the fallback
	// clip; the run keeps going.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for chunk := range relay {
			if ctx.Err() != nil {
				continue // drain without synthesizing
			}
			if err := p.synthesizeChunk(ctx, chunk); err != nil && ctx.Err() == nil {
				log.Printf("pipeline: synthesis failed for chunk, substituting fallback: %v", err)
				p.emitFallback(ctx)
			}
		}
	}()

	go func() {
		wg.Wait()
		defer close(run.done)
		defer sess.clearRun(run)

		switch {
		case ctx.Err() != nil:
			// Connection is gone; release silently, nothing to say and
			// nobody to hear it.
			run.state.Store(int32(RunCancelled))
		case genErr != nil:
			log.Printf("pipeline: generation failed: %v", genErr)
			p.emitFallback(ctx)
			p.Egress.Error("response generation failed")
			run.state.Store(int32(RunFailed))
		default:
			reply := strings.TrimSpace(full.String())
			if reply != "" {
				sess.AppendExchange(utterance, reply)
			}
			run.state.Store(int32(RunCompleted))
		}
	}()

	return run
}

// synthesizeChunk streams one text increment through the synthesizer,
// forwarding audio fragments to egress in arrival order.
func (p *Pipeline) synthesizeChunk(ctx context.Context, text string) error {
	audioCh, errCh := p.Synthesizer.Synthesize(ctx, text)
	var chunkErr error
	for audioCh != nil || errCh != nil {
		select {
		case b, ok := <-audioCh:
			if !ok {
				audioCh = nil
				continue
			}
			if len(b) > 0 && ctx.Err() == nil {
				p.Egress.Audio(b)
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				chunkErr = err
			}
		case <-ctx.Done():
			return errs.Wrap(errs.KindConnection, "synthesis interrupted", ctx.Err())
		}
	}
	return chunkErr
}

func (p *Pipeline) emitFallback(ctx context.Context) {
	if p.Fallback == nil || ctx.Err() != nil {
		return
	}
	clip, err := p.Fallback(ctx)
	if err != nil {
		log.Printf("pipeline: fallback audio unavailable: %v", err)
		p.Egress.Error("speech synthesis unavailable")
		return
	}
	if ctx.Err() == nil {
		p.Egress.Audio(clip)
	}
}
