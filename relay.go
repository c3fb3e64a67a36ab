package medley

import "context"

// newRelay builds the mandatory post-processing hop every browse/search/
// query request installs as the provider's immediate callback. It enforces
// the finished/cancel gates, drives auto-split, stamps the source id,
// marshals through the scheduler when idleRelay is set, and retires the
// operation once the chain's last stage has seen the terminal frame.
//
// next is the downstream stage: either the full-resolution engine's entry
// point, or the user's callback itself. chained
// reports whether next is itself responsible for marking the operation
// finished (true when full-resolution, or some further stage, owns that).
func newRelay(fw *Framework, opID OperationID, source Provider, idleRelay, chained bool, split *autoSplitControl, next Callback) Callback {
	var loggedFinished, loggedDoubleTerminal bool

	return func(f Frame) {
		f.OperationID = opID

		if fw.ops.IsFinished(opID) {
			if !loggedFinished {
				fw.logger.V(1).Info("dropping frame for finished operation", "source", source.ID())
				loggedFinished = true
			}
			return
		}

		if !fw.ops.IsOngoing(opID) {
			if f.Remaining > 0 {
				return
			}
			if fw.ops.IsCompleted(opID) {
				if !loggedDoubleTerminal {
					fw.logger.V(1).Info("dropping duplicate terminal frame", "source", source.ID())
					loggedDoubleTerminal = true
				}
				return
			}
			f.Item = nil
		}

		if split != nil {
			f.Remaining = split.onFrame(f.Remaining)
		}

		if f.Remaining == 0 {
			fw.ops.MarkCompleted(opID)
		}

		if f.Item != nil {
			f.Item = stampSource(f.Item, source.ID())
		}

		if f.Remaining == 0 && fw.ops.IsCancelled(opID) {
			f.Item = nil
			f.Err = ErrOperationCancelled
		}

		deliver := func(frame Frame) {
			next(frame)
			if frame.Remaining == 0 && !chained {
				fw.ops.MarkFinished(opID)
			}
		}

		if idleRelay {
			frame := f
			if err := fw.sched.PostDefault(func(context.Context) { deliver(frame) }); err != nil {
				fw.logger.Error(err, "posting idle relay frame", "source", source.ID())
			}
			return
		}
		deliver(f)
	}
}

func stampSource(item any, sourceID string) any {
	if s, ok := item.(SourceStamper); ok {
		s.StampSource(sourceID)
	}
	return item
}
