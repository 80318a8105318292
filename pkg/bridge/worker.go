package bridge

import (
	"log/slog"
	"time"

	"github.com/wbtool/wbtool/pkg/wberr"
)

// reconnectDelay is the pause between a failed open/service-loop error and
// the next open attempt.
const reconnectDelay = 500 * time.Millisecond

// runWorker is the one worker loop shared by every transport. It owns
// dev exclusively: dev.Open, dev.Peek/Poke/BurstRead/BurstWrite, and
// dev.Close are only ever called from this goroutine.
func runWorker(dev Device, reqCh <-chan Request, openedCh chan struct{}, log *slog.Logger) {
	log = log.With("component", "transport", "transport", dev.Name())
	firstOpen := true

reconnect:
	for {
		if err := dev.Open(); err != nil {
			log.Warn("open failed, retrying", "error", err)
			time.Sleep(reconnectDelay)
			continue reconnect
		}
		if firstOpen {
			close(openedCh)
			firstOpen = false
		} else {
			log.Info("reconnected")
		}

		for req := range reqCh {
			reply, fatal := serve(dev, req)
			req.replyCh <- reply
			if req.Kind == ReqExit {
				dev.Close()
				return
			}
			if fatal {
				// Drain pending requests with NotConnected until the
				// channel empties, then sleep and try to reopen. A
				// drained Exit still terminates the worker outright.
				if exited := drainNotConnected(dev, reqCh); exited {
					return
				}
				time.Sleep(reconnectDelay)
				continue reconnect
			}
		}
		return
	}
}

// serve performs one request against dev and reports whether the
// transport failed in a way that should break the service loop back to
// the reconnect loop. The retry-vs-surface distinction
// between a USB disconnect and every other transport error is made one
// layer up, by Bridge.Peek/Poke/BurstRead/BurstWrite re-issuing the
// request against the (now reconnecting) worker; a protocol-not-supported
// result is not a transport failure at all, just a legitimate reply for
// transports lacking burst support.
func serve(dev Device, req Request) (Reply, bool) {
	switch req.Kind {
	case ReqPeek:
		v, err := dev.Peek(req.Addr)
		if err != nil {
			return Reply{Kind: RepPeekResult, Err: annotate(err)}, true
		}
		return Reply{Kind: RepPeekResult, Value: v}, false
	case ReqPoke:
		err := dev.Poke(req.Addr, req.Value)
		if err != nil {
			return Reply{Kind: RepPokeResult, Err: annotate(err)}, true
		}
		return Reply{Kind: RepPokeResult}, false
	case ReqBurstRead:
		data, err := dev.BurstRead(req.Addr, req.Length)
		if err == wberr.ErrProtocolNotSupported {
			return Reply{Kind: RepBurstReadResult, Err: err}, false
		}
		if err != nil {
			return Reply{Kind: RepBurstReadResult, Err: annotate(err)}, true
		}
		return Reply{Kind: RepBurstReadResult, Data: data}, false
	case ReqBurstWrite:
		err := dev.BurstWrite(req.Addr, req.Data)
		if err == wberr.ErrProtocolNotSupported {
			return Reply{Kind: RepBurstWriteResult, Err: err}, false
		}
		if err != nil {
			return Reply{Kind: RepBurstWriteResult, Err: annotate(err)}, true
		}
		return Reply{Kind: RepBurstWriteResult}, false
	case ReqExit:
		return Reply{Kind: RepExiting}, false
	case ReqReconfigure:
		return Reply{Kind: RepOpened}, false
	default:
		return Reply{Err: wberr.ErrWrongResponse}, false
	}
}

// annotate passes a disconnect error through as-is (so Bridge can detect
// it with wberr.IsDisconnect) and wraps every other transport failure in
// a TransportError.
func annotate(err error) error {
	if wberr.IsDisconnect(err) {
		return err
	}
	return wrapTransport(err)
}

func wrapTransport(err error) error {
	if err == nil {
		return nil
	}
	return &wberr.TransportError{Cause: err}
}

// drainNotConnected replies NotConnected to every request already queued
// on reqCh. If one of them is Exit, dev is closed and drainNotConnected
// reports true so the caller terminates the worker instead of
// reconnecting.
func drainNotConnected(dev Device, reqCh <-chan Request) (exited bool) {
	for {
		select {
		case req := <-reqCh:
			if req.Kind == ReqExit {
				dev.Close()
				req.replyCh <- Reply{Kind: RepExiting}
				return true
			}
			req.replyCh <- Reply{Err: wberr.ErrNotConnected}
		default:
			return false
		}
	}
}
