package util

import (
	"errors"
	"io"
	"net"
	"sync"
)

// Relay shuffles data between two connections until either side reaches
// EOF or fails.  It returns the byte counts copied in each direction
// (a→b, b→a).  Both connections are closed before Relay returns so the
// peer never observes a half-dead pair.
func Relay(a, b net.Conn) (int64, int64, error) {
	var (
		wg     sync.WaitGroup
		aToB   int64
		bToA   int64
		errA   error
		errB   error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		aToB, errA = copyBuf(b, a)
		// Unblock the opposite direction once this side is done.
		b.Close()
	}()
	go func() {
		defer wg.Done()
		bToA, errB = copyBuf(a, b)
		a.Close()
	}()
	wg.Wait()

	if err := firstRealError(errA, errB); err != nil {
		return aToB, bToA, err
	}
	return aToB, bToA, nil
}

// copyBuf is io.Copy with a pooled buffer.
func copyBuf(dst io.Writer, src io.Reader) (int64, error) {
	buf := GetBuf()
	defer PutBuf(buf)
	return io.CopyBuffer(dst, src, *buf)
}

func firstRealError(errs ...error) error {
	for _, err := range errs {
		if err != nil && !isHarmless(err) {
			return err
		}
	}
	return nil
}

// isHarmless returns true for errors that are expected during shutdown.
func isHarmless(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.Is(opErr.Err, net.ErrClosed)
	}
	return false
}
