package exec

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

const truncatedMarker = "\n[output truncated]"

// captureBuffer is a size-limited buffer that is safe to read while a pump
// goroutine may still be writing to it.
type captureBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func newCaptureBuffer(limit int) *captureBuffer {
	return &captureBuffer{limit: limit}
}

func (c *captureBuffer) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.limit <= 0 {
		return c.buf.Write(p)
	}
	remaining := c.limit - c.buf.Len()
	if remaining <= 0 {
		c.truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		c.truncated = true
		_, _ = c.buf.Write(p[:remaining])
		return len(p), nil
	}
	return c.buf.Write(p)
}

func (c *captureBuffer) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.truncated {
		return c.buf.String() + truncatedMarker
	}
	return c.buf.String()
}

var _ io.Writer = (*captureBuffer)(nil)

// capture owns the read ends of the output pipes and the goroutines pumping
// them into buffers.
type capture struct {
	readers []*os.File
	done    chan struct{}
	once    sync.Once
}

// startCaptured starts cmd with stdout and stderr connected to OS pipes. The
// write ends are handed to the child as files, so cmd.Wait does not wait for
// the pipes to reach EOF; it returns as soon as the process exits.
func startCaptured(cmd *exec.Cmd, stdout, stderr io.Writer) (*capture, error) {
	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		_ = outR.Close()
		_ = outW.Close()
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}

	cmd.Stdout = outW
	cmd.Stderr = errW
	startErr := cmd.Start()

	// The child has its own copies of the write ends now.
	_ = outW.Close()
	_ = errW.Close()
	if startErr != nil {
		_ = outR.Close()
		_ = errR.Close()
		return nil, startErr
	}

	c := &capture{readers: []*os.File{outR, errR}, done: make(chan struct{})}
	var wg sync.WaitGroup
	wg.Add(2)
	go pump(&wg, outR, stdout)
	go pump(&wg, errR, stderr)
	go func() {
		wg.Wait()
		close(c.done)
	}()
	return c, nil
}

func pump(wg *sync.WaitGroup, r io.Reader, w io.Writer) {
	defer wg.Done()
	_, _ = io.Copy(w, r)
}

// wait reports whether both streams reached EOF within timeout.
func (c *capture) wait(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-c.done:
		return true
	case <-timer.C:
		return false
	}
}

// close releases the read ends, unblocking pumps stuck on a pipe that an
// orphaned child still holds open.
func (c *capture) close() {
	c.once.Do(func() {
		for _, r := range c.readers {
			_ = r.Close()
		}
	})
}
