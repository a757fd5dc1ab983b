package sigdaq

import (
	"bytes"
	"fmt"
	"io"
	"time"
)

// fakeTransport is a scripted Transport for tests. Converse replies are
// scripted per command; the last scripted reply for a command is sticky.
// ReadRawData consumes a single byte stream, ReadReply a line queue.
type fakeTransport struct {
	sent    []string
	replies map[string][]string
	raw     bytes.Buffer
	lines   []string
	flushes int
	deduped []string
	limit   time.Duration
	locks   int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{replies: make(map[string][]string)}
}

func (ft *fakeTransport) script(cmd string, replies ...string) {
	ft.replies[cmd] = append(ft.replies[cmd], replies...)
}

func (ft *fakeTransport) SendCommand(cmd string) {
	ft.sent = append(ft.sent, cmd)
}

func (ft *fakeTransport) Converse(cmd string) (string, error) {
	ft.sent = append(ft.sent, cmd)
	q := ft.replies[cmd]
	if len(q) == 0 {
		return "", fmt.Errorf("no scripted reply for %q", cmd)
	}
	reply := q[0]
	if len(q) > 1 {
		ft.replies[cmd] = q[1:]
	}
	return reply, nil
}

func (ft *fakeTransport) FlushCommandQueue() error {
	ft.flushes++
	return nil
}

func (ft *fakeTransport) ReadRawData(buf []byte) error {
	_, err := io.ReadFull(&ft.raw, buf)
	return err
}

func (ft *fakeTransport) ReadReply() (string, error) {
	if len(ft.lines) == 0 {
		return "", fmt.Errorf("no scripted reply line")
	}
	line := ft.lines[0]
	ft.lines = ft.lines[1:]
	return line, nil
}

func (ft *fakeTransport) EnableRateLimiting(interval time.Duration) {
	ft.limit = interval
}

func (ft *fakeTransport) DeduplicateCommand(keyword string) {
	ft.deduped = append(ft.deduped, keyword)
}

func (ft *fakeTransport) Lock()   { ft.locks++ }
func (ft *fakeTransport) Unlock() {}

// sentIndex returns the position of the first sent command equal to cmd,
// or -1.
func (ft *fakeTransport) sentIndex(cmd string) int {
	for i, s := range ft.sent {
		if s == cmd {
			return i
		}
	}
	return -1
}

const testIDN = "Siglent Technologies,SDS2104X Plus,SDS2PEE6000000,1.3.9R10"

// newTestScope attaches a Scope to a scripted transport with a 4-channel
// SDS2104X Plus identity.
func newTestScope(ft *fakeTransport) (*Scope, error) {
	ft.script("*IDN?", testIDN)
	ft.script(":TRIGGER:STATUS?", "Stop")
	sc, err := New(ft)
	// The attach-time status reply is sticky; drop it so it doesn't
	// shift replies scripted by the test itself.
	delete(ft.replies, ":TRIGGER:STATUS?")
	return sc, err
}
