package main

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"
)

// tcpTransport talks SCPI to the instrument's raw socket (port 5025).
// Commands are queued and written in order on flush. The exchange mutex
// serializes Converse calls and caller-driven multi-step exchanges; it
// must not be held when calling Converse.
type tcpTransport struct {
	conn   net.Conn
	reader *bufio.Reader

	mu sync.Mutex // exchange lock

	queueMu      sync.Mutex
	queue        []string
	dedupKeyword map[string]bool
	rateInterval time.Duration
	lastSend     time.Time
}

func dialScope(addr string) (*tcpTransport, error) {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("could not connect to scope at %s: %v", addr, err)
	}
	return &tcpTransport{
		conn:         conn,
		reader:       bufio.NewReaderSize(conn, 1<<20),
		dedupKeyword: make(map[string]bool),
	}, nil
}

func (t *tcpTransport) Close() error {
	return t.conn.Close()
}

// commandSubject is the command up to its first argument, e.g.
// ":CHANNEL1:OFFSET" for ":CHANNEL1:OFFSET 2.0E-01". The dedup keyword is
// the subject's last colon-separated segment.
func commandSubject(cmd string) (subject, keyword string) {
	subject = cmd
	if i := strings.IndexByte(cmd, ' '); i >= 0 {
		subject = cmd[:i]
	}
	keyword = subject
	if i := strings.LastIndexByte(subject, ':'); i >= 0 {
		keyword = subject[i+1:]
	}
	return subject, keyword
}

// SendCommand queues cmd. When the command's keyword is marked for
// deduplication, a queued-but-unsent command with the same subject is
// replaced in place, so a burst of knob turns costs one write.
func (t *tcpTransport) SendCommand(cmd string) {
	subject, keyword := commandSubject(cmd)

	t.queueMu.Lock()
	defer t.queueMu.Unlock()

	if t.dedupKeyword[keyword] {
		for i, queued := range t.queue {
			qsubject, _ := commandSubject(queued)
			if qsubject == subject {
				t.queue[i] = cmd
				return
			}
		}
	}
	t.queue = append(t.queue, cmd)
}

// FlushCommandQueue writes all queued commands in order, pacing them by
// the rate-limit interval.
func (t *tcpTransport) FlushCommandQueue() error {
	t.queueMu.Lock()
	pending := t.queue
	t.queue = nil

	for _, cmd := range pending {
		if t.rateInterval > 0 {
			if wait := t.rateInterval - time.Since(t.lastSend); wait > 0 {
				time.Sleep(wait)
			}
		}
		if _, err := io.WriteString(t.conn, cmd+"\n"); err != nil {
			t.queueMu.Unlock()
			return fmt.Errorf("write %q: %v", cmd, err)
		}
		t.lastSend = time.Now()
	}
	t.queueMu.Unlock()
	return nil
}

// Converse queues cmd, flushes, and reads one reply line. It owns the
// exchange lock for the duration.
func (t *tcpTransport) Converse(cmd string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.SendCommand(cmd)
	if err := t.FlushCommandQueue(); err != nil {
		return "", err
	}
	return t.ReadReply()
}

// ReadRawData fills buf completely or fails.
func (t *tcpTransport) ReadRawData(buf []byte) error {
	_, err := io.ReadFull(t.reader, buf)
	return err
}

// ReadReply reads one newline-terminated reply, without the newline.
func (t *tcpTransport) ReadReply() (string, error) {
	line, err := t.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (t *tcpTransport) EnableRateLimiting(interval time.Duration) {
	t.queueMu.Lock()
	t.rateInterval = interval
	t.queueMu.Unlock()
}

func (t *tcpTransport) DeduplicateCommand(keyword string) {
	t.queueMu.Lock()
	t.dedupKeyword[keyword] = true
	t.queueMu.Unlock()
}

func (t *tcpTransport) Lock()   { t.mu.Lock() }
func (t *tcpTransport) Unlock() { t.mu.Unlock() }
