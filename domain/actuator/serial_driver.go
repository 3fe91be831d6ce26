package actuator

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.bug.st/serial"
)

var errWriteFailed = errors.New("actuator: short write to serial port")

// SerialDriver speaks the line protocol of the needle controller board:
//
//	-> JOG <channel> <seq> <delta>
//	<- ACK <channel> <seq> <applied>
//	<- NAK <channel> <seq> <reason>
//
// Replies are read by Monitor and handed to the ack handler.
type SerialDriver struct {
	port   SerialPorter
	logger *slog.Logger

	commandMu sync.Mutex
	mu        sync.Mutex
	handler   func(Ack)
}

// OpenSerialDriver opens the serial device at path.
func OpenSerialDriver(path string, opts PortOptions, logger *slog.Logger) (*SerialDriver, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, errors.Wrapf(err, "open serial port %s", path)
	}
	return NewSerialDriver(port, logger), nil
}

// NewSerialDriver wraps an already open port.
func NewSerialDriver(port SerialPorter, logger *slog.Logger) *SerialDriver {
	return &SerialDriver{port: port, logger: logger}
}

func (d *SerialDriver) SetAckHandler(h func(Ack)) {
	d.mu.Lock()
	d.handler = h
	d.mu.Unlock()
}

// FormatCommand renders cmd as a protocol line without the trailing newline.
func FormatCommand(cmd Command) string {
	return fmt.Sprintf("JOG %d %d %s", cmd.Channel, cmd.Seq, strconv.FormatFloat(cmd.Delta, 'f', -1, 64))
}

// Send writes one command line. Writes are serialized across channels.
func (d *SerialDriver) Send(cmd Command) error {
	line := FormatCommand(cmd) + "\n"
	d.commandMu.Lock()
	defer d.commandMu.Unlock()
	n, err := d.port.Write([]byte(line))
	if err != nil {
		return errors.Wrap(err, "serial write")
	}
	if n != len(line) {
		return errWriteFailed
	}
	return nil
}

// ParseReply decodes an ACK or NAK line.
func ParseReply(line string) (Ack, error) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return Ack{}, errors.Errorf("malformed reply %q", line)
	}
	ch, err := strconv.Atoi(fields[1])
	if err != nil {
		return Ack{}, errors.Wrapf(err, "reply channel %q", fields[1])
	}
	seq, err := strconv.ParseUint(fields[2], 10, 64)
	if err != nil {
		return Ack{}, errors.Wrapf(err, "reply seq %q", fields[2])
	}
	ack := Ack{Channel: ch, Seq: seq}
	switch strings.ToUpper(fields[0]) {
	case "ACK":
		if len(fields) != 4 {
			return Ack{}, errors.Errorf("malformed ack %q", line)
		}
		ack.Applied, err = strconv.ParseFloat(fields[3], 64)
		if err != nil {
			return Ack{}, errors.Wrapf(err, "ack applied %q", fields[3])
		}
	case "NAK":
		ack.Rejected = true
		ack.Reason = strings.Join(fields[3:], " ")
		if ack.Reason == "" {
			ack.Reason = "rejected"
		}
	default:
		return Ack{}, errors.Errorf("unknown reply %q", fields[0])
	}
	return ack, nil
}

// Monitor reads reply lines until ctx is cancelled or the port fails.
func (d *SerialDriver) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(d.port)
	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// the blocking Scan runs on its own goroutine so cancellation is observed promptly
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			scanErrChan <- err
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-scanErrChan:
			return errors.Wrap(err, "serial read")
		case line, ok := <-lineChan:
			if !ok {
				select {
				case err := <-scanErrChan:
					return errors.Wrap(err, "serial read")
				default:
					return nil
				}
			}
			d.handleLine(line)
		}
	}
}

func (d *SerialDriver) handleLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	ack, err := ParseReply(line)
	if err != nil {
		if d.logger != nil {
			d.logger.Warn("ignoring serial line", "line", line, "error", err)
		}
		return
	}
	d.mu.Lock()
	h := d.handler
	d.mu.Unlock()
	if h != nil {
		h(ack)
	}
}

func (d *SerialDriver) Close() error { return d.port.Close() }

var (
	_ Driver      = (*SerialDriver)(nil)
	_ AckNotifier = (*SerialDriver)(nil)
)
