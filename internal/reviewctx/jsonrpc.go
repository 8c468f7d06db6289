package reviewctx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// rpcMessage covers requests, responses and notifications.
type rpcMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("lsp error %d: %s", e.Code, e.Message)
}

var errConnClosed = errors.New("language server connection closed")

func writeMessage(w io.Writer, msg any) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(body)); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

func readMessage(r *bufio.Reader) (rpcMessage, error) {
	header, err := textproto.NewReader(r).ReadMIMEHeader()
	if err != nil {
		return rpcMessage{}, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(header.Get("Content-Length")))
	if err != nil || n <= 0 {
		return rpcMessage{}, fmt.Errorf("bad Content-Length %q", header.Get("Content-Length"))
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return rpcMessage{}, err
	}
	var msg rpcMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return rpcMessage{}, fmt.Errorf("decoding message: %w", err)
	}
	return msg, nil
}

// rpcConn is a JSON-RPC 2.0 connection over a byte stream. Server requests
// are answered with a null result so the server never blocks on us.
type rpcConn struct {
	w      io.Writer
	logger *zap.Logger

	wmu    sync.Mutex
	mu     sync.Mutex
	nextID int64
	calls  map[int64]chan rpcMessage
	closed bool
	done   chan struct{}
}

func newRPCConn(w io.Writer, r io.Reader, logger *zap.Logger) *rpcConn {
	c := &rpcConn{
		w:      w,
		logger: logger,
		calls:  make(map[int64]chan rpcMessage),
		done:   make(chan struct{}),
	}
	go c.readLoop(bufio.NewReader(r))
	return c
}

func (c *rpcConn) send(msg any) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return writeMessage(c.w, msg)
}

// Call sends a request and decodes its result into out.
func (c *rpcConn) Call(ctx context.Context, method string, params, out any) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errConnClosed
	}
	c.nextID++
	id := c.nextID
	ch := make(chan rpcMessage, 1)
	c.calls[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.calls, id)
		c.mu.Unlock()
	}()

	req := map[string]any{"jsonrpc": "2.0", "id": id, "method": method, "params": params}
	if err := c.send(req); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return errConnClosed
	case resp := <-ch:
		if resp.Error != nil {
			return fmt.Errorf("%s: %w", method, resp.Error)
		}
		if out == nil || len(resp.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("%s: decoding result: %w", method, err)
		}
		return nil
	}
}

// Notify sends a notification.
func (c *rpcConn) Notify(method string, params any) error {
	return c.send(map[string]any{"jsonrpc": "2.0", "method": method, "params": params})
}

// Done is closed when the read side ends.
func (c *rpcConn) Done() <-chan struct{} { return c.done }

func (c *rpcConn) readLoop(r *bufio.Reader) {
	defer func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)
	}()
	for {
		msg, err := readMessage(r)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.logger.Debug("language server read failed", zap.Error(err))
			}
			return
		}
		switch {
		case msg.Method != "" && len(msg.ID) > 0:
			c.logger.Debug("answering server request", zap.String("method", msg.Method))
			if err := c.send(rpcMessage{JSONRPC: "2.0", ID: msg.ID, Result: json.RawMessage("null")}); err != nil {
				return
			}
		case msg.Method != "":
			// notification: diagnostics, progress, file status
		default:
			var id int64
			if err := json.Unmarshal(msg.ID, &id); err != nil {
				continue
			}
			c.mu.Lock()
			ch, ok := c.calls[id]
			c.mu.Unlock()
			if ok {
				select {
				case ch <- msg:
				default:
				}
			}
		}
	}
}
