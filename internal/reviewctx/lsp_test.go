package reviewctx

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dshills/patchwise/internal/patch"
)

func TestMessageFraming(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeMessage(&buf, rpcMessage{JSONRPC: "2.0", ID: json.RawMessage("7"), Method: "ping"}))
	assert.Contains(t, buf.String(), "Content-Length: ")

	msg, err := readMessage(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, "ping", msg.Method)
	assert.Equal(t, "7", string(msg.ID))
}

func TestReadMessage_BadLength(t *testing.T) {
	_, err := readMessage(bufio.NewReader(bytes.NewBufferString("Content-Length: x\r\n\r\n{}")))
	assert.Error(t, err)
}

func TestDecodeLocations(t *testing.T) {
	assert.Nil(t, decodeLocations(json.RawMessage("null")))

	one := decodeLocations(json.RawMessage(`{"uri":"file:///a.h","range":{"start":{"line":1,"character":0},"end":{"line":2,"character":0}}}`))
	require.Len(t, one, 1)
	assert.Equal(t, "file:///a.h", one[0].URI)

	links := decodeLocations(json.RawMessage(`[{"targetUri":"file:///b.h","targetRange":{"start":{"line":4,"character":0},"end":{"line":6,"character":1}}}]`))
	require.Len(t, links, 1)
	uri, rng := links[0].normalize()
	assert.Equal(t, "file:///b.h", uri)
	assert.Equal(t, 4, rng.Start.Line)
}

func TestFindSymbol(t *testing.T) {
	field := documentSymbol{Name: "bar", Kind: 8, Range: &lspRange{Start: lspPosition{Line: 1}, End: lspPosition{Line: 1}}}
	syms := []documentSymbol{{
		Name:     "foo",
		Kind:     23,
		Range:    &lspRange{Start: lspPosition{Line: 0}, End: lspPosition{Line: 3}},
		Children: []documentSymbol{field},
	}}
	sym, parent := findSymbol(syms, "bar", 1, nil)
	require.NotNil(t, sym)
	require.NotNil(t, parent)
	assert.Equal(t, "foo", parent.Name)

	sym, _ = findSymbol(syms, "bar", 5, nil)
	assert.Nil(t, sym)
}

type dirTrees struct{ root string }

func (d dirTrees) Path(context.Context, string) (string, error) { return d.root, nil }

// fakeClangd answers just enough of the protocol for one lookup. Incoming
// messages are drained on their own goroutine so server writes never
// deadlock against client replies.
func fakeClangd(t *testing.T, in io.Reader, out io.WriteCloser, root string, progressReplied chan<- struct{}) {
	defer out.Close()
	msgs := make(chan rpcMessage, 64)
	go func() {
		defer close(msgs)
		r := bufio.NewReader(in)
		for {
			msg, err := readMessage(r)
			if err != nil {
				return
			}
			msgs <- msg
		}
	}()

	reply := func(id json.RawMessage, result string) {
		if err := writeMessage(out, rpcMessage{JSONRPC: "2.0", ID: id, Result: json.RawMessage(result)}); err != nil {
			t.Errorf("fake server write: %v", err)
		}
	}
	header := fileURI(filepath.Join(root, "include", "foo.h"))

	for msg := range msgs {
		switch msg.Method {
		case "initialize":
			_ = writeMessage(out, rpcMessage{
				JSONRPC: "2.0",
				ID:      json.RawMessage(`"tok"`),
				Method:  "window/workDoneProgress/create",
				Params:  json.RawMessage(`{"token":"x"}`),
			})
			reply(msg.ID, `{"capabilities":{}}`)
		case "textDocument/definition":
			var params struct {
				Position lspPosition `json:"position"`
			}
			_ = json.Unmarshal(msg.Params, &params)
			if params.Position.Line == 1 && params.Position.Character == 11 {
				reply(msg.ID, `[{"uri":"`+header+`","range":{"start":{"line":1,"character":5},"end":{"line":1,"character":8}}}]`)
			} else {
				reply(msg.ID, `null`)
			}
		case "textDocument/documentSymbol":
			reply(msg.ID, `[{"name":"foo","kind":23,"range":{"start":{"line":0,"character":0},"end":{"line":3,"character":2}},
				"children":[{"name":"bar","kind":8,"range":{"start":{"line":1,"character":1},"end":{"line":1,"character":9}}}]}]`)
		case "shutdown":
			reply(msg.ID, `null`)
		case "":
			if string(msg.ID) == `"tok"` {
				close(progressReplied)
			}
		}
	}
}

func TestLSPLookup_ResolvesToEnclosingStruct(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "include"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "include", "foo.h"), []byte("struct foo {\n\tint bar;\n\tint baz;\n};\n"), 0o644))

	clientR, serverW := io.Pipe()
	serverR, clientW := io.Pipe()
	progressReplied := make(chan struct{})
	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		fakeClangd(t, serverR, serverW, root, progressReplied)
	}()

	l := NewLSPLookup(dirTrees{root: root})
	starts := 0
	l.start = func(ctx context.Context, root string) (*lspSession, error) {
		starts++
		s := newSession(root, clientW, clientR, zap.NewNop())
		if err := s.initialize(ctx); err != nil {
			return nil, err
		}
		return s, nil
	}

	f := File{Path: "a.c", Rev: "r1", Content: "int x;\nint y = p->bar;\n", Added: []int{2}}
	syms, err := l.Lookup(context.Background(), f, patch.LineRange{Start: 1, Count: 2})
	require.NoError(t, err)
	require.Len(t, syms, 1)
	assert.Equal(t, Symbol{
		Name:  "foo",
		Kind:  "struct",
		Path:  "include/foo.h",
		Range: patch.LineRange{Start: 1, Count: 4},
	}, syms[0])

	_, err = l.Lookup(context.Background(), f, patch.LineRange{Start: 1, Count: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, starts, "one server per checkout")

	require.NoError(t, l.Close())
	<-serverDone
	select {
	case <-progressReplied:
	default:
		t.Error("server request was not answered")
	}
}

func TestLSPLookup_NoAddedLines(t *testing.T) {
	l := NewLSPLookup(dirTrees{root: t.TempDir()})
	l.start = func(context.Context, string) (*lspSession, error) {
		t.Fatal("server should not start")
		return nil, nil
	}
	syms, err := l.Lookup(context.Background(), File{Path: "a.c"}, patch.LineRange{Start: 1, Count: 1})
	assert.NoError(t, err)
	assert.Empty(t, syms)
}
