package bridge

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// JSON-RPC 2.0 error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id,omitempty"`
	Result  interface{} `json:"result,omitempty"`
	Error   *rpcError   `json:"error,omitempty"`
}

type rpcError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// message is one inbound payload. Framed records whether it arrived with a
// Content-Length header so the reply can use the same framing.
type message struct {
	payload []byte
	framed  bool
}

// codec reads and writes JSON-RPC messages. Requests may be Content-Length
// framed or bare single-line JSON; replies mirror the framing of the request.
type codec struct {
	r *bufio.Reader
	w *bufio.Writer
}

func newCodec(r io.Reader, w io.Writer) *codec {
	return &codec{r: bufio.NewReader(r), w: bufio.NewWriter(w)}
}

func (c *codec) writeResult(framed bool, id interface{}, result interface{}) error {
	if id == nil {
		return nil
	}
	return c.write(framed, rpcResponse{JSONRPC: "2.0", ID: id, Result: result})
}

func (c *codec) writeError(framed bool, id interface{}, code int, msg string, data interface{}) error {
	if id == nil {
		return nil
	}
	return c.write(framed, rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: msg, Data: data}})
}

func (c *codec) write(framed bool, resp rpcResponse) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	if framed {
		if _, err := fmt.Fprintf(c.w, "Content-Length: %d\r\n\r\n", len(payload)); err != nil {
			return err
		}
		if _, err := c.w.Write(payload); err != nil {
			return err
		}
	} else {
		if _, err := c.w.Write(payload); err != nil {
			return err
		}
		if err := c.w.WriteByte('\n'); err != nil {
			return err
		}
	}
	return c.w.Flush()
}

func (c *codec) read() (message, error) {
	for {
		line, err := c.r.ReadString('\n')
		if err != nil && len(line) == 0 {
			return message{}, err
		}
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "{") {
			return message{payload: []byte(trimmed)}, nil
		}

		contentLength, err := headerLength(trimmed, 0)
		if err != nil {
			return message{}, err
		}
		for {
			headerLine, readErr := c.r.ReadString('\n')
			if readErr != nil && len(headerLine) == 0 {
				return message{}, readErr
			}
			header := strings.TrimRight(headerLine, "\r\n")
			if header == "" {
				break
			}
			if contentLength, err = headerLength(header, contentLength); err != nil {
				return message{}, err
			}
		}

		if contentLength <= 0 {
			return message{}, fmt.Errorf("missing Content-Length")
		}
		payload := make([]byte, contentLength)
		if _, err := io.ReadFull(c.r, payload); err != nil {
			return message{}, err
		}
		return message{payload: payload, framed: true}, nil
	}
}

// headerLength returns the Content-Length carried by header, or current when
// header is some other field.
func headerLength(header string, current int) (int, error) {
	name, value, ok := strings.Cut(header, ":")
	if !ok || !strings.EqualFold(strings.TrimSpace(name), "content-length") {
		return current, nil
	}
	length, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid Content-Length %q: %w", value, err)
	}
	return length, nil
}
