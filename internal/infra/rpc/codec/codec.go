// Package codec implements the length-prefixed JSON framing used on the wire.
//
// Every frame is a 4-byte big-endian payload length followed by that many
// bytes of UTF-8 JSON:
//
//	request:  {"method": str, "params": [...], "id": str}
//	response: {"id": str, "result": any, "error": {"code": int, "message": str} | null}
package codec

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/vietddude/framerpc/internal/core/domain"
)

// HeaderSize is the length of the frame length prefix.
const HeaderSize = 4

// DefaultMaxFrameSize bounds the payload a reader will accept.
const DefaultMaxFrameSize uint32 = 16 << 20

type wireRequest struct {
	Method string `json:"method"`
	Params []any  `json:"params"`
	ID     string `json:"id"`
}

type wireResponse struct {
	ID     string            `json:"id"`
	Result any               `json:"result"`
	Error  *domain.ErrorInfo `json:"error"`
}

// Encode serializes a request into a single frame.
func Encode(req domain.Request) ([]byte, error) {
	params := req.Params
	if params == nil {
		params = []any{}
	}

	payload, err := json.Marshal(wireRequest{Method: req.Method, Params: params, ID: req.ID})
	if err != nil {
		return nil, domain.NewError(domain.KindMalformedFrame, "encode", "", err)
	}
	return frame(payload), nil
}

// EncodeResponse serializes a response into a single frame.
// The "result" and "error" keys are always present.
func EncodeResponse(resp domain.Response) ([]byte, error) {
	payload, err := json.Marshal(wireResponse{ID: resp.ID, Result: resp.Result, Error: resp.Error})
	if err != nil {
		return nil, domain.NewError(domain.KindMalformedFrame, "encode", "", err)
	}
	return frame(payload), nil
}

// Decode parses a response frame.
func Decode(b []byte) (domain.Response, error) {
	fields, err := decodeObject(b)
	if err != nil {
		return domain.Response{}, err
	}

	id, err := requiredString(fields, "id")
	if err != nil {
		return domain.Response{}, err
	}

	rawResult, hasResult := fields["result"]
	rawErr, hasErr := fields["error"]
	if !hasResult && !hasErr {
		return domain.Response{}, unknownField(`missing "result" and "error"`)
	}

	resp := domain.Response{ID: id}
	if hasErr && !isNull(rawErr) {
		var info domain.ErrorInfo
		if err := json.Unmarshal(rawErr, &info); err != nil {
			return domain.Response{}, malformed(fmt.Errorf("error: %w", err))
		}
		resp.Error = &info
	}
	if hasResult {
		if err := json.Unmarshal(rawResult, &resp.Result); err != nil {
			return domain.Response{}, malformed(fmt.Errorf("result: %w", err))
		}
	}

	return resp, nil
}

// DecodeRequest parses a request frame. "params" may be absent or null.
func DecodeRequest(b []byte) (domain.Request, error) {
	fields, err := decodeObject(b)
	if err != nil {
		return domain.Request{}, err
	}

	method, err := requiredString(fields, "method")
	if err != nil {
		return domain.Request{}, err
	}
	id, err := requiredString(fields, "id")
	if err != nil {
		return domain.Request{}, err
	}

	req := domain.Request{Method: method, ID: id}
	if raw, ok := fields["params"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &req.Params); err != nil {
			return domain.Request{}, malformed(fmt.Errorf("params: %w", err))
		}
	}

	return req, nil
}

// ReadFrame reads exactly one frame from r, header included.
// Stream errors (io.EOF, io.ErrUnexpectedEOF, deadlines) are returned as-is;
// a declared length above max is reported as a malformed frame.
func ReadFrame(r io.Reader, max uint32) ([]byte, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	n := binary.BigEndian.Uint32(header[:])
	if max > 0 && n > max {
		return nil, malformed(fmt.Errorf("declared length %d exceeds limit %d", n, max))
	}

	buf := make([]byte, HeaderSize+int(n))
	copy(buf, header[:])
	if _, err := io.ReadFull(r, buf[HeaderSize:]); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf, nil
}

func frame(payload []byte) []byte {
	buf := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[HeaderSize:], payload)
	return buf
}

func payloadOf(b []byte) ([]byte, error) {
	if len(b) < HeaderSize {
		return nil, malformed(fmt.Errorf("frame is %d bytes, shorter than header", len(b)))
	}
	n := binary.BigEndian.Uint32(b)
	if have := len(b) - HeaderSize; uint64(n) != uint64(have) {
		return nil, malformed(fmt.Errorf("declared length %d, have %d bytes", n, have))
	}
	return b[HeaderSize:], nil
}

func decodeObject(b []byte) (map[string]json.RawMessage, error) {
	payload, err := payloadOf(b)
	if err != nil {
		return nil, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, malformed(fmt.Errorf("payload: %w", err))
	}
	if fields == nil {
		return nil, malformed(errors.New("payload is not an object"))
	}
	return fields, nil
}

func requiredString(fields map[string]json.RawMessage, key string) (string, error) {
	raw, ok := fields[key]
	if !ok || isNull(raw) {
		return "", unknownField(fmt.Sprintf("missing %q", key))
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", malformed(fmt.Errorf("%s: %w", key, err))
	}
	return s, nil
}

func isNull(raw json.RawMessage) bool {
	return string(raw) == "null"
}

func malformed(err error) error {
	return domain.NewError(domain.KindMalformedFrame, "decode", "", err)
}

func unknownField(msg string) error {
	return domain.NewError(domain.KindUnknownField, "decode", "", errors.New(msg))
}
