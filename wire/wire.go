// Package wire implements the newline-delimited JSON frame protocol spoken
// over a child process's stdin/stdout.
//
// Every line is one complete JSON object, classified by field presence
// rather than an explicit type tag:
//
//   - a line with a "method" and an "id" is a Request (the sender expects a
//     correlated Response)
//   - a line with an "id" and no "method" is a Response (success carries
//     "result", failure carries "error")
//   - a line with a "method" and no "id" is a Notification (fire-and-forget)
//
// A line matching none of these shapes is a decode failure. Decode failures
// are never fatal; callers skip the line and keep reading.
package wire

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind identifies which of the three frame shapes a decoded line matched.
type Kind int

const (
	KindRequest Kind = iota + 1
	KindResponse
	KindNotification
)

// String returns a human-readable name for logging.
func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	case KindNotification:
		return "notification"
	default:
		return "unknown"
	}
}

// RequestID is the correlation key for a request. The wire allows either a
// JSON string or an integer; whichever form the minting side used is
// preserved verbatim so the matching response round-trips exactly.
//
// The zero value is an empty string id.
type RequestID struct {
	str   string
	num   int64
	isNum bool
}

// StringID returns a string-form request id.
func StringID(s string) RequestID {
	return RequestID{str: s}
}

// IntID returns an integer-form request id.
func IntID(n int64) RequestID {
	return RequestID{num: n, isNum: true}
}

// IsInt reports whether the id was minted in integer form.
func (id RequestID) IsInt() bool {
	return id.isNum
}

// String returns the id's canonical text form. Integer and string ids never
// collide as map keys because the wire form differs ("7" vs 7), but within
// one session only one side mints each id so the text form is sufficient.
func (id RequestID) String() string {
	if id.isNum {
		return strconv.FormatInt(id.num, 10)
	}
	return id.str
}

// MarshalJSON emits the id in the same JSON type it was minted with.
func (id RequestID) MarshalJSON() ([]byte, error) {
	if id.isNum {
		return []byte(strconv.FormatInt(id.num, 10)), nil
	}
	return json.Marshal(id.str)
}

// UnmarshalJSON accepts either a JSON string or an integer.
func (id *RequestID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = RequestID{str: s}
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("request id must be a string or integer: %w", err)
	}
	*id = RequestID{num: n, isNum: true}
	return nil
}

// ErrorObject is the failure payload of an error Response.
type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Frame is one decoded line of the wire protocol.
//
// Which fields are meaningful depends on Kind: Requests carry ID, Method,
// and Params; Responses carry ID and exactly one of Result or Err;
// Notifications carry Method and Params.
type Frame struct {
	Kind   Kind
	ID     RequestID
	Method string
	Params json.RawMessage
	Result json.RawMessage
	Err    *ErrorObject
}

// envelope is the superset shape every inbound line is unmarshaled into
// before classification.
type envelope struct {
	ID     *RequestID      `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorObject    `json:"error,omitempty"`
}

// DecodeError reports a line that failed to parse as JSON or parsed but
// matched none of the three frame shapes. Callers log it and keep reading.
type DecodeError struct {
	Line string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("undecodable frame %q: %v", TruncateForLog(e.Line, 120), e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode parses one wire line into a Frame. A nil error means the frame
// matched exactly one of the three shapes.
func Decode(line []byte) (*Frame, error) {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, &DecodeError{Line: string(line), Err: err}
	}

	switch {
	case env.Method != "" && env.ID != nil:
		return &Frame{
			Kind:   KindRequest,
			ID:     *env.ID,
			Method: env.Method,
			Params: env.Params,
		}, nil
	case env.ID != nil:
		f := &Frame{Kind: KindResponse, ID: *env.ID}
		if env.Error != nil {
			f.Err = env.Error
		} else {
			f.Result = env.Result
		}
		return f, nil
	case env.Method != "":
		return &Frame{
			Kind:   KindNotification,
			Method: env.Method,
			Params: env.Params,
		}, nil
	default:
		return nil, &DecodeError{Line: string(line), Err: fmt.Errorf("frame has neither id nor method")}
	}
}

// Encode serializes a Frame to a single newline-terminated line.
func Encode(f *Frame) ([]byte, error) {
	switch f.Kind {
	case KindRequest:
		return marshalLine(requestShape{ID: f.ID, Method: f.Method, Params: f.Params})
	case KindResponse:
		if f.Err != nil {
			return marshalLine(errorShape{ID: f.ID, Error: f.Err})
		}
		return marshalLine(resultShape{ID: f.ID, Result: normalizeResult(f.Result)})
	case KindNotification:
		return marshalLine(notificationShape{Method: f.Method, Params: f.Params})
	default:
		return nil, fmt.Errorf("cannot encode frame of kind %d", f.Kind)
	}
}

// EncodeRequest serializes an outbound request line. params may be any
// JSON-marshalable value or nil to omit the field.
func EncodeRequest(id RequestID, method string, params any) ([]byte, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return marshalLine(requestShape{ID: id, Method: method, Params: raw})
}

// EncodeResult serializes a success response line. A nil result is emitted
// as JSON null so the "result" key is always present.
func EncodeResult(id RequestID, result any) ([]byte, error) {
	raw, err := marshalParams(result)
	if err != nil {
		return nil, err
	}
	return marshalLine(resultShape{ID: id, Result: normalizeResult(raw)})
}

// EncodeError serializes a failure response line.
func EncodeError(id RequestID, code int, message string) ([]byte, error) {
	return marshalLine(errorShape{ID: id, Error: &ErrorObject{Code: code, Message: message}})
}

// EncodeNotification serializes a fire-and-forget notification line.
func EncodeNotification(method string, params any) ([]byte, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return marshalLine(notificationShape{Method: method, Params: raw})
}

type requestShape struct {
	ID     RequestID       `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type resultShape struct {
	ID     RequestID       `json:"id"`
	Result json.RawMessage `json:"result"`
}

type errorShape struct {
	ID    RequestID    `json:"id"`
	Error *ErrorObject `json:"error"`
}

type notificationShape struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

func marshalParams(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return data, nil
}

func normalizeResult(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}

func marshalLine(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal frame: %w", err)
	}
	return append(data, '\n'), nil
}

// TruncateForLog shortens a wire line for log output.
func TruncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
