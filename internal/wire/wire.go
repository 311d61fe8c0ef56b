// Package wire implements the JSON-RPC 2.0 envelopes exchanged with the
// agent subprocess, plus permissive accessors for the semi-trusted JSON the
// agent sends back. Responses come from an external, version-skewed process;
// nothing in this package panics on an unexpected shape.
package wire

import "encoding/json"

// Version is the JSON-RPC version string sent on every frame.
const Version = "2.0"

// Request is an outgoing request or, with a nil ID, a notification.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      *int64 `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// NewRequest builds a correlated request with the given id.
func NewRequest(id int64, method string, params any) *Request {
	return &Request{JSONRPC: Version, ID: &id, Method: method, Params: params}
}

// NewNotification builds a fire-and-forget request with no id.
func NewNotification(method string, params any) *Request {
	return &Request{JSONRPC: Version, Method: method, Params: params}
}

// Response answers an incoming request from the agent. The id is echoed
// verbatim since agents may use string or numeric ids for their own requests.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Error is the JSON-RPC error member.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Kind classifies an inbound frame by shape.
type Kind int

const (
	// KindInvalid marks frames that are not JSON-RPC at all.
	KindInvalid Kind = iota
	// KindRequest is method + id: the agent wants an answer.
	KindRequest
	// KindResponse is id without method: answers one of our requests.
	KindResponse
	// KindNotification is method without id.
	KindNotification
)

// Message is a decoded inbound frame. Fields are left permissive; callers
// pick what they need via Object accessors.
type Message struct {
	Kind   Kind
	ID     any    // float64 or string as decoded; nil when absent
	Method string
	Params Object
	Result Object
	Err    *Error
}

// Decode parses one frame and classifies it. A parse failure returns an
// error so the dispatcher can drop the frame without dying.
func Decode(data []byte) (*Message, error) {
	var raw struct {
		ID     any             `json:"id"`
		Method string          `json:"method"`
		Params Object          `json:"params"`
		Result json.RawMessage `json:"result"`
		Error  *Error          `json:"error"`
	}

	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	msg := &Message{ID: raw.ID, Method: raw.Method, Params: raw.Params, Err: raw.Error}

	switch {
	case raw.Method != "" && raw.ID != nil:
		msg.Kind = KindRequest
	case raw.Method != "":
		msg.Kind = KindNotification
	case raw.ID != nil:
		msg.Kind = KindResponse
		// Result may be any JSON value; only object results are addressable.
		if len(raw.Result) > 0 {
			var obj Object
			if err := json.Unmarshal(raw.Result, &obj); err == nil {
				msg.Result = obj
			}
		}
	default:
		msg.Kind = KindInvalid
	}

	return msg, nil
}

// ResponseID returns the numeric id of a response, matching the int64 ids
// this client allocates. Returns false for string or fractional ids, which
// cannot belong to any pending request of ours.
func (m *Message) ResponseID() (int64, bool) {
	f, ok := m.ID.(float64)
	if !ok || f != float64(int64(f)) {
		return 0, false
	}

	return int64(f), true
}

// Object is a decoded JSON object with forgiving typed accessors. Missing
// keys and type mismatches yield zero values rather than errors: a single
// odd field from the agent must never take down the dispatcher.
type Object map[string]any

// Str returns the string at key, or "".
func (o Object) Str(key string) string {
	s, _ := o[key].(string)

	return s
}

// Num returns the number at key, or 0.
func (o Object) Num(key string) float64 {
	f, _ := o[key].(float64)

	return f
}

// Int returns the number at key truncated to int, or 0.
func (o Object) Int(key string) int {
	return int(o.Num(key))
}

// Bool returns the bool at key, or false.
func (o Object) Bool(key string) bool {
	b, _ := o[key].(bool)

	return b
}

// Obj returns the nested object at key, or nil.
func (o Object) Obj(key string) Object {
	switch v := o[key].(type) {
	case map[string]any:
		return Object(v)
	case Object:
		return v
	default:
		return nil
	}
}

// Arr returns the array at key, or nil.
func (o Object) Arr(key string) []any {
	a, _ := o[key].([]any)

	return a
}

// Objs returns the array at key filtered to its object elements.
func (o Object) Objs(key string) []Object {
	raw := o.Arr(key)
	if raw == nil {
		return nil
	}

	objs := make([]Object, 0, len(raw))

	for _, v := range raw {
		if m, ok := v.(map[string]any); ok {
			objs = append(objs, Object(m))
		}
	}

	return objs
}

// Has reports whether key is present at all.
func (o Object) Has(key string) bool {
	_, ok := o[key]

	return ok
}
