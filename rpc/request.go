package rpc

import (
	"strconv"

	"github.com/segmentio/encoding/json"
)

// Special request paths.
const (
	PathRootName  = "__rootname__"
	PathStructure = "__structure__"
)

// Request is one remote call.
type Request struct {
	Path   string         `json:"path"`
	Attr   string         `json:"attr,omitempty"`
	Args   []any          `json:"args,omitempty"`
	Kwargs map[string]any `json:"kwargs,omitempty"`
	RawStr bool           `json:"rawStr,omitempty"`
}

type errorReply struct {
	Error string `json:"error"`
}

var nullReply = []byte("null")

func (r *Request) arg(i int) (any, bool) {
	if i >= len(r.Args) {
		return nil, false
	}

	return r.Args[i], true
}

func (r *Request) boolKwarg(name string, def bool) bool {
	if b, ok := r.Kwargs[name].(bool); ok {
		return b
	}

	return def
}

// normalizeArgs turns json.Number values into uint64, int64 or float64.
func (r *Request) normalizeArgs() {
	for i, a := range r.Args {
		r.Args[i] = normalizeNumber(a)
	}
	for k, a := range r.Kwargs {
		r.Kwargs[k] = normalizeNumber(a)
	}
}

func normalizeNumber(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
		return u
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}

	return n.String()
}
