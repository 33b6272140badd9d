// Package identity implements the identity document collaborative object.
// The document names the delegates allowed to govern it and the quorum
// threshold their accept votes must reach before a proposed revision of
// the document takes effect.
package identity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/zeebo/blake3"

	"github.com/cobkit/cobkit/cob/opgraph"
	"github.com/cobkit/cobkit/util/crypto"
	"github.com/cobkit/cobkit/util/slice"
)

type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Document is one version of an identity document. Payload carries
// free-form sections addressable by (namespace, key); a null value at a
// key deletes the field when the document is amended.
type Document struct {
	Delegates  []string                              `json:"delegates"`
	Threshold  int                                   `json:"threshold"`
	Visibility Visibility                            `json:"visibility"`
	Allow      []string                              `json:"allow,omitempty"`
	Payload    map[string]map[string]json.RawMessage `json:"payload,omitempty"`
}

func (d *Document) IsDelegate(account string) bool {
	return slice.FindPos(d.Delegates, account) != -1
}

// Validate checks the structural rules a document must satisfy before it
// can be proposed: at least one delegate, every delegate a decodable
// account, unique delegates, and a threshold satisfiable by the delegate
// set.
func (d *Document) Validate() error {
	if len(d.Delegates) == 0 {
		return ErrNoDelegates
	}
	seen := make(map[string]struct{}, len(d.Delegates))
	for _, del := range d.Delegates {
		if _, err := crypto.DecodeAccount(del); err != nil {
			return fmt.Errorf("%w: delegate %s", ErrMalformedDocument, del)
		}
		if _, ok := seen[del]; ok {
			return fmt.Errorf("%w: duplicate delegate %s", ErrMalformedDocument, del)
		}
		seen[del] = struct{}{}
	}
	if d.Threshold < 1 || d.Threshold > len(d.Delegates) {
		return ErrThresholdOutOfRange
	}
	switch d.Visibility {
	case VisibilityPublic, VisibilityPrivate:
	case "":
		return fmt.Errorf("%w: missing visibility", ErrMalformedDocument)
	default:
		return fmt.Errorf("%w: visibility %q", ErrMalformedDocument, d.Visibility)
	}
	for _, acc := range d.Allow {
		if _, err := crypto.DecodeAccount(acc); err != nil {
			return fmt.Errorf("%w: allow entry %s", ErrMalformedDocument, acc)
		}
	}
	return nil
}

// Clone returns a deep copy. Amending a proposed document must never
// reach back into the accepted one.
func (d *Document) Clone() *Document {
	cp := &Document{
		Delegates:  append([]string(nil), d.Delegates...),
		Threshold:  d.Threshold,
		Visibility: d.Visibility,
	}
	if d.Allow != nil {
		cp.Allow = append([]string(nil), d.Allow...)
	}
	if d.Payload != nil {
		cp.Payload = make(map[string]map[string]json.RawMessage, len(d.Payload))
		for ns, section := range d.Payload {
			sec := make(map[string]json.RawMessage, len(section))
			for k, v := range section {
				sec[k] = append(json.RawMessage(nil), v...)
			}
			cp.Payload[ns] = sec
		}
	}
	return cp
}

// SetField writes value at (namespace, key) in the payload sections. A
// JSON null value deletes the field, and empty sections are dropped.
func (d *Document) SetField(namespace, key string, value json.RawMessage) {
	if isJsonNull(value) {
		section, ok := d.Payload[namespace]
		if !ok {
			return
		}
		delete(section, key)
		if len(section) == 0 {
			delete(d.Payload, namespace)
		}
		return
	}
	if d.Payload == nil {
		d.Payload = make(map[string]map[string]json.RawMessage)
	}
	section, ok := d.Payload[namespace]
	if !ok {
		section = make(map[string]json.RawMessage)
		d.Payload[namespace] = section
	}
	section[key] = value
}

// Field returns the value at (namespace, key), or nil when absent.
func (d *Document) Field(namespace, key string) json.RawMessage {
	section, ok := d.Payload[namespace]
	if !ok {
		return nil
	}
	return section[key]
}

// Canonical serializes the document deterministically: delegates and
// allow lists sorted, object keys emitted in sorted order, no
// insignificant whitespace. Two equal documents always produce the same
// bytes.
func (d *Document) Canonical() ([]byte, error) {
	cp := d.Clone()
	sort.Strings(cp.Delegates)
	sort.Strings(cp.Allow)

	var buf bytes.Buffer
	buf.WriteByte('{')
	writeKey := func(first bool, key string) bool {
		if !first {
			buf.WriteByte(',')
		}
		b, _ := json.Marshal(key)
		buf.Write(b)
		buf.WriteByte(':')
		return false
	}
	first := true
	if cp.Allow != nil {
		first = writeKey(first, "allow")
		b, err := json.Marshal(cp.Allow)
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	first = writeKey(first, "delegates")
	b, err := json.Marshal(cp.Delegates)
	if err != nil {
		return nil, err
	}
	buf.Write(b)
	if len(cp.Payload) > 0 {
		first = writeKey(first, "payload")
		if err = writeCanonicalPayload(&buf, cp.Payload); err != nil {
			return nil, err
		}
	}
	first = writeKey(first, "threshold")
	fmt.Fprintf(&buf, "%d", cp.Threshold)
	_ = writeKey(first, "visibility")
	b, _ = json.Marshal(string(cp.Visibility))
	buf.Write(b)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeCanonicalPayload(buf *bytes.Buffer, payload map[string]map[string]json.RawMessage) error {
	namespaces := make([]string, 0, len(payload))
	for ns := range payload {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)
	buf.WriteByte('{')
	for i, ns := range namespaces {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, _ := json.Marshal(ns)
		buf.Write(b)
		buf.WriteByte(':')
		section := payload[ns]
		keys := make([]string, 0, len(section))
		for k := range section {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for j, k := range keys {
			if j > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			buf.Write(kb)
			buf.WriteByte(':')
			var compact bytes.Buffer
			if err := json.Compact(&compact, section[k]); err != nil {
				return fmt.Errorf("%w: payload %s/%s", opgraph.ErrMalformedPayload, ns, k)
			}
			buf.Write(compact.Bytes())
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return nil
}

// Digest hashes the canonical serialization. Used to detect proposals
// that would not change the accepted document.
func (d *Document) Digest() ([32]byte, error) {
	canonical, err := d.Canonical()
	if err != nil {
		return [32]byte{}, err
	}
	return blake3.Sum256(canonical), nil
}

func (d *Document) Equal(other *Document) bool {
	da, err := d.Digest()
	if err != nil {
		return false
	}
	db, err := other.Digest()
	if err != nil {
		return false
	}
	return da == db
}

func isJsonNull(v json.RawMessage) bool {
	return len(bytes.TrimSpace(v)) == 0 || string(bytes.TrimSpace(v)) == "null"
}
