package message

import "strings"

// OptionID is a draft-09 option number. The engine recognizes a closed set
// of these (spec.md §3); the decoder drops an option with any other
// number without reporting an error.
type OptionID uint8

// The closed set of option numbers this engine understands, numbered per
// draft-ietf-core-coap-09 (spec.md's worked examples pin Uri-Path=9 and
// Fencepost=14; the remaining numbers follow the same draft).
const (
	ContentType   OptionID = 1
	MaxAge        OptionID = 2
	ProxyURI      OptionID = 3
	ETag          OptionID = 4
	UriHost       OptionID = 5
	LocationPath  OptionID = 6
	UriPort       OptionID = 7
	LocationQuery OptionID = 8
	UriPath       OptionID = 9
	Observe       OptionID = 10
	TokenOption   OptionID = 11
	Fencepost     OptionID = 14
	UriQuery      OptionID = 15
	Block2        OptionID = 17
	Block1        OptionID = 19
)

// CanonicalOrder lists every real (non-Fencepost) option number in the
// ascending order the encoder emits them, per spec.md §4.1. The codec
// inserts Fencepost options between consecutive entries here whenever the
// numeric gap exceeds 14; this table is the single source of truth for
// that ordering, so the Fencepost rule only has to be implemented once.
var CanonicalOrder = []OptionID{
	ContentType, MaxAge, ProxyURI, ETag, UriHost, LocationPath, UriPort,
	LocationQuery, UriPath, Observe, TokenOption, UriQuery, Block2, Block1,
}

// Repeatable reports whether multiple instances of id may appear in one
// message. Per spec.md §3's decode rule, this is exactly {ETag,
// LocationPath, UriPath, UriQuery}.
func Repeatable(id OptionID) bool {
	switch id {
	case ETag, LocationPath, UriPath, UriQuery:
		return true
	default:
		return false
	}
}

// Options is the structured record described in spec.md §3: at most one
// value for a single-valued option, an ordered sequence for a repeatable
// one. A nil field means "absent"; a non-nil, zero-length value means
// "present with an empty value" (legal for, e.g., Observe registration).
//
// The Token option (number 11) is not a field here: draft-09 carries the
// message's Token as a wire option rather than a fixed header field, but
// this package models Token as Message.Token per spec.md §3's Data Model,
// so package udpcoder splices it into the canonical sequence at encode
// time and strips it back out at decode time.
type Options struct {
	ContentType   []byte
	MaxAge        []byte
	ProxyURI      []byte
	ETag          [][]byte
	UriHost       []byte
	LocationPath  []string
	UriPort       []byte
	LocationQuery []byte
	UriPath       []string
	Observe       []byte
	UriQuery      []string
	Block2        []byte
	Block1        []byte
}

// Instance is one (number, value) pair as it appears on the wire, after
// Uri-Path/Uri-Query/Location-Path have been split into repeats and before
// Fencepost insertion.
type Instance struct {
	ID    OptionID
	Value []byte
}

// Flatten expands o into the ordered sequence of wire instances, in
// CanonicalOrder, with repeatable options expanded to one Instance per
// element. Fencepost insertion is not done here; see package udpcoder.
func (o *Options) Flatten() []Instance {
	var out []Instance
	for _, id := range CanonicalOrder {
		switch id {
		case ContentType:
			if o.ContentType != nil {
				out = append(out, Instance{ContentType, o.ContentType})
			}
		case MaxAge:
			if o.MaxAge != nil {
				out = append(out, Instance{MaxAge, o.MaxAge})
			}
		case ProxyURI:
			if o.ProxyURI != nil {
				out = append(out, Instance{ProxyURI, o.ProxyURI})
			}
		case ETag:
			for _, v := range o.ETag {
				out = append(out, Instance{ETag, v})
			}
		case UriHost:
			if o.UriHost != nil {
				out = append(out, Instance{UriHost, o.UriHost})
			}
		case LocationPath:
			for _, v := range o.LocationPath {
				out = append(out, Instance{LocationPath, []byte(v)})
			}
		case UriPort:
			if o.UriPort != nil {
				out = append(out, Instance{UriPort, o.UriPort})
			}
		case LocationQuery:
			if o.LocationQuery != nil {
				out = append(out, Instance{LocationQuery, o.LocationQuery})
			}
		case UriPath:
			for _, v := range o.UriPath {
				out = append(out, Instance{UriPath, []byte(v)})
			}
		case Observe:
			if o.Observe != nil {
				out = append(out, Instance{Observe, o.Observe})
			}
		case UriQuery:
			for _, v := range o.UriQuery {
				out = append(out, Instance{UriQuery, []byte(v)})
			}
		case Block2:
			if o.Block2 != nil {
				out = append(out, Instance{Block2, o.Block2})
			}
		case Block1:
			if o.Block1 != nil {
				out = append(out, Instance{Block1, o.Block1})
			}
		}
	}
	return out
}

// Append adds one decoded wire instance into the structured record,
// respecting single-valued vs repeatable semantics. Called by the decoder
// once per emitted (non-Fencepost) option, in wire order.
func (o *Options) Append(id OptionID, value []byte) {
	switch id {
	case ContentType:
		o.ContentType = value
	case MaxAge:
		o.MaxAge = value
	case ProxyURI:
		o.ProxyURI = value
	case ETag:
		o.ETag = append(o.ETag, value)
	case UriHost:
		o.UriHost = value
	case LocationPath:
		o.LocationPath = append(o.LocationPath, string(value))
	case UriPort:
		o.UriPort = value
	case LocationQuery:
		o.LocationQuery = value
	case UriPath:
		o.UriPath = append(o.UriPath, string(value))
	case Observe:
		o.Observe = value
	case UriQuery:
		o.UriQuery = append(o.UriQuery, string(value))
	case Block2:
		o.Block2 = value
	case Block1:
		o.Block1 = value
	}
}

// Count returns the number of wire instances o expands to. The
// options-count nibble on the wire is larger by one for a non-empty
// Message.Token and by one for every Fencepost the codec adds.
func (o *Options) Count() int {
	return len(o.Flatten())
}

// IsEmpty reports whether o carries no options at all.
func (o *Options) IsEmpty() bool {
	return o.Count() == 0
}

// SetPathString splits path on "/" into the repeated Uri-Path segments,
// dropping a single leading slash so "/a/b" and "a/b" behave the same.
func (o *Options) SetPathString(path string) {
	o.UriPath = nil
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return
	}
	o.UriPath = strings.Split(path, "/")
}

// PathString rejoins the Uri-Path segments with "/". ok is false when no
// Uri-Path option is present.
func (o *Options) PathString() (string, bool) {
	if len(o.UriPath) == 0 {
		return "", false
	}
	return strings.Join(o.UriPath, "/"), true
}

// SetQueryString splits query on "&" into the repeated Uri-Query segments.
func (o *Options) SetQueryString(query string) {
	o.UriQuery = nil
	if query == "" {
		return
	}
	o.UriQuery = strings.Split(query, "&")
}

// QueryString rejoins the Uri-Query segments with "&".
func (o *Options) QueryString() (string, bool) {
	if len(o.UriQuery) == 0 {
		return "", false
	}
	return strings.Join(o.UriQuery, "&"), true
}

// SetLocationPathString splits path on "/" into the repeated Location-Path
// segments, the same way SetPathString does for Uri-Path.
func (o *Options) SetLocationPathString(path string) {
	o.LocationPath = nil
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return
	}
	o.LocationPath = strings.Split(path, "/")
}

// LocationPathString rejoins the Location-Path segments with "/".
func (o *Options) LocationPathString() (string, bool) {
	if len(o.LocationPath) == 0 {
		return "", false
	}
	return strings.Join(o.LocationPath, "/"), true
}

// MaxAgeValue decodes the Max-Age option's shortened big-endian integer.
// ok is false when no Max-Age option is present.
func (o *Options) MaxAgeValue() (uint32, bool) {
	if o.MaxAge == nil {
		return 0, false
	}
	return DecodeUint32(o.MaxAge), true
}

// SetMaxAge encodes value into the Max-Age option using EncodeUint32's
// shortest representation, per spec.md §3.
func (o *Options) SetMaxAge(value uint32) {
	buf := make([]byte, 4)
	n, _ := EncodeUint32(buf, value)
	o.MaxAge = buf[:n]
}

// ObserveValue decodes the Observe option's shortened big-endian integer.
// ok is false when no Observe option is present.
func (o *Options) ObserveValue() (uint32, bool) {
	if o.Observe == nil {
		return 0, false
	}
	return DecodeUint32(o.Observe), true
}

// SetObserve encodes value into the Observe option using EncodeUint32's
// shortest representation.
func (o *Options) SetObserve(value uint32) {
	buf := make([]byte, 4)
	n, _ := EncodeUint32(buf, value)
	o.Observe = buf[:n]
}

// UriPortValue decodes the Uri-Port option's shortened big-endian integer.
// ok is false when no Uri-Port option is present.
func (o *Options) UriPortValue() (uint32, bool) {
	if o.UriPort == nil {
		return 0, false
	}
	return DecodeUint32(o.UriPort), true
}

// SetUriPort encodes value into the Uri-Port option using EncodeUint32's
// shortest representation.
func (o *Options) SetUriPort(value uint32) {
	buf := make([]byte, 4)
	n, _ := EncodeUint32(buf, value)
	o.UriPort = buf[:n]
}

// HasBlock1 reports whether a Block1 option is present.
func (o *Options) HasBlock1() bool { return o.Block1 != nil }

// HasBlock2 reports whether a Block2 option is present.
func (o *Options) HasBlock2() bool { return o.Block2 != nil }
