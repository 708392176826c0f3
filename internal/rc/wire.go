package rc

import (
	"errors"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// Wire field numbers for the request/reply: id, command, namespace, key,
// ttl, comment, params (request); id, age, counters (reply). There is
// no .proto schema for this protocol, so protowire gives a compact
// length-prefixed varint/string wire without hand-rolling one.
const (
	fieldID        = 1
	fieldCommand   = 2
	fieldNamespace = 3
	fieldKey       = 4
	fieldTTL       = 5
	fieldComment   = 6
	fieldParams    = 7

	fieldRespID       = 1
	fieldRespAge      = 2
	fieldRespCounters = 3
)

var errBadResponse = errors.New("rc: bad_response")

func encodeRequest(req *Request) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldID, protowire.VarintType)
	b = protowire.AppendVarint(b, req.ID)
	b = protowire.AppendTag(b, fieldCommand, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(req.Cmd))
	b = protowire.AppendTag(b, fieldNamespace, protowire.BytesType)
	b = protowire.AppendString(b, req.Namespace)
	b = protowire.AppendTag(b, fieldKey, protowire.BytesType)
	b = protowire.AppendString(b, req.Key)
	b = protowire.AppendTag(b, fieldTTL, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(req.TTL.Seconds()))
	b = protowire.AppendTag(b, fieldComment, protowire.BytesType)
	b = protowire.AppendString(b, req.Comment)
	for _, p := range req.Params {
		b = protowire.AppendTag(b, fieldParams, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(uint32(p)))
	}
	return b
}

// encodeResponse is the server-side half of the wire codec; this
// repository only plays the client role, but the test suite uses it to
// stand in for a real RC daemon.
func encodeResponse(resp *Response) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldRespID, protowire.VarintType)
	b = protowire.AppendVarint(b, resp.ID)
	b = protowire.AppendTag(b, fieldRespAge, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(resp.AgeSeconds))
	for _, c := range resp.Counters {
		b = protowire.AppendTag(b, fieldRespCounters, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(uint32(c)))
	}
	return b
}

// decodeRequest is the server-side half of the wire codec, used by the
// test suite's fake RC daemon to read back what Client.Start sent.
func decodeRequest(buf []byte) (*Request, error) {
	req := &Request{}
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return nil, errBadResponse
		}
		buf = buf[n:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return nil, errBadResponse
			}
			buf = buf[n:]
			switch num {
			case fieldID:
				req.ID = v
			case fieldCommand:
				req.Cmd = Command(v)
			case fieldTTL:
				req.TTL = time.Duration(v) * time.Second
			case fieldParams:
				req.Params = append(req.Params, int32(v))
			}
		case protowire.BytesType:
			s, n := protowire.ConsumeString(buf)
			if n < 0 {
				return nil, errBadResponse
			}
			buf = buf[n:]
			switch num {
			case fieldNamespace:
				req.Namespace = s
			case fieldKey:
				req.Key = s
			case fieldComment:
				req.Comment = s
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return nil, errBadResponse
			}
			buf = buf[n:]
		}
	}
	return req, nil
}

func decodeResponse(buf []byte) (*Response, error) {
	resp := &Response{}
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return nil, errBadResponse
		}
		buf = buf[n:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return nil, errBadResponse
			}
			buf = buf[n:]
			switch num {
			case fieldRespID:
				resp.ID = v
			case fieldRespAge:
				resp.AgeSeconds = int64(v)
			case fieldRespCounters:
				resp.Counters = append(resp.Counters, int32(v))
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return nil, errBadResponse
			}
			buf = buf[n:]
		}
	}
	return resp, nil
}
