package httpparse

import (
	"strconv"
	"strings"

	"github.com/wharfhq/wharf/internal/httpmsg"
)

type reqState int

const (
	stMethodStart reqState = iota
	stMethod
	stURIStart
	stURI
	stURIParamStart
	stURIParam
	stURIParamMime
	stHTTPVersionH
	stHTTPVersionT1
	stHTTPVersionT2
	stHTTPVersionP
	stHTTPVersionSlash
	stHTTPVersionMajorStart
	stHTTPVersionMajor
	stHTTPVersionMinorStart
	stHTTPVersionMinor
	stExpectingNewline1
	stHeaderLineStart
	stHeaderLWS
	stHeaderName
	stSpaceBeforeHeaderValue
	stHeaderValue
	stHeaderValueOptionsStart
	stHeaderValueOptions
	stExpectingNewline2
	stExpectingNewline3
	stContent
	stFormDataStart
	stFormData
	stFormMime
	stDone
)

// RequestParser is a resumable, byte-at-a-time HTTP/1.1 request
// parser. A caller holds one instance per connection and feeds it
// successive input chunks across calls to Parse; the parser's state
// (the reqState plus the small accumulation buffers below) persists
// across calls so that splitting the input at any byte boundary
// produces the same final Request.
type RequestParser struct {
	state reqState

	methodBuf []byte
	uriBuf    []byte
	paramBuf  []byte

	percentBuf [2]byte
	percentIdx int

	verMajor, verMinor int

	headerNameBuf  []byte
	headerValueBuf []byte
	headerOptBuf   []byte
	lastHeaderIdx  int
	foldingHeader  bool // true while headerValueBuf holds an LWS-folded continuation of the header at lastHeaderIdx, not a new header

	contentLength int64 // from the Content-Length header; zero when it is absent (no length is inferred from the bytes after the headers)
	bodyRead      int64

	formPairBuf []byte

	// MaxHeaderBytes and MaxBodyBytes bound how much of the request
	// line, headers, and body this parser will accumulate before
	// failing with Error instead of growing its buffers without
	// limit. Zero means unlimited. headerBytes counts everything
	// consumed from the start of the request line through the blank
	// line ending the headers.
	MaxHeaderBytes int
	MaxBodyBytes   int64
	headerBytes    int
}

// NewRequestParser returns a parser positioned at the start of a
// request line.
func NewRequestParser() *RequestParser {
	return &RequestParser{state: stMethodStart, lastHeaderIdx: -1}
}

// Reset returns the parser to its initial state so it can be reused
// for the next request on a keep-alive connection. MaxHeaderBytes and
// MaxBodyBytes survive the reset since they're a property of the
// connection, not of any one request.
func (p *RequestParser) Reset() {
	*p = RequestParser{state: stMethodStart, lastHeaderIdx: -1, MaxHeaderBytes: p.MaxHeaderBytes, MaxBodyBytes: p.MaxBodyBytes}
}

// Done reports whether the parser reached a terminal state (Done) on
// a previous call.
func (p *RequestParser) Done() bool {
	return p.state == stDone
}

// Parse feeds data to Consume byte by byte and returns the first
// terminal verdict reached, along with the number of bytes consumed
// from data. If the whole chunk is consumed without reaching a
// terminal state, it returns NeedMore and n == len(data).
func (p *RequestParser) Parse(req *httpmsg.Request, data []byte) (Verdict, int) {
	for i, b := range data {
		v := p.Consume(req, b)
		if v != NeedMore {
			return v, i + 1
		}
	}
	return NeedMore, len(data)
}

// Consume advances the state machine by exactly one byte.
func (p *RequestParser) Consume(req *httpmsg.Request, b byte) Verdict {
	if p.state < stContent {
		p.headerBytes++
		if p.MaxHeaderBytes > 0 && p.headerBytes > p.MaxHeaderBytes {
			return Error
		}
	}
	switch p.state {
	case stMethodStart:
		if !IsToken(b) {
			return Error
		}
		p.methodBuf = append(p.methodBuf, b)
		p.state = stMethod
		return NeedMore

	case stMethod:
		if b == ' ' {
			req.Method = string(p.methodBuf)
			p.state = stURIStart
			return NeedMore
		}
		if !IsToken(b) {
			return Error
		}
		p.methodBuf = append(p.methodBuf, b)
		return NeedMore

	case stURIStart:
		if IsCtl(b) || b == ' ' {
			return Error
		}
		if b == '?' {
			req.URI = string(p.uriBuf)
			p.state = stURIParamStart
			return NeedMore
		}
		p.uriBuf = append(p.uriBuf, b)
		p.state = stURI
		return NeedMore

	case stURI:
		switch {
		case b == ' ':
			req.URI = string(p.uriBuf)
			p.state = stHTTPVersionH
			return NeedMore
		case b == '?':
			req.URI = string(p.uriBuf)
			p.state = stURIParamStart
			return NeedMore
		case IsCtl(b):
			return Error
		default:
			p.uriBuf = append(p.uriBuf, b)
			return NeedMore
		}

	case stURIParamStart:
		return p.consumeURIParamByte(req, b)

	case stURIParam:
		return p.consumeURIParamByte(req, b)

	case stURIParamMime:
		return p.consumePercent(b, func() {
			p.paramBuf = append(p.paramBuf, p.decodedByte())
		}, stURIParam)

	case stHTTPVersionH:
		return p.expectLiteral(b, 'H', stHTTPVersionT1)
	case stHTTPVersionT1:
		return p.expectLiteral(b, 'T', stHTTPVersionT2)
	case stHTTPVersionT2:
		return p.expectLiteral(b, 'T', stHTTPVersionP)
	case stHTTPVersionP:
		return p.expectLiteral(b, 'P', stHTTPVersionSlash)
	case stHTTPVersionSlash:
		return p.expectLiteral(b, '/', stHTTPVersionMajorStart)

	case stHTTPVersionMajorStart:
		if !IsDigit(b) {
			return Error
		}
		p.verMajor = int(b - '0')
		p.state = stHTTPVersionMajor
		return NeedMore
	case stHTTPVersionMajor:
		if b == '.' {
			p.state = stHTTPVersionMinorStart
			return NeedMore
		}
		if !IsDigit(b) {
			return Error
		}
		p.verMajor = p.verMajor*10 + int(b-'0')
		return NeedMore
	case stHTTPVersionMinorStart:
		if !IsDigit(b) {
			return Error
		}
		p.verMinor = int(b - '0')
		p.state = stHTTPVersionMinor
		return NeedMore
	case stHTTPVersionMinor:
		if b == '\r' {
			req.VMajor, req.VMinor = p.verMajor, p.verMinor
			p.state = stExpectingNewline1
			return NeedMore
		}
		if !IsDigit(b) {
			return Error
		}
		p.verMinor = p.verMinor*10 + int(b-'0')
		return NeedMore

	case stExpectingNewline1:
		if b != '\n' {
			return Error
		}
		p.state = stHeaderLineStart
		return NeedMore

	case stHeaderLineStart:
		switch {
		case b == '\r':
			p.state = stExpectingNewline3
			return NeedMore
		case b == ' ' || b == '\t':
			if p.lastHeaderIdx < 0 {
				return Error
			}
			p.state = stHeaderLWS
			return NeedMore
		case IsToken(b):
			p.headerNameBuf = append(p.headerNameBuf[:0], b)
			p.headerValueBuf = p.headerValueBuf[:0]
			p.state = stHeaderName
			return NeedMore
		default:
			return Error
		}

	case stHeaderLWS:
		if b == '\r' {
			p.state = stExpectingNewline2
			return NeedMore
		}
		if b == ' ' || b == '\t' {
			return NeedMore
		}
		// First byte of the folded continuation: replace the line
		// break and its leading whitespace with a single space (RFC
		// 2616 LWS), then fall into ordinary header-value
		// accumulation so the rest of the line appends normally.
		existing := req.Headers.At(p.lastHeaderIdx)
		p.headerValueBuf = append(p.headerValueBuf[:0], existing.Value...)
		p.headerValueBuf = append(p.headerValueBuf, ' ', b)
		p.foldingHeader = true
		p.state = stHeaderValue
		return NeedMore

	case stHeaderName:
		if b == ':' {
			p.state = stSpaceBeforeHeaderValue
			return NeedMore
		}
		if !IsToken(b) {
			return Error
		}
		p.headerNameBuf = append(p.headerNameBuf, b)
		return NeedMore

	case stSpaceBeforeHeaderValue:
		if b == ' ' || b == '\t' {
			return NeedMore
		}
		if b == '\r' {
			p.commitHeader(req)
			p.state = stExpectingNewline2
			return NeedMore
		}
		p.headerValueBuf = append(p.headerValueBuf, b)
		p.state = stHeaderValue
		return NeedMore

	case stHeaderValue:
		switch b {
		case ';':
			p.commitHeader(req)
			p.state = stHeaderValueOptionsStart
			return NeedMore
		case '\r':
			p.commitHeader(req)
			p.state = stExpectingNewline2
			return NeedMore
		default:
			p.headerValueBuf = append(p.headerValueBuf, b)
			return NeedMore
		}

	case stHeaderValueOptionsStart:
		if b == ' ' || b == '\t' {
			return NeedMore
		}
		if b == '\r' {
			req.Headers.AddOption("")
			p.state = stExpectingNewline2
			return NeedMore
		}
		p.headerOptBuf = append(p.headerOptBuf[:0], b)
		p.state = stHeaderValueOptions
		return NeedMore

	case stHeaderValueOptions:
		switch b {
		case ';':
			req.Headers.AddOption(strings.TrimSpace(string(p.headerOptBuf)))
			p.state = stHeaderValueOptionsStart
			return NeedMore
		case '\r':
			req.Headers.AddOption(strings.TrimSpace(string(p.headerOptBuf)))
			p.state = stExpectingNewline2
			return NeedMore
		default:
			p.headerOptBuf = append(p.headerOptBuf, b)
			return NeedMore
		}

	case stExpectingNewline2:
		if b != '\n' {
			return Error
		}
		p.state = stHeaderLineStart
		return NeedMore

	case stExpectingNewline3:
		if b != '\n' {
			return Error
		}
		return p.headersComplete(req)

	case stContent:
		if p.MaxBodyBytes > 0 && p.bodyRead >= p.MaxBodyBytes {
			return Error
		}
		req.Content = append(req.Content, b)
		p.bodyRead++
		if p.bodyRead >= p.contentLength {
			p.state = stDone
			return Done
		}
		return NeedMore

	case stFormDataStart:
		return p.consumeFormByte(req, b)
	case stFormData:
		return p.consumeFormByte(req, b)
	case stFormMime:
		return p.consumeFormPercentByte(req, b)

	default:
		return Error
	}
}

func (p *RequestParser) expectLiteral(b, want byte, next reqState) Verdict {
	if b != want {
		return Error
	}
	p.state = next
	return NeedMore
}

func (p *RequestParser) decodedByte() byte {
	hi, _ := hexVal(p.percentBuf[0])
	lo, _ := hexVal(p.percentBuf[1])
	return byte(hi<<4 | lo)
}

func (p *RequestParser) consumePercent(b byte, onComplete func(), next reqState) Verdict {
	if _, ok := hexVal(b); !ok {
		return Error
	}
	p.percentBuf[p.percentIdx] = b
	p.percentIdx++
	if p.percentIdx == 2 {
		onComplete()
		p.percentIdx = 0
		p.state = next
	}
	return NeedMore
}

func (p *RequestParser) consumeURIParamByte(req *httpmsg.Request, b byte) Verdict {
	switch {
	case b == ' ':
		p.flushURIParam(req)
		p.state = stHTTPVersionH
		return NeedMore
	case b == '&':
		p.flushURIParam(req)
		p.state = stURIParamStart
		return NeedMore
	case b == '+':
		p.paramBuf = append(p.paramBuf, ' ')
		p.state = stURIParam
		return NeedMore
	case b == '%':
		p.percentIdx = 0
		p.state = stURIParamMime
		return NeedMore
	case IsCtl(b):
		return Error
	default:
		p.paramBuf = append(p.paramBuf, b)
		p.state = stURIParam
		return NeedMore
	}
}

func (p *RequestParser) flushURIParam(req *httpmsg.Request) {
	req.Params = append(req.Params, string(p.paramBuf))
	p.paramBuf = p.paramBuf[:0]
}

// commitHeader appends the accumulated header name/value onto
// req.Headers, or, for an LWS-folded continuation, replaces the value
// of the header at lastHeaderIdx in place. Options (if any) are
// appended afterward one at a time by the caller via
// HeaderStore.AddOption, which always targets the last header.
func (p *RequestParser) commitHeader(req *httpmsg.Request) {
	if p.foldingHeader {
		req.Headers.At(p.lastHeaderIdx).Value = strings.TrimSpace(string(p.headerValueBuf))
		p.foldingHeader = false
	} else {
		req.Headers.Add(string(p.headerNameBuf), strings.TrimSpace(string(p.headerValueBuf)))
		p.lastHeaderIdx = req.Headers.Count() - 1
	}
	p.headerNameBuf = p.headerNameBuf[:0]
	p.headerValueBuf = p.headerValueBuf[:0]
}

func (p *RequestParser) headersComplete(req *httpmsg.Request) Verdict {
	if cl := req.Headers.Get("Content-Length"); cl != "" {
		n, err := strconv.ParseUint(cl, 10, 63)
		if err != nil {
			return Error
		}
		p.contentLength = int64(n)
	}
	req.ContentLength = p.contentLength

	if p.MaxBodyBytes > 0 && p.contentLength > p.MaxBodyBytes {
		return Error
	}

	ct := req.Headers.Get("Content-Type")
	switch {
	case strings.EqualFold(ct, "application/x-www-form-urlencoded"):
		p.state = stFormDataStart
		if p.contentLength == 0 {
			p.state = stDone
			return Done
		}
		return NeedMore
	case p.contentLength > 0:
		p.state = stContent
		return NeedMore
	default:
		p.state = stDone
		return Done
	}
}

func (p *RequestParser) consumeFormByte(req *httpmsg.Request, b byte) Verdict {
	req.Content = append(req.Content, b)
	p.bodyRead++

	switch b {
	case '&':
		p.flushFormPair(req)
		p.state = stFormData
	case '+':
		p.formPairBuf = append(p.formPairBuf, ' ')
		p.state = stFormData
	case '%':
		p.percentIdx = 0
		p.state = stFormMime
	default:
		p.formPairBuf = append(p.formPairBuf, b)
		p.state = stFormData
	}

	if p.bodyRead >= p.contentLength {
		p.flushFormPair(req)
		p.state = stDone
		return Done
	}
	return NeedMore
}

// consumeFormPercentByte handles the two hex digits of a "%HH" escape
// within a form-urlencoded body: each digit is still a raw content
// byte (the body's raw bytes are preserved verbatim in req.Content)
// and, once both digits are in, the decoded byte is appended to the
// current form pair.
func (p *RequestParser) consumeFormPercentByte(req *httpmsg.Request, b byte) Verdict {
	req.Content = append(req.Content, b)
	p.bodyRead++

	if _, ok := hexVal(b); !ok {
		return Error
	}
	p.percentBuf[p.percentIdx] = b
	p.percentIdx++
	if p.percentIdx == 2 {
		p.formPairBuf = append(p.formPairBuf, p.decodedByte())
		p.percentIdx = 0
		p.state = stFormData
	}

	if p.bodyRead >= p.contentLength {
		if p.percentIdx != 0 {
			return Error
		}
		p.flushFormPair(req)
		p.state = stDone
		return Done
	}
	return NeedMore
}

func (p *RequestParser) flushFormPair(req *httpmsg.Request) {
	if len(p.formPairBuf) > 0 {
		req.FormData = append(req.FormData, string(p.formPairBuf))
		p.formPairBuf = p.formPairBuf[:0]
	}
}
