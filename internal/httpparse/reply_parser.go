package httpparse

import (
	"strconv"
	"strings"

	"github.com/wharfhq/wharf/internal/httpmsg"
)

type repState int

const (
	rstHTTPVersionH repState = iota
	rstHTTPVersionT1
	rstHTTPVersionT2
	rstHTTPVersionP
	rstHTTPVersionSlash
	rstHTTPVersionMajorStart
	rstHTTPVersionMajor
	rstHTTPVersionMinorStart
	rstHTTPVersionMinor
	rstHTTPStatusStart
	rstHTTPStatus
	rstHTTPStatusTextStart
	rstHTTPStatusText
	rstExpectingNewline1
	rstHeaderLineStart
	rstHeaderLWS
	rstHeaderName
	rstSpaceBeforeHeaderValue
	rstHeaderValue
	rstHeaderValueOptionsStart
	rstHeaderValueOptions
	rstExpectingNewline2
	rstExpectingNewline3
	rstContent
	rstDone
)

// ReplyParser is the status-line/header/body mirror of RequestParser.
// The numeric status is accumulated as text and normalized against
// the fixed status enumeration at the first SP following the digits;
// unrecognized codes fall back to StatusInternalServerError while the
// wire's status text is preserved verbatim. Status text is restricted
// to RFC 2616 IsChar bytes, so a server emitting UTF-8 reason phrases
// will be rejected here — this is deliberate, not widened.
type ReplyParser struct {
	state repState

	verMajor, verMinor int
	statusBuf          []byte
	statusTextBuf      []byte

	headerNameBuf  []byte
	headerValueBuf []byte
	headerOptBuf   []byte
	lastHeaderIdx  int
	foldingHeader  bool

	contentLength int64
	bodyRead      int64
}

// NewReplyParser returns a parser positioned at the start of a status
// line.
func NewReplyParser() *ReplyParser {
	return &ReplyParser{state: rstHTTPVersionH, lastHeaderIdx: -1}
}

// Reset returns the parser to its initial state for the next reply on
// the same connection.
func (p *ReplyParser) Reset() {
	*p = ReplyParser{state: rstHTTPVersionH, lastHeaderIdx: -1}
}

// Done reports whether the parser reached a terminal state.
func (p *ReplyParser) Done() bool {
	return p.state == rstDone
}

// Parse feeds data to Consume byte by byte, stopping at the first
// terminal verdict or when data is exhausted.
func (p *ReplyParser) Parse(rep *httpmsg.Reply, data []byte) (Verdict, int) {
	for i, b := range data {
		v := p.Consume(rep, b)
		if v != NeedMore {
			return v, i + 1
		}
	}
	return NeedMore, len(data)
}

// Consume advances the state machine by exactly one byte.
func (p *ReplyParser) Consume(rep *httpmsg.Reply, b byte) Verdict {
	switch p.state {
	case rstHTTPVersionH:
		return p.expectLiteral(b, 'H', rstHTTPVersionT1)
	case rstHTTPVersionT1:
		return p.expectLiteral(b, 'T', rstHTTPVersionT2)
	case rstHTTPVersionT2:
		return p.expectLiteral(b, 'T', rstHTTPVersionP)
	case rstHTTPVersionP:
		return p.expectLiteral(b, 'P', rstHTTPVersionSlash)
	case rstHTTPVersionSlash:
		return p.expectLiteral(b, '/', rstHTTPVersionMajorStart)

	case rstHTTPVersionMajorStart:
		if !IsDigit(b) {
			return Error
		}
		p.verMajor = int(b - '0')
		p.state = rstHTTPVersionMajor
		return NeedMore
	case rstHTTPVersionMajor:
		if b == '.' {
			p.state = rstHTTPVersionMinorStart
			return NeedMore
		}
		if !IsDigit(b) {
			return Error
		}
		p.verMajor = p.verMajor*10 + int(b-'0')
		return NeedMore
	case rstHTTPVersionMinorStart:
		if !IsDigit(b) {
			return Error
		}
		p.verMinor = int(b - '0')
		p.state = rstHTTPVersionMinor
		return NeedMore
	case rstHTTPVersionMinor:
		if b == ' ' {
			rep.VMajor, rep.VMinor = p.verMajor, p.verMinor
			p.state = rstHTTPStatusStart
			return NeedMore
		}
		if !IsDigit(b) {
			return Error
		}
		p.verMinor = p.verMinor*10 + int(b-'0')
		return NeedMore

	case rstHTTPStatusStart:
		if !IsDigit(b) {
			return Error
		}
		p.statusBuf = append(p.statusBuf[:0], b)
		p.state = rstHTTPStatus
		return NeedMore

	case rstHTTPStatus:
		if b == ' ' {
			p.commitStatus(rep)
			p.state = rstHTTPStatusTextStart
			return NeedMore
		}
		if !IsDigit(b) {
			return Error
		}
		p.statusBuf = append(p.statusBuf, b)
		return NeedMore

	case rstHTTPStatusTextStart:
		if b == '\r' {
			rep.StatusText = ""
			p.state = rstExpectingNewline1
			return NeedMore
		}
		if !IsChar(b) {
			return Error
		}
		p.statusTextBuf = append(p.statusTextBuf[:0], b)
		p.state = rstHTTPStatusText
		return NeedMore

	case rstHTTPStatusText:
		if b == '\r' {
			rep.StatusText = string(p.statusTextBuf)
			p.state = rstExpectingNewline1
			return NeedMore
		}
		if !IsChar(b) {
			return Error
		}
		p.statusTextBuf = append(p.statusTextBuf, b)
		return NeedMore

	case rstExpectingNewline1:
		if b != '\n' {
			return Error
		}
		p.state = rstHeaderLineStart
		return NeedMore

	case rstHeaderLineStart:
		switch {
		case b == '\r':
			p.state = rstExpectingNewline3
			return NeedMore
		case b == ' ' || b == '\t':
			if p.lastHeaderIdx < 0 {
				return Error
			}
			p.state = rstHeaderLWS
			return NeedMore
		case IsToken(b):
			p.headerNameBuf = append(p.headerNameBuf[:0], b)
			p.headerValueBuf = p.headerValueBuf[:0]
			p.state = rstHeaderName
			return NeedMore
		default:
			return Error
		}

	case rstHeaderLWS:
		if b == '\r' {
			p.state = rstExpectingNewline2
			return NeedMore
		}
		if b == ' ' || b == '\t' {
			return NeedMore
		}
		existing := rep.Headers.At(p.lastHeaderIdx)
		p.headerValueBuf = append(p.headerValueBuf[:0], existing.Value...)
		p.headerValueBuf = append(p.headerValueBuf, ' ', b)
		p.foldingHeader = true
		p.state = rstHeaderValue
		return NeedMore

	case rstHeaderName:
		if b == ':' {
			p.state = rstSpaceBeforeHeaderValue
			return NeedMore
		}
		if !IsToken(b) {
			return Error
		}
		p.headerNameBuf = append(p.headerNameBuf, b)
		return NeedMore

	case rstSpaceBeforeHeaderValue:
		if b == ' ' || b == '\t' {
			return NeedMore
		}
		if b == '\r' {
			p.commitHeader(rep)
			p.state = rstExpectingNewline2
			return NeedMore
		}
		p.headerValueBuf = append(p.headerValueBuf, b)
		p.state = rstHeaderValue
		return NeedMore

	case rstHeaderValue:
		switch b {
		case ';':
			p.commitHeader(rep)
			p.state = rstHeaderValueOptionsStart
			return NeedMore
		case '\r':
			p.commitHeader(rep)
			p.state = rstExpectingNewline2
			return NeedMore
		default:
			p.headerValueBuf = append(p.headerValueBuf, b)
			return NeedMore
		}

	case rstHeaderValueOptionsStart:
		if b == ' ' || b == '\t' {
			return NeedMore
		}
		if b == '\r' {
			rep.Headers.AddOption("")
			p.state = rstExpectingNewline2
			return NeedMore
		}
		p.headerOptBuf = append(p.headerOptBuf[:0], b)
		p.state = rstHeaderValueOptions
		return NeedMore

	case rstHeaderValueOptions:
		switch b {
		case ';':
			rep.Headers.AddOption(strings.TrimSpace(string(p.headerOptBuf)))
			p.state = rstHeaderValueOptionsStart
			return NeedMore
		case '\r':
			rep.Headers.AddOption(strings.TrimSpace(string(p.headerOptBuf)))
			p.state = rstExpectingNewline2
			return NeedMore
		default:
			p.headerOptBuf = append(p.headerOptBuf, b)
			return NeedMore
		}

	case rstExpectingNewline2:
		if b != '\n' {
			return Error
		}
		p.state = rstHeaderLineStart
		return NeedMore

	case rstExpectingNewline3:
		if b != '\n' {
			return Error
		}
		return p.headersComplete(rep)

	case rstContent:
		rep.Content = append(rep.Content, b)
		p.bodyRead++
		if p.bodyRead >= p.contentLength {
			p.state = rstDone
			return Done
		}
		return NeedMore

	default:
		return Error
	}
}

func (p *ReplyParser) expectLiteral(b, want byte, next repState) Verdict {
	if b != want {
		return Error
	}
	p.state = next
	return NeedMore
}

// commitStatus normalizes the accumulated digits against the fixed
// status enumeration; unknown codes fall back to
// StatusInternalServerError. The verbatim status text is captured
// separately into rep.StatusText in rstHTTPStatusText.
func (p *ReplyParser) commitStatus(rep *httpmsg.Reply) {
	code, _ := strconv.Atoi(string(p.statusBuf))
	if s, ok := httpmsg.KnownStatus(code); ok {
		rep.Status = s
	} else {
		rep.Status = httpmsg.StatusInternalServerError
	}
}

func (p *ReplyParser) commitHeader(rep *httpmsg.Reply) {
	if p.foldingHeader {
		rep.Headers.At(p.lastHeaderIdx).Value = strings.TrimSpace(string(p.headerValueBuf))
		p.foldingHeader = false
	} else {
		rep.Headers.Add(string(p.headerNameBuf), strings.TrimSpace(string(p.headerValueBuf)))
		p.lastHeaderIdx = rep.Headers.Count() - 1
	}
	p.headerNameBuf = p.headerNameBuf[:0]
	p.headerValueBuf = p.headerValueBuf[:0]
}

func (p *ReplyParser) headersComplete(rep *httpmsg.Reply) Verdict {
	if cl := rep.Headers.Get("Content-Length"); cl != "" {
		n, err := strconv.ParseUint(cl, 10, 63)
		if err != nil {
			return Error
		}
		p.contentLength = int64(n)
	}
	rep.ContentLength = p.contentLength

	if p.contentLength > 0 {
		p.state = rstContent
		return NeedMore
	}
	p.state = rstDone
	return Done
}
