package wsframe

import "github.com/wharfhq/wharf/internal/httpparse"

type pState int

const (
	pstHead0 pState = iota
	pstHead1
	pstLen16
	pstLen64
	pstMaskKey
	pstPayload
	pstDone
)

// FrameParser decodes one WebSocket frame at a time from a byte
// stream, persisting its position across Consume calls the way
// httpparse.RequestParser does for HTTP messages: splitting the input
// at any byte boundary produces the same Frame.
type FrameParser struct {
	state pState

	lenBuf  [8]byte
	lenGot  int
	lenWant int

	maskGot int

	payloadLen uint64
	payloadGot uint64
}

// NewFrameParser returns a parser positioned at the start of a frame.
func NewFrameParser() *FrameParser {
	return &FrameParser{state: pstHead0}
}

// Reset returns the parser to its initial state for the next frame on
// the same connection.
func (p *FrameParser) Reset() {
	*p = FrameParser{state: pstHead0}
}

// Done reports whether the parser reached a terminal state.
func (p *FrameParser) Done() bool {
	return p.state == pstDone
}

// Parse feeds data to Consume byte by byte, stopping at the first
// terminal verdict or when data is exhausted.
func (p *FrameParser) Parse(f *Frame, data []byte) (httpparse.Verdict, int) {
	for i, b := range data {
		v := p.Consume(f, b)
		if v != httpparse.NeedMore {
			return v, i + 1
		}
	}
	return httpparse.NeedMore, len(data)
}

// Consume advances the decoder by exactly one byte.
func (p *FrameParser) Consume(f *Frame, b byte) httpparse.Verdict {
	switch p.state {
	case pstHead0:
		f.Fin = b&0x80 != 0
		if b&0x70 != 0 {
			return httpparse.Error // reserved bits must be zero
		}
		f.Opcode = Opcode(b & 0x0f)
		p.state = pstHead1
		return httpparse.NeedMore

	case pstHead1:
		f.Masked = b&0x80 != 0
		ln := b & 0x7f
		switch {
		case ln < 126:
			p.payloadLen = uint64(ln)
			return p.afterLength(f)
		case ln == 126:
			p.lenWant, p.lenGot = 2, 0
			p.state = pstLen16
			return httpparse.NeedMore
		default:
			p.lenWant, p.lenGot = 8, 0
			p.state = pstLen64
			return httpparse.NeedMore
		}

	case pstLen16, pstLen64:
		p.lenBuf[p.lenGot] = b
		p.lenGot++
		if p.lenGot < p.lenWant {
			return httpparse.NeedMore
		}
		p.payloadLen = 0
		for i := 0; i < p.lenWant; i++ {
			p.payloadLen = p.payloadLen<<8 | uint64(p.lenBuf[i])
		}
		return p.afterLength(f)

	case pstMaskKey:
		f.MaskKey[p.maskGot] = b
		p.maskGot++
		if p.maskGot < 4 {
			return httpparse.NeedMore
		}
		return p.afterMask(f)

	case pstPayload:
		if f.Masked {
			b ^= f.MaskKey[p.payloadGot%4]
		}
		f.Payload = append(f.Payload, b)
		p.payloadGot++
		if p.payloadGot >= p.payloadLen {
			p.state = pstDone
			return httpparse.Done
		}
		return httpparse.NeedMore

	default:
		return httpparse.Error
	}
}

func (p *FrameParser) afterLength(f *Frame) httpparse.Verdict {
	if f.Masked {
		p.maskGot = 0
		p.state = pstMaskKey
		return httpparse.NeedMore
	}
	return p.afterMask(f)
}

func (p *FrameParser) afterMask(f *Frame) httpparse.Verdict {
	f.Payload = f.Payload[:0]
	p.payloadGot = 0
	if p.payloadLen == 0 {
		p.state = pstDone
		return httpparse.Done
	}
	p.state = pstPayload
	return httpparse.NeedMore
}
