package wsframe

import (
	"testing"

	"github.com/wharfhq/wharf/internal/httpparse"
)

func TestFrameParserDecodesMaskedHello(t *testing.T) {
	data := []byte{0x81, 0x85, 0x37, 0xfa, 0x21, 0x3d, 0x7f, 0x9f, 0x4d, 0x51, 0x58}

	p := NewFrameParser()
	var f Frame
	v, n := p.Parse(&f, data)

	if v != httpparse.Done {
		t.Fatalf("verdict = %v, want Done", v)
	}
	if n != len(data) {
		t.Fatalf("consumed %d bytes, want %d", n, len(data))
	}
	if !f.Fin || f.Opcode != OpText {
		t.Errorf("Fin/Opcode = %v/%v, want true/OpText", f.Fin, f.Opcode)
	}
	if !f.Masked {
		t.Errorf("Masked = false, want true")
	}
	if string(f.Payload) != "Hello" {
		t.Errorf("Payload = %q, want Hello", f.Payload)
	}
}

func TestFrameParserUnmaskedBinary(t *testing.T) {
	data := Encode(Binary([]byte{0x01, 0x02, 0x03}), [4]byte{})

	p := NewFrameParser()
	var f Frame
	v, _ := p.Parse(&f, data)

	if v != httpparse.Done {
		t.Fatalf("verdict = %v, want Done", v)
	}
	if f.Opcode != OpBinary || f.Masked {
		t.Errorf("Opcode/Masked = %v/%v, want OpBinary/false", f.Opcode, f.Masked)
	}
	if len(f.Payload) != 3 || f.Payload[2] != 0x03 {
		t.Errorf("Payload = % x", f.Payload)
	}
}

func TestFrameParserReservedBitsRejected(t *testing.T) {
	p := NewFrameParser()
	var f Frame
	v := p.Consume(&f, 0xB0) // fin=1, rsv1=1, opcode=0
	if v != httpparse.Error {
		t.Fatalf("verdict = %v, want Error", v)
	}
}

// TestFrameParserChunkInvariance feeds the masked "Hello" frame through
// the parser split at every possible byte boundary.
func TestFrameParserChunkInvariance(t *testing.T) {
	data := []byte{0x81, 0x85, 0x37, 0xfa, 0x21, 0x3d, 0x7f, 0x9f, 0x4d, 0x51, 0x58}

	for split := 0; split <= len(data); split++ {
		p := NewFrameParser()
		var f Frame

		v1, n1 := p.Parse(&f, data[:split])
		verdict := v1
		if v1 == httpparse.NeedMore {
			if n1 != split {
				t.Fatalf("split %d: NeedMore consumed %d bytes, want %d", split, n1, split)
			}
			verdict, _ = p.Parse(&f, data[split:])
		}

		if verdict != httpparse.Done {
			t.Fatalf("split %d: final verdict = %v, want Done", split, verdict)
		}
		if string(f.Payload) != "Hello" {
			t.Fatalf("split %d: Payload = %q, want Hello", split, f.Payload)
		}
		if f.Opcode != OpText || !f.Fin {
			t.Fatalf("split %d: Opcode/Fin = %v/%v", split, f.Opcode, f.Fin)
		}
	}
}

func TestFrameParserLongPayload16Bit(t *testing.T) {
	payload := make([]byte, 300)
	for i := range payload {
		payload[i] = byte(i)
	}
	data := Encode(Binary(payload), [4]byte{})

	p := NewFrameParser()
	var f Frame
	v, n := p.Parse(&f, data)

	if v != httpparse.Done {
		t.Fatalf("verdict = %v, want Done", v)
	}
	if n != len(data) {
		t.Fatalf("consumed %d, want %d", n, len(data))
	}
	if len(f.Payload) != 300 || f.Payload[299] != byte(299%256) {
		t.Fatalf("Payload length/tail = %d/%d", len(f.Payload), f.Payload[len(f.Payload)-1])
	}
}
