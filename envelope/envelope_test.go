package envelope

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestEncode_HeaderLayout(t *testing.T) {
	payload := []byte(`{"n":1000}`)
	data := Encode(payload)

	wantPrefix := []byte{0x5A, 0x49, 0x53, 0x4B, 0x01, 0x00, 0x00, 0x00}
	if !bytes.Equal(data[:8], wantPrefix) {
		t.Errorf("prefix = % X, want % X", data[:8], wantPrefix)
	}
	if got := binary.LittleEndian.Uint64(data[8:16]); got != uint64(len(payload)) {
		t.Errorf("length field = %d, want %d", got, len(payload))
	}
	if !bytes.Equal(data[HeaderSize:], payload) {
		t.Errorf("payload = %q, want %q", data[HeaderSize:], payload)
	}
	if len(data) != HeaderSize+len(payload) {
		t.Errorf("total size = %d, want %d", len(data), HeaderSize+len(payload))
	}
}

func TestWrite_MatchesEncode(t *testing.T) {
	payload := []byte("hello")
	var buf bytes.Buffer
	n, err := Write(&buf, payload)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != int64(HeaderSize+len(payload)) {
		t.Errorf("n = %d", n)
	}
	if !bytes.Equal(buf.Bytes(), Encode(payload)) {
		t.Error("Write output differs from Encode")
	}
}

func TestDecode_RoundTrip(t *testing.T) {
	payload := []byte{0x00, 0x01, 0xff}
	env, err := Decode(Encode(payload))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if env.Header.Major != VersionMajor || env.Header.Minor != VersionMinor {
		t.Errorf("version = %d.%d", env.Header.Major, env.Header.Minor)
	}
	if !bytes.Equal(env.Payload, payload) {
		t.Errorf("payload = % X", env.Payload)
	}
}

func TestDecode_EmptyPayload(t *testing.T) {
	env, err := Decode(Encode(nil))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if env.Header.Length != 0 || len(env.Payload) != 0 {
		t.Errorf("expected empty payload, got %d bytes", len(env.Payload))
	}
}

func TestDecode_Rejects(t *testing.T) {
	valid := Encode([]byte("abcdef"))

	badMagic := append([]byte(nil), valid...)
	copy(badMagic, "ZISX")

	badVersion := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint16(badVersion[4:6], 2)

	tooShortPayload := valid[:len(valid)-1]
	tooLongPayload := append(append([]byte(nil), valid...), 'x')

	huge := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint64(huge[8:16], MaxPayloadSize+1)

	tests := []struct {
		name string
		data []byte
		kind ErrorKind
	}{
		{"short header", valid[:10], ErrorPartial},
		{"bad magic", badMagic, ErrorMagic},
		{"bad major version", badVersion, ErrorVersion},
		{"payload shorter than length", tooShortPayload, ErrorLength},
		{"payload longer than length", tooLongPayload, ErrorLength},
		{"length above max", huge, ErrorTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			if err == nil {
				t.Fatal("expected error")
			}
			if !IsKind(err, tt.kind) {
				t.Errorf("err = %v, want kind %v", err, tt.kind)
			}
		})
	}
}

func TestDecode_AcceptsNewerMinor(t *testing.T) {
	data := Encode([]byte("x"))
	binary.LittleEndian.PutUint16(data[6:8], 7)
	env, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if env.Header.Minor != 7 {
		t.Errorf("minor = %d, want 7", env.Header.Minor)
	}
}

func TestRead_Stream(t *testing.T) {
	payload := []byte("stream payload")
	env, err := Read(bytes.NewReader(Encode(payload)))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(env.Payload, payload) {
		t.Errorf("payload = %q", env.Payload)
	}
}

func TestRead_RejectsTruncatedAndTrailing(t *testing.T) {
	data := Encode([]byte("abc"))

	if _, err := Read(bytes.NewReader(data[:HeaderSize+1])); !IsKind(err, ErrorLength) {
		t.Errorf("truncated payload: err = %v, want length mismatch", err)
	}
	if _, err := Read(bytes.NewReader(append(data, 'z'))); !IsKind(err, ErrorLength) {
		t.Errorf("trailing bytes: err = %v, want length mismatch", err)
	}
	if _, err := Read(bytes.NewReader(data[:4])); !IsKind(err, ErrorPartial) {
		t.Errorf("short header: err = %v, want partial", err)
	}
}
