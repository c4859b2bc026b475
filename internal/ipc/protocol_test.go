package ipc

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kanaime/internal/ime"
)

func TestMessageRoundTrip(t *testing.T) {
	payload, err := Encode(&AppendTextRequest{Text: "ka"})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, NewMessage(MsgAppendText, 7, payload).Write(&buf))
	assert.Equal(t, HeaderSize+len(payload), buf.Len())
	assert.Equal(t, uint32(ProtocolMagic), binary.BigEndian.Uint32(buf.Bytes()[0:4]))

	msg, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, MsgAppendText, msg.Header.Type)
	assert.Equal(t, uint32(7), msg.Header.RequestID)
	assert.Equal(t, FlagJSON, msg.Header.Flags)

	var req AppendTextRequest
	require.NoError(t, Decode(msg.Payload, &req))
	assert.Equal(t, "ka", req.Text)
}

func TestEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewAck(3).Write(&buf))
	assert.Equal(t, HeaderSize, buf.Len())

	msg, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, MsgAck, msg.Header.Type)
	assert.Empty(t, msg.Payload)
}

func TestReadHeaderRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(h []byte)
		want   string
	}{
		{"bad magic", func(h []byte) { binary.BigEndian.PutUint32(h[0:4], 0x57495043) }, "invalid magic"},
		{"future version", func(h []byte) { h[4] = ProtocolVersion + 1 }, "unsupported protocol version"},
		{"oversized", func(h []byte) { binary.BigEndian.PutUint32(h[12:16], MaxPayloadSize+1) }, "payload too large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, NewMessage(MsgPing, 1, nil).Write(&buf))
			raw := buf.Bytes()
			tt.mutate(raw)

			_, err := ReadHeader(bytes.NewReader(raw))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestMessageTypeString(t *testing.T) {
	assert.Equal(t, "shrink_text", MsgShrinkText.String())
	assert.Equal(t, "set_window_position", MsgSetWindowPosition.String())
	assert.Equal(t, "0x0999", MessageType(0x0999).String())
}

func TestCandidatesResponse(t *testing.T) {
	c := ime.CandidatesOf(
		ime.Candidate{Text: "漢字", Hiragana: "かんじ", CorrespondingCount: 5},
		ime.Candidate{Text: "感じ", Hiragana: "かんじ", CorrespondingCount: 5},
	)
	got, err := FromCandidates(c).Candidates()
	require.NoError(t, err)
	assert.Equal(t, c, got)

	bad := &CandidatesResponse{Texts: []string{"a", "b"}, SubTexts: []string{""}}
	_, err = bad.Candidates()
	assert.Error(t, err)
}

func TestRemoteErrorMessage(t *testing.T) {
	err := &RemoteError{Method: "append_text", Code: CodeInternal, Message: "boom"}
	assert.Equal(t, "append_text: remote error 4: boom", err.Error())
}
