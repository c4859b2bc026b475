// Package ipc carries the conversion engine and candidate window calls
// between the input method and its helper processes.
//
// Every frame is a fixed 16-byte header followed by a JSON payload. Calls
// are strictly request/response: the client writes one frame and blocks
// until the matching reply arrives.
package ipc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"kanaime/internal/ime"
)

// Protocol version for compatibility checking
const (
	ProtocolVersion = 1
	ProtocolMagic   = 0x4B495043 // "KIPC"
)

// MaxPayloadSize bounds a single frame's payload.
const MaxPayloadSize = 16 << 20

// MessageType identifies the type of IPC message
type MessageType uint16

const (
	// Control messages (0x00xx)
	MsgPing       MessageType = 0x0001
	MsgPong       MessageType = 0x0002
	MsgAck        MessageType = 0x0003
	MsgError      MessageType = 0x0004
	MsgCandidates MessageType = 0x0005

	// Conversion engine (0x01xx)
	MsgAppendText   MessageType = 0x0100
	MsgRemoveText   MessageType = 0x0101
	MsgShrinkText   MessageType = 0x0102
	MsgClearText    MessageType = 0x0103
	MsgSetContext   MessageType = 0x0104
	MsgUpdateConfig MessageType = 0x0105

	// Candidate window (0x02xx)
	MsgShow              MessageType = 0x0200
	MsgHide              MessageType = 0x0201
	MsgSetWindowPosition MessageType = 0x0202
	MsgSetCandidates     MessageType = 0x0203
	MsgSetSelection      MessageType = 0x0204
	MsgSetInputMode      MessageType = 0x0205
)

var messageNames = map[MessageType]string{
	MsgPing:              "ping",
	MsgPong:              "pong",
	MsgAck:               "ack",
	MsgError:             "error",
	MsgCandidates:        "candidates",
	MsgAppendText:        "append_text",
	MsgRemoveText:        "remove_text",
	MsgShrinkText:        "shrink_text",
	MsgClearText:         "clear_text",
	MsgSetContext:        "set_context",
	MsgUpdateConfig:      "update_config",
	MsgShow:              "show",
	MsgHide:              "hide",
	MsgSetWindowPosition: "set_window_position",
	MsgSetCandidates:     "set_candidates",
	MsgSetSelection:      "set_selection",
	MsgSetInputMode:      "set_input_mode",
}

func (t MessageType) String() string {
	if name, ok := messageNames[t]; ok {
		return name
	}
	return fmt.Sprintf("0x%04x", uint16(t))
}

// Header is the fixed-size message header (16 bytes)
type Header struct {
	Magic     uint32      // Protocol magic number
	Version   uint8       // Protocol version
	Flags     uint8       // Message flags
	Type      MessageType // Message type
	RequestID uint32      // Request ID for correlation
	Length    uint32      // Payload length (not including header)
}

// HeaderSize is the size of the header in bytes
const HeaderSize = 16

// FlagJSON marks a JSON payload. It is the only encoding in use.
const FlagJSON uint8 = 0x04

// Message wraps a header and payload
type Message struct {
	Header  Header
	Payload []byte
}

// NewMessage creates a new message with the given type and payload
func NewMessage(msgType MessageType, requestID uint32, payload []byte) *Message {
	return &Message{
		Header: Header{
			Magic:     ProtocolMagic,
			Version:   ProtocolVersion,
			Flags:     FlagJSON,
			Type:      msgType,
			RequestID: requestID,
			Length:    uint32(len(payload)),
		},
		Payload: payload,
	}
}

func (h *Header) encode(buf []byte) {
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = h.Version
	buf[5] = h.Flags
	binary.BigEndian.PutUint16(buf[6:8], uint16(h.Type))
	binary.BigEndian.PutUint32(buf[8:12], h.RequestID)
	binary.BigEndian.PutUint32(buf[12:16], h.Length)
}

// ReadHeader reads and checks a header.
func ReadHeader(r io.Reader) (*Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	h := &Header{
		Magic:     binary.BigEndian.Uint32(buf[0:4]),
		Version:   buf[4],
		Flags:     buf[5],
		Type:      MessageType(binary.BigEndian.Uint16(buf[6:8])),
		RequestID: binary.BigEndian.Uint32(buf[8:12]),
		Length:    binary.BigEndian.Uint32(buf[12:16]),
	}
	if h.Magic != ProtocolMagic {
		return nil, fmt.Errorf("invalid magic number: %x", h.Magic)
	}
	if h.Version > ProtocolVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", h.Version)
	}
	if h.Length > MaxPayloadSize {
		return nil, fmt.Errorf("payload too large: %d bytes", h.Length)
	}
	return h, nil
}

// Write writes the message as a single buffer so a frame is never
// interleaved with another writer's.
func (m *Message) Write(w io.Writer) error {
	if len(m.Payload) > MaxPayloadSize {
		return fmt.Errorf("payload too large: %d bytes", len(m.Payload))
	}
	buf := make([]byte, HeaderSize+len(m.Payload))
	m.Header.Length = uint32(len(m.Payload))
	m.Header.encode(buf)
	copy(buf[HeaderSize:], m.Payload)
	_, err := w.Write(buf)
	return err
}

// ReadMessage reads a complete message from a reader
func ReadMessage(r io.Reader) (*Message, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}

	m := &Message{Header: *h}
	if h.Length > 0 {
		m.Payload = make([]byte, h.Length)
		if _, err := io.ReadFull(r, m.Payload); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Request/Response payloads

// AppendTextRequest adds typed text to the engine's composing buffer.
type AppendTextRequest struct {
	Text string `json:"text"`
}

// ShrinkTextRequest drops the first Offset input characters.
type ShrinkTextRequest struct {
	Offset int32 `json:"offset"`
}

// SetContextRequest carries the document text before the caret.
type SetContextRequest struct {
	Context string `json:"context"`
}

// ZenzaiSettings are passed through to the engine unchanged.
type ZenzaiSettings struct {
	Enable  bool   `json:"enable"`
	Profile string `json:"profile,omitempty"`
	Backend string `json:"backend,omitempty"`
}

// UpdateConfigRequest changes engine settings. An empty request asks the
// engine to reload its configuration file.
type UpdateConfigRequest struct {
	MaxCandidates int             `json:"max_candidates,omitempty"`
	Zenzai        *ZenzaiSettings `json:"zenzai,omitempty"`
}

// Empty reports whether the request carries no settings.
func (r UpdateConfigRequest) Empty() bool {
	return r.MaxCandidates == 0 && r.Zenzai == nil
}

// CandidatesResponse is the wire form of ime.Candidates.
type CandidatesResponse struct {
	Texts              []string `json:"texts"`
	SubTexts           []string `json:"sub_texts"`
	Hiraganas          []string `json:"hiraganas"`
	CorrespondingCount []int32  `json:"corresponding_count"`
}

// FromCandidates converts a candidate set for the wire.
func FromCandidates(c ime.Candidates) *CandidatesResponse {
	return &CandidatesResponse{
		Texts:              c.Texts,
		SubTexts:           c.SubTexts,
		Hiraganas:          c.Hiraganas,
		CorrespondingCount: c.CorrespondingCount,
	}
}

// Candidates converts back, checking that the slices line up.
func (r *CandidatesResponse) Candidates() (ime.Candidates, error) {
	c := ime.Candidates{
		Texts:              r.Texts,
		SubTexts:           r.SubTexts,
		Hiraganas:          r.Hiraganas,
		CorrespondingCount: r.CorrespondingCount,
	}
	if err := c.Validate(); err != nil {
		return ime.Candidates{}, err
	}
	return c, nil
}

// SetWindowPositionRequest places the window next to the caret rectangle.
type SetWindowPositionRequest struct {
	Top    int32 `json:"top"`
	Left   int32 `json:"left"`
	Bottom int32 `json:"bottom"`
	Right  int32 `json:"right"`
}

// SetCandidatesRequest replaces the displayed list.
type SetCandidatesRequest struct {
	Candidates []string `json:"candidates"`
}

// SetSelectionRequest moves the highlight.
type SetSelectionRequest struct {
	Index int32 `json:"index"`
}

// SetInputModeRequest changes the mode label.
type SetInputModeRequest struct {
	Label string `json:"label"`
}

// ErrorResponse is sent when an operation fails
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error codes
const (
	CodeUnknown        = 1
	CodeInvalidRequest = 2
	CodeUnsupported    = 3
	CodeInternal       = 4
	CodePanic          = 5
)

// RemoteError is an ErrorResponse received from the other side.
type RemoteError struct {
	Method  string
	Code    int
	Message string
	Details string
}

func (e *RemoteError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: remote error %d: %s (%s)", e.Method, e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: remote error %d: %s", e.Method, e.Code, e.Message)
}

// Encode encodes a payload to JSON bytes. A nil payload encodes to nothing.
func Encode(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// Decode decodes JSON bytes to a payload
func Decode(data []byte, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("empty payload")
	}
	return json.Unmarshal(data, v)
}

// NewErrorMessage creates an error message
func NewErrorMessage(requestID uint32, code int, message string) *Message {
	payload, _ := Encode(&ErrorResponse{
		Code:    code,
		Message: message,
	})
	return NewMessage(MsgError, requestID, payload)
}

// NewResponse creates a response message
func NewResponse(msgType MessageType, requestID uint32, v any) (*Message, error) {
	payload, err := Encode(v)
	if err != nil {
		return nil, err
	}
	return NewMessage(msgType, requestID, payload), nil
}

// NewAck acknowledges a request that has no result.
func NewAck(requestID uint32) *Message {
	return NewMessage(MsgAck, requestID, nil)
}
