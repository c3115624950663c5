package voice

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const (
	// PlayAudioType is the outbound message type understood by the media server.
	PlayAudioType = "playAudio"

	DefaultContentType = "wav"
	DefaultSampleRate  = 8000

	MixMono   = "mono"
	MixStereo = "stereo"
)

// Frame is one websocket message as received: binary frames carry call audio,
// text frames carry JSON control messages.
type Frame struct {
	Binary bool
	Data   []byte
}

type MessageKind int

const (
	KindUnclassified MessageKind = iota
	KindAudio
	KindCallStart
	KindDTMF
)

func (k MessageKind) String() string {
	switch k {
	case KindAudio:
		return "audio"
	case KindCallStart:
		return "call_start"
	case KindDTMF:
		return "dtmf"
	default:
		return "unclassified"
	}
}

// CallMetadata is captured from the first control message of a call.
type CallMetadata struct {
	CallID     string
	MixType    string
	SampleRate int
	From       string
	To         string
	Direction  string
}

// Channels maps the mix type to a channel count. Anything other than mono is
// recorded as two channels.
func (m CallMetadata) Channels() int {
	if m.MixType == MixMono {
		return 1
	}
	return 2
}

type DTMFEvent struct {
	Event string
	Digit string
}

// Message is the classified form of a Frame.
type Message struct {
	Kind      MessageKind
	Audio     []byte
	CallStart CallMetadata
	DTMF      DTMFEvent
}

// PlaybackCommand is built fresh for every send.
type PlaybackCommand struct {
	AudioContent []byte
	ContentType  string
	SampleRate   int
}

type playAudioMessage struct {
	Type string        `json:"type"`
	Data playAudioData `json:"data"`
}

type playAudioData struct {
	AudioContent     string `json:"audioContent"`
	AudioContentType string `json:"audioContentType"`
	SampleRate       string `json:"sampleRate"`
}

// EncodePlayback renders a playAudio command:
//
//	{"type":"playAudio","data":{"audioContent":"<base64>","audioContentType":"wav","sampleRate":"8000"}}
func EncodePlayback(audio []byte, contentType string, sampleRate int) ([]byte, error) {
	if contentType == "" {
		contentType = DefaultContentType
	}
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}

	msg := playAudioMessage{
		Type: PlayAudioType,
		Data: playAudioData{
			AudioContent:     base64.StdEncoding.EncodeToString(audio),
			AudioContentType: contentType,
			SampleRate:       strconv.Itoa(sampleRate),
		},
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal playAudio: %w", err)
	}
	return data, nil
}

// Encode renders the command with EncodePlayback.
func (p PlaybackCommand) Encode() ([]byte, error) {
	return EncodePlayback(p.AudioContent, p.ContentType, p.SampleRate)
}

type callStartMessage struct {
	CallSid    string  `json:"callSid"`
	MixType    string  `json:"mixType"`
	SampleRate flexInt `json:"sampleRate"`
	From       string  `json:"from"`
	To         string  `json:"to"`
	Direction  string  `json:"direction"`
}

type dtmfMessage struct {
	Event string     `json:"event"`
	DTMF  flexString `json:"dtmf"`
}

// DecodeControl classifies a frame. Binary frames are audio. Text frames must
// be JSON objects: a callSid key marks the call start, an event key marks a
// DTMF event, anything else is informational.
func DecodeControl(f Frame) (Message, error) {
	if f.Binary {
		return Message{Kind: KindAudio, Audio: f.Data}, nil
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(f.Data, &keys); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if keys == nil {
		return Message{}, fmt.Errorf("%w: null message", ErrMalformedMessage)
	}

	if _, ok := keys["callSid"]; ok {
		var start callStartMessage
		if err := json.Unmarshal(f.Data, &start); err != nil {
			return Message{}, fmt.Errorf("%w: call start: %v", ErrMalformedMessage, err)
		}
		if start.CallSid == "" {
			return Message{}, fmt.Errorf("%w: empty callSid", ErrMalformedMessage)
		}
		sampleRate := int(start.SampleRate)
		if sampleRate <= 0 {
			sampleRate = DefaultSampleRate
		}
		return Message{
			Kind: KindCallStart,
			CallStart: CallMetadata{
				CallID:     start.CallSid,
				MixType:    start.MixType,
				SampleRate: sampleRate,
				From:       start.From,
				To:         start.To,
				Direction:  start.Direction,
			},
		}, nil
	}

	if _, ok := keys["event"]; ok {
		var ev dtmfMessage
		if err := json.Unmarshal(f.Data, &ev); err != nil {
			return Message{}, fmt.Errorf("%w: event: %v", ErrMalformedMessage, err)
		}
		return Message{
			Kind: KindDTMF,
			DTMF: DTMFEvent{Event: ev.Event, Digit: string(ev.DTMF)},
		}, nil
	}

	return Message{Kind: KindUnclassified}, nil
}

// flexInt accepts 8000 as well as "8000".
type flexInt int

func (n *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid integer %s", b)
	}
	*n = flexInt(v)
	return nil
}

// flexString accepts "5" as well as 5.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		return fmt.Errorf("invalid digit %s", b)
	}
	*s = flexString(num.String())
	return nil
}
