// Package protocol implements the ConversationRelay JSON wire protocol: the
// messages Twilio sends over the session WebSocket and the messages the
// transport sends back. All functions are pure; nothing here touches a socket.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Inbound message types.
const (
	TypeSetup     = "setup"
	TypePrompt    = "prompt"
	TypeInterrupt = "interrupt"
	TypeDTMF      = "dtmf"
	TypeError     = "error"
)

// Outbound message types.
const (
	TypeText       = "text"
	TypePlay       = "play"
	TypeSendDigits = "sendDigits"
	TypeLanguage   = "language"
	TypeEnd        = "end"
)

// DecodeError reports an inbound frame the codec could not map to a known
// message. Decode never panics past this boundary.
type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badFrame(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_frame", Message: message, Param: param}
}

func unknownType(typ string) *DecodeError {
	return &DecodeError{Code: "unknown_type", Message: "unknown message type", Param: typ}
}

// EncodeError reports an outbound directive that fails validation. It is
// returned before any bytes are produced.
type EncodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *EncodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func invalidArgument(message, param string) *EncodeError {
	return &EncodeError{Code: "invalid_argument", Message: message, Param: param}
}

// Setup is the call-setup handshake, the first message of every session.
type Setup struct {
	SessionID        string            `json:"sessionId"`
	CallSID          string            `json:"callSid"`
	AccountSID       string            `json:"accountSid,omitempty"`
	From             string            `json:"from,omitempty"`
	To               string            `json:"to,omitempty"`
	Direction        string            `json:"direction,omitempty"`
	CallStatus       string            `json:"callStatus,omitempty"`
	CallType         string            `json:"callType,omitempty"`
	CallerName       string            `json:"callerName,omitempty"`
	ForwardedFrom    string            `json:"forwardedFrom,omitempty"`
	ParentCallSID    string            `json:"parentCallSid,omitempty"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
}

// Prompt carries transcribed caller speech. Last=false frames are interim
// transcripts; only the final frame is meant for the pipeline.
type Prompt struct {
	VoicePrompt string `json:"voicePrompt"`
	Lang        string `json:"lang,omitempty"`
	Last        bool   `json:"last"`
}

// Interrupt reports the caller speaking over active TTS playback.
type Interrupt struct {
	UtteranceUntilInterrupt  string `json:"utteranceUntilInterrupt,omitempty"`
	DurationUntilInterruptMS int64  `json:"durationUntilInterruptMs,omitempty"`
}

// DTMF reports a single keypad digit pressed by the caller.
type DTMF struct {
	Digit string `json:"digit"`
}

// ErrorMessage reports a provider-side error for the session.
type ErrorMessage struct {
	Description string `json:"description"`
}

// DecodeInbound parses one inbound text frame into a typed message. The
// returned value is one of Setup, Prompt, Interrupt, DTMF, or ErrorMessage.
// Anything unparseable comes back as a *DecodeError; callers are expected to
// log and drop, never to tear down the session over it.
func DecodeInbound(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badFrame("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badFrame("missing type", "type")
	}

	switch typ {
	case TypeSetup:
		var msg Setup
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid setup frame", "")
		}
		if strings.TrimSpace(msg.SessionID) == "" {
			return nil, badFrame("setup.sessionId is required", "sessionId")
		}
		if strings.TrimSpace(msg.CallSID) == "" {
			return nil, badFrame("setup.callSid is required", "callSid")
		}
		return msg, nil
	case TypePrompt:
		var msg Prompt
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid prompt frame", "")
		}
		return msg, nil
	case TypeInterrupt:
		var msg Interrupt
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid interrupt frame", "")
		}
		return msg, nil
	case TypeDTMF:
		var msg DTMF
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid dtmf frame", "")
		}
		if msg.Digit == "" {
			return nil, badFrame("dtmf.digit is required", "digit")
		}
		return msg, nil
	case TypeError:
		var msg ErrorMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid error frame", "")
		}
		if strings.TrimSpace(msg.Description) == "" {
			msg.Description = "Unknown error"
		}
		return msg, nil
	default:
		return nil, unknownType(typ)
	}
}

// Directive is an outbound intent prior to wire serialization.
type Directive interface {
	directive()
}

// TextToken streams one token of assistant text to the provider's TTS.
type TextToken struct {
	Token         string
	Last          bool
	Interruptible bool
	Preemptible   *bool
	Lang          string
}

func (TextToken) directive() {}

// Play asks the provider to play a media URL to the caller.
type Play struct {
	Source        string
	Loop          int
	Interruptible *bool
	Preemptible   bool
}

func (Play) directive() {}

// SendDigits sends DTMF tones on the call. The digit alphabet is 0-9, #, *,
// and w (a 500 ms pause).
type SendDigits struct {
	Digits string
}

func (SendDigits) directive() {}

// Language switches the TTS and/or transcription language mid-call. At least
// one field must be set.
type Language struct {
	TTSLanguage           string
	TranscriptionLanguage string
}

func (Language) directive() {}

// End asks the provider to end the session and hang up, optionally handing
// off data to a downstream TwiML handler.
type End struct {
	HandoffData string
}

func (End) directive() {}

type textMessage struct {
	Type          string `json:"type"`
	Token         string `json:"token"`
	Last          bool   `json:"last,omitempty"`
	Interruptible bool   `json:"interruptible"`
	Preemptible   *bool  `json:"preemptible,omitempty"`
	Lang          string `json:"lang,omitempty"`
}

type playMessage struct {
	Type          string `json:"type"`
	Source        string `json:"source"`
	Loop          int    `json:"loop"`
	Preemptible   bool   `json:"preemptible"`
	Interruptible *bool  `json:"interruptible,omitempty"`
}

type sendDigitsMessage struct {
	Type   string `json:"type"`
	Digits string `json:"digits"`
}

type languageMessage struct {
	Type                  string `json:"type"`
	TTSLanguage           string `json:"ttsLanguage,omitempty"`
	TranscriptionLanguage string `json:"transcriptionLanguage,omitempty"`
}

type endMessage struct {
	Type        string `json:"type"`
	HandoffData string `json:"handoffData,omitempty"`
}

// EncodeOutbound serializes a directive to one wire frame. Validation happens
// here, before any I/O: an invalid directive yields an *EncodeError and no
// bytes. Fields at their protocol default are omitted ("last": false,
// absent "handoffData", absent "preemptible" on text).
func EncodeOutbound(d Directive) ([]byte, error) {
	switch d := d.(type) {
	case TextToken:
		return json.Marshal(textMessage{
			Type:          TypeText,
			Token:         d.Token,
			Last:          d.Last,
			Interruptible: d.Interruptible,
			Preemptible:   d.Preemptible,
			Lang:          d.Lang,
		})
	case Play:
		if strings.TrimSpace(d.Source) == "" {
			return nil, invalidArgument("play.source is required", "source")
		}
		loop := d.Loop
		if loop == 0 {
			loop = 1
		}
		if loop < 0 {
			return nil, invalidArgument("play.loop must be >= 0", "loop")
		}
		return json.Marshal(playMessage{
			Type:          TypePlay,
			Source:        d.Source,
			Loop:          loop,
			Preemptible:   d.Preemptible,
			Interruptible: d.Interruptible,
		})
	case SendDigits:
		if d.Digits == "" {
			return nil, invalidArgument("sendDigits.digits is required", "digits")
		}
		if !ValidDigits(d.Digits) {
			return nil, invalidArgument("sendDigits.digits may only contain 0-9, #, *, and w", "digits")
		}
		return json.Marshal(sendDigitsMessage{Type: TypeSendDigits, Digits: d.Digits})
	case Language:
		if strings.TrimSpace(d.TTSLanguage) == "" && strings.TrimSpace(d.TranscriptionLanguage) == "" {
			return nil, invalidArgument("language requires ttsLanguage or transcriptionLanguage", "")
		}
		return json.Marshal(languageMessage{
			Type:                  TypeLanguage,
			TTSLanguage:           d.TTSLanguage,
			TranscriptionLanguage: d.TranscriptionLanguage,
		})
	case End:
		return json.Marshal(endMessage{Type: TypeEnd, HandoffData: d.HandoffData})
	default:
		return nil, invalidArgument(fmt.Sprintf("unsupported directive %T", d), "")
	}
}

// ValidDigits reports whether s contains only the sendDigits alphabet.
func ValidDigits(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r == '#' || r == '*' || r == 'w':
		default:
			return false
		}
	}
	return true
}
