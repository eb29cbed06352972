// Package twiml builds the TwiML document that tells Twilio to open a
// ConversationRelay WebSocket to this server. It is a pure string builder;
// nothing here is part of the protocol bridge.
package twiml

import (
	"encoding/xml"
	"errors"
	"sort"
	"strconv"
	"strings"
)

// Options configure the generated <ConversationRelay> element. Only
// WebSocketURL is required; empty strings and nil pointers leave the
// corresponding attribute out so Twilio applies its own defaults.
type Options struct {
	WebSocketURL string

	// TTS
	TTSProvider string // default "google"
	Voice       string // default "Google.en-US-Neural2-A"
	TTSLanguage string

	// STT
	TranscriptionProvider string // default "deepgram"
	SpeechModel           string
	TranscriptionLanguage string // default "en-US"
	Hints                 string

	// Behavior
	WelcomeGreeting              string
	WelcomeGreetingInterruptible *bool
	Interruptible                *bool // default true
	InterruptSensitivity         string
	Preemptible                  *bool
	DTMFDetection                bool
	ReportInputDuringAgentSpeech *bool

	// ElevenLabs-specific
	ElevenLabsTextNormalization string

	// Forwarded to the setup message's customParameters map.
	CustomParameters map[string]string
}

type attr struct {
	name  string
	value string
}

// Generate renders the TwiML response document. Attribute order is
// deterministic and custom parameters are emitted in sorted name order.
func Generate(opts Options) (string, error) {
	if strings.TrimSpace(opts.WebSocketURL) == "" {
		return "", errors.New("twiml: websocket url is required")
	}

	ttsProvider := opts.TTSProvider
	if ttsProvider == "" {
		ttsProvider = "google"
	}
	voice := opts.Voice
	if voice == "" {
		voice = "Google.en-US-Neural2-A"
	}
	transcriptionProvider := opts.TranscriptionProvider
	if transcriptionProvider == "" {
		transcriptionProvider = "deepgram"
	}
	transcriptionLanguage := opts.TranscriptionLanguage
	if transcriptionLanguage == "" {
		transcriptionLanguage = "en-US"
	}
	interruptible := true
	if opts.Interruptible != nil {
		interruptible = *opts.Interruptible
	}

	attrs := []attr{
		{"url", opts.WebSocketURL},
		{"ttsProvider", ttsProvider},
		{"voice", voice},
	}
	if opts.TTSLanguage != "" {
		attrs = append(attrs, attr{"ttsLanguage", opts.TTSLanguage})
	}
	attrs = append(attrs, attr{"transcriptionProvider", transcriptionProvider})
	if opts.SpeechModel != "" {
		attrs = append(attrs, attr{"speechModel", opts.SpeechModel})
	}
	attrs = append(attrs, attr{"transcriptionLanguage", transcriptionLanguage})
	if opts.Hints != "" {
		attrs = append(attrs, attr{"hints", opts.Hints})
	}
	if opts.WelcomeGreeting != "" {
		attrs = append(attrs, attr{"welcomeGreeting", opts.WelcomeGreeting})
	}
	if opts.WelcomeGreetingInterruptible != nil {
		attrs = append(attrs, attr{"welcomeGreetingInterruptible", strconv.FormatBool(*opts.WelcomeGreetingInterruptible)})
	}
	attrs = append(attrs, attr{"interruptible", strconv.FormatBool(interruptible)})
	if opts.InterruptSensitivity != "" {
		attrs = append(attrs, attr{"interruptSensitivity", opts.InterruptSensitivity})
	}
	if opts.Preemptible != nil {
		attrs = append(attrs, attr{"preemptible", strconv.FormatBool(*opts.Preemptible)})
	}
	attrs = append(attrs, attr{"dtmfDetection", strconv.FormatBool(opts.DTMFDetection)})
	if opts.ReportInputDuringAgentSpeech != nil {
		attrs = append(attrs, attr{"reportInputDuringAgentSpeech", strconv.FormatBool(*opts.ReportInputDuringAgentSpeech)})
	}
	if opts.ElevenLabsTextNormalization != "" {
		attrs = append(attrs, attr{"elevenlabsTextNormalization", opts.ElevenLabsTextNormalization})
	}

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	b.WriteString("<Response><Connect><ConversationRelay")
	for _, a := range attrs {
		b.WriteString(" ")
		b.WriteString(a.name)
		b.WriteString(`="`)
		b.WriteString(escape(a.value))
		b.WriteString(`"`)
	}

	if len(opts.CustomParameters) == 0 {
		b.WriteString("/></Connect></Response>")
		return b.String(), nil
	}

	b.WriteString(">")
	names := make([]string, 0, len(opts.CustomParameters))
	for name := range opts.CustomParameters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		b.WriteString(`<Parameter name="`)
		b.WriteString(escape(name))
		b.WriteString(`" value="`)
		b.WriteString(escape(opts.CustomParameters[name]))
		b.WriteString(`"/>`)
	}
	b.WriteString("</ConversationRelay></Connect></Response>")
	return b.String(), nil
}

func escape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
