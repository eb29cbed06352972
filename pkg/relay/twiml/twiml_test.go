package twiml

import (
	"strings"
	"testing"
)

func TestGenerate_Defaults(t *testing.T) {
	doc, err := Generate(Options{WebSocketURL: "wss://relay.example.com/ws"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	want := `<?xml version="1.0" encoding="UTF-8"?>` +
		`<Response><Connect><ConversationRelay` +
		` url="wss://relay.example.com/ws"` +
		` ttsProvider="google"` +
		` voice="Google.en-US-Neural2-A"` +
		` transcriptionProvider="deepgram"` +
		` transcriptionLanguage="en-US"` +
		` interruptible="true"` +
		` dtmfDetection="false"` +
		`/></Connect></Response>`
	if doc != want {
		t.Fatalf("doc = %s\nwant %s", doc, want)
	}
}

func TestGenerate_RequiresURL(t *testing.T) {
	if _, err := Generate(Options{}); err == nil {
		t.Fatal("expected error without a websocket url")
	}
	if _, err := Generate(Options{WebSocketURL: "   "}); err == nil {
		t.Fatal("expected error for a blank websocket url")
	}
}

func TestGenerate_OptionalAttributes(t *testing.T) {
	no := false
	yes := true
	doc, err := Generate(Options{
		WebSocketURL:                 "wss://relay.example.com/ws",
		TTSProvider:                  "elevenlabs",
		Voice:                        "21m00Tcm4TlvDq8ikWAM",
		TTSLanguage:                  "en-GB",
		TranscriptionProvider:        "google",
		SpeechModel:                  "telephony",
		TranscriptionLanguage:        "en-GB",
		Hints:                        "account number, routing number",
		WelcomeGreeting:              "Hello! How can I help?",
		WelcomeGreetingInterruptible: &no,
		Interruptible:                &no,
		InterruptSensitivity:         "high",
		Preemptible:                  &yes,
		DTMFDetection:                true,
		ReportInputDuringAgentSpeech: &yes,
		ElevenLabsTextNormalization:  "on",
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	for _, attr := range []string{
		`url="wss://relay.example.com/ws"`,
		`ttsProvider="elevenlabs"`,
		`voice="21m00Tcm4TlvDq8ikWAM"`,
		`ttsLanguage="en-GB"`,
		`transcriptionProvider="google"`,
		`speechModel="telephony"`,
		`transcriptionLanguage="en-GB"`,
		`hints="account number, routing number"`,
		`welcomeGreeting="Hello! How can I help?"`,
		`welcomeGreetingInterruptible="false"`,
		`interruptible="false"`,
		`interruptSensitivity="high"`,
		`preemptible="true"`,
		`dtmfDetection="true"`,
		`reportInputDuringAgentSpeech="true"`,
		`elevenlabsTextNormalization="on"`,
	} {
		if !strings.Contains(doc, attr) {
			t.Fatalf("doc missing %s:\n%s", attr, doc)
		}
	}
}

func TestGenerate_CustomParametersSorted(t *testing.T) {
	doc, err := Generate(Options{
		WebSocketURL: "wss://relay.example.com/ws",
		CustomParameters: map[string]string{
			"tenant": "acme",
			"agent":  "support",
			"region": "us-east",
		},
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	want := `><Parameter name="agent" value="support"/>` +
		`<Parameter name="region" value="us-east"/>` +
		`<Parameter name="tenant" value="acme"/>` +
		`</ConversationRelay></Connect></Response>`
	if !strings.HasSuffix(doc, want) {
		t.Fatalf("doc = %s\nwant suffix %s", doc, want)
	}
	if strings.Contains(doc, "/><Parameter") {
		t.Fatalf("element must not self-close when parameters are present: %s", doc)
	}
}

func TestGenerate_EscapesXML(t *testing.T) {
	doc, err := Generate(Options{
		WebSocketURL:     `wss://relay.example.com/ws?a=1&b=2`,
		WelcomeGreeting:  `Say "hi" & <wave>`,
		CustomParameters: map[string]string{"note": `x<y & "z"`},
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if !strings.Contains(doc, `url="wss://relay.example.com/ws?a=1&amp;b=2"`) {
		t.Fatalf("url not escaped: %s", doc)
	}
	if !strings.Contains(doc, `welcomeGreeting="Say &#34;hi&#34; &amp; &lt;wave&gt;"`) {
		t.Fatalf("greeting not escaped: %s", doc)
	}
	if !strings.Contains(doc, `value="x&lt;y &amp; &#34;z&#34;"`) {
		t.Fatalf("parameter value not escaped: %s", doc)
	}
}
