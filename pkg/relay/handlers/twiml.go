package handlers

import (
	"log/slog"
	"net/http"

	"github.com/mrbaboon/pipecat-conversation-relay-transport/pkg/relay/config"
	"github.com/mrbaboon/pipecat-conversation-relay-transport/pkg/relay/twiml"
)

// TwiMLHandler serves the TwiML document Twilio fetches when a call arrives.
// The document points the call at this server's WebSocket endpoint.
type TwiMLHandler struct {
	Config config.Config
	Logger *slog.Logger
}

func (h TwiMLHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	interruptible := h.Config.Interruptible
	doc, err := twiml.Generate(twiml.Options{
		WebSocketURL:          h.Config.PublicWSURL,
		TTSProvider:           h.Config.TTSProvider,
		Voice:                 h.Config.Voice,
		TTSLanguage:           h.Config.TTSLanguage,
		TranscriptionProvider: h.Config.TranscriptionProvider,
		TranscriptionLanguage: h.Config.TranscriptionLanguage,
		SpeechModel:           h.Config.SpeechModel,
		WelcomeGreeting:       h.Config.WelcomeGreeting,
		Interruptible:         &interruptible,
		DTMFDetection:         h.Config.DTMFDetection,
	})
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("twiml generation failed", "error", err)
		}
		http.Error(w, "server is not configured for inbound calls", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc))
}
