package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const elevenLabsDefaultWSBase = "wss://api.elevenlabs.io/v1/text-to-speech/{voice_id}/stream-input"

const elevenLabsWriteTimeout = 5 * time.Second

// ElevenLabsProvider synthesizes speech over the ElevenLabs stream-input
// websocket API. Each SynthesizeStream call opens one connection, sends the
// whole sentence group, and streams audio frames back until the service
// marks the utterance final.
type ElevenLabsProvider struct {
	apiKey    string
	wsBaseURL string
}

// NewElevenLabs creates an ElevenLabs provider.
func NewElevenLabs(apiKey string) *ElevenLabsProvider {
	return &ElevenLabsProvider{
		apiKey:    strings.TrimSpace(apiKey),
		wsBaseURL: elevenLabsDefaultWSBase,
	}
}

// WithWSBaseURL overrides the websocket endpoint, mainly for tests.
func (e *ElevenLabsProvider) WithWSBaseURL(base string) *ElevenLabsProvider {
	if base = strings.TrimSpace(base); base != "" {
		e.wsBaseURL = base
	}
	return e
}

func (e *ElevenLabsProvider) Name() string {
	return "elevenlabs"
}

func (e *ElevenLabsProvider) SynthesizeStream(ctx context.Context, text string, opts SynthesizeOptions) (*SynthesisStream, error) {
	if e.apiKey == "" {
		return nil, fmt.Errorf("elevenlabs api key is required")
	}
	voiceID := strings.TrimSpace(opts.Voice)
	if voiceID == "" {
		return nil, fmt.Errorf("voice id is required")
	}
	wsURL, err := elevenLabsWSURL(e.wsBaseURL, voiceID, opts)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("xi-api-key", e.apiKey)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs dial: %w", err)
	}

	// The first message opens the generation; a trailing space keeps the
	// service from waiting for more text before it starts.
	send := func(payload map[string]any) error {
		_ = conn.SetWriteDeadline(time.Now().Add(elevenLabsWriteTimeout))
		return conn.WriteJSON(payload)
	}
	if err := send(map[string]any{"text": " ", "voice_id": voiceID}); err != nil {
		_ = conn.Close()
		return nil, err
	}
	body := text
	if !strings.HasSuffix(body, " ") {
		body += " "
	}
	if err := send(map[string]any{"text": body}); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := send(map[string]any{"text": "", "flush": true}); err != nil {
		_ = conn.Close()
		return nil, err
	}

	stream := NewSynthesisStream()

	// Cancelling ctx or closing the stream unblocks the read loop by
	// tearing down the connection.
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-stream.done:
		case <-stop:
		}
		_ = conn.Close()
	}()

	go func() {
		defer close(stop)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() != nil {
					err = ctx.Err()
				}
				stream.Finish(err)
				return
			}
			var msg struct {
				Audio    string `json:"audio"`
				IsFinal  bool   `json:"isFinal"`
				IsFinal2 bool   `json:"is_final"`
			}
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			if msg.Audio != "" {
				audio, err := base64.StdEncoding.DecodeString(msg.Audio)
				if err == nil && len(audio) > 0 {
					if !stream.Send(audio) {
						stream.Finish(nil)
						return
					}
				}
			}
			if msg.IsFinal || msg.IsFinal2 {
				stream.Finish(nil)
				return
			}
		}
	}()

	return stream, nil
}

func elevenLabsWSURL(base, voiceID string, opts SynthesizeOptions) (string, error) {
	base = strings.ReplaceAll(base, "{voice_id}", url.PathEscape(voiceID))
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid elevenlabs ws url: %w", err)
	}
	if u.Scheme == "" {
		u.Scheme = "wss"
	}
	q := u.Query()
	if q.Get("model_id") == "" {
		model := opts.Model
		if model == "" {
			model = "eleven_flash_v2_5"
		}
		q.Set("model_id", model)
	}
	if q.Get("output_format") == "" {
		format := opts.Format
		if format == "" {
			format = "pcm_24000"
		}
		q.Set("output_format", format)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
