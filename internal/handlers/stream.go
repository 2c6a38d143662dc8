package handlers

import (
	"bytes"
	"context"
	"path/filepath"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/call-transcription/internal/pipeline"
	"github.com/codebuildervaibhav/call-transcription/internal/source"
	"github.com/codebuildervaibhav/call-transcription/internal/types"
)

const endOfStream = "END"

// StreamHandler handles WebSocket uploads: text frames name the recording,
// binary frames carry audio, and "END" runs the pipeline on what arrived.
type StreamHandler struct {
	runner   Runner
	maxBytes int
	log      zerolog.Logger
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(runner Runner, maxSizeMB int, log zerolog.Logger) *StreamHandler {
	return &StreamHandler{
		runner:   runner,
		maxBytes: maxSizeMB * 1024 * 1024,
		log:      log.With().Str("handler", "stream").Logger(),
	}
}

// Handle processes WebSocket connections
func (h *StreamHandler) Handle(c *websocket.Conn) {
	defer c.Close()

	var (
		buffer      bytes.Buffer
		requestName string
		streamID    = uuid.NewString()
		log         = h.log.With().Str("stream", streamID).Logger()
	)

	log.Debug().Msg("websocket connection established")

	for {
		messageType, message, err := c.ReadMessage()
		if err != nil {
			log.Warn().Err(err).Msg("websocket closed before END")
			return
		}

		// Handle text messages (control)
		if messageType == websocket.TextMessage {
			msgStr := string(message)
			if msgStr == endOfStream {
				break
			}
			if len(msgStr) > 0 && len(msgStr) < 200 {
				requestName = msgStr
				log.Debug().Str("name", requestName).Msg("stream name set")
			}
			continue
		}

		// Handle binary messages (audio data)
		if messageType == websocket.BinaryMessage {
			if h.maxBytes > 0 && buffer.Len()+len(message) > h.maxBytes {
				c.WriteJSON(errorBody{Error: string(pipeline.KindInvalidInput), Details: "stream too large"})
				return
			}
			buffer.Write(message)
		}
	}

	if buffer.Len() == 0 {
		c.WriteJSON(errorBody{Error: string(pipeline.KindInvalidInput), Details: "no audio data received"})
		return
	}

	if requestName == "" {
		requestName = "stream_" + streamID
	}
	if !source.ValidateAudioFormat(requestName) {
		requestName += ".webm"
	}
	if filepath.Ext(requestName) == requestName {
		requestName = "stream_" + streamID + requestName
	}

	log.Info().Str("name", requestName).Int("bytes", buffer.Len()).Msg("stream received, transcribing")

	out, err := h.runner.Run(context.Background(), source.Request{
		Filename:   requestName,
		Body:       &buffer,
		SourceType: types.SourceStream,
	})
	if err != nil {
		log.Warn().Err(err).Msg("stream transcription failed")
		c.WriteJSON(errorBody{Error: string(pipeline.KindOf(err)), Details: err.Error()})
		return
	}

	if err := c.WriteJSON(out.Result); err != nil {
		log.Warn().Err(err).Msg("failed to send result")
	}
}
