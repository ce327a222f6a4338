package mcpserver

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

const maxAudioSize = 25 << 20 // 25 MB

// Recording formats the transcription service accepts.
var audioTypes = map[string]bool{
	"audio/webm": true, "audio/ogg": true, "audio/wav": true, "audio/wave": true,
	"audio/x-wav": true, "audio/mpeg": true, "audio/mp4": true, "audio/aac": true,
}

// What http.DetectContentType reports for those containers.
var sniffedAudio = map[string]bool{
	"audio/wave": true, "audio/mpeg": true, "audio/aiff": true, "audio/basic": true,
	"application/ogg": true, "video/webm": true, "video/mp4": true, "audio/mp4": true,
}

func (s *Server) transcribeAudio(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	audio, mimeType, err := s.loadRecording(ctx, rawURL)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	text, err := s.transcriber.Transcribe(ctx, base64.StdEncoding.EncodeToString(audio), mimeType)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.append(text)
}

// loadRecording reads a recording from a data URL or an http(s) URL and
// checks that it is audio the transcriber can take.
func (s *Server) loadRecording(ctx context.Context, rawURL string) ([]byte, string, error) {
	var (
		audio     []byte
		mediaType string
		err       error
	)
	if strings.HasPrefix(rawURL, "data:") {
		audio, mediaType, err = parseDataURL(rawURL)
		if err != nil {
			return nil, "", err
		}
		if !audioTypes[mediaType] {
			return nil, "", fmt.Errorf("unsupported audio type %q", mediaType)
		}
	} else {
		audio, mediaType, err = download(ctx, s.fetcher, rawURL, maxAudioSize)
		if err != nil {
			return nil, "", err
		}
		// Servers often send a generic type; the content sniff below decides.
		if !audioTypes[mediaType] {
			mediaType = "audio/webm"
		}
	}

	if len(audio) > maxAudioSize {
		return nil, "", fmt.Errorf("recording too large: %d bytes (max %d)", len(audio), maxAudioSize)
	}
	if sniffed, _, _ := strings.Cut(http.DetectContentType(audio), ";"); !sniffedAudio[sniffed] {
		return nil, "", fmt.Errorf("content does not look like audio (detected %s)", sniffed)
	}
	return audio, mediaType, nil
}
