// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the loaded notes as tools for LLM integration via stdio transport.
package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/vocanote/internal/models"
	"github.com/starford/vocanote/internal/notestore"
	"github.com/starford/vocanote/internal/parser"
	"github.com/starford/vocanote/internal/transcribe"
)

const contractURI = "vocanote://note-format"

// Server wraps the MCP server with note tools.
type Server struct {
	mcp         *server.MCPServer
	notes       *notestore.Store
	transcriber transcribe.Transcriber
	fetcher     *http.Client
}

// New creates a new MCP server with all tools registered. notes must already
// be loaded for a user. transcriber may be nil, which leaves out the
// transcribe_audio tool.
func New(notes *notestore.Store, transcriber transcribe.Transcriber, version string) *Server {
	s := &Server{notes: notes, transcriber: transcriber, fetcher: guardedClient(30 * time.Second)}

	s.mcp = server.NewMCPServer(
		"vocanote",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List notes newest first, optionally only those in one folder."),
		mcp.WithString("folder", mcp.Description("Optional folder id")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("list_folders",
		mcp.WithDescription("List folders with their ids."),
	), s.listFolders)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Case-insensitive search through note titles and bodies."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read a note rendered as Markdown with YAML frontmatter."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a note. The body is split into paragraphs on blank lines. "+
			"Read the contract first via the get_note_contract tool or the "+contractURI+" resource."),
		mcp.WithString("title", mcp.Description("Note title")),
		mcp.WithString("body", mcp.Required(), mcp.Description("Plain text body, paragraphs separated by blank lines")),
		mcp.WithString("folder", mcp.Description("Optional folder id")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("append_transcript",
		mcp.WithDescription("Append text as a new paragraph of the current note, creating a note when none is open."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Text to append")),
	), s.appendTranscript)

	s.mcp.AddTool(mcp.NewTool("delete_note",
		mcp.WithDescription("Delete a note. Nothing happens unless confirm is true."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
		mcp.WithBoolean("confirm", mcp.Description("Must be true to delete")),
	), s.deleteNote)

	s.mcp.AddTool(mcp.NewTool("export_notes",
		mcp.WithDescription("Export every note as the JSON array used by import."),
	), s.exportNotes)

	s.mcp.AddTool(mcp.NewTool("get_note_contract",
		mcp.WithDescription("Returns the note format contract. "+
			"Call this before creating notes to ensure correct structure."),
	), s.getNoteContract)

	if transcriber != nil {
		s.mcp.AddTool(mcp.NewTool("transcribe_audio",
			mcp.WithDescription("Transcribe an audio recording and append the text to the current note."),
			mcp.WithString("url", mcp.Required(), mcp.Description("data: URI (base64) or http(s) URL of the recording")),
		), s.transcribeAudio)
	}

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Note Format Contract",
			mcp.WithResourceDescription("How notes are structured, rendered and exported."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

type noteSummary struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	FolderID  *string       `json:"folder_id"`
	UpdatedAt models.Millis `json:"updatedAt"`
}

type searchHit struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	folder := req.GetString("folder", "")
	out := []noteSummary{}
	for _, n := range s.notes.Notes() {
		if folder != "" && !n.InFolder(folder) {
			continue
		}
		out = append(out, noteSummary{ID: n.ID, Title: n.Title, FolderID: n.FolderID, UpdatedAt: n.UpdatedAt})
	}
	return jsonResult(out), nil
}

func (s *Server) listFolders(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.notes.Folders()), nil
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return mcp.NewToolResultError("query is empty"), nil
	}

	hits := []searchHit{}
	for _, n := range s.notes.Notes() {
		body := parser.Join(n.Paragraphs)
		idx := strings.Index(strings.ToLower(body), q)
		if idx < 0 && !strings.Contains(strings.ToLower(n.Title), q) {
			continue
		}
		hits = append(hits, searchHit{ID: n.ID, Title: n.Title, Snippet: snippet(body, idx, len(q))})
		if len(hits) == 20 {
			break
		}
	}
	return jsonResult(hits), nil
}

// snippet returns up to 40 bytes of context either side of a match at idx.
func snippet(body string, idx, n int) string {
	if idx < 0 {
		idx, n = 0, 0
	}
	start := max(idx-40, 0)
	end := min(idx+n+40, len(body))
	// Stay on rune boundaries.
	for start > 0 && !isRuneStart(body[start]) {
		start--
	}
	for end < len(body) && !isRuneStart(body[end]) {
		end++
	}
	out := body[start:end]
	if start > 0 {
		out = "..." + out
	}
	if end < len(body) {
		out += "..."
	}
	return out
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.notes.Note(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	folder := ""
	if n.FolderID != nil {
		for _, f := range s.notes.Folders() {
			if f.ID == *n.FolderID {
				folder = f.Name
			}
		}
	}
	data, err := parser.RenderMarkdown(n, folder)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	body, err := req.RequireString("body")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	title := strings.TrimSpace(req.GetString("title", ""))
	if title == "" {
		title = parser.DeriveTitle(body)
	}
	var folderID *string
	if f := req.GetString("folder", ""); f != "" {
		folderID = &f
	}

	n, err := s.notes.Create(folderID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := s.notes.UpdateTitle(n.ID, title); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := s.notes.UpdateBody(n.ID, body); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", n.ID)), nil
}

func (s *Server) appendTranscript(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.append(text)
}

func (s *Server) append(text string) (*mcp.CallToolResult, error) {
	n, err := s.notes.AppendTranscript(text)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if n == nil {
		return mcp.NewToolResultText("nothing to append"), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("appended to: %s", n.ID)), nil
}

func (s *Server) deleteNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ctx = notestore.WithConfirmation(ctx, req.GetBool("confirm", false))
	ok, err := s.notes.Delete(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !ok {
		return mcp.NewToolResultError("not deleted: confirm must be true"), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", id)), nil
}

func (s *Server) exportNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var buf bytes.Buffer
	if err := s.notes.ExportAll(&buf); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(buf.String()), nil
}

func (s *Server) getNoteContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NoteFormatContract), nil
}

func (s *Server) readNoteFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     NoteFormatContract,
		},
	}, nil
}
