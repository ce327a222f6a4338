// Package notestore is the in-memory source of truth for a user's notes and
// folders. Every mutation is applied locally first and then handed to a
// Persister as a fire-and-forget remote command.
package notestore

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/vocanote/internal/apperr"
	"github.com/starford/vocanote/internal/models"
	"github.com/starford/vocanote/internal/parser"
	"github.com/starford/vocanote/internal/persist"
	"github.com/starford/vocanote/internal/remote"
)

// Source lists a user's rows from the remote store.
type Source interface {
	ListNotes(ctx context.Context, userID string) ([]remote.NoteRow, error)
	ListFolders(ctx context.Context, userID string) ([]remote.FolderRow, error)
}

// Persister accepts outbound remote commands. *persist.Queue satisfies it.
type Persister interface {
	Enqueue(cmd persist.Command)
}

// Confirmer asks the user a yes/no question before destructive operations.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) bool

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) bool { return f(ctx, prompt) }

// AlwaysConfirm grants every confirmation.
var AlwaysConfirm = ConfirmFunc(func(context.Context, string) bool { return true })

type confirmKey struct{}

// WithConfirmation records on ctx whether the caller has already agreed to
// destructive operations. Request-driven surfaces use it with ContextConfirmer.
func WithConfirmation(ctx context.Context, ok bool) context.Context {
	return context.WithValue(ctx, confirmKey{}, ok)
}

// ContextConfirmer grants a confirmation only when ctx carries one from
// WithConfirmation.
var ContextConfirmer = ConfirmFunc(func(ctx context.Context, _ string) bool {
	ok, _ := ctx.Value(confirmKey{}).(bool)
	return ok
})

// Store holds the loaded notes and folders of one user.
type Store struct {
	source    Source
	persister Persister
	confirmer Confirmer
	logger    *slog.Logger
	now       func() models.Millis
	newID     func() string

	mu            sync.Mutex
	userID        string
	loaded        bool
	notes         []*models.Note
	folders       []*models.Folder
	currentID     string
	folderFilter  *string
	selectionMode bool
	selected      map[string]struct{}
	undo          UndoBuffer

	subMu   sync.RWMutex
	subs    map[int]func(Event)
	nextSub int
}

// Option customises a Store.
type Option func(*Store)

// WithConfirmer sets the prompt collaborator. The default grants everything.
func WithConfirmer(c Confirmer) Option {
	return func(s *Store) {
		s.confirmer = c
	}
}

// WithClock replaces the wall clock.
func WithClock(now func() models.Millis) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithIDGenerator replaces the uuid generator for notes and folders.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		s.newID = fn
	}
}

// New creates an empty, unloaded store.
func New(source Source, persister Persister, logger *slog.Logger, opts ...Option) *Store {
	s := &Store{
		source:    source,
		persister: persister,
		confirmer: AlwaysConfirm,
		logger:    logger,
		now:       func() models.Millis { return models.MillisOf(time.Now()) },
		newID:     func() string { return uuid.NewString() },
		selected:  make(map[string]struct{}),
		subs:      make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// effects collects what a mutation wants to announce and persist once the
// lock is released.
type effects struct {
	events []Event
	cmds   []persist.Command
}

func (fx *effects) emit(kind EventKind, id string) {
	fx.events = append(fx.events, Event{Kind: kind, ID: id})
}

func (s *Store) mutate(fn func(fx *effects) error) error {
	fx := &effects{}
	s.mu.Lock()
	err := fn(fx)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	for _, cmd := range fx.cmds {
		s.persister.Enqueue(cmd)
	}
	s.publish(fx.events)
	return nil
}

// LoadAll replaces the local collections with userID's rows from the remote
// store. On failure the local state is left as it was.
func (s *Store) LoadAll(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return apperr.ValidationFailed("user_id", "user id is required")
	}
	noteRows, err := s.source.ListNotes(ctx, userID)
	if err != nil {
		return fmt.Errorf("notestore: load notes: %w", err)
	}
	folderRows, err := s.source.ListFolders(ctx, userID)
	if err != nil {
		return fmt.Errorf("notestore: load folders: %w", err)
	}

	notes := make([]*models.Note, 0, len(noteRows))
	for _, row := range noteRows {
		n, err := remote.RowToNote(row)
		if err != nil {
			s.logger.Warn("notestore: skipping unreadable note", slog.String("id", row.ID), slog.String("error", err.Error()))
			continue
		}
		notes = append(notes, n)
	}
	sort.SliceStable(notes, func(i, j int) bool { return notes[i].UpdatedAt > notes[j].UpdatedAt })

	folders := make([]*models.Folder, 0, len(folderRows))
	for _, row := range folderRows {
		f, err := remote.RowToFolder(row)
		if err != nil {
			s.logger.Warn("notestore: skipping unreadable folder", slog.String("id", row.ID), slog.String("error", err.Error()))
			continue
		}
		folders = append(folders, f)
	}

	return s.mutate(func(fx *effects) error {
		if s.userID != userID {
			s.currentID = ""
			s.folderFilter = nil
		}
		s.userID = userID
		s.notes = notes
		s.folders = folders
		s.loaded = true
		s.selected = make(map[string]struct{})
		s.selectionMode = false
		if s.folderFilter != nil && s.folderIndex(*s.folderFilter) < 0 {
			s.folderFilter = nil
		}

		prev := s.currentID
		if s.noteIndex(s.currentID) < 0 {
			s.currentID = ""
			if len(s.notes) > 0 {
				s.currentID = s.notes[0].ID
			}
		}
		if s.currentID != prev {
			s.undo.Clear()
			fx.emit(EventCurrentChanged, s.currentID)
		}
		fx.emit(EventNotesChanged, "")
		fx.emit(EventFoldersChanged, "")
		return nil
	})
}

// Create starts an empty note, optionally filed in folderID, and makes it current.
func (s *Store) Create(folderID *string) (*models.Note, error) {
	var out *models.Note
	err := s.mutate(func(fx *effects) error {
		if !s.loaded {
			return apperr.ErrNotLoaded
		}
		if folderID != nil && s.folderIndex(*folderID) < 0 {
			return apperr.NotFound("folder", *folderID)
		}
		now := s.now()
		n := &models.Note{
			ID:         s.newID(),
			Paragraphs: []models.Paragraph{},
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if folderID != nil {
			id := *folderID
			n.FolderID = &id
		}
		s.notes = slices.Insert(s.notes, 0, n)
		s.setCurrent(fx, n.ID)
		s.persistNote(fx, n)
		fx.emit(EventNotesChanged, "")
		out = n.Clone()
		return nil
	})
	return out, err
}

// UpdateTitle renames a note.
func (s *Store) UpdateTitle(id, title string) (*models.Note, error) {
	return s.edit(id, func(n *models.Note) {
		n.Title = title
	})
}

// UpdateBody replaces a note's paragraphs with the blocks of body, keeping
// paragraph identity by position.
func (s *Store) UpdateBody(id, body string) (*models.Note, error) {
	return s.edit(id, func(n *models.Note) {
		n.Paragraphs = parser.Merge(n.Paragraphs, parser.Split(body), s.now())
	})
}

// edit snapshots the note for undo, applies change and persists the result.
func (s *Store) edit(id string, change func(n *models.Note)) (*models.Note, error) {
	var out *models.Note
	err := s.mutate(func(fx *effects) error {
		n, err := s.find(id)
		if err != nil {
			return err
		}
		s.undo.Take(n)
		change(n)
		s.touch(n)
		s.persistNote(fx, n)
		fx.emit(EventNoteUpdated, n.ID)
		out = n.Clone()
		return nil
	})
	return out, err
}

// AppendTranscript adds text as a new paragraph of the current note, or
// starts a note titled after text when nothing is current. Blank text is
// ignored and yields a nil note.
func (s *Store) AppendTranscript(text string) (*models.Note, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	var out *models.Note
	err := s.mutate(func(fx *effects) error {
		if !s.loaded {
			return apperr.ErrNotLoaded
		}
		now := s.now()
		cur, err := s.find(s.currentID)
		if err != nil {
			n := &models.Note{
				ID:         s.newID(),
				Title:      parser.DeriveTitle(text),
				Paragraphs: []models.Paragraph{parser.NewParagraph(text, now)},
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			s.notes = slices.Insert(s.notes, 0, n)
			s.setCurrent(fx, n.ID)
			s.persistNote(fx, n)
			fx.emit(EventNotesChanged, "")
			out = n.Clone()
			return nil
		}
		s.undo.Take(cur)
		cur.Paragraphs = append(cur.Paragraphs, parser.NewParagraph(text, now))
		s.touch(cur)
		s.persistNote(fx, cur)
		fx.emit(EventNoteUpdated, cur.ID)
		out = cur.Clone()
		return nil
	})
	return out, err
}

// Select makes id the current note. Switching notes discards the undo slot.
func (s *Store) Select(id string) error {
	return s.mutate(func(fx *effects) error {
		if _, err := s.find(id); err != nil {
			return err
		}
		s.setCurrent(fx, id)
		return nil
	})
}

// Delete removes a note after confirmation. It reports false when the user
// declined.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	n, err := s.find(id)
	var title string
	if err == nil {
		title = n.Title
	}
	s.mu.Unlock()
	if err != nil {
		return false, err
	}
	if title == "" {
		title = "Untitled"
	}
	if !s.confirmer.Confirm(ctx, fmt.Sprintf("Delete %q?", title)) {
		return false, nil
	}

	err = s.mutate(func(fx *effects) error {
		// The note may have gone while the prompt was open.
		if _, err := s.find(id); err != nil {
			return err
		}
		s.removeNotes(fx, map[string]struct{}{id: {}})
		return nil
	})
	return err == nil, err
}

// DeleteMany removes every listed note that exists after a single
// confirmation and leaves selection mode. It returns how many were removed.
func (s *Store) DeleteMany(ctx context.Context, ids []string) (int, error) {
	s.mu.Lock()
	if !s.loaded {
		s.mu.Unlock()
		return 0, apperr.ErrNotLoaded
	}
	count := 0
	for _, id := range uniq(ids) {
		if s.noteIndex(id) >= 0 {
			count++
		}
	}
	s.mu.Unlock()

	if count > 0 && !s.confirmer.Confirm(ctx, fmt.Sprintf("Delete %d notes?", count)) {
		return 0, nil
	}

	removed := 0
	err := s.mutate(func(fx *effects) error {
		doomed := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			if s.noteIndex(id) >= 0 {
				doomed[id] = struct{}{}
			}
		}
		removed = s.removeNotes(fx, doomed)
		s.selectionMode = false
		s.selected = make(map[string]struct{})
		fx.emit(EventSelectionChanged, "")
		return nil
	})
	return removed, err
}

// MoveToFolder files a note under folderID, or unfiles it when folderID is nil.
func (s *Store) MoveToFolder(id string, folderID *string) (*models.Note, error) {
	var out *models.Note
	err := s.mutate(func(fx *effects) error {
		n, err := s.find(id)
		if err != nil {
			return err
		}
		if folderID != nil {
			if s.folderIndex(*folderID) < 0 {
				return apperr.NotFound("folder", *folderID)
			}
			f := *folderID
			n.FolderID = &f
		} else {
			n.FolderID = nil
		}
		s.touch(n)
		s.persistNote(fx, n)
		fx.emit(EventNoteUpdated, n.ID)
		out = n.Clone()
		return nil
	})
	return out, err
}

// Undo restores the snapshot taken before the last edit. It reports false
// when there was nothing to restore.
func (s *Store) Undo() (*models.Note, bool) {
	var out *models.Note
	_ = s.mutate(func(fx *effects) error {
		snap, ok := s.undo.Pop()
		if !ok {
			return nil
		}
		n, err := s.find(snap.NoteID)
		if err != nil {
			return nil
		}
		n.Title = snap.Title
		n.Paragraphs = models.CloneParagraphs(snap.Paragraphs)
		s.touch(n)
		s.persistNote(fx, n)
		fx.emit(EventNoteUpdated, n.ID)
		out = n.Clone()
		return nil
	})
	return out, out != nil
}

// CanUndo reports whether Undo would restore something.
func (s *Store) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.undo.Pending()
}

// UserID returns the user the store was loaded for.
func (s *Store) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Loaded reports whether LoadAll has succeeded.
func (s *Store) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// Notes returns copies of all notes in display order.
func (s *Store) Notes() []*models.Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneNotes(s.notes)
}

// Note returns a copy of one note.
func (s *Store) Note(id string) (*models.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.find(id)
	if err != nil {
		return nil, err
	}
	return n.Clone(), nil
}

// Current returns a copy of the current note.
func (s *Store) Current() (*models.Note, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.find(s.currentID)
	if err != nil {
		return nil, false
	}
	return n.Clone(), true
}

// find returns the live note. Callers hold s.mu.
func (s *Store) find(id string) (*models.Note, error) {
	if i := s.noteIndex(id); i >= 0 {
		return s.notes[i], nil
	}
	if !s.loaded {
		return nil, apperr.ErrNotLoaded
	}
	return nil, apperr.NotFound("note", id)
}

func (s *Store) noteIndex(id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(s.notes, func(n *models.Note) bool { return n.ID == id })
}

// touch bumps UpdatedAt without ever moving it backwards.
func (s *Store) touch(n *models.Note) {
	n.UpdatedAt = max(s.now(), n.UpdatedAt)
}

func (s *Store) setCurrent(fx *effects, id string) {
	if s.currentID == id {
		return
	}
	s.currentID = id
	s.undo.Clear()
	fx.emit(EventCurrentChanged, id)
}

// removeNotes drops the given notes, queues their remote deletes and picks
// a new current note if needed.
func (s *Store) removeNotes(fx *effects, doomed map[string]struct{}) int {
	if len(doomed) == 0 {
		return 0
	}
	kept := s.notes[:0:0]
	removed := 0
	for _, n := range s.notes {
		if _, ok := doomed[n.ID]; !ok {
			kept = append(kept, n)
			continue
		}
		removed++
		s.undo.ClearFor(n.ID)
		delete(s.selected, n.ID)
		fx.cmds = append(fx.cmds, persist.Command{Kind: persist.KindDeleteNote, UserID: s.userID, ID: n.ID})
		fx.emit(EventNoteDeleted, n.ID)
	}
	s.notes = kept
	if _, gone := doomed[s.currentID]; gone {
		s.setCurrent(fx, s.mostRecentID())
	}
	fx.emit(EventNotesChanged, "")
	return removed
}

func (s *Store) mostRecentID() string {
	var best *models.Note
	for _, n := range s.notes {
		if best == nil || n.UpdatedAt > best.UpdatedAt {
			best = n
		}
	}
	if best == nil {
		return ""
	}
	return best.ID
}

func (s *Store) persistNote(fx *effects, n *models.Note) {
	fx.cmds = append(fx.cmds, persist.Command{Kind: persist.KindUpsertNote, UserID: s.userID, Note: n.Clone()})
}

func cloneNotes(ns []*models.Note) []*models.Note {
	out := make([]*models.Note, len(ns))
	for i, n := range ns {
		out[i] = n.Clone()
	}
	return out
}

func uniq(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
