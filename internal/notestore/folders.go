package notestore

import (
	"context"
	"fmt"
	"slices"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/vocanote/internal/apperr"
	"github.com/starford/vocanote/internal/models"
	"github.com/starford/vocanote/internal/persist"
)

// MaxFolderName is the longest folder name accepted, in runes.
const MaxFolderName = 100

func validateFolderName(name string) (string, error) {
	name = strings.TrimSpace(name)
	err := validation.Validate(name,
		validation.Required.Error("folder name is required"),
		validation.RuneLength(1, MaxFolderName).Error(fmt.Sprintf("folder name must be at most %d characters", MaxFolderName)),
	)
	if err != nil {
		return "", apperr.ValidationFailed("name", err.Error())
	}
	return name, nil
}

// CreateFolder adds a folder.
func (s *Store) CreateFolder(name string) (*models.Folder, error) {
	name, err := validateFolderName(name)
	if err != nil {
		return nil, err
	}
	var out *models.Folder
	err = s.mutate(func(fx *effects) error {
		if !s.loaded {
			return apperr.ErrNotLoaded
		}
		f := &models.Folder{ID: s.newID(), Name: name, CreatedAt: s.now()}
		s.folders = append(s.folders, f)
		s.persistFolder(fx, f)
		fx.emit(EventFoldersChanged, "")
		c := *f
		out = &c
		return nil
	})
	return out, err
}

// RenameFolder changes a folder's name.
func (s *Store) RenameFolder(id, name string) (*models.Folder, error) {
	name, err := validateFolderName(name)
	if err != nil {
		return nil, err
	}
	var out *models.Folder
	err = s.mutate(func(fx *effects) error {
		f, err := s.findFolder(id)
		if err != nil {
			return err
		}
		f.Name = name
		s.persistFolder(fx, f)
		fx.emit(EventFoldersChanged, "")
		c := *f
		out = &c
		return nil
	})
	return out, err
}

// DeleteFolder removes a folder together with every note filed in it, after
// confirmation. It returns the number of notes removed and false when the
// user declined.
func (s *Store) DeleteFolder(ctx context.Context, id string) (int, bool, error) {
	s.mu.Lock()
	f, err := s.findFolder(id)
	var name string
	var count int
	if err == nil {
		name = f.Name
		for _, n := range s.notes {
			if n.InFolder(id) {
				count++
			}
		}
	}
	s.mu.Unlock()
	if err != nil {
		return 0, false, err
	}

	prompt := fmt.Sprintf("Delete folder %q?", name)
	if count > 0 {
		prompt = fmt.Sprintf("Delete folder %q and its %d notes?", name, count)
	}
	if !s.confirmer.Confirm(ctx, prompt) {
		return 0, false, nil
	}

	removed := 0
	err = s.mutate(func(fx *effects) error {
		i := s.folderIndex(id)
		if i < 0 {
			return apperr.NotFound("folder", id)
		}
		doomed := make(map[string]struct{})
		for _, n := range s.notes {
			if n.InFolder(id) {
				doomed[n.ID] = struct{}{}
			}
		}
		removed = s.removeNotes(fx, doomed)
		s.folders = slices.Delete(s.folders, i, i+1)
		if s.folderFilter != nil && *s.folderFilter == id {
			s.folderFilter = nil
			fx.emit(EventFilterChanged, "")
		}
		fx.cmds = append(fx.cmds, persist.Command{Kind: persist.KindDeleteFolder, UserID: s.userID, ID: id})
		fx.emit(EventFolderDeleted, id)
		fx.emit(EventFoldersChanged, "")
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return removed, true, nil
}

// Folders returns copies of all folders in creation order.
func (s *Store) Folders() []*models.Folder {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Folder, len(s.folders))
	for i, f := range s.folders {
		c := *f
		out[i] = &c
	}
	return out
}

// SetFilter restricts Visible to one folder, or shows all notes when
// folderID is nil.
func (s *Store) SetFilter(folderID *string) error {
	return s.mutate(func(fx *effects) error {
		if folderID == nil {
			s.folderFilter = nil
		} else {
			if _, err := s.findFolder(*folderID); err != nil {
				return err
			}
			id := *folderID
			s.folderFilter = &id
		}
		fx.emit(EventFilterChanged, "")
		return nil
	})
}

// Filter returns the active folder filter, nil meaning all notes.
func (s *Store) Filter() *string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.folderFilter == nil {
		return nil
	}
	id := *s.folderFilter
	return &id
}

// Visible returns copies of the notes that pass the folder filter.
func (s *Store) Visible() []*models.Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.folderFilter == nil {
		return cloneNotes(s.notes)
	}
	var out []*models.Note
	for _, n := range s.notes {
		if n.InFolder(*s.folderFilter) {
			out = append(out, n.Clone())
		}
	}
	return out
}

// SetSelectionMode enters or leaves bulk selection. Leaving clears the
// selected set.
func (s *Store) SetSelectionMode(on bool) {
	_ = s.mutate(func(fx *effects) error {
		s.selectionMode = on
		if !on {
			s.selected = make(map[string]struct{})
		}
		fx.emit(EventSelectionChanged, "")
		return nil
	})
}

// SelectionMode reports whether bulk selection is active.
func (s *Store) SelectionMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectionMode
}

// ToggleSelected flips id's membership in the selected set, entering
// selection mode if needed. It reports whether id is now selected.
func (s *Store) ToggleSelected(id string) (bool, error) {
	var now bool
	err := s.mutate(func(fx *effects) error {
		if _, err := s.find(id); err != nil {
			return err
		}
		s.selectionMode = true
		if _, ok := s.selected[id]; ok {
			delete(s.selected, id)
		} else {
			s.selected[id] = struct{}{}
			now = true
		}
		fx.emit(EventSelectionChanged, id)
		return nil
	})
	return now, err
}

// Selected lists the selected note ids in display order.
func (s *Store) Selected() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []string{}
	for _, n := range s.notes {
		if _, ok := s.selected[n.ID]; ok {
			out = append(out, n.ID)
		}
	}
	return out
}

func (s *Store) findFolder(id string) (*models.Folder, error) {
	if i := s.folderIndex(id); i >= 0 {
		return s.folders[i], nil
	}
	if !s.loaded {
		return nil, apperr.ErrNotLoaded
	}
	return nil, apperr.NotFound("folder", id)
}

func (s *Store) folderIndex(id string) int {
	return slices.IndexFunc(s.folders, func(f *models.Folder) bool { return f.ID == id })
}

func (s *Store) persistFolder(fx *effects, f *models.Folder) {
	c := *f
	fx.cmds = append(fx.cmds, persist.Command{Kind: persist.KindUpsertFolder, UserID: s.userID, Folder: &c})
}
