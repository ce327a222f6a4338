package notestore

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/vocanote/internal/apperr"
	"github.com/starford/vocanote/internal/persist"
)

func TestCreateFolderValidation(t *testing.T) {
	s, _ := newLoaded(t)

	_, err := s.CreateFolder("   ")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = s.CreateFolder(strings.Repeat("é", MaxFolderName+1))
	assert.ErrorIs(t, err, apperr.ErrValidation)

	f, err := s.CreateFolder("  " + strings.Repeat("é", MaxFolderName) + " ")
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("é", MaxFolderName), f.Name)
}

func TestRenameFolder(t *testing.T) {
	s, rec := newLoaded(t)
	f, _ := s.CreateFolder("Ideas")
	rec.take()

	renamed, err := s.RenameFolder(f.ID, "Projects")
	require.NoError(t, err)
	assert.Equal(t, "Projects", renamed.Name)
	cmds := rec.take()
	require.Len(t, cmds, 1)
	assert.Equal(t, persist.KindUpsertFolder, cmds[0].Kind)

	_, err = s.RenameFolder("missing", "x")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDeleteFolderCascadesAndResetsFilter(t *testing.T) {
	s, rec := newLoaded(t)
	work, _ := s.CreateFolder("Work")
	home, _ := s.CreateFolder("Home")

	var inWork []string
	for i := 0; i < 3; i++ {
		n, err := s.Create(&work.ID)
		require.NoError(t, err)
		inWork = append(inWork, n.ID)
	}
	keep, _ := s.Create(&home.ID)
	loose, _ := s.Create(nil)
	require.NoError(t, s.Select(inWork[0]))
	require.NoError(t, s.SetFilter(&work.ID))
	assert.Len(t, s.Visible(), 3)
	rec.take()

	removed, ok, err := s.DeleteFolder(context.Background(), work.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, removed)

	assert.Nil(t, s.Filter(), "filter resets to all notes")
	ids := []string{}
	for _, n := range s.Visible() {
		ids = append(ids, n.ID)
	}
	assert.ElementsMatch(t, []string{keep.ID, loose.ID}, ids)
	assert.Len(t, s.Folders(), 1)

	cur, ok := s.Current()
	require.True(t, ok)
	assert.NotContains(t, inWork, cur.ID)

	cmds := rec.take()
	require.Len(t, cmds, 4)
	for _, c := range cmds[:3] {
		assert.Equal(t, persist.KindDeleteNote, c.Kind)
	}
	assert.Equal(t, persist.Command{Kind: persist.KindDeleteFolder, UserID: "user-1", ID: work.ID}, cmds[3])
}

func TestDeleteFolderKeepsOtherFilter(t *testing.T) {
	s, _ := newLoaded(t)
	a, _ := s.CreateFolder("A")
	b, _ := s.CreateFolder("B")
	require.NoError(t, s.SetFilter(&b.ID))

	_, ok, err := s.DeleteFolder(context.Background(), a.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, s.Filter())
	assert.Equal(t, b.ID, *s.Filter())
}

func TestDeleteFolderDeclined(t *testing.T) {
	s, _ := newLoaded(t, WithConfirmer(declineAll()))
	f, _ := s.CreateFolder("Keep")
	_, _ = s.Create(&f.ID)

	removed, ok, err := s.DeleteFolder(context.Background(), f.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, removed)
	assert.Len(t, s.Notes(), 1)
	assert.Len(t, s.Folders(), 1)
}

func TestSetFilterUnknownFolder(t *testing.T) {
	s, _ := newLoaded(t)
	missing := "ghost"
	assert.ErrorIs(t, s.SetFilter(&missing), apperr.ErrNotFound)
	assert.Nil(t, s.Filter())
}

func TestSelectionMode(t *testing.T) {
	s, _ := newLoaded(t)
	a, _ := s.Create(nil)

	on, err := s.ToggleSelected(a.ID)
	require.NoError(t, err)
	assert.True(t, on)
	on, _ = s.ToggleSelected(a.ID)
	assert.False(t, on)

	_, _ = s.ToggleSelected(a.ID)
	s.SetSelectionMode(false)
	assert.Empty(t, s.Selected())

	_, err = s.ToggleSelected("missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
