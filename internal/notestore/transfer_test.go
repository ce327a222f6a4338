package notestore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/vocanote/internal/apperr"
	"github.com/starford/vocanote/internal/models"
	"github.com/starford/vocanote/internal/persist"
	"github.com/starford/vocanote/internal/testutil"
)

func TestExportImportRoundTrip(t *testing.T) {
	src, _ := newLoaded(t)
	n, _ := src.Create(nil)
	_, _ = src.UpdateTitle(n.ID, "Groceries")
	_, _ = src.UpdateBody(n.ID, "eggs\n\nmilk")

	var buf bytes.Buffer
	require.NoError(t, src.ExportAll(&buf))
	assert.Contains(t, buf.String(), "\n  {", "export is indented")

	dst, rec := newLoaded(t)
	count, err := dst.ImportAll(&buf)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := dst.Note(n.ID)
	require.NoError(t, err)
	want, _ := src.Note(n.ID)
	assert.Equal(t, want, got)

	cmds := rec.take()
	require.Len(t, cmds, 1)
	assert.Equal(t, persist.KindUpsertNote, cmds[0].Kind)
}

func TestImportPrecedence(t *testing.T) {
	s, _ := newLoaded(t)
	existing, _ := s.Create(nil)
	_, _ = s.UpdateTitle(existing.ID, "local")
	other, _ := s.Create(nil)

	doc := []map[string]any{
		{"id": existing.ID, "title": "imported first", "paragraphs": []any{}},
		{"id": existing.ID, "title": "imported second", "paragraphs": []any{}},
		{"id": "brand-new", "title": "new", "paragraphs": []any{map[string]any{"text": "hi"}}},
	}
	raw, _ := json.Marshal(doc)

	count, err := s.ImportAll(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	got, _ := s.Note(existing.ID)
	assert.Equal(t, "imported first", got.Title)

	notes := s.Notes()
	require.Len(t, notes, 3)
	assert.Equal(t, []string{existing.ID, "brand-new", other.ID}, []string{notes[0].ID, notes[1].ID, notes[2].ID})
}

func TestImportMintsMissingFields(t *testing.T) {
	s, _ := newLoaded(t, WithClock(func() models.Millis { return 42 }))
	count, err := s.ImportAll(strings.NewReader(`[{"title":"no id","paragraphs":[{"text":"a"}]}]`))
	require.NoError(t, err)
	require.Equal(t, 1, count)

	notes := s.Notes()
	require.Len(t, notes, 1)
	n := notes[0]
	assert.NotEmpty(t, n.ID)
	assert.Equal(t, models.Millis(42), n.CreatedAt)
	assert.Equal(t, models.Millis(42), n.UpdatedAt)
	require.Len(t, n.Paragraphs, 1)
	assert.NotEmpty(t, n.Paragraphs[0].ID)
	assert.Equal(t, models.Millis(42), n.Paragraphs[0].Timestamp)
}

func TestImportDropsUnknownFolder(t *testing.T) {
	s, _ := newLoaded(t)
	_, err := s.ImportAll(strings.NewReader(`[{"id":"x","title":"t","paragraphs":[],"folder_id":"gone"}]`))
	require.NoError(t, err)
	n, _ := s.Note("x")
	assert.Nil(t, n.FolderID)
}

func TestImportRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":         `{{{`,
		"object not array": `{"id":"x"}`,
		"bad paragraphs":   `[{"title":"t","paragraphs":"nope"}]`,
		"bad timestamp":    `[{"title":"t","paragraphs":[],"createdAt":"yesterday"}]`,
		"paragraph text":   `[{"title":"t","paragraphs":[{"id":"p"}]}]`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			s, rec := newLoaded(t)
			_, _ = s.Create(nil)
			rec.take()

			_, err := s.ImportAll(strings.NewReader(doc))
			assert.ErrorIs(t, err, apperr.ErrInvalidFormat)
			assert.Len(t, s.Notes(), 1)
			assert.Empty(t, rec.take())
		})
	}
}

func TestImportBeforeLoad(t *testing.T) {
	s := New(emptySource{}, &recorder{}, quietLogger())
	_, err := s.ImportAll(strings.NewReader(`[]`))
	assert.ErrorIs(t, err, apperr.ErrNotLoaded)
}

func TestImportOlderBackupReachesRemote(t *testing.T) {
	ctx := context.Background()
	db := testutil.TestRemote(t)
	queue := persist.New(db, persist.Config{Workers: 1}, quietLogger())
	queue.Start()

	s := New(db, queue, quietLogger())
	require.NoError(t, s.LoadAll(ctx, "user-1"))
	n, err := s.Create(nil)
	require.NoError(t, err)
	edited, err := s.UpdateTitle(n.ID, "edited locally")
	require.NoError(t, err)

	doc := fmt.Sprintf(`[{"id":%q,"title":"from backup","paragraphs":[],"createdAt":1000,"updatedAt":1000}]`, n.ID)
	_, err = s.ImportAll(strings.NewReader(doc))
	require.NoError(t, err)

	got, err := s.Note(n.ID)
	require.NoError(t, err)
	assert.Equal(t, "from backup", got.Title)
	assert.GreaterOrEqual(t, int64(got.UpdatedAt), int64(edited.UpdatedAt), "updatedAt never goes backwards")

	queue.Close()
	assert.Zero(t, queue.Stats().Failed)

	reloaded := New(db, &recorder{}, quietLogger())
	require.NoError(t, reloaded.LoadAll(ctx, "user-1"))
	got, err = reloaded.Note(n.ID)
	require.NoError(t, err)
	assert.Equal(t, "from backup", got.Title)
	assert.GreaterOrEqual(t, int64(got.UpdatedAt), int64(edited.UpdatedAt))
}

func TestImportNewerBackupKeepsItsTimestamp(t *testing.T) {
	s, _ := newLoaded(t)
	n, _ := s.Create(nil)

	doc := fmt.Sprintf(`[{"id":%q,"title":"later","paragraphs":[],"updatedAt":9000000}]`, n.ID)
	_, err := s.ImportAll(strings.NewReader(doc))
	require.NoError(t, err)

	got, _ := s.Note(n.ID)
	assert.Equal(t, models.Millis(9_000_000), got.UpdatedAt)
}

func TestImportNoteLeavesCurrentAndUndo(t *testing.T) {
	s, rec := newLoaded(t)
	n, _ := s.Create(nil)
	_, err := s.UpdateTitle(n.ID, "draft")
	require.NoError(t, err)
	rec.take()

	added, err := s.ImportNote("", "dropped in\n\nsecond block")
	require.NoError(t, err)
	assert.Equal(t, "dropped in", added.Title)
	require.Len(t, added.Paragraphs, 2)
	assert.Equal(t, "second block", added.Paragraphs[1].Text)

	cmds := rec.take()
	require.Len(t, cmds, 1, "one upsert for the whole note")
	assert.Equal(t, added.ID, cmds[0].Note.ID)

	cur, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, n.ID, cur.ID)
	require.True(t, s.CanUndo())
	undone, ok := s.Undo()
	require.True(t, ok)
	assert.Equal(t, n.ID, undone.ID)
	assert.Empty(t, undone.Title)

	notes := s.Notes()
	require.Len(t, notes, 2)
	assert.Equal(t, added.ID, notes[0].ID)
}

func TestImportNoteBeforeLoad(t *testing.T) {
	s := New(emptySource{}, &recorder{}, quietLogger())
	_, err := s.ImportNote("t", "body")
	assert.ErrorIs(t, err, apperr.ErrNotLoaded)
}
