package history

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/shellnotifyd/internal/model"
)

func testEntry(summary string) Entry {
	r := model.NewRecord("test-app", summary, "Test Body")
	r.ID = 1
	return NewEntry(r, "expired", time.Now())
}

func TestNewEntry(t *testing.T) {
	r := model.NewRecord("Mail", "New mail", "From: a")
	r.ID = 7
	r.AppIcon = "mail-unread"
	r.Actions = []string{"default", "Open"}
	r.Hints.Category = "email.arrived"
	r.Hints.DesktopEntry = "thunderbird"
	r.Hints.Urgency = model.UrgencyCritical
	closedAt := time.Now()

	e := NewEntry(r, "dismissed", closedAt)

	id, err := ulid.Parse(e.ID)
	require.NoError(t, err)
	assert.Equal(t, ulid.Timestamp(closedAt), id.Time())
	assert.Equal(t, uint32(7), e.NotificationID)
	assert.Equal(t, "Mail", e.AppName)
	assert.Equal(t, "mail-unread", e.AppIcon)
	assert.Equal(t, "email.arrived", e.Category)
	assert.Equal(t, "thunderbird", e.DesktopEntry)
	assert.Equal(t, model.UrgencyCritical, e.Urgency)
	assert.Equal(t, "critical", e.UrgencyName)
	assert.Equal(t, []string{"default", "Open"}, e.Actions)
	assert.Equal(t, r.Timestamp, e.CreatedAt)
	assert.Equal(t, "dismissed", e.Reason)

	r.Actions[0] = "changed"
	assert.Equal(t, "default", e.Actions[0])
}

func TestRecordable(t *testing.T) {
	r := model.NewRecord("a", "s", "b")
	assert.True(t, Recordable(r))

	r.Hints.Transient = true
	assert.False(t, Recordable(r))
	assert.False(t, Recordable(nil))
}

func TestOpen_WritesHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.jsonl")

	j, err := Open(path, 0)
	require.NoError(t, err)
	defer j.Close()

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "shellnotifyd_schema_version")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestJournal_AppendAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")

	j, err := Open(path, 0)
	require.NoError(t, err)

	require.NoError(t, j.Append(testEntry("first")))
	require.NoError(t, j.Append(testEntry("second")))
	assert.Equal(t, 2, j.Len())

	entries, err := j.Load()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "first", entries[0].Summary)
	assert.Equal(t, "second", entries[1].Summary)
	require.NoError(t, j.Close())

	reopened, err := Open(path, 0)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, 2, reopened.Len())
	require.NoError(t, reopened.Append(testEntry("third")))

	entries, err = reopened.Load()
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestJournal_Prune(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")

	j, err := Open(path, 0)
	require.NoError(t, err)
	defer j.Close()

	for i := range 5 {
		require.NoError(t, j.Append(testEntry(fmt.Sprintf("n%d", i))))
	}

	removed, err := j.Prune(2)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	entries, err := j.Load()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "n3", entries[0].Summary)
	assert.Equal(t, "n4", entries[1].Summary)

	_, err = os.Stat(path + ".bak")
	assert.True(t, os.IsNotExist(err))

	removed, err = j.Prune(10)
	require.NoError(t, err)
	assert.Zero(t, removed)

	require.NoError(t, j.Append(testEntry("after")))
	entries, err = j.Load()
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestJournal_MaxEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")

	j, err := Open(path, 10)
	require.NoError(t, err)
	defer j.Close()

	for i := range 25 {
		require.NoError(t, j.Append(testEntry(fmt.Sprintf("n%d", i))))
	}

	entries, err := j.Load()
	require.NoError(t, err)
	assert.LessOrEqual(t, len(entries), 11)
	assert.GreaterOrEqual(t, len(entries), 10)
	assert.Equal(t, "n24", entries[len(entries)-1].Summary)
	assert.Equal(t, len(entries), j.Len())
}

func TestJournal_Clear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")

	j, err := Open(path, 0)
	require.NoError(t, err)
	defer j.Close()

	require.NoError(t, j.Append(testEntry("gone")))
	require.NoError(t, j.Clear())

	entries, err := j.Load()
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Zero(t, j.Len())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "shellnotifyd_schema_version")
}

func TestJournal_SkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	content := `{"shellnotifyd_schema_version":1,"created_at":1703577600}
{"id":"01HQ0000000000000000000001","notification_id":1,"app_name":"a","summary":"valid1","urgency":1}
{invalid json}
{"notification_id":2,"summary":"no id"}
{"id":"01HQ0000000000000000000002","notification_id":3,"app_name":"a","summary":"valid2","urgency":1}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	j, err := Open(path, 0)
	require.NoError(t, err)
	defer j.Close()

	entries, err := j.Load()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "valid1", entries[0].Summary)
	assert.Equal(t, "valid2", entries[1].Summary)
}

func TestJournal_SchemaVersionCheck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	content := `{"shellnotifyd_schema_version":999,"created_at":1703577600}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	_, err := Open(path, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported schema version")
}

func TestJournal_Closed(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "history.jsonl"), 0)
	require.NoError(t, err)

	require.NoError(t, j.Close())
	require.NoError(t, j.Close())

	assert.ErrorIs(t, j.Append(testEntry("late")), ErrJournalClosed)
	_, err = j.Load()
	assert.ErrorIs(t, err, ErrJournalClosed)
	_, err = j.Prune(1)
	assert.ErrorIs(t, err, ErrJournalClosed)
	assert.ErrorIs(t, j.Clear(), ErrJournalClosed)
}

func TestJournal_FollowsExternalRewrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")

	daemon, err := Open(path, 0)
	require.NoError(t, err)
	defer daemon.Close()

	for i := range 3 {
		require.NoError(t, daemon.Append(testEntry(fmt.Sprintf("n%d", i))))
	}

	cli, err := Open(path, 0)
	require.NoError(t, err)
	removed, err := cli.Prune(1)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	require.NoError(t, cli.Close())

	require.NoError(t, daemon.Append(testEntry("after prune")))
	assert.Equal(t, 2, daemon.Len())

	entries, err := daemon.Load()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "n2", entries[0].Summary)
	assert.Equal(t, "after prune", entries[1].Summary)
}
