package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("content"), 0644))
	return path
}

func TestScanFiltersByExtension(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "report.pdf")
	writeFile(t, dir, "report.json")
	writeFile(t, dir, "data.CSV")
	writeFile(t, dir, "notes.txt")

	snap := NewTracker(dir, nil).Scan()

	assert.Contains(t, snap, "report.pdf")
	assert.Contains(t, snap, "data.CSV")
	assert.NotContains(t, snap, "report.json")
	assert.NotContains(t, snap, "notes.txt")
}

func TestScanRecursesSubdirectories(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, filepath.Join("nested", "deep", "sheet.xlsx"))

	snap := NewTracker(dir, nil).Scan()
	assert.Contains(t, snap, filepath.Join("nested", "deep", "sheet.xlsx"))
}

func TestScanMissingRootIsEmpty(t *testing.T) {
	snap := NewTracker(filepath.Join(t.TempDir(), "does-not-exist"), nil).Scan()
	assert.Empty(t, snap)
}

func TestDiffIdentity(t *testing.T) {
	a := Snapshot{"a.csv": {}, "b.pdf": {}}
	assert.Empty(t, Diff(a, a))
}

func TestDiffAddition(t *testing.T) {
	pre := Snapshot{"a.csv": {}}
	post := Snapshot{"a.csv": {}, "out.csv": {}}
	assert.Equal(t, []string{"out.csv"}, Diff(pre, post))
}

func TestDiffIgnoresDeletions(t *testing.T) {
	pre := Snapshot{"a.csv": {}, "gone.pdf": {}}
	post := Snapshot{"a.csv": {}}
	assert.Empty(t, Diff(pre, post))
}

func TestNewFilesDescribesCreated(t *testing.T) {
	dir := t.TempDir()
	tracker := NewTracker(dir, nil)

	tracker.CapturePre()
	writeFile(t, dir, "out.csv")
	tracker.CapturePost()

	files := tracker.NewFiles()
	require.Len(t, files, 1)
	assert.Equal(t, "out.csv", files[0].Name)
	assert.Equal(t, "out.csv", files[0].Path)
	assert.Equal(t, ".csv", files[0].Format)
	assert.Equal(t, int64(len("content")), files[0].Size)
	assert.NotZero(t, files[0].GeneratedAt)
}

func TestNewFilesSkipsVanished(t *testing.T) {
	dir := t.TempDir()
	tracker := NewTracker(dir, nil)

	tracker.CapturePre()
	path := writeFile(t, dir, "fleeting.csv")
	tracker.CapturePost()
	require.NoError(t, os.Remove(path))

	assert.Empty(t, tracker.NewFiles())
}

func TestShouldTrack(t *testing.T) {
	p := DefaultPredicate()

	assert.True(t, p.ShouldTrack("df.to_csv('/mnt/data/out.csv')"))
	assert.True(t, p.ShouldTrack("plt.savefig('chart.pdf')"))
	assert.False(t, p.ShouldTrack("print('hello world')"))
	// Save intent without a tracked format.
	assert.False(t, p.ShouldTrack("save_state(session)"))
	assert.False(t, p.ShouldTrack(""))
}
