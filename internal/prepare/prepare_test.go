package prepare

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/codefionn/kernelrunner/internal/chatstore"
	"github.com/codefionn/kernelrunner/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockChats struct {
	GetFunc func(ctx context.Context, chatID string) (*chatstore.Chat, error)
}

func (m *mockChats) Get(ctx context.Context, chatID string) (*chatstore.Chat, error) {
	return m.GetFunc(ctx, chatID)
}

type mockRegistry struct {
	LookupFunc func(ctx context.Context, id string) (*registry.Record, error)
}

func (m *mockRegistry) Insert(ctx context.Context, ownerID string, entry *registry.Entry) (*registry.Record, error) {
	return nil, errors.New("not implemented")
}

func (m *mockRegistry) LookupByID(ctx context.Context, id string) (*registry.Record, error) {
	return m.LookupFunc(ctx, id)
}

type passthroughStorage struct{}

func (passthroughStorage) Resolve(logicalPath string) (string, error) {
	return logicalPath, nil
}

func chatWithFiles(refs ...chatstore.FileRef) *chatstore.Chat {
	return &chatstore.Chat{
		ID: "c1",
		History: chatstore.History{Messages: map[string]chatstore.Message{
			"m1": {Files: refs},
		}},
	}
}

func newTestStage(t *testing.T, chat *chatstore.Chat, sources map[string]string) (*Stage, string) {
	t.Helper()
	dataDir := t.TempDir()

	chats := &mockChats{GetFunc: func(ctx context.Context, chatID string) (*chatstore.Chat, error) {
		return chat, nil
	}}
	files := &mockRegistry{LookupFunc: func(ctx context.Context, id string) (*registry.Record, error) {
		path, ok := sources[id]
		if !ok {
			return nil, nil
		}
		return &registry.Record{ID: id, Path: path}, nil
	}}

	return NewStage(chats, files, passthroughStorage{}, dataDir), dataDir
}

func sourceFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestPrepareSingleCSV(t *testing.T) {
	src := sourceFile(t, "sales.csv", "a,b\n1,2\n")
	chat := chatWithFiles(chatstore.FileRef{ID: "f1", Name: "sales.csv"})
	stage, dataDir := newTestStage(t, chat, map[string]string{"f1": src})

	report := stage.Prepare(context.Background(), "c1")

	require.True(t, report.Success)
	assert.Equal(t, 1, report.TotalFiles)
	assert.Empty(t, report.Errors)
	require.Len(t, report.Prepared, 1)

	prepared := report.Prepared[0]
	assert.Equal(t, "f1", prepared.ID)
	assert.Equal(t, filepath.Join(dataDir, "uploads", "c1", "sales.csv"), prepared.TargetPath)
	assert.Equal(t, MethodCopy, prepared.Method)

	copied, err := os.ReadFile(prepared.TargetPath)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(copied))
}

func TestPrepareDeduplicatesByID(t *testing.T) {
	src := sourceFile(t, "sales.csv", "data")
	chat := chatWithFiles(
		chatstore.FileRef{ID: "f1", Name: "sales.csv"},
		chatstore.FileRef{ID: "f1", Name: "sales.csv"},
	)
	stage, _ := newTestStage(t, chat, map[string]string{"f1": src})

	report := stage.Prepare(context.Background(), "c1")

	assert.True(t, report.Success)
	assert.Len(t, report.Prepared, 1)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, "duplicate", report.Skipped[0].Reason)

	require.Len(t, report.Outcomes, 2)
	assert.Equal(t, OutcomePrepared, report.Outcomes[0].Kind)
	assert.Equal(t, OutcomeSkipped, report.Outcomes[1].Kind)
}

func TestPrepareMissingRecordIsIsolated(t *testing.T) {
	src := sourceFile(t, "ok.csv", "data")
	chat := chatWithFiles(
		chatstore.FileRef{ID: "missing", Name: "ghost.csv"},
		chatstore.FileRef{ID: "f1", Name: "ok.csv"},
	)
	stage, _ := newTestStage(t, chat, map[string]string{"f1": src})

	report := stage.Prepare(context.Background(), "c1")

	// One file prepared, so the run still counts as a success.
	assert.True(t, report.Success)
	assert.Len(t, report.Prepared, 1)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "ghost.csv")
}

func TestPrepareAllFailuresIsFailure(t *testing.T) {
	chat := chatWithFiles(chatstore.FileRef{ID: "missing", Name: "ghost.csv"})
	stage, _ := newTestStage(t, chat, nil)

	report := stage.Prepare(context.Background(), "c1")

	assert.False(t, report.Success)
	assert.Empty(t, report.Prepared)
	assert.Len(t, report.Errors, 1)
}

func TestPrepareMissingSourceFile(t *testing.T) {
	chat := chatWithFiles(chatstore.FileRef{ID: "f1", Name: "gone.csv"})
	stage, _ := newTestStage(t, chat, map[string]string{"f1": "/nonexistent/gone.csv"})

	report := stage.Prepare(context.Background(), "c1")

	assert.False(t, report.Success)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "source file not found")
}

func TestPrepareNoFilesIsSuccess(t *testing.T) {
	stage, _ := newTestStage(t, chatWithFiles(), nil)

	report := stage.Prepare(context.Background(), "c1")
	assert.True(t, report.Success)
	assert.Zero(t, report.TotalFiles)
}

func TestPrepareChatNotFoundIsSuccess(t *testing.T) {
	stage, _ := newTestStage(t, nil, nil)

	report := stage.Prepare(context.Background(), "c1")
	assert.True(t, report.Success)
	assert.Zero(t, report.TotalFiles)
}

func TestPrepareOverwritesExistingTarget(t *testing.T) {
	src := sourceFile(t, "sales.csv", "fresh")
	chat := chatWithFiles(chatstore.FileRef{ID: "f1", Name: "sales.csv"})
	stage, dataDir := newTestStage(t, chat, map[string]string{"f1": src})

	target := filepath.Join(dataDir, "uploads", "c1", "sales.csv")
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0755))
	require.NoError(t, os.WriteFile(target, []byte("stale"), 0644))

	report := stage.Prepare(context.Background(), "c1")
	require.True(t, report.Success)

	copied, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(copied))
}

func TestPrepareReplacesDanglingSymlink(t *testing.T) {
	src := sourceFile(t, "sales.csv", "fresh")
	chat := chatWithFiles(chatstore.FileRef{ID: "f1", Name: "sales.csv"})
	stage, dataDir := newTestStage(t, chat, map[string]string{"f1": src})

	target := filepath.Join(dataDir, "uploads", "c1", "sales.csv")
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0755))
	require.NoError(t, os.Symlink("/nonexistent/origin", target))

	report := stage.Prepare(context.Background(), "c1")
	require.True(t, report.Success)

	copied, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(copied))
}

func TestPrepareStoreErrorBecomesFailureReport(t *testing.T) {
	chats := &mockChats{GetFunc: func(ctx context.Context, chatID string) (*chatstore.Chat, error) {
		return nil, errors.New("database offline")
	}}
	stage := NewStage(chats, &mockRegistry{}, passthroughStorage{}, t.TempDir())

	report := stage.Prepare(context.Background(), "c1")
	assert.False(t, report.Success)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "database offline")
}

func TestPrepareIdempotent(t *testing.T) {
	src := sourceFile(t, "sales.csv", "data")
	chat := chatWithFiles(chatstore.FileRef{ID: "f1", Name: "sales.csv"})
	stage, _ := newTestStage(t, chat, map[string]string{"f1": src})

	first := stage.Prepare(context.Background(), "c1")
	second := stage.Prepare(context.Background(), "c1")

	require.True(t, first.Success)
	require.True(t, second.Success)
	assert.Equal(t, first.Prepared[0].TargetPath, second.Prepared[0].TargetPath)
	assert.Empty(t, second.Errors)
}
