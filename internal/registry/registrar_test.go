package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/codefionn/kernelrunner/internal/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockRegistry implements Registry with injectable behavior.
type MockRegistry struct {
	InsertFunc   func(ctx context.Context, ownerID string, entry *Entry) (*Record, error)
	LookupFunc   func(ctx context.Context, id string) (*Record, error)
	InsertedRows []*Entry
}

func (m *MockRegistry) Insert(ctx context.Context, ownerID string, entry *Entry) (*Record, error) {
	m.InsertedRows = append(m.InsertedRows, entry)
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, ownerID, entry)
	}
	return &Record{ID: entry.ID, UserID: ownerID, Filename: entry.Filename, Path: entry.Path}, nil
}

func (m *MockRegistry) LookupByID(ctx context.Context, id string) (*Record, error) {
	if m.LookupFunc != nil {
		return m.LookupFunc(ctx, id)
	}
	return nil, nil
}

func generatedFile(t *testing.T, name string) workspace.GeneratedFile {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0644))
	return workspace.GeneratedFile{
		Name:        name,
		Path:        name,
		FullPath:    path,
		Size:        int64(len("payload")),
		Format:      filepath.Ext(name),
		GeneratedAt: 1700000000,
	}
}

func TestRegisterEmptyInput(t *testing.T) {
	reg := NewRegistrar(&MockRegistry{}, "c1", "u1")
	assert.Empty(t, reg.Register(context.Background(), nil))
}

func TestRegisterAssignsFreshIDs(t *testing.T) {
	mock := &MockRegistry{}
	reg := NewRegistrar(mock, "c1", "u1")

	files := []workspace.GeneratedFile{
		generatedFile(t, "out.csv"),
		generatedFile(t, "report.pdf"),
	}
	ids := reg.Register(context.Background(), files)

	require.Len(t, ids, 2)
	assert.NotEmpty(t, ids[0])
	assert.NotEmpty(t, ids[1])
	assert.NotEqual(t, ids[0], ids[1])

	require.Len(t, mock.InsertedRows, 2)
	assert.Equal(t, "text/csv", mock.InsertedRows[0].Meta["content_type"])
	assert.Equal(t, "application/pdf", mock.InsertedRows[1].Meta["content_type"])
	assert.Equal(t, "c1", mock.InsertedRows[0].Meta["chat_id"])
	assert.Equal(t, GeneratedBy, mock.InsertedRows[0].Meta["generated_by"])
	assert.NotEmpty(t, mock.InsertedRows[0].Meta["digest"])
}

func TestRegisterFailureDoesNotAbortBatch(t *testing.T) {
	calls := 0
	mock := &MockRegistry{
		InsertFunc: func(ctx context.Context, ownerID string, entry *Entry) (*Record, error) {
			calls++
			if calls == 2 {
				return nil, errors.New("disk full")
			}
			return &Record{ID: entry.ID}, nil
		},
	}
	reg := NewRegistrar(mock, "c1", "u1")

	files := []workspace.GeneratedFile{
		generatedFile(t, "a.csv"),
		generatedFile(t, "b.csv"),
		generatedFile(t, "c.csv"),
	}
	ids := reg.Register(context.Background(), files)

	require.Len(t, ids, 3)
	assert.NotEmpty(t, ids[0])
	assert.Empty(t, ids[1])
	assert.NotEmpty(t, ids[2])
}

func TestRegisterNilRecordCountsAsFailure(t *testing.T) {
	mock := &MockRegistry{
		InsertFunc: func(ctx context.Context, ownerID string, entry *Entry) (*Record, error) {
			return nil, nil
		},
	}
	reg := NewRegistrar(mock, "c1", "u1")

	ids := reg.Register(context.Background(), []workspace.GeneratedFile{generatedFile(t, "a.csv")})
	require.Len(t, ids, 1)
	assert.Empty(t, ids[0])
}

func TestContentTypeTable(t *testing.T) {
	assert.Equal(t, "text/csv", ContentType(".csv"))
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", ContentType(".XLSX"))
	assert.Equal(t, "application/vnd.ms-excel", ContentType(".xls"))
	assert.Equal(t, "application/pdf", ContentType(".pdf"))
	assert.Equal(t, "application/octet-stream", ContentType(".json"))
	assert.Equal(t, "application/octet-stream", ContentType(""))
}

func TestSQLiteRegistryRoundTrip(t *testing.T) {
	reg, err := OpenSQLite(filepath.Join(t.TempDir(), "files.db"))
	require.NoError(t, err)
	defer reg.Close()

	ctx := context.Background()
	record, err := reg.Insert(ctx, "u1", &Entry{
		ID:       "f1",
		Filename: "out.csv",
		Path:     "/abs/out.csv",
		Data:     map[string]any{},
		Meta:     map[string]any{"content_type": "text/csv"},
	})
	require.NoError(t, err)
	require.NotNil(t, record)

	loaded, err := reg.LookupByID(ctx, "f1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "out.csv", loaded.Filename)
	assert.Equal(t, "/abs/out.csv", loaded.Path)
	assert.Equal(t, "text/csv", loaded.Meta["content_type"])

	missing, err := reg.LookupByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
