package reliability

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/nightshift/internal/database"
)

type fakeStore struct {
	uploads map[string][]byte
	objects []types.Object
	deleted []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{uploads: map[string][]byte{}}
}

func (f *fakeStore) Upload(_ context.Context, key string, body io.Reader) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.uploads[key] = data
	return nil
}

func (f *fakeStore) List(_ context.Context, prefix string) ([]types.Object, error) {
	var out []types.Object
	for _, obj := range f.objects {
		if strings.HasPrefix(*obj.Key, prefix) {
			out = append(out, obj)
		}
	}
	return out, nil
}

func (f *fakeStore) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

func testDB(t *testing.T) (*database.DB, string) {
	t.Helper()
	dir := t.TempDir()
	db, err := database.New(database.Config{Path: filepath.Join(dir, "market.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())
	return db, dir
}

func TestCreateAndUploadBackup(t *testing.T) {
	db, dir := testDB(t)
	store := newFakeStore()
	svc := NewBackupService(db, store, dir, 5, zerolog.Nop())
	svc.now = func() time.Time { return time.Date(2026, 8, 24, 22, 30, 0, 0, time.UTC) }

	require.NoError(t, svc.CreateAndUploadBackup(context.Background()))

	require.Len(t, store.uploads, 1)
	var key string
	for k := range store.uploads {
		key = k
	}
	assert.Equal(t, "nightshift-backup-2026-08-24-223000.tar.gz", key)

	// The archive must contain the snapshot and its metadata.
	gz, err := gzip.NewReader(bytes.NewReader(store.uploads[key]))
	require.NoError(t, err)
	tr := tar.NewReader(gz)

	names := map[string]bool{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names[hdr.Name] = true
	}
	assert.True(t, names["market.db"])
	assert.True(t, names["backup-metadata.json"])
}

func TestCreateAndUploadBackupCleansStaging(t *testing.T) {
	db, dir := testDB(t)
	store := newFakeStore()
	svc := NewBackupService(db, store, dir, 5, zerolog.Nop())

	require.NoError(t, svc.CreateAndUploadBackup(context.Background()))

	assert.NoDirExists(t, filepath.Join(dir, "backup-staging"))
}

func TestRotateOldBackupsKeepsNewest(t *testing.T) {
	db, dir := testDB(t)
	store := newFakeStore()
	for _, day := range []string{"20", "21", "22", "23", "24"} {
		store.objects = append(store.objects, types.Object{
			Key:  aws.String("nightshift-backup-2026-08-" + day + "-223000.tar.gz"),
			Size: aws.Int64(1024),
		})
	}

	svc := NewBackupService(db, store, dir, 3, zerolog.Nop())
	require.NoError(t, svc.RotateOldBackups(context.Background()))

	assert.ElementsMatch(t, []string{
		"nightshift-backup-2026-08-20-223000.tar.gz",
		"nightshift-backup-2026-08-21-223000.tar.gz",
	}, store.deleted)
}

func TestRotateOldBackupsZeroRetentionKeepsAll(t *testing.T) {
	db, dir := testDB(t)
	store := newFakeStore()
	store.objects = append(store.objects, types.Object{
		Key:  aws.String("nightshift-backup-2026-08-20-223000.tar.gz"),
		Size: aws.Int64(1024),
	})

	svc := NewBackupService(db, store, dir, 0, zerolog.Nop())
	require.NoError(t, svc.RotateOldBackups(context.Background()))
	assert.Empty(t, store.deleted)
}

func TestListBackupsSkipsForeignKeys(t *testing.T) {
	db, dir := testDB(t)
	store := newFakeStore()
	store.objects = []types.Object{
		{Key: aws.String("nightshift-backup-2026-08-24-223000.tar.gz"), Size: aws.Int64(10)},
		{Key: aws.String("nightshift-backup-not-a-timestamp.tar.gz"), Size: aws.Int64(10)},
	}

	svc := NewBackupService(db, store, dir, 3, zerolog.Nop())
	backups, err := svc.ListBackups(context.Background())
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Equal(t, "nightshift-backup-2026-08-24-223000.tar.gz", backups[0].Key)
}
