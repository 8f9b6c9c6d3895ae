package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigilai/vigil-core/internal/data"
)

func TestKindForFile(t *testing.T) {
	tests := []struct {
		fileName string
		want     string
		ok       bool
	}{
		{"clip.mp4", data.MediaKindVideo, true},
		{"clip.AVI", data.MediaKindVideo, true},
		{"clip.mov", data.MediaKindVideo, true},
		{"clip.mkv", data.MediaKindVideo, true},
		{"shot.jpg", data.MediaKindImage, true},
		{"shot.JPEG", data.MediaKindImage, true},
		{"shot.png", data.MediaKindImage, true},
		{"doc.pdf", "", false},
		{"archive.zip", "", false},
		{"noextension", "", false},
	}

	for _, tc := range tests {
		t.Run(tc.fileName, func(t *testing.T) {
			kind, err := KindForFile(tc.fileName)
			if tc.ok {
				require.NoError(t, err)
				assert.Equal(t, tc.want, kind)
			} else {
				assert.ErrorIs(t, err, ErrUnsupportedMediaKind)
			}
		})
	}
}

type fakeCameras struct {
	known map[uuid.UUID]bool
}

func (f *fakeCameras) GetByID(_ context.Context, id uuid.UUID) (*data.Camera, error) {
	if !f.known[id] {
		return nil, data.ErrRecordNotFound
	}
	return &data.Camera{ID: id}, nil
}

type fakeAssets struct {
	created []*data.MediaAsset
}

func (f *fakeAssets) GetByID(_ context.Context, id uuid.UUID) (*data.MediaAsset, error) {
	for _, a := range f.created {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, data.ErrRecordNotFound
}

func (f *fakeAssets) Create(_ context.Context, a *data.MediaAsset) error {
	a.ID = uuid.New()
	a.Status = data.MediaStatusPending
	f.created = append(f.created, a)
	return nil
}

func (f *fakeAssets) Delete(_ context.Context, id uuid.UUID) error {
	for i, a := range f.created {
		if a.ID == id {
			f.created = append(f.created[:i], f.created[i+1:]...)
			return nil
		}
	}
	return data.ErrRecordNotFound
}

type fakePutter struct {
	keys    []string
	deleted []string
	err     error
}

func (f *fakePutter) Put(_ context.Context, fileName, _ string, _ io.Reader) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	key := uuid.New().String() + "-" + fileName
	f.keys = append(f.keys, key)
	return key, nil
}

func (f *fakePutter) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

type fakePurger struct{ purged []uuid.UUID }

func (f *fakePurger) DeleteByMedia(_ context.Context, id uuid.UUID) error {
	f.purged = append(f.purged, id)
	return nil
}

type fakeQueue struct {
	enqueued []uuid.UUID
	err      error
}

func (f *fakeQueue) Enqueue(_ context.Context, id uuid.UUID) error {
	if f.err != nil {
		return f.err
	}
	f.enqueued = append(f.enqueued, id)
	return nil
}

func TestIngestHappyPath(t *testing.T) {
	camID := uuid.New()
	cams := &fakeCameras{known: map[uuid.UUID]bool{camID: true}}
	assets := &fakeAssets{}
	blobs := &fakePutter{}
	queue := &fakeQueue{}
	svc := NewService(cams, assets, blobs, queue, &fakePurger{}, &fakePurger{})

	asset, err := svc.Ingest(context.Background(), camID, "incident.mp4", "video/mp4", bytes.NewReader([]byte("data")))
	require.NoError(t, err)

	assert.Equal(t, data.MediaKindVideo, asset.Kind)
	assert.Equal(t, data.MediaStatusPending, asset.Status)
	assert.Equal(t, camID, asset.CameraID)
	assert.NotEmpty(t, asset.StorageKey)

	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, asset.ID, queue.enqueued[0])
}

func TestIngestUnsupportedExtensionRejectedEarly(t *testing.T) {
	blobs := &fakePutter{}
	queue := &fakeQueue{}
	svc := NewService(&fakeCameras{}, &fakeAssets{}, blobs, queue, &fakePurger{}, &fakePurger{})

	_, err := svc.Ingest(context.Background(), uuid.New(), "malware.exe", "", bytes.NewReader(nil))
	require.ErrorIs(t, err, ErrUnsupportedMediaKind)

	// Nothing stored, nothing queued.
	assert.Empty(t, blobs.keys)
	assert.Empty(t, queue.enqueued)
}

func TestIngestUnknownCamera(t *testing.T) {
	blobs := &fakePutter{}
	svc := NewService(&fakeCameras{known: map[uuid.UUID]bool{}}, &fakeAssets{}, blobs, &fakeQueue{}, &fakePurger{}, &fakePurger{})

	_, err := svc.Ingest(context.Background(), uuid.New(), "clip.mp4", "video/mp4", bytes.NewReader(nil))
	require.ErrorIs(t, err, ErrCameraNotFound)
	assert.Empty(t, blobs.keys)
}

func TestRemoveDeletesRowsAndBlob(t *testing.T) {
	assets := &fakeAssets{}
	blobs := &fakePutter{}
	detections := &fakePurger{}
	alertRows := &fakePurger{}
	svc := NewService(&fakeCameras{}, assets, blobs, &fakeQueue{}, detections, alertRows)

	asset := &data.MediaAsset{StorageKey: "abc.mp4"}
	require.NoError(t, assets.Create(context.Background(), asset))
	asset.Status = data.MediaStatusCompleted

	require.NoError(t, svc.Remove(context.Background(), asset.ID))

	assert.Empty(t, assets.created)
	assert.Equal(t, []uuid.UUID{asset.ID}, detections.purged)
	assert.Equal(t, []uuid.UUID{asset.ID}, alertRows.purged)
	assert.Equal(t, []string{"abc.mp4"}, blobs.deleted)
}

func TestRemoveRefusesProcessingAsset(t *testing.T) {
	assets := &fakeAssets{}
	blobs := &fakePutter{}
	svc := NewService(&fakeCameras{}, assets, blobs, &fakeQueue{}, &fakePurger{}, &fakePurger{})

	asset := &data.MediaAsset{}
	require.NoError(t, assets.Create(context.Background(), asset))
	asset.Status = data.MediaStatusProcessing

	err := svc.Remove(context.Background(), asset.ID)
	require.ErrorIs(t, err, ErrAssetProcessing)
	assert.Len(t, assets.created, 1)
	assert.Empty(t, blobs.deleted)
}

func TestRemoveUnknownAsset(t *testing.T) {
	svc := NewService(&fakeCameras{}, &fakeAssets{}, &fakePutter{}, &fakeQueue{}, &fakePurger{}, &fakePurger{})
	err := svc.Remove(context.Background(), uuid.New())
	require.ErrorIs(t, err, data.ErrRecordNotFound)
}

func TestIngestEnqueueFailureSurfaces(t *testing.T) {
	camID := uuid.New()
	cams := &fakeCameras{known: map[uuid.UUID]bool{camID: true}}
	queue := &fakeQueue{err: errors.New("nats down")}
	svc := NewService(cams, &fakeAssets{}, &fakePutter{}, queue, &fakePurger{}, &fakePurger{})

	_, err := svc.Ingest(context.Background(), camID, "clip.mp4", "video/mp4", bytes.NewReader(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nats down")
}
