package media

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/yazid-hub/GMOA/internal/auth"
	"github.com/yazid-hub/GMOA/internal/blob"
	"github.com/yazid-hub/GMOA/internal/clock"
	"github.com/yazid-hub/GMOA/internal/config"
	"github.com/yazid-hub/GMOA/internal/db"
	"github.com/yazid-hub/GMOA/internal/gmaoerr"
	"github.com/yazid-hub/GMOA/internal/models"
	"github.com/yazid-hub/GMOA/internal/report"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	tech     = auth.Actor{ID: "tech", Role: auth.RoleTechnician}
	outsider = auth.Actor{ID: "other", Role: auth.RoleTechnician}
)

func TestCheck(t *testing.T) {
	p := &models.CheckPoint{
		ID: 7, CanPhoto: true, CanFiles: true, MaxFileSizeMB: 1,
		AllowedFileTypes: datatypes.JSONSlice[string]{"jpg", "pdf"},
	}
	tests := []struct {
		name string
		kind string
		file string
		size int64
		ok   bool
	}{
		{"photo accepted", models.MediaPhoto, "pompe.jpg", 1000, true},
		{"extension is case-insensitive", models.MediaPhoto, "POMPE.JPG", 1000, true},
		{"document accepted", models.MediaDocument, "rapport.pdf", 1000, true},
		{"unknown size skips limit", models.MediaDocument, "rapport.pdf", -1, true},
		{"audio disabled", models.MediaAudio, "note.jpg", 10, false},
		{"extension not allowed", models.MediaPhoto, "pompe.png", 10, false},
		{"no extension", models.MediaPhoto, "pompe", 10, false},
		{"too large", models.MediaPhoto, "pompe.jpg", 2 << 20, false},
		{"unknown kind", "Hologram", "x.jpg", 10, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(p, tt.kind, tt.file, tt.size)
			if tt.ok && err != nil {
				t.Errorf("Check: %v", err)
			}
			if !tt.ok {
				var rejected *gmaoerr.MediaRejectedError
				if !errors.As(err, &rejected) {
					t.Errorf("err = %v, want MediaRejectedError", err)
				}
			}
		})
	}
}

func TestCheck_EmptyWhitelistAcceptsAnyExtension(t *testing.T) {
	p := &models.CheckPoint{ID: 1, CanVideo: true, MaxFileSizeMB: 10}
	if err := Check(p, models.MediaVideo, "clip.MOV", 100); err != nil {
		t.Errorf("Check: %v", err)
	}
}

type fixture struct {
	db     *gorm.DB
	svc    *Service
	root   string
	answer *models.Answer
	report *models.ExecutionReport
}

func setup(t *testing.T, store blob.Store) *fixture {
	t.Helper()
	gdb, err := db.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	root := t.TempDir()
	if store == nil {
		ds, err := blob.NewDirStore(root)
		if err != nil {
			t.Fatalf("NewDirStore: %v", err)
		}
		store = ds
	}

	point := models.CheckPoint{
		OperationID: 1, TemplateID: "tpl", Label: "Photo pompe", FieldType: models.FieldText, Order: 1,
		CanPhoto: true, MaxFileSizeMB: 1, AllowedFileTypes: datatypes.JSONSlice[string]{"jpg"},
		Options: datatypes.JSONSlice[string]{},
	}
	if err := gdb.Create(&point).Error; err != nil {
		t.Fatalf("create point: %v", err)
	}
	assignee := tech.ID
	wo := models.WorkOrder{ID: "wo-1", Title: "Inspection", TemplateID: "tpl", AssetID: "P-101", Status: "InProgress", AssignedTechnician: &assignee}
	if err := gdb.Create(&wo).Error; err != nil {
		t.Fatalf("create work order: %v", err)
	}
	rep, err := report.Ensure(gdb, wo.ID, tech.ID)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	ans := models.Answer{ReportID: rep.ID, CheckPointID: point.ID, Value: "ok", AnsweredBy: tech.ID}
	if err := gdb.Create(&ans).Error; err != nil {
		t.Fatalf("create answer: %v", err)
	}

	clk := clock.NewFixed(time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC))
	svc := NewService(gdb, auth.NewGate(nil), store, clk, config.WorkflowConfig{Statuses: config.DefaultStatuses()}, nil)
	return &fixture{db: gdb, svc: svc, root: root, answer: &ans, report: rep}
}

func TestAttach_StoresBlobAndMetadata(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	content := []byte("jpeg bytes")

	att, err := f.svc.Attach(ctx, tech, f.answer.ID, Upload{
		Kind: models.MediaPhoto, Name: "Pompe.JPG", Caption: "joint", Size: int64(len(content)), Body: bytes.NewReader(content),
	})
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	sum := sha256.Sum256(content)
	if att.SHA256 != hex.EncodeToString(sum[:]) {
		t.Errorf("sha256 = %s", att.SHA256)
	}
	if att.SizeBytes != int64(len(content)) || !strings.HasSuffix(att.StorageKey, ".jpg") {
		t.Errorf("attachment = %+v", att)
	}
	if _, err := os.Stat(filepath.Join(f.root, filepath.FromSlash(att.StorageKey))); err != nil {
		t.Errorf("blob missing: %v", err)
	}

	got, rc, err := f.svc.Open(ctx, att.ID)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if got.OriginalName != "Pompe.JPG" || !bytes.Equal(data, content) {
		t.Errorf("Open = %q %q", got.OriginalName, data)
	}
}

func TestAttach_Rejections(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()

	tests := []struct {
		name  string
		actor auth.Actor
		up    Upload
		want  error
	}{
		{"kind disabled", tech, Upload{Kind: models.MediaAudio, Name: "a.jpg", Size: 1, Body: strings.NewReader("x")}, gmaoerr.ErrValidation},
		{"wrong extension", tech, Upload{Kind: models.MediaPhoto, Name: "a.png", Size: 1, Body: strings.NewReader("x")}, gmaoerr.ErrValidation},
		{"declared too large", tech, Upload{Kind: models.MediaPhoto, Name: "a.jpg", Size: 5 << 20, Body: strings.NewReader("x")}, gmaoerr.ErrValidation},
		{"streamed too large", tech, Upload{Kind: models.MediaPhoto, Name: "a.jpg", Size: -1, Body: bytes.NewReader(make([]byte, 2<<20))}, gmaoerr.ErrValidation},
		{"not assigned", outsider, Upload{Kind: models.MediaPhoto, Name: "a.jpg", Size: 1, Body: strings.NewReader("x")}, gmaoerr.ErrPermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Attach(ctx, tt.actor, f.answer.ID, tt.up)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	var count int64
	f.db.Model(&models.MediaAttachment{}).Count(&count)
	if count != 0 {
		t.Errorf("attachments = %d, want 0", count)
	}
	if leftovers := countFiles(t, f.root); leftovers != 0 {
		t.Errorf("blobs left behind = %d", leftovers)
	}
}

func TestAttach_FrozenReport(t *testing.T) {
	f := setup(t, nil)
	if err := report.MarkFinalized(f.db, f.report.ID, time.Now()); err != nil {
		t.Fatalf("MarkFinalized: %v", err)
	}
	_, err := f.svc.Attach(context.Background(), tech, f.answer.ID, Upload{
		Kind: models.MediaPhoto, Name: "a.jpg", Size: 1, Body: strings.NewReader("x"),
	})
	if !errors.Is(err, gmaoerr.ErrState) {
		t.Errorf("err = %v, want ErrState", err)
	}
}

// failingStore accepts writes and records deletes.
type failingStore struct {
	blob.Store
	deleted []string
}

func (s *failingStore) Delete(ctx context.Context, key string) error {
	s.deleted = append(s.deleted, key)
	return s.Store.Delete(ctx, key)
}

func TestAttach_MetadataFailureRemovesBlob(t *testing.T) {
	ds, err := blob.NewDirStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDirStore: %v", err)
	}
	store := &failingStore{Store: ds}
	f := setup(t, store)
	if err := f.db.Migrator().DropTable(&models.MediaAttachment{}); err != nil {
		t.Fatalf("drop table: %v", err)
	}

	_, err = f.svc.Attach(context.Background(), tech, f.answer.ID, Upload{
		Kind: models.MediaPhoto, Name: "a.jpg", Size: 1, Body: strings.NewReader("x"),
	})
	if err == nil {
		t.Fatal("Attach should fail without the metadata table")
	}
	if len(store.deleted) != 1 {
		t.Errorf("deleted = %v, want the uploaded key", store.deleted)
	}
}

func TestRemove(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	att, err := f.svc.Attach(ctx, tech, f.answer.ID, Upload{
		Kind: models.MediaPhoto, Name: "a.jpg", Size: 1, Body: strings.NewReader("x"),
	})
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if err := f.svc.Remove(ctx, outsider, att.ID); !errors.Is(err, gmaoerr.ErrPermissionDenied) {
		t.Errorf("Remove by outsider: err = %v, want ErrPermissionDenied", err)
	}
	if err := f.svc.Remove(ctx, tech, att.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	list, err := f.svc.List(ctx, f.answer.ID)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("List = %v, want empty", list)
	}
	if n := countFiles(t, f.root); n != 0 {
		t.Errorf("files = %d, want 0", n)
	}
	if _, _, err := f.svc.Open(ctx, att.ID); !errors.Is(err, gmaoerr.ErrNotFound) {
		t.Errorf("Open removed: err = %v, want ErrNotFound", err)
	}
}

func countFiles(t *testing.T, root string) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(root, func(_ string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			n++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	return n
}
