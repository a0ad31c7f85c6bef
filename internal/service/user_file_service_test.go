package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/bitfantasy/approveflow/internal/config"
	"github.com/bitfantasy/approveflow/internal/model/entity"
	"github.com/bitfantasy/approveflow/internal/repository"
	"github.com/bitfantasy/approveflow/internal/storage"
	"github.com/bitfantasy/approveflow/internal/testutil"
	"go.uber.org/zap"
)

func newFileTestEnv(t *testing.T, limits config.LimitsConfig) (*UserFileService, *ApprovalService, *repository.Repositories, string) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	logger := zap.NewNop()
	quota := NewQuotaGuard(limits)
	audit := NewAuditLogService(repos.AuditLog, logger)
	root := t.TempDir()
	store := storage.NewDiskStore(root)
	fileSvc := NewUserFileService(db, repos, quota, store, audit, logger)
	approvalSvc := NewApprovalService(db, repos, quota, audit, &recordingNotifier{}, nil, logger)
	return fileSvc, approvalSvc, repos, root
}

func upload(name, content string) FileUpload {
	return FileUpload{
		Name:        name,
		Size:        int64(len(content)),
		ContentType: "application/octet-stream",
		Reader:      strings.NewReader(content),
	}
}

func TestUploadStoresRecordAndBytes(t *testing.T) {
	svc, _, _, root := newFileTestEnv(t, defaultLimits())
	ctx := context.Background()
	owner := entity.NewActor("owner-001", "alice@example.com")

	files, err := svc.Upload(ctx, owner, []FileUpload{
		upload("report.pdf", "pdf bytes"),
		upload("notes.txt", "some notes"),
	})
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("Expected 2 files, got %d", len(files))
	}
	if files[0].Type != ".pdf" || files[1].Type != ".txt" {
		t.Errorf("Unexpected file types %s, %s", files[0].Type, files[1].Type)
	}

	// Bytes land under root/{owner}/{fileID}/{name}
	path := filepath.Join(root, owner.ID, strconv.FormatInt(files[0].ID, 10), "report.pdf")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Expected stored bytes at %s: %v", path, err)
	}
	if string(data) != "pdf bytes" {
		t.Errorf("Unexpected content %q", data)
	}

	listed, err := svc.List(ctx, owner)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(listed) != 2 || listed[0].ID != files[1].ID {
		t.Errorf("Expected newest-first listing, got %+v", listed)
	}
}

func TestUploadQuotaLimits(t *testing.T) {
	limits := defaultLimits()
	limits.MaxFileCount = 2
	limits.MaxFileSizeBytes = 10
	svc, _, _, _ := newFileTestEnv(t, limits)
	ctx := context.Background()
	owner := entity.NewActor("owner-001", "alice@example.com")

	// Oversized file is rejected before anything is written
	_, err := svc.Upload(ctx, owner, []FileUpload{upload("big.bin", "0123456789ab")})
	if !IsValidationError(err) {
		t.Fatalf("Expected ValidationError for oversized file, got %v", err)
	}

	// Filling up to the ceiling succeeds
	if _, err := svc.Upload(ctx, owner, []FileUpload{
		upload("a.txt", "aa"),
		upload("b.txt", "bb"),
	}); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	// At the ceiling the next upload fails, and the batch fails whole
	_, err = svc.Upload(ctx, owner, []FileUpload{upload("c.txt", "cc")})
	if !IsValidationError(err) {
		t.Fatalf("Expected ValidationError at quota ceiling, got %v", err)
	}

	listed, err := svc.List(ctx, owner)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(listed) != 2 {
		t.Errorf("Expected 2 files after rejected upload, got %d", len(listed))
	}
}

func TestDownloadAccessControl(t *testing.T) {
	svc, approvalSvc, _, _ := newFileTestEnv(t, defaultLimits())
	ctx := context.Background()

	owner := entity.NewActor("owner-001", "alice@example.com")
	approver := entity.NewActor("approver-b", "b@x.com")
	stranger := entity.NewActor("stranger-001", "mallory@x.com")

	files, err := svc.Upload(ctx, owner, []FileUpload{upload("secret.pdf", "classified")})
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	fileID := files[0].ID

	// Owner can always read
	file, rc, err := svc.Download(ctx, owner, fileID)
	if err != nil {
		t.Fatalf("Owner download failed: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if file.Name != "secret.pdf" || !bytes.Equal(data, []byte("classified")) {
		t.Errorf("Unexpected download %s %q", file.Name, data)
	}

	// Before any approval request exists, the approver is just a stranger
	if _, _, err := svc.Download(ctx, approver, fileID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound before request, got %v", err)
	}

	request, err := approvalSvc.Submit(ctx, owner, SubmitRequest{
		UserFileIDs: []int64{fileID},
		Emails:      []string{"b@x.com"},
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	// Pending task grants read access
	if _, rc, err := svc.Download(ctx, approver, fileID); err != nil {
		t.Fatalf("Approver download failed: %v", err)
	} else {
		rc.Close()
	}

	// Access survives task completion
	if err := approvalSvc.CompleteTask(ctx, approver, CompleteTaskRequest{
		ID:     request.Tasks[0].ID,
		Status: entity.ApprovalStatusApproved,
	}); err != nil {
		t.Fatalf("CompleteTask failed: %v", err)
	}
	if _, rc, err := svc.Download(ctx, approver, fileID); err != nil {
		t.Fatalf("Approver download after completion failed: %v", err)
	} else {
		rc.Close()
	}

	// A stranger and a nonexistent file are indistinguishable
	errStranger := func() error { _, _, err := svc.Download(ctx, stranger, fileID); return err }()
	errMissing := func() error { _, _, err := svc.Download(ctx, stranger, 99999); return err }()
	if !errors.Is(errStranger, repository.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for stranger, got %v", errStranger)
	}
	if !errors.Is(errMissing, repository.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for missing file, got %v", errMissing)
	}
}

func TestDeleteOwnerOnly(t *testing.T) {
	svc, approvalSvc, _, root := newFileTestEnv(t, defaultLimits())
	ctx := context.Background()

	owner := entity.NewActor("owner-001", "alice@example.com")
	stranger := entity.NewActor("stranger-001", "mallory@x.com")

	files, err := svc.Upload(ctx, owner, []FileUpload{upload("doc.pdf", "bytes")})
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	fileID := files[0].ID

	if err := svc.Delete(ctx, stranger, fileID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound for foreign delete, got %v", err)
	}

	// The file is deletable even while referenced by a pending request
	if _, err := approvalSvc.Submit(ctx, owner, SubmitRequest{
		UserFileIDs: []int64{fileID},
		Emails:      []string{"b@x.com"},
	}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if err := svc.Delete(ctx, owner, fileID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, _, err := svc.Download(ctx, owner, fileID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("Expected file gone, got %v", err)
	}
	path := filepath.Join(root, owner.ID, strconv.FormatInt(fileID, 10), "doc.pdf")
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("Expected stored bytes removed at %s", path)
	}
}
