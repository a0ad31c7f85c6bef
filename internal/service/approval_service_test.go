package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bitfantasy/approveflow/internal/config"
	"github.com/bitfantasy/approveflow/internal/model/entity"
	"github.com/bitfantasy/approveflow/internal/repository"
	"github.com/bitfantasy/approveflow/internal/testutil"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// recordingNotifier captures notifications for assertions
type recordingNotifier struct {
	mu       sync.Mutex
	created  []notification
	deleted  []notification
	reviewed []notification
}

type notification struct {
	To        string
	From      string
	FileNames []string
}

func (n *recordingNotifier) RequestCreated(to, from string, fileNames []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created = append(n.created, notification{to, from, fileNames})
}

func (n *recordingNotifier) RequestDeleted(to, from string, fileNames []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deleted = append(n.deleted, notification{to, from, fileNames})
}

func (n *recordingNotifier) RequestReviewed(to, reviewer string, fileNames []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reviewed = append(n.reviewed, notification{to, reviewer, fileNames})
}

// waitFor polls until cond is true or the deadline passes.
// Notifications are dispatched on goroutines after commit.
func (n *recordingNotifier) waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		n.mu.Lock()
		ok := cond()
		n.mu.Unlock()
		if ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("Timed out waiting for notification")
}

func defaultLimits() config.LimitsConfig {
	return config.LimitsConfig{
		MaxFileCount:            10,
		MaxFileSizeBytes:        4194304,
		MaxApprovalRequestCount: 10,
		MaxApproverCount:        10,
	}
}

func newApprovalTestEnv(t *testing.T, limits config.LimitsConfig) (*ApprovalService, *repository.Repositories, *recordingNotifier, *gorm.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	logger := zap.NewNop()
	notifier := &recordingNotifier{}
	quota := NewQuotaGuard(limits)
	audit := NewAuditLogService(repos.AuditLog, logger)
	svc := NewApprovalService(db, repos, quota, audit, notifier, nil, logger)
	return svc, repos, notifier, db
}

func seedFile(t *testing.T, repos *repository.Repositories, ownerID, name string) *entity.UserFile {
	t.Helper()
	file := &entity.UserFile{
		Name:    name,
		Type:    ".pdf",
		Size:    42,
		Created: time.Now().UTC(),
		OwnerID: ownerID,
	}
	if err := repos.UserFile.Create(context.Background(), file); err != nil {
		t.Fatalf("Failed to seed file: %v", err)
	}
	return file
}

func TestDeriveRequestStatus(t *testing.T) {
	task := func(s entity.ApprovalStatus) entity.ApprovalRequestTask {
		return entity.ApprovalRequestTask{Status: s}
	}

	cases := []struct {
		name  string
		tasks []entity.ApprovalRequestTask
		want  entity.ApprovalStatus
	}{
		{"all pending", []entity.ApprovalRequestTask{task(entity.ApprovalStatusSubmitted), task(entity.ApprovalStatusSubmitted)}, entity.ApprovalStatusSubmitted},
		{"one approved one pending", []entity.ApprovalRequestTask{task(entity.ApprovalStatusApproved), task(entity.ApprovalStatusSubmitted)}, entity.ApprovalStatusSubmitted},
		{"all approved", []entity.ApprovalRequestTask{task(entity.ApprovalStatusApproved), task(entity.ApprovalStatusApproved)}, entity.ApprovalStatusApproved},
		{"single approved", []entity.ApprovalRequestTask{task(entity.ApprovalStatusApproved)}, entity.ApprovalStatusApproved},
		{"one rejected wins", []entity.ApprovalRequestTask{task(entity.ApprovalStatusApproved), task(entity.ApprovalStatusRejected), task(entity.ApprovalStatusSubmitted)}, entity.ApprovalStatusRejected},
		{"rejected beats all approved", []entity.ApprovalRequestTask{task(entity.ApprovalStatusApproved), task(entity.ApprovalStatusRejected)}, entity.ApprovalStatusRejected},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := deriveRequestStatus(tc.tasks); got != tc.want {
				t.Errorf("deriveRequestStatus() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestSubmitCreatesRequestWithTasks(t *testing.T) {
	svc, repos, notifier, _ := newApprovalTestEnv(t, defaultLimits())
	ctx := context.Background()

	author := entity.NewActor("author-001", "alice@example.com")
	file := seedFile(t, repos, author.ID, "contract.pdf")

	request, err := svc.Submit(ctx, author, SubmitRequest{
		UserFileIDs: []int64{file.ID},
		Emails:      []string{"b@x.com", "c@x.com"},
		Comment:     "please review",
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if request.ID == 0 {
		t.Error("Expected non-zero request id")
	}
	if request.Status != entity.ApprovalStatusSubmitted {
		t.Errorf("Expected status submitted, got %s", request.Status)
	}
	if request.Author != "ALICE@EXAMPLE.COM" {
		t.Errorf("Expected normalized author, got %s", request.Author)
	}
	if len(request.Tasks) != 2 {
		t.Fatalf("Expected 2 tasks, got %d", len(request.Tasks))
	}
	for _, task := range request.Tasks {
		if task.Status != entity.ApprovalStatusSubmitted {
			t.Errorf("Expected task status submitted, got %s", task.Status)
		}
		if task.Completed != nil {
			t.Error("Expected no completion timestamp on a pending task")
		}
	}
	if request.Tasks[0].Approver != "B@X.COM" || request.Tasks[1].Approver != "C@X.COM" {
		t.Errorf("Expected normalized approvers, got %s, %s", request.Tasks[0].Approver, request.Tasks[1].Approver)
	}

	// Both approvers get notified with the file name list
	notifier.waitFor(t, func() bool { return len(notifier.created) == 2 })
	if notifier.created[0].To != "b@x.com" || notifier.created[0].From != "alice@example.com" {
		t.Errorf("Unexpected notification %+v", notifier.created[0])
	}
	if len(notifier.created[0].FileNames) != 1 || notifier.created[0].FileNames[0] != "contract.pdf" {
		t.Errorf("Unexpected file names %v", notifier.created[0].FileNames)
	}
}

func TestSubmitDuplicateApproversGetDuplicateTasks(t *testing.T) {
	svc, repos, _, _ := newApprovalTestEnv(t, defaultLimits())
	ctx := context.Background()

	author := entity.NewActor("author-001", "alice@example.com")
	file := seedFile(t, repos, author.ID, "doc.pdf")

	request, err := svc.Submit(ctx, author, SubmitRequest{
		UserFileIDs: []int64{file.ID},
		Emails:      []string{"b@x.com", "B@X.COM"},
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if len(request.Tasks) != 2 {
		t.Fatalf("Expected duplicate approvers to get duplicate tasks, got %d", len(request.Tasks))
	}
	if request.Tasks[0].Approver != "B@X.COM" || request.Tasks[1].Approver != "B@X.COM" {
		t.Errorf("Expected both tasks for B@X.COM, got %s, %s", request.Tasks[0].Approver, request.Tasks[1].Approver)
	}
}

func TestSubmitRejectsForeignOrMissingFiles(t *testing.T) {
	svc, repos, _, _ := newApprovalTestEnv(t, defaultLimits())
	ctx := context.Background()

	author := entity.NewActor("author-001", "alice@example.com")
	other := entity.NewActor("other-001", "mallory@example.com")
	ownFile := seedFile(t, repos, author.ID, "mine.pdf")
	foreignFile := seedFile(t, repos, other.ID, "theirs.pdf")

	// Partial ownership mismatch is a full failure
	_, err := svc.Submit(ctx, author, SubmitRequest{
		UserFileIDs: []int64{ownFile.ID, foreignFile.ID},
		Emails:      []string{"b@x.com"},
	})
	if !IsValidationError(err) {
		t.Fatalf("Expected ValidationError for foreign file, got %v", err)
	}

	// Nonexistent file id fails the same way
	_, err = svc.Submit(ctx, author, SubmitRequest{
		UserFileIDs: []int64{ownFile.ID, 99999},
		Emails:      []string{"b@x.com"},
	})
	if !IsValidationError(err) {
		t.Fatalf("Expected ValidationError for missing file, got %v", err)
	}

	// Nothing got persisted
	count, err := repos.Approval.CountByAuthor(ctx, author.NormalizedEmail)
	if err != nil {
		t.Fatalf("CountByAuthor failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected no requests after failed submissions, got %d", count)
	}
}

func TestSubmitQuotaLimits(t *testing.T) {
	limits := defaultLimits()
	limits.MaxApprovalRequestCount = 2
	limits.MaxApproverCount = 2
	svc, repos, _, _ := newApprovalTestEnv(t, limits)
	ctx := context.Background()

	author := entity.NewActor("author-001", "alice@example.com")
	file := seedFile(t, repos, author.ID, "doc.pdf")

	// Too many approvers
	_, err := svc.Submit(ctx, author, SubmitRequest{
		UserFileIDs: []int64{file.ID},
		Emails:      []string{"a@x.com", "b@x.com", "c@x.com"},
	})
	if !IsValidationError(err) {
		t.Fatalf("Expected ValidationError for approver count, got %v", err)
	}

	// count == MAX-1 succeeds and brings count to MAX
	for i := 0; i < 2; i++ {
		if _, err := svc.Submit(ctx, author, SubmitRequest{
			UserFileIDs: []int64{file.ID},
			Emails:      []string{"b@x.com"},
		}); err != nil {
			t.Fatalf("Submit %d failed: %v", i+1, err)
		}
	}

	// count == MAX fails
	_, err = svc.Submit(ctx, author, SubmitRequest{
		UserFileIDs: []int64{file.ID},
		Emails:      []string{"b@x.com"},
	})
	if !IsValidationError(err) {
		t.Fatalf("Expected ValidationError at quota ceiling, got %v", err)
	}

	// Completion never frees quota, only deletion does
	requests, err := svc.List(ctx, author)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if err := svc.Delete(ctx, author, requests[0].ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := svc.Submit(ctx, author, SubmitRequest{
		UserFileIDs: []int64{file.ID},
		Emails:      []string{"b@x.com"},
	}); err != nil {
		t.Fatalf("Submit after delete failed: %v", err)
	}
}

func TestCompleteTaskAllApproved(t *testing.T) {
	svc, repos, notifier, _ := newApprovalTestEnv(t, defaultLimits())
	ctx := context.Background()

	author := entity.NewActor("author-001", "alice@example.com")
	approverB := entity.NewActor("approver-b", "b@x.com")
	approverC := entity.NewActor("approver-c", "c@x.com")
	file := seedFile(t, repos, author.ID, "doc.pdf")

	request, err := svc.Submit(ctx, author, SubmitRequest{
		UserFileIDs: []int64{file.ID},
		Emails:      []string{"b@x.com", "c@x.com"},
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	// B approves: one task still pending, request stays submitted
	if err := svc.CompleteTask(ctx, approverB, CompleteTaskRequest{
		ID:     request.Tasks[0].ID,
		Status: entity.ApprovalStatusApproved,
	}); err != nil {
		t.Fatalf("CompleteTask failed: %v", err)
	}

	reloaded, err := repos.Approval.FindByIDForAuthor(ctx, request.ID, author.NormalizedEmail)
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if reloaded.Status != entity.ApprovalStatusSubmitted {
		t.Errorf("Expected request to stay submitted, got %s", reloaded.Status)
	}

	// C approves: all tasks done, request becomes approved
	if err := svc.CompleteTask(ctx, approverC, CompleteTaskRequest{
		ID:      request.Tasks[1].ID,
		Status:  entity.ApprovalStatusApproved,
		Comment: "looks good",
	}); err != nil {
		t.Fatalf("CompleteTask failed: %v", err)
	}

	reloaded, err = repos.Approval.FindByIDForAuthor(ctx, request.ID, author.NormalizedEmail)
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if reloaded.Status != entity.ApprovalStatusApproved {
		t.Errorf("Expected request approved, got %s", reloaded.Status)
	}
	for _, task := range reloaded.Tasks {
		if task.Status != entity.ApprovalStatusApproved {
			t.Errorf("Expected task approved, got %s", task.Status)
		}
		if task.Completed == nil {
			t.Error("Expected completion timestamp on a completed task")
		}
	}

	// Author got notified per completion
	notifier.waitFor(t, func() bool { return len(notifier.reviewed) == 2 })
	if notifier.reviewed[0].To != "alice@example.com" {
		t.Errorf("Expected review notification to author, got %s", notifier.reviewed[0].To)
	}
}

func TestCompleteTaskFirstRejectionWins(t *testing.T) {
	svc, repos, _, _ := newApprovalTestEnv(t, defaultLimits())
	ctx := context.Background()

	author := entity.NewActor("author-001", "alice@example.com")
	approverB := entity.NewActor("approver-b", "b@x.com")
	approverC := entity.NewActor("approver-c", "c@x.com")
	file := seedFile(t, repos, author.ID, "doc.pdf")

	request, err := svc.Submit(ctx, author, SubmitRequest{
		UserFileIDs: []int64{file.ID},
		Emails:      []string{"b@x.com", "c@x.com"},
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	// B rejects: request rejected immediately
	if err := svc.CompleteTask(ctx, approverB, CompleteTaskRequest{
		ID:      request.Tasks[0].ID,
		Status:  entity.ApprovalStatusRejected,
		Comment: "missing signature",
	}); err != nil {
		t.Fatalf("CompleteTask failed: %v", err)
	}

	reloaded, err := repos.Approval.FindByIDForAuthor(ctx, request.ID, author.NormalizedEmail)
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if reloaded.Status != entity.ApprovalStatusRejected {
		t.Errorf("Expected request rejected, got %s", reloaded.Status)
	}

	// C can still complete for record-keeping, request stays rejected
	if err := svc.CompleteTask(ctx, approverC, CompleteTaskRequest{
		ID:     request.Tasks[1].ID,
		Status: entity.ApprovalStatusApproved,
	}); err != nil {
		t.Fatalf("CompleteTask after rejection failed: %v", err)
	}

	reloaded, err = repos.Approval.FindByIDForAuthor(ctx, request.ID, author.NormalizedEmail)
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if reloaded.Status != entity.ApprovalStatusRejected {
		t.Errorf("Expected request to stay rejected, got %s", reloaded.Status)
	}
}

func TestCompleteTaskAlreadyCompleted(t *testing.T) {
	svc, repos, _, _ := newApprovalTestEnv(t, defaultLimits())
	ctx := context.Background()

	author := entity.NewActor("author-001", "alice@example.com")
	approverB := entity.NewActor("approver-b", "b@x.com")
	file := seedFile(t, repos, author.ID, "doc.pdf")

	request, err := svc.Submit(ctx, author, SubmitRequest{
		UserFileIDs: []int64{file.ID},
		Emails:      []string{"b@x.com"},
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	taskID := request.Tasks[0].ID
	if err := svc.CompleteTask(ctx, approverB, CompleteTaskRequest{
		ID:     taskID,
		Status: entity.ApprovalStatusApproved,
	}); err != nil {
		t.Fatalf("CompleteTask failed: %v", err)
	}

	// Any number of retries fails with the same validation error
	for i := 0; i < 3; i++ {
		err := svc.CompleteTask(ctx, approverB, CompleteTaskRequest{
			ID:     taskID,
			Status: entity.ApprovalStatusRejected,
		})
		if !IsValidationError(err) {
			t.Fatalf("Retry %d: expected ValidationError, got %v", i+1, err)
		}
	}

	// The rejection retries must not have flipped anything
	reloaded, err := repos.Approval.FindByIDForAuthor(ctx, request.ID, author.NormalizedEmail)
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if reloaded.Status != entity.ApprovalStatusApproved {
		t.Errorf("Expected request approved, got %s", reloaded.Status)
	}
}

func TestCompleteTaskAntiEnumeration(t *testing.T) {
	svc, repos, _, _ := newApprovalTestEnv(t, defaultLimits())
	ctx := context.Background()

	author := entity.NewActor("author-001", "alice@example.com")
	stranger := entity.NewActor("stranger-001", "d@x.com")
	file := seedFile(t, repos, author.ID, "doc.pdf")

	request, err := svc.Submit(ctx, author, SubmitRequest{
		UserFileIDs: []int64{file.ID},
		Emails:      []string{"b@x.com"},
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	// Someone else's task and a nonexistent task look identical
	errForeign := svc.CompleteTask(ctx, stranger, CompleteTaskRequest{
		ID:     request.Tasks[0].ID,
		Status: entity.ApprovalStatusApproved,
	})
	errMissing := svc.CompleteTask(ctx, stranger, CompleteTaskRequest{
		ID:     99999,
		Status: entity.ApprovalStatusApproved,
	})
	if !errors.Is(errForeign, repository.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for foreign task, got %v", errForeign)
	}
	if !errors.Is(errMissing, repository.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for missing task, got %v", errMissing)
	}
}

func TestCompleteTaskInvalidStatus(t *testing.T) {
	svc, _, _, _ := newApprovalTestEnv(t, defaultLimits())
	ctx := context.Background()

	approver := entity.NewActor("approver-b", "b@x.com")
	err := svc.CompleteTask(ctx, approver, CompleteTaskRequest{
		ID:     1,
		Status: entity.ApprovalStatusSubmitted,
	})
	if !IsValidationError(err) {
		t.Fatalf("Expected ValidationError for submitted outcome, got %v", err)
	}
}

func TestDeleteCascadesTasksAndKeepsFiles(t *testing.T) {
	svc, repos, notifier, db := newApprovalTestEnv(t, defaultLimits())
	ctx := context.Background()

	author := entity.NewActor("author-001", "alice@example.com")
	stranger := entity.NewActor("stranger-001", "d@x.com")
	file := seedFile(t, repos, author.ID, "keepme.pdf")

	request, err := svc.Submit(ctx, author, SubmitRequest{
		UserFileIDs: []int64{file.ID},
		Emails:      []string{"b@x.com", "c@x.com"},
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	// Not the author: identical not-found, request untouched
	if err := svc.Delete(ctx, stranger, request.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound for foreign delete, got %v", err)
	}

	if err := svc.Delete(ctx, author, request.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	// Request and tasks are gone
	if _, err := repos.Approval.FindByIDForAuthor(ctx, request.ID, author.NormalizedEmail); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("Expected request gone, got %v", err)
	}
	var taskCount int64
	db.Model(&entity.ApprovalRequestTask{}).Where("approval_request_id = ?", request.ID).Count(&taskCount)
	if taskCount != 0 {
		t.Errorf("Expected cascaded tasks, found %d", taskCount)
	}

	// The referenced file is untouched and still owned by the author
	kept, err := repos.UserFile.FindByID(ctx, file.ID)
	if err != nil {
		t.Fatalf("Expected file to survive, got %v", err)
	}
	if kept.OwnerID != author.ID {
		t.Errorf("Expected owner %s, got %s", author.ID, kept.OwnerID)
	}

	// Every approver is notified with the pre-deletion file name snapshot
	notifier.waitFor(t, func() bool { return len(notifier.deleted) == 2 })
	for _, n := range notifier.deleted {
		if len(n.FileNames) != 1 || n.FileNames[0] != "keepme.pdf" {
			t.Errorf("Unexpected snapshot %v", n.FileNames)
		}
	}
}

func TestListOrderingAndTaskFilters(t *testing.T) {
	svc, repos, _, _ := newApprovalTestEnv(t, defaultLimits())
	ctx := context.Background()

	author := entity.NewActor("author-001", "alice@example.com")
	approverB := entity.NewActor("approver-b", "b@x.com")
	file := seedFile(t, repos, author.ID, "doc.pdf")

	first, err := svc.Submit(ctx, author, SubmitRequest{UserFileIDs: []int64{file.ID}, Emails: []string{"b@x.com"}})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	second, err := svc.Submit(ctx, author, SubmitRequest{UserFileIDs: []int64{file.ID}, Emails: []string{"b@x.com"}})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	requests, err := svc.List(ctx, author)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(requests) != 2 || requests[0].ID != second.ID || requests[1].ID != first.ID {
		t.Errorf("Expected newest-first ordering, got %+v", requests)
	}

	// Complete the older task, then filter
	if err := svc.CompleteTask(ctx, approverB, CompleteTaskRequest{
		ID:     first.Tasks[0].ID,
		Status: entity.ApprovalStatusApproved,
	}); err != nil {
		t.Fatalf("CompleteTask failed: %v", err)
	}

	pending, err := svc.ListTasks(ctx, approverB, []entity.ApprovalStatus{entity.ApprovalStatusSubmitted})
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != second.Tasks[0].ID {
		t.Errorf("Expected only the newer pending task, got %+v", pending)
	}
	if pending[0].Request == nil || len(pending[0].Request.UserFiles) != 1 {
		t.Error("Expected task to carry its request aggregate with files")
	}

	completed, err := svc.ListTasks(ctx, approverB, []entity.ApprovalStatus{entity.ApprovalStatusApproved, entity.ApprovalStatusRejected})
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(completed) != 1 || completed[0].ID != first.Tasks[0].ID {
		t.Errorf("Expected only the completed task, got %+v", completed)
	}

	count, err := svc.CountUncompletedTasks(ctx, approverB)
	if err != nil {
		t.Fatalf("CountUncompletedTasks failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 uncompleted task, got %d", count)
	}
}
