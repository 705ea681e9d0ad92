package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"storefleet.dev/storefleet/internal/domain"
	"storefleet.dev/storefleet/internal/governance/audit"
	"storefleet.dev/storefleet/internal/manifest"
	apperrors "storefleet.dev/storefleet/internal/pkg/errors"
	"storefleet.dev/storefleet/internal/pkg/logger"
	"storefleet.dev/storefleet/internal/pkg/worker"
	"storefleet.dev/storefleet/internal/provisioner"
	"storefleet.dev/storefleet/internal/testutil"
)

func init() {
	_ = logger.Init("error", "json")
}

type stubPipeline struct{}

func (stubPipeline) Engine() string                                 { return "stub" }
func (stubPipeline) Provision(context.Context, *domain.Store) error { return nil }

type recordingQueue struct {
	mu        sync.Mutex
	submitted []string
}

func (q *recordingQueue) Submit(store *domain.Store) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.submitted = append(q.submitted, store.ID)
}

func (q *recordingQueue) BacklogSize() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.submitted)
}

type recordingCleaner struct {
	done chan string
	err  error
}

func (c *recordingCleaner) Cleanup(_ context.Context, storeID string) error {
	c.done <- storeID
	return c.err
}

// inlineRunner runs detached tasks on the calling goroutine.
type inlineRunner struct {
	err error
}

func (r inlineRunner) SubmitDetached(_ string, task worker.Task) error {
	if r.err != nil {
		return r.err
	}
	task(context.Background())
	return nil
}

type fixture struct {
	db      *testutil.MemoryDB
	cluster *testutil.FakeCluster
	queue   *recordingQueue
	cleaner *recordingCleaner
	svc     *StoreService
}

func newFixture(t *testing.T, maxStores int, runner BackgroundRunner) *fixture {
	t.Helper()
	db := testutil.NewMemoryDB()
	cluster := testutil.NewFakeCluster()
	q := &recordingQueue{}
	cleaner := &recordingCleaner{done: make(chan string, 10)}
	if runner == nil {
		runner = inlineRunner{}
	}

	svc := NewStoreService(Deps{
		Stores: db.Stores(),
		Events: db.Events(),
		Audit:  audit.NewLogger(db.Audit()),
		Plans: provisioner.NewRegistry(map[domain.Plan]provisioner.Pipeline{
			domain.PlanWooCommerce: stubPipeline{},
			domain.PlanMedusa:      stubPipeline{},
		}),
		Queue:     q,
		Teardown:  cleaner,
		Runner:    runner,
		Gateway:   cluster.Gateway(),
		MaxStores: maxStores,
	})
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return &fixture{db: db, cluster: cluster, queue: q, cleaner: cleaner, svc: svc}
}

func (f *fixture) seed(t *testing.T, name string, status domain.StoreStatus) *domain.Store {
	t.Helper()
	store := domain.NewStore(fmt.Sprintf("id-%s", domain.GenerateSlug(name)), name, "owner@example.com",
		domain.PlanWooCommerce, time.Now().UTC())
	require.NoError(t, f.db.Stores().Create(context.Background(), store))
	if status != domain.StoreStatusProvisioning {
		from := domain.Predecessors(status)
		if status == domain.StoreStatusDeleting {
			require.NoError(t, f.db.Stores().UpdateStatus(context.Background(), store.ID, domain.StoreStatusFailed, nil))
		}
		require.NoError(t, f.db.Stores().UpdateStatus(context.Background(), store.ID, status, nil, from...))
	}
	store.Status = status
	return store
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok, "expected AppError, got %v", err)
	assert.Equal(t, code, appErr.Code)
}

func TestCreateStore(t *testing.T) {
	f := newFixture(t, 10, nil)

	store, err := f.svc.CreateStore(context.Background(), CreateStoreInput{
		Name:       "  My Shop  ",
		AdminEmail: "owner@example.com",
		ClientIP:   "10.0.0.1",
	})
	require.NoError(t, err)

	assert.Equal(t, "My Shop", store.Name)
	assert.Equal(t, "my-shop", store.Slug)
	assert.Equal(t, "store-my-shop", store.Namespace)
	assert.Equal(t, domain.PlanWooCommerce, store.Plan)
	assert.Equal(t, domain.StoreStatusProvisioning, store.Status)

	persisted, err := f.db.Stores().Get(context.Background(), store.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StoreStatusProvisioning, persisted.Status)

	assert.Equal(t, []string{store.ID}, f.queue.submitted)

	entries, err := f.svc.ListAudit(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.AuditActionCreate, entries[0].Action)
	assert.Equal(t, "plan=woocommerce, email=owner@example.com", entries[0].Details)
	assert.Equal(t, "10.0.0.1", entries[0].IPAddress)
}

func TestCreateStore_ValidationFailures(t *testing.T) {
	tests := []struct {
		name      string
		input     CreateStoreInput
		wantCode  string
		wantField string
	}{
		{"missing name", CreateStoreInput{AdminEmail: "a@b.co"}, apperrors.CodeValidationFailed, "name"},
		{"name too short", CreateStoreInput{Name: "a", AdminEmail: "a@b.co"}, apperrors.CodeValidationFailed, "name"},
		{"name with symbols", CreateStoreInput{Name: "shop!", AdminEmail: "a@b.co"}, apperrors.CodeValidationFailed, "name"},
		{"name without slug", CreateStoreInput{Name: "--", AdminEmail: "a@b.co"}, apperrors.CodeValidationFailed, "name"},
		{"bad email", CreateStoreInput{Name: "Shop", AdminEmail: "nope"}, apperrors.CodeValidationFailed, "admin_email"},
		{"unknown plan", CreateStoreInput{Name: "Shop", AdminEmail: "a@b.co", Plan: "magento"}, apperrors.CodeUnknownPlan, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 10, nil)

			_, err := f.svc.CreateStore(context.Background(), tt.input)
			require.Error(t, err)
			requireCode(t, err, tt.wantCode)
			if tt.wantField != "" {
				appErr, _ := apperrors.IsAppError(err)
				require.NotEmpty(t, appErr.FieldErrors)
				assert.Equal(t, tt.wantField, appErr.FieldErrors[0].Field)
			}

			list, err := f.svc.ListStores(context.Background())
			require.NoError(t, err)
			assert.Empty(t, list.Stores)
			assert.Empty(t, f.queue.submitted)
		})
	}
}

func TestCreateStore_SlugConflict(t *testing.T) {
	f := newFixture(t, 10, nil)
	f.seed(t, "My Shop", domain.StoreStatusDeleting)

	_, err := f.svc.CreateStore(context.Background(), CreateStoreInput{Name: "my shop", AdminEmail: "a@b.co"})
	requireCode(t, err, apperrors.CodeStoreSlugConflict)
	assert.Empty(t, f.queue.submitted)
}

func TestCreateStore_ConcurrentSameSlug(t *testing.T) {
	f := newFixture(t, 10, nil)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.CreateStore(context.Background(), CreateStoreInput{
				Name:       "Race Shop",
				AdminEmail: "a@b.co",
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		requireCode(t, err, apperrors.CodeStoreSlugConflict)
	}
	assert.Equal(t, 1, succeeded)
	assert.Len(t, f.queue.submitted, 1)
}

func TestCreateStore_LimitReached(t *testing.T) {
	f := newFixture(t, 2, nil)
	f.seed(t, "One", domain.StoreStatusReady)
	f.seed(t, "Two", domain.StoreStatusFailed)

	_, err := f.svc.CreateStore(context.Background(), CreateStoreInput{Name: "Three", AdminEmail: "a@b.co"})
	requireCode(t, err, apperrors.CodeStoreLimitReached)
	appErr, _ := apperrors.IsAppError(err)
	assert.Equal(t, 429, appErr.HTTPStatus)
}

func TestCreateStore_LimitExcludesDeleting(t *testing.T) {
	f := newFixture(t, 1, nil)
	f.seed(t, "Old", domain.StoreStatusDeleting)

	_, err := f.svc.CreateStore(context.Background(), CreateStoreInput{Name: "New", AdminEmail: "a@b.co"})
	require.NoError(t, err)
}

func TestRequestDeletion(t *testing.T) {
	tests := []struct {
		name     string
		status   domain.StoreStatus
		wantCode string
	}{
		{"ready", domain.StoreStatusReady, ""},
		{"failed", domain.StoreStatusFailed, ""},
		{"provisioning", domain.StoreStatusProvisioning, apperrors.CodeStoreInvalidState},
		{"deleting", domain.StoreStatusDeleting, apperrors.CodeStoreAlreadyDeleting},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 10, nil)
			store := f.seed(t, "Shop", tt.status)
			before := f.db.StatusHistory(store.ID)

			err := f.svc.RequestDeletion(context.Background(), store.ID, "10.0.0.2")
			if tt.wantCode != "" {
				requireCode(t, err, tt.wantCode)
				assert.Equal(t, before, f.db.StatusHistory(store.ID))
				assert.Empty(t, f.cleaner.done)
				return
			}
			require.NoError(t, err)

			got, err := f.db.Stores().Get(context.Background(), store.ID)
			require.NoError(t, err)
			assert.Equal(t, domain.StoreStatusDeleting, got.Status)
			assert.Equal(t, store.ID, <-f.cleaner.done)

			entries, err := f.db.Audit().List(context.Background(), 10)
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, domain.AuditActionDelete, entries[0].Action)
		})
	}
}

func TestRequestDeletion_NotFoundHasNoEffect(t *testing.T) {
	f := newFixture(t, 10, nil)

	err := f.svc.RequestDeletion(context.Background(), "missing", "")
	requireCode(t, err, apperrors.CodeStoreNotFound)

	entries, err := f.db.Audit().List(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Zero(t, f.db.EventCount())
	assert.Empty(t, f.cleaner.done)
}

func TestRequestDeletion_RunnerUnavailable(t *testing.T) {
	f := newFixture(t, 10, inlineRunner{err: worker.ErrPoolClosed})
	store := f.seed(t, "Shop", domain.StoreStatusReady)

	err := f.svc.RequestDeletion(context.Background(), store.ID, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, worker.ErrPoolClosed))

	got, err := f.db.Stores().Get(context.Background(), store.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StoreStatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Contains(t, *got.ErrorMessage, "Cleanup failed")
}

func TestReadAccessors(t *testing.T) {
	f := newFixture(t, 10, nil)
	ready := f.seed(t, "Ready Shop", domain.StoreStatusReady)
	f.seed(t, "Gone Shop", domain.StoreStatusDeleting)

	got, err := f.svc.GetStore(context.Background(), ready.ID)
	require.NoError(t, err)
	assert.Equal(t, ready.Slug, got.Slug)

	_, err = f.svc.GetStore(context.Background(), "missing")
	requireCode(t, err, apperrors.CodeStoreNotFound)

	list, err := f.svc.ListStores(context.Background())
	require.NoError(t, err)
	require.Len(t, list.Stores, 1)
	assert.Equal(t, ready.ID, list.Stores[0].ID)

	require.NoError(t, f.db.Events().Append(context.Background(), &domain.ProvisioningEvent{
		StoreID: ready.ID,
		Step:    domain.StepReady,
		Status:  domain.EventStatusCompleted,
	}))
	events, err := f.svc.ListEvents(context.Background(), ready.ID)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	_, err = f.svc.ListEvents(context.Background(), "missing")
	requireCode(t, err, apperrors.CodeStoreNotFound)

	f.queue.Submit(ready)
	assert.Equal(t, 1, f.svc.QueueBacklogSize())
}

func seedDeployments(t *testing.T, f *fixture, namespace string) {
	t.Helper()
	for _, name := range []string{manifest.WordPressName, manifest.MySQLName} {
		_, err := f.cluster.Clientset.AppsV1().Deployments(namespace).Create(context.Background(),
			&appsv1.Deployment{ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace}},
			metav1.CreateOptions{})
		require.NoError(t, err)
	}
}

func TestRestartStore(t *testing.T) {
	tests := []struct {
		target string
		want   []string
	}{
		{"", []string{manifest.WordPressName, manifest.MySQLName}},
		{RestartTargetAll, []string{manifest.WordPressName, manifest.MySQLName}},
		{RestartTargetWordPress, []string{manifest.WordPressName}},
		{RestartTargetMySQL, []string{manifest.MySQLName}},
	}

	for _, tt := range tests {
		t.Run("target="+tt.target, func(t *testing.T) {
			f := newFixture(t, 10, nil)
			store := f.seed(t, "Shop", domain.StoreStatusReady)
			seedDeployments(t, f, store.Namespace)

			restarted, err := f.svc.RestartStore(context.Background(), store.ID, tt.target, "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, restarted)

			for _, name := range tt.want {
				d, err := f.cluster.Clientset.AppsV1().Deployments(store.Namespace).
					Get(context.Background(), name, metav1.GetOptions{})
				require.NoError(t, err)
				assert.Equal(t, "2026-03-01T12:00:00Z",
					d.Spec.Template.Annotations[manifest.AnnotationRestartedAt])
			}

			entries, err := f.db.Audit().List(context.Background(), 10)
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, domain.AuditActionRestart, entries[0].Action)
		})
	}
}

func TestRestartStore_ContinuesPastFailedDeployment(t *testing.T) {
	f := newFixture(t, 10, nil)
	store := f.seed(t, "Shop", domain.StoreStatusReady)
	// Only mysql exists, so the wordpress patch fails.
	_, err := f.cluster.Clientset.AppsV1().Deployments(store.Namespace).Create(context.Background(),
		&appsv1.Deployment{ObjectMeta: metav1.ObjectMeta{Name: manifest.MySQLName, Namespace: store.Namespace}},
		metav1.CreateOptions{})
	require.NoError(t, err)

	restarted, err := f.svc.RestartStore(context.Background(), store.ID, RestartTargetAll, "")
	require.NoError(t, err)
	assert.Equal(t, []string{manifest.MySQLName}, restarted)
	assert.Equal(t, 2, f.cluster.CountActions("patch", "deployments"))

	d, err := f.cluster.Clientset.AppsV1().Deployments(store.Namespace).
		Get(context.Background(), manifest.MySQLName, metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01T12:00:00Z", d.Spec.Template.Annotations[manifest.AnnotationRestartedAt])

	entries, err := f.db.Audit().List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.AuditActionRestart, entries[0].Action)
}

func TestRestartStore_NothingRestarted(t *testing.T) {
	f := newFixture(t, 10, nil)
	store := f.seed(t, "Shop", domain.StoreStatusReady)

	restarted, err := f.svc.RestartStore(context.Background(), store.ID, RestartTargetWordPress, "")
	require.NoError(t, err)
	assert.NotNil(t, restarted)
	assert.Empty(t, restarted)
}

func TestRestartStore_Rejections(t *testing.T) {
	f := newFixture(t, 10, nil)
	failed := f.seed(t, "Broken", domain.StoreStatusFailed)
	ready := f.seed(t, "Fine", domain.StoreStatusReady)

	_, err := f.svc.RestartStore(context.Background(), failed.ID, "", "")
	requireCode(t, err, apperrors.CodeStoreInvalidState)

	_, err = f.svc.RestartStore(context.Background(), ready.ID, "redis", "")
	requireCode(t, err, apperrors.CodeValidationFailed)

	_, err = f.svc.RestartStore(context.Background(), "missing", "", "")
	requireCode(t, err, apperrors.CodeStoreNotFound)

	assert.Zero(t, f.cluster.CountActions("patch", "deployments"))
}

func TestStoreLogs(t *testing.T) {
	f := newFixture(t, 10, nil)
	store := f.seed(t, "Shop", domain.StoreStatusReady)

	_, err := f.svc.StoreLogs(context.Background(), store.ID, manifest.WordPressName, 0)
	requireCode(t, err, apperrors.CodePodNotFound)

	_, err = f.cluster.Clientset.CoreV1().Pods(store.Namespace).Create(context.Background(), &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "wordpress-abc",
			Namespace: store.Namespace,
			Labels:    map[string]string{manifest.LabelApp: manifest.WordPressName},
		},
	}, metav1.CreateOptions{})
	require.NoError(t, err)

	logs, err := f.svc.StoreLogs(context.Background(), store.ID, manifest.WordPressName, 20)
	require.NoError(t, err)
	assert.NotEmpty(t, logs)

	_, err = f.svc.StoreLogs(context.Background(), store.ID, "nginx", 0)
	requireCode(t, err, apperrors.CodeValidationFailed)
}

func TestStoreHealth(t *testing.T) {
	f := newFixture(t, 10, nil)
	store := f.seed(t, "Shop", domain.StoreStatusReady)

	_, err := f.cluster.Clientset.CoreV1().Pods(store.Namespace).Create(context.Background(), &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "mysql-0",
			Namespace: store.Namespace,
			Labels:    map[string]string{manifest.LabelApp: manifest.MySQLName},
		},
		Status: corev1.PodStatus{Phase: corev1.PodRunning},
	}, metav1.CreateOptions{})
	require.NoError(t, err)

	health, err := f.svc.StoreHealth(context.Background(), store.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ID, health.StoreID)
	assert.Equal(t, store.Namespace, health.Namespace)
	require.Len(t, health.Pods, 1)
	assert.Equal(t, "mysql-0", health.Pods[0].Name)
	assert.Empty(t, health.Volumes)
}
