package labelsync_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/qc-labelsync/pkg/labelsync"
	repomemory "github.com/tendant/qc-labelsync/pkg/labelsync/repo/memory"
	"github.com/tendant/qc-labelsync/pkg/labelsync/storage/memory"
	"github.com/tendant/qc-labelsync/tests/testutil"
)

type countingObserver struct {
	labelsync.NoopObserver
	mu        sync.Mutex
	created   []string
	imported  int
	deleted   map[string]int
	failed    map[string]int
	reconcile int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{deleted: map[string]int{}, failed: map[string]int{}}
}

func (o *countingObserver) ProjectCreated(title string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.created = append(o.created, title)
}

func (o *countingObserver) TasksImported(projectID int64, count int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.imported += count
}

func (o *countingObserver) DuplicateDeleted(kind string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.deleted[kind]++
}

func (o *countingObserver) DeleteFailed(kind string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed[kind]++
}

func (o *countingObserver) ReconcileFinished(time.Duration, labelsync.ReconcileResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reconcile++
}

type fixture struct {
	studio   *testutil.FakeStudio
	store    *labelsync.ObjectStore
	catalog  *repomemory.Repository
	observer *countingObserver
	syncer   *labelsync.Syncer
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		studio:   testutil.NewFakeStudio(),
		store:    labelsync.NewObjectStore(memory.New(memory.WithBucket("qc-images"))),
		catalog:  repomemory.New(),
		observer: newCountingObserver(),
	}
	syncer, err := labelsync.NewSyncer(f.studio,
		labelsync.WithObjectStore(f.store),
		labelsync.WithCatalog(f.catalog),
		labelsync.WithObserver(f.observer),
		labelsync.WithProjectURL("http://localhost:8081/"),
	)
	require.NoError(t, err)
	f.syncer = syncer
	return f
}

func (f *fixture) product(t *testing.T, company, name string, labels ...string) *labelsync.Product {
	ctx := context.Background()
	c := &labelsync.Company{Name: company}
	require.NoError(t, f.catalog.CreateCompany(ctx, c))
	p := &labelsync.Product{CompanyID: c.ID, Name: name, ClassLabels: labels}
	require.NoError(t, f.catalog.CreateProduct(ctx, p))
	return p
}

func (f *fixture) storeImages(t *testing.T, company, product string, names ...string) []labelsync.StoredImage {
	var images []labelsync.StoredImage
	for _, name := range names {
		key, meta, err := f.store.Put(context.Background(), labelsync.PutRequest{
			Data:        strings.NewReader("image " + name),
			CompanyName: company,
			ProductName: product,
			StepName:    product,
			FileName:    name,
		})
		require.NoError(t, err)
		images = append(images, labelsync.StoredImage{
			ObjectKey:   key,
			Size:        meta.SizeBytes,
			CompanyName: company,
			ProductName: product,
		})
	}
	return images
}

func TestNewSyncer(t *testing.T) {
	_, err := labelsync.NewSyncer(nil)
	assert.Error(t, err)

	_, err = labelsync.NewSyncer(testutil.NewFakeStudio(), labelsync.WithPresignTTL(-time.Second))
	assert.Error(t, err)
}

func TestProjectTitle(t *testing.T) {
	assert.Equal(t, "AB_QC_Project", labelsync.ProjectTitle("AB"))
	assert.Equal(t, "AB_QC_Project", labelsync.ProjectTitle("  AB "))
	assert.Equal(t, "Widget", labelsync.ProjectTitle("Widget"))
	assert.Equal(t, "Widget", labelsync.ProjectTitle(" Widget\n"))
	assert.Equal(t, "abc", labelsync.ProjectTitle("abc"))
	assert.Equal(t, "_QC_Project", labelsync.ProjectTitle(""))
	assert.Equal(t, "日本_QC_Project", labelsync.ProjectTitle("日本"))
	assert.Equal(t, "日本語", labelsync.ProjectTitle("日本語"))
}

func TestSyncer_EnsureProject(t *testing.T) {
	ctx := context.Background()

	t.Run("CreatesOnce", func(t *testing.T) {
		f := newFixture(t)

		first, err := f.syncer.EnsureProject(ctx, "Widget", []string{"scratch", "dent"})
		require.NoError(t, err)
		assert.True(t, first.Created)
		assert.Equal(t, "Widget", first.Project.Title)
		assert.Equal(t, "Quality control project for Widget", first.Project.Description)
		assert.Contains(t, first.Project.LabelConfig, `<Label value="dent" background="red"/>`)
		assert.Equal(t, fmt.Sprintf("http://localhost:8081/projects/%d", first.Project.ID), first.ProjectURL)
		require.NotNil(t, first.Cleanup)

		second, err := f.syncer.EnsureProject(ctx, "Widget", []string{"other"})
		require.NoError(t, err)
		assert.False(t, second.Created)
		assert.Equal(t, first.Project.ID, second.Project.ID)
		assert.Equal(t, 1, f.studio.CreateCalls)
		assert.Equal(t, []string{"Widget"}, f.observer.created)
	})

	t.Run("ReturnsCanonicalExisting", func(t *testing.T) {
		f := newFixture(t)
		f.studio.AddProjectWithID(11, "Widget")
		f.studio.AddProjectWithID(10, "Widget")

		result, err := f.syncer.EnsureProject(ctx, "Widget", nil)
		require.NoError(t, err)
		assert.Equal(t, int64(10), result.Project.ID)
		assert.False(t, result.Created)
		assert.Len(t, f.studio.Projects(), 2)
	})

	t.Run("NoLabels", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.syncer.EnsureProject(ctx, "Widget", nil)
		assert.True(t, errors.Is(err, labelsync.ErrNoLabels))
		assert.True(t, errors.Is(err, labelsync.ErrInvalidState))
		assert.Equal(t, 0, f.studio.CreateCalls)
	})

	t.Run("EmptyTitle", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.syncer.EnsureProject(ctx, "  ", []string{"x"})
		assert.True(t, errors.Is(err, labelsync.ErrInvalidState))
	})

	t.Run("ListFailureStillCreates", func(t *testing.T) {
		f := newFixture(t)
		f.studio.ListProjectsErr = fmt.Errorf("%w: connection refused", labelsync.ErrUnavailable)

		result, err := f.syncer.EnsureProject(ctx, "Widget", []string{"x"})
		require.NoError(t, err)
		assert.True(t, result.Created)
		require.NotNil(t, result.Cleanup)
		assert.Equal(t, 0, result.Cleanup.DeletedProjects)
	})

	t.Run("CreateRejected", func(t *testing.T) {
		f := newFixture(t)
		f.studio.CreateErr = &labelsync.RejectedError{Op: "create project", StatusCode: 403}

		_, err := f.syncer.EnsureProject(ctx, "Widget", []string{"x"})
		assert.True(t, errors.Is(err, labelsync.ErrForbidden))
	})

	t.Run("ConcurrentWriterIsRepaired", func(t *testing.T) {
		f := newFixture(t)
		// another writer slips in an older project between list and create
		f.studio.BeforeCreate = func() {
			f.studio.AddProjectWithID(5, "Widget")
		}

		result, err := f.syncer.EnsureProject(ctx, "Widget", []string{"x"})
		require.NoError(t, err)
		assert.True(t, result.Created)
		assert.Equal(t, int64(5), result.Project.ID)
		assert.Equal(t, 1, result.Cleanup.DeletedProjects)
		require.Len(t, f.studio.Projects(), 1)
	})

	t.Run("ConcurrentCallersCreateOnce", func(t *testing.T) {
		f := newFixture(t)
		release := make(chan struct{})
		f.studio.BeforeCreate = func() { <-release }

		var wg sync.WaitGroup
		results := make([]labelsync.EnsureResult, 8)
		for i := range results {
			wg.Add(1)
			go func() {
				defer wg.Done()
				result, err := f.syncer.EnsureProject(ctx, "Widget", []string{"x"})
				assert.NoError(t, err)
				results[i] = result
			}()
		}
		time.Sleep(50 * time.Millisecond)
		close(release)
		wg.Wait()

		projects := f.studio.Projects()
		require.Len(t, projects, 1)
		assert.Equal(t, 1, f.studio.CreateCalls)
		created := 0
		for _, result := range results {
			assert.Equal(t, projects[0].ID, result.Project.ID)
			if result.Created {
				created++
			}
		}
		assert.Equal(t, 1, created)
	})

	t.Run("CloneWaitsAndUsesItsOwnClient", func(t *testing.T) {
		f := newFixture(t)
		entered := make(chan struct{})
		release := make(chan struct{})
		f.studio.BeforeCreate = func() {
			close(entered)
			<-release
		}

		stranger := testutil.NewFakeStudio()
		unauthorized := &labelsync.RejectedError{Op: "list projects", StatusCode: 401}
		stranger.ListProjectsErr = unauthorized
		stranger.CreateErr = unauthorized
		clone := f.syncer.ForClient(stranger)

		var wg sync.WaitGroup
		var ownerErr, strangerErr error
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ownerErr = f.syncer.EnsureProject(ctx, "Widget", []string{"x"})
		}()
		<-entered
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, strangerErr = clone.EnsureProject(ctx, "Widget", []string{"x"})
		}()
		time.Sleep(20 * time.Millisecond)
		close(release)
		wg.Wait()

		require.NoError(t, ownerErr)
		assert.True(t, errors.Is(strangerErr, labelsync.ErrUnauthorized))
		assert.Equal(t, 1, stranger.CreateCalls)
	})

	t.Run("WaitingCallerRespectsContext", func(t *testing.T) {
		f := newFixture(t)
		entered := make(chan struct{})
		release := make(chan struct{})
		f.studio.BeforeCreate = func() {
			close(entered)
			<-release
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			_, err := f.syncer.EnsureProject(ctx, "Widget", []string{"x"})
			assert.NoError(t, err)
		}()
		<-entered

		waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		_, err := f.syncer.EnsureProject(waitCtx, "Widget", []string{"x"})
		assert.True(t, errors.Is(err, context.DeadlineExceeded))

		close(release)
		<-done
	})
}

func TestSyncer_EnsureProductProject(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	short := f.product(t, "Acme", "AB", "scratch")
	empty := f.product(t, "Acme", "Widget")

	result, err := f.syncer.EnsureProductProject(ctx, short.ID)
	require.NoError(t, err)
	assert.Equal(t, "AB_QC_Project", result.Project.Title)
	assert.Equal(t, []string{"scratch"}, result.Labels)

	_, err = f.syncer.EnsureProductProject(ctx, empty.ID)
	assert.True(t, errors.Is(err, labelsync.ErrNoLabels))

	_, err = f.syncer.EnsureProductProject(ctx, 999)
	assert.True(t, errors.Is(err, labelsync.ErrNotFound))
}

func TestSyncer_ImportImages(t *testing.T) {
	ctx := context.Background()

	t.Run("SkipsExistingFilenames", func(t *testing.T) {
		f := newFixture(t)
		project := f.studio.AddProject("Widget")
		images := f.storeImages(t, "Acme", "Widget", "1.jpg", "2.jpg", "3.jpg", "4.jpg", "5.jpg")
		for _, image := range images[:3] {
			f.studio.AddTask(project.ID, image.ObjectKey[strings.LastIndex(image.ObjectKey, "/")+1:])
		}

		result, err := f.syncer.ImportImages(ctx, project.ID, images)
		require.NoError(t, err)
		assert.Equal(t, 2, result.Imported)
		assert.Equal(t, 5, result.TotalFound)
		assert.Equal(t, 3, result.Skipped)
		assert.Equal(t, 1, f.studio.ImportCalls)
		require.NotNil(t, result.Cleanup)

		tasks := f.studio.Tasks(project.ID)
		require.Len(t, tasks, 5)
		imported := tasks[3].Data
		assert.True(t, strings.HasSuffix(imported.ImageFilename, "_4.jpg"))
		assert.Contains(t, imported.ImageURL, imported.ImageFilename)
		assert.Equal(t, "Widget", imported.Product)
		assert.Equal(t, "Acme", imported.Company)
		assert.Equal(t, images[3].Size, imported.FileSize)
		assert.Equal(t, 2, f.observer.imported)
	})

	t.Run("NothingNewMakesNoCall", func(t *testing.T) {
		f := newFixture(t)
		project := f.studio.AddProject("Widget")
		images := f.storeImages(t, "Acme", "Widget", "1.jpg")

		_, err := f.syncer.ImportImages(ctx, project.ID, images)
		require.NoError(t, err)
		result, err := f.syncer.ImportImages(ctx, project.ID, images)
		require.NoError(t, err)
		assert.Equal(t, 0, result.Imported)
		assert.Nil(t, result.Cleanup)
		assert.Equal(t, 1, f.studio.ImportCalls)
	})

	t.Run("MissingObjectsAreSkipped", func(t *testing.T) {
		f := newFixture(t)
		project := f.studio.AddProject("Widget")
		images := f.storeImages(t, "Acme", "Widget", "1.jpg")
		images = append(images, labelsync.StoredImage{ObjectKey: "acme/widget/widget/gone_2.jpg"})

		result, err := f.syncer.ImportImages(ctx, project.ID, images)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Imported)
		assert.Equal(t, 2, result.TotalFound)
	})

	t.Run("NoAccessibleImages", func(t *testing.T) {
		f := newFixture(t)
		project := f.studio.AddProject("Widget")

		_, err := f.syncer.ImportImages(ctx, project.ID, []labelsync.StoredImage{{ObjectKey: "acme/widget/widget/gone.jpg"}})
		assert.True(t, errors.Is(err, labelsync.ErrUnavailable))
		assert.Equal(t, 0, f.studio.ImportCalls)
	})

	t.Run("EmptyInputMakesNoCall", func(t *testing.T) {
		f := newFixture(t)
		project := f.studio.AddProject("Widget")
		var listed atomic.Int32
		f.studio.BeforeListTasks = func(int64) { listed.Add(1) }

		result, err := f.syncer.ImportImages(ctx, project.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, 0, result.Imported)
		assert.Equal(t, 0, result.TotalFound)
		assert.Nil(t, result.Cleanup)
		assert.Equal(t, int32(0), listed.Load())
		assert.Equal(t, 0, f.studio.ImportCalls)
	})

	t.Run("ConcurrentImportsKeepBothImageSets", func(t *testing.T) {
		f := newFixture(t)
		project := f.studio.AddProject("Widget")
		first := f.storeImages(t, "Acme", "Widget", "a.jpg")
		second := f.storeImages(t, "Acme", "Widget", "b.jpg")

		entered := make(chan struct{})
		release := make(chan struct{})
		var gated atomic.Bool
		f.studio.BeforeListTasks = func(int64) {
			if gated.CompareAndSwap(false, true) {
				close(entered)
				<-release
			}
		}

		var wg sync.WaitGroup
		var firstResult, secondResult labelsync.ImportResult
		var firstErr, secondErr error
		wg.Add(1)
		go func() {
			defer wg.Done()
			firstResult, firstErr = f.syncer.ImportImages(ctx, project.ID, first)
		}()
		<-entered
		wg.Add(1)
		go func() {
			defer wg.Done()
			secondResult, secondErr = f.syncer.ImportImages(ctx, project.ID, second)
		}()
		time.Sleep(20 * time.Millisecond)
		close(release)
		wg.Wait()

		require.NoError(t, firstErr)
		require.NoError(t, secondErr)
		assert.Equal(t, 1, firstResult.Imported)
		assert.Equal(t, 1, secondResult.Imported)

		filenames := map[string]bool{}
		for _, task := range f.studio.Tasks(project.ID) {
			filenames[task.Data.ImageFilename] = true
		}
		assert.Len(t, filenames, 2)
		assert.True(t, filenames[first[0].ObjectKey[strings.LastIndex(first[0].ObjectKey, "/")+1:]])
		assert.True(t, filenames[second[0].ObjectKey[strings.LastIndex(second[0].ObjectKey, "/")+1:]])
	})

	t.Run("ImportRejected", func(t *testing.T) {
		f := newFixture(t)
		project := f.studio.AddProject("Widget")
		f.studio.ImportErr = &labelsync.RejectedError{Op: "import tasks", StatusCode: 400}

		_, err := f.syncer.ImportImages(ctx, project.ID, f.storeImages(t, "Acme", "Widget", "1.jpg"))
		assert.True(t, errors.Is(err, labelsync.ErrExternalRejected))
	})
}

func TestSyncer_ImportProductImages(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	product := f.product(t, "Acme Corp", "Widget", "scratch")
	other := f.product(t, "Acme Corp", "Gadget", "scratch")
	f.storeImages(t, "Acme Corp", "Widget", "1.jpg", "2.jpg")
	project := f.studio.AddProject("Widget")

	result, err := f.syncer.ImportProductImages(ctx, project.ID, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported)

	_, err = f.syncer.ImportProductImages(ctx, project.ID, other.ID)
	assert.True(t, errors.Is(err, labelsync.ErrNotFound))
}

func TestSyncer_Reconcile(t *testing.T) {
	ctx := context.Background()

	t.Run("DeletesDuplicates", func(t *testing.T) {
		f := newFixture(t)
		f.studio.AddProjectWithID(10, "Foo")
		f.studio.AddProjectWithID(11, "Foo")
		f.studio.AddTaskWithID(10, 100, "x.jpg")
		f.studio.AddTaskWithID(10, 101, "x.jpg")

		result, err := f.syncer.Reconcile(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, result.DeletedProjects)
		assert.Equal(t, 1, result.DeletedTasks)
		assert.Len(t, result.Details, 2)

		projects := f.studio.Projects()
		require.Len(t, projects, 1)
		assert.Equal(t, int64(10), projects[0].ID)
		tasks := f.studio.Tasks(10)
		require.Len(t, tasks, 1)
		assert.Equal(t, int64(100), tasks[0].ID)

		again, err := f.syncer.Reconcile(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, again.DeletedProjects)
		assert.Equal(t, 0, again.DeletedTasks)

		assert.Equal(t, 1, f.observer.deleted[labelsync.KindProject])
		assert.Equal(t, 1, f.observer.deleted[labelsync.KindTask])
		assert.Equal(t, 2, f.observer.reconcile)
	})

	t.Run("LowestIDWins", func(t *testing.T) {
		f := newFixture(t)
		f.studio.AddProjectWithID(21, "Bar")
		f.studio.AddProjectWithID(20, "Bar")
		f.studio.AddProjectWithID(22, "Bar")
		f.studio.AddTaskWithID(20, 202, "y.jpg")
		f.studio.AddTaskWithID(20, 200, "y.jpg")
		f.studio.AddTaskWithID(20, 201, "z.jpg")
		f.studio.AddTaskWithID(20, 203, "")
		f.studio.AddTaskWithID(20, 204, "")

		result, err := f.syncer.Reconcile(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, result.DeletedProjects)
		assert.Equal(t, 1, result.DeletedTasks)

		var ids []int64
		for _, task := range f.studio.Tasks(20) {
			ids = append(ids, task.ID)
		}
		assert.ElementsMatch(t, []int64{200, 201, 203, 204}, ids)
	})

	t.Run("TasksOfSingletonProjects", func(t *testing.T) {
		f := newFixture(t)
		f.studio.AddProjectWithID(1, "Solo")
		f.studio.AddTaskWithID(1, 7, "a.jpg")
		f.studio.AddTaskWithID(1, 8, "a.jpg")

		result, err := f.syncer.Reconcile(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, result.DeletedProjects)
		assert.Equal(t, 1, result.DeletedTasks)
	})

	t.Run("DeleteFailuresDoNotAbort", func(t *testing.T) {
		f := newFixture(t)
		f.studio.AddProjectWithID(1, "Foo")
		f.studio.AddProjectWithID(2, "Foo")
		f.studio.AddProjectWithID(3, "Foo")
		f.studio.AddTaskWithID(1, 10, "a.jpg")
		f.studio.AddTaskWithID(1, 11, "a.jpg")
		f.studio.FailDeleteProject[2] = true

		result, err := f.syncer.Reconcile(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, result.DeletedProjects)
		assert.Equal(t, 1, result.DeletedTasks)
		assert.Equal(t, 1, f.observer.failed[labelsync.KindProject])

		f.studio.FailDeleteProject[2] = false
		result, err = f.syncer.Reconcile(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, result.DeletedProjects)
	})

	t.Run("ListFailure", func(t *testing.T) {
		f := newFixture(t)
		f.studio.ListProjectsErr = fmt.Errorf("%w: timeout", labelsync.ErrUnavailable)

		result, err := f.syncer.Reconcile(ctx)
		assert.True(t, errors.Is(err, labelsync.ErrUnavailable))
		assert.Equal(t, labelsync.ReconcileResult{}, result)
	})
}

func TestSyncer_RunPeriodic(t *testing.T) {
	f := newFixture(t)
	f.studio.AddProjectWithID(1, "Foo")
	f.studio.AddProjectWithID(2, "Foo")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.syncer.RunPeriodic(ctx, 10*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return len(f.studio.Projects()) == 1 }, time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunPeriodic did not stop")
	}
}

func TestSyncer_ExistingProjects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	widget := f.product(t, "Acme", "Widget", "scratch")
	short := f.product(t, "Acme", "AB")
	f.studio.AddProjectWithID(4, "Widget")
	f.studio.AddProjectWithID(3, "Widget")
	f.studio.AddTaskWithID(3, 30, "a.jpg")

	report, err := f.syncer.ExistingProjects(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.TotalExistingProjects)
	require.Len(t, report.Products, 2)

	w := report.Products[0]
	assert.Equal(t, widget.ID, w.ProductID)
	assert.True(t, w.HasExistingProject)
	require.NotNil(t, w.ProjectID)
	assert.Equal(t, int64(3), *w.ProjectID)
	assert.Equal(t, 1, w.TaskCount)
	require.NotNil(t, w.ProjectURL)
	assert.Equal(t, "http://localhost:8081/projects/3", *w.ProjectURL)

	s := report.Products[1]
	assert.Equal(t, short.ID, s.ProductID)
	assert.Equal(t, "AB_QC_Project", s.ProjectTitle)
	assert.False(t, s.HasClasses)
	assert.False(t, s.HasExistingProject)
	assert.Nil(t, s.ProjectID)
	assert.Equal(t, []string{}, s.Classes)
}

func TestSyncer_TestConnection(t *testing.T) {
	f := newFixture(t)
	f.studio.AddProject("Widget")

	count, err := f.syncer.TestConnection(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	f.studio.ListProjectsErr = &labelsync.RejectedError{Op: "list projects", StatusCode: 401}
	_, err = f.syncer.TestConnection(context.Background())
	assert.True(t, errors.Is(err, labelsync.ErrUnauthorized))
}
