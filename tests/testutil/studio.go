package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/tendant/qc-labelsync/pkg/labelsync"
)

// FakeStudio is an in-memory annotation service. It implements
// labelsync.AnnotationClient directly and serves the same state over the
// REST paths used by the labelstudio client.
type FakeStudio struct {
	mu          sync.Mutex
	nextProject int64
	nextTask    int64
	projects    map[int64]labelsync.ExternalProject
	tasks       map[int64][]labelsync.ExternalTask

	// Token, when set, must be presented as "Authorization: Token <Token>"
	Token string
	// ProjectsEnvelope wraps the project listing in {"results": [...]}
	ProjectsEnvelope bool
	// TasksEnvelope wraps the task listing under this key when non-empty
	TasksEnvelope string

	// Failure injection
	ListProjectsErr   error
	ListTasksErr      error
	CreateErr         error
	ImportErr         error
	FailDeleteTask    map[int64]bool
	FailDeleteProject map[int64]bool
	// BeforeCreate runs before a project is created, with no lock held
	BeforeCreate func()
	// BeforeListTasks runs before tasks are listed, with no lock held
	BeforeListTasks func(projectID int64)

	CreateCalls int
	ImportCalls int
}

// NewFakeStudio creates an empty fake with ids starting at 1
func NewFakeStudio() *FakeStudio {
	return &FakeStudio{
		projects:          make(map[int64]labelsync.ExternalProject),
		tasks:             make(map[int64][]labelsync.ExternalTask),
		FailDeleteTask:    make(map[int64]bool),
		FailDeleteProject: make(map[int64]bool),
	}
}

// AddProjectWithID seeds a project, bypassing deduplication
func (f *FakeStudio) AddProjectWithID(id int64, title string) labelsync.ExternalProject {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := labelsync.ExternalProject{ID: id, Title: title}
	f.projects[id] = p
	if id > f.nextProject {
		f.nextProject = id
	}
	return p
}

// AddProject seeds a project with the next id
func (f *FakeStudio) AddProject(title string) labelsync.ExternalProject {
	f.mu.Lock()
	id := f.nextProject + 1
	f.mu.Unlock()
	return f.AddProjectWithID(id, title)
}

// AddTaskWithID seeds a task, bypassing deduplication
func (f *FakeStudio) AddTaskWithID(projectID, taskID int64, filename string) labelsync.ExternalTask {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := labelsync.ExternalTask{ID: taskID, ProjectID: projectID, Data: labelsync.TaskData{ImageFilename: filename}}
	f.tasks[projectID] = append(f.tasks[projectID], t)
	if taskID > f.nextTask {
		f.nextTask = taskID
	}
	return t
}

// AddTask seeds a task with the next id
func (f *FakeStudio) AddTask(projectID int64, filename string) labelsync.ExternalTask {
	f.mu.Lock()
	id := f.nextTask + 1
	f.mu.Unlock()
	return f.AddTaskWithID(projectID, id, filename)
}

// Projects returns a snapshot ordered by id
func (f *FakeStudio) Projects() []labelsync.ExternalProject {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.projectsLocked()
}

// Tasks returns a snapshot of a project's tasks
func (f *FakeStudio) Tasks(projectID int64) []labelsync.ExternalTask {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]labelsync.ExternalTask(nil), f.tasks[projectID]...)
}

func (f *FakeStudio) projectsLocked() []labelsync.ExternalProject {
	out := make([]labelsync.ExternalProject, 0, len(f.projects))
	for _, p := range f.projects {
		p.TaskCount = len(f.tasks[p.ID])
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

var _ labelsync.AnnotationClient = (*FakeStudio)(nil)

func (f *FakeStudio) ListProjects(ctx context.Context) ([]labelsync.ExternalProject, error) {
	if f.ListProjectsErr != nil {
		return nil, f.ListProjectsErr
	}
	return f.Projects(), nil
}

func (f *FakeStudio) CreateProject(ctx context.Context, spec labelsync.ProjectSpec) (labelsync.ExternalProject, error) {
	if f.BeforeCreate != nil {
		f.BeforeCreate()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CreateCalls++
	if f.CreateErr != nil {
		return labelsync.ExternalProject{}, f.CreateErr
	}
	if len(spec.Title) < 3 {
		return labelsync.ExternalProject{}, &labelsync.RejectedError{Op: "create project", StatusCode: http.StatusBadRequest, Body: "title too short"}
	}
	f.nextProject++
	p := labelsync.ExternalProject{
		ID:          f.nextProject,
		Title:       spec.Title,
		Description: spec.Description,
		LabelConfig: spec.LabelConfig,
	}
	f.projects[p.ID] = p
	return p, nil
}

func (f *FakeStudio) DeleteProject(ctx context.Context, projectID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailDeleteProject[projectID] {
		return &labelsync.RejectedError{Op: "delete project", StatusCode: http.StatusInternalServerError}
	}
	if _, ok := f.projects[projectID]; !ok {
		return &labelsync.RejectedError{Op: "delete project", StatusCode: http.StatusNotFound}
	}
	delete(f.projects, projectID)
	delete(f.tasks, projectID)
	return nil
}

func (f *FakeStudio) ListTasks(ctx context.Context, projectID int64) ([]labelsync.ExternalTask, error) {
	if f.BeforeListTasks != nil {
		f.BeforeListTasks(projectID)
	}
	if f.ListTasksErr != nil {
		return nil, f.ListTasksErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.projects[projectID]; !ok {
		return nil, &labelsync.RejectedError{Op: "list tasks", StatusCode: http.StatusNotFound}
	}
	return append([]labelsync.ExternalTask{}, f.tasks[projectID]...), nil
}

func (f *FakeStudio) ImportTasks(ctx context.Context, projectID int64, tasks []labelsync.TaskData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ImportCalls++
	if f.ImportErr != nil {
		return f.ImportErr
	}
	if _, ok := f.projects[projectID]; !ok {
		return &labelsync.RejectedError{Op: "import tasks", StatusCode: http.StatusNotFound}
	}
	for _, data := range tasks {
		f.nextTask++
		f.tasks[projectID] = append(f.tasks[projectID], labelsync.ExternalTask{ID: f.nextTask, ProjectID: projectID, Data: data})
	}
	return nil
}

func (f *FakeStudio) DeleteTask(ctx context.Context, taskID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailDeleteTask[taskID] {
		return &labelsync.RejectedError{Op: "delete task", StatusCode: http.StatusInternalServerError}
	}
	for projectID, tasks := range f.tasks {
		for i, t := range tasks {
			if t.ID == taskID {
				f.tasks[projectID] = append(tasks[:i:i], tasks[i+1:]...)
				return nil
			}
		}
	}
	return &labelsync.RejectedError{Op: "delete task", StatusCode: http.StatusNotFound}
}

// Handler serves the fake over HTTP
func (f *FakeStudio) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(f.authenticate)
	r.Get("/api/projects/", func(w http.ResponseWriter, r *http.Request) {
		projects, err := f.ListProjects(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
			return
		}
		if f.ProjectsEnvelope {
			writeJSON(w, http.StatusOK, map[string]any{"count": len(projects), "results": projects})
			return
		}
		writeJSON(w, http.StatusOK, projects)
	})
	r.Post("/api/projects/", func(w http.ResponseWriter, r *http.Request) {
		var spec labelsync.ProjectSpec
		if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
			return
		}
		p, err := f.CreateProject(r.Context(), spec)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, p)
	})
	r.Delete("/api/projects/{id}/", func(w http.ResponseWriter, r *http.Request) {
		if err := f.DeleteProject(r.Context(), pathID(r)); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/api/projects/{id}/tasks/", func(w http.ResponseWriter, r *http.Request) {
		tasks, err := f.ListTasks(r.Context(), pathID(r))
		if err != nil {
			writeError(w, err)
			return
		}
		if f.TasksEnvelope != "" {
			writeJSON(w, http.StatusOK, map[string]any{f.TasksEnvelope: tasks})
			return
		}
		writeJSON(w, http.StatusOK, tasks)
	})
	r.Post("/api/projects/{id}/import", func(w http.ResponseWriter, r *http.Request) {
		var tasks []labelsync.TaskData
		if err := json.NewDecoder(r.Body).Decode(&tasks); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
			return
		}
		if err := f.ImportTasks(r.Context(), pathID(r), tasks); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]int{"task_count": len(tasks)})
	})
	r.Delete("/api/tasks/{id}/", func(w http.ResponseWriter, r *http.Request) {
		if err := f.DeleteTask(r.Context(), pathID(r)); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

func (f *FakeStudio) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if f.Token != "" && r.Header.Get("Authorization") != "Token "+f.Token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid token."})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if rejected, ok := err.(*labelsync.RejectedError); ok {
		status = rejected.StatusCode
	}
	writeJSON(w, status, map[string]string{"detail": fmt.Sprint(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
