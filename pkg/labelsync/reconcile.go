package labelsync

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Reconcile deletes every project sharing its title with an older project
// and, inside each surviving project, every task sharing its image filename
// with an older task. The member with the lowest id is canonical. Delete
// failures are logged and skipped; a second pass without outside changes
// deletes nothing.
func (s *Syncer) Reconcile(ctx context.Context) (ReconcileResult, error) {
	start := s.now()
	var result ReconcileResult
	defer func() {
		s.observer.ReconcileFinished(s.now().Sub(start), result)
	}()

	projects, err := s.client.ListProjects(ctx)
	if err != nil {
		return result, fmt.Errorf("list projects: %w", err)
	}

	for _, group := range groupProjects(projects) {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		canonical := group[0]

		for _, dup := range group[1:] {
			if err := s.client.DeleteProject(ctx, dup.ID); err != nil {
				s.logger.Error("failed to delete duplicate project", "title", dup.Title, "project_id", dup.ID, "err", err)
				s.observer.DeleteFailed(KindProject)
				continue
			}
			result.DeletedProjects++
			result.Details = append(result.Details,
				fmt.Sprintf("deleted project %d (duplicate of %d, title %q)", dup.ID, canonical.ID, dup.Title))
			s.observer.DuplicateDeleted(KindProject)
		}

		s.reconcileTasks(ctx, canonical, &result)
	}

	if result.DeletedProjects > 0 || result.DeletedTasks > 0 {
		s.logger.Info("reconciliation removed duplicates",
			"deleted_projects", result.DeletedProjects,
			"deleted_tasks", result.DeletedTasks,
			"duration", s.now().Sub(start))
	}
	return result, nil
}

func (s *Syncer) reconcileTasks(ctx context.Context, project ExternalProject, result *ReconcileResult) {
	tasks, err := s.client.ListTasks(ctx, project.ID)
	if err != nil {
		s.logger.Warn("failed to list tasks", "project_id", project.ID, "err", err)
		return
	}

	for _, group := range groupTasks(tasks) {
		canonical := group[0]
		for _, dup := range group[1:] {
			if err := s.client.DeleteTask(ctx, dup.ID); err != nil {
				s.logger.Error("failed to delete duplicate task", "project_id", project.ID, "task_id", dup.ID, "filename", dup.Data.ImageFilename, "err", err)
				s.observer.DeleteFailed(KindTask)
				continue
			}
			result.DeletedTasks++
			result.Details = append(result.Details,
				fmt.Sprintf("deleted task %d in project %d (duplicate of %d, filename %q)", dup.ID, project.ID, canonical.ID, dup.Data.ImageFilename))
			s.observer.DuplicateDeleted(KindTask)
		}
	}
}

// RunPeriodic reconciles every interval until ctx is done
func (s *Syncer) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("periodic reconciliation started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("periodic reconciliation stopped")
			return
		case <-ticker.C:
			if _, err := s.Reconcile(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("periodic reconciliation failed", "err", err)
			}
		}
	}
}

// canonicalProject returns the lowest-id project titled title
func canonicalProject(projects []ExternalProject, title string) (ExternalProject, bool) {
	var found ExternalProject
	ok := false
	for _, p := range projects {
		if p.Title == title && (!ok || p.ID < found.ID) {
			found, ok = p, true
		}
	}
	return found, ok
}

// groupProjects groups projects by title. Each group is ordered by id and
// groups are ordered by their canonical id. Untitled projects carry no
// identity and are left alone.
func groupProjects(projects []ExternalProject) [][]ExternalProject {
	byTitle := make(map[string][]ExternalProject)
	for _, p := range projects {
		if p.Title == "" {
			continue
		}
		byTitle[p.Title] = append(byTitle[p.Title], p)
	}

	groups := make([][]ExternalProject, 0, len(byTitle))
	for _, group := range byTitle {
		sort.SliceStable(group, func(i, j int) bool { return group[i].ID < group[j].ID })
		groups = append(groups, group)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i][0].ID < groups[j][0].ID })
	return groups
}

// groupTasks groups tasks by image filename with the same ordering rules
// as groupProjects. Tasks without a filename are left alone.
func groupTasks(tasks []ExternalTask) [][]ExternalTask {
	byName := make(map[string][]ExternalTask)
	for _, t := range tasks {
		if t.Data.ImageFilename == "" {
			continue
		}
		byName[t.Data.ImageFilename] = append(byName[t.Data.ImageFilename], t)
	}

	groups := make([][]ExternalTask, 0, len(byName))
	for _, group := range byName {
		sort.SliceStable(group, func(i, j int) bool { return group[i].ID < group[j].ID })
		groups = append(groups, group)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i][0].ID < groups[j][0].ID })
	return groups
}
