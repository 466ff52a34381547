package engine

import (
	"context"

	"reforesta/internal/domain"
)

// GlobalStats recomputes the dashboard numbers from current entity
// state. Nothing here is cached or incrementally maintained: a missing
// or failed count surfaces as an error rather than a stale zero.
func (e Engine) GlobalStats(ctx context.Context) (domain.GlobalStats, error) {
	byStatus, err := e.Repo.CountProjectsByStatus(ctx)
	if err != nil {
		return domain.GlobalStats{}, err
	}
	total := 0
	for _, n := range byStatus {
		total += n
	}
	regs, volunteers, err := e.Repo.CountRegistrations(ctx)
	if err != nil {
		return domain.GlobalStats{}, err
	}
	attendances, trees, err := e.Repo.CountAttendances(ctx)
	if err != nil {
		return domain.GlobalStats{}, err
	}
	return domain.GlobalStats{
		TotalProjects:      total,
		TotalRegistrations: regs,
		UniqueVolunteers:   volunteers,
		TotalAttendances:   attendances,
		TreesPlanted:       trees,
		ProjectsByStatus:   byStatus,
	}, nil
}

// ProjectProgress reports trees planted and confirmed volunteers against
// the project's targets. Percentages are clamped to [0, 100]: attendance
// validation keeps totals under target, but clamping here means a later
// target edit can never push the figure past 100.
func (e Engine) ProjectProgress(ctx context.Context, projectID string) (domain.ProjectProgress, error) {
	proj, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return domain.ProjectProgress{}, err
	}
	trees, err := e.Repo.SumTreesPlanted(ctx, projectID)
	if err != nil {
		return domain.ProjectProgress{}, err
	}
	volunteers, err := e.Repo.CountConfirmedRegistrations(ctx, projectID)
	if err != nil {
		return domain.ProjectProgress{}, err
	}
	return domain.ProjectProgress{
		ProjectID:        proj.ID,
		TreesPlanted:     trees,
		TreeTarget:       proj.TreeTarget,
		TreesPercent:     percent(trees, proj.TreeTarget),
		Volunteers:       volunteers,
		VolunteerTarget:  proj.VolunteerTarget,
		VolunteerPercent: percent(volunteers, proj.VolunteerTarget),
	}, nil
}

// percent returns 100*n/target clamped to [0, 100]. A zero target reads
// as 0%, never a division error.
func percent(n, target int) float64 {
	if target <= 0 {
		return 0
	}
	p := float64(n) / float64(target) * 100
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
