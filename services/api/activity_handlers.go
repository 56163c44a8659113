package main

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bizworx/bizworx-api/shared/models"
	"github.com/bizworx/bizworx-api/shared/tenancy"
	"github.com/bizworx/bizworx-api/shared/utils"
)

// Dashboard summarizes a business at a glance
type Dashboard struct {
	Clients          int64                `json:"clients"`
	OpenJobs         int64                `json:"open_jobs"`
	JobsByStatus     map[string]int64     `json:"jobs_by_status"`
	PendingEstimates int64                `json:"pending_estimates"`
	OutstandingTotal float64              `json:"outstanding_total"`
	OverdueInvoices  int64                `json:"overdue_invoices"`
	PaidThisMonth    float64              `json:"paid_this_month"`
	ClockedIn        int64                `json:"clocked_in"`
	RecentActivity   []models.ActivityLog `json:"recent_activity"`
}

type statusCount struct {
	Status string
	Count  int64
}

func buildDashboard(ctx context.Context, scope *tenancy.Scope, now time.Time) (*Dashboard, error) {
	d := &Dashboard{JobsByStatus: map[string]int64{}}

	if err := scope.Query(ctx).Model(&models.Client{}).Count(&d.Clients).Error; err != nil {
		return nil, err
	}

	var jobs []statusCount
	if err := scope.Query(ctx).Model(&models.Job{}).Select("status, COUNT(*) AS count").
		Group("status").Scan(&jobs).Error; err != nil {
		return nil, err
	}
	for _, row := range jobs {
		d.JobsByStatus[row.Status] = row.Count
		if models.JobStatus(row.Status).Open() {
			d.OpenJobs += row.Count
		}
	}

	if err := scope.Query(ctx).Model(&models.Estimate{}).
		Where("status IN ?", []models.EstimateStatus{models.EstimateDraft, models.EstimateSent}).
		Count(&d.PendingEstimates).Error; err != nil {
		return nil, err
	}

	var outstanding struct{ Total float64 }
	if err := scope.Query(ctx).Model(&models.Invoice{}).Select("COALESCE(SUM(total - amount_paid), 0) AS total").
		Where("status = ?", models.InvoiceSent).Scan(&outstanding).Error; err != nil {
		return nil, err
	}
	d.OutstandingTotal = outstanding.Total

	if err := scope.Query(ctx).Model(&models.Invoice{}).
		Where("status = ? AND due_date < ?", models.InvoiceSent, now).
		Count(&d.OverdueInvoices).Error; err != nil {
		return nil, err
	}

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	var paid struct{ Total float64 }
	if err := scope.Query(ctx).Model(&models.Invoice{}).Select("COALESCE(SUM(total), 0) AS total").
		Where("status = ? AND paid_at >= ?", models.InvoicePaid, monthStart).Scan(&paid).Error; err != nil {
		return nil, err
	}
	d.PaidThisMonth = paid.Total

	if err := scope.Query(ctx).Model(&models.TimeEntry{}).Where("status = ?", models.TimeEntryActive).
		Count(&d.ClockedIn).Error; err != nil {
		return nil, err
	}

	if err := scope.Query(ctx).Order("occurred_at DESC").Limit(10).Find(&d.RecentActivity).Error; err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Server) handleListActivity(c *gin.Context) {
	scope, _, ok := s.scope(c)
	if !ok {
		return
	}

	query := scope.Query(c.Request.Context()).Model(&models.ActivityLog{})
	if t := c.Query("type"); t != "" {
		query = query.Where("type = ?", t)
	}
	if entity := c.Query("entity_id"); entity != "" {
		query = query.Where("entity_id = ?", entity)
	}

	limit, offset := page(c)
	var entries []models.ActivityLog
	if err := query.Order("occurred_at DESC").Limit(limit).Offset(offset).Find(&entries).Error; err != nil {
		s.respondError(c, err, "Activity")
		return
	}
	utils.OKResponse(c, "Activity retrieved", entries)
}

func (s *Server) handleDashboard(c *gin.Context) {
	scope, _, ok := s.scope(c)
	if !ok {
		return
	}
	d, err := buildDashboard(c.Request.Context(), scope, s.now())
	if err != nil {
		s.respondError(c, err, "Dashboard")
		return
	}
	utils.OKResponse(c, "Dashboard retrieved", d)
}
