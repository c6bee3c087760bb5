package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aagii9912/smarthub-sub002/internal/abtest"
	"github.com/aagii9912/smarthub-sub002/internal/circuitbreaker"
	"github.com/aagii9912/smarthub-sub002/internal/discount"
	"github.com/aagii9912/smarthub-sub002/internal/domain"
	"github.com/aagii9912/smarthub-sub002/internal/jobqueue"
	"github.com/aagii9912/smarthub-sub002/internal/logger"
)

// AdminHandler exposes the operational API: breaker stats, job stats,
// experiment management, and discount schedules.
type AdminHandler struct {
	breakers    *circuitbreaker.Registry
	jobs        *jobqueue.Service
	experiments *abtest.Manager
	discounts   *discount.Service
	log         logger.Logger
}

func NewAdminHandler(
	breakers *circuitbreaker.Registry,
	jobs *jobqueue.Service,
	experiments *abtest.Manager,
	discounts *discount.Service,
	log logger.Logger,
) *AdminHandler {
	return &AdminHandler{
		breakers:    breakers,
		jobs:        jobs,
		experiments: experiments,
		discounts:   discounts,
		log:         log,
	}
}

// BreakerStats returns every breaker's current state.
func (h *AdminHandler) BreakerStats(c *gin.Context) {
	stats := h.breakers.Stats()
	out := make([]gin.H, 0, len(stats))
	for _, s := range stats {
		out = append(out, gin.H{
			"name":              s.Name,
			"state":             s.State,
			"failure_count":     s.FailureCount,
			"success_count":     s.SuccessCount,
			"last_failure_time": s.LastFailureTime,
			"last_state_change": s.LastStateChange,
			"last_error":        s.LastError,
		})
	}
	c.JSON(http.StatusOK, gin.H{"breakers": out})
}

// ResetBreakers force-closes all breakers.
func (h *AdminHandler) ResetBreakers(c *gin.Context) {
	h.breakers.ResetAll()
	h.log.Info("circuit breakers reset via admin api")
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

// JobStats returns job counts per status.
func (h *AdminHandler) JobStats(c *gin.Context) {
	counts, err := h.jobs.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": counts})
}

// CreateExperiment registers a new A/B experiment.
func (h *AdminHandler) CreateExperiment(c *gin.Context) {
	var exp domain.Experiment
	if err := c.ShouldBindJSON(&exp); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed experiment"})
		return
	}

	created, err := h.experiments.CreateExperiment(c.Request.Context(), exp)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, created)
}

// DeactivateExperiment stops an experiment.
func (h *AdminHandler) DeactivateExperiment(c *gin.Context) {
	if err := h.experiments.DeactivateExperiment(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deactivated"})
}

// ExperimentReport returns per-variant aggregates.
func (h *AdminHandler) ExperimentReport(c *gin.Context) {
	report, err := h.experiments.Report(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"variants": report})
}

// createScheduleRequest is the discount schedule creation payload.
type createScheduleRequest struct {
	ProductID       string    `binding:"required"                json:"product_id"`
	DiscountPercent float64   `binding:"required"                json:"discount_percent"`
	StartDate       time.Time `json:"start_date"`
	EndDate         time.Time `binding:"required"                json:"end_date"`
}

// CreateDiscountSchedule registers a time-boxed discount.
func (h *AdminHandler) CreateDiscountSchedule(c *gin.Context) {
	var req createScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed schedule"})
		return
	}
	if req.StartDate.IsZero() {
		req.StartDate = time.Now()
	}

	created, err := h.discounts.CreateSchedule(c.Request.Context(), domain.DiscountSchedule{
		ProductID:       req.ProductID,
		DiscountPercent: req.DiscountPercent,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, created)
}

// SweepDiscounts deactivates expired schedules on demand.
func (h *AdminHandler) SweepDiscounts(c *gin.Context) {
	n, err := h.discounts.ExpireSweep(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deactivated": n})
}
