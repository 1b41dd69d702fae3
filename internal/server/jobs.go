package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"reportd/internal/jobs"
	"reportd/internal/report"
	logx "reportd/pkg/logx"
)

type submitRequest struct {
	ReportType string   `json:"report_type" binding:"required"`
	StartDate  string   `json:"start_date" binding:"required"`
	EndDate    string   `json:"end_date"`
	Statuses   []string `json:"statuses"`
	TillNow    bool     `json:"till_now"`
}

func (s *Server) submitJob(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	jobID, err := s.jobs.Submit(c.Request.Context(), jobs.SubmitRequest{
		ReportType: req.ReportType,
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
		Statuses:   req.Statuses,
		TillNow:    req.TillNow,
	})
	switch {
	case errors.Is(err, report.ErrEndDateRequired), errors.Is(err, report.ErrUnknownReport):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		s.log.Error("job submit failed", logx.String("report", req.ReportType), logx.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start job"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"job_id": jobID})
}

func (s *Server) jobStatus(c *gin.Context) {
	rec, err := s.jobs.Poll(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) cancelJob(c *gin.Context) {
	jobID := c.Param("id")
	if err := s.jobs.Cancel(jobID); err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not running"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"job_id": jobID, "status": "cancelled"})
}

func (s *Server) downloadJob(c *gin.Context) {
	path, filename, err := s.jobs.Download(c.Param("id"))
	if err != nil {
		if errors.Is(err, jobs.ErrFileNotReady) {
			c.JSON(http.StatusNotFound, gin.H{"error": "file not ready"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.FileAttachment(path, filename)
}

func (s *Server) jobHistory(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"jobs": s.jobs.History()})
}
