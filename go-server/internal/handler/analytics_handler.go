package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fonsecaaso/shortlink/go-server/internal/model"
	"github.com/fonsecaaso/shortlink/go-server/internal/service"
)

// Reporter is satisfied by *service.AnalyticsService
type Reporter interface {
	Report(ctx context.Context, req service.ReportRequest) (*model.AnalyticsReport, error)
}

type AnalyticsHandler struct {
	reporter Reporter
	logger   *zap.Logger
}

func NewAnalyticsHandler(reporter Reporter) *AnalyticsHandler {
	return &AnalyticsHandler{
		reporter: reporter,
		logger:   zap.L().With(zap.String("component", "AnalyticsHandler")),
	}
}

// Report handles GET /api/analytics/:code?range=&start=&end=
func (h *AnalyticsHandler) Report(c *gin.Context) {
	report, err := h.reporter.Report(c.Request.Context(), service.ReportRequest{
		ShortCode: strings.TrimSpace(c.Param("code")),
		Range:     c.Query("range"),
		Start:     c.Query("start"),
		End:       c.Query("end"),
	})
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
