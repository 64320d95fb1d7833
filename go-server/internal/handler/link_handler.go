package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fonsecaaso/shortlink/go-server/internal/model"
	"github.com/fonsecaaso/shortlink/go-server/internal/service"
)

type CreateLinkRequest struct {
	OriginalURL string `json:"original_url" binding:"required"`
	Title       string `json:"title"`
	ShortCode   string `json:"short_code"`
	Password    string `json:"password"`
	ExpiresAt   string `json:"expires_at"`
}

// BatchCreateRequest accepts titles as a JSON array or a newline separated string.
type BatchCreateRequest struct {
	OriginalURL string          `json:"original_url" binding:"required"`
	Titles      json.RawMessage `json:"titles" binding:"required"`
	Password    string          `json:"password"`
	ExpiresAt   string          `json:"expires_at"`
}

// LinkResponse never exposes the stored password.
type LinkResponse struct {
	ShortCode   string     `json:"short_code"`
	ShortURL    string     `json:"short_url"`
	OriginalURL string     `json:"original_url"`
	Title       *string    `json:"title"`
	HasPassword bool       `json:"has_password"`
	ExpiresAt   *time.Time `json:"expires_at"`
	ClickCount  int64      `json:"click_count"`
	CreatedAt   time.Time  `json:"created_at"`
}

type BatchItem struct {
	ShortCode string `json:"short_code"`
	Title     string `json:"title"`
	ShortURL  string `json:"short_url"`
}

type LinkHandler struct {
	service *service.LinkService
	logger  *zap.Logger
}

func NewLinkHandler(service *service.LinkService) *LinkHandler {
	return &LinkHandler{
		service: service,
		logger:  zap.L().With(zap.String("component", "LinkHandler")),
	}
}

func (h *LinkHandler) Create(c *gin.Context) {
	var req CreateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", zap.Error(err))
		invalidPayload(c)
		return
	}

	link, err := h.service.Shorten(c.Request.Context(), service.CreateLinkInput{
		OriginalURL: req.OriginalURL,
		Title:       req.Title,
		ShortCode:   req.ShortCode,
		Password:    req.Password,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		handleError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, toLinkResponse(c, link))
}

func (h *LinkHandler) BatchCreate(c *gin.Context) {
	var req BatchCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", zap.Error(err))
		invalidPayload(c)
		return
	}

	titles, ok := parseTitles(req.Titles)
	if !ok {
		invalidPayload(c)
		return
	}

	links, err := h.service.BatchCreate(c.Request.Context(), service.BatchCreateInput{
		OriginalURL: req.OriginalURL,
		Titles:      titles,
		Password:    req.Password,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		handleError(c, h.logger, err)
		return
	}

	items := make([]BatchItem, 0, len(links))
	for i := range links {
		items = append(items, BatchItem{
			ShortCode: links[i].ShortCode,
			Title:     links[i].DisplayTitle(),
			ShortURL:  shortURL(c, links[i].ShortCode),
		})
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"count":   len(items),
		"items":   items,
	})
}

func (h *LinkHandler) List(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil {
		page = 1
	}

	result, err := h.service.List(c.Request.Context(), page)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}

	links := make([]LinkResponse, 0, len(result.Links))
	for i := range result.Links {
		links = append(links, toLinkResponse(c, &result.Links[i]))
	}

	c.JSON(http.StatusOK, gin.H{
		"links":     links,
		"total":     result.Total,
		"page":      result.Page,
		"page_size": result.PageSize,
	})
}

func (h *LinkHandler) Get(c *gin.Context) {
	link, err := h.service.Get(c.Request.Context(), strings.TrimSpace(c.Param("code")))
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toLinkResponse(c, link))
}

// Codes serves the short code autocomplete
func (h *LinkHandler) Codes(c *gin.Context) {
	options, err := h.service.SearchOptions(c.Request.Context(), c.Query("q"))
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"options": options})
}

func (h *LinkHandler) Delete(c *gin.Context) {
	code := strings.TrimSpace(c.Param("code"))
	if err := h.service.Delete(c.Request.Context(), code); err != nil {
		handleError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"short_code": code,
	})
}

func toLinkResponse(c *gin.Context, link *model.Link) LinkResponse {
	return LinkResponse{
		ShortCode:   link.ShortCode,
		ShortURL:    shortURL(c, link.ShortCode),
		OriginalURL: link.OriginalURL,
		Title:       link.Title,
		HasPassword: link.HasPassword(),
		ExpiresAt:   link.ExpiresAt,
		ClickCount:  link.ClickCount,
		CreatedAt:   link.CreatedAt,
	}
}

func shortURL(c *gin.Context, code string) string {
	scheme := "http"
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	} else if c.Request.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host + "/" + code
}

func parseTitles(raw json.RawMessage) ([]string, bool) {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, true
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n"), true
	}
	return nil, false
}
