package handler

import (
	"context"
	"embed"
	"html/template"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
	"go.uber.org/zap"

	"github.com/fonsecaaso/shortlink/go-server/internal/model"
	"github.com/fonsecaaso/shortlink/go-server/internal/service"
)

const maxPasswordBody = 4 << 10

//go:embed templates/*.html
var templateFS embed.FS

var passwordPrompt = template.Must(template.ParseFS(templateFS, "templates/password.html"))

// Resolver is satisfied by *service.ResolveService
type Resolver interface {
	Resolve(ctx context.Context, req service.ResolveRequest) (service.Outcome, error)
}

type RedirectHandler struct {
	resolver Resolver
	logger   *zap.Logger
}

func NewRedirectHandler(resolver Resolver) *RedirectHandler {
	return &RedirectHandler{
		resolver: resolver,
		logger:   zap.L().With(zap.String("component", "RedirectHandler")),
	}
}

type passwordPage struct {
	ShortCode string
	Error     string
}

type passwordBody struct {
	Password *string `json:"password"`
}

// Redirect handles GET /:code
func (h *RedirectHandler) Redirect(c *gin.Context) {
	code := strings.TrimSpace(c.Param("code"))
	wantsHTML := acceptsHTML(c.GetHeader("Accept"), true)

	out, err := h.resolver.Resolve(c.Request.Context(), service.ResolveRequest{
		ShortCode: code,
		Meta:      clickMeta(c),
	})
	h.respond(c, code, out, err, wantsHTML, true)
}

// Unlock handles POST /:code, the password submission for protected links
func (h *RedirectHandler) Unlock(c *gin.Context) {
	code := strings.TrimSpace(c.Param("code"))
	isForm := isFormContent(c.ContentType())
	wantsHTML := isForm || acceptsHTML(c.GetHeader("Accept"), false)

	out, err := h.resolver.Resolve(c.Request.Context(), service.ResolveRequest{
		ShortCode: code,
		Password:  h.passwordFromRequest(c, isForm),
		Meta:      clickMeta(c),
	})
	h.respond(c, code, out, err, wantsHTML, wantsHTML)
}

func (h *RedirectHandler) respond(c *gin.Context, code string, out service.Outcome, err error, wantsHTML, redirect bool) {
	if err != nil {
		handleError(c, h.logger, err)
		return
	}

	switch out.Kind {
	case service.OutcomeRedirect:
		if redirect {
			c.Redirect(http.StatusFound, out.Link.OriginalURL)
			return
		}
		c.JSON(http.StatusOK, gin.H{"original_url": out.Link.OriginalURL})
	case service.OutcomeExpired:
		c.JSON(http.StatusGone, ErrorResponse{
			Error: "This short link has expired",
			Code:  "LINK_EXPIRED",
		})
	case service.OutcomePasswordRequired:
		if wantsHTML {
			h.renderPrompt(c, http.StatusOK, code, "")
			return
		}
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error: "Password required",
			Code:  "PASSWORD_REQUIRED",
		})
	case service.OutcomeInvalidPassword:
		if wantsHTML {
			h.renderPrompt(c, http.StatusUnauthorized, code, "Invalid password")
			return
		}
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error: "Invalid password",
			Code:  "INVALID_PASSWORD",
		})
	default:
		c.JSON(http.StatusNotFound, errLinkNotFound)
	}
}

func (h *RedirectHandler) renderPrompt(c *gin.Context, status int, code, message string) {
	c.Render(status, render.HTML{
		Template: passwordPrompt,
		Name:     "password.html",
		Data:     passwordPage{ShortCode: code, Error: message},
	})
}

// passwordFromRequest reads the password from a JSON body, a form, or a raw
// urlencoded body. nil means no password was submitted.
func (h *RedirectHandler) passwordFromRequest(c *gin.Context, isForm bool) *string {
	if isForm {
		if pw, ok := c.GetPostForm("password"); ok {
			return &pw
		}
		return nil
	}

	if c.ContentType() == gin.MIMEJSON {
		var body passwordBody
		if err := c.ShouldBindJSON(&body); err != nil {
			h.logger.Debug("Unreadable password body", zap.Error(err))
			return nil
		}
		return body.Password
	}

	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPasswordBody))
	if err != nil || len(raw) == 0 {
		return nil
	}
	values, err := url.ParseQuery(strings.TrimSpace(string(raw)))
	if err != nil || !values.Has("password") {
		return nil
	}
	pw := values.Get("password")
	return &pw
}

func acceptsHTML(accept string, wildcard bool) bool {
	accept = strings.ToLower(accept)
	if strings.Contains(accept, "text/html") {
		return true
	}
	return wildcard && strings.Contains(accept, "*/*")
}

func isFormContent(contentType string) bool {
	return contentType == gin.MIMEPOSTForm || contentType == gin.MIMEMultipartPOSTForm
}

func clickMeta(c *gin.Context) model.ClickMeta {
	return model.ClickMeta{
		ClientAddress: c.ClientIP(),
		UserAgent:     c.Request.UserAgent(),
		Referer:       c.Request.Referer(),
	}
}
