package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/garyellow/kmutt-form-bot/internal/buildinfo"
	"github.com/garyellow/kmutt-form-bot/internal/catalog"
	"github.com/garyellow/kmutt-form-bot/internal/chat"
	"github.com/garyellow/kmutt-form-bot/internal/config"
	"github.com/garyellow/kmutt-form-bot/internal/document"
	domerrors "github.com/garyellow/kmutt-form-bot/internal/errors"
	"github.com/garyellow/kmutt-form-bot/internal/r2client"
	"github.com/garyellow/kmutt-form-bot/internal/sentry"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type chatRequest struct {
	Message string `json:"message" validate:"required,max=4000"`
}

type generateRequest struct {
	FormType  string         `json:"form_type" validate:"required,max=32"`
	StudentID string         `json:"student_id" validate:"required,max=32"`
	FormData  map[string]any `json:"form_data" validate:"required"`
}

// bindJSON decodes and validates body into dst. The returned message is the
// 400 detail.
func bindJSON(c *gin.Context, dst any) (string, bool) {
	if err := c.ShouldBindJSON(dst); err != nil {
		return "invalid JSON body: " + err.Error(), false
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return domerrors.NewValidationError(jsonField(fe), fe.Tag()).Error(), false
		}
		return err.Error(), false
	}
	return "", true
}

// jsonField maps a struct field to its wire name.
func jsonField(fe validator.FieldError) string {
	switch fe.Field() {
	case "Message":
		return "message"
	case "FormType":
		return "form_type"
	case "StudentID":
		return "student_id"
	case "FormData":
		return "form_data"
	}
	return fe.Field()
}

func (a *Application) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "Server is running 🚀"})
}

func (a *Application) livenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (a *Application) readinessCheck(c *gin.Context) {
	if !a.readiness.IsReady() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "not ready",
			"readiness": a.readiness.Status(),
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), config.ReadinessCheck)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		a.logger.WithError(err).Warn("Readiness check failed: database unavailable")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "database unavailable",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "ready",
		"database": "connected",
		"version":  buildinfo.Release(),
		"corpus":   a.corpusStats(ctx),
		"features": a.features(),
	})
}

func (a *Application) corpusStats(ctx context.Context) map[string]int {
	stats := make(map[string]int, 3)
	stats["forms"] = a.catalog.Len()
	if n, err := a.db.CountPassages(ctx); err == nil {
		stats["passages"] = n
	} else {
		a.logger.WithError(err).Warn("Failed to count passages")
	}
	if n, err := a.db.CountDocuments(ctx); err == nil {
		stats["documents"] = n
	} else {
		a.logger.WithError(err).Warn("Failed to count generated documents")
	}
	return stats
}

func (a *Application) features() map[string]bool {
	_, retrieverBuilt := a.components.retriever.Peek()
	return map[string]bool{
		"llm":            a.cfg.HasLLMProvider(),
		"dense_search":   a.cfg.GeminiAPIKey != "",
		"qdrant":         a.cfg.QdrantURL != "" && a.cfg.GeminiAPIKey != "",
		"retriever_warm": retrieverBuilt,
		"archive":        a.archive != nil && a.archive.Enabled(),
		"retention":      a.sweeper.Enabled(),
		"error_tracking": sentry.IsEnabled(),
	}
}

func (a *Application) handleChat(c *gin.Context) {
	var req chatRequest
	if detail, ok := bindJSON(c, &req); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"detail": detail})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), a.cfg.ChatTimeout)
	defer cancel()

	c.JSON(http.StatusOK, a.chat.Reply(ctx, req.Message))
}

func chatRateLimited(c *gin.Context) {
	c.JSON(http.StatusTooManyRequests, chat.Response{
		Reply:   domerrors.MsgRateLimited,
		Sources: []catalog.Source{},
	})
}

func detailRateLimited(c *gin.Context) {
	c.JSON(http.StatusTooManyRequests, gin.H{"detail": domerrors.MsgRateLimited})
}

func (a *Application) handleGenerateDocument(c *gin.Context) {
	var req generateRequest
	if detail, ok := bindJSON(c, &req); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"detail": detail})
		return
	}

	rec := document.NewRecord(req.FormType, req.StudentID, req.FormData)
	stream, entry, err := a.renderer.RenderToStream(c.Request.Context(), rec)
	if err != nil {
		a.logger.WithError(err).WithField("form_type", req.FormType).
			WarnContext(c.Request.Context(), "Document render failed")
		if !errors.Is(err, domerrors.ErrUnknownForm) {
			sentry.CaptureError(c.Request.Context(), err)
		}
		c.JSON(http.StatusBadRequest, gin.H{"detail": domerrors.MsgRenderFailed})
		return
	}

	name := document.FileName(entry, rec)
	c.DataFromReader(http.StatusOK, stream.Size(), document.ContentType, stream, map[string]string{
		"Content-Disposition": contentDisposition(name),
	})
}

// contentDisposition uses the RFC 5987 form so non-ASCII names survive.
func contentDisposition(name string) string {
	return fmt.Sprintf("attachment; filename*=utf-8''%s", url.PathEscape(name))
}

// serveOutput serves a generated file from the output directory and falls
// back to the R2 archive when the local copy is gone.
func (a *Application) serveOutput(c *gin.Context) {
	name := path.Base("/" + c.Param("name"))
	if name == "/" || strings.HasPrefix(name, ".") {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not Found"})
		return
	}
	contentType := outputContentType(name)

	local := filepath.Join(a.cfg.OutputDir, name)
	if st, err := os.Stat(local); err == nil && st.Mode().IsRegular() {
		c.Header("Content-Type", contentType)
		c.File(local)
		return
	}

	if a.archive == nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not Found"})
		return
	}
	body, err := a.archive.Open(c.Request.Context(), name)
	if err != nil {
		if !errors.Is(err, r2client.ErrNotFound) {
			a.logger.WithError(err).WithField("file", name).
				WarnContext(c.Request.Context(), "Archive fallback failed")
		}
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not Found"})
		return
	}
	defer func() { _ = body.Close() }()

	c.DataFromReader(http.StatusOK, -1, contentType, body, nil)
}

func outputContentType(name string) string {
	if strings.EqualFold(filepath.Ext(name), ".docx") {
		return document.ContentType
	}
	return "application/octet-stream"
}
