// Package chat answers student messages: it routes each message to the
// document generator or the question answerer and never fails the caller.
package chat

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/garyellow/kmutt-form-bot/internal/catalog"
	"github.com/garyellow/kmutt-form-bot/internal/config"
	"github.com/garyellow/kmutt-form-bot/internal/ctxutil"
	"github.com/garyellow/kmutt-form-bot/internal/document"
	domerrors "github.com/garyellow/kmutt-form-bot/internal/errors"
	"github.com/garyellow/kmutt-form-bot/internal/intent"
	"github.com/garyellow/kmutt-form-bot/internal/lazy"
	"github.com/garyellow/kmutt-form-bot/internal/logger"
	"github.com/garyellow/kmutt-form-bot/internal/metrics"
	"github.com/garyellow/kmutt-form-bot/internal/rag"
	"github.com/garyellow/kmutt-form-bot/internal/sentry"
)

// msgDocumentReady is the success reply of the generation branch.
const msgDocumentReady = "สร้างเอกสาร %s เรียบร้อยแล้วครับ\n⬇️ ดาวน์โหลดที่นี่: %s"

// Response is the /chat reply.
type Response struct {
	Reply   string           `json:"reply"`
	Sources []catalog.Source `json:"sources"`
}

// Answerer is the advisor stage.
type Answerer interface {
	Answer(ctx context.Context, contextText, question string) (string, error)
}

// Extractor is the extraction stage. It returns the raw JSON text.
type Extractor interface {
	Extract(ctx context.Context, message string) (string, error)
}

// FileRenderer writes filled documents to the output directory.
type FileRenderer interface {
	RenderToFile(ctx context.Context, rec document.Record) (*document.Rendered, error)
}

// Mirror copies a rendered file to object storage.
type Mirror interface {
	Enabled() bool
	Mirror(ctx context.Context, localPath, name, contentType string) error
}

// ArchiveRegistry flags mirrored documents.
type ArchiveRegistry interface {
	MarkArchived(ctx context.Context, fileName string) error
}

// Config wires a Service. Retriever, Advisor and Extractor are built lazily;
// Archive and Registry are optional.
type Config struct {
	Catalog       *catalog.Catalog
	Router        *intent.Router
	Retriever     *lazy.Value[rag.Retriever]
	Advisor       *lazy.Value[Answerer]
	Extractor     *lazy.Value[Extractor]
	Parser        *document.Parser
	Renderer      FileRenderer
	Archive       Mirror
	Registry      ArchiveRegistry
	PublicBaseURL string
	Metrics       *metrics.Metrics
	Logger        *logger.Logger
}

// Service handles chat messages.
type Service struct {
	cfg       Config
	assembler *Assembler
	logger    *logger.Logger

	mu      sync.Mutex // guards closing and mirrors.Go
	closing bool
	mirrors sync.WaitGroup
}

// NewService creates a chat service.
func NewService(cfg Config) *Service {
	if cfg.Router == nil {
		cfg.Router = intent.NewRouter()
	}
	return &Service{
		cfg:       cfg,
		assembler: NewAssembler(cfg.Catalog),
		logger:    cfg.Logger.WithModule("chat"),
	}
}

// Reply answers message. Failures become a reply text; Sources is never nil.
func (s *Service) Reply(ctx context.Context, message string) Response {
	start := time.Now()
	in := s.cfg.Router.Route(message)
	ctx = ctxutil.WithIntent(ctx, in.String())

	var (
		resp Response
		err  error
	)
	if in == intent.Generate {
		resp, err = s.generate(ctx, message)
	} else {
		resp, err = s.answer(ctx, message)
	}

	outcome := "success"
	if err != nil {
		outcome = outcomeOf(err)
		if sentry.ShouldReport(err) {
			s.logger.WithError(err).ErrorContext(ctx, "Chat request failed")
			sentry.CaptureError(ctx, err)
		} else {
			s.logger.WithError(err).DebugContext(ctx, "Chat request declined")
		}
	}
	if resp.Sources == nil {
		resp.Sources = []catalog.Source{}
	}
	s.cfg.Metrics.RecordChat(in.String(), outcome, time.Since(start).Seconds())
	return resp
}

func (s *Service) answer(ctx context.Context, message string) (Response, error) {
	fail := Response{Reply: domerrors.MsgSystemError}

	retriever, err := s.cfg.Retriever.Get(ctx)
	if err != nil {
		return fail, domerrors.NewUpstreamError("retriever", err)
	}
	asm, err := s.assembler.Assemble(ctx, retriever, message)
	if err != nil {
		return fail, domerrors.NewUpstreamError("retriever", err)
	}
	for _, m := range asm.Classification.Matches {
		s.cfg.Metrics.RecordClassifierHit(m.Entry.Code)
	}

	advisor, err := s.cfg.Advisor.Get(ctx)
	if err != nil {
		return fail, domerrors.NewUpstreamError("advisor", err)
	}
	reply, err := advisor.Answer(ctx, asm.Context, message)
	if err != nil {
		return fail, domerrors.NewUpstreamError("advisor", err)
	}
	return Response{Reply: reply, Sources: asm.Sources}, nil
}

func (s *Service) generate(ctx context.Context, message string) (Response, error) {
	extractor, err := s.cfg.Extractor.Get(ctx)
	if err != nil {
		return Response{Reply: domerrors.MsgSystemError}, domerrors.NewUpstreamError("extractor", err)
	}

	raw, err := extractor.Extract(ctx, message)
	if err != nil {
		// Extraction failures read as missing details, never as a crash.
		s.logger.WithError(err).WarnContext(ctx, "Extraction failed")
		raw = ""
	}
	rec := s.cfg.Parser.Parse(ctx, raw)
	if rec.IsEmpty() {
		return Response{Reply: domerrors.MsgInsufficientInfo}, domerrors.ErrInsufficientInfo
	}

	rendered, err := s.cfg.Renderer.RenderToFile(ctx, rec)
	switch {
	case errors.Is(err, domerrors.ErrUnknownForm):
		return Response{Reply: domerrors.MsgUnknownForm}, err
	case err != nil:
		return Response{Reply: domerrors.MsgSystemError}, err
	}

	link := s.DownloadURL(rendered.FileName)
	s.mirror(ctx, rendered)

	return Response{
		Reply:   fmt.Sprintf(msgDocumentReady, rendered.Form.Label(), link),
		Sources: []catalog.Source{{Doc: rendered.Form.Label(), Page: 1, URL: link}},
	}, nil
}

// DownloadURL is the public link of a generated file.
func (s *Service) DownloadURL(fileName string) string {
	return s.cfg.PublicBaseURL + "/output/" + url.PathEscape(fileName)
}

// mirror uploads the rendered file in the background so the reply is not
// held up by object storage.
func (s *Service) mirror(ctx context.Context, r *document.Rendered) {
	if s.cfg.Archive == nil || !s.cfg.Archive.Enabled() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		s.logger.WithField("file", r.FileName).WarnContext(ctx, "Shutting down, archive upload skipped")
		return
	}

	bg := ctxutil.PreserveTracing(ctx)
	s.mirrors.Go(func() {
		uploadCtx, cancel := context.WithTimeout(bg, config.ArchiveUpload)
		defer cancel()

		if err := s.cfg.Archive.Mirror(uploadCtx, r.Path, r.FileName, document.ContentType); err != nil {
			s.cfg.Metrics.RecordArchiveUpload("error")
			s.logger.WithError(err).WithField("file", r.FileName).WarnContext(uploadCtx, "Archive upload failed")
			return
		}
		s.cfg.Metrics.RecordArchiveUpload("success")
		if s.cfg.Registry != nil {
			if err := s.cfg.Registry.MarkArchived(uploadCtx, r.FileName); err != nil {
				s.logger.WithError(err).WithField("file", r.FileName).WarnContext(uploadCtx, "Failed to mark document archived")
			}
		}
	})
}

// Wait blocks until background archive uploads finish or ctx is done.
// Uploads requested after Wait is called are skipped.
func (s *Service) Wait(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.mirrors.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, domerrors.ErrInsufficientInfo):
		return "insufficient_info"
	case errors.Is(err, domerrors.ErrUnknownForm):
		return "unknown_form"
	case errors.Is(err, domerrors.ErrUpstream):
		return "upstream_error"
	default:
		return "error"
	}
}
