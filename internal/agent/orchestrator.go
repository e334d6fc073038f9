// Package agent runs one marketplace dialogue turn: session lookup, intent,
// business action, reply generation and the dialog log.
package agent

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"marketbot/internal/domain"
	"marketbot/internal/intent"
	"marketbot/internal/metrics"
	"marketbot/internal/reply"
)

const defaultHistoryLimit = 3

var errNoSession = errors.New("missing session id")

// Orchestrator implements domain.MessageProcessor.
type Orchestrator struct {
	sessions     *SessionManager
	market       domain.Marketplace
	generator    domain.TextGenerator
	speech       domain.Transcriber
	vision       domain.ImageAnalyzer
	classifier   *intent.Classifier
	historyLimit int
	now          func() time.Time
	seq          atomic.Uint32
	logger       *slog.Logger
}

// Config holds the collaborators of an Orchestrator. Store is required; a
// nil Generator answers from the local responder, nil Speech or Vision
// produce the "not recognized" replies.
type Config struct {
	Store        domain.DialogStore
	Marketplace  domain.Marketplace
	Generator    domain.TextGenerator
	Speech       domain.Transcriber
	Vision       domain.ImageAnalyzer
	Classifier   *intent.Classifier
	HistoryLimit int // turns included in the generation context, default 3
	Now          func() time.Time
	Logger       *slog.Logger
}

func New(cfg Config) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Generator == nil {
		cfg.Generator = localGenerator{}
	}
	if cfg.Classifier == nil {
		cfg.Classifier = intent.New(nil, cfg.Logger)
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Orchestrator{
		sessions:     NewSessionManager(cfg.Store, cfg.Logger),
		market:       cfg.Marketplace,
		generator:    cfg.Generator,
		speech:       cfg.Speech,
		vision:       cfg.Vision,
		classifier:   cfg.Classifier,
		historyLimit: cfg.HistoryLimit,
		now:          cfg.Now,
		logger:       cfg.Logger,
	}
}

// Process handles one turn. It always returns a non-empty AIResponse and
// Intent; failures surface in Error, or in Action.Error for business
// actions.
func (o *Orchestrator) Process(ctx context.Context, req domain.Request) (res domain.Result) {
	start := o.now()
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("panic while processing message", "session", req.SessionID, "panic", r)
			res = o.failed(req, fmt.Errorf("panic: %v", r))
		}
	}()

	o.logger.Info("processing message",
		"session", req.SessionID,
		"merchant", req.MerchantID,
		"type", req.MessageType,
		"content_len", len(req.Message),
	)

	if strings.TrimSpace(req.SessionID) == "" {
		return o.failed(req, errNoSession)
	}
	sess, err := o.sessions.GetOrCreate(ctx, req.SessionID, req.MerchantID)
	if err != nil {
		o.logger.Error("session lookup failed", "session", req.SessionID, "err", err)
		return o.failed(req, err)
	}

	if req.IsText() {
		res = o.processText(ctx, sess, req)
	} else {
		res = o.processMedia(ctx, sess, req)
	}

	o.logger.Info("message processed",
		"session", req.SessionID,
		"intent", res.Intent,
		"duration_ms", o.now().Sub(start).Milliseconds(),
	)
	return res
}

func (o *Orchestrator) processText(ctx context.Context, sess *domain.Session, req domain.Request) domain.Result {
	in := o.classifier.Classify(req.Message)
	action := o.act(ctx, sess, in, req.Message)

	// Context is read before this turn is stored.
	recent, err := o.sessions.Recent(ctx, sess.SessionID, o.historyLimit)
	if err != nil {
		o.logger.Warn("failed to load history, continuing without it", "session", sess.SessionID, "err", err)
		recent = nil
	}
	answer := o.generator.Generate(ctx, req.Message, buildContext(in, sess.MerchantID, recent), in)

	if err := ctx.Err(); err != nil {
		return o.failed(req, err)
	}

	res := domain.Result{
		Success:    true,
		SessionID:  sess.SessionID,
		Intent:     in,
		AIResponse: answer,
		Action:     action,
		Timestamp:  o.now(),
	}
	res.MessageID = o.persist(ctx, sess.SessionID, in, req.Message, answer)
	metrics.MessageProcessed(domain.TypeText, string(in))
	return res
}

func (o *Orchestrator) processMedia(ctx context.Context, sess *domain.Session, req domain.Request) (res domain.Result) {
	res = domain.Result{
		SessionID:           sess.SessionID,
		Timestamp:           o.now(),
		MultimodalProcessed: true,
		OriginalType:        req.MessageType,
	}
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("panic while processing media", "session", sess.SessionID, "type", req.MessageType, "panic", r)
			res.Success = false
			res.Intent = domain.IntentUnsupported
			res.AIResponse = reply.MultimodalApology
			res.Error = "多模态消息处理失败"
			metrics.FailedTurns.Inc()
		}
	}()

	var att domain.Attachment
	if req.Attachment != nil {
		att = *req.Attachment
	}

	switch req.MessageType {
	case domain.TypeVoice, domain.TypeAudio:
		res.Intent = domain.IntentVoice
		var heard domain.Intent
		if o.speech != nil {
			if t, ok := o.speech.Transcribe(ctx, att); ok {
				res.Transcript = &t
				heard = o.classifier.Classify(t.Text)
			}
		}
		res.AIResponse = reply.Voice(att, res.Transcript, heard)
	case domain.TypePhoto:
		res.Intent = domain.IntentImage
		if o.vision != nil {
			if a, ok := o.vision.Analyze(ctx, att); ok {
				res.Analysis = &a
			}
		}
		res.AIResponse = reply.Image(req.Message, att, res.Analysis)
	case domain.TypeDocument:
		res.Intent = domain.IntentDocument
		res.AIResponse = reply.Document(req.Message, att)
	default:
		res.Intent = domain.IntentUnsupported
		res.AIResponse = reply.Unsupported(req.MessageType)
	}

	if err := ctx.Err(); err != nil {
		return o.failed(req, err)
	}

	res.Success = true
	content := req.Message + " [" + strings.ToUpper(req.MessageType) + "]"
	res.MessageID = o.persist(ctx, sess.SessionID, res.Intent, content, res.AIResponse)
	metrics.MessageProcessed(req.MessageType, string(res.Intent))
	return res
}

// persist stores the turn and returns its message id, or "" when the store
// rejected it. The write outlives caller cancellation.
func (o *Orchestrator) persist(ctx context.Context, sessionID string, in domain.Intent, content, answer string) string {
	now := o.now()
	m := domain.DialogMessage{
		MessageID:   o.messageID(now, sessionID, content),
		SessionID:   sessionID,
		MessageType: string(in),
		Content:     content,
		AIResponse:  answer,
		ProcessedAt: now,
	}
	saveCtx := context.WithoutCancel(ctx)
	if o.sessions.Save(saveCtx, m) {
		return m.MessageID
	}
	// one retry under a fresh id covers a primary key collision
	m.MessageID = o.messageID(now, sessionID, content)
	if !o.sessions.Save(saveCtx, m) {
		return ""
	}
	return m.MessageID
}

// messageID is MSG_<millis mod 1e8>_<6 digits>, short enough for the
// 40 character column. The digits are a content hash shifted by a process
// counter so repeated text within one millisecond does not collide.
func (o *Orchestrator) messageID(now time.Time, sessionID, content string) string {
	h := fnv.New32a()
	h.Write([]byte(sessionID))
	h.Write([]byte{0})
	h.Write([]byte(content))
	suffix := (h.Sum32() + o.seq.Add(1)) % 1_000_000
	return fmt.Sprintf("MSG_%d_%06d", now.UnixMilli()%100_000_000, suffix)
}

func (o *Orchestrator) failed(req domain.Request, err error) domain.Result {
	metrics.FailedTurns.Inc()
	in := domain.IntentGeneralChat
	if !req.IsText() {
		in = domain.IntentUnsupported
	}
	return domain.Result{
		Success:    false,
		SessionID:  req.SessionID,
		Intent:     in,
		AIResponse: reply.GenericApology,
		Error:      "处理失败: " + err.Error(),
		Timestamp:  o.now(),
	}
}

type localGenerator struct{}

func (localGenerator) Generate(_ context.Context, userMessage, _ string, _ domain.Intent) string {
	return reply.Local(userMessage)
}
