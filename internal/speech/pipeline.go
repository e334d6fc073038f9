// Package speech turns voice attachments into text by trying a fixed list of
// speech-to-text stages and falling back to a canned demo transcript.
package speech

import (
	"context"
	"log/slog"
	"strings"

	"marketbot/internal/domain"
	"marketbot/internal/lang"
	"marketbot/internal/media"
	"marketbot/internal/metrics"
)

// SourceDemo marks a transcript that came from the demo table.
const SourceDemo = "demo"

// Stage is one speech-to-text backend.
type Stage interface {
	Name() string
	Transcribe(ctx context.Context, audio *media.Payload) domain.StageResult
}

// Pipeline implements domain.Transcriber.
type Pipeline struct {
	files  domain.FileSource
	stages []Stage
	logger *slog.Logger
}

type Config struct {
	Files  domain.FileSource // nil skips straight to the demo transcript
	Stages []Stage
	Logger *slog.Logger
}

func New(cfg Config) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{files: cfg.Files, stages: cfg.Stages, logger: cfg.Logger}
}

// Transcribe returns false only when the attachment has no file id. Every
// other path yields text, from a stage or from the demo table.
func (p *Pipeline) Transcribe(ctx context.Context, att domain.Attachment) (domain.Transcript, bool) {
	if att.FileID == "" {
		p.logger.Warn("voice attachment without file id")
		return domain.Transcript{}, false
	}

	if text, source, ok := p.runStages(ctx, att.FileID); ok {
		return domain.Transcript{Text: text, Language: lang.Detect(text), Source: source}, true
	}

	metrics.Fallback("speech")
	text := Demo(att.FileID)
	p.logger.Info("using demo transcript", "file_id", att.FileID)
	return domain.Transcript{Text: text, Language: lang.Detect(text), Source: SourceDemo}, true
}

func (p *Pipeline) runStages(ctx context.Context, fileID string) (text, source string, ok bool) {
	if p.files == nil {
		return "", "", false
	}
	url, err := p.files.FileURL(ctx, fileID)
	if err != nil {
		p.logger.Warn("voice file unavailable", "file_id", fileID, "error", err)
		return "", "", false
	}

	audio := media.NewPayload(p.files, url)
	for i, s := range p.stages {
		res := s.Transcribe(ctx, audio)
		metrics.StageOutcome("speech", s.Name(), res.Outcome.String())

		switch res.Outcome {
		case domain.Succeeded:
			if strings.TrimSpace(res.Text) != "" {
				p.logger.Info("voice transcribed", "provider", s.Name(), "attempt", i+1)
				return res.Text, s.Name(), true
			}
			p.logger.Warn("speech stage returned empty text", "provider", s.Name())
		case domain.Declined:
			p.logger.Debug("speech stage declined", "provider", s.Name(), "reason", res.Err)
		default:
			p.logger.Warn("speech stage failed", "provider", s.Name(), "attempt", i+1, "error", res.Err)
		}
	}
	return "", "", false
}

var demoTranscripts = [media.DemoCount]string{
	"我要发布钢材供应100吨，单价4500元，北京地区",
	"需要采购大米150吨，预算30万元，希望华东地区供应商",
	"有机械设备二手挖掘机出售，型号小松PC200，价格面议",
	"采购建材水泥200吨，要求品质好，江苏地区交付",
	"供应新鲜蔬菜，产地山东，每日可供应5吨，价格优惠",
	"寻找钢材供应商，需要螺纹钢300吨，长期合作",
	"出售库存电子产品，手机配件批发，数量大从优",
	"需要运输服务，货运物流，北京到上海专线",
	"供应化工原料，工业级，有资质证书，支持检测",
	"采购办公用品，电脑、桌椅等，预算10万元",
}

// Demo returns the canned transcript for fileID.
func Demo(fileID string) string {
	return demoTranscripts[media.DemoIndex(fileID)]
}

// DemoTranscripts lists every canned transcript.
func DemoTranscripts() []string {
	return append([]string(nil), demoTranscripts[:]...)
}
