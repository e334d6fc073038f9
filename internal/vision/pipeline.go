// Package vision describes photo attachments by trying a fixed list of image
// recognition stages, falling back to a canned demo description, and then
// derives a coarse product category from the description.
package vision

import (
	"context"
	"log/slog"
	"strings"

	"marketbot/internal/domain"
	"marketbot/internal/media"
	"marketbot/internal/metrics"
)

// SourceDemo marks a description that came from the demo table.
const SourceDemo = "demo"

// Stage is one image recognition backend.
type Stage interface {
	Name() string
	Analyze(ctx context.Context, image *media.Payload) domain.StageResult
}

// Pipeline implements domain.ImageAnalyzer.
type Pipeline struct {
	files  domain.FileSource
	stages []Stage
	logger *slog.Logger
}

type Config struct {
	Files  domain.FileSource // nil skips straight to the demo description
	Stages []Stage
	Logger *slog.Logger
}

func New(cfg Config) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{files: cfg.Files, stages: cfg.Stages, logger: cfg.Logger}
}

// Analyze returns false only when the attachment has no file id.
func (p *Pipeline) Analyze(ctx context.Context, att domain.Attachment) (domain.Analysis, bool) {
	if att.FileID == "" {
		p.logger.Warn("photo attachment without file id")
		return domain.Analysis{}, false
	}

	desc, source, ok := p.runStages(ctx, att.FileID)
	if !ok {
		metrics.Fallback("vision")
		desc, source = Demo(att.FileID), SourceDemo
		p.logger.Info("using demo image description", "file_id", att.FileID)
	}
	return domain.Analysis{Description: desc, Category: Category(desc), Source: source}, true
}

func (p *Pipeline) runStages(ctx context.Context, fileID string) (desc, source string, ok bool) {
	if p.files == nil {
		return "", "", false
	}
	url, err := p.files.FileURL(ctx, fileID)
	if err != nil {
		p.logger.Warn("image file unavailable", "file_id", fileID, "error", err)
		return "", "", false
	}

	image := media.NewPayload(p.files, url)
	for i, s := range p.stages {
		res := s.Analyze(ctx, image)
		metrics.StageOutcome("vision", s.Name(), res.Outcome.String())

		switch res.Outcome {
		case domain.Succeeded:
			if strings.TrimSpace(res.Text) != "" {
				p.logger.Info("image analysed", "provider", s.Name(), "attempt", i+1)
				return res.Text, s.Name(), true
			}
			p.logger.Warn("vision stage returned empty text", "provider", s.Name())
		case domain.Declined:
			p.logger.Debug("vision stage declined", "provider", s.Name(), "reason", res.Err)
		default:
			p.logger.Warn("vision stage failed", "provider", s.Name(), "attempt", i+1, "error", res.Err)
		}
	}
	return "", "", false
}

var demoDescriptions = [media.DemoCount]string{
	"图片显示：钢材产品，规格螺纹钢HRB400，直径12-25mm，表面质量良好，符合国标要求",
	"图片内容：新鲜蔬菜，包含白菜、萝卜、青菜等，颜色鲜艳，品质优良，适合批发销售",
	"识别结果：机械设备，挖掘机小松PC200型号，外观良好，履带完整，液压系统正常",
	"图片分析：建筑材料，水泥袋装产品，品牌标识清晰，规格42.5R，包装完整无破损",
	"产品图片：电子产品，手机配件包括数据线、充电器、保护壳，包装精美，数量充足",
	"图像内容：化工原料，白色粉末状产品，包装规范，有安全标识和成分说明",
	"识别内容：办公设备，包含电脑主机、显示器、键盘鼠标，配置中等，外观九成新",
	"图片显示：运输车辆，货车厢体完整，载重能力强，适合长途货物运输",
	"产品展示：农产品大米，颗粒饱满，色泽自然，包装标注产地和等级信息",
	"图像分析：工业原料，金属材料表面光滑，规格统一，质量达到工业标准",
}

// Demo returns the canned description for fileID.
func Demo(fileID string) string {
	return demoDescriptions[media.DemoIndex(fileID)]
}

// DemoDescriptions lists every canned description.
func DemoDescriptions() []string {
	return append([]string(nil), demoDescriptions[:]...)
}
