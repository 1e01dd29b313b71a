package extract

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/spektr-org/vizon/ai"
)

// ExtractionSystemPrompt frames every image and page extraction call.
const ExtractionSystemPrompt = `You are a Data Extraction Engine. Your job is to convert unstructured inputs into a clean table.
Return ONLY a JSON array of objects. Each object is one row; keys are column names and must be
identical across rows. Keep values exactly as printed (do not convert currencies or reformat dates).
Use null for values that are absent. Do not add commentary, markdown or explanations.`

const visionPrompt = `Extract the table, receipt line items or tabular data in this image.
If the image is a receipt or invoice, produce one row per line item with columns such as
item, quantity, unit_price and amount. If there is no tabular data, return [].`

var imageTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".heic": "image/heic",
	".heif": "image/heif",
}

// Vision extracts tables from images using a multimodal model.
type Vision struct {
	model  ai.Model
	logger *zap.Logger
}

// NewVision creates a vision extractor. Wrap model with ai.WithRetry to get
// the bounded retry on transient outages.
func NewVision(model ai.Model, logger *zap.Logger) *Vision {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Vision{model: model, logger: logger}
}

// Extract sends the image to the model and decodes the returned rows.
func (v *Vision) Extract(ctx context.Context, in Input) (*RawRecordSet, error) {
	src := in.Label()
	if len(in.Data) == 0 {
		return nil, newErrorf(KindUnreadable, src, "image is empty")
	}

	mime := imageMIME(in)
	if mime == "" {
		return nil, newErrorf(KindUnsupported, src, "expected a JPEG, PNG, WebP or HEIC image")
	}

	resp, err := v.model.Generate(ctx, ai.Request{
		System: ExtractionSystemPrompt,
		Parts:  []ai.Part{ai.Text(visionPrompt), ai.Blob(in.Data, mime)},
		JSON:   true,
	})
	if err != nil {
		return nil, newError(KindAIService, src, err)
	}

	rs, err := DecodeRecords(resp.Text)
	if err != nil {
		return nil, newError(KindAIService, src, err)
	}
	rs.Source = src

	v.logger.Info("vision extraction",
		zap.String("source", src),
		zap.String("mime", mime),
		zap.Int("columns", rs.Width()),
		zap.Int("rows", len(rs.Rows)))
	return rs, nil
}

// supportedImage reports whether the model accepts mime.
func supportedImage(mime string) bool {
	for _, m := range imageTypes {
		if m == mime {
			return true
		}
	}
	return false
}

// imageMIME resolves the image type from the declared MIME type, then the
// extension, then the content. Types outside imageTypes resolve to "".
func imageMIME(in Input) string {
	mime := strings.ToLower(strings.TrimSpace(in.MIMEType))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	if mime == "image/jpg" {
		mime = "image/jpeg"
	}
	if !strings.HasPrefix(mime, "image/") {
		mime = ""
		if m, ok := imageTypes[strings.ToLower(filepath.Ext(in.Name))]; ok {
			mime = m
		} else if m := http.DetectContentType(in.Data); strings.HasPrefix(m, "image/") {
			mime = m
		}
	}
	if !supportedImage(mime) {
		return ""
	}
	return mime
}
