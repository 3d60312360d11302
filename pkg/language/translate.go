package language

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chanakya-ai/chanakya/pkg/jsonutil"
	"github.com/chanakya-ai/chanakya/pkg/logger"
	"github.com/chanakya-ai/chanakya/pkg/model"
)

const translateSystem = `You are a translator for rural Indian school teachers.
Translate each numbered text into the target language. Keep the meaning
exact, keep formatting and numbers as they are, and use simple words a
teacher would use in class. Respond with JSON only:
{"translations": ["...", "..."]} with one entry per input, in order.`

// Translator translates result fields via the generative model, one call
// per field set. Failures fall back to the English originals.
type Translator struct {
	llm     model.LLM
	timeout time.Duration
}

// NewTranslator builds a Translator. timeout bounds each field-set batch;
// zero means 10 seconds.
func NewTranslator(llm model.LLM, timeout time.Duration) *Translator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Translator{llm: llm, timeout: timeout}
}

// TranslateBatch translates fields into the target language in one model
// call, returning the values in input order. On any failure the original
// slice is returned unchanged; translation never surfaces an error to the
// pipeline.
func (t *Translator) TranslateBatch(ctx context.Context, fields []string, targetLang string) []string {
	if len(fields) == 0 || targetLang == English || !Supported(targetLang) {
		return fields
	}

	log := logger.GetLogger()

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Target language: %s\n\n", Name(targetLang))
	for i, f := range fields {
		fmt.Fprintf(&prompt, "%d. %s\n", i+1, f)
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	resp, err := t.llm.Generate(ctx, &model.Request{
		System:   translateSystem,
		Prompt:   prompt.String(),
		JSONMode: true,
	})
	if err != nil {
		log.Warn("translation_failed", "lang", targetLang, "fields", len(fields), "error", err)
		return fields
	}

	var parsed struct {
		Translations []string `json:"translations"`
	}
	if err := jsonutil.Extract(resp.Text, &parsed); err != nil {
		log.Warn("translation_parse_failed", "lang", targetLang, "error", err)
		return fields
	}
	if len(parsed.Translations) != len(fields) {
		log.Warn("translation_count_mismatch", "lang", targetLang,
			"want", len(fields), "got", len(parsed.Translations))
		return fields
	}

	out := make([]string, len(fields))
	for i, tr := range parsed.Translations {
		tr = strings.TrimSpace(tr)
		if tr == "" {
			out[i] = fields[i]
			continue
		}
		out[i] = tr
	}
	return out
}
