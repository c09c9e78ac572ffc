package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/foxseedlab/nyukoku/internal/application"
	"github.com/foxseedlab/nyukoku/internal/extractor"
)

// LLMExtractor asks a chat model to turn the collected answers into an application.
type LLMExtractor struct {
	runnable compose.Runnable[map[string]any, *schema.Message]
	loc      *time.Location
	now      func() time.Time
}

func NewLLMExtractor(ctx context.Context, chatModel model.BaseChatModel, loc *time.Location) (*LLMExtractor, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}
	if loc == nil {
		loc = time.UTC
	}

	template := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(extractionSystemPrompt),
		schema.UserMessage(extractionUserPrompt),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(template)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile extraction chain: %w", err)
	}

	return &LLMExtractor{
		runnable: runnable,
		loc:      loc,
		now:      time.Now,
	}, nil
}

func (e *LLMExtractor) Extract(ctx context.Context, rawText string) (*application.Application, error) {
	input := map[string]any{
		"today":   e.now().In(e.loc).Format("2006-01-02"),
		"answers": strings.TrimSpace(rawText),
	}

	msg, err := e.runnable.Invoke(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("extraction model invoke failed: %w", err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return nil, fmt.Errorf("%w: empty response", extractor.ErrMalformedOutput)
	}

	app, err := parseExtractionOutput(msg.Content)
	if err != nil {
		slog.Warn("extraction output could not be parsed", "error", err, "content", msg.Content)
		return nil, err
	}
	return app, nil
}

func parseExtractionOutput(content string) (*application.Application, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("%w: missing json object", extractor.ErrMalformedOutput)
	}

	app := &application.Application{}
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), app); err != nil {
		return nil, fmt.Errorf("%w: %v", extractor.ErrMalformedOutput, err)
	}

	app.Identity = strings.TrimSpace(app.Identity)
	app.Nationality = strings.TrimSpace(app.Nationality)
	app.Purpose = strings.TrimSpace(app.Purpose)
	app.Start = strings.TrimSpace(app.Start)
	app.End = strings.TrimSpace(app.End)

	companions := app.Companions[:0]
	for _, c := range app.Companions {
		c.Identity = strings.TrimSpace(c.Identity)
		c.Nationality = strings.TrimSpace(c.Nationality)
		if c.Identity != "" {
			companions = append(companions, c)
		}
	}
	app.Companions = companions

	sponsors := app.Sponsors[:0]
	for _, s := range app.Sponsors {
		if s = strings.TrimSpace(s); s != "" {
			sponsors = append(sponsors, s)
		}
	}
	app.Sponsors = sponsors

	return app, nil
}

const extractionSystemPrompt = "あなたは入国審査の申請内容を整理する係です。申請者の回答を読み、JSON オブジェクトを一つだけ返してください。説明文やコードブロックは不要です。\n" +
	"フィールド: mcid (申請者のID、文字列)、nation (国籍、文字列)、purpose (入国目的、文字列)、start_datetime と end_datetime (YYYY-MM-DD HH:MM 形式)、companions (同行者の配列。各要素は mcid と nation を持つオブジェクト)、joiners (合流者の名前の配列)。\n" +
	"期間に開始日時の記載がなければ本日 {today} の現在時刻を開始とし、年の記載がない日付は本日以降で最も近い日付として解釈してください。同行者や合流者が「なし」の場合は空の配列にしてください。不明な項目は空文字にしてください。"

const extractionUserPrompt = "申請者の回答:\n{answers}"
