package extractor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foxseedlab/nyukoku/internal/application"
	"github.com/foxseedlab/nyukoku/internal/extractor"
)

type fakeChatModel struct {
	content string
	err     error
	input   []*schema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.input = input
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.content, nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := f.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func newTestExtractor(t *testing.T, fake *fakeChatModel) *LLMExtractor {
	t.Helper()
	e, err := NewLLMExtractor(context.Background(), fake, time.UTC)
	require.NoError(t, err)
	e.now = func() time.Time { return time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC) }
	return e
}

func TestExtract_ParsesFencedJSON(t *testing.T) {
	fake := &fakeChatModel{content: "```json\n{\"mcid\":\" steve \",\"nation\":\"Ardent\",\"purpose\":\"観光\"," +
		"\"start_datetime\":\"2026-10-18 12:00\",\"end_datetime\":\"2026-10-20 12:00\"," +
		"\"companions\":[\"alex\",{\"mcid\":\"BE_bob\",\"nation\":\"Ardent\"},\"\"],\"joiners\":[\"taro\",\" \"]}\n```"}
	e := newTestExtractor(t, fake)

	app, err := e.Extract(context.Background(), "MCID: steve")
	require.NoError(t, err)

	assert.Equal(t, "steve", app.Identity)
	assert.Equal(t, "Ardent", app.Nationality)
	assert.Equal(t, []application.Companion{{Identity: "alex"}, {Identity: "BE_bob", Nationality: "Ardent"}}, app.Companions)
	assert.Equal(t, []string{"taro"}, app.Sponsors)

	require.Len(t, fake.input, 2)
	assert.Contains(t, fake.input[0].Content, "2026-10-18")
	assert.True(t, strings.Contains(fake.input[1].Content, "MCID: steve"))
}

func TestExtract_NonJSONIsMalformed(t *testing.T) {
	e := newTestExtractor(t, &fakeChatModel{content: "申し訳ありませんが解析できません"})

	_, err := e.Extract(context.Background(), "???")
	assert.True(t, errors.Is(err, extractor.ErrMalformedOutput))
}

func TestExtract_ModelErrorIsReturned(t *testing.T) {
	e := newTestExtractor(t, &fakeChatModel{err: errors.New("quota exceeded")})

	_, err := e.Extract(context.Background(), "MCID: steve")
	require.Error(t, err)
	assert.False(t, errors.Is(err, extractor.ErrMalformedOutput))
}
