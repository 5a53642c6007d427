package support

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	domain "github.com/sand/whitetriangle/backend/internal/entities"
	"github.com/sand/whitetriangle/backend/internal/support/clients"
	"github.com/sand/whitetriangle/backend/internal/support/entities"
	"github.com/sand/whitetriangle/backend/internal/support/repository"
)

type stubGenerator struct {
	resp *genai.GenerateContentResponse
	err  error

	calls      int
	lastModel  string
	lastConfig *genai.GenerateContentConfig
	lastText   string
}

func (g *stubGenerator) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	g.calls++
	g.lastModel = model
	g.lastConfig = config
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		g.lastText = contents[0].Parts[0].Text
	}
	return g.resp, g.err
}

func textResponse(text string, chunks ...*genai.GroundingChunk) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:           &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: text}}},
			GroundingMetadata: &genai.GroundingMetadata{GroundingChunks: chunks},
		}},
	}
}

func webChunk(uri, title string) *genai.GroundingChunk {
	return &genai.GroundingChunk{Web: &genai.GroundingChunkWeb{URI: uri, Title: title}}
}

var testConfig = Config{
	Model:          "gemini-3-pro-preview",
	ThinkingBudget: 32768,
	Temperature:    1,
	Timeout:        time.Second,
}

func newService(gen ContentGenerator) *SupportService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewSupportService(logger, gen, repository.NewMemoryTranscripts(), testConfig)
}

func TestGetResponseFallsBackOnProviderError(t *testing.T) {
	gen := &stubGenerator{err: errors.New("quota exceeded")}
	svc := newService(gen)

	resp := svc.GetResponse(context.Background(), "is escrow safe?", "User is currently on home page.")

	assert.Equal(t, FallbackReply, resp.Text)
	assert.NotNil(t, resp.Links)
	assert.Empty(t, resp.Links)
}

func TestGetResponseWithDisabledClient(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := clients.NewGeminiClient(context.Background(), logger, "")
	require.False(t, client.IsEnabled())

	svc := NewSupportService(logger, client, repository.NewMemoryTranscripts(), testConfig)
	resp := svc.GetResponse(context.Background(), "hello", "")

	assert.Equal(t, FallbackReply, resp.Text)
	assert.Empty(t, resp.Links)
}

func TestGetResponseExtractsGroundingLinks(t *testing.T) {
	gen := &stubGenerator{resp: textResponse("USDT trades near 1.00 USD.",
		webChunk("https://a.example/rates", "Rates"),
		&genai.GroundingChunk{},
		webChunk("", "no uri"),
		webChunk("https://b.example/security", "Security tips"),
	)}
	svc := newService(gen)

	resp := svc.GetResponse(context.Background(), "usdt rate?", "User is currently on marketplace page.")

	assert.Equal(t, "USDT trades near 1.00 USD.", resp.Text)
	assert.Equal(t, []entities.Link{
		{URI: "https://a.example/rates", Title: "Rates"},
		{URI: "https://b.example/security", Title: "Security tips"},
	}, resp.Links)
}

func TestGetResponseEmptyText(t *testing.T) {
	svc := newService(&stubGenerator{resp: &genai.GenerateContentResponse{}})

	resp := svc.GetResponse(context.Background(), "?", "")

	assert.Equal(t, EmptyReply, resp.Text)
	assert.Empty(t, resp.Links)
}

func TestGetResponseRequestShape(t *testing.T) {
	gen := &stubGenerator{resp: textResponse("ok")}
	svc := newService(gen)

	svc.GetResponse(context.Background(), "how do I dispute?", "User is currently on dashboard page. User role is USER.")

	require.Equal(t, 1, gen.calls)
	assert.Equal(t, "gemini-3-pro-preview", gen.lastModel)
	assert.Equal(t, "how do I dispute?", gen.lastText)

	cfg := gen.lastConfig
	require.NotNil(t, cfg)
	require.NotNil(t, cfg.SystemInstruction)
	require.NotEmpty(t, cfg.SystemInstruction.Parts)
	assert.Contains(t, cfg.SystemInstruction.Parts[0].Text, "Current Context: User is currently on dashboard page. User role is USER..")
	assert.Contains(t, cfg.SystemInstruction.Parts[0].Text, "Buyer pays via PayPal to our Escrow")

	require.Len(t, cfg.Tools, 1)
	assert.NotNil(t, cfg.Tools[0].GoogleSearch)
	require.NotNil(t, cfg.ThinkingConfig)
	assert.Equal(t, int32(32768), *cfg.ThinkingConfig.ThinkingBudget)
	assert.Equal(t, float32(1), *cfg.Temperature)
}

func TestAskRecordsTranscript(t *testing.T) {
	gen := &stubGenerator{resp: textResponse("Funds stay in escrow until you confirm.", webChunk("https://a.example", "A"))}
	svc := newService(gen)
	ctx := context.Background()

	history, err := svc.History(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, entities.RoleModel, history[0].Role)
	assert.Equal(t, Greeting, history[0].Text)

	answer, err := svc.Ask(ctx, "conv-1", "  when do I get paid? ", "")
	require.NoError(t, err)
	assert.Equal(t, entities.RoleModel, answer.Role)
	assert.Len(t, answer.GroundingURLs, 1)

	history, err = svc.History(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, entities.RoleUser, history[1].Role)
	assert.Equal(t, "when do I get paid?", history[1].Text)
	assert.Equal(t, "Funds stay in escrow until you confirm.", history[2].Text)

	other, err := svc.History(ctx, "conv-2")
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func TestAskRejectsBlankMessage(t *testing.T) {
	gen := &stubGenerator{resp: textResponse("ok")}
	svc := newService(gen)

	_, err := svc.Ask(context.Background(), "conv-1", "   ", "")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Zero(t, gen.calls)
}

func TestBuildContext(t *testing.T) {
	rate := decimal.RequireFromString("0.008")

	assert.Equal(t,
		"User is currently on marketplace page. User role is Guest. Platform commission is 0.8%.",
		BuildContext("marketplace", nil, rate))

	admin := &domain.User{Role: domain.RoleAdmin, Is2FAEnabled: true}
	assert.Equal(t,
		"User is currently on admin page. User role is ADMIN. Two-factor authentication is enabled. Platform commission is 0.8%.",
		BuildContext("admin", admin, rate))

	assert.Contains(t, BuildContext("", nil, rate), "on home page")
}
