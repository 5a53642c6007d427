package support

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.openly.dev/pointy"
	"google.golang.org/genai"

	domain "github.com/sand/whitetriangle/backend/internal/entities"
	"github.com/sand/whitetriangle/backend/internal/support/entities"
)

const (
	Greeting      = "Hello! I am your WhiteTriangle AI assistant. How can I help you with your secure P2P exchange today?"
	EmptyReply    = "I'm sorry, I couldn't process that."
	FallbackReply = "I'm having trouble connecting to my brain right now. Please try again or contact a human admin."
)

var ErrEmptyMessage = errors.New("message must not be empty")

const systemInstruction = `You are the WhiteTriangle P2P Support Assistant.
The "White Triangle" logic is our secure 3-way escrow system:
1. Buyer pays via PayPal to our Escrow.
2. Seller delivers the electronic asset.
3. Escrow releases PayPal funds to Seller once Buyer confirms receipt.
Current Context: %s.
Be professional, concise, and helpful. Use Google Search to provide up-to-date market rates or security advice if relevant.
You have a high thinking budget for complex reasoning; use it to ensure user safety and precise guidance.`

// ContentGenerator is the subset of the genai models API the gateway needs.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type TranscriptRepository interface {
	Append(ctx context.Context, conversationID string, messages ...entities.Message) error
	Messages(ctx context.Context, conversationID string) ([]entities.Message, error)
}

type Config struct {
	Model          string
	ThinkingBudget int32
	Temperature    float32
	Timeout        time.Duration
}

// SupportService forwards user questions to the model. It never fails towards
// the caller: provider errors turn into FallbackReply.
type SupportService struct {
	logger      *slog.Logger
	generator   ContentGenerator
	transcripts TranscriptRepository
	cfg         Config
	now         func() time.Time
}

func NewSupportService(logger *slog.Logger, generator ContentGenerator, transcripts TranscriptRepository, cfg Config) *SupportService {
	return &SupportService{
		logger:      logger,
		generator:   generator,
		transcripts: transcripts,
		cfg:         cfg,
		now:         time.Now,
	}
}

// GetResponse answers one message given a free-form context description.
func (s *SupportService) GetResponse(ctx context.Context, userMessage, supportContext string) entities.Response {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	resp, err := s.generator.GenerateContent(ctx, s.cfg.Model, genai.Text(userMessage), s.generateConfig(supportContext))
	if err != nil {
		s.logger.ErrorContext(ctx, "Gemini API error", "error", err, "model", s.cfg.Model)
		return entities.Response{Text: FallbackReply, Links: []entities.Link{}}
	}
	if resp == nil {
		return entities.Response{Text: EmptyReply, Links: []entities.Link{}}
	}

	text := resp.Text()
	if text == "" {
		text = EmptyReply
	}

	return entities.Response{Text: text, Links: groundingLinks(resp)}
}

// Ask runs GetResponse and records both sides of the exchange in the
// conversation transcript.
func (s *SupportService) Ask(ctx context.Context, conversationID, userMessage, supportContext string) (entities.Message, error) {
	userMessage = strings.TrimSpace(userMessage)
	if userMessage == "" {
		return entities.Message{}, ErrEmptyMessage
	}

	question := entities.Message{Role: entities.RoleUser, Text: userMessage, CreatedAt: s.now()}
	reply := s.GetResponse(ctx, userMessage, supportContext)
	answer := entities.Message{
		Role:          entities.RoleModel,
		Text:          reply.Text,
		GroundingURLs: reply.Links,
		CreatedAt:     s.now(),
	}

	if err := s.transcripts.Append(ctx, conversationID, question, answer); err != nil {
		// the reply is still useful without the transcript
		s.logger.WarnContext(ctx, "Failed to store support transcript", "conversation_id", conversationID, "error", err)
	}

	return answer, nil
}

// History returns the conversation, always opening with the greeting.
func (s *SupportService) History(ctx context.Context, conversationID string) ([]entities.Message, error) {
	stored, err := s.transcripts.Messages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transcript: %w", err)
	}

	history := make([]entities.Message, 0, len(stored)+1)
	history = append(history, entities.Message{Role: entities.RoleModel, Text: Greeting})
	return append(history, stored...), nil
}

// BuildContext describes where the user is for the model.
func BuildContext(page string, user *domain.User, feeRate decimal.Decimal) string {
	if page == "" {
		page = "home"
	}

	role := "Guest"
	if user != nil {
		role = string(user.Role)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "User is currently on %s page. User role is %s.", page, role)
	if user != nil {
		state := "disabled"
		if user.Is2FAEnabled {
			state = "enabled"
		}
		fmt.Fprintf(&b, " Two-factor authentication is %s.", state)
	}
	fmt.Fprintf(&b, " Platform commission is %s%%.", feeRate.Shift(2).String())
	return b.String()
}

func (s *SupportService) generateConfig(supportContext string) *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(fmt.Sprintf(systemInstruction, supportContext), genai.RoleUser),
		Tools:             []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
		ThinkingConfig:    &genai.ThinkingConfig{ThinkingBudget: pointy.Int32(s.cfg.ThinkingBudget)},
		Temperature:       pointy.Float32(s.cfg.Temperature),
	}
}

func groundingLinks(resp *genai.GenerateContentResponse) []entities.Link {
	links := []entities.Link{}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].GroundingMetadata == nil {
		return links
	}

	for _, chunk := range resp.Candidates[0].GroundingMetadata.GroundingChunks {
		if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" {
			continue
		}
		links = append(links, entities.Link{URI: chunk.Web.URI, Title: chunk.Web.Title})
	}
	return links
}
