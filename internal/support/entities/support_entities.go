package entities

import "time"

type MessageRole string

const (
	RoleUser  MessageRole = "user"
	RoleModel MessageRole = "model"
)

// Link is a web source the model grounded its answer on.
type Link struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// Response is what the support gateway hands back for one user message.
type Response struct {
	Text  string `json:"text"`
	Links []Link `json:"links"`
}

// Message is one entry of a support conversation transcript.
type Message struct {
	Role          MessageRole `json:"role"`
	Text          string      `json:"text"`
	GroundingURLs []Link      `json:"groundingUrls,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
}
