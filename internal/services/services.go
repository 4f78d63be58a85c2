// Package services implements the external collaborators of the assistant: language model providers,
// website content fetchers and thread stores.
package services

import (
	"github.com/MegaGrindStone/site-assistant/internal/models"
)

// LLMParameters holds optional sampling parameters shared by the LLM providers. A nil field leaves the
// provider default in place.
type LLMParameters struct {
	Temperature      *float32 `yaml:"temperature"`
	TopP             *float32 `yaml:"topP"`
	Stop             []string `yaml:"stop"`
	PresencePenalty  *float32 `yaml:"presencePenalty"`
	FrequencyPenalty *float32 `yaml:"frequencyPenalty"`
	Seed             *int     `yaml:"seed"`
	MaxTokens        *int     `yaml:"maxTokens"`
}

const errLoggerKey = "err"

func extractSystemMessage(messages []models.Message) (string, []models.Message) {
	if len(messages) == 0 {
		return "", messages
	}

	if messages[0].Role == models.RoleSystem {
		return messages[0].Content, messages[1:]
	}

	return "", messages
}
