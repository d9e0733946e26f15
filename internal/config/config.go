package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress string

	LiveKitURL       string
	LiveKitAPIKey    string
	LiveKitAPISecret string

	OpenAIKey     string
	ChatModel     string
	SummaryModel  string
	TTSVoice      string
	Mem0Key       string
	PerplexityKey string
	AgentIdentity string
}

// Load reads environment variables and returns Config with sane defaults.
// Missing credentials are warnings, not errors: the corresponding feature
// degrades at runtime instead of crashing the session.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Error loading .env file")
	}

	addr := os.Getenv("HTTP_ADDRESS")
	if addr == "" {
		addr = ":5000"
	}

	lkURL := os.Getenv("LIVEKIT_URL")
	if lkURL == "" {
		log.Println("Warning: LIVEKIT_URL not set - agent cannot join rooms")
	}
	lkKey := os.Getenv("LIVEKIT_API_KEY")
	lkSecret := os.Getenv("LIVEKIT_API_SECRET")
	if lkKey == "" || lkSecret == "" {
		log.Println("Warning: LIVEKIT_API_KEY or LIVEKIT_API_SECRET not set - token issuance and room join will not work")
	}

	openAIKey := os.Getenv("OPENAI_API_KEY")
	if openAIKey == "" {
		log.Println("Warning: OPENAI_API_KEY not set - dialogue and summarization will not work")
	}
	chatModel := os.Getenv("OPENAI_CHAT_MODEL")
	if chatModel == "" {
		chatModel = "gpt-4o-mini"
	}
	summaryModel := os.Getenv("OPENAI_SUMMARY_MODEL")
	if summaryModel == "" {
		summaryModel = "gpt-4o"
	}
	ttsVoice := os.Getenv("OPENAI_TTS_VOICE")
	if ttsVoice == "" {
		ttsVoice = "nova"
	}

	mem0Key := os.Getenv("MEM0_API_KEY")
	if mem0Key == "" {
		log.Println("Warning: MEM0_API_KEY not set - long-term memory disabled")
	}

	perplexityKey := os.Getenv("PERPLEXITY_API_KEY")
	if perplexityKey == "" {
		log.Println("Warning: PERPLEXITY_API_KEY not set - internet search will fail")
	}

	identity := os.Getenv("AGENT_IDENTITY")
	if identity == "" {
		identity = "anty-agent"
	}

	log.Printf("config: HTTP_ADDRESS=%s", addr)
	return Config{
		HTTPAddress:      addr,
		LiveKitURL:       lkURL,
		LiveKitAPIKey:    lkKey,
		LiveKitAPISecret: lkSecret,
		OpenAIKey:        openAIKey,
		ChatModel:        chatModel,
		SummaryModel:     summaryModel,
		TTSVoice:         ttsVoice,
		Mem0Key:          mem0Key,
		PerplexityKey:    perplexityKey,
		AgentIdentity:    identity,
	}
}
