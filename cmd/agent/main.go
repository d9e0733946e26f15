package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	openai "github.com/sashabaranov/go-openai"

	"github.com/tortiedeveloper/discusswithanty-livekit-server/internal/agent"
	"github.com/tortiedeveloper/discusswithanty-livekit-server/internal/config"
	"github.com/tortiedeveloper/discusswithanty-livekit-server/internal/dispatch"
	"github.com/tortiedeveloper/discusswithanty-livekit-server/internal/memory"
	"github.com/tortiedeveloper/discusswithanty-livekit-server/internal/room"
	"github.com/tortiedeveloper/discusswithanty-livekit-server/internal/search"
	"github.com/tortiedeveloper/discusswithanty-livekit-server/internal/summarize"
	"github.com/tortiedeveloper/discusswithanty-livekit-server/internal/tts"
	"github.com/tortiedeveloper/discusswithanty-livekit-server/internal/voice"
)

func main() {
	// Include sub-second precision in all log timestamps
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	roomName := flag.String("room", os.Getenv("AGENT_ROOM"), "room to join (usession-<userID>-<suffix>)")
	flag.Parse()
	if *roomName == "" {
		log.Fatal("no room given: pass -room or set AGENT_ROOM")
	}

	cfg := config.Load()

	var store memory.Store
	if cfg.Mem0Key != "" {
		store = memory.NewClient(cfg.Mem0Key)
	}
	gateway := memory.NewGateway(store)

	var searcher search.Searcher
	if cfg.PerplexityKey != "" {
		searcher = search.NewPerplexityClient(cfg.PerplexityKey)
	}

	var oa *openai.Client
	if cfg.OpenAIKey != "" {
		oa = openai.NewClient(cfg.OpenAIKey)
	}

	rm := room.NewLiveKit(cfg.LiveKitURL, cfg.LiveKitAPIKey, cfg.LiveKitAPISecret, *roomName, cfg.AgentIdentity)

	funcs := dispatch.NewFuncs(gateway, rm.PublishData, searcher)

	// Clients run speech recognition locally and deliver finalized text
	// over the data channel; synthesized audio delivery is left to the
	// application layer, so the engine runs without an audio sink here.
	feed := voice.NewTextFeed()
	var chat voice.ChatCompleter
	if oa != nil {
		chat = oa
	}
	engine := voice.NewEngine(feed, chat, cfg.ChatModel, funcs, tts.NewOpenAIClient(oa, cfg.TTSVoice), nil)
	funcs.SetSpeaker(engine)

	summarizer := summarize.New(oa, cfg.SummaryModel)

	session := agent.NewSession(rm, engine, funcs, gateway, summarizer)
	session.SetUtteranceFeed(feed.Push)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := session.Run(ctx); err != nil {
		log.Fatalf("session failed: %v", err)
	}
	log.Println("session finished")
}
