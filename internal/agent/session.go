// Package agent owns one voice session end to end: join the room, bind
// the persistent user identity, prime the dialogue engine with prior
// context, then route inbound data commands until the room goes away.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tortiedeveloper/discusswithanty-livekit-server/internal/dispatch"
	"github.com/tortiedeveloper/discusswithanty-livekit-server/internal/identity"
	"github.com/tortiedeveloper/discusswithanty-livekit-server/internal/memory"
)

// Inbound and outbound data message types.
const (
	TypeSummarizeMeeting     = "summarize_meeting"
	TypeMeetingSummaryResult = "meeting_summary_result"
	TypeUserText             = "user_text"
)

// SummaryDeliveryTimeout bounds delivery of one summary result payload.
const SummaryDeliveryTimeout = 15 * time.Second

// primingQuery pulls broad prior context for the system prompt at startup.
const primingQuery = "Key points, facts, preferences, user's name, user's recent mood, and user's recent concerns shared in previous conversations"

const primingLimit = 5

// State is the session lifecycle phase.
type State int32

const (
	StateConnecting State = iota
	StatePriming
	StateActive
	StateShuttingDown
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StatePriming:
		return "priming"
	case StateActive:
		return "active"
	case StateShuttingDown:
		return "shutting_down"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Room abstracts the realtime room the session lives in.
type Room interface {
	Connect(ctx context.Context) error
	Name() string
	// OnData registers the handler for inbound data payloads. nil
	// unregisters.
	OnData(handler func(payload []byte))
	PublishData(ctx context.Context, payload []byte) error
	IsConnected() bool
	Disconnect()
}

// Engine is the slice of the dialogue engine the session drives.
type Engine interface {
	Prime(systemPrompt, greeting string)
	Start(ctx context.Context) (func(), error)
	Say(ctx context.Context, text string, allowInterruptions bool) error
	Close() error
}

// Summarizer turns a raw transcript into spoken-form summary text. Total:
// always returns text, including on failure.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) string
	Close() error
}

type envelope struct {
	Type       string `json:"type"`
	Transcript string `json:"transcript"`
	Text       string `json:"text"`
}

type summaryResult struct {
	Type               string `json:"type"`
	Summary            string `json:"summary"`
	OriginalTranscript string `json:"original_transcript"`
}

// Session drives one room visit from connect to teardown.
type Session struct {
	room       Room
	engine     Engine
	funcs      *dispatch.Funcs
	mem        *memory.Gateway
	summarizer Summarizer

	state         int32
	stopEngine    func()
	cancel        context.CancelFunc
	closeOnce     sync.Once
	utteranceFeed func(text string)
}

// NewSession wires the session around its collaborators. mem and
// summarizer may be nil-equivalent degraded instances; room and engine
// must be real.
func NewSession(room Room, engine Engine, funcs *dispatch.Funcs, mem *memory.Gateway, summarizer Summarizer) *Session {
	return &Session{
		room:       room,
		engine:     engine,
		funcs:      funcs,
		mem:        mem,
		summarizer: summarizer,
	}
}

// SetUtteranceFeed routes inbound user_text payloads into the dialogue
// engine, for clients that run speech recognition on their side. Called
// before Run.
func (s *Session) SetUtteranceFeed(feed func(text string)) {
	s.utteranceFeed = feed
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	return State(atomic.LoadInt32(&s.state))
}

func (s *Session) setState(next State) {
	prev := State(atomic.SwapInt32(&s.state, int32(next)))
	if prev != next {
		log.Printf("agent: session state %s -> %s", prev, next)
	}
}

// Run blocks until the room disconnects, ctx is cancelled, or setup fails.
// Teardown always runs before Run returns.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.setState(StateConnecting)
	if err := s.room.Connect(ctx); err != nil {
		s.setState(StateClosed)
		return fmt.Errorf("agent: connect room: %w", err)
	}
	s.room.OnData(func(payload []byte) { s.handleData(ctx, payload) })

	s.setState(StatePriming)
	if err := s.prime(ctx); err != nil {
		s.Close()
		return err
	}

	stop, err := s.engine.Start(ctx)
	if err != nil {
		s.Close()
		return fmt.Errorf("agent: start engine: %w", err)
	}
	s.stopEngine = stop
	s.setState(StateActive)
	log.Printf("agent: session active in room %s for user %s", s.room.Name(), s.funcs.UserID())

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Println("agent: session context cancelled")
			s.Close()
			return nil
		case <-ticker.C:
			if !s.room.IsConnected() {
				log.Println("agent: room disconnected")
				s.Close()
				return nil
			}
		}
	}
}

// prime binds identity and seeds the dialogue engine. Identity failure is
// fatal and happens before any memory, speech, or delivery resource is
// touched.
func (s *Session) prime(ctx context.Context) error {
	userID, err := identity.ResolveUserID(s.room.Name())
	if err != nil {
		return fmt.Errorf("agent: identity: %w", err)
	}
	s.funcs.SetUserID(ctx, userID)

	memories := s.mem.SearchPriming(ctx, userID, primingQuery, primingLimit)
	log.Printf("agent: pulled %d prior memories for user %s", len(memories), userID)

	name := s.funcs.UserName()
	if name == "" {
		for _, m := range memories {
			if n := dispatch.ExtractName(m); n != "" {
				name = n
				s.funcs.SetUserName(n)
				log.Printf("agent: recovered user name from prior context: %s", n)
				break
			}
		}
	}

	s.engine.Prime(buildSystemPrompt(time.Now(), name, memories), "")

	greeting := buildGreeting(name)
	if err := s.engine.Say(ctx, greeting, false); err != nil {
		log.Printf("agent: greeting failed: %v", err)
	}
	return nil
}

// handleData routes one inbound data payload. Summaries run on their own
// goroutine so the handler never blocks the room's data callbacks.
func (s *Session) handleData(ctx context.Context, payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		log.Printf("agent: dropping malformed data payload: %v", err)
		return
	}
	switch env.Type {
	case TypeSummarizeMeeting:
		log.Printf("agent: summarize request, transcript length %d", len(env.Transcript))
		go s.handleSummarize(ctx, env.Transcript)
	case TypeUserText:
		if s.utteranceFeed == nil {
			log.Println("agent: no utterance feed configured, dropping user text")
			return
		}
		s.utteranceFeed(env.Text)
	default:
		log.Printf("agent: ignoring data message with unknown type %q", env.Type)
	}
}

// handleSummarize produces the summary once, then speaks it and delivers
// it as two independent tasks. Only delivery is awaited here.
func (s *Session) handleSummarize(ctx context.Context, transcript string) {
	if s.summarizer == nil {
		log.Println("agent: summarizer not configured, dropping request")
		return
	}
	summary := s.summarizer.Summarize(ctx, transcript)

	go func() {
		if err := s.engine.Say(ctx, summary, true); err != nil {
			log.Printf("agent: speaking summary failed: %v", err)
		}
	}()

	payload, err := json.Marshal(summaryResult{
		Type:               TypeMeetingSummaryResult,
		Summary:            summary,
		OriginalTranscript: transcript,
	})
	if err != nil {
		log.Printf("agent: marshal summary result: %v", err)
		return
	}
	sendCtx, cancel := context.WithTimeout(ctx, SummaryDeliveryTimeout)
	defer cancel()
	if err := s.room.PublishData(sendCtx, payload); err != nil {
		log.Printf("agent: deliver summary result: %v", err)
		return
	}
	log.Println("agent: summary result delivered")
}

// Close tears the session down in order: stop inbound data, stop the
// dialogue engine, release model resources, leave the room. Every step is
// guarded so a failing one never skips the rest. Safe to call repeatedly.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.setState(StateShuttingDown)
		s.room.OnData(nil)
		if s.stopEngine != nil {
			s.stopEngine()
		}
		if s.engine != nil {
			if err := s.engine.Close(); err != nil {
				log.Printf("agent: close engine: %v", err)
			}
		}
		if s.summarizer != nil {
			if err := s.summarizer.Close(); err != nil {
				log.Printf("agent: close summarizer: %v", err)
			}
		}
		s.room.Disconnect()
		if s.cancel != nil {
			s.cancel()
		}
		s.setState(StateClosed)
	})
}

func buildSystemPrompt(now time.Time, name string, memories []string) string {
	nameHint := "Nama pengguna tidak diketahui."
	if name != "" {
		nameHint = fmt.Sprintf("Nama pengguna mungkin %s.", name)
	}
	contextSection := "Tidak ada konteks sebelumnya yang diingat."
	if len(memories) > 0 {
		lines := make([]string, 0, len(memories))
		for _, m := range memories {
			lines = append(lines, "- "+strings.TrimSpace(m))
		}
		contextSection = "Konteks dari interaksi sebelumnya:\n" + strings.Join(lines, "\n")
	}

	var b strings.Builder
	b.WriteString("Anda adalah 'Anty', asisten suara yang ramah dan empatik dalam Bahasa Indonesia. ")
	b.WriteString("Kepribadian Anda suportif, membantu, dan sedikit informal namun selalu sopan. ")
	b.WriteString("Anda memiliki akses ke beberapa alat:\n")
	b.WriteString("- Fungsi memori: `remember_name`, `remember_important_info`, `recall_memories` untuk menyimpan dan mengambil informasi tentang pengguna dan percakapan sebelumnya.\n")
	b.WriteString("- Kontrol perangkat: `set_device_alarm` untuk mengatur alarm (selalu konfirmasi tanggal YYYY-MM-DD, waktu HH:MM, dan pesan terlebih dahulu).\n")
	b.WriteString("- Pencarian internet: `search_internet` untuk menemukan informasi terkini, fakta, atau topik yang tidak Anda ketahui.\n\n")
	fmt.Fprintf(&b, "Tanggal hari ini adalah %s.\n", now.Format("2006-01-02"))
	b.WriteString(nameHint + "\n\n")
	b.WriteString("--- Konteks Sebelumnya yang Relevan ---\n")
	b.WriteString(contextSection + "\n")
	b.WriteString("--- Akhir Konteks ---\n\n")
	b.WriteString("Pedoman:\n")
	b.WriteString("- Gunakan respons singkat dan ringkas, hindari penggunaan tanda baca yang sulit diucapkan.\n")
	b.WriteString("- Jaga agar respons tetap ringkas dan percakapan dalam Bahasa Indonesia.\n")
	b.WriteString("- Bersikaplah empatik dan suportif secara alami.\n")
	b.WriteString("- Gunakan fungsi memori untuk mempersonalisasi percakapan.\n")
	b.WriteString("- Gunakan fungsi perangkat HANYA jika diminta secara eksplisit dan setelah mengonfirmasi semua detail.\n")
	b.WriteString("- Gunakan fungsi `search_internet` ketika ditanya tentang peristiwa terkini, topik di luar data pelatihan Anda, atau fakta spesifik yang tidak Anda ketahui.\n")
	b.WriteString("- PENTING: Sebelum memanggil `search_internet`, SELALU beri tahu pengguna bahwa Anda perlu mencari terlebih dahulu (misalnya, 'Oke, sebentar ya, saya coba cari informasinya dulu.' atau 'Saya perlu mencari itu di internet sebentar.'). Kemudian, panggil fungsinya.\n")
	b.WriteString("- Jika hasil pencarian memberikan sumber, coba sebutkan secara singkat (misalnya, 'Menurut sumber X...').\n")
	b.WriteString("- Akui jika Anda tidak tahu sesuatu dan tidak dapat menemukannya.\n")
	b.WriteString("- Saat mengatur alarm, selalu konfirmasi tanggal pasti (format YYYY-MM-DD, selesaikan tanggal relatif seperti 'besok' atau 'Selasa depan' terlebih dahulu), waktu (HH:MM, format 24 jam), dan pesan/label untuk alarm dengan pengguna sebelum memanggil fungsi.")
	return b.String()
}

func buildGreeting(name string) string {
	if name != "" {
		return fmt.Sprintf("Halo %s, saya Anty. Ada yang bisa saya bantu hari ini?", name)
	}
	return "Halo, saya Anty. Ada yang bisa saya bantu hari ini?"
}
