// Package dispatch is the callable-operation surface exposed to the
// language model: memory write/recall, device-alarm scheduling, internet
// search. Every operation validates its input, applies a timeout, and
// returns a human-readable string even on failure, so the model can treat
// every call as total.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/tortiedeveloper/discusswithanty-livekit-server/internal/memory"
	"github.com/tortiedeveloper/discusswithanty-livekit-server/internal/search"
)

// DeviceActionTimeout bounds delivery of one outbound device command.
const DeviceActionTimeout = 15 * time.Second

// Semantic queries reused across recall paths.
const (
	QueryNameRecall = "What is the user's name?"
)

// searchProgressText fills the silence before a potentially slow internet
// search.
const searchProgressText = "Oke, sebentar ya, saya coba cari informasinya dulu."

// MemoryTopics are suggested categories for remember-info, surfaced to the
// model through the tool description.
var MemoryTopics = []string{
	"personal info", "preferences", "concerns", "goals", "life events",
	"relationships", "user name", "user age", "past advice", "feedback",
	"meeting schedule", "important dates",
}

// SendFunc delivers one outbound structured payload to the connected
// client over the room's data channel.
type SendFunc func(ctx context.Context, payload []byte) error

// Speaker is the dialogue engine's speak capability, injected after the
// engine exists (two-phase construction).
type Speaker interface {
	Say(ctx context.Context, text string, allowInterruptions bool) error
}

// AlarmCommand is the one-shot structured payload for set-device-alarm.
type AlarmCommand struct {
	Type    string `json:"type"`
	Hour    int    `json:"hour"`
	Minute  int    `json:"minute"`
	Date    string `json:"date"`
	Message string `json:"message"`
}

// Funcs holds the operations and their shared, read-mostly dependencies.
// userID and userName are mutated only from the session's event loop;
// the mutex guards the accessors used by tests and the orchestrator.
type Funcs struct {
	mem      *memory.Gateway
	send     SendFunc
	searcher search.Searcher

	mu       sync.Mutex
	userID   string
	userName string
	speaker  Speaker
}

// NewFuncs constructs the dispatch surface. Any dependency may be nil; the
// corresponding operation degrades with an explicit message.
func NewFuncs(mem *memory.Gateway, send SendFunc, searcher search.Searcher) *Funcs {
	return &Funcs{mem: mem, send: send, searcher: searcher}
}

// SetSpeaker injects the dialogue engine's speak capability. Called once
// the engine has been constructed around this very dispatch surface.
func (f *Funcs) SetSpeaker(s Speaker) {
	f.mu.Lock()
	f.speaker = s
	f.mu.Unlock()
}

func (f *Funcs) currentSpeaker() Speaker {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.speaker
}

// SetUserID binds the persistent identity and does a best-effort initial
// name recall so greetings can be personalized.
func (f *Funcs) SetUserID(ctx context.Context, userID string) {
	if userID == "" {
		log.Println("dispatch: attempted to set an empty user id")
		return
	}
	f.mu.Lock()
	f.userID = userID
	f.mu.Unlock()
	log.Printf("dispatch: set current user id: %s", userID)

	if !f.mem.Available() {
		log.Println("dispatch: memory not available, skipping initial name recall")
		return
	}
	texts, err := f.mem.Search(ctx, userID, QueryNameRecall, 1)
	if err != nil || len(texts) == 0 {
		return
	}
	if name := ExtractName(texts[0]); name != "" {
		f.mu.Lock()
		f.userName = name
		f.mu.Unlock()
		log.Printf("dispatch: tentatively cached user name from initial recall: %s", name)
	}
}

// UserID returns the bound persistent identity, if any.
func (f *Funcs) UserID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.userID
}

// UserName returns the cached best-effort user name, if any.
func (f *Funcs) UserName() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.userName
}

// SetUserName overwrites the cached name (last-write-wins).
func (f *Funcs) SetUserName(name string) {
	f.mu.Lock()
	f.userName = name
	f.mu.Unlock()
}

// RememberName stores the user's stated name.
func (f *Funcs) RememberName(ctx context.Context, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		log.Println("dispatch: remember-name called with empty name")
		return "Maaf, sepertinya Anda belum menyebutkan nama."
	}
	name = capitalize(name)
	f.SetUserName(name)
	log.Printf("dispatch: model identified user's name: %s", name)

	userID := f.UserID()
	if userID == "" || !f.mem.Available() {
		log.Println("dispatch: cannot store name, user id or memory not available")
		return fmt.Sprintf("Baik, %s. Senang mengetahui nama Anda.", name)
	}
	err := f.mem.Append(ctx, userID, "personal_details",
		fmt.Sprintf("The user stated their name is %s.", name),
		map[string]interface{}{"category": "personal_details", "type": "name", "value": name})
	if err != nil {
		return fmt.Sprintf("Baik, %s. Saya akan coba mengingatnya, tapi ada sedikit masalah dengan sistem memori jangka panjang saya.", name)
	}
	log.Printf("dispatch: stored user name memory for user %s", userID)
	return fmt.Sprintf("Baik, %s. Senang mengetahui nama Anda. Saya akan mengingatnya.", name)
}

// RememberInfo stores a fact, preference, goal, or concern under a topic.
func (f *Funcs) RememberInfo(ctx context.Context, topic, content string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		log.Println("dispatch: remember-info called with empty content")
		return "Maaf, sepertinya tidak ada informasi spesifik yang perlu diingat."
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		topic = "general info"
	}
	log.Printf("dispatch: remember-info topic=%q content=%q", topic, truncate(content, 100))

	userID := f.UserID()
	if userID == "" || !f.mem.Available() {
		log.Println("dispatch: cannot store info, user id or memory not available")
		return "Saya akan coba mengingatnya untuk percakapan ini, tapi sistem memori jangka panjang saya sedang tidak aktif."
	}
	category := strings.ReplaceAll(strings.ToLower(topic), " ", "_")
	err := f.mem.Append(ctx, userID, category,
		fmt.Sprintf("User shared information related to '%s': %s", topic, content),
		map[string]interface{}{"category": category, "value": content})
	if err != nil {
		return "Maaf, terjadi masalah saat mencoba menyimpan informasi itu ke memori jangka panjang."
	}
	return fmt.Sprintf("Oke, saya sudah catat informasi tentang %s itu.", topic)
}

// RecallMemories searches past memories for a topic. limit is clamped to
// [1,5]; validation happens before any backend call.
func (f *Funcs) RecallMemories(ctx context.Context, query string, limit int) string {
	query = strings.TrimSpace(query)
	if query == "" {
		log.Println("dispatch: recall called with empty query")
		return "Untuk mengingat sesuatu, tolong beritahu topik atau kata kuncinya."
	}
	if limit < 1 {
		limit = 1
	}
	if limit > 5 {
		limit = 5
	}

	userID := f.UserID()
	if userID == "" || !f.mem.Available() {
		log.Println("dispatch: cannot recall, user id or memory not available")
		return "Sistem memori jangka panjang saya tidak dapat diakses saat ini."
	}

	log.Printf("dispatch: recalling memories for user %s query=%q limit=%d", userID, query, limit)
	texts, err := f.mem.Search(ctx, userID, query, limit)
	switch {
	case errors.Is(err, memory.ErrTimeout):
		return "Maaf, saya butuh waktu terlalu lama untuk mencoba mengingat itu."
	case errors.Is(err, memory.ErrUnavailable):
		return "Maaf, saya tidak bisa mengakses memori jangka panjang saat ini."
	case err != nil:
		return "Terjadi masalah saat mencoba mengakses memori jangka panjang."
	}
	if len(texts) == 0 {
		return fmt.Sprintf("Saya sudah mencari, tapi tidak menemukan catatan spesifik tentang '%s'.", query)
	}
	var b strings.Builder
	for i, t := range texts {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- ")
		b.WriteString(t)
	}
	return fmt.Sprintf("Mengenai '%s', ini beberapa hal yang saya ingat dari percakapan kita sebelumnya:\n%s", query, b.String())
}

// SetDeviceAlarm validates the request and emits exactly one set_alarm
// payload through the delivery channel. Validation precedes any side
// effect; a failed delivery is never retried here.
func (f *Funcs) SetDeviceAlarm(ctx context.Context, hour, minute int, date, message string) string {
	log.Printf("dispatch: set-alarm request date=%s time=%02d:%02d message=%q", date, hour, minute, message)
	if hour < 0 || hour > 23 {
		log.Printf("dispatch: invalid alarm hour: %d", hour)
		return "Maaf, jam alarm tidak valid (harus antara 0 dan 23)."
	}
	if minute < 0 || minute > 59 {
		log.Printf("dispatch: invalid alarm minute: %d", minute)
		return "Maaf, menit alarm tidak valid (harus antara 0 dan 59)."
	}
	message = strings.TrimSpace(message)
	if message == "" {
		log.Println("dispatch: empty alarm message")
		return "Maaf, pesan untuk alarm tidak boleh kosong."
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		log.Printf("dispatch: invalid alarm date: %q", date)
		return fmt.Sprintf("Maaf, format tanggal ('%s') sepertinya tidak valid. Gunakan format YYYY-MM-DD.", date)
	}

	if f.send == nil {
		log.Println("dispatch: delivery channel not configured, cannot send alarm command")
		return "Maaf, saya tidak dapat mengirim perintah alarm ke perangkat Anda saat ini karena masalah koneksi internal."
	}
	if f.UserID() == "" {
		log.Println("dispatch: user id not set, cannot target alarm command")
		return "Maaf, saya tidak yakin harus mengirim perintah alarm ke siapa. Terjadi masalah internal."
	}

	payload, _ := json.Marshal(AlarmCommand{
		Type:    "set_alarm",
		Hour:    hour,
		Minute:  minute,
		Date:    date,
		Message: message,
	})
	sendCtx, cancel := context.WithTimeout(ctx, DeviceActionTimeout)
	defer cancel()
	if err := f.send(sendCtx, payload); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Println("dispatch: timeout delivering set_alarm command")
			return "Maaf, butuh waktu terlalu lama untuk mengirim perintah alarm ke perangkat Anda. Silakan coba lagi."
		}
		log.Printf("dispatch: failed to deliver set_alarm command: %v", err)
		return "Maaf, sepertinya ada masalah koneksi saat mengirim perintah alarm ke perangkat Anda."
	}
	log.Printf("dispatch: sent set_alarm command for user %s", f.UserID())
	return fmt.Sprintf("Oke, permintaan untuk menyetel alarm '%s' pada %s jam %02d:%02d sudah dikirim ke perangkat Anda.", message, date, hour, minute)
}

// SearchInternet answers a query with up-to-date information from the
// external search backend, mapping each failure class to its own message.
func (f *Funcs) SearchInternet(ctx context.Context, query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		log.Println("dispatch: search called with empty query")
		return "Tolong berikan topik atau pertanyaan spesifik yang ingin Anda cari informasinya."
	}
	if f.searcher == nil {
		log.Println("dispatch: searcher not configured")
		return "Maaf, saya tidak dapat melakukan pencarian internet saat ini karena konfigurasi API Key belum diatur."
	}
	log.Printf("dispatch: internet search query=%q", query)

	if sp := f.currentSpeaker(); sp != nil {
		if err := sp.Say(ctx, searchProgressText, true); err != nil {
			log.Printf("dispatch: search announcement failed: %v", err)
		}
	}

	searchCtx, cancel := context.WithTimeout(ctx, search.Timeout)
	defer cancel()
	answer, err := f.searcher.Search(searchCtx, query)
	switch {
	case err == nil:
		log.Printf("dispatch: internet search ok, result length %d", len(answer))
		return answer
	case errors.Is(err, search.ErrMissingKey):
		return "Maaf, saya tidak dapat melakukan pencarian internet saat ini karena konfigurasi API Key belum diatur."
	case errors.Is(err, search.ErrAuth):
		return "Maaf, terjadi masalah otentikasi dengan layanan pencarian."
	case errors.Is(err, search.ErrRateLimited):
		return "Maaf, batas penggunaan layanan pencarian telah tercapai. Coba lagi nanti."
	case errors.Is(err, search.ErrBadResponse):
		return "Maaf, saya menerima format respons yang tidak terduga dari layanan pencarian."
	case errors.Is(err, context.DeadlineExceeded):
		log.Printf("dispatch: internet search timed out for query %q", query)
		return "Maaf, pencarian informasi memakan waktu terlalu lama. Silakan coba lagi."
	default:
		log.Printf("dispatch: internet search failed: %v", err)
		return "Maaf, terjadi masalah jaringan saat mencoba mencari informasi."
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
