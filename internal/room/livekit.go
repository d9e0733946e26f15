// Package room adapts a LiveKit room to the session's needs: join, data
// in, data out, leave.
package room

import (
	"context"
	"fmt"
	"log"
	"sync"

	lksdk "github.com/livekit/server-sdk-go/v2"
)

// LiveKit joins a named room as the agent participant using server-side
// API credentials. One adapter serves one room visit.
type LiveKit struct {
	url       string
	apiKey    string
	apiSecret string
	roomName  string
	identity  string

	mu        sync.Mutex
	room      *lksdk.Room
	handler   func(payload []byte)
	connected bool
}

// NewLiveKit constructs an adapter for one room. Nothing connects until
// Connect is called.
func NewLiveKit(url, apiKey, apiSecret, roomName, identity string) *LiveKit {
	return &LiveKit{
		url:       url,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		roomName:  roomName,
		identity:  identity,
	}
}

// Name returns the room this adapter targets.
func (l *LiveKit) Name() string { return l.roomName }

// Connect joins the room. Data packets from other participants are routed
// to the registered handler.
func (l *LiveKit) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.url == "" || l.apiKey == "" || l.apiSecret == "" {
		return fmt.Errorf("room: livekit credentials not configured")
	}

	info := lksdk.ConnectInfo{
		APIKey:              l.apiKey,
		APISecret:           l.apiSecret,
		RoomName:            l.roomName,
		ParticipantIdentity: l.identity,
		ParticipantName:     l.identity,
	}
	callback := &lksdk.RoomCallback{
		OnDisconnected: func() {
			log.Printf("room: disconnected from %s", l.roomName)
			l.mu.Lock()
			l.connected = false
			l.mu.Unlock()
		},
		ParticipantCallback: lksdk.ParticipantCallback{
			OnDataPacket: func(data lksdk.DataPacket, params lksdk.DataReceiveParams) {
				packet, ok := data.(*lksdk.UserDataPacket)
				if !ok {
					return
				}
				l.mu.Lock()
				h := l.handler
				l.mu.Unlock()
				if h != nil {
					h(packet.Payload)
				}
			},
		},
	}

	room, err := lksdk.ConnectToRoom(l.url, info, callback)
	if err != nil {
		return fmt.Errorf("room: connect to %s: %w", l.roomName, err)
	}
	l.mu.Lock()
	l.room = room
	l.connected = true
	l.mu.Unlock()
	log.Printf("room: joined %s as %s", l.roomName, l.identity)
	return nil
}

// OnData registers the inbound data handler. nil unregisters.
func (l *LiveKit) OnData(handler func(payload []byte)) {
	l.mu.Lock()
	l.handler = handler
	l.mu.Unlock()
}

// PublishData sends one reliable data payload to the room, bounded by ctx.
// The SDK call itself is synchronous, so it runs on its own goroutine and
// only the primary wait chain reacts to the deadline.
func (l *LiveKit) PublishData(ctx context.Context, payload []byte) error {
	l.mu.Lock()
	room := l.room
	connected := l.connected
	l.mu.Unlock()
	if room == nil || !connected {
		return fmt.Errorf("room: not connected")
	}

	ch := make(chan error, 1)
	go func() {
		ch <- room.LocalParticipant.PublishData(payload, lksdk.WithDataPublishReliable(true))
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-ch:
		if err != nil {
			return fmt.Errorf("room: publish data: %w", err)
		}
		return nil
	}
}

// IsConnected reports whether the room connection is up.
func (l *LiveKit) IsConnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

// Disconnect leaves the room. Safe to call when never connected.
func (l *LiveKit) Disconnect() {
	l.mu.Lock()
	room := l.room
	l.room = nil
	l.connected = false
	l.mu.Unlock()
	if room != nil {
		room.Disconnect()
	}
}
