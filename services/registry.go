package services

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"strings"
	"sync"

	"triviarena/config"
)

// Registry is the process-wide pin to room map. Creation, lookup and
// teardown are the only cross-room operations; everything else happens on a
// room's own goroutine.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	cfg       config.RoomConfig
	scheduler Scheduler
	source    QuestionSource
	sink      SnapshotSink
	sender    OutboundSender
}

func NewRegistry(cfg config.RoomConfig, scheduler Scheduler, source QuestionSource, sink SnapshotSink, sender OutboundSender) *Registry {
	return &Registry{
		rooms:     make(map[string]*Room),
		cfg:       cfg,
		scheduler: scheduler,
		source:    source,
		sink:      sink,
		sender:    sender,
	}
}

// ResolveOrCreate returns the live room for the pin, creating it when absent,
// and reports whether this call created it. Requesting an occupied pin is
// idempotent only when every creation parameter matches, password included;
// anything else fails with DUPLICATE_PIN.
func (reg *Registry) ResolveOrCreate(params RoomParams) (*Room, bool, error) {
	params.Pin = strings.ToLower(params.Pin)

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if params.Pin != "" {
		if existing, ok := reg.rooms[params.Pin]; ok {
			if reg.sameCreation(existing, params) {
				return existing, false, nil
			}
			return nil, false, ErrDuplicatePin
		}
	} else {
		params.Pin = reg.generatePinLocked()
	}

	room, err := NewRoom(params, reg.cfg, reg.scheduler, reg.source, reg.sink, reg.sender)
	if err != nil {
		return nil, false, err
	}
	room.SetOnEmpty(reg.remove)
	reg.rooms[params.Pin] = room
	go room.Run()
	log.Printf("Room %s created (mode=%s topic=%s)", params.Pin, params.Mode, params.Topic)
	return room, true, nil
}

// sameCreation reports whether params describe the room exactly as it was
// created. Topic and mode are public via the preview endpoint, so they are
// never enough on their own.
func (reg *Registry) sameCreation(room *Room, params RoomParams) bool {
	count := params.QuestionCount
	if count <= 0 {
		count = reg.cfg.QuestionCount
	}
	return room.Mode() == params.Mode &&
		room.Topic() == params.Topic &&
		room.Difficulty() == params.Difficulty &&
		room.QuestionCount() == count &&
		room.PasswordMatches(params.Password)
}

// Get looks up a live room by pin.
func (reg *Registry) Get(pin string) (*Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	room, ok := reg.rooms[strings.ToLower(pin)]
	return room, ok
}

func (reg *Registry) Count() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms)
}

// remove is the empty-room teardown hook; the room has already cancelled its
// timers by the time it runs.
func (reg *Registry) remove(pin string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	delete(reg.rooms, pin)
	log.Printf("Room %s removed", pin)
}

// Shutdown stops every live room.
func (reg *Registry) Shutdown() {
	reg.mu.Lock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		rooms = append(rooms, room)
	}
	reg.rooms = make(map[string]*Room)
	reg.mu.Unlock()

	for _, room := range rooms {
		room.Stop()
	}
}

// generatePinLocked draws random pins until one is free among live rooms.
func (reg *Registry) generatePinLocked() string {
	for {
		bytes := make([]byte, 3)
		rand.Read(bytes)
		pin := hex.EncodeToString(bytes)[:6]
		if _, taken := reg.rooms[pin]; !taken {
			return pin
		}
	}
}
