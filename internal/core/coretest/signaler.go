package coretest

import (
	"context"
	"sync"

	"github.com/dkeye/jingle/internal/core"
	"github.com/dkeye/jingle/internal/domain"
)

// RecordingSignaler keeps every sent message in order.
type RecordingSignaler struct {
	mu   sync.Mutex
	msgs []domain.Message
	Err  error
}

func (s *RecordingSignaler) Send(_ context.Context, msg domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *RecordingSignaler) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Message(nil), s.msgs...)
}

func (s *RecordingSignaler) Actions() []domain.Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Action, 0, len(s.msgs))
	for _, m := range s.msgs {
		out = append(out, m.Action)
	}
	return out
}

func (s *RecordingSignaler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = nil
}

// EventLog records observer events.
type EventLog struct {
	mu     sync.Mutex
	events []core.Event
}

func (l *EventLog) OnSessionEvent(e core.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *EventLog) Events() []core.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]core.Event(nil), l.events...)
}

func (l *EventLog) Kinds() []core.EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]core.EventKind, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Kind)
	}
	return out
}

// Track and Stream are plain in-memory media handles.
type Track struct {
	TrackID   string
	TrackKind domain.MediaType
}

func (t *Track) ID() string             { return t.TrackID }
func (t *Track) Kind() domain.MediaType { return t.TrackKind }

type Stream struct {
	StreamID string
	mu       sync.Mutex
	tracks   []core.Track
}

func NewStream(id string, tracks ...core.Track) *Stream {
	return &Stream{StreamID: id, tracks: tracks}
}

func (s *Stream) ID() string { return s.StreamID }

func (s *Stream) Tracks() []core.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Track(nil), s.tracks...)
}

func (s *Stream) AudioTracks() []core.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Track
	for _, t := range s.tracks {
		if t.Kind() == domain.MediaAudio {
			out = append(out, t)
		}
	}
	return out
}

func (s *Stream) AddTrack(t core.Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks = append(s.tracks, t)
}

func (l *EventLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
}
