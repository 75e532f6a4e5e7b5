package config

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/greenroom-ai/greenroom/pkg/provider/chat"
	"github.com/greenroom-ai/greenroom/pkg/provider/transcribe"
	"github.com/greenroom-ai/greenroom/pkg/provider/voice"
)

type stubChat struct{ name string }

func (s *stubChat) StreamTurn(context.Context, chat.TurnRequest) (<-chan chat.TurnEvent, error) {
	return nil, nil
}

type stubTranscriber struct{}

func (s *stubTranscriber) Transcribe(context.Context, transcribe.Request) (*transcribe.Result, error) {
	return &transcribe.Result{}, nil
}

type stubRenderer struct{ sink voice.AudioSink }

func (s *stubRenderer) StartSession(context.Context) error { return nil }
func (s *stubRenderer) EnqueueText(context.Context, string) (time.Duration, error) {
	return 0, nil
}
func (s *stubRenderer) EndSession(context.Context) error { return nil }
func (s *stubRenderer) HardStop()                        {}
func (s *stubRenderer) Ready() bool                      { return true }

type nopSink struct{}

func (nopSink) Speak(string, []byte, time.Duration) {}
func (nopSink) Flush()                              {}
func (nopSink) Discard()                            {}

func TestRegistryCreateChat(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterChat("stub", func(entry ProviderEntry) (chat.Provider, error) {
		return &stubChat{name: entry.Model}, nil
	})

	p, err := reg.CreateChat(ProviderEntry{Name: "stub", Model: "m1"})
	if err != nil {
		t.Fatalf("CreateChat: %v", err)
	}
	if got := p.(*stubChat).name; got != "m1" {
		t.Errorf("factory did not receive entry: model = %q", got)
	}
}

func TestRegistryCreateTranscribe(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterTranscribe("stub", func(ProviderEntry) (transcribe.Provider, error) {
		return &stubTranscriber{}, nil
	})
	if _, err := reg.CreateTranscribe(ProviderEntry{Name: "stub"}); err != nil {
		t.Fatalf("CreateTranscribe: %v", err)
	}
}

func TestRegistryCreateVoicePassesSink(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterVoice("stub", func(_ ProviderEntry, sink voice.AudioSink) (voice.Renderer, error) {
		return &stubRenderer{sink: sink}, nil
	})

	sink := nopSink{}
	r, err := reg.CreateVoice(ProviderEntry{Name: "stub"}, sink)
	if err != nil {
		t.Fatalf("CreateVoice: %v", err)
	}
	if r.(*stubRenderer).sink == nil {
		t.Error("sink was not passed to the factory")
	}
}

func TestRegistryUnknownProvider(t *testing.T) {
	reg := NewRegistry()
	if _, err := reg.CreateChat(ProviderEntry{Name: "nope"}); !errors.Is(err, ErrProviderNotRegistered) {
		t.Fatalf("err = %v, want ErrProviderNotRegistered", err)
	}
	if _, err := reg.CreateTranscribe(ProviderEntry{Name: "nope"}); !errors.Is(err, ErrProviderNotRegistered) {
		t.Fatalf("err = %v, want ErrProviderNotRegistered", err)
	}
	if _, err := reg.CreateVoice(ProviderEntry{Name: "nope"}, nopSink{}); !errors.Is(err, ErrProviderNotRegistered) {
		t.Fatalf("err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistryOverwrite(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterChat("stub", func(ProviderEntry) (chat.Provider, error) {
		return &stubChat{name: "first"}, nil
	})
	reg.RegisterChat("stub", func(ProviderEntry) (chat.Provider, error) {
		return &stubChat{name: "second"}, nil
	})

	p, err := reg.CreateChat(ProviderEntry{Name: "stub"})
	if err != nil {
		t.Fatalf("CreateChat: %v", err)
	}
	if got := p.(*stubChat).name; got != "second" {
		t.Errorf("name = %q, want second (last registration wins)", got)
	}
}
