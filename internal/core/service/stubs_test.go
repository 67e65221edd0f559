package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/berfenger/elvia2mqtt/internal/core/domain"
	"github.com/berfenger/elvia2mqtt/internal/core/port"
	"github.com/berfenger/elvia2mqtt/pkg/elvia"
)

type stubMeterClient struct {
	result *elvia.MetersResult
	err    error
	panic  any
	block  bool
}

func (c *stubMeterClient) GetMeters(ctx context.Context) (*elvia.MetersResult, error) {
	if c.panic != nil {
		panic(c.panic)
	}
	if c.block {
		<-ctx.Done()
		return nil, fmt.Errorf("%w: %v", elvia.ErrTimeout, ctx.Err())
	}
	return c.result, c.err
}

type stubFactory struct {
	client *stubMeterClient
	tokens []string
}

func (f *stubFactory) New(token string) port.MeterClient {
	f.tokens = append(f.tokens, token)
	return f.client
}

func metersResult(status int, ids ...string) *elvia.MetersResult {
	res := &elvia.MetersResult{StatusCode: status}
	for _, id := range ids {
		res.MeteringPoints = append(res.MeteringPoints, elvia.MeteringPoint{MeteringPointId: id})
	}
	return res
}

type stubPlatform struct {
	mu           sync.Mutex
	forwarded    []string
	keysAtSetup  []string
	readyAtSetup bool
	forwardErr   error
	unloadOk     bool
	unloaded     []string
}

func (p *stubPlatform) ForwardEntrySetups(_ context.Context, entry domain.ConfigEntry, state *domain.RuntimeState, platforms []domain.Platform) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.forwarded = append(p.forwarded, entry.EntryId)
	p.keysAtSetup = state.Keys()
	p.readyAtSetup = state.Ready()
	return p.forwardErr
}

func (p *stubPlatform) UnloadPlatforms(_ context.Context, entry domain.ConfigEntry, platforms []domain.Platform) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unloaded = append(p.unloaded, entry.EntryId)
	return p.unloadOk
}

func testEntry(token string) domain.ConfigEntry {
	data := domain.DefaultUserInput()
	data.Token = token
	return domain.ConfigEntry{
		EntryId: "entry-1",
		Domain:  domain.DOMAIN,
		Title:   domain.ENTRY_TITLE,
		Version: domain.ENTRY_VERSION,
		Data:    data,
	}
}
