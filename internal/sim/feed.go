package sim

import (
	"math/rand"
	"sync"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/schema"
)

// Publisher receives generated ticks.
type Publisher interface {
	Broadcast(topic string, payload any)
}

// Feed is an in-process market-data source. In live mode it synthesizes a
// random-walk mid per symbol; in feed-only mode it emits nothing on its own
// and only forwards what IngestMid pushes in, which is how replay drives it.
type Feed struct {
	pub      Publisher
	interval time.Duration

	mu      sync.Mutex
	symbols []string
	mids    map[string]float64
	stop    chan struct{}
	wg      sync.WaitGroup
}

const defaultTickInterval = 250 * time.Millisecond

// NewFeed builds a simulated feed publishing on the tick topic.
func NewFeed(pub Publisher, interval time.Duration) *Feed {
	if interval <= 0 {
		interval = defaultTickInterval
	}
	return &Feed{
		pub:      pub,
		interval: interval,
		mids:     make(map[string]float64),
	}
}

// SetSymbols replaces the generated symbol set. New symbols start from a
// deterministic base price.
func (f *Feed) SetSymbols(symbols []string) {
	f.mu.Lock()
	f.symbols = append([]string(nil), symbols...)
	for i, symbol := range symbols {
		if _, ok := f.mids[symbol]; !ok {
			f.mids[symbol] = 100 + float64(i)*10
		}
	}
	f.mu.Unlock()
}

// Start launches the generator when liveSubscribe is true. With
// liveSubscribe false the feed runs passively for replay injection.
func (f *Feed) Start(liveSubscribe bool) error {
	f.Stop()
	if !liveSubscribe {
		logs.Info("sim feed started in feed-only mode")
		return nil
	}

	stop := make(chan struct{})
	f.mu.Lock()
	f.stop = stop
	f.mu.Unlock()

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		f.generate(stop)
	}()
	logs.Info("sim feed started in live mode")
	return nil
}

// Stop halts the live generator. Safe when idle.
func (f *Feed) Stop() {
	f.mu.Lock()
	stop := f.stop
	f.stop = nil
	f.mu.Unlock()
	if stop != nil {
		close(stop)
	}
	f.wg.Wait()
}

// IngestMid pushes one externally-sourced mid into the pipeline.
func (f *Feed) IngestMid(symbol string, mid float64, exchangeTs, receivedTs int64) {
	f.mu.Lock()
	f.mids[symbol] = mid
	f.mu.Unlock()
	f.pub.Broadcast(schema.TopicTick, schema.Tick{
		Symbol:     symbol,
		Mid:        mid,
		ExchangeTs: exchangeTs,
		ReceivedTs: receivedTs,
	})
}

func (f *Feed) generate(stop <-chan struct{}) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	idx := 0
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			f.mu.Lock()
			if len(f.symbols) == 0 {
				f.mu.Unlock()
				continue
			}
			symbol := f.symbols[idx%len(f.symbols)]
			idx++
			mid := f.mids[symbol]
			mid *= 1 + (rand.Float64()-0.5)*0.002
			f.mids[symbol] = mid
			f.mu.Unlock()

			ts := now.UnixMilli()
			f.pub.Broadcast(schema.TopicTick, schema.Tick{
				Symbol:     symbol,
				Mid:        mid,
				ExchangeTs: ts,
				ReceivedTs: ts,
			})
		}
	}
}
