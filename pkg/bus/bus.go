// Package bus is a small generic pub/sub bus: messages published under
// a key are fanned out to key subscribers and to global subscribers,
// in publish order, from a single worker goroutine.
package bus

import (
	"context"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

type Message[K comparable, M any] struct {
	Key     K
	Message M
}

type Publisher[M any] func(ctx context.Context, msg M)

type Bus[K comparable, M any] struct {
	log   *zap.Logger
	ready chan struct{}

	ch         chan Message[K, M]
	keySubs    *xsync.MapOf[K, map[chan Message[K, M]]struct{}]
	globalSubs *xsync.MapOf[chan Message[K, M], struct{}]
}

func NewBus[K comparable, M any](log *zap.Logger) *Bus[K, M] {
	return &Bus[K, M]{
		log:        log,
		ready:      make(chan struct{}),
		ch:         make(chan Message[K, M]),
		keySubs:    xsync.NewMapOf[K, map[chan Message[K, M]]struct{}](),
		globalSubs: xsync.NewMapOf[chan Message[K, M], struct{}](),
	}
}

func (b *Bus[K, M]) Start(ctx context.Context) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-b.ch:
				b.process(ctx, msg)
			}
		}
	}()
	close(b.ready)
	return nil
}

func (b *Bus[K, M]) Ready() <-chan struct{} {
	return b.ready
}

func (b *Bus[K, M]) Publish(ctx context.Context, key K, msg M) {
	select {
	case <-ctx.Done():
	case b.ch <- Message[K, M]{key, msg}:
	}
}

// CreatePublisher binds a key so that producers need not know it.
func (b *Bus[K, M]) CreatePublisher(key K) Publisher[M] {
	return func(ctx context.Context, msg M) {
		b.Publish(ctx, key, msg)
	}
}

func (b *Bus[K, M]) process(ctx context.Context, msg Message[K, M]) {
	b.globalSubs.Range(func(sub chan Message[K, M], _ struct{}) bool {
		select {
		case <-ctx.Done():
			return false
		case sub <- msg:
		}
		return true
	})
	subs, ok := b.keySubs.Load(msg.Key)
	if !ok {
		return
	}
	for sub := range subs {
		select {
		case <-ctx.Done():
			return
		case sub <- msg:
		}
	}
}

// Subscribe returns a channel of messages for the given keys, or for
// every key when none are given. The subscription ends with the
// context; the channel is closed then.
func (b *Bus[K, M]) Subscribe(ctx context.Context, keys ...K) <-chan Message[K, M] {
	ch := make(chan Message[K, M])
	if len(keys) == 0 {
		b.globalSubs.Store(ch, struct{}{})
		go func() {
			<-ctx.Done()
			b.globalSubs.Delete(ch)
			close(ch)
		}()
		return ch
	}
	for _, k := range keys {
		b.keySubs.Compute(k, func(val map[chan Message[K, M]]struct{}, ok bool) (map[chan Message[K, M]]struct{}, bool) {
			if !ok {
				val = make(map[chan Message[K, M]]struct{})
			}
			val[ch] = struct{}{}
			return val, false
		})
	}
	go func() {
		<-ctx.Done()
		for _, k := range keys {
			b.keySubs.Compute(k, func(val map[chan Message[K, M]]struct{}, ok bool) (map[chan Message[K, M]]struct{}, bool) {
				delete(val, ch)
				return val, false
			})
		}
		close(ch)
	}()
	return ch
}
