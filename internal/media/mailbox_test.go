package media

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMailbox_PostNeverBlocks(t *testing.T) {
	m := newMailbox()

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 500 {
				m.post(Event{Kind: EventIngestProgress, Percent: i*1000 + j})
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 4000, m.pending())
	select {
	case <-m.notify:
	default:
		t.Fatal("expected a pending notification")
	}

	events := m.drain()
	require.Len(t, events, 4000)
	require.Zero(t, m.pending())
	for _, ev := range events {
		require.False(t, ev.At.IsZero())
	}
}

func TestMailbox_DrainKeepsOrder(t *testing.T) {
	m := newMailbox()
	m.post(Event{Kind: EventIngestProgress, Percent: 10})
	m.post(Event{Kind: EventAssetReady})
	m.post(Event{Kind: EventJobState})

	events := m.drain()
	require.Equal(t, []EventKind{EventIngestProgress, EventAssetReady, EventJobState},
		[]EventKind{events[0].Kind, events[1].Kind, events[2].Kind})
	require.Empty(t, m.drain())
}
