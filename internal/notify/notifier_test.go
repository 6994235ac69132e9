package notify

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifyReachesEverySubscriber(t *testing.T) {
	n := New(nil)

	var got []string
	n.Subscribe(ConversationsChanged, func(Event) { got = append(got, "list") })
	n.Subscribe(ConversationsChanged, func(Event) { got = append(got, "sidebar") })
	n.Subscribe(DocumentChanged, func(Event) { got = append(got, "quiz") })

	n.Notify(ConversationsChanged)
	assert.Equal(t, []string{"list", "sidebar"}, got, "handlers run in registration order, only for their event")

	n.Notify(ConversationsChanged)
	assert.Len(t, got, 4, "handlers fire on every raise")
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	n := New(nil)

	calls := 0
	unsubscribe := n.Subscribe(ConversationsChanged, func(Event) { calls++ })
	require.Equal(t, 1, n.Subscribers(ConversationsChanged))

	n.Notify(ConversationsChanged)
	unsubscribe()
	unsubscribe()
	n.Notify(ConversationsChanged)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, n.Subscribers(ConversationsChanged), "no leaked handlers after teardown")
}

func TestUnsubscribeKeepsOtherHandlers(t *testing.T) {
	n := New(nil)

	var a, b int
	unsubA := n.Subscribe(ConversationsChanged, func(Event) { a++ })
	n.Subscribe(ConversationsChanged, func(Event) { b++ })

	unsubA()
	n.Notify(ConversationsChanged)

	assert.Equal(t, 0, a)
	assert.Equal(t, 1, b)
}

func TestPanickingHandlerDoesNotBlockOthers(t *testing.T) {
	n := New(nil)

	reached := false
	n.Subscribe(ConversationsChanged, func(Event) { panic("boom") })
	n.Subscribe(ConversationsChanged, func(Event) { reached = true })

	assert.NotPanics(t, func() { n.Notify(ConversationsChanged) })
	assert.True(t, reached)
}

func TestHandlerMayUnsubscribeDuringNotify(t *testing.T) {
	n := New(nil)

	var unsubscribe func()
	calls := 0
	unsubscribe = n.Subscribe(ConversationsChanged, func(Event) {
		calls++
		unsubscribe()
	})

	n.Notify(ConversationsChanged)
	n.Notify(ConversationsChanged)
	assert.Equal(t, 1, calls)
}

func TestConcurrentSubscribeAndNotify(t *testing.T) {
	n := New(nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unsub := n.Subscribe(ConversationsChanged, func(Event) {})
			unsub()
		}()
		go func() {
			defer wg.Done()
			n.Notify(ConversationsChanged)
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, n.Subscribers(ConversationsChanged))
}
