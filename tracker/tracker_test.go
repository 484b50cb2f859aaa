package tracker

import (
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"log/slog"

	"chat-relay/domain"
	"chat-relay/errors"
)

func newMessage(id string) domain.Message {
	return domain.Message{
		ID:         id,
		SenderID:   "fredy",
		SenderName: "Fredy",
		ReceiverID: "david",
		Content:    "Hello! How are you?",
		Kind:       domain.DefaultKind,
		CreatedAt:  time.Now().UTC(),
	}
}

func statusOf(t *testing.T, tr *Tracker, id string) domain.Status {
	t.Helper()
	for message, status := range tr.Snapshot() {
		if message.ID == id {
			return status
		}
	}
	t.Fatalf("message %s not tracked", id)
	return ""
}

func Test_Register_Starts_At_Sent(t *testing.T) {
	req := require.New(t)
	tr := New(logs.GetLoggerFromLevel(slog.LevelDebug), 0)

	req.NoError(tr.Register(newMessage("m1")))
	req.Equal(domain.StatusSent, statusOf(t, tr, "m1"))
}

func Test_Register_Is_Idempotent_For_Identical_Content(t *testing.T) {
	req := require.New(t)
	tr := New(logs.GetLoggerFromLevel(slog.LevelDebug), 0)

	message := newMessage("m1")
	req.NoError(tr.Register(message))
	req.NoError(tr.Register(message))
	req.Equal(1, tr.Len())
}

func Test_Register_Rejects_Conflicting_Content(t *testing.T) {
	req := require.New(t)
	tr := New(logs.GetLoggerFromLevel(slog.LevelDebug), 0)

	req.NoError(tr.Register(newMessage("m1")))
	conflicting := newMessage("m1")
	conflicting.Content = "something else entirely"

	req.ErrorIs(tr.Register(conflicting), errors.ErrDuplicateMessage)
}

func Test_Advance_Tracks_The_Maximum_Status(t *testing.T) {
	req := require.New(t)
	tr := New(logs.GetLoggerFromLevel(slog.LevelDebug), 0)
	req.NoError(tr.Register(newMessage("m1")))

	// Out-of-order arrival: read lands before delivered.
	_, err := tr.Advance("m1", domain.StatusRead, "david")
	req.NoError(err)
	event, err := tr.Advance("m1", domain.StatusDelivered, "david")
	req.NoError(err)

	// No regression: the applied status stays at the maximum.
	req.Equal(domain.StatusRead, event.Status)
	req.Equal(domain.StatusRead, statusOf(t, tr, "m1"))
}

func Test_Advance_Is_Order_Independent(t *testing.T) {
	req := require.New(t)
	ladder := []domain.Status{
		domain.StatusSent,
		domain.StatusReceivedByServer,
		domain.StatusDelivered,
		domain.StatusRead,
	}
	permutations := [][]int{
		{0, 1, 2, 3}, {3, 2, 1, 0}, {1, 3, 0, 2}, {2, 0, 3, 1},
	}
	for _, order := range permutations {
		tr := New(logs.GetLoggerFromLevel(slog.LevelDebug), 0)
		req.NoError(tr.Register(newMessage("m1")))
		for _, i := range order {
			_, err := tr.Advance("m1", ladder[i], "david")
			req.NoError(err)
		}
		req.Equal(domain.StatusRead, statusOf(t, tr, "m1"))
	}
}

func Test_Advance_Unknown_Message_Still_Synthesizes_An_Event(t *testing.T) {
	req := require.New(t)
	tr := New(logs.GetLoggerFromLevel(slog.LevelDebug), 0)

	event, err := tr.Advance("ghost", domain.StatusDelivered, "david")
	req.ErrorIs(err, errors.ErrUnknownMessage)
	req.Equal("ghost", event.MessageID)
	req.Equal(domain.StatusDelivered, event.Status)
	// Tracking is sender-local: no entry is created for foreign messages.
	req.Equal(0, tr.Len())
}

func Test_Snapshot_Orders_By_Most_Recent_Update(t *testing.T) {
	req := require.New(t)
	tr := New(logs.GetLoggerFromLevel(slog.LevelDebug), 0)

	req.NoError(tr.Register(newMessage("m1")))
	time.Sleep(2 * time.Millisecond)
	req.NoError(tr.Register(newMessage("m2")))
	time.Sleep(2 * time.Millisecond)
	_, err := tr.Advance("m1", domain.StatusDelivered, "david")
	req.NoError(err)

	var ids []string
	for message := range tr.Snapshot() {
		ids = append(ids, message.ID)
	}
	req.Equal([]string{"m1", "m2"}, ids)
}

func Test_Snapshot_Is_Restartable(t *testing.T) {
	req := require.New(t)
	tr := New(logs.GetLoggerFromLevel(slog.LevelDebug), 0)
	req.NoError(tr.Register(newMessage("m1")))
	req.NoError(tr.Register(newMessage("m2")))

	snapshot := tr.Snapshot()
	first := 0
	for range snapshot {
		first++
		break
	}
	second := 0
	for range snapshot {
		second++
	}
	req.Equal(1, first)
	req.Equal(2, second)
}

func Test_Eviction_Only_Removes_Resolved_Entries(t *testing.T) {
	req := require.New(t)
	tr := New(logs.GetLoggerFromLevel(slog.LevelDebug), 2)

	req.NoError(tr.Register(newMessage("m1")))
	req.NoError(tr.Register(newMessage("m2")))

	// m1 reaches the terminal status and is released; m2 stays pending.
	_, err := tr.Advance("m1", domain.StatusRead, "david")
	req.NoError(err)
	tr.Resolve("m1")
	tr.Resolve("m2") // not terminal, must be a no-op

	req.NoError(tr.Register(newMessage("m3")))

	req.Equal(2, tr.Len())
	req.Equal(domain.StatusSent, statusOf(t, tr, "m2"))
	req.Equal(domain.StatusSent, statusOf(t, tr, "m3"))
}

func Test_Concurrent_Advances_Respect_The_Monotone_Rule(t *testing.T) {
	req := require.New(t)
	tr := New(logs.GetLoggerFromLevel(slog.LevelDebug), 0)
	req.NoError(tr.Register(newMessage("m1")))
	req.NoError(tr.Register(newMessage("m2")))

	ladder := []domain.Status{
		domain.StatusReceivedByServer,
		domain.StatusDelivered,
		domain.StatusRead,
	}
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := "m1"
			if i%2 == 0 {
				id = "m2"
			}
			_, _ = tr.Advance(id, ladder[i%len(ladder)], "david")
		}(i)
	}
	wg.Wait()

	req.Equal(domain.StatusRead, statusOf(t, tr, "m1"))
	req.Equal(domain.StatusRead, statusOf(t, tr, "m2"))
}
