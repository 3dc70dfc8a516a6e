package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"crystallize-agent/internal/domain"
)

// fakeRecords is an in-memory RecordStore.
type fakeRecords struct {
	data    map[string]string
	getErr  error
	putErr  error
	delErr  error
	puts    int
	deletes int
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{data: make(map[string]string)}
}

func (f *fakeRecords) GetRecord(_ context.Context, key string) (string, bool, error) {
	if f.getErr != nil {
		return "", false, f.getErr
	}
	body, ok := f.data[key]
	return body, ok, nil
}

func (f *fakeRecords) PutRecord(_ context.Context, key, body string) error {
	f.puts++
	if f.putErr != nil {
		return f.putErr
	}
	f.data[key] = body
	return nil
}

func (f *fakeRecords) DeleteRecord(_ context.Context, key string) error {
	f.deletes++
	if f.delErr != nil {
		return f.delErr
	}
	delete(f.data, key)
	return nil
}

func userTurn(id, text string) domain.Turn {
	return domain.Turn{ID: id, Speaker: domain.SpeakerUser, Text: text, CreatedAt: 1}
}

func mustConversation(t *testing.T, records RecordStore) *ConversationStore {
	t.Helper()
	s, err := NewConversationStore(records, "ada")
	require.NoError(t, err)
	return s
}

func TestNewConversationStore_Validation(t *testing.T) {
	_, err := NewConversationStore(nil, "ada")
	require.Error(t, err)

	_, err = NewConversationStore(newFakeRecords(), " ")
	require.Error(t, err)
}

func TestConversation_AppendPreservesOrder(t *testing.T) {
	s := mustConversation(t, newFakeRecords())
	ctx := context.Background()

	s.Append(ctx, userTurn("a", "first"))
	s.Append(ctx, userTurn("b", "second"))
	s.Append(ctx, userTurn("c", "third"))

	turns := s.Turns()
	require.Len(t, turns, 3)
	require.Equal(t, "first", turns[0].Text)
	require.Equal(t, "third", turns[2].Text)
}

func TestConversation_MutateByIDKeepsPosition(t *testing.T) {
	s := mustConversation(t, newFakeRecords())
	ctx := context.Background()

	s.Append(ctx, userTurn("a", "first"))
	s.Append(ctx, domain.Turn{ID: "b", Speaker: domain.SpeakerAssistant, Pending: true})
	s.Append(ctx, userTurn("c", "third"))

	ok := s.Mutate(ctx, "b", func(t *domain.Turn) {
		t.Text = "answer"
		t.Pending = false
	})
	require.True(t, ok)

	turns := s.Turns()
	require.Equal(t, "answer", turns[1].Text)
	require.False(t, turns[1].Pending)
}

func TestConversation_MutateAbsentIDIsNoOp(t *testing.T) {
	records := newFakeRecords()
	s := mustConversation(t, records)

	ok := s.Mutate(context.Background(), "ghost", func(t *domain.Turn) {
		t.Text = "should not happen"
	})
	require.False(t, ok)
	require.Zero(t, records.puts, "a no-op mutation must not write")
}

func TestConversation_RetentionWindow(t *testing.T) {
	records := newFakeRecords()
	s := mustConversation(t, records)
	ctx := context.Background()

	for i := 0; i < 55; i++ {
		s.Append(ctx, userTurn(fmt.Sprintf("t%02d", i), fmt.Sprintf("turn %d", i)))
	}

	var persisted []domain.Turn
	require.NoError(t, json.Unmarshal([]byte(records.data["crystal_chat_ada"]), &persisted))
	require.Len(t, persisted, 50)
	require.Equal(t, "turn 5", persisted[0].Text, "oldest turns are discarded first")
	require.Equal(t, "turn 54", persisted[49].Text)
}

func TestConversation_RoundTrip(t *testing.T) {
	records := newFakeRecords()
	ctx := context.Background()

	s := mustConversation(t, records)
	s.Append(ctx, userTurn("a", "What is entropy?"))
	s.Append(ctx, domain.Turn{
		ID: "b", Speaker: domain.SpeakerAssistant, Text: "Entropy is...",
		Citations: []domain.Citation{{URI: "https://example.org/entropy", Title: "Entropy"}},
	})

	reloaded := mustConversation(t, records)
	require.NoError(t, reloaded.Load(ctx))
	require.Equal(t, s.Turns(), reloaded.Turns())
}

func TestConversation_LoadMissingRecord(t *testing.T) {
	s := mustConversation(t, newFakeRecords())
	require.NoError(t, s.Load(context.Background()))
	require.Zero(t, s.Len())
}

func TestConversation_LoadCorruptRecordStartsEmpty(t *testing.T) {
	records := newFakeRecords()
	records.data["crystal_chat_ada"] = "not-json"
	s := mustConversation(t, records)
	require.NoError(t, s.Load(context.Background()))
	require.Zero(t, s.Len())
}

func TestConversation_LoadReadError(t *testing.T) {
	records := newFakeRecords()
	records.getErr = errors.New("dynamodb down")
	s := mustConversation(t, records)
	require.Error(t, s.Load(context.Background()))
}

func TestConversation_ClearRemovesRecord(t *testing.T) {
	records := newFakeRecords()
	s := mustConversation(t, records)
	ctx := context.Background()

	s.Append(ctx, userTurn("a", "hello"))
	require.Contains(t, records.data, "crystal_chat_ada")

	s.Clear(ctx)
	require.Zero(t, s.Len())
	require.NotContains(t, records.data, "crystal_chat_ada")
}

func TestConversation_PersistFailureIsSwallowed(t *testing.T) {
	records := newFakeRecords()
	records.putErr = errors.New("quota exceeded")
	s := mustConversation(t, records)

	s.Append(context.Background(), userTurn("a", "hello"))

	// in-memory state stays authoritative
	require.Equal(t, 1, s.Len())
}

func TestConversation_Preceding(t *testing.T) {
	s := mustConversation(t, newFakeRecords())
	ctx := context.Background()

	s.Append(ctx, userTurn("a", "What is entropy?"))
	s.Append(ctx, domain.Turn{ID: "b", Speaker: domain.SpeakerAssistant, Text: "Entropy is..."})

	prev, ok := s.Preceding("b")
	require.True(t, ok)
	require.Equal(t, "What is entropy?", prev.Text)

	_, ok = s.Preceding("a")
	require.False(t, ok)

	_, ok = s.Preceding("ghost")
	require.False(t, ok)
}

func TestConversation_ReplaceAll(t *testing.T) {
	s := mustConversation(t, newFakeRecords())
	ctx := context.Background()

	s.Append(ctx, userTurn("a", "old"))
	s.ReplaceAll(ctx, []domain.Turn{userTurn("x", "new one"), userTurn("y", "new two")})

	turns := s.Turns()
	require.Len(t, turns, 2)
	require.Equal(t, "new one", turns[0].Text)
}

func TestConversation_GetReturnsCopy(t *testing.T) {
	s := mustConversation(t, newFakeRecords())
	ctx := context.Background()
	s.Append(ctx, userTurn("a", "hello"))

	turn, ok := s.Get("a")
	require.True(t, ok)
	turn.Text = "mutated copy"

	fresh, _ := s.Get("a")
	require.Equal(t, "hello", fresh.Text)
}
