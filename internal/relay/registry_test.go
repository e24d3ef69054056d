package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateRoomRetriesUntilCodeIsFree(t *testing.T) {
	codes := &scriptedCodes{codes: []string{"ABCD", "ABCD", "ABCD", "WXYZ"}}
	reg := NewRegistry(WithCodeGenerator(codes))

	first, creator, err := reg.CreateRoom("Ann", "p1", nil)
	require.NoError(t, err)
	require.Equal(t, "ABCD", first.Code)
	require.Equal(t, Player{ID: "p1", Name: "Ann", Slot: SlotRed}, creator)
	require.Equal(t, []Player{creator}, first.Players)
	require.Nil(t, first.State)

	second, _, err := reg.CreateRoom("Bo", "p2", nil)
	require.NoError(t, err)
	require.Equal(t, "WXYZ", second.Code)
	require.Equal(t, 4, codes.calls)
	require.Equal(t, 2, reg.RoomCount())
}

func TestCreatedCodesAreDistinct(t *testing.T) {
	reg := NewRegistry()
	seen := make(map[string]struct{})

	for i := 0; i < 500; i++ {
		snap, _, err := reg.CreateRoom("p", fmt.Sprintf("p%d", i), nil)
		require.NoError(t, err)
		_, dup := seen[snap.Code]
		require.False(t, dup, "code %s handed out twice", snap.Code)
		seen[snap.Code] = struct{}{}
	}
	require.Equal(t, 500, reg.RoomCount())
}

func TestCreateRoomWithEmptyPalette(t *testing.T) {
	reg := NewRegistry(WithPalette(nil))

	_, _, err := reg.CreateRoom("Ann", "p1", nil)
	require.ErrorIs(t, err, ErrRoomFull)
	require.Equal(t, 0, reg.RoomCount())
}

func TestJoinFillsPaletteThenRejects(t *testing.T) {
	reg := NewRegistry(WithCodeGenerator(&scriptedCodes{codes: []string{"ABCD"}}))
	_, _, err := reg.CreateRoom("p1", "p1", nil)
	require.NoError(t, err)

	want := []Slot{SlotBlue, SlotYellow, SlotGreen}
	for i, slot := range want {
		_, player, err := reg.JoinRoom("abcd", "p", fmt.Sprintf("p%d", i+2), nil)
		require.NoError(t, err)
		require.Equal(t, slot, player.Slot)
	}

	before, err := reg.Lookup("ABCD")
	require.NoError(t, err)

	committed := false
	_, _, err = reg.JoinRoom("ABCD", "late", "p5", func(Snapshot) { committed = true })
	require.ErrorIs(t, err, ErrRoomFull)
	require.False(t, committed)

	after, err := reg.Lookup("ABCD")
	require.NoError(t, err)
	require.Equal(t, before, after)
	require.Len(t, after.Players, len(Palette))
}

func TestJoinUnknownRoom(t *testing.T) {
	reg := NewRegistry()

	_, _, err := reg.JoinRoom("QQQQ", "Ann", "p1", nil)
	require.ErrorIs(t, err, ErrRoomNotFound)

	_, _, err = reg.JoinRoom("", "Ann", "p1", nil)
	require.ErrorIs(t, err, ErrRoomNotFound)
}

func TestJoinTwiceIsRejected(t *testing.T) {
	reg := NewRegistry(WithCodeGenerator(&scriptedCodes{codes: []string{"ABCD"}}))
	_, _, err := reg.CreateRoom("Ann", "p1", nil)
	require.NoError(t, err)

	_, _, err = reg.JoinRoom("ABCD", "Ann", "p1", nil)
	require.ErrorIs(t, err, ErrAlreadyMember)
}

func TestRemoveLastMemberDeletesRoomAndFreesCode(t *testing.T) {
	reg := NewRegistry(WithCodeGenerator(&scriptedCodes{codes: []string{"ABCD"}}))
	_, _, err := reg.CreateRoom("Ann", "p1", nil)
	require.NoError(t, err)
	_, _, err = reg.JoinRoom("ABCD", "Bo", "p2", nil)
	require.NoError(t, err)

	var remaining Snapshot
	deleted, err := reg.RemoveMember("ABCD", "p1", func(s Snapshot) { remaining = s })
	require.NoError(t, err)
	require.False(t, deleted)
	require.Equal(t, []Player{{ID: "p2", Name: "Bo", Slot: SlotBlue}}, remaining.Players)

	deleted, err = reg.RemoveMember("ABCD", "p2", func(Snapshot) { t.Fatal("commit on deleted room") })
	require.NoError(t, err)
	require.True(t, deleted)
	require.Equal(t, 0, reg.RoomCount())

	_, err = reg.Lookup("ABCD")
	require.ErrorIs(t, err, ErrRoomNotFound)
	_, _, err = reg.JoinRoom("ABCD", "Cy", "p3", nil)
	require.ErrorIs(t, err, ErrRoomNotFound)

	snap, _, err := reg.CreateRoom("Cy", "p3", nil)
	require.NoError(t, err)
	require.Equal(t, "ABCD", snap.Code)
}

func TestRemoveMemberErrors(t *testing.T) {
	reg := NewRegistry(WithCodeGenerator(&scriptedCodes{codes: []string{"ABCD"}}))
	_, _, err := reg.CreateRoom("Ann", "p1", nil)
	require.NoError(t, err)

	_, err = reg.RemoveMember("ABCD", "nobody", nil)
	require.ErrorIs(t, err, ErrNotMember)

	_, err = reg.RemoveMember("ZZZZ", "p1", nil)
	require.ErrorIs(t, err, ErrRoomNotFound)
}

func TestSlotIsReusedAfterLeave(t *testing.T) {
	reg := NewRegistry(WithCodeGenerator(&scriptedCodes{codes: []string{"ABCD"}}))
	_, _, err := reg.CreateRoom("Ann", "p1", nil)
	require.NoError(t, err)
	_, _, err = reg.JoinRoom("ABCD", "Bo", "p2", nil)
	require.NoError(t, err)
	_, _, err = reg.JoinRoom("ABCD", "Cy", "p3", nil)
	require.NoError(t, err)

	_, err = reg.RemoveMember("ABCD", "p2", nil)
	require.NoError(t, err)

	snap, player, err := reg.JoinRoom("ABCD", "Di", "p4", nil)
	require.NoError(t, err)
	require.Equal(t, SlotBlue, player.Slot)
	require.Equal(t, []string{"p1", "p3", "p4"}, playerIDs(snap.Players))
}

func TestUpdateStateReplacesVerbatim(t *testing.T) {
	reg := NewRegistry(WithCodeGenerator(&scriptedCodes{codes: []string{"ABCD"}}))
	_, _, err := reg.CreateRoom("Ann", "p1", nil)
	require.NoError(t, err)

	var seen json.RawMessage
	snap, err := reg.UpdateState("abcd", "p1", json.RawMessage(`{"turn":1,"board":[1,2]}`), func(s Snapshot) {
		seen = s.State
	})
	require.NoError(t, err)
	require.JSONEq(t, `{"turn":1,"board":[1,2]}`, string(snap.State))
	require.Equal(t, snap.State, seen)

	snap, err = reg.UpdateState("ABCD", "p1", json.RawMessage(`{"turn":2}`), nil)
	require.NoError(t, err)
	require.JSONEq(t, `{"turn":2}`, string(snap.State))
}

func TestUpdateStateRejectsEmptyPayload(t *testing.T) {
	reg := NewRegistry(WithCodeGenerator(&scriptedCodes{codes: []string{"ABCD"}}))
	_, _, err := reg.CreateRoom("Ann", "p1", nil)
	require.NoError(t, err)
	_, err = reg.UpdateState("ABCD", "p1", json.RawMessage(`{"turn":1}`), nil)
	require.NoError(t, err)

	for _, empty := range []string{"", "null", `""`, "false", "0", " "} {
		_, err := reg.UpdateState("ABCD", "p1", json.RawMessage(empty), func(Snapshot) {
			t.Fatalf("commit for empty state %q", empty)
		})
		require.ErrorIs(t, err, ErrInvalidState, "payload %q", empty)
	}

	snap, err := reg.Lookup("ABCD")
	require.NoError(t, err)
	require.JSONEq(t, `{"turn":1}`, string(snap.State))
}

func TestUpdateStateErrors(t *testing.T) {
	reg := NewRegistry(WithCodeGenerator(&scriptedCodes{codes: []string{"ABCD"}}))
	_, _, err := reg.CreateRoom("Ann", "p1", nil)
	require.NoError(t, err)

	_, err = reg.UpdateState("ZZZZ", "p1", json.RawMessage(`1`), nil)
	require.ErrorIs(t, err, ErrRoomNotFound)

	_, err = reg.UpdateState("ABCD", "stranger", json.RawMessage(`1`), nil)
	require.ErrorIs(t, err, ErrNotMember)
}

func TestIsEmptyState(t *testing.T) {
	for _, raw := range []string{"", "null", "false", "0", "0.0", `""`} {
		require.True(t, isEmptyState(json.RawMessage(raw)), raw)
	}
	for _, raw := range []string{"{}", "[]", "true", "1", `"x"`, `{"turn":0}`} {
		require.False(t, isEmptyState(json.RawMessage(raw)), raw)
	}
}

func TestConcurrentJoinsRespectCapacity(t *testing.T) {
	reg := NewRegistry(WithCodeGenerator(&scriptedCodes{codes: []string{"ABCD"}}))
	_, _, err := reg.CreateRoom("host", "host", nil)
	require.NoError(t, err)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		joined int
		full   int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := reg.JoinRoom("ABCD", "p", fmt.Sprintf("p%d", i), nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				joined++
			case errors.Is(err, ErrRoomFull):
				full++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, len(Palette)-1, joined)
	require.Equal(t, 32-joined, full)

	snap, err := reg.Lookup("ABCD")
	require.NoError(t, err)
	requireDistinctSlots(t, snap.Players)
}

func TestConcurrentChurnKeepsInvariants(t *testing.T) {
	reg := NewRegistry()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				host := fmt.Sprintf("h%d-%d", w, i)
				snap, _, err := reg.CreateRoom("h", host, nil)
				if err != nil {
					t.Errorf("create: %v", err)
					return
				}
				guest := fmt.Sprintf("g%d-%d", w, i)
				_, _, _ = reg.JoinRoom(snap.Code, "g", guest, func(s Snapshot) {
					if len(s.Players) > len(Palette) {
						t.Errorf("room %s over capacity", s.Code)
					}
				})
				_, _ = reg.RemoveMember(snap.Code, host, nil)
				_, _ = reg.RemoveMember(snap.Code, guest, nil)
			}
		}(w)
	}
	wg.Wait()

	require.Equal(t, 0, reg.RoomCount())
}

func playerIDs(players []Player) []string {
	ids := make([]string, len(players))
	for i, p := range players {
		ids[i] = p.ID
	}
	return ids
}

func requireDistinctSlots(t *testing.T, players []Player) {
	t.Helper()
	seen := make(map[Slot]bool, len(players))
	for _, p := range players {
		require.False(t, seen[p.Slot], "slot %s assigned twice", p.Slot)
		seen[p.Slot] = true
	}
	require.LessOrEqual(t, len(players), len(Palette))
}
