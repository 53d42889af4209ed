package elector

import (
	"testing"

	"tagstore-dht/internal/domain"
)

var testSpace, _ = domain.NewSpace(8, 3)

func newTestElector(idByte byte) *Elector {
	self := domain.NodeRef{IP: "127.0.0.1", ChordPort: 10001, ID: domain.ID{idByte}}
	return New(self, nil, nil, 0, 3, 3, nil)
}

func TestHandleElectionFromHigherIDStaysSilent(t *testing.T) {
	e := newTestElector(0x50)
	// Lower id than self: self bullies the sender, so self would reply OK
	// and start electing. Higher id than self: self stays silent.
	e.handleMessage(wireMsg{Type: msgElection, ID: domain.ID{0x90}.ToHexString(false), IP: "10.0.0.9"})
	if e.CurrentPhase() == Electing {
		t.Fatal("expected silence (no phase change) when a higher id starts an election")
	}
}

func TestHandleElectionFromLowerIDTriggersElecting(t *testing.T) {
	e := newTestElector(0x90)
	e.handleMessage(wireMsg{Type: msgElection, ID: domain.ID{0x10}.ToHexString(false), IP: "10.0.0.1"})
	if e.CurrentPhase() != Electing {
		t.Fatalf("expected to enter Electing after a lower-id ELECTION, got %v", e.CurrentPhase())
	}
}

func TestHandleWinnerAcceptedWhenNotBullyingSelf(t *testing.T) {
	e := newTestElector(0x10)
	e.mu.Lock()
	e.phase = Electing
	e.mu.Unlock()

	e.handleMessage(wireMsg{Type: msgWinner, ID: domain.ID{0x90}.ToHexString(false), IP: "10.0.0.9"})

	leader, ok := e.Leader()
	if !ok || leader.IP != "10.0.0.9" {
		t.Fatalf("expected leader 10.0.0.9, got %v ok=%v", leader, ok)
	}
	if e.CurrentPhase() != Stable {
		t.Fatalf("expected Stable after accepting winner, got %v", e.CurrentPhase())
	}
	if e.ImLeader() {
		t.Fatal("should not consider self leader")
	}
}

func TestHandleWinnerRejectedWhenSelfBulliesWinner(t *testing.T) {
	e := newTestElector(0x90)
	e.handleMessage(wireMsg{Type: msgWinner, ID: domain.ID{0x10}.ToHexString(false), IP: "10.0.0.1"})
	if _, ok := e.Leader(); ok {
		t.Fatal("expected a lower-id WINNER claim to be rejected")
	}
}

func TestHandleOKFromHigherIDResetsLeader(t *testing.T) {
	e := newTestElector(0x50)
	winner := domain.NodeRef{IP: "10.0.0.5", ChordPort: 1, ID: domain.ID{0x50}}
	e.mu.Lock()
	e.leader = &winner
	e.imLeader = true
	e.phase = Stable
	e.mu.Unlock()

	e.handleMessage(wireMsg{Type: msgOK, ID: domain.ID{0x90}.ToHexString(false), IP: "10.0.0.9"})

	if _, ok := e.Leader(); ok {
		t.Fatal("expected leader to be reset after OK from a higher id than the current leader")
	}
	if e.CurrentPhase() != Leaderless {
		t.Fatalf("expected Leaderless after leader reset, got %v", e.CurrentPhase())
	}
}

func TestTickLeaderlessEntersElecting(t *testing.T) {
	e := newTestElector(0x10)
	e.tick(nil)
	if e.CurrentPhase() != Electing {
		t.Fatalf("expected Leaderless tick to enter Electing, got %v", e.CurrentPhase())
	}
}

func TestTickElectingCountdownSelfPromotes(t *testing.T) {
	e := newTestElector(0x10)
	e.mu.Lock()
	e.phase = Electing
	e.countdown = 1
	e.sawOK = false
	e.mu.Unlock()

	e.tick(nil)

	if e.CurrentPhase() != Stable {
		t.Fatalf("expected self-promotion to Stable, got %v", e.CurrentPhase())
	}
	if !e.ImLeader() {
		t.Fatal("expected self-promotion to set ImLeader")
	}
}
