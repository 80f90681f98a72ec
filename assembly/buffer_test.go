package assembly

import (
	"math/rand"
	"testing"
)

func collectFrames(t *testing.T, b *Buffer, remote string, message []byte) [][]byte {
	t.Helper()
	var frames [][]byte
	err := b.SplitMessage(remote, message, func(frame []byte) error {
		cp := make([]byte, len(frame))
		copy(cp, frame)
		frames = append(frames, cp)
		return nil
	})
	if err != nil {
		t.Fatalf("SplitMessage() failed: %v", err)
	}
	return frames
}

func TestSingleFragmentIsImmediate(t *testing.T) {
	b := New()
	message := []byte("short message")

	frames := collectFrames(t, b, "peer1", message)
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame for a short message, got %d", len(frames))
	}

	out, ok, err := b.InsertFrame("peer1", frames[0])
	if err != nil {
		t.Fatalf("InsertFrame() failed: %v", err)
	}
	if !ok {
		t.Fatal("InsertFrame() did not complete a single-fragment message")
	}
	if string(out) != string(message) {
		t.Errorf("InsertFrame() = %q, want %q", out, message)
	}
}

func TestZeroLengthMessageRoundTrip(t *testing.T) {
	b := New()
	frames := collectFrames(t, b, "peer1", nil)
	if len(frames) != 1 || frames[0] != nil {
		t.Fatalf("expected a single nil frame for an empty message, got %v", frames)
	}

	out, ok, err := b.InsertFrame("peer1", nil)
	if err != nil {
		t.Fatalf("InsertFrame() failed: %v", err)
	}
	if !ok || len(out) != 0 {
		t.Errorf("InsertFrame(nil) = (%v, %v), want (empty, true)", out, ok)
	}
}

func TestFragmentedRoundTrip(t *testing.T) {
	b := New()
	message := make([]byte, 20*1024)
	for i := range message {
		message[i] = byte(i)
	}

	frames := collectFrames(t, b, "peer1", message)
	if len(frames) < 2 {
		t.Fatalf("expected multiple fragments for a 20KiB message, got %d", len(frames))
	}

	var result []byte
	for _, frame := range frames {
		out, ok, err := b.InsertFrame("peer1", frame)
		if err != nil {
			t.Fatalf("InsertFrame() failed: %v", err)
		}
		if ok {
			result = out
		}
	}

	if string(result) != string(message) {
		t.Error("reassembled message does not match original")
	}
}

func TestFragmentReorderReassembles(t *testing.T) {
	b := New()
	message := make([]byte, 20*1024)
	if _, err := rand.Read(message); err != nil {
		t.Fatalf("rand.Read() failed: %v", err)
	}

	frames := collectFrames(t, b, "peer1", message)

	shuffled := make([][]byte, len(frames))
	copy(shuffled, frames)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	var result []byte
	for _, frame := range shuffled {
		out, ok, err := b.InsertFrame("peer1", frame)
		if err != nil {
			t.Fatalf("InsertFrame() failed: %v", err)
		}
		if ok {
			result = out
		}
	}

	if string(result) != string(message) {
		t.Error("shuffled fragments did not reassemble to the original message")
	}
}

func TestRejectsBadVersion(t *testing.T) {
	b := New()
	frame := encodeHeader(header{version: 2, seq: 1, offset: 0, length: 10})
	frame = append(frame, make([]byte, 5)...)

	out, ok, err := b.InsertFrame("peer1", frame)
	if err != nil {
		t.Fatalf("InsertFrame() unexpected error: %v", err)
	}
	if ok || out != nil {
		t.Error("InsertFrame() accepted a frame with an invalid version")
	}
}

func TestRejectsOffsetBeyondLength(t *testing.T) {
	b := New()
	frame := encodeHeader(header{version: 1, seq: 1, offset: 20, length: 10})
	frame = append(frame, make([]byte, 5)...)

	_, ok, err := b.InsertFrame("peer1", frame)
	if err != nil {
		t.Fatalf("InsertFrame() unexpected error: %v", err)
	}
	if ok {
		t.Error("InsertFrame() accepted an out-of-range offset")
	}
}

func TestSplitMessageRejectsOversize(t *testing.T) {
	b := New()
	oversized := make([]byte, MaxLen+1)
	err := b.SplitMessage("peer1", oversized, func([]byte) error { return nil })
	if err == nil {
		t.Error("SplitMessage() expected error for oversized message")
	}
}

func TestDifferentPeersDoNotInterfere(t *testing.T) {
	b := New()
	msgA := make([]byte, 5000)
	msgB := make([]byte, 5000)
	for i := range msgA {
		msgA[i] = 0xAA
		msgB[i] = 0xBB
	}

	framesA := collectFrames(t, b, "peerA", msgA)
	framesB := collectFrames(t, b, "peerB", msgB)

	var resultA, resultB []byte
	for _, f := range framesA {
		if out, ok, _ := b.InsertFrame("peerA", f); ok {
			resultA = out
		}
	}
	for _, f := range framesB {
		if out, ok, _ := b.InsertFrame("peerB", f); ok {
			resultB = out
		}
	}

	if string(resultA) != string(msgA) {
		t.Error("peerA message corrupted by peerB activity")
	}
	if string(resultB) != string(msgB) {
		t.Error("peerB message corrupted by peerA activity")
	}
}
