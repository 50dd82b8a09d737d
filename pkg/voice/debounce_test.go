package voice

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/matryer/is"
)

func collectDebouncer(window time.Duration) (*Debouncer, chan string, *atomic.Int32) {
	out := make(chan string, 8)
	var activity atomic.Int32
	d := NewDebouncer(DebouncerConfig{
		Window:      window,
		OnUtterance: func(u string) { out <- u },
		OnActivity:  func() { activity.Add(1) },
	})
	return d, out, &activity
}

func TestDebouncerJoinsFragments(t *testing.T) {
	is := is.New(t)
	d, out, _ := collectDebouncer(30 * time.Millisecond)
	defer d.Stop()

	d.Add("Hello")
	d.Add("there, this is Sam")

	select {
	case u := <-out:
		is.Equal(u, "Hello there, this is Sam")
	case <-time.After(time.Second):
		t.Fatal("no utterance flushed")
	}
}

func TestDebouncerNewFragmentRestartsTimer(t *testing.T) {
	is := is.New(t)
	d, out, _ := collectDebouncer(60 * time.Millisecond)
	defer d.Stop()

	d.Add("first")
	time.Sleep(30 * time.Millisecond)
	d.Add("second") // restarts the 60ms window
	select {
	case u := <-out:
		t.Fatalf("flushed too early: %q", u)
	case <-time.After(40 * time.Millisecond):
	}

	select {
	case u := <-out:
		is.Equal(u, "first second")
	case <-time.After(time.Second):
		t.Fatal("no utterance flushed")
	}
}

func TestDebouncerDiscardsBackchannels(t *testing.T) {
	is := is.New(t)
	d, out, activity := collectDebouncer(30 * time.Millisecond)
	defer d.Stop()

	d.Add("okay")
	d.Add("Uh-huh.")
	d.Add("a") // below minimum length

	select {
	case u := <-out:
		t.Fatalf("backchannel became an utterance: %q", u)
	case <-time.After(80 * time.Millisecond):
	}
	// discarded fragments still count as caller activity
	is.Equal(activity.Load(), int32(3))
}

func TestDebouncerDropsNonLatin(t *testing.T) {
	is := is.New(t)
	d, out, activity := collectDebouncer(30 * time.Millisecond)
	defer d.Stop()

	d.Add("это проверка связи")
	select {
	case u := <-out:
		t.Fatalf("non-latin fragment became an utterance: %q", u)
	case <-time.After(80 * time.Millisecond):
	}
	is.Equal(activity.Load(), int32(0))
}

func TestDebouncerKeepsMostlyLatinText(t *testing.T) {
	is := is.New(t)
	d, out, _ := collectDebouncer(20 * time.Millisecond)
	defer d.Stop()

	d.Add("my colleague José said no")
	select {
	case u := <-out:
		is.Equal(u, "my colleague José said no")
	case <-time.After(time.Second):
		t.Fatal("accented latin text was dropped")
	}
}

func TestDebouncerFlush(t *testing.T) {
	is := is.New(t)
	d, out, _ := collectDebouncer(time.Hour)
	defer d.Stop()

	d.Add("trailing")
	d.Add("words")
	d.Flush()

	select {
	case u := <-out:
		is.Equal(u, "trailing words")
	default:
		t.Fatal("flush did not deliver synchronously")
	}

	d.Flush() // empty buffer is a no-op
	select {
	case u := <-out:
		t.Fatalf("unexpected utterance %q", u)
	default:
	}
}

func TestDebouncerStopDiscards(t *testing.T) {
	d, out, _ := collectDebouncer(20 * time.Millisecond)

	d.Add("doomed")
	d.Stop()
	d.Add("after stop")

	select {
	case u := <-out:
		t.Fatalf("utterance after stop: %q", u)
	case <-time.After(80 * time.Millisecond):
	}
}

func TestDebouncerSeparateWindowsSeparateUtterances(t *testing.T) {
	is := is.New(t)
	d, out, _ := collectDebouncer(20 * time.Millisecond)
	defer d.Stop()

	d.Add("first thought")
	select {
	case u := <-out:
		is.Equal(u, "first thought")
	case <-time.After(time.Second):
		t.Fatal("first utterance not flushed")
	}

	d.Add("second thought")
	select {
	case u := <-out:
		is.Equal(u, "second thought")
	case <-time.After(time.Second):
		t.Fatal("second utterance not flushed")
	}
}
