// Copyright 2025 The go-taskhive Authors
// This file is part of the go-taskhive library.
//
// The go-taskhive library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-taskhive library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-taskhive library. If not, see <http://www.gnu.org/licenses/>.

package event

import (
	"errors"
	"testing"
)

var errInts = errors.New("error in subscribeInts")

func subscribeInts(max, fail int, c chan<- int) Subscription {
	return NewSubscription(func(quit <-chan struct{}) error {
		for i := 0; i < max; i++ {
			if i >= fail {
				return errInts
			}
			select {
			case c <- i:
			case <-quit:
				return nil
			}
		}
		return nil
	})
}

func TestNewSubscriptionError(t *testing.T) {
	t.Parallel()

	channel := make(chan int)
	sub := subscribeInts(10, 2, channel)
loop:
	for want := 0; want < 10; want++ {
		select {
		case got := <-channel:
			if got != want {
				t.Fatalf("wrong int %d, want %d", got, want)
			}
		case err := <-sub.Err():
			if err != errInts {
				t.Fatalf("wrong error: got %q, want %q", err, errInts)
			}
			if want != 2 {
				t.Fatalf("got errInts at int %d, should be received at 2", want)
			}
			break loop
		}
	}
	sub.Unsubscribe()

	err, ok := <-sub.Err()
	if err != nil {
		t.Fatal("got non-nil error after Unsubscribe")
	}
	if ok {
		t.Fatal("channel still open after Unsubscribe")
	}
}

func TestSubscriptionScope(t *testing.T) {
	t.Parallel()

	var (
		feed  FeedOf[int]
		scope SubscriptionScope
		ch    = make(chan int, 1)
	)
	sub := scope.Track(feed.Subscribe(ch))
	if sub == nil {
		t.Fatal("Track returned nil for open scope")
	}
	if n := scope.Count(); n != 1 {
		t.Fatalf("scope tracks %d subscriptions, want 1", n)
	}

	feed.Send(1)
	if v := <-ch; v != 1 {
		t.Fatalf("received %d, want 1", v)
	}

	scope.Close()
	if n := scope.Count(); n != 0 {
		t.Fatalf("scope tracks %d subscriptions after close, want 0", n)
	}
	if nsent := feed.Send(2); nsent != 0 {
		t.Fatalf("send after close delivered %d values, want 0", nsent)
	}
	if s := scope.Track(feed.Subscribe(ch)); s != nil {
		t.Fatal("Track returned non-nil for closed scope")
	}
}
