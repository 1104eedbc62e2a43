/*
NAME
  dispatcher_test.go

AUTHORS
  Saxon Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package event

import "testing"

func TestDispatchOrder(t *testing.T) {
	var d Dispatcher
	var order []int

	d.Subscribe(ConnectSuccess, func(interface{}) { order = append(order, 1) })
	d.Subscribe(ConnectSuccess, func(interface{}) { order = append(order, 2) })
	d.Subscribe(ConnectSuccess, func(interface{}) { order = append(order, 3) })

	d.Dispatch(ConnectSuccess, nil)

	want := []int{1, 2, 3}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
}

func TestDispatchPayload(t *testing.T) {
	var d Dispatcher
	var got interface{}
	d.Subscribe(PublishStart, func(p interface{}) { got = p })
	d.Dispatch(PublishStart, "stream-1")
	if got != "stream-1" {
		t.Errorf("got %v, want stream-1", got)
	}
}

func TestUnsubscribe(t *testing.T) {
	var d Dispatcher
	called := false
	tok := d.Subscribe(ConnectSuccess, func(interface{}) { called = true })
	d.Unsubscribe(tok)
	d.Dispatch(ConnectSuccess, nil)
	if called {
		t.Error("unsubscribed handler was still called")
	}
}

func TestDistinctEvents(t *testing.T) {
	var d Dispatcher
	var gotConnect, gotPublish bool
	d.Subscribe(ConnectSuccess, func(interface{}) { gotConnect = true })
	d.Subscribe(PublishStart, func(interface{}) { gotPublish = true })

	d.Dispatch(ConnectSuccess, nil)
	if !gotConnect || gotPublish {
		t.Errorf("dispatch leaked across events: connect=%v publish=%v", gotConnect, gotPublish)
	}
}

func TestSubscribeDuringDispatchAppliesNextTime(t *testing.T) {
	var d Dispatcher
	var lateCalls int
	d.Subscribe(ConnectSuccess, func(interface{}) {
		d.Subscribe(ConnectSuccess, func(interface{}) { lateCalls++ })
	})

	d.Dispatch(ConnectSuccess, nil)
	if lateCalls != 0 {
		t.Fatalf("handler registered mid-dispatch ran during the same dispatch: %d calls", lateCalls)
	}
	d.Dispatch(ConnectSuccess, nil)
	if lateCalls != 1 {
		t.Errorf("handler registered mid-dispatch should run on next dispatch, got %d calls", lateCalls)
	}
}
