package session

import (
	"sync"
	"testing"

	"energybot/internal/constants"
)

func TestStateHistory(t *testing.T) {
	sm := NewSessionManager()
	const chat = 1

	if got := sm.GetState(chat); got != constants.STATE_IDLE {
		t.Errorf("initial state = %s", got)
	}
	sm.SetState(chat, constants.STATE_BIO_NAME)
	sm.SetState(chat, constants.STATE_BIO_BIRTHDAY)
	sm.SetState(chat, constants.STATE_BIO_BIRTHDAY)
	if h := sm.GetHistory(chat); len(h) != 2 {
		t.Errorf("history = %v", h)
	}
	if got := sm.PopState(chat); got != constants.STATE_BIO_NAME {
		t.Errorf("PopState = %s", got)
	}
	if got := sm.PopState(chat); got != constants.STATE_IDLE {
		t.Errorf("PopState on last = %s", got)
	}
}

func TestTempFlow(t *testing.T) {
	sm := NewSessionManager()
	const chat = 2

	sm.SetState(chat, constants.STATE_AWAIT_EMAIL)
	sm.UpdateTempFlow(chat, func(d *TempFlowData) { d.PendingTariffRub = 499 })
	if got := sm.GetTempFlow(chat); got.PendingTariffRub != 499 {
		t.Errorf("temp = %+v", got)
	}

	sm.ClearState(chat)
	if sm.GetState(chat) != constants.STATE_IDLE || sm.GetTempFlow(chat).PendingTariffRub != 0 {
		t.Error("ClearState left data behind")
	}
}

func TestConcurrentAccess(t *testing.T) {
	sm := NewSessionManager()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(chat int64) {
			defer wg.Done()
			sm.SetState(chat%5, constants.STATE_FEATURE_INPUT)
			sm.UpdateTempFlow(chat%5, func(d *TempFlowData) { d.MenuMessageID++ })
			sm.GetState(chat % 5)
		}(int64(i))
	}
	wg.Wait()
	total := 0
	for chat := int64(0); chat < 5; chat++ {
		total += sm.GetTempFlow(chat).MenuMessageID
	}
	if total != 50 {
		t.Errorf("updates = %d, want 50", total)
	}
}
