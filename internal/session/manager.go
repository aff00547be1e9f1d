package session

import (
	"sync"

	"energybot/internal/constants"
)

// SessionManager управляет состояниями пользователей и временными данными диалогов.
// SessionManager manages user states and dialogue scratch data.
type SessionManager struct {
	userStates     map[int64]string   // Ключ: chatID, Значение: текущее состояние / Key: chatID, Value: current state
	userStateMutex sync.RWMutex       // Защищает userStates и userHistory / Guards userStates and userHistory
	userHistory    map[int64][]string // История состояний для кнопки "Назад" / State history for the back button

	tempFlows      map[int64]TempFlowData
	tempFlowsMutex sync.RWMutex
}

// NewSessionManager создает и возвращает новый экземпляр SessionManager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		userStates:  make(map[int64]string),
		userHistory: make(map[int64][]string),
		tempFlows:   make(map[int64]TempFlowData),
	}
}

// --- Управление состоянием пользователя (User State) ---

// GetState возвращает текущее состояние пользователя или STATE_IDLE.
func (sm *SessionManager) GetState(chatID int64) string {
	sm.userStateMutex.RLock()
	defer sm.userStateMutex.RUnlock()
	state, ok := sm.userStates[chatID]
	if !ok {
		return constants.STATE_IDLE
	}
	return state
}

// SetState устанавливает новое состояние для пользователя и добавляет его в историю.
func (sm *SessionManager) SetState(chatID int64, state string) {
	sm.userStateMutex.Lock()
	defer sm.userStateMutex.Unlock()

	sm.userStates[chatID] = state
	history := sm.userHistory[chatID]
	// Не дублируем последнее состояние / Skip a repeated last state
	if len(history) == 0 || history[len(history)-1] != state {
		sm.userHistory[chatID] = append(history, state)
	}
}

// PopState удаляет последнее состояние из истории и делает предыдущее текущим.
// Если предыдущего нет, устанавливает STATE_IDLE.
func (sm *SessionManager) PopState(chatID int64) string {
	sm.userStateMutex.Lock()
	defer sm.userStateMutex.Unlock()

	history := sm.userHistory[chatID]
	if len(history) > 1 {
		history = history[:len(history)-1]
		sm.userHistory[chatID] = history
		newState := history[len(history)-1]
		sm.userStates[chatID] = newState
		return newState
	}
	sm.userStates[chatID] = constants.STATE_IDLE
	sm.userHistory[chatID] = []string{constants.STATE_IDLE}
	return constants.STATE_IDLE
}

// GetHistory возвращает копию истории состояний пользователя.
func (sm *SessionManager) GetHistory(chatID int64) []string {
	sm.userStateMutex.RLock()
	defer sm.userStateMutex.RUnlock()
	return append([]string(nil), sm.userHistory[chatID]...)
}

// ClearState сбрасывает состояние, историю и временные данные пользователя.
func (sm *SessionManager) ClearState(chatID int64) {
	sm.userStateMutex.Lock()
	delete(sm.userStates, chatID)
	delete(sm.userHistory, chatID)
	sm.userStateMutex.Unlock()
	sm.ClearTempFlow(chatID)
}

// --- Временные данные диалога (Temp Flow) ---

func (sm *SessionManager) GetTempFlow(chatID int64) TempFlowData {
	sm.tempFlowsMutex.RLock()
	defer sm.tempFlowsMutex.RUnlock()
	return sm.tempFlows[chatID]
}

// UpdateTempFlow applies fn to the user's scratch data under the lock.
func (sm *SessionManager) UpdateTempFlow(chatID int64, fn func(*TempFlowData)) TempFlowData {
	sm.tempFlowsMutex.Lock()
	defer sm.tempFlowsMutex.Unlock()
	data := sm.tempFlows[chatID]
	fn(&data)
	sm.tempFlows[chatID] = data
	return data
}

func (sm *SessionManager) ClearTempFlow(chatID int64) {
	sm.tempFlowsMutex.Lock()
	defer sm.tempFlowsMutex.Unlock()
	delete(sm.tempFlows, chatID)
}
