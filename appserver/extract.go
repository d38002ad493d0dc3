package appserver

import "encoding/json"

// ExtractThreadID pulls the thread id out of a notification payload,
// accepting both camelCase and snake_case spellings.
func ExtractThreadID(params json.RawMessage) (string, bool) {
	var p struct {
		ThreadID      string `json:"threadId"`
		ThreadIDSnake string `json:"thread_id"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return "", false
	}
	if p.ThreadID != "" {
		return p.ThreadID, true
	}
	if p.ThreadIDSnake != "" {
		return p.ThreadIDSnake, true
	}
	return "", false
}

// ExtractTurnID pulls the turn id out of a notification payload, accepting
// camelCase, snake_case, and the nested turn object form.
func ExtractTurnID(params json.RawMessage) (string, bool) {
	var p struct {
		TurnID      string `json:"turnId"`
		TurnIDSnake string `json:"turn_id"`
		Turn        struct {
			ID string `json:"id"`
		} `json:"turn"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return "", false
	}
	if p.TurnID != "" {
		return p.TurnID, true
	}
	if p.TurnIDSnake != "" {
		return p.TurnIDSnake, true
	}
	if p.Turn.ID != "" {
		return p.Turn.ID, true
	}
	return "", false
}
