package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// New は新しいイベントを生成する。
// dataにはイベント固有のデータ構造体を渡す。JSON形式にシリアライズされる。
func New(aggregateID string, aggregateType AggregateType, eventType Type, data any) (*Event, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("イベントデータのシリアライズに失敗: %w", err)
	}

	return &Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          jsonData,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// PushData はプッシュ通知のdataペイロードを返す。
// イベント固有のデータに "type" キーとしてイベント種別を加える。
func (e *Event) PushData() (map[string]any, error) {
	data := map[string]any{}
	if len(e.Data) > 0 {
		if err := json.Unmarshal(e.Data, &data); err != nil {
			return nil, fmt.Errorf("イベントデータのデシリアライズに失敗: %w", err)
		}
	}
	data["type"] = string(e.EventType)
	return data, nil
}
