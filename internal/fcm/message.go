package fcm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Target は送信先。Token、Topic、Conditionのいずれか1つだけを表す。
type Target interface {
	// Kind は宛先の種類（"token" / "topic" / "condition"）を返す。
	Kind() string
	// Value は宛先の値を返す。
	Value() string
	apply(m *Message)
}

// Token はデバイストークン宛ての送信先。
type Token string

// Kind は"token"を返す。
func (Token) Kind() string { return "token" }

// Value はトークンを返す。
func (t Token) Value() string { return string(t) }

func (t Token) apply(m *Message) { m.Token = string(t) }

// Topic はトピック宛ての送信先。
type Topic string

// Kind は"topic"を返す。
func (Topic) Kind() string { return "topic" }

// Value はトピック名を返す。
func (t Topic) Value() string { return string(t) }

func (t Topic) apply(m *Message) { m.Topic = string(t) }

// Condition はトピック条件式宛ての送信先。
type Condition string

// Kind は"condition"を返す。
func (Condition) Kind() string { return "condition" }

// Value は条件式を返す。
func (c Condition) Value() string { return string(c) }

func (c Condition) apply(m *Message) { m.Condition = string(c) }

// Notification は表示用の通知内容。
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Message はFCM HTTP v1 APIのmessageオブジェクト。
type Message struct {
	Token        string            `json:"token,omitempty"`
	Topic        string            `json:"topic,omitempty"`
	Condition    string            `json:"condition,omitempty"`
	Notification Notification      `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
	Android      map[string]any    `json:"android,omitempty"`
	APNS         map[string]any    `json:"apns,omitempty"`
	Webpush      map[string]any    `json:"webpush,omitempty"`
}

// Options はプラットフォーム別の追加設定。
// 各ブロックはFCMのスキーマのまま送信される。呼び出し側のマップは変更しない。
type Options struct {
	Android  map[string]any
	APNS     map[string]any
	Webpush  map[string]any
	ImageURL string
}

// BuildMessage は送信するメッセージを組み立てる。同じ入力からは常に同じJSONが得られる。
func BuildMessage(target Target, title, body string, data map[string]any, opts Options) (*Message, error) {
	if target == nil || target.Value() == "" {
		return nil, errors.New("送信先が指定されていません")
	}

	payload, err := StringifyData(data)
	if err != nil {
		return nil, err
	}

	msg := &Message{
		Notification: Notification{Title: title, Body: body},
		Data:         payload,
		Android:      cloneMap(opts.Android),
		APNS:         cloneMap(opts.APNS),
		Webpush:      cloneMap(opts.Webpush),
	}
	target.apply(msg)

	if opts.ImageURL != "" {
		if msg.Webpush == nil {
			msg.Webpush = map[string]any{}
		}
		if msg.Android == nil {
			msg.Android = map[string]any{}
		}
		if msg.APNS == nil {
			msg.APNS = map[string]any{}
		}
		child(msg.Webpush, "notification")["image"] = opts.ImageURL
		child(msg.Android, "notification")["image"] = opts.ImageURL
		child(msg.APNS, "fcm_options")["image"] = opts.ImageURL

		aps := child(child(msg.APNS, "payload"), "aps")
		aps["mutable-content"] = 1
		if _, ok := aps["alert"]; !ok {
			aps["alert"] = map[string]any{"title": title, "body": body}
		}
	}
	return msg, nil
}

// StringifyData はdataペイロードの値をすべて文字列にする。
// 文字列はそのまま、nilは空文字、それ以外はJSONテキストに変換する。
func StringifyData(data map[string]any) (map[string]string, error) {
	if len(data) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(data))
	for k, v := range data {
		switch val := v.(type) {
		case string:
			out[k] = val
		case nil:
			out[k] = ""
		case json.RawMessage:
			out[k] = string(val)
		default:
			s, err := marshalText(val)
			if err != nil {
				return nil, fmt.Errorf("dataの値を文字列に変換できません (key=%s): %w", k, err)
			}
			out[k] = s
		}
	}
	return out, nil
}

// marshalText はHTMLエスケープをせずにJSONテキストを返す。
func marshalText(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// child はmの子マップを返す。存在しないかマップでない場合は新しいマップで置き換える。
func child(m map[string]any, key string) map[string]any {
	if c, ok := m[key].(map[string]any); ok {
		return c
	}
	c := map[string]any{}
	m[key] = c
	return c
}

// cloneMap はマップとスライスを再帰的に複製する。
func cloneMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = cloneValue(v)
	}
	return dst
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return val
	}
}
