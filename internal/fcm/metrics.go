package fcm

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// 送信結果のラベル値。
const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// Metrics はFCM送信に関するPrometheusメトリクス。nilの場合は何も記録しない。
type Metrics struct {
	// Messages は宛先種別と結果ごとの送信数。
	Messages *prometheus.CounterVec
	// TokenExchanges は結果ごとのアクセストークン交換数。
	TokenExchanges *prometheus.CounterVec
	// SendDuration はFCM APIへのリクエスト時間。
	SendDuration prometheus.Histogram
}

// NewMetrics はメトリクスを生成してregに登録する。
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fcm_messages_total",
			Help: "Total number of FCM messages by target kind and outcome",
		}, []string{"target", "outcome"}),
		TokenExchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fcm_token_exchanges_total",
			Help: "Total number of OAuth2 access token exchanges by outcome",
		}, []string{"outcome"}),
		SendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fcm_send_duration_seconds",
			Help:    "Duration of FCM send requests in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}

	for _, c := range []prometheus.Collector{m.Messages, m.TokenExchanges, m.SendDuration} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("メトリクスの登録に失敗: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) observeSend(kind string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.SendDuration.Observe(time.Since(start).Seconds())
	m.Messages.WithLabelValues(kind, outcome(err)).Inc()
}

func (m *Metrics) observeExchange(err error) {
	if m == nil {
		return
	}
	m.TokenExchanges.WithLabelValues(outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return outcomeFailure
	}
	return outcomeSuccess
}
